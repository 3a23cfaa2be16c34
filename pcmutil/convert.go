// Package pcmutil provides PCM16 byte/sample conversion helpers shared by
// the codec-handle implementations and the audio quality engine.
package pcmutil

import "encoding/binary"

// BytesToInt16 decodes little-endian PCM16 bytes into dst, growing or
// truncating dst as needed, and returns the used slice.
func BytesToInt16(dst []int16, src []byte) []int16 {
	n := len(src) / 2
	if cap(dst) < n {
		dst = make([]int16, n)
	} else {
		dst = dst[:n]
	}
	for i := 0; i < n; i++ {
		dst[i] = int16(binary.LittleEndian.Uint16(src[i*2 : i*2+2]))
	}
	return dst
}

// Int16ToBytes encodes PCM16 samples into little-endian bytes in dst,
// growing or truncating dst as needed, and returns the used slice.
func Int16ToBytes(dst []byte, src []int16) []byte {
	need := len(src) * 2
	if cap(dst) < need {
		dst = make([]byte, need)
	} else {
		dst = dst[:need]
	}
	for i, s := range src {
		binary.LittleEndian.PutUint16(dst[i*2:i*2+2], uint16(s))
	}
	return dst
}

// Assembler accumulates PCM16 samples and emits fixed-size frames as
// enough data arrives, for sources that decode in irregular chunks.
type Assembler struct {
	frameSamples int
	buf          []int16
}

// NewAssembler returns an Assembler that emits frames of frameSamples
// samples each.
func NewAssembler(frameSamples int) *Assembler {
	if frameSamples < 1 {
		frameSamples = 1
	}
	return &Assembler{frameSamples: frameSamples}
}

// Push appends in to the internal buffer and returns zero or more
// complete frames, oldest first.
func (a *Assembler) Push(in []int16) [][]int16 {
	if len(in) == 0 {
		return nil
	}
	a.buf = append(a.buf, in...)
	var out [][]int16
	for len(a.buf) >= a.frameSamples {
		frame := make([]int16, a.frameSamples)
		copy(frame, a.buf[:a.frameSamples])
		out = append(out, frame)
		a.buf = a.buf[a.frameSamples:]
	}
	return out
}
