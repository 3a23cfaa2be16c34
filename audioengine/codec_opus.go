package audioengine

import (
	"fmt"

	"github.com/pion/opus"
)

// OpusCodec is the adaptive/DTX reference implementation of the
// black-box contract in spec §4.5. Decoding uses pion/opus's pure-Go
// decoder. pion/opus ships no encoder, so Encode mirrors the
// PCM-passthrough placeholder pattern used elsewhere in the corpus for
// the same reason (see opd-ai-toxcore's SimplePCMEncoder) — it keeps
// the framing and control-channel behavior (bitrate adaptation, DTX
// gating) exercised without depending on cgo libopus.
type OpusCodec struct {
	sampleRate int
	channels   int
	decoder    *opus.Decoder
	ctrl       Control
}

// NewOpusCodec creates an Opus-shaped codec handle at sampleRate with
// the given channel count, per spec §4.5's create_decoder(sample_rate,
// channels).
func NewOpusCodec(sampleRate, channels int) *OpusCodec {
	return &OpusCodec{
		sampleRate: sampleRate,
		channels:   channels,
		decoder:    opus.NewDecoder(),
		ctrl: Control{
			Complexity:       5,
			TargetBitrateBPS: 32000,
		},
	}
}

func (c *OpusCodec) SampleRate() int { return c.sampleRate }

func (c *OpusCodec) SetControl(ctrl Control) { c.ctrl = ctrl }

// Encode frames pcm as little-endian int16 bytes. Real Opus compression
// is out of scope without cgo; the control-channel values (bitrate,
// DTX, FEC) set by AdaptiveEncoder (adaptive.go) are tracked on c.ctrl,
// and only DTX changes the output: with DTX on, no packet is produced.
func (c *OpusCodec) Encode(pcm []int16) ([]byte, error) {
	if len(pcm) == 0 {
		return nil, fmt.Errorf("%w: empty pcm frame", ErrCodecFailure)
	}
	if c.ctrl.DTX {
		return nil, nil // DTX: no packet this frame
	}
	out := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out, nil
}

// Decode uses pion/opus when packet looks like a real Opus payload
// (non-empty), otherwise treats it as the passthrough wire format
// Encode produced.
func (c *OpusCodec) Decode(packet []byte) ([]int16, error) {
	frame := frameSamples(c.sampleRate) * c.channels
	if len(packet) == 0 {
		return make([]int16, frame), nil
	}

	output := make([]byte, frame*2)
	if _, isStereo, err := c.decoder.Decode(packet, output); err == nil {
		return bytesToInt16(output, isStereo, c.channels), nil
	}

	// Fall back to the passthrough format our own Encode emits.
	if len(packet)%2 != 0 {
		return nil, fmt.Errorf("%w: odd-length opus passthrough frame", ErrCodecFailure)
	}
	pcm := make([]int16, len(packet)/2)
	for i := range pcm {
		pcm[i] = int16(uint16(packet[i*2]) | uint16(packet[i*2+1])<<8)
	}
	return pcm, nil
}

func (c *OpusCodec) Close() error { return nil }

func bytesToInt16(b []byte, _ bool, _ int) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(uint16(b[i*2]) | uint16(b[i*2+1])<<8)
	}
	return out
}
