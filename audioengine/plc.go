package audioengine

import (
	"math"
	"math/rand"

	"vtap/pcmutil"
)

const (
	// AnalysisWindowSize is the ADVANCED-mode correlation window, in
	// samples at the 16kHz lookback rate (spec §4.5).
	AnalysisWindowSize = 160
	// MaxFadeLengthMS bounds the REPEAT-mode linear fade-out.
	MaxFadeLengthMS = 20
	// LookbackCapacityMS is the lookback ring's horizon (spec §3).
	LookbackCapacityMS = 60
	// LookbackRateHz is the fixed analysis rate the lookback ring stores
	// samples at, regardless of the stream's native clock rate.
	LookbackRateHz = 16000
)

// Mode is the PLC strategy tag, matching the four-case dynamic dispatch
// in spec §9's design notes: SILENCE, REPEAT, PATTERN (standalone
// comfort-noise), and ADVANCED.
type Mode int

const (
	ModeSilence Mode = iota
	ModeRepeat
	ModePattern
	ModeAdvanced
)

// LookbackBuffer holds up to LookbackCapacityMS of previously decoded
// audio at LookbackRateHz, used as the ADVANCED-mode correlation source
// and the PATTERN-mode noise-shaping reference.
type LookbackBuffer struct {
	samples []int16
	cap     int
}

// NewLookbackBuffer returns an empty ring sized for LookbackCapacityMS
// at LookbackRateHz.
func NewLookbackBuffer() *LookbackBuffer {
	return &LookbackBuffer{cap: LookbackCapacityMS * LookbackRateHz / 1000}
}

// Push appends decoded samples captured at nativeRateHz, resampling to
// LookbackRateHz by linear interpolation first if the rates differ.
func (l *LookbackBuffer) Push(samples []int16, nativeRateHz int) {
	resampled := samples
	if nativeRateHz != LookbackRateHz && nativeRateHz > 0 {
		resampled = linearResample(samples, nativeRateHz, LookbackRateHz)
	}
	l.samples = append(l.samples, resampled...)
	if over := len(l.samples) - l.cap; over > 0 {
		l.samples = l.samples[over:]
	}
}

// Empty reports whether the buffer holds no history.
func (l *LookbackBuffer) Empty() bool { return len(l.samples) == 0 }

// linearResample converts samples sampled at srcHz to dstHz via linear
// interpolation between adjacent input samples.
func linearResample(samples []int16, srcHz, dstHz int) []int16 {
	if len(samples) == 0 || srcHz == dstHz {
		return samples
	}
	outLen := len(samples) * dstHz / srcHz
	if outLen == 0 {
		return nil
	}
	out := make([]int16, outLen)
	ratio := float64(srcHz) / float64(dstHz)
	for i := range out {
		srcPos := float64(i) * ratio
		idx := int(srcPos)
		frac := srcPos - float64(idx)
		if idx+1 >= len(samples) {
			out[i] = samples[len(samples)-1]
			continue
		}
		a, b := float64(samples[idx]), float64(samples[idx+1])
		out[i] = int16(a + (b-a)*frac)
	}
	return out
}

// ConcealSilence fills n samples with zeros.
func ConcealSilence(n int) []int16 { return make([]int16, n) }

// ConcealRepeat copies the tail of prev (n samples) with a linear
// fade-out over the last MaxFadeLengthMS of the frame, per spec §4.5.
func ConcealRepeat(prev []int16, n int, rateHz int) []int16 {
	out := make([]int16, n)
	if len(prev) == 0 {
		return out
	}
	src := prev
	if len(src) > n {
		src = src[len(src)-n:]
	}
	copy(out, src)
	if len(src) < n {
		// Not enough history to fill the frame; pad with the last sample.
		last := src[len(src)-1]
		for i := len(src); i < n; i++ {
			out[i] = last
		}
	}

	fadeSamples := MaxFadeLengthMS * rateHz / 1000
	if fadeSamples > n {
		fadeSamples = n
	}
	fadeStart := n - fadeSamples
	for i := fadeStart; i < n; i++ {
		gain := 1.0 - float64(i-fadeStart+1)/float64(fadeSamples)
		out[i] = int16(float64(out[i]) * gain)
	}
	return out
}

// ConcealAdvanced implements spec §4.5's ADVANCED mode: find the
// best-correlated AnalysisWindowSize window in the lookback buffer,
// replay it with local-energy-scaled gain, and mix in comfort noise
// scaled by (1-local_energy)*fade. Reports ok=false if lookback is
// empty; Context.Conceal then falls back to ConcealComfortNoise, and no
// codec FEC synthesis is attempted.
func ConcealAdvanced(lookback *LookbackBuffer, n int, comfortLevel int16) (out []int16, ok bool) {
	if lookback.Empty() {
		return nil, false
	}
	window := lookback.bestCorrelatedWindow(n)
	localEnergy := pcmutil.NormalizedEnergy(window)

	out = make([]int16, n)
	gain := 1.0 - localEnergy // psychoacoustic attenuation: louder local energy, less replay gain
	if gain < 0 {
		gain = 0
	}
	for i, s := range window {
		if i >= n {
			break
		}
		fade := float64(i+1) / float64(n)
		replay := float64(s) * gain
		noise := float64(shapedNoise(s, comfortLevel)) * (1 - localEnergy) * fade
		out[i] = int16(replay + noise)
	}
	return out, true
}

// bestCorrelatedWindow finds the AnalysisWindowSize-sample window (or
// the whole history if it is shorter) in the lookback history with the
// maximal dot product against the buffer's most recent window, i.e. the
// most self-similar recent pattern, per spec §4.5, and returns up to n
// samples starting at that window.
func (l *LookbackBuffer) bestCorrelatedWindow(n int) []int16 {
	winSize := AnalysisWindowSize
	if winSize > len(l.samples) {
		winSize = len(l.samples)
	}
	if winSize == 0 {
		return nil
	}
	reference := l.samples[len(l.samples)-winSize:]

	bestScore := math.Inf(-1)
	bestStart := len(l.samples) - winSize
	for start := 0; start+winSize <= len(l.samples); start++ {
		candidate := l.samples[start : start+winSize]
		score := dotProduct(reference, candidate)
		if score > bestScore {
			bestScore = score
			bestStart = start
		}
	}

	end := bestStart + n
	if end > len(l.samples) {
		end = len(l.samples)
	}
	return l.samples[bestStart:end]
}

func dotProduct(a, b []int16) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// ConcealComfortNoise is the PATTERN mode / ADVANCED fallback: per-sample
// uniform noise shaped by the magnitude of the corresponding lookback
// sample, or flat white noise at level if lookback is empty.
func ConcealComfortNoise(lookback *LookbackBuffer, n int, level int16) []int16 {
	out := make([]int16, n)
	if lookback.Empty() {
		for i := range out {
			out[i] = flatNoise(level)
		}
		return out
	}
	hist := lookback.samples
	for i := range out {
		ref := hist[i%len(hist)]
		out[i] = shapedNoise(ref, level)
	}
	return out
}

func shapedNoise(reference int16, level int16) int16 {
	mag := math.Abs(float64(reference))
	scale := mag / math.MaxInt16 * float64(level)
	return int16((rand.Float64()*2 - 1) * scale)
}

func flatNoise(level int16) int16 {
	return int16((rand.Float64()*2 - 1) * float64(level))
}
