package audioengine

import "vtap/pcmutil"

const (
	minBitrateBPS = 6000
	maxBitrateBPS = 64000
	bitrateStepBPS = 1000

	highLossThreshold = 0.10
	lowLossThreshold  = 0.01

	// VADThresholdDB is the default voice-activity energy floor (spec §4.5).
	VADThresholdDB = -30.0
)

// AdaptiveEncoder drives a Codec's control channel per spec §4.5's
// "Adaptive bitrate" rule: after each encode, shrink the bitrate under
// sustained loss and grow it back once loss subsides, and gate DTX off
// a simple energy-based VAD decision.
type AdaptiveEncoder struct {
	codec   Codec
	bitrate int
	ctrl    Control
}

// NewAdaptiveEncoder wraps codec with an initial target bitrate.
func NewAdaptiveEncoder(codec Codec, initialBitrateBPS int) *AdaptiveEncoder {
	a := &AdaptiveEncoder{codec: codec, bitrate: clampBitrate(initialBitrateBPS)}
	a.ctrl = Control{TargetBitrateBPS: a.bitrate, Complexity: 5}
	codec.SetControl(a.ctrl)
	return a
}

// Bitrate returns the current target bitrate in bits per second.
func (a *AdaptiveEncoder) Bitrate() int { return a.bitrate }

// EncodeFrame applies VAD-driven DTX, then encodes pcm, then adjusts
// the bitrate for the next frame based on smoothedLossRate (a fraction
// in [0,1] supplied by the caller from the stream's recent loss stats).
func (a *AdaptiveEncoder) EncodeFrame(pcm []int16, smoothedLossRate float64) ([]byte, error) {
	energy := pcmutil.EnergyDB(pcm)
	a.ctrl.DTX = energy <= VADThresholdDB
	a.codec.SetControl(a.ctrl)

	out, err := a.codec.Encode(pcm)

	switch {
	case smoothedLossRate > highLossThreshold:
		a.bitrate = clampBitrate(a.bitrate - bitrateStepBPS)
	case smoothedLossRate < lowLossThreshold:
		a.bitrate = clampBitrate(a.bitrate + bitrateStepBPS)
	}
	a.ctrl.TargetBitrateBPS = a.bitrate

	return out, err
}

func clampBitrate(bps int) int {
	if bps < minBitrateBPS {
		return minBitrateBPS
	}
	if bps > maxBitrateBPS {
		return maxBitrateBPS
	}
	return bps
}
