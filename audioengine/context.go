package audioengine

import "time"

// Context is the per-stream "audio context" entity of spec §3: jitter
// buffer, codec handle, PLC lookback, dedup ring, and play-out control.
// It holds no denoise/echo/gain profiles.
type Context struct {
	Codec    Codec
	Jitter   *JitterBuffer
	Playout  *PlayoutController
	Lookback *LookbackBuffer
	Dedup    *DedupRing
	Adaptive *AdaptiveEncoder

	PLCMode       Mode
	ComfortLevel  int16
	lastSeq       uint16
	haveLastSeq   bool
}

// NewContext wires a default audio context around codec, per spec
// §4.3's "attach an audio context with default configuration".
func NewContext(codec Codec, maxDelayMS int64, baseDelayMS, jitterFactor, minDelayMS float64) *Context {
	return &Context{
		Codec:        codec,
		Jitter:       NewJitterBuffer(maxDelayMS),
		Playout:      NewPlayoutController(baseDelayMS, jitterFactor, minDelayMS, float64(maxDelayMS)),
		Lookback:     NewLookbackBuffer(),
		Dedup:        NewDedupRing(DedupRingSize),
		Adaptive:     NewAdaptiveEncoder(codec, 32000),
		PLCMode:      ModeAdvanced,
		ComfortLevel: 50,
	}
}

// ObserveDuplicate runs spec §4.5's dedup-then-relabel sequence: check
// whether seq has been seen, and if so return the relabeled value the
// caller should continue processing with instead. The relabeled value is
// recorded in the dedup ring and becomes the last sequence.
func (c *Context) ObserveDuplicate(seq uint16) (duplicate bool, useSeq uint16) {
	if c.Dedup.CheckAndInsert(seq) {
		relabeled := RelabelOnDuplicate(c.lastSeq)
		c.Dedup.CheckAndInsert(relabeled)
		c.lastSeq = relabeled
		return true, relabeled
	}
	c.lastSeq = seq
	c.haveLastSeq = true
	return false, seq
}

// Conceal runs the configured PLC mode for a gap of n missing samples,
// falling back through the priority chain spec §4.5 implies when a mode
// cannot produce output (ADVANCED with empty lookback).
func (c *Context) Conceal(n int, prevSamples []int16, rateHz int) []int16 {
	switch c.PLCMode {
	case ModeSilence:
		return ConcealSilence(n)
	case ModeRepeat:
		return ConcealRepeat(prevSamples, n, rateHz)
	case ModePattern:
		return ConcealComfortNoise(c.Lookback, n, c.ComfortLevel)
	default: // ModeAdvanced
		if out, ok := ConcealAdvanced(c.Lookback, n, c.ComfortLevel); ok {
			return out
		}
		return ConcealComfortNoise(c.Lookback, n, c.ComfortLevel)
	}
}

// PushDecoded records freshly decoded audio into the lookback ring for
// future concealment.
func (c *Context) PushDecoded(samples []int16, rateHz int) {
	c.Lookback.Push(samples, rateHz)
}

// UpdatePlayout recomputes the adaptive play-out delay from the
// stream's current smoothed jitter, in milliseconds.
func (c *Context) UpdatePlayout(jitterMS float64) float64 {
	return c.Playout.Update(jitterMS)
}

// ExpectedPlayFor computes the insertion time for a packet arriving now,
// per spec §4.5.
func (c *Context) ExpectedPlayFor(arrival time.Time, jitterMS float64) time.Time {
	return ExpectedPlayTime(arrival, c.Playout.Current(), jitterMS, c.Playout.JitterFactor, int64(c.Playout.MaxDelayMS))
}
