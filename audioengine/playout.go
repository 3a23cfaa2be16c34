package audioengine

const (
	// PlayoutRaiseStepMS / PlayoutLowerStepMS implement spec §4.5's
	// asymmetric adjustment: grow quickly under pressure, shrink slowly.
	PlayoutRaiseStepMS = 2.0
	PlayoutLowerStepMS = 1.0
	// PLCRecentPenaltyMS is added to the target when PLC fired recently.
	PLCRecentPenaltyMS = 5.0
)

// PlayoutController tracks the adaptive play-out delay of spec §4.5.
type PlayoutController struct {
	BaseMS        float64
	JitterFactor  float64
	MinDelayMS    float64
	MaxDelayMS    float64
	current       float64
	plcRecent     bool
}

// NewPlayoutController seeds the controller at baseMS, clamped within
// [minDelayMS, maxDelayMS].
func NewPlayoutController(baseMS, jitterFactor, minDelayMS, maxDelayMS float64) *PlayoutController {
	p := &PlayoutController{
		BaseMS:       baseMS,
		JitterFactor: jitterFactor,
		MinDelayMS:   minDelayMS,
		MaxDelayMS:   maxDelayMS,
	}
	p.current = clamp(baseMS, minDelayMS, maxDelayMS)
	return p
}

// NotePLCUsed flags that concealment fired on the most recent frame,
// contributing the +5ms loss penalty on the next Update.
func (p *PlayoutController) NotePLCUsed() { p.plcRecent = true }

// Current returns the controller's current target delay in ms.
func (p *PlayoutController) Current() float64 { return p.current }

// Update recomputes the target delay from jitterMS and steps current
// toward it asymmetrically: +2ms/update when rising, -1ms/update when
// falling (spec §4.5).
func (p *PlayoutController) Update(jitterMS float64) float64 {
	target := p.BaseMS + jitterMS*p.JitterFactor
	if p.plcRecent {
		target += PLCRecentPenaltyMS
	}
	target = clamp(target, p.MinDelayMS, p.MaxDelayMS)
	p.plcRecent = false

	switch {
	case target > p.current:
		p.current = clamp(p.current+PlayoutRaiseStepMS, p.MinDelayMS, p.MaxDelayMS)
		if p.current > target {
			p.current = target
		}
	case target < p.current:
		p.current = clamp(p.current-PlayoutLowerStepMS, p.MinDelayMS, p.MaxDelayMS)
		if p.current < target {
			p.current = target
		}
	}
	return p.current
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
