package pcmutil

import "math"

// energyFloor keeps EnergyDB finite for all-zero (silent) input.
const energyFloor = 1e-10

// EnergyDB computes 10*log10(mean(x_i^2) + eps) on PCM16 samples
// normalized to [-1, 1], per the VAD/PLC shaping energy definition.
func EnergyDB(samples []int16) float64 {
	if len(samples) == 0 {
		return -100
	}
	var sum float64
	for _, s := range samples {
		n := float64(s) / 32768.0
		sum += n * n
	}
	mean := sum / float64(len(samples))
	return 10 * math.Log10(mean+energyFloor)
}

// NormalizedEnergy returns mean(x_i^2) on PCM16 samples normalized to
// [-1, 1], the linear-domain counterpart of EnergyDB used for gain
// shaping in the PLC ADVANCED mode.
func NormalizedEnergy(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		n := float64(s) / 32768.0
		sum += n * n
	}
	return sum / float64(len(samples))
}
