// Package audioengine owns the jitter buffer, play-out scheduling, PLC
// synthesis, adaptive codec control, and the concrete codec-handle
// implementations behind the black-box contract of spec C5/§4.5.
package audioengine

import "errors"

// ErrCodecFailure is returned by an encode/decode call that could not
// produce output; per spec §7 this is non-fatal, the caller skips the
// packet.
var ErrCodecFailure = errors.New("audioengine: codec failure")

// Application mirrors Opus's application hint, carried through even for
// the non-Opus codec handles so callers have one enum regardless of
// backend.
type Application int

const (
	ApplicationVoIP Application = iota
	ApplicationAudio
)

// Control is the mutable control-channel state of spec §4.5's black-box
// codec contract: complexity, target bitrate, inband FEC, DTX, and the
// loss percentage fed back from the analyzer.
type Control struct {
	Complexity        int
	TargetBitrateBPS  int
	InbandFEC         bool
	DTX               bool
	ExpectedLossPct   float64
}

// Codec is the black-box encode/decode/control surface spec §4.5
// describes. Frame size for Encode/Decode is sampleRate/50 (20ms).
type Codec interface {
	// Encode turns one 20ms PCM frame into codec packet bytes.
	Encode(pcm []int16) ([]byte, error)
	// Decode turns codec packet bytes (nil for FEC-assisted synthesis)
	// into one 20ms PCM frame.
	Decode(packet []byte) ([]int16, error)
	// SetControl updates the live control-channel parameters.
	SetControl(c Control)
	// SampleRate reports the codec's native sample rate in Hz.
	SampleRate() int
	// Close releases the underlying codec handle's resources.
	Close() error
}

// frameSamples returns the 20ms frame size for a codec at sampleRate,
// per spec §4.5: "frame = sample_rate / 50".
func frameSamples(sampleRate int) int { return sampleRate / 50 }
