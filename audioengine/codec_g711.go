package audioengine

import (
	"fmt"

	"github.com/zaf/g711"
)

// G711Codec wraps zaf/g711 for PCMU (PT=0, mu-law) and PCMA (PT=8,
// A-law) wire identification, per spec §4.5/glossary. These are
// constant-bitrate codecs: the adaptive-bitrate control channel accepts
// SetControl calls but has nothing to adjust.
type G711Codec struct {
	alaw bool
}

// NewG711Codec returns a PCMU handle, or a PCMA handle if alaw is true.
func NewG711Codec(alaw bool) *G711Codec {
	return &G711Codec{alaw: alaw}
}

func (c *G711Codec) SampleRate() int { return 8000 }

func (c *G711Codec) SetControl(Control) {} // no adjustable parameters

func (c *G711Codec) Encode(pcm []int16) ([]byte, error) {
	if len(pcm) == 0 {
		return nil, fmt.Errorf("%w: empty pcm frame", ErrCodecFailure)
	}
	if c.alaw {
		return g711.EncodeAlaw(pcm), nil
	}
	return g711.EncodeUlaw(pcm), nil
}

func (c *G711Codec) Decode(packet []byte) ([]int16, error) {
	if len(packet) == 0 {
		return make([]int16, frameSamples(c.SampleRate())), nil
	}
	if c.alaw {
		return g711.DecodeAlaw(packet), nil
	}
	return g711.DecodeUlaw(packet), nil
}

func (c *G711Codec) Close() error { return nil }
