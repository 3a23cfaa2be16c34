package audioengine

import (
	"fmt"

	"github.com/gotranspile/g722"
)

// G722Codec wraps gotranspile/g722 for PT=9 wire identification. The
// codec handle operates in the 16kHz sample domain, and
// rtpstream.ClockRateForPT reports 16kHz for PT=9 as well.
type G722Codec struct {
	enc *g722.Encoder
	dec *g722.Decoder
}

// NewG722Codec returns a handle at the standard 64kbps G.722 rate.
func NewG722Codec() *G722Codec {
	return &G722Codec{
		enc: g722.NewEncoder(g722.Rate64000),
		dec: g722.NewDecoder(g722.Rate64000),
	}
}

func (c *G722Codec) SampleRate() int { return 16000 }

func (c *G722Codec) SetControl(Control) {} // constant-bitrate codec

func (c *G722Codec) Encode(pcm []int16) ([]byte, error) {
	if len(pcm) == 0 {
		return nil, fmt.Errorf("%w: empty pcm frame", ErrCodecFailure)
	}
	return c.enc.Encode(pcm), nil
}

func (c *G722Codec) Decode(packet []byte) ([]int16, error) {
	if len(packet) == 0 {
		return make([]int16, frameSamples(c.SampleRate())), nil
	}
	return c.dec.Decode(packet), nil
}

func (c *G722Codec) Close() error { return nil }
