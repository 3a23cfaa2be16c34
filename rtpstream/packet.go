// Package rtpstream maintains the per-SSRC RTP stream table: sequence
// and timestamp bookkeeping with cycle counting, RFC 3550 jitter
// estimation, a bounded reorder window, and XOR-based FEC recovery
// (spec C4/§4.3).
package rtpstream

import (
	"errors"

	"github.com/pion/rtp"
)

// MinPayloadBytes is the minimum candidate-packet length before any
// payload-type-specific check (spec §4.3).
const MinPayloadBytes = 13

var (
	ErrTooShort        = errors.New("rtpstream: payload shorter than minimum RTP header")
	ErrBadVersion      = errors.New("rtpstream: RTP version > 2")
	ErrBadPayloadType  = errors.New("rtpstream: payload type outside [0,34] union [96,127]")
	ErrMalformedHeader = errors.New("rtpstream: padding/extension/CSRC count doesn't fit payload")
	ErrShortCBRPayload = errors.New("rtpstream: PCMU/PCMA payload shorter than 160 bytes")
)

// ValidatePayloadType reports whether pt is in the RTP audio payload
// type ranges this analyzer accepts: static [0,34] or dynamic [96,127].
func ValidatePayloadType(pt uint8) bool {
	return pt <= 34 || (pt >= 96 && pt <= 127)
}

// ParseCandidate validates and unmarshals a candidate RTP packet per
// spec §4.3: length floor, version, payload type range, header-field
// consistency, and the PCMU/PCMA 160-byte payload floor.
func ParseCandidate(payload []byte) (*rtp.Packet, error) {
	if len(payload) < MinPayloadBytes {
		return nil, ErrTooShort
	}
	version := payload[0] >> 6
	if version > 2 {
		return nil, ErrBadVersion
	}

	pkt := &rtp.Packet{}
	if err := pkt.Unmarshal(payload); err != nil {
		return nil, ErrMalformedHeader
	}
	if !ValidatePayloadType(pkt.PayloadType) {
		return nil, ErrBadPayloadType
	}
	if (pkt.PayloadType == 0 || pkt.PayloadType == 8) && len(payload) < 160 {
		return nil, ErrShortCBRPayload
	}
	return pkt, nil
}

// ClockRateForPT returns the RTP clock rate in Hz implied by a static
// payload type, per spec §4.3: 8 kHz for PCMU/PCMA, 16 kHz for G722,
// 8 kHz default for anything else, including dynamic types; the rate
// in an SDP rtpmap is not consulted.
func ClockRateForPT(pt uint8) int {
	switch pt {
	case 0, 8: // PCMU, PCMA
		return 8000
	case 9: // G722
		return 16000
	default:
		return 8000
	}
}

// SamplesPerFrameForRate returns the PT-specific samples-per-frame used
// for concealment-duration accounting in spec §4.3: 160 at 8 kHz, 320 at
// 16 kHz, else clockRate/50 (a 20ms frame).
func SamplesPerFrameForRate(clockRate int) int {
	switch clockRate {
	case 8000:
		return 160
	case 16000:
		return 320
	default:
		return clockRate / 50
	}
}
