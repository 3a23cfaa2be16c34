package rtpstream

import (
	"errors"

	"vtap/nat64"
)

// MaxStreams is the per-call concurrent-stream ceiling (spec §3/§4.3).
const MaxStreams = 8

// ErrTableFull is returned when a lookup misses and all slots are in use.
var ErrTableFull = errors.New("rtpstream: stream table full")

// Table holds up to MaxStreams concurrent RTP streams for one call,
// keyed by (SSRC, direction, endpoints) with NAT64-aware endpoint
// equality (spec §4.3/§4.4).
type Table struct {
	slots [MaxStreams]*Stream
}

// NewTable returns an empty stream table.
func NewTable() *Table { return &Table{} }

// Lookup finds the stream matching id, creating one for payload type pt
// if none exists and a slot is free. The second return reports whether
// a new stream was created.
func (t *Table) Lookup(id Identity, pt uint8) (*Stream, bool, error) {
	for _, s := range t.slots {
		if s == nil {
			continue
		}
		if identityMatches(s.Identity, id) {
			s.adoptNAT64(id)
			return s, false, nil
		}
	}
	for i, s := range t.slots {
		if s == nil {
			ns := NewStream(id, pt)
			t.slots[i] = ns
			return ns, true, nil
		}
	}
	return nil, false, ErrTableFull
}

// Streams returns the live (non-nil) streams in slot order.
func (t *Table) Streams() []*Stream {
	var out []*Stream
	for _, s := range t.slots {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

// identityMatches applies spec §4.3's stream key equality: SSRC and
// direction must match exactly; endpoint equality is modulo NAT64
// translation via nat64.Equal.
func identityMatches(have, want Identity) bool {
	if have.SSRC != want.SSRC || have.Direction != want.Direction {
		return false
	}
	if have.SrcPort != want.SrcPort || have.DstPort != want.DstPort {
		return false
	}
	return nat64.Equal(have.SrcAddr, want.SrcAddr) && nat64.Equal(have.DstAddr, want.DstAddr)
}

// adoptNAT64 stores a NAT64-translated endpoint form in the dedicated
// fields without replacing the canonical address, per spec §4.3:
// "the translated address is stored in the dedicated NAT64 fields
// (does not replace the canonical fields)."
func (s *Stream) adoptNAT64(id Identity) {
	if s.NAT64SrcAddr == "" && nat64.IsNAT64(id.SrcAddr) && !nat64.IsNAT64(s.SrcAddr) {
		s.NAT64SrcAddr = id.SrcAddr
	}
	if s.NAT64DstAddr == "" && nat64.IsNAT64(id.DstAddr) && !nat64.IsNAT64(s.DstAddr) {
		s.NAT64DstAddr = id.DstAddr
	}
}
