package audioengine

// DedupRingSize is the default sequence-history ring capacity (spec §4.5).
const DedupRingSize = 32

// DedupRing is the small ring of recently-seen sequence numbers spec
// §4.5 uses to catch duplicate RTP delivery.
type DedupRing struct {
	seen    map[uint16]struct{}
	order   []uint16
	size    int
}

// NewDedupRing returns a ring with the given capacity (0 uses DedupRingSize).
func NewDedupRing(size int) *DedupRing {
	if size <= 0 {
		size = DedupRingSize
	}
	return &DedupRing{seen: make(map[uint16]struct{}, size), size: size}
}

// CheckAndInsert reports whether seq has already been seen, and records
// it if not. It only answers the membership question for the value it
// is given; Context.ObserveDuplicate relabels a duplicate and records
// the relabeled value with a second call.
func (r *DedupRing) CheckAndInsert(seq uint16) (duplicate bool) {
	_, duplicate = r.seen[seq]
	if duplicate {
		return true
	}
	r.insert(seq)
	return false
}

func (r *DedupRing) insert(seq uint16) {
	if len(r.order) >= r.size {
		oldest := r.order[0]
		r.order = r.order[1:]
		delete(r.seen, oldest)
	}
	r.order = append(r.order, seq)
	r.seen[seq] = struct{}{}
}

// RelabelOnDuplicate implements spec §4.5/§9(i)'s documented
// inaccuracy: a duplicate is relabeled to lastSeq+1 before the caller
// continues processing. Context.ObserveDuplicate records the relabeled
// value in the ring and as the last sequence, so a later genuine arrival
// of that number is itself reported as a duplicate.
func RelabelOnDuplicate(lastSeq uint16) uint16 { return lastSeq + 1 }
