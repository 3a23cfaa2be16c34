package rtpstream

import (
	"time"

	"github.com/pion/rtp"
)

const (
	// ReorderBufferSize bounds the number of held-back packets (spec §4.3).
	ReorderBufferSize = 128
	// MaxReorderWaitMS is how long a held packet waits before being
	// released as "best available" even if not strictly next.
	MaxReorderWaitMS = 40
	// MaxOOOWindow bounds how far behind max_seq a packet can be before
	// it's discarded as stale rather than reordered.
	MaxOOOWindow = 50
)

// heldPacket is one entry in the reorder window: the full RTP packet,
// so a released entry carries everything downstream processing needs
// (timestamp, payload) rather than just its sequence number.
type heldPacket struct {
	pkt     *rtp.Packet
	arrived time.Time
}

// ReorderWindow buffers recently-arrived packets so a small amount of
// network reordering can be resolved before packets are handed
// downstream, per spec §4.3.
type ReorderWindow struct {
	held          map[uint16]heldPacket
	lastProcessed uint16
	haveProcessed bool
}

// NewReorderWindow returns an empty window.
func NewReorderWindow() *ReorderWindow {
	return &ReorderWindow{held: make(map[uint16]heldPacket)}
}

// Push inserts pkt, observed at arrived. Per spec §4.3, packets older
// than max_seq by more than MaxOOOWindow are discarded outright.
func (w *ReorderWindow) Push(pkt *rtp.Packet, arrived time.Time, maxSeq uint16) (discarded bool) {
	seq := pkt.SequenceNumber
	if w.haveProcessed {
		behind := maxSeq - seq // unsigned wraparound distance
		if behind > 0 && behind <= 1<<15 && behind > MaxOOOWindow {
			return true
		}
	}
	if len(w.held) >= ReorderBufferSize {
		w.evictOldest()
	}
	w.held[seq] = heldPacket{pkt: pkt, arrived: arrived}
	return false
}

// Ready returns packets eligible for release at now: either the exact
// successor of the last processed sequence, or (if none is available)
// the longest-waiting held packet once it has waited MaxReorderWaitMS.
func (w *ReorderWindow) Ready(now time.Time) []*rtp.Packet {
	var out []*rtp.Packet
	for {
		next := w.lastProcessed + 1
		if w.haveProcessed {
			if p, ok := w.held[next]; ok {
				out = append(out, p.pkt)
				w.markProcessed(p.pkt.SequenceNumber)
				continue
			}
		} else if len(w.held) > 0 {
			// No baseline yet: release the earliest-arrived packet to seed one.
			seed := w.oldest()
			out = append(out, seed.pkt)
			w.markProcessed(seed.pkt.SequenceNumber)
			continue
		}
		break
	}

	if best, ok := w.bestAvailable(); ok {
		if now.Sub(best.arrived) >= MaxReorderWaitMS*time.Millisecond {
			out = append(out, best.pkt)
			w.markProcessed(best.pkt.SequenceNumber)
		}
	}
	return out
}

func (w *ReorderWindow) markProcessed(seq uint16) {
	delete(w.held, seq)
	w.lastProcessed = seq
	w.haveProcessed = true
}

func (w *ReorderWindow) bestAvailable() (heldPacket, bool) {
	var best heldPacket
	found := false
	for _, p := range w.held {
		if !found || p.arrived.Before(best.arrived) {
			best = p
			found = true
		}
	}
	return best, found
}

func (w *ReorderWindow) oldest() heldPacket {
	best, _ := w.bestAvailable()
	return best
}

func (w *ReorderWindow) evictOldest() {
	if best, ok := w.bestAvailable(); ok {
		delete(w.held, best.pkt.SequenceNumber)
	}
}

// Len reports the number of currently-held packets.
func (w *ReorderWindow) Len() int { return len(w.held) }
