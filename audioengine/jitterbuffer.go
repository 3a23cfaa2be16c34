package audioengine

import (
	"sort"
	"time"
)

// JitterBufferCapacity is the fixed ring capacity (spec §3/§4.5).
const JitterBufferCapacity = 1000

// Packet is one audio packet held in the jitter buffer, per spec §3's
// "Audio packet in the jitter buffer" entity. The buffer owns Payload
// until the packet is handed out or dropped.
type Packet struct {
	Payload         []byte
	Size            int
	Timestamp       uint32
	Sequence        uint16
	OriginalSeq     uint16
	Arrival         time.Time
	ExpectedPlay    time.Time
	EnergyDB        float64
	Speech          bool
	IsFEC           bool
}

// DequeueSignal reports what Dequeue should do with the buffer head.
type DequeueSignal int

const (
	DequeueNone DequeueSignal = iota
	DequeueReady
	DequeueTooEarly // play silence
	DequeueTooLate  // conceal and drop
)

// JitterBuffer is the fixed-capacity ring of spec §4.5, ordered by
// expected_play_time ascending, with arrival order preserved on ties.
type JitterBuffer struct {
	packets   []*Packet
	MaxDelayMS int64
}

// NewJitterBuffer returns an empty buffer with the given max delay
// (spec §4.5's max_delay_ms clamp and "too late" threshold).
func NewJitterBuffer(maxDelayMS int64) *JitterBuffer {
	return &JitterBuffer{MaxDelayMS: maxDelayMS}
}

// Insert adds pkt in expected_play_time order. Returns false (and does
// not insert) if the buffer is at capacity; the buffered packets keep
// their order.
func (b *JitterBuffer) Insert(pkt *Packet) bool {
	if len(b.packets) >= JitterBufferCapacity {
		return false
	}
	idx := sort.Search(len(b.packets), func(i int) bool {
		return b.packets[i].ExpectedPlay.After(pkt.ExpectedPlay)
	})
	b.packets = append(b.packets, nil)
	copy(b.packets[idx+1:], b.packets[idx:])
	b.packets[idx] = pkt
	return true
}

// Dequeue inspects the head of the buffer at now and reports what to do
// with it, per spec §4.5's three-way dequeue contract. DequeueReady and
// DequeueTooLate both remove the head; DequeueTooEarly leaves it in
// place for the next call.
func (b *JitterBuffer) Dequeue(now time.Time) (*Packet, DequeueSignal) {
	if len(b.packets) == 0 {
		return nil, DequeueNone
	}
	head := b.packets[0]

	if !now.Before(head.ExpectedPlay) {
		b.packets = b.packets[1:]
		return head, DequeueReady
	}

	ageMS := now.Sub(timestampToWallApprox(head)).Milliseconds()
	if ageMS > b.MaxDelayMS {
		b.packets = b.packets[1:]
		return head, DequeueTooLate
	}
	return nil, DequeueTooEarly
}

// timestampToWallApprox anchors the "current_time - timestamp_ms"
// staleness check in spec §4.5 off the packet's arrival instant, since
// that is the buffer's only wall-clock reference for the RTP timestamp.
func timestampToWallApprox(p *Packet) time.Time { return p.Arrival }

// Len reports the number of packets currently buffered.
func (b *JitterBuffer) Len() int { return len(b.packets) }

// ExpectedPlayTime computes spec §4.5's insertion formula:
// arrival + target_delay + jitter*jitter_factor, clamped by max_delay_ms.
func ExpectedPlayTime(arrival time.Time, targetDelayMS, jitterMS, jitterFactor float64, maxDelayMS int64) time.Time {
	delayMS := targetDelayMS + jitterMS*jitterFactor
	if delayMS > float64(maxDelayMS) {
		delayMS = float64(maxDelayMS)
	}
	if delayMS < 0 {
		delayMS = 0
	}
	return arrival.Add(time.Duration(delayMS * float64(time.Millisecond)))
}
