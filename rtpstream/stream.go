package rtpstream

import "time"

const (
	// MinSequential is the RFC 3550-style probation counter seed: a
	// stream must see this many strictly consecutive sequence numbers
	// before it is trusted (spec §4.3).
	MinSequential = 2
	// MaxDropout bounds a forward sequence jump still treated as
	// in-order-with-gap.
	MaxDropout = 3000
	// MaxMisorder bounds how far behind max_seq an arrival can be and
	// still count as reorder rather than stale duplicate.
	MaxMisorder = 100
	// JitterAlphaDenom is RFC 3550's smoothing constant (α = 1/16).
	JitterAlphaDenom = 16
)

// Direction labels which way a stream's packets are flowing relative to
// the NAT64 boundary (spec §4.1/§4.4).
type Direction int

const (
	DirectionUnknown Direction = iota
	DirectionIncoming
	DirectionOutgoing
)

// Identity is the lookup key for a stream: spec §4.3 keys on
// (SSRC, direction, src_endpoint, dst_endpoint), with endpoint equality
// taken modulo NAT64 translation.
type Identity struct {
	SSRC      uint32
	Direction Direction
	SrcAddr   string
	SrcPort   uint16
	DstAddr   string
	DstPort   uint16
}

// Stream is the per-SSRC record of spec §3's "RTP stream" entity:
// identity, sequence state, timing, and quality aggregates.
type Stream struct {
	Identity
	PayloadType uint8
	ClockRate   int // set once on first packet, never changes

	NAT64SrcAddr string // populated only once a NAT64-translated form is observed
	NAT64DstAddr string

	// Sequence state.
	baseSeq     uint16
	maxSeq      uint16
	cycles      uint32
	Received    uint64
	probation   int
	initialized bool

	// Timing.
	lastTimestamp  uint32
	lastArrival    time.Time
	haveLast       bool
	transit        float64
	haveTransit    bool
	Jitter         float64
	JitterSpikes   uint64
	CorrectedTS    uint64

	// Quality aggregates.
	Lost             int64
	OutOfOrder       uint64
	Recovered        uint64
	ConcealedMS      float64
	ConsecutiveLoss  uint64
	InsertedSilenceMS float64
	lastProcessedSeq uint16
	haveProcessed    bool

	frameSizeSum   uint64
	frameSizeCount uint64
}

// NewStream allocates a stream record for identity id carrying payload
// type pt. Clock rate and probation are seeded per spec §4.3.
func NewStream(id Identity, pt uint8) *Stream {
	return &Stream{
		Identity:    id,
		PayloadType: pt,
		ClockRate:   ClockRateForPT(pt),
		probation:   MinSequential,
	}
}

// SeqResult classifies one packet's effect on the sequence state
// machine (spec §4.3).
type SeqResult int

const (
	SeqInOrder SeqResult = iota
	SeqReordered
	SeqDuplicateOrLate
	SeqOnProbation
)

// ObserveSequence runs seq through the RFC-3550-derived state machine
// of spec §4.3 and returns how it was classified. Gap (in packets) is
// non-zero only for SeqInOrder results that skipped sequence numbers,
// for callers driving concealment selection.
//
// The stream's creating packet seeds base_seq/max_seq and leaves
// probation untouched (it was just set to MinSequential by the stream
// table); probation only starts counting down from the *next* packet,
// matching the RFC 3550 appendix A.1 reference algorithm.
func (s *Stream) ObserveSequence(seq uint16) (result SeqResult, gap int) {
	if !s.initialized {
		s.baseSeq = seq
		s.maxSeq = seq
		s.cycles = 0
		s.Received = 0
		s.lastProcessedSeq = seq
		s.haveProcessed = true
		s.initialized = true
		return SeqOnProbation, 0
	}

	if s.probation > 0 {
		if seq == s.maxSeq+1 {
			s.probation--
			s.maxSeq = seq
			if s.probation == 0 {
				s.baseSeq = seq
				s.Received = 1
				s.lastProcessedSeq = seq
				s.updateLost()
				return SeqInOrder, 0
			}
			return SeqOnProbation, 0
		}
		s.probation = MinSequential - 1
		s.maxSeq = seq
		return SeqOnProbation, 0
	}

	udelta := seq - s.maxSeq // unsigned 16-bit wraparound subtraction

	switch {
	case udelta > 0 && udelta < MaxDropout:
		if seq < s.maxSeq {
			s.cycles += 1 << 16
		}
		gap = int(udelta) - 1
		if gap < 0 {
			gap = 0
		}
		s.maxSeq = seq
		s.lastProcessedSeq = seq
		s.Received++
		s.updateLost()
		return SeqInOrder, gap

	case udelta <= uint16(1<<16-MaxMisorder):
		s.OutOfOrder++
		s.Received++
		s.updateLost()
		return SeqReordered, 0

	default:
		s.OutOfOrder++
		s.Received++
		s.updateLost()
		return SeqDuplicateOrLate, 0
	}
}

// MaxSeq exposes the current high-water sequence number, for callers
// (the reorder window) deciding whether a newly-arrived packet is too
// stale to hold.
func (s *Stream) MaxSeq() uint16 { return s.maxSeq }

// updateLost recomputes the expected/lost pair per spec §4.3:
// expected = cycles + max_seq - base_seq + 1; lost = expected - received.
func (s *Stream) updateLost() {
	expected := int64(s.cycles) + int64(s.maxSeq) - int64(s.baseSeq) + 1
	s.Lost = expected - int64(s.Received)
	if s.Lost < 0 {
		s.Lost = 0
	}
}

// ExpectedReceived mirrors spec §8's testable sequence-accounting
// invariant: expected = (cycles + max_seq) - base_seq + 1.
func (s *Stream) ExpectedReceived() int64 {
	return int64(s.cycles) + int64(s.maxSeq) - int64(s.baseSeq) + 1
}

// Cycles exposes the wraparound counter for tests asserting spec §8's
// wrap-safety property.
func (s *Stream) Cycles() uint32 { return s.cycles }

// ObserveJitter updates the RFC 3550 smoothed jitter estimate given an
// RTP timestamp and the local arrival instant, per spec §4.3.
func (s *Stream) ObserveJitter(rtpTimestamp uint32, arrival time.Time) {
	if s.ClockRate <= 0 {
		return
	}
	if s.haveLast && rtpTimestamp == s.lastTimestamp {
		return
	}
	arrivalTicks := float64(arrival.UnixNano()) / 1e9 * float64(s.ClockRate)
	transit := arrivalTicks - float64(rtpTimestamp)

	if s.haveTransit {
		d := transit - s.transit
		if d < 0 {
			d = -d
		}
		s.Jitter += (d - s.Jitter) / JitterAlphaDenom
		if d > float64(s.ClockRate)/100 {
			s.JitterSpikes++
		}
	}
	s.transit = transit
	s.haveTransit = true
	s.lastTimestamp = rtpTimestamp
	s.lastArrival = arrival
	s.haveLast = true
}

// ExpectedTimestamp and PlausibleTimestamp implement spec §4.3's
// timestamp-plausibility check. elapsedMS is the wall-clock gap since
// the last accepted packet.
func (s *Stream) ExpectedTimestamp(elapsedMS float64) uint32 {
	return s.lastTimestamp + uint32(float64(s.ClockRate)/1000*elapsedMS)
}

// CheckTimestamp reports whether candidate is plausible given the
// elapsed wall-clock time, and the timestamp to actually use (corrected
// if implausible). The corrected-timestamp counter is bumped on the
// correction path.
func (s *Stream) CheckTimestamp(candidate uint32, elapsedMS float64) (accepted uint32) {
	if !s.haveLast {
		return candidate
	}
	expected := s.ExpectedTimestamp(elapsedMS)
	tolerance := float64(s.ClockRate) / 1000 * 10

	deviation := int64(candidate) - int64(expected)
	if deviation < 0 {
		deviation = -deviation
	}
	if float64(deviation) <= tolerance {
		return candidate
	}

	quantum := int64(s.ClockRate) / 50
	if quantum > 0 {
		mod := deviation % quantum
		if float64(mod) <= tolerance {
			return candidate
		}
	}

	s.CorrectedTS++
	return expected
}

// RecordFrameSize folds n bytes into the running mean-frame-size
// aggregate (spec §3 quality aggregates).
func (s *Stream) RecordFrameSize(n int) {
	s.frameSizeSum += uint64(n)
	s.frameSizeCount++
}

// MeanFrameSize returns the running mean, or 0 if no frames observed.
func (s *Stream) MeanFrameSize() float64 {
	if s.frameSizeCount == 0 {
		return 0
	}
	return float64(s.frameSizeSum) / float64(s.frameSizeCount)
}

// RecordConcealment attributes gap*samples_per_frame/clock_rate seconds
// of concealed audio, per spec §4.3's gap-handling formula, and updates
// the consecutive-loss aggregate.
func (s *Stream) RecordConcealment(gap int) {
	if gap <= 0 {
		return
	}
	samplesPerFrame := SamplesPerFrameForRate(s.ClockRate)
	ms := float64(gap) * float64(samplesPerFrame) * 1000 / float64(s.ClockRate)
	s.ConcealedMS += ms
	s.ConsecutiveLoss += uint64(gap)
}

// ResetConsecutiveLoss clears the consecutive-loss streak once a packet
// arrives with no gap.
func (s *Stream) ResetConsecutiveLoss() { s.ConsecutiveLoss = 0 }
