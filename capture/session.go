package capture

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/pion/rtp"

	"vtap/audioengine"
	"vtap/dissect"
	"vtap/rtpstream"
	"vtap/sipdialog"
)

// CodecFactory builds a codec handle for a stream's payload type, per
// spec §4.5's "attach an audio context with default configuration".
type CodecFactory func(payloadType uint8) audioengine.Codec

// Session is the single process-wide call session spec §5 describes.
// It may be constructed per-call to make the core multi-instance; the
// CLI entry point only ever holds one.
type Session struct {
	cfg    Config
	logger *slog.Logger

	Dialog  *sipdialog.Dialog
	Streams *rtpstream.Table

	contexts    map[uint32]*audioengine.Context
	reorders    map[uint32]*rtpstream.ReorderWindow
	fecTrackers map[uint32]*rtpstream.FECTracker
	newCodec    CodecFactory

	failures *dissect.FailureTracker

	writer *PcapWriter

	startTime      time.Time
	lastRTPArrival time.Time
	haveRTPSeen    bool

	stopping atomic.Bool
}

// NewSession wires a session around cfg, writing captured frames to
// writer (which may be nil for tests that don't exercise pcap output).
func NewSession(cfg Config, logger *slog.Logger, writer *PcapWriter, newCodec CodecFactory) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	if newCodec == nil {
		newCodec = DefaultCodecFactory
	}
	return &Session{
		cfg:         cfg,
		logger:      logger,
		Dialog:      sipdialog.NewDialog(),
		Streams:     rtpstream.NewTable(),
		contexts:    make(map[uint32]*audioengine.Context),
		reorders:    make(map[uint32]*rtpstream.ReorderWindow),
		fecTrackers: make(map[uint32]*rtpstream.FECTracker),
		newCodec:    newCodec,
		failures:    &dissect.FailureTracker{},
		writer:      writer,
		startTime:   time.Now(),
	}
}

// DefaultCodecFactory builds the concrete codec handle for a static
// payload type, falling back to the Opus-shaped adaptive handle for
// dynamic types (spec §4.3's "set clock rate from PT" table and the
// codec black-box contract of §4.5).
func DefaultCodecFactory(pt uint8) audioengine.Codec {
	switch pt {
	case 0:
		return audioengine.NewG711Codec(false)
	case 8:
		return audioengine.NewG711Codec(true)
	case 9:
		return audioengine.NewG722Codec()
	default:
		return audioengine.NewOpusCodec(48000, 1)
	}
}

// OnPacket is the capture callback shape of spec §6:
// on_packet(arrival_time, frame_bytes). It dissects the frame, routes
// UDP payloads to the SIP parser or RTP analyzer by port, and persists
// the raw frame to the pcap writer if one is attached.
func (s *Session) OnPacket(arrival time.Time, frame []byte) {
	if s.writer != nil {
		if err := s.writer.WritePacket(arrival, frame); err != nil {
			s.logger.Error("capture: pcap write failed, stopping", "error", err)
			s.stopping.Store(true)
			return
		}
	}

	view, err := dissect.Dissect(frame)
	if err != nil {
		tripped := s.failures.Observe(err)
		s.logger.Debug("dissect: dropped frame", "error", err)
		if tripped {
			s.logger.Error("dissect: 10 consecutive failures of the same class, stopping")
			s.stopping.Store(true)
		}
		return
	}
	s.failures.Observe(nil)

	if int(view.DstPort) == s.cfg.SignalingPort || int(view.SrcPort) == s.cfg.SignalingPort {
		s.handleSIP(view, arrival)
		return
	}
	s.handleRTP(view, arrival)
}

func (s *Session) handleSIP(view *dissect.View, arrival time.Time) {
	msg, err := sipdialog.ParseMessage(string(view.Payload))
	if err != nil {
		s.logger.Debug("sip: malformed message dropped", "error", err)
		return
	}
	s.Dialog.Observe(msg, arrival, s.logger.With("subsystem", "SIP"))
}

func (s *Session) handleRTP(view *dissect.View, arrival time.Time) {
	pkt, err := rtpstream.ParseCandidate(view.Payload)
	if err != nil {
		s.logger.Debug("rtp: invalid candidate dropped", "error", err)
		return
	}

	id := rtpstream.Identity{
		SSRC:      pkt.SSRC,
		Direction: rtpstream.Direction(view.Direction),
		SrcAddr:   view.SrcAddr,
		SrcPort:   view.SrcPort,
		DstAddr:   view.DstAddr,
		DstPort:   view.DstPort,
	}

	stream, created, err := s.Streams.Lookup(id, pkt.PayloadType)
	if err != nil {
		s.logger.Warn("rtp: stream table full, dropping packet", "ssrc", id.SSRC)
		return
	}
	if created {
		s.contexts[id.SSRC] = audioengine.NewContext(s.newCodec(pkt.PayloadType),
			int64(s.cfg.JitterMaxDelayMS), s.cfg.JitterTargetDelayMS, s.cfg.JitterFactor, s.cfg.JitterMinDelayMS)
		s.reorders[id.SSRC] = rtpstream.NewReorderWindow()
		s.fecTrackers[id.SSRC] = rtpstream.NewFECTracker()
	}
	actx := s.contexts[id.SSRC]
	window := s.reorders[id.SSRC]
	tracker := s.fecTrackers[id.SSRC]

	s.lastRTPArrival = arrival
	s.haveRTPSeen = true

	if dup, _ := actx.ObserveDuplicate(pkt.SequenceNumber); dup {
		stream.OutOfOrder++
		return
	}

	// The jitter buffer schedules every packet for play-out independently
	// of the reorder/stats pipeline below, mirroring the ground truth's
	// two decoupled subsystems (an unconditional insert into the audio
	// quality context's buffer, versus a separately-gated sequence/loss
	// accounting path).
	jitterMS := stream.Jitter / float64(stream.ClockRate) * 1000
	s.enqueueForPlayout(stream, actx, pkt, arrival, actx.ExpectedPlayFor(arrival, jitterMS))

	if window.Push(pkt, arrival, stream.MaxSeq()) {
		s.logger.Debug("rtp: stale packet discarded by reorder window", "seq", pkt.SequenceNumber)
	}
	for _, ready := range window.Ready(arrival) {
		s.processSequenced(stream, actx, tracker, ready, arrival)
	}

	s.drainJitterBuffer(stream, actx, arrival)
}

// processSequenced runs one reorder-released packet through the
// RFC 3550 sequence/jitter state machine and, on a detected gap,
// attempts FEC recovery before falling back to PLC, per spec §4.3's
// "(1) attempt FEC recovery, (2) conceal" priority order.
func (s *Session) processSequenced(stream *rtpstream.Stream, actx *audioengine.Context, tracker *rtpstream.FECTracker, pkt *rtp.Packet, arrival time.Time) {
	result, gap := stream.ObserveSequence(pkt.SequenceNumber)
	stream.ObserveJitter(pkt.Timestamp, arrival)
	stream.RecordFrameSize(len(pkt.Payload))
	jitterMS := stream.Jitter / float64(stream.ClockRate) * 1000
	actx.UpdatePlayout(jitterMS)

	// Recovery is checked against the group as it stood before this
	// packet joins it: a missing member can only be reconstructed once
	// every *other* slot in its group has already arrived, and folding
	// the current packet in first would let it mask its own gap.
	switch result {
	case rtpstream.SeqInOrder:
		if gap > 0 {
			s.recoverOrConceal(stream, actx, tracker, pkt.SequenceNumber, gap)
		} else {
			stream.ResetConsecutiveLoss()
		}
	case rtpstream.SeqReordered, rtpstream.SeqOnProbation, rtpstream.SeqDuplicateOrLate:
		// already accounted for by ObserveSequence; playout scheduling
		// happened unconditionally above.
	}

	tracker.Observe(pkt.SequenceNumber, pkt.Payload)
}

// recoverOrConceal attempts XOR FEC recovery of the single packet
// immediately preceding seq; if that fails (group incomplete, or more
// than one member missing) it falls back to the configured PLC mode.
func (s *Session) recoverOrConceal(stream *rtpstream.Stream, actx *audioengine.Context, tracker *rtpstream.FECTracker, seq uint16, gap int) {
	if gap == 1 {
		missing := seq - 1
		if payload, ok := tracker.Recover(missing); ok {
			stream.Recovered++
			if pcm, err := actx.Codec.Decode(payload); err == nil {
				actx.PushDecoded(pcm, actx.Codec.SampleRate())
			} else {
				s.logger.Debug("audioengine: decode of fec-recovered packet failed", "error", err)
			}
			return
		}
	}

	stream.RecordConcealment(gap)
	actx.Playout.NotePLCUsed()
	samplesPerFrame := rtpstream.SamplesPerFrameForRate(stream.ClockRate)
	samples := actx.Conceal(samplesPerFrame*gap, nil, actx.Codec.SampleRate())
	actx.PushDecoded(samples, actx.Codec.SampleRate())
}

// enqueueForPlayout schedules pkt in the stream's jitter buffer for
// play-out at its computed expected-play time (spec §4.5). When the
// buffer is full the packet is dropped with a debug log line; the drop
// is not added to the stream's Lost count.
func (s *Session) enqueueForPlayout(stream *rtpstream.Stream, actx *audioengine.Context, pkt *rtp.Packet, arrival, expectedPlay time.Time) {
	buffered := &audioengine.Packet{
		Payload:      pkt.Payload,
		Size:         len(pkt.Payload),
		Timestamp:    pkt.Timestamp,
		Sequence:     pkt.SequenceNumber,
		OriginalSeq:  pkt.SequenceNumber,
		Arrival:      arrival,
		ExpectedPlay: expectedPlay,
	}
	if !actx.Jitter.Insert(buffered) {
		s.logger.Debug("audioengine: jitter buffer full, dropping packet", "ssrc", stream.SSRC, "seq", pkt.SequenceNumber)
	}
}

// drainJitterBuffer pulls every packet that is ready (or too late) to
// play out as of now, decoding ready packets and feeding decoded audio
// back through the adaptive encoder for bitrate/DTX tracking (spec
// §4.5's "Adaptive bitrate" rule).
func (s *Session) drainJitterBuffer(stream *rtpstream.Stream, actx *audioengine.Context, now time.Time) {
	for {
		pkt, sig := actx.Jitter.Dequeue(now)
		switch sig {
		case audioengine.DequeueReady:
			s.decodeAndTrack(stream, actx, pkt.Payload)
		case audioengine.DequeueTooLate:
			s.logger.Debug("audioengine: packet too late for playout, dropping", "ssrc", stream.SSRC, "seq", pkt.Sequence)
		default:
			return
		}
	}
}

// decodeAndTrack runs the stream's codec over payload, feeds the result
// into the PLC lookback buffer so a later gap can replay real recent
// audio instead of synthesized silence, and re-encodes it through the
// adaptive encoder to drive the bitrate/DTX control loop off the
// stream's current loss rate.
func (s *Session) decodeAndTrack(stream *rtpstream.Stream, actx *audioengine.Context, payload []byte) {
	pcm, err := actx.Codec.Decode(payload)
	if err != nil {
		s.logger.Debug("audioengine: decode failed", "error", err)
		return
	}
	actx.PushDecoded(pcm, actx.Codec.SampleRate())
	if _, err := actx.Adaptive.EncodeFrame(pcm, smoothedLossRate(stream)); err != nil {
		s.logger.Debug("audioengine: adaptive re-encode failed", "error", err)
	}
}

// smoothedLossRate derives the fraction of expected packets lost so
// far, for the adaptive encoder's bitrate-shrink/grow decision.
func smoothedLossRate(stream *rtpstream.Stream) float64 {
	expected := stream.ExpectedReceived()
	if expected <= 0 {
		return 0
	}
	rate := float64(stream.Lost) / float64(expected)
	switch {
	case rate < 0:
		return 0
	case rate > 1:
		return 1
	default:
		return rate
	}
}

// RequestStop sets the monotonic stopping flag observed at the next
// packet boundary (spec §5's race-safe suspension-point contract).
func (s *Session) RequestStop() { s.stopping.Store(true) }

// Stopping reports whether a stop has been requested.
func (s *Session) Stopping() bool { return s.stopping.Load() }

// ShouldTerminate evaluates the termination predicates of spec §6 at
// now, returning the first one that applies.
func (s *Session) ShouldTerminate(now time.Time, timeBudget time.Duration, auto bool) (bool, string) {
	if timeBudget > 0 && now.Sub(s.startTime) >= timeBudget {
		return true, "time budget reached"
	}
	if s.haveRTPSeen && now.Sub(s.lastRTPArrival) >= s.cfg.RTPTimeout {
		return true, "rtp timeout"
	}
	if s.Dialog.State == sipdialog.StateTerminated && s.Dialog.BYESeen() &&
		now.Sub(s.Dialog.LastBYESeen) >= s.cfg.RTPGracePeriod {
		return true, "bye grace period elapsed"
	}
	if s.Dialog.State == sipdialog.StateInit && now.Sub(s.startTime) >= s.cfg.AutoModeTimeout {
		return true, "no call materialized"
	}
	if auto {
		if s.Dialog.State != sipdialog.StateInit && s.Dialog.State != sipdialog.StateEstablished &&
			s.Dialog.State != sipdialog.StateTerminated && now.Sub(s.startTime) >= s.cfg.AutoModeTimeout {
			return true, "auto mode: call setup stalled"
		}
		if s.Dialog.State == sipdialog.StateTerminated && s.Dialog.BYESeen() &&
			now.Sub(s.Dialog.LastBYESeen) >= s.cfg.AutoIdleTimeout {
			return true, "auto mode: call finished and idle timeout elapsed"
		}
	}
	return false, ""
}

// Snapshot returns the live stats snapshot for reporting.
func (s *Session) Snapshot() StatsSnapshot {
	return Snapshot(s.Dialog.State.String(), s.Streams.Streams())
}

// Close releases per-stream codec resources (spec §5's cancellation
// contract) and closes the pcap writer.
func (s *Session) Close() error {
	for ssrc, ctx := range s.contexts {
		if err := ctx.Codec.Close(); err != nil {
			s.logger.Warn("capture: codec close failed", "ssrc", ssrc, "error", err)
		}
	}
	if s.writer != nil {
		return s.writer.Close()
	}
	return nil
}
