package capture

import "vtap/rtpstream"

// StreamStats mirrors one stream's quality aggregates (spec §3) for
// reporting, decoupled from the live *rtpstream.Stream so snapshots can
// be logged or printed without holding a reference into the session.
type StreamStats struct {
	SSRC         uint32
	PayloadType  uint8
	Received     uint64
	Lost         int64
	OutOfOrder   uint64
	Recovered    uint64
	ConcealedMS  float64
	JitterTicks  float64
	MeanFrameSize float64
}

// StatsSnapshot is the transient per-run statistics artifact spec §1
// names ("Transient artifact: live per-stream statistics").
type StatsSnapshot struct {
	DialogState string
	Streams     []StreamStats
}

// Snapshot builds a StatsSnapshot from the live stream table and dialog
// state string.
func Snapshot(dialogState string, streams []*rtpstream.Stream) StatsSnapshot {
	snap := StatsSnapshot{DialogState: dialogState}
	for _, s := range streams {
		snap.Streams = append(snap.Streams, StreamStats{
			SSRC:          s.SSRC,
			PayloadType:   s.PayloadType,
			Received:      s.Received,
			Lost:          s.Lost,
			OutOfOrder:    s.OutOfOrder,
			Recovered:     s.Recovered,
			ConcealedMS:   s.ConcealedMS,
			JitterTicks:   s.Jitter,
			MeanFrameSize: s.MeanFrameSize(),
		})
	}
	return snap
}
