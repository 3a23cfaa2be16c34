package capture

import "time"

// PacketHandler is the capture-callback shape spec §6 describes:
// on_packet(arrival_time_µs, frame_bytes).
type PacketHandler func(arrivalTime time.Time, frame []byte)

// PacketSource is the external collaborator that delivers captured
// frames and supports an asynchronous break signal (spec §5/§6). A live
// implementation wraps a packet-capture library; SliceSource replays
// frames from a slice.
type PacketSource interface {
	// Run blocks, delivering frames to handler until Break is called or
	// the source is exhausted/fails. Returns the terminal error, or nil
	// on a clean stop.
	Run(handler PacketHandler) error
	// Break requests the source unblock and Run return. Safe to call
	// from a different goroutine than Run (spec §5's async signal sources).
	Break()
	// Close releases the source's resources.
	Close() error
}

// SliceSource is a PacketSource that replays a fixed list of frames.
type SliceSource struct {
	Frames   []Frame
	breakCh  chan struct{}
	broken   bool
}

// Frame pairs a captured frame with its arrival instant.
type Frame struct {
	Arrival time.Time
	Bytes   []byte
}

// NewSliceSource returns a source that replays frames in order.
func NewSliceSource(frames []Frame) *SliceSource {
	return &SliceSource{Frames: frames, breakCh: make(chan struct{})}
}

func (s *SliceSource) Run(handler PacketHandler) error {
	for _, f := range s.Frames {
		select {
		case <-s.breakCh:
			return nil
		default:
		}
		handler(f.Arrival, f.Bytes)
	}
	return nil
}

func (s *SliceSource) Break() {
	if !s.broken {
		s.broken = true
		close(s.breakCh)
	}
}

func (s *SliceSource) Close() error { return nil }
