package rtpstream_test

import (
	"testing"
	"time"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vtap/rtpstream"
)

func reorderPkt(seq uint16, payload string) *rtp.Packet {
	return &rtp.Packet{Header: rtp.Header{SequenceNumber: seq}, Payload: []byte(payload)}
}

func TestReorderWindowReleasesInOrder(t *testing.T) {
	w := rtpstream.NewReorderWindow()
	base := time.Unix(0, 0)

	require.False(t, w.Push(reorderPkt(0, "a"), base, 0))
	require.False(t, w.Push(reorderPkt(1, "b"), base.Add(time.Millisecond), 0))

	ready := w.Ready(base)
	require.Len(t, ready, 2)
	assert.Equal(t, uint16(0), ready[0].SequenceNumber)
	assert.Equal(t, uint16(1), ready[1].SequenceNumber)
}

func TestReorderWindowWaitsThenReleasesBestAvailable(t *testing.T) {
	w := rtpstream.NewReorderWindow()
	base := time.Unix(0, 0)

	require.False(t, w.Push(reorderPkt(0, "a"), base, 0))
	w.Ready(base)

	// seq 2 arrives without seq 1; it should sit held until the wait
	// threshold elapses.
	require.False(t, w.Push(reorderPkt(2, "c"), base.Add(1*time.Millisecond), 0))

	early := w.Ready(base.Add(10 * time.Millisecond))
	assert.Empty(t, early)

	late := w.Ready(base.Add(50 * time.Millisecond))
	require.Len(t, late, 1)
	assert.Equal(t, uint16(2), late[0].SequenceNumber)
}

func TestReorderWindowDiscardsStalePacket(t *testing.T) {
	w := rtpstream.NewReorderWindow()
	base := time.Unix(0, 0)

	require.False(t, w.Push(reorderPkt(200, "x"), base, 200))
	w.Ready(base)

	discarded := w.Push(reorderPkt(10, "stale"), base, 200)
	assert.True(t, discarded)
}
