package audioengine_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vtap/audioengine"
)

func TestJitterBufferOrdersByExpectedPlay(t *testing.T) {
	b := audioengine.NewJitterBuffer(200)
	base := time.Unix(1000, 0)

	order := []int{3, 1, 4, 2, 0}
	for _, i := range order {
		pkt := &audioengine.Packet{
			Sequence:     uint16(i),
			Arrival:      base,
			ExpectedPlay: base.Add(time.Duration(i) * 10 * time.Millisecond),
		}
		require.True(t, b.Insert(pkt))
	}

	var seen []uint16
	for {
		pkt, sig := b.Dequeue(base.Add(time.Hour))
		if sig != audioengine.DequeueReady {
			break
		}
		seen = append(seen, pkt.Sequence)
	}
	assert.Equal(t, []uint16{0, 1, 2, 3, 4}, seen)
}

func TestJitterBufferOverflowRejects(t *testing.T) {
	b := audioengine.NewJitterBuffer(200)
	base := time.Unix(0, 0)
	for i := 0; i < audioengine.JitterBufferCapacity; i++ {
		ok := b.Insert(&audioengine.Packet{ExpectedPlay: base.Add(time.Duration(i) * time.Millisecond)})
		require.True(t, ok)
	}
	ok := b.Insert(&audioengine.Packet{ExpectedPlay: base})
	assert.False(t, ok)
	assert.Equal(t, audioengine.JitterBufferCapacity, b.Len())
}

func TestJitterBufferTooEarlyThenReady(t *testing.T) {
	b := audioengine.NewJitterBuffer(200)
	base := time.Unix(0, 0)
	play := base.Add(50 * time.Millisecond)
	b.Insert(&audioengine.Packet{ExpectedPlay: play, Arrival: base})

	_, sig := b.Dequeue(base.Add(10 * time.Millisecond))
	assert.Equal(t, audioengine.DequeueTooEarly, sig)

	_, sig = b.Dequeue(play)
	assert.Equal(t, audioengine.DequeueReady, sig)
}
