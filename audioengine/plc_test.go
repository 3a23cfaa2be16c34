package audioengine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vtap/audioengine"
)

func TestConcealSilenceIsZero(t *testing.T) {
	out := audioengine.ConcealSilence(160)
	require.Len(t, out, 160)
	for _, s := range out {
		assert.EqualValues(t, 0, s)
	}
}

func TestConcealRepeatFadesOut(t *testing.T) {
	prev := make([]int16, 160)
	for i := range prev {
		prev[i] = 10000
	}
	out := audioengine.ConcealRepeat(prev, 160, 8000)
	require.Len(t, out, 160)
	// 160 samples at 8kHz is exactly the 20ms fade window, so the fade
	// spans the whole frame: first sample near full volume, last near zero.
	assert.Greater(t, out[0], int16(9000))
	assert.Less(t, out[len(out)-1], int16(2000))
}

func TestConcealAdvancedFallsBackWhenLookbackEmpty(t *testing.T) {
	lb := audioengine.NewLookbackBuffer()
	_, ok := audioengine.ConcealAdvanced(lb, 160, 50)
	assert.False(t, ok, "empty lookback must signal fallback to the caller")
}

func TestConcealAdvancedReplaysFromLookback(t *testing.T) {
	lb := audioengine.NewLookbackBuffer()
	samples := make([]int16, 320)
	for i := range samples {
		if i%2 == 0 {
			samples[i] = 5000
		} else {
			samples[i] = -5000
		}
	}
	lb.Push(samples, audioengine.LookbackRateHz)

	out, ok := audioengine.ConcealAdvanced(lb, 160, 10)
	require.True(t, ok)
	assert.Len(t, out, 160)
}

func TestDedupRingCatchesRepeat(t *testing.T) {
	r := audioengine.NewDedupRing(4)
	assert.False(t, r.CheckAndInsert(100))
	assert.True(t, r.CheckAndInsert(100))
	assert.False(t, r.CheckAndInsert(101))
}

func TestDedupRingEvictsOldest(t *testing.T) {
	r := audioengine.NewDedupRing(2)
	r.CheckAndInsert(1)
	r.CheckAndInsert(2)
	r.CheckAndInsert(3) // evicts 1
	assert.False(t, r.CheckAndInsert(1), "1 should have been evicted from a size-2 ring")
}

func TestContextDuplicateRelabeling(t *testing.T) {
	c := audioengine.NewContext(audioengine.NewG711Codec(false), 200, 40, 1.0, 10)
	dup, seq := c.ObserveDuplicate(500)
	assert.False(t, dup)
	assert.Equal(t, uint16(500), seq)

	dup, seq = c.ObserveDuplicate(500)
	assert.True(t, dup)
	assert.Equal(t, uint16(501), seq, "duplicate relabels to last_seq+1 per the documented inaccuracy")
}
