package rtpstream_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vtap/rtpstream"
)

func TestTableNAT64Pairing(t *testing.T) {
	tbl := rtpstream.NewTable()

	id1 := rtpstream.Identity{
		SSRC: 42, Direction: rtpstream.DirectionIncoming,
		SrcAddr: "2001:db8:64::c0a8:101", SrcPort: 30000,
		DstAddr: "10.0.0.5", DstPort: 30000,
	}
	s1, created, err := tbl.Lookup(id1, 0)
	require.NoError(t, err)
	assert.True(t, created)

	id2 := rtpstream.Identity{
		SSRC: 42, Direction: rtpstream.DirectionIncoming,
		SrcAddr: "192.168.1.1", SrcPort: 30000,
		DstAddr: "10.0.0.5", DstPort: 30000,
	}
	s2, created2, err := tbl.Lookup(id2, 0)
	require.NoError(t, err)
	assert.False(t, created2, "later packets with the embedded IPv4 must coalesce to the same stream")
	assert.Same(t, s1, s2)
	assert.Len(t, tbl.Streams(), 1)
}

func TestTableFullReturnsError(t *testing.T) {
	tbl := rtpstream.NewTable()
	for i := 0; i < rtpstream.MaxStreams; i++ {
		id := rtpstream.Identity{SSRC: uint32(i), SrcPort: uint16(i)}
		_, _, err := tbl.Lookup(id, 0)
		require.NoError(t, err)
	}
	_, _, err := tbl.Lookup(rtpstream.Identity{SSRC: 999}, 0)
	assert.ErrorIs(t, err, rtpstream.ErrTableFull)
}

func TestFECRoundTrip(t *testing.T) {
	members := [][]byte{
		{1, 2, 3, 4},
		{5, 6, 7, 8},
		{9, 10, 11, 12},
		{13, 14, 15, 16},
	}
	parity := rtpstream.BuildParity(members)

	g := rtpstream.NewFECGroup()
	g.SetParity(parity)
	for i, m := range members {
		if i == 2 {
			continue // simulate a missing member
		}
		g.SetMember(i, m)
	}

	recovered, idx, err := g.Recover()
	require.NoError(t, err)
	assert.Equal(t, 2, idx)
	assert.Equal(t, members[2], recovered)
}

func TestFECRoundTripShortPayload(t *testing.T) {
	members := [][]byte{
		{1, 2, 3, 4},
		{5, 6},
		{9, 10, 11, 12},
	}
	parity := rtpstream.BuildParity(members)

	g := rtpstream.NewFECGroup()
	g.SetParity(parity)
	g.SetMember(0, members[0])
	g.SetMember(2, members[2])

	recovered, idx, err := g.Recover()
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
	// Recovery restores the missing member's own length worth of bytes
	// exactly; the parity payload's extra zero padding recovers as zero.
	assert.Equal(t, members[1], recovered[:len(members[1])])
}
