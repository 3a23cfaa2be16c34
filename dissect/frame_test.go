package dissect_test

import (
	"encoding/binary"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vtap/dissect"
)

func buildEthIPv4UDP(t *testing.T, src, dst string, srcPort, dstPort uint16, payload []byte) []byte {
	t.Helper()
	frame := make([]byte, 14+20+8+len(payload))
	// Ethernet: dst mac, src mac, EtherType=IPv4.
	binary.BigEndian.PutUint16(frame[12:14], 0x0800)

	ip := frame[14:]
	ip[0] = 0x45 // version 4, IHL 5
	totalLen := 20 + 8 + len(payload)
	binary.BigEndian.PutUint16(ip[2:4], uint16(totalLen))
	ip[9] = 17 // UDP
	srcIP := net.ParseIP(src).To4()
	dstIP := net.ParseIP(dst).To4()
	require.NotNil(t, srcIP)
	require.NotNil(t, dstIP)
	copy(ip[12:16], srcIP)
	copy(ip[16:20], dstIP)

	udp := ip[20:]
	binary.BigEndian.PutUint16(udp[0:2], srcPort)
	binary.BigEndian.PutUint16(udp[2:4], dstPort)
	binary.BigEndian.PutUint16(udp[4:6], uint16(8+len(payload)))
	copy(udp[8:], payload)

	return frame
}

func TestDissectIPv4UDP(t *testing.T) {
	payload := []byte("hello-rtp")
	frame := buildEthIPv4UDP(t, "10.0.0.1", "10.0.0.2", 5000, 5004, payload)

	v, err := dissect.Dissect(frame)
	require.NoError(t, err)
	assert.Equal(t, 4, v.IPVersion)
	assert.Equal(t, "10.0.0.1", v.SrcAddr)
	assert.Equal(t, "10.0.0.2", v.DstAddr)
	assert.EqualValues(t, 5000, v.SrcPort)
	assert.EqualValues(t, 5004, v.DstPort)
	assert.Equal(t, payload, v.Payload)
	assert.Equal(t, dissect.DirectionUnknown, v.Direction)
}

func TestDissectTooShort(t *testing.T) {
	_, err := dissect.Dissect(make([]byte, 10))
	assert.ErrorIs(t, err, dissect.ErrTooShort)
}

func TestDissectNonIP(t *testing.T) {
	frame := make([]byte, 20)
	binary.BigEndian.PutUint16(frame[12:14], 0x8100) // 802.1Q, not IPv4/IPv6
	_, err := dissect.Dissect(frame)
	assert.ErrorIs(t, err, dissect.ErrUnknownEther)
}

func TestDissectBadIPLen(t *testing.T) {
	frame := buildEthIPv4UDP(t, "10.0.0.1", "10.0.0.2", 1, 2, []byte("x"))
	// Corrupt the IP total length field to claim more than captured.
	binary.BigEndian.PutUint16(frame[14+2:14+4], 9000)
	_, err := dissect.Dissect(frame)
	assert.Error(t, err)
}

func TestFailureTrackerTripsAfterTenSameClass(t *testing.T) {
	var tr dissect.FailureTracker
	tripped := false
	for i := 0; i < dissect.MaxConsecutiveFailures; i++ {
		tripped = tr.Observe(dissect.ErrUnknownEther)
	}
	assert.True(t, tripped)
}

func TestFailureTrackerResetsOnSuccess(t *testing.T) {
	var tr dissect.FailureTracker
	for i := 0; i < dissect.MaxConsecutiveFailures-1; i++ {
		tr.Observe(dissect.ErrUnknownEther)
	}
	tr.Observe(nil)
	assert.Equal(t, 0, tr.Streak())
}
