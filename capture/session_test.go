package capture_test

import (
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vtap/capture"
	"vtap/sipdialog"
)

// buildFrame assembles a minimal Ethernet II + IPv4 + UDP frame carrying
// payload, for feeding directly into Session.OnPacket the way a real
// capture source would.
func buildFrame(srcIP, dstIP string, srcPort, dstPort uint16, payload []byte) []byte {
	udp := make([]byte, 8+len(payload))
	binary.BigEndian.PutUint16(udp[0:2], srcPort)
	binary.BigEndian.PutUint16(udp[2:4], dstPort)
	binary.BigEndian.PutUint16(udp[4:6], uint16(len(udp)))
	copy(udp[8:], payload)

	ip := make([]byte, 20+len(udp))
	ip[0] = 0x45
	binary.BigEndian.PutUint16(ip[2:4], uint16(len(ip)))
	ip[8] = 64
	ip[9] = 17 // UDP
	copy(ip[12:16], parseIPv4(srcIP))
	copy(ip[16:20], parseIPv4(dstIP))
	copy(ip[20:], udp)

	frame := make([]byte, 14+len(ip))
	binary.BigEndian.PutUint16(frame[12:14], 0x0800)
	copy(frame[14:], ip)
	return frame
}

func parseIPv4(s string) [4]byte {
	ip := net.ParseIP(s).To4()
	if ip == nil {
		panic("bad test IPv4 literal: " + s)
	}
	var out [4]byte
	copy(out[:], ip)
	return out
}

// rtpPacket builds a minimal RTP header (no extensions/CSRCs) plus a
// fixed-size PCMU payload.
func rtpPacket(seq uint16, ts uint32, ssrc uint32, pt uint8, payloadLen int) []byte {
	out := make([]byte, 12+payloadLen)
	out[0] = 0x80
	out[1] = pt
	binary.BigEndian.PutUint16(out[2:4], seq)
	binary.BigEndian.PutUint32(out[4:8], ts)
	binary.BigEndian.PutUint32(out[8:12], ssrc)
	return out
}

func sipInvite(callID string) []byte {
	msg := "INVITE sip:bob@example.com SIP/2.0\r\n" +
		"From: alice <sip:alice@example.com>;tag=abc\r\n" +
		"To: bob <sip:bob@example.com>\r\n" +
		"Call-ID: " + callID + "\r\n" +
		"CSeq: 1 INVITE\r\n\r\n"
	return []byte(msg)
}

func sip200(callID, cseqMethod string) []byte {
	msg := "SIP/2.0 200 OK\r\n" +
		"From: alice <sip:alice@example.com>;tag=abc\r\n" +
		"To: bob <sip:bob@example.com>;tag=xyz\r\n" +
		"Call-ID: " + callID + "\r\n" +
		"CSeq: 1 " + cseqMethod + "\r\n\r\n"
	return []byte(msg)
}

func sipBye(callID string) []byte {
	msg := "BYE sip:bob@example.com SIP/2.0\r\n" +
		"From: alice <sip:alice@example.com>;tag=abc\r\n" +
		"To: bob <sip:bob@example.com>;tag=xyz\r\n" +
		"Call-ID: " + callID + "\r\n" +
		"CSeq: 2 BYE\r\n\r\n"
	return []byte(msg)
}

func TestCleanCallLifecycle(t *testing.T) {
	cfg := capture.DefaultConfig()
	sess := capture.NewSession(cfg, nil, nil, nil)

	base := time.Unix(1_000_000, 0)
	sess.OnPacket(base, buildFrame("203.0.113.1", "203.0.113.2", 5060, 5060, sipInvite("call-1")))
	sess.OnPacket(base.Add(10*time.Millisecond), buildFrame("203.0.113.2", "203.0.113.1", 5060, 5060, sip200("call-1", "INVITE")))
	require.Equal(t, sipdialog.StateEstablished, sess.Dialog.State)

	for i := 0; i < 20; i++ {
		arrival := base.Add(time.Duration(i) * 20 * time.Millisecond)
		frame := buildFrame("203.0.113.1", "203.0.113.2", 40000, 40002,
			rtpPacket(uint16(i), uint32(i*160), 0xAAAA, 0, 172))
		sess.OnPacket(arrival, frame)
	}

	streams := sess.Streams.Streams()
	require.Len(t, streams, 1)
	// The first two arrivals (seq 0, 1) are consumed by RFC 3550
	// probation and never counted as received; accounting starts once
	// probation clears at seq 2.
	assert.EqualValues(t, 18, streams[0].Received)
	assert.EqualValues(t, 0, streams[0].Lost)

	byeTime := base.Add(500 * time.Millisecond)
	sess.OnPacket(byeTime, buildFrame("203.0.113.1", "203.0.113.2", 5060, 5060, sipBye("call-1")))
	sess.OnPacket(byeTime.Add(5*time.Millisecond), buildFrame("203.0.113.2", "203.0.113.1", 5060, 5060, sip200("call-1", "BYE")))
	require.Equal(t, sipdialog.StateTerminated, sess.Dialog.State)
	require.True(t, sess.Dialog.BYESeen())

	stop, reason := sess.ShouldTerminate(byeTime.Add(cfg.RTPGracePeriod+time.Second), 0, false)
	assert.True(t, stop)
	assert.Equal(t, "bye grace period elapsed", reason)
}

func TestSinglePacketDropIsConcealed(t *testing.T) {
	cfg := capture.DefaultConfig()
	sess := capture.NewSession(cfg, nil, nil, nil)
	base := time.Unix(2_000_000, 0)

	// 3 dropped. Seq 4 waits in the reorder window until seq 6 arrives
	// 40ms after it; seq 7 then releases the rest in order.
	for _, seq := range []uint16{0, 1, 2, 4, 5, 6, 7} {
		arrival := base.Add(time.Duration(seq) * 20 * time.Millisecond)
		frame := buildFrame("203.0.113.1", "203.0.113.2", 40000, 40002,
			rtpPacket(seq, uint32(seq)*160, 0xBEEF, 0, 172))
		sess.OnPacket(arrival, frame)
	}

	streams := sess.Streams.Streams()
	require.Len(t, streams, 1)
	assert.EqualValues(t, 1, streams[0].Lost)
	assert.GreaterOrEqual(t, streams[0].ConcealedMS, 20.0)
}

func TestFECRecoversSingleDroppedPacket(t *testing.T) {
	cfg := capture.DefaultConfig()
	sess := capture.NewSession(cfg, nil, nil, nil)
	base := time.Unix(2_500_000, 0)

	// Drop seq 4, the last slot of FEC group [0..4]. Seq 5 waits in the
	// reorder window until seq 7 arrives 40ms after it; by then every
	// other member of that group is already in hand, so FEC recovery
	// succeeds rather than falling back to concealment.
	for _, seq := range []uint16{0, 1, 2, 3, 5, 6, 7} {
		arrival := base.Add(time.Duration(seq) * 20 * time.Millisecond)
		frame := buildFrame("203.0.113.1", "203.0.113.2", 40000, 40002,
			rtpPacket(seq, uint32(seq)*160, 0xFEED, 0, 172))
		sess.OnPacket(arrival, frame)
	}

	streams := sess.Streams.Streams()
	require.Len(t, streams, 1)
	assert.EqualValues(t, 1, streams[0].Lost)
	assert.EqualValues(t, 1, streams[0].Recovered)
	assert.Equal(t, 0.0, streams[0].ConcealedMS)
}

func TestRTPTimeoutTerminates(t *testing.T) {
	cfg := capture.DefaultConfig()
	cfg.RTPTimeout = 100 * time.Millisecond
	sess := capture.NewSession(cfg, nil, nil, nil)
	base := time.Unix(3_000_000, 0)

	frame := buildFrame("203.0.113.1", "203.0.113.2", 40000, 40002, rtpPacket(0, 0, 0xCAFE, 0, 172))
	sess.OnPacket(base, frame)

	stop, reason := sess.ShouldTerminate(base.Add(200*time.Millisecond), 0, false)
	assert.True(t, stop)
	assert.Equal(t, "rtp timeout", reason)
}

func TestDuplicateRTPIsCountedNotReprocessed(t *testing.T) {
	cfg := capture.DefaultConfig()
	sess := capture.NewSession(cfg, nil, nil, nil)
	base := time.Unix(4_000_000, 0)

	frame := buildFrame("203.0.113.1", "203.0.113.2", 40000, 40002, rtpPacket(0, 0, 0xD00D, 0, 172))
	sess.OnPacket(base, frame)
	sess.OnPacket(base.Add(5*time.Millisecond), frame)

	streams := sess.Streams.Streams()
	require.Len(t, streams, 1)
	// The first arrival only seeds probation (RFC 3550 init_seq sets
	// received=0); the duplicate is caught before reaching ObserveSequence.
	assert.EqualValues(t, 0, streams[0].Received)
	assert.EqualValues(t, 1, streams[0].OutOfOrder)
}
