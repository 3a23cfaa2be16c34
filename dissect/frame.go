// Package dissect validates Ethernet/IPv4/IPv6/UDP framing on a raw
// captured frame and returns the UDP payload plus addressing metadata
// (spec C1/§4.1). It never panics on malformed input; callers get an
// error and are expected to count it, not propagate it past the packet
// boundary.
package dissect

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Direction hints derived from NAT64 inspection of the endpoints.
type Direction int

const (
	DirectionUnknown Direction = iota
	DirectionIncoming
	DirectionOutgoing
)

func (d Direction) String() string {
	switch d {
	case DirectionIncoming:
		return "incoming"
	case DirectionOutgoing:
		return "outgoing"
	default:
		return "unknown"
	}
}

// View is the typed result of dissecting one captured frame.
type View struct {
	IPVersion   int
	SrcAddr     string
	DstAddr     string
	SrcPort     uint16
	DstPort     uint16
	Payload     []byte
	Direction   Direction
}

var (
	ErrTooShort       = errors.New("dissect: frame shorter than declared headers")
	ErrUnknownEther   = errors.New("dissect: not IPv4 or IPv6 EtherType")
	ErrNotUDP         = errors.New("dissect: not a UDP datagram")
	ErrBadIPHeaderLen = errors.New("dissect: IP header length exceeds captured length")
	ErrEmptyPayload   = errors.New("dissect: computed payload length is not positive")
)

const (
	etherHeaderLen = 14
	etherTypeIPv4  = 0x0800
	etherTypeIPv6  = 0x86DD

	ipv4ProtoUDP = 17
	ipv6NextUDP  = 17

	udpHeaderLen = 8
)

// Dissect validates Ethernet II framing and IPv4/IPv6 + UDP encapsulation
// on frame (captured length implicit in len(frame)) and returns the UDP
// payload slice plus endpoint/direction metadata.
//
// The frame is always read as Ethernet II. Non-IP EtherTypes and
// non-UDP payloads are reported as distinct sentinel errors so the caller can classify the
// "same class of consecutive failure" required by spec §4.1/§7.
func Dissect(frame []byte) (*View, error) {
	if len(frame) < etherHeaderLen {
		return nil, ErrTooShort
	}
	etherType := binary.BigEndian.Uint16(frame[12:14])
	rest := frame[etherHeaderLen:]

	var (
		v   *View
		err error
	)
	switch etherType {
	case etherTypeIPv4:
		v, err = dissectIPv4(rest)
	case etherTypeIPv6:
		v, err = dissectIPv6(rest)
	default:
		return nil, ErrUnknownEther
	}
	if err != nil {
		return nil, err
	}
	ApplyDirection(v)
	return v, nil
}

func dissectIPv4(b []byte) (*View, error) {
	if len(b) < 20 {
		return nil, ErrTooShort
	}
	verIHL := b[0]
	version := verIHL >> 4
	ihl := int(verIHL&0x0F) * 4
	if version != 4 || ihl < 20 {
		return nil, ErrTooShort
	}
	totalLen := int(binary.BigEndian.Uint16(b[2:4]))
	if totalLen < ihl || totalLen > len(b) {
		return nil, ErrBadIPHeaderLen
	}
	if len(b) < ihl {
		return nil, ErrBadIPHeaderLen
	}
	proto := b[9]
	if proto != ipv4ProtoUDP {
		return nil, ErrNotUDP
	}
	srcIP := fmt.Sprintf("%d.%d.%d.%d", b[12], b[13], b[14], b[15])
	dstIP := fmt.Sprintf("%d.%d.%d.%d", b[16], b[17], b[18], b[19])

	udpStart := ihl
	payloadLen := totalLen - (ihl + udpHeaderLen)
	return finishUDP(b, udpStart, payloadLen, 4, srcIP, dstIP)
}

func dissectIPv6(b []byte) (*View, error) {
	if len(b) < 40 {
		return nil, ErrTooShort
	}
	version := b[0] >> 4
	if version != 6 {
		return nil, ErrTooShort
	}
	payloadLenField := int(binary.BigEndian.Uint16(b[4:6]))
	nextHeader := b[6]
	if nextHeader != ipv6NextUDP {
		return nil, ErrNotUDP
	}
	if 40+payloadLenField > len(b) {
		return nil, ErrBadIPHeaderLen
	}
	srcIP := formatIPv6(b[8:24])
	dstIP := formatIPv6(b[24:40])

	udpStart := 40
	payloadLen := payloadLenField - udpHeaderLen
	return finishUDP(b, udpStart, payloadLen, 6, srcIP, dstIP)
}

func finishUDP(b []byte, udpStart, payloadLen, ipVersion int, srcIP, dstIP string) (*View, error) {
	if payloadLen <= 0 {
		return nil, ErrEmptyPayload
	}
	if len(b) < udpStart+udpHeaderLen {
		return nil, ErrTooShort
	}
	udp := b[udpStart : udpStart+udpHeaderLen]
	srcPort := binary.BigEndian.Uint16(udp[0:2])
	dstPort := binary.BigEndian.Uint16(udp[2:4])

	payloadStart := udpStart + udpHeaderLen
	payloadEnd := payloadStart + payloadLen
	if payloadEnd > len(b) {
		payloadEnd = len(b)
	}
	if payloadEnd <= payloadStart {
		return nil, ErrEmptyPayload
	}

	return &View{
		IPVersion: ipVersion,
		SrcAddr:   srcIP,
		DstAddr:   dstIP,
		SrcPort:   srcPort,
		DstPort:   dstPort,
		Payload:   b[payloadStart:payloadEnd],
		Direction: DirectionUnknown, // filled in by ApplyDirection
	}, nil
}

func formatIPv6(b []byte) string {
	groups := make([]uint16, 8)
	for i := 0; i < 8; i++ {
		groups[i] = binary.BigEndian.Uint16(b[i*2 : i*2+2])
	}
	// Build a plain non-compressed textual form; nat64.IsNAT64 and
	// nat64.Equal re-parse via net.ParseIP which canonicalizes it.
	s := ""
	for i, g := range groups {
		if i > 0 {
			s += ":"
		}
		s += fmt.Sprintf("%x", g)
	}
	return s
}
