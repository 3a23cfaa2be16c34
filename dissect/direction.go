package dissect

import "vtap/nat64"

// ApplyDirection sets v.Direction from NAT64 inspection of the endpoints:
// NAT64 source + non-NAT64 destination is INCOMING, the reverse is
// OUTGOING, anything else is UNKNOWN (spec §4.1).
func ApplyDirection(v *View) {
	srcNAT64 := nat64.IsNAT64(v.SrcAddr)
	dstNAT64 := nat64.IsNAT64(v.DstAddr)
	switch {
	case srcNAT64 && !dstNAT64:
		v.Direction = DirectionIncoming
	case !srcNAT64 && dstNAT64:
		v.Direction = DirectionOutgoing
	default:
		v.Direction = DirectionUnknown
	}
}
