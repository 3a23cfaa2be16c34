// Package nat64 recognizes IPv6 addresses that embed an IPv4 address
// under a known NAT64 prefix, and provides the translation-aware
// address equality used by the RTP stream table (spec C2/§4.4).
package nat64

import (
	"fmt"
	"net"
	"strings"
)

// knownPrefixes are the NAT64 well-known and documentation prefixes
// this helper recognizes. An address matches when its canonical text
// starts with a prefix's canonical text or its first 96 bits equal the
// prefix's; an address under 64:ff9b:1::/48 with non-zero bits 48-95
// matches neither.
var knownPrefixes = []string{
	"64:ff9b::",
	"64:ff9b:1::",
	"2001:db8:64::",
}

// IsNAT64 reports whether addr (a textual IPv6 or IPv4 address) starts
// with one of the recognized NAT64 embedding prefixes.
func IsNAT64(addr string) bool {
	ip := parseHost(addr)
	if ip == nil || ip.To4() != nil {
		return false
	}
	full := ip.String()
	for _, p := range knownPrefixes {
		if strings.HasPrefix(full, normalizedPrefix(p)) {
			return true
		}
		// Also check against the non-canonical textual form, since
		// net.IP.String() compresses zero runs and a literal prefix
		// comparison on the canonical form can miss e.g. "2001:db8:64::1"
		// vs "2001:0db8:0064::1".
		if matchesPrefixBytes(ip, p) {
			return true
		}
	}
	return false
}

func normalizedPrefix(p string) string {
	ip := net.ParseIP(strings.TrimSuffix(p, "::") + "::")
	if ip == nil {
		return p
	}
	return ip.String()
}

func matchesPrefixBytes(ip net.IP, prefix string) bool {
	pip := net.ParseIP(prefix)
	if pip == nil {
		return false
	}
	ip16 := ip.To16()
	p16 := pip.To16()
	if ip16 == nil || p16 == nil {
		return false
	}
	// Compare the first 96 bits (12 bytes) of the prefix.
	for i := 0; i < 12; i++ {
		if ip16[i] != p16[i] {
			return false
		}
	}
	return true
}

// ExtractIPv4 returns the embedded IPv4 address from a NAT64 address,
// reading the last 32 bits of the IPv6 address as four decimal octets.
// It returns an error if addr is not a recognized NAT64 address.
func ExtractIPv4(addr string) (string, error) {
	ip := parseHost(addr)
	if ip == nil {
		return "", fmt.Errorf("nat64: invalid address %q", addr)
	}
	if !IsNAT64(addr) {
		return "", fmt.Errorf("nat64: %q is not a recognized NAT64 address", addr)
	}
	ip16 := ip.To16()
	if ip16 == nil {
		return "", fmt.Errorf("nat64: %q is not an IPv6 address", addr)
	}
	return fmt.Sprintf("%d.%d.%d.%d", ip16[12], ip16[13], ip16[14], ip16[15]), nil
}

func parseHost(addr string) net.IP {
	addr = strings.TrimSpace(addr)
	addr = strings.Trim(addr, "[]")
	// Strip a trailing :port if present (best-effort; IPv6 zone/port
	// ambiguity is not a concern for the addresses this package sees,
	// which come from the dissector's endpoint strings).
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	return net.ParseIP(addr)
}

// Equal implements the NAT64-aware address equality used by the RTP
// stream table: direct string match, or, if either side is NAT64,
// equality of their extracted IPv4 addresses. This relation is
// reflexive, symmetric, and transitive over the address set.
func Equal(a, b string) bool {
	if a == b {
		return true
	}
	aIsNAT64 := IsNAT64(a)
	bIsNAT64 := IsNAT64(b)
	if !aIsNAT64 && !bIsNAT64 {
		return false
	}
	av4, aOK := effectiveIPv4(a, aIsNAT64)
	bv4, bOK := effectiveIPv4(b, bIsNAT64)
	if !aOK || !bOK {
		return false
	}
	return av4 == bv4
}

func effectiveIPv4(addr string, isNAT64 bool) (string, bool) {
	if isNAT64 {
		v4, err := ExtractIPv4(addr)
		if err != nil {
			return "", false
		}
		return v4, true
	}
	ip := parseHost(addr)
	if ip == nil || ip.To4() == nil {
		return "", false
	}
	return ip.To4().String(), true
}
