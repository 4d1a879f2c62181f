package rules

// Centralized rule semantics. Every place that needs to know whether a
// protocol takes ports, which reject types it supports, or which
// interface field a chain reads consults these helpers instead of
// matching on variants locally.

// ProtocolSupportsPorts reports whether rules with this protocol may
// carry port entries. ICMP-family and any-protocol rules never do.
func ProtocolSupportsPorts(p Protocol) bool {
	switch p {
	case ProtocolTCP, ProtocolUDP, ProtocolTCPUDP:
		return true
	}
	return false
}

// ProtocolIsICMP reports whether the protocol is one of the ICMP
// families.
func ProtocolIsICMP(p Protocol) bool {
	switch p {
	case ProtocolICMP, ProtocolICMPv6, ProtocolICMPBoth:
		return true
	}
	return false
}

// ProtocolRequiresIPv4 reports whether the protocol only makes sense
// with IPv4 addresses (plain ICMP).
func ProtocolRequiresIPv4(p Protocol) bool {
	return p == ProtocolICMP
}

// ProtocolRequiresIPv6 reports whether the protocol only makes sense
// with IPv6 addresses (ICMPv6).
func ProtocolRequiresIPv6(p Protocol) bool {
	return p == ProtocolICMPv6
}

// AvailableRejectTypes returns the reject types offered for a
// protocol. tcp-reset needs a TCP header to reset, so it is only
// offered for pure TCP rules.
func AvailableRejectTypes(p Protocol) []RejectType {
	if p == ProtocolTCP {
		return []RejectType{RejectDefault, RejectAdminProhibited, RejectTCPReset}
	}
	return []RejectType{RejectDefault, RejectAdminProhibited}
}

// RejectTypeValidFor reports whether rt is a legal reject type for
// rules with protocol p.
func RejectTypeValidFor(rt RejectType, p Protocol) bool {
	if rt == RejectTCPReset {
		return p == ProtocolTCP
	}
	return rt.Valid()
}

// ChainUsesInputInterface reports whether rules on this chain match on
// the inbound interface (iifname).
func ChainUsesInputInterface(c Chain) bool {
	return c == ChainInput
}

// ChainUsesOutputInterface reports whether rules on this chain match
// on the outbound interface (oifname).
func ChainUsesOutputInterface(c Chain) bool {
	return c == ChainOutput
}
