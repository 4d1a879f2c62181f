package nftgen

import (
	"encoding/json"
	"strings"

	"grimm.is/warden/internal/brand"
	"grimm.is/warden/internal/errors"
	"grimm.is/warden/internal/rules"
)

// chainPriority places our chains slightly before the default filter
// priority so distro firewalls see already-filtered traffic.
const chainPriority = -10

// EncodeWire serializes the ruleset into the nftables JSON wire
// document. Output is byte-stable for a given ruleset value.
func EncodeWire(rs *rules.FirewallRuleset) ([]byte, error) {
	data, err := json.Marshal(BuildDocument(rs))
	if err != nil {
		return nil, errors.Wrap(err, errors.KindCodec, "encoding nftables document")
	}
	return data, nil
}

// MarshalDocument serializes an already-built document.
func MarshalDocument(doc *Document) ([]byte, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindCodec, "encoding nftables document")
	}
	return data, nil
}

// EmergencyDocument builds the built-in fallback ruleset: all chains open
// with accept policies, loopback and tracked connections allowed outright.
// It replaces whatever broken state both apply and restore left behind.
func EmergencyDocument() *Document {
	table := brand.TableName
	prio := chainPriority

	instrs := []Instruction{
		{Add: &Object{Table: &TableSpec{Family: "inet", Name: table}}},
		{Flush: &Object{Table: &TableSpec{Family: "inet", Name: table}}},
	}
	for _, name := range []string{"input", "forward", "output"} {
		instrs = append(instrs, Instruction{Add: &Object{Chain: &ChainSpec{
			Family: "inet",
			Table:  table,
			Name:   name,
			Type:   "filter",
			Hook:   name,
			Prio:   &prio,
			Policy: "accept",
		}}})
	}
	instrs = append(instrs,
		inputRule(table, "emergency: allow from loopback", []Expr{
			matchMeta("iifname", "==", "lo"),
			{Accept: &Null{}},
		}),
		inputRule(table, "emergency: allow tracked connections", []Expr{
			matchCt("state", "in", []string{"established", "related"}),
			{Accept: &Null{}},
		}),
	)
	return &Document{Nftables: instrs}
}

// BuildDocument assembles the instruction list: table setup, base
// chains, base rules, enabled user rules in document order, and the
// termination rules.
func BuildDocument(rs *rules.FirewallRuleset) *Document {
	adv := &rs.AdvancedSecurity
	instrs := make([]Instruction, 0, 20+len(rs.Rules))

	table := brand.TableName
	instrs = append(instrs,
		Instruction{Add: &Object{Table: &TableSpec{Family: "inet", Name: table}}},
		Instruction{Flush: &Object{Table: &TableSpec{Family: "inet", Name: table}}},
	)

	instrs = append(instrs, baseChains(table, adv)...)
	instrs = append(instrs, baseRules(table, adv)...)

	for i := range rs.Rules {
		r := &rs.Rules[i]
		if !r.Enabled {
			continue
		}
		// Output rules are redundant under the desktop accept policy.
		if adv.EgressProfile == rules.EgressDesktop && r.Chain == rules.ChainOutput {
			continue
		}
		instrs = append(instrs, userRule(table, r)...)
	}

	instrs = append(instrs, terminationRules(table, adv)...)

	return &Document{Nftables: instrs}
}

func baseChains(table string, adv *rules.AdvancedSecurity) []Instruction {
	outputPolicy := "accept"
	if adv.EgressProfile == rules.EgressServer {
		outputPolicy = "drop"
	}

	prio := chainPriority
	chains := []struct{ name, policy string }{
		{"input", "drop"},
		{"forward", "drop"},
		{"output", outputPolicy},
	}

	out := make([]Instruction, 0, len(chains))
	for _, c := range chains {
		out = append(out, Instruction{Add: &Object{Chain: &ChainSpec{
			Family: "inet",
			Table:  table,
			Name:   c.name,
			Type:   "filter",
			Hook:   c.name,
			Prio:   &prio,
			Policy: c.policy,
		}}})
	}
	return out
}

func inputRule(table string, comment string, expr []Expr) Instruction {
	return Instruction{Add: &Object{Rule: &RuleSpec{
		Family:  "inet",
		Table:   table,
		Chain:   "input",
		Expr:    expr,
		Comment: comment,
	}}}
}

func matchMeta(key, op string, right any) Expr {
	return Expr{Match: &MatchExpr{Left: Operand{Meta: &MetaExpr{Key: key}}, Op: op, Right: right}}
}

func matchPayload(protocol, field, op string, right any) Expr {
	return Expr{Match: &MatchExpr{Left: Operand{Payload: &PayloadExpr{Protocol: protocol, Field: field}}, Op: op, Right: right}}
}

func matchCt(key, op string, right any) Expr {
	return Expr{Match: &MatchExpr{Left: Operand{Ct: &CtExpr{Key: key}}, Op: op, Right: right}}
}

// Base rule ordering matters:
// RPF first so every packet is checked, then loopback (hottest path),
// invalid drop before conntrack accept, redirect blocking, then ICMP.
func baseRules(table string, adv *rules.AdvancedSecurity) []Instruction {
	var out []Instruction

	if adv.EnableRPF {
		out = append(out, inputRule(table,
			"drop packets with spoofed source addresses (RPF)",
			[]Expr{
				{Match: &MatchExpr{
					Left: Operand{Fib: &FibExpr{Flags: []string{"saddr", "iif"}, Result: "oif"}},
					Op:   "==",
					Right: false,
				}},
				{Drop: &Null{}},
			}))
	}

	out = append(out,
		inputRule(table, "allow from loopback", []Expr{
			matchMeta("iifname", "==", "lo"),
			{Accept: &Null{}},
		}),
		inputRule(table, "early drop of invalid connections", []Expr{
			matchCt("state", "==", []string{"invalid"}),
			{Drop: &Null{}},
		}),
		inputRule(table, "allow tracked connections", []Expr{
			matchCt("state", "in", []string{"established", "related"}),
			{Accept: &Null{}},
		}),
		inputRule(table, "drop icmp redirects", []Expr{
			matchMeta("l4proto", "==", "icmp"),
			matchPayload("icmp", "type", "==", "redirect"),
			{Drop: &Null{}},
		}),
		inputRule(table, "drop icmpv6 redirects", []Expr{
			matchMeta("l4proto", "==", "ipv6-icmp"),
			matchPayload("icmpv6", "type", "==", "nd-redirect"),
			{Drop: &Null{}},
		}),
	)

	return append(out, icmpRules(table, adv)...)
}

// strictICMPv4Types are the essential IPv4 ICMP types: ping replies,
// path MTU discovery, inbound ping, traceroute.
var strictICMPv4Types = []string{
	"echo-reply", "destination-unreachable", "echo-request", "time-exceeded",
}

// strictICMPv6Types additionally include the neighbor-discovery types
// IPv6 cannot function without.
var strictICMPv6Types = []string{
	"destination-unreachable", "packet-too-big", "time-exceeded",
	"echo-request", "echo-reply", "nd-neighbor-solicit", "nd-neighbor-advert",
}

func icmpRules(table string, adv *rules.AdvancedSecurity) []Instruction {
	rateLimit := func() Expr {
		return Expr{Limit: &LimitExpr{Rate: adv.ICMPRateLimit, Per: "second"}}
	}

	if adv.StrictICMP {
		v4 := []Expr{
			matchMeta("l4proto", "==", "icmp"),
			matchPayload("icmp", "type", "in", strictICMPv4Types),
		}
		v6 := []Expr{
			matchMeta("l4proto", "==", "ipv6-icmp"),
			matchPayload("icmpv6", "type", "in", strictICMPv6Types),
		}
		// Rate limit sits between the type match and the verdict.
		if adv.ICMPRateLimit > 0 {
			v4 = append(v4, rateLimit())
			v6 = append(v6, rateLimit())
		}
		v4 = append(v4, Expr{Accept: &Null{}})
		v6 = append(v6, Expr{Accept: &Null{}})
		return []Instruction{
			inputRule(table, "allow essential icmp (strict mode)", v4),
			inputRule(table, "allow essential icmpv6 (strict mode)", v6),
		}
	}

	v4 := []Expr{matchMeta("l4proto", "==", "icmp")}
	v6 := []Expr{matchMeta("l4proto", "==", "ipv6-icmp")}
	if adv.ICMPRateLimit > 0 {
		v4 = append(v4, rateLimit())
		v6 = append(v6, rateLimit())
	}
	v4 = append(v4, Expr{Accept: &Null{}})
	v6 = append(v6, Expr{Accept: &Null{}})
	return []Instruction{
		inputRule(table, "allow icmp", v4),
		inputRule(table, "allow icmp v6", v6),
	}
}

func terminationRules(table string, adv *rules.AdvancedSecurity) []Instruction {
	var out []Instruction

	if adv.LogDropped {
		out = append(out, inputRule(table, "log dropped packets (rate limited)", []Expr{
			{Limit: &LimitExpr{Rate: adv.LogRatePerMinute, Per: "minute"}},
			{Log: &LogExpr{Prefix: adv.LogPrefix, Level: "info"}},
		}))
	}

	// Rate-limited reject blunts port scans without burning cycles.
	out = append(out, inputRule(table, "", []Expr{
		matchMeta("pkttype", "==", "host"),
		{Limit: &LimitExpr{Rate: 5, Per: "second"}},
		{Counter: &Null{}},
		{Reject: &RejectExpr{Type: "icmpx", Expr: "admin-prohibited"}},
	}))

	// Final counter catches the drops from the chain policy.
	out = append(out, inputRule(table, "", []Expr{{Counter: &Null{}}}))

	return out
}

// subProtocols expands composite protocols into the single-protocol
// sub-rules the wire format needs.
func subProtocols(p rules.Protocol) []rules.Protocol {
	switch p {
	case rules.ProtocolTCPUDP:
		return []rules.Protocol{rules.ProtocolTCP, rules.ProtocolUDP}
	case rules.ProtocolICMPBoth:
		return []rules.Protocol{rules.ProtocolICMP, rules.ProtocolICMPv6}
	}
	return []rules.Protocol{p}
}

type family int

const (
	familyNone family = iota // no address constraint, no split needed
	familyV4
	familyV6
)

func splitByFamily(nets []string) (v4, v6 []string) {
	for _, n := range nets {
		if strings.Contains(n, ":") {
			v6 = append(v6, n)
		} else {
			v4 = append(v4, n)
		}
	}
	return v4, v6
}

// subFamilies decides which address families a sub-rule fans out to.
// A family is emitted only when every address constraint on the rule
// can be satisfied within it.
func subFamilies(proto rules.Protocol, sources, dests []string) []family {
	s4, s6 := splitByFamily(sources)
	d4, d6 := splitByFamily(dests)

	ok := func(f family) bool {
		if rules.ProtocolRequiresIPv4(proto) && f == familyV6 {
			return false
		}
		if rules.ProtocolRequiresIPv6(proto) && f == familyV4 {
			return false
		}
		if f == familyV4 {
			return (len(sources) == 0 || len(s4) > 0) && (len(dests) == 0 || len(d4) > 0)
		}
		return (len(sources) == 0 || len(s6) > 0) && (len(dests) == 0 || len(d6) > 0)
	}

	if len(sources) == 0 && len(dests) == 0 {
		// No addresses: the l4proto match already pins the family for
		// ICMP variants, so a single unsplit sub-rule suffices.
		return []family{familyNone}
	}

	var fams []family
	if ok(familyV4) {
		fams = append(fams, familyV4)
	}
	if ok(familyV6) {
		fams = append(fams, familyV6)
	}
	return fams
}

func addrValue(nets []string) any {
	if len(nets) == 1 {
		return nets[0]
	}
	set := make([]any, len(nets))
	for i, n := range nets {
		set[i] = n
	}
	return SetVal{Set: set}
}

func portValue(ports []rules.PortEntry) any {
	if len(ports) == 1 {
		p := ports[0]
		if p.IsRange() {
			return RangeVal{Range: [2]uint16{p.Start, p.End}}
		}
		return p.Start
	}
	set := make([]any, len(ports))
	for i, p := range ports {
		if p.IsRange() {
			set[i] = RangeVal{Range: [2]uint16{p.Start, p.End}}
		} else {
			set[i] = p.Start
		}
	}
	return SetVal{Set: set}
}

// userRule translates one enabled rule into its wire instructions,
// fanning out composite protocols and mixed address families.
func userRule(table string, r *rules.Rule) []Instruction {
	var out []Instruction
	for _, proto := range subProtocols(r.Protocol) {
		for _, fam := range subFamilies(proto, r.Sources, r.Destinations) {
			out = append(out, Instruction{Add: &Object{Rule: &RuleSpec{
				Family:  "inet",
				Table:   table,
				Chain:   string(r.Chain),
				Expr:    userRuleExpr(r, proto, fam),
				Comment: r.Label,
			}}})
		}
	}
	return out
}

func userRuleExpr(r *rules.Rule, proto rules.Protocol, fam family) []Expr {
	expr := make([]Expr, 0, 8)

	switch proto {
	case rules.ProtocolAny:
	case rules.ProtocolTCP, rules.ProtocolUDP:
		expr = append(expr, matchMeta("l4proto", "==", string(proto)))
	case rules.ProtocolICMP:
		expr = append(expr, matchMeta("l4proto", "==", "icmp"))
	case rules.ProtocolICMPv6:
		expr = append(expr, matchMeta("l4proto", "==", "ipv6-icmp"))
	}

	ipProto := "ip"
	if fam == familyV6 {
		ipProto = "ip6"
	}

	if fam != familyNone {
		s4, s6 := splitByFamily(r.Sources)
		d4, d6 := splitByFamily(r.Destinations)
		srcs, dsts := s4, d4
		if fam == familyV6 {
			srcs, dsts = s6, d6
		}
		if len(srcs) > 0 {
			op := "=="
			if len(srcs) > 1 {
				op = "in"
			}
			expr = append(expr, matchPayload(ipProto, "saddr", op, addrValue(srcs)))
		}
		if len(dsts) > 0 {
			op := "=="
			if len(dsts) > 1 {
				op = "in"
			}
			expr = append(expr, matchPayload(ipProto, "daddr", op, addrValue(dsts)))
		}
	}

	if rules.ChainUsesInputInterface(r.Chain) && r.Interface != "" {
		expr = append(expr, matchMeta("iifname", "==", r.Interface))
	}
	if rules.ChainUsesOutputInterface(r.Chain) && r.OutputInterface != "" {
		expr = append(expr, matchMeta("oifname", "==", r.OutputInterface))
	}

	// ICMP-family rules never match ports, whatever the model says.
	if len(r.Ports) > 0 && (proto == rules.ProtocolTCP || proto == rules.ProtocolUDP) {
		op := "=="
		if len(r.Ports) > 1 {
			op = "in"
		}
		expr = append(expr, matchPayload(string(proto), "dport", op, portValue(r.Ports)))
	}

	if r.RateLimit != nil && r.RateLimit.Count > 0 {
		l := &LimitExpr{Rate: r.RateLimit.Count, Per: string(r.RateLimit.Unit)}
		if r.RateLimit.Burst != nil {
			l.Burst = *r.RateLimit.Burst
		}
		expr = append(expr, Expr{Limit: l})
	}

	if r.ConnectionLimit > 0 {
		expr = append(expr, Expr{CtCount: &CtCount{Val: r.ConnectionLimit}})
	}

	if r.LogEnabled {
		expr = append(expr, Expr{Log: &LogExpr{Prefix: r.LogPrefix, Level: "info"}})
	}

	return append(expr, verdictExpr(r, proto))
}

func verdictExpr(r *rules.Rule, proto rules.Protocol) Expr {
	switch r.Action {
	case rules.ActionDrop:
		return Expr{Drop: &Null{}}
	case rules.ActionReject:
		rt := r.RejectType
		// tcp-reset needs a TCP header; composite protocols fan out, so
		// only the tcp sub-rule may carry it.
		if rt == rules.RejectTCPReset && proto != rules.ProtocolTCP {
			rt = rules.RejectDefault
		}
		switch rt {
		case rules.RejectTCPReset:
			return Expr{Reject: &RejectExpr{Type: "tcp reset"}}
		case rules.RejectPortUnreachable:
			return Expr{Reject: &RejectExpr{Type: "icmpx", Expr: "port-unreachable"}}
		case rules.RejectHostUnreachable:
			return Expr{Reject: &RejectExpr{Type: "icmpx", Expr: "host-unreachable"}}
		case rules.RejectAdminProhibited:
			return Expr{Reject: &RejectExpr{Type: "icmpx", Expr: "admin-prohibited"}}
		default:
			return Expr{Reject: &RejectExpr{}}
		}
	default:
		return Expr{Accept: &Null{}}
	}
}
