package stress

import (
	"fmt"
	"strings"
	"time"

	"grimm.is/warden/internal/rules"
	"grimm.is/warden/internal/validation"
)

// edgeCaseRule builds a rule that pushes a boundary somewhere: label
// length, port limits, any-address CIDRs, wildcard interfaces, or a
// deliberate interface/chain mismatch.
func (g *Generator) edgeCaseRule(index int) *rules.Rule {
	p := g.randomProtocol()
	a := g.randomAction()
	ch := g.randomChain()

	r := &rules.Rule{
		ID:         g.ruleID(),
		Label:      g.edgeCaseLabel(index),
		Protocol:   p,
		Chain:      ch,
		Action:     a,
		RejectType: rules.RejectDefault,
		Enabled:    g.chance(0.85),
		CreatedAt:  g.edgeCaseTimestamp(),
	}
	if a == rules.ActionReject {
		r.RejectType = g.randomRejectType(p)
	}

	// Sometimes put the interface on the wrong side for the chain. The
	// codec ignores the mismatched side; the importer notes it.
	mismatch := g.chance(0.3)
	iface := g.edgeCaseInterface()
	if rules.ChainUsesInputInterface(ch) != mismatch {
		r.Interface = iface
	} else {
		r.OutputInterface = iface
	}

	if !rules.ProtocolSupportsPorts(p) {
		// Ports on an ICMP rule: stripped at encode time, kept on disk.
		if g.chance(0.3) {
			r.Ports = []rules.PortEntry{rules.SinglePort(22)}
		}
	} else {
		r.Ports = g.edgeCasePorts()
	}

	if g.chance(0.5) {
		r.Sources = g.edgeCaseAddrs(p)
	} else {
		r.Sources = g.randomAddrs(p, 0.4, 4)
	}
	if g.chance(0.4) {
		r.Destinations = g.edgeCaseAddrs(p)
	} else {
		r.Destinations = g.randomAddrs(p, 0.6, 3)
	}

	r.RateLimit = g.edgeCaseRateLimit()
	r.ConnectionLimit = g.edgeCaseConnectionLimit()
	r.LogEnabled = g.chance(0.3)
	r.Tags = g.edgeCaseTags()
	r.RebuildCaches()
	return r
}

// edgeCaseLabel stays within the sanitizer's character class (ASCII
// alphanumeric, space, dash, underscore, dot, colon) while probing
// length boundaries and separator styles.
func (g *Generator) edgeCaseLabel(index int) string {
	atMax := func(fill string) string {
		base := fmt.Sprintf("-%d", index)
		return strings.Repeat(fill, validation.MaxLabelLen-len(base)) + base
	}
	nearMax := func(fill string) string {
		base := fmt.Sprintf("-%d", index)
		return strings.Repeat(fill, validation.MaxLabelLen-1-len(base)) + base
	}
	labels := []string{
		fmt.Sprintf("Bug %03d - Critical", index),
		fmt.Sprintf("Issue-%d-%d-%d", index, index+1, index+2),
		fmt.Sprintf("Path.to.rule.%d", index),
		fmt.Sprintf("Path_to_rule_%d", index),
		fmt.Sprintf("Unicode-Rule-%d", index),
		fmt.Sprintf("Intl-Rule-%d", index),
		atMax("A"),
		nearMax("B"),
		fmt.Sprintf("Service:Port:%d", index),
		fmt.Sprintf("Spaced  Rule  %d", index),
		fmt.Sprintf("R%d", index),
		fmt.Sprintf("MixedCase-RULE-%d", index),
		fmt.Sprintf("rule.v2-beta_%d", index),
	}
	return labels[g.rng.Intn(len(labels))]
}

func (g *Generator) edgeCasePorts() []rules.PortEntry {
	cases := [][]rules.PortEntry{
		{rules.SinglePort(1)},
		{rules.SinglePort(65535)},
		{rules.PortRange(1, 65535)},
		{rules.SinglePort(22), rules.SinglePort(80), rules.SinglePort(443),
			rules.SinglePort(8080), rules.SinglePort(8443)},
		{rules.SinglePort(22), rules.PortRange(80, 90), rules.SinglePort(443)},
		{rules.PortRange(80, 80)},
		{rules.SinglePort(80), rules.SinglePort(80), rules.SinglePort(443)},
		{rules.PortRange(80, 100), rules.PortRange(90, 110)},
		{rules.PortRange(80, 89), rules.PortRange(90, 99)},
	}
	return cases[g.rng.Intn(len(cases))]
}

// edgeCaseAddrs covers any-address, single-host, link-local, and
// loopback CIDRs, honouring the protocol's address family.
func (g *Generator) edgeCaseAddrs(p rules.Protocol) []string {
	v4 := [][]string{
		{"0.0.0.0/0"},
		{"192.168.1.1/32"},
		{"169.254.0.0/16"},
		{"127.0.0.0/8"},
		{"10.0.0.0/8", "192.168.1.0/24"},
	}
	v6 := [][]string{
		{"::/0"},
		{"2001:db8::1/128"},
		{"fe80::/10"},
		{"::1/128"},
	}
	mixed := [][]string{
		{"0.0.0.0/0"},
		{"::/0"},
		{"192.168.1.1/32"},
		{"2001:db8::1/128"},
		{"0.0.0.0/0", "192.168.1.0/24"},
	}
	switch {
	case rules.ProtocolRequiresIPv4(p):
		return v4[g.rng.Intn(len(v4))]
	case rules.ProtocolRequiresIPv6(p):
		return v6[g.rng.Intn(len(v6))]
	default:
		return mixed[g.rng.Intn(len(mixed))]
	}
}

func (g *Generator) edgeCaseInterface() string {
	cases := []string{
		"eth0",
		"lo",
		interfaceWildcards[g.rng.Intn(len(interfaceWildcards))],
		"abcdefghijklmno", // IFNAMSIZ-1
		"",
	}
	return cases[g.rng.Intn(len(cases))]
}

func (g *Generator) edgeCaseTags() []string {
	switch g.rng.Intn(5) {
	case 0:
		return nil
	case 1:
		tags := make([]string, 12)
		for i := range tags {
			tags[i] = fmt.Sprintf("tag%d", i)
		}
		return tags
	case 2:
		return []string{"tag-with-dash", "tag_underscore", "tag.dot"}
	case 3:
		return []string{"a", "b", "c"}
	default:
		return []string{strings.Repeat("a", validation.MaxLabelLen)}
	}
}

func (g *Generator) edgeCaseRateLimit() *rules.RateLimit {
	burst1000 := uint32(1000)
	cases := []*rules.RateLimit{
		{Count: 10_000, Unit: rules.UnitSecond},  // per-second ceiling
		{Count: 1, Unit: rules.UnitDay},
		{Count: 10, Unit: rules.UnitMinute, Burst: &burst1000},
		{Count: 100_000, Unit: rules.UnitMinute}, // per-minute ceiling
		nil,
	}
	c := cases[g.rng.Intn(len(cases))]
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}

func (g *Generator) edgeCaseConnectionLimit() uint32 {
	cases := []uint32{0, 1, 100, validation.MaxConnectionLimit}
	return cases[g.rng.Intn(len(cases))]
}

func (g *Generator) edgeCaseTimestamp() time.Time {
	cases := []time.Time{
		time.Unix(0, 0).UTC(),
		time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC),
		g.now(),
	}
	return cases[g.rng.Intn(len(cases))]
}
