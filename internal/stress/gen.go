// Package stress generates large synthetic profiles that exercise every
// rule variant, boundary values, and the semantic mismatches a careless
// hand-edited profile can contain. Generation is deterministic for a
// given seed so failing profiles can be reproduced from a bug report.
package stress

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"grimm.is/warden/internal/brand"
	"grimm.is/warden/internal/rules"
)

// MinCoverageCount is the fewest rules that can still cover every enum
// variant (7 protocols + 3 actions + 5 reject types, worst case).
const MinCoverageCount = 15

var interfaceNames = []string{
	"eth0", "eth1", "enp3s0", "wlan0", "docker0", "br0", "lo", "tun0", "wg0", "veth0",
}

var interfaceWildcards = []string{"eth*", "docker*", "veth*", "enp*", "wlan*"}

var serviceNames = []string{
	"SSH", "HTTP", "HTTPS", "DNS", "SMTP", "MySQL", "PostgreSQL", "Redis",
	"MongoDB", "Docker", "Kubernetes", "Prometheus", "Grafana", "Nginx",
	"Apache", "Git", "NFS", "SMB", "VNC", "RDP",
}

var tagNames = []string{
	"production", "staging", "development", "critical", "monitoring",
	"database", "web", "api", "internal", "external", "legacy",
	"temporary", "security", "backup", "logging",
}

var commonPorts = []uint16{
	22, 80, 443, 8080, 8443, 3000, 3306, 5432, 6379, 27017,
	9090, 9100, 25, 587, 993, 143, 53, 123, 1194, 51820,
}

// Generator produces synthetic rulesets from a seeded source. Rule IDs
// are drawn from the same source, so two generators with the same seed
// emit byte-identical profiles apart from timestamps.
type Generator struct {
	rng *rand.Rand
	now func() time.Time
}

// NewGenerator seeds a generator. The zero seed is valid and as
// deterministic as any other.
func NewGenerator(seed int64) *Generator {
	return &Generator{
		rng: rand.New(rand.NewSource(seed)),
		now: func() time.Time { return time.Now().UTC() },
	}
}

// SetNow overrides the timestamp source, for reproducible output.
func (g *Generator) SetNow(now func() time.Time) {
	g.now = now
}

// Generate builds count rules in two phases: a coverage phase that
// forces every protocol, action, chain, reject type, and rate-limit
// unit to appear at least once, then a random phase that fills the rest
// (mixing in edge cases at edgeCaseProb when enabled).
func (g *Generator) Generate(count int, edgeCases bool, edgeCaseProb float64) (*rules.FirewallRuleset, *Coverage) {
	rs := rules.NewRuleset()
	cov := newCoverage()
	idx := 0

	add := func(r *rules.Rule, edge bool) {
		cov.record(r, edge)
		rs.Rules = append(rs.Rules, *r)
		idx++
	}

	for _, p := range rules.Protocols {
		if idx >= count {
			break
		}
		add(g.coverageRule(idx+1, p, g.randomAction(), g.randomChain(), "", ""), false)
	}

	for _, a := range rules.Actions {
		if idx >= count {
			break
		}
		if cov.Actions[a] > 0 {
			continue
		}
		p := g.randomProtocol()
		if a == rules.ActionReject {
			p = rules.ProtocolTCP
		}
		add(g.coverageRule(idx+1, p, a, g.randomChain(), "", ""), false)
	}

	for _, ch := range rules.Chains {
		if idx >= count {
			break
		}
		if cov.Chains[ch] > 0 {
			continue
		}
		add(g.coverageRule(idx+1, g.randomProtocol(), g.randomAction(), ch, "", ""), false)
	}

	// TCP for every reject type; tcp-reset requires it.
	for _, rt := range rules.RejectTypes {
		if idx >= count {
			break
		}
		add(g.coverageRule(idx+1, rules.ProtocolTCP, rules.ActionReject, g.randomChain(), rt, ""), false)
	}

	for _, u := range rules.TimeUnits {
		if idx >= count {
			break
		}
		add(g.coverageRule(idx+1, g.randomProtocol(), g.randomAction(), g.randomChain(), "", u), false)
	}

	varyTimestamps := edgeCases
	for idx < count {
		if edgeCases && g.chance(edgeCaseProb) {
			add(g.edgeCaseRule(idx+1), true)
		} else {
			add(g.randomRule(idx+1, varyTimestamps), false)
		}
	}

	rs.AdvancedSecurity = g.randomAdvancedSecurity()
	rs.RebuildCaches()
	return rs, cov
}

func (g *Generator) randomAdvancedSecurity() rules.AdvancedSecurity {
	a := rules.DefaultAdvancedSecurity()
	a.StrictICMP = g.chance(0.3)
	if g.chance(0.4) {
		a.ICMPRateLimit = uint32(g.intRange(1, 50))
	}
	a.EnableRPF = g.chance(0.2)
	a.LogDropped = g.chance(0.3)
	a.LogRatePerMinute = uint32(g.intRange(1, 20))
	a.LogPrefix = brand.DropLogPrefix
	if g.chance(0.7) {
		a.EgressProfile = rules.EgressDesktop
	} else {
		a.EgressProfile = rules.EgressServer
	}
	return a
}

// coverageRule forces the given variants; empty rejectType/timeUnit
// fall back to the usual random draw.
func (g *Generator) coverageRule(index int, p rules.Protocol, a rules.Action, ch rules.Chain, rt rules.RejectType, unit rules.TimeUnit) *rules.Rule {
	r := g.baseRule(index, p, a, ch)
	if rt != "" {
		r.RejectType = rt
	} else if a == rules.ActionReject {
		r.RejectType = g.randomRejectType(p)
	}
	if unit != "" {
		r.RateLimit = g.forcedRateLimit(unit)
	} else {
		r.RateLimit = g.randomRateLimit()
	}
	r.RebuildCaches()
	return r
}

func (g *Generator) randomRule(index int, varyTimestamp bool) *rules.Rule {
	p := g.randomProtocol()
	r := g.baseRule(index, p, g.randomAction(), g.randomChain())
	if r.Action == rules.ActionReject {
		r.RejectType = g.randomRejectType(p)
	}
	r.RateLimit = g.randomRateLimit()
	if varyTimestamp {
		r.CreatedAt = g.randomTimestamp()
	}
	r.RebuildCaches()
	return r
}

// baseRule fills the fields every generated rule shares: label, ports,
// addresses, interface matched to the chain side, limits, tags.
func (g *Generator) baseRule(index int, p rules.Protocol, a rules.Action, ch rules.Chain) *rules.Rule {
	r := &rules.Rule{
		ID:         g.ruleID(),
		Label:      g.randomLabel(index),
		Protocol:   p,
		Chain:      ch,
		Action:     a,
		RejectType: rules.RejectDefault,
		Enabled:    g.chance(0.95),
		CreatedAt:  g.now(),
	}
	if rules.ChainUsesInputInterface(ch) {
		r.Interface = g.randomInterface()
	} else {
		r.OutputInterface = g.randomInterface()
	}
	r.Ports = g.randomPorts(p)
	r.Sources = g.randomAddrs(p, 0.4, 4)
	r.Destinations = g.randomAddrs(p, 0.6, 3)
	r.ConnectionLimit = g.randomConnectionLimit()
	r.LogEnabled = g.chance(0.1)
	r.Tags = g.randomTags()
	return r
}

func (g *Generator) ruleID() string {
	// Drawn from the seeded source so profiles reproduce exactly.
	id, err := uuid.NewRandomFromReader(g.rng)
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func (g *Generator) randomProtocol() rules.Protocol {
	return rules.Protocols[g.rng.Intn(len(rules.Protocols))]
}

// randomAction weights towards accept, matching real rulesets.
func (g *Generator) randomAction() rules.Action {
	switch n := g.rng.Intn(100); {
	case n < 60:
		return rules.ActionAccept
	case n < 85:
		return rules.ActionDrop
	default:
		return rules.ActionReject
	}
}

func (g *Generator) randomChain() rules.Chain {
	if g.chance(0.7) {
		return rules.ChainInput
	}
	return rules.ChainOutput
}

func (g *Generator) randomRejectType(p rules.Protocol) rules.RejectType {
	valid := rules.AvailableRejectTypes(p)
	return valid[g.rng.Intn(len(valid))]
}

func (g *Generator) randomPorts(p rules.Protocol) []rules.PortEntry {
	if !rules.ProtocolSupportsPorts(p) {
		return nil
	}
	if g.chance(0.15) {
		return nil // all ports
	}
	count := g.intRange(1, 3)
	ports := make([]rules.PortEntry, 0, count)
	for i := 0; i < count; i++ {
		if g.chance(0.8) {
			var port uint16
			if g.chance(0.7) {
				port = commonPorts[g.rng.Intn(len(commonPorts))]
			} else {
				port = uint16(g.intRange(1, 65535))
			}
			ports = append(ports, rules.SinglePort(port))
		} else {
			start := g.intRange(1, 65000)
			end := g.intRange(start, 65535)
			ports = append(ports, rules.PortRange(uint16(start), uint16(end)))
		}
	}
	return ports
}

func (g *Generator) randomIPv4() string {
	prefixes := []int{8, 16, 24, 32}
	return fmt.Sprintf("%d.%d.%d.%d/%d",
		g.intRange(1, 223), g.rng.Intn(256), g.rng.Intn(256), g.intRange(1, 254),
		prefixes[g.rng.Intn(len(prefixes))])
}

func (g *Generator) randomIPv6() string {
	bases := []string{"2001:db8::", "fd00::", "fe80::", "2607:f8b0::"}
	lens := []int{48, 64, 128}
	return fmt.Sprintf("%s%x/%d",
		bases[g.rng.Intn(len(bases))], g.rng.Intn(65536), lens[g.rng.Intn(len(lens))])
}

// randomAddrs picks CIDRs whose family honours the protocol constraint
// (icmp forces v4, icmpv6 forces v6). skipProb is the chance of no
// filter at all.
func (g *Generator) randomAddrs(p rules.Protocol, skipProb float64, maxCount int) []string {
	if g.chance(skipProb) {
		return nil
	}
	count := g.intRange(1, maxCount)
	addrs := make([]string, 0, count)
	for i := 0; i < count; i++ {
		switch {
		case rules.ProtocolRequiresIPv4(p):
			addrs = append(addrs, g.randomIPv4())
		case rules.ProtocolRequiresIPv6(p):
			addrs = append(addrs, g.randomIPv6())
		case g.chance(0.7):
			addrs = append(addrs, g.randomIPv4())
		default:
			addrs = append(addrs, g.randomIPv6())
		}
	}
	return addrs
}

func (g *Generator) randomInterface() string {
	if g.chance(0.7) {
		return ""
	}
	return interfaceNames[g.rng.Intn(len(interfaceNames))]
}

func (g *Generator) randomRateLimit() *rules.RateLimit {
	if g.chance(0.75) {
		return nil
	}
	return g.forcedRateLimit(rules.TimeUnits[g.rng.Intn(len(rules.TimeUnits))])
}

// forcedRateLimit always produces a limit, with typical counts well
// below the validator maximums for the unit.
func (g *Generator) forcedRateLimit(unit rules.TimeUnit) *rules.RateLimit {
	var count int
	switch unit {
	case rules.UnitSecond:
		count = g.intRange(1, 100)
	case rules.UnitMinute:
		count = g.intRange(1, 1000)
	case rules.UnitHour:
		count = g.intRange(1, 5000)
	default:
		count = g.intRange(1, 10000)
	}
	rl := &rules.RateLimit{Count: uint32(count), Unit: unit}
	if g.chance(0.5) {
		burst := uint32(g.intRange(count, count*3))
		rl.Burst = &burst
	}
	return rl
}

func (g *Generator) randomConnectionLimit() uint32 {
	if g.chance(0.8) {
		return 0
	}
	return uint32(g.intRange(1, 100))
}

func (g *Generator) randomTags() []string {
	if g.chance(0.5) {
		return nil
	}
	count := g.intRange(1, 3)
	perm := g.rng.Perm(len(tagNames))
	tags := make([]string, 0, count)
	for _, i := range perm[:count] {
		tags = append(tags, tagNames[i])
	}
	return tags
}

func (g *Generator) randomLabel(index int) string {
	suffixes := []string{"Rule", "Access", "Allow", "Block", "Filter"}
	return fmt.Sprintf("%s %s #%d",
		serviceNames[g.rng.Intn(len(serviceNames))],
		suffixes[g.rng.Intn(len(suffixes))], index)
}

// randomTimestamp is anywhere in the past year.
func (g *Generator) randomTimestamp() time.Time {
	now := g.now()
	yearAgo := now.Add(-365 * 24 * time.Hour)
	span := now.Unix() - yearAgo.Unix()
	return time.Unix(yearAgo.Unix()+g.rng.Int63n(span+1), 0).UTC()
}

func (g *Generator) chance(p float64) bool {
	if p <= 0 {
		return false
	}
	if p >= 1 {
		return true
	}
	return g.rng.Float64() < p
}

// intRange returns a uniform int in [lo, hi].
func (g *Generator) intRange(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + g.rng.Intn(hi-lo+1)
}
