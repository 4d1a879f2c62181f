package nftgen

import (
	"encoding/json"
	"sort"

	"grimm.is/warden/internal/errors"
	"grimm.is/warden/internal/rules"
)

// Decode parses a wire document produced by EncodeWire (or by the
// kernel helper's list output).
func Decode(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, errors.KindCodec, "parsing nftables document")
	}
	return &doc, nil
}

// baseComments identifies the generated base and logging rules so the
// decoder can separate them from user rules.
var baseComments = map[string]bool{
	"drop packets with spoofed source addresses (RPF)": true,
	"allow from loopback":                              true,
	"early drop of invalid connections":                true,
	"allow tracked connections":                        true,
	"drop icmp redirects":                              true,
	"drop icmpv6 redirects":                            true,
	"allow essential icmp (strict mode)":               true,
	"allow essential icmpv6 (strict mode)":             true,
	"allow icmp":                                       true,
	"allow icmp v6":                                    true,
	"log dropped packets (rate limited)":               true,
}

// DecodedRule is the semantic content of one or more wire sub-rules
// that originated from a single user rule.
type DecodedRule struct {
	Chain           rules.Chain
	Label           string
	Protocol        rules.Protocol
	Sources         []string
	Destinations    []string
	Interface       string
	OutputInterface string
	Ports           []rules.PortEntry
	RateLimit       *rules.RateLimit
	ConnectionLimit uint32
	LogPrefix       string
	Action          rules.Action
	RejectType      rules.RejectType
}

// UserRules extracts the user-defined rules from a wire document,
// re-merging the protocol and address-family fan-out. Base rules and
// termination rules are skipped. Identity, tags, and enabled state do
// not survive the wire; comparisons are semantic.
func UserRules(doc *Document) ([]DecodedRule, error) {
	var parts []DecodedRule
	for _, in := range doc.Nftables {
		if in.Add == nil || in.Add.Rule == nil {
			continue
		}
		r := in.Add.Rule
		if r.Comment == "" || baseComments[r.Comment] {
			continue
		}
		dr, err := decodeRule(r)
		if err != nil {
			return nil, err
		}
		parts = append(parts, dr)
	}
	return mergeSubRules(parts), nil
}

func decodeRule(r *RuleSpec) (DecodedRule, error) {
	dr := DecodedRule{
		Chain:      rules.Chain(r.Chain),
		Label:      r.Comment,
		Protocol:   rules.ProtocolAny,
		Action:     rules.ActionAccept,
		RejectType: rules.RejectDefault,
	}

	for _, e := range r.Expr {
		switch {
		case e.Match != nil:
			if err := decodeMatch(&dr, e.Match); err != nil {
				return dr, err
			}
		case e.Limit != nil:
			dr.RateLimit = &rules.RateLimit{Count: e.Limit.Rate, Unit: rules.TimeUnit(e.Limit.Per)}
			if e.Limit.Burst > 0 {
				b := e.Limit.Burst
				dr.RateLimit.Burst = &b
			}
		case e.CtCount != nil:
			dr.ConnectionLimit = e.CtCount.Val
		case e.Log != nil:
			dr.LogPrefix = e.Log.Prefix
		case e.Accept != nil:
			dr.Action = rules.ActionAccept
		case e.Drop != nil:
			dr.Action = rules.ActionDrop
		case e.Reject != nil:
			dr.Action = rules.ActionReject
			dr.RejectType = decodeRejectType(e.Reject)
		}
	}
	return dr, nil
}

func decodeRejectType(re *RejectExpr) rules.RejectType {
	switch {
	case re.Type == "tcp reset":
		return rules.RejectTCPReset
	case re.Type == "icmpx" && re.Expr == "port-unreachable":
		return rules.RejectPortUnreachable
	case re.Type == "icmpx" && re.Expr == "host-unreachable":
		return rules.RejectHostUnreachable
	case re.Type == "icmpx" && re.Expr == "admin-prohibited":
		return rules.RejectAdminProhibited
	}
	return rules.RejectDefault
}

func decodeMatch(dr *DecodedRule, m *MatchExpr) error {
	switch {
	case m.Left.Meta != nil:
		switch m.Left.Meta.Key {
		case "l4proto":
			s, _ := m.Right.(string)
			switch s {
			case "tcp":
				dr.Protocol = rules.ProtocolTCP
			case "udp":
				dr.Protocol = rules.ProtocolUDP
			case "icmp":
				dr.Protocol = rules.ProtocolICMP
			case "ipv6-icmp":
				dr.Protocol = rules.ProtocolICMPv6
			default:
				return errors.Errorf(errors.KindCodec, "unknown l4proto %v", m.Right)
			}
		case "iifname":
			dr.Interface, _ = m.Right.(string)
		case "oifname":
			dr.OutputInterface, _ = m.Right.(string)
		}
	case m.Left.Payload != nil:
		switch m.Left.Payload.Field {
		case "saddr":
			dr.Sources = append(dr.Sources, decodeAddrs(m.Right)...)
		case "daddr":
			dr.Destinations = append(dr.Destinations, decodeAddrs(m.Right)...)
		case "dport":
			ports, err := decodePorts(m.Right)
			if err != nil {
				return err
			}
			dr.Ports = ports
		}
	}
	return nil
}

func decodeAddrs(v any) []string {
	switch t := v.(type) {
	case string:
		return []string{t}
	case map[string]any:
		if set, ok := t["set"].([]any); ok {
			out := make([]string, 0, len(set))
			for _, e := range set {
				if s, ok := e.(string); ok {
					out = append(out, s)
				}
			}
			return out
		}
	}
	return nil
}

func decodePorts(v any) ([]rules.PortEntry, error) {
	one := func(e any) (rules.PortEntry, error) {
		switch t := e.(type) {
		case float64:
			return rules.SinglePort(uint16(t)), nil
		case map[string]any:
			if rng, ok := t["range"].([]any); ok && len(rng) == 2 {
				a, aok := rng[0].(float64)
				b, bok := rng[1].(float64)
				if aok && bok {
					return rules.PortRange(uint16(a), uint16(b)), nil
				}
			}
		}
		return rules.PortEntry{}, errors.Errorf(errors.KindCodec, "unparseable port operand %v", e)
	}

	if set, ok := v.(map[string]any); ok {
		if elems, ok := set["set"].([]any); ok {
			out := make([]rules.PortEntry, 0, len(elems))
			for _, e := range elems {
				p, err := one(e)
				if err != nil {
					return nil, err
				}
				out = append(out, p)
			}
			return out, nil
		}
	}
	p, err := one(v)
	if err != nil {
		return nil, err
	}
	return []rules.PortEntry{p}, nil
}

// mergeSubRules folds adjacent sub-rules that differ only in protocol
// or address family back into one decoded rule.
func mergeSubRules(parts []DecodedRule) []DecodedRule {
	var out []DecodedRule
	for _, p := range parts {
		if n := len(out); n > 0 && mergeable(&out[n-1], &p) {
			merge(&out[n-1], &p)
			continue
		}
		out = append(out, p)
	}
	for i := range out {
		sort.Strings(out[i].Sources)
		sort.Strings(out[i].Destinations)
	}
	return out
}

func mergeable(a, b *DecodedRule) bool {
	if a.Label != b.Label || a.Chain != b.Chain || a.Action != b.Action ||
		a.RejectType != b.RejectType || a.Interface != b.Interface ||
		a.OutputInterface != b.OutputInterface || a.ConnectionLimit != b.ConnectionLimit ||
		a.LogPrefix != b.LogPrefix {
		return false
	}
	if (a.RateLimit == nil) != (b.RateLimit == nil) {
		return false
	}
	if a.RateLimit != nil && a.RateLimit.String() != b.RateLimit.String() {
		return false
	}
	if len(a.Ports) != len(b.Ports) {
		return false
	}
	for i := range a.Ports {
		if a.Ports[i] != b.Ports[i] {
			return false
		}
	}
	return true
}

func merge(a, b *DecodedRule) {
	a.Protocol = combineProtocols(a.Protocol, b.Protocol)
	a.Sources = appendNew(a.Sources, b.Sources)
	a.Destinations = appendNew(a.Destinations, b.Destinations)
}

func combineProtocols(a, b rules.Protocol) rules.Protocol {
	if a == b {
		return a
	}
	switch {
	case a == rules.ProtocolTCP && b == rules.ProtocolUDP,
		a == rules.ProtocolUDP && b == rules.ProtocolTCP,
		a == rules.ProtocolTCPUDP:
		return rules.ProtocolTCPUDP
	case a == rules.ProtocolICMP && b == rules.ProtocolICMPv6,
		a == rules.ProtocolICMPv6 && b == rules.ProtocolICMP,
		a == rules.ProtocolICMPBoth:
		return rules.ProtocolICMPBoth
	}
	return a
}

func appendNew(dst, src []string) []string {
	for _, s := range src {
		found := false
		for _, d := range dst {
			if d == s {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, s)
		}
	}
	return dst
}
