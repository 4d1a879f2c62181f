package nftgen

import (
	"fmt"
	"strings"

	"grimm.is/warden/internal/brand"
	"grimm.is/warden/internal/rules"
)

// EncodeText renders the ruleset in nft's native syntax for preview
// and diffing. Byte-stable for a given ruleset value.
func EncodeText(rs *rules.FirewallRuleset) string {
	adv := &rs.AdvancedSecurity
	var b strings.Builder

	fmt.Fprintf(&b, "table inet %s {\n", brand.TableName)

	b.WriteString("    chain input {\n")
	b.WriteString("        type filter hook input priority -10; policy drop;\n\n")

	writeBaseRulesText(&b, adv)

	inputRules := chainRules(rs, rules.ChainInput)
	if len(inputRules) > 0 {
		b.WriteString("        # --- User Defined Rules ---\n")
		for _, r := range inputRules {
			writeUserRuleText(&b, r)
		}
		b.WriteString("\n")
	}

	b.WriteString("        # --- Rejects (End of Chain) ---\n")
	if adv.LogDropped {
		fmt.Fprintf(&b, "        limit rate %d/minute log prefix %q level info\n",
			adv.LogRatePerMinute, adv.LogPrefix)
	}
	b.WriteString("        pkttype host limit rate 5/second counter reject with icmpx type admin-prohibited\n")
	b.WriteString("        counter\n")
	b.WriteString("    }\n\n")

	b.WriteString("    chain forward {\n")
	b.WriteString("        type filter hook forward priority -10; policy drop;\n")
	b.WriteString("    }\n\n")

	outputPolicy := "accept"
	if adv.EgressProfile == rules.EgressServer {
		outputPolicy = "drop"
	}
	b.WriteString("    chain output {\n")
	fmt.Fprintf(&b, "        type filter hook output priority -10; policy %s;\n", outputPolicy)

	if adv.EgressProfile == rules.EgressServer {
		outputRules := chainRules(rs, rules.ChainOutput)
		if len(outputRules) > 0 {
			b.WriteString("\n        # --- User Defined Rules ---\n")
			for _, r := range outputRules {
				writeUserRuleText(&b, r)
			}
		}
	}
	b.WriteString("    }\n\n")

	b.WriteString("}\n")
	return b.String()
}

// chainRules returns the enabled rules the text output shows for a
// chain. Desktop mode hides output rules, matching the wire output.
func chainRules(rs *rules.FirewallRuleset, chain rules.Chain) []*rules.Rule {
	var out []*rules.Rule
	for i := range rs.Rules {
		r := &rs.Rules[i]
		if !r.Enabled || r.Chain != chain {
			continue
		}
		if chain == rules.ChainOutput && rs.AdvancedSecurity.EgressProfile == rules.EgressDesktop {
			continue
		}
		out = append(out, r)
	}
	return out
}

func writeBaseRulesText(b *strings.Builder, adv *rules.AdvancedSecurity) {
	b.WriteString("        # --- Base Rules ---\n")
	b.WriteString("        # Rule ordering: loopback → invalid drop → established → block redirects → ICMP\n")

	if adv.EnableRPF {
		b.WriteString("        # [OPTIONAL: Anti-Spoofing Enabled]\n")
		b.WriteString("        fib saddr . iif oif eq 0 drop comment \"drop packets with spoofed source addresses (RPF)\"\n\n")
	}

	b.WriteString("        iifname \"lo\" accept comment \"allow from loopback\"\n")
	b.WriteString("        ct state invalid drop comment \"early drop of invalid connections\"\n")
	b.WriteString("        ct state established,related accept comment \"allow tracked connections\"\n\n")

	b.WriteString("        # --- Security Rules ---\n")
	b.WriteString("        ip protocol icmp icmp type redirect drop comment \"drop icmp redirects\"\n")
	b.WriteString("        meta l4proto ipv6-icmp icmpv6 type nd-redirect drop comment \"drop icmpv6 redirects\"\n\n")

	b.WriteString("        # --- Standard Protocols ---\n")

	v4Types := "{ " + strings.Join(strictICMPv4Types, ", ") + " }"
	v6Types := "{ " + strings.Join(strictICMPv6Types, ", ") + " }"

	switch {
	case adv.StrictICMP && adv.ICMPRateLimit > 0:
		b.WriteString("        # [STRICT ICMP MODE ENABLED]\n")
		fmt.Fprintf(b, "        ip protocol icmp icmp type %s limit rate %d/second accept comment \"allow essential icmp (strict mode, rate limited)\"\n",
			v4Types, adv.ICMPRateLimit)
		fmt.Fprintf(b, "        meta l4proto ipv6-icmp icmpv6 type %s limit rate %d/second accept comment \"allow essential icmpv6 (strict mode, rate limited)\"\n\n",
			v6Types, adv.ICMPRateLimit)
	case adv.StrictICMP:
		b.WriteString("        # [STRICT ICMP MODE ENABLED]\n")
		fmt.Fprintf(b, "        ip protocol icmp icmp type %s accept comment \"allow essential icmp (strict mode)\"\n", v4Types)
		fmt.Fprintf(b, "        meta l4proto ipv6-icmp icmpv6 type %s accept comment \"allow essential icmpv6 (strict mode)\"\n\n", v6Types)
	case adv.ICMPRateLimit > 0:
		fmt.Fprintf(b, "        # [ICMP RATE LIMITING: %d/second]\n", adv.ICMPRateLimit)
		fmt.Fprintf(b, "        ip protocol icmp limit rate %d/second accept comment \"allow icmp (rate limited)\"\n", adv.ICMPRateLimit)
		fmt.Fprintf(b, "        meta l4proto ipv6-icmp limit rate %d/second accept comment \"allow icmp v6 (rate limited)\"\n\n", adv.ICMPRateLimit)
	default:
		b.WriteString("        ip protocol icmp accept comment \"allow icmp\"\n")
		b.WriteString("        meta l4proto ipv6-icmp accept comment \"allow icmp v6\"\n\n")
	}
}

func netsText(nets []string) string {
	if len(nets) == 1 {
		return nets[0]
	}
	return "{ " + strings.Join(nets, ", ") + " }"
}

func portsText(ports []rules.PortEntry) string {
	if len(ports) == 1 {
		return ports[0].String()
	}
	parts := make([]string, len(ports))
	for i, p := range ports {
		parts[i] = p.String()
	}
	return "{ " + strings.Join(parts, ", ") + " }"
}

func writeUserRuleText(b *strings.Builder, r *rules.Rule) {
	b.WriteString("        ")

	s4, s6 := splitByFamily(r.Sources)
	switch {
	case len(s4) > 0 && len(s6) == 0:
		fmt.Fprintf(b, "ip saddr %s ", netsText(s4))
	case len(s6) > 0 && len(s4) == 0:
		fmt.Fprintf(b, "ip6 saddr %s ", netsText(s6))
	case len(s4) > 0 && len(s6) > 0:
		// Mixed families fan out on the wire; the preview shows both.
		fmt.Fprintf(b, "ip saddr %s ip6 saddr %s ", netsText(s4), netsText(s6))
	}

	d4, d6 := splitByFamily(r.Destinations)
	switch {
	case len(d4) > 0 && len(d6) == 0:
		fmt.Fprintf(b, "ip daddr %s ", netsText(d4))
	case len(d6) > 0 && len(d4) == 0:
		fmt.Fprintf(b, "ip6 daddr %s ", netsText(d6))
	case len(d4) > 0 && len(d6) > 0:
		fmt.Fprintf(b, "ip daddr %s ip6 daddr %s ", netsText(d4), netsText(d6))
	}

	if rules.ChainUsesInputInterface(r.Chain) && r.Interface != "" {
		fmt.Fprintf(b, "iifname %q ", r.Interface)
	}
	if rules.ChainUsesOutputInterface(r.Chain) && r.OutputInterface != "" {
		fmt.Fprintf(b, "oifname %q ", r.OutputInterface)
	}

	withPorts := rules.ProtocolSupportsPorts(r.Protocol) && len(r.Ports) > 0
	switch r.Protocol {
	case rules.ProtocolAny:
	case rules.ProtocolTCP, rules.ProtocolUDP:
		b.WriteString(string(r.Protocol))
		if withPorts {
			fmt.Fprintf(b, " dport %s", portsText(r.Ports))
		}
		b.WriteString(" ")
	case rules.ProtocolTCPUDP:
		b.WriteString("meta l4proto { tcp, udp }")
		if withPorts {
			fmt.Fprintf(b, " th dport %s", portsText(r.Ports))
		}
		b.WriteString(" ")
	case rules.ProtocolICMP:
		b.WriteString("icmp ")
	case rules.ProtocolICMPv6:
		b.WriteString("icmpv6 ")
	case rules.ProtocolICMPBoth:
		b.WriteString("meta l4proto { icmp, ipv6-icmp } ")
	}

	if r.RateLimit != nil && r.RateLimit.Count > 0 {
		fmt.Fprintf(b, "limit rate %d/%s ", r.RateLimit.Count, r.RateLimit.Unit)
		if r.RateLimit.Burst != nil {
			fmt.Fprintf(b, "burst %d packets ", *r.RateLimit.Burst)
		}
	}
	if r.ConnectionLimit > 0 {
		fmt.Fprintf(b, "ct count %d ", r.ConnectionLimit)
	}
	if r.LogEnabled {
		fmt.Fprintf(b, "log prefix %q ", r.LogPrefix)
	}

	b.WriteString(verdictText(r))
	if r.Label != "" {
		fmt.Fprintf(b, " comment %q", r.Label)
	}
	b.WriteString("\n")
}

func verdictText(r *rules.Rule) string {
	switch r.Action {
	case rules.ActionDrop:
		return "drop"
	case rules.ActionReject:
		rt := r.RejectType
		if rt == rules.RejectTCPReset && r.Protocol != rules.ProtocolTCP {
			rt = rules.RejectDefault
		}
		switch rt {
		case rules.RejectTCPReset:
			return "reject with tcp reset"
		case rules.RejectPortUnreachable:
			return "reject with icmpx type port-unreachable"
		case rules.RejectHostUnreachable:
			return "reject with icmpx type host-unreachable"
		case rules.RejectAdminProhibited:
			return "reject with icmpx type admin-prohibited"
		default:
			return "reject"
		}
	default:
		return "accept"
	}
}
