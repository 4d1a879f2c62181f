package rules

import (
	"grimm.is/warden/internal/brand"
)

// AdvancedSecurity holds the hardening toggles that shape the base
// chains. Everything defaults off for desktop compatibility.
type AdvancedSecurity struct {
	// StrictICMP restricts ICMP to essential types only. May break
	// network diagnostic tools and some games.
	StrictICMP bool `json:"strict_icmp"`
	// ICMPRateLimit caps ICMP packets per second; 0 disables the cap.
	ICMPRateLimit uint32 `json:"icmp_rate_limit"`
	// EnableRPF adds a reverse-path-filter rule against spoofed sources.
	EnableRPF bool `json:"enable_rpf"`
	// LogDropped logs packets that reach the end-of-chain drop.
	LogDropped bool `json:"log_dropped"`
	// LogRatePerMinute caps drop logging to avoid flooding the journal.
	LogRatePerMinute uint32 `json:"log_rate_per_minute"`
	// LogPrefix tags dropped-packet log lines for journal filtering.
	LogPrefix string `json:"log_prefix"`
	// EgressProfile picks the output chain policy (desktop or server).
	EgressProfile EgressProfile `json:"egress_profile"`
}

// DefaultAdvancedSecurity returns the desktop-safe defaults.
func DefaultAdvancedSecurity() AdvancedSecurity {
	return AdvancedSecurity{
		LogRatePerMinute: 5,
		LogPrefix:        brand.DropLogPrefix,
		EgressProfile:    EgressDesktop,
	}
}

// Normalize repairs out-of-range settings in place and returns a note
// per adjustment.
func (a *AdvancedSecurity) Normalize() []string {
	var report []string
	if a.LogRatePerMinute == 0 {
		a.LogRatePerMinute = 5
	}
	if a.LogRatePerMinute > 1000 {
		report = append(report, "drop log rate clamped to 1000/minute")
		a.LogRatePerMinute = 1000
	}
	if a.LogPrefix == "" {
		a.LogPrefix = brand.DropLogPrefix
	}
	if a.EgressProfile == "" {
		a.EgressProfile = EgressDesktop
	} else if !a.EgressProfile.Valid() {
		report = append(report, "unknown egress profile reset to desktop")
		a.EgressProfile = EgressDesktop
	}
	return report
}

// FirewallRuleset is the complete persisted state of one profile: the
// user-defined rules plus the advanced security settings.
type FirewallRuleset struct {
	Rules            []Rule           `json:"rules"`
	AdvancedSecurity AdvancedSecurity `json:"advanced_security"`
}

// NewRuleset returns an empty ruleset with default settings.
func NewRuleset() *FirewallRuleset {
	return &FirewallRuleset{
		Rules:            []Rule{},
		AdvancedSecurity: DefaultAdvancedSecurity(),
	}
}

// RebuildCaches recomputes derived fields on every rule. Must run
// after deserialization.
func (rs *FirewallRuleset) RebuildCaches() {
	for i := range rs.Rules {
		rs.Rules[i].RebuildCaches()
	}
}

// Normalize enforces invariants on the settings and every rule,
// returning one note per repair. Rules that needed repair are
// reported with their label for the import summary.
func (rs *FirewallRuleset) Normalize() []string {
	report := rs.AdvancedSecurity.Normalize()
	for i := range rs.Rules {
		for _, note := range rs.Rules[i].Normalize() {
			report = append(report, "rule "+rs.Rules[i].Label+": "+note)
		}
	}
	return report
}

// FindByID returns the index of the rule with the given id, or -1.
func (rs *FirewallRuleset) FindByID(id string) int {
	for i := range rs.Rules {
		if rs.Rules[i].ID == id {
			return i
		}
	}
	return -1
}

// EnabledRules returns the rules the codec will emit, in order.
func (rs *FirewallRuleset) EnabledRules() []Rule {
	out := make([]Rule, 0, len(rs.Rules))
	for _, r := range rs.Rules {
		if r.Enabled {
			out = append(out, r)
		}
	}
	return out
}

// Clone returns a deep copy of the ruleset.
func (rs *FirewallRuleset) Clone() *FirewallRuleset {
	c := &FirewallRuleset{
		Rules:            make([]Rule, len(rs.Rules)),
		AdvancedSecurity: rs.AdvancedSecurity,
	}
	for i := range rs.Rules {
		c.Rules[i] = *rs.Rules[i].Clone()
	}
	return c
}
