package rules

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/warden/internal/brand"
)

func TestNewRulesetDefaults(t *testing.T) {
	rs := NewRuleset()

	assert.Empty(t, rs.Rules)
	assert.False(t, rs.AdvancedSecurity.StrictICMP)
	assert.False(t, rs.AdvancedSecurity.EnableRPF)
	assert.False(t, rs.AdvancedSecurity.LogDropped)
	assert.Equal(t, uint32(5), rs.AdvancedSecurity.LogRatePerMinute)
	assert.Equal(t, brand.DropLogPrefix, rs.AdvancedSecurity.LogPrefix)
	assert.Equal(t, EgressDesktop, rs.AdvancedSecurity.EgressProfile)
}

func TestEnabledRules(t *testing.T) {
	rs := NewRuleset()
	on := NewRule("On", ProtocolTCP)
	off := NewRule("Off", ProtocolTCP)
	off.Enabled = false
	rs.Rules = append(rs.Rules, *on, *off)

	enabled := rs.EnabledRules()
	require.Len(t, enabled, 1)
	assert.Equal(t, "On", enabled[0].Label)
}

func TestFindByID(t *testing.T) {
	rs := NewRuleset()
	r := NewRule("Find Me", ProtocolUDP)
	rs.Rules = append(rs.Rules, *r)

	if got := rs.FindByID(r.ID); got != 0 {
		t.Errorf("expected index 0, got %d", got)
	}
	if got := rs.FindByID("nope"); got != -1 {
		t.Errorf("expected -1 for unknown id, got %d", got)
	}
}

func TestRulesetJSONRoundTrip(t *testing.T) {
	rs := NewRuleset()
	r := NewRule("SSH", ProtocolTCP)
	r.Ports = []PortEntry{SinglePort(22)}
	r.RebuildCaches()
	rs.Rules = append(rs.Rules, *r)
	rs.AdvancedSecurity.StrictICMP = true
	rs.AdvancedSecurity.ICMPRateLimit = 10

	data, err := json.Marshal(rs)
	require.NoError(t, err)

	var back FirewallRuleset
	require.NoError(t, json.Unmarshal(data, &back))
	back.RebuildCaches()

	require.Len(t, back.Rules, 1)
	assert.Equal(t, "SSH", back.Rules[0].Label)
	assert.Equal(t, "22", back.Rules[0].PortDisplay)
	assert.True(t, back.AdvancedSecurity.StrictICMP)
	assert.Equal(t, uint32(10), back.AdvancedSecurity.ICMPRateLimit)
}

func TestRulesetNormalizePrefixesRuleLabel(t *testing.T) {
	rs := NewRuleset()
	r := NewRule("Ping", ProtocolICMP)
	r.Ports = []PortEntry{SinglePort(80)}
	rs.Rules = append(rs.Rules, *r)

	report := rs.Normalize()

	require.Len(t, report, 1)
	assert.Contains(t, report[0], "rule Ping:")
}

func TestAdvancedSecurityNormalize(t *testing.T) {
	a := AdvancedSecurity{LogRatePerMinute: 5000, EgressProfile: "cloud"}
	report := a.Normalize()

	assert.Equal(t, uint32(1000), a.LogRatePerMinute)
	assert.Equal(t, EgressDesktop, a.EgressProfile)
	assert.Equal(t, brand.DropLogPrefix, a.LogPrefix)
	assert.Len(t, report, 2)
}

func TestRulesetCloneIndependent(t *testing.T) {
	rs := NewRuleset()
	rs.Rules = append(rs.Rules, *NewRule("A", ProtocolTCP))

	c := rs.Clone()
	c.Rules[0].SetLabel("B")
	c.AdvancedSecurity.EnableRPF = true

	assert.Equal(t, "A", rs.Rules[0].Label)
	assert.False(t, rs.AdvancedSecurity.EnableRPF)
}

func TestPresetRule(t *testing.T) {
	p := FindPreset("SSH")
	require.NotNil(t, p)

	r := p.Rule()
	assert.Equal(t, "SSH", r.Label)
	assert.Equal(t, ProtocolTCP, r.Protocol)
	assert.Equal(t, []PortEntry{SinglePort(22)}, r.Ports)
	assert.True(t, r.Enabled)
}

func TestConstraints(t *testing.T) {
	assert.True(t, ProtocolSupportsPorts(ProtocolTCP))
	assert.True(t, ProtocolSupportsPorts(ProtocolTCPUDP))
	assert.False(t, ProtocolSupportsPorts(ProtocolAny))
	assert.False(t, ProtocolSupportsPorts(ProtocolICMPBoth))

	assert.True(t, ProtocolIsICMP(ProtocolICMPv6))
	assert.False(t, ProtocolIsICMP(ProtocolUDP))

	assert.True(t, ProtocolRequiresIPv4(ProtocolICMP))
	assert.True(t, ProtocolRequiresIPv6(ProtocolICMPv6))
	assert.False(t, ProtocolRequiresIPv4(ProtocolICMPBoth))

	assert.Equal(t,
		[]RejectType{RejectDefault, RejectAdminProhibited, RejectTCPReset},
		AvailableRejectTypes(ProtocolTCP))
	assert.Equal(t,
		[]RejectType{RejectDefault, RejectAdminProhibited},
		AvailableRejectTypes(ProtocolUDP))

	assert.True(t, RejectTypeValidFor(RejectTCPReset, ProtocolTCP))
	assert.False(t, RejectTypeValidFor(RejectTCPReset, ProtocolTCPUDP))

	assert.True(t, ChainUsesInputInterface(ChainInput))
	assert.True(t, ChainUsesOutputInterface(ChainOutput))
}
