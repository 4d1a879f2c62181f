package rules

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/warden/internal/errors"
)

func TestNewRuleDefaults(t *testing.T) {
	r := NewRule("SSH", ProtocolTCP)

	if r.ID == "" {
		t.Error("expected generated id")
	}
	if !r.Enabled {
		t.Error("new rules should be enabled")
	}
	if r.Chain != ChainInput {
		t.Errorf("expected input chain, got %s", r.Chain)
	}
	if r.Action != ActionAccept {
		t.Errorf("expected accept action, got %s", r.Action)
	}
	if r.CreatedAt.IsZero() {
		t.Error("expected creation time")
	}
	if r.LabelLower != "ssh" {
		t.Errorf("label cache not built: %q", r.LabelLower)
	}
}

func TestRebuildCaches(t *testing.T) {
	r := NewRule("Web Server", ProtocolTCP)
	r.Ports = []PortEntry{SinglePort(80), PortRange(8000, 8080)}
	r.Sources = []string{"192.168.1.0/24"}
	r.Interface = "ETH0"
	r.Tags = []string{"Web", "Production"}
	burst := uint32(30)
	r.RateLimit = &RateLimit{Count: 10, Unit: UnitMinute, Burst: &burst}
	r.RebuildCaches()

	assert.Equal(t, "web server", r.LabelLower)
	assert.Equal(t, "eth0", r.InterfaceLower)
	assert.Equal(t, []string{"web", "production"}, r.TagsLower)
	assert.Equal(t, "tcp", r.ProtocolLower)
	assert.Equal(t, "80, 8000-8080", r.PortDisplay)
	assert.Equal(t, "192.168.1.0/24", r.SourcesDisplay)
	assert.Equal(t, "Any", r.DestinationsDisplay)
	assert.Equal(t, "10/minute burst 30", r.RateLimitDisplay)
	assert.Equal(t, "Accept", r.ActionDisplay)
	assert.Equal(t, "ETH0", r.InterfaceDisplay)
	assert.Equal(t, "Web Server: ", r.LogPrefix)
}

func TestRebuildCachesEmptyPorts(t *testing.T) {
	r := NewRule("Ping", ProtocolICMP)
	if r.PortDisplay != "All" {
		t.Errorf("expected All, got %q", r.PortDisplay)
	}
}

func TestOutputChainInterfaceDisplay(t *testing.T) {
	r := NewRule("Egress DNS", ProtocolUDP)
	r.Chain = ChainOutput
	r.OutputInterface = "wg0"
	r.RebuildCaches()

	assert.Equal(t, "wg0", r.InterfaceDisplay)
}

func TestSettersKeepCaches(t *testing.T) {
	r := NewRule("Old", ProtocolTCP)
	r.SetLabel("New Name")
	assert.Equal(t, "new name", r.LabelLower)
	assert.Equal(t, "New Name: ", r.LogPrefix)

	r.SetProtocol(ProtocolUDP)
	assert.Equal(t, "udp", r.ProtocolLower)

	r.AddTag("VPN")
	assert.Equal(t, []string{"vpn"}, r.TagsLower)
	r.RemoveTag("VPN")
	assert.Empty(t, r.Tags)
	assert.Empty(t, r.TagsLower)
}

func TestRuleJSONRoundTrip(t *testing.T) {
	r := NewRule("DNS", ProtocolTCPUDP)
	r.Ports = []PortEntry{SinglePort(53)}
	r.Sources = []string{"10.0.0.0/8", "fe80::/10"}
	r.Tags = []string{"infra"}
	r.ConnectionLimit = 100
	r.LogEnabled = true
	r.RebuildCaches()

	data, err := json.Marshal(r)
	require.NoError(t, err)

	// Cache fields never hit the wire.
	assert.NotContains(t, string(data), "label_lowercase")
	assert.NotContains(t, string(data), "port_display")

	var back Rule
	require.NoError(t, json.Unmarshal(data, &back))
	back.RebuildCaches()

	assert.Equal(t, r.ID, back.ID)
	assert.Equal(t, r.Protocol, back.Protocol)
	assert.Equal(t, r.Ports, back.Ports)
	assert.Equal(t, r.Sources, back.Sources)
	assert.Equal(t, r.ConnectionLimit, back.ConnectionLimit)
	assert.True(t, back.LogEnabled)
	assert.Equal(t, r.PortDisplay, back.PortDisplay)
}

func TestPortEntryJSON(t *testing.T) {
	single, err := json.Marshal(SinglePort(22))
	require.NoError(t, err)
	assert.Equal(t, "22", string(single))

	ranged, err := json.Marshal(PortRange(8000, 8080))
	require.NoError(t, err)
	assert.JSONEq(t, `{"start":8000,"end":8080}`, string(ranged))

	var p PortEntry
	require.NoError(t, json.Unmarshal([]byte("443"), &p))
	assert.Equal(t, SinglePort(443), p)

	require.NoError(t, json.Unmarshal([]byte(`{"start":1,"end":1024}`), &p))
	assert.Equal(t, PortRange(1, 1024), p)

	assert.Error(t, json.Unmarshal([]byte(`{"start":100,"end":10}`), &p))
	assert.Error(t, json.Unmarshal([]byte(`{"start":0,"end":10}`), &p))

	err = p.UnmarshalJSON([]byte(`"ssh"`))
	require.Error(t, err)
	assert.Equal(t, errors.KindValidation, errors.GetKind(err))
}

func TestUnknownEnumValuesRejected(t *testing.T) {
	var r Rule
	err := json.Unmarshal([]byte(`{"id":"x","label":"y","protocol":"gopher"}`), &r)
	if err == nil {
		t.Fatal("expected error for unknown protocol")
	}
	if !strings.Contains(err.Error(), "gopher") {
		t.Errorf("error should name the bad value: %v", err)
	}
}

func TestNormalizeICMPPortsCleared(t *testing.T) {
	r := NewRule("Ping", ProtocolICMP)
	r.Ports = []PortEntry{SinglePort(22), SinglePort(80)}

	report := r.Normalize()

	assert.Empty(t, r.Ports)
	require.Len(t, report, 1)
	assert.Contains(t, report[0], "does not use ports")
}

func TestNormalizeTCPResetOnUDP(t *testing.T) {
	r := NewRule("Blocked", ProtocolUDP)
	r.Action = ActionReject
	r.RejectType = RejectTCPReset

	report := r.Normalize()

	assert.Equal(t, RejectDefault, r.RejectType)
	require.Len(t, report, 1)
	assert.Contains(t, report[0], "not valid for protocol udp")
}

func TestNormalizeRejectTypeClearedForAccept(t *testing.T) {
	r := NewRule("Open", ProtocolTCP)
	r.RejectType = RejectAdminProhibited

	report := r.Normalize()

	assert.Equal(t, RejectDefault, r.RejectType)
	assert.Len(t, report, 1)
}

func TestNormalizeDropsInvalidNetworks(t *testing.T) {
	r := NewRule("Mixed", ProtocolTCP)
	r.Sources = []string{"10.0.0.0/8", "not-a-network", "2001:db8::/32"}

	report := r.Normalize()

	assert.Equal(t, []string{"10.0.0.0/8", "2001:db8::/32"}, r.Sources)
	require.Len(t, report, 1)
	assert.Contains(t, report[0], "not-a-network")
}

func TestNormalizeSanitizesLabel(t *testing.T) {
	r := NewRule(`Rule #1 "quoted" & $injection`, ProtocolTCP)
	report := r.Normalize()

	assert.Equal(t, "Rule 1 quoted  injection", r.Label)
	assert.NotEmpty(t, report)
}

func TestNormalizeInterfaceChainMismatch(t *testing.T) {
	r := NewRule("Odd", ProtocolTCP)
	r.Chain = ChainInput
	r.OutputInterface = "eth1"

	report := r.Normalize()

	// Mismatch is reported but the field is kept.
	assert.Equal(t, "eth1", r.OutputInterface)
	require.Len(t, report, 1)
	assert.Contains(t, report[0], "ignored by the input chain")
}

func TestNormalizeRateLimit(t *testing.T) {
	r := NewRule("Limited", ProtocolTCP)
	r.RateLimit = &RateLimit{Count: 0, Unit: UnitSecond}
	report := r.Normalize()

	assert.Nil(t, r.RateLimit)
	assert.Len(t, report, 1)
}

func TestNormalizeRateLimitBurstBelowCount(t *testing.T) {
	burst := uint32(3)
	r := NewRule("Limited", ProtocolTCP)
	r.RateLimit = &RateLimit{Count: 10, Unit: UnitMinute, Burst: &burst}

	report := r.Normalize()

	require.NotNil(t, r.RateLimit.Burst)
	assert.Equal(t, uint32(10), *r.RateLimit.Burst)
	require.Len(t, report, 1)
	assert.Contains(t, report[0], "burst 3 raised to count 10")

	// A burst at or above count passes untouched.
	ok := uint32(20)
	r.RateLimit.Burst = &ok
	assert.Empty(t, r.Normalize())
}

func TestNormalizeMissingFields(t *testing.T) {
	r := &Rule{Label: "bare"}
	report := r.Normalize()

	assert.NotEmpty(t, r.ID)
	assert.Equal(t, ProtocolAny, r.Protocol)
	assert.Equal(t, ChainInput, r.Chain)
	assert.Equal(t, ActionAccept, r.Action)
	assert.Equal(t, RejectDefault, r.RejectType)
	assert.False(t, r.CreatedAt.IsZero())
	// Missing enums default silently; only id and timestamp are noted.
	for _, note := range report {
		assert.NotContains(t, note, "unknown")
	}
}

func TestCloneIsDeep(t *testing.T) {
	r := NewRule("Orig", ProtocolTCP)
	r.Ports = []PortEntry{SinglePort(80)}
	r.Tags = []string{"a"}
	burst := uint32(5)
	r.RateLimit = &RateLimit{Count: 1, Unit: UnitSecond, Burst: &burst}
	r.RebuildCaches()

	c := r.Clone()
	c.Ports[0] = SinglePort(443)
	c.Tags[0] = "b"
	*c.RateLimit.Burst = 99

	assert.Equal(t, SinglePort(80), r.Ports[0])
	assert.Equal(t, "a", r.Tags[0])
	assert.Equal(t, uint32(5), *r.RateLimit.Burst)
}
