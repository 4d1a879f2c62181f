package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/warden/internal/profile"
	"grimm.is/warden/internal/rules"
)

func setupDirs(t *testing.T) {
	t.Helper()
	t.Setenv("WARDEN_CONFIG_DIR", t.TempDir())
	t.Setenv("WARDEN_DATA_DIR", t.TempDir())
	t.Setenv("WARDEN_STATE_DIR", t.TempDir())
}

func TestParsePorts(t *testing.T) {
	entries, err := parsePorts("22,80,8000-8080")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, rules.SinglePort(22), entries[0])
	assert.Equal(t, rules.PortRange(8000, 8080), entries[2])

	_, err = parsePorts("0")
	assert.Error(t, err)
	_, err = parsePorts("80-22")
	assert.Error(t, err)
	_, err = parsePorts("70000")
	assert.Error(t, err)
}

func TestRuleIndexOneBased(t *testing.T) {
	idx, err := ruleIndex("1", 3)
	require.NoError(t, err)
	assert.Equal(t, 0, idx)

	_, err = ruleIndex("0", 3)
	assert.Error(t, err)
	_, err = ruleIndex("4", 3)
	assert.Error(t, err)
	_, err = ruleIndex("x", 3)
	assert.Error(t, err)
}

func TestRuleAddPersistsToProfile(t *testing.T) {
	setupDirs(t)
	store := profile.NewStore()
	require.NoError(t, store.Save("laptop", rules.NewRuleset()))

	err := RunRule([]string{"add",
		"--profile", "laptop",
		"--label", "SSH",
		"--protocol", "tcp",
		"--ports", "22",
		"--sources", "10.0.0.0/8"})
	require.NoError(t, err)

	rs, _, err := store.Load("laptop")
	require.NoError(t, err)
	require.Len(t, rs.Rules, 1)
	r := rs.Rules[0]
	assert.Equal(t, "SSH", r.Label)
	assert.Equal(t, rules.ProtocolTCP, r.Protocol)
	assert.Equal(t, []rules.PortEntry{rules.SinglePort(22)}, r.Ports)
	assert.Equal(t, []string{"10.0.0.0/8"}, r.Sources)
}

func TestRuleAddRejectsPortsOnICMP(t *testing.T) {
	setupDirs(t)
	store := profile.NewStore()
	require.NoError(t, store.Save("laptop", rules.NewRuleset()))

	err := RunRule([]string{"add",
		"--profile", "laptop",
		"--label", "Ping",
		"--protocol", "icmp",
		"--ports", "22"})
	require.Error(t, err)
}

func TestRuleToggleAndDelete(t *testing.T) {
	setupDirs(t)
	store := profile.NewStore()
	rs := rules.NewRuleset()
	rs.Rules = append(rs.Rules, *rules.NewRule("Web", rules.ProtocolTCP))
	require.NoError(t, store.Save("laptop", rs))

	require.NoError(t, RunRule([]string{"toggle", "--profile", "laptop", "1"}))
	after, _, err := store.Load("laptop")
	require.NoError(t, err)
	assert.False(t, after.Rules[0].Enabled)

	require.NoError(t, RunRule([]string{"delete", "--profile", "laptop", "1"}))
	after, _, err = store.Load("laptop")
	require.NoError(t, err)
	assert.Empty(t, after.Rules)
}

func TestCheckRuleFlagsMismatches(t *testing.T) {
	r := rules.NewRule("Odd", rules.ProtocolICMP)
	r.Ports = []rules.PortEntry{rules.SinglePort(22)}
	r.OutputInterface = "eth0" // input chain rule
	r.RebuildCaches()

	issues := checkRule(r)
	require.Len(t, issues, 2)
	assert.Contains(t, issues[0], "output interface")
	assert.Contains(t, issues[1], "ports set on")
}
