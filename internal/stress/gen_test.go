package stress

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/warden/internal/rules"
	"grimm.is/warden/internal/validation"
)

func fixedNow() time.Time {
	return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func newTestGenerator(seed int64) *Generator {
	g := NewGenerator(seed)
	g.SetNow(fixedNow)
	return g
}

func TestGenerateCoversAllVariants(t *testing.T) {
	g := newTestGenerator(42)
	rs, cov := g.Generate(100, false, 0)

	require.Len(t, rs.Rules, 100)
	assert.Empty(t, cov.Missing())

	for _, p := range rules.Protocols {
		assert.Positive(t, cov.Protocols[p], "protocol %s", p)
	}
	for _, rt := range rules.RejectTypes {
		assert.Positive(t, cov.RejectTypes[rt], "reject type %s", rt)
	}
	for _, u := range rules.TimeUnits {
		assert.Positive(t, cov.TimeUnits[u], "time unit %s", u)
	}
}

func TestGenerateMinimalScenarioStillValid(t *testing.T) {
	g := newTestGenerator(7)
	sc := ScenarioMinimal
	rs, _ := g.Generate(sc.Count(), sc.EdgeCases(), sc.EdgeCaseProbability())
	require.Len(t, rs.Rules, 10)
}

func TestGeneratedRulesRespectConstraints(t *testing.T) {
	g := newTestGenerator(99)
	rs, _ := g.Generate(500, false, 0)

	for i := range rs.Rules {
		r := &rs.Rules[i]
		assert.True(t, r.Protocol.Valid(), "rule %d protocol", i)
		assert.True(t, r.Action.Valid(), "rule %d action", i)

		if !rules.ProtocolSupportsPorts(r.Protocol) {
			assert.Empty(t, r.Ports, "rule %d: ports on %s", i, r.Protocol)
		}
		if r.Action == rules.ActionReject {
			assert.True(t, rules.RejectTypeValidFor(r.RejectType, r.Protocol),
				"rule %d: %s reject on %s", i, r.RejectType, r.Protocol)
		}
		if rules.ChainUsesInputInterface(r.Chain) {
			assert.Empty(t, r.OutputInterface, "rule %d: output iface on input chain", i)
		} else {
			assert.Empty(t, r.Interface, "rule %d: input iface on output chain", i)
		}
		for _, p := range r.Ports {
			assert.LessOrEqual(t, p.Start, p.End, "rule %d port entry", i)
		}
	}
}

func TestGeneratedRulesPassValidation(t *testing.T) {
	g := newTestGenerator(3)
	rs, _ := g.Generate(200, false, 0)

	for i := range rs.Rules {
		r := &rs.Rules[i]
		// Random labels carry "#N" suffixes the sanitizer strips, so the
		// label only has to survive sanitizing, not arrive clean.
		require.NotEmpty(t, validation.SanitizeLabel(r.Label),
			"rule %d label %q sanitizes to nothing", i, r.Label)
		require.LessOrEqual(t, len(r.Label), validation.MaxLabelLen,
			"rule %d label %q too long", i, r.Label)
		clean := validation.SanitizeLabel(r.Label)
		require.Equal(t, clean, validation.SanitizeLabel(clean),
			"rule %d sanitizer not idempotent on %q", i, r.Label)
		for _, s := range r.Sources {
			require.NoError(t, validation.ValidateCIDR(s), "rule %d source %q", i, s)
		}
		for _, d := range r.Destinations {
			require.NoError(t, validation.ValidateCIDR(d), "rule %d destination %q", i, d)
		}
		if r.RateLimit != nil {
			_, err := validation.ValidateRateLimit(r.RateLimit.Count, string(r.RateLimit.Unit))
			require.NoError(t, err, "rule %d rate limit", i)
		}
	}
}

func TestGenerateDeterministicForSeed(t *testing.T) {
	a, _ := newTestGenerator(12345).Generate(100, true, 0.4)
	b, _ := newTestGenerator(12345).Generate(100, true, 0.4)

	aj, err := json.Marshal(a)
	require.NoError(t, err)
	bj, err := json.Marshal(b)
	require.NoError(t, err)
	assert.Equal(t, string(aj), string(bj))

	c, _ := newTestGenerator(54321).Generate(100, true, 0.4)
	cj, err := json.Marshal(c)
	require.NoError(t, err)
	assert.NotEqual(t, string(aj), string(cj))
}

func TestEdgeCaseRulesStayLoadable(t *testing.T) {
	g := newTestGenerator(13)
	rs, cov := g.Generate(300, true, 1.0)

	assert.Positive(t, cov.EdgeCases)
	for i := range rs.Rules {
		r := &rs.Rules[i]
		assert.LessOrEqual(t, len(r.Label), validation.MaxLabelLen, "rule %d", i)
	}

	// Round-trips through the profile schema without loss.
	data, err := json.Marshal(rs)
	require.NoError(t, err)
	var back rules.FirewallRuleset
	require.NoError(t, json.Unmarshal(data, &back))
	require.Len(t, back.Rules, len(rs.Rules))
}

func TestWriteProfileChecksumMatchesStoreFormat(t *testing.T) {
	g := newTestGenerator(1)
	rs, _ := g.Generate(20, false, 0)

	path := filepath.Join(t.TempDir(), "stress.json")
	sidecar, err := WriteProfile(path, rs)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "stress.sha256"), sidecar)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	sum, err := os.ReadFile(sidecar)
	require.NoError(t, err)
	want := sha256.Sum256(data)
	assert.Equal(t, hex.EncodeToString(want[:]), string(sum))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestSeededProfileRoundTrip(t *testing.T) {
	g := newTestGenerator(12345)
	rs, _ := g.Generate(100, false, 0)

	path := filepath.Join(t.TempDir(), "seeded.json")
	sidecar, err := WriteProfile(path, rs)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	sum := sha256.Sum256(data)
	storedSum, err := os.ReadFile(sidecar)
	require.NoError(t, err)
	require.Equal(t, hex.EncodeToString(sum[:]), string(storedSum))

	var back rules.FirewallRuleset
	require.NoError(t, json.Unmarshal(data, &back))
	back.RebuildCaches()

	want, err := json.Marshal(rs)
	require.NoError(t, err)
	got, err := json.Marshal(&back)
	require.NoError(t, err)
	assert.JSONEq(t, string(want), string(got))
}

type checkOnlyRunner struct {
	checked [][]byte
	err     error
}

func (c *checkOnlyRunner) Check(ctx context.Context, wire []byte) error {
	c.checked = append(c.checked, wire)
	return c.err
}
func (c *checkOnlyRunner) Apply(context.Context, []byte) error       { return nil }
func (c *checkOnlyRunner) Snapshot(context.Context) ([]byte, error)  { return nil, nil }
func (c *checkOnlyRunner) Restore(context.Context, []byte) error     { return nil }
func (c *checkOnlyRunner) EmergencyFallback(context.Context) error   { return nil }

func TestVerifyEncodesAndChecks(t *testing.T) {
	g := newTestGenerator(2)
	rs, _ := g.Generate(30, false, 0)

	runner := &checkOnlyRunner{}
	require.NoError(t, Verify(context.Background(), runner, rs))
	require.Len(t, runner.checked, 1)
	assert.Contains(t, string(runner.checked[0]), `"nftables"`)
}

func TestScenarioParsing(t *testing.T) {
	sc, err := ParseScenario("chaos")
	require.NoError(t, err)
	assert.Equal(t, 1000, sc.Count())
	assert.True(t, sc.EdgeCases())
	assert.InDelta(t, 0.40, sc.EdgeCaseProbability(), 0.001)

	_, err = ParseScenario("bogus")
	require.Error(t, err)
}

func TestCoverageReportListsSections(t *testing.T) {
	g := newTestGenerator(5)
	_, cov := g.Generate(50, false, 0)
	report := cov.Report(50)
	assert.Contains(t, report, "Protocols:")
	assert.Contains(t, report, "Feature Usage:")
	assert.Contains(t, report, "Generated 50 rules")
}
