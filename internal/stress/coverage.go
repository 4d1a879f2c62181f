package stress

import (
	"fmt"
	"sort"
	"strings"

	"grimm.is/warden/internal/rules"
)

// Coverage tracks which enum variants and rule features the generated
// ruleset exercises, for the --report flag and the post-generation
// completeness check.
type Coverage struct {
	Protocols   map[rules.Protocol]int
	Actions     map[rules.Action]int
	Chains      map[rules.Chain]int
	RejectTypes map[rules.RejectType]int
	TimeUnits   map[rules.TimeUnit]int

	WithRateLimit       int
	WithConnectionLimit int
	WithLogging         int
	WithSources         int
	WithDestinations    int
	WithInterface       int
	WithOutputInterface int
	WithTags            int
	Disabled            int
	EdgeCases           int
}

func newCoverage() *Coverage {
	return &Coverage{
		Protocols:   make(map[rules.Protocol]int),
		Actions:     make(map[rules.Action]int),
		Chains:      make(map[rules.Chain]int),
		RejectTypes: make(map[rules.RejectType]int),
		TimeUnits:   make(map[rules.TimeUnit]int),
	}
}

func (c *Coverage) record(r *rules.Rule, edgeCase bool) {
	c.Protocols[r.Protocol]++
	c.Actions[r.Action]++
	c.Chains[r.Chain]++
	if r.Action == rules.ActionReject {
		c.RejectTypes[r.RejectType]++
	}
	if r.RateLimit != nil {
		c.WithRateLimit++
		c.TimeUnits[r.RateLimit.Unit]++
	}
	if r.ConnectionLimit > 0 {
		c.WithConnectionLimit++
	}
	if r.LogEnabled {
		c.WithLogging++
	}
	if len(r.Sources) > 0 {
		c.WithSources++
	}
	if len(r.Destinations) > 0 {
		c.WithDestinations++
	}
	if r.Interface != "" {
		c.WithInterface++
	}
	if r.OutputInterface != "" {
		c.WithOutputInterface++
	}
	if len(r.Tags) > 0 {
		c.WithTags++
	}
	if !r.Enabled {
		c.Disabled++
	}
	if edgeCase {
		c.EdgeCases++
	}
}

// Missing lists enum variants that never appeared. Reject types only
// count when any reject rule was generated at all.
func (c *Coverage) Missing() []string {
	var missing []string
	for _, p := range rules.Protocols {
		if c.Protocols[p] == 0 {
			missing = append(missing, "protocol "+string(p))
		}
	}
	for _, a := range rules.Actions {
		if c.Actions[a] == 0 {
			missing = append(missing, "action "+string(a))
		}
	}
	for _, ch := range rules.Chains {
		if c.Chains[ch] == 0 {
			missing = append(missing, "chain "+string(ch))
		}
	}
	if c.Actions[rules.ActionReject] > 0 {
		for _, rt := range rules.RejectTypes {
			if c.RejectTypes[rt] == 0 {
				missing = append(missing, "reject type "+string(rt))
			}
		}
	}
	return missing
}

// Report renders the coverage summary for the CLI.
func (c *Coverage) Report(total int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "=== Coverage Report ===\n\nGenerated %d rules:\n\n", total)

	section := func(name string, counts map[string]int) {
		fmt.Fprintf(&b, "%s:\n", name)
		keys := make([]string, 0, len(counts))
		for k := range counts {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "  %s: %d\n", k, counts[k])
		}
		b.WriteString("\n")
	}

	section("Protocols", stringKeys(c.Protocols))
	section("Actions", stringKeys(c.Actions))
	section("Chains", stringKeys(c.Chains))
	if len(c.RejectTypes) > 0 {
		section("Reject Types", stringKeys(c.RejectTypes))
	}
	if len(c.TimeUnits) > 0 {
		section("Rate Limit Time Units", stringKeys(c.TimeUnits))
	}

	b.WriteString("Feature Usage:\n")
	fmt.Fprintf(&b, "  Rate limited: %d\n", c.WithRateLimit)
	fmt.Fprintf(&b, "  Connection limited: %d\n", c.WithConnectionLimit)
	fmt.Fprintf(&b, "  Per-rule logging: %d\n", c.WithLogging)
	fmt.Fprintf(&b, "  With sources: %d\n", c.WithSources)
	fmt.Fprintf(&b, "  With destinations: %d\n", c.WithDestinations)
	fmt.Fprintf(&b, "  With input interface: %d\n", c.WithInterface)
	fmt.Fprintf(&b, "  With output interface: %d\n", c.WithOutputInterface)
	fmt.Fprintf(&b, "  With tags: %d\n", c.WithTags)
	fmt.Fprintf(&b, "  Disabled rules: %d\n", c.Disabled)
	fmt.Fprintf(&b, "  Edge cases: %d\n", c.EdgeCases)
	return b.String()
}

func stringKeys[K ~string](m map[K]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[string(k)] = v
	}
	return out
}
