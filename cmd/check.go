package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"grimm.is/warden/internal/config"
	"grimm.is/warden/internal/nftexec"
	"grimm.is/warden/internal/nftgen"
	"grimm.is/warden/internal/profile"
	"grimm.is/warden/internal/rules"
	"grimm.is/warden/internal/validation"
)

// RunCheck validates a profile: schema, per-rule field validation, and
// optionally nft's own syntax check of the generated ruleset.
func RunCheck(args []string) error {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	var (
		profileName string
		verbose     bool
		withNft     bool
	)
	fs.StringVar(&profileName, "profile", "", "Profile to check (default: active profile)")
	fs.StringVar(&profileName, "p", "", "Alias for -profile")
	fs.BoolVar(&verbose, "verbose", false, "Print per-rule details")
	fs.BoolVar(&verbose, "v", false, "Alias for -verbose")
	fs.BoolVar(&withNft, "nft", false, "Also run the ruleset through nft --check")
	if err := fs.Parse(args); err != nil {
		return err
	}

	store := profile.NewStore()
	if profileName == "" {
		cfg := config.Load()
		name, err := config.ResolveActiveProfile(&cfg, store)
		if err != nil {
			return err
		}
		profileName = name
	}

	rs, report, err := store.Load(profileName)
	if err != nil {
		return err
	}
	for _, note := range report.Notes {
		fmt.Printf("note: %s\n", note)
	}
	if report.ChecksumMismatch {
		fmt.Println("warning: checksum mismatch (profile was modified outside the manager)")
	}

	problems := 0
	for i := range rs.Rules {
		r := &rs.Rules[i]
		for _, issue := range checkRule(r) {
			fmt.Printf("rule %d (%s): %s\n", i+1, r.Label, issue)
			problems++
		}
	}

	if verbose {
		printRuleTable(rs)
	}

	if withNft {
		wire, err := nftgen.EncodeWire(rs)
		if err != nil {
			return err
		}
		runner := nftexec.NewExecRunner()
		if err := runner.Check(context.Background(), wire); err != nil {
			fmt.Println("nft --check: FAILED")
			for _, msg := range nftexec.Messages(err) {
				fmt.Printf("  %s\n", msg)
			}
			problems++
		} else {
			fmt.Println("nft --check: passed")
		}
	}

	if problems > 0 {
		return fmt.Errorf("%d problem(s) found in profile %q", problems, profileName)
	}
	fmt.Printf("Profile %q valid: %d rules (%d enabled)\n",
		profileName, len(rs.Rules), len(rs.EnabledRules()))
	return nil
}

// checkRule reports soft issues a saved profile can carry: values the
// importer tolerates but the editor would never produce.
func checkRule(r *rules.Rule) []string {
	var issues []string
	if clean := validation.SanitizeLabel(r.Label); clean != r.Label {
		issues = append(issues, fmt.Sprintf("label contains invalid characters, sanitizes to %q", clean))
	}
	if r.Interface != "" {
		if err := validation.ValidateInterface(r.Interface); err != nil {
			issues = append(issues, err.Error())
		}
		if !rules.ChainUsesInputInterface(r.Chain) {
			issues = append(issues, "input interface set on an output-chain rule (ignored)")
		}
	}
	if r.OutputInterface != "" {
		if err := validation.ValidateInterface(r.OutputInterface); err != nil {
			issues = append(issues, err.Error())
		}
		if !rules.ChainUsesOutputInterface(r.Chain) {
			issues = append(issues, "output interface set on an input-chain rule (ignored)")
		}
	}
	for _, s := range r.Sources {
		if err := validation.ValidateCIDR(s); err != nil {
			issues = append(issues, err.Error())
		}
	}
	for _, d := range r.Destinations {
		if err := validation.ValidateCIDR(d); err != nil {
			issues = append(issues, err.Error())
		}
	}
	if len(r.Ports) > 0 && !rules.ProtocolSupportsPorts(r.Protocol) {
		issues = append(issues, fmt.Sprintf("ports set on %s rule (ignored)", r.Protocol))
	}
	if r.Action == rules.ActionReject && !rules.RejectTypeValidFor(r.RejectType, r.Protocol) {
		issues = append(issues, fmt.Sprintf("reject type %s not valid for %s", r.RejectType, r.Protocol))
	}
	if r.RateLimit != nil {
		if _, err := validation.ValidateRateLimit(r.RateLimit.Count, string(r.RateLimit.Unit)); err != nil {
			issues = append(issues, err.Error())
		}
	}
	if _, err := validation.ValidateConnectionLimit(r.ConnectionLimit); err != nil {
		issues = append(issues, err.Error())
	}
	return issues
}

func printRuleTable(rs *rules.FirewallRuleset) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tLABEL\tPROTO\tPORTS\tCHAIN\tACTION\tENABLED")
	for i := range rs.Rules {
		r := &rs.Rules[i]
		ports := r.PortDisplay
		if ports == "" {
			ports = "-"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%v\n",
			i+1, r.Label, r.Protocol.Display(), ports, r.Chain, r.ActionDisplay, r.Enabled)
	}
	w.Flush()
}
