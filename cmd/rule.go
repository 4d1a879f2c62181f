package cmd

import (
	"flag"
	"fmt"
	"strconv"
	"strings"

	"grimm.is/warden/internal/audit"
	"grimm.is/warden/internal/config"
	"grimm.is/warden/internal/history"
	"grimm.is/warden/internal/profile"
	"grimm.is/warden/internal/rules"
	"grimm.is/warden/internal/validation"
)

// RunRule edits a profile from the command line: add, delete, toggle,
// move. Edits run through the same command engine the editor uses, so
// every mutation is validated and audited the same way.
func RunRule(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: rule <add|delete|toggle|move> [args]")
	}

	store := profile.NewStore()
	auditLog := audit.NewLog()
	defer auditLog.Close()

	cfg := config.Load()
	engine := history.NewEngine(100)

	switch args[0] {
	case "add":
		return ruleAdd(args[1:], store, &cfg, engine, auditLog)
	case "delete":
		return ruleMutate(args[1:], store, &cfg, auditLog, audit.EventRuleDeleted,
			func(rs *rules.FirewallRuleset, idx int) (history.Command, error) {
				return history.Delete(idx, &rs.Rules[idx]), nil
			}, engine)
	case "toggle":
		return ruleMutate(args[1:], store, &cfg, auditLog, audit.EventRuleToggled,
			func(rs *rules.FirewallRuleset, idx int) (history.Command, error) {
				return history.Toggle(&rs.Rules[idx]), nil
			}, engine)
	case "move":
		return ruleMove(args[1:], store, &cfg, engine, auditLog)
	}
	return fmt.Errorf("unknown rule subcommand %q", args[0])
}

func ruleAdd(args []string, store *profile.Store, cfg *config.AppConfig, engine *history.Engine, auditLog *audit.Log) error {
	fs := flag.NewFlagSet("rule add", flag.ContinueOnError)
	var (
		profileName string
		label       string
		proto       string
		chain       string
		action      string
		ports       string
		sources     string
		iface       string
	)
	fs.StringVar(&profileName, "profile", "", "Profile to edit (default: active profile)")
	fs.StringVar(&label, "label", "", "Rule label (required)")
	fs.StringVar(&proto, "protocol", "tcp", "Protocol: any, tcp, udp, tcp+udp, icmp, icmpv6, icmp-both")
	fs.StringVar(&chain, "chain", "input", "Chain: input or output")
	fs.StringVar(&action, "action", "accept", "Action: accept, drop, reject")
	fs.StringVar(&ports, "ports", "", "Comma-separated ports or ranges, e.g. 22,8000-8080")
	fs.StringVar(&sources, "sources", "", "Comma-separated source CIDRs")
	fs.StringVar(&iface, "interface", "", "Interface name")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if label == "" {
		return fmt.Errorf("--label is required")
	}

	name, rs, err := loadForEdit(store, cfg, profileName)
	if err != nil {
		return err
	}

	p := rules.Protocol(proto)
	if !p.Valid() {
		return fmt.Errorf("unknown protocol %q", proto)
	}
	r := rules.NewRule(validation.SanitizeLabel(label), p)
	r.Chain = rules.Chain(chain)
	if !r.Chain.Valid() {
		return fmt.Errorf("unknown chain %q", chain)
	}
	r.Action = rules.Action(action)
	if !r.Action.Valid() {
		return fmt.Errorf("unknown action %q", action)
	}
	if iface != "" {
		if err := validation.ValidateInterface(iface); err != nil {
			return err
		}
		if rules.ChainUsesInputInterface(r.Chain) {
			r.Interface = iface
		} else {
			r.OutputInterface = iface
		}
	}
	if ports != "" {
		entries, err := parsePorts(ports)
		if err != nil {
			return err
		}
		if !rules.ProtocolSupportsPorts(p) {
			return fmt.Errorf("protocol %s does not support ports", p)
		}
		r.Ports = entries
	}
	if sources != "" {
		for _, s := range strings.Split(sources, ",") {
			s = strings.TrimSpace(s)
			if err := validation.ValidateCIDR(s); err != nil {
				return err
			}
			r.Sources = append(r.Sources, s)
		}
	}
	r.RebuildCaches()

	cmd := history.Add(r)
	if err := engine.Execute(rs, cmd); err != nil {
		return err
	}
	if err := store.Save(name, rs); err != nil {
		return err
	}
	auditLog.Record(audit.NewEvent(audit.EventRuleCreated, true,
		map[string]any{"profile": name, "rule": r.Label}, nil))
	fmt.Printf("Added rule %q to %q (%d rules)\n", r.Label, name, len(rs.Rules))
	return nil
}

// ruleMutate handles the index-addressed single-rule edits.
func ruleMutate(args []string, store *profile.Store, cfg *config.AppConfig, auditLog *audit.Log,
	event audit.EventType, build func(*rules.FirewallRuleset, int) (history.Command, error),
	engine *history.Engine) error {

	fs := flag.NewFlagSet("rule", flag.ContinueOnError)
	var profileName string
	fs.StringVar(&profileName, "profile", "", "Profile to edit (default: active profile)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	rest := fs.Args()
	if len(rest) != 1 {
		return fmt.Errorf("expected a rule number")
	}

	name, rs, err := loadForEdit(store, cfg, profileName)
	if err != nil {
		return err
	}
	idx, err := ruleIndex(rest[0], len(rs.Rules))
	if err != nil {
		return err
	}
	label := rs.Rules[idx].Label

	cmd, err := build(rs, idx)
	if err != nil {
		return err
	}
	if err := engine.Execute(rs, cmd); err != nil {
		return err
	}
	if err := store.Save(name, rs); err != nil {
		return err
	}
	auditLog.Record(audit.NewEvent(event, true,
		map[string]any{"profile": name, "rule": label}, nil))
	fmt.Printf("%s: rule %q in %q\n", cmd.Description(), label, name)
	return nil
}

func ruleMove(args []string, store *profile.Store, cfg *config.AppConfig, engine *history.Engine, auditLog *audit.Log) error {
	fs := flag.NewFlagSet("rule move", flag.ContinueOnError)
	var profileName string
	fs.StringVar(&profileName, "profile", "", "Profile to edit (default: active profile)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	rest := fs.Args()
	if len(rest) != 2 {
		return fmt.Errorf("usage: rule move <from> <to>")
	}

	name, rs, err := loadForEdit(store, cfg, profileName)
	if err != nil {
		return err
	}
	from, err := ruleIndex(rest[0], len(rs.Rules))
	if err != nil {
		return err
	}
	to, err := ruleIndex(rest[1], len(rs.Rules))
	if err != nil {
		return err
	}

	if err := engine.Execute(rs, history.Reorder(from, to)); err != nil {
		return err
	}
	if err := store.Save(name, rs); err != nil {
		return err
	}
	auditLog.Record(audit.NewEvent(audit.EventRulesReordered, true,
		map[string]any{"profile": name, "from": from + 1, "to": to + 1}, nil))
	fmt.Printf("Moved rule %d to %d in %q\n", from+1, to+1, name)
	return nil
}

func loadForEdit(store *profile.Store, cfg *config.AppConfig, profileName string) (string, *rules.FirewallRuleset, error) {
	if profileName == "" {
		name, err := config.ResolveActiveProfile(cfg, store)
		if err != nil {
			return "", nil, err
		}
		profileName = name
	}
	rs, _, err := store.Load(profileName)
	if err != nil {
		return "", nil, err
	}
	return profileName, rs, nil
}

// ruleIndex parses a 1-based rule number.
func ruleIndex(s string, count int) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > count {
		return 0, fmt.Errorf("rule number must be 1-%d", count)
	}
	return n - 1, nil
}

// parsePorts parses "22,80,8000-8080" into port entries.
func parsePorts(s string) ([]rules.PortEntry, error) {
	var entries []rules.PortEntry
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if start, end, ok := strings.Cut(part, "-"); ok {
			lo, err1 := strconv.ParseUint(start, 10, 16)
			hi, err2 := strconv.ParseUint(end, 10, 16)
			if err1 != nil || err2 != nil || lo == 0 || lo > hi {
				return nil, fmt.Errorf("invalid port range %q", part)
			}
			entries = append(entries, rules.PortRange(uint16(lo), uint16(hi)))
		} else {
			p, err := strconv.ParseUint(part, 10, 16)
			if err != nil || p == 0 {
				return nil, fmt.Errorf("invalid port %q", part)
			}
			entries = append(entries, rules.SinglePort(uint16(p)))
		}
	}
	return entries, nil
}
