package cmd

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"grimm.is/warden/internal/applyctl"
	"grimm.is/warden/internal/audit"
	"grimm.is/warden/internal/config"
	"grimm.is/warden/internal/nftexec"
	"grimm.is/warden/internal/nftgen"
	"grimm.is/warden/internal/profile"
)

// RunApply verifies and applies a profile, then holds the confirmation
// window open: press Enter to keep the ruleset, or let the dead-man
// timer restore the snapshot.
func RunApply(args []string) error {
	fs := flag.NewFlagSet("apply", flag.ContinueOnError)
	var (
		profileName string
		yes         bool
		dryRun      bool
	)
	fs.StringVar(&profileName, "profile", "", "Profile to apply (default: active profile)")
	fs.StringVar(&profileName, "p", "", "Alias for -profile")
	fs.BoolVar(&yes, "yes", false, "Confirm immediately, skipping the revert window")
	fs.BoolVar(&yes, "y", false, "Alias for -yes")
	fs.BoolVar(&dryRun, "dry-run", false, "Print the generated script without applying")
	fs.BoolVar(&dryRun, "n", false, "Alias for -dry-run")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg := config.Load()
	store := profile.NewStore()
	if profileName == "" {
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

	if dryRun {
		fmt.Print(nftgen.EncodeText(rs))
		return nil
	}

	auditLog := audit.NewLog()
	defer auditLog.Close()

	window := time.Duration(cfg.AutoRevertSecs) * time.Second
	ctrl := applyctl.New(nftexec.NewExecRunner(), auditLog, nil, window)

	fmt.Printf("Applying profile %q (%d rules)...\n", profileName, len(rs.EnabledRules()))
	if err := ctrl.Apply(context.Background(), rs); err != nil {
		if ctrl.EmergencyActive() {
			fmt.Fprintln(os.Stderr, "EMERGENCY: minimal accept-all ruleset is active")
		}
		return err
	}

	if yes {
		if err := ctrl.Confirm(); err != nil {
			return err
		}
		fmt.Println("Applied and confirmed.")
		return nil
	}

	fmt.Printf("Applied. Press Enter within %d seconds to keep, or the previous rules come back.\n",
		cfg.AutoRevertSecs)

	confirmed := make(chan struct{})
	go func() {
		bufio.NewReader(os.Stdin).ReadString('\n')
		close(confirmed)
	}()

	select {
	case <-confirmed:
		if err := ctrl.Confirm(); err != nil {
			// Timer won the race; rules were already restored.
			fmt.Println("Too late: the revert window expired and the previous rules were restored.")
			return nil
		}
		fmt.Println("Confirmed.")
	case <-time.After(window + time.Second):
		fmt.Println("No confirmation: previous rules restored.")
	}
	return nil
}

// RunRevert restores the most recent snapshot.
func RunRevert(args []string) error {
	fs := flag.NewFlagSet("revert", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	auditLog := audit.NewLog()
	defer auditLog.Close()

	ctrl := applyctl.New(nftexec.NewExecRunner(), auditLog, nil, 0)
	if err := ctrl.Revert(context.Background()); err != nil {
		if ctrl.EmergencyActive() {
			fmt.Fprintln(os.Stderr, "EMERGENCY: minimal accept-all ruleset is active")
		}
		return err
	}
	fmt.Println("Snapshot restored.")
	return nil
}
