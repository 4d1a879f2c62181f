package cmd

import (
	"fmt"

	"grimm.is/warden/internal/audit"
	"grimm.is/warden/internal/config"
	"grimm.is/warden/internal/profile"
	"grimm.is/warden/internal/rules"
)

// RunProfile dispatches the profile management subcommands.
func RunProfile(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: profile <list|create|delete|rename|use> [args]")
	}

	store := profile.NewStore()
	auditLog := audit.NewLog()
	defer auditLog.Close()

	switch args[0] {
	case "list":
		names, err := store.List()
		if err != nil {
			return err
		}
		cfg := config.Load()
		for _, name := range names {
			marker := " "
			if name == cfg.ActiveProfile {
				marker = "*"
			}
			fmt.Printf("%s %s\n", marker, name)
		}
		return nil

	case "create":
		if len(args) != 2 {
			return fmt.Errorf("usage: profile create <name>")
		}
		name := args[1]
		if store.Exists(name) {
			return fmt.Errorf("profile %q already exists", name)
		}
		err := store.Save(name, rules.NewRuleset())
		auditLog.Record(audit.NewEvent(audit.EventProfileCreated, err == nil,
			map[string]any{"profile": name}, err))
		if err != nil {
			return err
		}
		fmt.Printf("Created profile %q\n", name)
		return nil

	case "delete":
		if len(args) != 2 {
			return fmt.Errorf("usage: profile delete <name>")
		}
		name := args[1]
		err := store.Delete(name)
		auditLog.Record(audit.NewEvent(audit.EventProfileDeleted, err == nil,
			map[string]any{"profile": name}, err))
		if err != nil {
			return err
		}
		// An active-profile pointer at a deleted profile falls back to
		// default on the next load.
		fmt.Printf("Deleted profile %q\n", name)
		return nil

	case "rename":
		if len(args) != 3 {
			return fmt.Errorf("usage: profile rename <old> <new>")
		}
		oldName, newName := args[1], args[2]
		err := store.Rename(oldName, newName)
		auditLog.Record(audit.NewEvent(audit.EventProfileRenamed, err == nil,
			map[string]any{"from": oldName, "to": newName}, err))
		if err != nil {
			return err
		}
		cfg := config.Load()
		if cfg.ActiveProfile == oldName {
			cfg.ActiveProfile = newName
			if err := config.Save(&cfg); err != nil {
				return err
			}
		}
		fmt.Printf("Renamed %q to %q\n", oldName, newName)
		return nil

	case "use":
		if len(args) != 2 {
			return fmt.Errorf("usage: profile use <name>")
		}
		name := args[1]
		if !store.Exists(name) {
			return fmt.Errorf("profile %q does not exist", name)
		}
		cfg := config.Load()
		previous := cfg.ActiveProfile
		cfg.ActiveProfile = name
		err := config.Save(&cfg)
		auditLog.Record(audit.NewEvent(audit.EventProfileSwitched, err == nil,
			map[string]any{"from": previous, "to": name}, err))
		if err != nil {
			return err
		}
		fmt.Printf("Active profile is now %q (apply to take effect)\n", name)
		return nil
	}
	return fmt.Errorf("unknown profile subcommand %q", args[0])
}
