package cmd

import (
	"flag"
	"fmt"

	"grimm.is/warden/internal/config"
	"grimm.is/warden/internal/nftgen"
	"grimm.is/warden/internal/profile"
)

// RunShow prints a profile in one of three forms: a rule table, the
// nft text script, or the JSON sent to nft on apply.
func RunShow(args []string) error {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	var (
		profileName string
		format      string
	)
	fs.StringVar(&profileName, "profile", "", "Profile to show (default: active profile)")
	fs.StringVar(&profileName, "p", "", "Alias for -profile")
	fs.StringVar(&format, "format", "table", "Output format: table, nft, json")
	fs.StringVar(&format, "f", "table", "Alias for -format")
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

	rs, _, err := store.Load(profileName)
	if err != nil {
		return err
	}

	switch format {
	case "table":
		printRuleTable(rs)
	case "nft":
		fmt.Print(nftgen.EncodeText(rs))
	case "json":
		wire, err := nftgen.EncodeWire(rs)
		if err != nil {
			return err
		}
		fmt.Println(string(wire))
	default:
		return fmt.Errorf("unknown format %q (table, nft, json)", format)
	}
	return nil
}
