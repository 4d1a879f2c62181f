package main

import (
	"fmt"
	"os"

	"grimm.is/warden/cmd"
	"grimm.is/warden/internal/brand"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "check":
		err = cmd.RunCheck(os.Args[2:])
	case "show":
		err = cmd.RunShow(os.Args[2:])
	case "diff":
		err = cmd.RunDiff(os.Args[2:])
	case "apply":
		err = cmd.RunApply(os.Args[2:])
	case "revert":
		err = cmd.RunRevert(os.Args[2:])
	case "profile":
		err = cmd.RunProfile(os.Args[2:])
	case "rule":
		err = cmd.RunRule(os.Args[2:])
	case "export":
		err = cmd.RunExport(os.Args[2:])
	case "log":
		err = cmd.RunLog(os.Args[2:])
	case "gen":
		err = cmd.RunGen(os.Args[2:])
	case "version", "--version", "-v":
		cmd.RunVersion()
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf(`%s - %s

Usage:
  %s <command> [options]

Firewall Commands:
  apply     Verify and apply a profile, with an auto-revert window
            Options: --profile (-p) <name>, --yes (-y), --dry-run (-n)
  revert    Restore the most recent pre-apply snapshot
  check     Validate a profile
            Options: --profile (-p) <name>, --verbose (-v), --nft
  show      Display a profile
            Options: --profile (-p) <name>, --format (-f) table|nft|json
  diff      Compare the generated rulesets of two profiles

Profile Commands:
  profile   Manage profiles
            Subcommands: list, create, delete, rename, use
  rule      Edit rules in a profile
            Subcommands: add, delete, toggle, move
  export    Export a profile
            Options: --profile (-p), --format (-f) yaml|json|nft, --output (-o)

Utility Commands:
  log       Show the audit log
            Options: -n <lines>, --type (-t) <event>, --failed, --json
  gen       Generate a stress-test profile
            Options: --count (-c), --output (-o), --edge-cases, --seed,
                     --scenario, --report, --verify, --dry-run
  version   Print version information

Examples:
  %s profile create laptop
  %s rule add --profile laptop --label "SSH" --protocol tcp --ports 22
  %s apply --profile laptop
  %s log -n 20 --type apply-rules
  %s gen --scenario chaos --seed 12345 -o /tmp/chaos.json

For command-specific options: %s <command> --help
`,
		brand.Name, brand.Description,
		brand.LowerName,
		brand.LowerName, brand.LowerName, brand.LowerName,
		brand.LowerName, brand.LowerName, brand.LowerName)
}
