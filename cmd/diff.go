package cmd

import (
	"flag"
	"fmt"

	"github.com/pmezard/go-difflib/difflib"

	"grimm.is/warden/internal/nftgen"
	"grimm.is/warden/internal/profile"
)

// RunDiff renders a unified diff between the nft scripts of two
// profiles, the same preview shown before an apply.
func RunDiff(args []string) error {
	fs := flag.NewFlagSet("diff", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	rest := fs.Args()
	if len(rest) != 2 {
		return fmt.Errorf("usage: diff <profile-a> <profile-b>")
	}

	store := profile.NewStore()
	a, _, err := store.Load(rest[0])
	if err != nil {
		return err
	}
	b, _, err := store.Load(rest[1])
	if err != nil {
		return err
	}

	text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(nftgen.EncodeText(a)),
		B:        difflib.SplitLines(nftgen.EncodeText(b)),
		FromFile: rest[0],
		ToFile:   rest[1],
		Context:  3,
	})
	if err != nil {
		return err
	}
	if text == "" {
		fmt.Println("Profiles generate identical rulesets.")
		return nil
	}
	fmt.Print(text)
	return nil
}
