package cmd

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os/exec"

	"grimm.is/warden/internal/nftexec"
	"grimm.is/warden/internal/stress"
)

// RunGen generates a stress-test profile: thousands of rules covering
// every variant and boundary, reproducible from a seed.
func RunGen(args []string) error {
	fs := flag.NewFlagSet("gen", flag.ContinueOnError)
	var (
		count     int
		output    string
		edgeCases bool
		seed      int64
		report    bool
		verify    bool
		scenario  string
		dryRun    bool
	)
	fs.IntVar(&count, "count", 100, "Number of rules to generate")
	fs.IntVar(&count, "c", 100, "Alias for -count")
	fs.StringVar(&output, "output", "", "Output file (required unless -dry-run)")
	fs.StringVar(&output, "o", "", "Alias for -output")
	fs.BoolVar(&edgeCases, "edge-cases", false, "Include boundary values and semantic mismatches")
	fs.Int64Var(&seed, "seed", 0, "Seed for reproducible generation (0: random)")
	fs.BoolVar(&report, "report", false, "Print the coverage report")
	fs.BoolVar(&verify, "verify", false, "Run the result through nft --check if nft is installed")
	fs.StringVar(&scenario, "scenario", "", "Preset: minimal, typical, enterprise, chaos")
	fs.BoolVar(&dryRun, "dry-run", false, "Generate without writing files")
	if err := fs.Parse(args); err != nil {
		return err
	}

	edgeCaseProb := 0.15
	if scenario != "" {
		sc, err := stress.ParseScenario(scenario)
		if err != nil {
			return err
		}
		count = sc.Count()
		edgeCases = sc.EdgeCases()
		edgeCaseProb = sc.EdgeCaseProbability()
		fmt.Printf("Scenario: %s\n", scenario)
	}
	if count < stress.MinCoverageCount {
		fmt.Printf("warning: %d rules is below the full-coverage minimum (%d); some variants may be missing\n",
			count, stress.MinCoverageCount)
	}
	if !dryRun && output == "" {
		return fmt.Errorf("--output is required (or use --dry-run)")
	}

	if seed == 0 {
		seed = rand.Int63()
	}
	fmt.Printf("Seed: %d\n", seed)

	gen := stress.NewGenerator(seed)
	rs, cov := gen.Generate(count, edgeCases, edgeCaseProb)

	if missing := cov.Missing(); len(missing) > 0 {
		fmt.Printf("warning: missing coverage for %v\n", missing)
	}

	if verify {
		if _, err := exec.LookPath("nft"); err != nil {
			fmt.Println("nft --check: skipped (nft not installed)")
		} else if err := stress.Verify(context.Background(), nftexec.NewExecRunner(), rs); err != nil {
			fmt.Println("nft --check: FAILED")
			for _, msg := range nftexec.Messages(err) {
				fmt.Printf("  %s\n", msg)
			}
			return err
		} else {
			fmt.Println("nft --check: passed")
		}
	}

	if report {
		fmt.Println()
		fmt.Print(cov.Report(count))
	}

	if dryRun {
		fmt.Printf("\n[dry run] would write %d rules, no files written\n", len(rs.Rules))
		return nil
	}

	sidecar, err := stress.WriteProfile(output, rs)
	if err != nil {
		return err
	}
	fmt.Printf("Wrote %s\nWrote %s\n", output, sidecar)
	return nil
}
