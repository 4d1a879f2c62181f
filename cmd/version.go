package cmd

import (
	"fmt"

	"grimm.is/warden/internal/brand"
)

// RunVersion prints the build identity.
func RunVersion() {
	fmt.Printf("%s %s\n", brand.Name, brand.Version)
	fmt.Printf("  commit: %s\n", brand.GitCommit)
	fmt.Printf("  built:  %s\n", brand.BuildTime)
}
