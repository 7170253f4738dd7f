// ABOUTME: Main entry point for the brain-migrate CLI
// ABOUTME: Sets up the Cobra root command and maps failures to exit code 1
package main

import (
	"fmt"
	"os"

	"github.com/harper/brain-migrate/cmd/brain-migrate/commands"
)

// Version information (set by goreleaser)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.SetVersion(version, commit, date)

	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
