// Package main is the entry point for the parcheck CLI.
//
// Usage:
//
//	parcheck run -f checks.yaml       # Run the batch once and print its record
//	parcheck serve -f checks.yaml     # Serve the batch over HTTP
//	parcheck validate -f checks.yaml  # Validate a checks file
//	parcheck kinds                    # List check kinds and init hooks
//	parcheck version                  # Show version info
//
// The same binary doubles as the worker process: the coordinator re-executes
// it with PARCHECK_WORKER=1 and it runs a single check before exiting.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/seantiz/parcheck/internal/checks"
	"github.com/seantiz/parcheck/internal/worker"
)

// Version information, set at build time via ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// exitCode is set by commands that report a health status through the
// process exit code.
var exitCode int

var rootCmd = &cobra.Command{
	Use:   "parcheck",
	Short: "Run health checks in parallel worker processes",
	Long: `parcheck runs a batch of health checks, each in its own worker process,
under one global deadline, and folds the results into a single record.

Exit codes of "parcheck run" follow the monitoring-plugin convention:
  0 - OK
  1 - WARNING
  2 - CRITICAL
  3 - UNKNOWN`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("parcheck %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if worker.IsWorkerProcess() {
		os.Exit(worker.Main(checks.NewRegistry()))
	}

	if err := rootCmd.Execute(); err != nil {
		// Cobra already printed the error.
		os.Exit(3)
	}
	os.Exit(exitCode)
}
