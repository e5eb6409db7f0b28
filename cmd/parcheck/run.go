package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/seantiz/parcheck/internal/checks"
	"github.com/seantiz/parcheck/internal/config"
	"github.com/seantiz/parcheck/internal/engine"
	"github.com/seantiz/parcheck/internal/health"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the checks once and print the record",
	Long: `Run every check in the checks file once and print the resulting record
as JSON on stdout. The process exits with the status's plugin exit code.

Flags override the run options from the checks file for this run only.
Invalid overrides produce a CRITICAL record rather than a usage error.

Example:
  parcheck run -f checks.yaml
  parcheck run -f checks.yaml --max-procs 8 --timeout 30`,
	RunE: runRun,
}

func init() {
	cfg := config.Load()
	rootCmd.AddCommand(runCmd)

	// One-shot runs keep no history unless asked to.
	addFileFlags(runCmd, cfg.ChecksFile, "")
	runCmd.Flags().Int("max-procs", 0, "maximum concurrent worker processes (0 or 1 runs inline)")
	runCmd.Flags().Int("timeout", 0, "global deadline in seconds")
	runCmd.Flags().String("child-init", "", "init hook each worker runs before its check")
	runCmd.Flags().String("tempdir", "", "TMPDIR for worker processes")
	runCmd.Flags().Bool("pretty", false, "indent the JSON record")
}

// overrides collects the flags the user actually set.
func overrides(cmd *cobra.Command) engine.Params {
	var p engine.Params
	flags := cmd.Flags()
	if flags.Changed("max-procs") {
		n, _ := flags.GetInt("max-procs")
		p.MaxProcs = &n
	}
	if flags.Changed("timeout") {
		n, _ := flags.GetInt("timeout")
		p.Timeout = &n
	}
	if flags.Changed("child-init") {
		s, _ := flags.GetString("child-init")
		p.ChildInit = &s
	}
	if flags.Changed("tempdir") {
		s, _ := flags.GetString("tempdir")
		p.TempDir = &s
	}
	return p
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	logger := newLogger(cfg)

	s, err := newSetup(cmd, checks.NewRegistry(), logger)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res := s.checker.Check(ctx, overrides(cmd))

	enc := json.NewEncoder(os.Stdout)
	if pretty, _ := cmd.Flags().GetBool("pretty"); pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(res); err != nil {
		return err
	}

	exitCode = health.ExitCode(res.Status())
	return nil
}
