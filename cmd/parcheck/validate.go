package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/seantiz/parcheck/internal/checks"
	"github.com/seantiz/parcheck/internal/config"
	"github.com/seantiz/parcheck/internal/engine"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a checks file",
	Long: `Validate a checks file without running it.

The YAML is parsed, environment references are expanded, and every problem
is reported at once.

Example:
  parcheck validate -f checks.yaml`,
	RunE: runValidate,
}

var kindsCmd = &cobra.Command{
	Use:   "kinds",
	Short: "List the built-in check kinds and init hooks",
	Run: func(cmd *cobra.Command, args []string) {
		reg := checks.NewRegistry()
		fmt.Printf("kinds: %s\n", strings.Join(reg.Kinds(), ", "))
		fmt.Printf("inits: %s\n", strings.Join(reg.Inits(), ", "))
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(kindsCmd)

	validateCmd.Flags().StringP("file", "f", config.Load().ChecksFile, "path to checks file")
}

func runValidate(cmd *cobra.Command, args []string) error {
	reg := checks.NewRegistry()
	path, _ := cmd.Flags().GetString("file")

	file, err := config.LoadChecks(path, knownKind(reg))
	if err != nil {
		return fmt.Errorf("invalid checks file: %w", err)
	}

	opts := file.Params().Apply(engine.DefaultOptions())
	if err := opts.Validate(reg); err != nil {
		return fmt.Errorf("invalid run options: %w", err)
	}

	fmt.Printf("Checks file is valid!\n")
	fmt.Printf("  Checks:  %d\n", len(file.Checks))
	fmt.Printf("  Options: %s\n", opts.String())
	return nil
}
