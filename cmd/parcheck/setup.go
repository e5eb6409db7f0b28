package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/seantiz/parcheck/internal/config"
	"github.com/seantiz/parcheck/internal/engine"
	"github.com/seantiz/parcheck/internal/store"
	"github.com/seantiz/parcheck/internal/worker"
)

// addFileFlags registers the checks file and history database flags.
func addFileFlags(cmd *cobra.Command, checksFile, dbPath string) {
	cmd.Flags().StringP("file", "f", checksFile, "path to checks file")
	cmd.Flags().String("db", dbPath, "run history database (empty disables history)")
}

// knownKind adapts a registry to the checks file validator.
func knownKind(reg *worker.Registry) config.KindLookup {
	return func(kind string) bool {
		_, err := reg.Check(kind)
		return err == nil
	}
}

// setup holds what every check-running command builds.
type setup struct {
	checker *engine.Checker
	store   store.Store
	file    *config.ChecksFile
}

func (s *setup) Close() {
	if s.store != nil {
		s.store.Close()
	}
}

// newSetup loads the checks file named by the command's flags, opens the
// history database when one is configured, and builds the checker.
func newSetup(cmd *cobra.Command, reg *worker.Registry, logger *slog.Logger) (*setup, error) {
	path, _ := cmd.Flags().GetString("file")
	dbPath, _ := cmd.Flags().GetString("db")

	file, err := config.LoadChecks(path, knownKind(reg))
	if err != nil {
		return nil, fmt.Errorf("failed to load checks: %w", err)
	}

	s := &setup{file: file}
	if dbPath != "" {
		db, err := store.NewSQLiteStore(dbPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		s.store = db
	}

	checker, err := engine.New(engine.Config{
		Tasks:    file.Checks,
		Registry: reg,
		Logger:   logger,
		Defaults: file.Params(),
		Store:    s.store,
	})
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("invalid checks file %s: %w", path, err)
	}
	s.checker = checker
	return s, nil
}

// newLogger writes JSON logs to stderr so stdout stays free for records.
func newLogger(cfg config.Config) *slog.Logger {
	return cfg.NewLogger(os.Stderr)
}
