package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/seantiz/parcheck/internal/api"
	"github.com/seantiz/parcheck/internal/checks"
	"github.com/seantiz/parcheck/internal/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the checks over HTTP",
	Long: `Start the HTTP API for the checks file.

POST /v1/check runs the batch synchronously, POST /v1/runs queues a run in
the background, and GET /v1/runs/{id}/events streams its task events.

The server runs until interrupted (Ctrl+C) or receives SIGTERM. Queued runs
are allowed to finish before the process exits.

Example:
  parcheck serve -f checks.yaml --addr :9090`,
	RunE: runServe,
}

func init() {
	cfg := config.Load()
	rootCmd.AddCommand(serveCmd)

	addFileFlags(serveCmd, cfg.ChecksFile, cfg.DBPath)
	serveCmd.Flags().String("addr", cfg.ListenAddr, "listen address")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	logger := newLogger(cfg)
	reg := checks.NewRegistry()

	s, err := newSetup(cmd, reg, logger)
	if err != nil {
		return err
	}
	defer s.Close()

	addr, _ := cmd.Flags().GetString("addr")
	logger.Info("parcheck: starting",
		"listen_addr", addr,
		"checks", len(s.checker.Tasks()),
		"options", s.checker.Defaults().String(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := api.NewServer(addr, s.checker, reg, s.store, logger)
	err = srv.Run(ctx)

	logger.Info("waiting for queued runs")
	s.checker.Wait()

	if err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
