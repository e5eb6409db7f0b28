package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/seantiz/parcheck/internal/health"
	"github.com/seantiz/parcheck/internal/model"
	"github.com/seantiz/parcheck/internal/pool"
	"github.com/seantiz/parcheck/internal/store"
	"github.com/seantiz/parcheck/internal/worker"
)

// ErrNoStore is returned by Submit when the checker has no run history.
var ErrNoStore = errors.New("run history is not configured")

// TimeoutError reports that a run hit its global deadline. The partial
// result is returned alongside it.
type TimeoutError struct {
	Seconds int
	// Cause is the context error when cancellation ended the run early.
	Cause error
}

func (e *TimeoutError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("check run cancelled: %v", e.Cause)
	}
	return fmt.Sprintf("check run exceeded global timeout of %d seconds", e.Seconds)
}

func (e *TimeoutError) Unwrap() error {
	return e.Cause
}

// Config configures a Checker.
type Config struct {
	// Tasks is the batch every call runs, in order. Required.
	Tasks []model.Task
	// Registry resolves check kinds and init hooks. Required.
	Registry *worker.Registry
	// Launcher starts worker processes. Defaults to re-executing the current binary.
	Launcher worker.Launcher
	Logger   *slog.Logger
	// Defaults are layered over DefaultOptions.
	Defaults Params
	// Store, when set, records every run and its task results.
	Store store.Store
	// PollInterval bounds each wait while a run is blocked. Defaults to
	// pool.DefaultPollInterval.
	PollInterval time.Duration
}

// Checker runs a fixed batch of checks, each in its own worker process,
// under one global deadline.
type Checker struct {
	tasks    []model.Task
	registry *worker.Registry
	launcher worker.Launcher
	logger   *slog.Logger
	defaults Options
	store    store.Store
	poll     time.Duration
	broker   *Broker
	wg       sync.WaitGroup
}

// New validates cfg and returns a Checker. Invalid defaults are returned as
// a *ConfigError.
func New(cfg Config) (*Checker, error) {
	if len(cfg.Tasks) == 0 {
		return nil, errors.New("no checks configured")
	}
	if cfg.Registry == nil {
		return nil, errors.New("registry is required")
	}
	for i, t := range cfg.Tasks {
		if _, err := cfg.Registry.Check(t.Kind); err != nil {
			return nil, fmt.Errorf("check %d: %w", i, err)
		}
	}

	defaults := cfg.Defaults.Apply(DefaultOptions())
	if err := defaults.Validate(cfg.Registry); err != nil {
		return nil, err
	}

	launcher := cfg.Launcher
	if launcher == nil {
		l, err := worker.SelfLauncher()
		if err != nil {
			return nil, err
		}
		launcher = l
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	poll := cfg.PollInterval
	if poll <= 0 {
		poll = pool.DefaultPollInterval
	}

	return &Checker{
		tasks:    slices.Clone(cfg.Tasks),
		registry: cfg.Registry,
		launcher: launcher,
		logger:   logger,
		defaults: defaults,
		store:    cfg.Store,
		poll:     poll,
		broker:   NewBroker(),
	}, nil
}

// Tasks returns a copy of the batch.
func (c *Checker) Tasks() []model.Task {
	return slices.Clone(c.tasks)
}

// Defaults returns the options used when a call overrides nothing.
func (c *Checker) Defaults() Options {
	return c.defaults
}

// Broker returns the checker's event broker for SSE subscription.
func (c *Checker) Broker() *Broker {
	return c.broker
}

// Wait blocks until all submitted runs complete.
func (c *Checker) Wait() {
	c.wg.Wait()
}

// Options layers p over the checker defaults and validates the result.
func (c *Checker) Options(p Params) (Options, error) {
	opts := p.Apply(c.defaults)
	if err := opts.Validate(c.registry); err != nil {
		return Options{}, err
	}
	return opts, nil
}

// Check runs the batch once and returns the caller-facing record. Invalid
// overrides and timeouts are reported inside the record, never as errors.
func (c *Checker) Check(ctx context.Context, p Params) model.Result {
	res, _ := c.Run(ctx, "", p)
	return res
}

// Run runs the batch once under runID, generating one when empty. It
// returns a *ConfigError for invalid overrides and a *TimeoutError when the
// deadline fired; in both cases the returned record is still usable.
func (c *Checker) Run(ctx context.Context, runID string, p Params) (model.Result, error) {
	opts, err := c.Options(p)
	if err != nil {
		return configFailure(err), err
	}
	if runID == "" {
		runID = model.NewID()
	}
	if c.store != nil {
		if err := c.store.CreateRun(ctx, c.newRun(runID, opts)); err != nil {
			c.logger.Error("failed to record run", "run_id", runID, "error", err)
		}
	}
	return c.execute(ctx, runID, opts)
}

// Submit records a pending run and executes it in the background. The run's
// events are published on the broker under the returned ID.
func (c *Checker) Submit(ctx context.Context, p Params) (string, error) {
	if c.store == nil {
		return "", ErrNoStore
	}
	opts, err := c.Options(p)
	if err != nil {
		return "", err
	}

	runID := model.NewID()
	if err := c.store.CreateRun(ctx, c.newRun(runID, opts)); err != nil {
		return "", fmt.Errorf("create run: %w", err)
	}

	c.wg.Go(func() {
		c.execute(context.Background(), runID, opts)
	})
	return runID, nil
}

func (c *Checker) newRun(id string, opts Options) *model.Run {
	return &model.Run{
		ID:        id,
		State:     model.RunPending,
		TaskCount: len(c.tasks),
		MaxProcs:  opts.MaxProcs,
		TimeoutS:  opts.Timeout,
		CreatedAt: time.Now().UTC(),
	}
}

// execute runs the lifecycle of one run: pending→running→completed/timed_out.
func (c *Checker) execute(ctx context.Context, runID string, opts Options) (model.Result, error) {
	defer c.broker.Close(runID)

	logger := c.logger.With("run_id", runID)
	if c.store != nil {
		if err := c.store.UpdateRunState(context.WithoutCancel(ctx), runID, model.RunRunning); err != nil {
			logger.Error("failed to transition to running", "error", err)
		}
	}

	start := time.Now()
	s := newRunState(ctx, runID, opts, c.tasks)
	s.logger, s.store, s.broker = c.logger, c.store, c.broker

	mode := "inline"
	logger.Info("run started", "tasks", len(c.tasks), "options", opts.String())
	if opts.Parallel() {
		mode = "parallel"
		s.dispatchParallel(c.launcher, c.poll)
	} else {
		s.dispatchInline(ctx, c.registry)
	}

	var info string
	var runErr error
	state := model.RunCompleted
	if s.timedOut {
		info = killedInfo(opts.Timeout)
		state = model.RunTimedOut
		runErr = &TimeoutError{Seconds: opts.Timeout, Cause: ctx.Err()}
	}
	summary := health.Summarize(s.results, info)

	elapsed := time.Since(start)
	runsTotal.WithLabelValues(state).Inc()
	runDuration.WithLabelValues(mode).Observe(elapsed.Seconds())
	logger.Info("run finished", "state", state, "status", summary.Status(), "duration_ms", elapsed.Milliseconds())

	if c.store != nil {
		dur := int(elapsed.Milliseconds())
		startedAt := start.UTC()
		finishedAt := time.Now().UTC()
		run := &model.Run{
			ID:         runID,
			State:      state,
			Status:     summary.Status(),
			Result:     summary,
			DurationMS: &dur,
			StartedAt:  &startedAt,
			FinishedAt: &finishedAt,
		}
		if runErr != nil {
			run.Error = runErr.Error()
		}
		if err := c.store.FinishRun(context.WithoutCancel(ctx), run); err != nil {
			logger.Error("failed to record finished run", "error", err)
		}
	}

	return summary, runErr
}

func configFailure(err error) model.Result {
	var cfgErr *ConfigError
	if errors.As(err, &cfgErr) {
		return model.NewResult(model.StatusCritical, cfgErr.Message)
	}
	return model.NewResult(model.StatusCritical, err.Error())
}
