package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/seantiz/parcheck/internal/model"
	"github.com/seantiz/parcheck/internal/pool"
	"github.com/seantiz/parcheck/internal/store"
	"github.com/seantiz/parcheck/internal/worker"
)

// runState is everything one invocation owns. Only the coordinating
// goroutine touches it; the pool's finish callback runs there as well.
type runState struct {
	id       string
	opts     Options
	tasks    []model.Task
	deadline *Deadline
	pool     *pool.Pool

	results []model.Result
	states  []model.TaskState

	timedOut bool
	killedAt time.Time

	logger *slog.Logger
	store  store.Store
	broker *Broker
}

func newRunState(ctx context.Context, id string, opts Options, tasks []model.Task) *runState {
	s := &runState{
		id:      id,
		opts:    opts,
		tasks:   tasks,
		results: make([]model.Result, len(tasks)),
		states:  make([]model.TaskState, len(tasks)),
	}
	for i := range s.states {
		s.states[i] = model.TaskPending
	}
	if opts.Parallel() {
		s.deadline = NewDeadline(ctx, opts.TimeoutDuration(), nil)
	}
	return s
}

func killedInfo(timeout int) string {
	return fmt.Sprintf("Check killed due to global timeout of %d seconds.", timeout)
}

func notStartedInfo(timeout int) string {
	return fmt.Sprintf("Check not started due to global timeout of %d seconds.", timeout)
}

// dispatchInline runs every task in the calling goroutine. There is no
// deadline and no kill in this mode.
func (s *runState) dispatchInline(ctx context.Context, reg *worker.Registry) {
	for i, task := range s.tasks {
		s.dispatch(i)
		req := worker.NewRequest(i, task, "", "")
		res, code := worker.Execute(ctx, reg, req, s.logger)
		s.finish(i, worker.Outcome{Result: res, ExitCode: code, FinishedAt: time.Now()})
	}
}

// dispatchParallel hands each task to a worker process while watching the
// deadline, then polls until every worker is collected or the deadline fires.
func (s *runState) dispatchParallel(l worker.Launcher, poll time.Duration) {
	s.pool = pool.New(s.opts.MaxProcs, l, s.finish, poll)

	for i, task := range s.tasks {
		if s.checkExpired() {
			break
		}

		// Marked before submitting so that an abort while waiting for a slot
		// reports the task as killed rather than not started.
		s.dispatch(i)
		req := worker.NewRequest(i, task, s.opts.ChildInit, s.opts.TempDir)
		err := s.pool.Submit(i, req, s.checkExpired)
		if errors.Is(err, pool.ErrAborted) {
			break
		}
		if err != nil {
			s.logger.Warn("worker launch failed", "run_id", s.id, "task", i, "error", err)
			s.settle(i, model.TaskCrashed,
				model.NewResult(model.StatusCritical, fmt.Sprintf("Could not start child process: %v", err)))
			continue
		}
		liveWorkers.Inc()
	}

	for !s.timedOut && s.pool.HasLiveWorkers() {
		s.pool.ReapFinished()
		if s.checkExpired() {
			break
		}
		wait := poll
		if r := s.deadline.Remaining(); r < wait {
			wait = r + time.Millisecond
		}
		s.pool.WaitAny(wait)
	}

	// Killed workers that were not reaped still have their waiters running;
	// they drain into the pool's buffer and are dropped with it.
	liveWorkers.Sub(float64(len(s.pool.Live())))

	if s.timedOut {
		s.synthesizeTimeouts()
	}
}

// checkExpired reports whether the run has timed out, performing the timeout
// the first time expiry is observed.
func (s *runState) checkExpired() bool {
	if s.timedOut {
		return true
	}
	if !s.deadline.Expired() {
		return false
	}

	s.timedOut = true
	s.killedAt = time.Now()
	s.logger.Warn("global timeout reached",
		"run_id", s.id, "timeout_s", s.opts.Timeout, "live", s.pool.Live())
	for _, err := range s.pool.TerminateAll() {
		s.logger.Error("terminate worker", "run_id", s.id, "error", err)
	}
	s.pool.ReapFinished()
	return true
}

// finish receives one worker outcome and fills that task's slot.
func (s *runState) finish(index int, out worker.Outcome) {
	if s.pool != nil {
		liveWorkers.Dec()
	}
	if s.results[index] != nil {
		return
	}
	if s.timedOut && out.FinishedAt.After(s.killedAt) {
		// Exited after the kill; the slot is synthesized as killed.
		return
	}

	if out.Output != "" {
		s.logger.Debug("worker output", "run_id", s.id, "task", index, "output", out.Output)
	}

	switch {
	case out.ExitCode != 0:
		s.logger.Info("worker exited abnormally", "run_id", s.id, "task", index, "exit_code", out.ExitCode)
		s.settle(index, model.TaskCrashed,
			model.NewResult(model.StatusCritical, fmt.Sprintf("Child process exited with code %d.", out.ExitCode)))
	case errors.Is(out.Err, worker.ErrNoResult):
		s.settle(index, model.TaskCrashed,
			model.NewResult(model.StatusCritical, "Child process exited without reporting a result."))
	case out.Err != nil:
		s.logger.Warn("worker result unreadable", "run_id", s.id, "task", index, "error", out.Err)
		s.settle(index, model.TaskCrashed,
			model.NewResult(model.StatusCritical, fmt.Sprintf("Could not read child process result: %v", out.Err)))
	default:
		res := out.Result
		if res == nil {
			res = model.Result{}
		}
		s.settle(index, model.TaskCompleted, res)
	}
}

// synthesizeTimeouts fills every slot still empty after a timeout.
func (s *runState) synthesizeTimeouts() {
	for i := range s.results {
		if s.results[i] != nil {
			continue
		}
		switch s.states[i] {
		case model.TaskDispatched:
			s.settle(i, model.TaskKilled, model.NewResult(model.StatusCritical, killedInfo(s.opts.Timeout)))
		case model.TaskPending:
			s.settle(i, model.TaskNotStarted, model.NewResult(model.StatusCritical, notStartedInfo(s.opts.Timeout)))
		}
	}
}

// transition moves a task to a new state. Disallowed moves are logged and ignored.
func (s *runState) transition(index int, to model.TaskState) bool {
	from := s.states[index]
	if !model.ValidTaskTransition(from, to) {
		s.logger.Error("invalid task transition",
			"run_id", s.id, "task", index, "from", from, "to", to)
		return false
	}
	s.states[index] = to
	return true
}

func (s *runState) dispatch(index int) {
	if s.transition(index, model.TaskDispatched) {
		s.publish(index)
	}
}

// settle records a terminal state and its result for a task.
func (s *runState) settle(index int, to model.TaskState, res model.Result) {
	if !s.transition(index, to) {
		return
	}
	s.results[index] = res
	tasksTotal.WithLabelValues(string(to)).Inc()
	s.publish(index)

	if s.store == nil {
		return
	}
	task := s.tasks[index]
	rec := &model.TaskRecord{
		RunID:  s.id,
		Index:  index,
		TaskID: task.ID,
		Kind:   task.Kind,
		State:  to,
		Status: res.Status(),
		Info:   res.Info(),
		Result: res,
	}
	if err := s.store.InsertTaskRecord(context.Background(), rec); err != nil {
		s.logger.Error("failed to persist task record", "run_id", s.id, "task", index, "error", err)
	}
}

func (s *runState) publish(index int) {
	if s.broker == nil {
		return
	}
	task := s.tasks[index]
	ev := Event{
		RunID:  s.id,
		Index:  index,
		TaskID: task.ID,
		Kind:   task.Kind,
		State:  s.states[index],
		Time:   time.Now().UTC(),
	}
	if res := s.results[index]; res != nil {
		ev.Status = res.Status()
		ev.Info = res.Info()
	}
	s.broker.Publish(s.id, ev)
}
