package worker

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/google/uuid"

	"github.com/seantiz/parcheck/internal/model"
)

// Worker exit codes set by the runner itself. Anything else comes from the
// task body terminating the process.
const (
	ExitOK         = 0
	ExitInitFailed = 1
	ExitPanic      = 2 // matches the Go runtime's status for an unrecovered panic
	ExitProtocol   = 3
)

// Execute runs req's init hook and then its task body. It is shared by the
// worker process and inline execution so both modes report identically.
// exitCode is ExitOK when the body returned a result.
func Execute(ctx context.Context, reg *Registry, req Request, logger *slog.Logger) (result model.Result, exitCode int) {
	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()
			logger.Error("check panic",
				"correlation_id", correlationID,
				"index", req.Index,
				"kind", req.Kind,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
			result, exitCode = nil, ExitPanic
		}
	}()

	if req.ChildInit != "" {
		hook, err := reg.Init(req.ChildInit)
		if err != nil {
			logger.Error("resolve child init", "index", req.Index, "error", err)
			return nil, ExitInitFailed
		}
		if err := hook(); err != nil {
			logger.Error("child init failed", "index", req.Index, "hook", req.ChildInit, "error", err)
			return nil, ExitInitFailed
		}
	}

	fn, err := reg.Check(req.Kind)
	if err != nil {
		logger.Error("resolve check", "index", req.Index, "error", err)
		return nil, ExitProtocol
	}

	res := fn(ctx, model.Task{ID: req.TaskID, Kind: req.Kind, Args: req.Args})
	if res == nil {
		res = model.Result{}
	}
	return res, ExitOK
}
