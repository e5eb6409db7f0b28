package worker

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// EnvWorker marks a process as a worker. The launcher re-executes the current
// binary with it set; the binary's main (or TestMain) hands control to Main.
const EnvWorker = "PARCHECK_WORKER"

// resultFD is the descriptor of the result pipe inherited from the coordinator.
const resultFD = 3

// IsWorkerProcess reports whether the current process was started as a worker.
func IsWorkerProcess() bool {
	return os.Getenv(EnvWorker) == "1"
}

// Main runs one task in the current process and returns the exit code the
// process should terminate with. The request is read from stdin and the result
// is written to the inherited result pipe.
func Main(reg *Registry) int {
	// Children of the task body (command checks) must not become workers.
	os.Unsetenv(EnvWorker)

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	var req Request
	if err := ReadMessage(os.Stdin, &req); err != nil {
		logger.Error("read request", "error", err)
		return ExitProtocol
	}

	if req.TempDir != "" {
		if err := os.Setenv("TMPDIR", req.TempDir); err != nil {
			logger.Error("set TMPDIR", "tempdir", req.TempDir, "error", err)
		}
		if err := os.Chdir(req.TempDir); err != nil {
			logger.Error("chdir tempdir", "tempdir", req.TempDir, "error", err)
		}
	}

	out := os.NewFile(resultFD, "result")
	if out == nil {
		logger.Error("result pipe missing", "fd", resultFD)
		return ExitProtocol
	}
	defer out.Close()
	closeOnExec(out.Fd())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	result, code := Execute(ctx, reg, req, logger)
	if code != ExitOK {
		return code
	}

	if err := WriteMessage(out, Response{Index: req.Index, Result: result}); err != nil {
		logger.Error("write result", "index", req.Index, "error", err)
		return ExitProtocol
	}
	return ExitOK
}
