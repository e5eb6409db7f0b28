package worker

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/seantiz/parcheck/internal/model"
)

// ErrNoResult is reported when a worker exits cleanly without writing a result.
var ErrNoResult = errors.New("worker exited without reporting a result")

// Outcome is what the coordinator learns about one finished worker.
type Outcome struct {
	// Result is the record the task body returned. Nil unless ExitCode is 0
	// and Err is nil.
	Result model.Result

	// ExitCode is the worker's exit status. Termination by signal is reported
	// as 128+signal.
	ExitCode int

	// Err is set when the worker exited 0 but its result could not be read.
	Err error

	// Output holds the worker's combined stdout and stderr.
	Output string

	// FinishedAt is when the worker's exit was observed.
	FinishedAt time.Time

	// Duration is the time from launch to exit.
	Duration time.Duration
}

// Handle is a launched worker owned by a pool.
type Handle interface {
	// Wait blocks until the worker exits and reports its outcome. It must be
	// called exactly once.
	Wait() Outcome

	// Kill forcibly terminates the worker. Killing an exited worker is a no-op.
	Kill() error
}

// Launcher starts an isolated worker for one request.
type Launcher interface {
	Launch(req Request) (Handle, error)
}

// ProcessLauncher starts each worker as a separate OS process running Path
// with EnvWorker set. Path is normally the current executable.
type ProcessLauncher struct {
	Path string
	Args []string
	Env  []string
}

// SelfLauncher returns a launcher that re-executes the running binary.
func SelfLauncher() (*ProcessLauncher, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("resolve executable: %w", err)
	}
	return &ProcessLauncher{Path: exe}, nil
}

// Launch starts a worker process for req. The request is delivered on the
// worker's stdin; the result comes back on an extra pipe so that anything the
// task prints cannot corrupt it.
func (l *ProcessLauncher) Launch(req Request) (Handle, error) {
	var stdin bytes.Buffer
	if err := WriteMessage(&stdin, &req); err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	resultR, resultW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("create result pipe: %w", err)
	}

	cmd := exec.Command(l.Path, l.Args...)
	cmd.Env = append(append(os.Environ(), l.Env...), EnvWorker+"=1")
	cmd.Stdin = &stdin
	output := &syncBuffer{}
	cmd.Stdout = output
	cmd.Stderr = output
	cmd.ExtraFiles = []*os.File{resultW}
	setProcessGroup(cmd)

	start := time.Now()
	if err := cmd.Start(); err != nil {
		resultR.Close()
		resultW.Close()
		return nil, fmt.Errorf("start worker: %w", err)
	}
	// The child holds its own copy; ours must go so reads see EOF on exit.
	resultW.Close()

	return &Process{cmd: cmd, results: resultR, output: output, start: start}, nil
}

// Process is a running worker process.
type Process struct {
	cmd     *exec.Cmd
	results *os.File
	output  *syncBuffer
	start   time.Time
}

// Wait reads the worker's result frame, reaps the process, and reports the outcome.
func (p *Process) Wait() Outcome {
	var resp Response
	readErr := ReadMessage(p.results, &resp)
	p.results.Close()

	waitErr := p.cmd.Wait()
	out := Outcome{
		ExitCode:   exitStatus(p.cmd.ProcessState),
		Output:     strings.TrimSpace(p.output.String()),
		FinishedAt: time.Now(),
	}
	out.Duration = out.FinishedAt.Sub(p.start)

	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) && out.ExitCode == 0 {
		out.Err = fmt.Errorf("wait worker: %w", waitErr)
		return out
	}
	if out.ExitCode != 0 {
		return out
	}
	if readErr != nil {
		if errors.Is(readErr, io.EOF) {
			out.Err = ErrNoResult
		} else {
			out.Err = fmt.Errorf("read result: %w", readErr)
		}
		return out
	}

	out.Result = resp.Result
	if out.Result == nil {
		out.Result = model.Result{}
	}
	return out
}

// Kill terminates the worker and everything it started.
func (p *Process) Kill() error {
	return killProcessGroup(p.cmd)
}

// Pid returns the worker's process ID.
func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// syncBuffer is a bytes.Buffer safe for the concurrent stdout/stderr copiers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
