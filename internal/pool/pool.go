// Package pool bounds the number of live worker processes and hands their
// outcomes back to the single goroutine that owns the pool.
//
// None of the methods are safe for concurrent use: a Pool belongs to one
// coordinating goroutine, and the finish callback always runs on it, from
// inside Submit, ReapFinished or WaitAny. Worker handles are waited on by
// helper goroutines that only forward outcomes over a channel.
package pool

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/seantiz/parcheck/internal/worker"
)

// DefaultPollInterval is how long a blocked Submit or WaitAny sleeps between
// checks of its abort condition.
const DefaultPollInterval = time.Second

// ErrAborted is returned by Submit when abort fired while waiting for a slot.
var ErrAborted = errors.New("submission aborted")

// FinishFunc receives the outcome of each worker, exactly once per worker.
type FinishFunc func(index int, out worker.Outcome)

type finished struct {
	index int
	out   worker.Outcome
}

// Pool runs up to a fixed number of workers at once.
type Pool struct {
	max      int
	launcher worker.Launcher
	onFinish FinishFunc
	poll     time.Duration

	live   map[int]worker.Handle
	killed map[int]bool
	// done has room for one outcome per slot, so waiters never block even
	// after the owner stops reaping.
	done chan finished
}

// New creates a pool of max slots. max below 1 is treated as 1.
func New(max int, l worker.Launcher, onFinish FinishFunc, poll time.Duration) *Pool {
	if max < 1 {
		max = 1
	}
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	return &Pool{
		max:      max,
		launcher: l,
		onFinish: onFinish,
		poll:     poll,
		live:     make(map[int]worker.Handle, max),
		killed:   make(map[int]bool),
		done:     make(chan finished, max),
	}
}

// Submit starts a worker for the task at index. When every slot is taken it
// reaps and waits in poll-interval steps until a slot frees, consulting abort
// before each wait. It returns ErrAborted if abort reports true first.
func (p *Pool) Submit(index int, req worker.Request, abort func() bool) error {
	for len(p.live) >= p.max {
		if p.ReapFinished() > 0 {
			continue
		}
		if abort != nil && abort() {
			return ErrAborted
		}
		p.WaitAny(p.poll)
	}

	h, err := p.launcher.Launch(req)
	if err != nil {
		return fmt.Errorf("launch task %d: %w", index, err)
	}

	p.live[index] = h
	go func() {
		p.done <- finished{index: index, out: h.Wait()}
	}()
	return nil
}

// ReapFinished collects every worker that has already exited without
// blocking, and returns how many it collected.
func (p *Pool) ReapFinished() int {
	n := 0
	for {
		select {
		case f := <-p.done:
			p.finish(f)
			n++
		default:
			return n
		}
	}
}

// WaitAny blocks for at most d until one worker exits, collects it, and
// reports whether it did. It returns immediately when no workers are live.
func (p *Pool) WaitAny(d time.Duration) bool {
	if len(p.live) == 0 {
		return false
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case f := <-p.done:
		p.finish(f)
		return true
	case <-timer.C:
		return false
	}
}

// TerminateAll kills every live worker. It does not wait for them to exit;
// their slots are released once they are reaped. Calling it again only
// affects workers started since.
func (p *Pool) TerminateAll() []error {
	var errs []error
	for index, h := range p.live {
		if p.killed[index] {
			continue
		}
		p.killed[index] = true
		if err := h.Kill(); err != nil {
			errs = append(errs, fmt.Errorf("kill task %d: %w", index, err))
		}
	}
	return errs
}

// HasLiveWorkers reports whether any worker has not been reaped yet.
func (p *Pool) HasLiveWorkers() bool {
	return len(p.live) > 0
}

// Live returns the task indices of unreaped workers in ascending order.
func (p *Pool) Live() []int {
	indices := make([]int, 0, len(p.live))
	for index := range p.live {
		indices = append(indices, index)
	}
	sort.Ints(indices)
	return indices
}

// Killed reports whether TerminateAll signalled the worker for index.
func (p *Pool) Killed(index int) bool {
	return p.killed[index]
}

func (p *Pool) finish(f finished) {
	delete(p.live, f.index)
	if p.onFinish != nil {
		p.onFinish(f.index, f.out)
	}
}
