package engine

import (
	"context"
	"time"
)

// Deadline is the single wall-clock budget of one run. It starts when
// dispatch begins and covers collection too; it is never reset.
type Deadline struct {
	ctx context.Context
	at  time.Time
	now func() time.Time
}

// NewDeadline returns a deadline timeout after now. A done ctx counts as an
// early expiry.
func NewDeadline(ctx context.Context, timeout time.Duration, now func() time.Time) *Deadline {
	if now == nil {
		now = time.Now
	}
	return &Deadline{ctx: ctx, at: now().Add(timeout), now: now}
}

// At returns the instant the deadline passes.
func (d *Deadline) At() time.Time {
	return d.at
}

// Remaining returns the time left, never negative.
func (d *Deadline) Remaining() time.Duration {
	if r := d.at.Sub(d.now()); r > 0 {
		return r
	}
	return 0
}

// Expired reports whether the clock has passed the deadline or ctx is done.
func (d *Deadline) Expired() bool {
	if d.ctx != nil && d.ctx.Err() != nil {
		return true
	}
	return d.now().After(d.at)
}
