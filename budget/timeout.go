// Package budget tracks the wall-clock budget of one logical request.
package budget

import (
	"sync"
	"time"
)

// DefaultTotal is used when a Timeout is created without a positive ceiling.
const DefaultTotal = 30 * time.Second

// Timeout is a stopwatch measured against a fixed ceiling.
//
// The stopwatch starts at construction and may be stopped once. All methods are safe for
// concurrent use so a cancellation watcher can read it while the request path stops it.
type Timeout struct {
	mu sync.Mutex

	total time.Duration
	clock func() time.Time

	start   time.Time
	stopped bool
	frozen  time.Duration
}

// NewTimeout starts a stopwatch with the given ceiling. A nil clock uses time.Now.
func NewTimeout(total time.Duration, clock func() time.Time) *Timeout {
	if total <= 0 {
		total = DefaultTotal
	}
	if clock == nil {
		clock = time.Now
	}
	return &Timeout{
		total: total,
		clock: clock,
		start: clock(),
	}
}

func (t *Timeout) Total() time.Duration {
	return t.total
}

// Elapsed returns the time since start, or the frozen value once stopped.
func (t *Timeout) Elapsed() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.elapsedLocked()
}

// Remaining returns Total minus Elapsed. It goes negative once the budget is overrun.
func (t *Timeout) Remaining() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total - t.elapsedLocked()
}

// Stop freezes the stopwatch. Only the first call has an effect.
func (t *Timeout) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.frozen = t.elapsedLocked()
	t.stopped = true
}

func (t *Timeout) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

func (t *Timeout) elapsedLocked() time.Duration {
	if t.stopped {
		return t.frozen
	}
	d := t.clock().Sub(t.start)
	if d < 0 {
		// Clock skew.
		return 0
	}
	return d
}
