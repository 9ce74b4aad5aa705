package crawl

import "time"

// RuntimeBudget stops the crawl at window boundaries once either the
// window count or the wall-clock limit for this invocation is spent.
// It is never consulted mid-window, so windows stay atomic with respect
// to the budget.
type RuntimeBudget struct {
	clock      Clock
	start      time.Time
	maxWindows int
	maxRuntime time.Duration
}

// NewRuntimeBudget starts the wall clock now. Zero limits disable the
// corresponding trigger.
func NewRuntimeBudget(clock Clock, maxWindows int, maxRuntime time.Duration) *RuntimeBudget {
	return &RuntimeBudget{
		clock:      clock,
		start:      clock.Now(),
		maxWindows: maxWindows,
		maxRuntime: maxRuntime,
	}
}

// Continue reports whether another window may be processed after
// windowsDone have completed.
func (b *RuntimeBudget) Continue(windowsDone int) bool {
	if b.maxWindows > 0 && windowsDone >= b.maxWindows {
		return false
	}
	if b.maxRuntime > 0 && b.Elapsed() >= b.maxRuntime {
		return false
	}
	return true
}

// Elapsed returns wall-clock time since the invocation started.
func (b *RuntimeBudget) Elapsed() time.Duration {
	return b.clock.Now().Sub(b.start)
}
