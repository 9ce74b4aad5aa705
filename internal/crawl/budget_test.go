package crawl

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced Clock shared by the tests in this
// package.
type fakeClock struct {
	now time.Time
}

func newFakeClock(t *testing.T, s string) *fakeClock {
	t.Helper()
	return &fakeClock{now: mustDate(t, s)}
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func TestRuntimeBudgetWindowCap(t *testing.T) {
	clock := newFakeClock(t, "20250710")
	b := NewRuntimeBudget(clock, 2, 0)

	require.True(t, b.Continue(0))
	require.True(t, b.Continue(1))
	require.False(t, b.Continue(2))
	require.False(t, b.Continue(3))
}

func TestRuntimeBudgetTimeCap(t *testing.T) {
	clock := newFakeClock(t, "20250710")
	b := NewRuntimeBudget(clock, 0, 10*time.Minute)

	require.True(t, b.Continue(100))
	clock.advance(9 * time.Minute)
	require.True(t, b.Continue(100))
	clock.advance(time.Minute)
	require.False(t, b.Continue(0))
	require.Equal(t, 10*time.Minute, b.Elapsed())
}

func TestRuntimeBudgetUnlimited(t *testing.T) {
	clock := newFakeClock(t, "20250710")
	b := NewRuntimeBudget(clock, 0, 0)

	clock.advance(240 * time.Hour)
	require.True(t, b.Continue(10000))
}
