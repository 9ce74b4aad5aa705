package crawl

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeBackend serves both listing and detail calls from canned data:
// every window lists itemsPerWindow items whose IDs encode the window
// start date.
type fakeBackend struct {
	mu             sync.Mutex
	itemsPerWindow int
	windows        []Window
	failWindow     int // 1-based window fetch to fail, 0 = never
	detailFail     map[string]bool
}

func (b *fakeBackend) ListPage(_ context.Context, _ string, w Window, pageNo, _ int) (ListPage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if pageNo == 1 {
		b.windows = append(b.windows, w)
	}
	if b.failWindow != 0 && len(b.windows) == b.failWindow {
		return ListPage{}, &RemoteError{Transient: true, Err: errors.New("listing down")}
	}
	items := make([]ItemStub, b.itemsPerWindow)
	for i := range items {
		id := fmt.Sprintf("%s-%d", w.Start.Format(DateFormat), i)
		items[i] = ItemStub{ID: id, Fields: map[string]string{"prdctIdntNo": id}}
	}
	return ListPage{Items: items, TotalCount: b.itemsPerWindow}, nil
}

func (b *fakeBackend) DetailAttributes(_ context.Context, stub ItemStub) (map[string]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.detailFail[stub.ID] {
		return nil, &RemoteError{Transient: true, Err: errors.New("detail down")}
	}
	return map[string]string{"spec": "v"}, nil
}

func (b *fakeBackend) windowStrings() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.windows))
	for i, w := range b.windows {
		out[i] = w.String()
	}
	return out
}

// memSink buffers batches in memory.
type memSink struct {
	batches     [][]Record
	flushes     int
	failOnBatch int // 1-based batch to reject, 0 = never
}

func (s *memSink) WriteBatch(records []Record) error {
	s.batches = append(s.batches, records)
	if s.failOnBatch != 0 && len(s.batches) == s.failOnBatch {
		return &IOError{Path: "mem", Err: errors.New("disk full")}
	}
	return nil
}

func (s *memSink) Flush() error { s.flushes++; return nil }

func newTestOrchestrator(backend *fakeBackend, sink RecordSink, clock Clock) *Orchestrator {
	pager := NewListPager(backend, 0, 0, nil)
	enricher := NewDetailEnricher(backend, 2, false, nil)
	return NewOrchestrator(pager, enricher, sink, clock, nil)
}

func baseRequest() CrawlRequest {
	return CrawlRequest{
		Category:      "데스크톱컴퓨터",
		TotalDays:     5,
		WindowDays:    2,
		AnchorEndDate: "20250710",
		OutputPath:    "out.csv",
	}
}

func TestOrchestratorCompletesPlan(t *testing.T) {
	backend := &fakeBackend{itemsPerWindow: 2}
	sink := &memSink{}
	orch := newTestOrchestrator(backend, sink, newFakeClock(t, "20250710"))

	cp, err := orch.Run(context.Background(), baseRequest())
	require.NoError(t, err)

	require.False(t, cp.Incomplete)
	require.Empty(t, cp.NextAnchorEndDate)
	require.Zero(t, cp.RemainingDays)
	require.Equal(t, 3, cp.WindowsProcessed)
	require.Equal(t, 6, cp.RecordsWritten)
	require.Zero(t, cp.FailedItems)

	// Most recent window first, oldest window narrower.
	require.Equal(t, []string{"20250708..20250709", "20250706..20250707", "20250705..20250705"}, backend.windowStrings())

	// One write and one flush per window.
	require.Len(t, sink.batches, 3)
	require.Equal(t, 3, sink.flushes)
}

func TestOrchestratorWindowBudgetStopsEarly(t *testing.T) {
	backend := &fakeBackend{itemsPerWindow: 2}
	sink := &memSink{}
	orch := newTestOrchestrator(backend, sink, newFakeClock(t, "20250710"))

	req := baseRequest()
	req.MaxWindowsPerCall = 1

	cp, err := orch.Run(context.Background(), req)
	require.NoError(t, err)

	require.True(t, cp.Incomplete)
	require.Equal(t, 1, cp.WindowsProcessed)
	require.Equal(t, 3, cp.RemainingDays)
	require.Equal(t, "20250708", cp.NextAnchorEndDate)
	require.Equal(t, 2, cp.RecordsWritten)
}

// steppingClock advances by a fixed step on every read.
type steppingClock struct {
	now  time.Time
	step time.Duration
}

func (c *steppingClock) Now() time.Time {
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

func TestOrchestratorRuntimeBudgetStopsEarly(t *testing.T) {
	backend := &fakeBackend{itemsPerWindow: 1}
	sink := &memSink{}
	clock := &steppingClock{now: mustDate(t, "20250710"), step: 30 * time.Second}
	orch := newTestOrchestrator(backend, sink, clock)

	req := baseRequest()
	req.MaxRuntime = time.Minute

	cp, err := orch.Run(context.Background(), req)
	require.NoError(t, err)

	require.True(t, cp.Incomplete)
	require.Equal(t, 2, cp.WindowsProcessed)
	require.Equal(t, 1, cp.RemainingDays)
	require.Equal(t, "20250706", cp.NextAnchorEndDate)
	require.Greater(t, cp.ElapsedSec, 0.0)
}

func TestOrchestratorResumeEquivalence(t *testing.T) {
	// One uninterrupted run.
	full := &fakeBackend{itemsPerWindow: 1}
	orchFull := newTestOrchestrator(full, &memSink{}, newFakeClock(t, "20250710"))
	cpFull, err := orchFull.Run(context.Background(), baseRequest())
	require.NoError(t, err)
	require.False(t, cpFull.Incomplete)

	// The same plan split across two budgeted invocations.
	split := &fakeBackend{itemsPerWindow: 1}
	orchSplit := newTestOrchestrator(split, &memSink{}, newFakeClock(t, "20250710"))

	first := baseRequest()
	first.MaxWindowsPerCall = 2
	cp1, err := orchSplit.Run(context.Background(), first)
	require.NoError(t, err)
	require.True(t, cp1.Incomplete)

	second := baseRequest()
	second.TotalDays = cp1.RemainingDays
	second.AnchorEndDate = cp1.NextAnchorEndDate
	second.Append = true
	cp2, err := orchSplit.Run(context.Background(), second)
	require.NoError(t, err)
	require.False(t, cp2.Incomplete)

	require.Equal(t, full.windowStrings(), split.windowStrings(),
		"a resumed crawl must cover exactly the windows of an uninterrupted one")
}

func TestOrchestratorListFailureAbortsWithUsableCheckpoint(t *testing.T) {
	backend := &fakeBackend{itemsPerWindow: 2, failWindow: 2}
	sink := &memSink{}
	orch := newTestOrchestrator(backend, sink, newFakeClock(t, "20250710"))

	cp, err := orch.Run(context.Background(), baseRequest())
	require.Error(t, err)
	require.True(t, IsTransient(err))

	// Only the completed window is reflected.
	require.True(t, cp.Incomplete)
	require.Equal(t, 1, cp.WindowsProcessed)
	require.Equal(t, "20250708", cp.NextAnchorEndDate)
	require.Equal(t, 2, cp.RecordsWritten)
	require.Len(t, sink.batches, 1)
}

func TestOrchestratorSinkFailureAborts(t *testing.T) {
	backend := &fakeBackend{itemsPerWindow: 1}
	sink := &memSink{failOnBatch: 1}
	orch := newTestOrchestrator(backend, sink, newFakeClock(t, "20250710"))

	cp, err := orch.Run(context.Background(), baseRequest())
	require.Error(t, err)

	var ioErr *IOError
	require.True(t, errors.As(err, &ioErr))
	require.Zero(t, cp.WindowsProcessed)
	require.True(t, cp.Incomplete)
	require.Equal(t, "20250710", cp.NextAnchorEndDate, "nothing covered, resume from the original anchor")
}

func TestOrchestratorDetailFailuresDoNotAbort(t *testing.T) {
	backend := &fakeBackend{
		itemsPerWindow: 2,
		detailFail:     map[string]bool{"20250708-0": true},
	}
	orch := newTestOrchestrator(backend, &memSink{}, newFakeClock(t, "20250710"))

	cp, err := orch.Run(context.Background(), baseRequest())
	require.NoError(t, err)
	require.Equal(t, 1, cp.FailedItems)
	require.Equal(t, 5, cp.RecordsWritten)
	require.Equal(t, 3, cp.WindowsProcessed)
}

func TestOrchestratorRejectsInvalidRequests(t *testing.T) {
	backend := &fakeBackend{itemsPerWindow: 1}
	orch := newTestOrchestrator(backend, &memSink{}, newFakeClock(t, "20250710"))

	cases := []struct {
		name   string
		mutate func(*CrawlRequest)
		field  string
	}{
		{"missing category", func(r *CrawlRequest) { r.Category = "" }, "category"},
		{"zero total days", func(r *CrawlRequest) { r.TotalDays = 0 }, "total_days"},
		{"zero window days", func(r *CrawlRequest) { r.WindowDays = 0 }, "window_days"},
		{"negative window cap", func(r *CrawlRequest) { r.MaxWindowsPerCall = -1 }, "max_windows_per_call"},
		{"missing output path", func(r *CrawlRequest) { r.OutputPath = "" }, "output_path"},
		{"bad anchor date", func(r *CrawlRequest) { r.AnchorEndDate = "2025-07-10" }, "anchor_end_date"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := baseRequest()
			tc.mutate(&req)

			_, err := orch.Run(context.Background(), req)
			var cfgErr *ConfigError
			require.True(t, errors.As(err, &cfgErr))
			require.Equal(t, tc.field, cfgErr.Field)
		})
	}
	require.Empty(t, backend.windows, "invalid requests must not hit the network")
}

func TestOrchestratorDefaultsAnchorToToday(t *testing.T) {
	backend := &fakeBackend{itemsPerWindow: 1}
	clock := newFakeClock(t, "20250710")
	clock.advance(15 * time.Hour)
	orch := newTestOrchestrator(backend, &memSink{}, clock)

	req := baseRequest()
	req.AnchorEndDate = ""
	req.TotalDays = 1
	req.WindowDays = 1

	cp, err := orch.Run(context.Background(), req)
	require.NoError(t, err)
	require.False(t, cp.Incomplete)
	require.Equal(t, []string{"20250709..20250709"}, backend.windowStrings())
}
