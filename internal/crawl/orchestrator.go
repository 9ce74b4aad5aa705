package crawl

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Orchestrator ties the crawl state machine together: plan windows,
// then for each window run listing, detail enrichment, and the sink
// write, consulting the runtime budget between windows. Windows are
// processed strictly most-recent-first and never concurrently.
type Orchestrator struct {
	pager    *ListPager
	enricher *DetailEnricher
	sink     RecordSink
	clock    Clock
	logger   *zap.Logger
}

// NewOrchestrator wires an orchestrator for a single invocation. The
// sink must already be open against the request's output path.
func NewOrchestrator(pager *ListPager, enricher *DetailEnricher, sink RecordSink, clock Clock, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		pager:    pager,
		enricher: enricher,
		sink:     sink,
		clock:    clock,
		logger:   logger,
	}
}

// Run executes the crawl described by req and returns a Checkpoint.
// The checkpoint is well-formed even on failure, so a caller can always
// resume: it only ever references windows that finished writing.
func (o *Orchestrator) Run(ctx context.Context, req CrawlRequest) (Checkpoint, error) {
	if err := ValidateRequest(req); err != nil {
		return Checkpoint{AppendMode: req.Append}, err
	}

	anchor, err := resolveAnchor(req.AnchorEndDate, o.clock)
	if err != nil {
		return Checkpoint{AppendMode: req.Append}, err
	}

	windows, err := PlanWindows(req.TotalDays, req.WindowDays, anchor)
	if err != nil {
		return Checkpoint{AppendMode: req.Append}, err
	}

	budget := NewRuntimeBudget(o.clock, req.MaxWindowsPerCall, maxRuntime(req))

	o.logger.Info("crawl started",
		zap.String("category", req.Category),
		zap.Int("total_days", req.TotalDays),
		zap.Int("window_days", req.WindowDays),
		zap.Int("planned_windows", len(windows)),
		zap.String("anchor_end_date", anchor.Format(DateFormat)),
		zap.Bool("append", req.Append),
	)

	state := runState{anchor: anchor, req: req}
	for _, w := range windows {
		if err := o.processWindow(ctx, req, w, &state); err != nil {
			cp := o.checkpoint(state, budget)
			o.logger.Error("crawl aborted mid-plan",
				zap.String("window", w.String()),
				zap.Int("windows_processed", state.windowsDone),
				zap.Error(err),
			)
			return cp, err
		}
		if !budget.Continue(state.windowsDone) {
			o.logger.Info("runtime budget exhausted, stopping early",
				zap.Int("windows_processed", state.windowsDone),
				zap.Duration("elapsed", budget.Elapsed()),
			)
			break
		}
	}

	cp := o.checkpoint(state, budget)
	o.logger.Info("crawl finished",
		zap.Bool("incomplete", cp.Incomplete),
		zap.Int("windows_processed", cp.WindowsProcessed),
		zap.Int("records_written", cp.RecordsWritten),
		zap.Int("failed_items", cp.FailedItems),
		zap.Int("remaining_days", cp.RemainingDays),
	)
	return cp, nil
}

type runState struct {
	anchor      time.Time
	req         CrawlRequest
	windowsDone int
	coveredDays int
	written     int
	failedItems int
}

func (o *Orchestrator) processWindow(ctx context.Context, req CrawlRequest, w Window, state *runState) error {
	stubs, err := o.pager.Collect(ctx, req.Category, w)
	if err != nil {
		return err
	}

	records, failed := o.enricher.Enrich(ctx, stubs)

	if err := o.sink.WriteBatch(records); err != nil {
		return fmt.Errorf("write window %s: %w", w, err)
	}
	if err := o.sink.Flush(); err != nil {
		return fmt.Errorf("flush window %s: %w", w, err)
	}

	state.windowsDone++
	state.coveredDays += w.Days()
	state.written += len(records)
	state.failedItems += failed

	o.logger.Info("window completed",
		zap.String("window", w.String()),
		zap.Int("items_listed", len(stubs)),
		zap.Int("records_written", len(records)),
		zap.Int("failed_items", failed),
	)
	return nil
}

// checkpoint derives the resume contract from completed windows only.
// The next anchor is the start date of the oldest completed window, so
// the next invocation continues exactly where this one stopped.
func (o *Orchestrator) checkpoint(state runState, budget *RuntimeBudget) Checkpoint {
	remaining := state.req.TotalDays - state.coveredDays
	if remaining < 0 {
		remaining = 0
	}
	cp := Checkpoint{
		Incomplete:       remaining > 0,
		RemainingDays:    remaining,
		WindowsProcessed: state.windowsDone,
		RecordsWritten:   state.written,
		FailedItems:      state.failedItems,
		ElapsedSec:       budget.Elapsed().Seconds(),
		AppendMode:       state.req.Append,
	}
	if cp.Incomplete {
		cp.NextAnchorEndDate = state.anchor.AddDate(0, 0, -state.coveredDays).Format(DateFormat)
	}
	return cp
}

// ValidateRequest checks a CrawlRequest before any resource is
// touched. Callers that open the output file themselves must run it
// first, so a rejected request can never truncate existing output.
func ValidateRequest(req CrawlRequest) error {
	if req.Category == "" {
		return &ConfigError{Field: "category", Msg: "is required"}
	}
	if req.TotalDays <= 0 {
		return &ConfigError{Field: "total_days", Msg: "must be >= 1"}
	}
	if req.WindowDays <= 0 {
		return &ConfigError{Field: "window_days", Msg: "must be >= 1"}
	}
	if req.MaxWindowsPerCall < 0 {
		return &ConfigError{Field: "max_windows_per_call", Msg: "must be >= 0"}
	}
	if req.OutputPath == "" {
		return &ConfigError{Field: "output_path", Msg: "is required"}
	}
	if req.AnchorEndDate != "" {
		if _, err := ParseDate(req.AnchorEndDate); err != nil {
			return &ConfigError{Field: "anchor_end_date", Msg: fmt.Sprintf("invalid date %q", req.AnchorEndDate)}
		}
	}
	return nil
}

func resolveAnchor(s string, clock Clock) (time.Time, error) {
	if s == "" {
		return Midnight(clock.Now()), nil
	}
	t, err := ParseDate(s)
	if err != nil {
		return time.Time{}, &ConfigError{Field: "anchor_end_date", Msg: fmt.Sprintf("invalid date %q", s)}
	}
	return t, nil
}

func maxRuntime(req CrawlRequest) time.Duration {
	if req.MaxRuntime > 0 {
		return req.MaxRuntime
	}
	return time.Duration(req.MaxRuntimeSec) * time.Second
}
