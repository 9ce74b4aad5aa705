// Package app initializes and holds long-lived application services,
// and exposes the crawl operation shared by the CLI and HTTP surfaces.
package app

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/naramarket/crawler/internal/client"
	"github.com/naramarket/crawler/internal/clock/system"
	"github.com/naramarket/crawler/internal/config"
	"github.com/naramarket/crawler/internal/crawl"
	"github.com/naramarket/crawler/internal/id/uuid"
	"github.com/naramarket/crawler/internal/metrics"
	"github.com/naramarket/crawler/internal/ratelimit"
	"github.com/naramarket/crawler/internal/runlog"
	"github.com/naramarket/crawler/internal/sink"
)

// Categories maps the known Nara Market product category names to the
// slugs used for default output filenames.
var Categories = map[string]string{
	"데스크톱컴퓨터":   "desktop_computers",
	"운영체제":      "operating_system",
	"DVD드라이브":   "dvd_drive",
	"마그네틱카드판독기": "magnetic_card_reader",
}

// App holds the shared, long-lived services for the crawler.
type App struct {
	cfg    config.Config
	logger *zap.Logger
	api    *client.Client
	runs   runlog.Store
	clock  crawl.Clock
	ids    *uuid.Generator
}

// New initializes all services from configuration. It fails fast when
// the run-log database is configured but unreachable.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	metrics.Init()

	limiter := ratelimit.New(ratelimit.Config{Interval: cfg.Delay(), Burst: 1})
	api := client.New(client.Config{
		ServiceKey:    cfg.API.ServiceKey,
		ListURL:       cfg.API.ListURL,
		DetailURL:     cfg.API.DetailURL,
		ListTimeout:   cfg.ListTimeout(),
		DetailTimeout: cfg.DetailTimeout(),
		Retry: crawl.RetryPolicy{
			MaxAttempts: cfg.API.MaxRetries,
			BaseDelay:   cfg.BackoffBase(),
			MaxDelay:    10 * cfg.BackoffBase(),
			Retryable:   crawl.IsTransient,
		},
		Limiter: limiter,
		Logger:  logger,
	})

	var runs runlog.Store
	if cfg.DB.DSN != "" {
		store, err := runlog.NewPostgresStore(ctx, runlog.PostgresConfig{
			DSN:      cfg.DB.DSN,
			Table:    cfg.DB.Table,
			MaxConns: cfg.DB.MaxConns,
		})
		if err != nil {
			return nil, fmt.Errorf("init run log: %w", err)
		}
		logger.Info("run log backed by postgres", zap.String("table", cfg.DB.Table))
		runs = store
	} else {
		logger.Info("run log kept in memory; set db.dsn to persist invocations")
		runs = runlog.NewMemoryStore()
	}

	return &App{
		cfg:    cfg,
		logger: logger,
		api:    api,
		runs:   runs,
		clock:  system.New(),
		ids:    uuid.New(),
	}, nil
}

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config {
	return a.cfg
}

// Runs exposes the run-log store.
func (a *App) Runs() runlog.Store {
	return a.runs
}

// RunCrawl executes one crawl invocation end to end: open the sink,
// drive the orchestrator, record the audit row, and hand the Checkpoint
// back to the caller. The returned Checkpoint is well-formed even when
// err is non-nil.
func (a *App) RunCrawl(ctx context.Context, req crawl.CrawlRequest) (crawl.Checkpoint, error) {
	if a.cfg.API.ServiceKey == "" {
		return crawl.Checkpoint{AppendMode: req.Append}, &crawl.ConfigError{Field: "api.service_key", Msg: "is required"}
	}
	if req.OutputPath == "" {
		req.OutputPath = a.defaultOutputPath(req.Category)
	}
	// Rejecting the request must happen before the sink opens the
	// output file, or a fresh-mode open would truncate existing data.
	if err := crawl.ValidateRequest(req); err != nil {
		return crawl.Checkpoint{AppendMode: req.Append}, err
	}

	out, err := sink.Open(sink.Config{
		Path:             req.OutputPath,
		Append:           req.Append,
		FailOnNewColumns: req.FailOnNewColumns,
		BatchSize:        a.cfg.Crawl.BatchSize,
		Logger:           a.logger,
	})
	if err != nil {
		return crawl.Checkpoint{AppendMode: req.Append}, err
	}

	pager := crawl.NewListPager(a.api, a.cfg.API.PageSize, a.cfg.API.MaxPages, a.logger)
	enricher := crawl.NewDetailEnricher(a.api, a.cfg.Crawl.Concurrency, req.ExplodeAttributes, a.logger)
	orch := crawl.NewOrchestrator(pager, enricher, out, a.clock, a.logger)

	started := a.clock.Now()
	cp, runErr := orch.Run(ctx, req)
	if cerr := out.Close(); cerr != nil && runErr == nil {
		runErr = cerr
	}

	a.observe(req, cp, runErr)
	a.recordRun(ctx, req, started, cp, runErr)
	return cp, runErr
}

// Close gracefully shuts down the services held by the App.
func (a *App) Close() {
	a.runs.Close()
	if err := a.logger.Sync(); err != nil {
		// Best effort; stderr may already be gone on shutdown.
		_ = err
	}
}

func (a *App) defaultOutputPath(category string) string {
	slug, ok := Categories[category]
	if !ok {
		slug = strings.ToLower(strings.ReplaceAll(category, " ", "_"))
	}
	return filepath.Join(a.cfg.Crawl.OutputDir, slug+".csv")
}

func (a *App) observe(req crawl.CrawlRequest, cp crawl.Checkpoint, runErr error) {
	metrics.ObserveRecords(req.Category, cp.RecordsWritten)
	metrics.ObserveWindows(req.Category, cp.WindowsProcessed)
	metrics.ObserveDetailFailures(req.Category, cp.FailedItems)
	switch {
	case runErr != nil:
		metrics.ObserveRun("failed")
	case cp.Incomplete:
		metrics.ObserveRun("partial")
	default:
		metrics.ObserveRun("complete")
	}
}

func (a *App) recordRun(ctx context.Context, req crawl.CrawlRequest, started time.Time, cp crawl.Checkpoint, runErr error) {
	id, err := a.ids.NewID()
	if err != nil {
		a.logger.Warn("skipping run log entry", zap.Error(err))
		return
	}
	run := runlog.Run{
		ID:         id,
		Category:   req.Category,
		OutputPath: req.OutputPath,
		StartedAt:  started,
		FinishedAt: a.clock.Now(),
		Checkpoint: cp,
	}
	if runErr != nil {
		run.ErrorText = runErr.Error()
	}
	if err := a.runs.RecordRun(ctx, run); err != nil {
		a.logger.Warn("run log write failed", zap.String("run_id", id), zap.Error(err))
	}
}
