// Package runlog records one audit row per crawl invocation. The
// orchestrator never reads it back: resume state travels exclusively
// through the Checkpoint returned to the caller.
package runlog

import (
	"context"
	"time"

	"github.com/naramarket/crawler/internal/crawl"
)

// Run is one crawl invocation's audit row.
type Run struct {
	ID         string
	Category   string
	OutputPath string
	StartedAt  time.Time
	FinishedAt time.Time
	Checkpoint crawl.Checkpoint
	ErrorText  string
}

// Store persists invocation rows.
type Store interface {
	RecordRun(ctx context.Context, run Run) error
	Close()
}
