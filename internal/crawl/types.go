// Package crawl defines the core types and state machine for the
// windowed catalog crawl.
package crawl

import (
	"fmt"
	"time"
)

// DateFormat is the wire format for calendar dates on the Nara Market API.
const DateFormat = "20060102"

// CrawlRequest is the caller-supplied description of one crawl
// invocation. It is immutable for the duration of the run; the returned
// Checkpoint is the only output that outlives it.
type CrawlRequest struct {
	Category          string        `json:"category"`
	TotalDays         int           `json:"total_days"`
	WindowDays        int           `json:"window_days"`
	AnchorEndDate     string        `json:"anchor_end_date,omitempty"` // YYYYMMDD, empty = today
	MaxWindowsPerCall int           `json:"max_windows_per_call"`      // 0 = unlimited
	MaxRuntime        time.Duration `json:"-"`
	MaxRuntimeSec     int           `json:"max_runtime_sec,omitempty"`
	Append            bool          `json:"append"`
	FailOnNewColumns  bool          `json:"fail_on_new_columns"`
	ExplodeAttributes bool          `json:"explode_attributes"`
	OutputPath        string        `json:"output_path"`
}

// Window is a bounded date range processed as one atomic unit of the
// crawl. Start is inclusive, End exclusive, both at UTC midnight.
type Window struct {
	Start time.Time
	End   time.Time
}

// Days returns the span of the window in whole days.
func (w Window) Days() int {
	return int(w.End.Sub(w.Start).Hours() / 24)
}

// String renders the window as an inclusive wire-format range.
func (w Window) String() string {
	return fmt.Sprintf("%s..%s", w.Start.Format(DateFormat), w.End.AddDate(0, 0, -1).Format(DateFormat))
}

// ItemStub is the minimal identifying data for one product, taken from
// a listing page and enriched later by a detail fetch.
type ItemStub struct {
	ID     string
	Fields map[string]string
}

// Record is a full flattened row: listing fields merged with detail
// attributes, keyed by the product identification number.
type Record struct {
	ID      string
	Columns map[string]string
}

// ListPage is one page of a window's listing.
type ListPage struct {
	Items      []ItemStub
	TotalCount int
}

// Checkpoint is the terminal state of one invocation. It carries enough
// information for the caller to construct the next CrawlRequest; no
// resume state is kept server-side.
type Checkpoint struct {
	Incomplete        bool    `json:"incomplete"`
	NextAnchorEndDate string  `json:"next_anchor_end_date,omitempty"` // YYYYMMDD, empty when complete
	RemainingDays     int     `json:"remaining_days"`
	WindowsProcessed  int     `json:"windows_processed"`
	RecordsWritten    int     `json:"records_written"`
	FailedItems       int     `json:"failed_items"`
	ElapsedSec        float64 `json:"elapsed_sec"`
	AppendMode        bool    `json:"append_mode"`
}

// ParseDate parses a YYYYMMDD wire date into a UTC midnight time.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateFormat, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}

// Midnight truncates t to UTC midnight.
func Midnight(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
