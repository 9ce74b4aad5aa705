package crawl

import (
	"context"
	"time"
)

// ListClient fetches one page of the listing endpoint for a window.
type ListClient interface {
	ListPage(ctx context.Context, category string, w Window, pageNo, numRows int) (ListPage, error)
}

// DetailClient fetches the attribute map for one listed item.
type DetailClient interface {
	DetailAttributes(ctx context.Context, stub ItemStub) (map[string]string, error)
}

// RecordSink receives completed records. WriteBatch may buffer;
// Flush commits everything buffered so far to the target file.
type RecordSink interface {
	WriteBatch(records []Record) error
	Flush() error
}

// Clock returns the current time (swappable for tests).
type Clock interface {
	Now() time.Time
}
