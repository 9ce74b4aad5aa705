package crawl

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// ListPager walks the listing endpoint for one window, page by page,
// until the API reports a short page or the hard page ceiling is hit.
// Pagination state never carries across windows: every window starts at
// page 1.
type ListPager struct {
	client   ListClient
	pageSize int
	maxPages int
	logger   *zap.Logger
}

// NewListPager builds a pager. pageSize and maxPages fall back to the
// production defaults (100 rows, 999 pages) when non-positive.
func NewListPager(client ListClient, pageSize, maxPages int, logger *zap.Logger) *ListPager {
	if pageSize <= 0 {
		pageSize = 100
	}
	if maxPages <= 0 {
		maxPages = 999
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ListPager{
		client:   client,
		pageSize: pageSize,
		maxPages: maxPages,
		logger:   logger,
	}
}

// Collect returns every item stub listed for the window, in listing
// order. Any page failure is a window-level failure: the caller gets an
// error and no partial stub set.
func (p *ListPager) Collect(ctx context.Context, category string, w Window) ([]ItemStub, error) {
	var stubs []ItemStub
	for pageNo := 1; pageNo <= p.maxPages; pageNo++ {
		page, err := p.client.ListPage(ctx, category, w, pageNo, p.pageSize)
		if err != nil {
			return nil, fmt.Errorf("list page %d of window %s: %w", pageNo, w, err)
		}
		stubs = append(stubs, page.Items...)

		p.logger.Debug("listing page fetched",
			zap.String("category", category),
			zap.String("window", w.String()),
			zap.Int("page", pageNo),
			zap.Int("items", len(page.Items)),
			zap.Int("total_count", page.TotalCount),
		)

		if len(page.Items) < p.pageSize {
			break
		}
		if page.TotalCount > 0 && len(stubs) >= page.TotalCount {
			break
		}
		if pageNo == p.maxPages {
			p.logger.Warn("page ceiling reached, truncating window listing",
				zap.String("window", w.String()),
				zap.Int("max_pages", p.maxPages),
			)
		}
	}
	return stubs, nil
}
