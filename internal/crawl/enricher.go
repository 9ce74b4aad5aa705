package crawl

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// AttributesColumn holds the serialized attribute map when attributes
// are not exploded into individual columns.
const AttributesColumn = "attributes"

// DetailEnricher resolves the detail attributes for each item stub and
// merges them into full records. A failed item is skipped and counted;
// it never fails the window. Detail fetches for one window may run
// concurrently up to the configured limit, but Enrich always returns
// only after every fetch for the window has resolved.
type DetailEnricher struct {
	client      DetailClient
	concurrency int
	explode     bool
	logger      *zap.Logger
}

// NewDetailEnricher builds an enricher. concurrency <= 1 means fully
// sequential fetches.
func NewDetailEnricher(client DetailClient, concurrency int, explode bool, logger *zap.Logger) *DetailEnricher {
	if concurrency <= 0 {
		concurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DetailEnricher{
		client:      client,
		concurrency: concurrency,
		explode:     explode,
		logger:      logger,
	}
}

// Enrich fetches details for every stub and returns the completed
// records plus the count of items that failed permanently or exhausted
// their retries. Record order follows fetch completion, not listing
// order.
func (e *DetailEnricher) Enrich(ctx context.Context, stubs []ItemStub) ([]Record, int) {
	var (
		mu      sync.Mutex
		records = make([]Record, 0, len(stubs))
		failed  int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for _, stub := range stubs {
		stub := stub
		g.Go(func() error {
			attrs, err := e.client.DetailAttributes(gctx, stub)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				e.logger.Warn("detail fetch failed, skipping item",
					zap.String("item_id", stub.ID),
					zap.Error(err),
				)
				return nil
			}
			records = append(records, e.merge(stub, attrs))
			return nil
		})
	}
	// Workers never return errors; item failures are counted instead.
	_ = g.Wait()
	return records, failed
}

func (e *DetailEnricher) merge(stub ItemStub, attrs map[string]string) Record {
	columns := make(map[string]string, len(stub.Fields)+len(attrs)+1)
	for k, v := range stub.Fields {
		columns[k] = v
	}
	if e.explode {
		// Listing fields win on a name clash.
		for k, v := range attrs {
			if _, exists := columns[k]; !exists {
				columns[k] = v
			}
		}
	} else {
		columns[AttributesColumn] = encodeAttributes(attrs)
	}
	return Record{ID: stub.ID, Columns: columns}
}

func encodeAttributes(attrs map[string]string) string {
	if len(attrs) == 0 {
		return "{}"
	}
	// json.Marshal sorts map keys, so the blob is deterministic.
	blob, err := json.Marshal(attrs)
	if err != nil {
		return "{}"
	}
	return string(blob)
}
