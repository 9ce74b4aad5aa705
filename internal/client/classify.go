package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/naramarket/crawler/internal/crawl"
)

// classifyStatus maps an HTTP status to the retry taxonomy: rate
// limiting and server errors are transient, every other non-2xx is
// permanent and short-circuits retries.
func classifyStatus(code int) *crawl.RemoteError {
	transient := code == http.StatusTooManyRequests || code >= 500
	return &crawl.RemoteError{
		Transient:  transient,
		StatusCode: code,
		Err:        fmt.Errorf("unexpected status %d", code),
	}
}

// classifyTransport maps a transport-level failure. Context
// cancellation passes through untouched so the retry loop can honor
// it; everything else (timeouts, resets, refused connections) is worth
// another attempt.
func classifyTransport(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &crawl.RemoteError{Transient: true, Err: err}
}
