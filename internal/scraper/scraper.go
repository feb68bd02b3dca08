package scraper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"futurespot/internal/model"
)

// FetchError indicates the remote source was unreachable or returned an
// unusable response. It is retriable; retry policy belongs to the caller.
type FetchError struct {
	Source    model.Source
	Commodity model.Commodity
	URL       string
	Err       error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s %s from %s: %v", e.Source, e.Commodity, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// FuturesScraper fetches raw futures settlement rows for a commodity and
// trade date. An empty slice with a nil error means no data is published
// for that date (weekend or holiday).
type FuturesScraper interface {
	Name() model.Source
	Fetch(ctx context.Context, commodity model.Commodity, date time.Time) ([]model.RawFuturesRow, error)
}

// SpotScraper fetches raw spot price rows for a commodity. Sources publish
// full history tables; callers rely on the store's deduplication rather
// than on date-scoped responses.
type SpotScraper interface {
	Name() model.Source
	Fetch(ctx context.Context, commodity model.Commodity, date time.Time) ([]model.RawSpotRow, error)
}

// limiter enforces a minimum delay between requests to a single source.
type limiter struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
}

func newLimiter(interval time.Duration) *limiter {
	return &limiter{interval: interval}
}

// wait blocks until the source may be hit again or the context is done.
// Each caller reserves the slot one interval after the previous
// reservation; an idle limiter never accumulates credit for a burst.
func (l *limiter) wait(ctx context.Context) error {
	l.mu.Lock()
	now := time.Now()
	next := l.last.Add(l.interval)
	if next.Before(now) {
		next = now
	}
	l.last = next
	sleep := next.Sub(now)
	l.mu.Unlock()

	if sleep <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(sleep):
		return nil
	}
}
