package scraper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLimiter_SpacesRequests(t *testing.T) {
	l := newLimiter(50 * time.Millisecond)

	start := time.Now()
	for i := 0; i < 3; i++ {
		assert.NoError(t, l.wait(context.Background()))
	}

	// Three requests through a 50ms limiter need at least two intervals.
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

func TestLimiter_FirstRequestImmediate(t *testing.T) {
	l := newLimiter(time.Minute)

	start := time.Now()
	assert.NoError(t, l.wait(context.Background()))
	assert.Less(t, time.Since(start), time.Second)
}

func TestLimiter_ZeroInterval(t *testing.T) {
	l := newLimiter(0)

	start := time.Now()
	for i := 0; i < 10; i++ {
		assert.NoError(t, l.wait(context.Background()))
	}
	assert.Less(t, time.Since(start), time.Second)
}

func TestLimiter_ContextCancelled(t *testing.T) {
	l := newLimiter(time.Minute)
	assert.NoError(t, l.wait(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, l.wait(ctx), context.Canceled)
}
