package collector

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/price-error-watch/internal/metrics"
	"github.com/JakeFAU/price-error-watch/internal/monitor"
)

// Throttled caps the request rate of one collector with a token bucket, so
// retries and parallel cycles cannot burst a single retailer.
type Throttled struct {
	next    monitor.Collector
	limiter *rate.Limiter
	now     func() time.Time
}

// NewThrottled wraps next. A non-positive rps disables the limit.
func NewThrottled(next monitor.Collector, rps float64, burst int) *Throttled {
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	return &Throttled{next: next, limiter: rate.NewLimiter(limit, burst), now: time.Now}
}

// Name returns the wrapped collector's name.
func (t *Throttled) Name() string {
	return t.next.Name()
}

// Fetch waits for a token and then calls the wrapped collector.
func (t *Throttled) Fetch(ctx context.Context, keyword string, maxPrice float64) ([]monitor.Product, error) {
	start := t.now()
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	if waited := t.now().Sub(start); waited > time.Millisecond {
		metrics.ObserveRateLimitDelay(t.next.Name(), waited)
	}
	return t.next.Fetch(ctx, keyword, maxPrice)
}
