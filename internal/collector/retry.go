package collector

import (
	"context"
	"crypto/rand"
	"errors"
	"math"
	"math/big"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/price-error-watch/internal/monitor"
)

// RetryPolicy decides whether and when a failed fetch is attempted again.
type RetryPolicy interface {
	ShouldRetry(err error, attempt int) bool
	Backoff(attempt int) time.Duration
}

// ExponentialRetryPolicy implements RetryPolicy with jittered backoff.
type ExponentialRetryPolicy struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
}

// NewExponentialRetryPolicy builds a policy allowing maxAttempts total attempts.
func NewExponentialRetryPolicy(maxAttempts int) *ExponentialRetryPolicy {
	if maxAttempts <= 0 {
		maxAttempts = 2
	}
	return &ExponentialRetryPolicy{
		maxAttempts: maxAttempts,
		baseDelay:   500 * time.Millisecond,
		maxDelay:    5 * time.Second,
	}
}

// ShouldRetry rejects blocked responses, cancellation and exhausted attempts.
func (p *ExponentialRetryPolicy) ShouldRetry(err error, attempt int) bool {
	if err == nil || attempt >= p.maxAttempts {
		return false
	}
	if errors.Is(err, ErrBlocked) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

// Backoff returns the wait before attempt+1.
func (p *ExponentialRetryPolicy) Backoff(attempt int) time.Duration {
	delay := float64(p.baseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(p.maxDelay) {
		delay = float64(p.maxDelay)
	}
	return time.Duration(delay/2) + randomJitter(time.Duration(delay)/2)
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}

// Retrying wraps a collector with a retry policy.
type Retrying struct {
	next   monitor.Collector
	policy RetryPolicy
	sleep  func(ctx context.Context, d time.Duration) error
	logger *zap.Logger
}

// NewRetrying wraps next. A nil policy disables retries.
func NewRetrying(next monitor.Collector, policy RetryPolicy, logger *zap.Logger) *Retrying {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retrying{next: next, policy: policy, sleep: sleepContext, logger: logger}
}

// Name returns the wrapped collector's name.
func (r *Retrying) Name() string {
	return r.next.Name()
}

// Fetch calls the wrapped collector until it succeeds or the policy gives up.
func (r *Retrying) Fetch(ctx context.Context, keyword string, maxPrice float64) ([]monitor.Product, error) {
	for attempt := 1; ; attempt++ {
		products, err := r.next.Fetch(ctx, keyword, maxPrice)
		if err == nil || r.policy == nil || !r.policy.ShouldRetry(err, attempt) {
			return products, err
		}
		wait := r.policy.Backoff(attempt)
		r.logger.Debug("retrying fetch",
			zap.String("collector", r.next.Name()),
			zap.String("keyword", keyword),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
		if sleepErr := r.sleep(ctx, wait); sleepErr != nil {
			return nil, err
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
