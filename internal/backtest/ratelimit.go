package backtest

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitedRunner wraps a Runner with a token-bucket rate limit so that
// a large grid search cannot overwhelm the backtest engine
type RateLimitedRunner struct {
	inner   Runner
	limiter *rate.Limiter
}

// NewRateLimitedRunner creates a rate-limited runner. ratePerSecond <= 0
// disables limiting.
func NewRateLimitedRunner(inner Runner, ratePerSecond float64, burst int) *RateLimitedRunner {
	var limiter *rate.Limiter
	if ratePerSecond > 0 {
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(ratePerSecond), burst)
	}
	return &RateLimitedRunner{
		inner:   inner,
		limiter: limiter,
	}
}

// Run waits for a limiter token, then delegates to the wrapped runner
func (r *RateLimitedRunner) Run(ctx context.Context, strategyID string, params map[string]float64, start, end time.Time, initialCapital float64) (*PerformanceStats, error) {
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}
	return r.inner.Run(ctx, strategyID, params, start, end, initialCapital)
}
