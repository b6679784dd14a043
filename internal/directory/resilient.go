package directory

import (
	"context"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/credleak/internal/resilience"
)

// Resilient guards a directory with a rate limiter, retries and a
// circuit breaker. A missing entry is not a failure.
type Resilient struct {
	next    Directory
	limiter *rate.Limiter
	retry   resilience.RetryConfig
	breaker *resilience.CircuitBreaker
}

// NewResilient wraps next. A nil limiter disables rate limiting.
func NewResilient(next Directory, limiter *rate.Limiter, retry resilience.RetryConfig, cb resilience.CircuitBreakerConfig) *Resilient {
	cb.ShouldTrip = func(err error) bool { return !eris.Is(err, ErrNotFound) }
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger("directory", "lookup")
	}
	return &Resilient{
		next:    next,
		limiter: limiter,
		retry:   retry,
		breaker: resilience.NewCircuitBreaker(cb),
	}
}

// NewLimiter builds the lookup rate limiter. A non-positive rate means
// unlimited.
func NewLimiter(perSec float64, burst int) *rate.Limiter {
	if perSec <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSec), burst)
}

// Lookup implements Directory.
func (r *Resilient) Lookup(ctx context.Context, email string) (*Entry, error) {
	return resilience.ExecuteVal(ctx, r.breaker, func(ctx context.Context) (*Entry, error) {
		return resilience.DoVal(ctx, r.retry, func(ctx context.Context) (*Entry, error) {
			if r.limiter != nil {
				if err := r.limiter.Wait(ctx); err != nil {
					return nil, eris.Wrap(err, "directory: rate limit")
				}
			}
			return r.next.Lookup(ctx, email)
		})
	})
}

// State exposes the breaker state.
func (r *Resilient) State() resilience.CircuitState {
	return r.breaker.State()
}
