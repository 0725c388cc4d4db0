package resilience

import (
	"context"

	"go.uber.org/zap"

	"github.com/goldengate-intelligence/gg-portal-mvp-sub001/internal/monitoring"
)

// Guard wraps store calls with retry on transient errors and a circuit
// breaker that only counts failures which survived their retries.
type Guard struct {
	retry   RetryConfig
	breaker *Breaker
}

// NewGuard builds a Guard. Only transient errors trip the breaker; a
// constraint violation in one group says nothing about store health.
func NewGuard(retry RetryConfig, breaker CircuitBreakerConfig) *Guard {
	if breaker.ShouldTrip == nil {
		breaker.ShouldTrip = IsTransient
	}
	if breaker.OnStateChange == nil {
		breaker.OnStateChange = func(from, to CircuitState) {
			monitoring.StoreBreakerState.Set(float64(to))
			zap.L().Warn("store circuit breaker state change",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		}
	}
	return &Guard{retry: retry, breaker: NewBreaker(breaker)}
}

// Run executes fn with retries inside the breaker.
func (g *Guard) Run(ctx context.Context, component, op string, fn func(ctx context.Context) error) error {
	return g.breaker.Do(ctx, func(ctx context.Context) error {
		return Do(ctx, g.retryFor(component, op), fn)
	})
}

// RunVal is Run for calls that return a value.
func RunVal[T any](ctx context.Context, g *Guard, component, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var val T
	err := g.breaker.Do(ctx, func(ctx context.Context) error {
		var err error
		val, err = DoVal(ctx, g.retryFor(component, op), fn)
		return err
	})
	return val, err
}

// Open reports whether the breaker is currently rejecting calls.
func (g *Guard) Open() bool {
	return g.breaker.State() == CircuitOpen
}

func (g *Guard) retryFor(component, op string) RetryConfig {
	cfg := g.retry
	if cfg.OnRetry == nil {
		cfg.OnRetry = func(attempt int, err error) {
			monitoring.StoreRetriesTotal.WithLabelValues(component, op).Inc()
			zap.L().Warn("retrying store operation",
				zap.String("component", component),
				zap.String("operation", op),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
		}
	}
	return cfg
}
