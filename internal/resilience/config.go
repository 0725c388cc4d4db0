package resilience

import (
	"time"

	"github.com/goldengate-intelligence/gg-portal-mvp-sub001/internal/config"
)

// FromConfig builds the store Guard from the resilience section. Zero or
// negative values keep the defaults; a zero jitter fraction disables jitter.
func FromConfig(c config.ResilienceConfig) *Guard {
	retry := DefaultRetryConfig()
	if c.MaxAttempts > 0 {
		retry.MaxAttempts = c.MaxAttempts
	}
	if c.InitialBackoffMs > 0 {
		retry.InitialBackoff = time.Duration(c.InitialBackoffMs) * time.Millisecond
	}
	if c.MaxBackoffMs > 0 {
		retry.MaxBackoff = time.Duration(c.MaxBackoffMs) * time.Millisecond
	}
	if c.Multiplier > 0 {
		retry.Multiplier = c.Multiplier
	}
	if c.JitterFraction >= 0 {
		retry.JitterFraction = c.JitterFraction
	}

	breaker := DefaultCircuitBreakerConfig()
	if c.FailureThreshold > 0 {
		breaker.FailureThreshold = c.FailureThreshold
	}
	if c.ResetTimeoutSecs > 0 {
		breaker.ResetTimeout = time.Duration(c.ResetTimeoutSecs) * time.Second
	}
	return NewGuard(retry, breaker)
}

// DefaultGuard returns a Guard with default retry and breaker settings.
func DefaultGuard() *Guard {
	return NewGuard(DefaultRetryConfig(), DefaultCircuitBreakerConfig())
}
