package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errStore = errors.New("store down")

func failing(_ context.Context) error { return errStore }
func passing(_ context.Context) error { return nil }

func newTestBreaker(threshold int) (*Breaker, *time.Time) {
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	b := NewBreaker(CircuitBreakerConfig{FailureThreshold: threshold, ResetTimeout: time.Minute})
	b.now = func() time.Time { return now }
	return b, &now
}

func TestBreaker_ClosedPassesThrough(t *testing.T) {
	b, _ := newTestBreaker(3)
	calls := 0
	err := b.Do(context.Background(), func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, CircuitClosed, b.State())
}

func TestBreaker_OpensAtThreshold(t *testing.T) {
	b, _ := newTestBreaker(3)
	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, b.Do(context.Background(), failing), errStore)
	}
	assert.Equal(t, CircuitClosed, b.State())

	assert.ErrorIs(t, b.Do(context.Background(), failing), errStore)
	assert.Equal(t, CircuitOpen, b.State())

	err := b.Do(context.Background(), func(context.Context) error {
		t.Error("open breaker must not run the call")
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestBreaker_SuccessResetsCount(t *testing.T) {
	b, _ := newTestBreaker(3)
	_ = b.Do(context.Background(), failing)
	_ = b.Do(context.Background(), failing)
	assert.Equal(t, 2, b.Failures())

	require.NoError(t, b.Do(context.Background(), passing))
	assert.Zero(t, b.Failures())
}

func TestBreaker_HalfOpenProbeCloses(t *testing.T) {
	b, now := newTestBreaker(1)
	_ = b.Do(context.Background(), failing)
	assert.Equal(t, CircuitOpen, b.State())

	*now = now.Add(time.Minute)
	assert.Equal(t, CircuitHalfOpen, b.State())

	require.NoError(t, b.Do(context.Background(), passing))
	assert.Equal(t, CircuitClosed, b.State())
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b, now := newTestBreaker(5)
	for i := 0; i < 5; i++ {
		_ = b.Do(context.Background(), failing)
	}
	*now = now.Add(2 * time.Minute)

	assert.ErrorIs(t, b.Do(context.Background(), failing), errStore)
	assert.Equal(t, CircuitOpen, b.State(), "a failed probe reopens regardless of threshold")
	assert.ErrorIs(t, b.Do(context.Background(), passing), ErrCircuitOpen)
}

func TestBreaker_SingleProbeInFlight(t *testing.T) {
	b, now := newTestBreaker(1)
	_ = b.Do(context.Background(), failing)
	*now = now.Add(time.Minute)

	release := make(chan struct{})
	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- b.Do(context.Background(), func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	assert.ErrorIs(t, b.Do(context.Background(), passing), ErrCircuitOpen)
	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, CircuitClosed, b.State())
}

func TestBreaker_ShouldTripFiltersErrors(t *testing.T) {
	permanent := errors.New("unique violation")
	b := NewBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		ShouldTrip:       func(err error) bool { return !errors.Is(err, permanent) },
	})
	for i := 0; i < 3; i++ {
		_ = b.Do(context.Background(), func(context.Context) error { return permanent })
	}
	assert.Equal(t, CircuitClosed, b.State())
}

func TestBreaker_OnStateChange(t *testing.T) {
	var transitions []string
	b := NewBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     time.Minute,
		OnStateChange: func(from, to CircuitState) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})
	_ = b.Do(context.Background(), failing)
	assert.Equal(t, []string{"closed->open"}, transitions)
}

func TestBreaker_ConcurrentAccess(t *testing.T) {
	b := NewBreaker(CircuitBreakerConfig{FailureThreshold: 1000})
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				_ = b.Do(context.Background(), failing)
			} else {
				_ = b.Do(context.Background(), passing)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, CircuitClosed, b.State())
}

func TestCircuitState_String(t *testing.T) {
	assert.Equal(t, "closed", CircuitClosed.String())
	assert.Equal(t, "open", CircuitOpen.String())
	assert.Equal(t, "half-open", CircuitHalfOpen.String())
	assert.Equal(t, "unknown", CircuitState(9).String())
}
