package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBreaker(threshold int, reset time.Duration) (*CircuitBreaker, *time.Time) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: threshold,
		ResetTimeout:     reset,
	})
	cb.nowFunc = func() time.Time { return now }
	return cb, &now
}

func TestCircuitBreaker_OpensAtThreshold(t *testing.T) {
	cb, _ := testBreaker(3, time.Minute)
	boom := errors.New("boom")

	cb.Record(boom)
	cb.Record(boom)
	assert.Equal(t, CircuitClosed, cb.State())
	require.NoError(t, cb.Allow())

	cb.Record(boom)
	assert.Equal(t, CircuitOpen, cb.State())
	assert.ErrorIs(t, cb.Allow(), ErrCircuitOpen)
}

func TestCircuitBreaker_SuccessResetsCount(t *testing.T) {
	cb, _ := testBreaker(3, time.Minute)
	boom := errors.New("boom")

	cb.Record(boom)
	cb.Record(boom)
	cb.Record(nil)
	cb.Record(boom)
	cb.Record(boom)
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenProbe(t *testing.T) {
	cb, now := testBreaker(1, time.Minute)
	boom := errors.New("boom")

	cb.Record(boom)
	assert.ErrorIs(t, cb.Allow(), ErrCircuitOpen)

	// After the reset timeout one probe is admitted.
	*now = now.Add(2 * time.Minute)
	require.NoError(t, cb.Allow())

	// A successful probe closes the circuit for good.
	cb.Record(nil)
	assert.Equal(t, CircuitClosed, cb.State())
	assert.NoError(t, cb.Allow())
}

func TestCircuitBreaker_FailedProbeReopens(t *testing.T) {
	cb, now := testBreaker(1, time.Minute)
	boom := errors.New("boom")

	cb.Record(boom)
	*now = now.Add(2 * time.Minute)
	require.NoError(t, cb.Allow())

	cb.Record(boom)
	assert.ErrorIs(t, cb.Allow(), ErrCircuitOpen)
}

func TestCircuitBreaker_ShouldTripFilter(t *testing.T) {
	counted := errors.New("counted")
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     time.Minute,
		ShouldTrip:       func(err error) bool { return errors.Is(err, counted) },
	})

	cb.Record(errors.New("ignored"))
	assert.Equal(t, CircuitClosed, cb.State())

	cb.Record(counted)
	assert.ErrorIs(t, cb.Allow(), ErrCircuitOpen)
}

func TestCircuitBreaker_OnStateChange(t *testing.T) {
	var transitions []string
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     time.Minute,
		OnStateChange: func(from, to CircuitState) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})

	cb.Record(errors.New("boom"))
	cb.Reset()
	assert.Equal(t, []string{"closed->open", "open->closed"}, transitions)
}

func TestSourceBreakers_PerSourceIsolation(t *testing.T) {
	sb := NewSourceBreakers(CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Minute})
	boom := errors.New("boom")

	sb.Get("nba_stats").Record(boom)

	assert.ErrorIs(t, sb.Get("nba_stats").Allow(), ErrCircuitOpen)
	assert.NoError(t, sb.Get("lkl_web").Allow(), "one source tripping must not affect another")

	states := sb.States()
	assert.Equal(t, CircuitOpen, states["nba_stats"])
	assert.Equal(t, CircuitClosed, states["lkl_web"])
}

func TestSourceBreakers_SameInstancePerSource(t *testing.T) {
	sb := NewSourceBreakers(DefaultCircuitBreakerConfig())
	assert.Same(t, sb.Get("x"), sb.Get("x"))
}
