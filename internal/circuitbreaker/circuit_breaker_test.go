package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBackend = errors.New("backend down")

func testConfig() *Config {
	return &Config{
		Name:             "protocol",
		MaxConsecutive:   3,
		FailureThreshold: 0.5,
		MinCalls:         10,
		Cooldown:         20 * time.Millisecond,
		HalfOpenMaxCalls: 2,
	}
}

func failN(cb *CircuitBreaker, n int) {
	for i := 0; i < n; i++ {
		cb.Execute(context.Background(), func() error { return errBackend })
	}
}

func TestCircuitBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	cb := NewCircuitBreaker(testConfig())
	ctx := context.Background()

	failN(cb, 2)
	assert.Equal(t, StateClosed, cb.GetState())

	failN(cb, 1)
	assert.Equal(t, StateOpen, cb.GetState())

	// Open circuit rejects without running fn
	ran := false
	err := cb.Execute(ctx, func() error { ran = true; return nil })
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, ran)
}

func TestCircuitBreaker_OpensOnFailureRate(t *testing.T) {
	cb := NewCircuitBreaker(testConfig())
	ctx := context.Background()

	// Alternate success and failure; consecutive count never reaches 3 but
	// the rate sits at 50% once enough calls accumulate
	for i := 0; i < 5; i++ {
		require.NoError(t, cb.Execute(ctx, func() error { return nil }))
		cb.Execute(ctx, func() error { return errBackend })
	}

	assert.Equal(t, StateOpen, cb.GetState())
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	cb := NewCircuitBreaker(testConfig())
	ctx := context.Background()

	failN(cb, 3)
	require.Equal(t, StateOpen, cb.GetState())

	time.Sleep(30 * time.Millisecond)

	// First probe transitions to half-open
	require.NoError(t, cb.Execute(ctx, func() error { return nil }))
	assert.Equal(t, StateHalfOpen, cb.GetState())

	// Enough successful probes close the circuit
	require.NoError(t, cb.Execute(ctx, func() error { return nil }))
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestCircuitBreaker_ReopensOnFailedProbe(t *testing.T) {
	cb := NewCircuitBreaker(testConfig())
	ctx := context.Background()

	failN(cb, 3)
	require.Equal(t, StateOpen, cb.GetState())

	time.Sleep(30 * time.Millisecond)

	err := cb.Execute(ctx, func() error { return errBackend })
	assert.ErrorIs(t, err, errBackend)
	assert.Equal(t, StateOpen, cb.GetState())
}

func TestCircuitBreaker_HalfOpenProbeLimit(t *testing.T) {
	cfg := testConfig()
	cfg.HalfOpenMaxCalls = 1
	cb := NewCircuitBreaker(cfg)
	ctx := context.Background()

	failN(cb, 3)
	time.Sleep(30 * time.Millisecond)

	// Move into half-open with a probe that neither fails nor closes yet
	started := make(chan struct{})
	release := make(chan struct{})
	go func() {
		cb.Execute(ctx, func() error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	err := cb.Execute(ctx, func() error { return nil })
	assert.ErrorIs(t, err, ErrProbeLimit)
	close(release)
}

func TestCircuitBreaker_ClassifierIgnoresDomainErrors(t *testing.T) {
	cfg := testConfig()
	cfg.IsFailure = func(err error) bool { return errors.Is(err, errBackend) }
	cb := NewCircuitBreaker(cfg)
	ctx := context.Background()

	// Domain errors prove the backend is alive; they never trip the circuit
	domainErr := errors.New("address not found")
	for i := 0; i < 20; i++ {
		err := cb.Execute(ctx, func() error { return domainErr })
		assert.ErrorIs(t, err, domainErr)
	}
	assert.Equal(t, StateClosed, cb.GetState())

	failN(cb, 3)
	assert.Equal(t, StateOpen, cb.GetState())
}

func TestCircuitBreaker_Stats(t *testing.T) {
	cb := NewCircuitBreaker(testConfig())
	ctx := context.Background()

	require.NoError(t, cb.Execute(ctx, func() error { return nil }))
	cb.Execute(ctx, func() error { return errBackend })

	stats := cb.GetStats()
	assert.Equal(t, "protocol", stats.Name)
	assert.Equal(t, StateClosed, stats.State)
	assert.Equal(t, 2, stats.TotalCalls)
	assert.Equal(t, 1, stats.Failures)
	assert.Equal(t, 1, stats.Successes)
	assert.InDelta(t, 0.5, stats.FailureRate, 0.001)
	assert.False(t, stats.LastFailureTime.IsZero())
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb := NewCircuitBreaker(testConfig())

	failN(cb, 3)
	require.Equal(t, StateOpen, cb.GetState())

	cb.Reset()
	assert.Equal(t, StateClosed, cb.GetState())
	assert.Equal(t, 0, cb.GetStats().TotalCalls)
}
