// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package resilience

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFailureRateBreaker_StateTransitions(t *testing.T) {
	cfg := FailureRateConfig{
		Name:        "test_stage",
		Window:      1 * time.Minute,
		MinRequests: 5,
		FailureRate: 0.5,
		Consecutive: 3,
		RetryAfter:  100 * time.Millisecond,
	}

	b := NewFailureRateBreaker(cfg)

	assert.Equal(t, FailureRateClosed, b.State())
	assert.True(t, b.Allow())

	b.Report(false)
	b.Report(false)
	assert.Equal(t, FailureRateClosed, b.State(), "2 < 3 consecutive failures")

	b.Report(false)
	assert.Equal(t, FailureRateOpen, b.State(), "should trip after 3 consecutive failures")

	assert.False(t, b.Allow())

	time.Sleep(150 * time.Millisecond)
	assert.True(t, b.Allow(), "should allow probe after RetryAfter expiry")
	assert.Equal(t, FailureRateHalfOpen, b.State())

	b.Report(false)
	assert.Equal(t, FailureRateOpen, b.State())
	assert.False(t, b.Allow())

	time.Sleep(150 * time.Millisecond)
	b.Allow() // enter half-open
	b.Report(true)
	assert.Equal(t, FailureRateClosed, b.State())
}

func TestFailureRateBreaker_TripsAtConfiguredRate(t *testing.T) {
	cfg := FailureRateConfig{
		Name:        "test_rate",
		MinRequests: 4,
		FailureRate: 0.5, // ≥50% trips, per the pipeline's RemoteError handling rule
		Consecutive: 10,
	}
	b := NewFailureRateBreaker(cfg)

	// 2 successes, 2 failures: total 4, rate exactly 0.5 — meets the
	// threshold, since the rule is "≥50% of recent items fail".
	b.Report(true)
	b.Report(true)
	b.Report(false)
	b.Report(false)
	assert.Equal(t, FailureRateOpen, b.State(), "should trip once the failure rate reaches 50%")
}

func TestFailureRateBreaker_BelowMinRequestsNeverTrips(t *testing.T) {
	cfg := FailureRateConfig{
		Name:        "test_min",
		MinRequests: 10,
		FailureRate: 0.1,
	}
	b := NewFailureRateBreaker(cfg)

	b.Report(false)
	b.Report(false)
	b.Report(false)
	assert.Equal(t, FailureRateClosed, b.State(), "should not evaluate rate before MinRequests outcomes")
}

func TestFailureRateRegistryReusesBreakerPerName(t *testing.T) {
	reg := NewFailureRateRegistry()
	a := reg.GetOrRegister("metadata", FailureRateConfig{MinRequests: 1, FailureRate: 0.5})
	b := reg.GetOrRegister("metadata", FailureRateConfig{MinRequests: 99, FailureRate: 0.99})
	assert.Same(t, a, b, "same stage name must return the same breaker instance")

	c := reg.GetOrRegister("download", FailureRateConfig{MinRequests: 1, FailureRate: 0.5})
	assert.NotSame(t, a, c, "different stage names must get distinct breakers")
}
