// SPDX-License-Identifier: MIT

// Package ratelimit implements the single, process-wide rate limiter and
// user-agent rotator that every outbound call passes through (C1).
package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"
)

var (
	waitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "vidharvest",
		Name:      "ratelimit_waits_total",
		Help:      "Total number of calls that blocked on the outbound rate limiter.",
	})
	uaRotationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "vidharvest",
		Name:      "ratelimit_ua_rotations_total",
		Help:      "Total number of user-agent rotations.",
	})
)

// Config holds the recognized rate-limiting and user-agent rotation options.
type Config struct {
	// RequestInterval is the minimum spacing between requests; the token
	// bucket rate is derived as 1/RequestInterval with burst 1.
	RequestInterval time.Duration
	// RandomOffset bounds the uniform jitter added after each token grant,
	// sampled from [0, RandomOffset).
	RandomOffset time.Duration
	// UserAgents is the rotation pool. A single entry disables rotation.
	UserAgents []string
	// UARotateInterval rotates the active user agent on a wall-clock
	// cadence. Zero disables interval-based rotation.
	UARotateInterval time.Duration
	// UARotateEvery rotates the active user agent every N granted requests.
	// Zero disables count-based rotation. When both are set, whichever
	// fires first rotates.
	UARotateEvery int
}

// Limiter is the single process-wide gateway every outbound call traverses.
// It owns one token bucket and one user-agent rotation cursor, both
// protected by internal locking so concurrent callers share fairly.
type Limiter struct {
	cfg     Config
	bucket  *rate.Limiter
	rng     *rand.Rand
	rngMu   sync.Mutex
	uaMu    sync.Mutex
	uaIdx   int
	uaSince time.Time
	uaCount int
}

// New constructs a Limiter from cfg. RequestInterval <= 0 disables pacing
// (an always-allow limiter); this is only appropriate for tests.
func New(cfg Config) *Limiter {
	var limit rate.Limit
	if cfg.RequestInterval > 0 {
		limit = rate.Every(cfg.RequestInterval)
	} else {
		limit = rate.Inf
	}
	return &Limiter{
		cfg:     cfg,
		bucket:  rate.NewLimiter(limit, 1),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		uaSince: time.Now(),
	}
}

// Wait blocks until the token bucket grants a slot, then sleeps an
// additional uniform jitter in [0, RandomOffset) before returning. It
// respects ctx cancellation at both suspension points.
func (l *Limiter) Wait(ctx context.Context) error {
	if err := l.bucket.Wait(ctx); err != nil {
		return err
	}
	waitsTotal.Inc()

	jitter := l.jitter()
	if jitter <= 0 {
		return nil
	}
	t := time.NewTimer(jitter)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (l *Limiter) jitter() time.Duration {
	if l.cfg.RandomOffset <= 0 {
		return 0
	}
	l.rngMu.Lock()
	defer l.rngMu.Unlock()
	return time.Duration(l.rng.Int63n(int64(l.cfg.RandomOffset)))
}

// UserAgent returns the currently active user-agent string, advancing the
// shared rotation cursor when the configured interval or request count
// threshold has been crossed. Safe for concurrent use.
func (l *Limiter) UserAgent() string {
	l.uaMu.Lock()
	defer l.uaMu.Unlock()

	if len(l.cfg.UserAgents) == 0 {
		return ""
	}
	if len(l.cfg.UserAgents) == 1 {
		return l.cfg.UserAgents[0]
	}

	rotate := false
	if l.cfg.UARotateInterval > 0 && time.Since(l.uaSince) >= l.cfg.UARotateInterval {
		rotate = true
	}
	if l.cfg.UARotateEvery > 0 && l.uaCount >= l.cfg.UARotateEvery {
		rotate = true
	}
	if rotate {
		l.uaIdx = (l.uaIdx + 1) % len(l.cfg.UserAgents)
		l.uaSince = time.Now()
		l.uaCount = 0
		uaRotationsTotal.Inc()
	}
	l.uaCount++
	return l.cfg.UserAgents[l.uaIdx]
}
