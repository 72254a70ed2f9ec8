// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package resilience

import (
	"sync"
	"time"

	"github.com/kaelmedia/vidharvest/internal/log"
	"github.com/kaelmedia/vidharvest/internal/metrics"
)

// FailureRateState is the state of a FailureRateBreaker.
type FailureRateState int

const (
	FailureRateClosed FailureRateState = iota
	FailureRateOpen
	FailureRateHalfOpen
)

// FailureRateConfig configures a FailureRateBreaker. It implements §7's
// "RemoteError — logged with context; run continues unless ≥50% of recent
// items fail, which trips a circuit-breaker halting the stage" rule: a
// sliding ten-bucket window tracks the success/failure ratio of the most
// recently reported outcomes and trips once the window holds at least
// MinRequests outcomes and the failure ratio is at least FailureRate.
type FailureRateConfig struct {
	Name        string
	Window      time.Duration // total sliding window span; divided across 10 buckets
	MinRequests int           // minimum outcomes in the window before the rate is evaluated
	FailureRate float64       // 0.0-1.0; trip when the observed failure ratio reaches or exceeds this
	Consecutive int           // trip immediately after this many consecutive failures
	RetryAfter  time.Duration // cooldown before a single HALF_OPEN probe is allowed
}

// FailureRateBreaker trips a pipeline stage when the share of recently
// reported failures crosses a threshold, rather than an absolute failure
// count. One instance guards one orchestrator stage (e.g. metadata
// collection, or downloads) for the duration of a run.
type FailureRateBreaker struct {
	mu          sync.RWMutex
	name        string
	state       FailureRateState
	counts      *windowCounts
	consecutive int
	expiry      time.Time
	cfg         FailureRateConfig
}

type windowCounts struct {
	buckets        [10]bucket
	currentIdx     int
	lastRotate     time.Time
	bucketDuration time.Duration
	mu             sync.Mutex
}

type bucket struct {
	success int
	failure int
}

func newWindowCounts(bucketDuration time.Duration) *windowCounts {
	if bucketDuration <= 0 {
		bucketDuration = time.Minute
	}
	return &windowCounts{
		lastRotate:     time.Now(),
		bucketDuration: bucketDuration,
	}
}

func (w *windowCounts) add(success bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.rotateIfNeeded()
	if success {
		w.buckets[w.currentIdx].success++
	} else {
		w.buckets[w.currentIdx].failure++
	}
}

func (w *windowCounts) rotateIfNeeded() {
	now := time.Now()
	elapsed := now.Sub(w.lastRotate)
	bucketsToRotate := int(elapsed / w.bucketDuration)
	if bucketsToRotate > 0 {
		for i := 0; i < bucketsToRotate && i < len(w.buckets); i++ {
			w.currentIdx = (w.currentIdx + 1) % len(w.buckets)
			w.buckets[w.currentIdx] = bucket{}
		}
		w.lastRotate = now
	}
}

func (w *windowCounts) stats() (success, failure int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.rotateIfNeeded()
	for _, b := range w.buckets {
		success += b.success
		failure += b.failure
	}
	return success, failure
}

// NewFailureRateBreaker constructs a breaker from cfg, defaulting Window to
// 10 minutes (one-minute buckets) when unset.
func NewFailureRateBreaker(cfg FailureRateConfig) *FailureRateBreaker {
	if cfg.Window <= 0 {
		cfg.Window = 10 * time.Minute
	}
	return &FailureRateBreaker{
		name:   cfg.Name,
		state:  FailureRateClosed,
		counts: newWindowCounts(cfg.Window / 10),
		cfg:    cfg,
	}
}

// Allow reports whether the stage may process another item. While OPEN it
// refuses until RetryAfter elapses, then admits exactly one HALF_OPEN probe.
func (b *FailureRateBreaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case FailureRateOpen:
		if time.Now().After(b.expiry) {
			b.state = FailureRateHalfOpen
			metrics.IncFailureRateHalfOpen(b.name)
			log.L().Info().Str("stage", b.name).Msg("failure-rate breaker entering half-open state")
			return true
		}
		return false
	case FailureRateHalfOpen:
		return true
	default:
		return true
	}
}

// Report records the outcome of one item and evaluates whether the stage
// should trip.
func (b *FailureRateBreaker) Report(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == FailureRateHalfOpen {
		if success {
			b.state = FailureRateClosed
			b.consecutive = 0
			log.L().Info().Str("stage", b.name).Msg("failure-rate breaker closed after successful probe")
		} else {
			b.state = FailureRateOpen
			b.expiry = time.Now().Add(b.cfg.RetryAfter)
			metrics.IncFailureRateOpen(b.name)
			log.L().Warn().Str("stage", b.name).Msg("failure-rate breaker re-opened after failed probe")
		}
		return
	}

	b.counts.add(success)
	if success {
		b.consecutive = 0
	} else {
		b.consecutive++
	}

	if b.state != FailureRateClosed {
		return
	}

	if b.cfg.Consecutive > 0 && b.consecutive >= b.cfg.Consecutive {
		b.trip("consecutive_failures")
		return
	}

	successCount, failureCount := b.counts.stats()
	total := successCount + failureCount
	if b.cfg.MinRequests > 0 && total >= b.cfg.MinRequests {
		rate := float64(failureCount) / float64(total)
		if rate >= b.cfg.FailureRate {
			b.trip("failure_rate")
		}
	}
}

func (b *FailureRateBreaker) trip(reason string) {
	b.state = FailureRateOpen
	b.expiry = time.Now().Add(b.cfg.RetryAfter)
	metrics.IncFailureRateTrips(b.name, reason)
	metrics.IncFailureRateOpen(b.name)
	log.L().Error().Str("stage", b.name).Str("reason", reason).Msg("failure-rate breaker tripped")
}

// State returns the breaker's current state.
func (b *FailureRateBreaker) State() FailureRateState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// FailureRateRegistry owns one FailureRateBreaker per named pipeline stage.
type FailureRateRegistry struct {
	mu       sync.Mutex
	breakers map[string]*FailureRateBreaker
}

// NewFailureRateRegistry constructs an empty registry. Each orchestrator run
// owns its own registry so breaker state does not leak across runs.
func NewFailureRateRegistry() *FailureRateRegistry {
	return &FailureRateRegistry{breakers: make(map[string]*FailureRateBreaker)}
}

// GetOrRegister returns the named breaker, creating it from cfg on first use.
func (r *FailureRateRegistry) GetOrRegister(name string, cfg FailureRateConfig) *FailureRateBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[name]; ok {
		return b
	}
	cfg.Name = name
	b := NewFailureRateBreaker(cfg)
	r.breakers[name] = b
	return b
}
