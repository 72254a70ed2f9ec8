// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package orchestrator implements C8: wiring search, metadata collection,
// the dataset store, and the stream downloader into a single
// bounded-concurrency pipeline, per spec §4.8.
package orchestrator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/kaelmedia/vidharvest/internal/config"
	"github.com/kaelmedia/vidharvest/internal/dataset"
	"github.com/kaelmedia/vidharvest/internal/log"
	"github.com/kaelmedia/vidharvest/internal/metadata"
	"github.com/kaelmedia/vidharvest/internal/model"
	"github.com/kaelmedia/vidharvest/internal/resilience"
	"github.com/kaelmedia/vidharvest/internal/search"
	"github.com/kaelmedia/vidharvest/internal/stream"
)

// stage names used to key the FailureRateRegistry; also surfaced in logs.
const (
	stageMetadata = "metadata"
	stageDownload = "download"
)

// Engine composes C2-C7 into the bounded-concurrency pipeline of spec
// §4.8. One Engine instance corresponds to one long-lived process; each
// call to Run is an independent pass over a set of keywords, identified
// by its own randomly generated run ID.
type Engine struct {
	cfg        *config.Config
	search     *search.Engine
	collector  *metadata.Collector
	store      *dataset.Store
	downloader *stream.Downloader
	breakers   *resilience.FailureRateRegistry
}

// New constructs an Engine from its already-configured component
// instances.
func New(cfg *config.Config, searchEngine *search.Engine, collector *metadata.Collector, store *dataset.Store, downloader *stream.Downloader) *Engine {
	return &Engine{
		cfg:        cfg,
		search:     searchEngine,
		collector:  collector,
		store:      store,
		downloader: downloader,
		breakers:   resilience.NewFailureRateRegistry(),
	}
}

// RunOptions parameterizes one pipeline pass.
type RunOptions struct {
	Keywords []string
	Limit    int // per-keyword candidate limit
	Quality  string
	Resume   bool // skip ItemIDs already present with both artifacts
}

// RunReport is the aggregate result of one pipeline pass, per spec
// §4.8's "Aggregate report" rule.
type RunReport struct {
	RunID                      string
	KeywordsProcessed          int
	CandidatesSeen             int
	MetadataCommitted          int
	DownloadsCommitted         int
	DownloadsSkippedByDuration int
	ErrorsByKind               map[string]int
}

// counters accumulates RunReport fields safely across the worker pools.
type counters struct {
	keywordsProcessed          int64
	candidatesSeen             int64
	metadataCommitted          int64
	downloadsCommitted         int64
	downloadsSkippedByDuration int64

	mu           sync.Mutex
	errorsByKind map[string]int
}

func newCounters() *counters {
	return &counters{errorsByKind: make(map[string]int)}
}

func (c *counters) recordError(kind string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errorsByKind[kind]++
}

func (c *counters) report(runID string) RunReport {
	c.mu.Lock()
	defer c.mu.Unlock()
	byKind := make(map[string]int, len(c.errorsByKind))
	for k, v := range c.errorsByKind {
		byKind[k] = v
	}
	return RunReport{
		RunID:                      runID,
		KeywordsProcessed:          int(atomic.LoadInt64(&c.keywordsProcessed)),
		CandidatesSeen:             int(atomic.LoadInt64(&c.candidatesSeen)),
		MetadataCommitted:          int(atomic.LoadInt64(&c.metadataCommitted)),
		DownloadsCommitted:         int(atomic.LoadInt64(&c.downloadsCommitted)),
		DownloadsSkippedByDuration: int(atomic.LoadInt64(&c.downloadsSkippedByDuration)),
		ErrorsByKind:               byKind,
	}
}

// classifyErrorKind maps an error to the label errors_by_kind reports it
// under, preferring the most specific sentinel it wraps.
func classifyErrorKind(err error) string {
	switch {
	case errors.Is(err, model.ErrRateLimited):
		return "RateLimited"
	case errors.Is(err, model.ErrNetworkUnavailable):
		return "NetworkUnavailable"
	case errors.Is(err, model.ErrAuthExpired):
		return "AuthExpired"
	case errors.Is(err, model.ErrNotFound):
		return "NotFound"
	case errors.Is(err, model.ErrQualityUnavailable):
		return "QualityUnavailable"
	case errors.Is(err, model.ErrDiskFull):
		return "DiskFull"
	case errors.Is(err, model.ErrCommitFailed):
		return "CommitFailed"
	case errors.Is(err, model.ErrMetadataMissing):
		return "MetadataMissing"
	case errors.Is(err, model.ErrTransient):
		return "Transient"
	default:
		var merge *model.MergeError
		if errors.As(err, &merge) {
			return "MergeFailed"
		}
		var remoteErr *model.RemoteError
		if errors.As(err, &remoteErr) {
			return "RemoteError"
		}
		return "Unknown"
	}
}

// Run executes one pipeline pass over opts.Keywords and blocks until
// every stage has drained or ctx is cancelled.
func (e *Engine) Run(ctx context.Context, opts RunOptions) (RunReport, error) {
	runID := uuid.NewString()
	cnt := newCounters()

	skip := e.resumeSkipSet(opts.Resume)

	candidates := make(chan model.Candidate, e.cfg.PageSize*2)
	ready := make(chan model.ItemID, e.cfg.ConcurrentLimit*2)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(candidates)
		return e.runSearchStage(gctx, opts, skip, candidates, cnt)
	})

	metadataWorkers := e.cfg.MetadataWorkers
	if metadataWorkers < 1 {
		metadataWorkers = 1
	}
	var metaWG sync.WaitGroup
	metaWG.Add(metadataWorkers)
	for i := 0; i < metadataWorkers; i++ {
		g.Go(func() error {
			defer metaWG.Done()
			e.runMetadataWorker(gctx, skip, candidates, ready, cnt)
			return nil
		})
	}
	g.Go(func() error {
		metaWG.Wait()
		close(ready)
		return nil
	})

	concurrentLimit := int64(e.cfg.ConcurrentLimit)
	if concurrentLimit < 1 {
		concurrentLimit = 1
	}
	downloadSem := semaphore.NewWeighted(concurrentLimit)
	var dlWG sync.WaitGroup
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				dlWG.Wait()
				return nil
			case id, ok := <-ready:
				if !ok {
					dlWG.Wait()
					return nil
				}
				if err := downloadSem.Acquire(gctx, 1); err != nil {
					dlWG.Wait()
					return nil
				}
				dlWG.Add(1)
				go func(id model.ItemID) {
					defer dlWG.Done()
					defer downloadSem.Release(1)
					e.processDownload(gctx, opts.Quality, id, cnt)
				}(id)
			}
		}
	})

	err := g.Wait()
	report := cnt.report(runID)
	log.WithComponent("orchestrator").Info().
		Str("run_id", runID).
		Int("keywords_processed", report.KeywordsProcessed).
		Int("candidates_seen", report.CandidatesSeen).
		Int("metadata_committed", report.MetadataCommitted).
		Int("downloads_committed", report.DownloadsCommitted).
		Int("downloads_skipped_by_duration", report.DownloadsSkippedByDuration).
		Msg("pipeline run complete")
	return report, err
}

// resumeSkipSet consults the dataset store for ItemIDs already present
// with both artifacts, per spec §4.8's Resume rule.
func (e *Engine) resumeSkipSet(resume bool) map[model.ItemID]struct{} {
	skip := make(map[model.ItemID]struct{})
	if !resume {
		return skip
	}
	idx := e.store.SnapshotIndex()
	for id, entry := range idx.Videos {
		if entry.HasMedia {
			skip[id] = struct{}{}
		}
	}
	return skip
}

// runSearchStage fans out sequentially over each keyword (spec §4.8
// stage 1), emitting accepted candidates into candidates. A keyword
// whose every page fails is logged and skipped; the pass continues.
func (e *Engine) runSearchStage(ctx context.Context, opts RunOptions, skip map[model.ItemID]struct{}, candidates chan<- model.Candidate, cnt *counters) error {
	seen := search.NewSeenSet()
	for _, keyword := range opts.Keywords {
		if ctx.Err() != nil {
			return nil
		}
		_, err := e.search.Search(ctx, keyword, opts.Limit, seen, func(c model.Candidate) error {
			if _, skipped := skip[c.ItemID]; skipped {
				return nil
			}
			atomic.AddInt64(&cnt.candidatesSeen, 1)
			select {
			case candidates <- c:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		atomic.AddInt64(&cnt.keywordsProcessed, 1)
		if err != nil {
			var kwErr *search.KeywordFailedError
			if errors.As(err, &kwErr) {
				log.WithComponent("orchestrator").Warn().
					Str("keyword", keyword).Err(err).Msg("keyword failed, continuing")
				cnt.recordError(classifyErrorKind(kwErr.Cause))
				continue
			}
			return err
		}
	}
	return nil
}

// runMetadataWorker consumes candidates, collects and commits metadata
// (spec §4.8 stage 2), and forwards successfully committed ItemIDs.
func (e *Engine) runMetadataWorker(ctx context.Context, skip map[model.ItemID]struct{}, candidates <-chan model.Candidate, ready chan<- model.ItemID, cnt *counters) {
	breaker := e.breakers.GetOrRegister(stageMetadata, resilience.FailureRateConfig{
		MinRequests: 10,
		FailureRate: 0.5,
		RetryAfter:  30 * time.Second,
	})

	for {
		select {
		case <-ctx.Done():
			return
		case cand, ok := <-candidates:
			if !ok {
				return
			}
			if _, skipped := skip[cand.ItemID]; skipped {
				continue
			}
			if !breaker.Allow() {
				log.WithComponent("orchestrator").Warn().
					Str("stage", stageMetadata).Msg("metadata stage circuit open, dropping candidate")
				continue
			}

			record, err := e.collector.Collect(ctx, cand.ItemID)
			if err != nil {
				breaker.Report(false)
				cnt.recordError(classifyErrorKind(err))
				log.WithComponent("orchestrator").Warn().
					Str("item_id", string(cand.ItemID)).Err(err).Msg("metadata collection failed")
				continue
			}
			if _, err := e.store.PutMetadata(record); err != nil {
				breaker.Report(false)
				cnt.recordError(classifyErrorKind(err))
				log.WithComponent("orchestrator").Warn().
					Str("item_id", string(cand.ItemID)).Err(err).Msg("metadata commit failed")
				continue
			}

			breaker.Report(true)
			atomic.AddInt64(&cnt.metadataCommitted, 1)
			select {
			case ready <- cand.ItemID:
			case <-ctx.Done():
				return
			}
		}
	}
}

// processDownload applies the pre-download duration filter, downloads
// and muxes one item, then commits via attach_media (spec §4.8 stage 3).
// The caller bounds how many of these run concurrently with a
// semaphore sized to concurrent_limit.
func (e *Engine) processDownload(ctx context.Context, quality string, id model.ItemID, cnt *counters) {
	breaker := e.breakers.GetOrRegister(stageDownload, resilience.FailureRateConfig{
		MinRequests: 10,
		FailureRate: 0.5,
		RetryAfter:  30 * time.Second,
	})

	record, found, err := e.store.Get(id)
	if err != nil || !found {
		return
	}
	if e.cfg.MaxDurationOnDownload > 0 && time.Duration(record.BasicInfo.Duration)*time.Second > e.cfg.MaxDurationOnDownload {
		atomic.AddInt64(&cnt.downloadsSkippedByDuration, 1)
		return
	}

	if !breaker.Allow() {
		log.WithComponent("orchestrator").Warn().
			Str("stage", stageDownload).Msg("download stage circuit open, dropping item")
		return
	}

	result, err := e.downloader.ResolveAndDownload(ctx, id, quality, "mp4")
	if err != nil {
		breaker.Report(false)
		cnt.recordError(classifyErrorKind(err))
		log.WithComponent("orchestrator").Warn().
			Str("item_id", string(id)).Err(err).Msg("download failed")
		return
	}
	if err := e.store.AttachMedia(id, result.Ext); err != nil {
		breaker.Report(false)
		cnt.recordError(classifyErrorKind(err))
		log.WithComponent("orchestrator").Warn().
			Str("item_id", string(id)).Err(err).Msg("attach_media failed")
		return
	}

	breaker.Report(true)
	atomic.AddInt64(&cnt.downloadsCommitted, 1)
}
