// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package search implements C3: paginated keyword search over the remote
// service, with duration/view-count/pubdate/title filtering,
// cross-keyword de-duplication, and an optional quality score.
package search

import (
	"context"
	"math/rand"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kaelmedia/vidharvest/internal/config"
	"github.com/kaelmedia/vidharvest/internal/log"
	"github.com/kaelmedia/vidharvest/internal/model"
	"github.com/kaelmedia/vidharvest/internal/remote"
	"golang.org/x/text/unicode/norm"
)

// QualityWeights configures the optional quality score from spec §4.3.
// Zero value disables scoring.
type QualityWeights struct {
	Like      float64
	Coin      float64
	Favorite  float64
	Threshold float64
}

// Engine implements keyword search.
type Engine struct {
	client  *remote.Client
	cfg     *config.Config
	weights QualityWeights
	rng     *rand.Rand
}

// New constructs a search Engine.
func New(client *remote.Client, cfg *config.Config, weights QualityWeights) *Engine {
	return &Engine{
		client:  client,
		cfg:     cfg,
		weights: weights,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SeenSet tracks ItemIDs already emitted across every keyword in one
// orchestrator run, implementing the cross-keyword de-duplication rule.
type SeenSet struct {
	ids map[model.ItemID]struct{}
}

// NewSeenSet returns an empty de-duplication set.
func NewSeenSet() *SeenSet {
	return &SeenSet{ids: make(map[model.ItemID]struct{})}
}

func (s *SeenSet) markIfNew(id model.ItemID) bool {
	if _, ok := s.ids[id]; ok {
		return false
	}
	s.ids[id] = struct{}{}
	return true
}

// KeywordFailedError surfaces spec §4.3's "all-pages failure for a
// keyword" condition; the orchestrator logs it and continues with the
// next keyword.
type KeywordFailedError struct {
	Keyword string
	Cause   error
}

func (e *KeywordFailedError) Error() string {
	return "search: keyword " + e.Keyword + " failed: " + e.Cause.Error()
}

func (e *KeywordFailedError) Unwrap() error { return e.Cause }

// Search issues paged queries for keyword, emitting candidates to emit in
// the order the remote returned them until limit candidates have passed
// filtering, max_pages is reached, or the remote signals exhaustion.
// Returns the count of candidates emitted.
func (e *Engine) Search(ctx context.Context, keyword string, limit int, seen *SeenSet, emit func(model.Candidate) error) (int, error) {
	emitted := 0
	pagesFailed := 0
	pagesTried := 0

	for page := 1; page <= e.cfg.MaxPages; page++ {
		if emitted >= limit {
			break
		}
		pagesTried++

		items, hasMore, err := e.fetchPage(ctx, keyword, page)
		if err != nil {
			log.WithComponent("search").Warn().
				Str("keyword", keyword).Int("page", page).Err(err).
				Msg("search page failed, skipping")
			pagesFailed++
			if pagesFailed == pagesTried {
				// every page attempted so far has failed
				if page == e.cfg.MaxPages || !hasMore {
					return emitted, &KeywordFailedError{Keyword: keyword, Cause: err}
				}
			}
			continue
		}

		for _, item := range items {
			if emitted >= limit {
				break
			}
			cand, ok := e.toCandidate(item, keyword)
			if !ok {
				continue
			}
			if !seen.markIfNew(cand.ItemID) {
				continue
			}
			if !e.passesFilters(cand) {
				continue
			}
			if err := emit(cand); err != nil {
				return emitted, err
			}
			emitted++
		}

		if !hasMore {
			break
		}
		if page < e.cfg.MaxPages {
			if !sleepCtx(ctx, e.pageInterval()) {
				return emitted, ctx.Err()
			}
		}
	}

	if pagesTried > 0 && pagesFailed == pagesTried {
		return emitted, &KeywordFailedError{Keyword: keyword, Cause: context.DeadlineExceeded}
	}
	return emitted, nil
}

func (e *Engine) fetchPage(ctx context.Context, keyword string, page int) ([]remote.SearchResultItem, bool, error) {
	params := url.Values{
		"keyword":   {keyword},
		"page":      {strconv.Itoa(page)},
		"page_size": {strconv.Itoa(e.cfg.PageSize)},
		"order":     {"pubdate"},
	}
	var resp remote.SearchPage
	if err := e.client.Request(ctx, "GET", "/search", params, nil, &resp); err != nil {
		return nil, false, err
	}
	return resp.Items, resp.HasMore, nil
}

func (e *Engine) pageInterval() time.Duration {
	lo, hi := e.cfg.PageIntervalLow, e.cfg.PageIntervalHigh
	if hi <= lo {
		return lo
	}
	span := hi - lo
	return lo + time.Duration(e.rng.Int63n(int64(span)))
}

func (e *Engine) toCandidate(item remote.SearchResultItem, keyword string) (model.Candidate, bool) {
	publishTime, err := time.Parse(time.RFC3339, item.PublishTime)
	if err != nil {
		publishTime = time.Time{}
	}
	return model.Candidate{
		ItemID:          item.ItemID,
		Title:           item.Title,
		DurationSeconds: item.Duration,
		PublishTime:     publishTime,
		UploaderID:      item.UploaderID,
		UploaderName:    item.UploaderName,
		PlayCount:       item.PlayCount,
		LikeCount:       item.LikeCount,
		CoinCount:       item.CoinCount,
		FavoriteCount:   item.FavoriteCount,
		Keyword:         keyword,
	}, true
}

func (e *Engine) passesFilters(c model.Candidate) bool {
	if c.PlayCount < e.cfg.MinViewCount {
		return false
	}
	if e.cfg.MinDurationSeconds > 0 && c.DurationSeconds < e.cfg.MinDurationSeconds {
		return false
	}
	if e.cfg.MaxDurationSeconds > 0 && c.DurationSeconds > e.cfg.MaxDurationSeconds {
		return false
	}
	if !e.cfg.MinPubDate.IsZero() && c.PublishTime.Before(e.cfg.MinPubDate) {
		return false
	}
	if !e.cfg.MaxPubDate.IsZero() && c.PublishTime.After(e.cfg.MaxPubDate) {
		return false
	}
	if !titlePasses(c.Title, e.cfg.KeywordFilters, e.cfg.KeywordExcludes) {
		return false
	}
	if e.weights.Threshold > 0 {
		if c.PlayCount <= 0 {
			return false
		}
		score := (e.weights.Like*float64(c.LikeCount) +
			e.weights.Coin*float64(c.CoinCount) +
			e.weights.Favorite*float64(c.FavoriteCount)) / float64(c.PlayCount)
		if score < e.weights.Threshold {
			return false
		}
	}
	return true
}

// titlePasses applies case-insensitive substring include/exclude filters
// over a Unicode-normalized (NFC) title, so that visually-identical
// titles using different combining-character sequences compare equal.
func titlePasses(title string, includes, excludes []string) bool {
	normalized := strings.ToLower(norm.NFC.String(title))
	for _, kw := range excludes {
		if kw == "" {
			continue
		}
		if strings.Contains(normalized, strings.ToLower(norm.NFC.String(kw))) {
			return false
		}
	}
	if len(includes) == 0 {
		return true
	}
	for _, kw := range includes {
		if kw == "" {
			continue
		}
		if strings.Contains(normalized, strings.ToLower(norm.NFC.String(kw))) {
			return true
		}
	}
	return false
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
