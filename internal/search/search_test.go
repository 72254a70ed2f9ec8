// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/kaelmedia/vidharvest/internal/config"
	"github.com/kaelmedia/vidharvest/internal/model"
	"github.com/kaelmedia/vidharvest/internal/remote"
)

func testClient(t *testing.T, handler http.HandlerFunc) *remote.Client {
	t.Helper()
	s := httptest.NewServer(handler)
	t.Cleanup(s.Close)
	cfg := &config.Config{
		RequestInterval:   time.Millisecond,
		MaxRetries:        1,
		RetryBaseInterval: time.Millisecond,
		Timeout:           2 * time.Second,
		UserAgents:        []string{"ua"},
		UARotateInterval:  time.Hour,
	}
	return remote.New(cfg, s.URL, nil)
}

func baseConfig() *config.Config {
	return &config.Config{
		PageSize:         10,
		MaxPages:         5,
		PageIntervalLow:  time.Millisecond,
		PageIntervalHigh: 2 * time.Millisecond,
	}
}

func TestSearchSinglePageRespectsLimit(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		page := remote.SearchPage{
			Items: []remote.SearchResultItem{
				{ItemID: "a", Title: "Foo", PublishTime: time.Now().Format(time.RFC3339)},
				{ItemID: "b", Title: "Bar", PublishTime: time.Now().Format(time.RFC3339)},
				{ItemID: "c", Title: "Baz", PublishTime: time.Now().Format(time.RFC3339)},
			},
			HasMore: true,
		}
		_ = json.NewEncoder(w).Encode(page)
	})

	e := New(client, baseConfig(), QualityWeights{})
	seen := NewSeenSet()
	var got []model.Candidate
	n, err := e.Search(context.Background(), "kw", 2, seen, func(c model.Candidate) error {
		got = append(got, c)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 emitted, got %d", n)
	}
	if len(got) != 2 || got[0].ItemID != "a" || got[1].ItemID != "b" {
		t.Fatalf("unexpected candidates: %v", got)
	}
}

func TestSearchDeduplicatesAcrossKeywords(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		page := remote.SearchPage{
			Items: []remote.SearchResultItem{
				{ItemID: "dup", Title: "X", PublishTime: time.Now().Format(time.RFC3339)},
			},
			HasMore: false,
		}
		_ = json.NewEncoder(w).Encode(page)
	})

	e := New(client, baseConfig(), QualityWeights{})
	seen := NewSeenSet()
	total := 0
	emit := func(c model.Candidate) error { total++; return nil }

	if _, err := e.Search(context.Background(), "kw1", 10, seen, emit); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := e.Search(context.Background(), "kw2", 10, seen, emit); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 1 {
		t.Fatalf("expected dedup across keywords to yield 1 total, got %d", total)
	}
}

func TestSearchStopsAtMaxPages(t *testing.T) {
	var calls int
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		page := remote.SearchPage{
			Items:   []remote.SearchResultItem{{ItemID: model.ItemID("id" + strconv.Itoa(calls)), PublishTime: time.Now().Format(time.RFC3339)}},
			HasMore: true,
		}
		_ = json.NewEncoder(w).Encode(page)
	})

	cfg := baseConfig()
	cfg.MaxPages = 3
	e := New(client, cfg, QualityWeights{})
	seen := NewSeenSet()
	_, err := e.Search(context.Background(), "kw", 1000, seen, func(model.Candidate) error { return nil })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected exactly max_pages=3 page fetches, got %d", calls)
	}
}

func TestTitlePassesIncludeExcludeFilters(t *testing.T) {
	cases := []struct {
		title    string
		includes []string
		excludes []string
		want     bool
	}{
		{"Official Trailer", []string{"official"}, nil, true},
		{"Fan Edit", []string{"official"}, nil, false},
		{"Official Trailer", nil, []string{"trailer"}, false},
		{"Behind the scenes", nil, []string{"trailer"}, true},
	}
	for _, tc := range cases {
		if got := titlePasses(tc.title, tc.includes, tc.excludes); got != tc.want {
			t.Errorf("titlePasses(%q, %v, %v) = %v, want %v", tc.title, tc.includes, tc.excludes, got, tc.want)
		}
	}
}

func TestDurationBoundaryInclusive(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		page := remote.SearchPage{
			Items: []remote.SearchResultItem{
				{ItemID: "at-max", Duration: 30, PublishTime: time.Now().Format(time.RFC3339)},
				{ItemID: "over-max", Duration: 31, PublishTime: time.Now().Format(time.RFC3339)},
			},
		}
		_ = json.NewEncoder(w).Encode(page)
	})
	cfg := baseConfig()
	cfg.MaxDurationSeconds = 30
	e := New(client, cfg, QualityWeights{})
	seen := NewSeenSet()
	var ids []model.ItemID
	_, err := e.Search(context.Background(), "kw", 10, seen, func(c model.Candidate) error {
		ids = append(ids, c.ItemID)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ids) != 1 || ids[0] != "at-max" {
		t.Fatalf("expected only the boundary item to pass, got %v", ids)
	}
}
