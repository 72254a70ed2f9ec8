// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package remote

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kaelmedia/vidharvest/internal/config"
	"github.com/kaelmedia/vidharvest/internal/model"
)

func testConfig() *config.Config {
	return &config.Config{
		RequestInterval:   time.Millisecond,
		RandomOffset:      0,
		MaxRetries:        2,
		RetryBaseInterval: 5 * time.Millisecond,
		Timeout:           2 * time.Second,
		UserAgents:        []string{"vidharvest-test/1.0"},
		UARotateInterval:  time.Hour,
	}
}

func TestRequestSuccessDecodesJSON(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer s.Close()

	c := New(testConfig(), s.URL, nil)
	var out struct {
		OK bool `json:"ok"`
	}
	if err := c.Request(context.Background(), http.MethodGet, "/x", nil, nil, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.OK {
		t.Fatal("expected decoded ok=true")
	}
}

func TestRequestRetriesTransientThenSucceeds(t *testing.T) {
	var attempts int32
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer s.Close()

	c := New(testConfig(), s.URL, nil)
	if err := c.Request(context.Background(), http.MethodGet, "/x", nil, nil, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if atomic.LoadInt32(&attempts) != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestRequestExhaustsRetriesAndSurfacesTransient(t *testing.T) {
	var attempts int32
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer s.Close()

	cfg := testConfig()
	cfg.MaxRetries = 2
	c := New(cfg, s.URL, nil)
	err := c.Request(context.Background(), http.MethodGet, "/x", nil, nil, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, model.ErrTransient) {
		t.Fatalf("expected ErrTransient, got %v", err)
	}
	if atomic.LoadInt32(&attempts) != 3 {
		t.Fatalf("expected max_retries+1=3 attempts, got %d", attempts)
	}
}

func TestRequestAuthExpiredNotRetried(t *testing.T) {
	var attempts int32
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer s.Close()

	c := New(testConfig(), s.URL, nil)
	err := c.Request(context.Background(), http.MethodGet, "/x", nil, nil, nil)
	if !errors.Is(err, model.ErrAuthExpired) {
		t.Fatalf("expected ErrAuthExpired, got %v", err)
	}
	if atomic.LoadInt32(&attempts) != 1 {
		t.Fatalf("expected exactly 1 attempt, got %d", attempts)
	}
}

func TestRequestNotFound(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer s.Close()

	c := New(testConfig(), s.URL, nil)
	err := c.Request(context.Background(), http.MethodGet, "/x", nil, nil, nil)
	if !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRequestSendsAuthHeaders(t *testing.T) {
	var seen string
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get("X-Session")
		w.WriteHeader(http.StatusOK)
	}))
	defer s.Close()

	sess := fakeSession{headers: map[string]string{"X-Session": "abc123"}}
	c := New(testConfig(), s.URL, sess)
	if err := c.Request(context.Background(), http.MethodGet, "/x", nil, nil, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seen != "abc123" {
		t.Fatalf("expected session header to be forwarded, got %q", seen)
	}
}

type fakeSession struct {
	headers map[string]string
}

func (f fakeSession) AuthHeaders() map[string]string { return f.headers }
