// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package remote is the single gateway (C1) through which every outbound
// call to the video service travels: it injects session headers, rotates
// user agents, paces requests through the process-wide limiter, and
// retries transient failures with jittered exponential backoff.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kaelmedia/vidharvest/internal/config"
	"github.com/kaelmedia/vidharvest/internal/log"
	"github.com/kaelmedia/vidharvest/internal/metrics"
	"github.com/kaelmedia/vidharvest/internal/model"
	"github.com/kaelmedia/vidharvest/internal/platform/httpx"
	"github.com/kaelmedia/vidharvest/internal/ratelimit"
	"github.com/kaelmedia/vidharvest/internal/resilience"
)

const maxErrBody = 4096

// SessionSource supplies the headers/cookies C2 wants attached to every
// outbound request. The transport never interprets their contents.
type SessionSource interface {
	AuthHeaders() map[string]string
}

// Client is the rate-limited HTTP transport described in spec §4.1. One
// instance is constructed by the orchestrator and shared by every
// component that needs to reach the remote service.
type Client struct {
	http       *http.Client
	base       string
	limiter    *ratelimit.Limiter
	cb         *resilience.CircuitBreaker
	maxRetries int
	retryBase  time.Duration
	timeout    time.Duration
	session    SessionSource
	rng        *rand.Rand
}

// New constructs a transport client from cfg. baseURL is the remote
// service's API root.
func New(cfg *config.Config, baseURL string, session SessionSource) *Client {
	return &Client{
		http: httpx.NewClient(cfg.Timeout),
		base: strings.TrimRight(baseURL, "/"),
		limiter: ratelimit.New(ratelimit.Config{
			RequestInterval:  cfg.RequestInterval,
			RandomOffset:     cfg.RandomOffset,
			UserAgents:       cfg.UserAgents,
			UARotateInterval: cfg.UARotateInterval,
		}),
		cb: resilience.NewCircuitBreaker("remote_transport", 5, 10,
			1*time.Minute, 30*time.Second),
		maxRetries: cfg.MaxRetries,
		retryBase:  cfg.RetryBaseInterval,
		timeout:    cfg.Timeout,
		session:    session,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Request performs one logical call to path with query params and an
// optional JSON-encodable body, decoding a 2xx JSON response into out.
// It is the sole exported entry point other components use to reach the
// remote service; every invocation traverses the rate limiter, the
// circuit breaker, and the retry loop.
func (c *Client) Request(ctx context.Context, method, path string, params url.Values, body any, out any) error {
	if !c.cb.AllowRequest() {
		return resilience.ErrCircuitOpen
	}

	data, status, err := c.doWithRetry(ctx, method, path, params, body)
	if err != nil {
		if isTechnicalError(err) {
			c.cb.RecordTechnicalFailure()
		}
		return err
	}
	c.cb.RecordSuccess()

	if out == nil || len(data) == 0 {
		return nil
	}
	if jsonErr := json.Unmarshal(data, out); jsonErr != nil {
		return fmt.Errorf("remote: decode response (status %d): %w", status, jsonErr)
	}
	return nil
}

func (c *Client) doWithRetry(ctx context.Context, method, path string, params url.Values, body any) ([]byte, int, error) {
	maxAttempts := c.maxRetries + 1
	var lastErr error
	var lastStatus int

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, 0, fmt.Errorf("remote: rate limit wait: %w", err)
		}

		data, status, err := c.doOnce(ctx, method, path, params, body)
		success := err == nil && status >= 200 && status < 300

		logEvent := log.WithComponent("remote").With().
			Str("operation", path).
			Int("attempt", attempt).
			Int("max_attempts", maxAttempts)
		if status > 0 {
			logEvent = logEvent.Int("status", status)
		}
		entry := logEvent.Logger()

		if success {
			entry.Info().Msg("remote request completed")
			metrics.IncRetry("none")
			return data, status, nil
		}

		lastErr = err
		lastStatus = status

		classified := classify(status, err)
		switch classified {
		case classifiedAuthExpired:
			entry.Warn().Err(err).Msg("remote request: session expired")
			return nil, status, model.ErrAuthExpired
		case classifiedRateLimited:
			retryAfter := parseRetryAfter(data, nil)
			entry.Warn().Int("retry_after_s", retryAfter).Msg("remote request rate limited")
			if attempt == maxAttempts {
				return nil, status, &model.RateLimitedError{RetryAfterSeconds: retryAfter}
			}
			metrics.IncRetry("rate_limited")
			sleepFor := clampRetryAfter(time.Duration(retryAfter)*time.Second, c.retryBase)
			if !sleepCtx(ctx, sleepFor) {
				return nil, status, ctx.Err()
			}
			continue
		case classifiedNotFound:
			return nil, status, model.ErrNotFound
		case classifiedTransient:
			if attempt == maxAttempts {
				entry.Error().Err(err).Msg("remote request exhausted retries")
				return nil, status, fmt.Errorf("%w: %v", model.ErrTransient, err)
			}
			metrics.IncRetry("transient")
			entry.Warn().Err(err).Msg("remote request retry")
			if !sleepCtx(ctx, c.backoff(attempt)) {
				return nil, status, ctx.Err()
			}
			continue
		default:
			entry.Error().Err(err).Msg("remote request failed")
			return nil, status, &model.RemoteError{Code: strconv.Itoa(status), Message: snippet(data)}
		}
	}
	return nil, lastStatus, lastErr
}

// RangeGet issues a direct GET against absoluteURL, honoring C1's rate
// limiter and attaching the rotating User-Agent and session headers every
// other request gets. rangeHeader, if non-empty, is sent as the HTTP
// Range header. Unlike Request, the response body is not buffered or
// decoded — the caller owns it and must close it — because C5 streams
// arbitrarily large media bodies straight to disk.
func (c *Client) RangeGet(ctx context.Context, absoluteURL, rangeHeader string) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("remote: rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, absoluteURL, nil)
	if err != nil {
		return nil, fmt.Errorf("remote: build range request: %w", err)
	}
	req.Header.Set("User-Agent", c.limiter.UserAgent())
	if rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}
	if c.session != nil {
		for k, v := range c.session.AuthHeaders() {
			req.Header.Set(k, v)
		}
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrTransient, err)
	}
	return res, nil
}

func (c *Client) doOnce(ctx context.Context, method, path string, params url.Values, body any) ([]byte, int, error) {
	attemptCtx := ctx
	var cancel context.CancelFunc
	if c.timeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	full := c.base + path
	if len(params) > 0 {
		full += "?" + params.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, 0, fmt.Errorf("remote: encode request body: %w", err)
		}
		reqBody = strings.NewReader(string(encoded))
	}

	req, err := http.NewRequestWithContext(attemptCtx, method, full, reqBody)
	if err != nil {
		return nil, 0, fmt.Errorf("remote: build request: %w", err)
	}
	req.Header.Set("User-Agent", c.limiter.UserAgent())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.session != nil {
		for k, v := range c.session.AuthHeaders() {
			req.Header.Set(k, v)
		}
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer func() {
		_, _ = io.CopyN(io.Discard, res.Body, maxErrBody)
		_ = res.Body.Close()
	}()

	limit := int64(1 << 24) // 16MiB cap on a single JSON response
	data, err := io.ReadAll(io.LimitReader(res.Body, limit))
	if err != nil {
		return nil, res.StatusCode, err
	}
	return data, res.StatusCode, nil
}

type classifiedKind int

const (
	classifiedOK classifiedKind = iota
	classifiedAuthExpired
	classifiedRateLimited
	classifiedNotFound
	classifiedTransient
	classifiedRemoteError
)

func classify(status int, err error) classifiedKind {
	if err != nil {
		if isTechnicalError(err) {
			return classifiedTransient
		}
		return classifiedRemoteError
	}
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return classifiedAuthExpired
	case http.StatusTooManyRequests:
		return classifiedRateLimited
	case http.StatusNotFound:
		return classifiedNotFound
	}
	if status >= 500 {
		return classifiedTransient
	}
	return classifiedRemoteError
}

func isTechnicalError(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}

func (c *Client) backoff(attempt int) time.Duration {
	factor := 1 << (attempt - 1)
	d := time.Duration(factor) * c.retryBase
	jitter := time.Duration(c.rng.Int63n(int64(c.retryBase) + 1))
	return d + jitter
}

func clampRetryAfter(d, base time.Duration) time.Duration {
	if d < base {
		return base
	}
	if d > 60*time.Second {
		return 60 * time.Second
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// retryAfterBody is the minimal shape some services embed in a 429 body;
// absent or unparseable bodies fall back to the hdr argument or 1.
type retryAfterBody struct {
	RetryAfter int `json:"retry_after"`
}

func parseRetryAfter(body []byte, hdr *int) int {
	var parsed retryAfterBody
	if len(body) > 0 && json.Unmarshal(body, &parsed) == nil && parsed.RetryAfter > 0 {
		return parsed.RetryAfter
	}
	if hdr != nil {
		return *hdr
	}
	return 1
}

func snippet(body []byte) string {
	limit := 500
	if len(body) < limit {
		limit = len(body)
	}
	s := strings.ReplaceAll(string(body[:limit]), "\n", " ")
	return strings.ReplaceAll(s, "\r", "")
}
