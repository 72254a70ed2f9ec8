// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults mirror spec.md §6's documented default values.
const (
	defaultRequestIntervalMS = 1000
	defaultRandomOffsetMS    = 500
	defaultMaxRetries        = 3
	defaultRetryBaseMS       = 500
	defaultTimeoutMS         = 10000
	defaultUARotateSeconds   = 600
	defaultPageSize          = 20
	defaultMaxPages          = 50
	defaultPageIntervalLowMS = 300
	defaultPageIntervalHiMS  = 1200
	defaultQualityThreshold  = "720p"
	defaultConcurrentLimit   = 4
	defaultRetryTimes        = 3
	defaultChunkSizeKB       = 1024
	defaultMaxSizeGB         = 0 // 0 = unlimited
	defaultLogLevel          = "info"
)

// Load reads the YAML file at path, applies defaults, and validates the
// result. It never mutates environment state: unlike the teacher's
// env-var-driven Loader, this pipeline takes its configuration from a
// single file plus CLI flags owned by cmd/vidharvest.
func Load(path string) (*Config, error) {
	fc, err := LoadFileConfig(path)
	if err != nil {
		return nil, err
	}
	cfg, err := Resolve(fc)
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// LoadFileConfig decodes path into a FileConfig without applying defaults
// or validating it, for callers that want to inspect the raw file (e.g.
// config-diff tooling).
func LoadFileConfig(path string) (*FileConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var fc FileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return &fc, nil
}

func intOr(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

func int64Or(p *int64, def int64) int64 {
	if p == nil {
		return def
	}
	return *p
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

// Resolve applies defaults to a decoded FileConfig, producing the
// immutable Config record every component consumes.
func Resolve(fc *FileConfig) (*Config, error) {
	cfg := &Config{
		RequestInterval:   time.Duration(intOr(fc.RequestIntervalMS, defaultRequestIntervalMS)) * time.Millisecond,
		RandomOffset:      time.Duration(intOr(fc.RandomOffsetMS, defaultRandomOffsetMS)) * time.Millisecond,
		MaxRetries:        intOr(fc.MaxRetries, defaultMaxRetries),
		RetryBaseInterval: time.Duration(intOr(fc.RetryBaseMS, defaultRetryBaseMS)) * time.Millisecond,
		Timeout:           time.Duration(intOr(fc.TimeoutMS, defaultTimeoutMS)) * time.Millisecond,
		UserAgents:        fc.UserAgents,
		UARotateInterval:  time.Duration(intOr(fc.UARotateInterval, defaultUARotateSeconds)) * time.Second,

		PageSize: intOr(fc.PageSize, defaultPageSize),
		MaxPages: intOr(fc.MaxPages, defaultMaxPages),

		MinViewCount:       int64Or(fc.MinViewCount, 0),
		MinDurationSeconds: intOr(fc.MinDuration, 0),
		MaxDurationSeconds: intOr(fc.MaxDuration, 0),
		KeywordFilters:  fc.KeywordFilters,
		KeywordExcludes: fc.KeywordExcludes,

		QualityThreshold: firstNonEmpty(fc.QualityThreshold, defaultQualityThreshold),
		DefaultQuality:   fc.DefaultQuality,

		ConcurrentLimit: intOr(fc.ConcurrentLimit, defaultConcurrentLimit),
		MetadataWorkers: intOr(fc.MetadataWorkers, intOr(fc.ConcurrentLimit, defaultConcurrentLimit)),
		RetryTimes:      intOr(fc.RetryTimes, defaultRetryTimes),
		ChunkSize:       int64(intOr(fc.ChunkSizeKB, defaultChunkSizeKB)) * 1024,
		MaxSizeBytes:    int64(intOr(fc.MaxSizeGB, defaultMaxSizeGB)) * 1024 * 1024 * 1024,
		MaxDurationOnDownload: time.Duration(intOr(fc.MaxDurationOnDL, 0)) * time.Second,

		MetadataDir:       firstNonEmpty(fc.MetadataDir, "./metadata"),
		MediaDir:          firstNonEmpty(fc.MediaDir, "./media"),
		IndexFile:         firstNonEmpty(fc.IndexFile, "./index.json"),
		CredentialFile:    firstNonEmpty(fc.CredentialFile, "./credentials.json"),
		UpdateIndexOnSave: boolOr(fc.UpdateIndexOnSave, true),

		LogLevel: firstNonEmpty(fc.LogLevel, defaultLogLevel),

		APIBaseURL:    fc.APIBaseURL,
		PrecheckHosts: fc.PrecheckHosts,
	}

	lo, hi := defaultPageIntervalLowMS, defaultPageIntervalHiMS
	if len(fc.PageInterval) == 2 {
		lo, hi = fc.PageInterval[0], fc.PageInterval[1]
	}
	cfg.PageIntervalLow = time.Duration(lo) * time.Millisecond
	cfg.PageIntervalHigh = time.Duration(hi) * time.Millisecond

	if fc.MinPubDate != "" {
		t, err := time.Parse(time.RFC3339, fc.MinPubDate)
		if err != nil {
			return nil, fmt.Errorf("config: min_pubdate: %w", err)
		}
		cfg.MinPubDate = t
	}
	if fc.MaxPubDate != "" {
		t, err := time.Parse(time.RFC3339, fc.MaxPubDate)
		if err != nil {
			return nil, fmt.Errorf("config: max_pubdate: %w", err)
		}
		cfg.MaxPubDate = t
	}

	return cfg, nil
}

func firstNonEmpty(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
