// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config decodes and validates the acquisition pipeline's YAML
// configuration file into an immutable Config record.
package config

import "time"

// FileConfig is the raw YAML shape. Optional numeric and boolean fields use
// pointers so a decoder can distinguish "not set, apply default" from
// "explicitly set to the zero value" — the same convention the teacher's
// internal/config/types.go FileConfig uses throughout.
type FileConfig struct {
	RequestIntervalMS *int     `yaml:"request_interval_ms,omitempty"`
	RandomOffsetMS    *int     `yaml:"random_offset_ms,omitempty"`
	MaxRetries        *int     `yaml:"max_retries,omitempty"`
	RetryBaseMS       *int     `yaml:"retry_base_interval_ms,omitempty"`
	TimeoutMS         *int     `yaml:"timeout_ms,omitempty"`
	UserAgents        []string `yaml:"user_agents,omitempty"`
	UARotateInterval  *int     `yaml:"ua_rotate_interval_s,omitempty"`

	PageSize     *int  `yaml:"page_size,omitempty"`
	MaxPages     *int  `yaml:"max_pages,omitempty"`
	PageInterval []int `yaml:"page_interval_ms,omitempty"` // [lo, hi]

	MinViewCount    *int64   `yaml:"min_view_count,omitempty"`
	MinDuration     *int     `yaml:"min_duration_seconds,omitempty"`
	MaxDuration     *int     `yaml:"max_duration_seconds,omitempty"`
	MinPubDate      string   `yaml:"min_pubdate,omitempty"` // RFC3339
	MaxPubDate      string   `yaml:"max_pubdate,omitempty"` // RFC3339
	KeywordFilters  []string `yaml:"keyword_filters,omitempty"`
	KeywordExcludes []string `yaml:"keyword_excludes,omitempty"`

	QualityThreshold string `yaml:"quality_threshold,omitempty"`
	DefaultQuality   string `yaml:"default_quality,omitempty"`

	ConcurrentLimit  *int `yaml:"concurrent_limit,omitempty"`
	MetadataWorkers  *int `yaml:"metadata_workers,omitempty"`
	RetryTimes       *int `yaml:"retry_times,omitempty"`
	ChunkSizeKB      *int `yaml:"chunk_size_kb,omitempty"`
	MaxSizeGB        *int `yaml:"max_size_gb,omitempty"`
	MaxDurationOnDL  *int `yaml:"max_duration_on_download,omitempty"`

	MetadataDir        string `yaml:"metadata_dir,omitempty"`
	MediaDir           string `yaml:"media_dir,omitempty"`
	IndexFile          string `yaml:"index_file,omitempty"`
	CredentialFile     string `yaml:"credential_file,omitempty"`
	UpdateIndexOnSave  *bool  `yaml:"update_index_on_save,omitempty"`

	LogLevel string `yaml:"log_level,omitempty"`

	APIBaseURL    string   `yaml:"api_base_url,omitempty"`
	PrecheckHosts []string `yaml:"precheck_hosts,omitempty"`
}

// Config is the fully resolved, validated configuration every component
// receives. Unlike FileConfig it carries no pointers: defaults have
// already been applied by Resolve.
type Config struct {
	RequestInterval  time.Duration
	RandomOffset     time.Duration
	MaxRetries       int
	RetryBaseInterval time.Duration
	Timeout          time.Duration
	UserAgents       []string
	UARotateInterval time.Duration

	PageSize     int `validate:"min=1,max=100"`
	MaxPages     int `validate:"min=1"`
	PageIntervalLow  time.Duration
	PageIntervalHigh time.Duration

	MinViewCount    int64
	MinDurationSeconds int // 0 = unbounded
	MaxDurationSeconds int // 0 = unbounded
	MinPubDate      time.Time
	MaxPubDate      time.Time
	KeywordFilters  []string
	KeywordExcludes []string

	QualityThreshold string
	DefaultQuality   string

	ConcurrentLimit int `validate:"min=1,max=64"`
	MetadataWorkers int `validate:"min=1,max=64"`
	RetryTimes      int `validate:"min=0,max=20"`
	ChunkSize       int64
	MaxSizeBytes    int64
	MaxDurationOnDownload time.Duration

	MetadataDir       string `validate:"required"`
	MediaDir          string `validate:"required"`
	IndexFile         string `validate:"required"`
	CredentialFile    string `validate:"required"`
	UpdateIndexOnSave bool

	LogLevel string `validate:"omitempty,oneof=debug info warn error"`

	APIBaseURL    string `validate:"omitempty,url"`
	PrecheckHosts []string
}
