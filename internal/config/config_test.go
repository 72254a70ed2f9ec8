// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
metadata_dir: /tmp/meta
media_dir: /tmp/media
index_file: /tmp/index.json
credential_file: /tmp/creds.json
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.RequestInterval != time.Second {
		t.Errorf("expected RequestInterval=1s, got %v", cfg.RequestInterval)
	}
	if cfg.PageSize != defaultPageSize {
		t.Errorf("expected PageSize=%d, got %d", defaultPageSize, cfg.PageSize)
	}
	if cfg.QualityThreshold != "720p" {
		t.Errorf("expected QualityThreshold=720p, got %s", cfg.QualityThreshold)
	}
	if !cfg.UpdateIndexOnSave {
		t.Error("expected UpdateIndexOnSave to default true")
	}
}

func TestLoadFromYAMLOverrides(t *testing.T) {
	path := writeConfig(t, `
request_interval_ms: 2000
page_size: 50
concurrent_limit: 8
metadata_dir: /tmp/meta
media_dir: /tmp/media
index_file: /tmp/index.json
credential_file: /tmp/creds.json
keyword_filters: ["official"]
keyword_excludes: ["trailer"]
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.RequestInterval != 2*time.Second {
		t.Errorf("expected RequestInterval=2s, got %v", cfg.RequestInterval)
	}
	if cfg.PageSize != 50 {
		t.Errorf("expected PageSize=50, got %d", cfg.PageSize)
	}
	if cfg.ConcurrentLimit != 8 {
		t.Errorf("expected ConcurrentLimit=8, got %d", cfg.ConcurrentLimit)
	}
	if len(cfg.KeywordFilters) != 1 || cfg.KeywordFilters[0] != "official" {
		t.Errorf("unexpected KeywordFilters: %v", cfg.KeywordFilters)
	}
}

func TestLoadMissingRequiredFieldsFails(t *testing.T) {
	path := writeConfig(t, `page_size: 10`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for missing required directories")
	}
}

func TestLoadRejectsMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidateRejectsInvertedPageInterval(t *testing.T) {
	cfg := &Config{
		MetadataDir:      "/tmp/meta",
		MediaDir:         "/tmp/media",
		IndexFile:        "/tmp/index.json",
		CredentialFile:   "/tmp/creds.json",
		PageSize:         defaultPageSize,
		MaxPages:         defaultMaxPages,
		ConcurrentLimit:  defaultConcurrentLimit,
		PageIntervalLow:  900 * time.Millisecond,
		PageIntervalHigh: 300 * time.Millisecond,
	}
	if err := Validate(cfg); err == nil {
		t.Fatal("expected validation error for inverted page interval bounds")
	}
}

func TestValidateRejectsBlankKeywordFilter(t *testing.T) {
	cfg := &Config{
		MetadataDir:     "/tmp/meta",
		MediaDir:        "/tmp/media",
		IndexFile:       "/tmp/index.json",
		CredentialFile:  "/tmp/creds.json",
		PageSize:        defaultPageSize,
		MaxPages:        defaultMaxPages,
		ConcurrentLimit: defaultConcurrentLimit,
		KeywordFilters:  []string{"  "},
	}
	if err := Validate(cfg); err == nil {
		t.Fatal("expected validation error for blank keyword filter")
	}
}
