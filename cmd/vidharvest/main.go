// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/kaelmedia/vidharvest/internal/config"
	"github.com/kaelmedia/vidharvest/internal/dataset"
	xglog "github.com/kaelmedia/vidharvest/internal/log"
	"github.com/kaelmedia/vidharvest/internal/maintenance"
	"github.com/kaelmedia/vidharvest/internal/metadata"
	"github.com/kaelmedia/vidharvest/internal/orchestrator"
	"github.com/kaelmedia/vidharvest/internal/remote"
	"github.com/kaelmedia/vidharvest/internal/search"
	"github.com/kaelmedia/vidharvest/internal/session"
	"github.com/kaelmedia/vidharvest/internal/stream"
)

var version = "v0.1.0"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "run":
		os.Exit(runCmd(os.Args[2:]))
	case "maintain":
		os.Exit(maintainCmd(os.Args[2:]))
	case "version":
		fmt.Println(version)
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: vidharvest run --config <file> --keyword <kw> [--keyword <kw> ...] [--resume]")
	fmt.Fprintln(os.Stderr, "       vidharvest maintain --config <file> [--filter-duration N] [--analyze] [--sync-index] [--dry-run]")
	fmt.Fprintln(os.Stderr, "       vidharvest version")
}

// keywordList collects repeated --keyword flags.
type keywordList []string

func (k *keywordList) String() string     { return strings.Join(*k, ",") }
func (k *keywordList) Set(v string) error { *k = append(*k, v); return nil }

func loadAndConfigure(configPath string) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	xglog.Configure(xglog.Config{Level: cfg.LogLevel, Service: "vidharvest", Version: version})
	return cfg, nil
}

func buildClient(ctx context.Context, cfg *config.Config) (*remote.Client, error) {
	if cfg.APIBaseURL == "" {
		return nil, fmt.Errorf("config: api_base_url is required to reach the remote service")
	}

	holder := &credHolder{}
	client := remote.New(cfg, cfg.APIBaseURL, holder)

	mgr := session.New(session.Config{
		CredentialPath:  cfg.CredentialFile,
		PrecheckHosts:   cfg.PrecheckHosts,
		PrecheckTimeout: cfg.Timeout,
		MaxRetries:      cfg.MaxRetries,
	}, newEnvAuthenticator(), newIdentityVerifier(client, holder))

	cred, err := mgr.Login(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("session login: %w", err)
	}
	holder.set(cred)

	return client, nil
}

func runCmd(args []string) int {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file (YAML)")
	limit := fs.Int("limit", 50, "per-keyword candidate limit")
	resume := fs.Bool("resume", false, "skip ItemIDs already present with both artifacts")
	var keywords keywordList
	fs.Var(&keywords, "keyword", "keyword to search (repeatable)")
	_ = fs.Parse(args)

	if *configPath == "" || len(keywords) == 0 {
		usage()
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadAndConfigure(*configPath)
	if err != nil {
		return fail(err)
	}

	client, err := buildClient(ctx, cfg)
	if err != nil {
		return fail(err)
	}

	store, err := dataset.Open(dataset.Config{
		MetadataDir:       cfg.MetadataDir,
		MediaDir:          cfg.MediaDir,
		IndexPath:         cfg.IndexFile,
		UpdateIndexOnSave: cfg.UpdateIndexOnSave,
	})
	if err != nil {
		return fail(fmt.Errorf("open dataset store: %w", err))
	}

	searchEngine := search.New(client, cfg, search.QualityWeights{})
	collector := metadata.New(client)
	downloader := stream.New(client, stream.Config{
		MediaDir:   cfg.MediaDir,
		ChunkSize:  cfg.ChunkSize,
		MaxSizeBytes: cfg.MaxSizeBytes,
		RetryTimes: cfg.RetryTimes,
		MuxerBin:   "ffmpeg",
	})

	engine := orchestrator.New(cfg, searchEngine, collector, store, downloader)
	report, err := engine.Run(ctx, orchestrator.RunOptions{
		Keywords: keywords,
		Limit:    *limit,
		Quality:  cfg.DefaultQuality,
		Resume:   *resume,
	})
	if err != nil {
		xglog.WithComponent("vidharvest").Error().Err(err).Msg("run failed")
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(report)

	if err != nil {
		return 1
	}
	return 0
}

func maintainCmd(args []string) int {
	fs := flag.NewFlagSet("maintain", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file (YAML)")
	filterDuration := fs.Int("filter-duration", 0, "remove items whose duration exceeds this many seconds (0 = skip)")
	analyze := fs.Bool("analyze", false, "report the four orphan categories")
	syncIndex := fs.Bool("sync-index", false, "rebuild the index from what is actually on disk")
	dryRun := fs.Bool("dry-run", false, "plan changes without applying them")
	ffprobeBin := fs.String("ffprobe", "ffprobe", "ffprobe-compatible binary for duration probing")
	_ = fs.Parse(args)

	if *configPath == "" {
		usage()
		return 2
	}

	cfg, err := loadAndConfigure(*configPath)
	if err != nil {
		return fail(err)
	}

	store, err := dataset.Open(dataset.Config{
		MetadataDir:       cfg.MetadataDir,
		MediaDir:          cfg.MediaDir,
		IndexPath:         cfg.IndexFile,
		UpdateIndexOnSave: cfg.UpdateIndexOnSave,
	})
	if err != nil {
		return fail(fmt.Errorf("open dataset store: %w", err))
	}

	engine := maintenance.New(store, maintenance.NewFFprobeProber(*ffprobeBin))
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	if *filterDuration > 0 {
		report, err := engine.FilterByDuration(context.Background(), *filterDuration, *dryRun)
		if err != nil {
			return fail(err)
		}
		_ = enc.Encode(report)
	}
	if *analyze {
		report, err := engine.Analyze()
		if err != nil {
			return fail(err)
		}
		_ = enc.Encode(report)
	}
	if *syncIndex {
		report, err := engine.SyncIndex(*dryRun)
		if err != nil {
			return fail(err)
		}
		_ = enc.Encode(report)
	}
	return 0
}

func fail(err error) int {
	fmt.Fprintf(os.Stderr, "vidharvest: %v\n", err)
	return 1
}
