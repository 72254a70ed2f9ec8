// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package stream implements C5: resolving the video/audio streams for an
// item, downloading them with byte-range resume, and invoking the muxer
// to produce the final media artifact.
package stream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kaelmedia/vidharvest/internal/log"
	"github.com/kaelmedia/vidharvest/internal/metrics"
	"github.com/kaelmedia/vidharvest/internal/model"
	"github.com/kaelmedia/vidharvest/internal/muxer"
	"github.com/kaelmedia/vidharvest/internal/platform/fs"
	"github.com/kaelmedia/vidharvest/internal/remote"
)

// qualityOrder ranks quality codes from lowest to highest; the index in
// this slice is the quality's comparable rank.
var qualityOrder = []string{"360p", "480p", "720p", "1080p", "2k", "4k"}

func qualityRank(q string) int {
	for i, v := range qualityOrder {
		if v == q {
			return i
		}
	}
	return -1
}

// Downloader implements the per-item download algorithm of spec §4.5.
type Downloader struct {
	client      *remote.Client
	muxer       *muxer.Muxer
	mediaDir    string
	chunkSize   int64
	maxSizeBytes int64
	retryTimes  int
}

// Config configures a Downloader.
type Config struct {
	MediaDir     string
	ChunkSize    int64
	MaxSizeBytes int64
	RetryTimes   int
	MuxerBin     string
	MuxerGrace   time.Duration
}

// New constructs a Downloader.
func New(client *remote.Client, cfg Config) *Downloader {
	return &Downloader{
		client:       client,
		muxer:        muxer.New(cfg.MuxerBin, cfg.MuxerGrace),
		mediaDir:     cfg.MediaDir,
		chunkSize:    cfg.ChunkSize,
		maxSizeBytes: cfg.MaxSizeBytes,
		retryTimes:   cfg.RetryTimes,
	}
}

// ResolveQuality resolves the stream with the highest quality code not
// exceeding requested among the available ones, per spec §4.5's
// quality-selection rule. If none qualify, it falls back to the lowest
// available quality and reports the downgrade.
func ResolveQuality(available []string, requested string) (selected string, downgraded bool) {
	wantRank := qualityRank(requested)
	bestIdx := -1
	bestRank := -1
	lowestIdx := -1
	lowestRank := 1 << 30
	for i, q := range available {
		r := qualityRank(q)
		if r < 0 {
			continue
		}
		if r <= wantRank && r > bestRank {
			bestRank = r
			bestIdx = i
		}
		if r < lowestRank {
			lowestRank = r
			lowestIdx = i
		}
	}
	if bestIdx >= 0 {
		return available[bestIdx], false
	}
	if lowestIdx >= 0 {
		return available[lowestIdx], true
	}
	return "", false
}

// DownloadResult describes the outcome of a completed download.
type DownloadResult struct {
	MediaPath string
	Ext       string
}

// ResolveAndDownload fetches the set of available streams for id through
// C1, resolves the best quality not exceeding requestedQuality (falling
// back to the lowest available and logging a downgrade), then downloads
// and muxes it. It returns model.ErrQualityUnavailable if the remote
// reports no streams at all.
func (d *Downloader) ResolveAndDownload(ctx context.Context, id model.ItemID, requestedQuality, ext string) (DownloadResult, error) {
	var available remote.AvailableStreamsResponse
	if err := d.client.Request(ctx, "GET", "/video/streams", StreamParams(id, ""), nil, &available); err != nil {
		return DownloadResult{}, err
	}
	if len(available.Streams) == 0 {
		return DownloadResult{}, model.ErrQualityUnavailable
	}

	byQuality := make(map[string]remote.StreamResponse, len(available.Streams))
	qualities := make([]string, 0, len(available.Streams))
	for _, s := range available.Streams {
		byQuality[s.Quality] = s
		qualities = append(qualities, s.Quality)
	}

	selected, downgraded := ResolveQuality(qualities, requestedQuality)
	if selected == "" {
		return DownloadResult{}, model.ErrQualityUnavailable
	}
	if downgraded {
		log.WithComponent("stream").Warn().
			Str("item_id", string(id)).Str("requested", requestedQuality).Str("selected", selected).
			Msg("requested quality unavailable, downgrading")
	}

	return d.Download(ctx, id, byQuality[selected], ext)
}

// Download fetches the video and audio streams for id at the given
// quality, resumes any existing .part files, and invokes the muxer.
// It first applies the disk guard (free space and the configured size
// cap), returning model.ErrDiskFull before fetching anything.
// Pre-download duration filtering is the caller's responsibility (the
// orchestrator consults the dataset store and config before calling
// Download).
func (d *Downloader) Download(ctx context.Context, id model.ItemID, streamResp remote.StreamResponse, ext string) (DownloadResult, error) {
	if err := d.checkDisk(); err != nil {
		return DownloadResult{}, err
	}

	videoPart := filepath.Join(d.mediaDir, fmt.Sprintf("%s.video.part", id))
	audioPart := filepath.Join(d.mediaDir, fmt.Sprintf("%s.audio.part", id))

	if err := d.fetchWithRetry(ctx, streamResp.VideoURL, videoPart); err != nil {
		return DownloadResult{}, err
	}
	if err := d.fetchWithRetry(ctx, streamResp.AudioURL, audioPart); err != nil {
		return DownloadResult{}, err
	}

	outPath := filepath.Join(d.mediaDir, fmt.Sprintf("%s.%s", id, ext))
	if err := d.muxer.Mux(ctx, videoPart, audioPart, outPath); err != nil {
		metrics.IncDownload("merge_error")
		return DownloadResult{}, err
	}

	_ = os.Remove(videoPart)
	_ = os.Remove(audioPart)
	metrics.IncDownload("success")
	return DownloadResult{MediaPath: outPath, Ext: ext}, nil
}

func (d *Downloader) checkDisk() error {
	free, err := freeSpace(d.mediaDir)
	if err != nil {
		return nil // disk guard is best-effort; do not fail on platform quirks
	}
	if free < d.chunkSize*4 {
		return model.ErrDiskFull
	}
	if d.maxSizeBytes > 0 {
		used, err := dirSize(d.mediaDir)
		if err == nil && used >= d.maxSizeBytes {
			return model.ErrDiskFull
		}
	}
	return nil
}

func dirSize(dir string) (int64, error) {
	var total int64
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		info, statErr := d.Info()
		if statErr == nil {
			total += info.Size()
		}
		return nil
	})
	return total, err
}

// fetchWithRetry downloads srcURL into partPath, resuming from its
// existing size via HTTP Range on restart, retrying up to retryTimes on
// transient failure.
func (d *Downloader) fetchWithRetry(ctx context.Context, srcURL, partPath string) error {
	var lastErr error
	for attempt := 0; attempt <= d.retryTimes; attempt++ {
		err := d.fetchOnce(ctx, srcURL, partPath)
		if err == nil {
			return nil
		}
		lastErr = err
		log.WithComponent("stream").Warn().
			Str("part", filepath.Base(partPath)).Int("attempt", attempt+1).Err(err).
			Msg("download attempt failed")
		if attempt < d.retryTimes {
			backoff := time.Duration(1<<attempt) * time.Second
			t := time.NewTimer(backoff)
			select {
			case <-t.C:
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			}
		}
	}
	return fmt.Errorf("stream: download failed after %d attempts: %w", d.retryTimes+1, lastErr)
}

func (d *Downloader) fetchOnce(ctx context.Context, srcURL, partPath string) error {
	confined, err := fs.ConfineAbsPath(d.mediaDir, partPath)
	if err != nil {
		return fmt.Errorf("stream: refusing to write outside media dir: %w", err)
	}
	partPath = confined

	var resumeFrom int64
	if info, statErr := os.Stat(partPath); statErr == nil {
		resumeFrom = info.Size()
	}

	var rangeHeader string
	if resumeFrom > 0 {
		rangeHeader = fmt.Sprintf("bytes=%d-", resumeFrom)
	}

	res, err := d.client.RangeGet(ctx, srcURL, rangeHeader)
	if err != nil {
		return err
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode == http.StatusRequestedRangeNotSatisfiable {
		// The server has no knowledge of our partial file; start over.
		_ = os.Remove(partPath)
		resumeFrom = 0
		return d.fetchOnce(ctx, srcURL, partPath)
	}
	if res.StatusCode != http.StatusOK && res.StatusCode != http.StatusPartialContent {
		return fmt.Errorf("%w: unexpected status %d", model.ErrTransient, res.StatusCode)
	}
	if resumeFrom > 0 && res.StatusCode != http.StatusPartialContent {
		// Server ignored the Range header; restart the file cleanly.
		_ = os.Remove(partPath)
		resumeFrom = 0
	}

	expectedTotal := expectedLength(res, resumeFrom)

	flags := os.O_CREATE | os.O_WRONLY
	if resumeFrom > 0 && res.StatusCode == http.StatusPartialContent {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(partPath, flags, 0o644)
	if err != nil {
		return fmt.Errorf("stream: open part file: %w", err)
	}
	defer func() { _ = f.Close() }()

	written, err := io.Copy(f, res.Body)
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrTransient, err)
	}

	if expectedTotal > 0 {
		finalSize := resumeFrom + written
		if res.StatusCode == http.StatusOK {
			finalSize = written
		}
		if finalSize != expectedTotal {
			_ = os.Remove(partPath)
			return fmt.Errorf("%w: downloaded %d bytes, expected %d", model.ErrTransient, finalSize, expectedTotal)
		}
	}
	return nil
}

func expectedLength(res *http.Response, resumeFrom int64) int64 {
	if res.StatusCode == http.StatusPartialContent {
		cr := res.Header.Get("Content-Range")
		if idx := strings.LastIndex(cr, "/"); idx >= 0 {
			if n, err := strconv.ParseInt(cr[idx+1:], 10, 64); err == nil {
				return n
			}
		}
		if res.ContentLength > 0 {
			return resumeFrom + res.ContentLength
		}
		return 0
	}
	return res.ContentLength
}

// AvailableQualities extracts and sorts the quality codes a StreamResponse
// set offers, lowest first; used by callers resolving across multiple
// fetched responses.
func AvailableQualities(resp map[string]remote.StreamResponse) []string {
	out := make([]string, 0, len(resp))
	for q := range resp {
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool { return qualityRank(out[i]) < qualityRank(out[j]) })
	return out
}

// StreamParams builds the query parameters for a "Get stream URLs" call.
func StreamParams(id model.ItemID, quality string) url.Values {
	return url.Values{"item_id": {string(id)}, "quality": {quality}}
}
