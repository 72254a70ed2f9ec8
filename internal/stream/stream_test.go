// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package stream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kaelmedia/vidharvest/internal/config"
	"github.com/kaelmedia/vidharvest/internal/remote"
)

type stubSession struct{}

func (stubSession) AuthHeaders() map[string]string { return nil }

func TestResolveQualityPicksHighestNotExceedingRequested(t *testing.T) {
	available := []string{"360p", "480p", "720p", "1080p"}
	got, downgraded := ResolveQuality(available, "1080p")
	if got != "1080p" || downgraded {
		t.Fatalf("got %s downgraded=%v, want 1080p false", got, downgraded)
	}

	got, downgraded = ResolveQuality(available, "2k")
	if got != "1080p" || downgraded {
		t.Fatalf("got %s downgraded=%v, want 1080p false (best available below requested)", got, downgraded)
	}
}

func TestResolveQualityFallsBackToLowestWhenNoneQualify(t *testing.T) {
	available := []string{"1080p", "2k"}
	got, downgraded := ResolveQuality(available, "360p")
	if got != "1080p" || !downgraded {
		t.Fatalf("got %s downgraded=%v, want 1080p true (downgrade reported)", got, downgraded)
	}
}

func newTestDownloader(t *testing.T, videoBody, audioBody []byte, rangeAware bool) (*Downloader, *httptest.Server) {
	t.Helper()
	mux := http.NewServeMux()
	serveBody := func(body []byte) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if rangeAware {
				if rh := r.Header.Get("Range"); rh != "" {
					start := parseRangeStart(rh)
					w.Header().Set("Content-Range", contentRangeHeader(start, len(body)))
					w.WriteHeader(http.StatusPartialContent)
					_, _ = w.Write(body[start:])
					return
				}
			}
			w.Header().Set("Content-Length", itoa(len(body)))
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(body)
		}
	}
	mux.HandleFunc("/video", serveBody(videoBody))
	mux.HandleFunc("/audio", serveBody(audioBody))
	srv := httptest.NewServer(mux)
	client := remote.New(&config.Config{Timeout: 5 * time.Second}, srv.URL, stubSession{})

	dir := t.TempDir()
	d := New(client, Config{
		MediaDir:   dir,
		ChunkSize:  1024,
		RetryTimes: 1,
		MuxerBin:   "true",
		MuxerGrace: time.Second,
	})
	return d, srv
}

func TestDownloadFetchesAndMuxesSuccessfully(t *testing.T) {
	video := []byte("fake-video-bytes")
	audio := []byte("fake-audio-bytes")
	d, srv := newTestDownloader(t, video, audio, false)
	defer srv.Close()

	resp := remote.StreamResponse{
		VideoURL: srv.URL + "/video",
		AudioURL: srv.URL + "/audio",
	}
	result, err := d.Download(context.Background(), "item-1", resp, "mp4")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasSuffix(result.MediaPath, "item-1.mp4") {
		t.Fatalf("unexpected media path: %s", result.MediaPath)
	}
	if _, err := os.Stat(filepath.Join(d.mediaDir, "item-1.video.part")); !os.IsNotExist(err) {
		t.Fatalf("expected video .part to be cleaned up")
	}
}

func TestDownloadResumesFromExistingPartFile(t *testing.T) {
	video := []byte("0123456789ABCDEF")
	audio := []byte("audio-bytes-here")
	d, srv := newTestDownloader(t, video, audio, true)
	defer srv.Close()

	partial := video[:8]
	videoPart := filepath.Join(d.mediaDir, "item-2.video.part")
	if err := os.WriteFile(videoPart, partial, 0o644); err != nil {
		t.Fatalf("seed partial file: %v", err)
	}

	resp := remote.StreamResponse{
		VideoURL: srv.URL + "/video",
		AudioURL: srv.URL + "/audio",
	}
	if _, err := d.Download(context.Background(), "item-2", resp, "mp4"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDownloadFailsOnDiskFullWhenMaxSizeExceeded(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "existing.mp4"), make([]byte, 2048), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}
	d := New(nil, Config{
		MediaDir:     dir,
		ChunkSize:    1024,
		MaxSizeBytes: 1024,
		RetryTimes:   0,
		MuxerBin:     "true",
	})
	resp := remote.StreamResponse{VideoURL: "http://unused", AudioURL: "http://unused"}
	if _, err := d.Download(context.Background(), "item-3", resp, "mp4"); err == nil {
		t.Fatal("expected DiskFull error when max_size_gb exceeded")
	}
}

func TestResolveAndDownloadPicksQualityAndDownloads(t *testing.T) {
	video := []byte("fake-video-bytes")
	audio := []byte("fake-audio-bytes")
	var serverURL string

	mux := http.NewServeMux()
	mux.HandleFunc("/video/streams", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		body := `{"streams":[` +
			`{"quality":"360p","video_url":"` + serverURL + `/video","audio_url":"` + serverURL + `/audio"},` +
			`{"quality":"1080p","video_url":"` + serverURL + `/video","audio_url":"` + serverURL + `/audio"}` +
			`]}`
		_, _ = w.Write([]byte(body))
	})
	mux.HandleFunc("/video", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", itoa(len(video)))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(video)
	})
	mux.HandleFunc("/audio", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", itoa(len(audio)))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(audio)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	serverURL = srv.URL

	client := remote.New(&config.Config{Timeout: 5 * time.Second}, srv.URL, stubSession{})

	dir := t.TempDir()
	d := New(client, Config{
		MediaDir:   dir,
		ChunkSize:  1024,
		RetryTimes: 0,
		MuxerBin:   "true",
		MuxerGrace: time.Second,
	})

	result, err := d.ResolveAndDownload(context.Background(), "item-4", "720p", "mp4")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasSuffix(result.MediaPath, "item-4.mp4") {
		t.Fatalf("unexpected media path: %s", result.MediaPath)
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

// parseRangeStart extracts N from a "bytes=N-" Range header value.
func parseRangeStart(rangeHeader string) int {
	rest := strings.TrimSuffix(strings.TrimPrefix(rangeHeader, "bytes="), "-")
	n := 0
	for _, c := range rest {
		if c < '0' || c > '9' {
			break
		}
		n = n*10 + int(c-'0')
	}
	return n
}

func contentRangeHeader(start, total int) string {
	return "bytes " + itoa(start) + "-" + itoa(total-1) + "/" + itoa(total)
}
