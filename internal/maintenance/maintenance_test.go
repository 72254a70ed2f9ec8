// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package maintenance

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/kaelmedia/vidharvest/internal/dataset"
	"github.com/kaelmedia/vidharvest/internal/model"
)

func newTestEngine(t *testing.T) (*Engine, *dataset.Store, string, string) {
	t.Helper()
	dir := t.TempDir()
	metaDir := filepath.Join(dir, "metadata")
	mediaDir := filepath.Join(dir, "media")
	if err := os.MkdirAll(metaDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(mediaDir, 0o755); err != nil {
		t.Fatal(err)
	}
	store, err := dataset.Open(dataset.Config{
		MetadataDir:       metaDir,
		MediaDir:          mediaDir,
		IndexPath:         filepath.Join(dir, "index.json"),
		UpdateIndexOnSave: true,
	})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return New(store, nil), store, metaDir, mediaDir
}

func putRecord(t *testing.T, store *dataset.Store, id model.ItemID, duration int) {
	t.Helper()
	_, err := store.PutMetadata(model.MetadataRecord{
		BasicInfo: model.BasicInfo{ItemID: id, Title: "t", Duration: duration},
		Owner:     model.Owner{UploaderID: "u", UploaderName: "n"},
	})
	if err != nil {
		t.Fatalf("put metadata: %v", err)
	}
}

func writeMetadataFileDirectly(t *testing.T, metaDir string, id model.ItemID, duration int) {
	t.Helper()
	record := model.MetadataRecord{
		BasicInfo: model.BasicInfo{ItemID: id, Title: "t", Duration: duration},
		Owner:     model.Owner{UploaderID: "u", UploaderName: "n"},
	}
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		t.Fatalf("marshal record: %v", err)
	}
	if err := os.WriteFile(filepath.Join(metaDir, string(id)+".json"), data, 0o644); err != nil {
		t.Fatalf("write metadata file: %v", err)
	}
}

func writeMediaFile(t *testing.T, mediaDir string, id model.ItemID, ext string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(mediaDir, string(id)+"."+ext), []byte("media"), 0o644); err != nil {
		t.Fatalf("write media file: %v", err)
	}
}

func TestFilterByDurationDryRunDoesNotRemove(t *testing.T) {
	e, store, _, mediaDir := newTestEngine(t)
	putRecord(t, store, "long", 9000)
	writeMediaFile(t, mediaDir, "long", "mp4")
	if err := store.AttachMedia("long", "mp4"); err != nil {
		t.Fatalf("attach media: %v", err)
	}

	report, err := e.FilterByDuration(context.Background(), 3600, true)
	if err != nil {
		t.Fatalf("filter by duration: %v", err)
	}
	if len(report.Removed) != 1 || report.Removed[0] != "long" {
		t.Fatalf("expected long planned for removal, got %v", report.Removed)
	}
	if _, found, _ := store.Get("long"); !found {
		t.Fatal("dry run must not remove the record")
	}
}

func TestFilterByDurationExecutesWhenNotDryRun(t *testing.T) {
	e, store, _, mediaDir := newTestEngine(t)
	putRecord(t, store, "long", 9000)
	writeMediaFile(t, mediaDir, "long", "mp4")
	if err := store.AttachMedia("long", "mp4"); err != nil {
		t.Fatalf("attach media: %v", err)
	}
	putRecord(t, store, "short", 60)

	report, err := e.FilterByDuration(context.Background(), 3600, false)
	if err != nil {
		t.Fatalf("filter by duration: %v", err)
	}
	if len(report.Removed) != 1 || report.Removed[0] != "long" {
		t.Fatalf("unexpected removed set: %v", report.Removed)
	}
	if _, found, _ := store.Get("long"); found {
		t.Fatal("expected long to be removed")
	}
	if _, found, _ := store.Get("short"); !found {
		t.Fatal("expected short to remain")
	}
}

func TestAnalyzeDetectsAllFourOrphanCategories(t *testing.T) {
	e, store, metaDir, mediaDir := newTestEngine(t)

	// metadata-only: has metadata file, no media
	putRecord(t, store, "meta-only", 60)

	// media-only: media file with no metadata
	writeMediaFile(t, mediaDir, "media-only", "mp4")

	// complete pair, correctly indexed
	putRecord(t, store, "complete", 60)
	writeMediaFile(t, mediaDir, "complete", "mp4")
	if err := store.AttachMedia("complete", "mp4"); err != nil {
		t.Fatalf("attach media: %v", err)
	}

	// missing-from-index: both files exist on disk but the index was
	// never updated for this id — write the metadata file directly,
	// bypassing the store's index-maintaining API entirely.
	writeMetadataFileDirectly(t, metaDir, "unindexed", 60)
	writeMediaFile(t, mediaDir, "unindexed", "mp4")

	report, err := e.Analyze()
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	assertContains(t, report.MetadataOnly, "meta-only")
	assertContains(t, report.MediaOnly, "media-only")
	assertContains(t, report.MissingFromIndex, "unindexed")
}

func TestSyncIndexAddsAndDropsEntries(t *testing.T) {
	e, store, metaDir, mediaDir := newTestEngine(t)

	putRecord(t, store, "complete", 60)
	writeMediaFile(t, mediaDir, "complete", "mp4")
	if err := store.AttachMedia("complete", "mp4"); err != nil {
		t.Fatalf("attach media: %v", err)
	}

	putRecord(t, store, "orphaned-in-index", 60)
	writeMediaFile(t, mediaDir, "orphaned-in-index", "mp4")
	if err := store.AttachMedia("orphaned-in-index", "mp4"); err != nil {
		t.Fatalf("attach media: %v", err)
	}
	// Remove only the media file on disk directly, leaving a stale index entry.
	if err := os.Remove(filepath.Join(mediaDir, "orphaned-in-index.mp4")); err != nil {
		t.Fatalf("remove media file: %v", err)
	}

	writeMetadataFileDirectly(t, metaDir, "unindexed", 60)
	writeMediaFile(t, mediaDir, "unindexed", "mp4")

	report, err := e.SyncIndex(false)
	if err != nil {
		t.Fatalf("sync index: %v", err)
	}
	assertContains(t, report.Dropped, "orphaned-in-index")
	assertContains(t, report.Added, "unindexed")

	snap := store.SnapshotIndex()
	if _, ok := snap.Videos["orphaned-in-index"]; ok {
		t.Fatal("expected orphaned-in-index dropped from index")
	}
	if _, ok := snap.Videos["unindexed"]; !ok {
		t.Fatal("expected unindexed added to index")
	}
}

func assertContains(t *testing.T, ids []model.ItemID, want model.ItemID) {
	t.Helper()
	for _, id := range ids {
		if id == want {
			return
		}
	}
	t.Fatalf("expected %s in %v", want, ids)
}
