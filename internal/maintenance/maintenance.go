// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package maintenance implements C7: offline reconciliation of the
// dataset — duration-based pruning, orphan detection, and rebuilding the
// index from what is actually on disk.
package maintenance

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kaelmedia/vidharvest/internal/dataset"
	"github.com/kaelmedia/vidharvest/internal/log"
	"github.com/kaelmedia/vidharvest/internal/model"
)

// Engine operates directly on a dataset.Store in offline mode.
type Engine struct {
	store  *dataset.Store
	prober DurationProber
}

// New constructs a maintenance Engine bound to store. prober may be nil;
// items whose duration cannot otherwise be determined are then listed
// but never removed.
func New(store *dataset.Store, prober DurationProber) *Engine {
	return &Engine{store: store, prober: prober}
}

// FilterReport is the outcome of FilterByDuration.
type FilterReport struct {
	Removed      []model.ItemID
	Undetermined []model.ItemID
	DryRun       bool
}

// FilterByDuration enumerates every metadata record; for each whose
// duration exceeds maxSeconds it plans removal of (metadata, media,
// index entry). Execution only happens when dryRun is false. Duration
// source preference: the metadata record's own duration field first,
// then an external media-probe tool over the media file.
func (e *Engine) FilterByDuration(ctx context.Context, maxSeconds int, dryRun bool) (FilterReport, error) {
	report := FilterReport{DryRun: dryRun}

	entries, err := e.listMetadataIDs()
	if err != nil {
		return report, err
	}

	var toRemove []model.ItemID
	for _, id := range entries {
		record, found, err := e.store.Get(id)
		if err != nil || !found {
			continue
		}

		duration := record.BasicInfo.Duration
		if duration <= 0 && e.prober != nil && e.store.HasMedia(id) {
			if mediaPath, ok := e.findMediaPath(id); ok {
				if probed, probeErr := e.prober.ProbeDuration(ctx, mediaPath); probeErr == nil {
					duration = probed
				}
			}
		}

		if duration <= 0 {
			report.Undetermined = append(report.Undetermined, id)
			continue
		}
		if duration > maxSeconds {
			toRemove = append(toRemove, id)
		}
	}

	report.Removed = toRemove
	if dryRun || len(toRemove) == 0 {
		return report, nil
	}

	e.store.Remove(toRemove)
	return report, nil
}

// MatchReport is the outcome of Analyze.
type MatchReport struct {
	MetadataOnly     []model.ItemID
	MediaOnly        []model.ItemID
	IndexOnly        []model.ItemID
	MissingFromIndex []model.ItemID
}

// Analyze computes the four orphan categories of spec §4.7 by comparing
// the metadata directory, the media directory, and the index document.
func (e *Engine) Analyze() (MatchReport, error) {
	metaIDs, err := e.listMetadataIDs()
	if err != nil {
		return MatchReport{}, err
	}
	mediaIDs, err := e.listMediaIDs()
	if err != nil {
		return MatchReport{}, err
	}
	idx := e.store.SnapshotIndex()

	metaSet := toSet(metaIDs)
	mediaSet := make(map[model.ItemID]struct{}, len(mediaIDs))
	for id := range mediaIDs {
		mediaSet[id] = struct{}{}
	}

	var report MatchReport
	for id := range metaSet {
		_, hasMedia := mediaSet[id]
		if !hasMedia {
			report.MetadataOnly = append(report.MetadataOnly, id)
		}
	}
	for id := range mediaSet {
		if _, hasMeta := metaSet[id]; !hasMeta {
			report.MediaOnly = append(report.MediaOnly, id)
		}
	}
	for id := range idx.Videos {
		_, hasMeta := metaSet[id]
		_, hasMedia := mediaSet[id]
		if !hasMeta && !hasMedia {
			report.IndexOnly = append(report.IndexOnly, id)
		}
	}
	for id := range metaSet {
		if _, hasMedia := mediaSet[id]; !hasMedia {
			continue
		}
		if _, inIndex := idx.Videos[id]; !inIndex {
			report.MissingFromIndex = append(report.MissingFromIndex, id)
		}
	}
	return report, nil
}

// CleanOptions selects which orphan categories Clean acts on.
type CleanOptions struct {
	CleanMediaOrphans    bool
	CleanMetadataOrphans bool
	UpdateIndex          bool
	DryRun               bool
}

// CleanReport is the outcome of Clean.
type CleanReport struct {
	RemovedMediaOnly    []model.ItemID
	RemovedMetadataOnly []model.ItemID
	DroppedIndexOnly    []model.ItemID
	DryRun              bool
}

// Clean removes the orphan categories selected by opts. Ordering inside
// each removal follows spec §4.7: delete media file, then metadata file,
// then index entry, then persist the index — the same order
// dataset.Store.Remove already implements.
func (e *Engine) Clean(opts CleanOptions) (CleanReport, error) {
	report := CleanReport{DryRun: opts.DryRun}
	analysis, err := e.Analyze()
	if err != nil {
		return report, err
	}

	if opts.CleanMediaOrphans {
		report.RemovedMediaOnly = analysis.MediaOnly
		if !opts.DryRun {
			e.removeOrphanMediaFiles(analysis.MediaOnly)
		}
	}
	if opts.CleanMetadataOrphans {
		report.RemovedMetadataOnly = analysis.MetadataOnly
		if !opts.DryRun {
			e.store.Remove(analysis.MetadataOnly)
		}
	}
	if opts.UpdateIndex {
		report.DroppedIndexOnly = analysis.IndexOnly
		if !opts.DryRun && len(analysis.IndexOnly) > 0 {
			idx := e.store.SnapshotIndex()
			for _, id := range analysis.IndexOnly {
				delete(idx.Videos, id)
			}
			if err := e.store.ReplaceIndex(&idx); err != nil {
				return report, err
			}
		}
	}
	return report, nil
}

// removeOrphanMediaFiles deletes media files that have no metadata
// counterpart, bypassing dataset.Store.Remove (which requires an index
// entry) since these by definition are not indexed consistently.
func (e *Engine) removeOrphanMediaFiles(ids []model.ItemID) {
	entries, err := os.ReadDir(e.store.MediaDir())
	if err != nil {
		log.L().Warn().Err(err).Msg("maintenance: list media dir for orphan cleanup")
		return
	}
	wanted := toSet(ids)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		id := idFromFilename(entry.Name())
		if _, ok := wanted[id]; ok {
			_ = os.Remove(filepath.Join(e.store.MediaDir(), entry.Name()))
		}
	}
}

// SyncReport is the outcome of SyncIndex.
type SyncReport struct {
	Dropped []model.ItemID
	Added   []model.ItemID
	DryRun  bool
}

// SyncIndex removes any index entry that does not have both artifacts
// (metadata file and media file) on disk, adds entries
// for ItemIDs that have both but no index entry (derived from the
// metadata file), and recomputes stats.
func (e *Engine) SyncIndex(dryRun bool) (SyncReport, error) {
	report := SyncReport{DryRun: dryRun}

	metaIDs, err := e.listMetadataIDs()
	if err != nil {
		return report, err
	}
	mediaIDsByID, err := e.listMediaIDs()
	if err != nil {
		return report, err
	}
	metaSet := toSet(metaIDs)

	idx := e.store.SnapshotIndex()
	for id := range idx.Videos {
		_, hasMeta := metaSet[id]
		_, hasMedia := mediaIDsByID[id]
		if !hasMeta || !hasMedia {
			report.Dropped = append(report.Dropped, id)
		}
	}
	for id := range metaSet {
		if _, hasMedia := mediaIDsByID[id]; !hasMedia {
			continue
		}
		if _, inIndex := idx.Videos[id]; inIndex {
			continue
		}
		report.Added = append(report.Added, id)
	}

	if dryRun {
		return report, nil
	}

	for _, id := range report.Dropped {
		delete(idx.Videos, id)
	}
	for _, id := range report.Added {
		record, found, err := e.store.Get(id)
		if err != nil || !found {
			continue
		}
		ext := mediaIDsByID[id]
		idx.Videos[id] = model.IndexEntryFromRecord(*record, true, ext)
	}
	idx.Recompute(time.Now())
	return report, e.store.ReplaceIndex(&idx)
}

func (e *Engine) listMetadataIDs() ([]model.ItemID, error) {
	entries, err := os.ReadDir(e.store.MetadataDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var ids []model.ItemID
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		ids = append(ids, idFromFilename(entry.Name()))
	}
	return ids, nil
}

// listMediaIDs returns every ItemID with a media file present, mapped to
// its file extension.
func (e *Engine) listMediaIDs() (map[model.ItemID]string, error) {
	entries, err := os.ReadDir(e.store.MediaDir())
	if err != nil {
		if os.IsNotExist(err) {
			return map[model.ItemID]string{}, nil
		}
		return nil, err
	}
	out := make(map[model.ItemID]string)
	for _, entry := range entries {
		if entry.IsDir() || strings.HasSuffix(entry.Name(), ".part") {
			continue
		}
		name := entry.Name()
		ext := strings.TrimPrefix(filepath.Ext(name), ".")
		id := idFromFilename(name)
		out[id] = ext
	}
	return out, nil
}

func (e *Engine) findMediaPath(id model.ItemID) (string, bool) {
	entries, err := os.ReadDir(e.store.MediaDir())
	if err != nil {
		return "", false
	}
	prefix := string(id) + "."
	for _, entry := range entries {
		if entry.IsDir() || strings.HasSuffix(entry.Name(), ".part") {
			continue
		}
		if strings.HasPrefix(entry.Name(), prefix) {
			return filepath.Join(e.store.MediaDir(), entry.Name()), true
		}
	}
	return "", false
}

func idFromFilename(name string) model.ItemID {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	return model.ItemID(base)
}

func toSet(ids []model.ItemID) map[model.ItemID]struct{} {
	out := make(map[model.ItemID]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out
}
