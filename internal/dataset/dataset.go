// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package dataset implements C6: the single owner of every persisted
// artifact (metadata files, media files, and the index document). Every
// mutation is a commit — touch the artifact first, then the in-memory
// index, then atomically persist the index — so a crash between steps
// always leaves the filesystem in a state Maintenance can reconcile.
package dataset

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/renameio/v2"

	"github.com/kaelmedia/vidharvest/internal/log"
	"github.com/kaelmedia/vidharvest/internal/metrics"
	"github.com/kaelmedia/vidharvest/internal/model"
	"github.com/kaelmedia/vidharvest/internal/platform/fs"
)

// CommitResult reports whether put_metadata created a new record or
// overwrote an existing one.
type CommitResult int

const (
	Created CommitResult = iota
	Updated
)

func (r CommitResult) String() string {
	if r == Created {
		return "created"
	}
	return "updated"
}

// RemovalReport lists what Remove actually deleted versus what was
// already missing for each requested ItemID.
type RemovalReport struct {
	Removed []model.ItemID
	Missing map[model.ItemID][]string // ItemID -> list of artifacts not found
}

// Config configures a Store.
type Config struct {
	MetadataDir       string
	MediaDir          string
	IndexPath         string
	UpdateIndexOnSave bool
}

// Store owns every read and write of persisted artifacts. No other
// component is permitted to touch metadataDir, mediaDir, or indexPath
// directly (spec §3 ownership rule).
type Store struct {
	metadataDir       string
	mediaDir          string
	indexPath         string
	updateIndexOnSave bool

	mu    sync.RWMutex
	index *model.IndexDocument
}

// Open constructs a Store and loads its index document, if one exists.
func Open(cfg Config) (*Store, error) {
	s := &Store{
		metadataDir:       cfg.MetadataDir,
		mediaDir:          cfg.MediaDir,
		indexPath:         cfg.IndexPath,
		updateIndexOnSave: cfg.UpdateIndexOnSave,
	}
	idx, err := loadIndexFile(cfg.IndexPath)
	if err != nil {
		return nil, err
	}
	s.index = idx
	return s, nil
}

func loadIndexFile(path string) (*model.IndexDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return model.NewIndexDocument(), nil
		}
		return nil, fmt.Errorf("dataset: read index: %w", err)
	}
	var doc model.IndexDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("dataset: decode index: %w", err)
	}
	if doc.Videos == nil {
		doc.Videos = make(map[model.ItemID]model.IndexEntry)
	}
	return &doc, nil
}

// metadataPath confines and returns the path to an item's metadata file.
func (s *Store) metadataPath(id model.ItemID) (string, error) {
	return fs.ConfineRelPath(s.metadataDir, string(id)+".json")
}

// mediaPath confines and returns the path to an item's media file.
func (s *Store) mediaPath(id model.ItemID, ext string) (string, error) {
	return fs.ConfineRelPath(s.mediaDir, string(id)+"."+ext)
}

// PutMetadata writes the record's metadata file atomically, then — if
// update_index_on_save is set — updates its index entry and persists the
// index as part of the same commit (spec §4.6).
func (s *Store) PutMetadata(record model.MetadataRecord) (CommitResult, error) {
	id := record.BasicInfo.ItemID
	path, err := s.metadataPath(id)
	if err != nil {
		return 0, fmt.Errorf("dataset: metadata path: %w", err)
	}

	result := Created
	if _, statErr := os.Stat(path); statErr == nil {
		result = Updated
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("dataset: encode metadata: %w", err)
	}
	if err := writeAtomic(path, data); err != nil {
		return 0, fmt.Errorf("dataset: write metadata: %w", err)
	}

	if !s.updateIndexOnSave {
		metrics.IncCommit("put_metadata", result.String())
		return result, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	working := cloneIndex(s.index)
	existing := working.Videos[id]
	entry := model.IndexEntryFromRecord(record, existing.HasMedia, existing.MediaExt)
	working.Videos[id] = entry
	if err := s.persistDocLocked(&working); err != nil {
		return 0, fmt.Errorf("%w: %v", model.ErrCommitFailed, err)
	}
	metrics.IncCommit("put_metadata", result.String())
	return result, nil
}

// AttachMedia records the existence of <media_dir>/<item_id>.<ext> in the
// index entry for id. It fails with ErrMetadataMissing if no metadata
// file exists for id.
func (s *Store) AttachMedia(id model.ItemID, ext string) error {
	metaPath, err := s.metadataPath(id)
	if err != nil {
		return fmt.Errorf("dataset: metadata path: %w", err)
	}
	if _, err := os.Stat(metaPath); err != nil {
		if os.IsNotExist(err) {
			return model.ErrMetadataMissing
		}
		return fmt.Errorf("dataset: stat metadata: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	working := cloneIndex(s.index)
	entry, ok := working.Videos[id]
	if !ok {
		record, readErr := s.readMetadataFile(metaPath)
		if readErr != nil {
			return fmt.Errorf("dataset: read metadata for index entry: %w", readErr)
		}
		entry = model.IndexEntryFromRecord(*record, false, "")
	}
	entry.HasMedia = true
	entry.MediaExt = ext
	working.Videos[id] = entry

	if err := s.persistDocLocked(&working); err != nil {
		return fmt.Errorf("%w: %v", model.ErrCommitFailed, err)
	}
	metrics.IncCommit("attach_media", "updated")
	return nil
}

// Get reads the metadata record for id, if one exists.
func (s *Store) Get(id model.ItemID) (*model.MetadataRecord, bool, error) {
	path, err := s.metadataPath(id)
	if err != nil {
		return nil, false, fmt.Errorf("dataset: metadata path: %w", err)
	}
	record, err := s.readMetadataFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return record, true, nil
}

func (s *Store) readMetadataFile(path string) (*model.MetadataRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var record model.MetadataRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("dataset: decode metadata %s: %w", path, err)
	}
	return &record, nil
}

// HasMedia reports whether a media file is recorded for id, consulting
// the in-memory index.
func (s *Store) HasMedia(id model.ItemID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.index.Videos[id]
	return ok && entry.HasMedia
}

// Remove deletes the metadata file, media file, and index entry for each
// requested id. Missing artifacts are reported but do not fail the call.
func (s *Store) Remove(ids []model.ItemID) RemovalReport {
	report := RemovalReport{Missing: make(map[model.ItemID][]string)}

	s.mu.Lock()
	defer s.mu.Unlock()

	working := cloneIndex(s.index)
	changed := false
	for _, id := range ids {
		var missing []string

		entry, ok := working.Videos[id]
		if ok && entry.MediaExt != "" {
			if mediaPath, err := s.mediaPath(id, entry.MediaExt); err == nil {
				if rmErr := os.Remove(mediaPath); rmErr != nil && os.IsNotExist(rmErr) {
					missing = append(missing, "media")
				}
			}
		} else {
			missing = append(missing, "media")
		}

		if metaPath, err := s.metadataPath(id); err == nil {
			if rmErr := os.Remove(metaPath); rmErr != nil && os.IsNotExist(rmErr) {
				missing = append(missing, "metadata")
			}
		}

		if ok {
			delete(working.Videos, id)
			changed = true
		} else {
			missing = append(missing, "index")
		}

		report.Removed = append(report.Removed, id)
		if len(missing) > 0 {
			report.Missing[id] = missing
		}
	}

	if changed {
		if err := s.persistDocLocked(&working); err != nil {
			log.L().Error().Err(err).Msg("dataset: remove failed to persist index, rolled back")
		}
	}
	metrics.IncCommit("remove", "completed")
	return report
}

// SnapshotIndex returns a deep copy of the current index document.
func (s *Store) SnapshotIndex() model.IndexDocument {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneIndex(s.index)
}

// LoadIndex re-reads the index document from disk, bypassing the
// in-memory copy. Used by Maintenance, which operates on the store
// directly in offline mode.
func (s *Store) LoadIndex() (*model.IndexDocument, error) {
	return loadIndexFile(s.indexPath)
}

// ReplaceIndex atomically overwrites the in-memory and on-disk index
// with doc, recomputing stats first. Used by Maintenance operations
// (sync_index, clean) that rebuild the index wholesale.
func (s *Store) ReplaceIndex(doc *model.IndexDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistDocLocked(doc)
}

// MetadataDir reports the directory Maintenance should enumerate for
// metadata-file discovery.
func (s *Store) MetadataDir() string { return s.metadataDir }

// MediaDir reports the directory Maintenance should enumerate for
// media-file discovery.
func (s *Store) MediaDir() string { return s.mediaDir }

// persistDocLocked recomputes stats on doc, writes it atomically to disk,
// and — only once the write succeeds — swaps it in as the in-memory
// index. Callers must hold s.mu for writing. On failure s.index is left
// untouched, satisfying the rollback-to-prior-snapshot requirement of
// spec §4.6 without needing to undo a partial mutation.
func (s *Store) persistDocLocked(doc *model.IndexDocument) error {
	doc.Recompute(time.Now())
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode index: %w", err)
	}
	if err := writeAtomic(s.indexPath, data); err != nil {
		return err
	}
	s.index = doc
	return nil
}

func writeAtomic(path string, data []byte) error {
	pending, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o644))
	if err != nil {
		return fmt.Errorf("create pending file: %w", err)
	}
	defer func() { _ = pending.Cleanup() }()

	if _, err := pending.Write(data); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func cloneIndex(src *model.IndexDocument) model.IndexDocument {
	out := model.IndexDocument{
		Videos: make(map[model.ItemID]model.IndexEntry, len(src.Videos)),
		Stats:  src.Stats,
	}
	for k, v := range src.Videos {
		out.Videos[k] = v
	}
	return out
}
