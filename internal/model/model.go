// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package model defines the typed documents shared across every component
// of the acquisition pipeline: candidates produced by search, persisted
// metadata records, media artifacts, and the dataset index.
package model

import "time"

// ItemID is the remote service's opaque, stable, case-sensitive item
// identifier. It is the primary key across every persisted artifact.
type ItemID string

// SchemaVersion is stamped into every MetadataRecord's CrawlInfo so a
// future reader can tell which shape produced a given file.
const SchemaVersion = 1

// Candidate is an in-memory item discovered by Search. It is never
// persisted; Metadata collection turns an accepted Candidate into a
// MetadataRecord.
type Candidate struct {
	ItemID          ItemID
	Title           string
	DurationSeconds int
	PublishTime     time.Time
	UploaderID      string
	UploaderName    string
	PlayCount       int64
	LikeCount       int64
	CoinCount       int64
	FavoriteCount   int64
	Keyword         string
}

// BasicInfo holds the descriptive fields of a MetadataRecord.
type BasicInfo struct {
	ItemID      ItemID    `json:"item_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Duration    int       `json:"duration_seconds"`
	PublishTime time.Time `json:"publish_time"`
	CoverURL    string    `json:"cover_url,omitempty"`
}

// Stats holds counters collected at crawl time.
type Stats struct {
	PlayCount     int64 `json:"play_count"`
	LikeCount     int64 `json:"like_count"`
	CoinCount     int64 `json:"coin_count"`
	FavoriteCount int64 `json:"favorite_count"`
	ShareCount    int64 `json:"share_count"`
	CommentCount  int64 `json:"comment_count"`
}

// Owner identifies the uploader of an item.
type Owner struct {
	UploaderID   string `json:"uploader_id"`
	UploaderName string `json:"uploader_name"`
}

// Page is one segment of a multi-segment item.
type Page struct {
	Index      int    `json:"index"`
	InternalID string `json:"internal_id"`
	Part       string `json:"part_title,omitempty"`
	Duration   int    `json:"duration_seconds"`
}

// CrawlInfo records provenance of the record.
type CrawlInfo struct {
	CrawledAt     time.Time `json:"crawled_at"`
	SchemaVersion int       `json:"schema_version"`
}

// MetadataRecord is the persisted, per-item descriptive document produced
// by the metadata collector (C4) and owned on disk by the dataset store
// (C6). It is the unit of the three-way invariant together with the
// MediaArtifact and the IndexDocument entry sharing its ItemID.
type MetadataRecord struct {
	BasicInfo BasicInfo `json:"basic_info"`
	Stats     Stats     `json:"stats"`
	Owner     Owner     `json:"owner"`
	Pages     []Page    `json:"pages,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
	CrawlInfo CrawlInfo `json:"crawl_info"`
}

// IndexEntry is the index's projection of a MetadataRecord — enough to
// answer dataset queries without opening every metadata file.
type IndexEntry struct {
	ItemID       ItemID    `json:"item_id"`
	Title        string    `json:"title"`
	Duration     int       `json:"duration_seconds"`
	PublishTime  time.Time `json:"publish_time"`
	UploaderName string    `json:"uploader_name"`
	PlayCount    int64     `json:"play_count"`
	LikeCount    int64     `json:"like_count"`
	Tags         []string  `json:"tags,omitempty"`
	HasMedia     bool      `json:"has_media"`
	MediaExt     string    `json:"media_ext,omitempty"`
}

// IndexStats summarizes the whole dataset.
type IndexStats struct {
	TotalCount    int       `json:"total_count"`
	TotalDuration int64     `json:"total_duration"`
	LastUpdated   time.Time `json:"last_updated"`
}

// IndexDocument is the single process-wide document describing the
// dataset's contents. Bit-exact compatibility with a prior index is not
// required: unknown fields are ignored on read.
type IndexDocument struct {
	Videos map[ItemID]IndexEntry `json:"videos"`
	Stats  IndexStats            `json:"stats"`
}

// NewIndexDocument returns an empty, ready-to-use index document.
func NewIndexDocument() *IndexDocument {
	return &IndexDocument{Videos: make(map[ItemID]IndexEntry)}
}

// IndexEntryFromRecord projects a MetadataRecord into its IndexEntry,
// preserving whatever media-attachment state the caller already knows.
func IndexEntryFromRecord(r MetadataRecord, hasMedia bool, mediaExt string) IndexEntry {
	return IndexEntry{
		ItemID:       r.BasicInfo.ItemID,
		Title:        r.BasicInfo.Title,
		Duration:     r.BasicInfo.Duration,
		PublishTime:  r.BasicInfo.PublishTime,
		UploaderName: r.Owner.UploaderName,
		PlayCount:    r.Stats.PlayCount,
		LikeCount:    r.Stats.LikeCount,
		Tags:         r.Tags,
		HasMedia:     hasMedia,
		MediaExt:     mediaExt,
	}
}

// Recompute recalculates stats.total_count and stats.total_duration from
// the current video map, and stamps last_updated. The dataset store calls
// this immediately before every index write (invariant #3 in §3).
func (d *IndexDocument) Recompute(now time.Time) {
	d.Stats.TotalCount = len(d.Videos)
	var total int64
	for _, e := range d.Videos {
		total += int64(e.Duration)
	}
	d.Stats.TotalDuration = total
	d.Stats.LastUpdated = now
}
