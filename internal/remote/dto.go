// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package remote

import "github.com/kaelmedia/vidharvest/internal/model"

// The wire shapes below are the boundary between the remote service's own
// JSON and the core's typed model. Exact field names are adapter-level;
// these are the shapes §6 requires a real adapter to produce.

// SessionToken is the wire shape of an opaque credential document. C2
// persists its own session.Credential type, not this one.
type SessionToken struct {
	Fields map[string]string `json:"fields"`
}

// Identity is returned by a successful verify probe.
type Identity struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
}

// SearchResultItem is one row of a search response page.
type SearchResultItem struct {
	ItemID       model.ItemID `json:"item_id"`
	Title        string       `json:"title"`
	Duration     int          `json:"duration_seconds"`
	PublishTime  string       `json:"publish_time"` // RFC3339
	UploaderID   string       `json:"uploader_id"`
	UploaderName string       `json:"uploader_name"`
	PlayCount    int64        `json:"play_count"`
	LikeCount    int64        `json:"like_count"`
	CoinCount    int64        `json:"coin_count"`
	FavoriteCount int64       `json:"favorite_count"`
}

// SearchPage is one page of search results.
type SearchPage struct {
	Items   []SearchResultItem `json:"items"`
	HasMore bool                `json:"has_more"`
}

// DetailResponse is the per-item detail document.
type DetailResponse struct {
	ItemID       model.ItemID  `json:"item_id"`
	Title        string        `json:"title"`
	Description  string        `json:"description"`
	Duration     int           `json:"duration_seconds"`
	PublishTime  string        `json:"publish_time"`
	CoverURL     string        `json:"cover_url"`
	UploaderID   string        `json:"uploader_id"`
	UploaderName string        `json:"uploader_name"`
	PlayCount    int64         `json:"play_count"`
	LikeCount    int64         `json:"like_count"`
	CoinCount    int64         `json:"coin_count"`
	FavoriteCount int64        `json:"favorite_count"`
	ShareCount   int64         `json:"share_count"`
	CommentCount int64         `json:"comment_count"`
	Tags         []string      `json:"tags"`
	Pages        []DetailPage  `json:"pages"`
}

// DetailPage is one multi-segment page of an item's detail document.
type DetailPage struct {
	Index      int    `json:"index"`
	InternalID string `json:"internal_id"`
	Part       string `json:"part_title"`
	Duration   int    `json:"duration_seconds"`
}

// StreamResponse is the per-quality stream resolution response.
type StreamResponse struct {
	VideoURL   string `json:"video_url"`
	AudioURL   string `json:"audio_url"`
	ByteLength int64  `json:"byte_length,omitempty"`
	Quality    string `json:"quality"`
}

// AvailableStreamsResponse lists every quality tier the remote service
// currently offers for an item, as consulted by the stream downloader's
// quality-selection step (spec §4.5).
type AvailableStreamsResponse struct {
	Streams []StreamResponse `json:"streams"`
}
