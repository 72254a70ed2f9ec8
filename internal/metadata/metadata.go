// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package metadata implements C4: fetching and normalizing a single
// item's detail record into a model.MetadataRecord, ready for C6 to
// persist.
package metadata

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kaelmedia/vidharvest/internal/model"
	"github.com/kaelmedia/vidharvest/internal/remote"
)

var (
	validateOnce sync.Once
	validateInst *validator.Validate
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validateInst = validator.New(validator.WithRequiredStructEnabled())
	})
	return validateInst
}

// required is the shape validator/v10 checks before a DetailResponse is
// accepted as a candidate record: item_id, title, duration, and an
// owner identifier must all be present, per spec §4.4.
type required struct {
	ItemID     string `validate:"required"`
	Title      string `validate:"required"`
	Duration   int    `validate:"required,min=1"`
	UploaderID string `validate:"required"`
}

// Collector implements the collect(item_id) operation.
type Collector struct {
	client *remote.Client
}

// New constructs a Collector.
func New(client *remote.Client) *Collector {
	return &Collector{client: client}
}

// Collect fetches item_id's detail document through C1 and composes a
// normalized model.MetadataRecord. Calling Collect twice for the same
// item_id is idempotent at this layer; C6 owns overwrite semantics.
func (c *Collector) Collect(ctx context.Context, id model.ItemID) (model.MetadataRecord, error) {
	var resp remote.DetailResponse
	if err := c.client.Request(ctx, "GET", "/video/detail", urlParams(id), nil, &resp); err != nil {
		return model.MetadataRecord{}, err
	}

	req := required{
		ItemID:     string(resp.ItemID),
		Title:      strings.TrimSpace(resp.Title),
		Duration:   resp.Duration,
		UploaderID: resp.UploaderID,
	}
	if err := getValidator().Struct(req); err != nil {
		return model.MetadataRecord{}, fmt.Errorf("metadata: incomplete detail record for %s: %w", id, err)
	}

	publishTime, _ := time.Parse(time.RFC3339, resp.PublishTime)

	pages := make([]model.Page, 0, len(resp.Pages))
	for _, p := range resp.Pages {
		pages = append(pages, model.Page{
			Index:      p.Index,
			InternalID: strings.TrimSpace(p.InternalID),
			Part:       strings.TrimSpace(p.Part),
			Duration:   clampNonNegative(p.Duration),
		})
	}

	tags := make([]string, 0, len(resp.Tags))
	for _, t := range resp.Tags {
		if trimmed := strings.TrimSpace(t); trimmed != "" {
			tags = append(tags, trimmed)
		}
	}

	record := model.MetadataRecord{
		BasicInfo: model.BasicInfo{
			ItemID:      resp.ItemID,
			Title:       strings.TrimSpace(resp.Title),
			Description: strings.TrimSpace(resp.Description),
			Duration:    clampNonNegative(resp.Duration),
			PublishTime: publishTime,
			CoverURL:    strings.TrimSpace(resp.CoverURL),
		},
		Stats: model.Stats{
			PlayCount:     clampNonNegative64(resp.PlayCount),
			LikeCount:     clampNonNegative64(resp.LikeCount),
			CoinCount:     clampNonNegative64(resp.CoinCount),
			FavoriteCount: clampNonNegative64(resp.FavoriteCount),
			ShareCount:    clampNonNegative64(resp.ShareCount),
			CommentCount:  clampNonNegative64(resp.CommentCount),
		},
		Owner: model.Owner{
			UploaderID:   strings.TrimSpace(resp.UploaderID),
			UploaderName: strings.TrimSpace(resp.UploaderName),
		},
		Pages: pages,
		Tags:  tags,
		CrawlInfo: model.CrawlInfo{
			CrawledAt:     time.Now().UTC(),
			SchemaVersion: model.SchemaVersion,
		},
	}
	return record, nil
}

func urlParams(id model.ItemID) url.Values {
	return url.Values{"item_id": {string(id)}}
}

func clampNonNegative(v int) int {
	if v < 0 {
		return 0
	}
	return v
}

func clampNonNegative64(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}
