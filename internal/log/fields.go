// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRunID  = "run_id"
	FieldItemID = "item_id"
	FieldKeyword = "keyword"

	// Process / pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldStage     = "stage"
	FieldAttempt   = "attempt"

	// Dataset fields
	FieldMetadataPath = "metadata_path"
	FieldMediaPath    = "media_path"
	FieldIndexPath    = "index_path"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"

	// Remote fields
	FieldURL        = "url"
	FieldStatusCode = "status_code"
	FieldErrorKind  = "error_kind"
)
