package persona

import (
	"errors"

	"personigo/storage"
)

// The storage sentinels are re-exported so callers only depend on this
// package; errors.Is works through either name.
var (
	ErrKeyExists        = storage.ErrKeyExists
	ErrRevisionConflict = storage.ErrRevisionConflict
	ErrNotFound         = storage.ErrNotFound

	// ErrForbidden marks a write attempted by an actor without owner
	// capability. Callers must surface it as an explicit refusal, never as
	// a silent no-op or an "I don't understand" reply.
	ErrForbidden = errors.New("actor may not modify this knowledge base")

	// ErrValidationFailed marks a candidate fact rejected locally before it
	// reaches the store (out-of-range confidence, empty value, missing
	// provenance, question instead of a statement).
	ErrValidationFailed = errors.New("candidate fact failed validation")

	ErrExtractionTimeout     = errors.New("extraction timed out")
	ErrExtractionUnavailable = errors.New("extraction service unavailable")
)
