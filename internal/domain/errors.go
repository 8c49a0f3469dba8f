package domain

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for caller misuse and premature queries. These propagate
// to the caller unchanged and are never retried.
var (
	// ErrEmptyIndex is returned when an index build receives no entries.
	ErrEmptyIndex = errors.New("vector index has no entries")
	// ErrNotBuilt is returned when an index is searched before it is built.
	ErrNotBuilt = errors.New("vector index is not built")
	// ErrDocumentNotFound is returned when no document exists for an identifier.
	ErrDocumentNotFound = errors.New("document not found")
	// ErrDocumentNotReady is returned when a question arrives before the
	// document's status is completed.
	ErrDocumentNotReady = errors.New("document is not ready")
	// ErrIngestionInFlight is returned when a second ingestion is requested
	// for a document whose current run has not finished.
	ErrIngestionInFlight = errors.New("ingestion already in flight")
	// ErrNoRelevantContent signals that no candidate cleared the similarity
	// floor. The ask path converts it into a low-confidence answer rather
	// than surfacing it to the caller.
	ErrNoRelevantContent = errors.New("no relevant content above similarity floor")
	// ErrDimensionMismatch is returned when a vector does not match the
	// index dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// ExtractionError marks a source that could not be turned into pages.
// It is fatal to the ingestion that hit it; the document moves to failed.
type ExtractionError struct {
	Reason string
	Err    error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extraction failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("extraction failed: %s", e.Reason)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// EmbeddingError marks an embedding backend that stayed unavailable after
// the adapter's bounded retries.
type EmbeddingError struct {
	Attempts int
	Err      error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

// GenerationTimeoutError marks an answer-generation call that exceeded its
// deadline. The ask path retries once, then degrades to a low-confidence
// answer instead of failing.
type GenerationTimeoutError struct {
	Timeout time.Duration
	Err     error
}

func (e *GenerationTimeoutError) Error() string {
	return fmt.Sprintf("generation timed out after %s: %v", e.Timeout, e.Err)
}

func (e *GenerationTimeoutError) Unwrap() error { return e.Err }

// IsGenerationTimeout reports whether err is a generation deadline failure,
// either classified by the adapter or raw context.DeadlineExceeded.
func IsGenerationTimeout(err error) bool {
	var te *GenerationTimeoutError
	return errors.As(err, &te) || errors.Is(err, context.DeadlineExceeded)
}
