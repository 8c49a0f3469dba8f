package domain

import "time"

// DocumentStatus tracks a document through its ingestion lifecycle.
// Terminal states are final: a completed or failed document never moves
// again within the same ingestion run.
type DocumentStatus string

const (
	// StatusPending means the document is accepted and queued for processing.
	StatusPending DocumentStatus = "pending"
	// StatusProcessing means an ingestion task currently owns the document.
	StatusProcessing DocumentStatus = "processing"
	// StatusCompleted means the index is built and the document is queryable.
	StatusCompleted DocumentStatus = "completed"
	// StatusFailed means ingestion aborted; ErrorDetail carries the summary.
	StatusFailed DocumentStatus = "failed"
)

// Terminal reports whether the status is an end state of the ingestion run.
func (s DocumentStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Document is the unit of upload: one source file, its processing state and
// the bookkeeping the status endpoint exposes. It is mutated only by the
// ingestion path; readers get copies.
type Document struct {
	ID          string
	Filename    string
	SourceHash  string // hex SHA-256 of the raw source bytes
	Status      DocumentStatus
	Progress    float64 // fraction in [0,1], monotonically non-decreasing while processing
	ChunkCount  int
	ErrorDetail string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
