package domain

import (
	"context"
	"time"
)

// ChunkManifest is the durable chunk metadata of one completed ingestion
// generation. ContentDigest is the hex form of ChunksDigest over Chunks;
// stores seal the same digest into the index snapshot and verify the pair
// on load.
type ChunkManifest struct {
	DocumentID    string    `json:"document_id"`
	Filename      string    `json:"filename"`
	SourceHash    string    `json:"source_hash"`
	ContentDigest string    `json:"content_digest"`
	CreatedAt     time.Time `json:"created_at"`
	Chunks        []Chunk   `json:"chunks"`
}

// StoredDocument is a storage-side listing entry used by maintenance.
type StoredDocument struct {
	ID        string
	StoredAt  time.Time
	SizeBytes int64
	// Complete is true when the full artifact pair (manifest + index) is
	// present. A source-only entry belongs to a pending, failed or
	// abandoned ingestion.
	Complete bool
}

// ArtifactStore persists a document's durable artifacts under a
// document-scoped key: raw source, chunk manifest and serialized vector
// index. The manifest and index are written as one generation; readers
// never observe a half-replaced pair.
type ArtifactStore interface {
	// SaveSource stores the raw uploaded bytes.
	SaveSource(ctx context.Context, docID string, raw []byte) error
	// LoadSource returns the raw bytes, or ErrDocumentNotFound.
	LoadSource(ctx context.Context, docID string) ([]byte, error)
	// SaveArtifacts persists the manifest and the built index together,
	// replacing any previous generation, and seals the chunk digest into
	// both.
	SaveArtifacts(ctx context.Context, manifest *ChunkManifest, index *VectorIndex) error
	// LoadArtifacts loads and cross-verifies the manifest/index pair.
	// ErrDocumentNotFound when the document has no completed artifacts;
	// any other error means the stored pair is unusable.
	LoadArtifacts(ctx context.Context, docID string) (*ChunkManifest, *VectorIndex, error)
	// Delete removes every artifact stored under the id, returning
	// ErrDocumentNotFound when there were none.
	Delete(ctx context.Context, docID string) error
	// List enumerates stored documents for maintenance.
	List(ctx context.Context) ([]StoredDocument, error)
}
