// Package repository provides the ArtifactStore backends: a filesystem
// layout of document-scoped directories and a Postgres schema with
// pgvector chunk embeddings.
package repository

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"docqa/internal/domain"
)

const (
	sourceFile   = "source.bin"
	manifestFile = "manifest.json"
	indexFile    = "index.bin"
)

// FSStore keeps each document's artifacts under root/<docID>/. Manifest and
// index writes go through a temp file and rename, and the manifest rename
// is last, so a crash never leaves a readable half-generation.
type FSStore struct {
	root   string
	logger *slog.Logger
}

func NewFSStore(root string, logger *slog.Logger) (*FSStore, error) {
	if root == "" {
		return nil, fmt.Errorf("storage root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}
	return &FSStore{root: root, logger: logger}, nil
}

func (s *FSStore) docDir(docID string) string {
	return filepath.Join(s.root, docID)
}

func (s *FSStore) SaveSource(_ context.Context, docID string, raw []byte) error {
	dir := s.docDir(docID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create document dir: %w", err)
	}
	if err := writeAtomic(filepath.Join(dir, sourceFile), raw); err != nil {
		return fmt.Errorf("failed to write source: %w", err)
	}
	return nil
}

func (s *FSStore) LoadSource(_ context.Context, docID string) ([]byte, error) {
	raw, err := os.ReadFile(filepath.Join(s.docDir(docID), sourceFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, domain.ErrDocumentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read source: %w", err)
	}
	return raw, nil
}

func (s *FSStore) SaveArtifacts(_ context.Context, manifest *domain.ChunkManifest, index *domain.VectorIndex) error {
	dir := s.docDir(manifest.DocumentID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create document dir: %w", err)
	}

	digest := domain.ChunksDigest(manifest.Chunks)
	manifest.ContentDigest = hex.EncodeToString(digest[:])

	var encoded bytes.Buffer
	if err := domain.EncodeIndexSnapshot(&encoded, index, digest); err != nil {
		return fmt.Errorf("failed to encode index snapshot: %w", err)
	}
	if err := writeAtomic(filepath.Join(dir, indexFile), encoded.Bytes()); err != nil {
		return fmt.Errorf("failed to write index snapshot: %w", err)
	}

	payload, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	// The manifest lands last: its presence marks the generation complete.
	if err := writeAtomic(filepath.Join(dir, manifestFile), payload); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}

	s.logger.Debug("artifacts_saved",
		slog.String("document_id", manifest.DocumentID),
		slog.Int("chunk_count", len(manifest.Chunks)))
	return nil
}

func (s *FSStore) LoadArtifacts(_ context.Context, docID string) (*domain.ChunkManifest, *domain.VectorIndex, error) {
	dir := s.docDir(docID)

	payload, err := os.ReadFile(filepath.Join(dir, manifestFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil, domain.ErrDocumentNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var manifest domain.ChunkManifest
	if err := json.Unmarshal(payload, &manifest); err != nil {
		return nil, nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	encoded, err := os.ReadFile(filepath.Join(dir, indexFile))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read index snapshot: %w", err)
	}
	index, digest, err := domain.DecodeIndexSnapshot(bytes.NewReader(encoded))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode index snapshot: %w", err)
	}

	if err := verifyArtifacts(&manifest, index, digest); err != nil {
		return nil, nil, err
	}
	return &manifest, index, nil
}

func (s *FSStore) Delete(_ context.Context, docID string) error {
	dir := s.docDir(docID)
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		return domain.ErrDocumentNotFound
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to delete document artifacts: %w", err)
	}
	return nil
}

func (s *FSStore) List(_ context.Context) ([]domain.StoredDocument, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("failed to read storage root: %w", err)
	}

	docs := make([]domain.StoredDocument, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(s.root, entry.Name())

		doc := domain.StoredDocument{ID: entry.Name()}
		if info, err := entry.Info(); err == nil {
			doc.StoredAt = info.ModTime()
		}
		for _, name := range []string{sourceFile, manifestFile, indexFile} {
			if info, err := os.Stat(filepath.Join(dir, name)); err == nil {
				doc.SizeBytes += info.Size()
			}
		}
		_, manifestErr := os.Stat(filepath.Join(dir, manifestFile))
		_, indexErr := os.Stat(filepath.Join(dir, indexFile))
		doc.Complete = manifestErr == nil && indexErr == nil

		docs = append(docs, doc)
	}
	return docs, nil
}

// verifyArtifacts cross-checks the digest sealed into the snapshot against
// the manifest's digest and the manifest's actual chunks.
func verifyArtifacts(manifest *domain.ChunkManifest, index *domain.VectorIndex, sealed [32]byte) error {
	if hex.EncodeToString(sealed[:]) != manifest.ContentDigest {
		return fmt.Errorf("index snapshot digest does not match manifest for document %s", manifest.DocumentID)
	}
	actual := domain.ChunksDigest(manifest.Chunks)
	if actual != sealed {
		return fmt.Errorf("stored chunks do not match sealed digest for document %s", manifest.DocumentID)
	}
	if index.Len() != len(manifest.Chunks) {
		return fmt.Errorf("index has %d entries for %d chunks in document %s",
			index.Len(), len(manifest.Chunks), manifest.DocumentID)
	}
	return nil
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

var _ domain.ArtifactStore = (*FSStore)(nil)
