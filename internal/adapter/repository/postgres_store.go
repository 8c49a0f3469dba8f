package repository

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"docqa/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// PostgresStore keeps document artifacts in two tables: qa_documents (raw
// source, manifest fields, index snapshot) and qa_chunks (one row per
// chunk, embedding in a pgvector column). The snapshot remains the search
// index; the relational chunk rows exist for inspection and maintenance.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewPostgresStore(pool *pgxpool.Pool, logger *slog.Logger) *PostgresStore {
	return &PostgresStore{pool: pool, logger: logger}
}

var schemaStatements = []string{
	`CREATE EXTENSION IF NOT EXISTS vector`,
	`CREATE TABLE IF NOT EXISTS qa_documents (
		id             TEXT PRIMARY KEY,
		filename       TEXT NOT NULL DEFAULT '',
		source_hash    TEXT NOT NULL DEFAULT '',
		content_digest TEXT NOT NULL DEFAULT '',
		source         BYTEA NOT NULL DEFAULT ''::bytea,
		index_snapshot BYTEA,
		complete       BOOLEAN NOT NULL DEFAULT FALSE,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
		stored_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS qa_chunks (
		document_id  TEXT NOT NULL REFERENCES qa_documents(id) ON DELETE CASCADE,
		ordinal      INTEGER NOT NULL,
		page         INTEGER NOT NULL,
		start_offset INTEGER NOT NULL,
		end_offset   INTEGER NOT NULL,
		content      TEXT NOT NULL,
		embedding    vector,
		PRIMARY KEY (document_id, ordinal)
	)`,
}

// EnsureSchema creates the tables and the pgvector extension when missing.
// Called once at startup before the store is used.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) SaveSource(ctx context.Context, docID string, raw []byte) error {
	query := `
		INSERT INTO qa_documents (id, source, stored_at)
		VALUES ($1, $2, now())
		ON CONFLICT (id) DO UPDATE SET source = EXCLUDED.source, stored_at = now()
	`
	if _, err := s.pool.Exec(ctx, query, docID, raw); err != nil {
		return fmt.Errorf("failed to save source: %w", err)
	}
	return nil
}

func (s *PostgresStore) LoadSource(ctx context.Context, docID string) ([]byte, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT source FROM qa_documents WHERE id = $1`, docID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrDocumentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load source: %w", err)
	}
	return raw, nil
}

func (s *PostgresStore) SaveArtifacts(ctx context.Context, manifest *domain.ChunkManifest, index *domain.VectorIndex) error {
	digest := domain.ChunksDigest(manifest.Chunks)
	manifest.ContentDigest = hex.EncodeToString(digest[:])

	var encoded bytes.Buffer
	if err := domain.EncodeIndexSnapshot(&encoded, index, digest); err != nil {
		return fmt.Errorf("failed to encode index snapshot: %w", err)
	}

	vectors := make(map[int][]float32, index.Len())
	for _, entry := range index.Entries() {
		vectors[entry.ChunkID] = entry.Vector
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	upsert := `
		INSERT INTO qa_documents (id, filename, source_hash, content_digest, index_snapshot, complete, created_at, stored_at)
		VALUES ($1, $2, $3, $4, $5, TRUE, $6, now())
		ON CONFLICT (id) DO UPDATE SET
			filename = EXCLUDED.filename,
			source_hash = EXCLUDED.source_hash,
			content_digest = EXCLUDED.content_digest,
			index_snapshot = EXCLUDED.index_snapshot,
			complete = TRUE,
			created_at = EXCLUDED.created_at,
			stored_at = now()
	`
	if _, err := tx.Exec(ctx, upsert, manifest.DocumentID, manifest.Filename, manifest.SourceHash,
		manifest.ContentDigest, encoded.Bytes(), manifest.CreatedAt); err != nil {
		return fmt.Errorf("failed to upsert document row: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM qa_chunks WHERE document_id = $1`, manifest.DocumentID); err != nil {
		return fmt.Errorf("failed to clear previous chunks: %w", err)
	}

	rows := make([][]any, len(manifest.Chunks))
	for i, chunk := range manifest.Chunks {
		var embedding any
		if vector, ok := vectors[chunk.Ordinal]; ok {
			embedding = pgvector.NewVector(vector)
		}
		rows[i] = []any{manifest.DocumentID, chunk.Ordinal, chunk.Page, chunk.Start, chunk.End, chunk.Content, embedding}
	}
	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"qa_chunks"},
		[]string{"document_id", "ordinal", "page", "start_offset", "end_offset", "content", "embedding"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("failed to bulk insert chunks: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit artifacts: %w", err)
	}

	s.logger.Debug("artifacts_saved",
		slog.String("document_id", manifest.DocumentID),
		slog.Int("chunk_count", len(manifest.Chunks)))
	return nil
}

func (s *PostgresStore) LoadArtifacts(ctx context.Context, docID string) (*domain.ChunkManifest, *domain.VectorIndex, error) {
	query := `
		SELECT filename, source_hash, content_digest, index_snapshot, complete, created_at
		FROM qa_documents
		WHERE id = $1
	`
	manifest := domain.ChunkManifest{DocumentID: docID}
	var snapshot []byte
	var complete bool
	err := s.pool.QueryRow(ctx, query, docID).Scan(
		&manifest.Filename, &manifest.SourceHash, &manifest.ContentDigest,
		&snapshot, &complete, &manifest.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, domain.ErrDocumentNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load document row: %w", err)
	}
	if !complete || len(snapshot) == 0 {
		return nil, nil, domain.ErrDocumentNotFound
	}

	chunks, err := s.loadChunks(ctx, docID)
	if err != nil {
		return nil, nil, err
	}
	manifest.Chunks = chunks

	index, digest, err := domain.DecodeIndexSnapshot(bytes.NewReader(snapshot))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode index snapshot: %w", err)
	}
	if err := verifyArtifacts(&manifest, index, digest); err != nil {
		return nil, nil, err
	}
	return &manifest, index, nil
}

func (s *PostgresStore) loadChunks(ctx context.Context, docID string) ([]domain.Chunk, error) {
	query := `
		SELECT ordinal, page, start_offset, end_offset, content
		FROM qa_chunks
		WHERE document_id = $1
		ORDER BY ordinal ASC
	`
	rows, err := s.pool.Query(ctx, query, docID)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var chunks []domain.Chunk
	for rows.Next() {
		chunk := domain.Chunk{DocumentID: docID}
		if err := rows.Scan(&chunk.Ordinal, &chunk.Page, &chunk.Start, &chunk.End, &chunk.Content); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		chunks = append(chunks, chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return chunks, nil
}

func (s *PostgresStore) Delete(ctx context.Context, docID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM qa_documents WHERE id = $1`, docID)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]domain.StoredDocument, error) {
	query := `
		SELECT id, stored_at, octet_length(source) + COALESCE(octet_length(index_snapshot), 0), complete
		FROM qa_documents
		ORDER BY stored_at ASC
	`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []domain.StoredDocument
	for rows.Next() {
		var doc domain.StoredDocument
		var storedAt time.Time
		if err := rows.Scan(&doc.ID, &storedAt, &doc.SizeBytes, &doc.Complete); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		doc.StoredAt = storedAt
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return docs, nil
}

var _ domain.ArtifactStore = (*PostgresStore)(nil)
