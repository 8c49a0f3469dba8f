package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"docqa/internal/domain"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Progress checkpoints reported while a document moves through the pipeline.
// Embedding interpolates between segmented and embedded as batches land.
const (
	progressExtracted = 0.2
	progressSegmented = 0.35
	progressEmbedded  = 0.85
	progressIndexed   = 0.92
)

// IngestDocumentInput carries one uploaded document.
type IngestDocumentInput struct {
	Filename string
	Content  []byte
}

// IngestDocumentOutput returns the identifier the caller polls for status.
type IngestDocumentOutput struct {
	DocumentID string
}

// IngestDocumentUsecase accepts uploads and runs the ingestion pipeline.
// Execute returns as soon as the document is queued; Process is invoked by
// an ingestion worker that claimed the document.
type IngestDocumentUsecase interface {
	Execute(ctx context.Context, input IngestDocumentInput) (*IngestDocumentOutput, error)
	Process(ctx context.Context, docID string) error
	Reprocess(ctx context.Context, docID string) error
}

type ingestDocumentUsecase struct {
	registry  *DocumentRegistry
	store     domain.ArtifactStore
	extractor domain.TextExtractor
	segmenter *domain.Segmenter
	embedder  domain.Embedder
	cfg       RetrievalConfig
	logger    *slog.Logger
}

// NewIngestDocumentUsecase wires the ingestion pipeline together.
func NewIngestDocumentUsecase(
	registry *DocumentRegistry,
	store domain.ArtifactStore,
	extractor domain.TextExtractor,
	segmenter *domain.Segmenter,
	embedder domain.Embedder,
	cfg RetrievalConfig,
	logger *slog.Logger,
) IngestDocumentUsecase {
	return &ingestDocumentUsecase{
		registry:  registry,
		store:     store,
		extractor: extractor,
		segmenter: segmenter,
		embedder:  embedder,
		cfg:       cfg,
		logger:    logger,
	}
}

// Execute stores the raw upload, registers the document as pending and
// queues it for a worker. The heavy pipeline never runs on the caller's
// request path.
func (u *ingestDocumentUsecase) Execute(ctx context.Context, input IngestDocumentInput) (*IngestDocumentOutput, error) {
	filename := strings.TrimSpace(input.Filename)
	if filename == "" {
		filename = "document"
	}

	now := time.Now()
	doc := domain.Document{
		ID:         uuid.NewString(),
		Filename:   filename,
		SourceHash: domain.SourceChecksum(input.Content),
		Status:     domain.StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := u.store.SaveSource(ctx, doc.ID, input.Content); err != nil {
		return nil, fmt.Errorf("failed to save document source: %w", err)
	}
	if err := u.registry.Create(doc); err != nil {
		return nil, fmt.Errorf("failed to register document: %w", err)
	}
	if err := u.registry.Enqueue(doc.ID); err != nil {
		return nil, fmt.Errorf("failed to enqueue document: %w", err)
	}

	u.logger.Info("ingest_accepted",
		slog.String("document_id", doc.ID),
		slog.String("filename", filename),
		slog.Int("size_bytes", len(input.Content)))

	return &IngestDocumentOutput{DocumentID: doc.ID}, nil
}

// Reprocess queues a known document for a fresh pipeline run. A run already
// queued or in flight is not interrupted.
func (u *ingestDocumentUsecase) Reprocess(ctx context.Context, docID string) error {
	if _, err := u.registry.Get(ctx, docID); err != nil {
		return err
	}
	if err := u.registry.Enqueue(docID); err != nil {
		return err
	}
	u.logger.Info("reprocess_queued", slog.String("document_id", docID))
	return nil
}

// Process runs the full pipeline for a claimed document: extract, segment,
// embed, index, persist, publish. Every failure marks the document failed
// with the reason; cancellation counts as a failure so status never sticks
// at processing.
func (u *ingestDocumentUsecase) Process(ctx context.Context, docID string) error {
	start := time.Now()

	doc, err := u.registry.Get(ctx, docID)
	if err != nil {
		return fmt.Errorf("failed to load document record: %w", err)
	}

	raw, err := u.store.LoadSource(ctx, docID)
	if err != nil {
		return u.fail(docID, fmt.Errorf("failed to load document source: %w", err))
	}

	pages, err := u.extractor.Extract(ctx, raw, doc.Filename)
	if err != nil {
		return u.fail(docID, fmt.Errorf("failed to extract text: %w", err))
	}
	u.registry.SetProgress(docID, progressExtracted)

	if err := ctx.Err(); err != nil {
		return u.fail(docID, fmt.Errorf("ingestion canceled: %w", err))
	}

	chunks := u.segmenter.Segment(docID, pages)
	if len(chunks) == 0 {
		return u.fail(docID, &domain.ExtractionError{Reason: "document contains no extractable text"})
	}
	u.registry.SetProgress(docID, progressSegmented)

	vectors, err := u.embedChunks(ctx, docID, chunks)
	if err != nil {
		return u.fail(docID, err)
	}

	entries := make([]domain.IndexEntry, len(chunks))
	for i, chunk := range chunks {
		entries[i] = domain.IndexEntry{ChunkID: chunk.Ordinal, Page: chunk.Page, Vector: vectors[i]}
	}

	index := domain.NewVectorIndex(u.embedder.Dimension())
	if err := index.Build(entries); err != nil {
		return u.fail(docID, fmt.Errorf("failed to build vector index: %w", err))
	}
	u.registry.SetProgress(docID, progressIndexed)

	if err := ctx.Err(); err != nil {
		return u.fail(docID, fmt.Errorf("ingestion canceled: %w", err))
	}

	manifest := &domain.ChunkManifest{
		DocumentID: docID,
		Filename:   doc.Filename,
		SourceHash: doc.SourceHash,
		CreatedAt:  time.Now(),
		Chunks:     chunks,
	}
	if err := u.store.SaveArtifacts(ctx, manifest, index); err != nil {
		return u.fail(docID, fmt.Errorf("failed to persist artifacts: %w", err))
	}

	if err := u.registry.Publish(docID, chunks, index); err != nil {
		return u.fail(docID, fmt.Errorf("failed to publish document: %w", err))
	}

	u.logger.Info("ingestion_completed",
		slog.String("document_id", docID),
		slog.Int("page_count", len(pages)),
		slog.Int("chunk_count", len(chunks)),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()))
	return nil
}

func (u *ingestDocumentUsecase) fail(docID string, cause error) error {
	u.registry.Fail(docID, cause.Error())
	u.logger.Warn("ingestion_failed",
		slog.String("document_id", docID),
		slog.String("error", cause.Error()))
	return cause
}

// embedChunks embeds the chunk texts in fixed-size batches with bounded
// concurrency. Results land by offset, so the vector order matches the chunk
// order no matter which batch finishes first.
func (u *ingestDocumentUsecase) embedChunks(ctx context.Context, docID string, chunks []domain.Chunk) ([][]float32, error) {
	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Content
	}

	batchSize := u.cfg.EmbedBatchSize
	batches := (len(texts) + batchSize - 1) / batchSize
	vectors := make([][]float32, len(texts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(u.cfg.MaxConcurrentBatches)

	var completed atomic.Int64
	for b := 0; b < batches; b++ {
		first := b * batchSize
		last := min(first+batchSize, len(texts))
		g.Go(func() error {
			embedded, err := u.embedder.Embed(gctx, texts[first:last])
			if err != nil {
				return fmt.Errorf("failed to embed chunks %d..%d: %w", first, last-1, err)
			}
			if len(embedded) != last-first {
				return fmt.Errorf("embedding count mismatch: got %d, want %d", len(embedded), last-first)
			}
			for i, vector := range embedded {
				vectors[first+i] = domain.NormalizeVector(vector)
			}

			done := completed.Add(1)
			span := progressEmbedded - progressSegmented
			u.registry.SetProgress(docID, progressSegmented+span*float64(done)/float64(batches))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}
