package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"docqa/internal/domain"

	"golang.org/x/sync/singleflight"
)

// ReadView is an immutable snapshot of a completed document handed to the
// ask pipeline. The chunk slice is ordered by ordinal and the index is built,
// so readers never observe a partially ingested generation.
type ReadView struct {
	Document domain.Document
	Chunks   []domain.Chunk
	Index    *domain.VectorIndex
}

type documentRecord struct {
	doc    domain.Document
	queued bool
	// cancel is set while an ingestion run owns the document and aborts it
	// on reset or delete.
	cancel context.CancelFunc
	chunks []domain.Chunk
	index  *domain.VectorIndex
}

// DocumentRegistry tracks every known document, owns the ingestion queue and
// publishes completed read state. Status and progress move through it only,
// which keeps progress monotonic and the completed chunk/index pair visible
// all-or-nothing. Documents evicted from memory are rehydrated on demand from
// the artifact store.
type DocumentRegistry struct {
	store  domain.ArtifactStore
	logger *slog.Logger

	mu      sync.RWMutex
	records map[string]*documentRecord
	queue   []string

	rehydrate singleflight.Group
}

// NewDocumentRegistry creates an empty registry backed by the given store.
func NewDocumentRegistry(store domain.ArtifactStore, logger *slog.Logger) *DocumentRegistry {
	return &DocumentRegistry{
		store:   store,
		logger:  logger,
		records: make(map[string]*documentRecord),
	}
}

// Create tracks a new document record. The document keeps the status it
// arrives with; Enqueue hands it to the ingestion workers.
func (r *DocumentRegistry) Create(doc domain.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.records[doc.ID]; exists {
		return fmt.Errorf("document %s is already tracked", doc.ID)
	}
	r.records[doc.ID] = &documentRecord{doc: doc}
	return nil
}

// Enqueue schedules a document for ingestion. A document whose current run
// has not finished cannot be enqueued again.
func (r *DocumentRegistry) Enqueue(docID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[docID]
	if !ok {
		return domain.ErrDocumentNotFound
	}
	if rec.queued || rec.cancel != nil {
		return domain.ErrIngestionInFlight
	}

	rec.queued = true
	rec.doc.Status = domain.StatusPending
	rec.doc.Progress = 0
	rec.doc.ErrorDetail = ""
	rec.doc.UpdatedAt = time.Now()
	r.queue = append(r.queue, docID)
	return nil
}

// ClaimNext pops the oldest queued document and marks it processing. The
// returned context is canceled by Reset and Remove; exactly one caller wins
// each document. ok is false when the queue is empty.
func (r *DocumentRegistry) ClaimNext(parent context.Context) (string, context.Context, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for len(r.queue) > 0 {
		docID := r.queue[0]
		r.queue = r.queue[1:]

		rec, ok := r.records[docID]
		if !ok || !rec.queued {
			// Removed while waiting in the queue.
			continue
		}

		runCtx, cancel := context.WithCancel(parent)
		rec.queued = false
		rec.cancel = cancel
		rec.doc.Status = domain.StatusProcessing
		rec.doc.UpdatedAt = time.Now()
		return docID, runCtx, true
	}
	return "", nil, false
}

// SetProgress advances a document's progress. Progress never moves backwards,
// so out-of-order updates from concurrent embedding batches are safe.
func (r *DocumentRegistry) SetProgress(docID string, progress float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[docID]
	if !ok {
		return
	}
	if progress > 1 {
		progress = 1
	}
	if progress > rec.doc.Progress {
		rec.doc.Progress = progress
		rec.doc.UpdatedAt = time.Now()
	}
}

// Publish atomically installs a completed generation: status, chunk list and
// built index change together under the write lock, so a reader sees either
// the previous state or the full new one.
func (r *DocumentRegistry) Publish(docID string, chunks []domain.Chunk, index *domain.VectorIndex) error {
	if !index.Built() {
		return domain.ErrNotBuilt
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[docID]
	if !ok {
		return domain.ErrDocumentNotFound
	}

	rec.releaseRun()
	rec.chunks = chunks
	rec.index = index
	rec.doc.Status = domain.StatusCompleted
	rec.doc.Progress = 1
	rec.doc.ChunkCount = len(chunks)
	rec.doc.ErrorDetail = ""
	rec.doc.UpdatedAt = time.Now()
	return nil
}

// Fail marks a document's ingestion as failed. It is a no-op for documents
// removed while their run was still going.
func (r *DocumentRegistry) Fail(docID string, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[docID]
	if !ok {
		r.logger.Debug("fail_for_unknown_document", slog.String("document_id", docID))
		return
	}

	rec.releaseRun()
	rec.doc.Status = domain.StatusFailed
	rec.doc.ErrorDetail = reason
	rec.doc.UpdatedAt = time.Now()
}

func (rec *documentRecord) releaseRun() {
	if rec.cancel != nil {
		rec.cancel()
		rec.cancel = nil
	}
}

// Get returns the current document record, rehydrating it from the artifact
// store when the registry no longer holds it in memory.
func (r *DocumentRegistry) Get(ctx context.Context, docID string) (domain.Document, error) {
	r.mu.RLock()
	rec, ok := r.records[docID]
	if ok {
		doc := rec.doc
		r.mu.RUnlock()
		return doc, nil
	}
	r.mu.RUnlock()

	view, err := r.rehydrateFromStore(ctx, docID)
	if err != nil {
		return domain.Document{}, err
	}
	return view.Document, nil
}

// Readable returns the read snapshot for a completed document. Any other
// status yields ErrDocumentNotReady; an unknown document that has artifacts
// on disk is rehydrated first.
func (r *DocumentRegistry) Readable(ctx context.Context, docID string) (*ReadView, error) {
	r.mu.RLock()
	rec, ok := r.records[docID]
	if ok {
		view, err := rec.readView()
		r.mu.RUnlock()
		return view, err
	}
	r.mu.RUnlock()

	view, err := r.rehydrateFromStore(ctx, docID)
	if err != nil {
		return nil, err
	}
	if view.Document.Status != domain.StatusCompleted || view.Index == nil {
		return nil, domain.ErrDocumentNotReady
	}
	return view, nil
}

func (rec *documentRecord) readView() (*ReadView, error) {
	if rec.doc.Status != domain.StatusCompleted || rec.index == nil {
		return nil, domain.ErrDocumentNotReady
	}
	return &ReadView{Document: rec.doc, Chunks: rec.chunks, Index: rec.index}, nil
}

// rehydrateFromStore loads persisted artifacts back into the registry.
// Concurrent callers for the same document share one load. The returned view
// reflects whatever state the document is in; callers gate on status.
func (r *DocumentRegistry) rehydrateFromStore(ctx context.Context, docID string) (*ReadView, error) {
	result, err, _ := r.rehydrate.Do(docID, func() (any, error) {
		r.mu.RLock()
		if existing, ok := r.records[docID]; ok {
			// Raced a concurrent Create or rehydration; keep the live record.
			view := &ReadView{Document: existing.doc, Chunks: existing.chunks, Index: existing.index}
			r.mu.RUnlock()
			return view, nil
		}
		r.mu.RUnlock()

		manifest, index, err := r.store.LoadArtifacts(ctx, docID)
		if err != nil {
			return nil, err
		}

		doc := domain.Document{
			ID:         docID,
			Filename:   manifest.Filename,
			SourceHash: manifest.SourceHash,
			Status:     domain.StatusCompleted,
			Progress:   1,
			ChunkCount: len(manifest.Chunks),
			CreatedAt:  manifest.CreatedAt,
			UpdatedAt:  time.Now(),
		}

		r.mu.Lock()
		if existing, ok := r.records[docID]; ok {
			view := &ReadView{Document: existing.doc, Chunks: existing.chunks, Index: existing.index}
			r.mu.Unlock()
			return view, nil
		}
		r.records[docID] = &documentRecord{doc: doc, chunks: manifest.Chunks, index: index}
		r.mu.Unlock()

		r.logger.Info("document_rehydrated",
			slog.String("document_id", docID),
			slog.Int("chunk_count", len(manifest.Chunks)))
		return &ReadView{Document: doc, Chunks: manifest.Chunks, Index: index}, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*ReadView), nil
}

// Snapshot lists every tracked document ordered by creation time.
func (r *DocumentRegistry) Snapshot() []domain.Document {
	r.mu.RLock()
	defer r.mu.RUnlock()

	docs := make([]domain.Document, 0, len(r.records))
	for _, rec := range r.records {
		docs = append(docs, rec.doc)
	}
	sort.Slice(docs, func(i, j int) bool {
		if !docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].CreatedAt.Before(docs[j].CreatedAt)
		}
		return docs[i].ID < docs[j].ID
	})
	return docs
}

// Evict drops a document's in-memory state only. Persisted artifacts stay
// untouched, so a later Get or Readable rehydrates it.
func (r *DocumentRegistry) Evict(docID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[docID]
	if !ok {
		return
	}
	if rec.cancel != nil || rec.queued {
		// Never evict a document with an active or queued run.
		return
	}
	delete(r.records, docID)
}

// Remove cancels any active run for the document and deletes both its
// in-memory state and its persisted artifacts.
func (r *DocumentRegistry) Remove(ctx context.Context, docID string) error {
	r.mu.Lock()
	rec, tracked := r.records[docID]
	if tracked {
		rec.releaseRun()
		rec.queued = false
		delete(r.records, docID)
	}
	r.mu.Unlock()

	err := r.store.Delete(ctx, docID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrDocumentNotFound):
		if tracked {
			return nil
		}
		return domain.ErrDocumentNotFound
	default:
		return fmt.Errorf("failed to delete document artifacts: %w", err)
	}
}

// Reset cancels every in-flight ingestion, clears the registry and removes
// all persisted artifacts. The service returns to its initial state.
func (r *DocumentRegistry) Reset(ctx context.Context) error {
	r.mu.Lock()
	for _, rec := range r.records {
		rec.releaseRun()
	}
	r.records = make(map[string]*documentRecord)
	r.queue = nil
	r.mu.Unlock()

	stored, err := r.store.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list stored documents: %w", err)
	}

	var firstErr error
	removed := 0
	for _, doc := range stored {
		if err := r.store.Delete(ctx, doc.ID); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		removed++
	}

	r.logger.Info("registry_reset",
		slog.Int("documents_removed", removed),
		slog.Int("documents_failed", len(stored)-removed))

	if firstErr != nil {
		return fmt.Errorf("failed to remove some document artifacts: %w", firstErr)
	}
	return nil
}
