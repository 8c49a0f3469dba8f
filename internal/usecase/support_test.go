package usecase_test

import (
	"context"
	"encoding/hex"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"docqa/internal/domain"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// stubStore is an in-memory ArtifactStore.
type stubStore struct {
	mu        sync.Mutex
	sources   map[string][]byte
	manifests map[string]*domain.ChunkManifest
	indexes   map[string]*domain.VectorIndex
}

func newStubStore() *stubStore {
	return &stubStore{
		sources:   make(map[string][]byte),
		manifests: make(map[string]*domain.ChunkManifest),
		indexes:   make(map[string]*domain.VectorIndex),
	}
}

func (s *stubStore) SaveSource(_ context.Context, docID string, raw []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sources[docID] = append([]byte(nil), raw...)
	return nil
}

func (s *stubStore) LoadSource(_ context.Context, docID string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.sources[docID]
	if !ok {
		return nil, domain.ErrDocumentNotFound
	}
	return raw, nil
}

func (s *stubStore) SaveArtifacts(_ context.Context, manifest *domain.ChunkManifest, index *domain.VectorIndex) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	digest := domain.ChunksDigest(manifest.Chunks)
	manifest.ContentDigest = hex.EncodeToString(digest[:])
	s.manifests[manifest.DocumentID] = manifest
	s.indexes[manifest.DocumentID] = index
	return nil
}

func (s *stubStore) LoadArtifacts(_ context.Context, docID string) (*domain.ChunkManifest, *domain.VectorIndex, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	manifest, ok := s.manifests[docID]
	if !ok {
		return nil, nil, domain.ErrDocumentNotFound
	}
	return manifest, s.indexes[docID], nil
}

func (s *stubStore) Delete(_ context.Context, docID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, hadSource := s.sources[docID]
	_, hadManifest := s.manifests[docID]
	if !hadSource && !hadManifest {
		return domain.ErrDocumentNotFound
	}
	delete(s.sources, docID)
	delete(s.manifests, docID)
	delete(s.indexes, docID)
	return nil
}

func (s *stubStore) List(_ context.Context) ([]domain.StoredDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make(map[string]bool)
	for id := range s.sources {
		ids[id] = true
	}
	for id := range s.manifests {
		ids[id] = true
	}
	docs := make([]domain.StoredDocument, 0, len(ids))
	for id := range ids {
		_, complete := s.manifests[id]
		docs = append(docs, domain.StoredDocument{ID: id, Complete: complete})
	}
	return docs, nil
}

func (s *stubStore) hasArtifacts(docID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.manifests[docID]
	return ok
}

// stubExtractor splits the raw bytes into pages on form feeds, the same page
// convention the plain-text extractor uses.
type stubExtractor struct {
	err error
}

func (e *stubExtractor) Extract(_ context.Context, raw []byte, _ string) ([]domain.Page, error) {
	if e.err != nil {
		return nil, e.err
	}
	parts := strings.Split(string(raw), "\f")
	pages := make([]domain.Page, len(parts))
	for i, part := range parts {
		pages[i] = domain.Page{Number: i + 1, Text: part}
	}
	return pages, nil
}

// vocabEmbedder produces deterministic term-frequency vectors over a fixed
// vocabulary. Unknown words contribute nothing.
type vocabEmbedder struct {
	vocab []string
	index map[string]int

	mu    sync.Mutex
	calls int
	err   error
}

func newVocabEmbedder(words ...string) *vocabEmbedder {
	index := make(map[string]int, len(words))
	for i, w := range words {
		index[w] = i
	}
	return &vocabEmbedder{vocab: words, index: index}
}

func (e *vocabEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls++
	err := e.err
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		vector := make([]float32, len(e.vocab))
		for _, word := range strings.Fields(strings.ToLower(text)) {
			word = strings.Trim(word, ".,!?;:\"'()")
			if idx, ok := e.index[word]; ok {
				vector[idx]++
			}
		}
		out[i] = vector
	}
	return out, nil
}

func (e *vocabEmbedder) Dimension() int { return len(e.vocab) }

func (e *vocabEmbedder) Version() string { return "vocab-test-v1" }

func (e *vocabEmbedder) failWith(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.err = err
}

// stubGenerator returns a fixed answer, optionally after a delay so callers
// can exercise the generation timeout path.
type stubGenerator struct {
	answer string
	score  float64
	delay  time.Duration

	mu    sync.Mutex
	calls int
}

func (g *stubGenerator) Generate(ctx context.Context, _ string, _ int) (*domain.GenerationResult, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()

	if g.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, &domain.GenerationTimeoutError{Timeout: g.delay, Err: ctx.Err()}
		case <-time.After(g.delay):
		}
	}
	return &domain.GenerationResult{Answer: g.answer, Score: g.score}, nil
}

func (g *stubGenerator) Version() string { return "stub-gen-v1" }

func (g *stubGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

// stubRephraser returns canned reformulations.
type stubRephraser struct {
	variants []string
	err      error
}

func (r *stubRephraser) Rephrase(_ context.Context, _ string, max int) ([]string, error) {
	if r.err != nil {
		return nil, r.err
	}
	if len(r.variants) > max {
		return r.variants[:max], nil
	}
	return r.variants, nil
}
