package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"docqa/internal/domain"
	"docqa/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- stubs ---

type stubIngestUsecase struct {
	mu          sync.Mutex
	processed   []string
	capturedCtx context.Context
	processErr  error
	panicMsg    string
	delay       time.Duration
}

func (s *stubIngestUsecase) Execute(ctx context.Context, input usecase.IngestDocumentInput) (*usecase.IngestDocumentOutput, error) {
	return nil, errors.New("not used in worker tests")
}

func (s *stubIngestUsecase) Process(ctx context.Context, docID string) error {
	s.mu.Lock()
	s.capturedCtx = ctx
	s.processed = append(s.processed, docID)
	err := s.processErr
	panicMsg := s.panicMsg
	delay := s.delay
	s.mu.Unlock()

	if panicMsg != "" {
		panic(panicMsg)
	}
	if delay > 0 {
		time.Sleep(delay)
	}
	return err
}

func (s *stubIngestUsecase) Reprocess(ctx context.Context, docID string) error { return nil }

func (s *stubIngestUsecase) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.processed)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func newTestRegistry() *usecase.DocumentRegistry {
	return usecase.NewDocumentRegistry(&stubArtifactStore{}, testLogger())
}

func enqueueDocument(t *testing.T, registry *usecase.DocumentRegistry, docID string) {
	t.Helper()
	require.NoError(t, registry.Create(domain.Document{ID: docID, Status: domain.StatusPending}))
	require.NoError(t, registry.Enqueue(docID))
}

// --- tests ---

func TestIngestWorker_ProcessNext_RunsClaimedDocument(t *testing.T) {
	registry := newTestRegistry()
	enqueueDocument(t, registry, "doc-1")

	uc := &stubIngestUsecase{}
	w := NewIngestWorker(registry, uc, 1, testLogger())

	failed := w.processNext()

	assert.False(t, failed)
	assert.Equal(t, []string{"doc-1"}, uc.processed)

	uc.mu.Lock()
	defer uc.mu.Unlock()
	deadline, ok := uc.capturedCtx.Deadline()
	assert.True(t, ok, "context passed to Process must have a deadline")
	assert.WithinDuration(t, time.Now().Add(defaultJobTimeout), deadline, 5*time.Second)
}

func TestIngestWorker_ProcessNext_EmptyQueue(t *testing.T) {
	uc := &stubIngestUsecase{}
	w := NewIngestWorker(newTestRegistry(), uc, 1, testLogger())

	failed := w.processNext()

	assert.False(t, failed)
	assert.Zero(t, uc.count(), "nothing should be processed from an empty queue")
}

func TestIngestWorker_ProcessNext_FailureTriggersBackoff(t *testing.T) {
	registry := newTestRegistry()
	enqueueDocument(t, registry, "doc-1")

	uc := &stubIngestUsecase{processErr: errors.New("embedder unreachable")}
	w := NewIngestWorker(registry, uc, 1, testLogger())

	assert.True(t, w.processNext(), "an infrastructure failure should slow the loop down")
}

func TestIngestWorker_ProcessNext_CanceledRunDoesNotBackOff(t *testing.T) {
	registry := newTestRegistry()
	enqueueDocument(t, registry, "doc-1")

	uc := &stubIngestUsecase{processErr: fmt.Errorf("ingestion canceled: %w", context.Canceled)}
	w := NewIngestWorker(registry, uc, 1, testLogger())

	assert.False(t, w.processNext(), "a reset or delete mid-run is not an infrastructure failure")
}

func TestIngestWorker_ProcessNext_PanicMarksDocumentFailed(t *testing.T) {
	registry := newTestRegistry()
	enqueueDocument(t, registry, "doc-1")

	uc := &stubIngestUsecase{panicMsg: "segmenter index out of range"}
	w := NewIngestWorker(registry, uc, 1, testLogger())

	failed := w.processNext()

	assert.True(t, failed)
	doc, err := registry.Get(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, doc.Status)
	assert.Contains(t, doc.ErrorDetail, "ingestion panicked")
	assert.Contains(t, doc.ErrorDetail, "segmenter index out of range")
}

func TestIngestWorker_StartStop_DrainsQueue(t *testing.T) {
	registry := newTestRegistry()
	for _, id := range []string{"doc-1", "doc-2", "doc-3"} {
		enqueueDocument(t, registry, id)
	}

	uc := &stubIngestUsecase{delay: 5 * time.Millisecond}
	w := NewIngestWorker(registry, uc, 2, testLogger())

	w.Start()
	defer w.Stop()

	assert.Eventually(t, func() bool { return uc.count() == 3 }, 2*time.Second, 10*time.Millisecond,
		"the pool should drain every queued document")
}

func TestNextBackoff_CapsAtMax(t *testing.T) {
	bo := time.Duration(0)
	for i := 0; i < 20; i++ {
		bo = nextBackoff(bo)
	}
	assert.Equal(t, maxBackoff, bo, "backoff must cap at maxBackoff")
}
