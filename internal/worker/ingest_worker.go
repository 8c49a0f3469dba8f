// Package worker runs the background loops: the ingestion pool that drains
// the registry queue and the janitor that enforces storage retention.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"docqa/internal/usecase"
)

const (
	defaultPollInterval = 100 * time.Millisecond
	defaultJobTimeout   = 10 * time.Minute
	initialBackoff      = 1 * time.Second
	maxBackoff          = 1 * time.Minute
)

// IngestWorker drains the registry's ingestion queue with a fixed pool of
// polling goroutines. Claims are atomic, so each queued document is
// processed by exactly one goroutine.
type IngestWorker struct {
	registry   *usecase.DocumentRegistry
	ingest     usecase.IngestDocumentUsecase
	workers    int
	jobTimeout time.Duration
	logger     *slog.Logger
	stopChan   chan struct{}
	wg         sync.WaitGroup
}

func NewIngestWorker(
	registry *usecase.DocumentRegistry,
	ingest usecase.IngestDocumentUsecase,
	workers int,
	logger *slog.Logger,
) *IngestWorker {
	if workers <= 0 {
		workers = 1
	}
	return &IngestWorker{
		registry:   registry,
		ingest:     ingest,
		workers:    workers,
		jobTimeout: defaultJobTimeout,
		logger:     logger,
		stopChan:   make(chan struct{}),
	}
}

func (w *IngestWorker) Start() {
	w.logger.Info("Starting ingest workers", "count", w.workers)
	for i := 0; i < w.workers; i++ {
		w.wg.Add(1)
		go w.run()
	}
}

// Stop signals every goroutine and waits for in-flight ingestions to finish.
// Each run is bounded by the job timeout, so the wait is too.
func (w *IngestWorker) Stop() {
	w.logger.Info("Stopping ingest workers")
	close(w.stopChan)
	w.wg.Wait()
}

func (w *IngestWorker) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(defaultPollInterval)
	defer ticker.Stop()

	var backoff time.Duration
	for {
		select {
		case <-w.stopChan:
			return
		case <-ticker.C:
			if w.processNext() {
				backoff = nextBackoff(backoff)
				w.logger.Warn("Ingest worker backing off", "backoff", backoff)
				ticker.Reset(backoff)
			} else {
				backoff = 0
				ticker.Reset(defaultPollInterval)
			}
		}
	}
}

// processNext claims and runs one ingestion. It reports whether the run
// failed in a way that should slow the polling loop down; an empty queue or
// a run canceled by reset/delete does not.
func (w *IngestWorker) processNext() bool {
	docID, runCtx, ok := w.registry.ClaimNext(context.Background())
	if !ok {
		return false
	}

	ctx, cancel := context.WithTimeout(runCtx, w.jobTimeout)
	defer cancel()

	w.logger.Info("Processing document", "document_id", docID)
	if err := w.safeProcess(ctx, docID); err != nil {
		if errors.Is(err, context.Canceled) {
			return false
		}
		w.logger.Warn("Document ingestion failed", "document_id", docID, "error", err)
		return true
	}
	return false
}

// safeProcess keeps a panicking pipeline from killing the pool; the document
// is marked failed because Process never got the chance to.
func (w *IngestWorker) safeProcess(ctx context.Context, docID string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("ingestion panicked: %v", r)
			w.registry.Fail(docID, err.Error())
			w.logger.Error("Ingestion panicked", "document_id", docID, "panic", fmt.Sprint(r))
		}
	}()
	return w.ingest.Process(ctx, docID)
}

func nextBackoff(current time.Duration) time.Duration {
	if current == 0 {
		return initialBackoff
	}
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}
