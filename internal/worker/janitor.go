package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"docqa/internal/domain"
	"docqa/internal/usecase"
)

const (
	defaultSweepInterval = 1 * time.Hour
	defaultMaxAge        = 24 * time.Hour
	defaultMaxDocuments  = 50
	defaultOrphanGrace   = 1 * time.Hour
	sweepTimeout         = 5 * time.Minute
)

// JanitorPolicy controls what a sweep removes. Zero caps disable the
// corresponding rule; DryRun reports removals without performing them.
type JanitorPolicy struct {
	MaxAge       time.Duration
	MaxDocuments int
	// OrphanGrace protects sources whose ingestion has not published
	// artifacts yet from being mistaken for leftovers.
	OrphanGrace time.Duration
	DryRun      bool
}

func DefaultJanitorPolicy() JanitorPolicy {
	return JanitorPolicy{
		MaxAge:       defaultMaxAge,
		MaxDocuments: defaultMaxDocuments,
		OrphanGrace:  defaultOrphanGrace,
	}
}

type CleanupAction struct {
	DocumentID string
	Reason     string
}

type CleanupReport struct {
	Scanned int
	Removed []CleanupAction
	Failed  []CleanupAction
}

// Janitor enforces storage retention: expired documents, incomplete artifact
// sets past their grace period and documents over the count cap are removed,
// oldest first. A nil registry is allowed for offline runs.
type Janitor struct {
	store    domain.ArtifactStore
	registry *usecase.DocumentRegistry
	policy   JanitorPolicy
	interval time.Duration
	logger   *slog.Logger
	stopChan chan struct{}
}

func NewJanitor(
	store domain.ArtifactStore,
	registry *usecase.DocumentRegistry,
	policy JanitorPolicy,
	interval time.Duration,
	logger *slog.Logger,
) *Janitor {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	return &Janitor{
		store:    store,
		registry: registry,
		policy:   policy,
		interval: interval,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

func (j *Janitor) Start() {
	j.logger.Info("Starting janitor", "interval", j.interval)
	go j.run()
}

func (j *Janitor) Stop() {
	j.logger.Info("Stopping janitor")
	close(j.stopChan)
}

func (j *Janitor) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-j.stopChan:
			return
		case <-ticker.C:
			j.sweep()
		}
	}
}

func (j *Janitor) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	report, err := j.RunOnce(ctx)
	if err != nil {
		j.logger.Error("Cleanup sweep failed", "error", err)
		return
	}
	if len(report.Removed) > 0 || len(report.Failed) > 0 {
		j.logger.Info("Cleanup sweep finished",
			"scanned", report.Scanned,
			"removed", len(report.Removed),
			"failed", len(report.Failed))
	}
}

// RunOnce applies the retention policy to everything in the store. Documents
// with a queued or running ingestion are never touched; every removal also
// drops the in-memory registry entry so stale state cannot serve answers.
func (j *Janitor) RunOnce(ctx context.Context) (*CleanupReport, error) {
	stored, err := j.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list stored documents: %w", err)
	}

	sort.Slice(stored, func(a, b int) bool {
		return stored[a].StoredAt.Before(stored[b].StoredAt)
	})

	busy := j.busyDocuments()
	now := time.Now()
	doomed := make(map[string]string, len(stored))

	for _, doc := range stored {
		if busy[doc.ID] {
			continue
		}
		age := now.Sub(doc.StoredAt)
		switch {
		case !doc.Complete && j.policy.OrphanGrace > 0 && age > j.policy.OrphanGrace:
			doomed[doc.ID] = "incomplete artifacts"
		case j.policy.MaxAge > 0 && age > j.policy.MaxAge:
			doomed[doc.ID] = "older than retention"
		}
	}

	if j.policy.MaxDocuments > 0 {
		excess := len(stored) - len(doomed) - j.policy.MaxDocuments
		for _, doc := range stored {
			if excess <= 0 {
				break
			}
			if busy[doc.ID] {
				continue
			}
			if _, dead := doomed[doc.ID]; dead {
				continue
			}
			doomed[doc.ID] = "over document cap"
			excess--
		}
	}

	report := &CleanupReport{Scanned: len(stored)}
	for _, doc := range stored {
		reason, dead := doomed[doc.ID]
		if !dead {
			continue
		}
		action := CleanupAction{DocumentID: doc.ID, Reason: reason}
		if j.policy.DryRun {
			report.Removed = append(report.Removed, action)
			continue
		}
		if err := j.store.Delete(ctx, doc.ID); err != nil {
			report.Failed = append(report.Failed, CleanupAction{DocumentID: doc.ID, Reason: err.Error()})
			continue
		}
		if j.registry != nil {
			j.registry.Evict(doc.ID)
		}
		report.Removed = append(report.Removed, action)
	}
	return report, nil
}

// busyDocuments is the set of IDs with a pending or running ingestion.
func (j *Janitor) busyDocuments() map[string]bool {
	busy := make(map[string]bool)
	if j.registry == nil {
		return busy
	}
	for _, doc := range j.registry.Snapshot() {
		if doc.Status == domain.StatusPending || doc.Status == domain.StatusProcessing {
			busy[doc.ID] = true
		}
	}
	return busy
}
