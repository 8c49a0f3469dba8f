package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"docqa/internal/domain"

	"golang.org/x/sync/errgroup"
)

// Retriever embeds the query variants, searches the document's index once
// per variant in parallel and merges the hits into one ranked candidate
// list. A chunk found by several variants keeps its best weighted score.
type Retriever struct {
	embedder domain.Embedder
	cfg      RetrievalConfig
	logger   *slog.Logger
}

// NewRetriever creates a Retriever.
func NewRetriever(embedder domain.Embedder, cfg RetrievalConfig, logger *slog.Logger) *Retriever {
	return &Retriever{embedder: embedder, cfg: cfg, logger: logger}
}

// Retrieve runs merged retrieval against a completed document's read view.
// It returns domain.ErrNoRelevantContent when no candidate clears the
// similarity floor.
func (r *Retriever) Retrieve(ctx context.Context, view *ReadView, variants []domain.QueryVariant) ([]domain.RetrievedCandidate, error) {
	if len(variants) == 0 {
		return nil, fmt.Errorf("no query variants to search")
	}

	start := time.Now()

	texts := make([]string, len(variants))
	for i, variant := range variants {
		texts[i] = variant.Text
	}

	// One embedding call covers every variant.
	queryVectors, err := r.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query variants: %w", err)
	}
	if len(queryVectors) != len(variants) {
		return nil, fmt.Errorf("query embedding count mismatch: got %d, want %d", len(queryVectors), len(variants))
	}

	type weightedHit struct {
		hit    domain.SearchHit
		score  float64
		origin string
	}

	var mu sync.Mutex
	best := make(map[int]weightedHit)

	var g errgroup.Group
	for i, variant := range variants {
		vector := domain.NormalizeVector(queryVectors[i])
		g.Go(func() error {
			hits, err := view.Index.Search(vector, r.cfg.TopK)
			if err != nil {
				return fmt.Errorf("failed to search %s variant: %w", variant.Origin, err)
			}

			mu.Lock()
			defer mu.Unlock()
			for _, hit := range hits {
				weighted := hit.Score * variant.Weight
				current, exists := best[hit.ChunkID]
				if !exists || weighted > current.score {
					best[hit.ChunkID] = weightedHit{hit: hit, score: weighted, origin: variant.Origin}
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make([]weightedHit, 0, len(best))
	for _, wh := range best {
		if wh.score < r.cfg.SimilarityFloor {
			continue
		}
		merged = append(merged, wh)
	}
	if len(merged) == 0 {
		r.logger.Info("retrieval_below_floor",
			slog.String("document_id", view.Document.ID),
			slog.Int("variant_count", len(variants)),
			slog.Float64("floor", r.cfg.SimilarityFloor))
		return nil, domain.ErrNoRelevantContent
	}

	sort.Slice(merged, func(i, j int) bool {
		if merged[i].score != merged[j].score {
			return merged[i].score > merged[j].score
		}
		return merged[i].hit.ChunkID < merged[j].hit.ChunkID
	})
	if len(merged) > r.cfg.MergedLimit {
		merged = merged[:r.cfg.MergedLimit]
	}

	candidates := make([]domain.RetrievedCandidate, 0, len(merged))
	for rank, wh := range merged {
		chunk, err := chunkByOrdinal(view.Chunks, wh.hit.ChunkID)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, domain.RetrievedCandidate{
			Chunk:  chunk,
			Score:  wh.score,
			Origin: wh.origin,
			Rank:   rank + 1,
		})
	}

	r.logger.Info("retrieval_completed",
		slog.String("document_id", view.Document.ID),
		slog.Int("variant_count", len(variants)),
		slog.Int("candidate_count", len(candidates)),
		slog.Float64("top_score", candidates[0].Score),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()))

	return candidates, nil
}

// chunkByOrdinal resolves an index hit back to its chunk. Chunk ordinals are
// the slice positions of a published generation.
func chunkByOrdinal(chunks []domain.Chunk, ordinal int) (domain.Chunk, error) {
	if ordinal < 0 || ordinal >= len(chunks) {
		return domain.Chunk{}, fmt.Errorf("index hit for unknown chunk ordinal %d", ordinal)
	}
	chunk := chunks[ordinal]
	if chunk.Ordinal != ordinal {
		return domain.Chunk{}, fmt.Errorf("chunk list out of order at ordinal %d", ordinal)
	}
	return chunk, nil
}
