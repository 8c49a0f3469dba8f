package usecase

import (
	"fmt"
	"time"
)

// RetrievalConfig holds the tunable parameters of the ask pipeline, from
// per-variant search depth through context assembly to generation limits.
type RetrievalConfig struct {
	// TopK is the number of hits requested from the index per query variant.
	TopK int

	// MergedLimit caps the candidate list after merging variant results.
	MergedLimit int

	// SimilarityFloor drops merged candidates whose weighted score falls
	// below it. When nothing clears the floor the ask path answers with an
	// explicit no-content result instead of guessing.
	SimilarityFloor float64

	// MaxVariants bounds the query variants searched per question,
	// the original included.
	MaxVariants int

	// ContextBudgetChars is the rune budget for the assembled context block.
	ContextBudgetChars int

	// GenerationTimeout bounds a single answer-generation call. A timed-out
	// call is retried once before the ask degrades.
	GenerationTimeout time.Duration

	// MaxAnswerTokens is the generation token cap passed to the model.
	MaxAnswerTokens int

	// EmbedBatchSize is the number of chunk texts sent per embedding call
	// during ingestion.
	EmbedBatchSize int

	// MaxConcurrentBatches bounds how many embedding batches are in flight
	// at once during ingestion.
	MaxConcurrentBatches int
}

// DefaultRetrievalConfig returns the production pipeline parameters.
func DefaultRetrievalConfig() RetrievalConfig {
	return RetrievalConfig{
		TopK:                 5,
		MergedLimit:          8,
		SimilarityFloor:      0.25,
		MaxVariants:          5,
		ContextBudgetChars:   4000,
		GenerationTimeout:    30 * time.Second,
		MaxAnswerTokens:      512,
		EmbedBatchSize:       16,
		MaxConcurrentBatches: 2,
	}
}

// Validate checks the configuration values are within acceptable ranges.
func (c RetrievalConfig) Validate() error {
	if c.TopK <= 0 {
		return fmt.Errorf("topK must be positive, got %d", c.TopK)
	}
	if c.MergedLimit <= 0 {
		return fmt.Errorf("mergedLimit must be positive, got %d", c.MergedLimit)
	}
	if c.SimilarityFloor < 0 || c.SimilarityFloor >= 1 {
		return fmt.Errorf("similarityFloor must be in [0,1), got %f", c.SimilarityFloor)
	}
	if c.MaxVariants <= 0 {
		return fmt.Errorf("maxVariants must be positive, got %d", c.MaxVariants)
	}
	if c.ContextBudgetChars <= 0 {
		return fmt.Errorf("contextBudgetChars must be positive, got %d", c.ContextBudgetChars)
	}
	if c.GenerationTimeout <= 0 {
		return fmt.Errorf("generationTimeout must be positive, got %v", c.GenerationTimeout)
	}
	if c.MaxAnswerTokens <= 0 {
		return fmt.Errorf("maxAnswerTokens must be positive, got %d", c.MaxAnswerTokens)
	}
	if c.EmbedBatchSize <= 0 {
		return fmt.Errorf("embedBatchSize must be positive, got %d", c.EmbedBatchSize)
	}
	if c.MaxConcurrentBatches <= 0 {
		return fmt.Errorf("maxConcurrentBatches must be positive, got %d", c.MaxConcurrentBatches)
	}
	return nil
}
