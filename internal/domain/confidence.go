package domain

import (
	"fmt"
	"math"
)

// Confidence combination defaults. The weights sum to 1.
const (
	DefaultRetrievalWeight  = 0.55
	DefaultGenerationWeight = 0.45
	// DefaultDegradedCeiling caps the confidence of answers produced on a
	// degraded path (generation timeout or failure after retry).
	DefaultDegradedCeiling = 0.25
	// DefaultNoContentScore is the fixed confidence of the explicit
	// "no relevant content" answer.
	DefaultNoContentScore = 0.1
	// LowConfidenceThreshold marks results callers should treat as
	// unreliable. Every degraded path scores below it.
	LowConfidenceThreshold = 0.3
)

// ConfidencePolicy combines the retriever's top merged similarity and the
// generator's raw score into one calibrated confidence value. The
// combination is a fixed weighted average, clamped to [0,1], and monotonic
// non-decreasing in each input.
type ConfidencePolicy struct {
	RetrievalWeight  float64
	GenerationWeight float64
	DegradedCeiling  float64
	NoContentScore   float64
}

// DefaultConfidencePolicy returns the production weights.
func DefaultConfidencePolicy() ConfidencePolicy {
	return ConfidencePolicy{
		RetrievalWeight:  DefaultRetrievalWeight,
		GenerationWeight: DefaultGenerationWeight,
		DegradedCeiling:  DefaultDegradedCeiling,
		NoContentScore:   DefaultNoContentScore,
	}
}

// Validate checks the weights and ceilings.
func (p ConfidencePolicy) Validate() error {
	if p.RetrievalWeight < 0 || p.GenerationWeight < 0 {
		return fmt.Errorf("confidence weights must not be negative, got %.3f and %.3f",
			p.RetrievalWeight, p.GenerationWeight)
	}
	if sum := p.RetrievalWeight + p.GenerationWeight; math.Abs(sum-1) > 1e-9 {
		return fmt.Errorf("confidence weights must sum to 1, got %.3f", sum)
	}
	if p.DegradedCeiling < 0 || p.DegradedCeiling > 1 {
		return fmt.Errorf("degraded ceiling must be in [0,1], got %.3f", p.DegradedCeiling)
	}
	if p.NoContentScore < 0 || p.NoContentScore > 1 {
		return fmt.Errorf("no-content score must be in [0,1], got %.3f", p.NoContentScore)
	}
	return nil
}

// Score combines the two signals. Inputs are clamped to [0,1] before
// weighting, which preserves monotonicity for out-of-range values.
func (p ConfidencePolicy) Score(retrieval, generation float64) float64 {
	return clamp01(p.RetrievalWeight*clamp01(retrieval) + p.GenerationWeight*clamp01(generation))
}

// Degraded scores a fallback answer where only the retrieval signal exists.
// The ceiling keeps a timed-out generation from ever looking confident.
func (p ConfidencePolicy) Degraded(retrieval float64) float64 {
	return math.Min(p.DegradedCeiling, p.Score(retrieval, 0))
}

func clamp01(x float64) float64 {
	switch {
	case x < 0:
		return 0
	case x > 1:
		return 1
	default:
		return x
	}
}
