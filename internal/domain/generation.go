package domain

import "context"

// GenerationResult is the raw outcome of one answer-generation call.
type GenerationResult struct {
	Answer string
	// Score is the model's own support estimate in [0,1]. It feeds the
	// generation side of the combined confidence.
	Score float64
}

// AnswerClient is the boundary to the generative QA model. Generate is
// bounded by the caller's context deadline; implementations classify
// deadline failures as GenerationTimeoutError so the ask path can retry
// once and then degrade.
type AnswerClient interface {
	Generate(ctx context.Context, prompt string, maxTokens int) (*GenerationResult, error)
	// Version identifies the generation model.
	Version() string
}

// RephraseClient is the optional boundary to an auxiliary model that
// rewrites a question into alternative phrasings. A failing rephraser
// degrades query analysis to the original question; it never fails the
// ask operation.
type RephraseClient interface {
	Rephrase(ctx context.Context, question string, max int) ([]string, error)
}
