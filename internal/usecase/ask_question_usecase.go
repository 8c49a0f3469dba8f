package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"docqa/internal/domain"
)

// degradedExcerptChars bounds the excerpt quoted when generation times out.
const degradedExcerptChars = 300

// AskQuestionInput carries one question against one document.
type AskQuestionInput struct {
	DocumentID string
	Question   string
}

// AskQuestionUsecase answers questions against a completed document.
// Retrieval misses and generation timeouts degrade into low-confidence
// answers; only caller misuse and infrastructure failures surface as errors.
type AskQuestionUsecase interface {
	Execute(ctx context.Context, input AskQuestionInput) (*domain.AnswerResult, error)
}

type askQuestionUsecase struct {
	registry       *DocumentRegistry
	analyzer       *QueryAnalyzer
	retriever      *Retriever
	contextBuilder *ContextBuilder
	promptBuilder  PromptBuilder
	generator      domain.AnswerClient
	policy         domain.ConfidencePolicy
	cfg            RetrievalConfig
	logger         *slog.Logger
}

// NewAskQuestionUsecase wires the ask pipeline together.
func NewAskQuestionUsecase(
	registry *DocumentRegistry,
	analyzer *QueryAnalyzer,
	retriever *Retriever,
	contextBuilder *ContextBuilder,
	promptBuilder PromptBuilder,
	generator domain.AnswerClient,
	policy domain.ConfidencePolicy,
	cfg RetrievalConfig,
	logger *slog.Logger,
) AskQuestionUsecase {
	return &askQuestionUsecase{
		registry:       registry,
		analyzer:       analyzer,
		retriever:      retriever,
		contextBuilder: contextBuilder,
		promptBuilder:  promptBuilder,
		generator:      generator,
		policy:         policy,
		cfg:            cfg,
		logger:         logger,
	}
}

func (u *askQuestionUsecase) Execute(ctx context.Context, input AskQuestionInput) (*domain.AnswerResult, error) {
	if strings.TrimSpace(input.Question) == "" {
		return nil, fmt.Errorf("question is required")
	}

	start := time.Now()

	view, err := u.registry.Readable(ctx, input.DocumentID)
	if err != nil {
		return nil, err
	}

	intent, variants := u.analyzer.Analyze(ctx, input.Question)

	candidates, err := u.retriever.Retrieve(ctx, view, variants)
	if err != nil {
		if errors.Is(err, domain.ErrNoRelevantContent) {
			result := u.noContentAnswer(intent)
			u.logAsk(input.DocumentID, result, start)
			return result, nil
		}
		return nil, fmt.Errorf("failed to retrieve candidates: %w", err)
	}

	selection, err := u.contextBuilder.Build(candidates)
	if err != nil {
		return nil, fmt.Errorf("failed to build context: %w", err)
	}

	prompt, err := u.promptBuilder.Build(PromptInput{
		Question: input.Question,
		Intent:   intent,
		Context:  selection.Text,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build prompt: %w", err)
	}

	generated, err := u.generateWithRetry(ctx, input.DocumentID, prompt)
	if err != nil {
		if domain.IsGenerationTimeout(err) {
			result := u.degradedAnswer(intent, candidates,
				"answer generation timed out; showing the most relevant excerpt")
			u.logAsk(input.DocumentID, result, start)
			return result, nil
		}
		return nil, fmt.Errorf("failed to generate answer: %w", err)
	}

	answer := strings.TrimSpace(generated.Answer)
	if answer == "" {
		result := u.degradedAnswer(intent, candidates,
			"model returned an empty answer; showing the most relevant excerpt")
		u.logAsk(input.DocumentID, result, start)
		return result, nil
	}

	result := &domain.AnswerResult{
		Answer:     answer,
		Sources:    selection.Pages,
		Confidence: u.policy.Score(selection.TopScore, generated.Score),
		Intent:     intent,
	}
	u.logAsk(input.DocumentID, result, start)
	return result, nil
}

// generateWithRetry runs one generation attempt under the configured timeout
// and retries exactly once when the attempt timed out.
func (u *askQuestionUsecase) generateWithRetry(ctx context.Context, docID, prompt string) (*domain.GenerationResult, error) {
	generated, err := u.generateOnce(ctx, prompt)
	if err == nil || !domain.IsGenerationTimeout(err) || ctx.Err() != nil {
		return generated, err
	}

	u.logger.Warn("generation_timeout_retry",
		slog.String("document_id", docID),
		slog.Duration("timeout", u.cfg.GenerationTimeout))
	return u.generateOnce(ctx, prompt)
}

func (u *askQuestionUsecase) generateOnce(ctx context.Context, prompt string) (*domain.GenerationResult, error) {
	genCtx, cancel := context.WithTimeout(ctx, u.cfg.GenerationTimeout)
	defer cancel()
	return u.generator.Generate(genCtx, prompt, u.cfg.MaxAnswerTokens)
}

func (u *askQuestionUsecase) noContentAnswer(intent domain.QueryIntent) *domain.AnswerResult {
	return &domain.AnswerResult{
		Answer:     "The document does not contain content relevant to this question.",
		Confidence: u.policy.NoContentScore,
		Intent:     intent,
		Fallback:   true,
		Reason:     "no relevant content above the similarity floor",
	}
}

func (u *askQuestionUsecase) degradedAnswer(intent domain.QueryIntent, candidates []domain.RetrievedCandidate, reason string) *domain.AnswerResult {
	top := candidates[0]
	excerpt := domain.TruncateAtSentence(top.Chunk.Content, degradedExcerptChars)

	return &domain.AnswerResult{
		Answer: fmt.Sprintf("The most relevant passage found is on page %d: %s",
			top.Chunk.Page, excerpt),
		Sources:    []int{top.Chunk.Page},
		Confidence: u.policy.Degraded(top.Score),
		Intent:     intent,
		Fallback:   true,
		Reason:     reason,
	}
}

func (u *askQuestionUsecase) logAsk(docID string, result *domain.AnswerResult, start time.Time) {
	u.logger.Info("ask_completed",
		slog.String("document_id", docID),
		slog.String("intent", string(result.Intent)),
		slog.Float64("confidence", result.Confidence),
		slog.Bool("fallback", result.Fallback),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()))
}
