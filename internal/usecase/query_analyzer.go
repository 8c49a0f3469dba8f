package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"docqa/internal/domain"
)

// Variant weights by origin. The original question always carries full
// weight; derived variants discount their hits so a chunk found only by a
// reformulation never outranks a direct hit with the same similarity.
const (
	weightOriginal = 1.0
	weightKeywords = 0.9
	weightIntent   = 0.85
	weightRephrase = 0.8
)

// queryStopwords are filler words stripped when deriving the keyword variant.
var queryStopwords = map[string]bool{
	"a": true, "an": true, "the": true, "is": true, "are": true, "was": true,
	"were": true, "be": true, "of": true, "in": true, "on": true, "at": true,
	"to": true, "for": true, "about": true, "what": true, "who": true,
	"when": true, "where": true, "why": true, "how": true, "does": true,
	"do": true, "did": true, "can": true, "could": true, "please": true,
	"tell": true, "me": true, "explain": true, "describe": true,
}

// QueryAnalyzer classifies a question's intent and derives the weighted
// variant set searched against the index. Classification is keyword based;
// an optional rephrase client adds model-generated reformulations and its
// failures are never fatal to the ask.
type QueryAnalyzer struct {
	rephraser   domain.RephraseClient
	maxVariants int
	logger      *slog.Logger
}

// NewQueryAnalyzer creates an analyzer. rephraser may be nil, which disables
// model-generated variants.
func NewQueryAnalyzer(rephraser domain.RephraseClient, maxVariants int, logger *slog.Logger) *QueryAnalyzer {
	return &QueryAnalyzer{
		rephraser:   rephraser,
		maxVariants: maxVariants,
		logger:      logger,
	}
}

// Analyze returns the question's intent and its deduplicated variant list.
// The original question is always the first variant; order is deterministic
// for a given question and rephrase response.
func (a *QueryAnalyzer) Analyze(ctx context.Context, question string) (domain.QueryIntent, []domain.QueryVariant) {
	question = strings.TrimSpace(question)
	intent := classifyIntent(question)

	variants := []domain.QueryVariant{
		{Text: question, Weight: weightOriginal, Origin: domain.VariantOriginal},
	}
	seen := map[string]bool{strings.ToLower(question): true}

	appendVariant := func(text string, weight float64, origin string) {
		text = strings.TrimSpace(text)
		if text == "" || len(variants) >= a.maxVariants {
			return
		}
		key := strings.ToLower(text)
		if seen[key] {
			return
		}
		seen[key] = true
		variants = append(variants, domain.QueryVariant{Text: text, Weight: weight, Origin: origin})
	}

	if keywords := keywordVariant(question); keywords != "" {
		appendVariant(keywords, weightKeywords, domain.VariantKeywords)
	}
	if focused := intentVariant(intent, question); focused != "" {
		appendVariant(focused, weightIntent, domain.VariantIntent)
	}

	if a.rephraser != nil && len(variants) < a.maxVariants {
		rephrased, err := a.rephraser.Rephrase(ctx, question, a.maxVariants-len(variants))
		if err != nil {
			a.logger.Warn("rephrase_failed",
				slog.String("question", truncateString(question, 80)),
				slog.String("error", err.Error()))
		}
		for _, text := range rephrased {
			appendVariant(text, weightRephrase, domain.VariantRephrase)
		}
	}

	a.logger.Debug("query_analyzed",
		slog.String("intent", string(intent)),
		slog.Int("variant_count", len(variants)))

	return intent, variants
}

func classifyIntent(question string) domain.QueryIntent {
	q := strings.ToLower(question)

	switch {
	case strings.Contains(q, "compare"), strings.Contains(q, "difference between"),
		strings.Contains(q, " versus "), strings.Contains(q, " vs "), strings.Contains(q, " vs. "):
		return domain.IntentComparison
	case strings.Contains(q, "summar"), strings.Contains(q, "overview"),
		strings.Contains(q, "main points"), strings.HasPrefix(q, "what is this document about"):
		return domain.IntentSummary
	case strings.HasPrefix(q, "what is "), strings.HasPrefix(q, "what are "),
		strings.HasPrefix(q, "define "), strings.Contains(q, "definition of"),
		strings.Contains(q, "meaning of"):
		return domain.IntentDefinition
	case strings.HasPrefix(q, "who "), strings.HasPrefix(q, "when "),
		strings.HasPrefix(q, "where "), strings.HasPrefix(q, "which "),
		strings.Contains(q, "how many"), strings.Contains(q, "how much"),
		strings.HasPrefix(q, "what "), strings.HasPrefix(q, "how "):
		return domain.IntentFactual
	default:
		return domain.IntentOther
	}
}

// keywordVariant strips stopwords and punctuation. It returns empty when the
// result would not differ from the original or nothing survives.
func keywordVariant(question string) string {
	words := strings.Fields(question)
	kept := make([]string, 0, len(words))
	for _, word := range words {
		cleaned := strings.ToLower(strings.Trim(word, ".,!?;:\"'()"))
		if cleaned == "" || queryStopwords[cleaned] {
			continue
		}
		kept = append(kept, cleaned)
	}
	if len(kept) == 0 || len(kept) == len(words) {
		return ""
	}
	return strings.Join(kept, " ")
}

// intentVariant reformulates the question around its classified intent.
func intentVariant(intent domain.QueryIntent, question string) string {
	subject := keywordVariant(question)
	if subject == "" {
		subject = strings.ToLower(strings.TrimRight(question, "?!. "))
	}
	if subject == "" {
		return ""
	}

	switch intent {
	case domain.IntentDefinition:
		return fmt.Sprintf("definition of %s", subject)
	case domain.IntentSummary:
		return fmt.Sprintf("key points about %s", subject)
	case domain.IntentComparison:
		return fmt.Sprintf("similarities and differences of %s", subject)
	case domain.IntentFactual:
		return fmt.Sprintf("facts about %s", subject)
	default:
		return ""
	}
}

// truncateString shortens s for log output.
func truncateString(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
