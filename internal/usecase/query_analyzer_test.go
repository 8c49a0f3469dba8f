package usecase_test

import (
	"context"
	"errors"
	"testing"

	"docqa/internal/domain"
	"docqa/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryAnalyzer_Intent(t *testing.T) {
	analyzer := usecase.NewQueryAnalyzer(nil, 5, newTestLogger())

	cases := []struct {
		question string
		intent   domain.QueryIntent
	}{
		{"What is a safety valve?", domain.IntentDefinition},
		{"Define rotor assembly", domain.IntentDefinition},
		{"Summarize the maintenance chapter", domain.IntentSummary},
		{"Give me an overview of the cooling loop", domain.IntentSummary},
		{"Compare the intake filter and the outlet filter", domain.IntentComparison},
		{"What is the difference between both pumps", domain.IntentComparison},
		{"How many pages does the manual have?", domain.IntentFactual},
		{"When should the seal be replaced?", domain.IntentFactual},
		{"Troubleshooting the cooling loop", domain.IntentOther},
	}

	for _, tc := range cases {
		intent, _ := analyzer.Analyze(context.Background(), tc.question)
		assert.Equal(t, tc.intent, intent, "question: %s", tc.question)
	}
}

func TestQueryAnalyzer_Variants(t *testing.T) {
	t.Run("Original question is always the first variant at full weight", func(t *testing.T) {
		analyzer := usecase.NewQueryAnalyzer(nil, 5, newTestLogger())
		_, variants := analyzer.Analyze(context.Background(), "What is the safety valve?")

		require.NotEmpty(t, variants)
		assert.Equal(t, "What is the safety valve?", variants[0].Text)
		assert.Equal(t, 1.0, variants[0].Weight)
		assert.Equal(t, domain.VariantOriginal, variants[0].Origin)
	})

	t.Run("Derives a stopword-free keyword variant", func(t *testing.T) {
		analyzer := usecase.NewQueryAnalyzer(nil, 5, newTestLogger())
		_, variants := analyzer.Analyze(context.Background(), "What does page two say about the rotor assembly?")

		var keywords *domain.QueryVariant
		for i := range variants {
			if variants[i].Origin == domain.VariantKeywords {
				keywords = &variants[i]
			}
		}
		require.NotNil(t, keywords, "expected a keyword variant")
		assert.Equal(t, "page two say rotor assembly", keywords.Text)
		assert.Less(t, keywords.Weight, 1.0)
	})

	t.Run("Derived variants carry lower weight than the original", func(t *testing.T) {
		analyzer := usecase.NewQueryAnalyzer(nil, 5, newTestLogger())
		_, variants := analyzer.Analyze(context.Background(), "What is the condenser coil?")

		require.Greater(t, len(variants), 1)
		for _, v := range variants[1:] {
			assert.Less(t, v.Weight, 1.0, "variant %q", v.Text)
		}
	})

	t.Run("Deduplicates case-insensitively", func(t *testing.T) {
		rephraser := &stubRephraser{variants: []string{"WHAT IS THE CONDENSER COIL?", "role of the condenser coil"}}
		analyzer := usecase.NewQueryAnalyzer(rephraser, 5, newTestLogger())
		_, variants := analyzer.Analyze(context.Background(), "What is the condenser coil?")

		seen := map[string]bool{}
		for _, v := range variants {
			key := v.Text
			assert.False(t, seen[key] || v.Text == "WHAT IS THE CONDENSER COIL?",
				"duplicate variant %q survived", v.Text)
			seen[key] = true
		}
	})

	t.Run("Caps the variant count", func(t *testing.T) {
		rephraser := &stubRephraser{variants: []string{"alpha one", "beta two", "gamma three", "delta four", "epsilon five"}}
		analyzer := usecase.NewQueryAnalyzer(rephraser, 3, newTestLogger())
		_, variants := analyzer.Analyze(context.Background(), "What is the condenser coil?")

		assert.LessOrEqual(t, len(variants), 3)
	})

	t.Run("Rephraser failure is not fatal", func(t *testing.T) {
		rephraser := &stubRephraser{err: errors.New("model unavailable")}
		analyzer := usecase.NewQueryAnalyzer(rephraser, 5, newTestLogger())
		_, variants := analyzer.Analyze(context.Background(), "What is the condenser coil?")

		require.NotEmpty(t, variants)
		assert.Equal(t, domain.VariantOriginal, variants[0].Origin)
	})

	t.Run("Is deterministic for a fixed question", func(t *testing.T) {
		analyzer := usecase.NewQueryAnalyzer(nil, 5, newTestLogger())
		_, first := analyzer.Analyze(context.Background(), "How many bolts hold the housing?")
		_, second := analyzer.Analyze(context.Background(), "How many bolts hold the housing?")
		assert.Equal(t, first, second)
	})
}
