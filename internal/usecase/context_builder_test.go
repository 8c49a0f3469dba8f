package usecase_test

import (
	"strings"
	"testing"
	"unicode/utf8"

	"docqa/internal/domain"
	"docqa/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func candidate(ordinal, page int, score float64, content string) domain.RetrievedCandidate {
	return domain.RetrievedCandidate{
		Chunk: domain.Chunk{DocumentID: "doc-1", Ordinal: ordinal, Page: page, Content: content},
		Score: score,
		Rank:  ordinal + 1,
	}
}

func TestContextBuilder_Build(t *testing.T) {
	t.Run("Labels every snippet with page and relevance", func(t *testing.T) {
		builder := usecase.NewContextBuilder(4000)
		selection, err := builder.Build([]domain.RetrievedCandidate{
			candidate(0, 2, 0.87, "The rotor assembly spins inside the bearing."),
			candidate(1, 3, 0.41, "The safety valve opens above the pressure limit."),
		})
		require.NoError(t, err)

		assert.Contains(t, selection.Text, "[Page 2 | Relevance 0.87]")
		assert.Contains(t, selection.Text, "[Page 3 | Relevance 0.41]")
		assert.Contains(t, selection.Text, "The rotor assembly spins inside the bearing.")
		assert.Equal(t, []int{2, 3}, selection.Pages)
		assert.Equal(t, []int{0, 1}, selection.Ordinals)
		assert.InDelta(t, 0.87, selection.TopScore, 1e-9)
	})

	t.Run("Deduplicates pages in relevance order", func(t *testing.T) {
		builder := usecase.NewContextBuilder(4000)
		selection, err := builder.Build([]domain.RetrievedCandidate{
			candidate(0, 5, 0.9, "First snippet from page five."),
			candidate(1, 2, 0.8, "A snippet from page two."),
			candidate(2, 5, 0.7, "Second snippet from page five."),
		})
		require.NoError(t, err)

		assert.Equal(t, []int{5, 2}, selection.Pages)
		assert.Equal(t, []int{0, 1, 2}, selection.Ordinals)
	})

	t.Run("Stays within the budget and cuts at a sentence boundary", func(t *testing.T) {
		long := strings.Repeat("Every sentence here carries roughly the same weight. ", 20)
		builder := usecase.NewContextBuilder(400)
		selection, err := builder.Build([]domain.RetrievedCandidate{
			candidate(0, 1, 0.9, strings.TrimSpace(long)),
			candidate(1, 2, 0.5, "This one no longer fits at all."),
		})
		require.NoError(t, err)

		assert.LessOrEqual(t, utf8.RuneCountInString(selection.Text), 400)
		assert.True(t, strings.HasSuffix(selection.Text, "weight."),
			"snippet should end on a sentence boundary, got %q", selection.Text)
		assert.Equal(t, []int{0}, selection.Ordinals, "the second candidate cannot fit")
	})

	t.Run("Skips trailing candidates once the budget is spent", func(t *testing.T) {
		builder := usecase.NewContextBuilder(150)
		selection, err := builder.Build([]domain.RetrievedCandidate{
			candidate(0, 1, 0.9, "The alpha subsystem keeps the intake path clear during normal operation."),
			candidate(1, 2, 0.8, "The beta subsystem would also be useful context but must be dropped."),
		})
		require.NoError(t, err)

		assert.Contains(t, selection.Text, "alpha subsystem")
		assert.NotContains(t, selection.Text, "beta subsystem")
		assert.Equal(t, []int{1}, selection.Pages)
	})

	t.Run("Rejects an empty candidate list", func(t *testing.T) {
		builder := usecase.NewContextBuilder(4000)
		_, err := builder.Build(nil)
		assert.Error(t, err)
	})
}
