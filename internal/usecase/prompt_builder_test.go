package usecase_test

import (
	"testing"

	"docqa/internal/domain"
	"docqa/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroundedPromptBuilder_Build(t *testing.T) {
	builder := usecase.NewGroundedPromptBuilder()

	t.Run("Includes the context and the question", func(t *testing.T) {
		prompt, err := builder.Build(usecase.PromptInput{
			Question: "What does the safety valve do?",
			Intent:   domain.IntentFactual,
			Context:  "[Page 3 | Relevance 0.82]\nThe safety valve opens above the pressure limit.",
		})
		require.NoError(t, err)

		assert.Contains(t, prompt, "ONLY the excerpts below")
		assert.Contains(t, prompt, "[Page 3 | Relevance 0.82]")
		assert.Contains(t, prompt, "Question: What does the safety valve do?")
	})

	t.Run("Tunes the task line to the intent", func(t *testing.T) {
		base := usecase.PromptInput{Question: "q", Context: "c"}

		factual := base
		factual.Intent = domain.IntentFactual
		prompt, err := builder.Build(factual)
		require.NoError(t, err)
		assert.Contains(t, prompt, "specific fact")

		summary := base
		summary.Intent = domain.IntentSummary
		prompt, err = builder.Build(summary)
		require.NoError(t, err)
		assert.Contains(t, prompt, "concise summary")
	})

	t.Run("Appends additional instruction lines", func(t *testing.T) {
		custom := usecase.NewGroundedPromptBuilder("Reply in one sentence.")
		prompt, err := custom.Build(usecase.PromptInput{
			Question: "q",
			Intent:   domain.IntentOther,
			Context:  "c",
		})
		require.NoError(t, err)
		assert.Contains(t, prompt, "Reply in one sentence.")
	})

	t.Run("Rejects blank question or context", func(t *testing.T) {
		_, err := builder.Build(usecase.PromptInput{Question: " ", Context: "c"})
		assert.Error(t, err)

		_, err = builder.Build(usecase.PromptInput{Question: "q", Context: " "})
		assert.Error(t, err)
	})
}
