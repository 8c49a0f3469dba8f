package usecase

import (
	"fmt"
	"strings"

	"docqa/internal/domain"
)

// PromptInput contains the pieces that feed into the prompt builder.
type PromptInput struct {
	Question string
	Intent   domain.QueryIntent
	Context  string
}

// PromptBuilder renders the user prompt sent to the answer model. The
// system role and output schema belong to the generation client; the
// builder only shapes the grounded task.
type PromptBuilder interface {
	Build(input PromptInput) (string, error)
}

// GroundedPromptBuilder builds prompts that hold the model to the retrieved
// context and tune the task line to the question's intent.
type GroundedPromptBuilder struct {
	additionalInstructions []string
}

// NewGroundedPromptBuilder creates a prompt builder with optional extra
// instruction lines appended after the standard ones.
func NewGroundedPromptBuilder(additionalInstructions ...string) PromptBuilder {
	return &GroundedPromptBuilder{additionalInstructions: additionalInstructions}
}

// Build renders the prompt.
func (b *GroundedPromptBuilder) Build(input PromptInput) (string, error) {
	if strings.TrimSpace(input.Question) == "" {
		return "", fmt.Errorf("question is required")
	}
	if strings.TrimSpace(input.Context) == "" {
		return "", fmt.Errorf("context is required")
	}

	var sb strings.Builder
	sb.WriteString("Answer the question using ONLY the excerpts below. ")
	sb.WriteString("Each excerpt is labeled with its page number and relevance score.\n")
	sb.WriteString(intentInstruction(input.Intent))
	sb.WriteString("\n")
	for _, line := range b.additionalInstructions {
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	sb.WriteString("\nExcerpts:\n")
	sb.WriteString(input.Context)
	sb.WriteString("\n\nQuestion: ")
	sb.WriteString(strings.TrimSpace(input.Question))
	sb.WriteString("\n")

	return sb.String(), nil
}

func intentInstruction(intent domain.QueryIntent) string {
	switch intent {
	case domain.IntentSummary:
		return "Give a concise summary of the relevant excerpts."
	case domain.IntentComparison:
		return "Contrast the items the question asks about, citing the excerpts each point comes from."
	case domain.IntentDefinition:
		return "Define the term as the document uses it, staying close to its wording."
	case domain.IntentFactual:
		return "Answer with the specific fact requested; keep it short."
	default:
		return "Answer as directly as the excerpts allow."
	}
}
