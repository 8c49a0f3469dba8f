package usecase

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"docqa/internal/domain"
)

// minSnippetChars is the smallest truncated snippet worth including; a
// candidate whose remaining budget is below it is skipped entirely.
const minSnippetChars = 80

// ContextSelection is the assembled context block plus the bookkeeping the
// answer path needs: which pages contributed and the best retrieval score.
type ContextSelection struct {
	Text     string
	Pages    []int
	Ordinals []int
	TopScore float64
}

// ContextBuilder renders ranked candidates into the bounded context block
// fed to the generator. Candidates are taken in rank order; one that does
// not fit is truncated at a sentence boundary, and once the budget is spent
// the rest are dropped.
type ContextBuilder struct {
	budgetChars int
}

// NewContextBuilder creates a builder with the given rune budget.
func NewContextBuilder(budgetChars int) *ContextBuilder {
	return &ContextBuilder{budgetChars: budgetChars}
}

// Build assembles the context block. Candidates must be non-empty and
// rank-ordered. It fails when the budget cannot fit even a truncated snippet
// of the top candidate.
func (b *ContextBuilder) Build(candidates []domain.RetrievedCandidate) (*ContextSelection, error) {
	if len(candidates) == 0 {
		return nil, fmt.Errorf("no candidates to build context from")
	}

	var sb strings.Builder
	remaining := b.budgetChars
	selection := &ContextSelection{TopScore: candidates[0].Score}
	seenPages := map[int]bool{}

	for i, candidate := range candidates {
		header := fmt.Sprintf("[Page %d | Relevance %.2f]\n", candidate.Chunk.Page, candidate.Score)
		overhead := utf8.RuneCountInString(header)
		if i > 0 {
			overhead += 2 // blank line between snippets
		}

		available := remaining - overhead
		snippet := candidate.Chunk.Content
		if utf8.RuneCountInString(snippet) > available {
			if available < minSnippetChars && i > 0 {
				break
			}
			snippet = domain.TruncateAtSentence(snippet, available)
			if snippet == "" {
				break
			}
		}

		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(header)
		sb.WriteString(snippet)
		remaining -= overhead + utf8.RuneCountInString(snippet)

		if !seenPages[candidate.Chunk.Page] {
			seenPages[candidate.Chunk.Page] = true
			selection.Pages = append(selection.Pages, candidate.Chunk.Page)
		}
		selection.Ordinals = append(selection.Ordinals, candidate.Chunk.Ordinal)

		if remaining <= 0 {
			break
		}
	}

	selection.Text = sb.String()
	if selection.Text == "" {
		return nil, fmt.Errorf("context budget %d cannot fit any snippet", b.budgetChars)
	}
	return selection, nil
}
