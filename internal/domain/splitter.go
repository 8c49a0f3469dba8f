package domain

import (
	"strings"
	"unicode/utf8"
)

// NormalizeText collapses every whitespace run into a single space and trims
// the ends. Segmentation offsets are expressed against this normalized form,
// so extraction quirks (wrapped lines, double spaces) never shift chunk
// boundaries.
func NormalizeText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// splitIntoSentences splits text into sentences at common sentence endings.
// A terminator counts only when followed by a space, newline or end of text,
// so abbreviations like "3.5" stay intact. Also handles the Japanese period.
func splitIntoSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		current.WriteRune(runes[i])

		if runes[i] == '.' || runes[i] == '!' || runes[i] == '?' || runes[i] == '。' {
			if i+1 >= len(runes) || runes[i+1] == ' ' || runes[i+1] == '\n' {
				if trimmed := strings.TrimSpace(current.String()); trimmed != "" {
					sentences = append(sentences, trimmed)
				}
				current.Reset()
			}
		}
	}

	if trimmed := strings.TrimSpace(current.String()); trimmed != "" {
		sentences = append(sentences, trimmed)
	}

	return sentences
}

// lastWords returns the final n whitespace-separated words of text joined by
// single spaces, or the whole text when it has fewer words.
func lastWords(text string, n int) string {
	if n <= 0 {
		return ""
	}
	words := strings.Fields(text)
	if len(words) == 0 {
		return ""
	}
	if len(words) > n {
		words = words[len(words)-n:]
	}
	return strings.Join(words, " ")
}

// TruncateAtSentence returns the longest prefix of text that ends on a
// sentence boundary and fits within max runes. When even the first sentence
// does not fit, it falls back to a word-boundary cut so the result is still
// non-empty for any non-blank input.
func TruncateAtSentence(text string, max int) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(text) <= max {
		return text
	}

	var b strings.Builder
	total := 0
	for _, sentence := range splitIntoSentences(text) {
		sLen := utf8.RuneCountInString(sentence)
		extra := sLen
		if total > 0 {
			extra++ // joining space
		}
		if total+extra > max {
			break
		}
		if total > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(sentence)
		total += extra
	}
	if b.Len() > 0 {
		return b.String()
	}

	// First sentence alone exceeds max: cut at the last word that fits.
	total = 0
	for _, word := range strings.Fields(text) {
		wLen := utf8.RuneCountInString(word)
		extra := wLen
		if total > 0 {
			extra++
		}
		if total+extra > max {
			break
		}
		if total > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(word)
		total += extra
	}
	return b.String()
}
