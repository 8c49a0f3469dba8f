package domain

import (
	"fmt"
	"unicode/utf8"
)

// Segmentation policy defaults, in runes and words.
const (
	// DefaultMaxChunkChars is the target upper bound for a chunk. A single
	// sentence longer than this becomes its own oversized chunk rather than
	// being truncated.
	DefaultMaxChunkChars = 700
	// DefaultOverlapWords is how many trailing words of a chunk are repeated
	// at the start of the next chunk to preserve cross-boundary context.
	DefaultOverlapWords = 15
	// DefaultMinPageChars is the floor below which a page is considered to
	// have no extractable text and yields zero chunks.
	DefaultMinPageChars = 50
	// DefaultMinChunkChars is the floor below which a trailing fragment is
	// dropped instead of becoming a chunk of its own.
	DefaultMinChunkChars = 30
)

// SegmenterConfig holds the segmentation policy knobs.
type SegmenterConfig struct {
	MaxChunkChars int
	OverlapWords  int
	MinPageChars  int
	MinChunkChars int
}

// DefaultSegmenterConfig returns the production segmentation policy.
func DefaultSegmenterConfig() SegmenterConfig {
	return SegmenterConfig{
		MaxChunkChars: DefaultMaxChunkChars,
		OverlapWords:  DefaultOverlapWords,
		MinPageChars:  DefaultMinPageChars,
		MinChunkChars: DefaultMinChunkChars,
	}
}

// Validate checks the config for values that would produce degenerate chunks.
func (c SegmenterConfig) Validate() error {
	if c.MaxChunkChars <= 0 {
		return fmt.Errorf("max chunk chars must be positive, got %d", c.MaxChunkChars)
	}
	if c.OverlapWords < 0 {
		return fmt.Errorf("overlap words must not be negative, got %d", c.OverlapWords)
	}
	if c.MinPageChars < 0 {
		return fmt.Errorf("min page chars must not be negative, got %d", c.MinPageChars)
	}
	if c.MinChunkChars < 0 {
		return fmt.Errorf("min chunk chars must not be negative, got %d", c.MinChunkChars)
	}
	if c.MinChunkChars >= c.MaxChunkChars {
		return fmt.Errorf("min chunk chars %d must be below max chunk chars %d", c.MinChunkChars, c.MaxChunkChars)
	}
	return nil
}

// Segmenter turns page-segmented text into overlapping, sentence-aware
// chunks with stable ordinals and page/offset metadata.
type Segmenter struct {
	cfg SegmenterConfig
}

// NewSegmenter creates a Segmenter with the given policy.
func NewSegmenter(cfg SegmenterConfig) *Segmenter {
	return &Segmenter{cfg: cfg}
}

// Segment produces the ordered chunk sequence for a document. Ordinals run
// sequentially from 0 across all pages. Pages with no extractable text yield
// zero chunks without aborting the rest; an entirely blank document yields
// an empty slice, which the ingestion path treats as a failure.
func (s *Segmenter) Segment(docID string, pages []Page) []Chunk {
	var chunks []Chunk
	for _, page := range pages {
		pageChunks := s.segmentPage(docID, page, len(chunks))
		chunks = append(chunks, pageChunks...)
	}
	return chunks
}

// segmentPage chunks one page. Every chunk is a contiguous rune range of the
// normalized page text: the overlap words repeated at the start of a chunk
// sit exactly where the previous chunk ended, so Start/End ranges of
// consecutive chunks overlap by the overlap width.
func (s *Segmenter) segmentPage(docID string, page Page, firstOrdinal int) []Chunk {
	canonical := NormalizeText(page.Text)
	if utf8.RuneCountInString(canonical) < s.cfg.MinPageChars {
		return nil
	}

	sentences := splitIntoSentences(canonical)
	if len(sentences) == 0 {
		return nil
	}

	// Rune offset of each sentence within the canonical page text. Sentences
	// are joined by single spaces in the normalized form, so offsets advance
	// by sentence length plus one.
	offsets := make([]int, len(sentences))
	off := 0
	for i, sentence := range sentences {
		offsets[i] = off
		off += utf8.RuneCountInString(sentence) + 1
	}
	endOf := func(i int) int {
		return offsets[i] + utf8.RuneCountInString(sentences[i])
	}

	var out []Chunk
	cur := ""
	curStart := 0
	lastEnd := 0

	emit := func() {
		if cur == "" {
			return
		}
		if utf8.RuneCountInString(cur) < s.cfg.MinChunkChars {
			return
		}
		out = append(out, Chunk{
			DocumentID: docID,
			Ordinal:    firstOrdinal + len(out),
			Page:       page.Number,
			Start:      curStart,
			End:        lastEnd,
			Content:    cur,
		})
	}

	for i, sentence := range sentences {
		sLen := utf8.RuneCountInString(sentence)
		curLen := utf8.RuneCountInString(cur)

		// Emit the current chunk when the next sentence would overflow it.
		// An oversized sentence then overflows immediately on the following
		// iteration and ships as its own chunk, never truncated.
		if curLen > 0 && curLen+1+sLen > s.cfg.MaxChunkChars {
			emit()
			overlap := lastWords(cur, s.cfg.OverlapWords)
			if overlap != "" {
				cur = overlap + " " + sentence
				curStart = lastEnd - utf8.RuneCountInString(overlap)
			} else {
				cur = sentence
				curStart = offsets[i]
			}
			lastEnd = endOf(i)
			continue
		}

		if cur == "" {
			cur = sentence
			curStart = offsets[i]
		} else {
			cur += " " + sentence
		}
		lastEnd = endOf(i)
	}
	emit()

	return out
}
