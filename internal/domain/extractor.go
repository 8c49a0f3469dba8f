package domain

import "context"

// Page is one page of extracted text, the unit handed to the Segmenter.
type Page struct {
	Number int    `json:"number"` // 1-indexed
	Text   string `json:"text"`
}

// TextExtractor converts raw uploaded bytes into page-segmented text.
// Unreadable or unsupported sources fail with ExtractionError; an empty
// page list is a valid outcome and is judged by the ingestion path.
type TextExtractor interface {
	Extract(ctx context.Context, raw []byte, filename string) ([]Page, error)
}
