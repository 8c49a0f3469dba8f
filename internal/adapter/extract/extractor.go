// Package extract turns raw uploads into page-segmented text. Plain text
// and markdown are handled locally; binary formats are delegated to the
// remote extraction service when one is configured.
package extract

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"docqa/internal/domain"
)

// sniffLen bounds how much of the upload the binary check inspects.
const sniffLen = 8192

// Extractor implements domain.TextExtractor. remote may be nil, in which
// case binary uploads fail with ExtractionError.
type Extractor struct {
	remote *RemoteClient
	logger *slog.Logger
}

func NewExtractor(remote *RemoteClient, logger *slog.Logger) *Extractor {
	return &Extractor{remote: remote, logger: logger}
}

// Extract splits text uploads into pages on form feeds. Binary uploads go
// through the remote extraction service; without one they are rejected.
func (e *Extractor) Extract(ctx context.Context, raw []byte, filename string) ([]domain.Page, error) {
	if len(raw) == 0 {
		return nil, &domain.ExtractionError{Reason: "empty upload"}
	}

	if isBinary(raw) {
		if e.remote == nil {
			return nil, &domain.ExtractionError{
				Reason: fmt.Sprintf("binary upload %q requires the remote extraction service", filename),
			}
		}
		pages, err := e.remote.Extract(ctx, raw, filename)
		if err != nil {
			return nil, &domain.ExtractionError{Reason: "remote extraction failed", Err: err}
		}
		e.logger.Debug("extraction_remote_completed",
			slog.String("filename", filename),
			slog.Int("page_count", len(pages)))
		return pages, nil
	}

	pages := splitPages(string(raw))
	e.logger.Debug("extraction_completed",
		slog.String("filename", filename),
		slog.Int("page_count", len(pages)))
	return pages, nil
}

// splitPages treats form feeds as page breaks. Blank pages are kept; the
// segmenter decides what is worth chunking.
func splitPages(text string) []domain.Page {
	parts := strings.Split(text, "\f")
	pages := make([]domain.Page, len(parts))
	for i, part := range parts {
		pages[i] = domain.Page{Number: i + 1, Text: part}
	}
	return pages
}

// isBinary reports whether the upload cannot be treated as plain text:
// a known binary magic, NUL bytes, or invalid UTF-8 near the start.
func isBinary(raw []byte) bool {
	if bytes.HasPrefix(raw, []byte("%PDF-")) {
		return true
	}
	sniff := raw
	if len(sniff) > sniffLen {
		sniff = sniff[:sniffLen]
		// Do not flag a multi-byte rune cut at the sniff boundary.
		for i := 0; i < utf8.UTFMax-1 && !utf8.Valid(sniff); i++ {
			sniff = sniff[:len(sniff)-1]
		}
	}
	if bytes.IndexByte(sniff, 0) >= 0 {
		return true
	}
	return !utf8.Valid(sniff)
}

var _ domain.TextExtractor = (*Extractor)(nil)
