package domain

// Chunk is the retrieval unit: a contiguous, sentence-bounded span of one
// document's extracted text. Chunks are produced in reading order and are
// immutable once created; the ordinal doubles as the chunk identifier and
// the adjacency of ordinals mirrors adjacency in the document.
type Chunk struct {
	DocumentID string `json:"document_id"` // Owning document
	Ordinal    int    `json:"ordinal"`     // Sequence number within the document (0-indexed)
	Page       int    `json:"page"`        // Source page number (1-indexed)
	Start      int    `json:"start"`       // Rune offset of the chunk within the normalized page text
	End        int    `json:"end"`         // Rune offset one past the last rune of the chunk
	Content    string `json:"content"`     // The actual text content, overlap prefix included
}
