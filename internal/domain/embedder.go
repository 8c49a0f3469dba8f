package domain

import "context"

// Embedder maps a batch of texts to fixed-dimension, unit-normalized
// vectors: one vector per input, in input order. Implementations process
// inputs in bounded-size batches, retry transient backend failures with
// backoff (surfacing EmbeddingError when retries run out), and are
// deterministic for a fixed model version: the same text always yields the
// same vector.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Dimension returns the vector width the model produces.
	Dimension() int
	// Version identifies the embedding model for reproducibility.
	Version() string
}
