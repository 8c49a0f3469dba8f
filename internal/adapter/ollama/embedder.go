// Package ollama contains HTTP adapters for Ollama-compatible model servers:
// the embedding client, the answer generator, and the optional rephraser.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"docqa/internal/domain"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

const (
	// maxEmbedBatch caps the texts sent in one /api/embed request.
	maxEmbedBatch = 64
	// embedAttempts bounds retries per batch before EmbeddingError.
	embedAttempts = 3
	// embedBackoff is the initial retry delay, doubled per attempt.
	embedBackoff = 200 * time.Millisecond
	// embedCacheSize is the number of text embeddings kept in memory so
	// repeated questions skip the model round trip.
	embedCacheSize = 1024
	// embedRequestsPerSecond limits outbound embed calls.
	embedRequestsPerSecond = 10
)

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Embedder calls an Ollama-compatible /api/embed endpoint. Output vectors
// are unit-normalized and checked against the configured dimension, and
// repeated texts are served from an LRU cache.
type Embedder struct {
	BaseURL   string
	Model     string
	dimension int
	Client    *http.Client
	limiter   *rate.Limiter
	cache     *lru.Cache[string, []float32]
	logger    *slog.Logger
}

// NewEmbedder constructs an embedding client for the given endpoint and
// model. dimension is the vector width the model produces; responses with
// any other width are rejected. If client is nil, a default http.Client is
// created with a 60s timeout.
func NewEmbedder(baseURL, model string, dimension int, logger *slog.Logger, client ...*http.Client) (*Embedder, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive, got %d", dimension)
	}
	c := &http.Client{Timeout: 60 * time.Second}
	if len(client) > 0 && client[0] != nil {
		c = client[0]
	}
	cache, err := lru.New[string, []float32](embedCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding cache: %w", err)
	}
	return &Embedder{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		Model:     model,
		dimension: dimension,
		Client:    c,
		limiter:   rate.NewLimiter(embedRequestsPerSecond, embedRequestsPerSecond),
		cache:     cache,
		logger:    logger,
	}, nil
}

// Embed returns one unit-normalized vector per input text, in input order.
// Cache misses are fetched in batches of at most maxEmbedBatch; transient
// backend failures are retried with backoff and surface as EmbeddingError
// once attempts run out.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("no texts to embed")
	}

	start := time.Now()
	out := make([][]float32, len(texts))

	var missing []int
	for i, text := range texts {
		if cached, ok := e.cache.Get(text); ok {
			// Callers may normalize in place, so they never share the
			// cached backing array.
			out[i] = append([]float32(nil), cached...)
			continue
		}
		missing = append(missing, i)
	}

	for first := 0; first < len(missing); first += maxEmbedBatch {
		last := min(first+maxEmbedBatch, len(missing))
		batch := make([]string, 0, last-first)
		for _, idx := range missing[first:last] {
			batch = append(batch, texts[idx])
		}

		vectors, err := e.embedBatch(ctx, batch)
		if err != nil {
			return nil, err
		}
		for j, idx := range missing[first:last] {
			vector := domain.NormalizeVector(vectors[j])
			out[idx] = vector
			e.cache.Add(texts[idx], append([]float32(nil), vector...))
		}
	}

	e.logger.Debug("embed_completed",
		slog.String("model", e.Model),
		slog.Int("text_count", len(texts)),
		slog.Int("cache_hits", len(texts)-len(missing)),
		slog.Int64("elapsed_ms", time.Since(start).Milliseconds()))
	return out, nil
}

// embedBatch performs one backend call with bounded retries.
func (e *Embedder) embedBatch(ctx context.Context, batch []string) ([][]float32, error) {
	var lastErr error
	for attempt := 1; attempt <= embedAttempts; attempt++ {
		if attempt > 1 {
			delay := embedBackoff << (attempt - 2)
			e.logger.Warn("embed_retry",
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay),
				slog.String("error", lastErr.Error()))
			select {
			case <-ctx.Done():
				return nil, &domain.EmbeddingError{Attempts: attempt - 1, Err: ctx.Err()}
			case <-time.After(delay):
			}
		}

		vectors, retryable, err := e.callEmbed(ctx, batch)
		if err == nil {
			return vectors, nil
		}
		if !retryable {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, &domain.EmbeddingError{Attempts: attempt, Err: err}
		}
		lastErr = err
	}

	e.logger.Error("embed_failed",
		slog.String("model", e.Model),
		slog.Int("attempts", embedAttempts),
		slog.String("error", lastErr.Error()))
	return nil, &domain.EmbeddingError{Attempts: embedAttempts, Err: lastErr}
}

// callEmbed performs a single /api/embed request. The second return value
// reports whether the failure is worth retrying.
func (e *Embedder) callEmbed(ctx context.Context, batch []string) ([][]float32, bool, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, false, fmt.Errorf("rate limiter interrupted: %w", err)
	}

	payload, err := json.Marshal(embedRequest{Model: e.Model, Input: batch})
	if err != nil {
		return nil, false, fmt.Errorf("failed to marshal embed request: %w", err)
	}

	url := fmt.Sprintf("%s/api/embed", e.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, false, fmt.Errorf("failed to create embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.Client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, false, err
		}
		return nil, true, fmt.Errorf("failed to call embed endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		err := fmt.Errorf("embed endpoint returned %d: %s", resp.StatusCode, truncateString(string(body), 200))
		retryable := resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests
		return nil, retryable, err
	}

	var parsed embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, false, fmt.Errorf("failed to decode embed response: %w", err)
	}
	if len(parsed.Embeddings) != len(batch) {
		return nil, false, fmt.Errorf("embed endpoint returned %d vectors for %d texts", len(parsed.Embeddings), len(batch))
	}
	for _, vector := range parsed.Embeddings {
		if len(vector) != e.dimension {
			return nil, false, fmt.Errorf("model %q returned %d-dimensional vectors, expected %d", e.Model, len(vector), e.dimension)
		}
	}
	return parsed.Embeddings, false, nil
}

// Dimension returns the configured vector width.
func (e *Embedder) Dimension() int { return e.dimension }

// Version returns the wrapped model name.
func (e *Embedder) Version() string { return e.Model }

var _ domain.Embedder = (*Embedder)(nil)
