package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"docqa/internal/domain"
)

// rephraseFormat asks the model for a plain list of reformulations.
var rephraseFormat = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"variants": map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "string"},
		},
	},
	"required": []string{"variants"},
}

type rephraseAnswer struct {
	Variants []string `json:"variants"`
}

// Rephraser rewrites a question into alternative phrasings via an
// Ollama-compatible chat endpoint. Query analysis treats any failure here
// as non-fatal, so errors are returned plain.
type Rephraser struct {
	BaseURL string
	Model   string
	Client  *http.Client
	logger  *slog.Logger
}

// NewRephraser constructs a rephrase client. If client is nil, a default
// http.Client is created with a 15s timeout; rephrasing is an auxiliary
// call and must stay cheap.
func NewRephraser(baseURL, model string, logger *slog.Logger, client ...*http.Client) *Rephraser {
	c := &http.Client{Timeout: 15 * time.Second}
	if len(client) > 0 && client[0] != nil {
		c = client[0]
	}
	return &Rephraser{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Model:   model,
		Client:  c,
		logger:  logger,
	}
}

// Rephrase returns up to max alternative phrasings of the question.
func (r *Rephraser) Rephrase(ctx context.Context, question string, max int) ([]string, error) {
	if max <= 0 {
		return nil, nil
	}

	start := time.Now()
	prompt := fmt.Sprintf(
		"Rewrite the following question into up to %d alternative phrasings that keep its exact meaning. "+
			"Return them in the variants array.\n\nQuestion: %s", max, question)

	payload, err := json.Marshal(chatRequest{
		Model:     r.Model,
		Messages:  []chatMessage{{Role: "user", Content: prompt}},
		Stream:    false,
		KeepAlive: -1,
		Format:    rephraseFormat,
		Options:   map[string]any{"temperature": 0.7},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal rephrase request: %w", err)
	}

	url := fmt.Sprintf("%s/api/chat", r.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create rephrase request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call rephrase endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("rephrase endpoint returned %d: %s", resp.StatusCode, truncateString(string(body), 200))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode rephrase response: %w", err)
	}

	var answer rephraseAnswer
	if err := json.Unmarshal([]byte(strings.TrimSpace(parsed.Message.Content)), &answer); err != nil {
		return nil, fmt.Errorf("failed to parse rephrase variants: %w", err)
	}

	variants := make([]string, 0, max)
	for _, v := range answer.Variants {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		variants = append(variants, v)
		if len(variants) == max {
			break
		}
	}

	r.logger.Debug("rephrase_completed",
		slog.String("model", r.Model),
		slog.Int("variant_count", len(variants)),
		slog.Int64("elapsed_ms", time.Since(start).Milliseconds()))
	return variants, nil
}

var _ domain.RephraseClient = (*Rephraser)(nil)

