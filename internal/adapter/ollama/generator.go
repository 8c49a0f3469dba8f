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
)

const (
	generationTemperature = 0.2
	// fallbackGenerationScore is used when the model ignores the structured
	// output schema and we fall back to its raw text.
	fallbackGenerationScore = 0.5
)

// generationFormat is the JSON schema sent in the chat request's format
// field so the model answers with machine-readable output.
var generationFormat = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"answer": map[string]any{
			"type": "string",
		},
		"confidence": map[string]any{
			"type":    "number",
			"minimum": 0,
			"maximum": 1,
		},
	},
	"required": []string{"answer", "confidence"},
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model     string         `json:"model"`
	Messages  []chatMessage  `json:"messages"`
	Stream    bool           `json:"stream"`
	KeepAlive int            `json:"keep_alive"`
	Format    map[string]any `json:"format,omitempty"`
	Options   map[string]any `json:"options,omitempty"`
}

type chatResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Done bool `json:"done"`
}

// structuredAnswer is what the model returns under generationFormat.
type structuredAnswer struct {
	Answer     string  `json:"answer"`
	Confidence float64 `json:"confidence"`
}

// Generator sends grounded prompts to an Ollama-compatible /api/chat
// endpoint and parses the structured answer. Deadline failures are
// classified as GenerationTimeoutError so the ask path can retry once.
type Generator struct {
	BaseURL string
	Model   string
	Client  *http.Client
	logger  *slog.Logger
}

// NewGenerator constructs a generation client for the given endpoint and
// model. If client is nil, a default http.Client is created with a 120s
// timeout; the per-call deadline still comes from the caller's context.
func NewGenerator(baseURL, model string, logger *slog.Logger, client ...*http.Client) *Generator {
	c := &http.Client{Timeout: 120 * time.Second}
	if len(client) > 0 && client[0] != nil {
		c = client[0]
	}
	return &Generator{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Model:   model,
		Client:  c,
		logger:  logger,
	}
}

// Generate sends the prompt and returns the model's answer and its own
// support estimate. Output that does not match the schema degrades to the
// raw text with a neutral score rather than failing.
func (g *Generator) Generate(ctx context.Context, prompt string, maxTokens int) (*domain.GenerationResult, error) {
	start := time.Now()
	budget := time.Duration(0)
	if deadline, ok := ctx.Deadline(); ok {
		budget = time.Until(deadline)
	}

	options := map[string]any{"temperature": generationTemperature}
	if maxTokens > 0 {
		options["num_predict"] = maxTokens
	}
	payload, err := json.Marshal(chatRequest{
		Model:     g.Model,
		Messages:  []chatMessage{{Role: "user", Content: prompt}},
		Stream:    false,
		KeepAlive: -1,
		Format:    generationFormat,
		Options:   options,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chat request: %w", err)
	}

	url := fmt.Sprintf("%s/api/chat", g.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.Client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			g.logger.Warn("generation_timeout",
				slog.String("model", g.Model),
				slog.Duration("budget", budget))
			return nil, &domain.GenerationTimeoutError{Timeout: budget, Err: err}
		}
		return nil, fmt.Errorf("failed to call chat endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("chat endpoint returned %d: %s", resp.StatusCode, truncateString(string(body), 200))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode chat response: %w", err)
	}

	result := parseStructuredAnswer(parsed.Message.Content)
	g.logger.Debug("generation_completed",
		slog.String("model", g.Model),
		slog.Float64("score", result.Score),
		slog.Int64("elapsed_ms", time.Since(start).Milliseconds()))
	return result, nil
}

// parseStructuredAnswer decodes the schema-shaped content, falling back to
// the raw text with a neutral score when the model did not comply.
func parseStructuredAnswer(content string) *domain.GenerationResult {
	content = strings.TrimSpace(content)

	var structured structuredAnswer
	if err := json.Unmarshal([]byte(content), &structured); err == nil && strings.TrimSpace(structured.Answer) != "" {
		return &domain.GenerationResult{
			Answer: strings.TrimSpace(structured.Answer),
			Score:  clampScore(structured.Confidence),
		}
	}
	return &domain.GenerationResult{Answer: content, Score: fallbackGenerationScore}
}

func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// Version returns the wrapped model name.
func (g *Generator) Version() string { return g.Model }

var _ domain.AnswerClient = (*Generator)(nil)

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
