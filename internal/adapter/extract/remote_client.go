package extract

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"docqa/internal/domain"
)

type remoteExtractRequest struct {
	Filename string `json:"filename"`
	// Content is the raw upload, base64-encoded.
	Content string `json:"content"`
}

type remoteExtractResponse struct {
	Pages []domain.Page `json:"pages"`
}

// RemoteClient calls the sibling extraction service that converts binary
// formats (PDF and friends) into page-segmented text.
type RemoteClient struct {
	BaseURL string
	Client  *http.Client
	logger  *slog.Logger
}

// NewRemoteClient constructs an extraction-service client. If client is
// nil, a default http.Client is created with a 60s timeout; large PDFs
// take a while.
func NewRemoteClient(baseURL string, logger *slog.Logger, client ...*http.Client) *RemoteClient {
	c := &http.Client{Timeout: 60 * time.Second}
	if len(client) > 0 && client[0] != nil {
		c = client[0]
	}
	return &RemoteClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  c,
		logger:  logger,
	}
}

// Extract sends the raw upload to the extraction service and returns its
// pages. Page numbers are renumbered sequentially when the service omits
// them.
func (c *RemoteClient) Extract(ctx context.Context, raw []byte, filename string) ([]domain.Page, error) {
	start := time.Now()

	payload, err := json.Marshal(remoteExtractRequest{
		Filename: filename,
		Content:  base64.StdEncoding.EncodeToString(raw),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal extract request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/extract", c.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create extract request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Client.Do(req)
	if err != nil {
		c.logger.Warn("remote_extraction_failed",
			slog.String("filename", filename),
			slog.String("error", err.Error()),
			slog.Int64("elapsed_ms", time.Since(start).Milliseconds()))
		return nil, fmt.Errorf("failed to call extract endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("extract endpoint returned %d: %s", resp.StatusCode, string(body))
	}

	var parsed remoteExtractResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode extract response: %w", err)
	}

	for i := range parsed.Pages {
		if parsed.Pages[i].Number <= 0 {
			parsed.Pages[i].Number = i + 1
		}
	}

	c.logger.Info("remote_extraction_completed",
		slog.String("filename", filename),
		slog.Int("page_count", len(parsed.Pages)),
		slog.Int64("elapsed_ms", time.Since(start).Milliseconds()))
	return parsed.Pages, nil
}
