// Package httpapi exposes the service over HTTP: document upload, status,
// questions, reprocess and removal, plus health probes. Requests are
// validated against the embedded OpenAPI contract.
package httpapi

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"docqa/internal/domain"
	"docqa/internal/usecase"

	"github.com/labstack/echo/v4"
)

// ReadinessCheck reports whether the service's dependencies can take
// traffic. A nil check means always ready.
type ReadinessCheck func(ctx context.Context) error

type Handler struct {
	registry *usecase.DocumentRegistry
	ingest   usecase.IngestDocumentUsecase
	ask      usecase.AskQuestionUsecase
	ready    ReadinessCheck
	logger   *slog.Logger
}

func NewHandler(
	registry *usecase.DocumentRegistry,
	ingest usecase.IngestDocumentUsecase,
	ask usecase.AskQuestionUsecase,
	ready ReadinessCheck,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		registry: registry,
		ingest:   ingest,
		ask:      ask,
		ready:    ready,
		logger:   logger,
	}
}

// RegisterRoutes mounts every endpoint on the echo instance.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.POST("/v1/documents", h.UploadDocument)
	e.GET("/v1/documents/:id", h.GetDocument)
	e.POST("/v1/documents/:id/ask", h.AskQuestion)
	e.POST("/v1/documents/:id/reprocess", h.ReprocessDocument)
	e.DELETE("/v1/documents/:id", h.DeleteDocument)
	e.GET("/v1/healthz", h.Healthz)
	e.GET("/v1/readyz", h.Readyz)
}

type errorResponse struct {
	Error string `json:"error"`
}

type uploadResponse struct {
	DocumentID string `json:"document_id"`
	Status     string `json:"status"`
}

type statusResponse struct {
	DocumentID string    `json:"document_id"`
	Filename   string    `json:"filename"`
	Status     string    `json:"status"`
	Progress   float64   `json:"progress"`
	ChunkCount int       `json:"chunk_count,omitempty"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type askRequest struct {
	Question string `json:"question"`
}

type answerResponse struct {
	Answer     string  `json:"answer"`
	Sources    []int   `json:"sources"`
	Confidence float64 `json:"confidence"`
	Intent     string  `json:"intent"`
	Fallback   bool    `json:"fallback"`
	Reason     string  `json:"reason,omitempty"`
}

// Accept a document and queue ingestion.
// (POST /v1/documents)
func (h *Handler) UploadDocument(c echo.Context) error {
	var content []byte
	var filename string

	if file, err := c.FormFile("file"); err == nil {
		src, err := file.Open()
		if err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "failed to open uploaded file"})
		}
		defer src.Close()
		content, err = io.ReadAll(src)
		if err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "failed to read uploaded file"})
		}
		filename = file.Filename
	} else {
		body, err := io.ReadAll(c.Request().Body)
		if err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "failed to read request body"})
		}
		content = body
		filename = c.QueryParam("filename")
	}

	if len(bytes.TrimSpace(content)) == 0 {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "document content is required"})
	}

	out, err := h.ingest.Execute(c.Request().Context(), usecase.IngestDocumentInput{
		Filename: filename,
		Content:  content,
	})
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusAccepted, uploadResponse{DocumentID: out.DocumentID, Status: "queued"})
}

// Report a document's ingestion state.
// (GET /v1/documents/:id)
func (h *Handler) GetDocument(c echo.Context) error {
	doc, err := h.registry.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, toStatusResponse(doc))
}

// Answer a question against a completed document.
// (POST /v1/documents/:id/ask)
func (h *Handler) AskQuestion(c echo.Context) error {
	var req askRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}
	if strings.TrimSpace(req.Question) == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "question is required"})
	}

	result, err := h.ask.Execute(c.Request().Context(), usecase.AskQuestionInput{
		DocumentID: c.Param("id"),
		Question:   req.Question,
	})
	if err != nil {
		return h.writeError(c, err)
	}

	sources := result.Sources
	if sources == nil {
		sources = []int{}
	}
	return c.JSON(http.StatusOK, answerResponse{
		Answer:     result.Answer,
		Sources:    sources,
		Confidence: result.Confidence,
		Intent:     string(result.Intent),
		Fallback:   result.Fallback,
		Reason:     result.Reason,
	})
}

// Queue a completed or failed document for re-ingestion from its stored
// source.
// (POST /v1/documents/:id/reprocess)
func (h *Handler) ReprocessDocument(c echo.Context) error {
	if err := h.ingest.Reprocess(c.Request().Context(), c.Param("id")); err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusAccepted, map[string]string{"status": "queued"})
}

// Cancel any in-flight work and remove the document with its artifacts.
// (DELETE /v1/documents/:id)
func (h *Handler) DeleteDocument(c echo.Context) error {
	if err := h.registry.Remove(c.Request().Context(), c.Param("id")); err != nil {
		return h.writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Liveness probe.
// (GET /v1/healthz)
func (h *Handler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// Readiness probe: dependencies reachable and storage usable.
// (GET /v1/readyz)
func (h *Handler) Readyz(c echo.Context) error {
	if h.ready != nil {
		if err := h.ready(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"status": "unavailable",
				"error":  err.Error(),
			})
		}
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// writeError maps domain failures onto HTTP statuses.
func (h *Handler) writeError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, domain.ErrDocumentNotFound):
		return c.JSON(http.StatusNotFound, errorResponse{Error: "document not found"})
	case errors.Is(err, domain.ErrDocumentNotReady):
		return c.JSON(http.StatusConflict, errorResponse{Error: "document is not ready for questions"})
	case errors.Is(err, domain.ErrIngestionInFlight):
		return c.JSON(http.StatusConflict, errorResponse{Error: "an ingestion for this document is already in flight"})
	default:
		h.logger.Error("request_failed",
			slog.String("path", c.Path()),
			slog.String("error", err.Error()))
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
}

func toStatusResponse(doc domain.Document) statusResponse {
	return statusResponse{
		DocumentID: doc.ID,
		Filename:   doc.Filename,
		Status:     string(doc.Status),
		// Rendered as a percentage with one decimal.
		Progress:   math.Round(doc.Progress*1000) / 10,
		ChunkCount: doc.ChunkCount,
		Error:      doc.ErrorDetail,
		CreatedAt:  doc.CreatedAt,
		UpdatedAt:  doc.UpdatedAt,
	}
}
