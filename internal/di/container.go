package di

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"docqa/internal/adapter/extract"
	"docqa/internal/adapter/httpapi"
	"docqa/internal/adapter/ollama"
	"docqa/internal/adapter/repository"
	"docqa/internal/domain"
	"docqa/internal/infra/config"
	"docqa/internal/infra/httpclient"
	"docqa/internal/usecase"
	"docqa/internal/worker"
)

// Client timeouts for the outbound services. These are outer bounds; the
// usecases apply their own per-call deadlines inside them.
const (
	embedderClientTimeout  = 60 * time.Second
	generatorClientTimeout = 120 * time.Second
	rephraserClientTimeout = 15 * time.Second
	extractorClientTimeout = 60 * time.Second
)

// ApplicationComponents holds all wired dependencies for the application.
type ApplicationComponents struct {
	// Storage
	Store    domain.ArtifactStore
	Registry *usecase.DocumentRegistry

	// Usecases
	IngestUsecase usecase.IngestDocumentUsecase
	AskUsecase    usecase.AskQuestionUsecase

	// Background workers
	IngestWorker *worker.IngestWorker
	Janitor      *worker.Janitor

	// Readiness probe exposed for handler wiring
	Ready httpapi.ReadinessCheck
}

// NewApplicationComponents wires all dependencies from config and, for the
// postgres backend, the database pool. The context bounds schema setup.
func NewApplicationComponents(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, log *slog.Logger) (*ApplicationComponents, error) {
	// Artifact store
	store, ready, err := newArtifactStore(ctx, cfg, pool, log)
	if err != nil {
		return nil, err
	}

	// Shared HTTP clients with connection pooling
	embedderHTTP := httpclient.NewPooledClient(embedderClientTimeout)
	generatorHTTP := httpclient.NewPooledClient(generatorClientTimeout)

	// External clients
	embedder, err := ollama.NewEmbedder(cfg.Ollama.BaseURL, cfg.Ollama.EmbeddingModel, cfg.Ollama.EmbeddingDimension, log, embedderHTTP)
	if err != nil {
		return nil, fmt.Errorf("failed to build embedder: %w", err)
	}
	generator := ollama.NewGenerator(cfg.Ollama.BaseURL, cfg.Ollama.GenerationModel, log, generatorHTTP)

	// Optional components
	var rephraser domain.RephraseClient
	if cfg.Ollama.RephraseModel != "" {
		rephraser = ollama.NewRephraser(cfg.Ollama.BaseURL, cfg.Ollama.RephraseModel, log,
			httpclient.NewPooledClient(rephraserClientTimeout))
		log.Info("query_rephrasing_enabled",
			slog.String("model", cfg.Ollama.RephraseModel))
	}
	var remote *extract.RemoteClient
	if cfg.Extractor.RemoteURL != "" {
		remote = extract.NewRemoteClient(cfg.Extractor.RemoteURL, log,
			httpclient.NewPooledClient(extractorClientTimeout))
		log.Info("remote_extraction_enabled",
			slog.String("url", cfg.Extractor.RemoteURL))
	}
	extractor := extract.NewExtractor(remote, log)

	// Domain services
	segmenter := domain.NewSegmenter(domain.DefaultSegmenterConfig())

	// Retrieval config
	retrievalConfig := usecase.RetrievalConfig{
		TopK:                 cfg.Retrieval.TopK,
		MergedLimit:          cfg.Retrieval.MergedLimit,
		SimilarityFloor:      cfg.Retrieval.SimilarityFloor,
		MaxVariants:          cfg.Retrieval.MaxVariants,
		ContextBudgetChars:   cfg.Retrieval.ContextBudgetChars,
		GenerationTimeout:    cfg.Retrieval.GenerationTimeout,
		MaxAnswerTokens:      cfg.Retrieval.MaxAnswerTokens,
		EmbedBatchSize:       cfg.Retrieval.EmbedBatchSize,
		MaxConcurrentBatches: cfg.Retrieval.MaxConcurrentBatches,
	}
	if err := retrievalConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid retrieval configuration: %w", err)
	}

	// Registry and usecases
	registry := usecase.NewDocumentRegistry(store, log)
	ingestUsecase := usecase.NewIngestDocumentUsecase(registry, store, extractor, segmenter, embedder, retrievalConfig, log)

	analyzer := usecase.NewQueryAnalyzer(rephraser, retrievalConfig.MaxVariants, log)
	retriever := usecase.NewRetriever(embedder, retrievalConfig, log)
	contextBuilder := usecase.NewContextBuilder(retrievalConfig.ContextBudgetChars)
	promptBuilder := usecase.NewGroundedPromptBuilder()
	askUsecase := usecase.NewAskQuestionUsecase(
		registry, analyzer, retriever, contextBuilder, promptBuilder,
		generator, domain.DefaultConfidencePolicy(), retrievalConfig, log,
	)

	// Workers
	ingestWorker := worker.NewIngestWorker(registry, ingestUsecase, cfg.Worker.IngestWorkers, log)
	janitorPolicy := worker.DefaultJanitorPolicy()
	janitorPolicy.MaxAge = cfg.Worker.MaxDocumentAge
	janitorPolicy.MaxDocuments = cfg.Worker.MaxDocuments
	janitor := worker.NewJanitor(store, registry, janitorPolicy, cfg.Worker.JanitorInterval, log)

	return &ApplicationComponents{
		Store:         store,
		Registry:      registry,
		IngestUsecase: ingestUsecase,
		AskUsecase:    askUsecase,
		IngestWorker:  ingestWorker,
		Janitor:       janitor,
		Ready:         ready,
	}, nil
}

// newArtifactStore builds the configured persistence backend along with the
// readiness probe that watches it.
func newArtifactStore(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, log *slog.Logger) (domain.ArtifactStore, httpapi.ReadinessCheck, error) {
	switch cfg.Storage.Backend {
	case "postgres":
		if pool == nil {
			return nil, nil, fmt.Errorf("postgres backend requires a database pool")
		}
		store := repository.NewPostgresStore(pool, log)
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, nil, err
		}
		ready := func(ctx context.Context) error {
			return pool.Ping(ctx)
		}
		return store, ready, nil
	case "fs":
		store, err := repository.NewFSStore(cfg.Storage.Root, log)
		if err != nil {
			return nil, nil, err
		}
		probe := filepath.Join(cfg.Storage.Root, ".readyz")
		ready := func(context.Context) error {
			if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
				return fmt.Errorf("storage root is not writable: %w", err)
			}
			return os.Remove(probe)
		}
		return store, ready, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}
