// Package config loads service configuration from the environment, with a
// .env file picked up when present.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type ServerConfig struct {
	Port string
	// MaxConnections caps concurrently accepted connections.
	MaxConnections int
}

type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	MaxConns int32
	MinConns int32
}

func (c DBConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.Name)
}

type StorageConfig struct {
	// Backend selects the artifact store: "fs" or "postgres".
	Backend string
	// Root is the document directory of the fs backend.
	Root string
}

type OllamaConfig struct {
	BaseURL            string
	EmbeddingModel     string
	EmbeddingDimension int
	GenerationModel    string
	// RephraseModel is optional; empty disables query rephrasing.
	RephraseModel string
}

type ExtractorConfig struct {
	// RemoteURL points at the extraction service handling binary formats.
	// Empty means only plain text and markdown are accepted.
	RemoteURL string
}

type RetrievalSettings struct {
	TopK                 int
	MergedLimit          int
	SimilarityFloor      float64
	MaxVariants          int
	ContextBudgetChars   int
	GenerationTimeout    time.Duration
	MaxAnswerTokens      int
	EmbedBatchSize       int
	MaxConcurrentBatches int
}

type WorkerConfig struct {
	IngestWorkers   int
	JanitorInterval time.Duration
	MaxDocumentAge  time.Duration
	MaxDocuments    int
}

type TelemetryConfig struct {
	Enabled     bool
	Endpoint    string
	ServiceName string
	SampleRatio float64
}

type Config struct {
	Env       string
	LogLevel  string
	Server    ServerConfig
	DB        DBConfig
	Storage   StorageConfig
	Ollama    OllamaConfig
	Extractor ExtractorConfig
	Retrieval RetrievalSettings
	Worker    WorkerConfig
	Telemetry TelemetryConfig
}

// Load reads the environment into a validated Config.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			MaxConnections: getEnvInt("SERVER_MAX_CONNECTIONS", 256),
		},
		DB: DBConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "docqa"),
			Password: getSecret("DB_PASSWORD", "DB_PASSWORD_FILE", "docqa"),
			Name:     getEnv("DB_NAME", "docqa"),
			MaxConns: int32(getEnvInt("DB_MAX_CONNS", 20)),
			MinConns: int32(getEnvInt("DB_MIN_CONNS", 5)),
		},
		Storage: StorageConfig{
			Backend: getEnv("STORAGE_BACKEND", "fs"),
			Root:    getEnv("STORAGE_ROOT", "./data/documents"),
		},
		Ollama: OllamaConfig{
			BaseURL:            getEnv("OLLAMA_URL", "http://localhost:11434"),
			EmbeddingModel:     getEnv("EMBEDDING_MODEL", "all-minilm"),
			EmbeddingDimension: getEnvInt("EMBEDDING_DIMENSION", 384),
			GenerationModel:    getEnv("GENERATION_MODEL", "llama3.1"),
			RephraseModel:      getEnv("REPHRASE_MODEL", ""),
		},
		Extractor: ExtractorConfig{
			RemoteURL: getEnv("EXTRACTOR_URL", ""),
		},
		Retrieval: RetrievalSettings{
			TopK:                 getEnvInt("RETRIEVAL_TOP_K", 5),
			MergedLimit:          getEnvInt("RETRIEVAL_MERGED_LIMIT", 8),
			SimilarityFloor:      getEnvFloat64("RETRIEVAL_SIMILARITY_FLOOR", 0.25),
			MaxVariants:          getEnvInt("RETRIEVAL_MAX_VARIANTS", 5),
			ContextBudgetChars:   getEnvInt("CONTEXT_BUDGET_CHARS", 4000),
			GenerationTimeout:    time.Duration(getEnvInt("GENERATION_TIMEOUT_SECONDS", 30)) * time.Second,
			MaxAnswerTokens:      getEnvInt("ANSWER_MAX_TOKENS", 512),
			EmbedBatchSize:       getEnvInt("EMBED_BATCH_SIZE", 16),
			MaxConcurrentBatches: getEnvInt("EMBED_MAX_CONCURRENT", 2),
		},
		Worker: WorkerConfig{
			IngestWorkers:   getEnvInt("INGEST_WORKERS", 2),
			JanitorInterval: time.Duration(getEnvInt("JANITOR_INTERVAL_MINUTES", 60)) * time.Minute,
			MaxDocumentAge:  time.Duration(getEnvInt("DOCUMENT_MAX_AGE_HOURS", 24)) * time.Hour,
			MaxDocuments:    getEnvInt("DOCUMENT_MAX_COUNT", 50),
		},
		Telemetry: TelemetryConfig{
			Enabled:     getEnvBool("OTEL_ENABLED", false),
			Endpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "http://localhost:4318"),
			ServiceName: getEnv("OTEL_SERVICE_NAME", "docqa"),
			SampleRatio: getEnvFloat64("OTEL_TRACE_SAMPLE_RATIO", 1.0),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Storage.Backend {
	case "fs", "postgres":
	default:
		return fmt.Errorf("STORAGE_BACKEND must be fs or postgres, got %q", c.Storage.Backend)
	}
	if c.Storage.Backend == "fs" && c.Storage.Root == "" {
		return fmt.Errorf("STORAGE_ROOT is required for the fs backend")
	}
	if c.Ollama.EmbeddingDimension <= 0 {
		return fmt.Errorf("EMBEDDING_DIMENSION must be positive, got %d", c.Ollama.EmbeddingDimension)
	}
	if c.Retrieval.SimilarityFloor < 0 || c.Retrieval.SimilarityFloor >= 1 {
		return fmt.Errorf("RETRIEVAL_SIMILARITY_FLOOR must be in [0,1), got %f", c.Retrieval.SimilarityFloor)
	}
	if c.Retrieval.TopK <= 0 || c.Retrieval.MergedLimit <= 0 {
		return fmt.Errorf("retrieval limits must be positive")
	}
	if c.Retrieval.EmbedBatchSize <= 0 || c.Retrieval.MaxConcurrentBatches <= 0 {
		return fmt.Errorf("embedding batch settings must be positive")
	}
	if c.Worker.IngestWorkers <= 0 {
		return fmt.Errorf("INGEST_WORKERS must be positive, got %d", c.Worker.IngestWorkers)
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("OTEL_TRACE_SAMPLE_RATIO must be in [0,1], got %f", c.Telemetry.SampleRatio)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// getSecret reads a credential from the environment or from the file the
// companion *_FILE variable points at (docker secrets).
func getSecret(envKey, fileEnvKey, fallback string) string {
	if value, ok := os.LookupEnv(envKey); ok {
		return value
	}
	if filePath, ok := os.LookupEnv(fileEnvKey); ok {
		content, err := os.ReadFile(filePath)
		if err == nil {
			return strings.TrimSpace(string(content))
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvFloat64(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}
