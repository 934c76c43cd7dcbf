package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Provider names.
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

// Index backends.
const (
	IndexChromem  = "chromem"
	IndexPgVector = "pgvector"
)

type Config struct {
	Port        string `envconfig:"PORT" default:"8085"`
	Debug       bool   `envconfig:"DEBUG" default:"false"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	SentryDSN   string `envconfig:"SENTRY_DSN"`

	// Model backend
	Provider       string `envconfig:"PROVIDER" default:"ollama"`
	OllamaURL      string `envconfig:"OLLAMA_URL"`
	OpenAIAPIKey   string `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL  string `envconfig:"OPENAI_BASE_URL"`
	ChatModel      string `envconfig:"CHAT_MODEL" default:"llama3.1:8b-instruct-q5_K_M"`
	VisionModel    string `envconfig:"VISION_MODEL" default:"llama3.2-vision:latest"`
	EmbeddingModel string `envconfig:"EMBEDDING_MODEL" default:"nomic-embed-text:latest"`
	// EmbeddingDimensions pins the vector size; zero learns it from the first embedding.
	EmbeddingDimensions int `envconfig:"EMBEDDING_DIMENSIONS" default:"0"`

	ReasoningTimeout time.Duration `envconfig:"REASONING_TIMEOUT" default:"30s"`
	EmbeddingTimeout time.Duration `envconfig:"EMBEDDING_TIMEOUT" default:"30s"`
	VisionTimeout    time.Duration `envconfig:"VISION_TIMEOUT" default:"60s"`
	SynthesisTimeout time.Duration `envconfig:"SYNTHESIS_TIMEOUT" default:"300s"`

	// Vector index
	IndexBackend    string `envconfig:"INDEX_BACKEND" default:"chromem"`
	ChromemPath     string `envconfig:"CHROMEM_PATH" default:"./chroma_db"`
	ChromemCompress bool   `envconfig:"CHROMEM_COMPRESS" default:"false"`
	Collection      string `envconfig:"COLLECTION" default:"knowledge_base"`
	DatabaseURL     string `envconfig:"DATABASE_URL"`
	DBMaxConns      int32  `envconfig:"DB_MAX_CONNS" default:"10"`

	// Raw document archive
	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"ragent-documents"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`

	// Retrieval
	ChunkSize      int    `envconfig:"CHUNK_SIZE" default:"1000"`
	ChunkOverlap   int    `envconfig:"CHUNK_OVERLAP" default:"100"`
	TopK           int    `envconfig:"TOP_K" default:"3"`
	ChunkIDScheme  string `envconfig:"CHUNK_ID_SCHEME" default:"sequence"`
	RewriteQueries bool   `envconfig:"REWRITE_QUERIES" default:"false"`

	// Async ingest
	WorkerPollInterval time.Duration `envconfig:"WORKER_POLL_INTERVAL" default:"5s"`
	RetainedJobs       int           `envconfig:"RETAINED_JOBS" default:"1000"`
	MaxBodyBytes       int64         `envconfig:"MAX_BODY_BYTES" default:"20971520"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("RAGENT", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	// Ollama's own variable is honoured when ours is unset.
	if cfg.OllamaURL == "" {
		cfg.OllamaURL = os.Getenv("OLLAMA_HOST")
	}
	if cfg.OllamaURL != "" && !strings.Contains(cfg.OllamaURL, "://") {
		cfg.OllamaURL = "http://" + cfg.OllamaURL
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks enumerated settings and cross-field requirements.
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderOllama:
	case ProviderOpenAI:
		if !c.HasOpenAI() {
			return fmt.Errorf("RAGENT_OPENAI_API_KEY or RAGENT_OPENAI_BASE_URL is required for provider %q", c.Provider)
		}
	default:
		return fmt.Errorf("unknown provider %q (want %s or %s)", c.Provider, ProviderOllama, ProviderOpenAI)
	}

	switch c.IndexBackend {
	case IndexChromem:
	case IndexPgVector:
		if c.DatabaseURL == "" {
			return fmt.Errorf("RAGENT_DATABASE_URL is required for index backend %q", c.IndexBackend)
		}
	default:
		return fmt.Errorf("unknown index backend %q (want %s or %s)", c.IndexBackend, IndexChromem, IndexPgVector)
	}

	switch c.ChunkIDScheme {
	case "sequence", "uuid":
	default:
		return fmt.Errorf("unknown chunk id scheme %q", c.ChunkIDScheme)
	}

	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("chunk overlap must be in [0, %d), got %d", c.ChunkSize, c.ChunkOverlap)
	}
	if c.TopK <= 0 {
		return fmt.Errorf("top k must be positive, got %d", c.TopK)
	}
	return nil
}

func (c *Config) HasS3() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

func (c *Config) HasOpenAI() bool {
	return c.OpenAIAPIKey != "" || c.OpenAIBaseURL != ""
}

func (c *Config) HasSentry() bool {
	return c.SentryDSN != ""
}

// TracesSampleRate samples everything in development and 10% elsewhere.
func (c *Config) TracesSampleRate() float64 {
	if c.Environment == "development" {
		return 1.0
	}
	return 0.1
}
