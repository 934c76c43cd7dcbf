package admin

import (
	"context"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cloo-solutions/ragent/internal/config"
	"github.com/cloo-solutions/ragent/internal/database"
	"github.com/cloo-solutions/ragent/internal/domain"
	"github.com/cloo-solutions/ragent/internal/jobs"
	"github.com/cloo-solutions/ragent/internal/llm"
	"github.com/cloo-solutions/ragent/internal/ollama"
	"github.com/cloo-solutions/ragent/internal/openai"
	"github.com/cloo-solutions/ragent/internal/repository"
	"github.com/cloo-solutions/ragent/internal/service"
	"github.com/cloo-solutions/ragent/internal/storage"
)

// App holds the components shared by serve, ingest and watch. Everything is
// built once here and injected.
type App struct {
	Config       *config.Config
	Orchestrator *service.Orchestrator
	Retrieval    *service.RetrievalTool
	Jobs         JobStore
	// Archive is nil when S3 is not configured.
	Archive *storage.S3Client

	pool *pgxpool.Pool
}

// Close releases the database pool, if any.
func (a *App) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
}

// JobStore queues async ingest jobs for the HTTP handler and hands them to
// the worker.
type JobStore interface {
	jobs.IngestJobRepository
	Enqueue(ctx context.Context, documents []string, metadatas []map[string]string) (string, error)
	Get(ctx context.Context, jobID string) (*domain.IngestJob, error)
}

// BuildOptions tweak startup for one-shot commands.
type BuildOptions struct {
	SkipMigrations bool
}

// Build wires providers, index, archive and pipeline stages from cfg.
func Build(ctx context.Context, cfg *config.Config, opts BuildOptions) (*App, error) {
	provider, err := newProvider(cfg)
	if err != nil {
		return nil, err
	}

	app := &App{Config: cfg}

	index, err := app.newIndex(ctx, opts)
	if err != nil {
		app.Close()
		return nil, err
	}

	app.Archive, err = newArchive(ctx, cfg)
	if err != nil {
		app.Close()
		return nil, err
	}
	var archive service.DocumentArchive
	if app.Archive != nil {
		archive = app.Archive
	}

	embedder := service.NewEmbeddingService(provider, cfg.EmbeddingTimeout, cfg.EmbeddingDimensions)
	app.Retrieval = service.NewRetrievalTool(embedder, index, archive, service.RetrievalConfig{
		Chunk:         service.ChunkConfig{Size: cfg.ChunkSize, Overlap: cfg.ChunkOverlap},
		TopK:          cfg.TopK,
		ChunkIDScheme: cfg.ChunkIDScheme,
	})

	app.Orchestrator = service.NewOrchestrator(
		service.NewReasoningStage(provider, cfg.ChatModel, cfg.ReasoningTimeout),
		app.Retrieval,
		service.NewVisionTool(provider, cfg.VisionModel, cfg.VisionTimeout),
		service.NewSynthesisStage(provider, cfg.ChatModel, cfg.SynthesisTimeout),
		service.OrchestratorConfig{TopK: cfg.TopK, RewriteQueries: cfg.RewriteQueries, Collection: cfg.Collection},
	)

	if app.pool != nil {
		app.Jobs = repository.NewIngestJobRepository(app.pool)
		log.Println("ingest jobs: postgres")
	} else {
		app.Jobs = jobs.NewIngestQueue(cfg.RetainedJobs)
	}

	return app, nil
}

func newProvider(cfg *config.Config) (llm.Provider, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		client, err := openai.NewClient(openai.Config{
			APIKey:         cfg.OpenAIAPIKey,
			BaseURL:        cfg.OpenAIBaseURL,
			ChatModel:      cfg.ChatModel,
			EmbeddingModel: cfg.EmbeddingModel,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create openai client: %w", err)
		}
		log.Printf("using openai-compatible provider (chat model %s)", cfg.ChatModel)
		return client, nil
	default:
		client := ollama.NewClient(ollama.Config{
			BaseURL:        cfg.OllamaURL,
			ChatModel:      cfg.ChatModel,
			EmbeddingModel: cfg.EmbeddingModel,
		})
		log.Printf("connecting to ollama at %s", orDefault(cfg.OllamaURL, ollama.DefaultBaseURL))
		return client, nil
	}
}

func (a *App) newIndex(ctx context.Context, opts BuildOptions) (service.VectorIndex, error) {
	cfg := a.Config
	if cfg.IndexBackend != config.IndexPgVector {
		index, err := repository.NewChromemIndex(cfg.ChromemPath, cfg.Collection, cfg.ChromemCompress)
		if err != nil {
			return nil, err
		}
		log.Printf("vector index: chromem at %s (collection %s)", cfg.ChromemPath, cfg.Collection)
		return index, nil
	}

	if !opts.SkipMigrations {
		if err := database.Migrate(cfg.DatabaseURL); err != nil {
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	pool, err := database.NewPool(ctx, database.Config{URL: cfg.DatabaseURL, MaxConns: cfg.DBMaxConns})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	a.pool = pool
	log.Printf("vector index: pgvector (collection %s)", cfg.Collection)
	return repository.NewPgVectorIndex(pool, cfg.Collection), nil
}

func newArchive(ctx context.Context, cfg *config.Config) (*storage.S3Client, error) {
	if !cfg.HasS3() {
		return nil, nil
	}

	client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
		Endpoint:        cfg.S3Endpoint,
		Region:          cfg.S3Region,
		AccessKeyID:     cfg.S3AccessKey,
		SecretAccessKey: cfg.S3SecretKey,
		Bucket:          cfg.S3Bucket,
		UsePathStyle:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}
	if err := client.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure S3 bucket: %w", err)
	}
	log.Printf("document archive: S3 bucket '%s' ready", cfg.S3Bucket)
	return client, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
