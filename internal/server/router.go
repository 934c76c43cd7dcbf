package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cloo-solutions/ragent/internal/api"
	"github.com/cloo-solutions/ragent/internal/api/handlers"
	"github.com/cloo-solutions/ragent/internal/api/middleware"
)

type RouterConfig struct {
	ChatHandler   *handlers.ChatHandler
	IngestHandler *handlers.IngestHandler
	// MaxBodyBytes caps request bodies; zero uses the default.
	MaxBodyBytes int64
}

const defaultMaxBodyBytes int64 = 20 * 1024 * 1024

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	maxBodyBytes := cfg.MaxBodyBytes
	if maxBodyBytes == 0 {
		maxBodyBytes = defaultMaxBodyBytes
	}

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog)
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/chat/stream", cfg.ChatHandler.Stream)

	r.Route("/ingest", func(r chi.Router) {
		r.Post("/", cfg.IngestHandler.Ingest)
		r.Get("/jobs/{id}", cfg.IngestHandler.GetJob)
	})

	return r
}
