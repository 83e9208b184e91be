// Package api serves the Znatok HTTP surface.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/bull/znatok/internal/archive"
	"github.com/bull/znatok/internal/bot"
	"github.com/bull/znatok/internal/indexer"
	"github.com/bull/znatok/internal/llm"
	"github.com/bull/znatok/internal/rag"
	"github.com/bull/znatok/internal/settings"
	"github.com/bull/znatok/internal/sources"
)

const (
	maxJSONBody   = 1 << 20
	maxUploadBody = 64 << 20
	askTimeout    = 90 * time.Second
)

// Asker answers a question end to end.
type Asker interface {
	Ask(ctx context.Context, req rag.AskRequest) (*rag.AskResponse, error)
}

// Indexer is the part of the ingestion pipeline the API drives.
type Indexer interface {
	IndexBytes(ctx context.Context, source, department, contentType string, data []byte) (int, error)
	Documents(ctx context.Context) ([]indexer.Document, error)
	DeleteSource(ctx context.Context, source string) error
	Reset(ctx context.Context) error
}

// SourceRunner triggers and inspects knowledge-source synchronizers.
type SourceRunner interface {
	Run(ctx context.Context, name string) (sources.Result, error)
	Status(name string) (sources.State, error)
	Test(ctx context.Context, name string) error
}

// SettingsStore holds the persisted settings document.
type SettingsStore interface {
	Get() settings.Settings
	Replace(next settings.Settings) error
}

// HealthChecker reports vector store connectivity.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// BotSupervisor owns the Telegram bot task.
type BotSupervisor interface {
	Restart(r bot.Runnable)
	Stop()
	Running() bool
}

// Deps holds every collaborator of the HTTP layer. Bitrix24, MCP and Bots are
// optional.
type Deps struct {
	Asker    Asker
	Indexer  Indexer
	Sources  SourceRunner
	Settings SettingsStore
	Health   HealthChecker
	Archive  archive.Archive

	Bots        BotSupervisor
	NewTelegram func(token string) bot.Runnable
	Bitrix24    http.Handler
	MCP         http.Handler

	// TestProvider verifies provider credentials. Defaults to llm.Test.
	TestProvider func(ctx context.Context, kind string, cfg settings.ProviderConfig) (string, error)

	AllowedOrigins []string
	Logger         *zap.Logger
}

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	deps       Deps
	logger     *zap.Logger
	router     chi.Router
	httpServer *http.Server
}

// NewServer builds and wires all routes.
func NewServer(addr string, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Archive == nil {
		deps.Archive = archive.Nop{}
	}
	if deps.TestProvider == nil {
		deps.TestProvider = llm.Test
	}
	if len(deps.AllowedOrigins) == 0 {
		deps.AllowedOrigins = []string{"*"}
	}

	s := &Server{deps: deps, logger: logger.With(zap.String("component", "api"))}
	s.router = s.routes()
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.deps.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	r.Get("/", landingHandler)

	// Bare forms kept for existing clients.
	r.With(middleware.Timeout(askTimeout)).Post("/ask", s.handleAsk)
	r.Post("/upload", s.handleUpload)

	r.Route("/api", func(api chi.Router) {
		api.Get("/health", s.handleHealth)

		api.With(middleware.Timeout(askTimeout)).Post("/ask", s.handleAsk)
		api.Post("/upload", s.handleUpload)
		api.Get("/documents", s.handleListDocuments)
		api.Delete("/documents/{filename}", s.handleDeleteDocument)
		api.Delete("/reset-collection", s.handleReset)

		api.Route("/sources/{name}", func(src chi.Router) {
			src.Post("/sync", s.handleSync)
			src.Get("/status", s.handleSourceStatus)
			src.Post("/test", s.handleSourceTest)
		})

		api.Get("/settings", s.handleGetSettings)
		api.Post("/settings", s.handleSaveSettings)
		api.Post("/settings/test-provider", s.handleTestProvider)
		api.Post("/integrations", s.handleIntegrations)
	})

	if s.deps.Bitrix24 != nil {
		r.Method(http.MethodPost, "/bitrix24/webhook", s.deps.Bitrix24)
	}
	if s.deps.MCP != nil {
		r.Handle("/mcp", s.deps.MCP)
	}
	return r
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe runs the HTTP server until Shutdown.
func (s *Server) ListenAndServe() error {
	s.logger.Info("HTTP server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}
