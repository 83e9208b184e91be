// Package app wires the Znatok components from process configuration.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/bull/znatok/internal/archive"
	"github.com/bull/znatok/internal/chunker"
	"github.com/bull/znatok/internal/config"
	"github.com/bull/znatok/internal/conversation"
	"github.com/bull/znatok/internal/embedding"
	"github.com/bull/znatok/internal/extract"
	"github.com/bull/znatok/internal/indexer"
	"github.com/bull/znatok/internal/llm"
	mcpserver "github.com/bull/znatok/internal/mcp"
	"github.com/bull/znatok/internal/rag"
	"github.com/bull/znatok/internal/settings"
	"github.com/bull/znatok/internal/sources"
	"github.com/bull/znatok/internal/storage"
)

// Version is reported by the MCP server.
const Version = "v0.3.0"

// App holds the long-lived components shared by the server and the CLI.
type App struct {
	Config       *config.Config
	Logger       *zap.Logger
	Settings     *settings.Store
	Index        storage.Index
	Pipeline     *indexer.Pipeline
	Retriever    *rag.Retriever
	Orchestrator *rag.Orchestrator
	Sources      *sources.Runner
	Archive      archive.Archive
	MCP          *mcpserver.Server
}

// New builds every component. The index is reachable and its generation view
// restored when New returns.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	initCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	store, err := settings.Load(cfg.SettingsPath, logger)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	index, err := NewIndex(initCtx, cfg)
	if err != nil {
		return nil, err
	}
	if err := index.EnsureCollection(initCtx); err != nil {
		index.Close()
		return nil, fmt.Errorf("ensure collection: %w", err)
	}
	logger.Info("Vector index ready", zap.String("backend", cfg.VectorBackend), zap.String("collection", cfg.Collection))

	embedder, err := NewEmbedder(cfg, logger)
	if err != nil {
		index.Close()
		return nil, err
	}

	arch, err := NewArchive(initCtx, cfg)
	if err != nil {
		index.Close()
		return nil, err
	}

	pipeline := indexer.NewPipeline(
		extract.NewExtractor(logger),
		chunker.NewChunker(cfg.ChunkMaxLength),
		embedder,
		index,
		logger,
	)
	if err := pipeline.Restore(initCtx); err != nil {
		index.Close()
		return nil, fmt.Errorf("restore generations: %w", err)
	}

	conversations, err := conversation.New(conversation.Config{
		TTL:      cfg.ConversationTTL,
		Capacity: cfg.ConversationCapacity,
		SweepAt:  cfg.ConversationSweepAt,
		MaxTurns: cfg.HistoryTurns,
	}, nil)
	if err != nil {
		index.Close()
		return nil, err
	}

	retriever := rag.NewRetriever(embedder, index, pipeline, cfg.SearchLimit, cfg.ScoreThreshold, logger)
	orchestrator := rag.NewOrchestrator(retriever, llm.NewRouter(store, logger), conversations, logger)

	runner := sources.NewRunner(store, logger,
		sources.NewBitrix24KB(pipeline, logger),
		sources.NewConfluence(pipeline, logger),
		sources.NewGitHubDocs(pipeline, cfg.GitHubToken, "", logger),
	)

	return &App{
		Config:       cfg,
		Logger:       logger,
		Settings:     store,
		Index:        index,
		Pipeline:     pipeline,
		Retriever:    retriever,
		Orchestrator: orchestrator,
		Sources:      runner,
		Archive:      arch,
		MCP: mcpserver.NewServer(&mcpserver.Config{
			Asker:    orchestrator,
			Searcher: retriever,
			Lister:   pipeline,
			Version:  Version,
			Logger:   logger,
		}),
	}, nil
}

// Close releases the index connection.
func (a *App) Close() {
	if a.Index != nil {
		if err := a.Index.Close(); err != nil {
			a.Logger.Warn("Failed to close index", zap.Error(err))
		}
	}
}

// NewIndex connects the configured vector backend.
func NewIndex(ctx context.Context, cfg *config.Config) (storage.Index, error) {
	switch cfg.VectorBackend {
	case "memory":
		return storage.NewMemoryIndex(cfg.EmbeddingDim), nil
	case "pgvector":
		s, err := storage.NewPgvectorStorage(ctx, cfg.DatabaseURL, cfg.Collection, cfg.EmbeddingDim)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		return s, nil
	default:
		s, err := storage.NewQdrantStorage(ctx, storage.QdrantConfig{
			Host:       cfg.QdrantHost,
			Port:       cfg.QdrantPort,
			APIKey:     cfg.QdrantAPIKey,
			UseTLS:     cfg.QdrantUseTLS,
			Collection: cfg.Collection,
			Dimension:  cfg.EmbeddingDim,
		})
		if err != nil {
			return nil, fmt.Errorf("connect to qdrant at %s:%d: %w", cfg.QdrantHost, cfg.QdrantPort, err)
		}
		return s, nil
	}
}

// NewEmbedder returns the configured embedder with the query cache in front.
func NewEmbedder(cfg *config.Config, logger *zap.Logger) (embedding.Embedder, error) {
	var base embedding.Embedder
	switch cfg.EmbeddingBackend {
	case "hash":
		logger.Warn("Using offline hash embeddings, retrieval quality is reduced")
		base = embedding.NewHashEmbedder(cfg.EmbeddingDim)
	default:
		client, err := embedding.NewClient(embedding.ClientConfig{
			BaseURL: cfg.EmbeddingBaseURL,
			APIKey:  cfg.EmbeddingAPIKey,
		})
		if err != nil {
			return nil, fmt.Errorf("create embedding client: %w", err)
		}
		base = embedding.NewOpenAIEmbedder(client, cfg.EmbeddingModel, cfg.EmbeddingDim, 0)
	}
	return embedding.WithQueryCache(base, cfg.EmbedCacheSize, cfg.EmbedCacheTTL, logger), nil
}

// NewArchive returns the configured store for uploaded originals.
func NewArchive(ctx context.Context, cfg *config.Config) (archive.Archive, error) {
	switch cfg.ArchiveBackend {
	case "none":
		return archive.Nop{}, nil
	case "s3":
		a, err := archive.NewS3(ctx, archive.S3Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.AWSRegion,
			AccessKey: cfg.AWSAccessKey,
			SecretKey: cfg.AWSSecretKey,
			Endpoint:  cfg.S3Endpoint,
			Prefix:    "uploads/",
		})
		if err != nil {
			return nil, fmt.Errorf("create s3 archive: %w", err)
		}
		return a, nil
	default:
		a, err := archive.NewLocal(cfg.UploadDir)
		if err != nil {
			return nil, err
		}
		return a, nil
	}
}

// NewLogger builds the root logger. "debug" selects development output.
func NewLogger(level string) (*zap.Logger, error) {
	if level == "debug" {
		return zap.NewDevelopment()
	}
	zcfg := zap.NewProductionConfig()
	if lvl, err := zap.ParseAtomicLevel(level); err == nil {
		zcfg.Level = lvl
	}
	return zcfg.Build()
}
