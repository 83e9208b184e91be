package sources

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/bull/znatok/internal/github"
	"github.com/bull/znatok/internal/indexer"
	"github.com/bull/znatok/internal/settings"
	"github.com/bull/znatok/internal/storage"
)

// GitHubDocs syncs markdown files of a repository directory.
type GitHubDocs struct {
	indexer Indexer
	token   string
	baseURL string
	logger  *zap.Logger
}

// NewGitHubDocs creates the synchronizer. An empty baseURL means api.github.com.
func NewGitHubDocs(idx Indexer, token, baseURL string, logger *zap.Logger) *GitHubDocs {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GitHubDocs{
		indexer: idx,
		token:   token,
		baseURL: baseURL,
		logger:  logger.With(zap.String("source", NameGitHub)),
	}
}

func (g *GitHubDocs) Name() string { return NameGitHub }

func (g *GitHubDocs) State(s settings.Settings) State {
	cfg := s.KnowledgeSources.GitHub
	return State{Enabled: cfg.Enabled, Configured: cfg.Configured(), LastSync: cfg.LastSync}
}

func (g *GitHubDocs) Advance(s *settings.Settings, watermark string) {
	s.KnowledgeSources.GitHub.LastSync = watermark
}

func (g *GitHubDocs) fetcher(ctx context.Context, cfg settings.GitHubConfig) (*github.Fetcher, error) {
	client, err := github.NewClient(ctx, github.ClientOptions{Token: g.token, BaseURL: g.baseURL})
	if err != nil {
		return nil, err
	}
	return github.NewFetcher(client, cfg.Owner, cfg.Repo, cfg.Path), nil
}

func (g *GitHubDocs) Sync(ctx context.Context, s settings.Settings, since string) (Result, error) {
	cfg := s.KnowledgeSources.GitHub
	var res Result

	fetcher, err := g.fetcher(ctx, cfg)
	if err != nil {
		return res, err
	}

	commit, err := fetcher.LatestCommit(ctx)
	if err != nil {
		return res, err
	}
	if !modifiedAfter(commit.Date.UTC().Format(time.RFC3339), since) {
		g.logger.Info("No new commits since last sync", zap.String("commit", commit.SHA))
		return res, nil
	}

	paths, err := fetcher.ListDocs(ctx)
	if err != nil {
		return res, err
	}
	g.logger.Info("Found documents", zap.Int("count", len(paths)), zap.String("commit", commit.SHA))

	for _, path := range paths {
		doc, err := fetcher.FetchDoc(ctx, path)
		if err != nil {
			g.logger.Warn("Failed to fetch document", zap.String("path", path), zap.Error(err))
			res.Failed++
			continue
		}

		_, err = g.indexer.IndexBytes(ctx, "github:"+path, storage.AllDepartments, "text/markdown", []byte(doc.Content))
		switch {
		case errors.Is(err, indexer.ErrEmptyDocument):
			res.Skipped++
		case err != nil:
			g.logger.Warn("Failed to index document", zap.String("path", path), zap.Error(err))
			res.Failed++
		default:
			res.Synced++
		}
	}
	return res, nil
}

func (g *GitHubDocs) Test(ctx context.Context, s settings.Settings) error {
	cfg := s.KnowledgeSources.GitHub
	if !cfg.Configured() {
		return ErrNotConfigured
	}
	fetcher, err := g.fetcher(ctx, cfg)
	if err != nil {
		return err
	}
	_, err = fetcher.LatestCommit(ctx)
	return err
}
