package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/bull/znatok/internal/extract"
	"github.com/bull/znatok/internal/settings"
)

const confluencePageSize = 25

// Confluence syncs the pages of one Confluence space.
type Confluence struct {
	indexer  Indexer
	http     *http.Client
	pageSize int
	logger   *zap.Logger
}

func NewConfluence(idx Indexer, logger *zap.Logger) *Confluence {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Confluence{
		indexer:  idx,
		http:     &http.Client{Timeout: requestTimeout},
		pageSize: confluencePageSize,
		logger:   logger.With(zap.String("source", NameConfluence)),
	}
}

func (c *Confluence) Name() string { return NameConfluence }

func (c *Confluence) State(s settings.Settings) State {
	cfg := s.KnowledgeSources.Confluence
	return State{Enabled: cfg.Enabled, Configured: cfg.Configured(), LastSync: cfg.LastSync}
}

func (c *Confluence) Advance(s *settings.Settings, watermark string) {
	s.KnowledgeSources.Confluence.LastSync = watermark
}

type confluencePage struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Body  struct {
		Storage struct {
			Value string `json:"value"`
		} `json:"storage"`
	} `json:"body"`
	Version struct {
		When   string `json:"when"`
		Number int    `json:"number"`
	} `json:"version"`
}

type confluenceContentResponse struct {
	Results []confluencePage `json:"results"`
	Size    int              `json:"size"`
}

func (c *Confluence) get(ctx context.Context, cfg settings.ConfluenceConfig, path string, query url.Values, out any) error {
	u := strings.TrimRight(cfg.BaseURL, "/") + path + "?" + query.Encode()
	return doJSON(ctx, c.http, http.MethodGet, u, nil, func(r *http.Request) {
		r.SetBasicAuth(cfg.Email, cfg.APIToken)
	}, out)
}

func (c *Confluence) Sync(ctx context.Context, s settings.Settings, since string) (Result, error) {
	cfg := s.KnowledgeSources.Confluence
	var res Result

	for start := 0; ; start += c.pageSize {
		query := url.Values{
			"spaceKey": {cfg.SpaceKey},
			"type":     {"page"},
			"expand":   {"body.storage,version"},
			"start":    {fmt.Sprint(start)},
			"limit":    {fmt.Sprint(c.pageSize)},
		}
		var page confluenceContentResponse
		if err := c.get(ctx, cfg, "/rest/api/content", query, &page); err != nil {
			return res, fmt.Errorf("list content start=%d: %w", start, err)
		}

		for _, p := range page.Results {
			if !modifiedAfter(p.Version.When, since) {
				res.Skipped++
				continue
			}
			body, err := extract.HTMLToText(p.Body.Storage.Value)
			if err != nil {
				c.logger.Warn("Failed to convert page", zap.String("id", p.ID), zap.Error(err))
				res.Failed++
				continue
			}
			indexItem(ctx, c.indexer, c.logger, &res, "confluence:"+p.ID, p.Title, body)
		}

		if len(page.Results) < c.pageSize {
			return res, nil
		}
	}
}

func (c *Confluence) Test(ctx context.Context, s settings.Settings) error {
	cfg := s.KnowledgeSources.Confluence
	if !cfg.Configured() {
		return ErrNotConfigured
	}
	return c.get(ctx, cfg, "/rest/api/space", url.Values{"limit": {"1"}}, nil)
}
