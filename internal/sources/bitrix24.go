package sources

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/bull/znatok/internal/extract"
	"github.com/bull/znatok/internal/indexer"
	"github.com/bull/znatok/internal/settings"
	"github.com/bull/znatok/internal/storage"
)

// Bitrix24KB syncs articles of the Bitrix24 CRM knowledge base.
type Bitrix24KB struct {
	indexer Indexer
	http    *http.Client
	scheme  string
	logger  *zap.Logger
}

func NewBitrix24KB(idx Indexer, logger *zap.Logger) *Bitrix24KB {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bitrix24KB{
		indexer: idx,
		http:    &http.Client{Timeout: requestTimeout},
		scheme:  "https",
		logger:  logger.With(zap.String("source", NameBitrix24KB)),
	}
}

func (b *Bitrix24KB) Name() string { return NameBitrix24KB }

func (b *Bitrix24KB) State(s settings.Settings) State {
	cfg := s.KnowledgeSources.Bitrix24KB
	return State{Enabled: cfg.Enabled, Configured: cfg.Configured(), LastSync: cfg.LastSync}
}

func (b *Bitrix24KB) Advance(s *settings.Settings, watermark string) {
	s.KnowledgeSources.Bitrix24KB.LastSync = watermark
}

type bitrixArticle struct {
	ID         string `json:"ID"`
	Title      string `json:"TITLE"`
	Content    string `json:"CONTENT"`
	DateModify string `json:"DATE_MODIFY"`
}

type bitrixListResponse struct {
	Result           []bitrixArticle `json:"result"`
	Next             *int            `json:"next,omitempty"`
	Error            string          `json:"error,omitempty"`
	ErrorDescription string          `json:"error_description,omitempty"`
}

func (b *Bitrix24KB) list(ctx context.Context, cfg settings.Bitrix24KBConfig, start int) (*bitrixListResponse, error) {
	url := fmt.Sprintf("%s://%s/rest/crm/knowledge-base/article.list", b.scheme, cfg.Domain)
	var out bitrixListResponse
	err := doJSON(ctx, b.http, http.MethodPost, url,
		map[string]any{"auth": cfg.AccessToken, "start": start}, nil, &out)
	if err != nil {
		return nil, fmt.Errorf("article.list start=%d: %w", start, err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("article.list: %s: %s", out.Error, out.ErrorDescription)
	}
	return &out, nil
}

func (b *Bitrix24KB) Sync(ctx context.Context, s settings.Settings, since string) (Result, error) {
	cfg := s.KnowledgeSources.Bitrix24KB
	var res Result

	start := 0
	for {
		page, err := b.list(ctx, cfg, start)
		if err != nil {
			return res, err
		}

		for _, a := range page.Result {
			if !modifiedAfter(a.DateModify, since) {
				res.Skipped++
				continue
			}
			body, err := extract.HTMLToText(a.Content)
			if err != nil {
				b.logger.Warn("Failed to convert article", zap.String("id", a.ID), zap.Error(err))
				res.Failed++
				continue
			}
			indexItem(ctx, b.indexer, b.logger, &res, "bitrix24_kb:"+a.ID, a.Title, body)
		}

		if page.Next == nil || *page.Next <= start {
			return res, nil
		}
		start = *page.Next
	}
}

func (b *Bitrix24KB) Test(ctx context.Context, s settings.Settings) error {
	cfg := s.KnowledgeSources.Bitrix24KB
	if !cfg.Configured() {
		return ErrNotConfigured
	}
	_, err := b.list(ctx, cfg, 0)
	return err
}

// indexItem indexes title and body under source, updating res. Empty items
// are skipped, per-item errors are logged and counted.
func indexItem(ctx context.Context, idx Indexer, logger *zap.Logger, res *Result, source, title, body string) {
	text := strings.TrimSpace(body)
	if text == "" {
		res.Skipped++
		return
	}
	if title = strings.TrimSpace(title); title != "" {
		text = title + "\n\n" + text
	}

	n, err := idx.IndexText(ctx, source, storage.AllDepartments, text)
	switch {
	case errors.Is(err, indexer.ErrEmptyDocument):
		res.Skipped++
	case err != nil:
		logger.Warn("Failed to index item", zap.String("item", source), zap.Error(err))
		res.Failed++
	default:
		logger.Debug("Indexed item", zap.String("item", source), zap.Int("chunks", n))
		res.Synced++
	}
}
