// Package sources pulls articles from external knowledge bases into the index.
package sources

import (
	"context"
	"time"

	"github.com/bull/znatok/internal/settings"
)

// Source names used in routes, logs and the CLI.
const (
	NameBitrix24KB = "bitrix24-kb"
	NameConfluence = "confluence"
	NameGitHub     = "github"
)

// Indexer is the part of the ingestion pipeline synchronizers use.
type Indexer interface {
	IndexText(ctx context.Context, source, department, text string) (int, error)
	IndexBytes(ctx context.Context, source, department, contentType string, data []byte) (int, error)
}

// Result counts the items of one sweep.
type Result struct {
	Synced  int `json:"synced"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// State is the persisted view of a source.
type State struct {
	Enabled    bool   `json:"enabled"`
	Configured bool   `json:"configured"`
	LastSync   string `json:"last_sync"`
}

// Synchronizer pulls one external system. Connection details are read from
// the settings snapshot handed to each call.
type Synchronizer interface {
	Name() string
	State(s settings.Settings) State
	// Sync indexes every item modified after since. A returned error is fatal
	// for the sweep; per-item failures are counted in Result.Failed.
	Sync(ctx context.Context, s settings.Settings, since string) (Result, error)
	// Advance stores a new watermark.
	Advance(s *settings.Settings, watermark string)
	// Test checks connectivity and credentials with a cheap request.
	Test(ctx context.Context, s settings.Settings) error
}

// modifiedAfter reports whether an item modified at modified is newer than
// the watermark since. Timestamps are compared as instants when both parse,
// otherwise as strings.
func modifiedAfter(modified, since string) bool {
	if since == "" {
		return true
	}
	m, errM := time.Parse(time.RFC3339, modified)
	s, errS := time.Parse(time.RFC3339, since)
	if errM == nil && errS == nil {
		return m.After(s)
	}
	return modified > since
}
