package rag

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/bull/znatok/internal/embedding"
	"github.com/bull/znatok/internal/storage"
)

// GenerationFilter reports the index generations searches must not see.
type GenerationFilter interface {
	HiddenGenerations() []string
}

// Retriever embeds a query, searches the index and applies the relevance gate.
type Retriever struct {
	embedder  embedding.Embedder
	index     storage.Index
	gens      GenerationFilter
	limit     int
	threshold float64
	logger    *zap.Logger
}

// NewRetriever creates a retriever. limit caps the hits requested from the
// index; threshold discards hits scoring below it afterwards.
func NewRetriever(embedder embedding.Embedder, index storage.Index, gens GenerationFilter,
	limit int, threshold float64, logger *zap.Logger) *Retriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	if limit <= 0 {
		limit = 4
	}
	return &Retriever{
		embedder:  embedder,
		index:     index,
		gens:      gens,
		limit:     limit,
		threshold: threshold,
		logger:    logger.With(zap.String("component", "retriever")),
	}
}

// Search returns ranked hits for query. A non-positive limit selects the
// configured one.
func (r *Retriever) Search(ctx context.Context, query, department string, limit int) ([]storage.Hit, error) {
	if limit <= 0 {
		limit = r.limit
	}

	vector, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits, err := r.search(ctx, vector, department, limit)
	if err != nil {
		return nil, err
	}

	kept := FilterByScore(hits, r.threshold)
	r.logger.Debug("Search complete",
		zap.String("department", department),
		zap.Int("hits", len(hits)),
		zap.Int("kept", len(kept)),
	)
	return kept, nil
}

// FilterByScore keeps hits scoring at least threshold, preserving order.
func FilterByScore(hits []storage.Hit, threshold float64) []storage.Hit {
	kept := hits[:0:0]
	for _, h := range hits {
		if h.Score >= threshold {
			kept = append(kept, h)
		}
	}
	return kept
}

// search queries the index excluding hidden generations. A re-index that
// flips generations while the query runs changes the hidden set; the query is
// then repeated once, and hits of generations hidden by the time it returns
// are dropped so a source is never answered from two runs.
func (r *Retriever) search(ctx context.Context, vector []float32, department string, limit int) ([]storage.Hit, error) {
	hidden := r.hidden()
	for attempt := 0; ; attempt++ {
		hits, err := r.index.Search(ctx, storage.SearchRequest{
			Vector:             vector,
			Department:         department,
			Limit:              limit,
			ExcludeGenerations: hidden,
		})
		if err != nil {
			return nil, fmt.Errorf("search index: %w", err)
		}

		after := r.hidden()
		if sameSet(hidden, after) {
			return hits, nil
		}
		if attempt > 0 {
			return dropGenerations(hits, after), nil
		}
		r.logger.Debug("Generations changed during search, retrying")
		hidden = after
	}
}

func (r *Retriever) hidden() []string {
	if r.gens == nil {
		return nil
	}
	return r.gens.HiddenGenerations()
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, s := range a {
		set[s] = struct{}{}
	}
	for _, s := range b {
		if _, ok := set[s]; !ok {
			return false
		}
	}
	return true
}

func dropGenerations(hits []storage.Hit, hidden []string) []storage.Hit {
	set := make(map[string]struct{}, len(hidden))
	for _, g := range hidden {
		set[g] = struct{}{}
	}
	kept := hits[:0:0]
	for _, h := range hits {
		if _, ok := set[h.Generation]; !ok {
			kept = append(kept, h)
		}
	}
	return kept
}
