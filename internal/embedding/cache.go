package embedding

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
)

// CachedEmbedder memoizes query vectors. Repeated questions from chat
// front ends skip the embeddings round-trip. Passages are never cached.
type CachedEmbedder struct {
	next   Embedder
	cache  *expirable.LRU[string, []float32]
	logger *zap.Logger
}

// WithQueryCache wraps e with an expiring LRU. Non-positive size or ttl
// returns e unchanged.
func WithQueryCache(e Embedder, size int, ttl time.Duration, logger *zap.Logger) Embedder {
	if e == nil || size <= 0 || ttl <= 0 {
		return e
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedEmbedder{
		next:   e,
		cache:  expirable.NewLRU[string, []float32](size, nil, ttl),
		logger: logger,
	}
}

func (c *CachedEmbedder) Dimension() int { return c.next.Dimension() }

func (c *CachedEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if cached, ok := c.cache.Get(text); ok {
		c.logger.Debug("Query embedding cache hit")
		return clone(cached), nil
	}
	vec, err := c.next.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(text, clone(vec))
	return vec, nil
}

func (c *CachedEmbedder) EmbedPassages(ctx context.Context, texts []string) ([][]float32, error) {
	return c.next.EmbedPassages(ctx, texts)
}

func clone(values []float32) []float32 {
	out := make([]float32, len(values))
	copy(out, values)
	return out
}
