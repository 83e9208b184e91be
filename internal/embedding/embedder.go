// Package embedding turns text into vectors for the index.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/openai/openai-go"
)

const (
	// QueryPrefix and PassagePrefix are the asymmetric e5 instructions. Search
	// text and indexed text must be prefixed differently.
	QueryPrefix   = "query: "
	PassagePrefix = "passage: "

	// DefaultBatchSize bounds the number of texts per embeddings request.
	DefaultBatchSize = 64
)

// ErrUnexpectedDimension is returned when the server answers with vectors of
// a different size than configured.
var ErrUnexpectedDimension = errors.New("unexpected embedding dimension")

// Embedder produces query and passage vectors of a fixed dimension.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	EmbedPassages(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// OpenAIEmbedder calls an OpenAI-compatible /embeddings endpoint.
type OpenAIEmbedder struct {
	client    *Client
	model     string
	dimension int
	batchSize int
}

// NewOpenAIEmbedder creates an embedder. If batchSize is 0, DefaultBatchSize is used.
func NewOpenAIEmbedder(client *Client, model string, dimension, batchSize int) *OpenAIEmbedder {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &OpenAIEmbedder{
		client:    client,
		model:     model,
		dimension: dimension,
		batchSize: batchSize,
	}
}

func (e *OpenAIEmbedder) Dimension() int { return e.dimension }

// EmbedQuery embeds a search query with the query prefix.
func (e *OpenAIEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.embed(ctx, []string{QueryPrefix + text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedPassages embeds document chunks with the passage prefix.
func (e *OpenAIEmbedder) EmbedPassages(ctx context.Context, texts []string) ([][]float32, error) {
	prefixed := make([]string, len(texts))
	for i, t := range texts {
		prefixed[i] = PassagePrefix + t
	}

	all := make([][]float32, 0, len(texts))
	for i := 0; i < len(prefixed); i += e.batchSize {
		end := min(i+e.batchSize, len(prefixed))
		vectors, err := e.embed(ctx, prefixed[i:end])
		if err != nil {
			return nil, fmt.Errorf("batch %d-%d: %w", i, end, err)
		}
		all = append(all, vectors...)
	}
	return all, nil
}

func (e *OpenAIEmbedder) embed(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := e.client.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, fmt.Errorf("embeddings request: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embeddings request: got %d vectors for %d texts", len(resp.Data), len(texts))
	}

	data := resp.Data
	sort.Slice(data, func(i, j int) bool { return data[i].Index < data[j].Index })

	vectors := make([][]float32, len(data))
	for i, d := range data {
		if len(d.Embedding) != e.dimension {
			return nil, fmt.Errorf("%w: got %d, expected %d", ErrUnexpectedDimension, len(d.Embedding), e.dimension)
		}
		vectors[i] = toFloat32(d.Embedding)
	}
	return vectors, nil
}

// toFloat32 converts []float64 to []float32.
// OpenAI API returns float64, but storage uses float32 for memory efficiency.
func toFloat32(f64 []float64) []float32 {
	f32 := make([]float32, len(f64))
	for i, v := range f64 {
		f32[i] = float32(v)
	}
	return f32
}
