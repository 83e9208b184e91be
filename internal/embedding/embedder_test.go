package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEmbeddingsServer answers /v1/embeddings with one vector per input. The
// first component is the input length so results can be told apart.
type fakeEmbeddingsServer struct {
	mu       sync.Mutex
	inputs   [][]string
	dim      int
	requests int
}

func (f *fakeEmbeddingsServer) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)

		var body struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "intfloat/multilingual-e5-large", body.Model)

		f.mu.Lock()
		f.inputs = append(f.inputs, body.Input)
		f.requests++
		f.mu.Unlock()

		data := make([]map[string]any, len(body.Input))
		for i, in := range body.Input {
			vec := make([]float64, f.dim)
			vec[0] = float64(len(in))
			data[i] = map[string]any{"object": "embedding", "index": i, "embedding": vec}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  body.Model,
			"usage":  map[string]any{"prompt_tokens": 1, "total_tokens": 1},
		})
	}
}

func newTestEmbedder(t *testing.T, dim, batchSize int) (*OpenAIEmbedder, *fakeEmbeddingsServer) {
	fake := &fakeEmbeddingsServer{dim: dim}
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)

	client, err := NewClient(ClientConfig{BaseURL: srv.URL + "/v1/"})
	require.NoError(t, err)
	return NewOpenAIEmbedder(client, "intfloat/multilingual-e5-large", dim, batchSize), fake
}

func TestEmbedQuery_UsesQueryPrefix(t *testing.T) {
	e, fake := newTestEmbedder(t, 4, 0)

	vec, err := e.EmbedQuery(context.Background(), "How many remote days?")
	require.NoError(t, err)
	require.Len(t, vec, 4)

	require.Len(t, fake.inputs, 1)
	assert.Equal(t, []string{"query: How many remote days?"}, fake.inputs[0])
}

func TestEmbedPassages_PrefixAndBatching(t *testing.T) {
	e, fake := newTestEmbedder(t, 4, 2)

	texts := []string{"one", "two", "three", "four", "five"}
	vectors, err := e.EmbedPassages(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vectors, 5)

	assert.Equal(t, 3, fake.requests)
	for i, in := range fake.inputs[0] {
		assert.True(t, strings.HasPrefix(in, PassagePrefix), "input %d missing passage prefix", i)
	}
	// Order is preserved across batches.
	assert.Equal(t, float32(len("passage: three")), vectors[2][0])
}

func TestEmbed_DimensionMismatch(t *testing.T) {
	fake := &fakeEmbeddingsServer{dim: 3}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	client, err := NewClient(ClientConfig{BaseURL: srv.URL + "/v1/"})
	require.NoError(t, err)
	e := NewOpenAIEmbedder(client, "intfloat/multilingual-e5-large", 1024, 0)

	_, err = e.EmbedQuery(context.Background(), "q")
	assert.ErrorIs(t, err, ErrUnexpectedDimension)
}

func TestEmbed_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"boom"}}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	client, err := NewClient(ClientConfig{BaseURL: srv.URL + "/v1/"})
	require.NoError(t, err)
	e := NewOpenAIEmbedder(client, "m", 4, 0)

	_, err = e.EmbedQuery(context.Background(), "q")
	assert.Error(t, err)
}

func TestNewClient_RequiresBaseURL(t *testing.T) {
	_, err := NewClient(ClientConfig{})
	assert.Error(t, err)
}

type countingEmbedder struct {
	HashEmbedder
	queries int
}

func (c *countingEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	c.queries++
	return c.HashEmbedder.EmbedQuery(ctx, text)
}

func TestWithQueryCache(t *testing.T) {
	inner := &countingEmbedder{HashEmbedder: *NewHashEmbedder(8)}
	cached := WithQueryCache(inner, 10, time.Minute, nil)

	v1, err := cached.EmbedQuery(context.Background(), "same question")
	require.NoError(t, err)
	v1[0] = 42 // callers may not corrupt the cache

	v2, err := cached.EmbedQuery(context.Background(), "same question")
	require.NoError(t, err)
	assert.Equal(t, 1, inner.queries)
	assert.NotEqual(t, float32(42), v2[0])

	_, err = cached.EmbedQuery(context.Background(), "other question")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.queries)

	assert.Same(t, Embedder(inner), WithQueryCache(inner, 0, time.Minute, nil))
}

func TestHashEmbedder(t *testing.T) {
	h := NewHashEmbedder(64)

	a, _ := h.EmbedQuery(context.Background(), "Remote work allowed")
	b, _ := h.EmbedQuery(context.Background(), "remote WORK, allowed!")
	assert.Equal(t, a, b, "case and punctuation are ignored")

	empty, _ := h.EmbedQuery(context.Background(), "  ")
	assert.Len(t, empty, 64)

	var norm float32
	for _, v := range a {
		norm += v * v
	}
	assert.InDelta(t, 1.0, norm, 1e-5)
}
