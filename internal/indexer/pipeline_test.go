package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/znatok/internal/chunker"
	"github.com/bull/znatok/internal/embedding"
	"github.com/bull/znatok/internal/extract"
	"github.com/bull/znatok/internal/storage"
)

const testDim = 64

const policyV1 = "Remote work is allowed three days a week. Approval from a manager is required. Equipment is provided by the company."
const policyV2 = "Remote work is allowed two days a week. Approval is required."

var errInjected = errors.New("injected failure")

// flakyIndex fails selected operations on top of an in-memory index.
type flakyIndex struct {
	*storage.MemoryIndex
	mu         sync.Mutex
	failUpsert bool
	failDelete bool
}

func (f *flakyIndex) set(upsert, del bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failUpsert, f.failDelete = upsert, del
}

func (f *flakyIndex) Upsert(ctx context.Context, points []storage.Point) error {
	f.mu.Lock()
	fail := f.failUpsert
	f.mu.Unlock()
	if fail {
		// Simulate a partial write before the failure.
		_ = f.MemoryIndex.Upsert(ctx, points[:len(points)/2+1])
		return errInjected
	}
	return f.MemoryIndex.Upsert(ctx, points)
}

func (f *flakyIndex) Delete(ctx context.Context, sel storage.Selector) error {
	f.mu.Lock()
	fail := f.failDelete
	f.mu.Unlock()
	if fail {
		return errInjected
	}
	return f.MemoryIndex.Delete(ctx, sel)
}

func newTestPipeline(t *testing.T, idx storage.Index) *Pipeline {
	t.Helper()
	require.NoError(t, idx.EnsureCollection(context.Background()))
	return NewPipeline(
		extract.NewExtractor(nil),
		chunker.NewChunker(40),
		embedding.NewHashEmbedder(testDim),
		idx,
		nil,
	)
}

// visibleTexts returns every chunk a search would currently see.
func visibleTexts(t *testing.T, p *Pipeline, idx storage.Index) []string {
	t.Helper()
	q, err := embedding.NewHashEmbedder(testDim).EmbedQuery(context.Background(), "remote work")
	require.NoError(t, err)
	hits, err := idx.Search(context.Background(), storage.SearchRequest{
		Vector:             q,
		Limit:              1000,
		ExcludeGenerations: p.HiddenGenerations(),
	})
	require.NoError(t, err)
	texts := make([]string, len(hits))
	for i, h := range hits {
		texts[i] = h.Text
	}
	return texts
}

func TestIndexText_ReindexIsIdempotent(t *testing.T) {
	ctx := context.Background()
	idx := storage.NewMemoryIndex(testDim)
	p := newTestPipeline(t, idx)

	want := len(chunker.NewChunker(40).Chunk(policyV1))
	require.Greater(t, want, 1)

	for i := 0; i < 3; i++ {
		n, err := p.IndexText(ctx, "policy.txt", "hr", policyV1)
		require.NoError(t, err)
		assert.Equal(t, want, n)
		assert.Equal(t, want, idx.Len(), "re-index %d must replace, not append", i)
	}

	gens, err := idx.ListGenerations(ctx)
	require.NoError(t, err)
	require.Len(t, gens, 1)
	assert.Equal(t, "hr", gens[0].Department)
	assert.Empty(t, p.HiddenGenerations())
}

func TestIndexText_ReplacesContent(t *testing.T) {
	ctx := context.Background()
	idx := storage.NewMemoryIndex(testDim)
	p := newTestPipeline(t, idx)

	_, err := p.IndexText(ctx, "policy.txt", "", policyV1)
	require.NoError(t, err)
	n, err := p.IndexText(ctx, "policy.txt", "", policyV2)
	require.NoError(t, err)

	assert.Equal(t, n, idx.Len())
	texts := visibleTexts(t, p, idx)
	assert.Len(t, texts, n)
	assert.NotContains(t, texts, "Equipment is provided by the company.")

	gens, err := idx.ListGenerations(ctx)
	require.NoError(t, err)
	require.Len(t, gens, 1)
	assert.Equal(t, storage.AllDepartments, gens[0].Department)
}

func TestIndexText_EmptyDocument(t *testing.T) {
	idx := storage.NewMemoryIndex(testDim)
	p := newTestPipeline(t, idx)

	_, err := p.IndexText(context.Background(), "blank.txt", "", "   \n ")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEmptyDocument))
	assert.Zero(t, idx.Len())

	_, err = p.IndexText(context.Background(), "", "", policyV1)
	assert.ErrorIs(t, err, ErrEmptySource)
}

func TestIndexText_UpsertFailureKeepsPrevious(t *testing.T) {
	ctx := context.Background()
	idx := &flakyIndex{MemoryIndex: storage.NewMemoryIndex(testDim)}
	p := newTestPipeline(t, idx)

	v1, err := p.IndexText(ctx, "policy.txt", "", policyV1)
	require.NoError(t, err)

	idx.set(true, false)
	_, err = p.IndexText(ctx, "policy.txt", "", policyV2)
	require.ErrorIs(t, err, errInjected)

	// The partial write was cleaned up.
	assert.Equal(t, v1, idx.Len())
	assert.Len(t, visibleTexts(t, p, idx), v1)
	assert.Empty(t, p.HiddenGenerations())
}

func TestIndexText_PartialWriteStaysHidden(t *testing.T) {
	ctx := context.Background()
	idx := &flakyIndex{MemoryIndex: storage.NewMemoryIndex(testDim)}
	p := newTestPipeline(t, idx)

	v1, err := p.IndexText(ctx, "policy.txt", "", policyV1)
	require.NoError(t, err)

	idx.set(true, true)
	_, err = p.IndexText(ctx, "policy.txt", "", policyV2)
	require.Error(t, err)

	assert.Greater(t, idx.Len(), v1, "partial points remain in storage")
	assert.Len(t, visibleTexts(t, p, idx), v1, "but are never visible")
	assert.Len(t, p.HiddenGenerations(), 1)

	docs, err := p.Documents(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, v1, docs[0].Chunks)
}

func TestIndexText_StaleDeleteFailureHidesOld(t *testing.T) {
	ctx := context.Background()
	idx := &flakyIndex{MemoryIndex: storage.NewMemoryIndex(testDim)}
	p := newTestPipeline(t, idx)

	v1, err := p.IndexText(ctx, "policy.txt", "", policyV1)
	require.NoError(t, err)

	idx.set(false, true)
	v2, err := p.IndexText(ctx, "policy.txt", "", policyV2)
	require.NoError(t, err, "a failed cleanup is not an indexing failure")

	assert.Equal(t, v1+v2, idx.Len())
	assert.Len(t, visibleTexts(t, p, idx), v2)

	docs, err := p.Documents(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, v2, docs[0].Chunks)

	// The next successful run removes every older generation.
	idx.set(false, false)
	v3, err := p.IndexText(ctx, "policy.txt", "", policyV1)
	require.NoError(t, err)
	assert.Equal(t, v3, idx.Len())
	assert.Empty(t, p.HiddenGenerations())
}

func TestIndexText_ConcurrentSameSource(t *testing.T) {
	ctx := context.Background()
	idx := storage.NewMemoryIndex(testDim)
	p := newTestPipeline(t, idx)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			text := policyV1
			if i%2 == 0 {
				text = policyV2
			}
			_, err := p.IndexText(ctx, "policy.txt", "", text)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	gens, err := idx.ListGenerations(ctx)
	require.NoError(t, err)
	require.Len(t, gens, 1)
	assert.Equal(t, gens[0].Chunks, idx.Len())
	assert.Empty(t, p.HiddenGenerations())
}

func TestRestore(t *testing.T) {
	ctx := context.Background()
	idx := storage.NewMemoryIndex(testDim)
	require.NoError(t, idx.EnsureCollection(ctx))

	vec := make([]float32, testDim)
	vec[0] = 1
	old := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	seed := func(source, gen string, at time.Time, n int) {
		points := make([]storage.Point, n)
		for i := range points {
			points[i] = storage.Point{
				ID: fmt.Sprintf("%s-%s-%d", source, gen, i), Vector: vec, Text: "chunk",
				Source: source, Department: "all", Generation: gen, ChunkIndex: i, UploadedAt: at,
			}
		}
		require.NoError(t, idx.Upsert(ctx, points))
	}
	seed("policy.txt", "gen-old", old, 3)
	seed("policy.txt", "gen-new", old.Add(time.Hour), 2)
	seed("faq.txt", "gen-faq", old, 1)

	p := newTestPipeline(t, idx)
	require.NoError(t, p.Restore(ctx))

	assert.Equal(t, 3, idx.Len())
	assert.Empty(t, p.HiddenGenerations())

	docs, err := p.Documents(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "faq.txt", docs[0].Source)
	assert.Equal(t, "policy.txt", docs[1].Source)
	assert.Equal(t, 2, docs[1].Chunks)
}

func TestDeleteSourceAndReset(t *testing.T) {
	ctx := context.Background()
	idx := storage.NewMemoryIndex(testDim)
	p := newTestPipeline(t, idx)

	_, err := p.IndexText(ctx, "policy.txt", "", policyV1)
	require.NoError(t, err)
	faq, err := p.IndexText(ctx, "faq.txt", "it", policyV2)
	require.NoError(t, err)

	require.NoError(t, p.DeleteSource(ctx, "policy.txt"))
	assert.Equal(t, faq, idx.Len())

	docs, err := p.Documents(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "faq.txt", docs[0].Source)
	assert.Equal(t, "it", docs[0].Department)

	require.NoError(t, p.Reset(ctx))
	assert.Zero(t, idx.Len())
}

func TestIndexAll(t *testing.T) {
	ctx := context.Background()
	idx := storage.NewMemoryIndex(testDim)
	p := newTestPipeline(t, idx)

	path := filepath.Join(t.TempDir(), "policy.txt")
	require.NoError(t, os.WriteFile(path, []byte(policyV1), 0o644))

	result := p.IndexAll(ctx, []Input{
		{Source: "policy.txt", Path: path},
		{Source: "faq.txt", Data: []byte(policyV2)},
		{Source: "blank.txt", Data: []byte("  ")},
		{Source: "github:docs/a.md", Text: "Deployments run on Fridays."},
	})

	assert.Equal(t, 4, result.TotalDocs)
	assert.Equal(t, 3, result.SuccessfulDocs)
	require.Len(t, result.FailedDocs, 1)
	assert.Equal(t, "blank.txt", result.FailedDocs[0].Source)
	assert.Equal(t, result.TotalChunks, idx.Len())
}
