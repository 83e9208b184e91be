package storage

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPoint(source, department, generation string, vec ...float32) Point {
	return Point{
		ID:         uuid.New().String(),
		Vector:     vec,
		Text:       "text of " + source,
		Source:     source,
		Department: department,
		Generation: generation,
		UploadedAt: time.Now().UTC(),
	}
}

func sources(hits []Hit) []string {
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.Source
	}
	return out
}

func TestMemoryIndex_SearchMissingCollection(t *testing.T) {
	idx := NewMemoryIndex(2)
	hits, err := idx.Search(context.Background(), SearchRequest{Vector: []float32{1, 0}, Limit: 4})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestMemoryIndex_DepartmentFilter(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex(2)
	require.NoError(t, idx.EnsureCollection(ctx))
	require.NoError(t, idx.Upsert(ctx, []Point{
		newPoint("budget.pdf", "finance", "g1", 1, 0),
		newPoint("handbook.pdf", "all", "g2", 1, 0.1),
	}))

	tests := []struct {
		name       string
		department string
		want       []string
	}{
		{"other department never sees finance", "hr", []string{"handbook.pdf"}},
		{"own department", "finance", []string{"budget.pdf", "handbook.pdf"}},
		{"wildcard", "all", []string{"budget.pdf", "handbook.pdf"}},
		{"absent", "", []string{"budget.pdf", "handbook.pdf"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hits, err := idx.Search(ctx, SearchRequest{Vector: []float32{1, 0}, Department: tt.department, Limit: 4})
			require.NoError(t, err)
			assert.Equal(t, tt.want, sources(hits))
		})
	}
}

func TestMemoryIndex_RankingAndLimit(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex(2)
	require.NoError(t, idx.Upsert(ctx, []Point{
		newPoint("far", "all", "g", 0, 1),
		newPoint("near", "all", "g", 1, 0),
		newPoint("mid", "all", "g", 1, 1),
	}))

	hits, err := idx.Search(ctx, SearchRequest{Vector: []float32{1, 0}, Limit: 2})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, []string{"near", "mid"}, sources(hits))
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
	assert.InDelta(t, 0.7071, hits[1].Score, 1e-3)
	assert.Nil(t, hits[0].Vector)
}

func TestMemoryIndex_ExcludeGenerations(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex(2)
	require.NoError(t, idx.Upsert(ctx, []Point{
		newPoint("doc", "all", "old", 1, 0),
		newPoint("doc", "all", "new", 1, 0),
	}))

	hits, err := idx.Search(ctx, SearchRequest{Vector: []float32{1, 0}, Limit: 4, ExcludeGenerations: []string{"old"}})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "new", hits[0].Generation)
}

func TestMemoryIndex_Delete(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex(2)
	require.NoError(t, idx.Upsert(ctx, []Point{
		newPoint("a", "all", "a1", 1, 0),
		newPoint("a", "all", "a2", 1, 0),
		newPoint("b", "all", "b1", 1, 0),
	}))

	require.ErrorIs(t, idx.Delete(ctx, Selector{}), ErrEmptySelector)

	require.NoError(t, idx.Delete(ctx, Selector{Source: "a", ExceptGeneration: "a2"}))
	assert.Equal(t, 2, idx.Len())

	require.NoError(t, idx.Delete(ctx, Selector{Generation: "b1"}))
	assert.Equal(t, 1, idx.Len())

	require.NoError(t, idx.Delete(ctx, Selector{Source: "a"}))
	assert.Equal(t, 0, idx.Len())
}

func TestMemoryIndex_DimensionMismatch(t *testing.T) {
	idx := NewMemoryIndex(3)
	err := idx.Upsert(context.Background(), []Point{newPoint("x", "all", "g", 1, 0)})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestMemoryIndex_ListGenerationsAndReset(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex(2)

	older := newPoint("doc", "hr", "old", 1, 0)
	older.UploadedAt = time.Now().Add(-time.Hour)
	require.NoError(t, idx.Upsert(ctx, []Point{
		older,
		newPoint("doc", "hr", "new", 1, 0),
		newPoint("doc", "hr", "new", 0, 1),
		newPoint("other", "all", "x", 0, 1),
	}))

	gens, err := idx.ListGenerations(ctx)
	require.NoError(t, err)
	require.Len(t, gens, 3)
	assert.Equal(t, "doc", gens[0].Source)
	assert.Equal(t, "new", gens[0].Generation, "newest generation first within a source")
	assert.Equal(t, 2, gens[0].Chunks)
	assert.Equal(t, "old", gens[1].Generation)
	assert.Equal(t, "other", gens[2].Source)

	require.NoError(t, idx.Reset(ctx))
	assert.Equal(t, 0, idx.Len())
}
