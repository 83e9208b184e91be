package storage

import (
	"context"
	"math"
	"sort"
	"sync"
)

// MemoryIndex is an in-process Index used for development and tests.
type MemoryIndex struct {
	mu        sync.RWMutex
	dimension int
	points    map[string]Point
	created   bool
}

// NewMemoryIndex creates an empty index. The collection does not exist until
// EnsureCollection is called.
func NewMemoryIndex(dimension int) *MemoryIndex {
	return &MemoryIndex{dimension: dimension, points: make(map[string]Point)}
}

func (m *MemoryIndex) EnsureCollection(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = true
	return nil
}

func (m *MemoryIndex) Upsert(ctx context.Context, points []Point) error {
	if err := checkDimensions(points, m.dimension); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = true
	for _, p := range points {
		p.Vector = append([]float32(nil), p.Vector...)
		m.points[p.ID] = p
	}
	return nil
}

func (m *MemoryIndex) Search(ctx context.Context, req SearchRequest) ([]Hit, error) {
	if len(req.Vector) != m.dimension {
		return nil, ErrDimensionMismatch
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.created {
		return nil, nil
	}

	excluded := make(map[string]struct{}, len(req.ExcludeGenerations))
	for _, g := range req.ExcludeGenerations {
		excluded[g] = struct{}{}
	}

	var hits []Hit
	for _, p := range m.points {
		if _, skip := excluded[p.Generation]; skip {
			continue
		}
		if !IsWildcardDepartment(req.Department) &&
			p.Department != req.Department && p.Department != AllDepartments {
			continue
		}
		hit := Hit{Point: p, Score: cosine(req.Vector, p.Vector)}
		hit.Vector = nil
		hits = append(hits, hit)
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if req.Limit > 0 && len(hits) > req.Limit {
		hits = hits[:req.Limit]
	}
	return hits, nil
}

func (m *MemoryIndex) Delete(ctx context.Context, sel Selector) error {
	if err := checkSelector(sel); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, p := range m.points {
		if sel.Source != "" && p.Source != sel.Source {
			continue
		}
		if sel.Generation != "" && p.Generation != sel.Generation {
			continue
		}
		if sel.ExceptGeneration != "" && p.Generation == sel.ExceptGeneration {
			continue
		}
		delete(m.points, id)
	}
	return nil
}

func (m *MemoryIndex) ListGenerations(ctx context.Context) ([]GenerationInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	agg := newGenerationAggregator()
	for _, p := range m.points {
		agg.add(p)
	}
	return agg.list(), nil
}

func (m *MemoryIndex) Reset(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.points = make(map[string]Point)
	m.created = true
	return nil
}

// Len returns the number of stored points.
func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.points)
}

func (m *MemoryIndex) Health(ctx context.Context) error { return nil }

func (m *MemoryIndex) Close() error { return nil }

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
