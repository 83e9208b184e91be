// Package storage provides the vector index the pipeline reads and writes.
package storage

import (
	"context"
	"fmt"
)

// Index is a named collection of (vector, payload) points.
type Index interface {
	// EnsureCollection creates the collection when missing. Idempotent.
	EnsureCollection(ctx context.Context) error
	Upsert(ctx context.Context, points []Point) error
	// Search returns hits ranked by cosine similarity, descending. A collection
	// that does not exist yet yields no hits and no error.
	Search(ctx context.Context, req SearchRequest) ([]Hit, error)
	Delete(ctx context.Context, sel Selector) error
	ListGenerations(ctx context.Context) ([]GenerationInfo, error)
	// Reset drops the collection and recreates it empty.
	Reset(ctx context.Context) error
	Health(ctx context.Context) error
	Close() error
}

func checkDimensions(points []Point, dim int) error {
	for i, p := range points {
		if len(p.Vector) != dim {
			return fmt.Errorf("%w: point %d has %d dimensions, expected %d",
				ErrDimensionMismatch, i, len(p.Vector), dim)
		}
	}
	return nil
}

func checkSelector(sel Selector) error {
	if sel.Source == "" && sel.Generation == "" {
		return ErrEmptySelector
	}
	return nil
}
