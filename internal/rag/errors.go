package rag

import "errors"

var (
	ErrEmptyQuestion = errors.New("question is required")
	// ErrSearchFailed covers query embedding and vector index failures.
	ErrSearchFailed     = errors.New("search failed")
	ErrGenerationFailed = errors.New("generation failed")
)
