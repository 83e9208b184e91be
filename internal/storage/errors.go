package storage

import "errors"

var (
	ErrVectorStoreUnreachable = errors.New("vector store unreachable")
	ErrDimensionMismatch      = errors.New("embedding dimension mismatch")
	ErrEmptySelector          = errors.New("delete selector needs a source or a generation")
)
