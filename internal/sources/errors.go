package sources

import "errors"

var (
	// ErrSyncAborted marks a sweep that stopped on a fatal error. The
	// watermark is left unchanged.
	ErrSyncAborted    = errors.New("sync aborted")
	ErrNotConfigured  = errors.New("source is disabled or not configured")
	ErrSyncInProgress = errors.New("sync already in progress")
	ErrUnknownSource  = errors.New("unknown source")
)
