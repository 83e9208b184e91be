package llm

import "errors"

var (
	// ErrProviderNotConfigured is returned when the selected provider has no
	// usable credentials.
	ErrProviderNotConfigured = errors.New("llm provider not configured")
	ErrUnknownProvider       = errors.New("unknown llm provider")
	// ErrUpstream wraps transport and protocol failures of a backend.
	ErrUpstream = errors.New("llm upstream error")
)
