package llm

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/bull/znatok/internal/settings"
)

// SettingsSource is the part of the settings store the router reads.
type SettingsSource interface {
	Get() settings.Settings
}

type cachedProvider struct {
	cfg      settings.ProviderConfig
	provider Provider
}

// Router resolves the current provider from settings on every call, so a
// settings change takes effect on the next question. Built providers are
// reused while their configuration is unchanged, which keeps token caches.
type Router struct {
	settings SettingsSource
	logger   *zap.Logger

	mu    sync.Mutex
	built map[string]cachedProvider
}

func NewRouter(src SettingsSource, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		settings: src,
		logger:   logger.With(zap.String("component", "llm")),
		built:    make(map[string]cachedProvider),
	}
}

// Generate sends prompt to the current provider.
func (r *Router) Generate(ctx context.Context, prompt string) (string, error) {
	kind, p, err := r.current()
	if err != nil {
		return "", err
	}
	answer, err := p.Generate(ctx, prompt)
	if err != nil {
		r.logger.Warn("Generation failed", zap.String("provider", kind), zap.Error(err))
		return "", err
	}
	r.logger.Debug("Generated answer", zap.String("provider", kind), zap.Int("length", len(answer)))
	return answer, nil
}

func (r *Router) current() (string, Provider, error) {
	s := r.settings.Get()
	kind := s.CurrentProvider
	cfg, ok := s.Providers[kind]
	if !ok {
		return kind, nil, fmt.Errorf("%w: %s has no configuration", ErrProviderNotConfigured, kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.built[kind]; ok && c.cfg == cfg {
		return kind, c.provider, nil
	}
	p, err := New(kind, cfg)
	if err != nil {
		return kind, nil, err
	}
	r.built[kind] = cachedProvider{cfg: cfg, provider: p}
	return kind, p, nil
}
