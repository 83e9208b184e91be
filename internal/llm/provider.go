// Package llm dispatches prompts to the configured language-model backend.
package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/bull/znatok/internal/settings"
)

// SystemPrompt is sent with every request, whatever the backend.
const SystemPrompt = "Ты — корпоративный ассистент «Знаток». Отвечай кратко, по делу, на русском языке. " +
	"Если информации нет — скажи: «Не нашёл ответа в документах компании.»"

// Provider generates a completion for a single user prompt.
type Provider interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Factory builds a provider from its persisted configuration.
type Factory func(cfg settings.ProviderConfig) (Provider, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register makes a provider kind available to New.
func Register(kind string, factory Factory) {
	key := strings.ToLower(strings.TrimSpace(kind))
	if key == "" || factory == nil {
		return
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[key] = factory
}

// New builds the provider registered for kind.
func New(kind string, cfg settings.ProviderConfig) (Provider, error) {
	key := strings.ToLower(strings.TrimSpace(kind))
	registryMu.RLock()
	factory := registry[key]
	registryMu.RUnlock()
	if factory == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, kind)
	}
	return factory(cfg)
}

// Kinds lists the registered provider kinds.
func Kinds() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	kinds := make([]string, 0, len(registry))
	for k := range registry {
		kinds = append(kinds, k)
	}
	return kinds
}

// Test builds a provider from cfg and sends it a short prompt.
func Test(ctx context.Context, kind string, cfg settings.ProviderConfig) (string, error) {
	p, err := New(kind, cfg)
	if err != nil {
		return "", err
	}
	return p.Generate(ctx, "Ответь одним словом: работает?")
}

func withDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// completion validates and trims a backend answer.
func completion(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: empty completion", ErrUpstream)
	}
	return text, nil
}
