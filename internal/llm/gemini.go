package llm

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"google.golang.org/genai"

	"github.com/bull/znatok/internal/settings"
)

const geminiTimeout = 60 * time.Second

func init() {
	Register(settings.ProviderGemini, func(cfg settings.ProviderConfig) (Provider, error) {
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("%w: gemini api_key is empty", ErrProviderNotConfigured)
		}
		return NewGemini(cfg, geminiTimeout)
	})
}

// Gemini uses the Google Gen AI SDK against the Gemini API backend.
type Gemini struct {
	client      *genai.Client
	model       string
	temperature float32
	maxTokens   int32
	timeout     time.Duration
}

// NewGemini builds the SDK client once. Every call is bounded by timeout.
func NewGemini(cfg settings.ProviderConfig, timeout time.Duration) (*Gemini, error) {
	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: timeout},
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(context.Background(), cc)
	if err != nil {
		return nil, fmt.Errorf("%w: gemini client: %v", ErrProviderNotConfigured, err)
	}
	return &Gemini{
		client:      client,
		model:       withDefault(cfg.Model, "gemini-2.0-flash"),
		temperature: float32(cfg.Temperature),
		maxTokens:   int32(cfg.MaxTokens),
		timeout:     timeout,
	}, nil
}

func (g *Gemini) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.client.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{{Parts: []*genai.Part{{Text: prompt}}}},
		&genai.GenerateContentConfig{
			SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: SystemPrompt}}},
			Temperature:       genai.Ptr(g.temperature),
			MaxOutputTokens:   g.maxTokens,
		},
	)
	if err != nil {
		return "", fmt.Errorf("%w: gemini generate: %v", ErrUpstream, err)
	}
	return completion(resp.Text())
}
