package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/bull/znatok/internal/settings"
)

const compatibleTimeout = 60 * time.Second

func init() {
	Register(settings.ProviderOllama, compatibleFactory("http://localhost:11434/v1", "llama3", false))
	Register(settings.ProviderMistral, compatibleFactory("https://api.mistral.ai/v1", "mistral-small-latest", true))
	Register(settings.ProviderOpenAI, compatibleFactory("", "gpt-4o-mini", true))
}

// Compatible talks to any OpenAI-style /chat/completions endpoint.
type Compatible struct {
	client      openai.Client
	model       string
	temperature float64
	maxTokens   int
}

func compatibleFactory(defaultBaseURL, defaultModel string, needsKey bool) Factory {
	return func(cfg settings.ProviderConfig) (Provider, error) {
		if needsKey && cfg.APIKey == "" {
			return nil, fmt.Errorf("%w: %s api_key is empty", ErrProviderNotConfigured, cfg.Provider)
		}
		return NewCompatible(withDefault(cfg.BaseURL, defaultBaseURL), cfg.APIKey, withDefault(cfg.Model, defaultModel),
			cfg.Temperature, cfg.MaxTokens, compatibleTimeout), nil
	}
}

// NewCompatible creates a client. An empty baseURL selects api.openai.com.
func NewCompatible(baseURL, apiKey, model string, temperature float64, maxTokens int, timeout time.Duration) *Compatible {
	opts := []option.RequestOption{
		option.WithAPIKey(withDefault(apiKey, "none")),
		option.WithRequestTimeout(timeout),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &Compatible{
		client:      openai.NewClient(opts...),
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
	}
}

func (c *Compatible) Generate(ctx context.Context, prompt string) (string, error) {
	return chatCompletion(ctx, c.client, c.model, c.temperature, c.maxTokens, prompt)
}

func chatCompletion(ctx context.Context, client openai.Client, model string, temperature float64,
	maxTokens int, prompt string, opts ...option.RequestOption) (string, error) {
	params := openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(SystemPrompt),
			openai.UserMessage(prompt),
		},
		Model:       openai.ChatModel(model),
		Temperature: openai.Float(temperature),
	}
	if maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(maxTokens))
	}

	resp, err := client.Chat.Completions.New(ctx, params, opts...)
	if err != nil {
		return "", fmt.Errorf("%w: chat completion: %v", ErrUpstream, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices returned", ErrUpstream)
	}
	return completion(resp.Choices[0].Message.Content)
}
