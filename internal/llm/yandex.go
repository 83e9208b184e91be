package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bull/znatok/internal/settings"
)

const (
	yandexCompletionURL = "https://llm.api.cloud.yandex.net/foundationModels/v1/completion"
	yandexTimeout       = 30 * time.Second
)

func init() {
	Register(settings.ProviderYandexGPT, func(cfg settings.ProviderConfig) (Provider, error) {
		if cfg.APIKey == "" || cfg.FolderID == "" {
			return nil, fmt.Errorf("%w: yandex_gpt needs api_key and folder_id", ErrProviderNotConfigured)
		}
		return NewYandexGPT(cfg, withDefault(cfg.BaseURL, yandexCompletionURL)), nil
	})
}

// YandexGPT calls the Foundation Models completion API.
type YandexGPT struct {
	endpoint    string
	apiKey      string
	folderID    string
	modelURI    string
	temperature float64
	maxTokens   int
	http        *http.Client
}

func NewYandexGPT(cfg settings.ProviderConfig, endpoint string) *YandexGPT {
	return &YandexGPT{
		endpoint:    endpoint,
		apiKey:      cfg.APIKey,
		folderID:    cfg.FolderID,
		modelURI:    fmt.Sprintf("gpt://%s/%s", cfg.FolderID, withDefault(cfg.Model, "yandexgpt-lite")),
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		http:        &http.Client{Timeout: yandexTimeout},
	}
}

type yandexMessage struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

type yandexRequest struct {
	ModelURI          string `json:"modelUri"`
	CompletionOptions struct {
		Stream      bool    `json:"stream"`
		Temperature float64 `json:"temperature"`
		MaxTokens   string  `json:"maxTokens"`
	} `json:"completionOptions"`
	Messages []yandexMessage `json:"messages"`
}

type yandexResponse struct {
	Result struct {
		Alternatives []struct {
			Message yandexMessage `json:"message"`
			Status  string        `json:"status"`
		} `json:"alternatives"`
	} `json:"result"`
}

func (y *YandexGPT) Generate(ctx context.Context, prompt string) (string, error) {
	var body yandexRequest
	body.ModelURI = y.modelURI
	body.CompletionOptions.Temperature = y.temperature
	body.CompletionOptions.MaxTokens = fmt.Sprint(y.maxTokens)
	body.Messages = []yandexMessage{
		{Role: "system", Text: SystemPrompt},
		{Role: "user", Text: prompt},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("encode yandex request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, y.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build yandex request: %w", err)
	}
	req.Header.Set("Authorization", "Api-Key "+y.apiKey)
	req.Header.Set("x-folder-id", y.folderID)
	req.Header.Set("Content-Type", "application/json")

	resp, err := y.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: yandex completion: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("%w: yandex status %d: %s", ErrUpstream, resp.StatusCode, msg)
	}

	var out yandexResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: decode yandex response: %v", ErrUpstream, err)
	}
	if len(out.Result.Alternatives) == 0 {
		return "", fmt.Errorf("%w: yandex returned no alternatives", ErrUpstream)
	}
	return completion(out.Result.Alternatives[0].Message.Text)
}
