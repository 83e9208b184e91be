package llm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/bull/znatok/internal/settings"
)

const (
	gigaChatOAuthURL = "https://ngw.devices.sberbank.ru:9443/api/v2/oauth"
	gigaChatBaseURL  = "https://gigachat.devices.sberbank.ru/api/v1"
	gigaChatScope    = "GIGACHAT_API_PUB"

	gigaChatAuthTimeout = 10 * time.Second
	gigaChatChatTimeout = 30 * time.Second
	// Tokens are refreshed this long before they expire.
	gigaChatTokenSlack = time.Minute
)

func init() {
	Register(settings.ProviderGigaChat, func(cfg settings.ProviderConfig) (Provider, error) {
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("%w: gigachat api_key is empty", ErrProviderNotConfigured)
		}
		return NewGigaChat(cfg, gigaChatOAuthURL), nil
	})
}

// GigaChat exchanges the authorization key for a short-lived access token and
// calls the OpenAI-compatible chat endpoint with it.
type GigaChat struct {
	authKey     string
	oauthURL    string
	model       string
	temperature float64
	maxTokens   int

	http *http.Client
	chat openai.Client
	now  func() time.Time

	mu      sync.Mutex
	token   string
	expires time.Time
}

// NewGigaChat creates a provider. The api key is either the base64
// authorization key or a raw "client_id:secret" pair.
func NewGigaChat(cfg settings.ProviderConfig, oauthURL string) *GigaChat {
	key := cfg.APIKey
	if strings.Contains(key, ":") {
		key = base64.StdEncoding.EncodeToString([]byte(key))
	}
	return &GigaChat{
		authKey:     key,
		oauthURL:    oauthURL,
		model:       withDefault(cfg.Model, "GigaChat"),
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		http:        &http.Client{Timeout: gigaChatAuthTimeout},
		chat: openai.NewClient(
			option.WithBaseURL(withDefault(cfg.BaseURL, gigaChatBaseURL)),
			option.WithAPIKey("pending"),
			option.WithRequestTimeout(gigaChatChatTimeout),
			option.WithMaxRetries(0),
		),
		now: time.Now,
	}
}

func (g *GigaChat) Generate(ctx context.Context, prompt string) (string, error) {
	token, err := g.accessToken(ctx)
	if err != nil {
		return "", err
	}
	return chatCompletion(ctx, g.chat, g.model, g.temperature, g.maxTokens, prompt,
		option.WithHeader("Authorization", "Bearer "+token))
}

type gigaChatToken struct {
	AccessToken string `json:"access_token"`
	ExpiresAt   int64  `json:"expires_at"` // unix milliseconds
}

func (g *GigaChat) accessToken(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.token != "" && g.now().Before(g.expires.Add(-gigaChatTokenSlack)) {
		return g.token, nil
	}

	form := url.Values{"scope": {gigaChatScope}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.oauthURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build oauth request: %w", err)
	}
	req.Header.Set("Authorization", "Basic "+g.authKey)
	req.Header.Set("RqUID", uuid.NewString())
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := g.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: gigachat oauth: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("%w: gigachat oauth status %d: %s", ErrUpstream, resp.StatusCode, body)
	}

	var tok gigaChatToken
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("%w: decode oauth response: %v", ErrUpstream, err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("%w: oauth response has no access_token", ErrUpstream)
	}

	g.token = tok.AccessToken
	g.expires = time.UnixMilli(tok.ExpiresAt)
	if tok.ExpiresAt == 0 {
		g.expires = g.now().Add(30 * time.Minute)
	}
	return g.token, nil
}
