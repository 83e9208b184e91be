// Package settings persists the runtime-editable configuration: LLM
// providers, chat integrations and knowledge-source connections.
package settings

// Provider kinds accepted in current_provider and the providers map.
const (
	ProviderGigaChat  = "gigachat"
	ProviderYandexGPT = "yandex_gpt"
	ProviderOllama    = "ollama"
	ProviderMistral   = "mistral"
	ProviderOpenAI    = "openai"
	ProviderGemini    = "gemini"
)

// Defaults applied to provider entries that omit them.
const (
	DefaultTemperature = 0.1
	DefaultMaxTokens   = 512
)

// Settings is the whole persisted document. It is always replaced wholesale.
type Settings struct {
	CurrentProvider  string                    `json:"current_provider" validate:"required,oneof=gigachat yandex_gpt ollama mistral openai gemini"`
	Providers        map[string]ProviderConfig `json:"providers" validate:"dive"`
	Integrations     Integrations              `json:"integrations"`
	KnowledgeSources KnowledgeSources          `json:"knowledge_sources"`
}

// ProviderConfig holds the credentials and request shaping of one LLM backend.
type ProviderConfig struct {
	Provider    string  `json:"provider" validate:"omitempty,oneof=gigachat yandex_gpt ollama mistral openai gemini"`
	APIKey      string  `json:"api_key"`
	BaseURL     string  `json:"base_url,omitempty" validate:"omitempty,url"`
	Model       string  `json:"model,omitempty"`
	Temperature float64 `json:"temperature" validate:"gte=0,lte=2"`
	MaxTokens   int     `json:"max_tokens" validate:"gte=1"`
	FolderID    string  `json:"folder_id,omitempty"` // Yandex Cloud only
}

type Integrations struct {
	Telegram TelegramConfig `json:"telegram"`
	Bitrix24 Bitrix24Config `json:"bitrix24"`
}

type TelegramConfig struct {
	Enabled  bool   `json:"enabled"`
	BotToken string `json:"bot_token"`
}

type Bitrix24Config struct {
	Enabled       bool   `json:"enabled"`
	ClientSecret  string `json:"client_secret"`
	VerifyWebhook bool   `json:"verify_webhook"`
}

type KnowledgeSources struct {
	Bitrix24KB Bitrix24KBConfig `json:"bitrix24_kb"`
	Confluence ConfluenceConfig `json:"confluence"`
	GitHub     GitHubConfig     `json:"github"`
}

type Bitrix24KBConfig struct {
	Enabled     bool   `json:"enabled"`
	Domain      string `json:"domain" validate:"omitempty,hostname_port|fqdn"`
	AccessToken string `json:"access_token"`
	LastSync    string `json:"last_sync"`
}

// Configured reports whether the connection fields are present.
func (c Bitrix24KBConfig) Configured() bool {
	return c.Domain != "" && c.AccessToken != ""
}

type ConfluenceConfig struct {
	Enabled  bool   `json:"enabled"`
	BaseURL  string `json:"base_url" validate:"omitempty,url"`
	Email    string `json:"email" validate:"omitempty,email"`
	APIToken string `json:"api_token"`
	SpaceKey string `json:"space_key"`
	LastSync string `json:"last_sync"`
}

func (c ConfluenceConfig) Configured() bool {
	return c.BaseURL != "" && c.Email != "" && c.APIToken != "" && c.SpaceKey != ""
}

type GitHubConfig struct {
	Enabled  bool   `json:"enabled"`
	Owner    string `json:"owner"`
	Repo     string `json:"repo"`
	Path     string `json:"path"`
	LastSync string `json:"last_sync"`
}

func (c GitHubConfig) Configured() bool {
	return c.Owner != "" && c.Repo != ""
}

// Default returns the document used when nothing has been saved yet.
func Default() Settings {
	return Settings{
		CurrentProvider: ProviderGigaChat,
		Providers: map[string]ProviderConfig{
			ProviderGigaChat: {
				Provider:    ProviderGigaChat,
				Model:       "GigaChat",
				Temperature: DefaultTemperature,
				MaxTokens:   DefaultMaxTokens,
			},
			ProviderYandexGPT: {
				Provider:    ProviderYandexGPT,
				Model:       "yandexgpt-lite",
				Temperature: DefaultTemperature,
				MaxTokens:   DefaultMaxTokens,
			},
			ProviderOllama: {
				Provider:    ProviderOllama,
				BaseURL:     "http://localhost:11434/v1",
				Model:       "llama3",
				Temperature: DefaultTemperature,
				MaxTokens:   DefaultMaxTokens,
			},
		},
	}
}

// Clone returns a deep copy.
func (s Settings) Clone() Settings {
	out := s
	out.Providers = make(map[string]ProviderConfig, len(s.Providers))
	for k, v := range s.Providers {
		out.Providers[k] = v
	}
	return out
}

// normalize fills provider entries with their key and default limits.
func (s *Settings) normalize() {
	if s.Providers == nil {
		s.Providers = make(map[string]ProviderConfig)
	}
	for kind, p := range s.Providers {
		if p.Provider == "" {
			p.Provider = kind
		}
		if p.MaxTokens == 0 {
			p.MaxTokens = DefaultMaxTokens
		}
		s.Providers[kind] = p
	}
}
