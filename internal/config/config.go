// Package config reads process configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds process-level settings. Per-provider credentials and
// knowledge-source connections live in the persisted settings document instead.
type Config struct {
	Port           string
	LogLevel       string
	AllowedOrigins string

	VectorBackend    string
	QdrantHost       string
	QdrantPort       int
	QdrantAPIKey     string
	QdrantUseTLS     bool
	Collection       string
	DatabaseURL      string
	EmbeddingBackend string
	EmbeddingBaseURL string
	EmbeddingAPIKey  string
	EmbeddingModel   string
	EmbeddingDim     int
	EmbedCacheSize   int
	EmbedCacheTTL    time.Duration

	ChunkMaxLength int
	SearchLimit    int
	ScoreThreshold float64

	ConversationTTL      time.Duration
	ConversationSweepAt  int
	ConversationCapacity int
	HistoryTurns         int

	SettingsPath   string
	UploadDir      string
	ArchiveBackend string
	S3Bucket       string
	S3Endpoint     string
	AWSRegion      string
	AWSAccessKey   string
	AWSSecretKey   string

	SyncSchedule string
	GitHubToken  string
	MCPEnabled   bool
}

// Load reads the configuration from environment variables, applying defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Port:           getEnv("PORT", "8000"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		AllowedOrigins: getEnv("CORS_ORIGINS", "*"),

		VectorBackend:    strings.ToLower(getEnv("VECTOR_BACKEND", "qdrant")),
		QdrantHost:       getEnv("QDRANT_HOST", "localhost"),
		QdrantPort:       getEnvInt("QDRANT_PORT", 6334),
		QdrantAPIKey:     os.Getenv("QDRANT_API_KEY"),
		QdrantUseTLS:     getEnvBool("QDRANT_USE_TLS", false),
		Collection:       getEnv("QDRANT_COLLECTION", "znatok_chunks"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		EmbeddingBackend: strings.ToLower(getEnv("EMBEDDING_BACKEND", "openai")),
		EmbeddingBaseURL: getEnv("EMBEDDING_BASE_URL", "http://localhost:8080/v1"),
		EmbeddingAPIKey:  getEnv("EMBEDDING_API_KEY", "none"),
		EmbeddingModel:   getEnv("EMBEDDING_MODEL", "intfloat/multilingual-e5-large"),
		EmbeddingDim:     getEnvInt("EMBEDDING_DIM", 1024),
		EmbedCacheSize:   getEnvInt("EMBED_CACHE_SIZE", 1000),
		EmbedCacheTTL:    time.Duration(getEnvInt("EMBED_CACHE_TTL_MIN", 60)) * time.Minute,

		ChunkMaxLength: getEnvInt("CHUNK_MAX_LENGTH", 512),
		SearchLimit:    getEnvInt("SEARCH_LIMIT", 4),
		ScoreThreshold: getEnvFloat("SCORE_THRESHOLD", 0.3),

		ConversationTTL:      time.Duration(getEnvInt("CONVERSATION_TTL_MIN", 30)) * time.Minute,
		ConversationSweepAt:  getEnvInt("CONVERSATION_SWEEP_AT", 1000),
		ConversationCapacity: getEnvInt("CONVERSATION_CAPACITY", 10000),
		HistoryTurns:         getEnvInt("CONVERSATION_HISTORY_TURNS", 2),

		SettingsPath:   getEnv("SETTINGS_PATH", "data/settings.json"),
		UploadDir:      getEnv("UPLOAD_DIR", "data/uploads"),
		ArchiveBackend: strings.ToLower(getEnv("ARCHIVE_BACKEND", "local")),
		S3Bucket:       os.Getenv("S3_BUCKET"),
		S3Endpoint:     os.Getenv("S3_ENDPOINT"),
		AWSRegion:      os.Getenv("AWS_REGION"),
		AWSAccessKey:   os.Getenv("AWS_ACCESS_KEY_ID"),
		AWSSecretKey:   os.Getenv("AWS_SECRET_ACCESS_KEY"),

		SyncSchedule: getEnv("SYNC_SCHEDULE", "0 */6 * * *"),
		GitHubToken:  os.Getenv("GITHUB_TOKEN"),
		MCPEnabled:   getEnvBool("MCP_ENABLED", true),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.VectorBackend {
	case "qdrant", "memory":
	case "pgvector":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the pgvector backend")
		}
	default:
		return fmt.Errorf("unknown VECTOR_BACKEND %q", c.VectorBackend)
	}

	switch c.ArchiveBackend {
	case "local", "none":
	case "s3":
		if c.S3Bucket == "" || c.AWSRegion == "" {
			return fmt.Errorf("S3_BUCKET and AWS_REGION are required for the s3 archive")
		}
	default:
		return fmt.Errorf("unknown ARCHIVE_BACKEND %q", c.ArchiveBackend)
	}

	switch c.EmbeddingBackend {
	case "openai", "hash":
	default:
		return fmt.Errorf("unknown EMBEDDING_BACKEND %q", c.EmbeddingBackend)
	}

	if c.EmbeddingDim <= 0 {
		return fmt.Errorf("EMBEDDING_DIM must be positive, got %d", c.EmbeddingDim)
	}
	if c.SearchLimit <= 0 {
		return fmt.Errorf("SEARCH_LIMIT must be positive, got %d", c.SearchLimit)
	}
	if c.ScoreThreshold < 0 || c.ScoreThreshold > 1 {
		return fmt.Errorf("SCORE_THRESHOLD must be within [0,1], got %v", c.ScoreThreshold)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		var i int
		if _, err := fmt.Sscanf(v, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}
