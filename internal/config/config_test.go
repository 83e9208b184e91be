package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("VECTOR_BACKEND", "")
	t.Setenv("SCORE_THRESHOLD", "")
	t.Setenv("EMBEDDING_BACKEND", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "qdrant", cfg.VectorBackend)
	assert.Equal(t, "openai", cfg.EmbeddingBackend)
	assert.Equal(t, "znatok_chunks", cfg.Collection)
	assert.Equal(t, 1024, cfg.EmbeddingDim)
	assert.Equal(t, 512, cfg.ChunkMaxLength)
	assert.Equal(t, 4, cfg.SearchLimit)
	assert.InDelta(t, 0.3, cfg.ScoreThreshold, 1e-9)
	assert.Equal(t, 30*time.Minute, cfg.ConversationTTL)
	assert.Equal(t, 1000, cfg.ConversationSweepAt)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SEARCH_LIMIT", "8")
	t.Setenv("SCORE_THRESHOLD", "0.55")
	t.Setenv("CONVERSATION_TTL_MIN", "5")
	t.Setenv("MCP_ENABLED", "false")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.SearchLimit)
	assert.InDelta(t, 0.55, cfg.ScoreThreshold, 1e-9)
	assert.Equal(t, 5*time.Minute, cfg.ConversationTTL)
	assert.False(t, cfg.MCPEnabled)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"unknown backend", "VECTOR_BACKEND", "faiss"},
		{"threshold out of range", "SCORE_THRESHOLD", "1.5"},
		{"unknown archive", "ARCHIVE_BACKEND", "ftp"},
		{"zero limit", "SEARCH_LIMIT", "0"},
		{"unknown embedder", "EMBEDDING_BACKEND", "word2vec"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoad_PgvectorNeedsDatabaseURL(t *testing.T) {
	t.Setenv("VECTOR_BACKEND", "pgvector")
	t.Setenv("DATABASE_URL", "")

	_, err := Load()
	require.Error(t, err)

	t.Setenv("DATABASE_URL", "postgres://localhost/znatok")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "pgvector", cfg.VectorBackend)
}
