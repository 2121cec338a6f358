package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"histrag/internal/domain"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.Embedder.Type)
	assert.Equal(t, 1536, cfg.Embedder.Dimension)
	assert.Equal(t, 3, cfg.Embedder.MaxRetries)
	assert.Equal(t, 5*time.Second, cfg.Embedder.RetryDelay())
	assert.Equal(t, "openai/text-embedding-3-small", cfg.Embedder.OpenAI.Model)
	assert.Equal(t, "https://openrouter.ai/api/v1", cfg.Embedder.OpenAI.BaseURL)
	assert.Equal(t, ChunkerConfig{MinChunkSize: 1500, MaxChunkSize: 2500, OverlapSize: 300, MinFlushSize: 100, InitialBook: "I"}, cfg.Chunker)
	assert.Equal(t, RetrievalConfig{Threshold: 0.4, ChatThreshold: 0.35, Count: 8}, cfg.Retrieval)
	assert.Equal(t, 20, cfg.Ingest.BatchSize)
	assert.Equal(t, 500*time.Millisecond, cfg.Ingest.BatchDelay())
	assert.Equal(t, "postgres", cfg.VectorStore.Type)
	assert.Equal(t, "DATABASE_URL", cfg.VectorStore.Postgres.DSNEnv)
	assert.Equal(t, "anthropic/claude-sonnet-4", cfg.Generator.Model)
	assert.Equal(t, 2048, cfg.Generator.MaxTokens)
}

func TestLoadOverridesAndFillsSection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
embedder:
  type: hashing
  dimension: 256
retrieval:
  chat_threshold: 0.5
vector_store:
  type: sqlite
generator:
  model: openai/gpt-4o-mini
  max_tokens: 512
`), 0o644))

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, "hashing", cfg.Embedder.Type)
	assert.Equal(t, 256, cfg.Embedder.Dimension)
	assert.Equal(t, 0.5, cfg.Retrieval.ChatThreshold)
	assert.Equal(t, 0.4, cfg.Retrieval.Threshold)
	require.NotNil(t, cfg.VectorStore.SQLite)
	assert.Equal(t, filepath.Join("data", "passages.db"), cfg.VectorStore.SQLite.Path)
	assert.Equal(t, "openai/gpt-4o-mini", cfg.Generator.Model)
	assert.Equal(t, 512, cfg.Generator.MaxTokens)
	assert.Equal(t, "OPENROUTER_API_KEY", cfg.Generator.APIKeyEnv)
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("embedder: [unclosed"), 0o644))

	_, err := Load(path)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := defaultConfig()
	cfg.Server.Addr = ":9999"

	require.NoError(t, Save(path, cfg))
	loaded, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, ":9999", loaded.Server.Addr)
	assert.Equal(t, cfg.Generator, loaded.Generator)
}

func TestValidate(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "")
	t.Setenv("DATABASE_URL", "")
	cfg := defaultConfig()

	err := cfg.Validate(Requirements{Embedder: true, Store: true, Generator: true})
	require.ErrorIs(t, err, domain.ErrConfiguration)
	assert.Contains(t, err.Error(), "OPENROUTER_API_KEY")
	assert.Contains(t, err.Error(), "DATABASE_URL")

	t.Setenv("OPENROUTER_API_KEY", "sk")
	t.Setenv("DATABASE_URL", "postgres://localhost/histrag")
	assert.NoError(t, cfg.Validate(Requirements{Embedder: true, Store: true, Generator: true}))

	assert.NoError(t, defaultConfig().Validate(Requirements{}))
}

func TestValidateUnknownTypes(t *testing.T) {
	cfg := defaultConfig()
	cfg.Embedder.Type = "word2vec"
	cfg.VectorStore.Type = "redis"

	err := cfg.Validate(Requirements{Embedder: true, Store: true})

	require.ErrorIs(t, err, domain.ErrConfiguration)
	assert.Contains(t, err.Error(), "word2vec")
	assert.Contains(t, err.Error(), "redis")
}

func TestLoadEnvDoesNotOverride(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("HISTRAG_TEST_A=fromfile\nHISTRAG_TEST_B=fromfile\n"), 0o644))
	t.Setenv("HISTRAG_TEST_A", "preset")
	t.Setenv("HISTRAG_TEST_B", "")
	os.Unsetenv("HISTRAG_TEST_B")

	LoadEnv(envFile, filepath.Join(dir, "missing.env"))

	assert.Equal(t, "preset", os.Getenv("HISTRAG_TEST_A"))
	assert.Equal(t, "fromfile", os.Getenv("HISTRAG_TEST_B"))
}
