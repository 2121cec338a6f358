package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"histrag/internal/domain"
)

// OpenAIConfig holds settings for an OpenAI-compatible endpoint.
type OpenAIConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	Referer     string `yaml:"referer,omitempty"`
	Title       string `yaml:"title,omitempty"`
}

// EmbedderConfig selects the text embedder: "openai" or "hashing".
type EmbedderConfig struct {
	Type           string       `yaml:"type"`
	Dimension      int          `yaml:"dimension"`
	MaxRetries     int          `yaml:"max_retries"`
	RetryDelaySecs int          `yaml:"retry_delay_secs"`
	OpenAI         OpenAIConfig `yaml:"openai"`
}

// ChunkerConfig sizes are in characters.
type ChunkerConfig struct {
	MinChunkSize int    `yaml:"min_chunk_size"`
	MaxChunkSize int    `yaml:"max_chunk_size"`
	OverlapSize  int    `yaml:"overlap_size"`
	MinFlushSize int    `yaml:"min_flush_size"`
	InitialBook  string `yaml:"initial_book"`
}

// RetrievalConfig keeps both thresholds explicit: Threshold for plain search,
// ChatThreshold when answering questions.
type RetrievalConfig struct {
	Threshold     float64 `yaml:"threshold"`
	ChatThreshold float64 `yaml:"chat_threshold"`
	Count         int     `yaml:"count"`
}

type IngestConfig struct {
	BatchSize    int `yaml:"batch_size"`
	BatchDelayMS int `yaml:"batch_delay_ms"`
}

// VectorStoreConfig selects the store: "postgres", "sqlite", "qdrant" or "memory".
type VectorStoreConfig struct {
	Type     string          `yaml:"type"`
	Postgres *PostgresConfig `yaml:"postgres,omitempty"`
	SQLite   *SQLiteConfig   `yaml:"sqlite,omitempty"`
	Qdrant   *QdrantConfig   `yaml:"qdrant,omitempty"`
}

type PostgresConfig struct {
	DSNEnv   string `yaml:"dsn_env"`
	Table    string `yaml:"table"`
	MaxConns int    `yaml:"max_conns"`
}

type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKeyEnv   string `yaml:"api_key_env,omitempty"`
	Collection  string `yaml:"collection"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

type GeneratorConfig struct {
	OpenAIConfig      `yaml:",inline"`
	MaxTokens         int `yaml:"max_tokens"`
	RequestsPerMinute int `yaml:"requests_per_minute"`
}

type ServerConfig struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Embedder    EmbedderConfig    `yaml:"embedder"`
	Chunker     ChunkerConfig     `yaml:"chunker"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Ingest      IngestConfig      `yaml:"ingest"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Generator   GeneratorConfig   `yaml:"generator"`
	Server      ServerConfig      `yaml:"server"`
}

// LoadEnv reads .env files into the process environment without overriding
// variables that are already set. Missing files are ignored.
func LoadEnv(files ...string) {
	if len(files) == 0 {
		files = []string{".env.local", ".env"}
	}
	for _, f := range files {
		_ = godotenv.Load(f)
	}
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultConfig(), nil
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrConfiguration, err)
	}
	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %w", domain.ErrConfiguration, path, err)
	}
	applyConfigDefaults(cfg)
	return cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/histrag/config.yaml.
// If neither exists, it writes defaults to ~/.config/histrag/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "histrag", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		Embedder:    EmbedderConfig{Type: "openai"},
		VectorStore: VectorStoreConfig{Type: "postgres"},
		Server:      ServerConfig{Addr: ":8080", AllowedOrigins: []string{"http://localhost:3000"}},
	}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	e := &cfg.Embedder
	if e.Type == "" {
		e.Type = "openai"
	}
	if e.Dimension == 0 {
		e.Dimension = 1536
	}
	if e.MaxRetries == 0 {
		e.MaxRetries = 3
	}
	if e.RetryDelaySecs == 0 {
		e.RetryDelaySecs = 5
	}
	applyOpenAIDefaults(&e.OpenAI, "openai/text-embedding-3-small", "Enghien RAG Ingestion")

	c := &cfg.Chunker
	if c.MinChunkSize == 0 {
		c.MinChunkSize = 1500
	}
	if c.MaxChunkSize == 0 {
		c.MaxChunkSize = 2500
	}
	if c.OverlapSize == 0 {
		c.OverlapSize = 300
	}
	if c.MinFlushSize == 0 {
		c.MinFlushSize = 100
	}
	if c.InitialBook == "" {
		c.InitialBook = "I"
	}

	r := &cfg.Retrieval
	if r.Threshold == 0 {
		r.Threshold = 0.4
	}
	if r.ChatThreshold == 0 {
		r.ChatThreshold = 0.35
	}
	if r.Count == 0 {
		r.Count = 8
	}

	if cfg.Ingest.BatchSize == 0 {
		cfg.Ingest.BatchSize = 20
	}
	if cfg.Ingest.BatchDelayMS == 0 {
		cfg.Ingest.BatchDelayMS = 500
	}

	vs := &cfg.VectorStore
	if vs.Type == "" {
		vs.Type = "postgres"
	}
	switch vs.Type {
	case "postgres":
		if vs.Postgres == nil {
			vs.Postgres = &PostgresConfig{}
		}
		if vs.Postgres.DSNEnv == "" {
			vs.Postgres.DSNEnv = "DATABASE_URL"
		}
		if vs.Postgres.Table == "" {
			vs.Postgres.Table = "passages"
		}
		if vs.Postgres.MaxConns == 0 {
			vs.Postgres.MaxConns = 10
		}
	case "sqlite":
		if vs.SQLite == nil {
			vs.SQLite = &SQLiteConfig{}
		}
		if vs.SQLite.Path == "" {
			vs.SQLite.Path = filepath.Join("data", "passages.db")
		}
	case "qdrant":
		if vs.Qdrant == nil {
			vs.Qdrant = &QdrantConfig{}
		}
		if vs.Qdrant.URL == "" {
			vs.Qdrant.URL = "http://localhost:6333"
		}
		if vs.Qdrant.Collection == "" {
			vs.Qdrant.Collection = "passages"
		}
		if vs.Qdrant.TimeoutSecs == 0 {
			vs.Qdrant.TimeoutSecs = 15
		}
	}

	g := &cfg.Generator
	applyOpenAIDefaults(&g.OpenAIConfig, "anthropic/claude-sonnet-4", "Enghien RAG Chat")
	if g.MaxTokens == 0 {
		g.MaxTokens = 2048
	}
	if g.RequestsPerMinute == 0 {
		g.RequestsPerMinute = 60
	}

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
}

func applyOpenAIDefaults(o *OpenAIConfig, model, title string) {
	if o.BaseURL == "" {
		o.BaseURL = "https://openrouter.ai/api/v1"
	}
	if o.APIKeyEnv == "" {
		o.APIKeyEnv = "OPENROUTER_API_KEY"
	}
	if o.Model == "" {
		o.Model = model
	}
	if o.TimeoutSecs == 0 {
		o.TimeoutSecs = 60
	}
	if o.Referer == "" {
		o.Referer = "http://localhost:3000"
	}
	if o.Title == "" {
		o.Title = title
	}
}

// Timeout returns the request timeout as a duration.
func (o OpenAIConfig) Timeout() time.Duration {
	return time.Duration(o.TimeoutSecs) * time.Second
}

// RetryDelay returns the embedding retry delay as a duration.
func (e EmbedderConfig) RetryDelay() time.Duration {
	return time.Duration(e.RetryDelaySecs) * time.Second
}

// BatchDelay returns the pause between ingestion batches.
func (i IngestConfig) BatchDelay() time.Duration {
	return time.Duration(i.BatchDelayMS) * time.Millisecond
}

// Requirements selects which parts of the config a command depends on.
type Requirements struct {
	Embedder  bool
	Store     bool
	Generator bool
}

// Validate checks that every endpoint and credential needed by req is present.
func (cfg *AppConfig) Validate(req Requirements) error {
	var errs []error
	if req.Embedder {
		switch cfg.Embedder.Type {
		case "openai":
			errs = append(errs, requireEnv(cfg.Embedder.OpenAI.APIKeyEnv, "embedder API key"))
		case "hashing":
		default:
			errs = append(errs, fmt.Errorf("unknown embedder type %q", cfg.Embedder.Type))
		}
		if cfg.Embedder.Dimension <= 0 {
			errs = append(errs, errors.New("embedder dimension must be positive"))
		}
	}
	if req.Store {
		switch cfg.VectorStore.Type {
		case "postgres":
			errs = append(errs, requireEnv(cfg.VectorStore.Postgres.DSNEnv, "database URL"))
		case "qdrant":
			if cfg.VectorStore.Qdrant.URL == "" {
				errs = append(errs, errors.New("qdrant url is empty"))
			}
		case "sqlite", "memory":
		default:
			errs = append(errs, fmt.Errorf("unknown vector store type %q", cfg.VectorStore.Type))
		}
	}
	if req.Generator {
		errs = append(errs, requireEnv(cfg.Generator.APIKeyEnv, "generator API key"))
	}
	if c := cfg.Chunker; c.MaxChunkSize < c.MinChunkSize {
		errs = append(errs, fmt.Errorf("max_chunk_size %d is below min_chunk_size %d", c.MaxChunkSize, c.MinChunkSize))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrConfiguration, err)
	}
	return nil
}

func requireEnv(name, what string) error {
	if os.Getenv(name) == "" {
		return fmt.Errorf("%s missing: set %s", what, name)
	}
	return nil
}
