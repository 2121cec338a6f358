package main

import (
	"context"
	"fmt"
	"os"
	"slices"
	"time"

	"histrag/internal/config"
	"histrag/internal/domain"
	"histrag/internal/embedding"
	"histrag/internal/embedding/hashing"
	"histrag/internal/embedding/openai"
	"histrag/internal/generation"
	"histrag/internal/logger"
	"histrag/internal/retrieval"
	"histrag/internal/service"
	"histrag/internal/vectorstore"
	"histrag/internal/vectorstore/memory"
	"histrag/internal/vectorstore/postgres"
	"histrag/internal/vectorstore/qdrant"
	"histrag/internal/vectorstore/sqlite"
)

// app holds the global flags and the resolved configuration shared by subcommands.
type app struct {
	cfgPath string
	verbose bool
	cfg     *config.AppConfig
}

// load resolves the configuration and validates what the command needs.
func (a *app) load(req config.Requirements) error {
	var (
		cfg  *config.AppConfig
		path = a.cfgPath
		err  error
	)
	if path == "" {
		cfg, path, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(path)
	}
	if err != nil {
		return err
	}
	logger.Debug("config: %s", path)
	if err := cfg.Validate(req); err != nil {
		return err
	}
	a.cfg = cfg
	return nil
}

// queryEmbedder returns the bare embedder. Query-time failures propagate
// to the caller without retries.
func (a *app) queryEmbedder() (embedding.Embedder, error) {
	e := a.cfg.Embedder
	switch e.Type {
	case "hashing":
		return hashing.NewEmbedder(e.Dimension), nil
	case "openai":
		client, err := openai.NewClient(openai.Config{
			BaseURL:   e.OpenAI.BaseURL,
			APIKeyEnv: e.OpenAI.APIKeyEnv,
			Model:     e.OpenAI.Model,
			Timeout:   e.OpenAI.Timeout(),
			Dimension: e.Dimension,
			Referer:   e.OpenAI.Referer,
			Title:     e.OpenAI.Title,
		})
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, fmt.Errorf("%w: unknown embedder %q", domain.ErrConfiguration, e.Type)
	}
}

// ingestEmbedder wraps remote embedders in the bounded retry loop used by
// batch ingestion.
func (a *app) ingestEmbedder() (embedding.Embedder, error) {
	emb, err := a.queryEmbedder()
	if err != nil {
		return nil, err
	}
	if a.cfg.Embedder.Type != "openai" {
		return emb, nil
	}
	return embedding.NewRetrying(emb, embedding.RetryConfig{
		MaxRetries: a.cfg.Embedder.MaxRetries,
		Delay:      a.cfg.Embedder.RetryDelay(),
	}), nil
}

// store opens the configured vector store, creating its schema when missing.
func (a *app) store(ctx context.Context) (vectorstore.Storage, error) {
	vs := a.cfg.VectorStore
	dim := a.cfg.Embedder.Dimension
	switch vs.Type {
	case "postgres":
		st, err := postgres.Open(ctx, postgres.Config{
			DSN:       os.Getenv(vs.Postgres.DSNEnv),
			Table:     vs.Postgres.Table,
			Dimension: dim,
			MaxConns:  int32(vs.Postgres.MaxConns),
		})
		if err != nil {
			return nil, err
		}
		return st, nil
	case "sqlite":
		st, err := sqlite.Open(vs.SQLite.Path, dim)
		if err != nil {
			return nil, err
		}
		return st, nil
	case "qdrant":
		st := qdrant.NewStorage(qdrant.Config{
			URL:        vs.Qdrant.URL,
			APIKey:     os.Getenv(vs.Qdrant.APIKeyEnv),
			Collection: vs.Qdrant.Collection,
			Dimension:  dim,
			Timeout:    secondsOf(vs.Qdrant.TimeoutSecs),
		})
		if err := st.EnsureCollection(ctx); err != nil {
			return nil, err
		}
		return st, nil
	case "memory":
		logger.Warn("memory vector store: passages are lost when the process exits")
		return memory.NewStorage(dim), nil
	default:
		return nil, fmt.Errorf("%w: unknown vector store %q", domain.ErrConfiguration, vs.Type)
	}
}

func (a *app) generator() (generation.Generator, error) {
	g := a.cfg.Generator
	return generation.NewClient(generation.Config{
		BaseURL:           g.BaseURL,
		APIKeyEnv:         g.APIKeyEnv,
		Model:             g.Model,
		MaxTokens:         g.MaxTokens,
		Timeout:           g.Timeout(),
		RequestsPerMinute: g.RequestsPerMinute,
		Referer:           g.Referer,
		Title:             g.Title,
	})
}

// credentialEnvs lists the environment variables the configured backends read.
func (a *app) credentialEnvs(withGenerator bool) []string {
	var envs []string
	if a.cfg.Embedder.Type == "openai" {
		envs = append(envs, a.cfg.Embedder.OpenAI.APIKeyEnv)
	}
	if withGenerator && !slices.Contains(envs, a.cfg.Generator.APIKeyEnv) {
		envs = append(envs, a.cfg.Generator.APIKeyEnv)
	}
	if a.cfg.VectorStore.Type == "postgres" {
		envs = append(envs, a.cfg.VectorStore.Postgres.DSNEnv)
	}
	return envs
}

// service wires the RAG service. The returned store must be closed by the caller.
func (a *app) service(ctx context.Context, withGenerator bool) (*service.RAGServiceImpl, vectorstore.Storage, error) {
	emb, err := a.queryEmbedder()
	if err != nil {
		return nil, nil, err
	}
	st, err := a.store(ctx)
	if err != nil {
		return nil, nil, err
	}
	var gen generation.Generator
	if withGenerator {
		client, err := a.generator()
		if err != nil {
			st.Close()
			return nil, nil, err
		}
		gen = client
	}
	svc := service.NewRAGService(retrieval.NewEngine(emb, st), gen, st, a.credentialEnvs(withGenerator)...)
	svc.SetChatTuning(a.cfg.Retrieval.ChatThreshold, a.cfg.Retrieval.Count)
	return svc, st, nil
}

func secondsOf(n int) time.Duration { return time.Duration(n) * time.Second }
