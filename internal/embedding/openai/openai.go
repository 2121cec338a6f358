// Package openai provides a batched embedding client for OpenAI-compatible APIs
// such as OpenRouter.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"histrag/internal/domain"
)

// Default configuration values.
const (
	DefaultBaseURL   = "https://openrouter.ai/api/v1"
	DefaultAPIKeyEnv = "OPENROUTER_API_KEY"
	DefaultModel     = "openai/text-embedding-3-small"
	DefaultTimeout   = 60 * time.Second
	DefaultDimension = 1536
)

// Client embeds texts through the /embeddings endpoint.
type Client struct {
	client    openai.Client
	model     string
	dimension int
}

// Config configures the embeddings client.
type Config struct {
	BaseURL   string
	APIKeyEnv string
	Model     string
	Timeout   time.Duration
	Dimension int
	// Referer and Title are sent as HTTP-Referer and X-Title, which OpenRouter
	// uses to attribute traffic.
	Referer string
	Title   string
}

// NewClient creates a client. The API key is read from the environment variable
// named by cfg.APIKeyEnv; a missing key is a configuration error.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKeyEnv == "" {
		cfg.APIKeyEnv = DefaultAPIKeyEnv
	}
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("%w: missing API key in env %s", domain.ErrConfiguration, cfg.APIKeyEnv)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Dimension == 0 {
		cfg.Dimension = DefaultDimension
	}

	opts := []option.RequestOption{
		option.WithAPIKey(key),
		option.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/") + "/"),
		option.WithRequestTimeout(cfg.Timeout),
		// Retries are owned by embedding.Retrying.
		option.WithMaxRetries(0),
	}
	if cfg.Referer != "" {
		opts = append(opts, option.WithHeader("HTTP-Referer", cfg.Referer))
	}
	if cfg.Title != "" {
		opts = append(opts, option.WithHeader("X-Title", cfg.Title))
	}

	return &Client{
		client:    openai.NewClient(opts...),
		model:     cfg.Model,
		dimension: cfg.Dimension,
	}, nil
}

// Name returns the identifier of this embedder implementation.
func (c *Client) Name() string { return "openai" }

// Dimension returns the expected vector size.
func (c *Client) Dimension() int { return c.dimension }

// Embed sends all texts in a single request and returns vectors in input order.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	resp, err := c.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: openai.EmbeddingModel(c.model),
	})
	if err != nil {
		return nil, classify(err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d inputs", domain.ErrEmbeddingService, len(resp.Data), len(texts))
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		idx := int(d.Index)
		if idx < 0 || idx >= len(out) || out[idx] != nil {
			return nil, fmt.Errorf("%w: unexpected embedding index %d", domain.ErrEmbeddingService, idx)
		}
		if len(d.Embedding) != c.dimension {
			return nil, fmt.Errorf("%w: embedding dimension %d, want %d", domain.ErrEmbeddingService, len(d.Embedding), c.dimension)
		}
		vec := make([]float32, len(d.Embedding))
		for i, v := range d.Embedding {
			vec[i] = float32(v)
		}
		out[idx] = vec
	}
	return out, nil
}

// classify maps provider failures onto domain error kinds.
func classify(err error) error {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("%w: %w", domain.ErrEmbeddingService, err)
	}
	switch {
	case apiErr.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w: %w", domain.ErrEmbeddingService, domain.ErrRateLimited, err)
	case apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %w: %w", domain.ErrEmbeddingService, domain.ErrConfiguration, err)
	case apiErr.StatusCode == http.StatusBadRequest:
		return fmt.Errorf("%w: %w: %w", domain.ErrEmbeddingService, domain.ErrValidation, err)
	default:
		return fmt.Errorf("%w: %w", domain.ErrEmbeddingService, err)
	}
}
