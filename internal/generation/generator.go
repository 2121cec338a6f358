// Package generation produces answers from an OpenAI-compatible chat model.
package generation

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
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"histrag/internal/domain"
	"histrag/internal/logger"
)

const (
	DefaultModel             = "anthropic/claude-sonnet-4"
	DefaultMaxTokens         = 2048
	DefaultBaseURL           = "https://openrouter.ai/api/v1"
	DefaultAPIKeyEnv         = "OPENROUTER_API_KEY"
	DefaultTimeout           = 60 * time.Second
	DefaultRequestsPerMinute = 60
)

// Generator turns a system instruction and a user message into an answer.
type Generator interface {
	Complete(ctx context.Context, system, user string) (string, error)
	// Stream calls onDelta for every text fragment as it arrives.
	Stream(ctx context.Context, system, user string, onDelta func(string) error) error
}

type Config struct {
	BaseURL           string
	APIKeyEnv         string
	Model             string
	MaxTokens         int
	Timeout           time.Duration
	RequestsPerMinute int
	Referer           string
	Title             string
}

// Client is a Generator guarded by a circuit breaker and a client-side rate limit.
type Client struct {
	client    openai.Client
	model     string
	maxTokens int
	breaker   *gobreaker.CircuitBreaker
	limiter   *rate.Limiter
}

// callbackError marks failures raised by the caller's delta handler so they
// do not count against the upstream's health.
type callbackError struct{ err error }

func (e *callbackError) Error() string { return e.err.Error() }
func (e *callbackError) Unwrap() error { return e.err }

// NewClient builds a chat client. The API key is read from the environment
// variable named by cfg.APIKeyEnv.
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
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = DefaultRequestsPerMinute
	}

	opts := []option.RequestOption{
		option.WithAPIKey(key),
		option.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/") + "/"),
		option.WithRequestTimeout(cfg.Timeout),
		option.WithMaxRetries(0),
	}
	if cfg.Referer != "" {
		opts = append(opts, option.WithHeader("HTTP-Referer", cfg.Referer))
	}
	if cfg.Title != "" {
		opts = append(opts, option.WithHeader("X-Title", cfg.Title))
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "generation",
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			var cb *callbackError
			return err == nil || errors.As(err, &cb) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker %s: %s -> %s", name, from, to)
		},
	})

	burst := cfg.RequestsPerMinute / 10
	if burst < 1 {
		burst = 1
	}
	return &Client{
		client:    openai.NewClient(opts...),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		breaker:   breaker,
		limiter:   rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), burst),
	}, nil
}

func (c *Client) params(system, user string) openai.ChatCompletionNewParams {
	return openai.ChatCompletionNewParams{
		Model:     openai.ChatModel(c.model),
		MaxTokens: openai.Int(int64(c.maxTokens)),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
	}
}

func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	ctx, span := otel.Tracer("histrag/generation").Start(ctx, "generation.complete")
	defer span.End()
	span.SetAttributes(attribute.String("generation.model", c.model))

	if err := c.limiter.Wait(ctx); err != nil {
		return "", fail(span, fmt.Errorf("%w: waiting for rate limiter: %w", domain.ErrGeneration, err))
	}
	out, err := c.breaker.Execute(func() (interface{}, error) {
		resp, err := c.client.Chat.Completions.New(ctx, c.params(system, user))
		if err != nil {
			return nil, err
		}
		if len(resp.Choices) == 0 {
			return nil, errors.New("empty completion")
		}
		return resp.Choices[0].Message.Content, nil
	})
	if err != nil {
		return "", fail(span, classify(err))
	}
	text := out.(string)
	span.SetAttributes(attribute.Int("generation.chars", len(text)))
	return text, nil
}

func (c *Client) Stream(ctx context.Context, system, user string, onDelta func(string) error) error {
	ctx, span := otel.Tracer("histrag/generation").Start(ctx, "generation.stream")
	defer span.End()
	span.SetAttributes(attribute.String("generation.model", c.model))

	if err := c.limiter.Wait(ctx); err != nil {
		return fail(span, fmt.Errorf("%w: waiting for rate limiter: %w", domain.ErrGeneration, err))
	}
	deltas := 0
	_, err := c.breaker.Execute(func() (interface{}, error) {
		stream := c.client.Chat.Completions.NewStreaming(ctx, c.params(system, user))
		defer stream.Close()
		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
				continue
			}
			deltas++
			if err := onDelta(chunk.Choices[0].Delta.Content); err != nil {
				return nil, &callbackError{err: err}
			}
		}
		return nil, stream.Err()
	})
	span.SetAttributes(attribute.Int("generation.deltas", deltas))
	if err != nil {
		var cb *callbackError
		if errors.As(err, &cb) {
			return fail(span, cb.err)
		}
		return fail(span, classify(err))
	}
	return nil
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, "generation failed")
	return err
}

func classify(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: upstream unavailable: %w", domain.ErrGeneration, err)
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %w: %w", domain.ErrGeneration, domain.ErrRateLimited, err)
	}
	return fmt.Errorf("%w: %w", domain.ErrGeneration, err)
}
