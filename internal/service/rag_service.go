// Package service composes retrieval, context assembly and generation into
// the question-answering operations used by the CLI, the HTTP API and the TUI.
package service

import (
	"context"
	"fmt"
	"os"
	"strings"

	"histrag/internal/assembler"
	"histrag/internal/domain"
	"histrag/internal/generation"
	"histrag/internal/logger"
	"histrag/internal/retrieval"
	"histrag/internal/vectorstore"
)

// Answer is a generated reply together with the passages it was grounded on.
type Answer struct {
	Text    string
	Sources []domain.SearchResult
}

// Check is one line of a health report.
type Check struct {
	Name  string `json:"name"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// Health aggregates the checks; Healthy is true only if every check passed.
type Health struct {
	Healthy  bool    `json:"healthy"`
	Passages int64   `json:"passages"`
	Checks   []Check `json:"checks"`
}

type RAGServiceImpl struct {
	engine    *retrieval.Engine
	generator generation.Generator
	store     vectorstore.Storage
	// credentialEnvs lists environment variables that must be set for the
	// configured backends to work.
	credentialEnvs []string
	chatThreshold  float64
	chatCount      int
}

// NewRAGService wires the service. generator may be nil for search-only use.
func NewRAGService(engine *retrieval.Engine, generator generation.Generator, store vectorstore.Storage, credentialEnvs ...string) *RAGServiceImpl {
	return &RAGServiceImpl{
		engine:         engine,
		generator:      generator,
		store:          store,
		credentialEnvs: credentialEnvs,
		chatThreshold:  retrieval.ChatThreshold,
		chatCount:      retrieval.DefaultCount,
	}
}

// SetChatTuning overrides the retrieval threshold and passage count used by
// Ask and AskStream. Non-positive values keep the current setting.
func (s *RAGServiceImpl) SetChatTuning(threshold float64, count int) {
	if threshold > 0 {
		s.chatThreshold = threshold
	}
	if count > 0 {
		s.chatCount = count
	}
}

// Search runs a semantic search with caller-supplied tuning.
func (s *RAGServiceImpl) Search(ctx context.Context, query string, opts retrieval.Options) ([]domain.SearchResult, error) {
	return s.engine.Search(ctx, query, opts)
}

// retrieve validates the question and builds the generator prompt.
func (s *RAGServiceImpl) retrieve(ctx context.Context, question string, filter domain.RetrievalFilter) ([]domain.SearchResult, string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, "", fmt.Errorf("%w: message is required", domain.ErrValidation)
	}
	if s.generator == nil {
		return nil, "", fmt.Errorf("%w: no generator configured", domain.ErrConfiguration)
	}
	opts := retrieval.Options{Count: s.chatCount, Filter: filter}.WithThreshold(s.chatThreshold)
	results, err := s.engine.Search(ctx, question, opts)
	if err != nil {
		return nil, "", err
	}
	logger.Debug("question %q: %d passages", question, len(results))
	return results, assembler.UserMessage(question, assembler.Assemble(results)), nil
}

// Ask answers a question from retrieved passages in one call.
func (s *RAGServiceImpl) Ask(ctx context.Context, question string, filter domain.RetrievalFilter) (Answer, error) {
	results, prompt, err := s.retrieve(ctx, question, filter)
	if err != nil {
		return Answer{}, err
	}
	text, err := s.generator.Complete(ctx, assembler.SystemPrompt, prompt)
	if err != nil {
		return Answer{Sources: results}, err
	}
	return Answer{Text: text, Sources: results}, nil
}

// AskStream answers a question incrementally. onSources is called exactly
// once, before the first call to onDelta.
func (s *RAGServiceImpl) AskStream(ctx context.Context, question string, filter domain.RetrievalFilter,
	onSources func([]domain.SearchResult) error, onDelta func(string) error) error {
	results, prompt, err := s.retrieve(ctx, question, filter)
	if err != nil {
		return err
	}
	if err := onSources(results); err != nil {
		return err
	}
	return s.generator.Stream(ctx, assembler.SystemPrompt, prompt, onDelta)
}

// Health counts stored passages and checks that required credentials are present.
func (s *RAGServiceImpl) Health(ctx context.Context) Health {
	h := Health{Healthy: true}
	n, err := s.store.Count(ctx)
	if err != nil {
		h.Healthy = false
		logger.Error("health: store: %v", err)
		h.Checks = append(h.Checks, Check{Name: "store", Error: "store unreachable"})
	} else {
		h.Passages = n
		h.Checks = append(h.Checks, Check{Name: "store", OK: true})
	}
	for _, env := range s.credentialEnvs {
		c := Check{Name: env, OK: os.Getenv(env) != ""}
		if !c.OK {
			h.Healthy = false
			c.Error = "not set"
		}
		h.Checks = append(h.Checks, c)
	}
	return h
}
