// Package retrieval answers similarity queries: one embedding call followed by
// one nearest-neighbour lookup.
package retrieval

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"histrag/internal/domain"
	"histrag/internal/embedding"
	"histrag/internal/vectorstore"
)

const (
	// DefaultThreshold applies when a caller does not tune the search.
	DefaultThreshold = 0.4
	// ChatThreshold is the looser threshold used when answering questions.
	ChatThreshold = 0.35
	DefaultCount  = 8
)

// Options tunes a single search. A nil Threshold means DefaultThreshold.
type Options struct {
	Threshold *float64
	Count     int
	Filter    domain.RetrievalFilter
}

// WithThreshold returns a copy of o with an explicit threshold.
func (o Options) WithThreshold(t float64) Options {
	o.Threshold = &t
	return o
}

func (o Options) resolve() domain.NearestQuery {
	q := domain.NearestQuery{Threshold: DefaultThreshold, Limit: o.Count, Filter: o.Filter}
	if o.Threshold != nil {
		q.Threshold = *o.Threshold
	}
	if q.Limit <= 0 {
		q.Limit = DefaultCount
	}
	return q
}

// Engine performs semantic search over stored passages.
type Engine struct {
	embedder embedding.Embedder
	store    vectorstore.Storage
}

func NewEngine(embedder embedding.Embedder, store vectorstore.Storage) *Engine {
	return &Engine{embedder: embedder, store: store}
}

// Search embeds query and returns passages with similarity strictly above the
// threshold, most similar first. No match yields an empty slice, not an error.
func (e *Engine) Search(ctx context.Context, query string, opts Options) ([]domain.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query text is required", domain.ErrValidation)
	}
	q := opts.resolve()

	ctx, span := otel.Tracer("histrag/retrieval").Start(ctx, "retrieval.search")
	defer span.End()
	span.SetAttributes(
		attribute.Float64("retrieval.threshold", q.Threshold),
		attribute.Int("retrieval.count", q.Limit),
		attribute.String("retrieval.filter.book", q.Filter.Book),
		attribute.String("retrieval.filter.chapter", q.Filter.Chapter),
	)

	vec, err := embedding.EmbedOne(ctx, e.embedder, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "embed query")
		return nil, err
	}
	results, err := e.store.Search(ctx, vec, q)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "store search")
		return nil, err
	}
	span.SetAttributes(attribute.Int("retrieval.results", len(results)))
	return results, nil
}
