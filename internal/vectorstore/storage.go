// Package vectorstore defines the passage store contract shared by all backends.
package vectorstore

import (
	"context"
	"math"

	"histrag/internal/domain"
)

// Storage persists embedded passages and answers nearest-neighbour queries.
//
// Implementations return only rows whose similarity is strictly greater than
// the query threshold, ordered by similarity descending, at most Limit rows.
// Ids are assigned on insert, never reused until Truncate, which restarts them.
type Storage interface {
	Insert(ctx context.Context, passages []domain.Passage) ([]int64, error)
	Truncate(ctx context.Context) error
	Search(ctx context.Context, vector []float32, q domain.NearestQuery) ([]domain.SearchResult, error)
	Count(ctx context.Context) (int64, error)
	Close() error
}

// Cosine returns the cosine similarity of a and b, or 0 when either is a zero
// vector or the lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
