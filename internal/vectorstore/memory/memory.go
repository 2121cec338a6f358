// Package memory is an in-process passage store using brute-force cosine similarity.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"histrag/internal/domain"
	"histrag/internal/vectorstore"
)

type row struct {
	id      int64
	passage domain.Passage
}

// Storage keeps passages in memory. It is safe for concurrent use.
type Storage struct {
	mu        sync.RWMutex
	dimension int
	rows      []row
	nextID    int64
}

// NewStorage creates an empty store. A positive dimension makes Insert reject
// vectors of any other length.
func NewStorage(dimension int) *Storage {
	return &Storage{dimension: dimension, nextID: 1}
}

func (s *Storage) Insert(_ context.Context, passages []domain.Passage) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, p := range passages {
		if s.dimension > 0 && len(p.Vector) != s.dimension {
			return nil, fmt.Errorf("%w: passage %d has dimension %d, want %d", domain.ErrStore, i, len(p.Vector), s.dimension)
		}
	}
	ids := make([]int64, len(passages))
	for i, p := range passages {
		ids[i] = s.nextID
		vec := make([]float32, len(p.Vector))
		copy(vec, p.Vector)
		p.Vector = vec
		s.rows = append(s.rows, row{id: s.nextID, passage: p})
		s.nextID++
	}
	return ids, nil
}

func (s *Storage) Truncate(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = nil
	s.nextID = 1
	return nil
}

func (s *Storage) Search(_ context.Context, vector []float32, q domain.NearestQuery) ([]domain.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if q.Limit <= 0 {
		return []domain.SearchResult{}, nil
	}
	results := make([]domain.SearchResult, 0)
	for _, r := range s.rows {
		if !q.Filter.Matches(r.passage.Metadata) {
			continue
		}
		sim := vectorstore.Cosine(r.passage.Vector, vector)
		if sim <= q.Threshold {
			continue
		}
		results = append(results, domain.SearchResult{
			ID:         r.id,
			Content:    r.passage.Content,
			Metadata:   r.passage.Metadata,
			Similarity: sim,
		})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Similarity > results[j].Similarity })
	if len(results) > q.Limit {
		results = results[:q.Limit]
	}
	return results, nil
}

func (s *Storage) Count(context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.rows)), nil
}

func (s *Storage) Close() error { return nil }
