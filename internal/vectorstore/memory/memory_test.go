package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"histrag/internal/domain"
)

func passage(content, book, chapter string, vec ...float32) domain.Passage {
	return domain.Passage{Content: content, Vector: vec, Metadata: domain.ChunkMetadata{Book: book, Chapter: chapter}}
}

func seeded(t *testing.T) *Storage {
	t.Helper()
	s := NewStorage(2)
	ids, err := s.Insert(context.Background(), []domain.Passage{
		passage("a", "I", "I", 1, 0),
		passage("b", "I", "II", 0.8, 0.6),
		passage("c", "II", "I", 0, 1),
	})
	require.NoError(t, err)
	require.Equal(t, []int64{1, 2, 3}, ids)
	return s
}

func TestSearchOrdersAndThresholds(t *testing.T) {
	s := seeded(t)

	res, err := s.Search(context.Background(), []float32{1, 0}, domain.NearestQuery{Threshold: 0, Limit: 10})

	require.NoError(t, err)
	require.Len(t, res, 2, "orthogonal passage sits exactly at threshold and is excluded")
	assert.Equal(t, "a", res[0].Content)
	assert.InDelta(t, 1.0, res[0].Similarity, 1e-6)
	assert.Equal(t, "b", res[1].Content)
	assert.InDelta(t, 0.8, res[1].Similarity, 1e-6)
}

func TestSearchLimitAndFilter(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()

	res, err := s.Search(ctx, []float32{1, 1}, domain.NearestQuery{Threshold: -1, Limit: 1})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "b", res[0].Content)

	res, err = s.Search(ctx, []float32{1, 1}, domain.NearestQuery{Threshold: -1, Limit: 5, Filter: domain.RetrievalFilter{Book: "I", Chapter: "I"}})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, int64(1), res[0].ID)

	res, err = s.Search(ctx, []float32{1, 1}, domain.NearestQuery{Threshold: -1, Limit: 5, Filter: domain.RetrievalFilter{Book: "IV"}})
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestTruncateRestartsIDs(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()

	require.NoError(t, s.Truncate(ctx))
	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	ids, err := s.Insert(ctx, []domain.Passage{passage("z", "I", "I", 1, 1)})
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, ids)
}

func TestInsertRejectsWrongDimension(t *testing.T) {
	s := NewStorage(3)
	_, err := s.Insert(context.Background(), []domain.Passage{passage("x", "I", "I", 1, 0)})
	assert.ErrorIs(t, err, domain.ErrStore)
	n, _ := s.Count(context.Background())
	assert.Zero(t, n)
}
