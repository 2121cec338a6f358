package domain

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRetrievalFilterMatches(t *testing.T) {
	meta := ChunkMetadata{Book: "I", Chapter: "III"}

	tests := []struct {
		name   string
		filter RetrievalFilter
		want   bool
	}{
		{"empty filter", RetrievalFilter{}, true},
		{"book match", RetrievalFilter{Book: "I"}, true},
		{"book mismatch", RetrievalFilter{Book: "II"}, false},
		{"both match", RetrievalFilter{Book: "I", Chapter: "III"}, true},
		{"chapter mismatch", RetrievalFilter{Book: "I", Chapter: "II"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Matches(meta))
		})
	}
	assert.True(t, RetrievalFilter{}.IsEmpty())
	assert.False(t, RetrievalFilter{Chapter: "I"}.IsEmpty())
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.True(t, IsRetryable(fmt.Errorf("%w: timeout", ErrEmbeddingService)))
	assert.True(t, IsRetryable(fmt.Errorf("%w: %w: 429", ErrEmbeddingService, ErrRateLimited)))
	assert.False(t, IsRetryable(fmt.Errorf("%w: bad input", ErrValidation)))
	assert.False(t, IsRetryable(fmt.Errorf("%w: %w", ErrEmbeddingService, ErrConfiguration)))
	assert.False(t, IsRetryable(fmt.Errorf("%w: insert", ErrStore)))
}

func TestHasPages(t *testing.T) {
	assert.False(t, ChunkMetadata{}.HasPages())
	assert.True(t, ChunkMetadata{PageStart: 4, PageEnd: 4}.HasPages())
}
