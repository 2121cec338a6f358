package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"histrag/internal/domain"
	"histrag/internal/embedding"
)

const testKeyEnv = "HISTRAG_TEST_EMBED_KEY"

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

func newTestClient(t *testing.T, handler http.HandlerFunc, dim int) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	t.Setenv(testKeyEnv, "sk-test")
	c, err := NewClient(Config{BaseURL: srv.URL, APIKeyEnv: testKeyEnv, Dimension: dim, Title: "histrag tests"})
	require.NoError(t, err)
	return c
}

func writeEmbeddings(w http.ResponseWriter, vectors map[int][]float64) {
	type item struct {
		Object    string    `json:"object"`
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	}
	var data []item
	// Reverse order to prove the client reorders by index.
	for i := len(vectors) - 1; i >= 0; i-- {
		data = append(data, item{Object: "embedding", Index: i, Embedding: vectors[i]})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"object": "list",
		"model":  DefaultModel,
		"data":   data,
		"usage":  map[string]int{"prompt_tokens": 3, "total_tokens": 3},
	})
}

func TestEmbedBatchInOrder(t *testing.T) {
	var got embedRequest
	var auth, title string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		auth = r.Header.Get("Authorization")
		title = r.Header.Get("X-Title")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeEmbeddings(w, map[int][]float64{0: {1, 0, 0}, 1: {0, 1, 0}, 2: {0, 0, 1}})
	}, 3)

	vecs, err := c.Embed(context.Background(), []string{"a", "b", "c"})

	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}, vecs)
	assert.Equal(t, []string{"a", "b", "c"}, got.Input)
	assert.Equal(t, DefaultModel, got.Model)
	assert.Equal(t, "Bearer sk-test", auth)
	assert.Equal(t, "histrag tests", title)
}

func TestEmbedSingleThroughHelper(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeEmbeddings(w, map[int][]float64{0: {0.6, 0.8}})
	}, 2)

	vec, err := embedding.EmbedOne(context.Background(), c, "seigneurs d'Enghien")

	require.NoError(t, err)
	assert.Equal(t, []float32{0.6, 0.8}, vec)
}

func TestEmbedEmptyInput(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	}, 2)

	vecs, err := c.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vecs)
}

func TestEmbedDimensionMismatch(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeEmbeddings(w, map[int][]float64{0: {1, 0}})
	}, 1536)

	_, err := c.Embed(context.Background(), []string{"a"})
	assert.ErrorIs(t, err, domain.ErrEmbeddingService)
}

func TestEmbedClassifiesFailures(t *testing.T) {
	tests := []struct {
		status    int
		rateLimit bool
		retryable bool
	}{
		{http.StatusTooManyRequests, true, true},
		{http.StatusInternalServerError, false, true},
		{http.StatusUnauthorized, false, false},
		{http.StatusBadRequest, false, false},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error":{"message":"nope","type":"test"}}`))
			}, 2)

			_, err := c.Embed(context.Background(), []string{"a"})

			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrEmbeddingService)
			assert.Equal(t, tt.rateLimit, errors.Is(err, domain.ErrRateLimited))
			assert.Equal(t, tt.retryable, domain.IsRetryable(err))
		})
	}
}

func TestNewClientRequiresKey(t *testing.T) {
	t.Setenv(testKeyEnv, "")
	_, err := NewClient(Config{APIKeyEnv: testKeyEnv})
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}
