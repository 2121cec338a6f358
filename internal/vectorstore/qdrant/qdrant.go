// Package qdrant stores passages in a Qdrant collection over its REST API.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"histrag/internal/domain"
)

// Storage is a minimal REST client to Qdrant.
// It assumes cosine distance and creates the collection if missing.
type Storage struct {
	url        string
	apiKey     string
	collection string
	dimension  int
	client     *http.Client

	mu     sync.Mutex
	nextID int64 // 0 until loaded from the collection size
}

type Config struct {
	URL        string
	APIKey     string
	Collection string
	Dimension  int
	Timeout    time.Duration
}

type payload struct {
	Content string `json:"content"`
	domain.ChunkMetadata
}

func NewStorage(cfg Config) *Storage {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	if cfg.Collection == "" {
		cfg.Collection = "passages"
	}
	return &Storage{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		dimension:  cfg.Dimension,
		client:     &http.Client{Timeout: timeout},
	}
}

// EnsureCollection creates the collection when it does not exist yet.
func (s *Storage) EnsureCollection(ctx context.Context) error {
	status, err := s.do(ctx, http.MethodGet, s.collectionURL(""), nil, nil)
	if err == nil {
		return nil
	}
	if status != http.StatusNotFound {
		return err
	}
	return s.create(ctx)
}

func (s *Storage) create(ctx context.Context) error {
	if s.dimension <= 0 {
		return fmt.Errorf("%w: qdrant collection needs a positive dimension", domain.ErrConfiguration)
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     s.dimension,
			"distance": "Cosine",
		},
	}
	_, err := s.do(ctx, http.MethodPut, s.collectionURL(""), body, nil)
	return err
}

func (s *Storage) Insert(ctx context.Context, passages []domain.Passage) ([]int64, error) {
	if len(passages) == 0 {
		return []int64{}, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadNextID(ctx); err != nil {
		return nil, err
	}

	ids := make([]int64, len(passages))
	points := make([]map[string]any, len(passages))
	for i, p := range passages {
		if s.dimension > 0 && len(p.Vector) != s.dimension {
			return nil, fmt.Errorf("%w: passage %d has dimension %d, want %d", domain.ErrStore, i, len(p.Vector), s.dimension)
		}
		ids[i] = s.nextID + int64(i)
		points[i] = map[string]any{
			"id":      ids[i],
			"vector":  p.Vector,
			"payload": payload{Content: p.Content, ChunkMetadata: p.Metadata},
		}
	}
	body := map[string]any{"points": points}
	if _, err := s.do(ctx, http.MethodPut, s.collectionURL("/points?wait=true"), body, nil); err != nil {
		return nil, err
	}
	s.nextID += int64(len(passages))
	return ids, nil
}

// loadNextID seeds the id counter from the collection size. Caller holds s.mu.
func (s *Storage) loadNextID(ctx context.Context) error {
	if s.nextID > 0 {
		return nil
	}
	n, err := s.Count(ctx)
	if err != nil {
		return err
	}
	s.nextID = n + 1
	return nil
}

func (s *Storage) Search(ctx context.Context, vector []float32, q domain.NearestQuery) ([]domain.SearchResult, error) {
	if q.Limit <= 0 {
		return []domain.SearchResult{}, nil
	}
	req := map[string]any{
		"vector":          vector,
		"limit":           q.Limit,
		"with_payload":    true,
		"score_threshold": q.Threshold,
	}
	if f := buildFilter(q.Filter); f != nil {
		req["filter"] = f
	}
	var resp struct {
		Result []struct {
			ID      int64   `json:"id"`
			Score   float64 `json:"score"`
			Payload payload `json:"payload"`
		} `json:"result"`
	}
	if _, err := s.do(ctx, http.MethodPost, s.collectionURL("/points/search"), req, &resp); err != nil {
		return nil, err
	}
	results := make([]domain.SearchResult, 0, len(resp.Result))
	for _, r := range resp.Result {
		// score_threshold is inclusive on the server side.
		if r.Score <= q.Threshold {
			continue
		}
		results = append(results, domain.SearchResult{
			ID:         r.ID,
			Content:    r.Payload.Content,
			Metadata:   r.Payload.ChunkMetadata,
			Similarity: r.Score,
		})
	}
	return results, nil
}

func buildFilter(f domain.RetrievalFilter) map[string]any {
	if f.IsEmpty() {
		return nil
	}
	var must []map[string]any
	if f.Book != "" {
		must = append(must, map[string]any{"key": "book", "match": map[string]any{"value": f.Book}})
	}
	if f.Chapter != "" {
		must = append(must, map[string]any{"key": "chapter", "match": map[string]any{"value": f.Chapter}})
	}
	return map[string]any{"must": must}
}

func (s *Storage) Count(ctx context.Context) (int64, error) {
	var resp struct {
		Result struct {
			Count int64 `json:"count"`
		} `json:"result"`
	}
	if _, err := s.do(ctx, http.MethodPost, s.collectionURL("/points/count"), map[string]any{"exact": true}, &resp); err != nil {
		return 0, err
	}
	return resp.Result.Count, nil
}

// Truncate drops and recreates the collection, restarting ids at 1.
func (s *Storage) Truncate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	status, err := s.do(ctx, http.MethodDelete, s.collectionURL(""), nil, nil)
	if err != nil && status != http.StatusNotFound {
		return err
	}
	if err := s.create(ctx); err != nil {
		return err
	}
	s.nextID = 1
	return nil
}

func (s *Storage) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

func (s *Storage) collectionURL(suffix string) string {
	return fmt.Sprintf("%s/collections/%s%s", s.url, s.collection, suffix)
}

// do sends a JSON request and decodes the response into out when non-nil.
// The HTTP status is returned even on failure so callers can special-case 404.
func (s *Storage) do(ctx context.Context, method, url string, body, out any) (int, error) {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("%w: encode qdrant request: %w", domain.ErrStore, err)
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", domain.ErrStore, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: qdrant %s: %w", domain.ErrStore, method, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return resp.StatusCode, fmt.Errorf("%w: qdrant %s %s failed: %s %s", domain.ErrStore, method, url, resp.Status, bytes.TrimSpace(msg))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("%w: decode qdrant response: %w", domain.ErrStore, err)
		}
	}
	return resp.StatusCode, nil
}
