package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"histrag/internal/domain"
	"histrag/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeService struct {
	results   []domain.SearchResult
	deltas    []string
	err       error
	streamErr error
	filter    domain.RetrievalFilter
	health    service.Health
}

func (f *fakeService) AskStream(_ context.Context, question string, filter domain.RetrievalFilter,
	onSources func([]domain.SearchResult) error, onDelta func(string) error) error {
	f.filter = filter
	if f.err != nil {
		return f.err
	}
	if err := onSources(f.results); err != nil {
		return err
	}
	for _, d := range f.deltas {
		if err := onDelta(d); err != nil {
			return err
		}
	}
	return f.streamErr
}

func (f *fakeService) Health(context.Context) service.Health { return f.health }

func do(t *testing.T, svc ChatService, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	router := NewRouter(svc, Config{AllowedOrigins: []string{"http://localhost:3000"}})
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func events(t *testing.T, body string) []map[string]any {
	t.Helper()
	var out []map[string]any
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev map[string]any
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
		out = append(out, ev)
	}
	return out
}

func TestChatStreamsSourcesTextDone(t *testing.T) {
	svc := &fakeService{
		results: []domain.SearchResult{{ID: 7, Content: strings.Repeat("a", 250), Similarity: 0.8, Metadata: domain.ChunkMetadata{Book: "II", Chapter: "I"}}},
		deltas:  []string{"Le ", "bailli"},
	}

	rec := do(t, svc, http.MethodPost, "/api/chat", `{"message":"Qui ?","filter":{"book":"II"}}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
	assert.Equal(t, "II", svc.filter.Book)

	evs := events(t, rec.Body.String())
	require.Len(t, evs, 4)
	assert.Equal(t, "sources", evs[0]["type"])
	src := evs[0]["sources"].([]any)[0].(map[string]any)
	assert.Equal(t, float64(7), src["id"])
	assert.Len(t, []rune(src["preview"].(string)), 203)
	assert.Equal(t, map[string]any{"type": "text", "text": "Le "}, evs[1])
	assert.Equal(t, "bailli", evs[2]["text"])
	assert.Equal(t, "done", evs[3]["type"])
}

func TestChatEmptySourcesStillSent(t *testing.T) {
	rec := do(t, &fakeService{}, http.MethodPost, "/api/chat", `{"message":"x"}`)

	evs := events(t, rec.Body.String())
	require.Len(t, evs, 2)
	assert.Equal(t, []any{}, evs[0]["sources"])
}

func TestChatMissingMessage(t *testing.T) {
	for _, body := range []string{`{}`, `{"message":"  "}`, `not json`} {
		rec := do(t, &fakeService{}, http.MethodPost, "/api/chat", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.JSONEq(t, `{"error":"Message requis"}`, rec.Body.String())
	}
}

func TestChatFailureBeforeStreamIsGeneric500(t *testing.T) {
	svc := &fakeService{err: errors.Join(domain.ErrStore, errors.New("connection refused on 10.0.0.3"))}

	rec := do(t, svc, http.MethodPost, "/api/chat", `{"message":"x"}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Erreur serveur"}`, rec.Body.String())
}

func TestChatFailureMidStreamSendsErrorEvent(t *testing.T) {
	svc := &fakeService{deltas: []string{"a"}, streamErr: errors.Join(domain.ErrGeneration, errors.New("secret detail"))}

	rec := do(t, svc, http.MethodPost, "/api/chat", `{"message":"x"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	evs := events(t, rec.Body.String())
	require.Len(t, evs, 3)
	assert.Equal(t, "error", evs[2]["type"])
	assert.NotContains(t, rec.Body.String(), "secret detail")
}

func TestHealth(t *testing.T) {
	rec := do(t, &fakeService{health: service.Health{Healthy: true, Passages: 12}}, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"healthy"`)

	rec = do(t, &fakeService{health: service.Health{Checks: []service.Check{{Name: "store", Error: "store unreachable"}}}}, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"unhealthy"`)
}

func decodeSuggestions(t *testing.T, rec *httptest.ResponseRecorder) []string {
	t.Helper()
	var body struct {
		Suggestions []string `json:"suggestions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Suggestions
}

func TestSuggestions(t *testing.T) {
	got := decodeSuggestions(t, do(t, &fakeService{}, http.MethodGet, "/api/suggestions", ""))
	assert.Len(t, got, 5)
	assert.Subset(t, initialSuggestions, got)

	got = decodeSuggestions(t, do(t, &fakeService{}, http.MethodPost, "/api/suggestions", `{"lastTopic":"commerce"}`))
	assert.Len(t, got, 3)
	assert.ElementsMatch(t, followUps["commerce"], got)

	got = decodeSuggestions(t, do(t, &fakeService{}, http.MethodPost, "/api/suggestions", `{"lastTopic":"inconnu"}`))
	assert.Len(t, got, 3)
}

func TestRequestIDPropagated(t *testing.T) {
	router := NewRouter(&fakeService{health: service.Health{Healthy: true}}, Config{})
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
}

func TestCORSPreflight(t *testing.T) {
	router := NewRouter(&fakeService{}, Config{AllowedOrigins: []string{"http://localhost:3000"}})
	req := httptest.NewRequest(http.MethodOptions, "/api/chat", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}
