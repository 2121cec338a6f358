package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"histrag/internal/assembler"
	"histrag/internal/domain"
	"histrag/internal/logger"
)

const previewLength = 200

type chatRequest struct {
	Message string                  `json:"message"`
	Filter  *domain.RetrievalFilter `json:"filter,omitempty"`
}

type sourcePreview struct {
	ID         int64                `json:"id"`
	Metadata   domain.ChunkMetadata `json:"metadata"`
	Similarity float64              `json:"similarity"`
	Preview    string               `json:"preview"`
}

type sourcesEvent struct {
	Type    string          `json:"type"`
	Sources []sourcePreview `json:"sources"`
}

// sseWriter emits "data: <json>\n\n" frames, committing the stream headers on
// the first frame.
type sseWriter struct {
	c       *gin.Context
	started bool
}

func (w *sseWriter) send(event any) error {
	if !w.started {
		w.started = true
		w.c.Header("Content-Type", "text/event-stream")
		w.c.Header("Cache-Control", "no-cache")
		w.c.Header("Connection", "keep-alive")
		w.c.Status(http.StatusOK)
	}
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w.c.Writer, "data: %s\n\n", data); err != nil {
		return err
	}
	w.c.Writer.Flush()
	return nil
}

func (h *handlers) chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Message requis"})
		return
	}
	var filter domain.RetrievalFilter
	if req.Filter != nil {
		filter = *req.Filter
	}

	w := &sseWriter{c: c}
	onSources := func(results []domain.SearchResult) error {
		sources := make([]sourcePreview, len(results))
		for i, r := range results {
			sources[i] = sourcePreview{
				ID:         r.ID,
				Metadata:   r.Metadata,
				Similarity: r.Similarity,
				Preview:    assembler.Preview(r.Content, previewLength),
			}
		}
		return w.send(sourcesEvent{Type: "sources", Sources: sources})
	}
	onDelta := func(text string) error {
		return w.send(gin.H{"type": "text", "text": text})
	}

	err := h.svc.AskStream(c.Request.Context(), req.Message, filter, onSources, onDelta)
	switch {
	case err == nil:
		_ = w.send(gin.H{"type": "done"})
	case !w.started && errors.Is(err, domain.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Message requis"})
	case !w.started:
		logger.Error("chat request %s: %v", GetRequestID(c), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur serveur"})
	default:
		logger.Error("chat stream %s: %v", GetRequestID(c), err)
		_ = w.send(gin.H{"type": "error", "message": "Erreur lors de la génération de la réponse"})
	}
}

func (h *handlers) health(c *gin.Context) {
	report := h.svc.Health(c.Request.Context())
	status, code := "healthy", http.StatusOK
	if !report.Healthy {
		status, code = "unhealthy", http.StatusInternalServerError
	}
	c.JSON(code, gin.H{"status": status, "passages": report.Passages, "checks": report.Checks})
}
