// Package api exposes the question-answering service over HTTP.
package api

import (
	"context"

	"github.com/gin-gonic/gin"

	"histrag/internal/domain"
	"histrag/internal/service"
)

// ChatService is the subset of the RAG service the HTTP layer needs.
type ChatService interface {
	AskStream(ctx context.Context, question string, filter domain.RetrievalFilter,
		onSources func([]domain.SearchResult) error, onDelta func(string) error) error
	Health(ctx context.Context) service.Health
}

type Config struct {
	AllowedOrigins []string
}

// NewRouter builds the gin engine with every /api route registered.
func NewRouter(svc ChatService, cfg Config) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestID(), AccessLog(), CORS(cfg.AllowedOrigins))

	h := &handlers{svc: svc, suggestions: newSuggester()}
	api := router.Group("/api")
	api.POST("/chat", h.chat)
	api.GET("/health", h.health)
	api.GET("/suggestions", h.initialSuggestions)
	api.POST("/suggestions", h.followUpSuggestions)
	return router
}

type handlers struct {
	svc         ChatService
	suggestions *suggester
}
