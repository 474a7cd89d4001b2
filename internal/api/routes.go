// internal/api/routes.go
package api

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/deepwiki-go/repochat/internal/config"
	"github.com/deepwiki-go/repochat/internal/models"
	"github.com/deepwiki-go/repochat/internal/rag"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
)

const shutdownTimeout = 10 * time.Second

// ChatService answers a chat request with a stream of text fragments
type ChatService interface {
	Chat(ctx context.Context, req models.ChatCompletionRequest) (<-chan string, error)
	Forget(repoID string)
}

// IndexAdmin exposes persisted and in-memory index state
type IndexAdmin interface {
	Reset(repoID string) bool
	ListProcessed(ctx context.Context) ([]models.ProcessedProject, error)
}

// ModelCatalog lists the generation providers that can serve requests
type ModelCatalog interface {
	List() []rag.ProviderInfo
}

// Server is the HTTP boundary of the service
type Server struct {
	router  *gin.Engine
	config  *config.Config
	chat    ChatService
	indexes IndexAdmin
	models  ModelCatalog
}

// NewServer wires middleware and routes. rdb may be nil, in which case rate
// limiting stays in memory.
func NewServer(cfg *config.Config, chat ChatService, indexes IndexAdmin, catalog ModelCatalog, rdb redis.UniversalClient) *Server {
	router := gin.New()
	router.Use(
		gin.Recovery(),
		LoggingMiddleware(),
		CORSMiddleware(cfg.Server.AllowedOrigins),
		RateLimitMiddleware(rdb, cfg.RateLimit.RequestsPerMinute),
		ErrorHandlerMiddleware(),
	)

	s := &Server{
		router:  router,
		config:  cfg,
		chat:    chat,
		indexes: indexes,
		models:  catalog,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.router.GET("/", s.handleRoot)
	s.router.GET("/health", s.handleHealth)

	s.router.POST("/chat/completions/stream", s.handleChatCompletions)

	s.router.GET("/models/config", s.handleModelsConfig)
	s.router.GET("/api/processed_projects", s.handleProcessedProjects)
	s.router.DELETE("/index/:id", s.handleResetIndex)

	s.router.POST("/export/wiki", s.handleExportWiki)
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	addr := net.JoinHostPort(s.config.Server.Host, s.config.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Starting server on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		log.Println("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
