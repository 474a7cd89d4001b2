// internal/api/handlers.go
package api

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/deepwiki-go/repochat/internal/data"
	"github.com/deepwiki-go/repochat/internal/models"
	"github.com/deepwiki-go/repochat/internal/rag"
	"github.com/gin-gonic/gin"
)

const serviceVersion = "1.0.0"

func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "Welcome to the repository chat API",
		"version": serviceVersion,
		"endpoints": gin.H{
			"Chat": []string{
				"POST /chat/completions/stream - Streaming chat completion over a repository",
			},
			"Wiki": []string{
				"POST /export/wiki - Export wiki content as Markdown or JSON",
			},
			"Index": []string{
				"GET /api/processed_projects - List persisted repository indexes",
				"DELETE /index/:id - Drop the in-memory index of a repository",
			},
			"Models": []string{
				"GET /models/config - List available generation providers",
			},
		},
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleModelsConfig(c *gin.Context) {
	providers := s.models.List()
	defaultProvider := ""
	for _, p := range providers {
		if p.Active {
			defaultProvider = p.Name
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"providers":       providers,
		"defaultProvider": defaultProvider,
	})
}

func (s *Server) handleProcessedProjects(c *gin.Context) {
	projects, err := s.indexes.ListProcessed(c.Request.Context())
	if err != nil {
		c.Error(fmt.Errorf("list processed projects: %w", err))
		c.Status(http.StatusInternalServerError)
		return
	}
	if projects == nil {
		projects = []models.ProcessedProject{}
	}
	c.JSON(http.StatusOK, projects)
}

func (s *Server) handleResetIndex(c *gin.Context) {
	id := c.Param("id")
	reset := s.indexes.Reset(id)
	s.chat.Forget(id)
	c.JSON(http.StatusOK, gin.H{"id": id, "reset": reset})
}

// handleChatCompletions validates and indexes before the first byte is
// written, so those failures get a proper status code. After that the answer
// is relayed as server-sent events until it ends or the client goes away.
func (s *Server) handleChatCompletions(c *gin.Context) {
	var request models.ChatCompletionRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Invalid request: %v", err)})
		return
	}

	stream, err := s.chat.Chat(c.Request.Context(), request)
	if err != nil {
		status := chatErrorStatus(err)
		log.Printf("Chat request for %s rejected (%d): %v", request.RepoURL, status, err)
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	c.Stream(func(w io.Writer) bool {
		fragment, ok := <-stream
		if !ok {
			return false
		}
		c.SSEvent("", fragment)
		return true
	})
}

// chatErrorStatus maps an error returned before streaming to a status code.
func chatErrorStatus(err error) int {
	switch {
	case rag.IsInputError(err), data.IsMalformed(err):
		return http.StatusBadRequest
	case data.IsNotFound(err):
		return http.StatusNotFound
	case data.IsUnauthorized(err):
		return http.StatusUnauthorized
	case data.IsForbidden(err):
		return http.StatusForbidden
	case data.IsServerError(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
