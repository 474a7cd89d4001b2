// internal/api/export.go
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/deepwiki-go/repochat/internal/models"
	"github.com/gin-gonic/gin"
)

func (s *Server) handleExportWiki(c *gin.Context) {
	var request models.WikiExportRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Invalid request: %v", err)})
		return
	}

	repoParts := strings.Split(strings.TrimRight(request.RepoURL, "/"), "/")
	repoName := repoParts[len(repoParts)-1]
	now := time.Now()
	timestamp := now.Format("20060102_150405")

	var (
		content     []byte
		filename    string
		contentType string
	)
	switch request.Format {
	case "markdown":
		content = []byte(generateMarkdownExport(request.RepoURL, request.Pages, now))
		filename = fmt.Sprintf("%s_wiki_%s.md", repoName, timestamp)
		contentType = "text/markdown; charset=utf-8"
	case "json", "":
		var err error
		content, err = generateJSONExport(request.RepoURL, request.Pages, now)
		if err != nil {
			c.Error(err)
			c.Status(http.StatusInternalServerError)
			return
		}
		filename = fmt.Sprintf("%s_wiki_%s.json", repoName, timestamp)
		contentType = "application/json"
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unsupported export format %q", request.Format)})
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	c.Data(http.StatusOK, contentType, content)
}

func generateMarkdownExport(repoURL string, pages []models.WikiPage, now time.Time) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Wiki Documentation for %s\n\n", repoURL)
	fmt.Fprintf(&sb, "Generated on: %s\n\n", now.Format("2006-01-02 15:04:05"))

	sb.WriteString("## Table of Contents\n\n")
	for _, page := range pages {
		fmt.Fprintf(&sb, "- [%s](#%s)\n", page.Title, page.ID)
	}
	sb.WriteString("\n")

	titles := make(map[string]string, len(pages))
	for _, p := range pages {
		titles[p.ID] = p.Title
	}

	for _, page := range pages {
		fmt.Fprintf(&sb, "<a id='%s'></a>\n\n", page.ID)
		fmt.Fprintf(&sb, "## %s\n\n", page.Title)

		if len(page.FilePaths) > 0 {
			sb.WriteString("### Related Files\n\n")
			for _, filePath := range page.FilePaths {
				fmt.Fprintf(&sb, "- `%s`\n", filePath)
			}
			sb.WriteString("\n")
		}

		var related []string
		for _, id := range page.RelatedPages {
			if title, ok := titles[id]; ok {
				related = append(related, fmt.Sprintf("[%s](#%s)", title, id))
			}
		}
		if len(related) > 0 {
			sb.WriteString("### Related Pages\n\n")
			sb.WriteString("Related topics: " + strings.Join(related, ", ") + "\n\n")
		}

		fmt.Fprintf(&sb, "%s\n\n", page.Content)
		sb.WriteString("---\n\n")
	}
	return sb.String()
}

type exportMetadata struct {
	Repository  string    `json:"repository"`
	GeneratedAt time.Time `json:"generated_at"`
	PageCount   int       `json:"page_count"`
}

type exportData struct {
	Metadata exportMetadata    `json:"metadata"`
	Pages    []models.WikiPage `json:"pages"`
}

func generateJSONExport(repoURL string, pages []models.WikiPage, now time.Time) ([]byte, error) {
	if pages == nil {
		pages = []models.WikiPage{}
	}
	out, err := json.MarshalIndent(exportData{
		Metadata: exportMetadata{Repository: repoURL, GeneratedAt: now, PageCount: len(pages)},
		Pages:    pages,
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode wiki export: %w", err)
	}
	return out, nil
}
