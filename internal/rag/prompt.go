package rag

import (
	"embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/deepwiki-go/repochat/internal/models"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

const (
	contextStart = "<START_OF_CONTEXT>"
	contextEnd   = "<END_OF_CONTEXT>"

	noRetrievalNote = "<note>Answering without retrieval augmentation.</note>"
	oversizedNote   = "<note>Answering without retrieval augmentation due to input size constraints.</note>"

	contextSeparator = "\n\n----------\n\n"
)

//go:embed prompts/*.tmpl
var promptFS embed.FS

var systemTemplates = template.Must(template.ParseFS(promptFS, "prompts/*.tmpl"))

// RepoInfo identifies the repository a prompt talks about
type RepoInfo struct {
	RepoType string
	RepoURL  string
	RepoName string
	Language string
}

// RepoName is the last path segment of a repository location
func RepoName(repoURL string) string {
	if i := strings.LastIndex(repoURL, "/"); i >= 0 {
		return repoURL[i+1:]
	}
	return repoURL
}

// SystemPrompt renders the role and guidelines for the current turn.
func SystemPrompt(info RepoInfo, research Research) (string, error) {
	name := "answer.tmpl"
	switch {
	case research.IsFirst():
		name = "research_plan.tmpl"
	case research.IsFinal():
		name = "research_final.tmpl"
	case research.Enabled:
		name = "research_update.tmpl"
	}

	data := struct {
		RepoInfo
		Iteration int
	}{info, research.Iteration}

	var sb strings.Builder
	if err := systemTemplates.ExecuteTemplate(&sb, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

// FormatContext groups retrieved chunks by source file, keeping the order in
// which each file was first seen.
func FormatContext(docs []models.Document) string {
	if len(docs) == 0 {
		return ""
	}

	var order []string
	byFile := make(map[string][]string)
	for _, doc := range docs {
		fp := doc.MetaData.FilePath
		if fp == "" {
			fp = "unknown"
		}
		if _, seen := byFile[fp]; !seen {
			order = append(order, fp)
		}
		byFile[fp] = append(byFile[fp], doc.Text)
	}

	parts := make([]string, 0, len(order))
	for _, fp := range order {
		parts = append(parts, "## File Path: "+fp+"\n\n"+strings.Join(byFile[fp], "\n\n"))
	}
	return contextSeparator + strings.Join(parts, contextSeparator)
}

// PromptParts are the pieces a generation prompt is assembled from
type PromptParts struct {
	SystemPrompt string
	History      string
	FilePath     string
	FileContent  string
	Context      string
	Query        string
}

// BuildPrompt assembles the full prompt. Retrieved context is included only
// when it is not blank; otherwise a note says none was used.
func BuildPrompt(p PromptParts) string {
	var sb strings.Builder
	writeHead(&sb, p)
	if strings.TrimSpace(p.Context) != "" {
		sb.WriteString(contextStart + "\n" + p.Context + "\n" + contextEnd + "\n\n")
	} else {
		sb.WriteString(noRetrievalNote + "\n\n")
	}
	writeQuery(&sb, p)
	return sb.String()
}

// BuildFallbackPrompt is BuildPrompt without retrieved context, used after
// the model rejected the full prompt as too large.
func BuildFallbackPrompt(p PromptParts) string {
	var sb strings.Builder
	writeHead(&sb, p)
	sb.WriteString(oversizedNote + "\n\n")
	writeQuery(&sb, p)
	return sb.String()
}

func writeHead(sb *strings.Builder, p PromptParts) {
	sb.WriteString("/no_think " + p.SystemPrompt + "\n\n")
	if p.History != "" {
		sb.WriteString("<conversation_history>\n" + p.History + "</conversation_history>\n\n")
	}
	if p.FileContent != "" {
		fmt.Fprintf(sb, "<currentFileContent path=\"%s\">\n%s\n</currentFileContent>\n\n", p.FilePath, p.FileContent)
	}
}

func writeQuery(sb *strings.Builder, p PromptParts) {
	sb.WriteString("<query>\n" + p.Query + "\n</query>\n\nAssistant: ")
}
