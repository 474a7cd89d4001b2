// internal/models/models.go
package models

import (
	"fmt"
	"strings"
)

// RepoKind names the hosting provider of a repository
type RepoKind string

const (
	RepoGitHub    RepoKind = "github"
	RepoGitLab    RepoKind = "gitlab"
	RepoBitbucket RepoKind = "bitbucket"
	RepoLocal     RepoKind = "local"
)

// ParseRepoKind normalises a kind string; empty defaults to github.
func ParseRepoKind(s string) (RepoKind, error) {
	switch k := RepoKind(strings.ToLower(strings.TrimSpace(s))); k {
	case "":
		return RepoGitHub, nil
	case RepoGitHub, RepoGitLab, RepoBitbucket, RepoLocal:
		return k, nil
	default:
		return "", fmt.Errorf("unsupported repository type %q", s)
	}
}

// DisplayName is the provider name used in prompts
func (k RepoKind) DisplayName() string {
	switch k {
	case RepoGitLab:
		return "GitLab"
	case RepoBitbucket:
		return "Bitbucket"
	case RepoLocal:
		return "local"
	default:
		return "GitHub"
	}
}

// ChatMessage is one message of a conversation
type ChatMessage struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// ChatCompletionRequest is the inbound chat request. Filter lists are
// newline separated and may be URL encoded.
type ChatCompletionRequest struct {
	RepoURL       string        `json:"repo_url"`
	Type          string        `json:"type,omitempty"`
	Messages      []ChatMessage `json:"messages"`
	FilePath      string        `json:"filePath,omitempty"`
	Token         string        `json:"token,omitempty"`
	Provider      string        `json:"provider,omitempty"`
	Model         string        `json:"model,omitempty"`
	Language      string        `json:"language,omitempty"`
	ExcludedDirs  string        `json:"excluded_dirs,omitempty"`
	ExcludedFiles string        `json:"excluded_files,omitempty"`
	IncludedDirs  string        `json:"included_dirs,omitempty"`
	IncludedFiles string        `json:"included_files,omitempty"`
}

// Metadata describes the source file a Document came from
type Metadata struct {
	FilePath         string `json:"file_path"`
	FileType         string `json:"type"`
	IsCode           bool   `json:"is_code"`
	IsImplementation bool   `json:"is_implementation"`
	Title            string `json:"title"`
	TokenCount       int    `json:"token_count"`
}

// Document is an indexed chunk of a source file. Vector is nil until the embedding stage and is
// never modified afterwards.
type Document struct {
	ID       string    `json:"id"`
	Text     string    `json:"text"`
	MetaData Metadata  `json:"meta_data"`
	Vector   []float32 `json:"vector,omitempty"`
}

// HasVector reports whether the document carries a usable embedding
func (d Document) HasVector() bool {
	return len(d.Vector) > 0
}

// WikiPage is one page of a generated wiki
type WikiPage struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Content      string   `json:"content"`
	FilePaths    []string `json:"filePaths,omitempty"`
	Importance   string   `json:"importance"`
	RelatedPages []string `json:"relatedPages,omitempty"`
}

// WikiExportRequest asks for pages to be rendered as a download
type WikiExportRequest struct {
	RepoURL string     `json:"repo_url"`
	Pages   []WikiPage `json:"pages"`
	Format  string     `json:"format"` // "markdown" or "json"
}

// DialogTurn is one completed user/assistant exchange
type DialogTurn struct {
	ID                string `json:"id"`
	UserQuery         string `json:"user_query"`
	AssistantResponse string `json:"assistant_response"`
}

// ProcessedProject describes a persisted index snapshot
type ProcessedProject struct {
	ID        string `json:"id"`
	Path      string `json:"path"`
	SizeBytes int64  `json:"size_bytes"`
	Modified  int64  `json:"modified"`
}
