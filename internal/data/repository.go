// internal/data/repository.go
package data

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/deepwiki-go/repochat/internal/config"
	"github.com/deepwiki-go/repochat/internal/models"
	"github.com/deepwiki-go/repochat/pkg/utils"
)

// RepositoryFetcher materialises a repository on disk
type RepositoryFetcher interface {
	FetchRepository(ctx context.Context, location string, kind models.RepoKind, token string) (string, error)
}

// RepositoryManager clones hosted repositories into the repos directory and
// reuses earlier clones.
type RepositoryManager struct {
	config   *config.Config
	basePath string
	clone    func(ctx context.Context, cloneURL, localPath string, opts utils.CloneOptions) error
}

// NewRepositoryManager creates a repository manager rooted at the configured storage dir
func NewRepositoryManager(cfg *config.Config) *RepositoryManager {
	return &RepositoryManager{
		config:   cfg,
		basePath: cfg.ReposDir(),
		clone:    utils.CloneRepo,
	}
}

// FetchRepository returns a local path holding the repository. Local
// directories are returned unchanged; hosted repositories are cloned once
// and reused afterwards.
func (r *RepositoryManager) FetchRepository(ctx context.Context, location string, kind models.RepoKind, token string) (string, error) {
	if location == "" {
		return "", errors.New("repository location cannot be empty")
	}

	if kind == models.RepoLocal || !isRemote(location) {
		if utils.IsPopulatedDir(location) {
			return location, nil
		}
		return "", newFetchError("local", FetchNotFound, 0,
			fmt.Sprintf("local repository %s does not exist or is empty", location), nil, "")
	}

	localPath := filepath.Join(r.basePath, RepoIdentifier(location, kind))
	if utils.IsPopulatedDir(localPath) {
		log.Printf("Repository already exists at %s, reusing", localPath)
		return localPath, nil
	}

	cloneURL, err := cloneURLWithToken(location, kind, token)
	if err != nil {
		return "", newFetchError(string(kind), FetchMalformed, 0, err.Error(), nil, token)
	}

	ctx, cancel := context.WithTimeout(ctx, r.config.Timeouts.Clone)
	defer cancel()

	log.Printf("Cloning repository from %s to %s", utils.ScrubToken(location, token), localPath)
	opts := utils.CloneOptions{Token: token, Proxy: r.config.SystemProxy}
	if err := r.clone(ctx, cloneURL, localPath, opts); err != nil {
		os.RemoveAll(localPath)
		return "", newFetchError(string(kind), FetchTransport, 0, err.Error(), nil, token)
	}

	if limit := r.config.Storage.SizeLimitMB; limit > 0 {
		size, err := utils.DirSize(localPath)
		if err == nil && size > limit*1024*1024 {
			os.RemoveAll(localPath)
			return "", newFetchError(string(kind), FetchForbidden, 0,
				fmt.Sprintf("repository size %d MB exceeds limit of %d MB", size/(1024*1024), limit), nil, token)
		}
	}

	log.Printf("Repository cloned successfully")
	return localPath, nil
}

// RepoIdentifier derives the canonical identifier for a repository location:
// owner_repo for hosted URLs, the final path segment otherwise.
func RepoIdentifier(location string, kind models.RepoKind) string {
	trimmed := strings.TrimRight(strings.TrimSpace(location), "/\\")
	parts := strings.FieldsFunc(trimmed, func(r rune) bool { return r == '/' || r == '\\' })
	if len(parts) == 0 {
		return ""
	}

	last := strings.TrimSuffix(parts[len(parts)-1], ".git")
	urlParts := strings.Split(trimmed, "/")
	if kind != models.RepoLocal && isRemote(location) && len(urlParts) >= 5 {
		return urlParts[len(urlParts)-2] + "_" + last
	}
	return last
}

// cloneURLWithToken embeds the credential the way each provider expects.
func cloneURLWithToken(location string, kind models.RepoKind, token string) (string, error) {
	if token == "" {
		return location, nil
	}
	u, err := url.Parse(location)
	if err != nil {
		return "", fmt.Errorf("invalid repository URL: %w", err)
	}
	switch kind {
	case models.RepoGitHub, models.RepoBitbucket:
		u.User = url.User(token)
	case models.RepoGitLab:
		u.User = url.UserPassword("oauth2", token)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedKind, kind)
	}
	return u.String(), nil
}

func isRemote(location string) bool {
	return strings.HasPrefix(location, "https://") || strings.HasPrefix(location, "http://")
}

// splitRepoURL returns the base (scheme://host) and the path segments of a
// hosted repository URL, with any .git suffix removed.
func splitRepoURL(location string) (base string, segments []string, err error) {
	u, err := url.Parse(strings.TrimRight(location, "/"))
	if err != nil || u.Host == "" {
		return "", nil, fmt.Errorf("invalid repository URL %q", location)
	}
	path := strings.TrimSuffix(strings.Trim(u.Path, "/"), ".git")
	if path == "" {
		return "", nil, fmt.Errorf("repository URL %q has no path", location)
	}
	return u.Scheme + "://" + u.Host, strings.Split(path, "/"), nil
}
