// internal/data/fileutil.go
package data

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/deepwiki-go/repochat/internal/config"
	"github.com/deepwiki-go/repochat/internal/models"
)

const defaultBitbucketAPI = "https://api.bitbucket.org/2.0"

// FileFetcher fetches single files through each provider's REST API
type FileFetcher struct {
	config       *config.Config
	httpClient   *http.Client
	bitbucketAPI string

	mu       sync.Mutex
	limiters map[string]*RateLimiter
}

// NewFileFetcher creates a file fetcher with a bounded HTTP client
func NewFileFetcher(cfg *config.Config) *FileFetcher {
	return &FileFetcher{
		config:       cfg,
		httpClient:   &http.Client{Timeout: cfg.Timeouts.HTTP},
		bitbucketAPI: defaultBitbucketAPI,
		limiters:     make(map[string]*RateLimiter),
	}
}

// FetchFile returns the content of filePath in the repository at repoURL.
func (f *FileFetcher) FetchFile(ctx context.Context, repoURL, filePath string, kind models.RepoKind, token string) (string, error) {
	filePath = strings.TrimLeft(filePath, "/")
	switch kind {
	case models.RepoGitHub:
		return f.fetchGitHub(ctx, repoURL, filePath, token)
	case models.RepoGitLab:
		return f.fetchGitLab(ctx, repoURL, filePath, token)
	case models.RepoBitbucket:
		return f.fetchBitbucket(ctx, repoURL, filePath, token)
	default:
		return "", fmt.Errorf("%w: %s; only github, gitlab and bitbucket are supported", ErrUnsupportedKind, kind)
	}
}

// limiter returns the rate limiter for one API host
func (f *FileFetcher) limiter(host string) *RateLimiter {
	f.mu.Lock()
	defer f.mu.Unlock()

	l, ok := f.limiters[host]
	if !ok {
		l = NewRateLimiter()
		f.limiters[host] = l
	}
	return l
}

// doREST performs a rate limited GET and maps non-200 answers to FetchError.
func (f *FileFetcher) doREST(ctx context.Context, provider, host, apiURL string, header http.Header, token string) ([]byte, error) {
	limiter := f.limiter(host)
	if err := limiter.Wait(ctx); err != nil {
		return nil, newFetchError(provider, FetchTransport, 0, "rate limit wait: "+err.Error(), err, token)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, newFetchError(provider, FetchMalformed, 0, err.Error(), nil, token)
	}
	for k, v := range header {
		req.Header[k] = v
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, newFetchError(provider, FetchTransport, 0, err.Error(), nil, token)
	}
	defer resp.Body.Close()
	limiter.UpdateFromResponse(resp)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, newFetchError(provider, FetchTransport, resp.StatusCode, "read response: "+err.Error(), nil, token)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, newFetchError(provider, kindForStatus(resp.StatusCode), resp.StatusCode,
			apiErrorMessage(body, resp.Status), nil, token)
	}
	return body, nil
}

// apiErrorMessage extracts {"message": ...} or {"error": {"message": ...}}
// from an error body, falling back to the HTTP status text.
func apiErrorMessage(body []byte, status string) string {
	var payload struct {
		Message string `json:"message"`
		Error   struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "{") && json.Unmarshal(body, &payload) == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error.Message != "" {
			return payload.Error.Message
		}
	}
	return status
}
