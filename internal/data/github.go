package data

import (
	"context"
	"errors"
	"net/http"
	"strings"

	gh "github.com/google/go-github/v80/github"
	"golang.org/x/oauth2"
)

// githubClient builds a go-github client for the repository host. Hosts other
// than github.com are treated as GitHub Enterprise (/api/v3/).
func (f *FileFetcher) githubClient(ctx context.Context, base, token string) (*gh.Client, error) {
	httpClient := f.httpClient
	if token != "" {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, f.httpClient)
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		httpClient = oauth2.NewClient(ctx, ts)
		httpClient.Timeout = f.httpClient.Timeout
	}

	client := gh.NewClient(httpClient)
	if !strings.HasSuffix(base, "://github.com") && !strings.HasSuffix(base, "://www.github.com") {
		apiBase := base + "/api/v3/"
		return client.WithEnterpriseURLs(apiBase, apiBase)
	}
	return client, nil
}

func (f *FileFetcher) fetchGitHub(ctx context.Context, repoURL, filePath, token string) (string, error) {
	base, segments, err := splitRepoURL(repoURL)
	if err != nil || len(segments) < 2 {
		return "", newFetchError("github", FetchMalformed, 0, "invalid GitHub repository URL: "+repoURL, nil, token)
	}
	owner, repo := segments[len(segments)-2], segments[len(segments)-1]

	client, err := f.githubClient(ctx, base, token)
	if err != nil {
		return "", newFetchError("github", FetchMalformed, 0, err.Error(), nil, token)
	}

	limiter := f.limiter(base)
	if err := limiter.Wait(ctx); err != nil {
		return "", newFetchError("github", FetchTransport, 0, "rate limit wait: "+err.Error(), err, token)
	}

	content, _, resp, err := client.Repositories.GetContents(ctx, owner, repo, filePath, nil)
	if resp != nil {
		limiter.UpdateFromResponse(resp.Response)
	}
	if err != nil {
		return "", wrapGitHubError(err, resp, token)
	}
	if content == nil {
		return "", newFetchError("github", FetchMalformed, 0, "path is a directory, not a file: "+filePath, nil, token)
	}

	decoded, err := content.GetContent()
	if err != nil {
		return "", newFetchError("github", FetchMalformed, 0, "decode content: "+err.Error(), nil, token)
	}
	return decoded, nil
}

func wrapGitHubError(err error, resp *gh.Response, token string) error {
	status := 0
	var errResp *gh.ErrorResponse
	switch {
	case errors.As(err, &errResp) && errResp.Response != nil:
		status = errResp.Response.StatusCode
	case resp != nil && resp.Response != nil:
		status = resp.StatusCode
	}

	if status == 0 || status == http.StatusOK {
		return newFetchError("github", FetchTransport, 0, err.Error(), nil, token)
	}
	msg := err.Error()
	if errResp != nil && errResp.Message != "" {
		msg = errResp.Message
	}
	return newFetchError("github", kindForStatus(status), status, msg, nil, token)
}
