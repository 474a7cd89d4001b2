package data

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// fetchGitLab reads a raw file through /api/v4 on gitlab.com or a self-hosted
// instance, trying main before master.
func (f *FileFetcher) fetchGitLab(ctx context.Context, repoURL, filePath, token string) (string, error) {
	base, segments, err := splitRepoURL(repoURL)
	if err != nil || len(segments) < 2 {
		return "", newFetchError("gitlab", FetchMalformed, 0, "invalid GitLab repository URL: "+repoURL, nil, token)
	}

	project := url.PathEscape(strings.Join(segments, "/"))
	file := url.PathEscape(filePath)

	header := http.Header{}
	if token != "" {
		header.Set("PRIVATE-TOKEN", token)
	}

	var lastErr error
	for _, ref := range []string{"main", "master"} {
		apiURL := fmt.Sprintf("%s/api/v4/projects/%s/repository/files/%s/raw?ref=%s", base, project, file, ref)
		body, err := f.doREST(ctx, "gitlab", base, apiURL, header, token)
		if err == nil {
			return string(body), nil
		}
		lastErr = err
		if !IsNotFound(err) {
			break
		}
	}
	return "", lastErr
}
