package data

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// fetchBitbucket reads a file from Bitbucket Cloud's src endpoint on main.
func (f *FileFetcher) fetchBitbucket(ctx context.Context, repoURL, filePath, token string) (string, error) {
	_, segments, err := splitRepoURL(repoURL)
	if err != nil || len(segments) < 2 {
		return "", newFetchError("bitbucket", FetchMalformed, 0, "invalid Bitbucket repository URL: "+repoURL, nil, token)
	}
	owner, repo := segments[len(segments)-2], segments[len(segments)-1]

	escaped := make([]string, 0)
	for _, part := range strings.Split(filePath, "/") {
		escaped = append(escaped, url.PathEscape(part))
	}
	apiURL := fmt.Sprintf("%s/repositories/%s/%s/src/main/%s",
		strings.TrimRight(f.bitbucketAPI, "/"), url.PathEscape(owner), url.PathEscape(repo), strings.Join(escaped, "/"))

	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	body, err := f.doREST(ctx, "bitbucket", f.bitbucketAPI, apiURL, header, token)
	if err != nil {
		return "", err
	}
	return string(body), nil
}
