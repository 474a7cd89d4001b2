package data

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/deepwiki-go/repochat/internal/config"
	"github.com/deepwiki-go/repochat/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "s3cr3t-token"

func newTestFetcher(t *testing.T, handler http.HandlerFunc) (*FileFetcher, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	f := NewFileFetcher(config.Default())
	f.bitbucketAPI = srv.URL + "/2.0"
	return f, srv
}

func TestFetchFile_GitHubEnterprise(t *testing.T) {
	f, srv := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer "+testToken, r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/api/v3/repos/owner/repo/contents/src/main.go":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"type":"file","encoding":"base64","path":"src/main.go","content":"` +
				base64.StdEncoding.EncodeToString([]byte("package main\n")) + `"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"message":"Not Found"}`))
		}
	})

	content, err := f.FetchFile(context.Background(), srv.URL+"/owner/repo", "/src/main.go", models.RepoGitHub, testToken)
	require.NoError(t, err)
	assert.Equal(t, "package main\n", content)

	_, err = f.FetchFile(context.Background(), srv.URL+"/owner/repo", "missing.go", models.RepoGitHub, testToken)
	assert.True(t, IsNotFound(err), "got %v", err)
}

func TestFetchFile_GitHubStatusKinds(t *testing.T) {
	tests := []struct {
		status int
		check  func(error) bool
	}{
		{http.StatusUnauthorized, IsUnauthorized},
		{http.StatusForbidden, IsForbidden},
		{http.StatusBadGateway, IsServerError},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			f, srv := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"message":"token ` + testToken + ` rejected"}`))
			})

			_, err := f.FetchFile(context.Background(), srv.URL+"/owner/repo", "a.go", models.RepoGitHub, testToken)
			require.Error(t, err)
			assert.True(t, tt.check(err), "got %v", err)
			assert.NotContains(t, err.Error(), testToken)
		})
	}
}

func TestFetchFile_GitLabFallsBackToMaster(t *testing.T) {
	var refs []string
	f, srv := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, testToken, r.Header.Get("PRIVATE-TOKEN"))
		assert.Equal(t, "/api/v4/projects/group%2Fsub%2Frepo/repository/files/src%2Fa.py/raw", r.URL.EscapedPath())
		ref := r.URL.Query().Get("ref")
		refs = append(refs, ref)
		if ref == "main" {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"message":"404 Commit Not Found"}`))
			return
		}
		w.Write([]byte("print('hi')\n"))
	})

	content, err := f.FetchFile(context.Background(), srv.URL+"/group/sub/repo.git", "src/a.py", models.RepoGitLab, testToken)
	require.NoError(t, err)
	assert.Equal(t, "print('hi')\n", content)
	assert.Equal(t, []string{"main", "master"}, refs)
}

func TestFetchFile_GitLabUnauthorizedStops(t *testing.T) {
	calls := 0
	f, srv := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message":"401 Unauthorized"}`))
	})

	_, err := f.FetchFile(context.Background(), srv.URL+"/group/repo", "a.py", models.RepoGitLab, "")
	assert.True(t, IsUnauthorized(err))
	assert.Equal(t, 1, calls)
}

func TestFetchFile_Bitbucket(t *testing.T) {
	f, _ := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer "+testToken, r.Header.Get("Authorization"))
		if r.URL.Path != "/2.0/repositories/team/project/src/main/docs/read me.md" {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"type":"error","error":{"message":"No such file"}}`))
			return
		}
		w.Write([]byte("# Read me"))
	})

	content, err := f.FetchFile(context.Background(), "https://bitbucket.org/team/project", "docs/read me.md", models.RepoBitbucket, testToken)
	require.NoError(t, err)
	assert.Equal(t, "# Read me", content)

	_, err = f.FetchFile(context.Background(), "https://bitbucket.org/team/project", "nope.md", models.RepoBitbucket, testToken)
	require.True(t, IsNotFound(err))
	assert.Contains(t, err.Error(), "No such file")
}

func TestFetchFile_Unsupported(t *testing.T) {
	f := NewFileFetcher(config.Default())

	_, err := f.FetchFile(context.Background(), "/tmp/repo", "a.go", models.RepoLocal, "")
	assert.ErrorIs(t, err, ErrUnsupportedKind)

	_, err = f.FetchFile(context.Background(), "not a url", "a.go", models.RepoGitHub, "")
	assert.True(t, IsMalformed(err))
}
