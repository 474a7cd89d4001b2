package data

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/deepwiki-go/repochat/internal/models"
)

// fakeEmbedder returns vec(text) for each text, failing for texts listed in
// fail.
type fakeEmbedder struct {
	name  string
	batch bool
	vec   func(text string) []float32
	fail  map[string]error

	mu    sync.Mutex
	calls [][]string
}

func (f *fakeEmbedder) SupportsBatch() bool { return f.batch }
func (f *fakeEmbedder) ModelName() string {
	if f.name == "" {
		return "fake"
	}
	return f.name
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string(nil), texts...))
	f.mu.Unlock()

	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err, ok := f.fail[text]; ok {
			return nil, err
		}
		out[i] = f.vec(text)
	}
	return out, nil
}

func (f *fakeEmbedder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// lengthVector gives every text a vector whose first element is its length
func lengthVector(dim int) func(string) []float32 {
	return func(text string) []float32 {
		v := make([]float32, dim)
		v[0] = float32(len(text))
		if dim > 1 {
			v[1] = 1
		}
		return v
	}
}

func docsWithTexts(texts ...string) []models.Document {
	docs := make([]models.Document, len(texts))
	for i, text := range texts {
		docs[i] = models.Document{Text: text, MetaData: models.Metadata{FilePath: "f" + strings.Repeat("x", i) + ".go"}}
	}
	return docs
}

func docWithDim(dim int, path string) models.Document {
	v := make([]float32, dim)
	v[0] = 1
	return models.Document{Text: path, MetaData: models.Metadata{FilePath: path}, Vector: v}
}

// fakeFetcher returns a fixed directory and counts calls
type fakeFetcher struct {
	path string
	err  error

	mu    sync.Mutex
	calls int
}

func (f *fakeFetcher) FetchRepository(_ context.Context, _ string, _ models.RepoKind, _ string) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.path, f.err
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

var errUnreachable = errors.New("dial tcp 127.0.0.1:1: connection refused")
