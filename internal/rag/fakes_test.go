package rag

import (
	"context"
	"errors"
	"sync"

	"github.com/deepwiki-go/repochat/internal/data"
	"github.com/deepwiki-go/repochat/internal/models"
)

type fakeEmbedder struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (e *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, texts...)
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func (e *fakeEmbedder) SupportsBatch() bool { return true }

func (e *fakeEmbedder) ModelName() string { return "fake" }

func (e *fakeEmbedder) queries() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}

type fakeIndex struct {
	index    *data.RepositoryIndex
	err      error
	embedder *fakeEmbedder
	requests []data.IndexRequest
}

func (f *fakeIndex) GetOrBuildIndex(_ context.Context, req data.IndexRequest) (*data.RepositoryIndex, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return f.index, nil
}

func (f *fakeIndex) Embedder() data.Embedder { return f.embedder }

type fakeFiles struct {
	content string
	err     error
	paths   []string
}

func (f *fakeFiles) FetchFile(_ context.Context, _, filePath string, _ models.RepoKind, _ string) (string, error) {
	f.paths = append(f.paths, filePath)
	return f.content, f.err
}

// fakeGenerator replays a scripted result per call and records prompts.
type fakeGenerator struct {
	name   string
	script func(call int) ([]Fragment, error)

	mu      sync.Mutex
	prompts []string
	params  []GenerateParams
}

func (g *fakeGenerator) Name() string { return g.name }

func (g *fakeGenerator) DefaultModel() string { return g.name + "-model" }

func (g *fakeGenerator) Generate(ctx context.Context, prompt string, params GenerateParams) (<-chan Fragment, error) {
	g.mu.Lock()
	call := len(g.prompts)
	g.prompts = append(g.prompts, prompt)
	g.params = append(g.params, params)
	g.mu.Unlock()

	frags, err := g.script(call)
	if err != nil {
		return nil, err
	}
	out := make(chan Fragment)
	go func() {
		defer close(out)
		for _, f := range frags {
			if !send(ctx, out, f) {
				return
			}
		}
	}()
	return out, nil
}

func (g *fakeGenerator) Close() error { return nil }

func (g *fakeGenerator) recorded() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.prompts...)
}

func replies(texts ...string) func(int) ([]Fragment, error) {
	return func(int) ([]Fragment, error) {
		frags := make([]Fragment, len(texts))
		for i, t := range texts {
			frags[i] = Fragment{Text: t}
		}
		return frags, nil
	}
}

func failing(err error) func(int) ([]Fragment, error) {
	return func(int) ([]Fragment, error) { return nil, err }
}

var errOverflow = errors.New("This model's maximum context length is 8192 tokens, however you requested 9500 tokens")

func collect(ch <-chan string) []string {
	var out []string
	for s := range ch {
		out = append(out, s)
	}
	return out
}
