package rag

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/deepwiki-go/repochat/internal/config"
	"github.com/ollama/ollama/api"
)

// noThinkMarker asks reasoning models served by Ollama to skip their
// thinking phase.
const noThinkMarker = " /no_think"

var thinkTags = strings.NewReplacer("<think>", "", "</think>", "")

// OllamaGenerator streams completions from a local Ollama server
type OllamaGenerator struct {
	client *api.Client
	model  string
	numCtx int
}

// NewOllamaGenerator creates a generator against ollama.host
func NewOllamaGenerator(cfg *config.Config) (*OllamaGenerator, error) {
	base, err := url.Parse(cfg.Ollama.Host)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama host %q: %w", cfg.Ollama.Host, err)
	}
	return &OllamaGenerator{
		client: api.NewClient(base, http.DefaultClient),
		model:  cfg.Ollama.Model,
		numCtx: cfg.Ollama.NumCtx,
	}, nil
}

func (g *OllamaGenerator) Name() string { return "ollama" }

func (g *OllamaGenerator) DefaultModel() string { return g.model }

// Generate appends the no-think marker and strips think tags from the output.
func (g *OllamaGenerator) Generate(ctx context.Context, prompt string, params GenerateParams) (<-chan Fragment, error) {
	model := params.Model
	if model == "" {
		model = g.model
	}
	stream := true
	req := &api.GenerateRequest{
		Model:  model,
		Prompt: prompt + noThinkMarker,
		Stream: &stream,
		Options: map[string]any{
			"temperature": params.Temperature,
			"top_p":       params.TopP,
			"num_ctx":     g.numCtx,
		},
	}

	out := make(chan Fragment)
	go func() {
		defer close(out)
		err := g.client.Generate(ctx, req, func(resp api.GenerateResponse) error {
			text := thinkTags.Replace(resp.Response)
			if text == "" {
				return nil
			}
			if !send(ctx, out, Fragment{Text: text}) {
				return ctx.Err()
			}
			return nil
		})
		if err != nil && ctx.Err() == nil {
			send(ctx, out, Fragment{Err: fmt.Errorf("ollama generate: %w", err)})
		}
	}()
	return out, nil
}

func (g *OllamaGenerator) Close() error { return nil }
