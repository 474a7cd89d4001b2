package rag

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/vertexai/genai"
	"github.com/deepwiki-go/repochat/internal/config"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GoogleGenerator streams completions from Gemini on Vertex AI
type GoogleGenerator struct {
	client *genai.Client
	model  string
}

// NewGoogleGenerator creates a Vertex AI client for the configured project.
func NewGoogleGenerator(ctx context.Context, cfg *config.Config) (*GoogleGenerator, error) {
	if cfg.Google.ProjectID == "" {
		return nil, errors.New("google project id is not configured")
	}

	var opts []option.ClientOption
	switch {
	case cfg.Google.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(cfg.Google.CredentialsFile))
	case cfg.Google.APIKey != "":
		opts = append(opts, option.WithAPIKey(cfg.Google.APIKey))
	}

	client, err := genai.NewClient(ctx, cfg.Google.ProjectID, cfg.Google.Location, opts...)
	if err != nil {
		return nil, fmt.Errorf("create vertex ai client: %w", err)
	}
	return &GoogleGenerator{client: client, model: cfg.Google.Model}, nil
}

func (g *GoogleGenerator) Name() string { return "google" }

func (g *GoogleGenerator) DefaultModel() string { return g.model }

// Generate streams text parts of the first candidate of every response.
func (g *GoogleGenerator) Generate(ctx context.Context, prompt string, params GenerateParams) (<-chan Fragment, error) {
	name := params.Model
	if name == "" {
		name = g.model
	}
	model := g.client.GenerativeModel(name)
	if params.Temperature > 0 {
		model.SetTemperature(params.Temperature)
	}
	if params.TopP > 0 {
		model.SetTopP(params.TopP)
	}

	iter := model.GenerateContentStream(ctx, genai.Text(prompt))
	out := make(chan Fragment)

	go func() {
		defer close(out)
		for {
			resp, err := iter.Next()
			if errors.Is(err, iterator.Done) {
				return
			}
			if err != nil {
				send(ctx, out, Fragment{Err: err})
				return
			}
			if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
				continue
			}
			for _, part := range resp.Candidates[0].Content.Parts {
				text, ok := part.(genai.Text)
				if !ok || text == "" {
					continue
				}
				if !send(ctx, out, Fragment{Text: string(text)}) {
					return
				}
			}
		}
	}()

	return out, nil
}

func (g *GoogleGenerator) Close() error {
	return g.client.Close()
}
