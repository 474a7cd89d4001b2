package data

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/deepwiki-go/repochat/internal/config"
	"github.com/ollama/ollama/api"
)

// ErrEmbedderUnavailable marks connection-level failures: the embedding
// backend could not be reached at all.
var ErrEmbedderUnavailable = errors.New("embedding backend unreachable")

// Embedder turns texts into vectors. Batch-capable backends accept many
// texts per call; the others are called with exactly one text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	SupportsBatch() bool
	// ModelName identifies the backend, model and output size. Vectors from
	// embedders with different names are not comparable.
	ModelName() string
}

// NewEmbedder returns the embedder selected by embedder.type
func NewEmbedder(cfg *config.Config) (Embedder, error) {
	switch cfg.Embedder.Type {
	case "openai":
		return NewOpenAIEmbedder(cfg), nil
	case "ollama":
		return NewOllamaEmbedder(cfg)
	default:
		return nil, fmt.Errorf("unsupported embedder type %q", cfg.Embedder.Type)
	}
}

// OpenAIEmbedder calls the OpenAI embeddings endpoint
type OpenAIEmbedder struct {
	apiKey     string
	baseURL    string
	model      string
	dimensions int
	client     *http.Client
}

// NewOpenAIEmbedder creates an embedder from the openai and embedder sections
func NewOpenAIEmbedder(cfg *config.Config) *OpenAIEmbedder {
	return &OpenAIEmbedder{
		apiKey:     cfg.OpenAI.APIKey,
		baseURL:    strings.TrimRight(cfg.OpenAI.BaseURL, "/"),
		model:      cfg.Embedder.Model,
		dimensions: cfg.Embedder.Dimensions,
		client:     &http.Client{Timeout: cfg.Timeouts.HTTP},
	}
}

type openAIEmbeddingRequest struct {
	Model          string   `json:"model"`
	Input          []string `json:"input"`
	Dimensions     int      `json:"dimensions,omitempty"`
	EncodingFormat string   `json:"encoding_format"`
}

type openAIEmbeddingResponse struct {
	Data  []embeddingData `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type embeddingData struct {
	Index     int       `json:"index"`
	Embedding []float32 `json:"embedding"`
}

func (e *OpenAIEmbedder) SupportsBatch() bool { return true }

func (e *OpenAIEmbedder) ModelName() string {
	if e.dimensions > 0 {
		return fmt.Sprintf("openai/%s@%d", e.model, e.dimensions)
	}
	return "openai/" + e.model
}

// Embed returns one vector per input text, in input order.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if e.apiKey == "" {
		return nil, errors.New("OpenAI API key is not set")
	}

	reqData := openAIEmbeddingRequest{
		Model:          e.model,
		Input:          texts,
		Dimensions:     e.dimensions,
		EncodingFormat: "float",
	}
	jsonData, err := json.Marshal(reqData)
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embeddings", bytes.NewReader(jsonData))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbedderUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read embedding response: %w", err)
	}

	var embeddingResp openAIEmbeddingResponse
	if err := json.Unmarshal(body, &embeddingResp); err != nil {
		return nil, fmt.Errorf("parse embedding response (%s): %w", resp.Status, err)
	}
	if embeddingResp.Error != nil {
		return nil, fmt.Errorf("embedding API error: %s", embeddingResp.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding API returned %s", resp.Status)
	}
	if len(embeddingResp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding API returned %d vectors for %d inputs", len(embeddingResp.Data), len(texts))
	}

	sort.SliceStable(embeddingResp.Data, func(i, j int) bool {
		return embeddingResp.Data[i].Index < embeddingResp.Data[j].Index
	})
	embeddings := make([][]float32, len(embeddingResp.Data))
	for i, d := range embeddingResp.Data {
		embeddings[i] = d.Embedding
	}
	return embeddings, nil
}

// OllamaEmbedder embeds one text per call through a local Ollama server
type OllamaEmbedder struct {
	client *api.Client
	model  string
}

// NewOllamaEmbedder creates an embedder against ollama.host
func NewOllamaEmbedder(cfg *config.Config) (*OllamaEmbedder, error) {
	base, err := url.Parse(cfg.Ollama.Host)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama host %q: %w", cfg.Ollama.Host, err)
	}
	return &OllamaEmbedder{
		client: api.NewClient(base, &http.Client{Timeout: cfg.Timeouts.HTTP}),
		model:  cfg.Embedder.Model,
	}, nil
}

func (e *OllamaEmbedder) SupportsBatch() bool { return false }

func (e *OllamaEmbedder) ModelName() string { return "ollama/" + e.model }

// Embed accepts exactly one text.
func (e *OllamaEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) != 1 {
		return nil, fmt.Errorf("ollama embedder takes one text per call, got %d", len(texts))
	}

	resp, err := e.client.Embed(ctx, &api.EmbedRequest{Model: e.model, Input: texts[0]})
	if err != nil {
		var statusErr api.StatusError
		if errors.As(err, &statusErr) || ctx.Err() != nil {
			return nil, fmt.Errorf("ollama embed: %w", err)
		}
		return nil, fmt.Errorf("%w: %v", ErrEmbedderUnavailable, err)
	}
	if len(resp.Embeddings) == 0 {
		return nil, errors.New("ollama returned no embedding")
	}
	return resp.Embeddings[:1], nil
}
