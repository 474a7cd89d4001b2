package rag

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/deepwiki-go/repochat/internal/config"
)

// OpenAIGenerator speaks the OpenAI chat completions protocol. OpenRouter
// uses the same wire format with a different base URL.
type OpenAIGenerator struct {
	name       string
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewOpenAIGenerator creates a generator registered under name.
// dialTimeout bounds connection setup only; the stream itself is bounded by
// the caller's context.
func NewOpenAIGenerator(name string, cfg config.OpenAIConfig, dialTimeout time.Duration) *OpenAIGenerator {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = dialTimeout
	return &OpenAIGenerator{
		name:       name,
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.Model,
		httpClient: &http.Client{Transport: transport},
	}
}

func (g *OpenAIGenerator) Name() string { return g.name }

func (g *OpenAIGenerator) DefaultModel() string { return g.model }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Stream      bool          `json:"stream"`
	Temperature float32       `json:"temperature,omitempty"`
	TopP        float32       `json:"top_p,omitempty"`
}

type chatCompletionChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    any    `json:"code"`
}

func (e *apiError) String() string {
	if e.Code != nil {
		return fmt.Sprintf("%s (%v)", e.Message, e.Code)
	}
	return e.Message
}

// Generate posts a streaming chat completion and relays delta content.
func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string, params GenerateParams) (<-chan Fragment, error) {
	model := params.Model
	if model == "" {
		model = g.model
	}
	body, err := json.Marshal(chatCompletionRequest{
		Model:       model,
		Messages:    []chatMessage{{Role: RoleUser, Content: prompt}},
		Stream:      true,
		Temperature: params.Temperature,
		TopP:        params.TopP,
	})
	if err != nil {
		return nil, fmt.Errorf("encode chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", g.name, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return nil, fmt.Errorf("%s returned %s: %s", g.name, resp.Status, errorMessage(data))
	}

	out := make(chan Fragment)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64<<10), 1<<20)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if payload == "[DONE]" {
				return
			}

			var chunk chatCompletionChunk
			if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
				send(ctx, out, Fragment{Err: fmt.Errorf("decode %s stream: %w", g.name, err)})
				return
			}
			if chunk.Error != nil {
				send(ctx, out, Fragment{Err: fmt.Errorf("%s stream error: %s", g.name, chunk.Error)})
				return
			}
			for _, choice := range chunk.Choices {
				if choice.Delta.Content == "" {
					continue
				}
				if !send(ctx, out, Fragment{Text: choice.Delta.Content}) {
					return
				}
			}
		}
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			send(ctx, out, Fragment{Err: fmt.Errorf("read %s stream: %w", g.name, err)})
		}
	}()

	return out, nil
}

func (g *OpenAIGenerator) Close() error {
	g.httpClient.CloseIdleConnections()
	return nil
}

// errorMessage extracts the provider's error text from a response body.
func errorMessage(body []byte) string {
	var envelope struct {
		Error *apiError `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != nil {
		return envelope.Error.String()
	}
	return strings.TrimSpace(string(body))
}
