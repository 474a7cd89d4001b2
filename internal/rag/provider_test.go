package rag

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/deepwiki-go/repochat/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(t *testing.T, ch <-chan Fragment) (string, error) {
	t.Helper()
	var text string
	for f := range ch {
		if f.Err != nil {
			return text, f.Err
		}
		text += f.Text
	}
	return text, nil
}

func TestProviderRegistry(t *testing.T) {
	r := NewProviderRegistry()
	_, err := r.Get("")
	assert.ErrorIs(t, err, ErrProviderNotRegistered)

	require.NoError(t, r.Register(&fakeGenerator{name: "ollama"}))
	require.NoError(t, r.Register(&fakeGenerator{name: "google"}))
	assert.Error(t, r.Register(&fakeGenerator{name: "google"}))

	g, err := r.Get("")
	require.NoError(t, err)
	assert.Equal(t, "ollama", g.Name(), "first registered is active")

	require.NoError(t, r.SetActive("google"))
	assert.ErrorIs(t, r.SetActive("bedrock"), ErrProviderNotRegistered)
	assert.Equal(t, []ProviderInfo{
		{Name: "google", DefaultModel: "google-model", Active: true},
		{Name: "ollama", DefaultModel: "ollama-model"},
	}, r.List())

	require.NoError(t, r.Unregister("google"))
	assert.Equal(t, "ollama", r.ActiveName())
	_, err = r.Get("google")
	assert.ErrorIs(t, err, ErrProviderNotRegistered)

	require.NoError(t, r.Close())
	assert.Empty(t, r.List())
}

func TestOpenAIGenerator_Streams(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req chatCompletionRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Stream)
		assert.Equal(t, "gpt-test", req.Model)
		assert.Equal(t, "the prompt", req.Messages[0].Content)

		w.Header().Set("Content-Type", "text/event-stream")
		for _, chunk := range []string{"Hel", "lo"} {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", chunk)
		}
		fmt.Fprint(w, ": keep-alive\n\ndata: [DONE]\n\n")
	}))
	defer srv.Close()

	g := NewOpenAIGenerator("openai", config.OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1/", Model: "gpt-test"}, time.Second)
	ch, err := g.Generate(context.Background(), "the prompt", GenerateParams{Temperature: 0.7})
	require.NoError(t, err)

	text, err := drain(t, ch)
	require.NoError(t, err)
	assert.Equal(t, "Hello", text)
}

func TestOpenAIGenerator_ContextLengthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"This model's maximum context length is 128000 tokens.","type":"invalid_request_error","code":"context_length_exceeded"}}`))
	}))
	defer srv.Close()

	g := NewOpenAIGenerator("openrouter", config.OpenAIConfig{APIKey: "k", BaseURL: srv.URL, Model: "m"}, time.Second)
	_, err := g.Generate(context.Background(), "p", GenerateParams{})
	require.Error(t, err)
	assert.True(t, IsContextOverflow(err))
	assert.Contains(t, err.Error(), "openrouter")
}

func TestOllamaGenerator_StripsThinkTags(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		var req map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "prompt /no_think", req["prompt"])
		assert.Equal(t, "qwen-test", req["model"])

		w.Header().Set("Content-Type", "application/x-ndjson")
		for _, line := range []string{
			`{"model":"qwen-test","response":"<think>","done":false}`,
			`{"model":"qwen-test","response":"</think>Answer","done":false}`,
			`{"model":"qwen-test","response":" here","done":false}`,
			`{"model":"qwen-test","response":"","done":true}`,
		} {
			fmt.Fprintln(w, line)
		}
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.Ollama.Host = srv.URL
	g, err := NewOllamaGenerator(cfg)
	require.NoError(t, err)

	ch, err := g.Generate(context.Background(), "prompt", GenerateParams{Model: "qwen-test"})
	require.NoError(t, err)
	text, err := drain(t, ch)
	require.NoError(t, err)
	assert.Equal(t, "Answer here", text)
}

func TestOllamaGenerator_Unreachable(t *testing.T) {
	cfg := config.Default()
	cfg.Ollama.Host = "http://127.0.0.1:1"
	g, err := NewOllamaGenerator(cfg)
	require.NoError(t, err)

	ch, err := g.Generate(context.Background(), "prompt", GenerateParams{})
	require.NoError(t, err)
	_, err = drain(t, ch)
	assert.Error(t, err)
}

type fakeInvoker struct {
	input *bedrockruntime.InvokeModelInput
	body  string
	err   error
}

func (f *fakeInvoker) InvokeModel(_ context.Context, in *bedrockruntime.InvokeModelInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	f.input = in
	if f.err != nil {
		return nil, f.err
	}
	return &bedrockruntime.InvokeModelOutput{Body: []byte(f.body)}, nil
}

func TestBedrockGenerator_Anthropic(t *testing.T) {
	inv := &fakeInvoker{body: `{"content":[{"type":"text","text":"Hi "},{"type":"text","text":"there"}]}`}
	g := &BedrockGenerator{client: inv, model: "anthropic.claude-test"}

	ch, err := g.Generate(context.Background(), "p", GenerateParams{Temperature: 0.5, TopP: 0.9})
	require.NoError(t, err)
	text, err := drain(t, ch)
	require.NoError(t, err)
	assert.Equal(t, "Hi there", text)

	var sent anthropicRequest
	require.NoError(t, json.Unmarshal(inv.input.Body, &sent))
	assert.Equal(t, anthropicBedrockVersion, sent.AnthropicVersion)
	assert.Equal(t, "p", sent.Messages[0].Content[0].Text)
	assert.Equal(t, "anthropic.claude-test", *inv.input.ModelId)
}

func TestBedrockGenerator_Titan(t *testing.T) {
	inv := &fakeInvoker{body: `{"results":[{"outputText":"titan says hi"}]}`}
	g := &BedrockGenerator{client: inv, model: "anthropic.default"}

	ch, err := g.Generate(context.Background(), "p", GenerateParams{Model: "amazon.titan-text-express-v1"})
	require.NoError(t, err)
	text, err := drain(t, ch)
	require.NoError(t, err)
	assert.Equal(t, "titan says hi", text)
	assert.Contains(t, string(inv.input.Body), `"inputText":"p"`)
}

func TestBedrockGenerator_InvokeError(t *testing.T) {
	g := &BedrockGenerator{client: &fakeInvoker{err: errors.New("ValidationException: too many tokens")}, model: "m"}
	_, err := g.Generate(context.Background(), "p", GenerateParams{})
	assert.True(t, IsContextOverflow(err))
}
