package rag

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/deepwiki-go/repochat/internal/config"
)

const (
	anthropicBedrockVersion = "bedrock-2023-05-31"
	credentialProbeTimeout  = 3 * time.Second
)

// bedrockInvoker is the part of the Bedrock runtime client we use
type bedrockInvoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// BedrockGenerator invokes models on AWS Bedrock. Responses are not
// streamed; the whole completion arrives as a single fragment.
type BedrockGenerator struct {
	client bedrockInvoker
	model  string
}

// NewBedrockGenerator loads AWS credentials from the default chain.
func NewBedrockGenerator(ctx context.Context, cfg *config.Config) (*BedrockGenerator, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Bedrock.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	if awsCfg.Credentials == nil {
		return nil, errors.New("no aws credentials configured")
	}
	credCtx, cancel := context.WithTimeout(ctx, credentialProbeTimeout)
	defer cancel()
	if _, err := awsCfg.Credentials.Retrieve(credCtx); err != nil {
		return nil, fmt.Errorf("resolve aws credentials: %w", err)
	}
	return &BedrockGenerator{
		client: bedrockruntime.NewFromConfig(awsCfg),
		model:  cfg.Bedrock.Model,
	}, nil
}

func (g *BedrockGenerator) Name() string { return "bedrock" }

func (g *BedrockGenerator) DefaultModel() string { return g.model }

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicMessage struct {
	Role    string             `json:"role"`
	Content []anthropicContent `json:"content"`
}

type anthropicRequest struct {
	AnthropicVersion string             `json:"anthropic_version"`
	MaxTokens        int                `json:"max_tokens"`
	Temperature      float32            `json:"temperature"`
	TopP             float32            `json:"top_p"`
	Messages         []anthropicMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []anthropicContent `json:"content"`
}

type titanRequest struct {
	InputText            string `json:"inputText"`
	TextGenerationConfig struct {
		MaxTokenCount int     `json:"maxTokenCount"`
		Temperature   float32 `json:"temperature"`
		TopP          float32 `json:"topP"`
	} `json:"textGenerationConfig"`
}

type titanResponse struct {
	Results []struct {
		OutputText string `json:"outputText"`
	} `json:"results"`
}

// Generate invokes the model and emits the full reply.
func (g *BedrockGenerator) Generate(ctx context.Context, prompt string, params GenerateParams) (<-chan Fragment, error) {
	model := params.Model
	if model == "" {
		model = g.model
	}
	body, err := bedrockBody(model, prompt, params)
	if err != nil {
		return nil, err
	}

	resp, err := g.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(model),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return nil, fmt.Errorf("bedrock invoke %s: %w", model, err)
	}

	text, err := bedrockText(model, resp.Body)
	if err != nil {
		return nil, err
	}

	out := make(chan Fragment, 1)
	out <- Fragment{Text: text}
	close(out)
	return out, nil
}

func bedrockBody(model, prompt string, params GenerateParams) ([]byte, error) {
	if strings.HasPrefix(model, "amazon.") {
		var req titanRequest
		req.InputText = prompt
		req.TextGenerationConfig.MaxTokenCount = 4096
		req.TextGenerationConfig.Temperature = params.Temperature
		req.TextGenerationConfig.TopP = params.TopP
		return json.Marshal(req)
	}
	return json.Marshal(anthropicRequest{
		AnthropicVersion: anthropicBedrockVersion,
		MaxTokens:        4096,
		Temperature:      params.Temperature,
		TopP:             params.TopP,
		Messages: []anthropicMessage{{
			Role:    RoleUser,
			Content: []anthropicContent{{Type: "text", Text: prompt}},
		}},
	})
}

func bedrockText(model string, body []byte) (string, error) {
	if strings.HasPrefix(model, "amazon.") {
		var resp titanResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return "", fmt.Errorf("decode bedrock response: %w", err)
		}
		var sb strings.Builder
		for _, r := range resp.Results {
			sb.WriteString(r.OutputText)
		}
		return sb.String(), nil
	}

	var resp anthropicResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode bedrock response: %w", err)
	}
	var sb strings.Builder
	for _, c := range resp.Content {
		if c.Type == "text" {
			sb.WriteString(c.Text)
		}
	}
	return sb.String(), nil
}

func (g *BedrockGenerator) Close() error { return nil }
