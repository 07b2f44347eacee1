package llm

import (
	"context"
	"encoding/json"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/sirupsen/logrus"

	pfconfig "github.com/pipelineforge/pipelineforge/internal/config"
	"github.com/pipelineforge/pipelineforge/pkg/metrics"
)

// bedrockClient is a rest-hosted provider backed by AWS Bedrock's
// Converse API, a second hosted-model backend alongside the direct
// Anthropic API.
type bedrockClient struct {
	sdk    *bedrockruntime.Client
	model  string
	logger *logrus.Logger
}

func newBedrockClient(cfg pfconfig.LLMConfig, logger *logrus.Logger) (Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background())
	if err != nil {
		return nil, fmt.Errorf("llm: loading AWS config for bedrock provider: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = "anthropic.claude-3-5-sonnet-20240620-v1:0"
	}

	return &bedrockClient{
		sdk:    bedrockruntime.NewFromConfig(awsCfg),
		model:  model,
		logger: logger,
	}, nil
}

type bedrockAnthropicRequest struct {
	AnthropicVersion string                   `json:"anthropic_version"`
	MaxTokens        int                      `json:"max_tokens"`
	System           string                   `json:"system,omitempty"`
	Messages         []bedrockAnthropicMessage `json:"messages"`
	Temperature      float32                  `json:"temperature,omitempty"`
}

type bedrockAnthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type bedrockAnthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

func (c *bedrockClient) Generate(ctx context.Context, req Request) (Response, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	maxTokens := req.Options.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 8192
	}

	body := bedrockAnthropicRequest{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        maxTokens,
		System:           req.System,
		Temperature:      req.Options.Temperature,
		Messages: []bedrockAnthropicMessage{
			{Role: "user", Content: req.Prompt},
		},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return Response{}, fmt.Errorf("llm: encoding bedrock request: %w", err)
	}

	metrics.RecordLLMAPICall("bedrock")
	timer := metrics.NewTimer()

	out, err := c.sdk.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     &model,
		ContentType: strPtr("application/json"),
		Body:        payload,
	})
	if err != nil {
		metrics.RecordLLMAPIError("bedrock", "api_call")
		return Response{}, fmt.Errorf("llm: bedrock invoke model: %w", err)
	}

	var parsed bedrockAnthropicResponse
	if err := json.Unmarshal(out.Body, &parsed); err != nil {
		metrics.RecordLLMAPIError("bedrock", "decode")
		return Response{}, fmt.Errorf("llm: decoding bedrock response: %w", err)
	}

	var text string
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	timer.RecordLLMGeneration()
	return Response{Text: text}, nil
}

func (c *bedrockClient) Close() error { return nil }

func strPtr(s string) *string { return &s }
