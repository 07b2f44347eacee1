package llm

import (
	"context"
	"fmt"
	"os"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/sirupsen/logrus"

	"github.com/pipelineforge/pipelineforge/internal/config"
	"github.com/pipelineforge/pipelineforge/pkg/metrics"
)

// anthropicClient is a rest-hosted provider backed by Anthropic's
// Messages API.
type anthropicClient struct {
	sdk    anthropic.Client
	model  string
	logger *logrus.Logger
}

func newAnthropicClient(cfg config.LLMConfig, logger *logrus.Logger) (Client, error) {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("llm: anthropic provider requires ANTHROPIC_API_KEY")
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithBaseURL(cfg.Endpoint))
	}

	model := cfg.Model
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}

	return &anthropicClient{
		sdk:    anthropic.NewClient(opts...),
		model:  model,
		logger: logger,
	}, nil
}

func (c *anthropicClient) Generate(ctx context.Context, req Request) (Response, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	maxTokens := int64(req.Options.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 8192
	}

	metrics.RecordLLMAPICall("anthropic")
	timer := metrics.NewTimer()

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	msg, err := c.sdk.Messages.New(ctx, params)
	if err != nil {
		metrics.RecordLLMAPIError("anthropic", "api_call")
		return Response{}, fmt.Errorf("llm: anthropic generate: %w", err)
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	timer.RecordLLMGeneration()
	return Response{Text: text}, nil
}

func (c *anthropicClient) Close() error { return nil }
