package llm

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"

	"github.com/pipelineforge/pipelineforge/internal/config"
	"github.com/pipelineforge/pipelineforge/pkg/metrics"
)

// langchainClient is a rest-hosted provider backed by langchaingo's
// unified LLM interface, defaulting to its Ollama-compatible REST
// backend so a deployment can point at any OpenAI/Ollama-shaped
// chat-completions endpoint without a dedicated client per vendor.
type langchainClient struct {
	model  llms.Model
	name   string
	logger *logrus.Logger
}

func newLangchainClient(cfg config.LLMConfig, logger *logrus.Logger) (Client, error) {
	opts := []ollama.Option{ollama.WithModel(cfg.Model)}
	if cfg.Endpoint != "" {
		opts = append(opts, ollama.WithServerURL(cfg.Endpoint))
	}

	model, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("llm: building langchain provider: %w", err)
	}

	return &langchainClient{model: model, name: cfg.Model, logger: logger}, nil
}

func (c *langchainClient) Generate(ctx context.Context, req Request) (Response, error) {
	prompt := req.Prompt
	if req.System != "" {
		prompt = req.System + "\n\n" + req.Prompt
	}

	metrics.RecordLLMAPICall("langchain")
	timer := metrics.NewTimer()

	callOpts := []llms.CallOption{}
	if req.Options.Temperature > 0 {
		callOpts = append(callOpts, llms.WithTemperature(float64(req.Options.Temperature)))
	}
	if req.Options.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(req.Options.MaxTokens))
	}

	text, err := llms.GenerateFromSinglePrompt(ctx, c.model, prompt, callOpts...)
	if err != nil {
		metrics.RecordLLMAPIError("langchain", "api_call")
		return Response{}, fmt.Errorf("llm: langchain generate: %w", err)
	}

	timer.RecordLLMGeneration()
	return Response{Text: text}, nil
}

func (c *langchainClient) Close() error { return nil }
