// Package llm implements the LLM provider abstraction: a
// uniform Client interface over three concrete backends (a local
// inference server, a CLI-wrapped hosted model, and a REST-based hosted
// model), plus a process-wide registry supporting runtime provider
// switching.
package llm

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/pipelineforge/pipelineforge/internal/config"
)

// Request is one generation call.
type Request struct {
	Model   string
	Prompt  string
	System  string
	Options Options
}

// Options tunes sampling behavior; zero values fall back to the
// provider's own defaults.
type Options struct {
	Temperature float32
	MaxTokens   int
}

// Response is a provider's generation result.
type Response struct {
	Text string
}

// Client is the uniform interface every concrete provider implements.
type Client interface {
	Generate(ctx context.Context, req Request) (Response, error)
	Close() error
}

// NewClient builds a Client for cfg.Provider. Supported providers:
// "local" (HTTP POST to a local inference server, long timeouts), "cli"
// (spawn an external CLI with structured JSON output), "anthropic" and
// "bedrock" (REST-based hosted models via their native SDKs), and
// "langchain" (REST-based hosted models via langchaingo's unified LLM
// interface).
func NewClient(cfg config.LLMConfig, logger *logrus.Logger) (Client, error) {
	switch cfg.Provider {
	case "local", "localai", "ollama":
		return newLocalClient(cfg, logger)
	case "cli":
		return newCLIClient(cfg, logger)
	case "anthropic":
		return newAnthropicClient(cfg, logger)
	case "bedrock":
		return newBedrockClient(cfg, logger)
	case "langchain":
		return newLangchainClient(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
}
