package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pipelineforge/pipelineforge/internal/config"
	"github.com/pipelineforge/pipelineforge/pkg/metrics"
	"github.com/pipelineforge/pipelineforge/pkg/shared/logging"
	sharedhttp "github.com/pipelineforge/pipelineforge/pkg/shared/http"
)

const minLocalTimeout = 300 * time.Second

// localClient is the local-model provider: a plain HTTP POST to an
// Ollama-shaped local inference server, held to a long (>= 300s)
// minimum timeout.
type localClient struct {
	endpoint string
	model    string
	http     *http.Client
	logger   *logrus.Logger
}

func newLocalClient(cfg config.LLMConfig, logger *logrus.Logger) (Client, error) {
	timeout := cfg.Timeout
	if timeout < minLocalTimeout {
		timeout = minLocalTimeout
	}
	return &localClient{
		endpoint: cfg.Endpoint,
		model:    cfg.Model,
		http:     sharedhttp.NewClient(sharedhttp.LLMClientConfig(timeout)),
		logger:   logger,
	}, nil
}

type localGenerateRequest struct {
	Model  string                 `json:"model"`
	Prompt string                 `json:"prompt"`
	System string                 `json:"system,omitempty"`
	Stream bool                   `json:"stream"`
	Options map[string]interface{} `json:"options,omitempty"`
}

type localGenerateResponse struct {
	Response string `json:"response"`
}

func (c *localClient) Generate(ctx context.Context, req Request) (Response, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}

	body := localGenerateRequest{
		Model:  model,
		Prompt: req.Prompt,
		System: req.System,
		Stream: false,
		Options: map[string]interface{}{
			"temperature": req.Options.Temperature,
		},
	}
	encoded, err := json.Marshal(body)
	if err != nil {
		return Response{}, fmt.Errorf("llm: encoding local-model request: %w", err)
	}

	timer := metrics.NewTimer()
	metrics.RecordLLMAPICall("local")

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/api/generate", bytes.NewReader(encoded))
	if err != nil {
		return Response{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		metrics.RecordLLMAPIError("local", "network")
		c.logger.WithFields(logging.AIFields("generate", model).ToLogrus()).WithError(err).Warn("local-model request failed")
		return Response{}, fmt.Errorf("llm: local-model request: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.RecordLLMAPIError("local", "io")
		return Response{}, fmt.Errorf("llm: reading local-model response: %w", err)
	}

	if resp.StatusCode >= 300 {
		metrics.RecordLLMAPIError("local", "http_status")
		return Response{}, fmt.Errorf("llm: local-model returned status %d: %s", resp.StatusCode, string(payload))
	}

	var out localGenerateResponse
	if err := json.Unmarshal(payload, &out); err != nil {
		metrics.RecordLLMAPIError("local", "decode")
		return Response{}, fmt.Errorf("llm: decoding local-model response: %w", err)
	}

	timer.RecordLLMGeneration()
	return Response{Text: out.Response}, nil
}

func (c *localClient) Close() error { return nil }
