package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pipelineforge/pipelineforge/internal/config"
	"github.com/pipelineforge/pipelineforge/pkg/metrics"
	sharederrors "github.com/pipelineforge/pipelineforge/pkg/shared/errors"
)

// cliClient is the cli-wrapped provider: it spawns an external CLI
// (e.g. a vendor-provided agent binary) configured to emit structured
// JSON on stdout, falling back to the raw stdout text when the output
// isn't valid JSON.
type cliClient struct {
	binary  string
	model   string
	timeout time.Duration
	logger  *logrus.Logger
}

func newCLIClient(cfg config.LLMConfig, logger *logrus.Logger) (Client, error) {
	binary := cfg.Endpoint
	if binary == "" {
		binary = "llm-cli"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	return &cliClient{binary: binary, model: cfg.Model, timeout: timeout, logger: logger}, nil
}

type cliJSONOutput struct {
	Response string `json:"response"`
	Text     string `json:"text"`
}

func (c *cliClient) Generate(ctx context.Context, req Request) (Response, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	args := []string{"--model", model, "--output-format", "json"}
	if req.System != "" {
		args = append(args, "--system", req.System)
	}

	cmd := exec.CommandContext(ctx, c.binary, args...)
	cmd.Stdin = strings.NewReader(req.Prompt)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	metrics.RecordLLMAPICall("cli")
	err := cmd.Run()

	if ctx.Err() != nil {
		metrics.RecordLLMAPIError("cli", "timeout")
		return Response{}, fmt.Errorf("llm: cli provider timed out: %w", ctx.Err())
	}
	if err != nil {
		if _, isExit := err.(*exec.ExitError); isExit {
			metrics.RecordLLMAPIError("cli", "nonzero_exit")
			return Response{}, fmt.Errorf("llm: cli provider exited non-zero: %w (stderr: %s)", err, truncateTail(stderr.String(), 500))
		}
		metrics.RecordLLMAPIError("cli", "spawn")
		return Response{}, sharederrors.FailedTo("spawn cli provider "+c.binary, err)
	}

	raw := stdout.String()
	var parsed cliJSONOutput
	if jsonErr := json.Unmarshal([]byte(strings.TrimSpace(raw)), &parsed); jsonErr == nil {
		if parsed.Response != "" {
			return Response{Text: parsed.Response}, nil
		}
		if parsed.Text != "" {
			return Response{Text: parsed.Text}, nil
		}
	}

	// Malformed JSON: fall back to the raw stdout text rather than
	// failing the call outright.
	c.logger.WithField("binary", c.binary).Debug("cli provider returned non-JSON stdout, using raw text")
	return Response{Text: raw}, nil
}

func (c *cliClient) Close() error { return nil }

func truncateTail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
