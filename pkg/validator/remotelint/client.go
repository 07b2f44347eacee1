// Package remotelint implements the optional remote-lint check:
// submitting a generated artifact to the target platform's own
// lint endpoint when one is configured, treating its errors and warnings
// as validator diagnostics of the same kind.
package remotelint

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	sharedhttp "github.com/pipelineforge/pipelineforge/pkg/shared/http"
)

// Diagnostic is one finding returned by a remote lint endpoint.
type Diagnostic struct {
	Message string `json:"message"`
	Warning bool   `json:"warning"`
}

// Client lints one artifact's content against a remote endpoint.
type Client interface {
	Lint(ctx context.Context, platform, filename, content string) ([]Diagnostic, error)
}

// HTTPClient posts content to a configured lint endpoint (e.g. GitHub's
// workflow-syntax-check API, GitLab's CI lint endpoint) and parses a flat
// JSON diagnostics array from the response.
type HTTPClient struct {
	endpoint string
	http     *http.Client
}

// NewHTTPClient builds a lint client against endpoint.
func NewHTTPClient(endpoint string) *HTTPClient {
	return &HTTPClient{
		endpoint: endpoint,
		http:     sharedhttp.NewClientWithTimeout(10 * time.Second),
	}
}

type lintRequest struct {
	Platform string `json:"platform"`
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

type lintResponse struct {
	Diagnostics []Diagnostic `json:"diagnostics"`
}

// Lint submits content to the remote lint endpoint.
func (c *HTTPClient) Lint(ctx context.Context, platform, filename, content string) ([]Diagnostic, error) {
	payload, err := json.Marshal(lintRequest{Platform: platform, Filename: filename, Content: content})
	if err != nil {
		return nil, fmt.Errorf("remotelint: encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("remotelint: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("remotelint: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("remotelint: reading response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("remotelint: endpoint returned status %d: %s", resp.StatusCode, string(body))
	}

	var parsed lintResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("remotelint: decoding response: %w", err)
	}
	return parsed.Diagnostics, nil
}
