package hostclient

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	sharedhttp "github.com/pipelineforge/pipelineforge/pkg/shared/http"
)

// errAlreadyExists marks a branch/ref creation failure that the caller
// should treat as success, since the branch it wanted already exists.
var errAlreadyExists = errors.New("hostclient: already exists")

func isAlreadyExists(err error) bool {
	return errors.Is(err, errAlreadyExists)
}

// GitHubClient talks to the GitHub REST v3 API.
type GitHubClient struct {
	baseURL string
	http    *http.Client
}

// NewGitHubClient builds a GitHubClient authenticated with token. An
// empty baseURL defaults to the public GitHub API.
func NewGitHubClient(baseURL, token string) *GitHubClient {
	if baseURL == "" {
		baseURL = "https://api.github.com"
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	base := sharedhttp.NewClient(sharedhttp.DefaultClientConfig())
	httpClient := &http.Client{
		Transport: &oauth2.Transport{Source: ts, Base: base.Transport},
		Timeout:   base.Timeout,
	}
	return &GitHubClient{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

type githubContentEntry struct {
	Name string `json:"name"`
	Type string `json:"type"`
	SHA  string `json:"sha"`
}

func (c *GitHubClient) ListTopLevel(ctx context.Context, repo, ref string) ([]Entry, error) {
	path := fmt.Sprintf("/repos/%s/contents", repo)
	if ref != "" {
		path += "?ref=" + url.QueryEscape(ref)
	}

	var entries []githubContentEntry
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &entries); err != nil {
		return nil, fmt.Errorf("hostclient: listing %s: %w", repo, err)
	}

	out := make([]Entry, len(entries))
	for i, e := range entries {
		out[i] = Entry{Name: e.Name, IsDir: e.Type == "dir"}
	}
	return out, nil
}

type githubFileResponse struct {
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
	SHA      string `json:"sha"`
}

func (c *GitHubClient) GetFile(ctx context.Context, repo, path, ref string) (*File, error) {
	reqPath := fmt.Sprintf("/repos/%s/contents/%s", repo, strings.TrimPrefix(path, "/"))
	if ref != "" {
		reqPath += "?ref=" + url.QueryEscape(ref)
	}

	var resp githubFileResponse
	if err := c.doJSON(ctx, http.MethodGet, reqPath, nil, &resp); err != nil {
		return nil, fmt.Errorf("hostclient: fetching %s/%s: %w", repo, path, err)
	}

	content := []byte(resp.Content)
	if resp.Encoding == "base64" {
		decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(resp.Content, "\n", ""))
		if err != nil {
			return nil, fmt.Errorf("hostclient: decoding %s/%s: %w", repo, path, err)
		}
		content = decoded
	}
	return &File{Content: content, BlobHandle: resp.SHA}, nil
}

type githubRefRequest struct {
	Ref string `json:"ref"`
	SHA string `json:"sha"`
}

type githubRef struct {
	Object struct {
		SHA string `json:"sha"`
	} `json:"object"`
}

func (c *GitHubClient) CreateBranch(ctx context.Context, repo, newBranch, fromRef string) error {
	var base githubRef
	basePath := fmt.Sprintf("/repos/%s/git/ref/heads/%s", repo, fromRef)
	if err := c.doJSON(ctx, http.MethodGet, basePath, nil, &base); err != nil {
		return fmt.Errorf("hostclient: resolving base ref %s: %w", fromRef, err)
	}

	createPath := fmt.Sprintf("/repos/%s/git/refs", repo)
	req := githubRefRequest{Ref: "refs/heads/" + newBranch, SHA: base.Object.SHA}
	err := c.doJSON(ctx, http.MethodPost, createPath, req, nil)
	if err != nil && isAlreadyExists(err) {
		return nil
	}
	return err
}

type githubUpdateRequest struct {
	Message string `json:"message"`
	Content string `json:"content"`
	Branch  string `json:"branch"`
	SHA     string `json:"sha,omitempty"`
}

func (c *GitHubClient) CreateOrUpdateFile(ctx context.Context, repo, branch, path string, content []byte, previousBlobHandle string) (*File, error) {
	reqPath := fmt.Sprintf("/repos/%s/contents/%s", repo, strings.TrimPrefix(path, "/"))
	req := githubUpdateRequest{
		Message: fmt.Sprintf("pipelineforge: update %s", path),
		Content: base64.StdEncoding.EncodeToString(content),
		Branch:  branch,
		SHA:     previousBlobHandle,
	}

	var resp struct {
		Content struct {
			SHA string `json:"sha"`
		} `json:"content"`
	}
	if err := c.doJSON(ctx, http.MethodPut, reqPath, req, &resp); err != nil {
		return nil, fmt.Errorf("hostclient: writing %s/%s: %w", repo, path, err)
	}
	return &File{Content: content, BlobHandle: resp.Content.SHA}, nil
}

type githubWorkflowRun struct {
	ID         int64     `json:"id"`
	Status     string    `json:"status"`
	Conclusion string    `json:"conclusion"`
	HeadBranch string    `json:"head_branch"`
	CreatedAt  time.Time `json:"created_at"`
}

func (c *GitHubClient) ListRuns(ctx context.Context, repo, branch string) ([]RunSummary, error) {
	path := fmt.Sprintf("/repos/%s/actions/runs?branch=%s", repo, url.QueryEscape(branch))
	var resp struct {
		WorkflowRuns []githubWorkflowRun `json:"workflow_runs"`
	}
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("hostclient: listing runs for %s: %w", repo, err)
	}

	out := make([]RunSummary, len(resp.WorkflowRuns))
	for i, r := range resp.WorkflowRuns {
		status := r.Status
		if r.Conclusion != "" {
			status = r.Conclusion
		}
		out[i] = RunSummary{
			ID:        fmt.Sprintf("%d", r.ID),
			Status:    status,
			Branch:    r.HeadBranch,
			StartedAt: r.CreatedAt,
		}
	}
	return out, nil
}

func (c *GitHubClient) GetRun(ctx context.Context, repo, runID string) (*RunDetail, error) {
	var run githubWorkflowRun
	if err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("/repos/%s/actions/runs/%s", repo, runID), nil, &run); err != nil {
		return nil, fmt.Errorf("hostclient: fetching run %s: %w", runID, err)
	}

	var jobsResp struct {
		Jobs []struct {
			Name       string `json:"name"`
			Conclusion string `json:"conclusion"`
			Status     string `json:"status"`
		} `json:"jobs"`
	}
	_ = c.doJSON(ctx, http.MethodGet, fmt.Sprintf("/repos/%s/actions/runs/%s/jobs", repo, runID), nil, &jobsResp)

	stages := make([]StageResult, len(jobsResp.Jobs))
	for i, j := range jobsResp.Jobs {
		status := j.Status
		if j.Conclusion != "" {
			status = j.Conclusion
		}
		stages[i] = StageResult{Name: j.Name, Status: status}
	}

	logPath := fmt.Sprintf("/repos/%s/actions/runs/%s/logs", repo, runID)
	logText, _ := c.getRaw(ctx, logPath)

	status := run.Status
	if run.Conclusion != "" {
		status = run.Conclusion
	}
	return &RunDetail{ID: runID, Status: status, Stages: stages, Log: logText}, nil
}

func (c *GitHubClient) getRaw(ctx context.Context, path string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func (c *GitHubClient) doJSON(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = strings.NewReader(string(encoded))
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode == http.StatusUnprocessableEntity && strings.Contains(string(respBody), "already exists") {
		return errAlreadyExists
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("github: %s %s: status %d: %s", method, path, resp.StatusCode, string(respBody))
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("github: decoding response from %s: %w", path, err)
		}
	}
	return nil
}
