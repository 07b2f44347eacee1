package hostclient

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	sharedhttp "github.com/pipelineforge/pipelineforge/pkg/shared/http"
)

// runStatusSuccess/runStatusFailed are the two terminal statuses every
// hostclient.Client implementation normalizes its host-specific status
// vocabulary onto; anything else is still in flight.
const (
	runStatusSuccess = "success"
	runStatusFailed  = "failed"
)

// GitLabClient talks to the GitLab REST v4 API. repo is always the
// project's path_with_namespace (e.g. "acme/widgets"), URL-encoded on
// every request the way GitLab's API requires.
type GitLabClient struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewGitLabClient builds a GitLabClient authenticated with a personal
// or project access token. An empty baseURL defaults to gitlab.com.
func NewGitLabClient(baseURL, token string) *GitLabClient {
	if baseURL == "" {
		baseURL = "https://gitlab.com/api/v4"
	}
	return &GitLabClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    sharedhttp.NewClient(sharedhttp.DefaultClientConfig()),
	}
}

func projectPath(repo string) string {
	return url.PathEscape(repo)
}

type gitlabTreeEntry struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

func (c *GitLabClient) ListTopLevel(ctx context.Context, repo, ref string) ([]Entry, error) {
	path := fmt.Sprintf("/projects/%s/repository/tree", projectPath(repo))
	if ref != "" {
		path += "?ref=" + url.QueryEscape(ref)
	}

	var entries []gitlabTreeEntry
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &entries); err != nil {
		return nil, fmt.Errorf("hostclient: listing %s: %w", repo, err)
	}

	out := make([]Entry, len(entries))
	for i, e := range entries {
		out[i] = Entry{Name: e.Name, IsDir: e.Type == "tree"}
	}
	return out, nil
}

type gitlabFileResponse struct {
	Content       string `json:"content"`
	Encoding      string `json:"encoding"`
	LastCommitID  string `json:"last_commit_id"`
}

func (c *GitLabClient) GetFile(ctx context.Context, repo, path, ref string) (*File, error) {
	reqPath := fmt.Sprintf("/projects/%s/repository/files/%s", projectPath(repo), url.PathEscape(strings.TrimPrefix(path, "/")))
	if ref == "" {
		ref = "main"
	}
	reqPath += "?ref=" + url.QueryEscape(ref)

	var resp gitlabFileResponse
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
	return &File{Content: content, BlobHandle: resp.LastCommitID}, nil
}

type gitlabBranchRequest struct {
	Branch string `json:"branch"`
	Ref    string `json:"ref"`
}

func (c *GitLabClient) CreateBranch(ctx context.Context, repo, newBranch, fromRef string) error {
	path := fmt.Sprintf("/projects/%s/repository/branches", projectPath(repo))
	req := gitlabBranchRequest{Branch: newBranch, Ref: fromRef}
	err := c.doJSON(ctx, http.MethodPost, path, req, nil)
	if err != nil && isAlreadyExists(err) {
		return nil
	}
	return err
}

type gitlabFileWriteRequest struct {
	Branch        string `json:"branch"`
	Content       string `json:"content"`
	Encoding      string `json:"encoding"`
	CommitMessage string `json:"commit_message"`
}

func (c *GitLabClient) CreateOrUpdateFile(ctx context.Context, repo, branch, path string, content []byte, previousBlobHandle string) (*File, error) {
	reqPath := fmt.Sprintf("/projects/%s/repository/files/%s", projectPath(repo), url.PathEscape(strings.TrimPrefix(path, "/")))
	req := gitlabFileWriteRequest{
		Branch:        branch,
		Content:       base64.StdEncoding.EncodeToString(content),
		Encoding:      "base64",
		CommitMessage: fmt.Sprintf("pipelineforge: update %s", path),
	}

	method := http.MethodPost
	if previousBlobHandle != "" {
		method = http.MethodPut
	}
	var resp struct {
		FilePath string `json:"file_path"`
	}
	if err := c.doJSON(ctx, method, reqPath, req, &resp); err != nil {
		return nil, fmt.Errorf("hostclient: writing %s/%s: %w", repo, path, err)
	}
	// GitLab's file-write endpoints don't return a blob SHA; the commit
	// that created it is the closest stand-in, but the API doesn't
	// surface it here either, so the next read's ref is used instead.
	return &File{Content: content, BlobHandle: branch}, nil
}

type gitlabPipeline struct {
	ID     int64  `json:"id"`
	Status string `json:"status"`
	Ref    string `json:"ref"`
	Created string `json:"created_at"`
}

func (c *GitLabClient) ListRuns(ctx context.Context, repo, branch string) ([]RunSummary, error) {
	path := fmt.Sprintf("/projects/%s/pipelines?ref=%s", projectPath(repo), url.QueryEscape(branch))
	var pipelines []gitlabPipeline
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &pipelines); err != nil {
		return nil, fmt.Errorf("hostclient: listing pipelines for %s: %w", repo, err)
	}

	out := make([]RunSummary, len(pipelines))
	for i, p := range pipelines {
		startedAt, _ := time.Parse(time.RFC3339, p.Created)
		out[i] = RunSummary{ID: strconv.FormatInt(p.ID, 10), Status: mapGitlabStatus(p.Status), Branch: p.Ref, StartedAt: startedAt}
	}
	return out, nil
}

func (c *GitLabClient) GetRun(ctx context.Context, repo, runID string) (*RunDetail, error) {
	var pipeline gitlabPipeline
	if err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("/projects/%s/pipelines/%s", projectPath(repo), runID), nil, &pipeline); err != nil {
		return nil, fmt.Errorf("hostclient: fetching pipeline %s: %w", runID, err)
	}

	var jobs []struct {
		ID     int64  `json:"id"`
		Name   string `json:"name"`
		Status string `json:"status"`
	}
	_ = c.doJSON(ctx, http.MethodGet, fmt.Sprintf("/projects/%s/pipelines/%s/jobs", projectPath(repo), runID), nil, &jobs)

	stages := make([]StageResult, len(jobs))
	var logText strings.Builder
	for i, j := range jobs {
		stages[i] = StageResult{Name: j.Name, Status: mapGitlabStatus(j.Status)}
		if mapGitlabStatus(j.Status) == runStatusFailed {
			trace, _ := c.getRaw(ctx, fmt.Sprintf("/projects/%s/jobs/%d/trace", projectPath(repo), j.ID))
			logText.WriteString(trace)
		}
	}

	return &RunDetail{ID: runID, Status: mapGitlabStatus(pipeline.Status), Stages: stages, Log: logText.String()}, nil
}

// mapGitlabStatus collapses GitLab's richer pipeline/job status set onto
// the success/failed/running vocabulary the rest of the module uses;
// anything not explicitly successful or failed is still in flight.
func mapGitlabStatus(status string) string {
	switch status {
	case "success":
		return runStatusSuccess
	case "failed", "canceled", "skipped":
		return runStatusFailed
	default:
		return status
	}
}

func (c *GitLabClient) getRaw(ctx context.Context, path string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("PRIVATE-TOKEN", c.token)
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

func (c *GitLabClient) doJSON(ctx context.Context, method, path string, body interface{}, out interface{}) error {
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
	req.Header.Set("PRIVATE-TOKEN", c.token)
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

	if resp.StatusCode == http.StatusBadRequest && strings.Contains(string(respBody), "already exists") {
		return errAlreadyExists
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("gitlab: %s %s: status %d: %s", method, path, resp.StatusCode, string(respBody))
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("gitlab: decoding response from %s: %w", path, err)
		}
	}
	return nil
}
