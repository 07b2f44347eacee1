// Package committer writes a generated artifact set to its source
// repository: a new timestamped branch off the default branch, then a
// create-or-update call per file.
package committer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pipelineforge/pipelineforge/internal/hostclient"
	"github.com/pipelineforge/pipelineforge/pkg/domain"
)

// Config tunes branch naming and the host used in returned URLs.
type Config struct {
	// ClientVisibleHost is the host name used when building a browsable
	// branch URL for the response, which may differ from the in-cluster
	// host the host API client itself talks to.
	ClientVisibleHost string
	BranchPrefix      string
}

// DefaultConfig returns a Config with no client-visible host override
// and the standard branch name prefix.
func DefaultConfig() Config {
	return Config{BranchPrefix: "pipelineforge"}
}

// Committer writes artifact sets to a repository host.
type Committer struct {
	cfg    Config
	client hostclient.Client
	logger *zap.Logger
}

// New builds a Committer.
func New(cfg Config, client hostclient.Client, logger *zap.Logger) *Committer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Committer{cfg: cfg, client: client, logger: logger}
}

// FileResult is the outcome of writing one artifact.
type FileResult struct {
	Path       string
	BlobHandle string
}

// Result is the outcome of one Commit call.
type Result struct {
	Branch    string
	BranchURL string
	Files     []FileResult
}

// Commit creates (or reuses) a timestamped branch off defaultBranch and
// writes every artifact in set to it. Per artifact: the existing file
// (if any) is probed first so the write can supply its blob handle,
// satisfying the host API's optimistic-concurrency requirement. A write
// failure is fatal for the whole call and returned immediately, leaving
// the branch in a consistent state up to the last successfully written
// file.
func (c *Committer) Commit(ctx context.Context, repo, defaultBranch string, set *domain.ArtifactSet) (Result, error) {
	branch := c.branchName()

	if err := c.client.CreateBranch(ctx, repo, branch, defaultBranch); err != nil {
		return Result{}, fmt.Errorf("committer: creating branch %s: %w", branch, err)
	}

	return c.writeFiles(ctx, repo, branch, set)
}

// CommitToBranch writes every artifact in set directly to an existing
// branch, with no new branch created first. It is used by the
// supervisor's fix-loop recommit, which must land a runtime-failure fix
// on the same branch a build already ran against, not a fresh one.
func (c *Committer) CommitToBranch(ctx context.Context, repo, branch string, set *domain.ArtifactSet) (Result, error) {
	return c.writeFiles(ctx, repo, branch, set)
}

// writeFiles is Commit and CommitToBranch's shared per-file write loop:
// probe the existing blob handle, then create-or-update. A write
// failure is fatal for the whole call and returned immediately, leaving
// the branch in a consistent state up to the last successfully written
// file.
func (c *Committer) writeFiles(ctx context.Context, repo, branch string, set *domain.ArtifactSet) (Result, error) {
	result := Result{Branch: branch, BranchURL: c.branchURL(repo, branch)}
	for _, name := range set.Names() {
		content, _ := set.Get(name)

		var previousHandle string
		if existing, err := c.client.GetFile(ctx, repo, name, branch); err == nil && existing != nil {
			previousHandle = existing.BlobHandle
		}

		file, err := c.client.CreateOrUpdateFile(ctx, repo, branch, name, []byte(content), previousHandle)
		if err != nil {
			return result, fmt.Errorf("committer: writing %s on branch %s: %w", name, branch, err)
		}
		result.Files = append(result.Files, FileResult{Path: name, BlobHandle: file.BlobHandle})
	}

	return result, nil
}

// branchName builds a branch name unique enough to never collide across
// concurrent generation requests for the same repository.
func (c *Committer) branchName() string {
	prefix := c.cfg.BranchPrefix
	if prefix == "" {
		prefix = "pipelineforge"
	}
	return fmt.Sprintf("%s/%s-%s", prefix, time.Now().UTC().Format("20060102-150405"), uuid.NewString()[:8])
}

// branchURL builds a browsable link to the branch using the
// client-visible host, never the in-cluster one the host client itself
// talks to; empty when no client-visible host is configured.
func (c *Committer) branchURL(repo, branch string) string {
	if c.cfg.ClientVisibleHost == "" {
		return ""
	}
	return fmt.Sprintf("https://%s/%s/tree/%s", strings.Trim(c.cfg.ClientVisibleHost, "/"), repo, branch)
}
