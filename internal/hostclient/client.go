// Package hostclient abstracts the two repository-host flavors
// (GitHub-shaped and GitLab-shaped JSON REST APIs) behind
// one capability interface: list top-level contents at a ref, fetch a
// file by path with a blob handle, create a branch, create-or-update a
// file on a branch (idempotent by blob handle), and enumerate/fetch
// pipeline runs.
package hostclient

import (
	"context"
	"time"
)

// Entry is one top-level directory listing result.
type Entry struct {
	Name  string
	IsDir bool
}

// File is a fetched blob plus the handle needed to update it later.
type File struct {
	Content    []byte
	BlobHandle string
}

// RunSummary is one entry in a descending-ordered run listing.
type RunSummary struct {
	ID        string
	Status    string
	Branch    string
	StartedAt time.Time
}

// RunDetail is a single run or job record including its textual log.
type RunDetail struct {
	ID     string
	Status string
	Stages []StageResult
	Log    string
}

// StageResult is one stage's outcome within a run.
type StageResult struct {
	Name   string
	Status string
}

// Client is satisfied by every concrete host implementation.
type Client interface {
	// ListTopLevel lists the top-level entries of repo at ref.
	ListTopLevel(ctx context.Context, repo, ref string) ([]Entry, error)
	// GetFile fetches path from repo at ref.
	GetFile(ctx context.Context, repo, path, ref string) (*File, error)
	// CreateBranch creates newBranch in repo starting from fromRef. It
	// is idempotent: creating a branch that already exists at the same
	// ref is not an error.
	CreateBranch(ctx context.Context, repo, newBranch, fromRef string) error
	// CreateOrUpdateFile writes content to path on branch. If
	// previousBlobHandle is non-empty it is used as the update's
	// optimistic-concurrency token; if empty, the file is created.
	CreateOrUpdateFile(ctx context.Context, repo, branch, path string, content []byte, previousBlobHandle string) (*File, error)
	// ListRuns enumerates runs on branch, ordered most-recent-first.
	ListRuns(ctx context.Context, repo, branch string) ([]RunSummary, error)
	// GetRun fetches a single run's detail including its log.
	GetRun(ctx context.Context, repo, runID string) (*RunDetail, error)
}
