// Package pipeline chains the three components that together make up one
// end-to-end request: generate an artifact set, commit it to its source
// repository, then hand the resulting branch to the supervisor's
// monitor/fix/recommit loop in the background. It exists because
// internal/server's Orchestrator only needs a Generate method, but a
// real deployment wants all three steps triggered by one call.
package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/pipelineforge/pipelineforge/pkg/committer"
	"github.com/pipelineforge/pipelineforge/pkg/domain"
	"github.com/pipelineforge/pipelineforge/pkg/generator"
	"github.com/pipelineforge/pipelineforge/pkg/supervisor"
)

// generatorClient is the subset of *generator.Generator this package
// depends on.
type generatorClient interface {
	Generate(ctx context.Context, host, owner, repo, ref string, opts generator.Options) (generator.Result, error)
}

// committerClient is the subset of *committer.Committer this package
// depends on.
type committerClient interface {
	Commit(ctx context.Context, repo, defaultBranch string, set *domain.ArtifactSet) (committer.Result, error)
}

// supervisorClient is the subset of *supervisor.Supervisor this package
// depends on.
type supervisorClient interface {
	Supervise(ctx context.Context, req supervisor.Request, set *domain.ArtifactSet) (domain.ProgressStage, error)
}

// Orchestrator satisfies internal/server.Orchestrator by composing
// generation, commit, and supervision.
type Orchestrator struct {
	generator  generatorClient
	committer  committerClient
	supervisor supervisorClient
	logger     *zap.Logger
}

func New(g generatorClient, c committerClient, s supervisorClient, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{generator: g, committer: c, supervisor: s, logger: logger}
}

// Generate runs the generator, then commits the result to a fresh branch
// and starts supervising it in the background. A TemplateOnly request is
// a preview: it returns the generated artifacts without touching the
// repository at all. Commit and supervision failures are logged, not
// returned: the caller already has a usable artifact set, and the
// GET /v1/progress/... endpoint is how build-status failures surface.
func (o *Orchestrator) Generate(ctx context.Context, host, owner, repo, ref string, opts generator.Options) (generator.Result, error) {
	result, err := o.generator.Generate(ctx, host, owner, repo, ref, opts)
	if err != nil {
		return result, err
	}
	if opts.TemplateOnly || o.committer == nil {
		return result, nil
	}

	fullName := fmt.Sprintf("%s/%s", owner, repo)
	defaultBranch := ref
	if result.Artifacts.Analysis != nil && result.Artifacts.Analysis.DefaultBranch != "" {
		defaultBranch = result.Artifacts.Analysis.DefaultBranch
	}

	commitResult, err := o.committer.Commit(ctx, fullName, defaultBranch, result.Artifacts)
	if err != nil {
		o.logger.Warn("pipeline: commit failed, returning artifacts without a branch", zap.Error(err))
		return result, nil
	}

	if o.supervisor != nil {
		go o.supervise(host, owner, repo, commitResult.Branch, result)
	}

	return result, nil
}

func (o *Orchestrator) supervise(host, owner, repo, branch string, result generator.Result) {
	req := supervisor.Request{
		ProjectID: host + "/" + owner + "/" + repo,
		Repo:      owner + "/" + repo,
		Branch:    branch,
		Platform:  result.Artifacts.Platform,
	}
	if result.Artifacts.Analysis != nil {
		req.Language = result.Artifacts.Analysis.Language
		req.Framework = result.Artifacts.Analysis.Framework
	}

	stage, err := o.supervisor.Supervise(context.Background(), req, result.Artifacts)
	if err != nil {
		o.logger.Warn("pipeline: supervision ended with an error", zap.String("branch", branch), zap.Error(err))
		return
	}
	o.logger.Info("pipeline: supervision finished", zap.String("branch", branch), zap.String("stage", string(stage)))
}
