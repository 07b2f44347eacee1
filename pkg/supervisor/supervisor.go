// Package supervisor watches a just-committed branch for the build it
// triggers, feeds a runtime failure back through the fixer's
// single-pass repair, and recommits until the build succeeds or the
// request's attempt budget runs out. One Supervisor instance is meant
// to be started per successful commit, as a long-running background
// task.
package supervisor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pipelineforge/pipelineforge/internal/hostclient"
	"github.com/pipelineforge/pipelineforge/pkg/committer"
	"github.com/pipelineforge/pipelineforge/pkg/domain"
	"github.com/pipelineforge/pipelineforge/pkg/fixer"
	"github.com/pipelineforge/pipelineforge/pkg/progress"
)

// terminal build statuses a host reports; anything else is still
// in-flight.
const (
	runStatusSuccess = "success"
	runStatusFailed  = "failed"
)

func isTerminal(status string) bool {
	return status == runStatusSuccess || status == runStatusFailed
}

// fixerClient is the subset of *fixer.Fixer the supervisor depends on.
type fixerClient interface {
	FixRuntimeFailure(ctx context.Context, set *domain.ArtifactSet, platform domain.TargetPlatform, jobName string, log []string) (fixer.Result, error)
}

// committerClient is the subset of *committer.Committer the supervisor
// depends on.
type committerClient interface {
	CommitToBranch(ctx context.Context, repo, branch string, set *domain.ArtifactSet) (committer.Result, error)
}

// learningClient is the subset of *learning.Store the supervisor
// depends on.
type learningClient interface {
	RecordSuccess(ctx context.Context, platform domain.TargetPlatform, language, framework string, set *domain.ArtifactSet, buildDuration time.Duration) error
}

// Config tunes polling cadence and the attempt budget.
type Config struct {
	// PollInterval is how often the build host is polled for a new or
	// completed run. Defaults to 10s.
	PollInterval time.Duration
	// DiscoveryTimeout bounds how long MONITORING waits for a build to
	// start before giving up. Defaults to 5 minutes.
	DiscoveryTimeout time.Duration
	// MaxAttempts bounds how many DIAGNOSING→FIX_LOOP→COMMIT round trips
	// are attempted before giving up. Defaults to 3.
	MaxAttempts int
	// LogTailBytes bounds how much of a failed job's log is kept for the
	// repair prompt. Defaults to 16KB.
	LogTailBytes int
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 10 * time.Second
	}
	if c.DiscoveryTimeout <= 0 {
		c.DiscoveryTimeout = 5 * time.Minute
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.LogTailBytes <= 0 {
		c.LogTailBytes = 16 * 1024
	}
	return c
}

// Supervisor drives the monitor/fix/recommit state machine for one
// repository branch.
type Supervisor struct {
	host      hostclient.Client
	fixer     fixerClient
	committer committerClient
	learning  learningClient
	progress  *progress.Store
	cfg       Config
	logger    *zap.Logger
}

// New builds a Supervisor. learning may be nil: a successful build is
// still observed and reported, it just isn't recorded for future
// proven-template lookups.
func New(host hostclient.Client, fixer fixerClient, committer committerClient, learning learningClient, progressStore *progress.Store, cfg Config, logger *zap.Logger) *Supervisor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Supervisor{
		host:      host,
		fixer:     fixer,
		committer: committer,
		learning:  learning,
		progress:  progressStore,
		cfg:       cfg.withDefaults(),
		logger:    logger,
	}
}

// Request describes the branch to supervise and the context needed to
// record a successful build and to drive the fixer on a failed one.
type Request struct {
	ProjectID string
	Repo      string
	Branch    string
	Platform  domain.TargetPlatform
	Language  string
	Framework string
}

// Supervise runs the state machine to completion: domain.StageSuccess
// once a build on branch (or a recommitted descendant of it) succeeds,
// domain.StageFailure once the discovery timeout or attempt budget is
// exhausted. It blocks until one of those or ctx is cancelled.
func (s *Supervisor) Supervise(ctx context.Context, req Request, set *domain.ArtifactSet) (domain.ProgressStage, error) {
	key := progress.Key{ProjectID: req.ProjectID, Branch: req.Branch}
	s.progress.Create(key, s.cfg.MaxAttempts)

	branch := req.Branch
	current := set

	for attempt := 0; ; attempt++ {
		run, err := s.awaitBuildStart(ctx, req.Repo, branch)
		if err != nil {
			s.emit(key, domain.StageFailure, err.Error(), attempt)
			return domain.StageFailure, err
		}

		s.emit(key, domain.StageMonitoring, fmt.Sprintf("running: build %s in progress", run.ID), attempt)
		detail, err := s.awaitBuildCompletion(ctx, req.Repo, run.ID)
		if err != nil {
			s.emit(key, domain.StageFailure, err.Error(), attempt)
			return domain.StageFailure, err
		}

		if detail.Status == runStatusSuccess {
			s.recordSuccess(ctx, req, current)
			s.emit(key, domain.StageSuccess, "build succeeded", attempt)
			return domain.StageSuccess, nil
		}

		if attempt >= s.cfg.MaxAttempts {
			s.emit(key, domain.StageFailure, "attempts exhausted", attempt)
			return domain.StageFailure, fmt.Errorf("supervisor: exhausted %d attempts for %s@%s", s.cfg.MaxAttempts, req.Repo, branch)
		}

		s.emit(key, domain.StageFixing, fmt.Sprintf("diagnosing: build %s failed, fetching job log", run.ID), attempt)
		jobName, logLines := failedJobLog(detail, s.cfg.LogTailBytes)

		result, err := s.fixer.FixRuntimeFailure(ctx, current, req.Platform, jobName, logLines)
		if err != nil {
			s.emit(key, domain.StageFailure, err.Error(), attempt)
			return domain.StageFailure, err
		}
		if result.Status != fixer.StatusFixed || result.Set.ContentHash() == current.ContentHash() {
			s.emit(key, domain.StageFailure, "fixer produced no usable change", attempt)
			return domain.StageFailure, fmt.Errorf("supervisor: runtime-failure repair produced no usable change for %s@%s", req.Repo, branch)
		}

		s.emit(key, domain.StageCommitting, "committing fix to the same branch", attempt)
		if _, err := s.committer.CommitToBranch(ctx, req.Repo, branch, result.Set); err != nil {
			s.emit(key, domain.StageFailure, err.Error(), attempt)
			return domain.StageFailure, fmt.Errorf("supervisor: recommitting fix: %w", err)
		}
		current = result.Set
	}
}

func (s *Supervisor) recordSuccess(ctx context.Context, req Request, set *domain.ArtifactSet) {
	if s.learning == nil {
		return
	}
	if err := s.learning.RecordSuccess(ctx, req.Platform, req.Language, req.Framework, set, 0); err != nil {
		s.logger.Warn("supervisor: failed to record successful build", zap.Error(err))
	}
}

func (s *Supervisor) emit(key progress.Key, stage domain.ProgressStage, message string, attempt int) {
	s.progress.Append(key, domain.ProgressEvent{
		Timestamp:   time.Now(),
		Stage:       stage,
		Message:     message,
		Attempt:     attempt,
		MaxAttempts: s.cfg.MaxAttempts,
	})
}

// awaitBuildStart polls ListRuns until a run for branch appears,
// bounded by DiscoveryTimeout. Cancellation is observed at every poll
// boundary.
func (s *Supervisor) awaitBuildStart(ctx context.Context, repo, branch string) (hostclient.RunSummary, error) {
	deadline := time.Now().Add(s.cfg.DiscoveryTimeout)
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		runs, err := s.host.ListRuns(ctx, repo, branch)
		if err == nil {
			for _, run := range runs {
				if run.Branch == branch {
					return run, nil
				}
			}
		}
		if time.Now().After(deadline) {
			return hostclient.RunSummary{}, fmt.Errorf("supervisor: no build observed for %s@%s within %s", repo, branch, s.cfg.DiscoveryTimeout)
		}
		select {
		case <-ctx.Done():
			return hostclient.RunSummary{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

// awaitBuildCompletion polls GetRun until the run reaches a terminal
// status. Cancellation is observed at every poll boundary.
func (s *Supervisor) awaitBuildCompletion(ctx context.Context, repo, runID string) (*hostclient.RunDetail, error) {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		detail, err := s.host.GetRun(ctx, repo, runID)
		if err == nil && detail != nil && isTerminal(detail.Status) {
			return detail, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// failedJobLog picks the name of the first non-successful stage (or
// "build" if the run didn't break its status down by stage) and
// truncates the run's log to its last maxBytes, split into lines.
func failedJobLog(detail *hostclient.RunDetail, maxBytes int) (string, []string) {
	jobName := "build"
	for _, stage := range detail.Stages {
		if stage.Status != runStatusSuccess {
			jobName = stage.Name
			break
		}
	}

	log := detail.Log
	if len(log) > maxBytes {
		log = log[len(log)-maxBytes:]
	}
	return jobName, strings.Split(strings.TrimRight(log, "\n"), "\n")
}
