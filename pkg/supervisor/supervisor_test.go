package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/pipelineforge/pipelineforge/internal/hostclient"
	"github.com/pipelineforge/pipelineforge/pkg/committer"
	"github.com/pipelineforge/pipelineforge/pkg/domain"
	"github.com/pipelineforge/pipelineforge/pkg/fixer"
	"github.com/pipelineforge/pipelineforge/pkg/progress"
)

// fakeHost polls through a scripted sequence of ListRuns/GetRun
// responses, one step further advanced on every call, simulating a
// build that starts and then completes after a few polls.
type fakeHost struct {
	mu          sync.Mutex
	listCalls   int
	runsByCall  [][]hostclient.RunSummary
	detailCalls int
	detailSeq   []*hostclient.RunDetail
}

func (f *fakeHost) ListTopLevel(context.Context, string, string) ([]hostclient.Entry, error) { return nil, nil }
func (f *fakeHost) GetFile(context.Context, string, string, string) (*hostclient.File, error) {
	return nil, fmt.Errorf("not implemented")
}
func (f *fakeHost) CreateBranch(context.Context, string, string, string) error { return nil }
func (f *fakeHost) CreateOrUpdateFile(context.Context, string, string, string, []byte, string) (*hostclient.File, error) {
	return nil, fmt.Errorf("not implemented")
}

func (f *fakeHost) ListRuns(_ context.Context, _, _ string) ([]hostclient.RunSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.listCalls
	if idx >= len(f.runsByCall) {
		idx = len(f.runsByCall) - 1
	}
	f.listCalls++
	return f.runsByCall[idx], nil
}

func (f *fakeHost) GetRun(_ context.Context, _, _ string) (*hostclient.RunDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.detailCalls
	if idx >= len(f.detailSeq) {
		idx = len(f.detailSeq) - 1
	}
	f.detailCalls++
	return f.detailSeq[idx], nil
}

// fakeFixer returns a canned Result for FixRuntimeFailure.
type fakeFixer struct {
	result fixer.Result
	err    error
	calls  int
}

func (f *fakeFixer) FixRuntimeFailure(context.Context, *domain.ArtifactSet, domain.TargetPlatform, string, []string) (fixer.Result, error) {
	f.calls++
	return f.result, f.err
}

// fakeCommitter records every recommit.
type fakeCommitter struct {
	commits []string
}

func (c *fakeCommitter) CommitToBranch(_ context.Context, _, branch string, _ *domain.ArtifactSet) (committer.Result, error) {
	c.commits = append(c.commits, branch)
	return committer.Result{Branch: branch}, nil
}

// fakeLearning records every successful build.
type fakeLearning struct {
	recorded bool
}

func (l *fakeLearning) RecordSuccess(context.Context, domain.TargetPlatform, string, string, *domain.ArtifactSet, time.Duration) error {
	l.recorded = true
	return nil
}

func testSet() *domain.ArtifactSet {
	set := domain.NewArtifactSet(&domain.RepositoryDescriptor{Language: "go"}, domain.PlatformHostedPipeline)
	set.Set("pipeline.yml", "stages:\n  - build\n")
	return set
}

func fastConfig(maxAttempts int) Config {
	return Config{PollInterval: time.Millisecond, DiscoveryTimeout: time.Second, MaxAttempts: maxAttempts}
}

var _ = Describe("Supervisor", func() {
	req := Request{ProjectID: "acme/widgets", Repo: "acme/widgets", Branch: "pipelineforge/20260101-000000-abcd1234", Platform: domain.PlatformHostedPipeline, Language: "go", Framework: "none"}

	It("reports success and records the build once the run succeeds", func() {
		host := &fakeHost{
			runsByCall: [][]hostclient.RunSummary{
				{}, // first poll: nothing yet
				{{ID: "run-1", Branch: req.Branch, Status: "running"}},
			},
			detailSeq: []*hostclient.RunDetail{
				{ID: "run-1", Status: "running"},
				{ID: "run-1", Status: "success"},
			},
		}
		learning := &fakeLearning{}
		progressStore := progress.New(0, 0)
		sup := New(host, &fakeFixer{}, &fakeCommitter{}, learning, progressStore, fastConfig(2), zap.NewNop())

		stage, err := sup.Supervise(context.Background(), req, testSet())
		Expect(err).NotTo(HaveOccurred())
		Expect(stage).To(Equal(domain.StageSuccess))
		Expect(learning.recorded).To(BeTrue())

		rec, ok := progressStore.Get(progress.Key{ProjectID: req.ProjectID, Branch: req.Branch})
		Expect(ok).To(BeTrue())
		Expect(rec.Stage).To(Equal(domain.StageSuccess))
	})

	It("diagnoses a failed build, recommits the fix, and succeeds on the next run", func() {
		host := &fakeHost{
			runsByCall: [][]hostclient.RunSummary{
				{{ID: "run-1", Branch: req.Branch, Status: "running"}},
			},
			detailSeq: []*hostclient.RunDetail{
				{ID: "run-1", Status: "failed", Log: "error: missing env var\n", Stages: []hostclient.StageResult{{Name: "build", Status: "failed"}}},
				{ID: "run-1", Status: "success"},
			},
		}
		fixed := testSet()
		fixed.Set("pipeline.yml", "stages:\n  - build\n  - test\n")
		fx := &fakeFixer{result: fixer.Result{Status: fixer.StatusFixed, Set: fixed}}
		cm := &fakeCommitter{}
		progressStore := progress.New(0, 0)
		sup := New(host, fx, cm, nil, progressStore, fastConfig(2), zap.NewNop())

		stage, err := sup.Supervise(context.Background(), req, testSet())
		Expect(err).NotTo(HaveOccurred())
		Expect(stage).To(Equal(domain.StageSuccess))
		Expect(fx.calls).To(Equal(1))
		Expect(cm.commits).To(Equal([]string{req.Branch}))
	})

	It("fails once the discovery timeout elapses with no build observed", func() {
		host := &fakeHost{runsByCall: [][]hostclient.RunSummary{{}}}
		cfg := fastConfig(2)
		cfg.DiscoveryTimeout = 5 * time.Millisecond
		progressStore := progress.New(0, 0)
		sup := New(host, &fakeFixer{}, &fakeCommitter{}, nil, progressStore, cfg, zap.NewNop())

		stage, err := sup.Supervise(context.Background(), req, testSet())
		Expect(err).To(HaveOccurred())
		Expect(stage).To(Equal(domain.StageFailure))
	})

	It("fails once the attempt budget is exhausted on repeated build failures", func() {
		host := &fakeHost{
			runsByCall: [][]hostclient.RunSummary{{{ID: "run-1", Branch: req.Branch, Status: "running"}}},
			detailSeq:  []*hostclient.RunDetail{{ID: "run-1", Status: "failed", Log: "boom"}},
		}
		fixed := testSet()
		fixed.Set("pipeline.yml", "stages:\n  - build\n  - retry\n")
		fx := &fakeFixer{result: fixer.Result{Status: fixer.StatusFixed, Set: fixed}}
		progressStore := progress.New(0, 0)
		sup := New(host, fx, &fakeCommitter{}, nil, progressStore, fastConfig(1), zap.NewNop())

		stage, err := sup.Supervise(context.Background(), req, testSet())
		Expect(err).To(HaveOccurred())
		Expect(stage).To(Equal(domain.StageFailure))
	})

	It("fails immediately when the fixer cannot produce a usable change", func() {
		host := &fakeHost{
			runsByCall: [][]hostclient.RunSummary{{{ID: "run-1", Branch: req.Branch, Status: "running"}}},
			detailSeq:  []*hostclient.RunDetail{{ID: "run-1", Status: "failed", Log: "boom"}},
		}
		fx := &fakeFixer{result: fixer.Result{Status: fixer.StatusExhausted, Set: testSet()}}
		progressStore := progress.New(0, 0)
		sup := New(host, fx, &fakeCommitter{}, nil, progressStore, fastConfig(3), zap.NewNop())

		stage, err := sup.Supervise(context.Background(), req, testSet())
		Expect(err).To(HaveOccurred())
		Expect(stage).To(Equal(domain.StageFailure))
	})

	It("stops promptly when the context is cancelled mid-poll", func() {
		host := &fakeHost{runsByCall: [][]hostclient.RunSummary{{}}}
		cfg := fastConfig(2)
		cfg.DiscoveryTimeout = time.Minute
		progressStore := progress.New(0, 0)
		sup := New(host, &fakeFixer{}, &fakeCommitter{}, nil, progressStore, cfg, zap.NewNop())

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()

		_, err := sup.Supervise(ctx, req, testSet())
		Expect(err).To(HaveOccurred())
	})
})
