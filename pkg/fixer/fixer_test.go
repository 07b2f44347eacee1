package fixer

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/pipelineforge/pipelineforge/pkg/domain"
	"github.com/pipelineforge/pipelineforge/pkg/fixer/postprocess"
	"github.com/pipelineforge/pipelineforge/pkg/llm"
)

// fakeValidator returns one diagnostic slice per call, in order, and
// repeats the last one once exhausted.
type fakeValidator struct {
	responses [][]domain.ValidationDiagnostic
	calls     int
}

func (f *fakeValidator) Validate(_ context.Context, _ *domain.ArtifactSet, _ domain.TargetPlatform) []domain.ValidationDiagnostic {
	idx := f.calls
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	f.calls++
	return f.responses[idx]
}

// fakeLLM returns one canned response per call, in order.
type fakeLLM struct {
	responses []string
	calls     int
	err       error
}

func (f *fakeLLM) Generate(_ context.Context, _ llm.Request) (llm.Response, error) {
	if f.err != nil {
		return llm.Response{}, f.err
	}
	idx := f.calls
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	f.calls++
	return llm.Response{Text: f.responses[idx]}, nil
}

func (f *fakeLLM) Close() error { return nil }

func errDiagFor(msg string) domain.ValidationDiagnostic {
	return domain.ValidationDiagnostic{CheckName: "structural_parse", Kind: domain.DiagnosticError, Message: msg}
}

func newArtifactSet() *domain.ArtifactSet {
	set := domain.NewArtifactSet(&domain.RepositoryDescriptor{Language: "go"}, domain.PlatformHostedPipeline)
	set.Set("pipeline.yml", "stages: []")
	return set
}

var _ = Describe("Fixer", func() {
	var rules []postprocess.Rule

	BeforeEach(func() {
		rules = postprocess.DefaultRules(postprocess.Config{
			PrivateRegistryVar: "BASE_REGISTRY",
			RepositoryPath:     "apm-repo/demo",
			PublicHosts:        []string{"docker.io/", "gcr.io/", "quay.io/"},
		})
	})

	It("returns fixed immediately when the first validation passes", func() {
		v := &fakeValidator{responses: [][]domain.ValidationDiagnostic{nil}}
		client := &fakeLLM{}
		f := New(v, client, "gpt-fix", 3, false, rules, zap.NewNop())

		result, err := f.Fix(context.Background(), newArtifactSet(), domain.PlatformHostedPipeline, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Status).To(Equal(StatusFixed))
		Expect(result.History).To(BeEmpty())
		Expect(client.calls).To(Equal(0))
	})

	It("applies a repaired file and succeeds on the second attempt", func() {
		v := &fakeValidator{responses: [][]domain.ValidationDiagnostic{
			{errDiagFor("stages: required stage \"build\" missing")},
			nil,
		}}
		client := &fakeLLM{responses: []string{
			"---EXPLANATION---\nadded the build stage\n---FILE:pipeline.yml---\nstages:\n  - build\n---END---",
		}}
		f := New(v, client, "gpt-fix", 3, false, rules, zap.NewNop())

		result, err := f.Fix(context.Background(), newArtifactSet(), domain.PlatformHostedPipeline, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Status).To(Equal(StatusFixed))
		Expect(result.History).To(HaveLen(1))
		Expect(result.History[0].Applied).To(BeTrue())
		content, ok := result.Set.Get("pipeline.yml")
		Expect(ok).To(BeTrue())
		Expect(content).To(Equal("stages:\n  - build"))
	})

	It("reports exhausted once max attempts is reached with errors still present", func() {
		failing := []domain.ValidationDiagnostic{errDiagFor("still broken")}
		v := &fakeValidator{responses: [][]domain.ValidationDiagnostic{failing, failing, failing}}
		client := &fakeLLM{responses: []string{"no usable fix"}}
		f := New(v, client, "gpt-fix", 2, false, rules, zap.NewNop())

		result, err := f.Fix(context.Background(), newArtifactSet(), domain.PlatformHostedPipeline, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Status).To(Equal(StatusExhausted))
		Expect(result.History).To(HaveLen(2))
		Expect(result.LastDiag).To(HaveLen(1))
	})

	It("treats a warnings-only result as fixed when strict mode is off", func() {
		v := &fakeValidator{responses: [][]domain.ValidationDiagnostic{
			{{CheckName: "remote_lint", Kind: domain.DiagnosticWarning, Message: "deprecated image tag"}},
		}}
		client := &fakeLLM{}
		f := New(v, client, "gpt-fix", 3, false, rules, zap.NewNop())

		result, err := f.Fix(context.Background(), newArtifactSet(), domain.PlatformHostedPipeline, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Status).To(Equal(StatusFixed))
	})

	It("treats a warnings-only result as exhaustion when strict mode is on", func() {
		warning := []domain.ValidationDiagnostic{{CheckName: "remote_lint", Kind: domain.DiagnosticWarning, Message: "deprecated image tag"}}
		v := &fakeValidator{responses: [][]domain.ValidationDiagnostic{warning, warning}}
		client := &fakeLLM{responses: []string{"no change"}}
		f := New(v, client, "gpt-fix", 2, true, rules, zap.NewNop())

		result, err := f.Fix(context.Background(), newArtifactSet(), domain.PlatformHostedPipeline, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Status).To(Equal(StatusExhausted))
	})

	It("keeps the prior artifact set and records a non-applied attempt when the LLM call errors", func() {
		failing := []domain.ValidationDiagnostic{errDiagFor("still broken")}
		v := &fakeValidator{responses: [][]domain.ValidationDiagnostic{failing, failing}}
		client := &fakeLLM{err: context.DeadlineExceeded}
		f := New(v, client, "gpt-fix", 2, false, rules, zap.NewNop())

		original := newArtifactSet()
		result, err := f.Fix(context.Background(), original, domain.PlatformHostedPipeline, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Status).To(Equal(StatusExhausted))
		Expect(result.History[0].Applied).To(BeFalse())
		content, _ := result.Set.Get("pipeline.yml")
		Expect(content).To(Equal("stages: []"))
	})

	It("runs a post-processing rewrite on every applied fix", func() {
		v := &fakeValidator{responses: [][]domain.ValidationDiagnostic{
			{errDiagFor("disallowed public registry host")},
			nil,
		}}
		client := &fakeLLM{responses: []string{
			"---FILE:Dockerfile---\nFROM docker.io/library/debian:12\n---END---",
		}}
		set := newArtifactSet()
		set.Set("Dockerfile", "FROM debian:12")
		f := New(v, client, "gpt-fix", 3, false, rules, zap.NewNop())

		result, err := f.Fix(context.Background(), set, domain.PlatformHostedPipeline, nil)
		Expect(err).NotTo(HaveOccurred())
		content, _ := result.Set.Get("Dockerfile")
		Expect(content).To(Equal("FROM ${BASE_REGISTRY}/apm-repo/demo/library/debian:12"))
	})
})
