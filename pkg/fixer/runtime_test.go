package fixer

import (
	"context"
	"regexp"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/pipelineforge/pipelineforge/pkg/domain"
	"github.com/pipelineforge/pipelineforge/pkg/fixer/postprocess"
)

var _ = Describe("FixRuntimeFailure", func() {
	It("applies the single-pass response without ever consulting a diagnostic", func() {
		set := newArtifactSet()
		llm := &fakeLLM{responses: []string{
			"---EXPLANATION---\nfixed the missing credential\n---FILE:pipeline.yml---\nstages:\n  - build\n---END---\n",
		}}
		validator := &fakeValidator{responses: [][]domain.ValidationDiagnostic{nil}}
		f := New(validator, llm, "model", 1, false, nil, zap.NewNop())

		result, err := f.FixRuntimeFailure(context.Background(), set, domain.PlatformHostedPipeline, "build", []string{"error: missing credential"})
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Status).To(Equal(StatusFixed))
		Expect(llm.calls).To(Equal(1))

		content, ok := result.Set.Get("pipeline.yml")
		Expect(ok).To(BeTrue())
		Expect(content).To(ContainSubstring("build"))
	})

	It("returns exhausted without a second LLM call when the response has no usable files", func() {
		set := newArtifactSet()
		llm := &fakeLLM{responses: []string{"I could not determine a fix."}}
		validator := &fakeValidator{responses: [][]domain.ValidationDiagnostic{nil}}
		f := New(validator, llm, "model", 1, false, nil, zap.NewNop())

		result, err := f.FixRuntimeFailure(context.Background(), set, domain.PlatformHostedPipeline, "build", []string{"timeout"})
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Status).To(Equal(StatusExhausted))
		Expect(llm.calls).To(Equal(1))
	})

	It("marks the result exhausted when the repaired artifacts still fail validation", func() {
		set := newArtifactSet()
		llm := &fakeLLM{responses: []string{
			"---FILE:pipeline.yml---\nstages: []\n---END---\n",
		}}
		validator := &fakeValidator{responses: [][]domain.ValidationDiagnostic{{errDiagFor("still broken")}}}
		f := New(validator, llm, "model", 1, false, nil, zap.NewNop())

		result, err := f.FixRuntimeFailure(context.Background(), set, domain.PlatformHostedPipeline, "build", []string{"still broken"})
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Status).To(Equal(StatusExhausted))
	})

	It("runs post-processing rules over the repaired content", func() {
		set := newArtifactSet()
		llm := &fakeLLM{responses: []string{
			"---FILE:pipeline.yml---\nimage: docker.io/library/golang:1.22\n---END---\n",
		}}
		validator := &fakeValidator{responses: [][]domain.ValidationDiagnostic{nil}}
		rule := postprocess.Rule{
			Name:    "rehome golang image",
			Match:   regexp.MustCompile(`docker\.io/library/golang`),
			Replace: "private.example.com/golang",
		}
		f := New(validator, llm, "model", 1, false, []postprocess.Rule{rule}, zap.NewNop())

		result, err := f.FixRuntimeFailure(context.Background(), set, domain.PlatformHostedPipeline, "build", []string{"bad image"})
		Expect(err).NotTo(HaveOccurred())
		content, _ := result.Set.Get("pipeline.yml")
		Expect(content).To(ContainSubstring("private.example.com/golang"))
	})
})
