package generator

import (
	"context"
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/pipelineforge/pipelineforge/internal/hostclient"
	"github.com/pipelineforge/pipelineforge/pkg/analyzer"
	"github.com/pipelineforge/pipelineforge/pkg/domain"
	"github.com/pipelineforge/pipelineforge/pkg/fixer/postprocess"
	"github.com/pipelineforge/pipelineforge/pkg/imageseeder"
	"github.com/pipelineforge/pipelineforge/pkg/llm"
	"github.com/pipelineforge/pipelineforge/pkg/registry"
	"github.com/pipelineforge/pipelineforge/pkg/templates"
	"github.com/pipelineforge/pipelineforge/pkg/templatestore"
	"github.com/pipelineforge/pipelineforge/pkg/templatestore/vectorclient"
	"github.com/pipelineforge/pipelineforge/pkg/validator"
)

// fakeHostClient resolves a fixed top-level listing for analysis; none of
// the write/run methods are exercised by generator tests.
type fakeHostClient struct {
	entries []hostclient.Entry
}

func (f *fakeHostClient) ListTopLevel(context.Context, string, string) ([]hostclient.Entry, error) {
	return f.entries, nil
}
func (f *fakeHostClient) GetFile(context.Context, string, string, string) (*hostclient.File, error) {
	return nil, fmt.Errorf("not implemented")
}
func (f *fakeHostClient) CreateBranch(context.Context, string, string, string) error { return nil }
func (f *fakeHostClient) CreateOrUpdateFile(context.Context, string, string, string, []byte, string) (*hostclient.File, error) {
	return nil, fmt.Errorf("not implemented")
}
func (f *fakeHostClient) ListRuns(context.Context, string, string) ([]hostclient.RunSummary, error) {
	return nil, nil
}
func (f *fakeHostClient) GetRun(context.Context, string, string) (*hostclient.RunDetail, error) {
	return nil, nil
}

// fakeVectorClient is an in-memory vectorclient.Client.
type fakeVectorClient struct {
	collections map[string]bool
	docs        map[string][]vectorclient.Document
}

func newFakeVectorClient() *fakeVectorClient {
	return &fakeVectorClient{collections: map[string]bool{}, docs: map[string][]vectorclient.Document{}}
}

func (f *fakeVectorClient) CreateCollection(_ context.Context, name string) (string, error) {
	f.collections[name] = true
	return name, nil
}
func (f *fakeVectorClient) GetOrCreateCollection(_ context.Context, name string) (string, error) {
	f.collections[name] = true
	return name, nil
}
func (f *fakeVectorClient) Add(_ context.Context, handle string, docs []vectorclient.Document) error {
	f.docs[handle] = append(f.docs[handle], docs...)
	return nil
}
func (f *fakeVectorClient) Get(_ context.Context, handle string, where vectorclient.Where) ([]vectorclient.Document, error) {
	var out []vectorclient.Document
	for _, d := range f.docs[handle] {
		if where.Matches(d.Metadata) {
			out = append(out, d)
		}
	}
	return out, nil
}
func (f *fakeVectorClient) Update(_ context.Context, handle string, doc vectorclient.Document) error {
	for i, d := range f.docs[handle] {
		if d.ID == doc.ID {
			f.docs[handle][i] = doc
			return nil
		}
	}
	return vectorclient.ErrNotFound
}
func (f *fakeVectorClient) Delete(_ context.Context, handle string, id string) error {
	return nil
}
func (f *fakeVectorClient) Count(_ context.Context, handle string, where vectorclient.Where) (int, error) {
	docs, _ := f.Get(context.Background(), handle, where)
	return len(docs), nil
}

// fakeLLMClient returns a fixed response, recording every call it
// receives.
type fakeLLMClient struct {
	response llm.Response
	err      error
	calls    int
}

func (f *fakeLLMClient) Generate(context.Context, llm.Request) (llm.Response, error) {
	f.calls++
	return f.response, f.err
}
func (f *fakeLLMClient) Close() error { return nil }

// fakeLLMRegistry hands out a single fakeLLMClient, tracking how many
// times a client was requested.
type fakeLLMRegistry struct {
	client *fakeLLMClient
	calls  int
}

func (r *fakeLLMRegistry) Instance(string) (llm.Client, error) {
	r.calls++
	return r.client, nil
}
func (r *fakeLLMRegistry) GetActive() string { return "anthropic" }

const privateRegistryVar = "BASE_REGISTRY"

func goRepoEntries() []hostclient.Entry {
	return []hostclient.Entry{{Name: "go.mod"}, {Name: "main.go"}}
}

func newTestGenerator(llmClient *fakeLLMClient, store *templatestore.Store) (*Generator, *fakeLLMRegistry) {
	hosts := map[string]hostclient.Client{"github": &fakeHostClient{entries: goRepoEntries()}}
	a := analyzer.New(hosts)

	v := validator.New(validator.DefaultConfig(), nil, nil, zap.NewNop())
	seeder := imageseeder.New(registry.NewGateway(registry.Config{}, zap.NewNop()), zap.NewNop())
	reg := &fakeLLMRegistry{client: llmClient}

	cfg := Config{
		PrivateRegistryVar: privateRegistryVar,
		MaxFixAttempts:     3,
		PostprocessRules:   []postprocess.Rule{},
	}
	return New(a, store, reg, v, seeder, cfg, zap.NewNop()), reg
}

func markerResponse(set *domain.ArtifactSet) llm.Response {
	var text string
	for _, name := range set.Names() {
		content, _ := set.Get(name)
		text += fmt.Sprintf("---FILE:%s---\n%s\n---END---\n", name, content)
	}
	return llm.Response{Text: text}
}

var _ = Describe("Generator", func() {
	var store *templatestore.Store
	var vc *fakeVectorClient

	BeforeEach(func() {
		vc = newFakeVectorClient()
		store = templatestore.New(vc)
	})

	It("returns the default template in template-only mode without touching the LLM", func() {
		llmClient := &fakeLLMClient{}
		gen, reg := newTestGenerator(llmClient, store)

		result, err := gen.Generate(context.Background(), "github", "acme", "widgets", "", Options{
			Platform:     domain.PlatformHostedPipeline,
			TemplateOnly: true,
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Provenance).To(Equal(domain.ProvenanceDefaultTemplate))
		Expect(reg.calls).To(Equal(0))
		Expect(llmClient.calls).To(Equal(0))
	})

	It("serves a proven template and injects the learn hook", func() {
		analysis := &domain.RepositoryDescriptor{Language: "go"}
		proven := domain.NewArtifactSet(analysis, domain.PlatformHostedPipeline)
		proven.Set("pipeline.yml", "stages:\n  - build\n")
		proven.Set("container.build", fmt.Sprintf("FROM %s/alpine:3.18\n", privateRegistryVar))

		rec := domain.TemplateRecord{
			ID:       "go-default",
			Document: templatestore.Serialize(proven),
			Metadata: domain.TemplateMetadata{
				Collection: domain.CollectionSuccessfulArtifacts,
				Platform:   domain.PlatformHostedPipeline,
				Language:   "go",
			},
		}
		Expect(store.UpsertProvenArtifact(context.Background(), rec)).To(Succeed())

		llmClient := &fakeLLMClient{}
		gen, _ := newTestGenerator(llmClient, store)

		result, err := gen.Generate(context.Background(), "github", "acme", "widgets", "", Options{
			Platform: domain.PlatformHostedPipeline,
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Provenance).To(Equal(domain.ProvenanceProvenTemplate))

		content, ok := result.Artifacts.Get("pipeline.yml")
		Expect(ok).To(BeTrue())
		Expect(content).To(ContainSubstring("learn"))
		Expect(llmClient.calls).To(Equal(0))
	})

	It("generates via the LLM and accepts a clean first response", func() {
		analysis := &domain.RepositoryDescriptor{Language: "go"}
		wantSet := templates.Default(analysis, domain.PlatformHostedPipeline, privateRegistryVar)
		llmClient := &fakeLLMClient{response: markerResponse(wantSet)}
		gen, reg := newTestGenerator(llmClient, store)

		result, err := gen.Generate(context.Background(), "github", "acme", "widgets", "", Options{
			Platform: domain.PlatformHostedPipeline,
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Provenance).To(Equal(domain.ProvenanceLLM("anthropic", "")))
		Expect(reg.calls).To(Equal(1))
		Expect(llmClient.calls).To(Equal(1))

		for _, errDiag := range result.Validation {
			Expect(errDiag.IsError()).To(BeFalse())
		}
	})

	It("falls back to the default template when the LLM response has no parseable files", func() {
		llmClient := &fakeLLMClient{response: llm.Response{Text: "I am unable to help with that."}}
		gen, _ := newTestGenerator(llmClient, store)

		result, err := gen.Generate(context.Background(), "github", "acme", "widgets", "", Options{
			Platform: domain.PlatformHostedPipeline,
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Provenance).To(Equal(domain.ProvenanceDefaultTemplate))
		Expect(result.Artifacts.Len()).To(BeNumerically(">", 0))
	})

	It("propagates an error when no host client is configured", func() {
		llmClient := &fakeLLMClient{}
		gen, _ := newTestGenerator(llmClient, store)

		_, err := gen.Generate(context.Background(), "unknown-host", "acme", "widgets", "", Options{
			Platform: domain.PlatformHostedPipeline,
		})
		Expect(err).To(HaveOccurred())
	})
})
