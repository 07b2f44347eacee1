package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	apperrors "github.com/pipelineforge/pipelineforge/internal/errors"
	"github.com/pipelineforge/pipelineforge/pkg/domain"
	"github.com/pipelineforge/pipelineforge/pkg/generator"
	"github.com/pipelineforge/pipelineforge/pkg/imageseeder"
	"github.com/pipelineforge/pipelineforge/pkg/progress"
)

type fakeOrchestrator struct {
	result generator.Result
	err    error
}

func (f *fakeOrchestrator) Generate(context.Context, string, string, string, string, generator.Options) (generator.Result, error) {
	return f.result, f.err
}

func newTestSet() *domain.ArtifactSet {
	set := domain.NewArtifactSet(&domain.RepositoryDescriptor{Language: "go"}, domain.PlatformHostedPipeline)
	set.Set("pipeline.yml", "stages:\n  - build\n")
	return set
}

var _ = Describe("Server", func() {
	Describe("health and readiness", func() {
		It("reports healthy on /healthz regardless of orchestrator wiring", func() {
			srv := New(Config{}, nil, nil, zap.NewNop())
			testServer := httptest.NewServer(srv.Handler())
			defer testServer.Close()

			resp, err := http.Get(testServer.URL + "/healthz")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})

		It("reports unavailable on /readyz when no orchestrator is wired", func() {
			srv := New(Config{}, nil, nil, zap.NewNop())
			testServer := httptest.NewServer(srv.Handler())
			defer testServer.Close()

			resp, err := http.Get(testServer.URL + "/readyz")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusServiceUnavailable))

			var problem Problem
			Expect(json.NewDecoder(resp.Body).Decode(&problem)).To(Succeed())
			Expect(problem.Status).To(Equal(http.StatusServiceUnavailable))
			Expect(problem.Type).To(HavePrefix("https://pipelineforge.dev/errors/"))
		})
	})

	Describe("CORS", func() {
		It("includes CORS headers on every endpoint", func() {
			srv := New(Config{}, &fakeOrchestrator{}, progress.New(0, 0), zap.NewNop())
			testServer := httptest.NewServer(srv.Handler())
			defer testServer.Close()

			req, err := http.NewRequest(http.MethodGet, testServer.URL+"/healthz", nil)
			Expect(err).NotTo(HaveOccurred())
			req.Header.Set("Origin", "https://dashboard.pipelineforge.dev")

			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.Header.Get("Access-Control-Allow-Origin")).NotTo(BeEmpty())
		})
	})

	Describe("POST /v1/generate", func() {
		It("returns the orchestrator result as JSON", func() {
			fake := &fakeOrchestrator{result: generator.Result{
				Artifacts:  newTestSet(),
				Provenance: "llm:local/test-model",
				Seeded:     imageseeder.Summary{Seeded: []string{"golang:1.22"}},
			}}
			srv := New(Config{}, fake, progress.New(0, 0), zap.NewNop())
			testServer := httptest.NewServer(srv.Handler())
			defer testServer.Close()

			body, _ := json.Marshal(map[string]any{"host": "github", "owner": "acme", "repo": "widgets", "ref": "main"})
			resp, err := http.Post(testServer.URL+"/v1/generate", "application/json", bytes.NewReader(body))
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var out generateResponse
			Expect(json.NewDecoder(resp.Body).Decode(&out)).To(Succeed())
			Expect(out.Provenance).To(Equal("llm:local/test-model"))
			Expect(out.Artifacts).To(HaveKeyWithValue("pipeline.yml", "stages:\n  - build\n"))
			Expect(out.Seeded.Seeded).To(ConsistOf("golang:1.22"))
		})

		It("rejects a request missing required fields", func() {
			srv := New(Config{}, &fakeOrchestrator{}, progress.New(0, 0), zap.NewNop())
			testServer := httptest.NewServer(srv.Handler())
			defer testServer.Close()

			body, _ := json.Marshal(map[string]any{"host": "github"})
			resp, err := http.Post(testServer.URL+"/v1/generate", "application/json", bytes.NewReader(body))
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("maps an orchestrator error through its status code", func() {
			fake := &fakeOrchestrator{err: apperrors.NewTimeoutError("llm generation")}
			srv := New(Config{}, fake, progress.New(0, 0), zap.NewNop())
			testServer := httptest.NewServer(srv.Handler())
			defer testServer.Close()

			body, _ := json.Marshal(map[string]any{"host": "github", "owner": "acme", "repo": "widgets", "ref": "main"})
			resp, err := http.Post(testServer.URL+"/v1/generate", "application/json", bytes.NewReader(body))
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusRequestTimeout))
		})

		It("responds 503 when no orchestrator is wired", func() {
			srv := New(Config{}, nil, progress.New(0, 0), zap.NewNop())
			testServer := httptest.NewServer(srv.Handler())
			defer testServer.Close()

			body, _ := json.Marshal(map[string]any{"host": "github", "owner": "acme", "repo": "widgets", "ref": "main"})
			resp, err := http.Post(testServer.URL+"/v1/generate", "application/json", bytes.NewReader(body))
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusServiceUnavailable))
		})
	})

	Describe("GET /v1/progress/{host}/{owner}/{repo}/*", func() {
		It("returns the current record for a known key", func() {
			store := progress.New(0, 0)
			key := progress.Key{ProjectID: "github/acme/widgets", Branch: "pipelineforge/20260101-000000-abcd1234"}
			store.Create(key, 3)
			store.Append(key, domain.ProgressEvent{Stage: domain.StageFixing, Message: "diagnosing", Attempt: 1})

			srv := New(Config{}, &fakeOrchestrator{}, store, zap.NewNop())
			testServer := httptest.NewServer(srv.Handler())
			defer testServer.Close()

			url := fmt.Sprintf("%s/v1/progress/github/acme/widgets/%s", testServer.URL, key.Branch)
			resp, err := http.Get(url)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var out progressResponse
			Expect(json.NewDecoder(resp.Body).Decode(&out)).To(Succeed())
			Expect(out.Stage).To(Equal(domain.StageFixing))
			Expect(out.Attempt).To(Equal(1))
		})

		It("returns 404 for an unknown key", func() {
			srv := New(Config{}, &fakeOrchestrator{}, progress.New(0, 0), zap.NewNop())
			testServer := httptest.NewServer(srv.Handler())
			defer testServer.Close()

			resp, err := http.Get(testServer.URL + "/v1/progress/github/acme/widgets/no-such-branch")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})
})
