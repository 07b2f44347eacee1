package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apperrors "github.com/pipelineforge/pipelineforge/internal/errors"
	"github.com/pipelineforge/pipelineforge/pkg/domain"
	"github.com/pipelineforge/pipelineforge/pkg/generator"
	"github.com/pipelineforge/pipelineforge/pkg/progress"
)

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy"}`))
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.orchestrator == nil {
		writeProblemStatus(w, r, http.StatusServiceUnavailable, "orchestrator not configured")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ready"}`))
}

// generateRequest is the body of POST /v1/generate.
type generateRequest struct {
	Host         string `json:"host"`
	Owner        string `json:"owner"`
	Repo         string `json:"repo"`
	Ref          string `json:"ref"`
	Platform     string `json:"platform"`
	TemplateOnly bool   `json:"template_only"`
	Provider     string `json:"provider"`
	Model        string `json:"model"`
}

// generateResponse is the body of a successful POST /v1/generate.
type generateResponse struct {
	Artifacts  map[string]string              `json:"artifacts"`
	Provenance string                         `json:"provenance"`
	Validation []domain.ValidationDiagnostic  `json:"validation,omitempty"`
	FixHistory []domain.FixAttempt            `json:"fix_history,omitempty"`
	Seeded     generateResponseSeedingSummary `json:"seeded"`
}

type generateResponseSeedingSummary struct {
	Seeded        []string `json:"seeded"`
	AlreadyExists []string `json:"already_exists"`
	Failed        []string `json:"failed"`
	Skipped       []string `json:"skipped"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if s.orchestrator == nil {
		writeProblemStatus(w, r, http.StatusServiceUnavailable, "orchestrator not configured")
		return
	}

	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, r, apperrors.NewValidationError("request body is not valid JSON"))
		return
	}
	if req.Host == "" || req.Owner == "" || req.Repo == "" {
		writeProblem(w, r, apperrors.NewValidationError("host, owner, and repo are required"))
		return
	}
	if req.Ref == "" {
		req.Ref = "main"
	}
	platform, ok := platformFromString(req.Platform)
	if !ok {
		writeProblem(w, r, apperrors.NewValidationError("unrecognized platform: "+req.Platform))
		return
	}

	result, err := s.orchestrator.Generate(r.Context(), req.Host, req.Owner, req.Repo, req.Ref, generator.Options{
		Platform:     platform,
		TemplateOnly: req.TemplateOnly,
		Provider:     req.Provider,
		Model:        req.Model,
	})
	if err != nil {
		s.logger.Warn("server: generate failed", zap.Any("fields", apperrors.LogFields(err)))
		writeProblem(w, r, err)
		return
	}

	resp := generateResponse{
		Artifacts:  artifactsAsMap(result.Artifacts),
		Provenance: result.Provenance,
		Validation: result.Validation,
		FixHistory: result.FixHistory,
		Seeded: generateResponseSeedingSummary{
			Seeded:        result.Seeded.Seeded,
			AlreadyExists: result.Seeded.AlreadyExists,
			Failed:        result.Seeded.Failed,
			Skipped:       result.Seeded.Skipped,
		},
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

func artifactsAsMap(set *domain.ArtifactSet) map[string]string {
	if set == nil {
		return nil
	}
	out := make(map[string]string, set.Len())
	for _, name := range set.Names() {
		content, _ := set.Get(name)
		out[name] = content
	}
	return out
}

// progressResponse is the body of a successful GET /v1/progress/....
type progressResponse struct {
	Stage       domain.ProgressStage   `json:"stage"`
	Message     string                 `json:"message"`
	Attempt     int                    `json:"attempt"`
	MaxAttempts int                    `json:"max_attempts"`
	Completed   bool                   `json:"completed"`
	Events      []domain.ProgressEvent `json:"events"`
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	if s.progress == nil {
		writeProblemStatus(w, r, http.StatusServiceUnavailable, "progress store not configured")
		return
	}

	host := chi.URLParam(r, "host")
	owner := chi.URLParam(r, "owner")
	repo := chi.URLParam(r, "repo")
	branch := chi.URLParam(r, "*")
	if host == "" || owner == "" || repo == "" || branch == "" {
		writeProblem(w, r, apperrors.NewValidationError("host, owner, repo, and branch are required"))
		return
	}

	key := progress.Key{ProjectID: host + "/" + owner + "/" + repo, Branch: branch}
	rec, ok := s.progress.Get(key)
	if !ok {
		writeProblem(w, r, apperrors.NewNotFoundError("progress record"))
		return
	}

	resp := progressResponse{
		Stage:       rec.Stage,
		Message:     rec.Message,
		Attempt:     rec.Attempt,
		MaxAttempts: rec.MaxAttempts,
		Completed:   rec.Completed,
		Events:      rec.Events,
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}
