// Package fixer implements the iterative repair loop: given a failing
// artifact set and the validator diagnostics it failed on, it asks an
// LLM provider for a revised set of files, applies whichever of those
// parse cleanly, and revalidates, bounded by a fixed number of attempts.
package fixer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pipelineforge/pipelineforge/pkg/domain"
	"github.com/pipelineforge/pipelineforge/pkg/fixer/postprocess"
	"github.com/pipelineforge/pipelineforge/pkg/llm"
	"github.com/pipelineforge/pipelineforge/pkg/metrics"
)

// Status is the terminal outcome of a Fix call.
type Status string

const (
	StatusFixed     Status = "fixed"
	StatusExhausted Status = "exhausted"
)

// validatorClient is the subset of *validator.Validator the fixer depends on.
type validatorClient interface {
	Validate(ctx context.Context, set *domain.ArtifactSet, platform domain.TargetPlatform) []domain.ValidationDiagnostic
}

// Fixer drives the repair loop for one artifact set.
type Fixer struct {
	validator   validatorClient
	client      llm.Client
	model       string
	maxAttempts int
	strict      bool
	rules       []postprocess.Rule
	logger      *zap.Logger
}

// New builds a Fixer. maxAttempts must be >= 1. strict, when true, treats
// any diagnostic still present after the last attempt (including mere
// warnings) as exhaustion instead of accepting a warnings-only result.
func New(v validatorClient, client llm.Client, model string, maxAttempts int, strict bool, rules []postprocess.Rule, logger *zap.Logger) *Fixer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Fixer{validator: v, client: client, model: model, maxAttempts: maxAttempts, strict: strict, rules: rules, logger: logger}
}

// Result is the outcome of a Fix call.
type Result struct {
	Status   Status
	Set      *domain.ArtifactSet
	History  []domain.FixAttempt
	LastDiag []domain.ValidationDiagnostic
}

// Fix runs the iterative repair loop against platform. runtimeLog, when
// non-empty, is a runtime build/job log excerpt folded into the repair
// prompt for a runtime-failure (as opposed to validation-failure) fix.
func (f *Fixer) Fix(ctx context.Context, set *domain.ArtifactSet, platform domain.TargetPlatform, runtimeLog []string) (Result, error) {
	current := set.Clone()
	var history []domain.FixAttempt

	for attempt := 1; attempt <= f.maxAttempts; attempt++ {
		diags := f.validator.Validate(ctx, current, platform)
		if ok(diags, f.strict) {
			return Result{Status: StatusFixed, Set: current, History: history, LastDiag: diags}, nil
		}

		record := domain.FixAttempt{AttemptIndex: attempt}
		for _, d := range diags {
			if d.IsError() {
				record.Errors = append(record.Errors, d)
			} else {
				record.Warnings = append(record.Warnings, d)
			}
		}

		if attempt == f.maxAttempts {
			history = append(history, record)
			return Result{Status: StatusExhausted, Set: current, History: history, LastDiag: diags}, nil
		}

		fixType := primaryErrorType(record.Errors)
		start := time.Now()
		candidate, applied, err := f.repair(ctx, current, diags, attempt, runtimeLog)
		metrics.RecordFixAttempt(fixType, time.Since(start))
		record.Applied = applied
		history = append(history, record)
		if err != nil {
			metrics.RecordFixAttemptError(fixType, "llm_call_failed")
			continue
		}
		if applied {
			current = candidate
		}
	}

	// Unreachable: New enforces maxAttempts >= 1, so the loop above always
	// returns on its attempt == f.maxAttempts branch.
	panic("unreachable")
}

// primaryErrorType classifies a fix attempt by its first error
// diagnostic, or "unknown" when there were none to classify.
func primaryErrorType(errors []domain.ValidationDiagnostic) string {
	if len(errors) == 0 {
		return "unknown"
	}
	return identifyErrorType(errors[0].Message)
}

// ok reports whether diags permits acceptance: no errors ever, and (in
// strict mode) no warnings either.
func ok(diags []domain.ValidationDiagnostic, strict bool) bool {
	for _, d := range diags {
		if d.IsError() {
			return false
		}
		if strict {
			return false
		}
	}
	return true
}

// repair asks the LLM for a revision, parses its response, applies
// post-processing rules to every changed file, and returns a candidate
// artifact set. applied is false (and candidate equal to current) when
// the response produced no usable file content.
func (f *Fixer) repair(ctx context.Context, current *domain.ArtifactSet, diags []domain.ValidationDiagnostic, attempt int, runtimeLog []string) (*domain.ArtifactSet, bool, error) {
	return f.repairWithPrompt(ctx, current, buildFixPrompt(current, diags, attempt, runtimeLog))
}

// repairWithPrompt is repair's shared mechanics (call the LLM, parse its
// response, apply post-processing rules) factored out so a differently
// framed prompt can drive the same apply logic.
func (f *Fixer) repairWithPrompt(ctx context.Context, current *domain.ArtifactSet, prompt string) (*domain.ArtifactSet, bool, error) {
	resp, err := f.client.Generate(ctx, llm.Request{Model: f.model, Prompt: prompt})
	if err != nil {
		return current, false, fmt.Errorf("fixer: generate: %w", err)
	}

	parsed := parseFixResponse(resp.Text, current.Names())
	if len(parsed.Files) == 0 {
		return current, false, nil
	}

	candidate := current.Clone()
	for name, content := range parsed.Files {
		content = postprocess.Apply(f.rules, content)
		candidate.Set(name, content)
	}
	return candidate, true, nil
}

// FixRuntimeFailure runs one single-pass repair against a build that
// failed after its artifacts already passed static validation: there is
// no validation diagnostic to react to, only a runtime job log, so this
// skips Fix's validate-first loop entirely and goes straight to the LLM
// with the runtime-failure prompt variant. The result is revalidated
// once, for the caller's diagnostics, but never triggers a second
// repair attempt here; Fix is what iterates.
func (f *Fixer) FixRuntimeFailure(ctx context.Context, set *domain.ArtifactSet, platform domain.TargetPlatform, jobName string, log []string) (Result, error) {
	prompt := buildRuntimeFixPrompt(set, jobName, log)
	candidate, applied, err := f.repairWithPrompt(ctx, set, prompt)
	if err != nil {
		return Result{}, fmt.Errorf("fixer: runtime-failure repair: %w", err)
	}

	record := domain.FixAttempt{AttemptIndex: 1, Applied: applied}
	history := []domain.FixAttempt{record}

	if !applied {
		return Result{Status: StatusExhausted, Set: set, History: history}, nil
	}

	diags := f.validator.Validate(ctx, candidate, platform)
	status := StatusFixed
	if !ok(diags, f.strict) {
		status = StatusExhausted
	}
	return Result{Status: status, Set: candidate, History: history, LastDiag: diags}, nil
}
