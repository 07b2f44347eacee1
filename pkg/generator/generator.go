// Package generator implements the generation orchestrator: analyze a
// repository, serve a proven template when one has earned its way into
// the successful-artifacts collection, otherwise prime an LLM with a
// reference template and recent feedback, validate the result and drive
// the fixer loop on failure, seed any missing container images, and
// return the artifacts tagged with how they were produced.
package generator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pipelineforge/pipelineforge/pkg/analyzer"
	"github.com/pipelineforge/pipelineforge/pkg/domain"
	"github.com/pipelineforge/pipelineforge/pkg/fixer"
	"github.com/pipelineforge/pipelineforge/pkg/fixer/postprocess"
	"github.com/pipelineforge/pipelineforge/pkg/imageseeder"
	"github.com/pipelineforge/pipelineforge/pkg/llm"
	"github.com/pipelineforge/pipelineforge/pkg/metrics"
	"github.com/pipelineforge/pipelineforge/pkg/templates"
	"github.com/pipelineforge/pipelineforge/pkg/templatestore"
	"github.com/pipelineforge/pipelineforge/pkg/validator"
)

// Config tunes the orchestrator and the fixer loop it drives.
type Config struct {
	SystemPromptPath   string
	PrivateRegistryVar string
	MaxFixAttempts     int
	StrictFixPolicy    bool
	PostprocessRules   []postprocess.Rule
}

// llmRegistry is the subset of *llm.Registry the generator depends on.
type llmRegistry interface {
	Instance(id string) (llm.Client, error)
	GetActive() string
}

// Generator wires together repository analysis, the template store, an
// LLM provider, validation, the repair loop, and image seeding into one
// generation call.
type Generator struct {
	analyzer  *analyzer.Analyzer
	store     *templatestore.Store
	registry  llmRegistry
	validator *validator.Validator
	seeder    *imageseeder.Seeder
	cfg       Config
	logger    *zap.Logger

	systemPrompt string
}

// New builds a Generator. The system-prompt preamble is loaded once, at
// construction time; a missing or unreadable file falls back to an empty
// preamble rather than failing startup, since the reference template and
// feedback sections still carry useful priming context without it.
func New(a *analyzer.Analyzer, store *templatestore.Store, registry llmRegistry, v *validator.Validator, seeder *imageseeder.Seeder, cfg Config, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	preamble, err := llm.LoadSystemPrompt(cfg.SystemPromptPath)
	if err != nil {
		logger.Warn("generator: system prompt unavailable, continuing without it", zap.Error(err))
	}
	return &Generator{
		analyzer:     a,
		store:        store,
		registry:     registry,
		validator:    v,
		seeder:       seeder,
		cfg:          cfg,
		logger:       logger,
		systemPrompt: preamble,
	}
}

// Options tunes one generation request.
type Options struct {
	Platform domain.TargetPlatform
	// TemplateOnly skips proven-template lookup and LLM generation
	// entirely, returning the static default template.
	TemplateOnly bool
	// Provider overrides the registry's active LLM provider for this
	// request; empty uses the active one.
	Provider string
	Model    string
}

// Result is the outcome of one Generate call.
type Result struct {
	Artifacts  *domain.ArtifactSet
	Provenance string
	Validation []domain.ValidationDiagnostic
	FixHistory []domain.FixAttempt
	Seeded     imageseeder.Summary
}

// Generate runs the full orchestration for one repository reference:
// analyze, proven-template lookup, template-only short-circuit, LLM
// generation, validate-and-fix, seed, return. Each step early-exits on
// success so a proven template or a clean default never pays for LLM
// generation it doesn't need.
func (g *Generator) Generate(ctx context.Context, host, owner, repo, ref string, opts Options) (Result, error) {
	metrics.RecordGenerationRequest()

	analysis, err := g.analyzer.Analyze(ctx, host, owner, repo, ref)
	if err != nil {
		return Result{}, fmt.Errorf("generator: analyzing %s/%s: %w", owner, repo, err)
	}

	if !opts.TemplateOnly {
		if result, ok, err := g.tryProvenTemplate(ctx, analysis, opts.Platform); err != nil {
			g.logger.Warn("generator: proven template lookup failed, continuing", zap.Error(err))
		} else if ok {
			return result, nil
		}
	}

	if opts.TemplateOnly {
		set := templates.Default(analysis, opts.Platform, g.cfg.PrivateRegistryVar)
		return Result{Artifacts: set, Provenance: domain.ProvenanceDefaultTemplate}, nil
	}

	set, provenance, history, diags, err := g.generateWithLLM(ctx, analysis, opts)
	if err != nil {
		return Result{}, err
	}

	summary := g.seeder.Ensure(ctx, set)
	return Result{
		Artifacts:  set,
		Provenance: provenance,
		Validation: diags,
		FixHistory: history,
		Seeded:     summary,
	}, nil
}

// tryProvenTemplate serves a previously-successful artifact set for
// (platform, language, framework), after injecting the standard
// reinforcement hooks and seeding any images it references.
func (g *Generator) tryProvenTemplate(ctx context.Context, analysis *domain.RepositoryDescriptor, platform domain.TargetPlatform) (Result, bool, error) {
	rec, ok, err := g.store.BestProvenTemplate(ctx, platform, analysis.Language, analysis.Framework)
	if err != nil {
		return Result{}, false, err
	}
	if !ok {
		return Result{}, false, nil
	}

	set := templatestore.Parse(rec.Document, analysis, platform)
	injectReinforcementHooks(set, platform)

	summary := g.seeder.Ensure(ctx, set)
	return Result{
		Artifacts:  set,
		Provenance: domain.ProvenanceProvenTemplate,
		Seeded:     summary,
	}, true, nil
}

// generateWithLLM primes an LLM with the repository analysis, a
// reference template, and recent feedback, parses its response, and
// drives the fixer loop to convergence. A response that yields no
// parseable files, or an LLM call that fails outright, falls back to the
// default template so a request always returns something committable.
func (g *Generator) generateWithLLM(ctx context.Context, analysis *domain.RepositoryDescriptor, opts Options) (*domain.ArtifactSet, string, []domain.FixAttempt, []domain.ValidationDiagnostic, error) {
	client, err := g.registry.Instance(opts.Provider)
	if err != nil {
		return nil, "", nil, nil, fmt.Errorf("generator: acquiring LLM client: %w", err)
	}
	defer client.Close()

	provider := opts.Provider
	if provider == "" {
		provider = g.registry.GetActive()
	}
	model := opts.Model

	set := g.generateArtifacts(ctx, client, model, analysis, opts.Platform)
	provenance := domain.ProvenanceLLM(provider, model)
	if set == nil {
		g.logger.Warn("generator: LLM response produced no usable artifacts, falling back to default template")
		set = templates.Default(analysis, opts.Platform, g.cfg.PrivateRegistryVar)
		provenance = domain.ProvenanceDefaultTemplate
	}

	fix := fixer.New(g.validator, client, model, g.cfg.MaxFixAttempts, g.cfg.StrictFixPolicy, g.cfg.PostprocessRules, g.logger)
	start := time.Now()
	result, err := fix.Fix(ctx, set, opts.Platform, nil)
	metrics.RecordLLMGeneration(time.Since(start))
	if err != nil {
		return nil, "", nil, nil, fmt.Errorf("generator: fix loop: %w", err)
	}

	return result.Set, provenance, result.History, result.LastDiag, nil
}

// generateArtifacts fetches a reference template and feedback, primes
// the LLM, and parses its response. It returns nil when the response
// produced no usable file content, leaving the default-template
// fallback to the caller.
func (g *Generator) generateArtifacts(ctx context.Context, client llm.Client, model string, analysis *domain.RepositoryDescriptor, platform domain.TargetPlatform) *domain.ArtifactSet {
	reference := g.bestReference(ctx, platform, analysis)
	feedback := g.recentFeedback(ctx, platform, analysis)

	system, prompt := llm.BuildGeneratePrompt(g.systemPrompt, describeAnalysis(analysis), reference, feedback)

	resp, err := client.Generate(ctx, llm.Request{Model: model, Prompt: prompt, System: system})
	if err != nil {
		g.logger.Warn("generator: LLM generation call failed", zap.Error(err))
		return nil
	}

	target := templates.Default(analysis, platform, g.cfg.PrivateRegistryVar)
	files, order, _ := fixer.ParseArtifacts(resp.Text, target.Names())
	if len(files) == 0 {
		return nil
	}

	set := domain.NewArtifactSet(analysis, platform)
	for _, name := range order {
		set.Set(name, files[name])
	}
	return set
}

// bestReference returns a reference template's document, or an empty
// string when the template store has none for (platform, language).
func (g *Generator) bestReference(ctx context.Context, platform domain.TargetPlatform, analysis *domain.RepositoryDescriptor) string {
	records, err := g.store.ReferenceTemplates(ctx, platform, analysis.Language, analysis.Framework)
	if err != nil || len(records) == 0 {
		return ""
	}
	return records[0].Document
}

// recentFeedback concatenates every feedback entry matching (platform,
// language), newest first, for inclusion in the generation prompt.
func (g *Generator) recentFeedback(ctx context.Context, platform domain.TargetPlatform, analysis *domain.RepositoryDescriptor) string {
	records, err := g.store.FeedbackEntries(ctx, platform, analysis.Language, analysis.Framework)
	if err != nil || len(records) == 0 {
		return ""
	}
	var out string
	for _, rec := range records {
		out += rec.Document + "\n"
	}
	return out
}

// describeAnalysis renders a repository descriptor as the compact text
// block the generation prompt embeds.
func describeAnalysis(a *domain.RepositoryDescriptor) string {
	return fmt.Sprintf("repository: %s/%s\nlanguage: %s\nframework: %s\npackage manager: %s",
		a.Owner, a.Repo, a.Language, a.Framework, a.PackageManager)
}
