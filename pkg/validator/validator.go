// Package validator implements generated-artifact validation:
// structural, required-sections, variable-consistency, and policy checks
// that always run, plus best-effort remote-lint and image-availability
// checks that degrade to a noted skip rather than a hard failure.
//
// Each check is independently testable and returns diagnostics instead
// of silently rewriting content, since rewriting is the fixer's job,
// not the validator's.
package validator

import (
	"context"

	"go.uber.org/zap"

	"github.com/pipelineforge/pipelineforge/pkg/domain"
	"github.com/pipelineforge/pipelineforge/pkg/registry"
	"github.com/pipelineforge/pipelineforge/pkg/validator/remotelint"
)

// Config tunes the policy and remote-lint checks; everything else is
// derived from the artifact set itself.
type Config struct {
	// PrivateRegistryVar is the variable name artifacts must reference
	// for the private registry (e.g. "BASE_REGISTRY").
	PrivateRegistryVar string
	// DisallowedPublicHosts is the closed set of public registry host
	// substrings that must never appear in a committed artifact.
	DisallowedPublicHosts []string
	// PrivateRegistryHTTPOnly enforces that any URL referencing the
	// private registry host uses HTTP, never HTTPS.
	PrivateRegistryHTTPOnly bool
	PrivateRegistryHost     string
}

// DefaultConfig carries the fixed public-registry substring list and the
// private registry's HTTP-only deployment policy.
func DefaultConfig() Config {
	return Config{
		PrivateRegistryVar:      "BASE_REGISTRY",
		DisallowedPublicHosts:   []string{"docker.io", "gcr.io", "quay.io", "ghcr.io", "registry.hub.docker.com"},
		PrivateRegistryHTTPOnly: true,
	}
}

// imageGateway is the subset of the registry gateway the image
// availability check depends on.
type imageGateway interface {
	Exists(ctx context.Context, ref domain.ImageReference) (registry.ExistsStatus, error)
}

// Validator runs every check against one artifact set.
type Validator struct {
	cfg       Config
	gateway   imageGateway
	lint      remotelint.Client
	logger    *zap.Logger
}

// New builds a Validator. gateway and lint may be nil: image-availability
// and remote-lint are then skipped with a noted diagnostic rather than
// blocking validation.
func New(cfg Config, gateway imageGateway, lint remotelint.Client, logger *zap.Logger) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{cfg: cfg, gateway: gateway, lint: lint, logger: logger}
}

// Validate runs all six checks and returns their diagnostics in a stable
// order: structural, required-sections, variables, policy, remote-lint,
// image-availability.
func (v *Validator) Validate(ctx context.Context, set *domain.ArtifactSet, platform domain.TargetPlatform) []domain.ValidationDiagnostic {
	var diags []domain.ValidationDiagnostic

	structuralDiags := v.checkStructural(set, platform)
	diags = append(diags, structuralDiags...)
	for _, d := range structuralDiags {
		if d.IsError() {
			// A structural parse failure makes every downstream check
			// meaningless; treat it as fatal.
			return diags
		}
	}

	diags = append(diags, v.checkRequiredSections(set, platform)...)
	diags = append(diags, v.checkVariableConsistency(set, platform)...)
	diags = append(diags, v.checkPolicy(set)...)
	diags = append(diags, v.checkRemoteLint(ctx, set, platform)...)
	diags = append(diags, v.checkImageAvailability(ctx, set)...)

	return diags
}

func errDiag(check, message string) domain.ValidationDiagnostic {
	return domain.ValidationDiagnostic{CheckName: check, Kind: domain.DiagnosticError, Message: message}
}

func warnDiag(check, message string) domain.ValidationDiagnostic {
	return domain.ValidationDiagnostic{CheckName: check, Kind: domain.DiagnosticWarning, Message: message}
}
