package validator

import (
	"context"

	"go.uber.org/zap"

	"github.com/pipelineforge/pipelineforge/pkg/domain"
)

// remoteLintableArtifact maps a target platform to the artifact its
// remote lint endpoint (if any) accepts.
var remoteLintableArtifact = map[domain.TargetPlatform]string{
	domain.PlatformHostedPipeline: "pipeline.yml",
	domain.PlatformBuildServer:    "Jenkinsfile",
	domain.PlatformRunnerService:  "pipeline.yml",
}

// checkRemoteLint submits the platform's primary pipeline artifact to the
// configured lint endpoint, if any.
func (v *Validator) checkRemoteLint(ctx context.Context, set *domain.ArtifactSet, platform domain.TargetPlatform) []domain.ValidationDiagnostic {
	if v.lint == nil {
		return []domain.ValidationDiagnostic{warnDiag("remote_lint", "skipped: no remote lint endpoint configured")}
	}

	filename, ok := remoteLintableArtifact[platform]
	if !ok {
		return nil
	}
	content, ok := set.Get(filename)
	if !ok {
		return nil
	}

	results, err := v.lint.Lint(ctx, string(platform), filename, content)
	if err != nil {
		v.logger.Warn("remote lint endpoint unreachable", zap.String("platform", string(platform)), zap.Error(err))
		return []domain.ValidationDiagnostic{warnDiag("remote_lint", "remote lint unreachable: "+err.Error())}
	}

	var diags []domain.ValidationDiagnostic
	for _, d := range results {
		if d.Warning {
			diags = append(diags, warnDiag("remote_lint", d.Message))
		} else {
			diags = append(diags, errDiag("remote_lint", d.Message))
		}
	}
	return diags
}
