package validator

import (
	"context"

	"go.uber.org/zap"

	"github.com/pipelineforge/pipelineforge/pkg/domain"
	"github.com/pipelineforge/pipelineforge/pkg/imageseeder"
	"github.com/pipelineforge/pipelineforge/pkg/registry"
)

// checkImageAvailability checks every extracted image reference against
// the registry gateway. These are always warnings, not errors: a
// transient registry outage must never block generation. If no
// gateway was configured, a single warning notes the check was skipped.
func (v *Validator) checkImageAvailability(ctx context.Context, set *domain.ArtifactSet) []domain.ValidationDiagnostic {
	if v.gateway == nil {
		v.logger.Debug("image availability check skipped, no registry gateway configured")
		return []domain.ValidationDiagnostic{warnDiag("image_availability", "skipped: no registry gateway configured")}
	}

	var diags []domain.ValidationDiagnostic
	for _, bare := range imageseeder.ExtractImages(set) {
		ref, err := domain.ParseImageReference(bare)
		if err != nil {
			diags = append(diags, warnDiag("image_availability", "could not parse image reference "+bare+": "+err.Error()))
			continue
		}

		status, err := v.gateway.Exists(ctx, ref)
		switch {
		case err != nil:
			v.logger.Warn("image existence check failed", zap.String("image", bare), zap.Error(err))
			diags = append(diags, warnDiag("image_availability", "existence check for "+bare+" failed: "+err.Error()))
		case status == registry.ExistsAbsent:
			diags = append(diags, warnDiag("image_availability", "image "+bare+" not found in the private registry"))
		case status == registry.ExistsUnknown:
			diags = append(diags, warnDiag("image_availability", "existence of image "+bare+" could not be determined"))
		}
	}
	return diags
}
