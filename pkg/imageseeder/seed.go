package imageseeder

import (
	"context"

	"go.uber.org/zap"

	"github.com/pipelineforge/pipelineforge/pkg/domain"
	"github.com/pipelineforge/pipelineforge/pkg/metrics"
	"github.com/pipelineforge/pipelineforge/pkg/registry"
)

// gateway is the subset of *registry.Gateway the seeder depends on,
// narrowed to ease substitution in tests.
type gateway interface {
	Exists(ctx context.Context, ref domain.ImageReference) (registry.ExistsStatus, error)
	Seed(ctx context.Context, ref domain.ImageReference) error
}

// Summary is the outcome of one Ensure call.
type Summary struct {
	Seeded        []string
	AlreadyExists []string
	Failed        []string
	Skipped       []string
}

// Seeder runs the extract → exists? → seed orchestration after validation
// passes and before commit.
type Seeder struct {
	gw     gateway
	logger *zap.Logger
}

// New builds a Seeder backed by gw.
func New(gw *registry.Gateway, logger *zap.Logger) *Seeder {
	return &Seeder{gw: gw, logger: logger}
}

// Ensure extracts every image reference from set and makes sure each
// exists in the private registry, seeding any that don't. It is
// best-effort: per-image failures are recorded in the summary and never
// returned as an error, so generation is never blocked on seeding.
func (s *Seeder) Ensure(ctx context.Context, set *domain.ArtifactSet) Summary {
	var summary Summary

	for _, bare := range ExtractImages(set) {
		ref, err := domain.ParseImageReference(bare)
		if err != nil {
			s.logger.Warn("image seeder: unparseable reference, skipping", zap.String("raw", bare), zap.Error(err))
			summary.Skipped = append(summary.Skipped, bare)
			continue
		}

		if registry.ShouldSkip(ref) {
			summary.Skipped = append(summary.Skipped, bare)
			continue
		}

		status, err := s.gw.Exists(ctx, ref)
		if err != nil {
			s.logger.Warn("image seeder: existence check errored, attempting seed anyway", zap.String("image", bare), zap.Error(err))
		}
		if status == registry.ExistsPresent {
			summary.AlreadyExists = append(summary.AlreadyExists, bare)
			continue
		}

		if seedErr := s.gw.Seed(ctx, ref); seedErr != nil {
			metrics.RecordArtifactRejected("image_seed_failed")
			summary.Failed = append(summary.Failed, bare)
			continue
		}
		summary.Seeded = append(summary.Seeded, bare)
	}

	return summary
}
