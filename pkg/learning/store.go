// Package learning persists the two feedback signals the generator's
// proven-template lookup and repair loop feed off: which artifact sets
// actually built successfully, and which ones a human corrected by
// hand. Both write paths are append/upsert-only; reads are served
// elsewhere, via the template store's ranking over the same
// successful-artifacts data.
package learning

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	apperrors "github.com/pipelineforge/pipelineforge/internal/errors"
	"github.com/pipelineforge/pipelineforge/pkg/domain"
	"github.com/pipelineforge/pipelineforge/pkg/templatestore"
)

// Store records build outcomes and human feedback to Postgres.
type Store struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// New builds a Store over an already-migrated database handle.
func New(db *sqlx.DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, logger: logger}
}

// RecordSuccess upserts set's content under (platform, language,
// framework, content_hash): a first sighting inserts with
// success_count 1, a repeat increments it and refreshes the recorded
// build duration.
func (s *Store) RecordSuccess(ctx context.Context, platform domain.TargetPlatform, language, framework string, set *domain.ArtifactSet, buildDuration time.Duration) error {
	document := templatestore.Serialize(set)
	hash := set.ContentHash()

	const query = `
		INSERT INTO successful_artifacts (platform, language, framework, content_hash, document, success_count, last_build_duration_seconds)
		VALUES ($1, $2, $3, $4, $5, 1, $6)
		ON CONFLICT (platform, language, framework, content_hash) DO UPDATE SET
			success_count = successful_artifacts.success_count + 1,
			last_build_duration_seconds = EXCLUDED.last_build_duration_seconds,
			updated_at = now()`

	if _, err := s.db.ExecContext(ctx, query, string(platform), language, framework, hash, document, buildDuration.Seconds()); err != nil {
		return apperrors.NewDatabaseError("record successful artifact", err)
	}
	s.logger.Debug("learning: recorded successful artifact",
		zap.String("platform", string(platform)), zap.String("language", language), zap.String("content_hash", hash))
	return nil
}

// Feedback is one human-in-the-loop correction: before is what the
// system produced, after is what the human corrected it to.
type Feedback struct {
	ID          string
	Platform    domain.TargetPlatform
	Language    string
	Framework   string
	Before      *domain.ArtifactSet
	After       *domain.ArtifactSet
	ErrorClass  string
	Description string
}

// RecordFeedback stores a correction under a fresh timestamped id and
// returns it.
func (s *Store) RecordFeedback(ctx context.Context, fb Feedback) (string, error) {
	id := fmt.Sprintf("%d-%s", time.Now().UTC().UnixNano(), uuid.NewString()[:8])

	const query = `
		INSERT INTO artifact_feedback (id, platform, language, framework, before_document, after_document, error_class, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.db.ExecContext(ctx, query, id,
		string(fb.Platform), fb.Language, fb.Framework,
		templatestore.Serialize(fb.Before), templatestore.Serialize(fb.After),
		fb.ErrorClass, fb.Description)
	if err != nil {
		return "", apperrors.NewDatabaseError("record artifact feedback", err)
	}
	return id, nil
}
