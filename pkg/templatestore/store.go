// Package templatestore implements the template store: a
// vector/document store abstraction holding reference templates,
// successful artifacts, and feedback entries, with name→handle
// resolution caching, success-ranked proven-template retrieval, and
// fenced-code-block document parse/serialize.
package templatestore

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/pipelineforge/pipelineforge/pkg/domain"
	"github.com/pipelineforge/pipelineforge/pkg/templatestore/vectorclient"
)

// Store resolves three collection kinds, each scoped per
// target platform, against a vectorclient.Client backend.
type Store struct {
	client vectorclient.Client

	mu      sync.Mutex
	handles map[string]string // collection name -> opaque handle

	upserts singleflight.Group
}

// New builds a Store over client.
func New(client vectorclient.Client) *Store {
	return &Store{
		client:  client,
		handles: make(map[string]string),
	}
}

func collectionName(kind domain.CollectionKind, platform domain.TargetPlatform) string {
	return fmt.Sprintf("%s:%s", kind, platform)
}

// handleFor resolves a collection name to its opaque handle, caching
// the mapping for the process lifetime.
func (s *Store) handleFor(ctx context.Context, kind domain.CollectionKind, platform domain.TargetPlatform) (string, error) {
	name := collectionName(kind, platform)

	s.mu.Lock()
	if handle, ok := s.handles[name]; ok {
		s.mu.Unlock()
		return handle, nil
	}
	s.mu.Unlock()

	handle, err := s.client.GetOrCreateCollection(ctx, name)
	if err != nil {
		return "", fmt.Errorf("templatestore: resolving collection %q: %w", name, err)
	}

	s.mu.Lock()
	s.handles[name] = handle
	s.mu.Unlock()
	return handle, nil
}

func toDocument(rec domain.TemplateRecord) vectorclient.Document {
	meta := map[string]string{
		"platform":     string(rec.Metadata.Platform),
		"language":     rec.Metadata.Language,
		"framework":    rec.Metadata.Framework,
		"content_hash": rec.Metadata.ContentHash,
	}
	for k, v := range rec.Metadata.Extra {
		meta[k] = v
	}
	return vectorclient.Document{
		ID:        rec.ID,
		Content:   rec.Document,
		Metadata:  meta,
		Embedding: pseudoEmbedding(rec.Document),
	}
}

func fromDocument(doc vectorclient.Document, kind domain.CollectionKind) domain.TemplateRecord {
	return domain.TemplateRecord{
		ID:       doc.ID,
		Document: doc.Content,
		Metadata: domain.TemplateMetadata{
			Collection:   kind,
			Platform:     domain.TargetPlatform(doc.Metadata["platform"]),
			Language:     doc.Metadata["language"],
			Framework:    doc.Metadata["framework"],
			ContentHash:  doc.Metadata["content_hash"],
			SuccessCount: 0,
			Extra:        doc.Metadata,
		},
	}
}

// ReferenceTemplates returns every reference-template record for
// platform matching language (and, if framework is non-empty,
// framework).
func (s *Store) ReferenceTemplates(ctx context.Context, platform domain.TargetPlatform, language, framework string) ([]domain.TemplateRecord, error) {
	return s.query(ctx, domain.CollectionReferenceTemplates, platform, language, framework)
}

// FeedbackEntries returns every feedback-entry record for platform
// matching language (and, if framework is non-empty, framework).
func (s *Store) FeedbackEntries(ctx context.Context, platform domain.TargetPlatform, language, framework string) ([]domain.TemplateRecord, error) {
	return s.query(ctx, domain.CollectionFeedbackEntries, platform, language, framework)
}

func (s *Store) query(ctx context.Context, kind domain.CollectionKind, platform domain.TargetPlatform, language, framework string) ([]domain.TemplateRecord, error) {
	handle, err := s.handleFor(ctx, kind, platform)
	if err != nil {
		return nil, err
	}

	where := vectorclient.Where{"language": language}
	if framework != "" {
		where["framework"] = framework
	}

	docs, err := s.client.Get(ctx, handle, where)
	if err != nil {
		return nil, fmt.Errorf("templatestore: querying %s: %w", kind, err)
	}

	out := make([]domain.TemplateRecord, len(docs))
	for i, doc := range docs {
		out[i] = fromDocument(doc, kind)
	}
	return out, nil
}

// BestProvenTemplate returns the highest-scoring successful-artifact
// record matching (language, framework), falling back to (language)
// alone when no (language, framework) match exists.
func (s *Store) BestProvenTemplate(ctx context.Context, platform domain.TargetPlatform, language, framework string) (domain.TemplateRecord, bool, error) {
	handle, err := s.handleFor(ctx, domain.CollectionSuccessfulArtifacts, platform)
	if err != nil {
		return domain.TemplateRecord{}, false, err
	}

	if framework != "" {
		docs, err := s.client.Get(ctx, handle, vectorclient.Where{"language": language, "framework": framework})
		if err != nil {
			return domain.TemplateRecord{}, false, err
		}
		if rec, ok := s.bestOf(docs); ok {
			return rec, true, nil
		}
	}

	docs, err := s.client.Get(ctx, handle, vectorclient.Where{"language": language})
	if err != nil {
		return domain.TemplateRecord{}, false, err
	}
	rec, ok := s.bestOf(docs)
	return rec, ok, nil
}

func (s *Store) bestOf(docs []vectorclient.Document) (domain.TemplateRecord, bool) {
	records := make([]domain.TemplateRecord, len(docs))
	for i, doc := range docs {
		rec := fromDocument(doc, domain.CollectionSuccessfulArtifacts)
		rec.Metadata.SuccessCount = successCountOf(doc)
		rec.Metadata.LastBuildDuration = lastBuildDurationOf(doc)
		records[i] = rec
	}
	return highestScoring(records)
}

// UpsertProvenArtifact records or increments a successful artifact set,
// keyed by content hash. Concurrent upserts of the same content hash
// funnel through a singleflight call so the increment stays atomic.
func (s *Store) UpsertProvenArtifact(ctx context.Context, rec domain.TemplateRecord) error {
	_, err, _ := s.upserts.Do(rec.Metadata.ContentHash, func() (interface{}, error) {
		return nil, s.upsertProvenArtifact(ctx, rec)
	})
	return err
}

func (s *Store) upsertProvenArtifact(ctx context.Context, rec domain.TemplateRecord) error {
	handle, err := s.handleFor(ctx, domain.CollectionSuccessfulArtifacts, rec.Metadata.Platform)
	if err != nil {
		return err
	}

	existing, err := s.client.Get(ctx, handle, vectorclient.Where{"content_hash": rec.Metadata.ContentHash})
	if err != nil {
		return fmt.Errorf("templatestore: looking up content hash %q: %w", rec.Metadata.ContentHash, err)
	}

	if len(existing) == 0 {
		doc := toDocument(rec)
		doc.Metadata["success_count"] = "1"
		if rec.Metadata.LastBuildDuration != nil {
			doc.Metadata["last_build_duration_seconds"] = fmt.Sprintf("%d", int64(rec.Metadata.LastBuildDuration.Seconds()))
		}
		if err := s.client.Add(ctx, handle, []vectorclient.Document{doc}); err != nil {
			return fmt.Errorf("templatestore: inserting proven artifact: %w", err)
		}
		return nil
	}

	doc := existing[0]
	doc.Metadata["success_count"] = fmt.Sprintf("%d", successCountOf(doc)+1)
	if rec.Metadata.LastBuildDuration != nil {
		doc.Metadata["last_build_duration_seconds"] = fmt.Sprintf("%d", int64(rec.Metadata.LastBuildDuration.Seconds()))
	}
	if err := s.client.Update(ctx, handle, doc); err != nil {
		return fmt.Errorf("templatestore: incrementing success count: %w", err)
	}
	return nil
}

// RecordFeedback stores a human-in-the-loop correction.
func (s *Store) RecordFeedback(ctx context.Context, rec domain.TemplateRecord) error {
	handle, err := s.handleFor(ctx, domain.CollectionFeedbackEntries, rec.Metadata.Platform)
	if err != nil {
		return err
	}
	if err := s.client.Add(ctx, handle, []vectorclient.Document{toDocument(rec)}); err != nil {
		return fmt.Errorf("templatestore: recording feedback: %w", err)
	}
	return nil
}
