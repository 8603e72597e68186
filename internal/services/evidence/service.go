// Package evidence owns the evidence lifecycle (submit, review, read-time
// expiry projection) and derives evidence pack summaries.
package evidence

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"verona/internal/domain"
	"verona/internal/locks"
	"verona/internal/ports"
	"verona/internal/registry"
)

type Service struct {
	evidence ports.EvidenceRepository
	taxonomy *registry.Taxonomy
	locks    *locks.Keyed
	now      func() time.Time
}

func New(repo ports.EvidenceRepository, taxonomy *registry.Taxonomy, keyed *locks.Keyed) *Service {
	return &Service{evidence: repo, taxonomy: taxonomy, locks: keyed, now: time.Now}
}

// Submit creates a pending evidence record. Only the opaque file reference
// and name/size metadata are stored; bytes stay with the storage
// collaborator.
func (s *Service) Submit(ctx context.Context, slug string, sub domain.EvidenceSubmission) (domain.Evidence, error) {
	et, err := s.taxonomy.Lookup(sub.Type)
	if err != nil {
		return domain.Evidence{}, fmt.Errorf("evidence.Submit: %w", err)
	}
	ev := domain.Evidence{
		ID:               uuid.NewString(),
		AssetID:          domain.AssetID(slug),
		Slug:             slug,
		Type:             et.Name,
		Category:         et.Category,
		FileRef:          sub.FileRef,
		FileName:         sub.FileName,
		FileSize:         sub.FileSize,
		DocumentNumber:   sub.DocumentNumber,
		IssuingAuthority: sub.IssuingAuthority,
		Status:           domain.EvidencePending,
		UploadedAt:       s.now().UTC(),
		ExpiresAt:        sub.ExpiresAt,
	}
	if err := s.evidence.InsertEvidence(ctx, ev); err != nil {
		return domain.Evidence{}, fmt.Errorf("evidence.Submit: persist: %w", err)
	}
	return ev, nil
}

// Review moves a pending record to verified or rejected. Rejected and
// expired records never come back; a fresh submission supersedes them.
func (s *Service) Review(ctx context.Context, evidenceID string, outcome domain.EvidenceStatus, reviewerID string) (domain.Evidence, error) {
	if outcome != domain.EvidenceVerified && outcome != domain.EvidenceRejected {
		return domain.Evidence{}, fmt.Errorf("evidence.Review: %w: outcome %q", domain.ErrInvalidTransition, outcome)
	}
	ev, err := s.evidence.GetEvidence(ctx, evidenceID)
	if err != nil {
		return domain.Evidence{}, fmt.Errorf("evidence.Review: %w", err)
	}

	unlock := s.locks.Lock(ev.AssetID)
	defer unlock()

	// Re-read under the entity lock so two reviewers cannot both transition
	// the same record.
	ev, err = s.evidence.GetEvidence(ctx, evidenceID)
	if err != nil {
		return domain.Evidence{}, fmt.Errorf("evidence.Review: %w", err)
	}
	if ev.Status != domain.EvidencePending {
		return domain.Evidence{}, fmt.Errorf("evidence.Review: %w: %s -> %s", domain.ErrInvalidTransition, ev.Status, outcome)
	}

	ev.Status = outcome
	ev.ReviewerID = reviewerID
	if outcome == domain.EvidenceVerified {
		t := s.now().UTC()
		ev.VerifiedAt = &t
	}
	if err := s.evidence.UpdateEvidence(ctx, ev); err != nil {
		return domain.Evidence{}, fmt.Errorf("evidence.Review: persist: %w", err)
	}
	return ev, nil
}

// Summarize derives the pack summary for an entity. Pure and uncached:
// recomputation is cheap and a cache would serve stale expiry projections.
func (s *Service) Summarize(ctx context.Context, slug string) (domain.EvidencePackSummary, error) {
	evs, err := s.evidence.ListEvidenceByAsset(ctx, domain.AssetID(slug))
	if err != nil {
		return domain.EvidencePackSummary{}, fmt.Errorf("evidence.Summarize: %w", err)
	}
	return BuildSummary(slug, evs, s.now()), nil
}
