// Package verification resolves an entity's verification tier from its
// checked evidence and owns dispute intake. Every resolution materializes a
// fresh immutable attestation; nothing is edited in place.
package verification

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"verona/internal/domain"
	"verona/internal/locks"
	"verona/internal/ports"
	"verona/internal/services/evidence"
)

// attestationValidity is the window a resolved attestation remains valid
// for before re-verification is expected.
const attestationValidity = 365 * 24 * time.Hour

type Service struct {
	evidence ports.EvidenceRepository
	atts     ports.AttestationRepository
	disputes ports.DisputeRepository
	recorder ports.Recorder
	locks    *locks.Keyed
	now      func() time.Time
}

func New(evRepo ports.EvidenceRepository, atts ports.AttestationRepository, disputes ports.DisputeRepository, recorder ports.Recorder, keyed *locks.Keyed) *Service {
	return &Service{evidence: evRepo, atts: atts, disputes: disputes, recorder: recorder, locks: keyed, now: time.Now}
}

// Resolve evaluates all checks against the entity's projected evidence and
// persists the resulting attestation. An entity with no evidence resolves
// to tier zero; that is a representable state, not an error. A disputed
// entity is clamped to at most tier one until the dispute is cleared.
func (s *Service) Resolve(ctx context.Context, slug string) (domain.Attestation, error) {
	assetID := domain.AssetID(slug)
	unlock := s.locks.Lock(assetID)
	defer unlock()

	evs, err := s.evidence.ListEvidenceByAsset(ctx, assetID)
	if err != nil {
		return domain.Attestation{}, fmt.Errorf("verification.Resolve: list evidence: %w", err)
	}
	now := s.now().UTC()
	view := packView{evs: evs, summary: evidence.BuildSummary(slug, evs, now), now: now}
	results, tier := runChecks(view)

	_, disputed, err := s.disputes.GetDispute(ctx, assetID)
	if err != nil {
		return domain.Attestation{}, fmt.Errorf("verification.Resolve: dispute flag: %w", err)
	}
	if disputed && tier > domain.VerificationTier1 {
		tier = domain.VerificationTier1
	}

	att := domain.Attestation{
		ID:           uuid.NewString(),
		AssetID:      assetID,
		Slug:         slug,
		Tier:         tier,
		Checks:       results,
		Disputed:     disputed,
		ValidFrom:    now,
		ValidUntil:   now.Add(attestationValidity),
		AnchorStatus: domain.AnchorPending,
		CreatedAt:    now,
	}
	// The recorder commits the attestation, its audit entry and the anchor
	// job in one atomic write; on error nothing is observable.
	if err := s.recorder.RecordAttestation(ctx, att); err != nil {
		return domain.Attestation{}, fmt.Errorf("verification.Resolve: record: %w", err)
	}
	return att, nil
}

// CurrentAttestation returns the entity's latest attestation.
func (s *Service) CurrentAttestation(ctx context.Context, slug string) (domain.Attestation, error) {
	att, found, err := s.atts.LatestAttestation(ctx, domain.AssetID(slug))
	if err != nil {
		return domain.Attestation{}, err
	}
	if !found {
		return domain.Attestation{}, fmt.Errorf("verification.CurrentAttestation: %w: no attestation for %q",
			domain.ErrNotFound, slug)
	}
	return att, nil
}

// RaiseDispute sets the dispute flag and immediately re-resolves so the
// clamped tier is materialized and audited.
func (s *Service) RaiseDispute(ctx context.Context, slug, reason string) error {
	d := domain.Dispute{
		AssetID:  domain.AssetID(slug),
		Slug:     slug,
		Reason:   reason,
		RaisedAt: s.now().UTC(),
	}
	if err := s.disputes.RaiseDispute(ctx, d); err != nil {
		return fmt.Errorf("verification.RaiseDispute: %w", err)
	}
	_, err := s.Resolve(ctx, slug)
	return err
}

// ClearDispute removes the flag and re-resolves, producing the attestation
// the evidence supports without the clamp.
func (s *Service) ClearDispute(ctx context.Context, slug string) error {
	if err := s.disputes.ClearDispute(ctx, domain.AssetID(slug)); err != nil {
		return fmt.Errorf("verification.ClearDispute: %w", err)
	}
	_, err := s.Resolve(ctx, slug)
	return err
}
