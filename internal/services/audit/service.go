// Package audit records committed score runs and attestations: it hashes
// their content and commits the record, its audit trail entry and the
// anchor job as one atomic write. Anchoring is a transparency guarantee,
// not a correctness gate; records are servable before the ledger confirms.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"verona/internal/domain"
	"verona/internal/ports"
)

type Service struct {
	committer ports.Committer
	audit     ports.AuditRepository
	now       func() time.Time
}

func New(committer ports.Committer, auditRepo ports.AuditRepository) *Service {
	return &Service{committer: committer, audit: auditRepo, now: time.Now}
}

// RecordScoreRun commits the run with its audit entry and anchor job.
func (s *Service) RecordScoreRun(ctx context.Context, run domain.ScoreRun) error {
	var detail []byte
	if run.Diff != nil {
		b, err := json.Marshal(run.Diff)
		if err != nil {
			return fmt.Errorf("audit.RecordScoreRun: encode diff: %w", err)
		}
		detail = b
	}
	entry := domain.AuditEntry{
		ID:          uuid.NewString(),
		AssetID:     run.AssetID,
		Kind:        domain.KindScoreRun,
		RecordID:    run.ID,
		ContentHash: HashScoreRun(run),
		Detail:      detail,
		CreatedAt:   s.now(),
	}
	if err := s.committer.CommitScoreRun(ctx, run, entry); err != nil {
		return fmt.Errorf("audit.RecordScoreRun: commit: %w", err)
	}
	return nil
}

// RecordAttestation commits the attestation with its audit entry and anchor
// job.
func (s *Service) RecordAttestation(ctx context.Context, att domain.Attestation) error {
	detail, err := json.Marshal(map[string]any{
		"tier":     int(att.Tier),
		"disputed": att.Disputed,
		"checks":   att.Checks,
	})
	if err != nil {
		return fmt.Errorf("audit.RecordAttestation: encode detail: %w", err)
	}
	entry := domain.AuditEntry{
		ID:          uuid.NewString(),
		AssetID:     att.AssetID,
		Kind:        domain.KindAttestation,
		RecordID:    att.ID,
		ContentHash: HashAttestation(att),
		Detail:      detail,
		CreatedAt:   s.now(),
	}
	if err := s.committer.CommitAttestation(ctx, att, entry); err != nil {
		return fmt.Errorf("audit.RecordAttestation: commit: %w", err)
	}
	return nil
}

// History returns the chronological audit trail for an entity.
func (s *Service) History(ctx context.Context, slug string) ([]domain.AuditEntry, error) {
	return s.audit.AuditHistory(ctx, domain.AssetID(slug))
}
