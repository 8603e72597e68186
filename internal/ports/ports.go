package ports

import (
	"context"

	"verona/internal/domain"
)

// Scoring computes and serves composite score runs.
type Scoring interface {
	Compute(ctx context.Context, slug, methodologyVersion string, inputs []domain.ComponentInput) (domain.ScoreRun, error)
	CurrentRun(ctx context.Context, slug string) (domain.ScoreRun, error)
}

// Evidence manages the evidence lifecycle and derives pack summaries.
type Evidence interface {
	Submit(ctx context.Context, slug string, sub domain.EvidenceSubmission) (domain.Evidence, error)
	Review(ctx context.Context, evidenceID string, outcome domain.EvidenceStatus, reviewerID string) (domain.Evidence, error)
	Summarize(ctx context.Context, slug string) (domain.EvidencePackSummary, error)
}

// Verification resolves attestations and owns dispute intake.
type Verification interface {
	Resolve(ctx context.Context, slug string) (domain.Attestation, error)
	CurrentAttestation(ctx context.Context, slug string) (domain.Attestation, error)
	RaiseDispute(ctx context.Context, slug, reason string) error
	ClearDispute(ctx context.Context, slug string) error
}

// Recorder hashes committed records, appends audit entries and queues
// anchoring. Called by the scoring and verification services.
type Recorder interface {
	RecordScoreRun(ctx context.Context, run domain.ScoreRun) error
	RecordAttestation(ctx context.Context, att domain.Attestation) error
}

// Audit serves the chronological trail for an entity.
type Audit interface {
	History(ctx context.Context, slug string) ([]domain.AuditEntry, error)
}

// LedgerState is the anchoring collaborator's view of a submission.
type LedgerState string

const (
	LedgerPending  LedgerState = "pending"
	LedgerAnchored LedgerState = "anchored"
	LedgerFailed   LedgerState = "failed"
)

// Ledger is the external immutable-anchoring collaborator. Only content
// hashes cross this boundary, never raw payloads.
type Ledger interface {
	Submit(ctx context.Context, hash string) (pendingRef string, err error)
	Status(ctx context.Context, pendingRef string) (state LedgerState, txRef string, err error)
}
