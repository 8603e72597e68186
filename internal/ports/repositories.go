package ports

import (
	"context"

	"verona/internal/domain"
)

// EvidenceRepository stores evidence records. Update only ever moves a
// pending record to its reviewed state; nothing is deleted.
type EvidenceRepository interface {
	InsertEvidence(ctx context.Context, ev domain.Evidence) error
	GetEvidence(ctx context.Context, id string) (domain.Evidence, error)
	UpdateEvidence(ctx context.Context, ev domain.Evidence) error
	ListEvidenceByAsset(ctx context.Context, assetID string) ([]domain.Evidence, error)
}

// ScoreRunRepository reads immutable score runs and records their anchor
// outcome. Runs are written through the Committer; Latest drives diffing
// and the current-run read API.
type ScoreRunRepository interface {
	LatestScoreRun(ctx context.Context, assetID string) (domain.ScoreRun, bool, error)
	SetScoreRunAnchor(ctx context.Context, id string, status domain.AnchorStatus, ref string) error
}

// AttestationRepository reads immutable attestations and records their
// anchor outcome. Attestations are written through the Committer.
type AttestationRepository interface {
	LatestAttestation(ctx context.Context, assetID string) (domain.Attestation, bool, error)
	SetAttestationAnchor(ctx context.Context, id string, status domain.AnchorStatus, ref string) error
}

// DisputeRepository holds the per-entity dispute flag.
type DisputeRepository interface {
	RaiseDispute(ctx context.Context, d domain.Dispute) error
	ClearDispute(ctx context.Context, assetID string) error
	GetDispute(ctx context.Context, assetID string) (domain.Dispute, bool, error)
}

// AuditRepository reads the append-only trail. Entries are written through
// the Committer, never on their own.
type AuditRepository interface {
	AuditHistory(ctx context.Context, assetID string) ([]domain.AuditEntry, error)
}

// Committer writes a record together with its audit entry and anchor job in
// one atomic step. Either all three land or none do; a failure must never
// leave a record observable without its audit entry and queued anchor. The
// anchor job derives from the entry's kind, record id and content hash.
type Committer interface {
	CommitScoreRun(ctx context.Context, run domain.ScoreRun, entry domain.AuditEntry) error
	CommitAttestation(ctx context.Context, att domain.Attestation, entry domain.AuditEntry) error
}
