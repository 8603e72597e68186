package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Core domain models. The quality Grade (derived from a weighted composite
// score) and the numeric VerificationTier (derived from checked evidence)
// are deliberately distinct types and never convert into each other.

// Grade is a discrete quality tier label drawn from a methodology's score
// bands, e.g. "S", "A", "B".
type Grade string

// VerificationTier grades how much of an entity's supporting evidence has
// been independently checked. Zero means not yet attested.
type VerificationTier int

const (
	VerificationTierNone VerificationTier = iota
	VerificationTier1
	VerificationTier2
	VerificationTier3
	VerificationTier4
)

func (t VerificationTier) Valid() bool {
	return t >= VerificationTierNone && t <= VerificationTier4
}

// EvidenceStatus is the lifecycle state of an evidence record. Expired is a
// read-time projection (see Evidence.EffectiveStatus), never stored.
type EvidenceStatus string

const (
	EvidencePending  EvidenceStatus = "pending"
	EvidenceVerified EvidenceStatus = "verified"
	EvidenceRejected EvidenceStatus = "rejected"
	EvidenceExpired  EvidenceStatus = "expired"
)

func (s EvidenceStatus) Valid() bool {
	switch s {
	case EvidencePending, EvidenceVerified, EvidenceRejected, EvidenceExpired:
		return true
	}
	return false
}

// AnchorStatus tracks whether a record's content hash has reached the
// external ledger. Records are authoritative regardless of anchor status.
type AnchorStatus string

const (
	AnchorPending AnchorStatus = "pending"
	AnchorDone    AnchorStatus = "anchored"
	AnchorFailed  AnchorStatus = "anchor_failed"
)

// RecordKind discriminates anchorable record types in jobs and audit rows.
type RecordKind string

const (
	KindScoreRun    RecordKind = "score_run"
	KindAttestation RecordKind = "attestation"
)

// Evidence is one unit of supporting documentation for a fact about an
// entity. File bytes live with the storage collaborator; only the opaque
// reference and name/size metadata are held here.
type Evidence struct {
	ID               string
	AssetID          string
	Slug             string
	Type             string
	Category         string
	FileRef          string
	FileName         string
	FileSize         int64
	DocumentNumber   string
	IssuingAuthority string
	Status           EvidenceStatus
	ReviewerID       string
	UploadedAt       time.Time
	VerifiedAt       *time.Time
	ExpiresAt        *time.Time
}

// EffectiveStatus projects expiry at read time: verified evidence whose
// expiry has passed reads as expired. The stored status is never mutated,
// so every consumer must go through this projection.
func (e Evidence) EffectiveStatus(now time.Time) EvidenceStatus {
	if e.Status == EvidenceVerified && e.ExpiresAt != nil && e.ExpiresAt.Before(now) {
		return EvidenceExpired
	}
	return e.Status
}

// EvidenceSubmission carries the caller-supplied fields of a new upload.
type EvidenceSubmission struct {
	Type             string
	FileRef          string
	FileName         string
	FileSize         int64
	DocumentNumber   string
	IssuingAuthority string
	ExpiresAt        *time.Time
}

// ComponentInput is one (component, sub-score) pair fed to the aggregator,
// with the evidence records backing it.
type ComponentInput struct {
	Name         string          `json:"name"`
	SubScore     decimal.Decimal `json:"sub_score"`
	EvidenceRefs []string        `json:"evidence_refs,omitempty"`
}

// ScoreRun is one immutable evaluation of an entity's composite score.
// Later runs supersede it; it is never deleted.
type ScoreRun struct {
	ID                 string
	AssetID            string
	Slug               string
	MethodologyVersion string
	Inputs             []ComponentInput
	Composite          decimal.Decimal
	Grade              Grade
	Diff               *ScoreDiff
	AnchorStatus       AnchorStatus
	AnchorRef          string
	CreatedAt          time.Time
}

// ScoreDiff describes how a run differs from the entity's previous run.
type ScoreDiff struct {
	PreviousRunID string           `json:"previous_run_id"`
	Added         []string         `json:"added,omitempty"`
	Removed       []string         `json:"removed,omitempty"`
	Changed       []ComponentDelta `json:"changed,omitempty"`
	ScoreFrom     decimal.Decimal  `json:"score_from"`
	ScoreTo       decimal.Decimal  `json:"score_to"`
	GradeFrom     Grade            `json:"grade_from"`
	GradeTo       Grade            `json:"grade_to"`
}

// ComponentDelta is a changed sub-score within a diff.
type ComponentDelta struct {
	Name string          `json:"name"`
	From decimal.Decimal `json:"from"`
	To   decimal.Decimal `json:"to"`
}

// CheckResult is the outcome of one named verification gate.
type CheckResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
}

// Attestation is the immutable, anchored record of an entity's verification
// tier and the checks behind it. A dispute or re-verification creates a new
// Attestation superseding this one; historical claims stay inspectable.
type Attestation struct {
	ID           string
	AssetID      string
	Slug         string
	Tier         VerificationTier
	Checks       []CheckResult
	Disputed     bool
	ValidFrom    time.Time
	ValidUntil   time.Time
	AnchorStatus AnchorStatus
	AnchorRef    string
	CreatedAt    time.Time
}

// CategorySummary buckets an entity's evidence for one category.
type CategorySummary struct {
	Total    int  `json:"total"`
	Verified int  `json:"verified"`
	Complete bool `json:"complete"`
}

// EvidencePackSummary is derived from an entity's evidence set, never
// stored. Completion is evidence-driven: only categories with at least one
// submitted document count toward the denominator.
type EvidencePackSummary struct {
	AssetID           string                     `json:"asset_id"`
	Slug              string                     `json:"slug"`
	TotalDocuments    int                        `json:"total_documents"`
	VerifiedDocuments int                        `json:"verified_documents"`
	Completion        float64                    `json:"completion"`
	Categories        map[string]CategorySummary `json:"categories"`
}

// Dispute is the moderation flag on an entity. The dispute intake endpoints
// are its only writers.
type Dispute struct {
	AssetID  string
	Slug     string
	Reason   string
	RaisedAt time.Time
}

// AuditEntry is one append-only row in an entity's audit trail.
type AuditEntry struct {
	ID          string
	AssetID     string
	Kind        RecordKind
	RecordID    string
	ContentHash string
	Detail      []byte
	CreatedAt   time.Time
}
