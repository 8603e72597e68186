package ports

import (
	"context"
	"time"

	"verona/internal/domain"
)

// AnchorJob is one durable unit of anchoring work. A job with an empty
// PendingRef has not yet been submitted to the ledger.
type AnchorJob struct {
	ID          string
	Kind        domain.RecordKind
	RecordID    string
	ContentHash string
	PendingRef  string
	Attempts    int
}

// AnchorJobRepository supports claiming and updating anchor jobs. ClaimDue
// must hand each due job to at most one worker and lease it so a slow
// worker cannot race a later poll cycle.
type AnchorJobRepository interface {
	EnqueueAnchor(ctx context.Context, kind domain.RecordKind, recordID, contentHash string) error
	ClaimDueAnchor(ctx context.Context, now time.Time, lease time.Duration) (job AnchorJob, found bool, err error)
	MarkAnchorSubmitted(ctx context.Context, jobID, pendingRef string, nextAttempt time.Time) error
	RescheduleAnchor(ctx context.Context, jobID string, nextAttempt time.Time) error
	MarkAnchorDone(ctx context.Context, jobID string) error
	MarkAnchorFailed(ctx context.Context, jobID, reason string) error
}
