package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"verona/internal/domain"
	"verona/internal/ports"
)

// AnchorJobRepository. Jobs stay durable across process restarts; the
// backoff schedule lives in next_attempt_at, not in worker memory.

func (db *DB) EnqueueAnchor(ctx context.Context, kind domain.RecordKind, recordID, contentHash string) error {
	return enqueueAnchor(ctx, db.Pool, kind, recordID, contentHash)
}

func enqueueAnchor(ctx context.Context, ex execer, kind domain.RecordKind, recordID, contentHash string) error {
	_, err := ex.Exec(ctx, `
        INSERT INTO anchor_jobs (kind, record_id, content_hash)
        VALUES ($1, $2, $3)
    `, string(kind), recordID, contentHash)
	return err
}

// ClaimDueAnchor selects the next due job with SKIP LOCKED and leases it by
// pushing next_attempt_at forward, so a slow worker cannot race the next
// poll cycle.
func (db *DB) ClaimDueAnchor(ctx context.Context, now time.Time, lease time.Duration) (job ports.AnchorJob, found bool, err error) {
	tx, err := db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return job, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		} else {
			_ = tx.Commit(ctx)
		}
	}()

	var kind string
	err = tx.QueryRow(ctx, `
        SELECT id, kind, record_id, content_hash, pending_ref, attempts
        FROM anchor_jobs
        WHERE status IN ('queued', 'submitted') AND next_attempt_at <= $1
        ORDER BY next_attempt_at
        FOR UPDATE SKIP LOCKED
        LIMIT 1
    `, now).Scan(&job.ID, &kind, &job.RecordID, &job.ContentHash, &job.PendingRef, &job.Attempts)
	if errors.Is(err, pgx.ErrNoRows) {
		err = nil
		return job, false, nil
	}
	if err != nil {
		return job, false, err
	}
	job.Kind = domain.RecordKind(kind)

	if _, err = tx.Exec(ctx, `
        UPDATE anchor_jobs
        SET attempts = attempts + 1, next_attempt_at = $2, updated_at = now()
        WHERE id = $1
    `, job.ID, now.Add(lease)); err != nil {
		return job, false, err
	}
	job.Attempts++
	return job, true, nil
}

func (db *DB) MarkAnchorSubmitted(ctx context.Context, jobID, pendingRef string, nextAttempt time.Time) error {
	_, err := db.Pool.Exec(ctx, `
        UPDATE anchor_jobs
        SET status='submitted', pending_ref=$2, next_attempt_at=$3, updated_at=now()
        WHERE id=$1
    `, jobID, pendingRef, nextAttempt)
	return err
}

func (db *DB) RescheduleAnchor(ctx context.Context, jobID string, nextAttempt time.Time) error {
	_, err := db.Pool.Exec(ctx, `
        UPDATE anchor_jobs SET next_attempt_at=$2, updated_at=now() WHERE id=$1
    `, jobID, nextAttempt)
	return err
}

func (db *DB) MarkAnchorDone(ctx context.Context, jobID string) error {
	_, err := db.Pool.Exec(ctx, `
        UPDATE anchor_jobs SET status='anchored', updated_at=now() WHERE id=$1
    `, jobID)
	return err
}

func (db *DB) MarkAnchorFailed(ctx context.Context, jobID, reason string) error {
	_, err := db.Pool.Exec(ctx, `
        UPDATE anchor_jobs SET status='failed', failure_reason=$2, updated_at=now() WHERE id=$1
    `, jobID, reason)
	return err
}
