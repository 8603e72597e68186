package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"verona/internal/domain"
)

// Committer. Record, audit entry and anchor job land in one transaction; a
// failure rolls all three back so the read API never serves a record that
// lost its audit entry or its retry queue slot.

func (db *DB) CommitScoreRun(ctx context.Context, run domain.ScoreRun, entry domain.AuditEntry) (err error) {
	tx, err := db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		} else {
			err = tx.Commit(ctx)
		}
	}()

	if err = insertScoreRun(ctx, tx, run); err != nil {
		return err
	}
	if err = appendAudit(ctx, tx, entry); err != nil {
		return err
	}
	return enqueueAnchor(ctx, tx, entry.Kind, entry.RecordID, entry.ContentHash)
}

func (db *DB) CommitAttestation(ctx context.Context, att domain.Attestation, entry domain.AuditEntry) (err error) {
	tx, err := db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		} else {
			err = tx.Commit(ctx)
		}
	}()

	if err = insertAttestation(ctx, tx, att); err != nil {
		return err
	}
	if err = appendAudit(ctx, tx, entry); err != nil {
		return err
	}
	return enqueueAnchor(ctx, tx, entry.Kind, entry.RecordID, entry.ContentHash)
}
