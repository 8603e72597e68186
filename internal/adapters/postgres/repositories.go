package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"verona/internal/domain"
)

// execer runs statements on the pool or inside a transaction, so the insert
// helpers serve both the standalone repositories and the atomic commits.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// EvidenceRepository

func (db *DB) InsertEvidence(ctx context.Context, ev domain.Evidence) error {
	_, err := db.Pool.Exec(ctx, `
        INSERT INTO evidence (
            id, asset_id, slug, evidence_type, category, file_ref, file_name,
            file_size, document_number, issuing_authority, status, reviewer_id,
            uploaded_at, verified_at, expires_at
        ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
    `, ev.ID, ev.AssetID, ev.Slug, ev.Type, ev.Category, ev.FileRef, ev.FileName,
		ev.FileSize, ev.DocumentNumber, ev.IssuingAuthority, string(ev.Status), ev.ReviewerID,
		ev.UploadedAt, ev.VerifiedAt, ev.ExpiresAt)
	return err
}

func (db *DB) GetEvidence(ctx context.Context, id string) (domain.Evidence, error) {
	var ev domain.Evidence
	var status string
	err := db.Pool.QueryRow(ctx, `
        SELECT id, asset_id, slug, evidence_type, category, file_ref, file_name,
               file_size, document_number, issuing_authority, status, reviewer_id,
               uploaded_at, verified_at, expires_at
        FROM evidence WHERE id = $1
    `, id).Scan(&ev.ID, &ev.AssetID, &ev.Slug, &ev.Type, &ev.Category, &ev.FileRef, &ev.FileName,
		&ev.FileSize, &ev.DocumentNumber, &ev.IssuingAuthority, &status, &ev.ReviewerID,
		&ev.UploadedAt, &ev.VerifiedAt, &ev.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ev, fmt.Errorf("%w: evidence %q", domain.ErrNotFound, id)
	}
	ev.Status = domain.EvidenceStatus(status)
	return ev, err
}

func (db *DB) UpdateEvidence(ctx context.Context, ev domain.Evidence) error {
	_, err := db.Pool.Exec(ctx, `
        UPDATE evidence
        SET status=$2, reviewer_id=$3, verified_at=$4
        WHERE id=$1
    `, ev.ID, string(ev.Status), ev.ReviewerID, ev.VerifiedAt)
	return err
}

func (db *DB) ListEvidenceByAsset(ctx context.Context, assetID string) ([]domain.Evidence, error) {
	rows, err := db.Pool.Query(ctx, `
        SELECT id, asset_id, slug, evidence_type, category, file_ref, file_name,
               file_size, document_number, issuing_authority, status, reviewer_id,
               uploaded_at, verified_at, expires_at
        FROM evidence WHERE asset_id = $1
        ORDER BY uploaded_at, id
    `, assetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Evidence
	for rows.Next() {
		var ev domain.Evidence
		var status string
		if err := rows.Scan(&ev.ID, &ev.AssetID, &ev.Slug, &ev.Type, &ev.Category, &ev.FileRef, &ev.FileName,
			&ev.FileSize, &ev.DocumentNumber, &ev.IssuingAuthority, &status, &ev.ReviewerID,
			&ev.UploadedAt, &ev.VerifiedAt, &ev.ExpiresAt); err != nil {
			return nil, err
		}
		ev.Status = domain.EvidenceStatus(status)
		out = append(out, ev)
	}
	return out, rows.Err()
}

// ScoreRunRepository

func insertScoreRun(ctx context.Context, ex execer, run domain.ScoreRun) error {
	inputs, err := json.Marshal(run.Inputs)
	if err != nil {
		return err
	}
	var diff []byte
	if run.Diff != nil {
		if diff, err = json.Marshal(run.Diff); err != nil {
			return err
		}
	}
	_, err = ex.Exec(ctx, `
        INSERT INTO score_runs (
            id, asset_id, slug, methodology_version, inputs, composite, grade,
            diff, anchor_status, anchor_ref, created_at
        ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
    `, run.ID, run.AssetID, run.Slug, run.MethodologyVersion, inputs, run.Composite, string(run.Grade),
		diff, string(run.AnchorStatus), run.AnchorRef, run.CreatedAt)
	return err
}

func (db *DB) LatestScoreRun(ctx context.Context, assetID string) (domain.ScoreRun, bool, error) {
	var run domain.ScoreRun
	var grade, anchorStatus string
	var inputs, diff []byte
	err := db.Pool.QueryRow(ctx, `
        SELECT id, asset_id, slug, methodology_version, inputs, composite, grade,
               diff, anchor_status, anchor_ref, created_at
        FROM score_runs WHERE asset_id = $1
        ORDER BY created_at DESC, id DESC
        LIMIT 1
    `, assetID).Scan(&run.ID, &run.AssetID, &run.Slug, &run.MethodologyVersion, &inputs, &run.Composite,
		&grade, &diff, &anchorStatus, &run.AnchorRef, &run.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return run, false, nil
	}
	if err != nil {
		return run, false, err
	}
	if err := json.Unmarshal(inputs, &run.Inputs); err != nil {
		return run, false, err
	}
	if len(diff) > 0 {
		run.Diff = &domain.ScoreDiff{}
		if err := json.Unmarshal(diff, run.Diff); err != nil {
			return run, false, err
		}
	}
	run.Grade = domain.Grade(grade)
	run.AnchorStatus = domain.AnchorStatus(anchorStatus)
	return run, true, nil
}

func (db *DB) SetScoreRunAnchor(ctx context.Context, id string, status domain.AnchorStatus, ref string) error {
	_, err := db.Pool.Exec(ctx, `UPDATE score_runs SET anchor_status=$2, anchor_ref=$3 WHERE id=$1`,
		id, string(status), ref)
	return err
}

// AttestationRepository

func insertAttestation(ctx context.Context, ex execer, att domain.Attestation) error {
	checks, err := json.Marshal(att.Checks)
	if err != nil {
		return err
	}
	_, err = ex.Exec(ctx, `
        INSERT INTO attestations (
            id, asset_id, slug, tier, checks, disputed, valid_from, valid_until,
            anchor_status, anchor_ref, created_at
        ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
    `, att.ID, att.AssetID, att.Slug, int(att.Tier), checks, att.Disputed, att.ValidFrom, att.ValidUntil,
		string(att.AnchorStatus), att.AnchorRef, att.CreatedAt)
	return err
}

func (db *DB) LatestAttestation(ctx context.Context, assetID string) (domain.Attestation, bool, error) {
	var att domain.Attestation
	var tier int
	var anchorStatus string
	var checks []byte
	err := db.Pool.QueryRow(ctx, `
        SELECT id, asset_id, slug, tier, checks, disputed, valid_from, valid_until,
               anchor_status, anchor_ref, created_at
        FROM attestations WHERE asset_id = $1
        ORDER BY created_at DESC, id DESC
        LIMIT 1
    `, assetID).Scan(&att.ID, &att.AssetID, &att.Slug, &tier, &checks, &att.Disputed,
		&att.ValidFrom, &att.ValidUntil, &anchorStatus, &att.AnchorRef, &att.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return att, false, nil
	}
	if err != nil {
		return att, false, err
	}
	if err := json.Unmarshal(checks, &att.Checks); err != nil {
		return att, false, err
	}
	att.Tier = domain.VerificationTier(tier)
	att.AnchorStatus = domain.AnchorStatus(anchorStatus)
	return att, true, nil
}

func (db *DB) SetAttestationAnchor(ctx context.Context, id string, status domain.AnchorStatus, ref string) error {
	_, err := db.Pool.Exec(ctx, `UPDATE attestations SET anchor_status=$2, anchor_ref=$3 WHERE id=$1`,
		id, string(status), ref)
	return err
}

// DisputeRepository

func (db *DB) RaiseDispute(ctx context.Context, d domain.Dispute) error {
	_, err := db.Pool.Exec(ctx, `
        INSERT INTO disputes (asset_id, slug, reason, raised_at)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (asset_id) DO UPDATE SET reason = EXCLUDED.reason, raised_at = EXCLUDED.raised_at
    `, d.AssetID, d.Slug, d.Reason, d.RaisedAt)
	return err
}

func (db *DB) ClearDispute(ctx context.Context, assetID string) error {
	_, err := db.Pool.Exec(ctx, `DELETE FROM disputes WHERE asset_id = $1`, assetID)
	return err
}

func (db *DB) GetDispute(ctx context.Context, assetID string) (domain.Dispute, bool, error) {
	var d domain.Dispute
	err := db.Pool.QueryRow(ctx, `
        SELECT asset_id, slug, reason, raised_at FROM disputes WHERE asset_id = $1
    `, assetID).Scan(&d.AssetID, &d.Slug, &d.Reason, &d.RaisedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return d, false, nil
	}
	if err != nil {
		return d, false, err
	}
	return d, true, nil
}

// AuditRepository

func appendAudit(ctx context.Context, ex execer, entry domain.AuditEntry) error {
	_, err := ex.Exec(ctx, `
        INSERT INTO audit_entries (id, asset_id, kind, record_id, content_hash, detail, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
    `, entry.ID, entry.AssetID, string(entry.Kind), entry.RecordID, entry.ContentHash, entry.Detail, entry.CreatedAt)
	return err
}

func (db *DB) AuditHistory(ctx context.Context, assetID string) ([]domain.AuditEntry, error) {
	rows, err := db.Pool.Query(ctx, `
        SELECT id, asset_id, kind, record_id, content_hash, detail, created_at
        FROM audit_entries WHERE asset_id = $1
        ORDER BY created_at, id
    `, assetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.AuditEntry
	for rows.Next() {
		var entry domain.AuditEntry
		var kind string
		if err := rows.Scan(&entry.ID, &entry.AssetID, &kind, &entry.RecordID,
			&entry.ContentHash, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.Kind = domain.RecordKind(kind)
		out = append(out, entry)
	}
	return out, rows.Err()
}
