// Package memory is an in-process implementation of every repository port.
// It backs the test suites and local runs without a DATABASE_URL; the
// Postgres adapter is the production twin.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"verona/internal/domain"
	"verona/internal/ports"
)

type anchorJob struct {
	ports.AnchorJob
	status      string
	reason      string
	nextAttempt time.Time
	queuedAt    time.Time
}

type Store struct {
	mu       sync.Mutex
	evidence map[string]domain.Evidence
	runs     []domain.ScoreRun
	atts     []domain.Attestation
	disputes map[string]domain.Dispute
	audit    []domain.AuditEntry
	jobs     []*anchorJob
}

func NewStore() *Store {
	return &Store{
		evidence: make(map[string]domain.Evidence),
		disputes: make(map[string]domain.Dispute),
	}
}

// EvidenceRepository

func (s *Store) InsertEvidence(_ context.Context, ev domain.Evidence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evidence[ev.ID] = ev
	return nil
}

func (s *Store) GetEvidence(_ context.Context, id string) (domain.Evidence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.evidence[id]
	if !ok {
		return domain.Evidence{}, fmt.Errorf("%w: evidence %q", domain.ErrNotFound, id)
	}
	return ev, nil
}

func (s *Store) UpdateEvidence(_ context.Context, ev domain.Evidence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.evidence[ev.ID]; !ok {
		return fmt.Errorf("%w: evidence %q", domain.ErrNotFound, ev.ID)
	}
	s.evidence[ev.ID] = ev
	return nil
}

func (s *Store) ListEvidenceByAsset(_ context.Context, assetID string) ([]domain.Evidence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Evidence
	for _, ev := range s.evidence {
		if ev.AssetID == assetID {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UploadedAt.Equal(out[j].UploadedAt) {
			return out[i].UploadedAt.Before(out[j].UploadedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// ScoreRunRepository. InsertScoreRun is a seeding helper for tests that
// need a record without the full commit.

func (s *Store) InsertScoreRun(_ context.Context, run domain.ScoreRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, run)
	return nil
}

func (s *Store) LatestScoreRun(_ context.Context, assetID string) (domain.ScoreRun, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.runs) - 1; i >= 0; i-- {
		if s.runs[i].AssetID == assetID {
			return s.runs[i], true, nil
		}
	}
	return domain.ScoreRun{}, false, nil
}

func (s *Store) SetScoreRunAnchor(_ context.Context, id string, status domain.AnchorStatus, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.runs {
		if s.runs[i].ID == id {
			s.runs[i].AnchorStatus = status
			s.runs[i].AnchorRef = ref
			return nil
		}
	}
	return fmt.Errorf("%w: score run %q", domain.ErrNotFound, id)
}

// AttestationRepository

func (s *Store) InsertAttestation(_ context.Context, att domain.Attestation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.atts = append(s.atts, att)
	return nil
}

func (s *Store) LatestAttestation(_ context.Context, assetID string) (domain.Attestation, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.atts) - 1; i >= 0; i-- {
		if s.atts[i].AssetID == assetID {
			return s.atts[i], true, nil
		}
	}
	return domain.Attestation{}, false, nil
}

func (s *Store) SetAttestationAnchor(_ context.Context, id string, status domain.AnchorStatus, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.atts {
		if s.atts[i].ID == id {
			s.atts[i].AnchorStatus = status
			s.atts[i].AnchorRef = ref
			return nil
		}
	}
	return fmt.Errorf("%w: attestation %q", domain.ErrNotFound, id)
}

// DisputeRepository

func (s *Store) RaiseDispute(_ context.Context, d domain.Dispute) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disputes[d.AssetID] = d
	return nil
}

func (s *Store) ClearDispute(_ context.Context, assetID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.disputes, assetID)
	return nil
}

func (s *Store) GetDispute(_ context.Context, assetID string) (domain.Dispute, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.disputes[assetID]
	return d, ok, nil
}

// AuditRepository

func (s *Store) AuditHistory(_ context.Context, assetID string) ([]domain.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.AuditEntry
	for _, entry := range s.audit {
		if entry.AssetID == assetID {
			out = append(out, entry)
		}
	}
	return out, nil
}

// Committer

func (s *Store) CommitScoreRun(_ context.Context, run domain.ScoreRun, entry domain.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, run)
	s.audit = append(s.audit, entry)
	s.enqueueLocked(entry.Kind, entry.RecordID, entry.ContentHash)
	return nil
}

func (s *Store) CommitAttestation(_ context.Context, att domain.Attestation, entry domain.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.atts = append(s.atts, att)
	s.audit = append(s.audit, entry)
	s.enqueueLocked(entry.Kind, entry.RecordID, entry.ContentHash)
	return nil
}

// AnchorJobRepository

func (s *Store) EnqueueAnchor(_ context.Context, kind domain.RecordKind, recordID, contentHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enqueueLocked(kind, recordID, contentHash)
	return nil
}

func (s *Store) enqueueLocked(kind domain.RecordKind, recordID, contentHash string) {
	now := time.Now()
	s.jobs = append(s.jobs, &anchorJob{
		AnchorJob: ports.AnchorJob{
			ID:          uuid.NewString(),
			Kind:        kind,
			RecordID:    recordID,
			ContentHash: contentHash,
		},
		status:      "queued",
		nextAttempt: now,
		queuedAt:    now,
	})
}

func (s *Store) ClaimDueAnchor(_ context.Context, now time.Time, lease time.Duration) (ports.AnchorJob, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due *anchorJob
	for _, j := range s.jobs {
		if (j.status == "queued" || j.status == "submitted") && !j.nextAttempt.After(now) {
			if due == nil || j.nextAttempt.Before(due.nextAttempt) {
				due = j
			}
		}
	}
	if due == nil {
		return ports.AnchorJob{}, false, nil
	}
	due.Attempts++
	due.nextAttempt = now.Add(lease)
	return due.AnchorJob, true, nil
}

func (s *Store) MarkAnchorSubmitted(_ context.Context, jobID, pendingRef string, nextAttempt time.Time) error {
	return s.updateJob(jobID, func(j *anchorJob) {
		j.status = "submitted"
		j.PendingRef = pendingRef
		j.nextAttempt = nextAttempt
	})
}

func (s *Store) RescheduleAnchor(_ context.Context, jobID string, nextAttempt time.Time) error {
	return s.updateJob(jobID, func(j *anchorJob) { j.nextAttempt = nextAttempt })
}

func (s *Store) MarkAnchorDone(_ context.Context, jobID string) error {
	return s.updateJob(jobID, func(j *anchorJob) { j.status = "anchored" })
}

func (s *Store) MarkAnchorFailed(_ context.Context, jobID, reason string) error {
	return s.updateJob(jobID, func(j *anchorJob) {
		j.status = "failed"
		j.reason = reason
	})
}

func (s *Store) updateJob(jobID string, apply func(*anchorJob)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		if j.ID == jobID {
			apply(j)
			return nil
		}
	}
	return fmt.Errorf("%w: anchor job %q", domain.ErrNotFound, jobID)
}
