// Package anchorrunner drains the durable anchor-job queue off the request
// path: score runs and attestations are servable the moment they are
// persisted, and these workers carry their content hashes to the ledger
// with bounded retries afterwards.
package anchorrunner

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"verona/internal/domain"
	"verona/internal/ports"
)

const (
	defaultMaxAttempts = 8
	defaultBaseDelay   = 5 * time.Second
	defaultMaxDelay    = 10 * time.Minute
	defaultLease       = 30 * time.Second
)

type Runner struct {
	jobs   ports.AnchorJobRepository
	ledger ports.Ledger
	runs   ports.ScoreRunRepository
	atts   ports.AttestationRepository

	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Lease       time.Duration

	now func() time.Time
}

func New(jobs ports.AnchorJobRepository, ledger ports.Ledger, runs ports.ScoreRunRepository, atts ports.AttestationRepository) *Runner {
	return &Runner{
		jobs:        jobs,
		ledger:      ledger,
		runs:        runs,
		atts:        atts,
		MaxAttempts: defaultMaxAttempts,
		BaseDelay:   defaultBaseDelay,
		MaxDelay:    defaultMaxDelay,
		Lease:       defaultLease,
		now:         time.Now,
	}
}

// Backoff returns the delay before the given retry attempt: base doubled
// per attempt, capped at max.
func Backoff(attempts int, base, max time.Duration) time.Duration {
	d := base
	for i := 0; i < attempts; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	return d
}

// Run starts worker goroutines that claim due anchor jobs and process
// them. It blocks until ctx is cancelled and all workers have drained.
func (r *Runner) Run(ctx context.Context, concurrency int, pollInterval time.Duration) {
	if concurrency < 1 {
		return
	}
	jobsCh := make(chan ports.AnchorJob, concurrency)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(jobsCh)
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for {
					job, found, err := r.jobs.ClaimDueAnchor(ctx, r.now(), r.Lease)
					if err != nil {
						if ctx.Err() == nil {
							slog.Error("anchor job claim failed", "error", err)
						}
						break
					}
					if !found {
						break
					}
					select {
					case jobsCh <- job:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobsCh {
				if err := r.Process(ctx, job); err != nil && ctx.Err() == nil {
					slog.Error("anchor job processing failed", "job", job.ID, "record", job.RecordID, "error", err)
				}
			}
		}()
	}
	wg.Wait()
}

// Process advances one claimed job by a single ledger call: an unsubmitted
// job is submitted, a submitted one has its status polled. Pending
// outcomes reschedule with the persisted backoff so retry state survives
// restarts; exhausted jobs degrade the record to anchor_failed without
// touching its tier.
func (r *Runner) Process(ctx context.Context, job ports.AnchorJob) error {
	if job.PendingRef == "" {
		ref, err := r.ledger.Submit(ctx, job.ContentHash)
		if err != nil {
			return r.retry(ctx, job, fmt.Errorf("submit: %w", err))
		}
		return r.jobs.MarkAnchorSubmitted(ctx, job.ID, ref, r.nextAttempt(job))
	}

	state, txRef, err := r.ledger.Status(ctx, job.PendingRef)
	if err != nil {
		return r.retry(ctx, job, fmt.Errorf("status: %w", err))
	}
	switch state {
	case ports.LedgerAnchored:
		if err := r.setRecordAnchor(ctx, job, domain.AnchorDone, txRef); err != nil {
			return err
		}
		return r.jobs.MarkAnchorDone(ctx, job.ID)
	case ports.LedgerFailed:
		return r.fail(ctx, job, "ledger rejected submission")
	default:
		if job.Attempts >= r.MaxAttempts {
			return r.fail(ctx, job, "confirmation not reached within retry budget")
		}
		return r.jobs.RescheduleAnchor(ctx, job.ID, r.nextAttempt(job))
	}
}

func (r *Runner) retry(ctx context.Context, job ports.AnchorJob, cause error) error {
	if job.Attempts >= r.MaxAttempts {
		if err := r.fail(ctx, job, cause.Error()); err != nil {
			return err
		}
		return cause
	}
	if err := r.jobs.RescheduleAnchor(ctx, job.ID, r.nextAttempt(job)); err != nil {
		return err
	}
	return cause
}

func (r *Runner) fail(ctx context.Context, job ports.AnchorJob, reason string) error {
	if err := r.setRecordAnchor(ctx, job, domain.AnchorFailed, ""); err != nil {
		return err
	}
	if err := r.jobs.MarkAnchorFailed(ctx, job.ID, reason); err != nil {
		return err
	}
	slog.Warn("anchoring permanently failed, record stays authoritative",
		"job", job.ID, "kind", string(job.Kind), "record", job.RecordID, "reason", reason)
	return nil
}

func (r *Runner) setRecordAnchor(ctx context.Context, job ports.AnchorJob, status domain.AnchorStatus, ref string) error {
	switch job.Kind {
	case domain.KindScoreRun:
		return r.runs.SetScoreRunAnchor(ctx, job.RecordID, status, ref)
	case domain.KindAttestation:
		return r.atts.SetAttestationAnchor(ctx, job.RecordID, status, ref)
	default:
		return fmt.Errorf("anchorrunner: unknown record kind %q", job.Kind)
	}
}

func (r *Runner) nextAttempt(job ports.AnchorJob) time.Time {
	return r.now().Add(Backoff(job.Attempts, r.BaseDelay, r.MaxDelay))
}
