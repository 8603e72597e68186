package anchorrunner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"verona/internal/adapters/memory"
	"verona/internal/domain"
	"verona/internal/ports"
)

// fakeLedger scripts ledger behavior per hash and pending ref.
type fakeLedger struct {
	mu         sync.Mutex
	submitErr  error
	statusAt   map[string]ports.LedgerState
	submits    int
	statusCall int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{statusAt: make(map[string]ports.LedgerState)}
}

func (f *fakeLedger) Submit(_ context.Context, hash string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits++
	if f.submitErr != nil {
		return "", f.submitErr
	}
	return "pending-" + hash, nil
}

func (f *fakeLedger) Status(_ context.Context, pendingRef string) (ports.LedgerState, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCall++
	state, ok := f.statusAt[pendingRef]
	if !ok {
		return ports.LedgerPending, "", nil
	}
	if state == ports.LedgerAnchored {
		return state, "tx-" + pendingRef, nil
	}
	return state, "", nil
}

func seedRun(t *testing.T, store *memory.Store) (domain.ScoreRun, ports.AnchorJob) {
	t.Helper()
	ctx := context.Background()
	run := domain.ScoreRun{ID: "run-1", AssetID: "asset-1", AnchorStatus: domain.AnchorPending}
	if err := store.InsertScoreRun(ctx, run); err != nil {
		t.Fatal(err)
	}
	if err := store.EnqueueAnchor(ctx, domain.KindScoreRun, run.ID, "hash-1"); err != nil {
		t.Fatal(err)
	}
	job, found, err := store.ClaimDueAnchor(ctx, time.Now(), time.Minute)
	if err != nil || !found {
		t.Fatalf("claim: found=%v err=%v", found, err)
	}
	return run, job
}

func claimAgain(t *testing.T, store *memory.Store) ports.AnchorJob {
	t.Helper()
	job, found, err := store.ClaimDueAnchor(context.Background(), time.Now().Add(time.Hour), time.Minute)
	if err != nil || !found {
		t.Fatalf("reclaim: found=%v err=%v", found, err)
	}
	return job
}

func TestProcessSubmitThenAnchor(t *testing.T) {
	store := memory.NewStore()
	ledger := newFakeLedger()
	r := New(store, ledger, store, store)
	ctx := context.Background()

	run, job := seedRun(t, store)

	// First pass submits the hash and records the pending ref.
	if err := r.Process(ctx, job); err != nil {
		t.Fatalf("Process() submit pass: %v", err)
	}
	if ledger.submits != 1 {
		t.Fatalf("submits = %d, want 1", ledger.submits)
	}

	job = claimAgain(t, store)
	if job.PendingRef != "pending-hash-1" {
		t.Fatalf("pending ref = %q, want pending-hash-1", job.PendingRef)
	}

	// Ledger confirms; second pass anchors the record and finishes the job.
	ledger.statusAt["pending-hash-1"] = ports.LedgerAnchored
	if err := r.Process(ctx, job); err != nil {
		t.Fatalf("Process() confirm pass: %v", err)
	}
	got, found, err := store.LatestScoreRun(ctx, run.AssetID)
	if err != nil || !found {
		t.Fatal(err)
	}
	if got.AnchorStatus != domain.AnchorDone {
		t.Errorf("run anchor status = %q, want anchored", got.AnchorStatus)
	}
	if got.AnchorRef != "tx-pending-hash-1" {
		t.Errorf("run anchor ref = %q", got.AnchorRef)
	}
	if _, found, _ := store.ClaimDueAnchor(ctx, time.Now().Add(time.Hour), time.Minute); found {
		t.Error("finished job must not be claimable again")
	}
}

func TestProcessReschedulesWhilePending(t *testing.T) {
	store := memory.NewStore()
	ledger := newFakeLedger()
	r := New(store, ledger, store, store)
	ctx := context.Background()

	run, job := seedRun(t, store)
	if err := r.Process(ctx, job); err != nil {
		t.Fatal(err)
	}

	// Ledger stays pending: the job reschedules and the record keeps its
	// pending anchor status.
	job = claimAgain(t, store)
	if err := r.Process(ctx, job); err != nil {
		t.Fatalf("Process() pending pass: %v", err)
	}
	got, _, err := store.LatestScoreRun(ctx, run.AssetID)
	if err != nil {
		t.Fatal(err)
	}
	if got.AnchorStatus != domain.AnchorPending {
		t.Errorf("run anchor status = %q, want still pending", got.AnchorStatus)
	}
	if _, found, _ := store.ClaimDueAnchor(ctx, time.Now().Add(time.Hour), time.Minute); !found {
		t.Error("pending job must remain claimable after its backoff")
	}
}

func TestProcessRetryBudgetExhausted(t *testing.T) {
	store := memory.NewStore()
	ledger := newFakeLedger()
	ledger.submitErr = errors.New("ledger unreachable")
	r := New(store, ledger, store, store)
	r.MaxAttempts = 3
	ctx := context.Background()

	run, job := seedRun(t, store)
	for job.Attempts < r.MaxAttempts {
		if err := r.Process(ctx, job); err == nil {
			t.Fatal("Process() should surface the submit error")
		}
		job = claimAgain(t, store)
	}
	// Budget exhausted: this pass degrades the record instead of retrying.
	if err := r.Process(ctx, job); err == nil {
		t.Fatal("Process() should surface the final submit error")
	}

	got, _, err := store.LatestScoreRun(ctx, run.AssetID)
	if err != nil {
		t.Fatal(err)
	}
	if got.AnchorStatus != domain.AnchorFailed {
		t.Errorf("run anchor status = %q, want anchor_failed", got.AnchorStatus)
	}
	if _, found, _ := store.ClaimDueAnchor(ctx, time.Now().Add(24*time.Hour), time.Minute); found {
		t.Error("failed job must not be claimable again")
	}
}

func TestProcessLedgerRejection(t *testing.T) {
	store := memory.NewStore()
	ledger := newFakeLedger()
	r := New(store, ledger, store, store)
	ctx := context.Background()

	run, job := seedRun(t, store)
	if err := r.Process(ctx, job); err != nil {
		t.Fatal(err)
	}
	ledger.statusAt["pending-hash-1"] = ports.LedgerFailed

	job = claimAgain(t, store)
	if err := r.Process(ctx, job); err != nil {
		t.Fatalf("Process() rejection pass: %v", err)
	}
	got, _, err := store.LatestScoreRun(ctx, run.AssetID)
	if err != nil {
		t.Fatal(err)
	}
	if got.AnchorStatus != domain.AnchorFailed {
		t.Errorf("run anchor status = %q, want anchor_failed", got.AnchorStatus)
	}
}

func TestProcessAttestationRecord(t *testing.T) {
	store := memory.NewStore()
	ledger := newFakeLedger()
	r := New(store, ledger, store, store)
	ctx := context.Background()

	att := domain.Attestation{ID: "att-1", AssetID: "asset-1", AnchorStatus: domain.AnchorPending}
	if err := store.InsertAttestation(ctx, att); err != nil {
		t.Fatal(err)
	}
	if err := store.EnqueueAnchor(ctx, domain.KindAttestation, att.ID, "hash-a"); err != nil {
		t.Fatal(err)
	}
	job, found, err := store.ClaimDueAnchor(ctx, time.Now(), time.Minute)
	if err != nil || !found {
		t.Fatal(err)
	}
	if err := r.Process(ctx, job); err != nil {
		t.Fatal(err)
	}
	ledger.statusAt["pending-hash-a"] = ports.LedgerAnchored
	if err := r.Process(ctx, claimAgain(t, store)); err != nil {
		t.Fatal(err)
	}

	got, _, err := store.LatestAttestation(ctx, att.AssetID)
	if err != nil {
		t.Fatal(err)
	}
	if got.AnchorStatus != domain.AnchorDone || got.AnchorRef != "tx-pending-hash-a" {
		t.Errorf("attestation anchor = %q/%q, want anchored/tx-pending-hash-a", got.AnchorStatus, got.AnchorRef)
	}
}

func TestBackoff(t *testing.T) {
	base, max := 5*time.Second, 10*time.Minute
	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{0, 5 * time.Second},
		{1, 10 * time.Second},
		{2, 20 * time.Second},
		{5, 160 * time.Second},
		{7, 10 * time.Minute},
		{50, 10 * time.Minute},
	}
	for _, tt := range tests {
		if got := Backoff(tt.attempts, base, max); got != tt.want {
			t.Errorf("Backoff(%d) = %s, want %s", tt.attempts, got, tt.want)
		}
	}
}

func TestRunDrainsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := memory.NewStore()
	ledger := newFakeLedger()
	r := New(store, ledger, store, store)
	ctx, cancel := context.WithCancel(context.Background())

	seedRun(t, store)

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Run(ctx, 2, time.Millisecond)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not drain after cancellation")
	}
}
