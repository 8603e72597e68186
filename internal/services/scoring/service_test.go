package scoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"verona/internal/adapters/memory"
	"verona/internal/domain"
	"verona/internal/locks"
	"verona/internal/ports"
	"verona/internal/registry"
	auditsvc "verona/internal/services/audit"
)

const testMethodology = `
version: "test.1"
score_min: 0
score_max: 100
precision: 0
components:
  - {name: legal, weight: 0.4, min: 0, max: 100}
  - {name: construction, weight: 0.3, min: 0, max: 100}
  - {name: delivery, weight: 0.3, min: 0, max: 100}
  - {name: projected_yield, weight: 0, min: 0, max: 100, speculative: true}
bands:
  - {grade: S, min: 85}
  - {grade: A, min: 70}
  - {grade: B, min: 50}
  - {grade: C, min: 0}
`

func newTestService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	m, err := registry.LoadMethodology([]byte(testMethodology))
	if err != nil {
		t.Fatal(err)
	}
	reg, err := registry.NewRegistry(m)
	if err != nil {
		t.Fatal(err)
	}
	store := memory.NewStore()
	svc := New(store, reg, auditsvc.New(store, store), locks.NewKeyed())
	return svc, store
}

func inputs(pairs map[string]float64) []domain.ComponentInput {
	out := make([]domain.ComponentInput, 0, len(pairs))
	for name, sub := range pairs {
		out = append(out, domain.ComponentInput{Name: name, SubScore: decimal.NewFromFloat(sub)})
	}
	return out
}

func TestComputeWeightedComposite(t *testing.T) {
	svc, _ := newTestService(t)

	// {legal: 0.4, construction: 0.3, delivery: 0.3} x {90, 80, 70} = 81.
	run, err := svc.Compute(context.Background(), "marina-heights", "test.1",
		inputs(map[string]float64{"legal": 90, "construction": 80, "delivery": 70}))
	if err != nil {
		t.Fatalf("Compute() error: %v", err)
	}
	if !run.Composite.Equal(decimal.NewFromInt(81)) {
		t.Errorf("composite = %s, want 81", run.Composite)
	}
	if run.Grade != "A" {
		t.Errorf("grade = %q, want A", run.Grade)
	}
	if run.AnchorStatus != domain.AnchorPending {
		t.Errorf("anchor status = %q, want pending", run.AnchorStatus)
	}
	if run.Diff != nil {
		t.Error("first run should carry no diff")
	}
	if run.AssetID != domain.AssetID("marina-heights") {
		t.Error("run not keyed by the slug's asset id")
	}
}

func TestComputeRoundsHalfUp(t *testing.T) {
	svc, _ := newTestService(t)

	// 0.4x90 + 0.3x55 + 0.3x50 = 67.5, which must round up to 68.
	run, err := svc.Compute(context.Background(), "harbor-one", "test.1",
		inputs(map[string]float64{"legal": 90, "construction": 55, "delivery": 50}))
	if err != nil {
		t.Fatal(err)
	}
	if !run.Composite.Equal(decimal.NewFromInt(68)) {
		t.Errorf("composite = %s, want 68", run.Composite)
	}
}

func TestComputeValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		in     []domain.ComponentInput
		target error
	}{
		{
			"unknown component",
			inputs(map[string]float64{"legal": 90, "construction": 80, "delivery": 70, "vibes": 100}),
			domain.ErrUnknownComponent,
		},
		{
			"speculative component not scoreable",
			inputs(map[string]float64{"legal": 90, "construction": 80, "delivery": 70, "projected_yield": 90}),
			domain.ErrUnknownComponent,
		},
		{
			"missing component",
			inputs(map[string]float64{"legal": 90, "construction": 80}),
			domain.ErrMissingComponent,
		},
		{
			"sub-score above range",
			inputs(map[string]float64{"legal": 101, "construction": 80, "delivery": 70}),
			domain.ErrSubScoreOutOfRange,
		},
		{
			"sub-score below range",
			inputs(map[string]float64{"legal": -1, "construction": 80, "delivery": 70}),
			domain.ErrSubScoreOutOfRange,
		},
		{
			"duplicate input",
			append(inputs(map[string]float64{"legal": 90, "construction": 80, "delivery": 70}),
				domain.ComponentInput{Name: "legal", SubScore: decimal.NewFromInt(50)}),
			domain.ErrUnknownComponent,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Compute(ctx, "marina-heights", "test.1", tt.in)
			if !errors.Is(err, tt.target) {
				t.Errorf("error = %v, want %v", err, tt.target)
			}
		})
	}

	if _, err := svc.Compute(ctx, "marina-heights", "no-such-version",
		inputs(map[string]float64{"legal": 90, "construction": 80, "delivery": 70})); !errors.Is(err, domain.ErrInvalidMethodology) {
		t.Errorf("unknown version error = %v, want ErrInvalidMethodology", err)
	}
}

func TestComputeRejectionPersistsNothing(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	_, err := svc.Compute(ctx, "marina-heights", "test.1", inputs(map[string]float64{"legal": 90}))
	if !errors.Is(err, domain.ErrMissingComponent) {
		t.Fatalf("error = %v", err)
	}
	if _, found, _ := store.LatestScoreRun(ctx, domain.AssetID("marina-heights")); found {
		t.Error("rejected request must not persist a run")
	}
	if history, _ := store.AuditHistory(ctx, domain.AssetID("marina-heights")); len(history) != 0 {
		t.Error("rejected request must not append audit entries")
	}
}

func TestSecondRunDiff(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.Compute(ctx, "harbor-one", "test.1",
		inputs(map[string]float64{"legal": 90, "construction": 55, "delivery": 50}))
	if err != nil {
		t.Fatal(err)
	}
	if first.Grade != "B" {
		t.Fatalf("first grade = %q, want B", first.Grade)
	}

	// One sub-score changes by +10; the diff must record exactly that
	// component and the resulting grade delta B -> A.
	second, err := svc.Compute(ctx, "harbor-one", "test.1",
		inputs(map[string]float64{"legal": 90, "construction": 65, "delivery": 50}))
	if err != nil {
		t.Fatal(err)
	}
	if second.Grade != "A" {
		t.Fatalf("second grade = %q, want A", second.Grade)
	}
	d := second.Diff
	if d == nil {
		t.Fatal("second run missing diff")
	}
	if d.PreviousRunID != first.ID {
		t.Errorf("diff previous run = %q, want %q", d.PreviousRunID, first.ID)
	}
	if len(d.Added) != 0 || len(d.Removed) != 0 {
		t.Errorf("diff added/removed = %v/%v, want empty", d.Added, d.Removed)
	}
	if len(d.Changed) != 1 || d.Changed[0].Name != "construction" {
		t.Fatalf("diff changed = %+v, want exactly construction", d.Changed)
	}
	if !d.Changed[0].From.Equal(decimal.NewFromInt(55)) || !d.Changed[0].To.Equal(decimal.NewFromInt(65)) {
		t.Errorf("construction delta = %s -> %s, want 55 -> 65", d.Changed[0].From, d.Changed[0].To)
	}
	if d.GradeFrom != "B" || d.GradeTo != "A" {
		t.Errorf("grade delta = %q -> %q, want B -> A", d.GradeFrom, d.GradeTo)
	}
}

func TestDiffRunsAddedRemoved(t *testing.T) {
	ten := decimal.NewFromInt(10)
	prev := domain.ScoreRun{
		ID:     "prev",
		Inputs: []domain.ComponentInput{{Name: "legal", SubScore: ten}, {Name: "delivery", SubScore: ten}},
	}
	cur := domain.ScoreRun{
		ID:     "cur",
		Inputs: []domain.ComponentInput{{Name: "legal", SubScore: ten}, {Name: "construction", SubScore: ten}},
	}
	d := diffRuns(prev, cur)
	if len(d.Added) != 1 || d.Added[0] != "construction" {
		t.Errorf("added = %v, want [construction]", d.Added)
	}
	if len(d.Removed) != 1 || d.Removed[0] != "delivery" {
		t.Errorf("removed = %v, want [delivery]", d.Removed)
	}
	if len(d.Changed) != 0 {
		t.Errorf("changed = %v, want empty", d.Changed)
	}
}

func TestComputeRecordsAuditAndAnchorJob(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	run, err := svc.Compute(ctx, "marina-heights", "test.1",
		inputs(map[string]float64{"legal": 90, "construction": 80, "delivery": 70}))
	if err != nil {
		t.Fatal(err)
	}

	history, err := store.AuditHistory(ctx, run.AssetID)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 1 {
		t.Fatalf("audit entries = %d, want 1", len(history))
	}
	if history[0].Kind != domain.KindScoreRun || history[0].RecordID != run.ID {
		t.Errorf("audit entry = %+v, want score_run for %s", history[0], run.ID)
	}
	if history[0].ContentHash != auditsvc.HashScoreRun(run) {
		t.Error("audit hash does not match the run's content hash")
	}

	job, found, err := store.ClaimDueAnchor(ctx, time.Now(), time.Minute)
	if err != nil || !found {
		t.Fatalf("expected a claimable anchor job, found=%v err=%v", found, err)
	}
	if job.RecordID != run.ID || job.ContentHash != history[0].ContentHash {
		t.Errorf("anchor job = %+v, want record %s", job, run.ID)
	}
}

type failingCommitter struct {
	ports.Committer
}

func (failingCommitter) CommitScoreRun(context.Context, domain.ScoreRun, domain.AuditEntry) error {
	return errors.New("audit storage unavailable")
}

func TestComputeCommitFailureLeavesNoState(t *testing.T) {
	m, err := registry.LoadMethodology([]byte(testMethodology))
	if err != nil {
		t.Fatal(err)
	}
	reg, err := registry.NewRegistry(m)
	if err != nil {
		t.Fatal(err)
	}
	store := memory.NewStore()
	svc := New(store, reg, auditsvc.New(failingCommitter{}, store), locks.NewKeyed())
	ctx := context.Background()

	_, err = svc.Compute(ctx, "marina-heights", "test.1",
		inputs(map[string]float64{"legal": 90, "construction": 80, "delivery": 70}))
	if err == nil {
		t.Fatal("Compute() must surface the commit failure")
	}

	// A failed commit is all-or-nothing: no run to serve, no audit entry,
	// no orphaned anchor job.
	if _, found, _ := store.LatestScoreRun(ctx, domain.AssetID("marina-heights")); found {
		t.Error("failed commit left a persisted run behind")
	}
	if history, _ := store.AuditHistory(ctx, domain.AssetID("marina-heights")); len(history) != 0 {
		t.Error("failed commit left audit entries behind")
	}
	if _, found, _ := store.ClaimDueAnchor(ctx, time.Now().Add(time.Hour), time.Minute); found {
		t.Error("failed commit left an anchor job behind")
	}
}

func TestCurrentRun(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.CurrentRun(ctx, "marina-heights"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
	want, err := svc.Compute(ctx, "marina-heights", "test.1",
		inputs(map[string]float64{"legal": 90, "construction": 80, "delivery": 70}))
	if err != nil {
		t.Fatal(err)
	}
	got, err := svc.CurrentRun(ctx, "marina-heights")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != want.ID {
		t.Errorf("CurrentRun() = %s, want %s", got.ID, want.ID)
	}
}
