package evidence

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"verona/internal/adapters/memory"
	"verona/internal/domain"
	"verona/internal/locks"
	"verona/internal/registry"
)

func newTestService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	taxonomy, err := registry.LoadBuiltinTaxonomy()
	if err != nil {
		t.Fatal(err)
	}
	store := memory.NewStore()
	return New(store, taxonomy, locks.NewKeyed()), store
}

func TestSubmit(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	ev, err := svc.Submit(ctx, "marina-heights", domain.EvidenceSubmission{
		Type:     "title_deed",
		FileRef:  "s3://evidence/deed.pdf",
		FileName: "deed.pdf",
		FileSize: 2048,
	})
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
	if ev.Status != domain.EvidencePending {
		t.Errorf("status = %q, want pending", ev.Status)
	}
	if ev.Category != "legal" {
		t.Errorf("category = %q, want legal (resolved from taxonomy)", ev.Category)
	}
	if ev.AssetID != domain.AssetID("marina-heights") {
		t.Error("evidence not keyed by the slug's asset id")
	}
	stored, err := store.GetEvidence(ctx, ev.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.FileRef != "s3://evidence/deed.pdf" {
		t.Errorf("stored file ref = %q", stored.FileRef)
	}
}

func TestSubmitUnknownType(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Submit(context.Background(), "marina-heights", domain.EvidenceSubmission{Type: "horoscope"})
	if !errors.Is(err, domain.ErrUnknownEvidenceType) {
		t.Errorf("error = %v, want ErrUnknownEvidenceType", err)
	}
}

func TestReview(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	submit := func(t *testing.T) domain.Evidence {
		t.Helper()
		ev, err := svc.Submit(ctx, "marina-heights", domain.EvidenceSubmission{Type: "title_deed"})
		if err != nil {
			t.Fatal(err)
		}
		return ev
	}

	t.Run("verify", func(t *testing.T) {
		ev := submit(t)
		got, err := svc.Review(ctx, ev.ID, domain.EvidenceVerified, "reviewer-7")
		if err != nil {
			t.Fatalf("Review() error: %v", err)
		}
		if got.Status != domain.EvidenceVerified {
			t.Errorf("status = %q, want verified", got.Status)
		}
		if got.ReviewerID != "reviewer-7" {
			t.Errorf("reviewer = %q, want reviewer-7", got.ReviewerID)
		}
		if got.VerifiedAt == nil {
			t.Error("verified evidence must carry VerifiedAt")
		}
	})

	t.Run("reject", func(t *testing.T) {
		ev := submit(t)
		got, err := svc.Review(ctx, ev.ID, domain.EvidenceRejected, "reviewer-7")
		if err != nil {
			t.Fatalf("Review() error: %v", err)
		}
		if got.Status != domain.EvidenceRejected {
			t.Errorf("status = %q, want rejected", got.Status)
		}
		if got.VerifiedAt != nil {
			t.Error("rejected evidence must not carry VerifiedAt")
		}
	})

	t.Run("already reviewed", func(t *testing.T) {
		ev := submit(t)
		if _, err := svc.Review(ctx, ev.ID, domain.EvidenceVerified, "reviewer-7"); err != nil {
			t.Fatal(err)
		}
		_, err := svc.Review(ctx, ev.ID, domain.EvidenceRejected, "reviewer-8")
		if !errors.Is(err, domain.ErrInvalidTransition) {
			t.Errorf("second review error = %v, want ErrInvalidTransition", err)
		}
	})

	t.Run("invalid outcome", func(t *testing.T) {
		ev := submit(t)
		for _, outcome := range []domain.EvidenceStatus{domain.EvidencePending, domain.EvidenceExpired, "approved"} {
			if _, err := svc.Review(ctx, ev.ID, outcome, "reviewer-7"); !errors.Is(err, domain.ErrInvalidTransition) {
				t.Errorf("Review(%q) error = %v, want ErrInvalidTransition", outcome, err)
			}
		}
	})

	t.Run("unknown evidence", func(t *testing.T) {
		_, err := svc.Review(ctx, "no-such-id", domain.EvidenceVerified, "reviewer-7")
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("error = %v, want ErrNotFound", err)
		}
	})
}

func TestSummarizeExpiryProjection(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	submitVerified := func(t *testing.T, typ string, expires *time.Time) domain.Evidence {
		t.Helper()
		ev, err := svc.Submit(ctx, "marina-heights", domain.EvidenceSubmission{Type: typ, ExpiresAt: expires})
		if err != nil {
			t.Fatal(err)
		}
		ev, err = svc.Review(ctx, ev.ID, domain.EvidenceVerified, "reviewer-7")
		if err != nil {
			t.Fatal(err)
		}
		return ev
	}

	past := now.Add(-24 * time.Hour)
	future := now.Add(24 * time.Hour)
	expired := submitVerified(t, "title_deed", &past)
	submitVerified(t, "encumbrance_certificate", &future)
	if _, err := svc.Submit(ctx, "marina-heights", domain.EvidenceSubmission{Type: "building_permit"}); err != nil {
		t.Fatal(err)
	}

	summary, err := svc.Summarize(ctx, "marina-heights")
	if err != nil {
		t.Fatalf("Summarize() error: %v", err)
	}
	if summary.TotalDocuments != 3 || summary.VerifiedDocuments != 1 {
		t.Errorf("total/verified = %d/%d, want 3/1", summary.TotalDocuments, summary.VerifiedDocuments)
	}
	legal := summary.Categories["legal"]
	if legal.Total != 2 || legal.Verified != 1 || legal.Complete {
		t.Errorf("legal bucket = %+v, want 2 total, 1 verified, incomplete", legal)
	}
	construction := summary.Categories["construction"]
	if construction.Total != 1 || construction.Verified != 0 {
		t.Errorf("construction bucket = %+v, want 1 pending", construction)
	}

	// The projection is read-time only: the stored record stays verified.
	stored, err := store.GetEvidence(ctx, expired.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != domain.EvidenceVerified {
		t.Errorf("stored status = %q, want verified (expiry is never written back)", stored.Status)
	}
	if stored.EffectiveStatus(now) != domain.EvidenceExpired {
		t.Errorf("effective status = %q, want expired", stored.EffectiveStatus(now))
	}
}

func TestSummarizePartialCategoryCoverage(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	// Three of five categories represented, every document verified: the
	// denominator is the submitted set, so completion reads 100%.
	for _, typ := range []string{"title_deed", "building_permit", "site_visit_report"} {
		ev, err := svc.Submit(ctx, "marina-heights", domain.EvidenceSubmission{Type: typ})
		if err != nil {
			t.Fatal(err)
		}
		if _, err := svc.Review(ctx, ev.ID, domain.EvidenceVerified, "reviewer-1"); err != nil {
			t.Fatal(err)
		}
	}

	summary, err := svc.Summarize(ctx, "marina-heights")
	if err != nil {
		t.Fatal(err)
	}
	if summary.Completion != 100 {
		t.Errorf("completion = %v, want 100", summary.Completion)
	}
	if len(summary.Categories) != 3 {
		t.Errorf("categories = %d, want 3 (unrepresented categories excluded)", len(summary.Categories))
	}
	for cat, bucket := range summary.Categories {
		if !bucket.Complete {
			t.Errorf("category %s incomplete: %+v", cat, bucket)
		}
	}
}

func TestSummarizeDeterministic(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	svc.now = func() time.Time { return time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC) }

	for _, typ := range []string{"title_deed", "building_permit", "site_visit_report"} {
		if _, err := svc.Submit(ctx, "marina-heights", domain.EvidenceSubmission{Type: typ}); err != nil {
			t.Fatal(err)
		}
	}

	first, err := svc.Summarize(ctx, "marina-heights")
	if err != nil {
		t.Fatal(err)
	}
	second, err := svc.Summarize(ctx, "marina-heights")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("summaries differ:\n%+v\n%+v", first, second)
	}
}

func TestSummarizeEmptyPack(t *testing.T) {
	svc, _ := newTestService(t)

	summary, err := svc.Summarize(context.Background(), "ghost-tower")
	if err != nil {
		t.Fatal(err)
	}
	if summary.TotalDocuments != 0 || summary.Completion != 0 {
		t.Errorf("empty pack summary = %+v, want zeroes", summary)
	}
	if len(summary.Categories) != 0 {
		t.Errorf("empty pack categories = %v, want none", summary.Categories)
	}
}
