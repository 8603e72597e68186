// Package scoring implements the score aggregator: validated component
// inputs in, one immutable ScoreRun out. Validation precedes any write, so
// a rejected request leaves no partial state.
package scoring

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"verona/internal/domain"
	"verona/internal/locks"
	"verona/internal/ports"
	"verona/internal/registry"
)

type Service struct {
	runs     ports.ScoreRunRepository
	registry *registry.Registry
	recorder ports.Recorder
	locks    *locks.Keyed
	now      func() time.Time
}

func New(runs ports.ScoreRunRepository, reg *registry.Registry, recorder ports.Recorder, keyed *locks.Keyed) *Service {
	return &Service{runs: runs, registry: reg, recorder: recorder, locks: keyed, now: time.Now}
}

// Compute evaluates an entity against a methodology version. Every
// non-speculative component must have exactly one in-range input; silent
// defaulting is disallowed so a hidden zero can never depress a grade.
func (s *Service) Compute(ctx context.Context, slug, methodologyVersion string, inputs []domain.ComponentInput) (domain.ScoreRun, error) {
	meth, err := s.registry.Methodology(methodologyVersion)
	if err != nil {
		return domain.ScoreRun{}, err
	}

	byName := make(map[string]domain.ComponentInput, len(inputs))
	for _, in := range inputs {
		comp, ok := meth.Component(in.Name)
		if !ok {
			return domain.ScoreRun{}, fmt.Errorf("scoring.Compute: %w: %q", domain.ErrUnknownComponent, in.Name)
		}
		if comp.Speculative {
			return domain.ScoreRun{}, fmt.Errorf("scoring.Compute: %w: %q is speculative and not scoreable",
				domain.ErrUnknownComponent, in.Name)
		}
		if _, dup := byName[in.Name]; dup {
			return domain.ScoreRun{}, fmt.Errorf("scoring.Compute: %w: duplicate input %q",
				domain.ErrUnknownComponent, in.Name)
		}
		if in.SubScore.LessThan(comp.Min) || in.SubScore.GreaterThan(comp.Max) {
			return domain.ScoreRun{}, fmt.Errorf("scoring.Compute: %w: %q = %s, want %s..%s",
				domain.ErrSubScoreOutOfRange, in.Name, in.SubScore, comp.Min, comp.Max)
		}
		byName[in.Name] = in
	}

	required := meth.Required()
	for _, comp := range required {
		if _, ok := byName[comp.Name]; !ok {
			return domain.ScoreRun{}, fmt.Errorf("scoring.Compute: %w: %q", domain.ErrMissingComponent, comp.Name)
		}
	}

	// Composite = Σ weight × sub-score, each sub-score normalized onto the
	// methodology's score range. Decimal arithmetic keeps the result exact;
	// Round is half away from zero, which on a non-negative scale is
	// round-half-up.
	span := meth.ScoreMax.Sub(meth.ScoreMin)
	total := decimal.Zero
	for _, comp := range required {
		in := byName[comp.Name]
		frac := in.SubScore.Sub(comp.Min).Div(comp.Max.Sub(comp.Min))
		normalized := meth.ScoreMin.Add(frac.Mul(span))
		total = total.Add(comp.Weight.Mul(normalized))
	}
	composite := total.Round(meth.Precision)
	grade := meth.GradeFor(composite)

	stored := make([]domain.ComponentInput, 0, len(byName))
	for _, in := range byName {
		stored = append(stored, in)
	}
	sort.Slice(stored, func(i, j int) bool { return stored[i].Name < stored[j].Name })

	assetID := domain.AssetID(slug)
	unlock := s.locks.Lock(assetID)
	defer unlock()

	prev, hasPrev, err := s.runs.LatestScoreRun(ctx, assetID)
	if err != nil {
		return domain.ScoreRun{}, fmt.Errorf("scoring.Compute: previous run: %w", err)
	}

	run := domain.ScoreRun{
		ID:                 uuid.NewString(),
		AssetID:            assetID,
		Slug:               slug,
		MethodologyVersion: methodologyVersion,
		Inputs:             stored,
		Composite:          composite,
		Grade:              grade,
		AnchorStatus:       domain.AnchorPending,
		CreatedAt:          s.now().UTC(),
	}
	if hasPrev {
		run.Diff = diffRuns(prev, run)
	}

	// The recorder commits the run, its audit entry and the anchor job in
	// one atomic write; on error nothing is observable.
	if err := s.recorder.RecordScoreRun(ctx, run); err != nil {
		return domain.ScoreRun{}, fmt.Errorf("scoring.Compute: record: %w", err)
	}
	return run, nil
}

// CurrentRun returns the entity's latest score run.
func (s *Service) CurrentRun(ctx context.Context, slug string) (domain.ScoreRun, error) {
	run, found, err := s.runs.LatestScoreRun(ctx, domain.AssetID(slug))
	if err != nil {
		return domain.ScoreRun{}, err
	}
	if !found {
		return domain.ScoreRun{}, fmt.Errorf("scoring.CurrentRun: %w: no run for %q", domain.ErrNotFound, slug)
	}
	return run, nil
}

// diffRuns records the component-level delta between consecutive runs for
// audit display.
func diffRuns(prev, cur domain.ScoreRun) *domain.ScoreDiff {
	prevByName := make(map[string]domain.ComponentInput, len(prev.Inputs))
	for _, in := range prev.Inputs {
		prevByName[in.Name] = in
	}
	curByName := make(map[string]domain.ComponentInput, len(cur.Inputs))
	for _, in := range cur.Inputs {
		curByName[in.Name] = in
	}

	d := &domain.ScoreDiff{
		PreviousRunID: prev.ID,
		ScoreFrom:     prev.Composite,
		ScoreTo:       cur.Composite,
		GradeFrom:     prev.Grade,
		GradeTo:       cur.Grade,
	}
	for _, in := range cur.Inputs {
		old, ok := prevByName[in.Name]
		if !ok {
			d.Added = append(d.Added, in.Name)
			continue
		}
		if !old.SubScore.Equal(in.SubScore) {
			d.Changed = append(d.Changed, domain.ComponentDelta{Name: in.Name, From: old.SubScore, To: in.SubScore})
		}
	}
	for _, in := range prev.Inputs {
		if _, ok := curByName[in.Name]; !ok {
			d.Removed = append(d.Removed, in.Name)
		}
	}
	sort.Strings(d.Added)
	sort.Strings(d.Removed)
	sort.Slice(d.Changed, func(i, j int) bool { return d.Changed[i].Name < d.Changed[j].Name })
	return d
}
