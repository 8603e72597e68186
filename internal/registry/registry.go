// Package registry loads and validates scoring methodologies and the
// evidence taxonomy. Both are immutable after load and shared across all
// request handlers without locking.
package registry

import (
	"embed"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"verona/internal/domain"
)

//go:embed builtin/*.yaml
var builtinFS embed.FS

// weightEpsilon bounds the allowed drift of the non-speculative weight sum
// from 1.0.
var weightEpsilon = decimal.New(1, -9)

// Component is one published scoring dimension of a methodology version.
type Component struct {
	Name        string
	Label       string
	Description string
	Weight      decimal.Decimal
	Min         decimal.Decimal
	Max         decimal.Decimal
	// Speculative components (forward-looking estimates) are carried for
	// display only: they must hold zero weight and are never scoreable.
	Speculative bool
}

// Band maps an inclusive lower bound to a quality grade.
type Band struct {
	Grade domain.Grade
	Min   decimal.Decimal
}

// Methodology is an immutable, versioned set of components, weights and
// bands. Historical score runs pin the version they were computed with.
type Methodology struct {
	Version   string
	ScoreMin  decimal.Decimal
	ScoreMax  decimal.Decimal
	Precision int32

	components []Component
	byName     map[string]Component
	// bands sorted by descending Min; lookup takes the first band whose
	// lower bound does not exceed the score.
	bands []Band
}

type methodologyDoc struct {
	Version    string  `yaml:"version"`
	ScoreMin   float64 `yaml:"score_min"`
	ScoreMax   float64 `yaml:"score_max"`
	Precision  int32   `yaml:"precision"`
	Components []struct {
		Name        string  `yaml:"name"`
		Label       string  `yaml:"label"`
		Description string  `yaml:"description"`
		Weight      float64 `yaml:"weight"`
		Min         float64 `yaml:"min"`
		Max         float64 `yaml:"max"`
		Speculative bool    `yaml:"speculative"`
	} `yaml:"components"`
	Bands []struct {
		Grade string  `yaml:"grade"`
		Min   float64 `yaml:"min"`
	} `yaml:"bands"`
}

// LoadMethodology parses and validates a methodology document. Any
// violation of the load-time invariants wraps domain.ErrInvalidMethodology.
func LoadMethodology(data []byte) (*Methodology, error) {
	var doc methodologyDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("registry.LoadMethodology: parse: %w: %v", domain.ErrInvalidMethodology, err)
	}

	m := &Methodology{
		Version:   doc.Version,
		ScoreMin:  decimal.NewFromFloat(doc.ScoreMin),
		ScoreMax:  decimal.NewFromFloat(doc.ScoreMax),
		Precision: doc.Precision,
		byName:    make(map[string]Component, len(doc.Components)),
	}
	if m.Version == "" {
		return nil, fmt.Errorf("registry.LoadMethodology: %w: missing version", domain.ErrInvalidMethodology)
	}
	if doc.Precision < 0 {
		return nil, fmt.Errorf("registry.LoadMethodology: %w: negative precision", domain.ErrInvalidMethodology)
	}
	if m.ScoreMin.IsNegative() {
		// A non-negative range keeps decimal's half-away-from-zero Round
		// equal to round-half-up for every composite.
		return nil, fmt.Errorf("registry.LoadMethodology: %w: negative score floor %s",
			domain.ErrInvalidMethodology, m.ScoreMin)
	}
	if !m.ScoreMax.GreaterThan(m.ScoreMin) {
		return nil, fmt.Errorf("registry.LoadMethodology: %w: score range %s..%s is empty",
			domain.ErrInvalidMethodology, m.ScoreMin, m.ScoreMax)
	}
	if len(doc.Components) == 0 {
		return nil, fmt.Errorf("registry.LoadMethodology: %w: no components", domain.ErrInvalidMethodology)
	}

	weightSum := decimal.Zero
	for _, c := range doc.Components {
		comp := Component{
			Name:        c.Name,
			Label:       c.Label,
			Description: c.Description,
			Weight:      decimal.NewFromFloat(c.Weight),
			Min:         decimal.NewFromFloat(c.Min),
			Max:         decimal.NewFromFloat(c.Max),
			Speculative: c.Speculative,
		}
		if comp.Name == "" {
			return nil, fmt.Errorf("registry.LoadMethodology: %w: unnamed component", domain.ErrInvalidMethodology)
		}
		if _, dup := m.byName[comp.Name]; dup {
			return nil, fmt.Errorf("registry.LoadMethodology: %w: duplicate component %q",
				domain.ErrInvalidMethodology, comp.Name)
		}
		if comp.Weight.IsNegative() {
			return nil, fmt.Errorf("registry.LoadMethodology: %w: component %q has negative weight",
				domain.ErrInvalidMethodology, comp.Name)
		}
		if comp.Speculative && !comp.Weight.IsZero() {
			// Governance rule: forward-looking components may never carry
			// weight in a published methodology.
			return nil, fmt.Errorf("registry.LoadMethodology: %w: speculative component %q has nonzero weight",
				domain.ErrInvalidMethodology, comp.Name)
		}
		if !comp.Max.GreaterThan(comp.Min) {
			return nil, fmt.Errorf("registry.LoadMethodology: %w: component %q has empty sub-score range",
				domain.ErrInvalidMethodology, comp.Name)
		}
		if !comp.Speculative {
			weightSum = weightSum.Add(comp.Weight)
		}
		m.components = append(m.components, comp)
		m.byName[comp.Name] = comp
	}
	if weightSum.Sub(decimal.NewFromInt(1)).Abs().GreaterThan(weightEpsilon) {
		return nil, fmt.Errorf("registry.LoadMethodology: %w: weights sum to %s, want 1",
			domain.ErrInvalidMethodology, weightSum)
	}

	if len(doc.Bands) == 0 {
		return nil, fmt.Errorf("registry.LoadMethodology: %w: no bands", domain.ErrInvalidMethodology)
	}
	seen := make(map[domain.Grade]bool, len(doc.Bands))
	for _, b := range doc.Bands {
		grade := domain.Grade(b.Grade)
		if grade == "" {
			return nil, fmt.Errorf("registry.LoadMethodology: %w: band without grade", domain.ErrInvalidMethodology)
		}
		if seen[grade] {
			return nil, fmt.Errorf("registry.LoadMethodology: %w: duplicate band grade %q",
				domain.ErrInvalidMethodology, grade)
		}
		seen[grade] = true
		m.bands = append(m.bands, Band{Grade: grade, Min: decimal.NewFromFloat(b.Min)})
	}
	sort.Slice(m.bands, func(i, j int) bool { return m.bands[i].Min.GreaterThan(m.bands[j].Min) })
	for i, b := range m.bands {
		if b.Min.LessThan(m.ScoreMin) || b.Min.GreaterThan(m.ScoreMax) {
			return nil, fmt.Errorf("registry.LoadMethodology: %w: band %q lower bound %s outside score range",
				domain.ErrInvalidMethodology, b.Grade, b.Min)
		}
		if i > 0 && b.Min.Equal(m.bands[i-1].Min) {
			return nil, fmt.Errorf("registry.LoadMethodology: %w: bands %q and %q overlap at %s",
				domain.ErrInvalidMethodology, m.bands[i-1].Grade, b.Grade, b.Min)
		}
	}
	// Contiguity and exhaustiveness: the lowest band must start at the
	// range floor; each band then covers up to the next higher bound.
	if !m.bands[len(m.bands)-1].Min.Equal(m.ScoreMin) {
		return nil, fmt.Errorf("registry.LoadMethodology: %w: bands leave a gap below %s",
			domain.ErrInvalidMethodology, m.bands[len(m.bands)-1].Min)
	}
	return m, nil
}

// LoadBuiltinMethodology loads an embedded methodology by name.
func LoadBuiltinMethodology(name string) (*Methodology, error) {
	data, err := builtinFS.ReadFile("builtin/" + name + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("registry.LoadBuiltinMethodology: unknown methodology %q: %w", name, err)
	}
	return LoadMethodology(data)
}

// Components returns all published components in declaration order.
func (m *Methodology) Components() []Component { return m.components }

// Component looks up a component by name.
func (m *Methodology) Component(name string) (Component, bool) {
	c, ok := m.byName[name]
	return c, ok
}

// Required returns the components a score run must supply inputs for, i.e.
// every non-speculative component.
func (m *Methodology) Required() []Component {
	req := make([]Component, 0, len(m.components))
	for _, c := range m.components {
		if !c.Speculative {
			req = append(req, c)
		}
	}
	return req
}

// GradeFor maps a composite score to its band. Bands are tested in
// descending order; the first inclusive lower bound at or below the score
// wins. Scores below the range floor cannot occur for validated inputs.
func (m *Methodology) GradeFor(score decimal.Decimal) domain.Grade {
	for _, b := range m.bands {
		if b.Min.LessThanOrEqual(score) {
			return b.Grade
		}
	}
	return m.bands[len(m.bands)-1].Grade
}

// Bands returns the bands in descending lower-bound order.
func (m *Methodology) Bands() []Band { return m.bands }

// Registry holds all validated methodology versions for the process.
type Registry struct {
	byVersion map[string]*Methodology
}

// NewRegistry indexes validated methodologies by version.
func NewRegistry(methodologies ...*Methodology) (*Registry, error) {
	r := &Registry{byVersion: make(map[string]*Methodology, len(methodologies))}
	for _, m := range methodologies {
		if _, dup := r.byVersion[m.Version]; dup {
			return nil, fmt.Errorf("registry.NewRegistry: %w: duplicate version %q",
				domain.ErrInvalidMethodology, m.Version)
		}
		r.byVersion[m.Version] = m
	}
	return r, nil
}

// Methodology returns the methodology for a version.
func (r *Registry) Methodology(version string) (*Methodology, error) {
	m, ok := r.byVersion[version]
	if !ok {
		return nil, fmt.Errorf("registry: %w: no methodology version %q", domain.ErrInvalidMethodology, version)
	}
	return m, nil
}
