package registry

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"verona/internal/domain"
)

// EvidenceType is one entry of the fixed evidence taxonomy. Every type
// belongs to exactly one category.
type EvidenceType struct {
	Name     string
	Label    string
	Category string
}

// Taxonomy is the fixed catalogue of accepted evidence types, read-only
// after load.
type Taxonomy struct {
	types  []EvidenceType
	byName map[string]EvidenceType
}

type taxonomyDoc struct {
	Types []struct {
		Name     string `yaml:"name"`
		Label    string `yaml:"label"`
		Category string `yaml:"category"`
	} `yaml:"types"`
}

// LoadTaxonomy parses and validates a taxonomy document.
func LoadTaxonomy(data []byte) (*Taxonomy, error) {
	var doc taxonomyDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("registry.LoadTaxonomy: parse: %v", err)
	}
	if len(doc.Types) == 0 {
		return nil, fmt.Errorf("registry.LoadTaxonomy: no evidence types")
	}
	t := &Taxonomy{byName: make(map[string]EvidenceType, len(doc.Types))}
	for _, raw := range doc.Types {
		et := EvidenceType{Name: raw.Name, Label: raw.Label, Category: raw.Category}
		if et.Name == "" || et.Category == "" {
			return nil, fmt.Errorf("registry.LoadTaxonomy: type %q needs name and category", et.Name)
		}
		if _, dup := t.byName[et.Name]; dup {
			return nil, fmt.Errorf("registry.LoadTaxonomy: duplicate type %q", et.Name)
		}
		t.types = append(t.types, et)
		t.byName[et.Name] = et
	}
	return t, nil
}

// LoadBuiltinTaxonomy loads the embedded default taxonomy.
func LoadBuiltinTaxonomy() (*Taxonomy, error) {
	data, err := builtinFS.ReadFile("builtin/taxonomy.yaml")
	if err != nil {
		return nil, fmt.Errorf("registry.LoadBuiltinTaxonomy: %w", err)
	}
	return LoadTaxonomy(data)
}

// Lookup resolves an evidence type name; unknown names wrap
// domain.ErrUnknownEvidenceType.
func (t *Taxonomy) Lookup(name string) (EvidenceType, error) {
	et, ok := t.byName[name]
	if !ok {
		return EvidenceType{}, fmt.Errorf("%w: %q", domain.ErrUnknownEvidenceType, name)
	}
	return et, nil
}

// Types returns all accepted evidence types in declaration order.
func (t *Taxonomy) Types() []EvidenceType { return t.types }
