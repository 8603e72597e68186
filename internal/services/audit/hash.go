package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"time"

	"verona/internal/domain"
)

// Content hashes cover the computation fields of a record, never its
// mutable anchor status. Serialization is canonical: map keys sort on
// marshal and list fields are ordered by name, so field order in memory
// cannot change the hash. The hash, not the payload, goes to the ledger.

func canonicalHash(payload map[string]any) string {
	b, err := json.Marshal(payload)
	if err != nil {
		// Payloads are built from plain strings, bools and slices; a
		// marshal failure is a programming error.
		panic(err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// HashScoreRun returns the anchorable content hash of a score run.
func HashScoreRun(run domain.ScoreRun) string {
	inputs := make([]domain.ComponentInput, len(run.Inputs))
	copy(inputs, run.Inputs)
	sort.Slice(inputs, func(i, j int) bool { return inputs[i].Name < inputs[j].Name })

	serialized := make([]map[string]any, 0, len(inputs))
	for _, in := range inputs {
		refs := make([]string, len(in.EvidenceRefs))
		copy(refs, in.EvidenceRefs)
		sort.Strings(refs)
		serialized = append(serialized, map[string]any{
			"name":          in.Name,
			"sub_score":     in.SubScore.String(),
			"evidence_refs": refs,
		})
	}
	return canonicalHash(map[string]any{
		"kind":                string(domain.KindScoreRun),
		"id":                  run.ID,
		"asset_id":            run.AssetID,
		"methodology_version": run.MethodologyVersion,
		"inputs":              serialized,
		"composite":           run.Composite.String(),
		"grade":               string(run.Grade),
		"created_at":          run.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
}

// HashAttestation returns the anchorable content hash of an attestation.
func HashAttestation(att domain.Attestation) string {
	checks := make([]domain.CheckResult, len(att.Checks))
	copy(checks, att.Checks)
	sort.Slice(checks, func(i, j int) bool { return checks[i].Name < checks[j].Name })

	serialized := make([]map[string]any, 0, len(checks))
	for _, c := range checks {
		serialized = append(serialized, map[string]any{"name": c.Name, "passed": c.Passed})
	}
	return canonicalHash(map[string]any{
		"kind":        string(domain.KindAttestation),
		"id":          att.ID,
		"asset_id":    att.AssetID,
		"tier":        int(att.Tier),
		"checks":      serialized,
		"disputed":    att.Disputed,
		"valid_from":  att.ValidFrom.UTC().Format(time.RFC3339Nano),
		"valid_until": att.ValidUntil.UTC().Format(time.RFC3339Nano),
		"created_at":  att.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
}
