package evidence

import (
	"time"

	"verona/internal/domain"
)

// BuildSummary derives an evidence pack summary from a raw evidence set,
// applying the effective-status projection at now. Completion is
// evidence-driven: the denominator is the set of submitted documents, so a
// category nobody has submitted to does not count against the entity. The
// verification checks, not this percentage, enforce which categories a
// higher tier demands.
func BuildSummary(slug string, evs []domain.Evidence, now time.Time) domain.EvidencePackSummary {
	summary := domain.EvidencePackSummary{
		AssetID:    domain.AssetID(slug),
		Slug:       slug,
		Categories: make(map[string]domain.CategorySummary),
	}
	for _, ev := range evs {
		bucket := summary.Categories[ev.Category]
		bucket.Total++
		summary.TotalDocuments++
		if ev.EffectiveStatus(now) == domain.EvidenceVerified {
			bucket.Verified++
			summary.VerifiedDocuments++
		}
		summary.Categories[ev.Category] = bucket
	}
	for cat, bucket := range summary.Categories {
		bucket.Complete = bucket.Verified == bucket.Total
		summary.Categories[cat] = bucket
	}
	if summary.TotalDocuments > 0 {
		summary.Completion = float64(summary.VerifiedDocuments) / float64(summary.TotalDocuments) * 100
	}
	return summary
}
