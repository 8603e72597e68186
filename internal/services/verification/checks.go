package verification

import (
	"time"

	"verona/internal/domain"
)

// The check list is fixed: each check is a named boolean gate over the
// projected evidence set, bound to the lowest tier that requires it.
// Requirements are cumulative, so holding tier N implies every check of
// tiers 1..N-1 still passes.

type packView struct {
	evs     []domain.Evidence
	summary domain.EvidencePackSummary
	now     time.Time
}

func (v packView) verifiedInCategory(category string) bool {
	for _, ev := range v.evs {
		if ev.Category == category && ev.EffectiveStatus(v.now) == domain.EvidenceVerified {
			return true
		}
	}
	return false
}

func (v packView) verifiedOfType(types ...string) bool {
	for _, ev := range v.evs {
		if ev.EffectiveStatus(v.now) != domain.EvidenceVerified {
			continue
		}
		for _, t := range types {
			if ev.Type == t {
				return true
			}
		}
	}
	return false
}

type check struct {
	name string
	tier domain.VerificationTier
	pass func(packView) bool
}

var checks = []check{
	{
		name: "legal_documents_verified",
		tier: domain.VerificationTier1,
		pass: func(v packView) bool { return v.verifiedInCategory("legal") },
	},
	{
		name: "construction_approval_verified",
		tier: domain.VerificationTier2,
		pass: func(v packView) bool { return v.verifiedOfType("building_permit", "completion_certificate") },
	},
	{
		name: "site_inspection_completed",
		tier: domain.VerificationTier3,
		pass: func(v packView) bool { return v.verifiedInCategory("inspection") },
	},
	{
		name: "financials_verified",
		tier: domain.VerificationTier4,
		pass: func(v packView) bool { return v.verifiedInCategory("financial") },
	},
	{
		name: "evidence_pack_complete",
		tier: domain.VerificationTier4,
		pass: func(v packView) bool {
			return v.summary.TotalDocuments > 0 && v.summary.VerifiedDocuments == v.summary.TotalDocuments
		},
	},
}

// runChecks evaluates every gate and returns the results plus the highest
// tier whose cumulative requirements all hold.
func runChecks(v packView) ([]domain.CheckResult, domain.VerificationTier) {
	results := make([]domain.CheckResult, 0, len(checks))
	passed := make(map[string]bool, len(checks))
	for _, c := range checks {
		ok := c.pass(v)
		results = append(results, domain.CheckResult{Name: c.name, Passed: ok})
		passed[c.name] = ok
	}

	tier := domain.VerificationTierNone
	for t := domain.VerificationTier1; t <= domain.VerificationTier4; t++ {
		holds := true
		for _, c := range checks {
			if c.tier <= t && !passed[c.name] {
				holds = false
				break
			}
		}
		if !holds {
			break
		}
		tier = t
	}
	return results, tier
}
