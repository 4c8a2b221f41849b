package entitlements

import (
	"github.com/caangogi/local-digital-eye-sub000/internal/pkg/billing"
)

// Entitlements are the feature allowances a subscription tier unlocks.
// Controllers attach them to business responses so the dashboard can gate
// features without re-implementing tier logic client-side.
type Entitlements struct {
	MetricsHistoryDays int  `json:"metrics_history_days"`
	TopReviews         bool `json:"top_reviews"`
	ManualRefresh      bool `json:"manual_refresh"`
	PrioritySupport    bool `json:"priority_support"`
}

// ForTier returns the allowances of a tier. Unknown tiers fall back to the
// freemium set.
func ForTier(tier billing.Tier) Entitlements {
	switch tier {
	case billing.TierPremium:
		return Entitlements{
			MetricsHistoryDays: 365,
			TopReviews:         true,
			ManualRefresh:      true,
			PrioritySupport:    true,
		}
	case billing.TierProfessional:
		return Entitlements{
			MetricsHistoryDays: 90,
			TopReviews:         true,
			ManualRefresh:      true,
		}
	default:
		return Entitlements{
			MetricsHistoryDays: 30,
			TopReviews:         true,
			ManualRefresh:      true,
		}
	}
}

// ForPlan resolves a stored plan string, falling back to freemium when the
// value does not parse.
func ForPlan(plan string) Entitlements {
	tier, err := billing.ParseTier(plan)
	if err != nil {
		tier = billing.TierFreemium
	}
	return ForTier(tier)
}
