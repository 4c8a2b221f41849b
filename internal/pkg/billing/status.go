package billing

import (
	"strings"

	"github.com/caangogi/local-digital-eye-sub000/app/models"
)

// SubscriptionStatusFromStripe maps a Stripe subscription status onto the
// internal state set. Transitional Stripe states collapse onto the nearest
// internal one.
func SubscriptionStatusFromStripe(status string) string {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "active":
		return models.SubscriptionActive
	case "trialing":
		// Checkout sessions built here never configure provider-side trials;
		// the freemium trial window is tracked locally instead.
		return models.SubscriptionActive
	case "past_due":
		return models.SubscriptionPastDue
	case "canceled", "incomplete_expired":
		return models.SubscriptionCanceled
	case "unpaid":
		return models.SubscriptionUnpaid
	case "incomplete", "paused":
		return models.SubscriptionPastDue
	default:
		return models.SubscriptionPastDue
	}
}
