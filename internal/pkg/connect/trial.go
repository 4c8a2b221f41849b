package connect

import (
	"context"
	"time"

	"github.com/caangogi/local-digital-eye-sub000/app/models"
	"github.com/caangogi/local-digital-eye-sub000/internal/pkg/billing"
	"github.com/caangogi/local-digital-eye-sub000/internal/pkg/faults"
)

// ExtendTrial pushes the trial window out by daysToAdd, measured from the
// current trial end or from now, whichever is later. A lapsed trial is
// re-activated: the status flips back to trialing on the freemium plan.
// Only the connecting user may extend.
func (s *Service) ExtendTrial(ctx context.Context, businessID, callerID string, daysToAdd int) (*models.Business, error) {
	if callerID == "" {
		return nil, faults.ErrUnauthenticated
	}
	if daysToAdd <= 0 {
		return nil, &faults.ValidationError{Field: "days", Reason: "must be positive"}
	}

	b, err := s.store.Get(ctx, businessID)
	if err != nil {
		return nil, err
	}
	if b.ConnectorUserID != callerID {
		return nil, faults.ErrUnauthorized
	}
	loadedVersion := b.Version

	now := s.now()
	base := now
	if b.TrialEndsAt != nil && b.TrialEndsAt.After(now) {
		base = *b.TrialEndsAt
	}
	ends := base.Add(time.Duration(daysToAdd) * 24 * time.Hour)
	b.TrialEndsAt = &ends
	if b.SubscriptionStatus != models.SubscriptionTrialing {
		b.SubscriptionPlan = string(billing.TierFreemium)
		b.SubscriptionStatus = models.SubscriptionTrialing
	}

	// Versioned write: a webhook landing between the read and this save
	// surfaces as a conflict instead of silently losing its update.
	if err := s.store.SaveVersioned(ctx, b, loadedVersion); err != nil {
		return nil, err
	}
	return b, nil
}
