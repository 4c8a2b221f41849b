package connect

import (
	"context"
	"errors"
	"net/url"

	"github.com/gofiber/fiber/v2/log"

	"github.com/caangogi/local-digital-eye-sub000/app/models"
	"github.com/caangogi/local-digital-eye-sub000/internal/pkg/billing"
	"github.com/caangogi/local-digital-eye-sub000/internal/pkg/constants"
	"github.com/caangogi/local-digital-eye-sub000/internal/pkg/gbp"
)

// CallbackInput is the identity provider's redirect back to us.
type CallbackInput struct {
	Code          string
	State         string
	ProviderError string
}

// Redirect is where an interactive flow sends the browser next. Interactive
// flows never surface errors as errors; every failure becomes a redirect
// with an error flag.
type Redirect struct {
	Location string
}

// HandleCallback processes the provider redirect and branches into direct
// activation (freemium) or the billing handoff (paid tiers). The paid branch
// deliberately does NOT exchange the authorization code yet: redeeming it
// before payment would leave a live grant with no clean way to revoke if the
// user abandons checkout. The code travels through checkout metadata and is
// redeemed by the webhook processor after payment.
func (s *Service) HandleCallback(ctx context.Context, in CallbackInput) Redirect {
	if in.ProviderError != "" || in.Code == "" || in.State == "" {
		return listRedirect("oauth_denied")
	}

	state, err := s.codec.VerifyState(in.State)
	if err != nil {
		return errRedirect("oauth_failed", "state verification failed")
	}

	b, err := s.store.Get(ctx, state.BusinessID)
	if err != nil {
		return errRedirect("oauth_failed", "unknown business")
	}

	if !state.Plan.IsPaid() {
		return s.activateFreemium(ctx, b.ID, state.UserID, in.Code)
	}
	return s.billingHandoff(ctx, b.ID, state.UserID, state.Plan, in.Code)
}

func (s *Service) activateFreemium(ctx context.Context, businessID, userID, code string) Redirect {
	grant, err := s.identity.ExchangeCode(ctx, code)
	if err != nil {
		if errors.Is(err, gbp.ErrNoRefreshToken) {
			// Forced re-consent should prevent this; if it happens anyway the
			// grant is unusable and the user must go through consent again.
			log.Errorf("[connect] business %s: %v", businessID, err)
			return errRedirect("oauth_failed", "no refresh token granted")
		}
		log.Errorf("[connect] business %s: token exchange failed: %v", businessID, err)
		return errRedirect("oauth_failed", "token exchange failed")
	}

	b, err := s.store.Get(ctx, businessID)
	if err != nil {
		return errRedirect("oauth_failed", "unknown business")
	}
	b.MarkLinked(grant.AccessToken, grant.RefreshToken, grant.Expiry)
	if err := b.AssignOwner(userID); err != nil {
		return errRedirect("oauth_failed", "business already claimed")
	}
	b.StartTrial(s.now())

	if err := s.store.Save(ctx, b); err != nil {
		log.Errorf("[connect] business %s: save after activation failed: %v", businessID, err)
		return errRedirect("critical", "could not persist connection")
	}

	return Redirect{Location: constants.DashboardRoute + "?success=oauth_completed&business_name=" + url.QueryEscape(b.Name)}
}

// billingHandoff is phase 1 of the deferred exchange: consent obtained, code
// not yet redeemed. The chosen plan and the billing customer id are
// persisted before the redirect so a later webhook can always locate the
// record, even when the user abandons checkout. That partial state is inert.
func (s *Service) billingHandoff(ctx context.Context, businessID, userID string, plan billing.Plan, code string) Redirect {
	b, err := s.store.Get(ctx, businessID)
	if err != nil {
		return errRedirect("oauth_failed", "unknown business")
	}

	email, name, err := s.users.Lookup(ctx, userID)
	if err != nil {
		log.Errorf("[connect] business %s: user lookup failed: %v", businessID, err)
		return errRedirect("billing_failed", "could not resolve account details")
	}

	customerID, err := s.billing.EnsureCustomer(ctx, b, userID, email, name)
	if err != nil {
		log.Errorf("[connect] business %s: customer creation failed: %v", businessID, err)
		return errRedirect("billing_failed", "could not create billing customer")
	}

	b.SubscriptionPlan = string(plan.Tier)
	b.BillingCustomerID = customerID
	// A trialing record cannot carry a paid plan; the local freemium trial
	// ends at the handoff and the webhook writes the final subscription state.
	if b.SubscriptionStatus == models.SubscriptionTrialing {
		b.SubscriptionStatus = ""
		b.TrialEndsAt = nil
	}
	if err := s.store.Save(ctx, b); err != nil {
		log.Errorf("[connect] business %s: save before checkout failed: %v", businessID, err)
		return errRedirect("critical", "could not persist billing state")
	}

	sess, err := s.billing.CreateCheckoutSession(ctx, billing.CheckoutInput{
		Business:         b,
		CustomerID:       customerID,
		UserID:           userID,
		Plan:             plan,
		DeferredAuthCode: code,
	})
	if err != nil {
		log.Errorf("[connect] business %s: checkout session failed: %v", businessID, err)
		return errRedirect("billing_failed", "could not start checkout")
	}

	return Redirect{Location: sess.URL}
}

func errRedirect(code, description string) Redirect {
	return Redirect{Location: constants.DashboardRoute + "?error=" + url.QueryEscape(code) + "&error_description=" + url.QueryEscape(description)}
}

func listRedirect(code string) Redirect {
	return Redirect{Location: constants.BusinessListRoute + "?error=" + url.QueryEscape(code)}
}
