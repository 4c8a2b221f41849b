// Package connect orchestrates the business connection and subscription
// activation pipeline: consent start, provider callback, billing handoff and
// billing webhook processing. These steps span three systems with no shared
// transaction, so every operation here is written to be idempotent and to
// converge on the same final business state regardless of delivery order.
package connect

import (
	"context"
	"time"

	"github.com/stripe/stripe-go/v82"

	"github.com/caangogi/local-digital-eye-sub000/app/models"
	"github.com/caangogi/local-digital-eye-sub000/internal/pkg/billing"
	"github.com/caangogi/local-digital-eye-sub000/internal/pkg/businessstore"
	"github.com/caangogi/local-digital-eye-sub000/internal/pkg/faults"
	"github.com/caangogi/local-digital-eye-sub000/internal/pkg/gbp"
	"github.com/caangogi/local-digital-eye-sub000/internal/pkg/token"
)

// IdentityClient is the identity-provider surface the pipeline needs.
type IdentityClient interface {
	ConsentURL(state string) string
	ExchangeCode(ctx context.Context, code string) (*gbp.Grant, error)
}

// BillingClient is the billing-provider surface the pipeline needs.
type BillingClient interface {
	EnsureCustomer(ctx context.Context, b *models.Business, userID, email, name string) (string, error)
	CreateCheckoutSession(ctx context.Context, in billing.CheckoutInput) (*stripe.CheckoutSession, error)
}

// UserDirectory resolves internal user ids to contact details. User
// management itself lives outside this pipeline; this is its interface.
type UserDirectory interface {
	Lookup(ctx context.Context, userID string) (email, name string, err error)
}

// Service wires the pipeline's collaborators together.
type Service struct {
	store    businessstore.Store
	codec    *token.Codec
	identity IdentityClient
	billing  BillingClient
	users    UserDirectory
	cfg      billing.Config

	now func() time.Time
}

func NewService(store businessstore.Store, codec *token.Codec, identity IdentityClient, billingClient BillingClient, users UserDirectory, cfg billing.Config) *Service {
	return &Service{
		store:    store,
		codec:    codec,
		identity: identity,
		billing:  billingClient,
		users:    users,
		cfg:      cfg,
		now:      time.Now,
	}
}

// ConsentStart validates the request and builds the provider consent URL
// with a signed state payload. Stateless: nothing is persisted until the
// provider calls back.
func (s *Service) ConsentStart(ctx context.Context, userID, businessID string, plan billing.Plan) (string, error) {
	if userID == "" {
		return "", faults.ErrUnauthenticated
	}
	if err := plan.Validate(); err != nil {
		return "", err
	}
	if _, err := s.store.Get(ctx, businessID); err != nil {
		return "", err
	}

	state, err := s.codec.IssueState(token.StatePayload{
		BusinessID: businessID,
		UserID:     userID,
		Plan:       plan,
	})
	if err != nil {
		return "", err
	}
	return s.identity.ConsentURL(state), nil
}

// ResolveOnboarding verifies a signed invitation token and returns its
// payload so the caller can start the consent flow for the invited business.
func (s *Service) ResolveOnboarding(tokenString string) (*token.OnboardingPayload, error) {
	return s.codec.VerifyOnboarding(tokenString)
}

// IssueOnboarding creates an invitation link token for a business.
func (s *Service) IssueOnboarding(ctx context.Context, businessID string, plan billing.Plan) (string, error) {
	if err := plan.Validate(); err != nil {
		return "", err
	}
	if _, err := s.store.Get(ctx, businessID); err != nil {
		return "", err
	}
	return s.codec.IssueOnboarding(token.OnboardingPayload{BusinessID: businessID, Plan: plan}, token.OnboardingTTL)
}
