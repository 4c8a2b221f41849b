package billing

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/stripe/stripe-go/v82"
	checkoutsession "github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/customer"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/caangogi/local-digital-eye-sub000/app/models"
	"github.com/caangogi/local-digital-eye-sub000/internal/pkg/env"
	"github.com/caangogi/local-digital-eye-sub000/internal/pkg/faults"
)

const ProviderStripe = "stripe"

// Config carries the Stripe credentials and the recurring price id per paid
// tier.
type Config struct {
	SecretKey     string
	WebhookSecret string
	PriceIDs      map[Tier]string
	PublicBaseURL string
}

func NewConfigFromEnv() Config {
	base := strings.TrimRight(env.GetEnv("PUBLIC_DOMAIN", "http://localhost:4000"), "/")
	return Config{
		SecretKey:     strings.TrimSpace(env.GetEnv("STRIPE_SECRET_KEY", "")),
		WebhookSecret: strings.TrimSpace(env.GetEnv("STRIPE_WEBHOOK_SECRET", "")),
		PriceIDs: map[Tier]string{
			TierProfessional: strings.TrimSpace(env.GetEnv("STRIPE_PRICE_PROFESSIONAL", "")),
			TierPremium:      strings.TrimSpace(env.GetEnv("STRIPE_PRICE_PREMIUM", "")),
		},
		PublicBaseURL: base,
	}
}

// TierForPrice maps a Stripe price id back to the paid tier it sells.
func (c Config) TierForPrice(priceID string) (Tier, bool) {
	for tier, id := range c.PriceIDs {
		if id != "" && id == priceID {
			return tier, true
		}
	}
	return "", false
}

var stripeKeyOnce sync.Once

// Client wraps the Stripe SDK for customer creation, checkout sessions and
// webhook signature verification.
type Client struct {
	cfg Config
}

// NewClient sets the SDK key once per process and returns a shared handle.
func NewClient(cfg Config) *Client {
	stripeKeyOnce.Do(func() {
		stripe.Key = cfg.SecretKey
	})
	return &Client{cfg: cfg}
}

// EnsureCustomer returns the billing customer id for a business, creating
// one keyed by the acting user's email and tagged with internal ids for
// reconciliation when the business has none yet.
func (c *Client) EnsureCustomer(ctx context.Context, b *models.Business, userID, email, name string) (string, error) {
	if b.BillingCustomerID != "" {
		return b.BillingCustomerID, nil
	}
	if email == "" {
		return "", &faults.ValidationError{Field: "email", Reason: "required to create a billing customer"}
	}

	params := &stripe.CustomerParams{
		Params: stripe.Params{Context: ctx},
		Email:  stripe.String(email),
	}
	if name != "" {
		params.Name = stripe.String(name)
	}
	params.AddMetadata("user_id", userID)
	params.AddMetadata("business_id", b.ID)

	cust, err := customer.New(params)
	if err != nil {
		return "", &faults.ProviderError{Provider: ProviderStripe, Op: "create customer", Retryable: true, Err: err}
	}
	return cust.ID, nil
}

// CheckoutInput is everything a paid-plan handoff needs to build a hosted
// checkout session. DeferredAuthCode is the still-unexchanged identity
// authorization code, echoed back through the webhook metadata.
type CheckoutInput struct {
	Business         *models.Business
	CustomerID       string
	UserID           string
	Plan             Plan
	DeferredAuthCode string
}

// CreateCheckoutSession builds a subscription-mode checkout with one
// recurring line item for the tier and, when the plan carries a setup fee,
// one one-time line item.
func (c *Client) CreateCheckoutSession(ctx context.Context, in CheckoutInput) (*stripe.CheckoutSession, error) {
	if !in.Plan.IsPaid() {
		return nil, &faults.ValidationError{Field: "plan", Reason: "checkout requires a paid tier"}
	}
	priceID := c.cfg.PriceIDs[in.Plan.Tier]
	if priceID == "" {
		return nil, &faults.ValidationError{Field: "plan", Reason: fmt.Sprintf("no price configured for tier %q", in.Plan.Tier)}
	}
	if in.DeferredAuthCode == "" {
		return nil, errors.New("deferred auth code is required")
	}

	lineItems := []*stripe.CheckoutSessionLineItemParams{
		{
			Price:    stripe.String(priceID),
			Quantity: stripe.Int64(1),
		},
	}
	if in.Plan.SetupFeeCents > 0 {
		lineItems = append(lineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(string(stripe.CurrencyEUR)),
				UnitAmount: stripe.Int64(in.Plan.SetupFeeCents),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String("One-time setup"),
				},
			},
			Quantity: stripe.Int64(1),
		})
	}

	metadata := map[string]string{
		"user_id":            in.UserID,
		"business_id":        in.Business.ID,
		"plan":               string(in.Plan.Tier),
		"setup_fee_cents":    strconv.FormatInt(in.Plan.SetupFeeCents, 10),
		"deferred_auth_code": in.DeferredAuthCode,
	}

	params := &stripe.CheckoutSessionParams{
		Params:     stripe.Params{Context: ctx},
		Mode:       stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		Customer:   stripe.String(in.CustomerID),
		SuccessURL: stripe.String(c.cfg.PublicBaseURL + "/dashboard?payment=success"),
		CancelURL:  stripe.String(c.cfg.PublicBaseURL + "/dashboard?payment=cancelled"),
		LineItems:  lineItems,
		Metadata:   metadata,
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{
				"business_id": in.Business.ID,
				"plan":        string(in.Plan.Tier),
			},
		},
	}

	sess, err := checkoutsession.New(params)
	if err != nil {
		return nil, &faults.ProviderError{Provider: ProviderStripe, Op: "create checkout session", Retryable: true, Err: err}
	}
	return sess, nil
}

// VerifyEvent checks the webhook signature header and parses the event.
func (c *Client) VerifyEvent(payload []byte, signatureHeader string) (stripe.Event, error) {
	event, err := webhook.ConstructEvent(payload, signatureHeader, c.cfg.WebhookSecret)
	if err != nil {
		return stripe.Event{}, fmt.Errorf("invalid webhook signature: %w", err)
	}
	return event, nil
}
