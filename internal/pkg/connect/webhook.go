package connect

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v2/log"
	"github.com/stripe/stripe-go/v82"

	"github.com/caangogi/local-digital-eye-sub000/app/models"
	"github.com/caangogi/local-digital-eye-sub000/internal/pkg/billing"
	"github.com/caangogi/local-digital-eye-sub000/internal/pkg/faults"
)

// ProcessWebhookEvent handles an already signature-verified billing event.
// Events are recorded before processing so redeliveries of a completed event
// collapse into a no-op; a redelivery of a failed event is reprocessed.
//
// The returned error steers the HTTP response: a *faults.MissingMetadataError
// must still be acknowledged (retrying cannot repair missing metadata), a
// retryable *faults.ProviderError must produce a non-2xx status so the
// provider redelivers.
func (s *Service) ProcessWebhookEvent(ctx context.Context, event stripe.Event, payload []byte) error {
	dedupID := billing.EventDedupID(event.ID, payload)
	created, stored, err := s.store.RecordEvent(ctx, &models.WebhookEvent{
		Provider:        billing.ProviderStripe,
		ProviderEventID: dedupID,
		EventType:       string(event.Type),
		PayloadJSON:     string(payload),
		SignatureValid:  true,
	})
	if err != nil {
		return err
	}
	if !created && stored.Processed() {
		log.Infof("[webhook] duplicate event %s (%s), skipping", dedupID, event.Type)
		return nil
	}

	procErr := s.dispatchEvent(ctx, event)
	if markErr := s.store.MarkEventProcessed(ctx, stored.ID, procErr); markErr != nil {
		log.Errorf("[webhook] could not mark event %s processed: %v", dedupID, markErr)
	}
	return procErr
}

func (s *Service) dispatchEvent(ctx context.Context, event stripe.Event) error {
	switch event.Type {
	case "checkout.session.completed":
		return s.handleCheckoutCompleted(ctx, event)
	case "customer.subscription.updated":
		return s.handleSubscriptionUpdated(ctx, event)
	case "customer.subscription.deleted":
		return s.handleSubscriptionDeleted(ctx, event)
	case "invoice.payment_failed":
		return s.handleInvoicePaymentFailed(ctx, event)
	default:
		log.Infof("[webhook] ignoring event type %s", event.Type)
		return nil
	}
}

// handleCheckoutCompleted is phase 2 of the deferred exchange: payment is in,
// so the authorization code carried through checkout metadata is redeemed
// now and the subscription activated. The whole write is a full overwrite of
// the same fields, which is what keeps redelivery idempotent.
func (s *Service) handleCheckoutCompleted(ctx context.Context, event stripe.Event) error {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return &faults.MissingMetadataError{EventID: event.ID, Missing: []string{"checkout session payload"}}
	}

	meta, err := billing.CheckoutMetadataFromSession(event.ID, &sess)
	if err != nil {
		log.Errorf("[webhook] unrecoverable: %v", err)
		return err
	}

	b, err := s.store.Get(ctx, meta.BusinessID)
	if err != nil {
		if errors.Is(err, faults.ErrNotFound) {
			log.Errorf("[webhook] unrecoverable: checkout %s references unknown business %s", sess.ID, meta.BusinessID)
			return &faults.MissingMetadataError{EventID: event.ID, Missing: []string{"business_id"}}
		}
		return err
	}

	if b.ConnectionStatus == models.ConnectionLinked && b.BillingSubscriptionID != "" {
		// Redelivered after a successful run; everything below would be a
		// pure overwrite, but the deferred code is single-use so stop here.
		log.Infof("[webhook] business %s already activated, skipping", b.ID)
		return nil
	}

	grant, err := s.identity.ExchangeCode(ctx, meta.DeferredAuthCode)
	if err != nil {
		// The checkout already succeeded and must not be silently lost.
		// Fail retryable so the provider redelivers.
		return &faults.ProviderError{Provider: "google", Op: "deferred code exchange", Retryable: true, Err: err}
	}

	b.MarkLinked(grant.AccessToken, grant.RefreshToken, grant.Expiry)
	if err := b.AssignOwner(meta.UserID); err != nil {
		// Ownership conflicts do not heal on redelivery; acknowledge and
		// leave a trail instead of having the provider retry forever.
		log.Errorf("[webhook] unrecoverable: checkout %s for business %s: %v", sess.ID, b.ID, err)
		return &faults.UnrecoverableError{EventID: event.ID, Reason: err.Error()}
	}
	b.SubscriptionPlan = string(meta.Plan.Tier)
	b.SubscriptionStatus = models.SubscriptionActive
	b.TrialEndsAt = nil
	if sess.Customer != nil && sess.Customer.ID != "" {
		b.BillingCustomerID = sess.Customer.ID
	}
	if sess.Subscription != nil && sess.Subscription.ID != "" {
		b.BillingSubscriptionID = sess.Subscription.ID
	}

	if err := s.store.Save(ctx, b); err != nil {
		return err
	}
	log.Infof("[webhook] business %s activated on plan %s", b.ID, meta.Plan.Tier)
	return nil
}

func (s *Service) handleSubscriptionUpdated(ctx context.Context, event stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return &faults.MissingMetadataError{EventID: event.ID, Missing: []string{"subscription payload"}}
	}

	b, err := s.store.GetBySubscriptionID(ctx, sub.ID)
	if err != nil {
		if errors.Is(err, faults.ErrNotFound) {
			// Can arrive before checkout.session.completed has stored the
			// subscription id; the completed handler writes the final state.
			log.Infof("[webhook] subscription %s not linked to a business yet, ignoring", sub.ID)
			return nil
		}
		return err
	}

	b.SubscriptionStatus = billing.SubscriptionStatusFromStripe(string(sub.Status))
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
		if tier, ok := s.cfg.TierForPrice(sub.Items.Data[0].Price.ID); ok {
			b.SubscriptionPlan = string(tier)
		} else {
			log.Warnf("[webhook] subscription %s carries unmapped price %s, keeping plan %s",
				sub.ID, sub.Items.Data[0].Price.ID, b.SubscriptionPlan)
		}
	}
	return s.store.Save(ctx, b)
}

func (s *Service) handleSubscriptionDeleted(ctx context.Context, event stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return &faults.MissingMetadataError{EventID: event.ID, Missing: []string{"subscription payload"}}
	}

	b, err := s.store.GetBySubscriptionID(ctx, sub.ID)
	if err != nil {
		if errors.Is(err, faults.ErrNotFound) {
			return nil
		}
		return err
	}
	b.SubscriptionStatus = models.SubscriptionCanceled
	return s.store.Save(ctx, b)
}

func (s *Service) handleInvoicePaymentFailed(ctx context.Context, event stripe.Event) error {
	var inv stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
		return &faults.MissingMetadataError{EventID: event.ID, Missing: []string{"invoice payload"}}
	}
	if inv.Customer == nil || inv.Customer.ID == "" {
		return &faults.MissingMetadataError{EventID: event.ID, Missing: []string{"customer"}}
	}

	b, err := s.store.GetByCustomerID(ctx, inv.Customer.ID)
	if err != nil {
		if errors.Is(err, faults.ErrNotFound) {
			return nil
		}
		return err
	}
	b.SubscriptionStatus = models.SubscriptionPastDue
	return s.store.Save(ctx, b)
}
