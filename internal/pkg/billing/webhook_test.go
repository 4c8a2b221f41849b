package billing

import (
	"errors"
	"strings"
	"testing"

	"github.com/stripe/stripe-go/v82"

	"github.com/caangogi/local-digital-eye-sub000/app/models"
	"github.com/caangogi/local-digital-eye-sub000/internal/pkg/faults"
)

func TestCheckoutMetadataFromSession(t *testing.T) {
	sess := &stripe.CheckoutSession{
		Metadata: map[string]string{
			"business_id":        "biz_123",
			"user_id":            "user_1",
			"plan":               "professional",
			"setup_fee_cents":    "27900",
			"deferred_auth_code": "4/0AbCdEf",
		},
	}

	md, err := CheckoutMetadataFromSession("evt_1", sess)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if md.BusinessID != "biz_123" || md.UserID != "user_1" {
		t.Fatalf("ids = %q/%q", md.BusinessID, md.UserID)
	}
	if md.Plan.Tier != TierProfessional || md.Plan.SetupFeeCents != 27900 {
		t.Fatalf("plan = %+v", md.Plan)
	}
	if md.DeferredAuthCode != "4/0AbCdEf" {
		t.Fatalf("code = %q", md.DeferredAuthCode)
	}
}

func TestCheckoutMetadataMissingFields(t *testing.T) {
	sess := &stripe.CheckoutSession{
		Metadata: map[string]string{
			"business_id": "biz_123",
			"plan":        "premium",
		},
	}

	_, err := CheckoutMetadataFromSession("evt_2", sess)
	var mErr *faults.MissingMetadataError
	if !errors.As(err, &mErr) {
		t.Fatalf("expected MissingMetadataError, got %v", err)
	}
	if mErr.EventID != "evt_2" {
		t.Fatalf("event id = %q", mErr.EventID)
	}
	joined := strings.Join(mErr.Missing, ",")
	if !strings.Contains(joined, "user_id") || !strings.Contains(joined, "deferred_auth_code") {
		t.Fatalf("missing = %v", mErr.Missing)
	}
}

func TestCheckoutMetadataNilMap(t *testing.T) {
	_, err := CheckoutMetadataFromSession("evt_3", &stripe.CheckoutSession{})
	var mErr *faults.MissingMetadataError
	if !errors.As(err, &mErr) {
		t.Fatalf("expected MissingMetadataError, got %v", err)
	}
	if len(mErr.Missing) != 4 {
		t.Fatalf("missing = %v", mErr.Missing)
	}
}

func TestCheckoutMetadataBadPlan(t *testing.T) {
	sess := &stripe.CheckoutSession{
		Metadata: map[string]string{
			"business_id":        "biz_123",
			"user_id":            "user_1",
			"plan":               "enterprise",
			"deferred_auth_code": "4/0AbCdEf",
		},
	}

	_, err := CheckoutMetadataFromSession("evt_4", sess)
	var mErr *faults.MissingMetadataError
	if !errors.As(err, &mErr) {
		t.Fatalf("expected MissingMetadataError, got %v", err)
	}
}

func TestEventDedupID(t *testing.T) {
	if got := EventDedupID("evt_5", []byte(`{}`)); got != "evt_5" {
		t.Fatalf("got %q", got)
	}

	a := EventDedupID("", []byte(`{"a":1}`))
	b := EventDedupID("", []byte(`{"a":1}`))
	c := EventDedupID("", []byte(`{"a":2}`))
	if !strings.HasPrefix(a, "hash:") {
		t.Fatalf("got %q", a)
	}
	if a != b {
		t.Fatalf("same payload hashed differently: %q vs %q", a, b)
	}
	if a == c {
		t.Fatal("different payloads collapsed onto the same id")
	}
}

func TestSubscriptionStatusFromStripe(t *testing.T) {
	cases := map[string]string{
		"active":             models.SubscriptionActive,
		"trialing":           models.SubscriptionActive,
		"past_due":           models.SubscriptionPastDue,
		"canceled":           models.SubscriptionCanceled,
		"incomplete_expired": models.SubscriptionCanceled,
		"unpaid":             models.SubscriptionUnpaid,
		"incomplete":         models.SubscriptionPastDue,
		"paused":             models.SubscriptionPastDue,
		"something_new":      models.SubscriptionPastDue,
	}
	for in, want := range cases {
		if got := SubscriptionStatusFromStripe(in); got != want {
			t.Errorf("SubscriptionStatusFromStripe(%q) = %q, want %q", in, got, want)
		}
	}
}
