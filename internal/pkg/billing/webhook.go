package billing

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"

	"github.com/stripe/stripe-go/v82"

	"github.com/caangogi/local-digital-eye-sub000/internal/pkg/faults"
)

// CheckoutMetadata is the correlation payload echoed back by the provider on
// a completed checkout. It is the only bridge between the billing event and
// the deferred identity-code exchange.
type CheckoutMetadata struct {
	BusinessID       string
	UserID           string
	Plan             Plan
	DeferredAuthCode string
}

// CheckoutMetadataFromSession extracts and validates the metadata of a
// completed checkout session. A missing field is unrecoverable: redelivery
// cannot repair it.
func CheckoutMetadataFromSession(eventID string, sess *stripe.CheckoutSession) (*CheckoutMetadata, error) {
	md := sess.Metadata
	var missing []string
	if md == nil {
		md = map[string]string{}
	}
	get := func(key string) string {
		v := md[key]
		if v == "" {
			missing = append(missing, key)
		}
		return v
	}

	businessID := get("business_id")
	userID := get("user_id")
	planRaw := get("plan")
	code := get("deferred_auth_code")

	if len(missing) > 0 {
		return nil, &faults.MissingMetadataError{EventID: eventID, Missing: missing}
	}

	tier, err := ParseTier(planRaw)
	if err != nil {
		return nil, &faults.MissingMetadataError{EventID: eventID, Missing: []string{"plan"}}
	}
	setupFee, _ := strconv.ParseInt(md["setup_fee_cents"], 10, 64)

	return &CheckoutMetadata{
		BusinessID:       businessID,
		UserID:           userID,
		Plan:             Plan{Tier: tier, SetupFeeCents: setupFee},
		DeferredAuthCode: code,
	}, nil
}

// EventDedupID returns the provider event id, or a payload hash when the
// provider omitted one, so redeliveries always collapse onto the same row.
func EventDedupID(eventID string, payload []byte) string {
	if eventID != "" {
		return eventID
	}
	sum := sha256.Sum256(payload)
	return "hash:" + hex.EncodeToString(sum[:])
}
