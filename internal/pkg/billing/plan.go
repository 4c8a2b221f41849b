package billing

import (
	"fmt"
	"strings"

	"github.com/caangogi/local-digital-eye-sub000/internal/pkg/faults"
)

// Tier is the subscription tier a business signs up for.
type Tier string

const (
	TierFreemium     Tier = "freemium"
	TierProfessional Tier = "professional"
	TierPremium      Tier = "premium"
)

// Plan is the single tagged variant carried end-to-end through the OAuth
// state, checkout metadata and webhook metadata. A freemium plan never has a
// setup fee; paid tiers may carry a one-time fee in minor currency units.
type Plan struct {
	Tier          Tier  `json:"tier"`
	SetupFeeCents int64 `json:"setup_fee_cents,omitempty"`
}

func ParseTier(s string) (Tier, error) {
	switch Tier(strings.ToLower(strings.TrimSpace(s))) {
	case TierFreemium:
		return TierFreemium, nil
	case TierProfessional:
		return TierProfessional, nil
	case TierPremium:
		return TierPremium, nil
	default:
		return "", &faults.ValidationError{Field: "plan", Reason: fmt.Sprintf("unknown tier %q", s)}
	}
}

func (t Tier) IsPaid() bool {
	switch t {
	case TierProfessional, TierPremium:
		return true
	case TierFreemium:
		return false
	default:
		return false
	}
}

func (p Plan) IsPaid() bool { return p.Tier.IsPaid() }

func (p Plan) Validate() error {
	if _, err := ParseTier(string(p.Tier)); err != nil {
		return err
	}
	if p.SetupFeeCents < 0 {
		return &faults.ValidationError{Field: "setup_fee_cents", Reason: "must not be negative"}
	}
	if !p.Tier.IsPaid() && p.SetupFeeCents > 0 {
		return &faults.ValidationError{Field: "setup_fee_cents", Reason: "freemium plans cannot carry a setup fee"}
	}
	return nil
}
