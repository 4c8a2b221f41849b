package billing

import (
	"errors"
	"testing"

	"github.com/caangogi/local-digital-eye-sub000/internal/pkg/faults"
)

func TestParseTier(t *testing.T) {
	cases := []struct {
		in      string
		want    Tier
		wantErr bool
	}{
		{"freemium", TierFreemium, false},
		{"professional", TierProfessional, false},
		{"premium", TierPremium, false},
		{"  Premium ", TierPremium, false},
		{"PROFESSIONAL", TierProfessional, false},
		{"", "", true},
		{"enterprise", "", true},
	}

	for _, tc := range cases {
		got, err := ParseTier(tc.in)
		if tc.wantErr {
			var verr *faults.ValidationError
			if !errors.As(err, &verr) {
				t.Errorf("ParseTier(%q): expected validation error, got %v", tc.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseTier(%q): unexpected error %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseTier(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestPlanValidate(t *testing.T) {
	cases := []struct {
		name    string
		plan    Plan
		wantErr bool
	}{
		{"freemium no fee", Plan{Tier: TierFreemium}, false},
		{"professional with fee", Plan{Tier: TierProfessional, SetupFeeCents: 27900}, false},
		{"premium no fee", Plan{Tier: TierPremium}, false},
		{"freemium with fee", Plan{Tier: TierFreemium, SetupFeeCents: 100}, true},
		{"negative fee", Plan{Tier: TierPremium, SetupFeeCents: -1}, true},
		{"unknown tier", Plan{Tier: "enterprise"}, true},
	}

	for _, tc := range cases {
		err := tc.plan.Validate()
		if tc.wantErr && err == nil {
			t.Errorf("%s: expected error, got nil", tc.name)
		}
		if !tc.wantErr && err != nil {
			t.Errorf("%s: unexpected error %v", tc.name, err)
		}
	}
}

func TestPlanIsPaid(t *testing.T) {
	if (Plan{Tier: TierFreemium}).IsPaid() {
		t.Error("freemium should not be paid")
	}
	if !(Plan{Tier: TierProfessional}).IsPaid() {
		t.Error("professional should be paid")
	}
	if !(Plan{Tier: TierPremium}).IsPaid() {
		t.Error("premium should be paid")
	}
}
