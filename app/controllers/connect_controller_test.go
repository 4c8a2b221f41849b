package controllers

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"

	"github.com/caangogi/local-digital-eye-sub000/app/models"
	"github.com/caangogi/local-digital-eye-sub000/internal/pkg/billing"
	"github.com/caangogi/local-digital-eye-sub000/internal/pkg/businessstore"
	"github.com/caangogi/local-digital-eye-sub000/internal/pkg/connect"
	"github.com/caangogi/local-digital-eye-sub000/internal/pkg/constants"
	"github.com/caangogi/local-digital-eye-sub000/internal/pkg/gbp"
	"github.com/caangogi/local-digital-eye-sub000/internal/pkg/token"
	"github.com/caangogi/local-digital-eye-sub000/internal/pkg/usercontext"
)

type stubIdentity struct{}

func (stubIdentity) ConsentURL(state string) string {
	return "https://accounts.example.com/o/oauth2/auth?state=" + state
}

func (stubIdentity) ExchangeCode(ctx context.Context, code string) (*gbp.Grant, error) {
	return nil, nil
}

type stubBilling struct{}

func (stubBilling) EnsureCustomer(ctx context.Context, b *models.Business, userID, email, name string) (string, error) {
	return "cus_1", nil
}

func (stubBilling) CreateCheckoutSession(ctx context.Context, in billing.CheckoutInput) (*stripe.CheckoutSession, error) {
	return &stripe.CheckoutSession{URL: "https://checkout.example.com/c/cs_test"}, nil
}

type stubUsers struct{}

func (stubUsers) Lookup(ctx context.Context, userID string) (string, string, error) {
	return "ana@example.com", "Ana", nil
}

// wireTestConnectService swaps the lazily wired connect service for one
// backed by in-memory collaborators.
func wireTestConnectService(t *testing.T) (*businessstore.MemoryStore, *token.Codec) {
	t.Helper()
	codec, err := token.NewCodec("test-secret")
	require.NoError(t, err)
	store := businessstore.NewMemoryStore()

	wireOnce.Do(func() {})
	connectService = connect.NewService(store, codec, stubIdentity{}, stubBilling{}, stubUsers{}, billing.Config{
		PriceIDs:      map[billing.Tier]string{billing.TierProfessional: "price_prof"},
		PublicBaseURL: "http://localhost:4000",
	})
	return store, codec
}

func TestHandleConnectIgnoresSetupFeeQuery(t *testing.T) {
	store, codec := wireTestConnectService(t)
	require.NoError(t, store.Create(context.Background(), &models.Business{
		ID:                "loc_1",
		ExternalProfileID: "loc_1",
		Name:              "Cafetería El Parque",
		ConnectorUserID:   "user_connector",
		ConnectionStatus:  models.ConnectionUnlinked,
	}))

	app := fiber.New()
	app.Get(constants.ConnectRoute, func(c *fiber.Ctx) error {
		usercontext.Set(c, usercontext.UserContext{UserID: "user_1", IsLoggedIn: true})
		return HandleConnect(c)
	})

	req := httptest.NewRequest("GET", constants.ConnectRoute+"?business_id=loc_1&plan=professional&setup_fee_cents=99900", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusSeeOther, resp.StatusCode)

	loc := resp.Header.Get("Location")
	idx := strings.Index(loc, "state=")
	require.GreaterOrEqual(t, idx, 0)

	payload, err := codec.VerifyState(loc[idx+len("state="):])
	require.NoError(t, err)
	assert.Equal(t, "loc_1", payload.BusinessID)
	assert.Equal(t, "user_1", payload.UserID)
	assert.Equal(t, billing.TierProfessional, payload.Plan.Tier)
	assert.Zero(t, payload.Plan.SetupFeeCents)
}
