package constants

// Static route constants
const (
	OnboardingRoute     = "/onboarding"
	ConnectRoute        = "/gbp/connect"
	OAuthCallbackRoute  = "/oauth/callback"
	BillingWebhookRoute = "/webhooks/billing"

	DashboardRoute    = "/dashboard"
	BusinessListRoute = "/businesses"
	LoginRoute        = "/login"
)
