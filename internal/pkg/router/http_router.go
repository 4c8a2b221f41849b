package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/caangogi/local-digital-eye-sub000/app/controllers"
	"github.com/caangogi/local-digital-eye-sub000/internal/pkg/constants"
	"github.com/caangogi/local-digital-eye-sub000/internal/pkg/middleware"
)

type HttpRouter struct {
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	app.Use(middleware.UserContextMiddleware)

	// Connection pipeline
	app.Get(constants.OnboardingRoute, controllers.HandleOnboarding)
	app.Get(constants.ConnectRoute, controllers.HandleConnect)
	app.Get(constants.OAuthCallbackRoute, controllers.HandleOAuthCallback)

	// Billing events (signature-verified in the handler, no session)
	app.Post(constants.BillingWebhookRoute, controllers.HandleBillingWebhook)
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}
