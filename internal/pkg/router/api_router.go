package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/caangogi/local-digital-eye-sub000/app/controllers"
	"github.com/caangogi/local-digital-eye-sub000/internal/pkg/middleware"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New())

	v1 := api.Group("/v1")
	v1.Get("/businesses", middleware.RequireAuth, controllers.HandleListBusinesses)
	v1.Get("/businesses/:id", middleware.RequireAuth, controllers.HandleGetBusiness)
	v1.Post("/businesses/:id/trial/extend", middleware.RequireAuth, controllers.HandleExtendTrial)
	v1.Post("/businesses/:id/metrics/refresh", middleware.RequireAuth, controllers.HandleRefreshMetrics)
	v1.Post("/businesses/:id/onboarding-link", middleware.RequireAdmin, controllers.HandleCreateOnboardingLink)
	v1.Post("/jobs/metrics-sync", middleware.RequireAdmin, controllers.HandleMetricsSync)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
