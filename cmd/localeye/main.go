package main

import (
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/caangogi/local-digital-eye-sub000/internal/pkg/businessstore"
	"github.com/caangogi/local-digital-eye-sub000/internal/pkg/cache"
	"github.com/caangogi/local-digital-eye-sub000/internal/pkg/database"
	"github.com/caangogi/local-digital-eye-sub000/internal/pkg/env"
	"github.com/caangogi/local-digital-eye-sub000/internal/pkg/gbp"
	"github.com/caangogi/local-digital-eye-sub000/internal/pkg/jobs"
	"github.com/caangogi/local-digital-eye-sub000/internal/pkg/metricscache"
	"github.com/caangogi/local-digital-eye-sub000/internal/pkg/router"
)

func main() {
	app := NewApplication()
	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	app := fiber.New(fiber.Config{
		AppName:               "localeye",
		DisableStartupMessage: !env.IsDev(),
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	router.InstallRouter(app)

	// scheduled metrics cache sync
	syncService := metricscache.NewService(
		businessstore.NewStore(database.GetDB()),
		gbp.NewClientFromEnv(),
		metricscache.NewRedisLocker(cache.GetClient()),
	)
	jobs.GetManager(syncService).Start()

	return app
}
