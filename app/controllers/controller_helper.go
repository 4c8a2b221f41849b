package controllers

import (
	"sync"

	"github.com/caangogi/local-digital-eye-sub000/internal/pkg/billing"
	"github.com/caangogi/local-digital-eye-sub000/internal/pkg/businessstore"
	"github.com/caangogi/local-digital-eye-sub000/internal/pkg/cache"
	"github.com/caangogi/local-digital-eye-sub000/internal/pkg/connect"
	"github.com/caangogi/local-digital-eye-sub000/internal/pkg/database"
	"github.com/caangogi/local-digital-eye-sub000/internal/pkg/env"
	"github.com/caangogi/local-digital-eye-sub000/internal/pkg/gbp"
	"github.com/caangogi/local-digital-eye-sub000/internal/pkg/metricscache"
	"github.com/caangogi/local-digital-eye-sub000/internal/pkg/token"
	"github.com/caangogi/local-digital-eye-sub000/internal/pkg/userdir"
)

// Process-wide pipeline wiring. Clients are shared handles initialized
// lazily and exactly once, then injected into the services.
var (
	wireOnce sync.Once

	businessStore  businessstore.Store
	connectService *connect.Service
	metricsService *metricscache.Service
	billingClient  *billing.Client
)

func wire() {
	wireOnce.Do(func() {
		store := businessstore.NewStore(database.GetDB())
		businessStore = store
		codec, err := token.NewCodec(env.GetEnv("TOKEN_SIGNING_SECRET", ""))
		if err != nil {
			panic(err)
		}

		cfg := billing.NewConfigFromEnv()
		billingClient = billing.NewClient(cfg)
		identity := gbp.NewClientFromEnv()
		users := userdir.NewDirectoryFromEnv()

		connectService = connect.NewService(store, codec, identity, billingClient, users, cfg)
		metricsService = metricscache.NewService(store, identity, metricscache.NewRedisLocker(cache.GetClient()))
	})
}

func getConnectService() *connect.Service {
	wire()
	return connectService
}

func getMetricsService() *metricscache.Service {
	wire()
	return metricsService
}

func getBillingClient() *billing.Client {
	wire()
	return billingClient
}

func getStore() businessstore.Store {
	wire()
	return businessStore
}
