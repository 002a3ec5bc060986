package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/tonipcv/kr-saas-sub001/api/routes"
	"github.com/tonipcv/kr-saas-sub001/internal/checkout"
	"github.com/tonipcv/kr-saas-sub001/internal/customers"
	"github.com/tonipcv/kr-saas-sub001/internal/providers/pagarme"
	"github.com/tonipcv/kr-saas-sub001/internal/purchases"
	"github.com/tonipcv/kr-saas-sub001/internal/reconciler"
	"github.com/tonipcv/kr-saas-sub001/internal/sideeffects"
	"github.com/tonipcv/kr-saas-sub001/internal/subscriptions"
	"github.com/tonipcv/kr-saas-sub001/internal/webhookevents"
	hooks "github.com/tonipcv/kr-saas-sub001/internal/webhooks"
	"github.com/tonipcv/kr-saas-sub001/pkg/config"
	"github.com/tonipcv/kr-saas-sub001/pkg/db"
	"github.com/tonipcv/kr-saas-sub001/pkg/logger"
	"github.com/tonipcv/kr-saas-sub001/pkg/mailer"
	"github.com/tonipcv/kr-saas-sub001/pkg/metrics"
	"github.com/tonipcv/kr-saas-sub001/pkg/migrate"
	"github.com/tonipcv/kr-saas-sub001/pkg/outbox"
	"github.com/tonipcv/kr-saas-sub001/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis client", err)
		}
	}()

	gormDB := dbClient.DB()

	gateway, err := pagarme.NewClient(cfg.Pagarme, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to build pagarme client", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())

	outboxSvc := outbox.NewService(outbox.NewRepository(gormDB), logg)
	activator, err := subscriptions.NewActivator(subscriptions.ActivatorParams{
		Repo:   subscriptions.NewRepository(gormDB),
		Logger: logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to build subscription activator", err)
		os.Exit(1)
	}

	dispatcher, err := sideeffects.NewDispatcher(sideeffects.DispatcherParams{
		DB:        gormDB,
		Mailer:    mailer.New(cfg.Sendgrid, logg),
		Purchases: purchases.NewRepository(gormDB),
		Customers: customers.NewRepository(gormDB),
		Outbox:    outboxSvc,
		Logger:    logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to build side-effect dispatcher", err)
		os.Exit(1)
	}

	rec, err := reconciler.NewService(reconciler.ServiceParams{
		Repo:         reconciler.NewRepository(gormDB),
		Resolver:     reconciler.NewSplitResolver(gormDB),
		Activator:    activator,
		Dispatcher:   dispatcher,
		PixVerifier:  gateway,
		SplitApplier: gateway,
		Logger:       logg,
		SplitEnabled: cfg.Features.SplitEnabled,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to build reconciler", err)
		os.Exit(1)
	}

	ingestor, err := hooks.NewIngestor(hooks.IngestorParams{
		Events:     webhookevents.NewRepository(gormDB),
		Reconciler: rec,
		Logger:     logg,
		Metrics:    metrics.NewWebhookMetrics(registry),
		Async:      cfg.Features.AsyncWebhooks,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to build webhook ingestor", err)
		os.Exit(1)
	}

	checkoutSvc, err := checkout.NewService(checkout.ServiceParams{
		Repo:          checkout.NewRepository(gormDB),
		Customers:     customers.NewRepository(gormDB),
		Subscriptions: subscriptions.NewRepository(gormDB),
		Gateway:       gateway,
		Logger:        logg,
		SplitEnabled:  cfg.Features.SplitEnabled,
		PlanlessMode:  cfg.Features.PlanlessMode,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to build checkout service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := fmt.Sprintf(":%s", port)

	instanceID := os.Getenv("DYNO")
	if instanceID == "" {
		instanceID = "local"
	}

	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instanceID,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		ReadHeaderTimeout: 10 * time.Second,
		Handler: routes.NewRouter(routes.Deps{
			Config:       cfg,
			Logger:       logg,
			DB:           gormDB,
			Idempotency:  redisClient,
			Ingestor:     ingestor,
			Checkout:     checkoutSvc,
			PromRegistry: registry,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
