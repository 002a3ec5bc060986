package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tonipcv/kr-saas-sub001/internal/customers"
	"github.com/tonipcv/kr-saas-sub001/internal/providers/pagarme"
	"github.com/tonipcv/kr-saas-sub001/internal/purchases"
	"github.com/tonipcv/kr-saas-sub001/internal/reconciler"
	"github.com/tonipcv/kr-saas-sub001/internal/retry"
	"github.com/tonipcv/kr-saas-sub001/internal/sideeffects"
	"github.com/tonipcv/kr-saas-sub001/internal/subscriptions"
	"github.com/tonipcv/kr-saas-sub001/internal/webhookevents"
	wappmax "github.com/tonipcv/kr-saas-sub001/internal/webhooks/appmax"
	wpagarme "github.com/tonipcv/kr-saas-sub001/internal/webhooks/pagarme"
	"github.com/tonipcv/kr-saas-sub001/pkg/config"
	"github.com/tonipcv/kr-saas-sub001/pkg/db"
	"github.com/tonipcv/kr-saas-sub001/pkg/enums"
	"github.com/tonipcv/kr-saas-sub001/pkg/logger"
	"github.com/tonipcv/kr-saas-sub001/pkg/mailer"
	"github.com/tonipcv/kr-saas-sub001/pkg/metrics"
	"github.com/tonipcv/kr-saas-sub001/pkg/migrate"
	"github.com/tonipcv/kr-saas-sub001/pkg/outbox"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "worker",
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

	gormDB := dbClient.DB()

	gateway, err := pagarme.NewClient(cfg.Pagarme, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to build pagarme client", err)
		os.Exit(1)
	}

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
		Outbox:    outbox.NewService(outbox.NewRepository(gormDB), logg),
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

	registry := prometheus.NewRegistry()
	sweeper, err := retry.NewSweeper(retry.SweeperParams{
		Events:     webhookevents.NewRepository(gormDB),
		Reconciler: rec,
		Parsers: map[enums.Provider]retry.Parser{
			enums.ProviderPagarme: func(body []byte, _ string) (reconciler.Event, error) {
				return wpagarme.Parse(body)
			},
			enums.ProviderAppmax: wappmax.Parse,
		},
		Logger:      logg,
		Metrics:     metrics.NewJobMetrics(registry),
		Interval:    cfg.Webhooks.SweepInterval,
		BatchSize:   cfg.Webhooks.SweepBatchSize,
		MaxAttempts: cfg.Webhooks.RetryMaxAttempts,
		BackoffBase: cfg.Webhooks.RetryBase,
		BackoffCap:  cfg.Webhooks.RetryCap,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to build retry sweeper", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env})
	logg.Info(ctx, "starting webhook retry worker")

	sweeper.Run(ctx)
	logg.Info(ctx, "retry worker shutting down gracefully")
}
