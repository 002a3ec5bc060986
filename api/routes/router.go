package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/tonipcv/kr-saas-sub001/api/controllers"
	webhookcontrollers "github.com/tonipcv/kr-saas-sub001/api/controllers/webhooks"
	"github.com/tonipcv/kr-saas-sub001/api/middleware"
	checkoutsvc "github.com/tonipcv/kr-saas-sub001/internal/checkout"
	hooks "github.com/tonipcv/kr-saas-sub001/internal/webhooks"
	"github.com/tonipcv/kr-saas-sub001/pkg/config"
	"github.com/tonipcv/kr-saas-sub001/pkg/logger"
	pkgredis "github.com/tonipcv/kr-saas-sub001/pkg/redis"
)

type Deps struct {
	Config       *config.Config
	Logger       *logger.Logger
	DB           *gorm.DB
	Idempotency  pkgredis.IdempotencyStore
	Ingestor     *hooks.Ingestor
	Checkout     *checkoutsvc.Service
	PromRegistry *prometheus.Registry
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, deps.DB))
	})

	if deps.PromRegistry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.PromRegistry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Get("/pagarme", webhookcontrollers.PagarmeAck())
		r.Post("/pagarme", webhookcontrollers.PagarmeWebhook(deps.Ingestor, cfg.Pagarme.WebhookSecret, logg))
		r.Get("/appmax", webhookcontrollers.AppmaxAck())
		r.Post("/appmax", webhookcontrollers.AppmaxWebhook(deps.Ingestor, cfg.Appmax.WebhookSecret, logg))
	})

	r.Route("/api/v1/checkout", func(r chi.Router) {
		r.Use(middleware.Idempotency(deps.Idempotency, logg))
		r.Post("/subscribe", controllers.CheckoutSubscribe(deps.Checkout, logg, !cfg.App.IsProd()))
	})

	return r
}
