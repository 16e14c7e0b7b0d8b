package api

import (
	"context"

	"github.com/ayo6706/creator-payouts/internal/api/handler"
	"github.com/ayo6706/creator-payouts/internal/api/middleware"
	"github.com/ayo6706/creator-payouts/internal/api/spec"
	"github.com/ayo6706/creator-payouts/internal/idempotency"
	"github.com/ayo6706/creator-payouts/internal/provider"
	"github.com/ayo6706/creator-payouts/internal/queue"
	"github.com/ayo6706/creator-payouts/internal/repository"
	"github.com/ayo6706/creator-payouts/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"
)

// Deps carries everything the router wires into handlers. DB, Redis, and
// IdemStore may be nil (memory-backed tests); a nil IdemStore disables the
// idempotent-response middleware.
type Deps struct {
	Logger     *zap.Logger
	DB         *pgxpool.Pool
	Redis      redis.Cmdable
	IdemStore  *idempotency.Store
	Queries    repository.Querier
	Ledger     *service.LedgerService
	Bank       *service.BankAccountService
	Elig       *service.EligibilityService
	Payouts    *service.PayoutService
	Reconciler *service.ReconcilerService
	Providers  *provider.Registry
	Dispatcher *queue.Dispatcher

	// BaseCtx outlives individual requests; async webhook jobs run on it.
	BaseCtx context.Context

	PublicRateLimitRPS   int
	AuthRateLimitRPS     int
	WebhookSkipSignature bool
}

type Router struct {
	deps Deps
}

func NewRouter(deps Deps) *Router {
	if deps.BaseCtx == nil {
		deps.BaseCtx = context.Background()
	}
	return &Router{deps: deps}
}

func (api *Router) Routes() chi.Router {
	d := api.deps

	healthHandler := handler.NewHealthHandler(d.DB, d.Redis)
	earningsHandler := handler.NewEarningsHandler(d.Ledger)
	ledgerHandler := handler.NewLedgerHandler(d.Ledger, d.Elig)
	bankHandler := handler.NewBankAccountHandler(d.Bank)
	payoutHandler := handler.NewPayoutHandler(d.Payouts)
	webhookHandler := handler.NewWebhookHandler(d.BaseCtx, d.Providers, d.Reconciler, d.Dispatcher, d.WebhookSkipSignature)
	anomalyHandler := handler.NewAnomalyHandler(d.Queries)

	r := chi.NewRouter()
	r.Use(middleware.TraceMiddleware)
	r.Use(middleware.RecoverMiddleware(d.Logger))
	r.Use(middleware.LoggingMiddleware(d.Logger))
	r.Use(middleware.MetricsMiddleware)

	// Public routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.PublicRateLimiter(d.PublicRateLimitRPS))

		r.Get("/healthz/live", healthHandler.Live)
		r.Get("/healthz/ready", healthHandler.Ready)
		r.Handle("/metrics", promhttp.Handler())
		r.Get("/openapi.yaml", spec.OpenAPIHandler())
		r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL("/openapi.yaml")))

		// Webhooks authenticate with HMAC signatures, not JWTs.
		r.Post("/v1/webhooks/{provider}", webhookHandler.HandleProviderWebhook)
	})

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware)
		r.Use(middleware.AuthRateLimiter(d.AuthRateLimitRPS))

		// Revenue ingestion is for upstream billing systems only.
		r.With(middleware.RequireRole("service")).Post("/v1/earnings", earningsHandler.HandleRecordEarning)

		r.Get("/v1/creators/{id}/ledger", ledgerHandler.HandleGetLedger)
		r.Get("/v1/creators/{id}/eligibility", ledgerHandler.HandleCheckEligibility)
		r.Get("/v1/creators/{id}/bank-account", bankHandler.HandleGetBankAccount)
		r.With(middleware.RequireRole("service")).Put("/v1/creators/{id}/bank-account", bankHandler.HandleUpsertBankAccount)

		r.With(middleware.IdempotencyMiddleware(d.IdemStore, d.Logger)).Post("/v1/payouts", payoutHandler.HandleRequestPayout)
		r.Get("/v1/payouts/{id}", payoutHandler.HandleGetPayout)
		r.Post("/v1/payouts/{id}/cancel", payoutHandler.HandleCancelPayout)

		r.With(middleware.RequireRole("admin")).Get("/v1/anomalies", anomalyHandler.HandleListAnomalies)
		r.With(middleware.RequireRole("admin")).Post("/v1/anomalies/{id}/resolve", anomalyHandler.HandleResolveAnomaly)
	})

	return r
}
