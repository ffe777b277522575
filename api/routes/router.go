package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/marketplace-engine/api/controllers"
	ordercontrollers "github.com/angelmondragon/marketplace-engine/api/controllers/orders"
	payoutcontrollers "github.com/angelmondragon/marketplace-engine/api/controllers/payouts"
	settlementcontrollers "github.com/angelmondragon/marketplace-engine/api/controllers/settlements"
	"github.com/angelmondragon/marketplace-engine/api/middleware"
	"github.com/angelmondragon/marketplace-engine/internal/delivery"
	"github.com/angelmondragon/marketplace-engine/internal/ledger"
	"github.com/angelmondragon/marketplace-engine/internal/notifications"
	"github.com/angelmondragon/marketplace-engine/internal/orders"
	"github.com/angelmondragon/marketplace-engine/internal/payouts"
	"github.com/angelmondragon/marketplace-engine/internal/settlements"
	"github.com/angelmondragon/marketplace-engine/pkg/config"
	"github.com/angelmondragon/marketplace-engine/pkg/enums"
	"github.com/angelmondragon/marketplace-engine/pkg/logger"
	"github.com/angelmondragon/marketplace-engine/pkg/metrics"
	pkgredis "github.com/angelmondragon/marketplace-engine/pkg/redis"
)

// Cache is the redis surface the HTTP layer needs. Leave it nil to run
// without idempotency replay and write throttling.
type Cache interface {
	pkgredis.IdempotencyStore
	pkgredis.CounterStore
	Ping(context.Context) error
}

type Services struct {
	Orders        orders.Service
	Delivery      delivery.Service
	Ledger        ledger.Service
	Settlements   settlements.Service
	Payouts       payouts.Service
	Notifications notifications.Service
}

type Infra struct {
	Cache    Cache
	Metrics  *metrics.Engine
	Gatherer prometheus.Gatherer
	Checks   []controllers.ReadinessCheck
}

func NewRouter(cfg *config.Config, logg *logger.Logger, infra Infra, svcs Services) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.Metrics(infra.Metrics),
		middleware.CORS(cfg.App.CORSAllowedOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, infra.Checks...))
	})
	if infra.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(infra.Gatherer, promhttp.HandlerOpts{}))
	}

	var (
		idemStore    pkgredis.IdempotencyStore
		counterStore pkgredis.CounterStore
	)
	if infra.Cache != nil {
		idemStore = infra.Cache
		counterStore = infra.Cache
	}
	idem := middleware.Idempotency(idemStore, logg)
	writes := middleware.NewRateLimitPolicy("writes", cfg.RateLimit.WriteWindow, cfg.RateLimit.WriteLimit)

	operators := middleware.RequireRole(logg, enums.ActorRoleAdmin, enums.ActorRoleStaff)
	adminOnly := middleware.RequireRole(logg, enums.ActorRoleAdmin)
	adminOrVendor := middleware.RequireRole(logg, enums.ActorRoleAdmin, enums.ActorRoleVendor)

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.Engine.RequestTimeout > 0 {
			r.Use(chimw.Timeout(cfg.Engine.RequestTimeout))
		}
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RateLimit(writes, counterStore, logg))

		r.Route("/orders", func(r chi.Router) {
			r.With(
				middleware.RequireRole(logg, enums.ActorRoleCustomer, enums.ActorRoleStaff, enums.ActorRoleAdmin),
				idem,
			).Post("/", ordercontrollers.Place(svcs.Orders, logg))
			r.With(operators).Patch("/bulk-status", ordercontrollers.BulkTransition(svcs.Orders, logg))

			r.Route("/{orderId}", func(r chi.Router) {
				r.Get("/tracking", ordercontrollers.Tracking(svcs.Delivery, logg))
				// Role filtering per edge happens in the order service.
				r.Patch("/status", ordercontrollers.Transition(svcs.Orders, logg))
				r.With(operators).Post("/assign-driver", ordercontrollers.AssignDriver(svcs.Orders, logg))
				r.With(
					middleware.RequireRole(logg, enums.ActorRoleAdmin, enums.ActorRoleStaff, enums.ActorRoleDriver),
					idem,
				).Post("/cash-collection", ordercontrollers.RecordCash(svcs.Ledger, logg))
			})
		})

		r.Route("/settlements", func(r chi.Router) {
			r.With(adminOnly, idem).Post("/create", settlementcontrollers.Create(svcs.Settlements, logg))
			r.With(adminOnly).Patch("/{settlementId}/verify", settlementcontrollers.Verify(svcs.Settlements, logg))

			r.Group(func(r chi.Router) {
				r.Use(adminOrVendor)
				r.Get("/", settlementcontrollers.List(svcs.Settlements, logg))
				r.Get("/summary", settlementcontrollers.Summary(svcs.Settlements, logg))
				r.Get("/pending-cash", settlementcontrollers.PendingCash(svcs.Ledger, logg))
				r.Get("/reconcile", settlementcontrollers.Reconcile(svcs.Ledger, logg))
			})
		})

		r.Route("/payouts", func(r chi.Router) {
			r.With(adminOrVendor, idem).Post("/", payoutcontrollers.Create(svcs.Payouts, logg))
			r.With(adminOrVendor).Get("/", payoutcontrollers.List(svcs.Payouts, logg))
			r.With(adminOrVendor).Get("/balance", payoutcontrollers.Balance(svcs.Payouts, logg))
			r.With(adminOnly, idem).Post("/bulk-approve", payoutcontrollers.BulkApprove(svcs.Payouts, logg))
			r.With(adminOnly).Patch("/{payoutId}", payoutcontrollers.UpdateStatus(svcs.Payouts, logg))
		})

		r.With(operators).Get("/delivery/metrics", controllers.DeliveryMetrics(svcs.Delivery, logg))

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(svcs.Notifications, logg))
			r.Post("/read-all", controllers.MarkAllNotificationsRead(svcs.Notifications, logg))
			r.Post("/{notificationId}/read", controllers.MarkNotificationRead(svcs.Notifications, logg))
		})
	})

	return r
}
