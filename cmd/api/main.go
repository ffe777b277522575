package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/marketplace-engine/api/controllers"
	"github.com/angelmondragon/marketplace-engine/api/routes"
	"github.com/angelmondragon/marketplace-engine/internal/commission"
	"github.com/angelmondragon/marketplace-engine/internal/delivery"
	"github.com/angelmondragon/marketplace-engine/internal/ledger"
	"github.com/angelmondragon/marketplace-engine/internal/notifications"
	"github.com/angelmondragon/marketplace-engine/internal/orders"
	"github.com/angelmondragon/marketplace-engine/internal/payouts"
	"github.com/angelmondragon/marketplace-engine/internal/settlements"
	"github.com/angelmondragon/marketplace-engine/pkg/config"
	"github.com/angelmondragon/marketplace-engine/pkg/db"
	"github.com/angelmondragon/marketplace-engine/pkg/logger"
	"github.com/angelmondragon/marketplace-engine/pkg/metrics"
	"github.com/angelmondragon/marketplace-engine/pkg/migrate"
	"github.com/angelmondragon/marketplace-engine/pkg/outbox"
	"github.com/angelmondragon/marketplace-engine/pkg/redis"
)

const shutdownTimeout = 20 * time.Second

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
		Format:      cfg.App.LogFormat,
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

	checks := []controllers.ReadinessCheck{{Name: "database", Pinger: dbClient}}
	infra := routes.Infra{}
	var publisher notifications.Publisher
	if cfg.Redis.Enabled() {
		redisClient, err := redis.New(context.Background(), cfg.Redis, cfg.Realtime, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap redis", err)
			os.Exit(1)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}()
		infra.Cache = redisClient
		publisher = redisClient
		checks = append(checks, controllers.ReadinessCheck{Name: "redis", Pinger: redisClient})
	} else {
		logg.Warn(context.Background(), "redis not configured; idempotency, rate limiting and realtime disabled")
	}
	infra.Checks = checks

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	engineMetrics := metrics.NewEngine(registry)
	infra.Metrics = engineMetrics
	infra.Gatherer = registry

	svcs, err := buildServices(cfg, logg, dbClient, publisher, engineMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to wire services", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(cfg, logg, infra, svcs),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-sigCtx.Done():
		logg.Info(ctx, "api server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "graceful shutdown failed", err)
		}
	}
}

func buildServices(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, publisher notifications.Publisher, engineMetrics *metrics.Engine) (routes.Services, error) {
	gormDB := dbClient.DB()
	events := outbox.NewService(outbox.NewRepository(gormDB), logg)

	rate, err := cfg.Engine.CommissionRate()
	if err != nil {
		return routes.Services{}, err
	}
	calculator, err := commission.NewCalculator(rate)
	if err != nil {
		return routes.Services{}, err
	}
	zones := delivery.NewZoneTable(cfg.Engine.BaseDeliveryMinutes, cfg.Engine.DefaultZoneOffsetMinutes)

	notificationsSvc, err := notifications.NewService(notifications.NewRepository(gormDB), publisher)
	if err != nil {
		return routes.Services{}, err
	}

	deliverySvc, err := delivery.NewService(delivery.NewRepository(gormDB), zones, engineMetrics)
	if err != nil {
		return routes.Services{}, err
	}

	ordersSvc, err := orders.NewService(orders.ServiceParams{
		Repo:     orders.NewRepository(gormDB),
		Tx:       dbClient,
		Outbox:   events,
		ETA:      zones,
		Notifier: notificationsSvc,
		Metrics:  engineMetrics,
		Logger:   logg,
	})
	if err != nil {
		return routes.Services{}, err
	}

	ledgerSvc, err := ledger.NewService(ledger.ServiceParams{
		Repo:           ledger.NewRepository(gormDB),
		Tx:             dbClient,
		Outbox:         events,
		ToleranceCents: cfg.Engine.CashMatchToleranceCents,
		Metrics:        engineMetrics,
		Logger:         logg,
	})
	if err != nil {
		return routes.Services{}, err
	}

	settlementsSvc, err := settlements.NewService(settlements.ServiceParams{
		Repo:       settlements.NewRepository(gormDB),
		Tx:         dbClient,
		Outbox:     events,
		Calculator: calculator,
		Metrics:    engineMetrics,
		Logger:     logg,
	})
	if err != nil {
		return routes.Services{}, err
	}

	payoutsSvc, err := payouts.NewService(payouts.ServiceParams{
		Repo:       payouts.NewRepository(gormDB),
		Tx:         dbClient,
		Outbox:     events,
		Ledger:     ledgerSvc,
		Calculator: calculator,
		Notifier:   notificationsSvc,
		Metrics:    engineMetrics,
		Logger:     logg,
	})
	if err != nil {
		return routes.Services{}, err
	}

	return routes.Services{
		Orders:        ordersSvc,
		Delivery:      deliverySvc,
		Ledger:        ledgerSvc,
		Settlements:   settlementsSvc,
		Payouts:       payoutsSvc,
		Notifications: notificationsSvc,
	}, nil
}
