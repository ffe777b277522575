package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/marketplace-engine/internal/cron"
	"github.com/angelmondragon/marketplace-engine/internal/ledger"
	"github.com/angelmondragon/marketplace-engine/internal/notifications"
	"github.com/angelmondragon/marketplace-engine/pkg/config"
	"github.com/angelmondragon/marketplace-engine/pkg/db"
	"github.com/angelmondragon/marketplace-engine/pkg/logger"
	"github.com/angelmondragon/marketplace-engine/pkg/metrics"
	"github.com/angelmondragon/marketplace-engine/pkg/migrate"
	"github.com/angelmondragon/marketplace-engine/pkg/outbox"
	"github.com/angelmondragon/marketplace-engine/pkg/redis"
)

const lockKeyFormat = "mkt:cron-worker:lock:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
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

	var lock cron.Lock = &cron.LocalLock{}
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
		// The lease outlives one cycle so a slow sweep is never doubled.
		lock, err = cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), 2*cfg.Maintenance.Interval)
		if err != nil {
			logg.Error(context.Background(), "failed to create maintenance lock", err)
			os.Exit(1)
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	engineMetrics := metrics.NewEngine(reg)

	registry, err := buildJobs(cfg, logg, dbClient, engineMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to build maintenance jobs", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  engineMetrics,
		Interval: cfg.Maintenance.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create maintenance service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"interval": cfg.Maintenance.Interval.String(),
	})
	logg.Info(ctx, "starting cron worker")

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return service.Run(groupCtx)
	})
	if addr := strings.TrimSpace(cfg.App.WorkerMetricsAddr); addr != "" {
		listener := metrics.NewListener(addr, reg)
		group.Go(func() error {
			return listener.Run(groupCtx)
		})
	}
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func buildJobs(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, engineMetrics *metrics.Engine) (*cron.Registry, error) {
	gormDB := dbClient.DB()
	outboxRepo := outbox.NewRepository(gormDB)
	notificationsRepo := notifications.NewRepository(gormDB)

	ledgerSvc, err := ledger.NewService(ledger.ServiceParams{
		Repo:           ledger.NewRepository(gormDB),
		Tx:             dbClient,
		Outbox:         outbox.NewService(outboxRepo, logg),
		ToleranceCents: cfg.Engine.CashMatchToleranceCents,
		Metrics:        engineMetrics,
		Logger:         logg,
	})
	if err != nil {
		return nil, err
	}

	outboxRetention, err := cron.NewRetentionJob(cron.RetentionJobParams{
		Name:      "outbox-retention",
		Logger:    logg,
		Retention: cfg.Maintenance.OutboxRetention,
		Purge:     outboxRepo.DeletePublishedBefore,
	})
	if err != nil {
		return nil, err
	}
	dlqRetention, err := cron.NewRetentionJob(cron.RetentionJobParams{
		Name:      "outbox-dlq-retention",
		Logger:    logg,
		Retention: cfg.Maintenance.DLQRetention,
		Purge:     outbox.NewDLQRepository(gormDB).DeleteFailedBefore,
	})
	if err != nil {
		return nil, err
	}
	notificationCleanup, err := cron.NewRetentionJob(cron.RetentionJobParams{
		Name:      "notification-cleanup",
		Logger:    logg,
		Retention: cfg.Maintenance.NotificationRetention,
		Purge:     notificationsRepo.DeleteReadBefore,
	})
	if err != nil {
		return nil, err
	}
	cashAudit, err := cron.NewPendingCashAuditJob(logg, ledgerSvc, cfg.Maintenance.PendingCashGrace)
	if err != nil {
		return nil, err
	}

	return cron.NewRegistry(outboxRetention, dlqRetention, notificationCleanup, cashAudit).Without(cfg.Maintenance.DisabledJobs...), nil
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
