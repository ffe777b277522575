package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/marketplace-engine/pkg/config"
	"github.com/angelmondragon/marketplace-engine/pkg/db"
	"github.com/angelmondragon/marketplace-engine/pkg/logger"
	"github.com/angelmondragon/marketplace-engine/pkg/metrics"
	"github.com/angelmondragon/marketplace-engine/pkg/migrate"
	"github.com/angelmondragon/marketplace-engine/pkg/outbox"
	"github.com/angelmondragon/marketplace-engine/pkg/outbox/registry"
	"github.com/angelmondragon/marketplace-engine/pkg/pubsub"
)

const serviceName = "outbox-publisher"

func main() {
	requeue := flag.String("requeue", "", "event id to move from the DLQ back into the outbox, then exit")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: serviceName})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	if *requeue != "" {
		if err := requeueEvent(cfg, logg, *requeue); err != nil {
			logg.Error(context.Background(), "requeue failed", err)
			os.Exit(1)
		}
		return
	}

	if err := run(cfg, logg); err != nil {
		logg.Error(context.Background(), "outbox publisher stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logg *logger.Logger) error {
	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		return err
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		return err
	}

	out, topic, err := buildSink(context.Background(), cfg, logg)
	if err != nil {
		return err
	}
	defer func() {
		if err := out.Close(); err != nil {
			logg.Error(context.Background(), "error closing sink", err)
		}
	}()

	eventRegistry, err := registry.NewEventRegistry(topic)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	service, err := NewService(ServiceParams{
		Config:        cfg,
		Logger:        logg,
		DB:            dbClient,
		Sink:          out,
		Repository:    outbox.NewRepository(dbClient.DB()),
		Registry:      eventRegistry,
		DLQRepository: outbox.NewDLQRepository(dbClient.DB()),
		Metrics:       metrics.NewEngine(reg),
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":   cfg.App.Env,
		"sink":  out.Name(),
		"topic": topic,
	})
	logg.Info(ctx, "starting outbox publisher")

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
		return err
	}
	logg.Info(ctx, "outbox publisher shutting down gracefully")
	return nil
}

func requeueEvent(cfg *config.Config, logg *logger.Logger, raw string) error {
	eventID, err := uuid.Parse(raw)
	if err != nil {
		return fmt.Errorf("parse event id: %w", err)
	}
	ctx := logg.WithField(context.Background(), "event_id", eventID.String())

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer dbClient.Close()

	if err := outbox.NewDLQRepository(dbClient.DB()).Requeue(ctx, eventID); err != nil {
		return err
	}
	logg.Info(ctx, "dead-lettered event requeued")
	return nil
}

func buildSink(ctx context.Context, cfg *config.Config, logg *logger.Logger) (sink, string, error) {
	if strings.EqualFold(strings.TrimSpace(cfg.Outbox.Sink), config.OutboxSinkKafka) {
		s, err := newKafkaSink(cfg.Kafka)
		if err != nil {
			return nil, "", err
		}
		return s, cfg.Kafka.Topic, nil
	}

	client, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		return nil, "", err
	}
	return newPubSubSink(client), cfg.PubSub.DomainTopic, nil
}
