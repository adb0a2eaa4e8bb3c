package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	config "github.com/NordCoder/Authus/internal/config/janitor"
	"github.com/NordCoder/Authus/internal/obs"
	"github.com/NordCoder/Authus/internal/obs/retry"
	"github.com/NordCoder/Authus/internal/outbox"
	kafkaRepo "github.com/NordCoder/Authus/internal/repository/kafka"
	pg "github.com/NordCoder/Authus/internal/repository/postgres"
	"github.com/NordCoder/Authus/internal/services/janitor"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// janitor relays session events from the outbox to Kafka and sweeps expired
// refresh tokens.
func main() {
	cfgPath := flag.String("config", "config/janitor.yaml", "path to the YAML config")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatal(err)
	}

	l, err := obs.NewLogger(cfg.AsLoggerConfig())
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = l.Sync() }()
	l.Info("starting janitor",
		zap.Any("kafka", cfg.Kafka),
		zap.String("metrics_addr", cfg.MetricsAddr),
	)

	otelCloser, err := obs.SetupOTel(ctx, cfg.AsOTELConfig())
	if err != nil {
		l.Fatal("otel init", zap.Error(err))
	}
	defer func() { _ = otelCloser.Shutdown(context.Background()) }()

	db, err := pg.New(ctx, cfg.DB)
	if err != nil {
		l.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	ms := obs.BootstrapMetricsServer(cfg.MetricsAddr, map[string]obs.HealthCheck{"postgres": db.Ping}, l)

	g, gctx := errgroup.WithContext(ctx)

	sweeper := janitor.New(l.Named("sweep"), janitor.NewUC(pg.NewRefreshTokenRepo(db), pg.NewOutboxRepo(db)), cfg.Sweep)
	g.Go(func() error { return sweeper.Run(gctx) })

	if cfg.Kafka.Enable {
		if err := kafkaRepo.EnsureTopic(ctx, cfg.Kafka.Brokers, kafkaRepo.TopicSpec{
			Name:              cfg.Kafka.Topic,
			NumPartitions:     cfg.Kafka.Partitions,
			ReplicationFactor: cfg.Kafka.ReplicationFactor,
			MaxWait:           30 * time.Second,
		}, l); err != nil {
			l.Fatal("ensure topic", zap.Error(err))
		}

		producer := kafkaRepo.NewProducer(kafkaRepo.Config{Brokers: cfg.Kafka.Brokers, Topic: cfg.Kafka.Topic}, l)
		defer func() { _ = producer.Close() }()

		dispatch := outbox.MakeGlobalOutboxHandler(kafkaRepo.NewSessionEvents(producer), retry.DefaultKafkaPolicy(l))
		relay := outbox.NewOutboxRunner(l.Named("outbox"), pg.NewOutboxRepo(db), dispatch, cfg.Outbox)
		g.Go(func() error { return relay.Run(gctx) })
	} else {
		l.Warn("kafka disabled, session events stay in the outbox")
	}

	l.Info("janitor started")
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		l.Error("janitor stopped", zap.Error(err))
	}

	shCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_ = ms.Shutdown(shCtx)
	l.Info("bye")
}
