package main

import (
	"context"
	"errors"
	"github.com/ariefcatur/go-order-inventory/internal/config"
	kafkax "github.com/ariefcatur/go-order-inventory/internal/kafka"
	"github.com/ariefcatur/go-order-inventory/internal/notify"
	"github.com/ariefcatur/go-order-inventory/internal/observability"
	"github.com/ariefcatur/go-order-inventory/internal/redisx"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	service := cfg.ServiceName + "-notifier"

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otelOpts := observability.Options{
		ServiceName:    service,
		ServiceVersion: "1.0.0",
		Endpoint:       cfg.OtelEndpoint,
		AuthHeader:     cfg.OtelAuthHeader,
		Insecure:       cfg.OtelInsecure,
	}
	shutdownLogs, err := observability.SetupLogging(ctx, otelOpts)
	if err != nil {
		log.Fatalf("otel logging: %v", err)
	}
	shutdownTraces, err := observability.SetupTracing(ctx, otelOpts)
	if err != nil {
		log.Fatalf("otel tracing: %v", err)
	}
	logger, err := observability.NewLogger(otelOpts, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal("redis ping", zap.Error(err))
	}

	handler := notify.NewConfirmationHandler(
		redisx.NewDedup(rdb, service),
		notify.LogMailer{Logger: logger.Named("mailer")},
		logger.Named("confirmation"),
	)
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.NotifierGroup, cfg.NotifyTopic, cfg.NotifierWorkers, logger.Named("consumer"))

	logger.Info("notifier consumer started",
		zap.String("group", cfg.NotifierGroup),
		zap.String("topic", cfg.NotifyTopic),
		zap.Int("workers", cfg.NotifierWorkers),
	)
	if err := cons.Start(ctx, handler.Handle); err != nil {
		logger.Error("consumer exit", zap.Error(err))
	}
	logger.Info("notifier stopped")

	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := errors.Join(shutdownTraces(sctx), shutdownLogs(sctx)); err != nil {
		logger.Warn("otel shutdown", zap.Error(err))
	}
	if ctx.Err() == nil {
		_ = logger.Sync()
		os.Exit(1)
	}
}
