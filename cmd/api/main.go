package main

import (
	"context"
	"errors"
	"github.com/ariefcatur/go-order-inventory/internal/clock"
	"github.com/ariefcatur/go-order-inventory/internal/config"
	"github.com/ariefcatur/go-order-inventory/internal/httpx"
	"github.com/ariefcatur/go-order-inventory/internal/inventory"
	kafkax "github.com/ariefcatur/go-order-inventory/internal/kafka"
	"github.com/ariefcatur/go-order-inventory/internal/notify"
	"github.com/ariefcatur/go-order-inventory/internal/observability"
	"github.com/ariefcatur/go-order-inventory/internal/postgres"
	"github.com/ariefcatur/go-order-inventory/internal/redisx"
	"github.com/ariefcatur/go-order-inventory/internal/workflow"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"log"
	"net/http"
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
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry first so the logger can tee into the OTLP bridge.
	otelOpts := observability.Options{
		ServiceName:    cfg.ServiceName,
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

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN, cfg.DBMaxConns)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()
	if err := postgres.Migrate(ctx, db); err != nil {
		logger.Fatal("db migrate", zap.Error(err))
	}
	iso, err := postgres.ParseIsolation(cfg.TxIsolation)
	if err != nil {
		logger.Fatal("tx isolation", zap.Error(err))
	}
	store := postgres.NewStore(db, iso)

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producer behind the notification dispatcher
	prod, err := kafkax.NewProducer(cfg.KafkaBrokers, cfg.NotifyTopic, cfg.ProducerBuffer, logger.Named("producer"))
	if err != nil {
		logger.Fatal("kafka producer", zap.Error(err))
	}
	prod.Start(ctx)

	clk := clock.NewSystem()
	wf := workflow.New(
		store,
		inventory.NewLedger(store),
		notify.NewKafkaDispatcher(prod, cfg.ServiceName, clk, logger.Named("notify")),
		clk,
		logger.Named("workflow"),
		workflow.RetryPolicy{Attempts: cfg.RetryAttempts, BaseDelay: cfg.RetryBaseDelay},
	)

	router := httpx.NewRouter(logger.Named("http"))
	(&httpx.OrdersHandler{
		Orders:   wf,
		Products: store,
		Status:   redisx.NewStatusCache(rdb),
		Idem:     redisx.NewIdempotency(rdb),
		Logger:   logger.Named("orders"),
	}).Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down")

	sctx, scancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer scancel()
	if err := srv.Shutdown(sctx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	// No requests left, so no more notifications: flush what is queued.
	prod.Close()
	prod.WaitClosed()
	cancel()

	if err := errors.Join(shutdownTraces(sctx), shutdownLogs(sctx)); err != nil {
		logger.Warn("otel shutdown", zap.Error(err))
	}
}
