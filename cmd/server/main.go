package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/cakeshop/order-notifications/internal/api"
	"github.com/cakeshop/order-notifications/internal/api/handler"
	"github.com/cakeshop/order-notifications/internal/broker"
	"github.com/cakeshop/order-notifications/internal/config"
	"github.com/cakeshop/order-notifications/internal/consumer"
	"github.com/cakeshop/order-notifications/internal/db"
	"github.com/cakeshop/order-notifications/internal/domain"
	"github.com/cakeshop/order-notifications/internal/metrics"
	"github.com/cakeshop/order-notifications/internal/notifyapi"
	"github.com/cakeshop/order-notifications/internal/publisher"
	"github.com/cakeshop/order-notifications/internal/ratelimiter"
	"github.com/cakeshop/order-notifications/internal/repository"
	"github.com/cakeshop/order-notifications/internal/service"
)

func main() {
	// ---- configuration ----
	cfg, err := config.Load()
	if err != nil {
		bootLogger, _ := zap.NewProduction()
		bootLogger.Fatal("failed to load config", zap.Error(err))
	}

	logger := newLogger(cfg.LogLevel)
	defer logger.Sync() //nolint:errcheck

	if err := run(cfg, logger); err != nil {
		logger.Error("service stopped with error", zap.Error(err))
		logger.Sync() //nolint:errcheck
		os.Exit(1)
	}
	logger.Info("service stopped cleanly")
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx := context.Background()

	// ---- broker ----
	client, err := broker.Open(cfg.RabbitMQURL, broker.Options{
		ConnectionName: "order-notifications",
		Prefetch:       cfg.ConsumerPrefetch,
	}, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := client.Close(); err != nil {
			logger.Error("broker close error", zap.Error(err))
		}
	}()

	if err := client.DeclareTopology(ctx, broker.NewTopology(domain.QueueNames()...)); err != nil {
		return err
	}

	// ---- outcome store ----
	outcomes, closeStore, err := openOutcomeStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	// ---- core dependencies ----
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	notifications := notifyapi.New(cfg.NotificationURL, cfg.NotificationTimeout, cfg.NotificationRetryDelay, logger)
	limiter := ratelimiter.New(cfg.RateLimit)

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	if err := notifications.Ping(pingCtx); err != nil {
		// Messages wait in their queues until the API comes back.
		logger.Warn("notification service not reachable at startup",
			zap.String("url", notifications.BaseURL()), zap.Error(err))
	}
	pingCancel()

	// ---- consumers ----
	// Context for all background goroutines; cancelled on shutdown.
	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	onAcked, onRetried, onDeadLettered, onLatency := m.WorkerHooks()
	pool := consumer.NewPool(cfg, client, notifications, limiter, outcomes, logger, consumer.MetricHooks{
		OnAcked:        onAcked,
		OnRetried:      onRetried,
		OnDeadLettered: onDeadLettered,
		OnLatency:      onLatency,
	})
	pool.Start(workerCtx)
	logger.Info("consumers started", zap.Int("workers", pool.Size()))

	monitor := consumer.NewDepthMonitor(client,
		broker.NewTopology(domain.QueueNames()...).AllQueues(),
		cfg.QueueMonitorInterval, logger, m.SetQueueDepth)
	go monitor.Run(workerCtx)

	// ---- HTTP server ----
	onPublished, onPublishFailed := m.PublishHooks()
	pub := publisher.New(client, cfg.BulkPublishDelay, logger, publisher.Hooks{
		OnPublished: onPublished,
		OnFailed:    onPublishFailed,
	})
	health := handler.NewHealthHandler(domain.QueueNames(), domain.DeadLetterQueue, cfg.NotificationURL, notifications, client)
	router := api.NewRouter(
		publisher.NewOrderNotifier(pub, logger),
		service.NewQueueService(client, outcomes, logger),
		health, cfg.BulkPublishLimit(publisher.MaxBulkCount), reg, logger,
	)
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	// ---- wait for a reason to stop ----
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var fatal error
	select {
	case sig := <-quit:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
	case err, ok := <-client.NotifyClose():
		if ok && err != nil {
			fatal = err
			logger.Error("broker connection lost", zap.Error(err))
		}
	case err := <-pool.Errors():
		fatal = err
		logger.Error("consumer stopped unexpectedly", zap.Error(err))
	case err := <-serveErr:
		fatal = err
		logger.Error("HTTP server error", zap.Error(err))
	}

	// 1. Stop accepting new HTTP requests.
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	// 2. Stop consuming; prefetched messages go back to their queues.
	cancelWorkers()

	// 3. Let in-flight messages finish before the connection is closed.
	waitDone := make(chan struct{})
	go func() {
		pool.Wait()
		close(waitDone)
	}()
	select {
	case <-waitDone:
	case <-shutdownCtx.Done():
		logger.Warn("consumers still busy at shutdown deadline; unacked messages will be redelivered")
	}

	return fatal
}

// openOutcomeStore returns the Postgres store when DATABASE_URL is set and an
// in-memory one otherwise.
func openOutcomeStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repository.OutcomeRepository, func(), error) {
	if cfg.DatabaseURL == "" {
		logger.Info("DATABASE_URL not set; outcomes kept in memory")
		return repository.NewMemoryOutcomeRepository(0), func() {}, nil
	}

	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	if err := db.Migrate(cfg.DatabaseURL); err != nil {
		pool.Close()
		return nil, nil, err
	}
	logger.Info("database migrations applied")
	return repository.NewPgOutcomeRepository(pool), pool.Close, nil
}

func newLogger(level string) *zap.Logger {
	var cfg zap.Config
	if level == "debug" {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	if lvl, err := zapcore.ParseLevel(level); err == nil {
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	logger, err := cfg.Build()
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger.With(zap.String("service", "order-notifications"))
}
