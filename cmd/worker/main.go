// Package main runs the background email worker: registration confirmations
// from the Redis queue, delivered over SMTP and logged to email_logs.
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
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fincoach/backend/config"
	"github.com/fincoach/backend/internal/notifications"
	"github.com/fincoach/backend/pkg/database"
	"github.com/fincoach/backend/pkg/metrics"
	"github.com/fincoach/backend/pkg/queue"
	"github.com/fincoach/backend/pkg/redis"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), cfg.Database.PoolOptions(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := redis.NewClient(ctx, cfg.Redis.Options(), logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	appMetrics := metrics.New(reg, cfg.Metrics.Namespace)
	if err := metrics.RegisterPoolStats(reg, pool, cfg.Metrics.Namespace, "worker"); err != nil {
		logger.Warn("pool stats metrics disabled", zap.Error(err))
	}

	mailer := notifications.NewMailer(notifications.SMTPConfig{
		Host:     cfg.Email.SMTPHost,
		Port:     cfg.Email.SMTPPort,
		Username: cfg.Email.SMTPUser,
		Password: cfg.Email.SMTPPass,
		From:     cfg.Email.FromAddress,
		FromName: cfg.Email.FromName,
	}, logger)
	if cfg.Email.SMTPHost == "" {
		logger.Warn("SMTP_HOST not set, emails are logged only")
	}

	worker := notifications.NewWorker(queue.NewQueue(rdb, logger), mailer,
		notifications.NewRepository(pool), appMetrics, logger)

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		worker.Run(workerCtx)
		close(done)
	}()
	logger.Info("email worker started")

	metricsSrv := &http.Server{
		Addr:              ":" + cfg.Metrics.WorkerPort,
		Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	_ = metricsSrv.Shutdown(shutdownCtx)
	select {
	case <-done:
	case <-shutdownCtx.Done():
		logger.Warn("email worker did not stop in time")
	}
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
