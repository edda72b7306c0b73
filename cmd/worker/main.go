package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"staffpresence/internal/app"
	"staffpresence/internal/config"
	"staffpresence/internal/logger"
	"staffpresence/internal/metrics"
	"staffpresence/internal/worker"
)

// Worker consumes change notifications and keeps today's summary current.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	lg := logger.New(cfg.LogLevel, cfg.LogFormat, !cfg.IsProduction())
	defer func() { _ = lg.Sync() }()

	if err := cfg.ValidateWorker(); err != nil {
		lg.Fatal("invalid worker configuration", zap.Error(err))
	}
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(lg.Named("metrics"))
	c, err := app.Build(ctx, cfg, m, lg)
	defer func() { _ = c.Close() }()
	if err != nil {
		lg.Fatal("startup failed", zap.Error(err))
	}

	srv := worker.NewServer(":"+cfg.WorkerPort, prometheus.DefaultGatherer, c.Healthy)
	go func() {
		lg.Info("starting metrics listener", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Error("metrics listener stopped", zap.Error(err))
			stop()
		}
	}()

	w := worker.New(c.Queue, c.Aggregator, c.Ledger.Today, m, lg.Named("worker"))
	runErr := w.Run(ctx, cfg.SummarySchedule)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Warn("metrics listener forced shutdown", zap.Error(err))
	}
	if runErr != nil {
		lg.Fatal("worker failed", zap.Error(runErr))
	}
}
