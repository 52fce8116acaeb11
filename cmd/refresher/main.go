// Package main is the entry point for the signal refresher. It recomputes the
// derived market signals of every variant on a fixed interval, or once with
// -once.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/onnwee/cardpulse/internal/cache"
	"github.com/onnwee/cardpulse/internal/config"
	"github.com/onnwee/cardpulse/internal/db"
	"github.com/onnwee/cardpulse/internal/history"
	"github.com/onnwee/cardpulse/internal/jobs"
	"github.com/onnwee/cardpulse/internal/middleware"
	"github.com/onnwee/cardpulse/internal/refresh"
	"github.com/onnwee/cardpulse/internal/tracing"
	"github.com/onnwee/cardpulse/internal/variant"
)

const serviceName = "cardpulse-refresher"

var version = "dev"

func main() {
	help := flag.Bool("help", false, "display help message")
	configPath := flag.String("config", "", "path to a YAML config file")
	once := flag.Bool("once", false, "run a single refresh and exit")
	metricsAddr := flag.String("metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9091)")
	flag.Parse()

	if *help {
		fmt.Println("Cardpulse Signal Refresher")
		fmt.Println()
		fmt.Println("Usage: refresher [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, errs := config.Load(*configPath)
	if len(errs) > 0 {
		for _, err := range errs {
			slog.Error("invalid configuration", "error", err)
		}
		os.Exit(1)
	}

	logger := middleware.NewLogger(cfg.Env).With("service", serviceName)
	slog.SetDefault(logger)
	logger.Info("configuration loaded", "config", cfg.LogSummary())

	if err := run(cfg, logger, *once, *metricsAddr); err != nil {
		logger.Error("refresher failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger, once bool, metricsAddr string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := tracing.NewProvider(tracing.Config{
		ServiceName:    serviceName,
		ServiceVersion: version,
		Enabled:        cfg.TracingEnabled,
		Environment:    cfg.Env,
		ExporterType:   cfg.TracingExporter,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SamplingRate:   cfg.TracingSampleRate,
		InsecureMode:   !cfg.IsProduction(),
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Error("tracing shutdown failed", "error", err)
		}
	}()

	database, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer database.Close()

	var statusStore refresh.StatusStore = refresh.NewInMemoryStatusStore()
	if cfg.RedisURL != "" {
		client, err := cache.NewClient(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("init redis: %w", err)
		}
		defer client.Close()
		statusStore = cache.NewRunStatusStore(client, "", 0)
	} else {
		logger.Warn("REDIS_URL not set, refresh status is not shared with the API")
	}

	reg := prometheus.NewRegistry()
	refreshMetrics := refresh.NewMetrics()
	jobMetrics := jobs.NewMetrics()
	if err := refreshMetrics.Register(reg); err != nil {
		return fmt.Errorf("register refresh metrics: %w", err)
	}
	if err := jobMetrics.Register(reg); err != nil {
		return fmt.Errorf("register job metrics: %w", err)
	}

	if metricsAddr != "" {
		metricsServer := &http.Server{
			Addr:              metricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("serving metrics", "addr", metricsAddr)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server error", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsServer.Shutdown(shutdownCtx)
		}()
	}

	pipeline := refresh.NewPipeline(refresh.PipelineConfig{
		Logger:  logger,
		Metrics: refreshMetrics,
	}, variant.NewPostgresRepository(database), history.NewPostgresStore(database))

	job := refresh.NewJob(refresh.JobConfig{
		Interval:   cfg.RefreshInterval,
		Timeout:    cfg.RefreshTimeout,
		RunOnStart: true,
		Options: refresh.Options{
			Provider: cfg.Provider,
			Grade:    cfg.RawGrade,
			PageSize: cfg.PageSize,
		},
		Logger:      logger,
		JobMetrics:  jobMetrics,
		StatusStore: statusStore,
	}, pipeline)

	if once {
		summary, err := job.RunNow(ctx)
		if err != nil {
			return err
		}
		logger.Info("refresh complete", "run_id", summary.RunID, "rows_updated", summary.RowsUpdated, "duration", summary.Duration)
		return nil
	}

	if err := job.Start(ctx); err != nil {
		return err
	}
	logger.Info("signal refresh scheduled", "interval", cfg.RefreshInterval, "provider", cfg.Provider)

	<-ctx.Done()
	logger.Info("shutting down refresher...")
	job.Stop()
	logger.Info("refresher stopped")
	return nil
}
