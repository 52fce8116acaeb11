// Package main is the entry point for the cardpulse API server.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/onnwee/cardpulse/internal/api"
	"github.com/onnwee/cardpulse/internal/cache"
	"github.com/onnwee/cardpulse/internal/config"
	"github.com/onnwee/cardpulse/internal/db"
	"github.com/onnwee/cardpulse/internal/health"
	"github.com/onnwee/cardpulse/internal/middleware"
	"github.com/onnwee/cardpulse/internal/ranking"
	"github.com/onnwee/cardpulse/internal/refresh"
	"github.com/onnwee/cardpulse/internal/scarcity"
	"github.com/onnwee/cardpulse/internal/search"
	"github.com/onnwee/cardpulse/internal/tracing"
)

const serviceName = "cardpulse-api"

// version is set at build time with -ldflags.
var version = "dev"

// serverConfig holds everything the HTTP handler tree is built from.
type serverConfig struct {
	Logger         *slog.Logger
	Searcher       api.Searcher
	Curve          scarcity.Curve
	StatusStore    refresh.StatusStore
	RateLimitStore middleware.RateLimitStore
	SearchLimit    middleware.RateLimitConfig
	Critical       []api.HealthChecker
	Advisory       []api.HealthChecker
	Registry       *prometheus.Registry
	TracingEnabled bool
}

func main() {
	help := flag.Bool("help", false, "display help message")
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	if *help {
		fmt.Println("Cardpulse API Server")
		fmt.Println()
		fmt.Println("Usage: api [options]")
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

	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)
	logger.Info("configuration loaded", "config", cfg.LogSummary())

	if err := run(cfg, logger); err != nil {
		logger.Error("api server failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx := context.Background()

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

	calibration, err := ranking.LoadCalibration(cfg.CalibrationPath)
	if err != nil {
		logger.Warn("calibration file rejected, using defaults", "path", cfg.CalibrationPath, "error", err)
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = cache.NewClient(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("init redis: %w", err)
		}
		defer redisClient.Close()
	}

	sc := newServerConfig(logger, database, redisClient, calibration, cfg.RefreshInterval)
	sc.TracingEnabled = cfg.TracingEnabled

	handler, err := newHandler(sc)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", "port", cfg.Port, "version", version)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	case <-quit:
	}

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

// newServerConfig wires the production stores. Without Redis the refresh
// status and rate limit state are process local.
func newServerConfig(logger *slog.Logger, database *sql.DB, redisClient *redis.Client, calibration *ranking.Calibration, refreshInterval time.Duration) serverConfig {
	sc := serverConfig{
		Logger:      logger,
		Searcher:    search.NewService(search.NewPostgresCandidateSource(database), calibration.Search, logger),
		Curve:       calibration.Scarcity,
		SearchLimit: middleware.DefaultSearchLimit(),
		Critical:    []api.HealthChecker{health.NewDBChecker(database)},
		Registry:    prometheus.NewRegistry(),
	}

	if redisClient != nil {
		sc.StatusStore = cache.NewRunStatusStore(redisClient, "", 0)
		sc.RateLimitStore = middleware.NewRedisRateLimitStore(redisClient)
		sc.Critical = append(sc.Critical, health.NewRedisChecker(redisClient))
	} else {
		logger.Warn("REDIS_URL not set, refresh status and rate limits are local to this process")
		sc.StatusStore = refresh.NewInMemoryStatusStore()
		store := middleware.NewInMemoryRateLimitStore()
		go func() {
			ticker := time.NewTicker(time.Minute)
			defer ticker.Stop()
			for range ticker.C {
				store.Cleanup()
			}
		}()
		sc.RateLimitStore = store
	}

	// Two missed runs make the derived signals stale; three failures in a
	// row mean the refresher needs attention.
	sc.Advisory = []api.HealthChecker{health.NewRefreshChecker(sc.StatusStore, 2*refreshInterval, 3)}
	return sc
}

// newHandler builds the routed handler with the middleware chain
// RequestID -> Tracing -> HTTPMetrics -> Logging.
func newHandler(sc serverConfig) (http.Handler, error) {
	if sc.Logger == nil {
		sc.Logger = slog.Default()
	}
	if sc.Registry == nil {
		sc.Registry = prometheus.NewRegistry()
	}

	metrics := middleware.NewMetrics()
	if err := metrics.Register(sc.Registry); err != nil {
		return nil, fmt.Errorf("register middleware metrics: %w", err)
	}
	if err := sc.Registry.Register(collectors.NewGoCollector()); err != nil {
		return nil, fmt.Errorf("register go collector: %w", err)
	}
	if err := sc.Registry.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, fmt.Errorf("register process collector: %w", err)
	}

	searchHandlers := api.NewSearchHandlers(sc.Searcher, sc.Logger)
	scarcityHandlers := api.NewScarcityHandlers(sc.Curve)
	refreshHandlers := api.NewRefreshHandlers(sc.StatusStore, sc.Logger)
	healthHandlers := api.NewHealthHandlers(api.HealthHandlersConfig{
		Critical: sc.Critical,
		Advisory: sc.Advisory,
		Logger:   sc.Logger,
	})

	limit := middleware.RateLimiter(sc.RateLimitStore, sc.SearchLimit, middleware.IPKeyFunc(), metrics, sc.Logger)

	mux := http.NewServeMux()
	mux.Handle("/search", limit(http.HandlerFunc(searchHandlers.Search)))
	mux.HandleFunc("/scarcity", scarcityHandlers.Score)
	mux.HandleFunc("/refresh/status", refreshHandlers.Status)
	mux.HandleFunc("/health", healthHandlers.Health)
	mux.HandleFunc("/ready", healthHandlers.Ready)
	mux.Handle("/metrics", promhttp.HandlerFor(sc.Registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		ctx := middleware.SetErrorCode(r.Context(), api.ErrCodeNotFound)
		api.WriteError(w, ctx, http.StatusNotFound, api.ErrCodeNotFound, "The requested resource was not found")
	})

	var handler http.Handler = middleware.Logging(sc.Logger)(mux)
	handler = middleware.HTTPMetrics(metrics)(handler)
	if sc.TracingEnabled {
		handler = middleware.Tracing(serviceName)(handler)
	}
	return middleware.RequestID(handler), nil
}
