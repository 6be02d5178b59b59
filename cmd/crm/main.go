package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/boddenberg/pharma-crm/internal/analytics"
	"github.com/boddenberg/pharma-crm/internal/config"
	"github.com/boddenberg/pharma-crm/internal/domain"
	"github.com/boddenberg/pharma-crm/internal/handler"
	"github.com/boddenberg/pharma-crm/internal/importer"
	"github.com/boddenberg/pharma-crm/internal/infra/cache"
	"github.com/boddenberg/pharma-crm/internal/infra/observability"
	"github.com/boddenberg/pharma-crm/internal/infra/resilience"
	"github.com/boddenberg/pharma-crm/internal/infra/supabase"
	"github.com/boddenberg/pharma-crm/internal/service"

	"go.uber.org/zap"
)

func main() {
	// --- Config (.env + environment) ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.Bool("use_supabase", cfg.UseSupabase()),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Duration("cache_ttl", cfg.CacheTTL),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("initial_backoff", cfg.InitialBackoff),
		zap.Float64("rate_limit_rps", cfg.RateLimitRPS),
		zap.String("default_period", cfg.DefaultPeriod),
	)

	defaultPeriod, err := analytics.ParsePeriod(cfg.DefaultPeriod)
	if err != nil {
		logger.Fatal("invalid DEFAULT_PERIOD", zap.Error(err))
	}

	// --- Tracing ---
	shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, "pharma-crm")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Cache ---
	invoiceCache := cache.New[[]domain.Invoice](cfg.CacheTTL)
	defer invoiceCache.Stop()

	// --- Resilience ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}
	cb := resilience.NewCircuitBreaker("record-store", logger)

	// --- Rate limiting ---
	limiter := handler.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, metrics, logger)
	defer limiter.Stop()

	services := handler.Services{
		RateLimiter: limiter,
		CORSOrigins: cfg.CORSAllowedOrigins,
	}

	// --- Record store + services ---
	if cfg.UseSupabase() {
		logger.Info("using Supabase as record store", zap.String("supabase_url", cfg.SupabaseURL))

		httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
		store := supabase.NewClient(
			httpClient,
			cfg.SupabaseURL,
			cfg.SupabaseAnonKey,
			cfg.SupabaseServiceKey,
			cb,
			resilienceCfg,
			logger,
		)

		services.Store = store
		services.Clients = service.NewClientService(store, logger)
		services.Analytics = service.NewAnalyticsService(
			store,
			store,
			invoiceCache,
			analytics.NewEngine(),
			defaultPeriod,
			time.Now,
			metrics,
			logger,
		)
		services.Invoices = service.NewInvoiceService(
			store,
			store,
			invoiceCache,
			resilience.NewBulkhead(cfg.MaxConcurrency),
			importer.Options{MaxRows: cfg.ImportMaxRows},
			metrics,
			logger,
		)
	} else {
		logger.Warn("SUPABASE_URL not set: client, invoice and analytics routes unavailable")
	}

	// --- Router ---
	router := handler.NewRouter(services, metrics, logger)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
