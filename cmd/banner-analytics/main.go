package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/radiusdt/banner-analytics/internal/analytics"
	"github.com/radiusdt/banner-analytics/internal/config"
	"github.com/radiusdt/banner-analytics/internal/database"
	"github.com/radiusdt/banner-analytics/internal/geo"
	"github.com/radiusdt/banner-analytics/internal/httpserver"
	"github.com/radiusdt/banner-analytics/internal/metrics"
	"github.com/radiusdt/banner-analytics/internal/middleware"
	"github.com/radiusdt/banner-analytics/internal/models"
	"github.com/radiusdt/banner-analytics/internal/storage"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	logger := setupLogger(cfg)
	defer logger.Sync()

	logger.Info("starting banner-analytics",
		zap.String("env", cfg.Server.Env),
		zap.String("addr", cfg.Server.Addr),
	)

	bootCtx, bootCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer bootCancel()

	// Initialize backend connections. Each backend is optional: a missing
	// one downgrades the affected stores to in-memory implementations.
	var db *database.PostgresDB
	var rdb *database.RedisDB
	var ch *database.ClickHouseDB

	db, err = database.NewPostgresDB(bootCtx, cfg.Database, logger)
	if err != nil {
		logger.Warn("PostgreSQL not available, using in-memory storage", zap.Error(err))
		db = nil
	} else {
		defer db.Close()
	}

	rdb, err = database.NewRedisDB(bootCtx, cfg.Redis, logger)
	if err != nil {
		logger.Warn("Redis not available, using in-memory counters", zap.Error(err))
		rdb = nil
	} else {
		defer rdb.Close()
	}

	ch, err = database.NewClickHouseDB(bootCtx, cfg.ClickHouse, logger)
	if err != nil {
		logger.Warn("ClickHouse not available, using in-memory event store", zap.Error(err))
		ch = nil
	} else {
		defer ch.Close()
	}

	// Store wiring: events prefer ClickHouse, counters and bucket claims
	// prefer Redis, sessions prefer Redis then Postgres, summaries and
	// banners prefer Postgres.
	var events storage.EventStore
	if ch != nil {
		chEvents, err := storage.NewClickHouseEventStore(bootCtx, ch.Conn)
		if err != nil {
			logger.Warn("ClickHouse event table setup failed, using in-memory event store", zap.Error(err))
		} else {
			events = chEvents
		}
	}
	if events == nil {
		events = storage.NewInMemoryEventStore()
	}

	var counters storage.CounterStore
	var claims storage.BucketClaimer
	if rdb != nil {
		counters = storage.NewRedisCounterStore(rdb.Client)
		claims = storage.NewRedisClaimer(rdb.Client)
	} else {
		counters = storage.NewInMemoryCounterStore()
		claims = storage.NewInMemoryClaimer()
	}

	var sessions storage.SessionStore
	switch {
	case rdb != nil:
		sessions = storage.NewRedisSessionStore(rdb.Client, cfg.Redis.SessionTTL)
	case db != nil:
		sessions = storage.NewPostgresSessionStore(db.Pool)
	default:
		sessions = storage.NewInMemorySessionStore()
	}

	var summaries storage.SummaryStore
	var banners storage.BannerRepo
	if db != nil {
		summaries = storage.NewPostgresSummaryStore(db.Pool)
		banners = storage.NewPostgresBannerRepo(db.Pool)
	} else {
		summaries = storage.NewInMemorySummaryStore()
		memBanners := storage.NewInMemoryBannerRepo()
		if cfg.IsDevelopment() {
			memBanners.Put(&models.Banner{ID: 1, Title: "Demo banner", CreatedAt: time.Now().UTC()})
			logger.Info("seeded demo banner", zap.Int64("banner_id", 1))
		}
		banners = memBanners
	}

	// GeoIP country enrichment (optional)
	var countryResolver analytics.CountryResolver
	if cfg.Geo.Enabled {
		resolver, err := geo.NewResolver(cfg.Geo.DatabasePath, logger)
		if err != nil {
			logger.Warn("geo database not available, country enrichment disabled", zap.Error(err))
		} else {
			defer resolver.Close()
			countryResolver = resolver
		}
	}

	m := metrics.NewMetrics("banner_analytics")

	// Analytics pipeline
	sessionTracker := analytics.NewSessionTracker(sessions, logger)
	counterUpdater := analytics.NewCounterUpdater(counters, sessionTracker, logger)

	var limiter *analytics.IngestLimiter
	if cfg.RateLimit.Enabled {
		limiter = analytics.NewIngestLimiter(cfg.RateLimit.EventsPerSec, cfg.RateLimit.EventsBurst)
	}

	ingest := analytics.NewIngestService(
		banners, events, counterUpdater, sessionTracker, limiter, countryResolver, m, logger,
	)
	reporter := analytics.NewReporter(banners, events, summaries, cfg.Report.RawEventCap, m, logger)
	aggregator := analytics.NewAggregator(
		events, summaries, banners, claims,
		analytics.AggregatorConfig{
			Interval:       cfg.Aggregation.Interval,
			HourlyLookback: cfg.Aggregation.HourlyLookback,
			DailyLookback:  cfg.Aggregation.DailyLookback,
			ClaimTTL:       cfg.Aggregation.ClaimTTL,
		},
		m, logger,
	)

	aggCtx, aggCancel := context.WithCancel(context.Background())
	defer aggCancel()
	go aggregator.Run(aggCtx)

	// Idle per-key limiter state would otherwise grow without bound.
	if limiter != nil {
		go func() {
			ticker := time.NewTicker(time.Hour)
			defer ticker.Stop()
			for {
				select {
				case <-aggCtx.Done():
					return
				case <-ticker.C:
					limiter.Reset()
				}
			}
		}()
	}

	// HTTP server
	deps := &httpserver.Dependencies{
		Ingest:   ingest,
		Reporter: reporter,
		Config:   cfg,
		Logger:   logger,
		Metrics:  m,
		Health: func(r *http.Request) map[string]string {
			out := make(map[string]string)
			out["postgres"] = backendState(r.Context(), db != nil, func(ctx context.Context) error { return db.Health(ctx) })
			out["redis"] = backendState(r.Context(), rdb != nil, func(ctx context.Context) error { return rdb.Health(ctx) })
			out["clickhouse"] = backendState(r.Context(), ch != nil, func(ctx context.Context) error { return ch.Health(ctx) })
			return out
		},
	}

	handler := httpserver.NewServer(deps)

	recovery := middleware.NewRecoveryMiddleware(logger)
	logging := middleware.NewLoggingMiddleware(logger)
	rateLimit := middleware.NewRateLimitMiddleware(cfg.RateLimit, logger)
	rateLimit.SetMetrics(m)

	chain := recovery.Handler(logging.Handler(rateLimit.Handler(handler)))

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      chain,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	aggCancel()

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}

func backendState(ctx context.Context, connected bool, health func(context.Context) error) string {
	if !connected {
		return "disabled"
	}
	if err := health(ctx); err != nil {
		return "unreachable"
	}
	return "ok"
}

func setupLogger(cfg *config.Config) *zap.Logger {
	var zapCfg zap.Config

	if cfg.IsDevelopment() {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	switch cfg.Log.Level {
	case "debug":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	}

	if cfg.Log.Format == "console" {
		zapCfg.Encoding = "console"
	}

	logger, err := zapCfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}
