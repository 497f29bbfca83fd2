package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/agenda/agenda/internal/config"
	"github.com/agenda/agenda/internal/domain/professional"
	"github.com/agenda/agenda/internal/domain/scheduling"
	"github.com/agenda/agenda/internal/platform/auth"
	"github.com/agenda/agenda/internal/platform/db"
	"github.com/agenda/agenda/internal/platform/docstore"
	"github.com/agenda/agenda/internal/platform/docstore/fsstore"
	"github.com/agenda/agenda/internal/platform/docstore/memstore"
	"github.com/agenda/agenda/internal/platform/docstore/pgstore"
	"github.com/agenda/agenda/internal/platform/docstore/redisstore"
	"github.com/agenda/agenda/internal/platform/middleware"
	"github.com/agenda/agenda/internal/platform/telemetry"
)

const version = "0.1.0"

// openedStore is the configured document store plus the pool backing it when
// the backend is PostgreSQL.
type openedStore struct {
	store docstore.Store
	pool  *pgxpool.Pool
}

func (o *openedStore) Close() {
	if err := o.store.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "close store: %v\n", err)
	}
	if o.pool != nil {
		o.pool.Close()
	}
}

func openStore(ctx context.Context, cfg *config.Config) (*openedStore, error) {
	switch cfg.StoreBackend {
	case config.BackendMemory:
		return &openedStore{store: memstore.New()}, nil
	case config.BackendPostgres:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBSchema, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, err
		}
		return &openedStore{store: pgstore.New(pool), pool: pool}, nil
	case config.BackendRedis:
		st, err := redisstore.NewFromURL(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		return &openedStore{store: st}, nil
	case config.BackendFirestore:
		st, err := fsstore.New(ctx, cfg.FirestoreProjectID)
		if err != nil {
			return nil, err
		}
		return &openedStore{store: st}, nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}

func newLogger(cfg *config.Config) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	return logger.Level(level)
}

// authMiddleware verifies bearer tokens. Development without any token
// settings falls back to the X-Professional-ID header.
func authMiddleware(cfg *config.Config) echo.MiddlewareFunc {
	if cfg.IsDev() && cfg.AuthIssuer == "" && cfg.AuthJWKSURL == "" && cfg.AuthSigningKey == "" {
		return auth.DevAuthMiddleware()
	}
	jwtCfg := auth.JWTConfig{
		Issuer:   cfg.AuthIssuer,
		Audience: cfg.AuthAudience,
		JWKSURL:  cfg.AuthJWKSURL,
	}
	if cfg.AuthSigningKey != "" {
		jwtCfg.SigningKey = []byte(cfg.AuthSigningKey)
	}
	return auth.JWTMiddleware(jwtCfg)
}

// newServer wires the HTTP surface over store. dbPinger may be nil when the
// backend is not PostgreSQL.
func newServer(cfg *config.Config, store docstore.Store, dbPinger db.Pinger, logger zerolog.Logger, reg *prometheus.Registry) *echo.Echo {
	metrics := telemetry.New(reg)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(telemetry.TracingMiddleware())
	e.Use(metrics.Middleware())
	e.Use(echomw.BodyLimit("64K"))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", auth.DevProfessionalHeader},
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
			"store":   cfg.StoreBackend,
		})
	})
	if dbPinger != nil {
		e.GET("/health/db", db.HealthHandler(dbPinger))
	}
	e.GET("/metrics", metrics.Handler())

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 || rateLimitCfg.BurstSize <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	public := e.Group("/api/v1/public", middleware.RateLimit(rateLimitCfg))
	api := e.Group("/api/v1", authMiddleware(cfg))

	proSvc := professional.NewService(professional.NewRepo(store), logger)
	professional.NewHandler(proSvc).RegisterRoutes(public, api)

	opts := scheduling.Options{
		FreeLimit:            cfg.QuotaFreeLimit,
		EnforceQuotaOnDirect: cfg.QuotaEnforceDirect,
	}
	schedSvc := scheduling.NewService(scheduling.NewRepo(store), proSvc, opts, logger, metrics)
	scheduling.NewHandler(schedSvc).RegisterRoutes(public, api)

	return e
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx := context.Background()
	st, err := openStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("backend", cfg.StoreBackend).Msg("failed to open store")
	}
	defer st.Close()
	logger.Info().Str("backend", cfg.StoreBackend).Msg("store ready")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	var pinger db.Pinger
	if st.pool != nil {
		pinger = st.pool
	}
	e := newServer(cfg, st.store, pinger, logger, reg)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
