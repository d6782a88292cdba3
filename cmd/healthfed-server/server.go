package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/healthfed/healthfed/internal/config"
	"github.com/healthfed/healthfed/internal/domain/clinical"
	"github.com/healthfed/healthfed/internal/domain/federation"
	"github.com/healthfed/healthfed/internal/domain/insurance"
	"github.com/healthfed/healthfed/internal/platform/auth"
	"github.com/healthfed/healthfed/internal/platform/db"
	"github.com/healthfed/healthfed/internal/platform/graph"
	"github.com/healthfed/healthfed/internal/platform/metrics"
	"github.com/healthfed/healthfed/internal/platform/middleware"
)

const maxBodySize = "1M"

// routeRegistrar is implemented by every domain handler.
type routeRegistrar interface {
	RegisterRoutes(api *echo.Group)
}

// healthChecks are mounted under /health next to the liveness check.
type healthChecks struct {
	db    echo.HandlerFunc
	graph echo.HandlerFunc
}

// newServer builds the echo instance: global middleware, public endpoints
// and the authenticated /api group with the given handlers.
func newServer(cfg *config.Config, logger zerolog.Logger, m *metrics.Metrics, health healthChecks, handlers ...routeRegistrar) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.ErrorHandler(logger)

	e.Pre(echomw.RemoveTrailingSlash())

	// Global middleware
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.HTTPMetrics(m))
	e.Use(echomw.SecureWithConfig(echomw.SecureConfig{
		XSSProtection:      "0",
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "DENY",
		HSTSMaxAge:         31536000,
		ReferrerPolicy:     "no-referrer",
	}))
	e.Use(echomw.BodyLimit(maxBodySize))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	// Auth middleware
	if cfg.IsDev() && cfg.AuthSigningKey == "" {
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			SigningKey: []byte(cfg.AuthSigningKey),
			Skipper:    auth.AuthSkipper,
		}))
	}

	// Public endpoints
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	if health.db != nil {
		e.GET("/health/db", health.db)
	}
	if health.graph != nil {
		e.GET("/health/graph", health.graph)
	}
	e.GET("/metrics", m.Handler())

	api := e.Group("/api")
	api.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
		IdleTTL:           middleware.DefaultRateLimitConfig().IdleTTL,
	}))
	api.Use(middleware.Audit(logger))

	for _, h := range handlers {
		h.RegisterRoutes(api)
	}
	return e
}

func runServer() error {
	// Config
	cfg, err := config.Load()
	if err != nil {
		bootLogger := newLogger(nil)
		bootLogger.Fatal().Err(err).Msg("failed to load config")
	}
	logger := newLogger(cfg)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}
	if cfg.IsDev() && cfg.AuthSigningKey == "" {
		logger.Warn().Msg("AUTH_SIGNING_KEY not set: every request is granted the admin role (development only)")
	}

	m := metrics.New()
	ctx := context.Background()

	// Relational store
	pool, err := openPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to relational store")
	}
	defer pool.Close()
	logger.Info().Msg("connected to relational store")

	rowStore := db.NewStore(pool, db.StoreOptions{Timeout: cfg.StoreTimeout, Logger: logger, Metrics: m})

	// Graph store
	driver, err := graph.NewDriver(ctx, graph.DriverConfig{
		URI:            cfg.Neo4jURI,
		Username:       cfg.Neo4jUsername,
		Password:       cfg.Neo4jPassword,
		MaxPoolSize:    cfg.Neo4jMaxPool,
		ConnectTimeout: cfg.StoreTimeout,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to graph store")
	}
	defer driver.Close(context.Background())
	logger.Info().Msg("connected to graph store")

	graphStore := graph.NewStore(driver, graph.StoreOptions{
		Database: cfg.Neo4jDatabase,
		Timeout:  cfg.StoreTimeout,
		Logger:   logger,
		Metrics:  m,
	})
	if err := graphStore.EnsureSchema(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to ensure graph schema")
	}

	// Clinical domain
	patientRepo := clinical.NewPatientRepoPG(rowStore)
	doctorRepo := clinical.NewDoctorRepoPG(rowStore)
	recordRepo := clinical.NewMedicalRecordRepoPG(rowStore)
	clinicalSvc := clinical.NewService(patientRepo, doctorRepo, recordRepo)

	// Insurance domain
	policyRepo := insurance.NewPolicyRepoNeo4j(graphStore)
	claimRepo := insurance.NewClaimRepoNeo4j(graphStore)
	insuranceSvc := insurance.NewService(policyRepo, claimRepo)

	// Federation
	resolver := federation.NewResolver(patientRepo, recordRepo, policyRepo, claimRepo,
		federation.Options{Logger: logger, Metrics: m})

	e := newServer(cfg, logger, m,
		healthChecks{db: db.HealthHandler(pool), graph: graph.HealthHandler(driver)},
		clinical.NewHandler(clinicalSvc),
		insurance.NewHandler(insuranceSvc),
		federation.NewHandler(resolver),
	)

	// Graceful shutdown
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
