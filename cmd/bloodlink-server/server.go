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
	"github.com/prometheus/client_golang/prometheus"

	"github.com/bloodlink/bloodlink/internal/config"
	"github.com/bloodlink/bloodlink/internal/domain/bloodgroup"
	"github.com/bloodlink/bloodlink/internal/domain/donation"
	"github.com/bloodlink/bloodlink/internal/domain/donor"
	"github.com/bloodlink/bloodlink/internal/domain/fulfillment"
	"github.com/bloodlink/bloodlink/internal/domain/matching"
	"github.com/bloodlink/bloodlink/internal/domain/notification"
	"github.com/bloodlink/bloodlink/internal/domain/request"
	"github.com/bloodlink/bloodlink/internal/platform/auth"
	"github.com/bloodlink/bloodlink/internal/platform/cache"
	"github.com/bloodlink/bloodlink/internal/platform/db"
	"github.com/bloodlink/bloodlink/internal/platform/events"
	"github.com/bloodlink/bloodlink/internal/platform/metrics"
	"github.com/bloodlink/bloodlink/internal/platform/middleware"
	tmpl "github.com/bloodlink/bloodlink/internal/platform/notification"
)

const requestTimeout = 30 * time.Second

func queueConfig(cfg *config.Config) fulfillment.QueueConfig {
	return fulfillment.QueueConfig{
		Workers:     cfg.MatchWorkers,
		Size:        cfg.MatchQueueSize,
		MaxAttempts: cfg.MatchMaxAttempts,
		PassTimeout: cfg.MatchPassTimeout,
		Backoff:     time.Second,
	}
}

// authMiddleware picks JWT validation, or the dev identity in development
// when no secret is configured.
func authMiddleware(cfg *config.Config) echo.MiddlewareFunc {
	var jwtMW echo.MiddlewareFunc
	if cfg.JWTSecret != "" {
		jwtMW = auth.JWTMiddleware(auth.JWTConfig{Issuer: cfg.JWTIssuer, SigningKey: []byte(cfg.JWTSecret)})
	}
	if cfg.IsDev() {
		return auth.DevAuthMiddleware(jwtMW)
	}
	return jwtMW
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Env)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}
	if err := bloodgroup.VerifyTable(); err != nil {
		logger.Fatal().Err(err).Msg("compatibility table is inconsistent")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Redis is optional; statistics go uncached without it.
	redisClient, err := cache.Connect(ctx, cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to redis")
	}
	if redisClient != nil {
		defer redisClient.Close()
		logger.Info().Msg("connected to redis")
	}

	publisher := events.New(cfg.KafkaBrokers, cfg.KafkaMatchTopic)
	defer publisher.Close()

	m := metrics.New(prometheus.DefaultRegisterer)

	// Domain wiring
	repos := fulfillment.Repositories{
		Requests:      request.NewRepoPG(pool),
		Donations:     donation.NewRepoPG(pool),
		Donors:        donor.NewRepoPG(pool),
		Notifications: notification.NewRepoPG(pool),
	}
	tx := db.NewTransactor(pool)
	lifecycle := request.NewLifecycle(repos.Requests, tx, m, logger)
	filter := matching.NewEligibilityFilter(repos.Donors, repos.Donations, cfg.MatchQueryTimeout, cfg.MatchCandidateLimit)
	notifier := matching.NewNotifier(repos.Notifications, tmpl.NewTemplateEngine(), publisher, m, logger)

	statsCache := cache.New(redisClient, "bloodlink:")
	svc := fulfillment.NewService(repos, tx, lifecycle, filter, matching.NewRanker(), notifier, m, logger).
		WithStatsCache(statsCache, cfg.StatsCacheTTL)
	queue := fulfillment.NewMatchQueue(svc, queueConfig(cfg), m, logger)
	svc.SetMatchQueue(queue)
	queue.Start()

	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	sweeper := fulfillment.NewExpirySweeper(repos.Requests, lifecycle, cfg.ExpirySweepInterval, logger).
		WithStatsCache(statsCache)
	sweeperDone := make(chan struct{})
	go func() {
		defer close(sweeperDone)
		sweeper.Run(sweepCtx)
	}()

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/health/db", db.HealthHandler(pool, func() *db.PoolStats { return db.GetPoolStats(pool) }))
	e.GET("/metrics", echo.WrapHandler(metrics.Handler(prometheus.DefaultGatherer)))

	apiV1 := e.Group("/api/v1", authMiddleware(cfg), middleware.RequestTimeout(requestTimeout))
	fulfillment.NewHandler(svc).RegisterRoutes(apiV1)

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
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	stopSweeper()
	<-sweeperDone
	if err := queue.Stop(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("match queue did not drain before deadline")
	}
	logger.Info().Msg("server stopped")
	return nil
}
