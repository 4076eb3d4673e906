package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/fieldsight/core-service/internal/api/http"
	"github.com/fieldsight/core-service/internal/api/http/handlers"
	"github.com/fieldsight/core-service/internal/auth"
	"github.com/fieldsight/core-service/internal/config"
	"github.com/fieldsight/core-service/internal/events"
	"github.com/fieldsight/core-service/internal/observability"
	"github.com/fieldsight/core-service/internal/persistence"
	"github.com/fieldsight/core-service/internal/ratelimit"
	"github.com/fieldsight/core-service/internal/repository"
	"github.com/fieldsight/core-service/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	metrics := observability.NewMetrics()

	tokenManager := auth.NewTokenManager(
		cfg.Auth.JWTSecret,
		cfg.Auth.AccessTokenTTL(),
		cfg.Auth.RefreshTokenTTL(),
	)
	hasher := auth.NewBcryptHasher(cfg.Auth.BcryptCost)

	dispatcher := events.NewInMemoryDispatcher()
	auditService := service.NewAuditService(dispatcher, logger)
	auditService.RegisterHandlers()

	store := repository.NewPostgresStore(pg.PoolHandle())
	authService := service.NewAuthService(store, tokenManager, hasher, dispatcher, logger)

	window := cfg.RateLimit.Window()
	loginLimiter := ratelimit.NewLimiter(window)
	registerLimiter := ratelimit.NewLimiter(window)
	tenantLimiter := ratelimit.NewLimiter(window)
	for _, l := range []*ratelimit.Limiter{loginLimiter, registerLimiter, tenantLimiter} {
		l.StartSweeper()
		defer l.Stop()
	}

	identityGuard := httptransport.NewIdentityRateGuard(
		loginLimiter, registerLimiter,
		cfg.RateLimit.LoginPerMinute, cfg.RateLimit.RegisterPerMinute,
		metrics, dispatcher, logger,
	)
	tenantGuard := httptransport.NewTenantRateGuard(
		tenantLimiter, cfg.RateLimit.TenantPerMinute, metrics, dispatcher, logger,
	)
	authStage := auth.NewMiddleware(tokenManager, metrics, logger)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})

	pipeline := httptransport.NewPipeline(httptransport.PipelineConfig{
		Logger:        logger,
		Metrics:       metrics,
		CORS:          cfg.CORS,
		Timeout:       cfg.App.RequestTimeout(),
		IdentityGuard: identityGuard,
		AuthStage:     authStage,
		TenantGuard:   tenantGuard,
	})
	pipeline.Apply(app)

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health: handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Auth:   handlers.NewAuthHandler(authService),
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
