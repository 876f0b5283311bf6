package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-cafe/internal/app"
	"github.com/odyssey-erp/odyssey-cafe/internal/audit"
	"github.com/odyssey-erp/odyssey-cafe/internal/auth"
	"github.com/odyssey-erp/odyssey-cafe/internal/observability"
	"github.com/odyssey-erp/odyssey-cafe/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-cafe/internal/platform/db"
	"github.com/odyssey-erp/odyssey-cafe/internal/rbac"
	"github.com/odyssey-erp/odyssey-cafe/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadAPIConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer cache.Close(redisClient, logger)

	metrics := observability.NewMetrics()

	redisOpt := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient := jobs.NewClient(redisOpt)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpt)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	tokens, err := auth.NewTokenIssuer(cfg.AuthTokenSecret, cfg.AuthIssuer, cfg.AuthTokenTTL)
	if err != nil {
		logger.Error("init token issuer", slog.Any("error", err))
		os.Exit(1)
	}
	authService := auth.NewService(
		auth.NewRepository(dbpool),
		tokens,
		auth.NewRedisRevocationStore(redisClient, ""),
		auth.ServiceConfig{Events: jobClient, Metrics: metrics, Logger: logger},
	)
	authHandler := auth.NewHandler(logger, authService, cfg.AuthLoginLimit)

	overrides := rbac.NewOverrideService(rbac.NewOverrideRepository(dbpool), cfg.RBACOverrideCacheTTL, logger)
	rbacMiddleware := rbac.Middleware{Resolver: rbac.NewResolver(), Overrides: overrides, Logger: logger}

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		AuthHandler:        authHandler,
		Authenticator:      auth.Authenticator{Service: authService, Logger: logger},
		PermissionsHandler: rbac.NewPermissionsHandler(logger, overrides, rbacMiddleware),
		RBAC:               rbacMiddleware,
		AuditHandler:       audit.NewHandler(logger, audit.NewService(audit.NewRepository(dbpool)), rbacMiddleware),
		JobHandler:         jobs.NewHandler(inspector, logger),
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("http server", slog.Any("error", err))
		os.Exit(1)
	}
}
