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

	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-cafe/internal/apiclient"
	"github.com/odyssey-erp/odyssey-cafe/internal/app"
	"github.com/odyssey-erp/odyssey-cafe/internal/console"
	"github.com/odyssey-erp/odyssey-cafe/internal/credstore"
	"github.com/odyssey-erp/odyssey-cafe/internal/observability"
	"github.com/odyssey-erp/odyssey-cafe/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-cafe/internal/rbac"
	"github.com/odyssey-erp/odyssey-cafe/internal/session"
	"github.com/odyssey-erp/odyssey-cafe/internal/view"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping console startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConsoleConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("console", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	var store credstore.Store
	switch cfg.CredstoreDriver {
	case "redis":
		client, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr})
		if err != nil {
			return err
		}
		defer cache.Close(client, logger)
		store = credstore.NewRedisStore(client, cfg.CredstoreNamespace, 0)
		logger.Info("credential store", slog.String("driver", "redis"), slog.String("namespace", cfg.CredstoreNamespace))
	default:
		fileStore := credstore.NewFileStore(cfg.CredstorePath)
		store = fileStore
		logger.Info("credential store", slog.String("driver", "file"), slog.String("path", fileStore.Path()))
	}

	metrics := observability.NewMetrics()
	notices := console.NewNotices(0)
	navigator := &console.Navigator{}

	// The controller is created after the client, so the token source reads
	// it through a variable.
	var controller *session.Controller
	api, err := apiclient.New(apiclient.Config{
		BaseURL: cfg.ConsoleAPIBaseURL,
		Timeout: cfg.SessionRequestTimeout,
		Tokens: apiclient.TokenSourceFunc(func() string {
			if controller == nil {
				return ""
			}
			return controller.Token()
		}),
	})
	if err != nil {
		return err
	}

	controller, err = session.New(session.Config{
		Store:           store,
		API:             api,
		Notifier:        notices,
		Navigator:       navigator,
		Logger:          logger,
		Metrics:         metrics,
		PollInterval:    cfg.SessionPollInterval,
		ExpiryThreshold: cfg.SessionExpiryThreshold,
		RequestTimeout:  cfg.SessionRequestTimeout,
		AutoRefresh:     cfg.SessionAutoRefresh,
	})
	if err != nil {
		return err
	}
	defer controller.Close()
	if err := controller.Start(ctx); err != nil {
		return err
	}

	views, err := view.NewEngine()
	if err != nil {
		return err
	}

	handler := console.NewHandler(console.Config{
		Logger:    logger,
		App:       cfg,
		Session:   controller,
		Views:     views,
		CSRF:      console.NewCSRFManager(cfg.ConsoleCSRFSecret, cfg.IsProduction()),
		Notices:   notices,
		Navigator: navigator,
		Resolver:  rbac.NewResolver(),
		Metrics:   metrics,
		Backend:   console.NewBackendProxy(api.BaseURL(), api.Transport(nil), logger),
	})

	server := &http.Server{
		Addr:         cfg.ConsoleAddr,
		Handler:      handler.Routes(),
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting console", slog.String("addr", cfg.ConsoleAddr), slog.String("backend", api.BaseURL().String()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down console")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
