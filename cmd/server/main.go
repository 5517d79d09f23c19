package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/sync/errgroup"

	"github.com/dukerupert/courtbill/internal"
	"github.com/dukerupert/courtbill/internal/bootstrap"
	"github.com/dukerupert/courtbill/internal/handler"
	"github.com/dukerupert/courtbill/internal/handler/webhook"
	"github.com/dukerupert/courtbill/internal/middleware"
	"github.com/dukerupert/courtbill/internal/worker"
)

const shutdownTimeout = 15 * time.Second

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	// Run migrations
	logger.Info().Msg("Running database migrations...")
	if err := bootstrap.Migrate(cfg.DatabaseUrl); err != nil {
		return err
	}
	logger.Info().Msg("Database migrations completed successfully")

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	e := newServer(app)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		addr := fmt.Sprintf(":%d", cfg.Port)
		logger.Info().Str("address", addr).Msg("Starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})

	if app.NATS != nil {
		w := worker.NewWorker(app.Invoices, app.Scheduler, app.Queue, worker.Config{
			ShutdownTimeout: shutdownTimeout,
		}, logger, app.Metrics)
		g.Go(func() error {
			return w.Start(gctx, app.NATS)
		})
	} else {
		logger.Warn().Msg("NATS_URL not set, invoice documents render inline")
	}

	if cfg.Dunning.Enabled {
		g.Go(func() error {
			app.Scheduler.Start(gctx)
			return nil
		})
	} else {
		logger.Info().Msg("Dunning scheduler disabled")
	}

	err = g.Wait()
	logger.Info().Msg("Server stopped")
	return err
}

func newServer(app *bootstrap.App) *echo.Echo {
	logger := app.Logger
	httpMetrics := middleware.NewMetrics("courtbill", app.Registry)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = handler.ErrorHandler(logger)
	e.Use(
		middleware.Recover(logger),
		middleware.RequestID(),
		httpMetrics.Middleware(),
		middleware.MaxBodySize(),
		middleware.Timeout(),
		middleware.RequestLogger(logger),
	)

	// Metrics endpoint (should be protected in production via firewall)
	e.GET("/metrics", echo.WrapHandler(httpMetrics.Handler()))

	e.GET("/healthz", func(c echo.Context) error {
		if err := app.Pool.Ping(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	if app.Stripe != nil {
		webhook.NewStripeHandler(app.Stripe, app.Reconciler(), logger).Register(e)
	} else {
		logger.Warn().Msg("STRIPE_SECRET_KEY not set, gateway webhooks disabled")
	}

	return e
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
