package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/arunvm123/campsite/config"
	"github.com/arunvm123/campsite/logger"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Try to load from config.yaml first, fallback to environment variables
	cfg, err := config.Initialise("config.yaml", false)
	if err != nil {
		cfg, err = config.Initialise("", true)
		if err != nil {
			logger.Fatal(logger.New(logger.Config{}), "failed to load configuration", "error", err)
		}
	}

	log := logger.New(logger.Config{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Env:     cfg.Env,
		Service: serviceName,
	})

	app, err := newApplication(cfg, log)
	if err != nil {
		logger.Fatal(log, "failed to initialize application", "error", err)
	}

	router := SetupRouter(NewBookingHandler(app.service), app.metrics.Handler(), log)
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return app.pool.Start(gctx)
	})

	if cfg.Reconciler.Enabled {
		g.Go(func() error {
			return app.reconciler.Schedule(gctx, cfg.Reconciler.Interval(), cfg.Reconciler.RunOnStart)
		})
	}

	g.Go(func() error {
		log.Info("starting campsite API", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("received shutdown signal, stopping server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server stopped with error", "error", err)
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := app.Close(closeCtx); err != nil {
		log.Warn("error during cleanup", "error", err)
	}

	log.Info("server stopped gracefully")
}
