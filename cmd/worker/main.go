package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	rediscache "github.com/arunvm123/campsite/cache/redis"
	"github.com/arunvm123/campsite/config"
	"github.com/arunvm123/campsite/logger"
	"github.com/arunvm123/campsite/metrics"
	"github.com/arunvm123/campsite/model"
	"github.com/arunvm123/campsite/repository/postgres"
	"github.com/arunvm123/campsite/worker"
	"github.com/gin-gonic/gin"
	"github.com/segmentio/kafka-go"
	"golang.org/x/sync/errgroup"
)

const serviceName = "campsite-reconciler"

func main() {
	// Load configuration (fallback to env variables if config file not found)
	cfg, err := config.Initialise("config.yaml", false)
	if err != nil {
		logger.Fatal(logger.New(logger.Config{}), "failed to load configuration", "error", err)
	}

	log := logger.New(logger.Config{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Env:     cfg.Env,
		Service: serviceName,
	})

	if !cfg.Redis.Enabled {
		logger.Fatal(log, "the reconciler worker needs a shared Redis cache, set REDIS_ENABLED=true")
	}

	loc, err := cfg.Location()
	if err != nil {
		logger.Fatal(log, "invalid timezone", "error", err)
	}

	// Initialize repository
	repo, err := postgres.NewBookingRepository(&cfg.Database)
	if err != nil {
		logger.Fatal(log, "failed to initialize repository", "error", err)
	}

	// Initialize cache
	cache, err := rediscache.NewRedisDateCache(cfg.Redis.GetRedisURL(), cfg.Redis.Password, cfg.Redis.DB, cfg.Cache.Key, log)
	if err != nil {
		logger.Fatal(log, "failed to initialize cache", "error", err)
	}

	metricsProvider, err := metrics.NewPrometheusProvider()
	if err != nil {
		logger.Fatal(log, "failed to initialize metrics", "error", err)
	}
	defer metricsProvider.Shutdown(context.Background())

	recorder, err := metrics.NewRecorder(metricsProvider.Meter())
	if err != nil {
		logger.Fatal(log, "failed to create metric instruments", "error", err)
	}

	reconciler := worker.NewReconciler(repo, cache, time.Now, loc, recorder, log)

	// Graceful shutdown context
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return reconciler.Schedule(gctx, cfg.Reconciler.Interval(), cfg.Reconciler.RunOnStart)
	})

	if cfg.Kafka.Enabled {
		// Setup Kafka consumer
		consumer := kafka.NewReader(kafka.ReaderConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.CacheResetTopic,
			GroupID: cfg.Kafka.ConsumerGroup + "-reconciler",
		})
		defer consumer.Close()

		g.Go(func() error {
			return reconciler.ConsumeResets(gctx, consumer)
		})
	}

	// Health and metrics endpoints only
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/health", func(c *gin.Context) {
		checks := map[string]string{"database": "ok", "cache": "ok"}
		status := http.StatusOK
		if err := repo.Ping(c.Request.Context()); err != nil {
			checks["database"] = err.Error()
			status = http.StatusServiceUnavailable
		}
		if err := cache.Ping(c.Request.Context()); err != nil {
			checks["cache"] = err.Error()
			status = http.StatusServiceUnavailable
		}

		response := model.HealthResponse{
			Status:    "healthy",
			Service:   serviceName,
			Checks:    checks,
			Timestamp: time.Now(),
		}
		if status != http.StatusOK {
			response.Status = "unhealthy"
		}
		c.JSON(status, response)
	})
	r.GET("/metrics", gin.WrapH(metricsProvider.Handler()))

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r, ReadHeaderTimeout: 10 * time.Second}

	g.Go(func() error {
		log.Info("reconciler worker started", "port", cfg.Port, "kafka", cfg.Kafka.Enabled)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("received shutdown signal, stopping worker")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("worker error", "error", err)
		return
	}

	log.Info("worker stopped gracefully")
}
