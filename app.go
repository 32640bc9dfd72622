package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/arunvm123/campsite/cache"
	"github.com/arunvm123/campsite/cache/memory"
	rediscache "github.com/arunvm123/campsite/cache/redis"
	"github.com/arunvm123/campsite/config"
	"github.com/arunvm123/campsite/metrics"
	"github.com/arunvm123/campsite/repository/postgres"
	"github.com/arunvm123/campsite/service"
	kafkapub "github.com/arunvm123/campsite/service/kafka"
	"github.com/arunvm123/campsite/worker"
	"github.com/redis/go-redis/v9"
)

const serviceName = "campsite-service"

// application holds the wired dependencies of the API process
type application struct {
	cfg        *config.Config
	log        *slog.Logger
	metrics    *metrics.Provider
	pool       *worker.Pool
	reconciler *worker.Reconciler
	service    *service.ReservationService
	publisher  service.EventPublisher
}

func newApplication(cfg *config.Config, log *slog.Logger) (*application, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	metricsProvider, err := metrics.NewPrometheusProvider()
	if err != nil {
		return nil, err
	}
	recorder, err := metrics.NewRecorder(metricsProvider.Meter())
	if err != nil {
		return nil, fmt.Errorf("failed to create metric instruments: %w", err)
	}

	// Initialize repository
	repo, err := postgres.NewBookingRepository(&cfg.Database)
	if err != nil {
		return nil, err
	}

	dateCache := newDateCache(cfg, log)

	var publisher service.EventPublisher = kafkapub.NoopPublisher{}
	if cfg.Kafka.Enabled {
		publisher = kafkapub.NewBookingEventPublisher(&cfg.Kafka)
	}

	pool := worker.NewPool(cfg.Worker, log)
	reconciler := worker.NewReconciler(repo, dateCache, time.Now, loc, recorder, log)

	svc := service.NewReservationService(service.Dependencies{
		Repo:       repo,
		Cache:      dateCache,
		Tasks:      pool,
		Events:     publisher,
		Reconciler: reconciler,
		Metrics:    recorder,
		Logger:     log,
		Now:        time.Now,
		Location:   loc,
	})

	return &application{
		cfg:        cfg,
		log:        log,
		metrics:    metricsProvider,
		pool:       pool,
		reconciler: reconciler,
		service:    svc,
		publisher:  publisher,
	}, nil
}

// newDateCache picks the Redis cache when enabled. An unreachable Redis at
// start is not fatal: reads fall back to the database until it recovers.
func newDateCache(cfg *config.Config, log *slog.Logger) cache.DateCache {
	if !cfg.Redis.Enabled {
		log.Info("redis disabled, using in-process date cache")
		return memory.NewMemoryDateCache()
	}

	c, err := rediscache.NewRedisDateCache(cfg.Redis.GetRedisURL(), cfg.Redis.Password, cfg.Redis.DB, cfg.Cache.Key, log)
	if err == nil {
		return c
	}

	log.Warn("redis unreachable at start, continuing degraded", "error", err)
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.GetRedisURL(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	return rediscache.NewRedisDateCacheFromClient(client, cfg.Cache.Key, log)
}

func (a *application) Close(ctx context.Context) error {
	return errors.Join(a.publisher.Close(), a.metrics.Shutdown(ctx))
}
