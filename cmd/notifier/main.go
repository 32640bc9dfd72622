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
	"github.com/arunvm123/campsite/notification"
	"github.com/gin-gonic/gin"
	"github.com/segmentio/kafka-go"
	"golang.org/x/sync/errgroup"
)

const serviceName = "campsite-notifier"

func main() {
	// Load configuration
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

	if !cfg.Kafka.Enabled {
		logger.Fatal(log, "the notifier consumes booking events from Kafka, set KAFKA_ENABLED=true")
	}

	// Setup Kafka consumer
	consumer := kafka.NewReader(kafka.ReaderConfig{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.BookingEventsTopic,
		GroupID: cfg.Kafka.ConsumerGroup + "-notifier",
	})
	defer consumer.Close()

	processor := notification.NewProcessor(consumer, notification.NewLogSender(log), log)

	// Graceful shutdown context
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("notification processor started", "topic", cfg.Kafka.BookingEventsTopic)
		return processor.Run(gctx)
	})

	// Health check endpoint only
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":             "healthy",
			"service":            serviceName,
			"timestamp":          time.Now(),
			"messages_processed": processor.MessagesProcessed(),
		})
	})

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r, ReadHeaderTimeout: 10 * time.Second}

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("received shutdown signal, stopping notifier")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("notifier error", "error", err)
		return
	}

	log.Info("notifier stopped gracefully")
}
