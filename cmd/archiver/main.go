package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/shubham-shewale/crypto-stream/cmd/archiver/internal/archiver"
	"github.com/shubham-shewale/crypto-stream/pkg/config"
	"github.com/shubham-shewale/crypto-stream/pkg/metrics"
	"github.com/shubham-shewale/crypto-stream/pkg/storage/postgres"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger, err := config.NewLogger(cfg.Logger)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.Connect(ctx, cfg.Database, logger)
	if err != nil {
		logger.Fatal("Failed to connect to Postgres", zap.Error(err))
	}
	defer pool.Close()

	if cfg.Database.Migrate {
		if err := postgres.RunMigrationsWithLock(ctx, pool, logger); err != nil {
			logger.Fatal("Migrations failed", zap.Error(err))
		}
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Kafka.Brokers,
		Topic:    cfg.Kafka.Topic,
		GroupID:  cfg.Kafka.GroupID,
		MinBytes: 200,
		MaxBytes: 10e6,
		MaxWait:  200 * time.Millisecond,
		// Auto-commit; replays are absorbed by the unique (asset, last_updated) key
		CommitInterval:    time.Second,
		HeartbeatInterval: 3 * time.Second,
		SessionTimeout:    10 * time.Second,
	})

	reg := metrics.NewRegistry()
	feedMetrics := metrics.NewFeedMetrics(reg)

	arch := archiver.NewArchiver(cfg, logger, postgres.NewPriceRepo(pool), reader, feedMetrics)

	srv := &http.Server{
		Addr:    cfg.App.Port,
		Handler: metrics.Handler(reg),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return arch.Run(gctx)
	})
	g.Go(func() error {
		logger.Info("Metrics listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Archiver stopped with error", zap.Error(err))
	}

	logger.Info("Closing Kafka Reader...")
	if err := reader.Close(); err != nil {
		logger.Error("Error closing reader", zap.Error(err))
	}
	logger.Info("Archiver exited cleanly")
}
