package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/shubham-shewale/crypto-stream/pkg/config"
	"github.com/shubham-shewale/crypto-stream/pkg/metrics"
	"github.com/shubham-shewale/crypto-stream/pkg/pipeline"
	"github.com/shubham-shewale/crypto-stream/pkg/relay"
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

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer rdb.Close()

	// Gateways with gateway.relay=redis pick these up
	publisher := relay.NewRedis(rdb, logger.Named("relay"))
	defer publisher.Close()

	reg := metrics.NewRegistry()
	feedMetrics := metrics.NewFeedMetrics(reg)

	producer, closeHistory, err := pipeline.Build(ctx, cfg, pipeline.Deps{
		Catalog:   postgres.NewAssetRepo(pool),
		Prices:    postgres.NewPriceRepo(pool),
		Publisher: publisher,
		Metrics:   feedMetrics,
		Logger:    logger,
	})
	if err != nil {
		logger.Fatal("Failed to build producer", zap.Error(err))
	}

	srv := &http.Server{Addr: cfg.App.Port, Handler: metrics.Handler(reg)}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		producer.Run(gctx)
		return nil
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
		logger.Error("Producer stopped with error", zap.Error(err))
	}

	// Flush buffered history writes
	if err := closeHistory(); err != nil {
		logger.Error("Error closing history sink", zap.Error(err))
	} else {
		logger.Info("History sink closed cleanly")
	}
}
