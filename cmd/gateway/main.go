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

	"github.com/shubham-shewale/crypto-stream/cmd/gateway/internal/api"
	"github.com/shubham-shewale/crypto-stream/cmd/gateway/internal/auth"
	"github.com/shubham-shewale/crypto-stream/cmd/gateway/internal/gateway"
	"github.com/shubham-shewale/crypto-stream/cmd/gateway/internal/hub"
	"github.com/shubham-shewale/crypto-stream/pkg/config"
	"github.com/shubham-shewale/crypto-stream/pkg/feed"
	"github.com/shubham-shewale/crypto-stream/pkg/metrics"
	"github.com/shubham-shewale/crypto-stream/pkg/pipeline"
	"github.com/shubham-shewale/crypto-stream/pkg/relay"
	"github.com/shubham-shewale/crypto-stream/pkg/storage/postgres"
)

// priceReader serves the REST read endpoints from both repositories.
type priceReader struct {
	*postgres.PriceRepo
	*postgres.AssetRepo
}

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

	assets := postgres.NewAssetRepo(pool)
	prices := postgres.NewPriceRepo(pool)
	users := postgres.NewUserRepo(pool)

	reg := metrics.NewRegistry()
	gatewayMetrics := metrics.NewGatewayMetrics(reg)
	feedMetrics := metrics.NewFeedMetrics(reg)

	registryOpts := []hub.Option{hub.WithMetrics(gatewayMetrics)}

	// Relay mode: subscriptions are mirrored to Redis channels and producers
	// elsewhere publish into them.
	var inbound *relay.Redis
	if cfg.Gateway.Relay == config.RelayRedis {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer rdb.Close()

		inbound = relay.NewRedis(rdb, logger.Named("relay"))
		defer inbound.Close()
		registryOpts = append(registryOpts, hub.WithWatcher(inbound))
	}

	registry := hub.NewRegistry(cfg.Gateway.RegistryShards, logger, registryOpts...)
	bus := hub.NewBus(registry, logger, gatewayMetrics)

	var publisher feed.Publisher = bus
	if inbound != nil {
		publisher = inbound
	}

	var (
		producer     *feed.Producer
		closeHistory = func() error { return nil }
		runner       api.FeedRunner
	)
	if cfg.Feed.Enabled {
		producer, closeHistory, err = pipeline.Build(ctx, cfg, pipeline.Deps{
			Catalog:   assets,
			Prices:    prices,
			Publisher: publisher,
			Metrics:   feedMetrics,
			Logger:    logger,
		})
		if err != nil {
			logger.Fatal("Failed to build producer", zap.Error(err))
		}
		runner = producer
	}

	authenticator := auth.NewJWTAuthenticator(cfg.Auth.JWTSecret, users, logger.Named("auth"))
	streamHandler := gateway.NewHandler(authenticator, registry, logger, gatewayMetrics, gateway.OptionsFromConfig(cfg.Gateway))

	handler := api.NewHandler(priceReader{prices, assets}, authenticator, runner, registry, logger)
	srv := &http.Server{
		Addr:    cfg.App.Port,
		Handler: api.NewRouter(handler, streamHandler),
	}
	internalSrv := &http.Server{
		Addr:    cfg.App.InternalPort,
		Handler: api.NewInternalRouter(handler, metrics.Handler(reg)),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Server Started", zap.String("port", cfg.App.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("Internal server started", zap.String("port", cfg.App.InternalPort))
		if err := internalSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return errors.Join(srv.Shutdown(shutdownCtx), internalSrv.Shutdown(shutdownCtx))
	})
	if inbound != nil {
		g.Go(func() error {
			inbound.Run(gctx, bus.Publish)
			return nil
		})
		g.Go(func() error {
			registry.RunWatcher(gctx)
			return nil
		})
	}
	if producer != nil {
		g.Go(func() error {
			producer.Run(gctx)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("Gateway stopped with error", zap.Error(err))
	}

	if err := closeHistory(); err != nil {
		logger.Error("Error closing history sink", zap.Error(err))
	}
	logger.Info("Shutdown Complete")
}
