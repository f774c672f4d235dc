// Package pipeline assembles a feed.Producer from configuration. It is shared by
// the standalone producer binary and the gateway's in-process feed.
package pipeline

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/shubham-shewale/crypto-stream/pkg/coingecko"
	"github.com/shubham-shewale/crypto-stream/pkg/config"
	"github.com/shubham-shewale/crypto-stream/pkg/feed"
	"github.com/shubham-shewale/crypto-stream/pkg/metrics"
	"github.com/shubham-shewale/crypto-stream/pkg/models"
	"github.com/shubham-shewale/crypto-stream/pkg/stream"
)

// Deps are the collaborators the caller already owns.
type Deps struct {
	Catalog   feed.Catalog
	Prices    feed.HistoryStore
	Publisher feed.Publisher
	Metrics   *metrics.FeedMetrics
	Logger    *zap.Logger
}

// NewProvider returns the market data source selected by feed.provider.
func NewProvider(cfg *config.Config, logger *zap.Logger) (feed.Provider, error) {
	switch cfg.Feed.Provider {
	case config.ProviderCoinGecko:
		return coingecko.NewClient(cfg.CoinGecko.BaseURL, cfg.CoinGecko.APIKey,
			coingecko.WithRetries(cfg.CoinGecko.MaxRetries, cfg.CoinGecko.RetryBackoff),
			coingecko.WithLogger(logger.Named("coingecko")),
		), nil
	case config.ProviderSimulated:
		rnd := feed.RealRand{Rand: rand.New(rand.NewSource(time.Now().UnixNano()))}
		return feed.NewSimulated(rnd, nil), nil
	default:
		return nil, fmt.Errorf("unknown feed provider %q", cfg.Feed.Provider)
	}
}

// NewHistory returns the history sink selected by feed.history. The returned
// close func flushes it and is never nil.
func NewHistory(ctx context.Context, cfg *config.Config, prices feed.HistoryStore, logger *zap.Logger) (feed.HistoryStore, func() error, error) {
	switch cfg.Feed.History {
	case config.HistoryPostgres:
		return prices, func() error { return nil }, nil
	case config.HistoryKafka:
		topics := stream.NewTopicManager(stream.ControllerDialer(&kafka.Dialer{Timeout: 5 * time.Second}), logger.Named("kafka"))
		spec := stream.TopicSpec{Name: cfg.Kafka.Topic, Partitions: cfg.Kafka.Partitions}
		if err := topics.Ensure(ctx, cfg.Kafka.Brokers, spec); err != nil {
			// brokers with auto-create enabled still accept the first write
			logger.Warn("Could not provision history topic", zap.String("topic", spec.Name), zap.Error(err))
		}

		h := stream.NewKafkaHistory(stream.NewWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic))
		return h, h.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown feed history %q", cfg.Feed.History)
	}
}

// SeedAssets collects feed.seed entries and the optional feed.seed_file.
func SeedAssets(cfg config.FeedConfig) ([]models.Asset, error) {
	assets, err := feed.ParseSeed(cfg.Seed)
	if err != nil {
		return nil, err
	}
	if cfg.SeedFile != "" {
		fromFile, err := feed.LoadSeedFile(cfg.SeedFile)
		if err != nil {
			return nil, err
		}
		assets = append(assets, fromFile...)
	}
	return assets, nil
}

// Build seeds the catalog and wires a producer. Call the returned func after
// the producer has stopped.
func Build(ctx context.Context, cfg *config.Config, deps Deps) (*feed.Producer, func() error, error) {
	assets, err := SeedAssets(cfg.Feed)
	if err != nil {
		return nil, nil, err
	}
	if err := feed.SeedCatalog(ctx, deps.Catalog, assets); err != nil {
		return nil, nil, err
	}
	deps.Logger.Info("Catalog seeded", zap.Int("assets", len(assets)))

	provider, err := NewProvider(cfg, deps.Logger)
	if err != nil {
		return nil, nil, err
	}

	history, closeHistory, err := NewHistory(ctx, cfg, deps.Prices, deps.Logger)
	if err != nil {
		return nil, nil, err
	}

	opts := []feed.Option{feed.WithFetchTimeout(cfg.Feed.FetchTimeout)}
	if deps.Metrics != nil {
		opts = append(opts, feed.WithMetrics(deps.Metrics))
	}

	p := feed.NewProducer(deps.Catalog, provider, history, deps.Publisher, cfg.Feed.Interval,
		deps.Logger.Named("producer"), opts...)
	return p, closeHistory, nil
}
