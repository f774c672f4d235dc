package relay

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	channelPrefix  = "prices."
	publishTimeout = 2 * time.Second
)

// Redis carries encoded price events between instances over Redis pub/sub.
// Producers call Publish; gateways Watch the symbols they have local members for
// and receive matching payloads through Run.
type Redis struct {
	client *redis.Client
	pubsub *redis.PubSub
	logger *zap.Logger
	mu     sync.Mutex // serialises SUBSCRIBE/UNSUBSCRIBE on pubsub
}

func NewRedis(client *redis.Client, logger *zap.Logger) *Redis {
	ps := client.Subscribe(context.Background())
	return &Redis{
		client: client,
		pubsub: ps,
		logger: logger,
	}
}

func Channel(symbol string) string { return channelPrefix + symbol }

// Publish is fire-and-forget; failures are logged.
func (r *Redis) Publish(symbol string, payload []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := r.client.Publish(ctx, Channel(symbol), payload).Err(); err != nil {
		r.logger.Error("Relay publish failed", zap.String("symbol", symbol), zap.Error(err))
	}
}

// Watch subscribes to the symbol's channel.
func (r *Redis) Watch(ctx context.Context, symbol string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pubsub.Subscribe(ctx, Channel(symbol))
}

// Unwatch stops receiving the symbol's channel.
func (r *Redis) Unwatch(ctx context.Context, symbol string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pubsub.Unsubscribe(ctx, Channel(symbol))
}

// Run forwards received payloads to onMessage until ctx is done or the relay is closed.
func (r *Redis) Run(ctx context.Context, onMessage func(symbol string, payload []byte)) {
	ch := r.pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			symbol := strings.TrimPrefix(msg.Channel, channelPrefix)
			if symbol == msg.Channel || symbol == "" {
				continue
			}
			onMessage(symbol, []byte(msg.Payload))
		}
	}
}

func (r *Redis) Close() error {
	return r.pubsub.Close()
}
