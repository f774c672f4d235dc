package hub

import (
	"errors"

	"go.uber.org/zap"

	"github.com/shubham-shewale/crypto-stream/pkg/metrics"
	"github.com/shubham-shewale/crypto-stream/pkg/models"
)

var (
	// ErrSessionClosed is returned when delivering to a handle that already tore down.
	ErrSessionClosed = errors.New("session closed")
	// ErrSlowConsumer is returned when a handle's send queue is full. The handle evicts itself.
	ErrSlowConsumer = errors.New("slow consumer")
)

// Bus fans a payload out to every member of a symbol's group.
type Bus struct {
	registry *Registry
	logger   *zap.Logger
	metrics  *metrics.GatewayMetrics
}

func NewBus(registry *Registry, logger *zap.Logger, m *metrics.GatewayMetrics) *Bus {
	return &Bus{registry: registry, logger: logger, metrics: m}
}

// Publish is fire-and-forget. Each recipient is attempted independently and a
// failing recipient never stops delivery to the rest.
func (b *Bus) Publish(symbol string, payload []byte) {
	symbol = models.CanonicalSymbol(symbol)
	if b.metrics != nil {
		b.metrics.Published.Inc()
	}

	for _, h := range b.registry.MembersOf(symbol) {
		if err := h.Deliver(payload); err != nil {
			b.deliveryFailed(symbol, h, err)
			continue
		}
		if b.metrics != nil {
			b.metrics.Delivered.Inc()
		}
	}
}

func (b *Bus) deliveryFailed(symbol string, h Handle, err error) {
	reason := "error"
	switch {
	case errors.Is(err, ErrSessionClosed):
		reason = "closed"
	case errors.Is(err, ErrSlowConsumer):
		reason = "slow"
		b.logger.Warn("Evicted slow consumer", zap.String("session", h.ID()), zap.String("symbol", symbol))
	default:
		b.logger.Debug("Delivery failed", zap.String("session", h.ID()), zap.String("symbol", symbol), zap.Error(err))
	}
	if b.metrics != nil {
		b.metrics.DeliveryFailures.WithLabelValues(reason).Inc()
	}
}
