package stream

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	defaultPollInterval = 200 * time.Millisecond
	defaultReadyTimeout = 5 * time.Second
)

// ErrTopicNotReady is returned when a topic has no readable partitions in time.
var ErrTopicNotReady = errors.New("topic not ready")

// Admin is the part of a controller connection topic setup needs.
// *kafka.Conn satisfies it.
type Admin interface {
	CreateTopics(topics ...kafka.TopicConfig) error
	ReadPartitions(topics ...string) ([]kafka.Partition, error)
	Close() error
}

// DialFunc opens an Admin connection to the cluster controller.
type DialFunc func(ctx context.Context, brokers []string) (Admin, error)

// ControllerDialer tries each broker in order, asks it where the controller
// lives and connects there.
func ControllerDialer(d *kafka.Dialer) DialFunc {
	return func(ctx context.Context, brokers []string) (Admin, error) {
		if len(brokers) == 0 {
			return nil, errors.New("no kafka brokers configured")
		}
		var errs []error
		for _, addr := range brokers {
			conn, err := dialController(ctx, d, addr)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", addr, err))
				continue
			}
			return conn, nil
		}
		return nil, errors.Join(errs...)
	}
}

func dialController(ctx context.Context, d *kafka.Dialer, addr string) (*kafka.Conn, error) {
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	broker, err := conn.Controller()
	conn.Close()
	if err != nil {
		return nil, fmt.Errorf("find controller: %w", err)
	}
	return d.DialContext(ctx, "tcp", net.JoinHostPort(broker.Host, strconv.Itoa(broker.Port)))
}

// TopicSpec describes a topic to provision.
type TopicSpec struct {
	Name              string
	Partitions        int
	ReplicationFactor int
}

// TopicManager provisions topics before producers write to them.
type TopicManager struct {
	dial         DialFunc
	logger       *zap.Logger
	clock        clockwork.Clock
	pollInterval time.Duration
	readyTimeout time.Duration
}

type TopicOption func(*TopicManager)

func WithPollInterval(d time.Duration) TopicOption {
	return func(m *TopicManager) { m.pollInterval = d }
}

// WithReadyTimeout bounds how long Ensure waits for partitions after creation.
func WithReadyTimeout(d time.Duration) TopicOption {
	return func(m *TopicManager) { m.readyTimeout = d }
}

func WithClock(c clockwork.Clock) TopicOption {
	return func(m *TopicManager) { m.clock = c }
}

func NewTopicManager(dial DialFunc, logger *zap.Logger, opts ...TopicOption) *TopicManager {
	m := &TopicManager{
		dial:         dial,
		logger:       logger,
		clock:        clockwork.NewRealClock(),
		pollInterval: defaultPollInterval,
		readyTimeout: defaultReadyTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Ensure creates the topic if it is missing and waits until its partitions
// can be read. An existing topic is left as it is.
func (m *TopicManager) Ensure(ctx context.Context, brokers []string, spec TopicSpec) error {
	if spec.Name == "" {
		return errors.New("topic name is empty")
	}
	if spec.Partitions <= 0 {
		spec.Partitions = 1
	}
	if spec.ReplicationFactor <= 0 {
		spec.ReplicationFactor = 1
	}

	admin, err := m.dial(ctx, brokers)
	if err != nil {
		return fmt.Errorf("dial kafka controller: %w", err)
	}
	defer admin.Close()

	err = admin.CreateTopics(kafka.TopicConfig{
		Topic:             spec.Name,
		NumPartitions:     spec.Partitions,
		ReplicationFactor: spec.ReplicationFactor,
	})
	switch {
	case errors.Is(err, kafka.TopicAlreadyExists):
		m.logger.Debug("Topic already exists", zap.String("topic", spec.Name))
	case err != nil:
		return fmt.Errorf("create topic %s: %w", spec.Name, err)
	default:
		m.logger.Info("Created topic", zap.String("topic", spec.Name), zap.Int("partitions", spec.Partitions))
	}

	return m.awaitPartitions(ctx, admin, spec.Name)
}

func (m *TopicManager) awaitPartitions(ctx context.Context, admin Admin, topic string) error {
	deadline := m.clock.After(m.readyTimeout)
	for {
		parts, err := admin.ReadPartitions(topic)
		if err == nil && len(parts) > 0 {
			m.logger.Debug("Topic is ready", zap.String("topic", topic), zap.Int("partitions", len(parts)))
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return fmt.Errorf("%w: %s", ErrTopicNotReady, topic)
		case <-m.clock.After(m.pollInterval):
		}
	}
}
