package stream_test

import (
	"context"
	"errors"
	"sync"

	"github.com/segmentio/kafka-go"

	"github.com/shubham-shewale/crypto-stream/pkg/stream"
)

type MockKafkaWriter struct {
	Messages   []kafka.Message
	Mu         sync.Mutex
	ShouldFail bool
}

func (m *MockKafkaWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.ShouldFail {
		return errors.New("kafka error")
	}
	m.Messages = append(m.Messages, msgs...)
	return nil
}

func (m *MockKafkaWriter) Close() error { return nil }

// MockAdmin records topic creation. ReadPartitions reports nothing until it
// has been called ReadyAfter times.
type MockAdmin struct {
	Mu         sync.Mutex
	Created    []kafka.TopicConfig
	CreateErr  error
	ReadyAfter int
	Reads      int
	Closed     bool
}

func (m *MockAdmin) CreateTopics(topics ...kafka.TopicConfig) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.CreateErr != nil {
		return m.CreateErr
	}
	m.Created = append(m.Created, topics...)
	return nil
}

func (m *MockAdmin) ReadPartitions(topics ...string) ([]kafka.Partition, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Reads++
	if m.ReadyAfter < 0 || m.Reads <= m.ReadyAfter {
		return nil, kafka.UnknownTopicOrPartition
	}
	return []kafka.Partition{{Topic: topics[0], ID: 0}}, nil
}

func (m *MockAdmin) Close() error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Closed = true
	return nil
}

func dialTo(admin *MockAdmin) stream.DialFunc {
	return func(ctx context.Context, brokers []string) (stream.Admin, error) {
		return admin, nil
	}
}

func failingDial(ctx context.Context, brokers []string) (stream.Admin, error) {
	return nil, errors.New("connection refused")
}
