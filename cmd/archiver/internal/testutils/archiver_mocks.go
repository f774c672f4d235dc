package testutils

import (
	"context"
	"io"
	"sync"

	"github.com/segmentio/kafka-go"

	"github.com/shubham-shewale/crypto-stream/pkg/models"
)

type MockKafkaReader struct {
	Messages []kafka.Message
	Index    int
	Mu       sync.Mutex
	// Closed simulates a closed connection or end of stream
	Closed bool
}

func (m *MockKafkaReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()

	if m.Closed {
		return kafka.Message{}, io.EOF
	}

	if m.Index >= len(m.Messages) {
		// Returning DeadlineExceeded stops the read loop once the queue is drained
		return kafka.Message{}, context.DeadlineExceeded
	}

	msg := m.Messages[m.Index]
	m.Index++
	return msg, nil
}

func (m *MockKafkaReader) Close() error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Closed = true
	return nil
}

// MockPriceStore records saved updates. Symbols listed in Unknown are
// rejected with models.ErrNotFound. A non-nil Block holds every save until closed.
type MockPriceStore struct {
	Mu      sync.Mutex
	Saved   []models.PriceUpdate
	Unknown map[string]bool
	Err     error
	Block   chan struct{}
}

func (m *MockPriceStore) SavePrice(ctx context.Context, u models.PriceUpdate) error {
	if m.Block != nil {
		select {
		case <-m.Block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if m.Unknown[u.Symbol] {
		return models.ErrNotFound
	}
	m.Saved = append(m.Saved, u)
	return nil
}

func (m *MockPriceStore) SavedFor(symbol string) []models.PriceUpdate {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	var out []models.PriceUpdate
	for _, u := range m.Saved {
		if u.Symbol == symbol {
			out = append(out, u)
		}
	}
	return out
}
