package testutils

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/shubham-shewale/crypto-stream/pkg/models"
)

// MockHandle records every payload delivered to it.
type MockHandle struct {
	IDVal    string
	Payloads []string
	Err      error // returned by Deliver when set
	Mu       sync.Mutex
}

func NewMockHandle(id string) *MockHandle {
	return &MockHandle{IDVal: id}
}

func (m *MockHandle) ID() string { return m.IDVal }

func (m *MockHandle) Deliver(payload []byte) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Payloads = append(m.Payloads, string(payload))
	return nil
}

func (m *MockHandle) Received() []string {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return append([]string(nil), m.Payloads...)
}

// MockWatcher tracks which symbols are watched. FailWatch makes that many
// Watch calls fail; Block, when set, holds every call until closed or ctx ends.
type MockWatcher struct {
	Watched   map[string]int
	FailWatch int
	Block     chan struct{}
	Calls     int
	Mu        sync.Mutex
}

func NewMockWatcher() *MockWatcher {
	return &MockWatcher{Watched: make(map[string]int)}
}

func (m *MockWatcher) wait(ctx context.Context) error {
	m.Mu.Lock()
	m.Calls++
	block := m.Block
	m.Mu.Unlock()

	if block == nil {
		return nil
	}
	select {
	case <-block:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *MockWatcher) Watch(ctx context.Context, symbol string) error {
	if err := m.wait(ctx); err != nil {
		return err
	}
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.FailWatch > 0 {
		m.FailWatch--
		return errors.New("redis unavailable")
	}
	m.Watched[symbol]++
	return nil
}

func (m *MockWatcher) Unwatch(ctx context.Context, symbol string) error {
	if err := m.wait(ctx); err != nil {
		return err
	}
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Watched[symbol]--
	if m.Watched[symbol] <= 0 {
		delete(m.Watched, symbol)
	}
	return nil
}

func (m *MockWatcher) CallCount() int {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.Calls
}

func (m *MockWatcher) Count(symbol string) int {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.Watched[symbol]
}

// MockDirectory is an in-memory user directory.
type MockDirectory struct {
	Users map[int64]models.User
	Err   error
}

func NewMockDirectory(users ...models.User) *MockDirectory {
	d := &MockDirectory{Users: make(map[int64]models.User)}
	for _, u := range users {
		d.Users[u.ID] = u
	}
	return d
}

func (d *MockDirectory) GetUser(ctx context.Context, id int64) (models.User, error) {
	if d.Err != nil {
		return models.User{}, d.Err
	}
	u, ok := d.Users[id]
	if !ok {
		return models.User{}, models.ErrNotFound
	}
	return u, nil
}

// MockPrices serves canned latest prices and the asset list.
type MockPrices struct {
	Updates []models.PriceUpdate
	Assets  []models.Asset
	Err     error
}

func (m *MockPrices) LatestPrices(ctx context.Context, symbols []string) ([]models.PriceUpdate, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	// a real query fails the same way once its context is gone
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(symbols) == 0 {
		return m.Updates, nil
	}
	want := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		want[s] = true
	}
	var out []models.PriceUpdate
	for _, u := range m.Updates {
		if want[u.Symbol] {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *MockPrices) ListAssets(ctx context.Context) ([]models.Asset, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Assets, nil
}

// SignToken issues an HS256 token carrying user_id, as the account service does.
func SignToken(secret string, userID int64, expires time.Time) string {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"token_type": "access",
		"user_id":    userID,
		"exp":        expires.Unix(),
	})
	s, err := tok.SignedString([]byte(secret))
	if err != nil {
		panic(err)
	}
	return s
}
