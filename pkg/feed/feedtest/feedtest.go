// Package feedtest provides in-memory collaborators for exercising feed.Producer.
package feedtest

import (
	"context"
	"sort"
	"sync"

	"github.com/shubham-shewale/crypto-stream/pkg/models"
)

// Catalog is an in-memory feed.Catalog.
type Catalog struct {
	mu      sync.Mutex
	assets  []models.Asset
	nextID  int64
	Ensured int
	ListErr error
}

func NewCatalog(assets ...models.Asset) *Catalog {
	c := &Catalog{}
	for _, a := range assets {
		c.add(a)
	}
	return c
}

func (c *Catalog) add(a models.Asset) models.Asset {
	c.nextID++
	a.ID = c.nextID
	c.assets = append(c.assets, a)
	return a
}

func (c *Catalog) ListAssets(ctx context.Context) ([]models.Asset, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ListErr != nil {
		return nil, c.ListErr
	}
	out := append([]models.Asset(nil), c.assets...)
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

func (c *Catalog) EnsureAsset(ctx context.Context, a models.Asset) (models.Asset, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Ensured++
	for _, existing := range c.assets {
		if existing.ExternalID == a.ExternalID {
			return existing, nil
		}
	}
	return c.add(a), nil
}

func (c *Catalog) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.assets)
}

// Provider returns canned quotes or an error, counting calls. When Block is set,
// FetchMarkets waits for it to be closed or for ctx to end.
type Provider struct {
	mu     sync.Mutex
	Quotes []models.MarketQuote
	Err    error
	Block  chan struct{}
	Calls  int
	Called chan struct{}
}

func (p *Provider) FetchMarkets(ctx context.Context, externalIDs []string) ([]models.MarketQuote, error) {
	p.mu.Lock()
	p.Calls++
	block, called := p.Block, p.Called
	quotes, err := p.Quotes, p.Err
	p.mu.Unlock()

	if called != nil {
		select {
		case called <- struct{}{}:
		default:
		}
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return quotes, err
}

func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Calls
}

func (p *Provider) Set(quotes []models.MarketQuote, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Quotes, p.Err = quotes, err
}

// History records saved updates; Err makes every save fail.
type History struct {
	mu      sync.Mutex
	Updates []models.PriceUpdate
	Err     error
}

func (h *History) SavePrice(ctx context.Context, u models.PriceUpdate) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.Err != nil {
		return h.Err
	}
	h.Updates = append(h.Updates, u)
	return nil
}

func (h *History) Saved() []models.PriceUpdate {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]models.PriceUpdate(nil), h.Updates...)
}

// Publisher records published payloads by symbol.
type Publisher struct {
	mu       sync.Mutex
	Payloads map[string][][]byte
}

func NewPublisher() *Publisher {
	return &Publisher{Payloads: make(map[string][][]byte)}
}

func (p *Publisher) Publish(symbol string, payload []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Payloads[symbol] = append(p.Payloads[symbol], payload)
}

func (p *Publisher) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, ps := range p.Payloads {
		n += len(ps)
	}
	return n
}

// Quote builds a quote with only price and change set.
func Quote(id, symbol string, price, change float64) models.MarketQuote {
	return models.MarketQuote{
		ID:                       id,
		Symbol:                   symbol,
		Name:                     id,
		CurrentPrice:             &price,
		PriceChangePercentage24h: &change,
	}
}
