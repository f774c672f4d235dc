package feed

import (
	"context"
	"strings"
	"sync"

	"github.com/shubham-shewale/crypto-stream/pkg/models"
)

const (
	defaultBasePrice = 100.0
	maxStepPercent   = 0.5
)

// Simulated is an offline Provider: every fetch moves each price by a bounded random step
// around its previous value, and reports the change against the base price.
type Simulated struct {
	mu         sync.Mutex
	rand       Rand
	basePrices map[string]float64
	last       map[string]float64
}

func NewSimulated(rnd Rand, basePrices map[string]float64) *Simulated {
	return &Simulated{
		rand:       rnd,
		basePrices: basePrices,
		last:       make(map[string]float64),
	}
}

func (s *Simulated) FetchMarkets(ctx context.Context, externalIDs []string) ([]models.MarketQuote, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	quotes := make([]models.MarketQuote, 0, len(externalIDs))
	for _, id := range externalIDs {
		base, ok := s.basePrices[id]
		if !ok {
			base = defaultBasePrice
		}
		prev, ok := s.last[id]
		if !ok {
			prev = base
		}

		fluctuation := (s.rand.Float64()*2 - 1) * maxStepPercent / 100
		price := prev * (1 + fluctuation)
		s.last[id] = price

		change := (price - base) / base * 100
		volume := price * 1000
		quotes = append(quotes, models.MarketQuote{
			ID:                       id,
			Symbol:                   strings.ToUpper(id),
			Name:                     id,
			CurrentPrice:             &price,
			PriceChangePercentage24h: &change,
			TotalVolume:              &volume,
		})
	}
	return quotes, nil
}
