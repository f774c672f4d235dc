package feed

import (
	"context"
	"math/rand"

	"github.com/shubham-shewale/crypto-stream/pkg/models"
)

// Catalog is the roster of tracked assets.
type Catalog interface {
	ListAssets(ctx context.Context) ([]models.Asset, error)
	// EnsureAsset returns the asset with a.ExternalID, creating it from a when absent.
	EnsureAsset(ctx context.Context, a models.Asset) (models.Asset, error)
}

// Provider fetches market data for many assets in one call.
type Provider interface {
	FetchMarkets(ctx context.Context, externalIDs []string) ([]models.MarketQuote, error)
}

// HistoryStore records every produced update.
type HistoryStore interface {
	SavePrice(ctx context.Context, u models.PriceUpdate) error
}

// Publisher hands an encoded event to subscribers of symbol. It must not block on them.
type Publisher interface {
	Publish(symbol string, payload []byte)
}

// for deterministic values
type Rand interface {
	Float64() float64
}

type RealRand struct{ *rand.Rand }

func (r RealRand) Float64() float64 { return r.Rand.Float64() }
