package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shubham-shewale/crypto-stream/pkg/models"
)

// PriceRepo is the append-only price history.
type PriceRepo struct {
	pool *pgxpool.Pool
}

func NewPriceRepo(pool *pgxpool.Pool) *PriceRepo {
	return &PriceRepo{pool: pool}
}

// SavePrice appends u to the history of its asset. Re-saving the same
// (symbol, last_updated) pair is a no-op.
func (r *PriceRepo) SavePrice(ctx context.Context, u models.PriceUpdate) error {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO prices (asset_id, price_usd, change_24h_percent, market_cap_usd, volume_24h_usd,
			circulating_supply, total_supply, ath, atl, last_updated)
		SELECT a.id, $2, $3, $4, $5, $6, $7, $8, $9, $10
		FROM assets a WHERE a.symbol = $1
		ON CONFLICT (asset_id, last_updated) DO NOTHING`,
		u.Symbol, u.PriceUSD, u.Change24hPercent, u.MarketCapUSD, u.Volume24hUSD,
		u.CirculatingSupply, u.TotalSupply, u.ATH, u.ATL, u.LastUpdated.UTC())
	if err != nil {
		return fmt.Errorf("failed to save price for %s: %w", u.Symbol, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM assets WHERE symbol = $1)`, u.Symbol).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check asset %s: %w", u.Symbol, err)
	}
	if !exists {
		return fmt.Errorf("asset %s: %w", u.Symbol, models.ErrNotFound)
	}
	return nil
}

// LatestPrices returns the newest update per asset, ordered by symbol.
// An empty filter selects every asset.
func (r *PriceRepo) LatestPrices(ctx context.Context, symbols []string) ([]models.PriceUpdate, error) {
	var filter []string
	if len(symbols) > 0 {
		filter = symbols
	}

	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT ON (a.symbol)
			a.symbol, a.name, a.logo_url, p.price_usd, p.change_24h_percent, p.market_cap_usd,
			p.volume_24h_usd, p.circulating_supply, p.total_supply, p.ath, p.atl, p.last_updated
		FROM prices p
		JOIN assets a ON a.id = p.asset_id
		WHERE $1::text[] IS NULL OR a.symbol = ANY($1)
		ORDER BY a.symbol, p.last_updated DESC`, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest prices: %w", err)
	}

	updates, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.PriceUpdate, error) {
		var u models.PriceUpdate
		var logo string
		err := row.Scan(&u.Symbol, &u.Name, &logo, &u.PriceUSD, &u.Change24hPercent, &u.MarketCapUSD,
			&u.Volume24hUSD, &u.CirculatingSupply, &u.TotalSupply, &u.ATH, &u.ATL, &u.LastUpdated)
		if logo != "" {
			u.LogoURL = &logo
		}
		u.LastUpdated = u.LastUpdated.UTC()
		return u, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan latest prices: %w", err)
	}
	return updates, nil
}
