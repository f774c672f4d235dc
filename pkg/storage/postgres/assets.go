package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shubham-shewale/crypto-stream/pkg/models"
)

// AssetRepo is the asset catalog.
type AssetRepo struct {
	pool *pgxpool.Pool
}

func NewAssetRepo(pool *pgxpool.Pool) *AssetRepo {
	return &AssetRepo{pool: pool}
}

func (r *AssetRepo) ListAssets(ctx context.Context) ([]models.Asset, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, symbol, name, external_id, logo_url FROM assets ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}
	assets, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Asset, error) {
		return scanAsset(row)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan assets: %w", err)
	}
	return assets, nil
}

// EnsureAsset returns the asset with a.ExternalID, inserting a if none exists.
// An existing row is never modified.
func (r *AssetRepo) EnsureAsset(ctx context.Context, a models.Asset) (models.Asset, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO assets (symbol, name, external_id, logo_url)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (external_id) DO NOTHING
		RETURNING id, symbol, name, external_id, logo_url`,
		models.CanonicalSymbol(a.Symbol), a.Name, a.ExternalID, a.LogoURL)

	asset, err := scanAsset(row)
	if err == nil {
		return asset, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return models.Asset{}, fmt.Errorf("failed to insert asset %s: %w", a.ExternalID, err)
	}

	row = r.pool.QueryRow(ctx,
		`SELECT id, symbol, name, external_id, logo_url FROM assets WHERE external_id = $1`, a.ExternalID)
	asset, err = scanAsset(row)
	if err != nil {
		return models.Asset{}, fmt.Errorf("failed to load asset %s: %w", a.ExternalID, err)
	}
	return asset, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAsset(row scanner) (models.Asset, error) {
	var a models.Asset
	err := row.Scan(&a.ID, &a.Symbol, &a.Name, &a.ExternalID, &a.LogoURL)
	return a, err
}
