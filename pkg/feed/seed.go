package feed

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/shubham-shewale/crypto-stream/pkg/models"
)

// ParseSeed parses "SYMBOL=external_id[:Name]" entries, e.g. "BTC=bitcoin:Bitcoin".
func ParseSeed(entries []string) ([]models.Asset, error) {
	var assets []models.Asset
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		sym, rest, ok := strings.Cut(e, "=")
		if !ok || strings.TrimSpace(sym) == "" || strings.TrimSpace(rest) == "" {
			return nil, fmt.Errorf("seed entry %q: want SYMBOL=external_id[:Name]", e)
		}
		id, name, _ := strings.Cut(rest, ":")
		a := models.Asset{
			Symbol:     models.CanonicalSymbol(sym),
			ExternalID: strings.TrimSpace(id),
			Name:       strings.TrimSpace(name),
		}
		if a.Name == "" {
			a.Name = a.Symbol
		}
		assets = append(assets, a)
	}
	return assets, nil
}

type seedFile struct {
	Assets []struct {
		Symbol     string `yaml:"symbol"`
		Name       string `yaml:"name"`
		ExternalID string `yaml:"external_id"`
		LogoURL    string `yaml:"logo_url"`
	} `yaml:"assets"`
}

// LoadSeedFile reads a YAML list of assets under an "assets" key.
func LoadSeedFile(path string) ([]models.Asset, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var f seedFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse seed file %s: %w", path, err)
	}

	assets := make([]models.Asset, 0, len(f.Assets))
	for i, a := range f.Assets {
		if a.Symbol == "" || a.ExternalID == "" {
			return nil, fmt.Errorf("seed file %s: entry %d needs symbol and external_id", path, i)
		}
		name := a.Name
		if name == "" {
			name = models.CanonicalSymbol(a.Symbol)
		}
		assets = append(assets, models.Asset{
			Symbol:     models.CanonicalSymbol(a.Symbol),
			Name:       name,
			ExternalID: a.ExternalID,
			LogoURL:    a.LogoURL,
		})
	}
	return assets, nil
}

// SeedCatalog makes sure every asset exists. Existing rows are left untouched.
func SeedCatalog(ctx context.Context, catalog Catalog, assets []models.Asset) error {
	for _, a := range assets {
		if _, err := catalog.EnsureAsset(ctx, a); err != nil {
			return fmt.Errorf("seed %s: %w", a.Symbol, err)
		}
	}
	return nil
}
