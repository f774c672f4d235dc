package models

import "strings"

// Asset is a tracked crypto asset. ExternalID is the upstream provider's id (e.g. "bitcoin").
type Asset struct {
	ID         int64  `json:"-"`
	Symbol     string `json:"symbol"`
	Name       string `json:"name"`
	ExternalID string `json:"-"`
	LogoURL    string `json:"logo_url"`
}

// MarketQuote is one entry of the upstream markets response.
type MarketQuote struct {
	ID                       string   `json:"id"`
	Symbol                   string   `json:"symbol"`
	Name                     string   `json:"name"`
	Image                    string   `json:"image"`
	CurrentPrice             *float64 `json:"current_price"`
	PriceChangePercentage24h *float64 `json:"price_change_percentage_24h"`
	MarketCap                *float64 `json:"market_cap"`
	TotalVolume              *float64 `json:"total_volume"`
	CirculatingSupply        *float64 `json:"circulating_supply"`
	TotalSupply              *float64 `json:"total_supply"`
	ATH                      *float64 `json:"ath"`
	ATL                      *float64 `json:"atl"`
}

// CanonicalSymbol normalises a client supplied symbol.
func CanonicalSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// CanonicalSymbols canonicalises every entry and drops the empty ones.
func CanonicalSymbols(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if c := CanonicalSymbol(s); c != "" {
			out = append(out, c)
		}
	}
	return out
}
