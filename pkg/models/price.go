package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// TimestampLayout is the wire format of last_updated: ISO-8601, UTC, microseconds, "Z" suffix.
const TimestampLayout = "2006-01-02T15:04:05.000000Z"

const EventTypePrice = "price"

// PriceUpdate is one asset's market snapshot at fetch time.
// Nullable upstream fields stay nil and are encoded as explicit JSON nulls.
type PriceUpdate struct {
	Symbol            string
	Name              string
	PriceUSD          float64
	Change24hPercent  float64
	LastUpdated       time.Time
	MarketCapUSD      *float64
	Volume24hUSD      *float64
	CirculatingSupply *float64
	TotalSupply       *float64
	ATH               *float64
	ATL               *float64
	LogoURL           *string
}

type priceWire struct {
	Symbol            string   `json:"symbol"`
	Name              string   `json:"name"`
	PriceUSD          float64  `json:"price_usd"`
	Change24hPercent  float64  `json:"change_24h_percent"`
	LastUpdated       string   `json:"last_updated"`
	MarketCapUSD      *float64 `json:"market_cap_usd"`
	Volume24hUSD      *float64 `json:"volume_24h_usd"`
	CirculatingSupply *float64 `json:"circulating_supply"`
	TotalSupply       *float64 `json:"total_supply"`
	ATH               *float64 `json:"ath"`
	ATL               *float64 `json:"atl"`
	LogoURL           *string  `json:"logo_url"`
}

func (u PriceUpdate) MarshalJSON() ([]byte, error) {
	return json.Marshal(priceWire{
		Symbol:            u.Symbol,
		Name:              u.Name,
		PriceUSD:          u.PriceUSD,
		Change24hPercent:  u.Change24hPercent,
		LastUpdated:       FormatTimestamp(u.LastUpdated),
		MarketCapUSD:      u.MarketCapUSD,
		Volume24hUSD:      u.Volume24hUSD,
		CirculatingSupply: u.CirculatingSupply,
		TotalSupply:       u.TotalSupply,
		ATH:               u.ATH,
		ATL:               u.ATL,
		LogoURL:           u.LogoURL,
	})
}

func (u *PriceUpdate) UnmarshalJSON(b []byte) error {
	var w priceWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	ts, err := time.Parse(time.RFC3339Nano, w.LastUpdated)
	if err != nil {
		return fmt.Errorf("parse last_updated: %w", err)
	}
	*u = PriceUpdate{
		Symbol:            w.Symbol,
		Name:              w.Name,
		PriceUSD:          w.PriceUSD,
		Change24hPercent:  w.Change24hPercent,
		LastUpdated:       ts.UTC(),
		MarketCapUSD:      w.MarketCapUSD,
		Volume24hUSD:      w.Volume24hUSD,
		CirculatingSupply: w.CirculatingSupply,
		TotalSupply:       w.TotalSupply,
		ATH:               w.ATH,
		ATL:               w.ATL,
		LogoURL:           w.LogoURL,
	}
	return nil
}

// BasicPrice is the reduced view served to standard-tier users.
type BasicPrice struct {
	Symbol           string  `json:"symbol"`
	Name             string  `json:"name"`
	PriceUSD         float64 `json:"price_usd"`
	Change24hPercent float64 `json:"change_24h_percent"`
	LastUpdated      string  `json:"last_updated"`
}

func (u PriceUpdate) Basic() BasicPrice {
	return BasicPrice{
		Symbol:           u.Symbol,
		Name:             u.Name,
		PriceUSD:         u.PriceUSD,
		Change24hPercent: u.Change24hPercent,
		LastUpdated:      FormatTimestamp(u.LastUpdated),
	}
}

// PriceEvent is the envelope pushed to websocket subscribers.
type PriceEvent struct {
	Type string      `json:"type"`
	Data PriceUpdate `json:"data"`
}

// EncodePriceEvent renders the broadcast payload for a single update.
func EncodePriceEvent(u PriceUpdate) ([]byte, error) {
	return json.Marshal(PriceEvent{Type: EventTypePrice, Data: u})
}

func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}
