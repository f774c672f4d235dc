package coingecko

import (
	"context"
	"net/url"
	"strings"

	"github.com/shubham-shewale/crypto-stream/pkg/models"
)

const marketsPageSize = "250"

// FetchMarkets returns USD market data for the given coin ids in a single request.
func (c *Client) FetchMarkets(ctx context.Context, ids []string) ([]models.MarketQuote, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := url.Values{}
	query.Set("vs_currency", "usd")
	query.Set("ids", strings.Join(ids, ","))
	query.Set("order", "market_cap_desc")
	query.Set("per_page", marketsPageSize)
	query.Set("page", "1")
	query.Set("sparkline", "false")
	query.Set("price_change_percentage", "24h")

	var quotes []models.MarketQuote
	if err := c.get(ctx, "/coins/markets", query, &quotes); err != nil {
		return nil, err
	}
	return quotes, nil
}
