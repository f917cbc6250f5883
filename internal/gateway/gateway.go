// Package gateway is the sole owner of outbound exchange calls: rate
// limiting, circuit breaking, precision rounding and the REST transport
// itself are all unified here so no other component talks to the network
// directly.
package gateway

import (
	"context"

	"github.com/lattice-q/spotrader/internal/model"
)

// Client is the full exchange surface the rest of the pipeline depends on.
// Every method returns {value, error} and never fabricates a value on
// failure.
type Client interface {
	FetchTicker(ctx context.Context, symbol model.Symbol) (model.MarketSnapshot, error)
	FetchOrderBook(ctx context.Context, symbol model.Symbol, depth int) (bids, asks []model.PriceLevel, err error)
	FetchOHLCV(ctx context.Context, symbol model.Symbol, timeframe string, limit int) ([]model.Candle, error)
	FetchBalance(ctx context.Context) (map[string]model.Balance, error)
	FetchOpenOrders(ctx context.Context) ([]model.Order, error)
	FetchAlgoOrders(ctx context.Context, kind string) ([]model.AlgoOrder, error)
	CreateOrder(ctx context.Context, symbol model.Symbol, side model.OrderSide, typ model.OrderType, size, price float64) (model.Order, error)
	CreateAlgoOrder(ctx context.Context, symbol model.Symbol, size, tpTrigger, slTrigger float64) (model.AlgoOrder, error)
	CancelAlgoOrder(ctx context.Context, algoID string) error
	GetMarket(ctx context.Context, symbol model.Symbol) (model.MarketMeta, error)

	// DiscoverLiquidSymbols lists tradable symbols whose 24h quote volume
	// is at least minVolume, capped at limit results.
	DiscoverLiquidSymbols(ctx context.Context, minVolume float64, limit int) ([]model.Symbol, error)

	AmountToPrecision(symbol model.Symbol, amount float64) (float64, error)
	PriceToPrecision(symbol model.Symbol, price float64) (float64, error)
}
