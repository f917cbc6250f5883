package ranking

import (
	"context"
	"errors"

	"github.com/lattice-q/spotrader/internal/model"
)

var errNotFound = errors.New("symbol not found")

// fakeGatewayBase implements gateway.Client with every method erroring;
// tests embed it and override only the methods the ranking engine uses.
type fakeGatewayBase struct{}

func (fakeGatewayBase) FetchTicker(context.Context, model.Symbol) (model.MarketSnapshot, error) {
	return model.MarketSnapshot{}, errNotFound
}
func (fakeGatewayBase) FetchOrderBook(context.Context, model.Symbol, int) ([]model.PriceLevel, []model.PriceLevel, error) {
	return nil, nil, errNotFound
}
func (fakeGatewayBase) FetchOHLCV(context.Context, model.Symbol, string, int) ([]model.Candle, error) {
	return nil, errNotFound
}
func (fakeGatewayBase) FetchBalance(context.Context) (map[string]model.Balance, error) {
	return nil, errNotFound
}
func (fakeGatewayBase) FetchOpenOrders(context.Context) ([]model.Order, error) {
	return nil, errNotFound
}
func (fakeGatewayBase) FetchAlgoOrders(context.Context, string) ([]model.AlgoOrder, error) {
	return nil, errNotFound
}
func (fakeGatewayBase) CreateOrder(context.Context, model.Symbol, model.OrderSide, model.OrderType, float64, float64) (model.Order, error) {
	return model.Order{}, errNotFound
}
func (fakeGatewayBase) CreateAlgoOrder(context.Context, model.Symbol, float64, float64, float64) (model.AlgoOrder, error) {
	return model.AlgoOrder{}, errNotFound
}
func (fakeGatewayBase) CancelAlgoOrder(context.Context, string) error { return errNotFound }
func (fakeGatewayBase) GetMarket(context.Context, model.Symbol) (model.MarketMeta, error) {
	return model.MarketMeta{}, errNotFound
}
func (fakeGatewayBase) DiscoverLiquidSymbols(context.Context, float64, int) ([]model.Symbol, error) {
	return nil, errNotFound
}
func (fakeGatewayBase) AmountToPrecision(model.Symbol, float64) (float64, error) {
	return 0, errNotFound
}
func (fakeGatewayBase) PriceToPrecision(model.Symbol, float64) (float64, error) {
	return 0, errNotFound
}
