package execution

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lattice-q/spotrader/internal/config"
	"github.com/lattice-q/spotrader/internal/model"
	"github.com/lattice-q/spotrader/internal/risk"
)

type fakeStore struct {
	held map[model.Symbol]model.Position
}

func newFakeStore() *fakeStore { return &fakeStore{held: make(map[model.Symbol]model.Position)} }

func (s *fakeStore) Has(symbol model.Symbol) bool { _, ok := s.held[symbol]; return ok }
func (s *fakeStore) Put(pos model.Position)       { s.held[pos.Symbol] = pos }
func (s *fakeStore) Delete(symbol model.Symbol)   { delete(s.held, symbol) }

type fakeGateway struct {
	balances     map[string]model.Balance
	createErr    error
	algoErr      error
	cancelErr    error
	createdOrder model.Order
}

func (g *fakeGateway) FetchTicker(context.Context, model.Symbol) (model.MarketSnapshot, error) {
	return model.MarketSnapshot{}, errors.New("unused")
}
func (g *fakeGateway) FetchOrderBook(context.Context, model.Symbol, int) ([]model.PriceLevel, []model.PriceLevel, error) {
	return nil, nil, errors.New("unused")
}
func (g *fakeGateway) FetchOHLCV(context.Context, model.Symbol, string, int) ([]model.Candle, error) {
	return nil, errors.New("unused")
}
func (g *fakeGateway) FetchBalance(context.Context) (map[string]model.Balance, error) {
	return g.balances, nil
}
func (g *fakeGateway) FetchOpenOrders(context.Context) ([]model.Order, error) {
	return nil, errors.New("unused")
}
func (g *fakeGateway) FetchAlgoOrders(context.Context, string) ([]model.AlgoOrder, error) {
	return nil, errors.New("unused")
}
func (g *fakeGateway) CreateOrder(ctx context.Context, symbol model.Symbol, side model.OrderSide, typ model.OrderType, size, price float64) (model.Order, error) {
	if g.createErr != nil {
		return model.Order{}, g.createErr
	}
	g.createdOrder = model.Order{ID: "ord-1", Symbol: symbol, Side: side, Type: typ, Size: size}
	return g.createdOrder, nil
}
func (g *fakeGateway) CreateAlgoOrder(ctx context.Context, symbol model.Symbol, size, tpTrigger, slTrigger float64) (model.AlgoOrder, error) {
	if g.algoErr != nil {
		return model.AlgoOrder{}, g.algoErr
	}
	return model.AlgoOrder{ID: "algo-1", Symbol: symbol, Size: size, TPTrigger: tpTrigger, SLTrigger: slTrigger}, nil
}
func (g *fakeGateway) CancelAlgoOrder(ctx context.Context, algoID string) error { return g.cancelErr }
func (g *fakeGateway) GetMarket(context.Context, model.Symbol) (model.MarketMeta, error) {
	return model.MarketMeta{}, errors.New("unused")
}
func (g *fakeGateway) DiscoverLiquidSymbols(context.Context, float64, int) ([]model.Symbol, error) {
	return nil, errors.New("unused")
}
func (g *fakeGateway) AmountToPrecision(symbol model.Symbol, amount float64) (float64, error) {
	return amount, nil
}
func (g *fakeGateway) PriceToPrecision(symbol model.Symbol, price float64) (float64, error) {
	return price, nil
}

func testExecCfg() config.ExecutorConfig {
	return config.ExecutorConfig{SettleTimeout: 100 * time.Millisecond, SettleBackoffMin: 5 * time.Millisecond, SettleBackoffMax: 10 * time.Millisecond}
}

func testSizer() *risk.Sizer {
	return risk.NewSizer(config.RiskConfig{
		StopLossATRMultiple:    1.5,
		TakeProfitATRMultiple:  3.0,
		RiskPerTrade:           0.01,
		MaxMarketOrderNotional: 1000,
		EquityUSDC:             10000,
	})
}

func TestBuyPreventsDuplicate(t *testing.T) {
	store := newFakeStore()
	store.Put(model.Position{Symbol: "BTC/USDT"})
	gw := &fakeGateway{}
	exec := New(gw, testSizer(), store, testExecCfg())

	res := exec.Buy(context.Background(), "BTC/USDT", 100, 2, nil)
	if res.State != StateAborted {
		t.Fatalf("expected ABORTED, got %s", res.State)
	}
}

func TestBuyHappyPathCommitsManagedPosition(t *testing.T) {
	store := newFakeStore()
	gw := &fakeGateway{balances: map[string]model.Balance{"BTC": {Free: 10}}}
	exec := New(gw, testSizer(), store, testExecCfg())

	res := exec.Buy(context.Background(), "BTC/USDT", 100, 2, nil)
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if res.State != StateDone {
		t.Fatalf("expected DONE, got %s", res.State)
	}
	if !res.Position.ManagedByExchange {
		t.Fatal("expected position to be exchange-managed when protection succeeds")
	}
	if !store.Has("BTC/USDT") {
		t.Fatal("expected position committed to the store")
	}
}

func TestBuyProtectionFailureFallsBackToManual(t *testing.T) {
	store := newFakeStore()
	gw := &fakeGateway{balances: map[string]model.Balance{"BTC": {Free: 10}}, algoErr: errors.New("exchange rejected OCO")}
	exec := New(gw, testSizer(), store, testExecCfg())

	res := exec.Buy(context.Background(), "BTC/USDT", 100, 2, nil)
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if res.Position.ManagedByExchange {
		t.Fatal("expected ManagedByExchange=false when the OCO order failed")
	}
	if res.Position.ProtectionAlgoID != "" {
		t.Fatal("expected no protection algo id on fallback")
	}
}

func TestBuySettlementTimeoutCommitsUnmanagedPosition(t *testing.T) {
	store := newFakeStore()
	gw := &fakeGateway{balances: map[string]model.Balance{}}
	exec := New(gw, testSizer(), store, testExecCfg())

	res := exec.Buy(context.Background(), "BTC/USDT", 100, 2, nil)
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if res.State != StateDone {
		t.Fatalf("expected DONE, got %s", res.State)
	}
	if res.Position.ManagedByExchange {
		t.Fatal("expected ManagedByExchange=false when settlement was never confirmed")
	}
	if res.Position.ProtectionAlgoID != "" {
		t.Fatal("expected no protection algo id when settlement was never confirmed")
	}
	if res.Position.Amount <= 0 {
		t.Fatalf("expected position amount to fall back to the ordered amount, got %f", res.Position.Amount)
	}
	if !store.Has("BTC/USDT") {
		t.Fatal("expected an unmanaged position committed for next-cycle protection retry")
	}
}

func TestSellCancelsProtectionAndRemovesPosition(t *testing.T) {
	store := newFakeStore()
	pos := model.Position{Symbol: "BTC/USDT", Amount: 1, ProtectionAlgoID: "algo-1"}
	store.Put(pos)
	gw := &fakeGateway{}
	exec := New(gw, testSizer(), store, testExecCfg())

	res := exec.Sell(context.Background(), pos)
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if store.Has("BTC/USDT") {
		t.Fatal("expected position removed from store after sell")
	}
}

func TestSizingUnavailableAbortsBeforeSubmitting(t *testing.T) {
	store := newFakeStore()
	gw := &fakeGateway{}
	exec := New(gw, testSizer(), store, testExecCfg())

	res := exec.Buy(context.Background(), "BTC/USDT", 0, 2, nil)
	if res.Err == nil {
		t.Fatal("expected sizing to fail with a zero entry price")
	}
	if res.State != StateSizing {
		t.Fatalf("expected to abort in SIZING, got %s", res.State)
	}
}
