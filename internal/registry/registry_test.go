package registry

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/lattice-q/spotrader/internal/config"
	"github.com/lattice-q/spotrader/internal/model"
)

type stubGateway struct {
	balances   map[string]model.Balance
	orders     []model.Order
	algoOrders []model.AlgoOrder
}

func (g *stubGateway) FetchTicker(context.Context, model.Symbol) (model.MarketSnapshot, error) {
	return model.MarketSnapshot{}, errors.New("unused")
}
func (g *stubGateway) FetchOrderBook(context.Context, model.Symbol, int) ([]model.PriceLevel, []model.PriceLevel, error) {
	return nil, nil, errors.New("unused")
}
func (g *stubGateway) FetchOHLCV(context.Context, model.Symbol, string, int) ([]model.Candle, error) {
	return nil, errors.New("unused")
}
func (g *stubGateway) FetchBalance(context.Context) (map[string]model.Balance, error) {
	return g.balances, nil
}
func (g *stubGateway) FetchOpenOrders(context.Context) ([]model.Order, error) { return g.orders, nil }
func (g *stubGateway) FetchAlgoOrders(context.Context, string) ([]model.AlgoOrder, error) {
	return g.algoOrders, nil
}
func (g *stubGateway) CreateOrder(context.Context, model.Symbol, model.OrderSide, model.OrderType, float64, float64) (model.Order, error) {
	return model.Order{}, errors.New("unused")
}
func (g *stubGateway) CreateAlgoOrder(context.Context, model.Symbol, float64, float64, float64) (model.AlgoOrder, error) {
	return model.AlgoOrder{}, errors.New("unused")
}
func (g *stubGateway) CancelAlgoOrder(context.Context, string) error { return errors.New("unused") }
func (g *stubGateway) GetMarket(context.Context, model.Symbol) (model.MarketMeta, error) {
	return model.MarketMeta{}, errors.New("unused")
}
func (g *stubGateway) DiscoverLiquidSymbols(context.Context, float64, int) ([]model.Symbol, error) {
	return nil, errors.New("unused")
}
func (g *stubGateway) AmountToPrecision(model.Symbol, float64) (float64, error) {
	return 0, errors.New("unused")
}
func (g *stubGateway) PriceToPrecision(model.Symbol, float64) (float64, error) {
	return 0, errors.New("unused")
}

func testCfg(t *testing.T) config.RegistryConfig {
	dir := t.TempDir()
	return config.RegistryConfig{
		SnapshotPath:          filepath.Join(dir, "bot_positions.json"),
		PartialCloseTolerance: 0.01,
		DustThreshold:         1e-8,
	}
}

func TestPutPersistsSnapshotAtomically(t *testing.T) {
	cfg := testCfg(t)
	r := New(&stubGateway{}, cfg)

	r.Put(model.Position{Symbol: "BTC/USDT", Amount: 1, ManagedByExchange: true, ProtectionAlgoID: "algo-1"})

	data, err := os.ReadFile(cfg.SnapshotPath)
	if err != nil {
		t.Fatalf("expected snapshot file written: %v", err)
	}
	var positions map[model.Symbol]model.Position
	if err := json.Unmarshal(data, &positions); err != nil {
		t.Fatalf("snapshot not valid JSON: %v", err)
	}
	pos, ok := positions["BTC/USDT"]
	if len(positions) != 1 || !ok || pos.Symbol != "BTC/USDT" {
		t.Fatalf("unexpected snapshot contents: %+v", positions)
	}
}

func TestDeleteRemovesFromSnapshot(t *testing.T) {
	cfg := testCfg(t)
	r := New(&stubGateway{}, cfg)
	r.Put(model.Position{Symbol: "BTC/USDT", Amount: 1})
	r.Delete("BTC/USDT")

	if r.Has("BTC/USDT") {
		t.Fatal("expected position removed")
	}
	data, _ := os.ReadFile(cfg.SnapshotPath)
	var positions map[model.Symbol]model.Position
	json.Unmarshal(data, &positions)
	if len(positions) != 0 {
		t.Fatalf("expected empty snapshot after delete, got %+v", positions)
	}
}

func TestBootstrapAdoptsUntrackedBalance(t *testing.T) {
	cfg := testCfg(t)
	gw := &stubGateway{balances: map[string]model.Balance{"BTC": {Free: 2}}}
	r := New(gw, cfg)

	if err := r.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	pos, ok := r.Get("BTC/USDT")
	if !ok {
		t.Fatal("expected untracked balance adopted as a position")
	}
	if pos.ManagedByExchange {
		t.Fatal("expected adopted position to be unmanaged, queued for manual protection")
	}
}

func TestBootstrapDropsSnapshotEntryWithoutSupport(t *testing.T) {
	cfg := testCfg(t)
	data, _ := json.Marshal(map[model.Symbol]model.Position{"ETH/USDT": {Symbol: "ETH/USDT", Amount: 5}})
	os.WriteFile(cfg.SnapshotPath, data, 0o644)

	gw := &stubGateway{balances: map[string]model.Balance{}}
	r := New(gw, cfg)

	if err := r.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	if r.Has("ETH/USDT") {
		t.Fatal("expected stale snapshot entry with no supporting balance/order to be dropped")
	}
}

func TestBootstrapKeepsSnapshotEntryWithOpenOrderSupport(t *testing.T) {
	cfg := testCfg(t)
	data, _ := json.Marshal(map[model.Symbol]model.Position{"ETH/USDT": {Symbol: "ETH/USDT", Amount: 5}})
	os.WriteFile(cfg.SnapshotPath, data, 0o644)

	gw := &stubGateway{
		balances: map[string]model.Balance{},
		orders:   []model.Order{{Symbol: "ETH/USDT", Side: model.OrderSideSell}},
	}
	r := New(gw, cfg)

	if err := r.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	if !r.Has("ETH/USDT") {
		t.Fatal("expected snapshot entry with a supporting open order to survive")
	}
}

func TestBootstrapAdoptsUntrackedOpenOrder(t *testing.T) {
	cfg := testCfg(t)
	gw := &stubGateway{
		balances: map[string]model.Balance{},
		orders:   []model.Order{{Symbol: "SOL/USDT", Side: model.OrderSideBuy, Size: 3}},
	}
	r := New(gw, cfg)

	if err := r.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	pos, ok := r.Get("SOL/USDT")
	if !ok {
		t.Fatal("expected an open order with no balance or snapshot entry to be adopted")
	}
	if pos.ManagedByExchange {
		t.Fatal("expected adopted position to be unmanaged, queued for manual protection")
	}
	if pos.Amount != 3 {
		t.Fatalf("expected adopted amount to fall back to order size, got %f", pos.Amount)
	}
}

func TestReconcileDropsPositionWithoutSupport(t *testing.T) {
	cfg := testCfg(t)
	gw := &stubGateway{balances: map[string]model.Balance{}}
	r := New(gw, cfg)
	r.Put(model.Position{Symbol: "BTC/USDT", Amount: 1})

	if err := r.Reconcile(context.Background()); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if r.Has("BTC/USDT") {
		t.Fatal("expected Reconcile to drop a position the exchange no longer backs")
	}
}

func TestShouldReconcileThrottles(t *testing.T) {
	cfg := testCfg(t)
	cfg.ReconcileInterval = 0 // falls back to the 60s default inside Registry
	r := New(&stubGateway{}, cfg)

	if !r.ShouldReconcile() {
		t.Fatal("expected ShouldReconcile to be true before any reconciliation has run")
	}
	r.Reconcile(context.Background())
	if r.ShouldReconcile() {
		t.Fatal("expected ShouldReconcile to be throttled immediately after a reconciliation")
	}
}

func TestCheckInvariantsPassesForConsistentState(t *testing.T) {
	cfg := testCfg(t)
	r := New(&stubGateway{}, cfg)
	r.Put(model.Position{Symbol: "BTC/USDT", Amount: 1, ManagedByExchange: true, ProtectionAlgoID: "algo-1"})

	if err := r.CheckInvariants(); err != nil {
		t.Fatalf("expected invariants to hold, got %v", err)
	}
}

func TestCheckInvariantsCatchesManagedWithoutAlgoID(t *testing.T) {
	cfg := testCfg(t)
	r := New(&stubGateway{}, cfg)
	r.Put(model.Position{Symbol: "BTC/USDT", Amount: 1, ManagedByExchange: true})

	if err := r.CheckInvariants(); err == nil {
		t.Fatal("expected invariant violation for managed position with no protection_algo_id")
	}
}
