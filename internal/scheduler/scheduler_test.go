package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lattice-q/spotrader/internal/basesignal"
	"github.com/lattice-q/spotrader/internal/config"
	"github.com/lattice-q/spotrader/internal/decision"
	"github.com/lattice-q/spotrader/internal/execution"
	"github.com/lattice-q/spotrader/internal/model"
	"github.com/lattice-q/spotrader/internal/mtf"
	"github.com/lattice-q/spotrader/internal/registry"
	"github.com/lattice-q/spotrader/internal/risk"
)

type stubIndicator struct{ strength float64 }

func (s stubIndicator) Strength([]model.Candle) (float64, bool) { return s.strength, true }

type fakeGateway struct {
	balances map[string]model.Balance
	candles  int
}

func flatCandles(n int) []model.Candle {
	out := make([]model.Candle, n)
	for i := range out {
		base := 100.0 + float64(i%3)
		out[i] = model.Candle{Open: base, High: base + 2, Low: base - 2, Close: base + 1}
	}
	return out
}

func (g *fakeGateway) FetchTicker(context.Context, model.Symbol) (model.MarketSnapshot, error) {
	return model.MarketSnapshot{BestBid: 99.5, BestAsk: 100.5}, nil
}
func (g *fakeGateway) FetchOrderBook(context.Context, model.Symbol, int) ([]model.PriceLevel, []model.PriceLevel, error) {
	return []model.PriceLevel{{Price: 99.5, Size: 10}}, []model.PriceLevel{{Price: 100.5, Size: 5}}, nil
}
func (g *fakeGateway) FetchOHLCV(ctx context.Context, symbol model.Symbol, tf string, limit int) ([]model.Candle, error) {
	return flatCandles(g.candles), nil
}
func (g *fakeGateway) FetchBalance(context.Context) (map[string]model.Balance, error) {
	return g.balances, nil
}
func (g *fakeGateway) FetchOpenOrders(context.Context) ([]model.Order, error) { return nil, nil }
func (g *fakeGateway) FetchAlgoOrders(context.Context, string) ([]model.AlgoOrder, error) {
	return nil, nil
}
func (g *fakeGateway) CreateOrder(ctx context.Context, symbol model.Symbol, side model.OrderSide, typ model.OrderType, size, price float64) (model.Order, error) {
	return model.Order{ID: "ord-1", Symbol: symbol, Side: side, Type: typ, Size: size}, nil
}
func (g *fakeGateway) CreateAlgoOrder(ctx context.Context, symbol model.Symbol, size, tpTrigger, slTrigger float64) (model.AlgoOrder, error) {
	return model.AlgoOrder{ID: "algo-1", Symbol: symbol}, nil
}
func (g *fakeGateway) CancelAlgoOrder(context.Context, string) error { return nil }
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

func testDeps(t *testing.T, gw *fakeGateway) (*Scheduler, *registry.Registry) {
	dir := t.TempDir()
	regCfg := config.RegistryConfig{SnapshotPath: filepath.Join(dir, "positions.json"), PartialCloseTolerance: 0.01, DustThreshold: 1e-8}
	reg := registry.New(gw, regCfg)

	mtfCfg := config.MTFConfig{MinCandles: 5}
	synth := mtf.New(gw, stubIndicator{strength: 0.6}, mtfCfg)

	base := basesignal.New(gw, stubIndicator{strength: 0.6}, "15m", 5)

	dec := decision.New(config.DecisionConfig{BaseThreshold: 0.30})

	riskCfg := config.RiskConfig{
		StopLossATRMultiple:    1.5,
		TakeProfitATRMultiple:  3.0,
		RiskPerTrade:           0.01,
		MaxMarketOrderNotional: 1000,
		EquityUSDC:             10000,
	}
	sizer := risk.NewSizer(riskCfg)

	execCfg := config.ExecutorConfig{SettleTimeout: 100 * time.Millisecond, SettleBackoffMin: 5 * time.Millisecond, SettleBackoffMax: 10 * time.Millisecond}
	exec := execution.New(gw, sizer, reg, execCfg)

	riskMgr := risk.NewManager(risk.ExposureConfig{MaxOpenOrders: 10, MaxPositionPerSymbol: 10000})

	cfg := config.Default()
	cfg.Registry = regCfg
	cfg.Risk = riskCfg
	cfg.Executor = execCfg
	cfg.MaxPositions = 5
	cfg.MaxSymbolsPerCycle = 15

	s := New(cfg, Dependencies{
		Gateway:  gw,
		Registry: reg,
		MTF:      synth,
		Base:     base,
		Decision: dec,
		Sizer:    sizer,
		Executor: exec,
		RiskMgr:  riskMgr,
	})
	return s, reg
}

func TestProcessSymbolBuysOnBullishConfluence(t *testing.T) {
	gw := &fakeGateway{balances: map[string]model.Balance{"BTC": {Free: 1}}, candles: 10}
	s, reg := testDeps(t, gw)

	outcome := s.processSymbol(context.Background(), model.TokenScore{Symbol: "BTC/USDT", Regime: model.RegimeTrending})
	if !outcome.Executed {
		t.Fatalf("expected a BUY to execute, got %+v", outcome)
	}
	if outcome.Decision != model.DecisionBuy {
		t.Fatalf("expected BUY decision, got %s", outcome.Decision)
	}
	if !reg.Has("BTC/USDT") {
		t.Fatal("expected position committed to registry")
	}
}

func TestProcessSymbolSkipsAlreadyHeld(t *testing.T) {
	gw := &fakeGateway{balances: map[string]model.Balance{"BTC": {Free: 1}}, candles: 10}
	s, reg := testDeps(t, gw)
	reg.Put(model.Position{Symbol: "BTC/USDT", Amount: 1})

	outcome := s.processSymbol(context.Background(), model.TokenScore{Symbol: "BTC/USDT", Regime: model.RegimeTrending})
	if outcome.Executed {
		t.Fatal("did not expect execution for an already-held symbol")
	}
}

func TestProcessSymbolSellsHeldPositionOnBearishSignal(t *testing.T) {
	gw := &fakeGateway{balances: map[string]model.Balance{"BTC": {Free: 1}}, candles: 10}
	dir := t.TempDir()
	regCfg := config.RegistryConfig{SnapshotPath: filepath.Join(dir, "positions.json"), PartialCloseTolerance: 0.01, DustThreshold: 1e-8}
	reg := registry.New(gw, regCfg)
	reg.Put(model.Position{Symbol: "BTC/USDT", Amount: 1, EntryPrice: 100})

	synth := mtf.New(gw, stubIndicator{strength: -0.6}, config.MTFConfig{MinCandles: 5})
	base := basesignal.New(gw, stubIndicator{strength: -0.6}, "15m", 5)
	dec := decision.New(config.DecisionConfig{BaseThreshold: 0.30})
	riskCfg := config.RiskConfig{StopLossATRMultiple: 1.5, TakeProfitATRMultiple: 3.0, RiskPerTrade: 0.01, MaxMarketOrderNotional: 1000, EquityUSDC: 10000}
	sizer := risk.NewSizer(riskCfg)
	execCfg := config.ExecutorConfig{SettleTimeout: 100 * time.Millisecond, SettleBackoffMin: 5 * time.Millisecond, SettleBackoffMax: 10 * time.Millisecond}
	exec := execution.New(gw, sizer, reg, execCfg)
	riskMgr := risk.NewManager(risk.ExposureConfig{})

	cfg := config.Default()
	s := New(cfg, Dependencies{Gateway: gw, Registry: reg, MTF: synth, Base: base, Decision: dec, Sizer: sizer, Executor: exec, RiskMgr: riskMgr})

	outcome := s.processSymbol(context.Background(), model.TokenScore{Symbol: "BTC/USDT", Regime: model.RegimeTrending})
	if !outcome.Executed || outcome.Decision != model.DecisionSell {
		t.Fatalf("expected an executed SELL, got %+v", outcome)
	}
	if reg.Has("BTC/USDT") {
		t.Fatal("expected position removed after sell")
	}
}

func TestSubtractRemovesRestrictedSymbols(t *testing.T) {
	in := []model.Symbol{"BTC/USDT", "ETH/USDT", "SOL/USDT"}
	out := subtract(in, []model.Symbol{"ETH/USDT"})
	if len(out) != 2 {
		t.Fatalf("expected 2 symbols remaining, got %d", len(out))
	}
	for _, s := range out {
		if s == "ETH/USDT" {
			t.Fatal("expected ETH/USDT to be excluded")
		}
	}
}

func TestLoadRestrictedMissingFileReturnsNil(t *testing.T) {
	out, err := loadRestricted(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != nil {
		t.Fatalf("expected nil for a missing file, got %v", out)
	}
}

func TestLoadRestrictedParsesSymbols(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "restricted.json")
	data, _ := json.Marshal([]string{"XRP/USDT"})
	os.WriteFile(path, data, 0o644)

	out, err := loadRestricted(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 || out[0] != "XRP/USDT" {
		t.Fatalf("unexpected restricted list: %v", out)
	}
}

func TestATR15ComputesPositiveValue(t *testing.T) {
	gw := &fakeGateway{candles: 15}
	v, err := atr15(context.Background(), gw, "BTC/USDT")
	if err != nil {
		t.Fatalf("atr15: %v", err)
	}
	if v <= 0 {
		t.Fatalf("expected positive ATR, got %f", v)
	}
}

func TestATR15InsufficientCandlesErrors(t *testing.T) {
	gw := &fakeGateway{candles: 1}
	if _, err := atr15(context.Background(), gw, "BTC/USDT"); err == nil {
		t.Fatal("expected error with a single candle")
	}
}
