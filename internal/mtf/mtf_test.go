package mtf

import (
	"context"
	"errors"
	"testing"

	"github.com/lattice-q/spotrader/internal/config"
	"github.com/lattice-q/spotrader/internal/model"
)

type stubIndicators struct {
	strengths map[string]float64
	calls     []string
}

func (s *stubIndicators) Strength(candles []model.Candle) (float64, bool) {
	// tag via candle count hack: tests set unique lengths per timeframe
	v, ok := s.strengths[lenKey(len(candles))]
	return v, ok
}

func lenKey(n int) string { return map[int]string{201: "1m", 202: "5m", 203: "15m", 204: "1h", 205: "4h", 206: "1d"}[n] }

type stubGateway struct {
	perTF map[string]int // timeframe -> candle count to return
}

func candlesOfLen(n int) []model.Candle {
	out := make([]model.Candle, n)
	return out
}

func (g *stubGateway) FetchOHLCV(ctx context.Context, sym model.Symbol, tf string, limit int) ([]model.Candle, error) {
	n, ok := g.perTF[tf]
	if !ok {
		return nil, errors.New("no data")
	}
	return candlesOfLen(n), nil
}
func (g *stubGateway) FetchTicker(context.Context, model.Symbol) (model.MarketSnapshot, error) {
	return model.MarketSnapshot{}, errors.New("unused")
}
func (g *stubGateway) FetchOrderBook(context.Context, model.Symbol, int) ([]model.PriceLevel, []model.PriceLevel, error) {
	return nil, nil, errors.New("unused")
}
func (g *stubGateway) FetchBalance(context.Context) (map[string]model.Balance, error) {
	return nil, errors.New("unused")
}
func (g *stubGateway) FetchOpenOrders(context.Context) ([]model.Order, error) {
	return nil, errors.New("unused")
}
func (g *stubGateway) FetchAlgoOrders(context.Context, string) ([]model.AlgoOrder, error) {
	return nil, errors.New("unused")
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

func TestTimeframeWeightsSumToOne(t *testing.T) {
	var sum float64
	for _, tf := range Timeframes {
		sum += tf.Weight
	}
	if sum < 0.999 || sum > 1.001 {
		t.Fatalf("timeframe weights sum to %f, want 1.0", sum)
	}
}

func TestAnalyzeAllBullishYieldsBullishHighConfluence(t *testing.T) {
	gw := &stubGateway{perTF: map[string]int{"1m": 201, "5m": 202, "15m": 203, "1h": 204, "4h": 205, "1d": 206}}
	ind := &stubIndicators{strengths: map[string]float64{"1m": 0.5, "5m": 0.5, "15m": 0.5, "1h": 0.5, "4h": 0.5, "1d": 0.5}}
	s := New(gw, ind, config.MTFConfig{MinCandles: 200})

	sig, err := s.Analyze(context.Background(), "BTC/USDT")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if sig.Trend != model.TrendBullish {
		t.Fatalf("expected bullish trend, got %s", sig.Trend)
	}
	if sig.Confluence < 0.99 {
		t.Fatalf("expected near-unanimous confluence, got %f", sig.Confluence)
	}
}

func TestAnalyzeMissingAllTimeframesYieldsZeroConfluence(t *testing.T) {
	gw := &stubGateway{perTF: map[string]int{}}
	ind := &stubIndicators{strengths: map[string]float64{}}
	s := New(gw, ind, config.MTFConfig{MinCandles: 200})

	sig, err := s.Analyze(context.Background(), "BTC/USDT")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if sig.Confluence != 0 {
		t.Fatalf("expected confluence=0 when no timeframe has enough data, got %f", sig.Confluence)
	}
	if sig.Trend != model.TrendNeutral {
		t.Fatalf("expected neutral trend, got %s", sig.Trend)
	}
}

func TestAnalyzeDropsShortTimeframe(t *testing.T) {
	gw := &stubGateway{perTF: map[string]int{"1m": 10, "5m": 202, "15m": 203, "1h": 204, "4h": 205, "1d": 206}}
	ind := &stubIndicators{strengths: map[string]float64{"5m": 0.4, "15m": 0.4, "1h": 0.4, "4h": 0.4, "1d": 0.4}}
	s := New(gw, ind, config.MTFConfig{MinCandles: 200})

	sig, err := s.Analyze(context.Background(), "BTC/USDT")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if _, present := sig.PerTimeframe["1m"]; present {
		t.Fatal("expected the under-sized 1m timeframe to be dropped")
	}
	if _, present := sig.PerTimeframe["1h"]; !present {
		t.Fatal("expected 1h timeframe to be present")
	}
}

func TestAnalyzeDisagreementYieldsBearish(t *testing.T) {
	gw := &stubGateway{perTF: map[string]int{"1m": 201, "5m": 202, "15m": 203, "1h": 204, "4h": 205, "1d": 206}}
	// 1h/4h carry the most weight (0.25 each) and are bearish.
	ind := &stubIndicators{strengths: map[string]float64{"1m": 0.9, "5m": 0.9, "15m": 0.9, "1h": -0.9, "4h": -0.9, "1d": -0.9}}
	s := New(gw, ind, config.MTFConfig{MinCandles: 200})

	sig, err := s.Analyze(context.Background(), "BTC/USDT")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if sig.Trend != model.TrendBearish {
		t.Fatalf("expected bearish trend given heavier bearish weights, got %s", sig.Trend)
	}
}
