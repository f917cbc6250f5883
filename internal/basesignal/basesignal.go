// Package basesignal computes the single-timeframe base TradingSignal
// Decide combines with the multi-timeframe read: a primary-timeframe
// indicator reading translated into a {BUY,SELL,HOLD} call plus a
// confidence derived from how far the indicator sits from neutral.
package basesignal

import (
	"context"
	"fmt"
	"math"

	"github.com/lattice-q/spotrader/internal/gateway"
	"github.com/lattice-q/spotrader/internal/model"
)

// Indicator computes a signed [-1,+1] strength from a primary-timeframe
// candle series, the same contract mtf.IndicatorSet uses so both packages
// can share an indicator implementation.
type Indicator interface {
	Strength(candles []model.Candle) (strength float64, ok bool)
}

// Evaluator is the production BaseSignalEvaluator: it reads the primary
// timeframe's candles and turns the indicator's strength into a decision.
type Evaluator struct {
	gw        gateway.Client
	indicator Indicator
	timeframe string
	minCandles int
}

func New(gw gateway.Client, indicator Indicator, timeframe string, minCandles int) *Evaluator {
	return &Evaluator{gw: gw, indicator: indicator, timeframe: timeframe, minCandles: minCandles}
}

// Evaluate fetches the primary timeframe's candles and maps the
// indicator's signed strength into a TradingSignal: positive is BUY,
// negative is SELL, exactly zero is HOLD, and the confidence is the
// strength's magnitude, so a small reading yields a low-confidence side.
func (e *Evaluator) Evaluate(ctx context.Context, symbol model.Symbol) (model.TradingSignal, error) {
	candles, err := e.gw.FetchOHLCV(ctx, symbol, e.timeframe, e.minCandles)
	if err != nil {
		return model.TradingSignal{}, fmt.Errorf("base signal fetch candles: %w", err)
	}
	if len(candles) < e.minCandles {
		return model.TradingSignal{}, fmt.Errorf("base signal: insufficient candles for %s: got %d, want %d", symbol, len(candles), e.minCandles)
	}

	strength, ok := e.indicator.Strength(candles)
	if !ok {
		return model.TradingSignal{}, fmt.Errorf("base signal: indicator unavailable for %s", symbol)
	}

	decision := model.DecisionHold
	switch {
	case strength > 0:
		decision = model.DecisionBuy
	case strength < 0:
		decision = model.DecisionSell
	}

	return model.TradingSignal{Decision: decision, Confidence: math.Abs(strength)}, nil
}
