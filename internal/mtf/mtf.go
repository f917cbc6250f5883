// Package mtf synthesizes a single directional reading for a symbol from
// several independently-analyzed timeframes, weighting each by the fixed
// table in §4.4.
package mtf

import (
	"context"
	"math"

	"github.com/lattice-q/spotrader/internal/config"
	"github.com/lattice-q/spotrader/internal/gateway"
	"github.com/lattice-q/spotrader/internal/model"
)

// Timeframe is one OHLCV bar size with its fixed synthesis weight.
type Timeframe struct {
	Name   string
	Weight float64
}

// Timeframes are the six fixed timeframes and weights from §4.4; they sum
// to 1.0 and are never reordered or reweighted at runtime.
var Timeframes = []Timeframe{
	{"1m", 0.05},
	{"5m", 0.10},
	{"15m", 0.20},
	{"1h", 0.25},
	{"4h", 0.25},
	{"1d", 0.15},
}

// IndicatorSet computes a signed [-1,+1] strength from a timeframe's
// candles. cmd/trader wires indicator.Momentum, a single tanh-squashed
// rate-of-change reading; no EMA-cross, RSI or MACD term is computed.
type IndicatorSet interface {
	Strength(candles []model.Candle) (strength float64, ok bool)
}

// Synthesizer produces an MTFSignal for one symbol at a time.
type Synthesizer struct {
	gw         gateway.Client
	indicators IndicatorSet
	cfg        config.MTFConfig
}

func New(gw gateway.Client, indicators IndicatorSet, cfg config.MTFConfig) *Synthesizer {
	return &Synthesizer{gw: gw, indicators: indicators, cfg: cfg}
}

// Analyze fetches candles for every configured timeframe and combines their
// strengths. Timeframes with fewer than cfg.MinCandles closes are dropped
// with no error — analysis proceeds on whatever timeframes remain, down to
// complete disagreement (confluence 0) if every timeframe is dropped.
func (s *Synthesizer) Analyze(ctx context.Context, symbol model.Symbol) (model.MTFSignal, error) {
	perTF := make(map[string]model.TimeframeSignal, len(Timeframes))
	var bullW, bearW, confSum, weightSum float64
	var dominantStrength float64
	var dominantWeight float64

	for _, tf := range Timeframes {
		candles, err := s.gw.FetchOHLCV(ctx, symbol, tf.Name, s.cfg.MinCandles)
		if err != nil || len(candles) < s.cfg.MinCandles {
			continue
		}
		strength, ok := s.indicators.Strength(candles)
		if !ok {
			continue
		}

		trend := model.TrendNeutral
		if strength > 0 {
			trend = model.TrendBullish
		} else if strength < 0 {
			trend = model.TrendBearish
		}
		perTF[tf.Name] = model.TimeframeSignal{Trend: trend, Strength: strength}

		if strength > 0 {
			bullW += tf.Weight * strength
		} else {
			bearW += tf.Weight * -strength
		}
		confSum += tf.Weight * math.Abs(strength)
		weightSum += tf.Weight

		if tf.Weight > dominantWeight {
			dominantWeight = tf.Weight
			dominantStrength = strength
		}
	}

	if weightSum == 0 {
		// No timeframe had enough data: neutral, zero confluence forces
		// the decision engine's hard gate downstream.
		return model.MTFSignal{Trend: model.TrendNeutral, Confidence: 0, Confluence: 0, Risk: model.RiskMedium, PerTimeframe: perTF}, nil
	}

	trend := model.TrendNeutral
	switch {
	case bullW > 1.2*bearW:
		trend = model.TrendBullish
	case bearW > 1.2*bullW:
		trend = model.TrendBearish
	}

	var confluence float64
	if total := bullW + bearW; total > 0 {
		raw := math.Max(bullW, bearW) / total // in [0.5, 1]
		confluence = (raw - 0.5) * 2
	}

	confidence := confSum / weightSum
	risk := riskBand(math.Abs(dominantStrength))

	return model.MTFSignal{
		Trend:        trend,
		Confidence:   confidence,
		Confluence:   confluence,
		Risk:         risk,
		PerTimeframe: perTF,
	}, nil
}

// riskBand maps the dominant timeframe's strength magnitude into a coarse
// band. No ATR% is computed: the band reflects how strong the reading is,
// not the timeframe's volatility.
func riskBand(magnitude float64) model.RiskLevel {
	switch {
	case magnitude > 0.66:
		return model.RiskHigh
	case magnitude > 0.33:
		return model.RiskMedium
	default:
		return model.RiskLow
	}
}
