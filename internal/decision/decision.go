// Package decision combines the base signal, the multi-timeframe signal,
// macro context and market structure into a final BUY/SELL/HOLD verdict
// and the required-confidence threshold it had to beat, per §4.5.
package decision

import (
	"github.com/lattice-q/spotrader/internal/config"
	"github.com/lattice-q/spotrader/internal/model"
)

// RegimeThresholds overrides the base threshold per detected regime. Zero
// value for an unset regime falls back to cfg.BaseThreshold.
var RegimeThresholds = map[model.Regime]float64{
	model.RegimeTrending: 0.40,
	model.RegimeRanging:  0.55,
	model.RegimeVolatile: 0.70,
}

// Verdict is the decision engine's output, always logged alongside the
// inputs that produced it so it is reproducible from logs.
type Verdict struct {
	Decision           model.Decision
	RequiredConfidence float64
	CombinedConfidence float64
}

// Engine holds no state; Decide is a pure function of its inputs.
type Engine struct {
	cfg config.DecisionConfig
}

func New(cfg config.DecisionConfig) *Engine {
	return &Engine{cfg: cfg}
}

// Decide implements §4.5's required-confidence chain and hard gate exactly.
func (e *Engine) Decide(base model.TradingSignal, mtf model.MTFSignal, macro *model.MacroContext, structureScore float64, regime model.Regime) Verdict {
	required := e.cfg.BaseThreshold
	if t, ok := RegimeThresholds[regime]; ok {
		required = t
	}

	switch {
	case mtf.Confluence > 0.8:
		required *= 0.80
	case mtf.Confluence < 0.4:
		required *= 1.20
	}

	if macro != nil && macro.RecommendedExposure < 0.5 {
		required *= 1.20
	}

	switch {
	case structureScore < 0.3:
		required *= 1.15
	case structureScore > 0.7:
		required *= 0.90
	}

	combined := 0.6*base.Confidence + 0.4*mtf.Confidence

	// Hard gate: disagreeing timeframes force HOLD regardless of anything
	// else computed above.
	if mtf.Confluence < 0.70 {
		return Verdict{Decision: model.DecisionHold, RequiredConfidence: required, CombinedConfidence: combined}
	}

	if combined < required {
		return Verdict{Decision: model.DecisionHold, RequiredConfidence: required, CombinedConfidence: combined}
	}

	var decision model.Decision
	switch {
	case base.Decision == model.DecisionBuy && mtf.Trend == model.TrendBullish:
		decision = model.DecisionBuy
	case base.Decision == model.DecisionSell && mtf.Trend == model.TrendBearish:
		decision = model.DecisionSell
	default:
		decision = model.DecisionHold
	}

	return Verdict{Decision: decision, RequiredConfidence: required, CombinedConfidence: combined}
}
