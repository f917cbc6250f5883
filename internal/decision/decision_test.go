package decision

import (
	"testing"

	"github.com/lattice-q/spotrader/internal/config"
	"github.com/lattice-q/spotrader/internal/model"
)

func TestDecideHappyPathBuy(t *testing.T) {
	e := New(config.DecisionConfig{BaseThreshold: 0.30})
	base := model.TradingSignal{Decision: model.DecisionBuy, Confidence: 0.80}
	mtf := model.MTFSignal{Trend: model.TrendBullish, Confidence: 0.75, Confluence: 0.82}
	macro := &model.MacroContext{RecommendedExposure: 0.7}

	v := e.Decide(base, mtf, macro, 0.75, model.RegimeTrending)

	wantRequired := 0.40 * 0.80 * 0.90
	if diff := v.RequiredConfidence - wantRequired; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("required confidence = %f, want %f", v.RequiredConfidence, wantRequired)
	}
	wantCombined := 0.6*0.80 + 0.4*0.75
	if diff := v.CombinedConfidence - wantCombined; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("combined confidence = %f, want %f", v.CombinedConfidence, wantCombined)
	}
	if v.Decision != model.DecisionBuy {
		t.Fatalf("expected BUY, got %s", v.Decision)
	}
}

func TestDecideHardConfluenceGate(t *testing.T) {
	e := New(config.DecisionConfig{BaseThreshold: 0.30})
	base := model.TradingSignal{Decision: model.DecisionBuy, Confidence: 0.95}
	mtf := model.MTFSignal{Trend: model.TrendBullish, Confidence: 0.90, Confluence: 0.45}

	v := e.Decide(base, mtf, nil, 0.5, model.RegimeNeutral)
	if v.Decision != model.DecisionHold {
		t.Fatalf("expected HOLD below the 0.70 confluence gate regardless of confidence, got %s", v.Decision)
	}
}

func TestDecideSellSymmetric(t *testing.T) {
	e := New(config.DecisionConfig{BaseThreshold: 0.30})
	base := model.TradingSignal{Decision: model.DecisionSell, Confidence: 0.80}
	mtf := model.MTFSignal{Trend: model.TrendBearish, Confidence: 0.80, Confluence: 0.85}

	v := e.Decide(base, mtf, nil, 0.5, model.RegimeNeutral)
	if v.Decision != model.DecisionSell {
		t.Fatalf("expected SELL, got %s", v.Decision)
	}
}

func TestDecideMismatchedDirectionsHolds(t *testing.T) {
	e := New(config.DecisionConfig{BaseThreshold: 0.30})
	base := model.TradingSignal{Decision: model.DecisionBuy, Confidence: 0.90}
	mtf := model.MTFSignal{Trend: model.TrendBearish, Confidence: 0.90, Confluence: 0.90}

	v := e.Decide(base, mtf, nil, 0.5, model.RegimeNeutral)
	if v.Decision != model.DecisionHold {
		t.Fatalf("expected HOLD when base and mtf disagree on direction, got %s", v.Decision)
	}
}

func TestDecideLowExposureRaisesBar(t *testing.T) {
	e := New(config.DecisionConfig{BaseThreshold: 0.30})
	base := model.TradingSignal{Decision: model.DecisionBuy, Confidence: 0.30}
	mtf := model.MTFSignal{Trend: model.TrendBullish, Confidence: 0.30, Confluence: 0.75}
	lowExposure := &model.MacroContext{RecommendedExposure: 0.2}

	v := e.Decide(base, mtf, lowExposure, 0.5, model.RegimeNeutral)
	if v.Decision != model.DecisionHold {
		t.Fatalf("expected HOLD when low macro exposure raises the bar above combined confidence, got %s", v.Decision)
	}
}
