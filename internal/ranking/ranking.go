// Package ranking scores and ranks candidate symbols: six sub-scores
// combined with regime-dependent weights into a single TokenScore.Total,
// filtered to the top-N. No result is cached across cycles. A symbol is
// dropped only when a sub-score has no defined "absent" meaning (momentum,
// asset-class risk); macro and onchain are None-allowed and fall back to
// their neutral/zero contribution instead of eliminating the candidate.
package ranking

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/lattice-q/spotrader/internal/config"
	"github.com/lattice-q/spotrader/internal/gateway"
	"github.com/lattice-q/spotrader/internal/marketdata"
	"github.com/lattice-q/spotrader/internal/model"
)

// AssetClass is one of the closed categories §4.3 permits for
// asset_class_risk. Base symbols outside these three sets have no defined
// risk contribution and are skipped rather than guessed.
type AssetClass string

const (
	ClassMajor      AssetClass = "major"
	ClassStablecoin AssetClass = "stablecoin"
	ClassMeme       AssetClass = "meme"
)

var assetClassRisk = map[AssetClass]float64{
	ClassMajor:      0.20,
	ClassStablecoin: 0.05,
	ClassMeme:       0.85,
}

// DefaultClassification is a minimal, closed starter set; operators extend
// it via Classifier.Register. Bases outside all three sets yield no risk
// score and the symbol is skipped — this is the "unknown base symbols
// return None for risk; no guessing" rule made concrete.
func DefaultClassification() map[string]AssetClass {
	return map[string]AssetClass{
		"BTC": ClassMajor, "ETH": ClassMajor, "SOL": ClassMajor, "BNB": ClassMajor,
		"USDT": ClassStablecoin, "USDC": ClassStablecoin, "DAI": ClassStablecoin,
		"DOGE": ClassMeme, "SHIB": ClassMeme, "PEPE": ClassMeme, "WIF": ClassMeme,
	}
}

// Classifier looks up the asset class for a base symbol.
type Classifier struct {
	mu      sync.RWMutex
	classes map[string]AssetClass
}

func NewClassifier(seed map[string]AssetClass) *Classifier {
	c := &Classifier{classes: make(map[string]AssetClass, len(seed))}
	for k, v := range seed {
		c.classes[k] = v
	}
	return c
}

func (c *Classifier) Register(base string, class AssetClass) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.classes[base] = class
}

func (c *Classifier) classRisk(base string) (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	class, ok := c.classes[base]
	if !ok {
		return 0, false
	}
	return assetClassRisk[class], true
}

// MacroProvider supplies a base macro sentiment score in [0,1] per symbol.
// Returning ok=false means "no data": scoreSymbol treats that the same as
// a nil MacroProvider and falls back to the neutral 0.5 baseline rather
// than dropping the candidate.
type MacroProvider interface {
	MacroSentiment(symbol model.Symbol) (score float64, ok bool)
}

// OnchainProvider supplies an on-chain score in [0,1] per symbol. None is
// allowed: a false ok (or a nil OnchainProvider) contributes 0 for the
// on-chain sub-score instead of eliminating the candidate.
type OnchainProvider interface {
	OnchainScore(symbol model.Symbol) (score float64, ok bool)
}

var weightTable = map[model.Regime][6]float64{
	// order: liquidity, momentum, macro, onchain, volatility, trend
	model.RegimeNeutral:  {0.25, 0.30, 0.15, 0.10, 0.10, 0.10},
	model.RegimeTrending: {0.15, 0.40, 0.05, 0.10, 0.10, 0.20},
	model.RegimeVolatile: {0.40, 0.15, 0.15, 0.10, 0.20, 0.00},
	model.RegimeRanging:  {0.25, 0.20, 0.25, 0.10, 0.15, 0.05},
}

// Engine ranks candidate symbols per cycle.
type Engine struct {
	gw         gateway.Client
	md         *marketdata.Provider
	classifier *Classifier
	macro      MacroProvider
	onchain    OnchainProvider
	cfg        config.RankingConfig

	mu            sync.Mutex
	previousTotal map[model.Symbol]float64
}

func New(gw gateway.Client, md *marketdata.Provider, classifier *Classifier, macro MacroProvider, onchain OnchainProvider, cfg config.RankingConfig) *Engine {
	return &Engine{
		gw: gw, md: md, classifier: classifier, macro: macro, onchain: onchain, cfg: cfg,
		previousTotal: make(map[model.Symbol]float64),
	}
}

// ScoreChange is emitted for telemetry only when a symbol's total score
// moved by at least 0.10 since the previous cycle.
type ScoreChange struct {
	Symbol  model.Symbol
	Before  float64
	After   float64
}

// Rank scores every candidate, drops invalid ones, and returns the top-N
// sorted descending by Total, plus the set of notable score changes.
func (e *Engine) Rank(ctx context.Context, candidates []model.Symbol, topN int) ([]model.TokenScore, []ScoreChange, error) {
	regime := e.detectRegime(ctx)

	scores := make([]model.TokenScore, 0, len(candidates))
	for _, sym := range candidates {
		ts, ok := e.scoreSymbol(ctx, sym, regime)
		if !ok {
			continue
		}
		scores = append(scores, ts)
	}

	sort.Slice(scores, func(i, j int) bool { return scores[i].Total > scores[j].Total })
	if topN > 0 && len(scores) > topN {
		scores = scores[:topN]
	}

	e.mu.Lock()
	var changes []ScoreChange
	next := make(map[model.Symbol]float64, len(scores))
	for _, s := range scores {
		next[s.Symbol] = s.Total
		if prev, had := e.previousTotal[s.Symbol]; had && math.Abs(prev-s.Total) >= 0.10 {
			changes = append(changes, ScoreChange{Symbol: s.Symbol, Before: prev, After: s.Total})
		}
	}
	e.previousTotal = next
	e.mu.Unlock()

	return scores, changes, nil
}

func (e *Engine) scoreSymbol(ctx context.Context, sym model.Symbol, regime model.Regime) (model.TokenScore, bool) {
	derived, err := e.md.Get(ctx, sym)
	if err != nil {
		return model.TokenScore{}, false
	}

	liquidity := derived.Liquidity
	volatility := derived.Volatility

	momentum, ok := momentumScore(derived.Snapshot)
	if !ok {
		return model.TokenScore{}, false
	}

	// macroSentiment never reports None: absent macro input falls back to
	// the neutral baseline instead of dropping the candidate.
	macroScore, _ := e.macroSentiment(sym, momentum)

	var onchain float64
	if e.onchain != nil {
		if v, onchainOK := e.onchain.OnchainScore(sym); onchainOK {
			onchain = v
		}
	}

	trend := trendStrength(derived.Snapshot)

	classRisk, ok := e.classifier.classRisk(sym.Base())
	if !ok {
		return model.TokenScore{}, false
	}
	risk := 0.4*(1-volatility) + 0.4*(1-liquidity) + 0.2*classRisk

	w := weightTable[regime]
	weighted := w[0]*liquidity + w[1]*momentum + w[2]*macroScore + w[3]*onchain + w[4]*volatility + w[5]*trend
	total := clamp01(weighted * (1 - 0.3*(risk-0.5)))

	return model.TokenScore{
		Symbol: sym, Liquidity: liquidity, Momentum: momentum, MacroSentiment: macroScore,
		Onchain: onchain, Volatility: volatility, Trend: trend, Risk: risk, Total: total, Regime: regime,
	}, true
}

// macroSentiment adjusts the injected base sentiment ±0.15 by the sign and
// magnitude of real momentum, as §4.3 step 2 requires. Macro is
// None-allowed: a nil provider or a false ok both mean "no signal," and
// both resolve to the neutral 0.5 baseline rather than failing the score.
func (e *Engine) macroSentiment(sym model.Symbol, momentum float64) (float64, bool) {
	base := 0.5
	if e.macro != nil {
		if v, ok := e.macro.MacroSentiment(sym); ok {
			base = v
		}
	}
	adj := (momentum - 0.5) * 0.30 // momentum in [0,1]; centered delta scaled to ±0.15
	return clamp01(base + adj), true
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// momentumScore blends a price term with a volume-confirmation term. The
// price term is the last price's relative distance from the 24h high/low
// midpoint, not a return from the 24h open; both terms are derived strictly from the current snapshot, since no
// cross-cycle state is retained for ranking inputs.
func momentumScore(snap model.MarketSnapshot) (float64, bool) {
	if snap.Last <= 0 {
		return 0, false
	}
	low, high := snap.Low24h, snap.High24h
	if high < low || high <= 0 {
		return 0, false
	}
	mid := (high + low) / 2
	if mid <= 0 {
		return 0, false
	}
	pctChange := (snap.Last - mid) / mid
	priceScore := clamp01(0.5 + pctChange*5)

	volumeUSD := snap.Volume24h * snap.Last
	volumeScore := math.Min(1, math.Log10(math.Max(1, volumeUSD))/math.Log10(1e8))

	return clamp01(0.7*priceScore + 0.3*volumeScore), true
}

// trendStrength is the last price's distance from the 24h high/low midpoint
// as a fraction of half the 24h range; no open price is used.
func trendStrength(snap model.MarketSnapshot) float64 {
	rng := snap.High24h - snap.Low24h
	if rng <= 0 {
		return 0
	}
	body := math.Abs(snap.Last - (snap.High24h+snap.Low24h)/2)
	return clamp01(body / (rng / 2))
}

// detectRegime polls the configured bellwether symbols and classifies the
// average relative distance of each last price from its 24h high/low
// midpoint (not a change from the 24h open) into the four regimes. Missing data falls
// back to neutral rather than failing the cycle.
func (e *Engine) detectRegime(ctx context.Context) model.Regime {
	var sum float64
	var n int
	for _, sym := range e.cfg.BellwetherSymbols {
		snap, err := e.gw.FetchTicker(ctx, model.Symbol(sym))
		if err != nil || snap.Last <= 0 {
			continue
		}
		mid := (snap.High24h + snap.Low24h) / 2
		if mid <= 0 {
			continue
		}
		sum += (snap.Last - mid) / mid
		n++
	}
	if n == 0 {
		return model.RegimeNeutral
	}
	m := sum / float64(n)
	switch {
	case m > 0.05 || m < -0.05:
		return model.RegimeTrending
	case math.Abs(m) > 0.02:
		return model.RegimeVolatile
	default:
		return model.RegimeRanging
	}
}
