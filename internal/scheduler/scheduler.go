// Package scheduler implements C9, the outer loop: reconcile, discover,
// rank, select, run each selected symbol's decision/execution sub-pipeline,
// then sleep the remainder of the polling interval.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/lattice-q/spotrader/internal/config"
	"github.com/lattice-q/spotrader/internal/decision"
	"github.com/lattice-q/spotrader/internal/execution"
	"github.com/lattice-q/spotrader/internal/gateway"
	"github.com/lattice-q/spotrader/internal/model"
	"github.com/lattice-q/spotrader/internal/mtf"
	"github.com/lattice-q/spotrader/internal/ranking"
	"github.com/lattice-q/spotrader/internal/registry"
	"github.com/lattice-q/spotrader/internal/risk"
)

// BaseSignalEvaluator computes the single-timeframe signal Decide combines
// with the MTF read. The production implementation (basesignal.Evaluator)
// applies the MTF synthesizer's indicator to the 15m timeframe, not to the
// dominant MTF timeframe; kept as an interface so the scheduler does not
// depend on any one indicator library.
type BaseSignalEvaluator interface {
	Evaluate(ctx context.Context, symbol model.Symbol) (model.TradingSignal, error)
}

// MacroProvider supplies the optional macro exposure context Decide
// consults. A nil return from Context means "no macro input available",
// never a synthetic neutral value.
type MacroProvider interface {
	Context(ctx context.Context) *model.MacroContext
}

// SymbolOutcome is one entry of a cycle's iteration summary.
type SymbolOutcome struct {
	Symbol   model.Symbol
	Decision model.Decision
	Executed bool
	Reason   string
}

// CycleSummary is logged at the end of every Run iteration.
type CycleSummary struct {
	StartedAt   time.Time
	Duration    time.Duration
	Candidates  int
	Selected    int
	Outcomes    []SymbolOutcome
	Reconciled  bool
	Removed     []model.Symbol
}

// Status is the scheduler's minimal liveness surface: no HTTP server, just
// fields a future operator surface could read.
type Status struct {
	LastCycleAt  time.Time
	LastCycleErr error
}

// Scheduler owns the outer loop. It is not safe for concurrent Run calls.
type Scheduler struct {
	cfg      config.Config
	gw       gateway.Client
	reg      *registry.Registry
	rank     *ranking.Engine
	mtfS     *mtf.Synthesizer
	base     BaseSignalEvaluator
	macro    MacroProvider
	dec      *decision.Engine
	sizer    *risk.Sizer
	exec     *execution.Executor
	riskMgr  *risk.Manager
	notifier Notifier

	restrictedPath string
	status         Status
	dailyFills     int
}

type Dependencies struct {
	Gateway   gateway.Client
	Registry  *registry.Registry
	Ranking   *ranking.Engine
	MTF       *mtf.Synthesizer
	Base      BaseSignalEvaluator
	Macro     MacroProvider
	Decision  *decision.Engine
	Sizer     *risk.Sizer
	Executor  *execution.Executor
	RiskMgr   *risk.Manager
	Notifier  Notifier
}

func New(cfg config.Config, deps Dependencies) *Scheduler {
	return &Scheduler{
		cfg:            cfg,
		gw:             deps.Gateway,
		reg:            deps.Registry,
		rank:           deps.Ranking,
		mtfS:           deps.MTF,
		base:           deps.Base,
		macro:          deps.Macro,
		dec:            deps.Decision,
		sizer:          deps.Sizer,
		exec:           deps.Executor,
		riskMgr:        deps.RiskMgr,
		notifier:       deps.Notifier,
		restrictedPath: cfg.Registry.RestrictedPath,
	}
}

func (s *Scheduler) Status() Status { return s.status }

// Run executes the outer loop until ctx is canceled. It honors shutdown at
// sleep points and between symbols; an in-flight decision/execution
// sub-pipeline is always allowed to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	dailyResetTimer := time.NewTimer(timeUntilMidnightUTC())
	defer dailyResetTimer.Stop()

	for {
		summary, err := s.runCycle(ctx)
		s.status.LastCycleAt = time.Now()
		s.status.LastCycleErr = err
		if err != nil {
			log.Printf("scheduler: cycle error: %v", err)
		}
		logSummary(summary)
		for _, o := range summary.Outcomes {
			if o.Executed {
				s.dailyFills++
			}
		}

		elapsed := summary.Duration
		interval := s.cfg.PollingInterval
		if interval <= 0 {
			interval = 60 * time.Second
		}
		sleep := interval - elapsed
		if sleep < 0 {
			sleep = 0
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-dailyResetTimer.C:
			s.sendDailySummary(ctx, s.dailyFills)
			s.riskMgr.ResetDaily()
			s.dailyFills = 0
			dailyResetTimer.Reset(timeUntilMidnightUTC())
		case <-time.After(sleep):
		}
	}
}

func (s *Scheduler) runCycle(ctx context.Context) (CycleSummary, error) {
	t0 := time.Now()
	summary := CycleSummary{StartedAt: t0}

	if s.reg.ShouldReconcile() {
		if err := s.reg.Reconcile(ctx); err != nil {
			log.Printf("scheduler: reconcile failed: %v", err)
		} else {
			summary.Reconciled = true
		}
	}

	s.enforceManualProtection(ctx)

	restricted, err := loadRestricted(s.restrictedPath)
	if err != nil {
		log.Printf("scheduler: restricted symbols load failed: %v", err)
	}

	candidates, err := s.gw.DiscoverLiquidSymbols(ctx, s.cfg.MinQuoteVolumeUSD, 50)
	if err != nil {
		summary.Duration = time.Since(t0)
		return summary, fmt.Errorf("discover liquid symbols: %w", err)
	}
	candidates = subtract(candidates, restricted)
	summary.Candidates = len(candidates)

	scores, _, err := s.rank.Rank(ctx, candidates, s.cfg.MaxSymbolsPerCycle)
	if err != nil {
		summary.Duration = time.Since(t0)
		return summary, fmt.Errorf("rank: %w", err)
	}
	writeRankReport(s.cfg.Registry.SnapshotPath, scores)

	availableSlots := s.cfg.MaxPositions - len(s.reg.All())
	if availableSlots <= 0 {
		summary.Duration = time.Since(t0)
		return summary, nil
	}

	maxPerCycle := s.cfg.MaxSymbolsPerCycle
	if maxPerCycle <= 0 {
		maxPerCycle = 15
	}
	selectCount := availableSlots + 3
	if selectCount > maxPerCycle {
		selectCount = maxPerCycle
	}
	if selectCount > len(scores) {
		selectCount = len(scores)
	}
	selection := scores[:selectCount]
	summary.Selected = len(selection)

	for _, sc := range selection {
		if ctx.Err() != nil {
			summary.Duration = time.Since(t0)
			return summary, ctx.Err()
		}
		if availableSlots <= 0 {
			break
		}
		outcome := s.processSymbol(ctx, sc)
		summary.Outcomes = append(summary.Outcomes, outcome)
		if outcome.Executed && outcome.Decision == model.DecisionBuy {
			availableSlots--
		}
	}

	summary.Duration = time.Since(t0)
	return summary, nil
}

func (s *Scheduler) processSymbol(ctx context.Context, sc model.TokenScore) SymbolOutcome {
	symbol := sc.Symbol

	mtfSig, err := s.mtfS.Analyze(ctx, symbol)
	if err != nil {
		return SymbolOutcome{Symbol: symbol, Reason: fmt.Sprintf("mtf analyze: %v", err)}
	}
	base, err := s.base.Evaluate(ctx, symbol)
	if err != nil {
		return SymbolOutcome{Symbol: symbol, Reason: fmt.Sprintf("base evaluate: %v", err)}
	}

	var macroCtx *model.MacroContext
	if s.macro != nil {
		macroCtx = s.macro.Context(ctx)
	}

	structure := s.structureScore(ctx, symbol)
	verdict := s.dec.Decide(base, mtfSig, macroCtx, structure, sc.Regime)

	switch verdict.Decision {
	case model.DecisionBuy:
		if s.reg.Has(symbol) {
			return SymbolOutcome{Symbol: symbol, Decision: model.DecisionHold, Reason: "already held"}
		}
		if err := s.riskMgr.Allow(symbol, s.cfg.Risk.MaxMarketOrderNotional); err != nil {
			return SymbolOutcome{Symbol: symbol, Decision: verdict.Decision, Reason: fmt.Sprintf("risk veto: %v", err)}
		}
		snap, err := s.gw.FetchTicker(ctx, symbol)
		if err != nil {
			return SymbolOutcome{Symbol: symbol, Decision: verdict.Decision, Reason: fmt.Sprintf("fetch ticker: %v", err)}
		}
		atr15, err := atr15(ctx, s.gw, symbol)
		if err != nil {
			return SymbolOutcome{Symbol: symbol, Decision: verdict.Decision, Reason: fmt.Sprintf("atr15: %v", err)}
		}
		res := s.exec.Buy(ctx, symbol, snap.Mid(), atr15, nil)
		if res.Err != nil {
			return SymbolOutcome{Symbol: symbol, Decision: verdict.Decision, Reason: res.Err.Error()}
		}
		s.riskMgr.AddPosition(symbol, res.Position.Amount*res.Position.EntryPrice)
		return SymbolOutcome{Symbol: symbol, Decision: verdict.Decision, Executed: true}

	case model.DecisionSell:
		pos, ok := s.reg.Get(symbol)
		if !ok {
			return SymbolOutcome{Symbol: symbol, Decision: verdict.Decision, Reason: "no position held"}
		}
		res := s.exec.Sell(ctx, pos)
		if res.Err != nil {
			return SymbolOutcome{Symbol: symbol, Decision: verdict.Decision, Reason: res.Err.Error()}
		}
		s.riskMgr.RemovePosition(symbol, pos.Amount*pos.EntryPrice)
		return SymbolOutcome{Symbol: symbol, Decision: verdict.Decision, Executed: true}

	default:
		return SymbolOutcome{Symbol: symbol, Decision: model.DecisionHold}
	}
}

// enforceManualProtection compares each unmanaged position's stored stop
// and take-profit levels against the latest price and sells on breach.
func (s *Scheduler) enforceManualProtection(ctx context.Context) {
	for _, pos := range s.reg.All() {
		if pos.ManagedByExchange {
			continue
		}
		snap, err := s.gw.FetchTicker(ctx, pos.Symbol)
		if err != nil {
			log.Printf("scheduler: manual protection check failed for %s: %v", pos.Symbol, err)
			continue
		}
		mid := snap.Mid()
		if mid <= 0 {
			continue
		}
		breached := mid <= pos.StopLoss || mid >= pos.TakeProfit
		if !breached {
			continue
		}
		log.Printf("scheduler: manual protection breach for %s at %.8f (stop=%.8f take=%.8f)", pos.Symbol, mid, pos.StopLoss, pos.TakeProfit)
		if res := s.exec.Sell(ctx, pos); res.Err != nil {
			log.Printf("scheduler: manual protection sell failed for %s: %v", pos.Symbol, res.Err)
		}
	}
}

// structureScore derives the optional market-structure input to Decide
// from order-book imbalance: the fraction of visible depth sitting on the
// bid side. Returns 0.5 (neutral) if the book cannot be fetched, since this
// input is explicitly optional — a fetch failure here must not abort the
// whole decision the way a missing base/MTF signal does.
func (s *Scheduler) structureScore(ctx context.Context, symbol model.Symbol) float64 {
	bids, asks, err := s.gw.FetchOrderBook(ctx, symbol, 10)
	if err != nil {
		return 0.5
	}
	var bidVol, askVol float64
	for _, l := range bids {
		bidVol += l.Size
	}
	for _, l := range asks {
		askVol += l.Size
	}
	total := bidVol + askVol
	if total <= 0 {
		return 0.5
	}
	return bidVol / total
}

// atr15 computes a 14-period average true range over 15m candles, the
// volatility measure §4.6's sizing formulas are expressed in terms of.
func atr15(ctx context.Context, gw gateway.Client, symbol model.Symbol) (float64, error) {
	const period = 14
	candles, err := gw.FetchOHLCV(ctx, symbol, "15m", period+1)
	if err != nil {
		return 0, err
	}
	if len(candles) < 2 {
		return 0, fmt.Errorf("insufficient candles for ATR: got %d", len(candles))
	}

	var sum float64
	n := 0
	for i := 1; i < len(candles); i++ {
		tr := trueRange(candles[i], candles[i-1])
		sum += tr
		n++
	}
	if n == 0 {
		return 0, fmt.Errorf("no true range samples")
	}
	return sum / float64(n), nil
}

func trueRange(cur, prev model.Candle) float64 {
	highLow := cur.High - cur.Low
	highClose := abs(cur.High - prev.Close)
	lowClose := abs(cur.Low - prev.Close)
	tr := highLow
	if highClose > tr {
		tr = highClose
	}
	if lowClose > tr {
		tr = lowClose
	}
	return tr
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func subtract(symbols, restricted []model.Symbol) []model.Symbol {
	if len(restricted) == 0 {
		return symbols
	}
	excluded := make(map[model.Symbol]struct{}, len(restricted))
	for _, r := range restricted {
		excluded[r] = struct{}{}
	}
	out := make([]model.Symbol, 0, len(symbols))
	for _, sym := range symbols {
		if _, skip := excluded[sym]; !skip {
			out = append(out, sym)
		}
	}
	return out
}

func loadRestricted(path string) ([]model.Symbol, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var raw []string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	out := make([]model.Symbol, len(raw))
	for i, r := range raw {
		out[i] = model.Symbol(r)
	}
	return out, nil
}

// rankReportEntry is the on-disk shape of a single ranked symbol; kept
// separate from model.TokenScore so the report format is stable even if
// TokenScore grows internal-only fields.
type rankReportEntry struct {
	Symbol    model.Symbol  `json:"symbol"`
	Total     float64       `json:"total"`
	Liquidity float64       `json:"liquidity"`
	Momentum  float64       `json:"momentum"`
	Trend     float64       `json:"trend"`
	Volatility float64      `json:"volatility"`
	Macro     float64       `json:"macro"`
	Regime    model.Regime  `json:"regime"`
	Timestamp time.Time     `json:"timestamp"`
}

// writeRankReport best-effort persists the top-N ranked scores for
// operator visibility; any failure is logged and never aborts the cycle.
func writeRankReport(snapshotPath string, scores []model.TokenScore) {
	dir := filepath.Dir(snapshotPath)
	if dir == "" || dir == "." {
		dir = "data"
	}
	path := filepath.Join(dir, "rank_report.json")

	now := time.Now()
	entries := make([]rankReportEntry, 0, len(scores))
	for _, sc := range scores {
		entries = append(entries, rankReportEntry{
			Symbol:     sc.Symbol,
			Total:      sc.Total,
			Liquidity:  sc.Liquidity,
			Momentum:   sc.Momentum,
			Trend:      sc.Trend,
			Volatility: sc.Volatility,
			Macro:      sc.MacroSentiment,
			Regime:     sc.Regime,
			Timestamp:  now,
		})
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		log.Printf("scheduler: rank report marshal failed: %v", err)
		return
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Printf("scheduler: rank report mkdir failed: %v", err)
		return
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		log.Printf("scheduler: rank report write failed: %v", err)
	}
}

func logSummary(s CycleSummary) {
	log.Printf("scheduler: cycle done in %s candidates=%d selected=%d reconciled=%v removed=%v",
		s.Duration, s.Candidates, s.Selected, s.Reconciled, s.Removed)
	for _, o := range s.Outcomes {
		status := "skipped"
		if o.Executed {
			status = "executed"
		}
		log.Printf("scheduler:   %s:%s:%s %s", o.Symbol, o.Decision, status, o.Reason)
	}
}
