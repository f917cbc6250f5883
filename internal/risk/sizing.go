package risk

import (
	"github.com/lattice-q/spotrader/internal/config"
)

// WinLossStats is the trailing win/loss record an optional Kelly scale is
// derived from. Absent (nil) stats skip Kelly scaling entirely rather
// than substituting an assumed edge.
type WinLossStats struct {
	WinRate  float64 // fraction of trades closed in profit, [0,1]
	AvgWin   float64 // average winning trade return, e.g. 0.02 = 2%
	AvgLoss  float64 // average losing trade return, positive magnitude
}

// Plan is a sized trade ready for the executor: stop-loss/take-profit
// prices and the notional amount to submit.
type Plan struct {
	StopLoss     float64
	TakeProfit   float64
	NotionalUSDC float64
}

// Sizer computes §4.6's ATR-based protective levels and notional size. It
// holds no state — every call is a pure function of its inputs plus the
// static config multiples.
type Sizer struct {
	cfg config.RiskConfig
}

func NewSizer(cfg config.RiskConfig) *Sizer {
	return &Sizer{cfg: cfg}
}

// Size computes the stop/take/notional plan for a long entry at entryPrice
// given the 15m ATR. Returns ok=false when entryPrice or atr15 is missing
// (<=0) — the caller must not substitute a synthetic default, it must skip
// the trade.
func (s *Sizer) Size(entryPrice, atr15 float64, stats *WinLossStats) (Plan, bool) {
	if entryPrice <= 0 || atr15 <= 0 || s.cfg.EquityUSDC <= 0 {
		return Plan{}, false
	}

	stopMultiple := s.cfg.StopLossATRMultiple
	if stopMultiple <= 0 {
		stopMultiple = 1.5
	}
	takeMultiple := s.cfg.TakeProfitATRMultiple
	if takeMultiple <= 0 {
		takeMultiple = 3.0
	}

	stopLoss := entryPrice - stopMultiple*atr15
	takeProfit := entryPrice + takeMultiple*atr15

	riskPerTrade := s.cfg.RiskPerTrade
	if s.cfg.KellyEnabled && stats != nil {
		if f := kellyFraction(*stats); f > 0 {
			riskPerTrade = s.cfg.RiskPerTrade * clamp(f, 0, s.cfg.KellyMaxFraction)
		}
	}

	stopDistancePct := stopMultiple * atr15 / entryPrice
	if stopDistancePct <= 0 {
		return Plan{}, false
	}
	notional := s.cfg.EquityUSDC * riskPerTrade / stopDistancePct
	if s.cfg.MaxMarketOrderNotional > 0 && notional > s.cfg.MaxMarketOrderNotional {
		notional = s.cfg.MaxMarketOrderNotional
	}

	return Plan{StopLoss: stopLoss, TakeProfit: takeProfit, NotionalUSDC: notional}, true
}

// kellyFraction is the standard Kelly criterion for a binary win/loss
// payoff: f* = p/a - q/b where p=win rate, q=1-p, b=avg win, a=avg loss.
// Returns 0 (no scaling applied) for degenerate inputs rather than a
// negative or infinite fraction.
func kellyFraction(s WinLossStats) float64 {
	if s.AvgLoss <= 0 || s.AvgWin <= 0 || s.WinRate <= 0 || s.WinRate >= 1 {
		return 0
	}
	p := s.WinRate
	q := 1 - p
	f := p/s.AvgLoss - q/s.AvgWin
	if f < 0 {
		return 0
	}
	return f
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
