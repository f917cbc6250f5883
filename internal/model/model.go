// Package model holds the data types shared across the trading pipeline:
// market snapshots, candles, scores, signals, and positions. None of these
// types carry behavior beyond simple derived getters; the components that
// produce and consume them own the logic.
package model

import "time"

// Symbol is a BASE/QUOTE pair, always uppercase, e.g. "BTC/USDT".
type Symbol string

// Base returns the base asset of the symbol, e.g. "BTC" for "BTC/USDT".
func (s Symbol) Base() string {
	for i := 0; i < len(s); i++ {
		if s[i] == '/' {
			return string(s[:i])
		}
	}
	return string(s)
}

// Quote returns the quote asset of the symbol, e.g. "USDT" for "BTC/USDT".
func (s Symbol) Quote() string {
	for i := 0; i < len(s); i++ {
		if s[i] == '/' {
			return string(s[i+1:])
		}
	}
	return ""
}

// PriceLevel is a single order-book entry.
type PriceLevel struct {
	Price float64
	Size  float64
}

// MarketSnapshot is an immutable point-in-time view of a symbol's market.
type MarketSnapshot struct {
	Symbol    Symbol
	Last      float64
	High24h   float64
	Low24h    float64
	Volume24h float64 // base-asset volume
	BestBid   float64
	BestAsk   float64
	Bids      []PriceLevel // top-K, best first
	Asks      []PriceLevel // top-K, best first
	FetchedAt time.Time
}

// Mid returns the mid price, or 0 if the book is empty.
func (s MarketSnapshot) Mid() float64 {
	if s.BestBid <= 0 || s.BestAsk <= 0 {
		return 0
	}
	return (s.BestBid + s.BestAsk) / 2
}

// Candle is one OHLCV bar for a given timeframe.
type Candle struct {
	OpenTime time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
}

// Regime is a coarse market label derived from bellwether-symbol momentum.
type Regime string

const (
	RegimeNeutral  Regime = "neutral"
	RegimeTrending Regime = "trending"
	RegimeVolatile Regime = "volatile"
	RegimeRanging  Regime = "ranging"
)

// TokenScore is the ranking engine's output for one symbol. Every field is
// in [0,1]; a TokenScore is only emitted once every sub-score is present —
// there is no partially-valid TokenScore.
type TokenScore struct {
	Symbol         Symbol
	Liquidity      float64
	Momentum       float64
	MacroSentiment float64
	Onchain        float64
	Volatility     float64
	Trend          float64
	Risk           float64
	Total          float64
	Regime         Regime
}

// Trend is the directional label produced by multi-timeframe synthesis.
type Trend string

const (
	TrendBullish Trend = "bullish"
	TrendBearish Trend = "bearish"
	TrendNeutral Trend = "neutral"
)

// RiskLevel is a coarse risk banding.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// TimeframeSignal is the per-timeframe directional reading that feeds
// MTFSignal synthesis.
type TimeframeSignal struct {
	Trend    Trend
	Strength float64 // signed, [-1, +1]
}

// MTFSignal is the combined reading across all configured timeframes.
type MTFSignal struct {
	Trend         Trend
	Confidence    float64
	Confluence    float64
	Risk          RiskLevel
	PerTimeframe  map[string]TimeframeSignal
}

// Decision is the base decision engine's verdict for one symbol: BUY, SELL
// or HOLD.
type Decision string

const (
	DecisionBuy  Decision = "BUY"
	DecisionSell Decision = "SELL"
	DecisionHold Decision = "HOLD"
)

// TradingSignal is the base, single-timeframe signal fed into the decision
// engine alongside the MTFSignal.
type TradingSignal struct {
	Decision   Decision
	Confidence float64
}

// MacroPhase is the macro/risk regime injected from outside the pipeline.
type MacroPhase string

const (
	MacroRiskOn  MacroPhase = "risk_on"
	MacroRiskOff MacroPhase = "risk_off"
	MacroNeutral MacroPhase = "neutral"
)

// MacroSentiment mirrors MacroPhase's sentiment axis.
type MacroSentiment string

const (
	SentimentBullish MacroSentiment = "bullish"
	SentimentBearish MacroSentiment = "bearish"
	SentimentNeutral MacroSentiment = "neutral"
)

// MacroContext is optional, injected market-wide risk context. Absent means
// gating defaults to neutral.
type MacroContext struct {
	Phase               MacroPhase
	Sentiment           MacroSentiment
	RiskLevel           RiskLevel
	RecommendedExposure float64 // [0,1]
}

// PositionSide is always "long" today; short positions are out of scope.
type PositionSide string

const PositionSideLong PositionSide = "long"

// Position is one open spot holding, owned exclusively by the registry.
type Position struct {
	Symbol            Symbol       `json:"symbol"`
	Side              PositionSide `json:"side"`
	Amount            float64      `json:"amount"`
	EntryPrice        float64      `json:"entry_price"`
	StopLoss          float64      `json:"stop_loss"`
	TakeProfit        float64      `json:"take_profit"`
	OrderID           string       `json:"order_id"`
	ProtectionAlgoID  string       `json:"protection_algo_id,omitempty"`
	ManagedByExchange bool         `json:"managed_by_exchange"`
	EntryTime         time.Time    `json:"entry_time"`
}

// OrderSide is the side of a regular or algo order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderType distinguishes market vs. limit regular orders.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// Order is a regular (non-algo) exchange order.
type Order struct {
	ID       string
	Symbol   Symbol
	Side     OrderSide
	Type     OrderType
	Size     float64
	Price    float64
	Status   string
	Filled   float64
}

// AlgoOrder is an exchange conditional (OCO) order.
type AlgoOrder struct {
	ID         string
	Symbol     Symbol
	Side       OrderSide
	Size       float64
	TPTrigger  float64
	SLTrigger  float64
	StatusCode string
	StatusMsg  string
}

// Balance is one asset's free/locked balance.
type Balance struct {
	Free   float64
	Locked float64
}

// MarketMeta is static per-market precision metadata.
type MarketMeta struct {
	TickSize        float64
	AmountPrecision int
	PricePrecision  int
	MinNotional     float64
}
