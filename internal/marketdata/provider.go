// Package marketdata derives per-symbol liquidity and volatility scores
// from the exchange gateway, behind a short-lived TTL cache so a ranking
// pass over many symbols in one cycle doesn't re-fetch the same book twice.
package marketdata

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/lattice-q/spotrader/internal/config"
	"github.com/lattice-q/spotrader/internal/gateway"
	"github.com/lattice-q/spotrader/internal/model"
	"github.com/lattice-q/spotrader/internal/xerr"
)

const (
	volumeSaturation = 1e8
	depthSaturation  = 5e5
	spreadCapBps     = 50
)

// Derived holds the values C3 and C6 consume beyond the raw snapshot.
type Derived struct {
	Snapshot   model.MarketSnapshot
	Liquidity  float64 // [0,1]
	Volatility float64 // [0,1]
}

type cacheEntry struct {
	value     Derived
	expiresAt time.Time
}

// Provider caches Derived snapshots per symbol with a TTL. An expired entry
// is ignored on read and overwritten by the next fetch; entries are never
// deleted.
type Provider struct {
	mu    sync.RWMutex
	cache map[model.Symbol]cacheEntry
	gw    gateway.Client
	cfg   config.MarketDataConfig
}

func New(gw gateway.Client, cfg config.MarketDataConfig) *Provider {
	return &Provider{
		cache: make(map[model.Symbol]cacheEntry),
		gw:    gw,
		cfg:   cfg,
	}
}

// Get returns a fresh-or-cached Derived snapshot for symbol. A data-quality
// error from the gateway (malformed book, missing ticker) propagates
// unchanged — callers skip the symbol, they never substitute a minimum score.
func (p *Provider) Get(ctx context.Context, symbol model.Symbol) (Derived, error) {
	if d, ok := p.fromCache(symbol); ok {
		return d, nil
	}

	snap, err := p.gw.FetchTicker(ctx, symbol)
	if err != nil {
		return Derived{}, err
	}
	bids, asks, err := p.gw.FetchOrderBook(ctx, symbol, p.cfg.DepthLevels)
	if err != nil {
		return Derived{}, err
	}
	snap.Bids, snap.Asks = bids, asks

	liq, err := liquidityScore(snap)
	if err != nil {
		return Derived{}, err
	}
	vol := volatilityScore(snap)

	d := Derived{Snapshot: snap, Liquidity: liq, Volatility: vol}
	p.mu.Lock()
	p.cache[symbol] = cacheEntry{value: d, expiresAt: time.Now().Add(p.cfg.SnapshotTTL)}
	p.mu.Unlock()
	return d, nil
}

func (p *Provider) fromCache(symbol model.Symbol) (Derived, bool) {
	p.mu.RLock()
	entry, ok := p.cache[symbol]
	p.mu.RUnlock()
	if !ok || time.Now().After(entry.expiresAt) {
		return Derived{}, false
	}
	return entry.value, true
}

func depthUSD(levels []model.PriceLevel) float64 {
	var total float64
	for _, l := range levels {
		total += l.Price * l.Size
	}
	return total
}

// liquidityScore implements §4.2's formula exactly; it returns an error
// (never a fabricated minimum) when the book or mid price is invalid.
func liquidityScore(snap model.MarketSnapshot) (float64, error) {
	if len(snap.Bids) == 0 || len(snap.Asks) == 0 {
		return 0, xerr.DataQualityf("liquidityScore", "empty order book for %s", snap.Symbol)
	}
	mid := snap.Mid()
	if mid <= 0 || snap.BestBid <= 0 || snap.BestAsk < snap.BestBid {
		return 0, xerr.DataQualityf("liquidityScore", "invalid mid/book for %s", snap.Symbol)
	}

	bidDepth := depthUSD(snap.Bids)
	askDepth := depthUSD(snap.Asks)
	spreadBps := (snap.BestAsk - snap.BestBid) / mid * 10_000

	volScore := math.Min(1, math.Log10(math.Max(1, snap.Volume24h*snap.Last))/math.Log10(volumeSaturation))
	depthScore := math.Min(1, (bidDepth+askDepth)/depthSaturation)
	spreadScore := math.Max(0, 1-spreadBps/spreadCapBps)

	return 0.45*depthScore + 0.30*volScore + 0.25*spreadScore, nil
}

// volatilityScore maps 24h range to a score peaking in the [0.02, 0.08] band.
func volatilityScore(snap model.MarketSnapshot) float64 {
	if snap.Last <= 0 {
		return 0
	}
	rangePct := (snap.High24h - snap.Low24h) / snap.Last
	switch {
	case rangePct < 0.02:
		return rangePct / 0.02 * 0.7
	case rangePct <= 0.08:
		return 0.7 + (rangePct-0.02)/0.06*0.3
	default:
		decay := math.Max(0, 1-(rangePct-0.08)/0.20)
		return 1.0 * decay
	}
}
