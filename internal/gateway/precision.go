package gateway

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/lattice-q/spotrader/internal/model"
)

// marketMetaCache is a read-through, process-lifetime cache of static
// per-market precision metadata. Markets rarely change tick size, so no
// TTL is applied; GetMarket refreshes an entry only on an explicit miss.
type marketMetaCache struct {
	mu   sync.RWMutex
	data map[model.Symbol]model.MarketMeta
}

func newMarketMetaCache() *marketMetaCache {
	return &marketMetaCache{data: make(map[model.Symbol]model.MarketMeta)}
}

func (c *marketMetaCache) get(symbol model.Symbol) (model.MarketMeta, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.data[symbol]
	return m, ok
}

func (c *marketMetaCache) set(symbol model.Symbol, m model.MarketMeta) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[symbol] = m
}

// amountToPrecision rounds amount down to the market's amount precision.
// Rounding down (never up) avoids ever submitting a size the exchange
// would reject as over-precise or over-balance.
func amountToPrecision(meta model.MarketMeta, amount float64) float64 {
	d := decimal.NewFromFloat(amount)
	rounded := d.Truncate(int32(meta.AmountPrecision))
	v, _ := rounded.Float64()
	return v
}

// priceToPrecision rounds price to the nearest tick using the market's
// price precision and tick size.
func priceToPrecision(meta model.MarketMeta, price float64) float64 {
	if meta.TickSize <= 0 {
		d := decimal.NewFromFloat(price)
		v, _ := d.Round(int32(meta.PricePrecision)).Float64()
		return v
	}
	tick := decimal.NewFromFloat(meta.TickSize)
	d := decimal.NewFromFloat(price)
	ticks := d.Div(tick).Round(0)
	v, _ := ticks.Mul(tick).Float64()
	return v
}

func (g *RESTClient) AmountToPrecision(symbol model.Symbol, amount float64) (float64, error) {
	meta, ok := g.meta.get(symbol)
	if !ok {
		return 0, fmt.Errorf("amount_to_precision: no market metadata cached for %s", symbol)
	}
	return amountToPrecision(meta, amount), nil
}

func (g *RESTClient) PriceToPrecision(symbol model.Symbol, price float64) (float64, error) {
	meta, ok := g.meta.get(symbol)
	if !ok {
		return 0, fmt.Errorf("price_to_precision: no market metadata cached for %s", symbol)
	}
	return priceToPrecision(meta, price), nil
}
