package paper

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/lattice-q/spotrader/internal/gateway"
	"github.com/lattice-q/spotrader/internal/model"
)

// DryRunGateway decorates a real gateway.Client: every read call (tickers,
// candles, order books, market metadata, symbol discovery) passes straight
// through to the live exchange, while CreateOrder is filled by the
// Simulator, algo-order creation and cancellation are no-ops, and
// FetchBalance reports the Simulator's balances. This is the
// spot-trading generalization of the teacher's per-call `if !cfg.DryRun`
// branch: here the branch lives at the gateway boundary so every other
// component stays unaware it is running against funny money.
type DryRunGateway struct {
	gateway.Client
	sim     *Simulator
	algoSeq atomic.Int64
}

func NewDryRunGateway(live gateway.Client, sim *Simulator) *DryRunGateway {
	return &DryRunGateway{Client: live, sim: sim}
}

func (g *DryRunGateway) CreateOrder(ctx context.Context, symbol model.Symbol, side model.OrderSide, typ model.OrderType, size, price float64) (model.Order, error) {
	snap, err := g.Client.FetchTicker(ctx, symbol)
	if err != nil {
		return model.Order{}, fmt.Errorf("dry-run: fetch ticker for fill price: %w", err)
	}
	notional := size * snap.Mid()
	if price > 0 {
		notional = size * price
	}
	fill, err := g.sim.ExecuteMarket(symbol, strings.ToUpper(string(side)), notional, snap)
	if err != nil {
		return model.Order{}, err
	}
	return model.Order{
		ID: fill.OrderID, Symbol: symbol, Side: side, Type: typ,
		Size: fill.Size, Price: fill.Price, Status: fill.Status, Filled: fill.Size,
	}, nil
}

// CreateAlgoOrder is a paper no-op that returns an accepted order carrying
// a synthetic ID and the trigger levels. The executor therefore marks the
// position as exchange-managed, and the scheduler's manual-protection check
// skips managed positions, so no stop/take level is enforced in dry-run.
func (g *DryRunGateway) CreateAlgoOrder(ctx context.Context, symbol model.Symbol, size, tpTrigger, slTrigger float64) (model.AlgoOrder, error) {
	id := fmt.Sprintf("paper-algo-%d", g.algoSeq.Add(1))
	return model.AlgoOrder{ID: id, Symbol: symbol, Side: model.OrderSideSell, Size: size, TPTrigger: tpTrigger, SLTrigger: slTrigger, StatusCode: "0"}, nil
}

func (g *DryRunGateway) CancelAlgoOrder(ctx context.Context, algoID string) error { return nil }

// FetchBalance reports the simulator's own USDC balance rather than the
// live exchange's, so settlement polling and risk exposure checks see
// paper money consistently.
func (g *DryRunGateway) FetchBalance(ctx context.Context) (map[string]model.Balance, error) {
	snap := g.sim.Snapshot()
	balances := map[string]model.Balance{
		"USDC": {Free: snap.BalanceUSDC},
	}
	for sym, size := range snap.InventoryByAsset {
		base, _, ok := splitSymbol(sym)
		if !ok {
			continue
		}
		balances[base] = model.Balance{Free: size}
	}
	return balances, nil
}

func splitSymbol(s string) (base, quote string, ok bool) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}
