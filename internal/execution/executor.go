// Package execution implements C7, the per-symbol order execution state
// machine: IDLE -> SIZING -> SUBMITTING -> SETTLING -> PROTECTING -> COMMIT
// -> DONE for a BUY, and a symmetric (simpler) path for a SELL.
package execution

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/lattice-q/spotrader/internal/config"
	"github.com/lattice-q/spotrader/internal/gateway"
	"github.com/lattice-q/spotrader/internal/model"
	"github.com/lattice-q/spotrader/internal/risk"
)

// State names the executor's state machine states, logged at every
// transition so a stuck execution is diagnosable from logs alone.
type State string

const (
	StateIdle        State = "IDLE"
	StateSizing      State = "SIZING"
	StateSubmitting  State = "SUBMITTING"
	StateSettling    State = "SETTLING"
	StateProtecting  State = "PROTECTING"
	StateCommit      State = "COMMIT"
	StateDone        State = "DONE"
	StateAborted     State = "ABORTED"
)

// PositionStore is the minimal view the executor needs of C8's registry —
// just enough to run the pre-SUBMITTING duplicate check and to commit or
// delete the resulting Position.
type PositionStore interface {
	Has(symbol model.Symbol) bool
	Put(pos model.Position)
	Delete(symbol model.Symbol)
}

// Executor runs one BUY or SELL to completion for a single symbol. It holds
// no cross-symbol state; the scheduler constructs or reuses one per cycle.
type Executor struct {
	gw       gateway.Client
	sizer    *risk.Sizer
	store    PositionStore
	cfg      config.ExecutorConfig
}

func New(gw gateway.Client, sizer *risk.Sizer, store PositionStore, cfg config.ExecutorConfig) *Executor {
	return &Executor{gw: gw, sizer: sizer, store: store, cfg: cfg}
}

// Result is the outcome of a completed (or aborted) execution.
type Result struct {
	State    State
	Position model.Position
	Err      error
}

// Buy runs the full acquisition state machine for symbol at the given ATR15
// and entry estimate. atr15 and entryEstimate must come from data already
// fetched this cycle; Buy does not refetch market data itself.
func (e *Executor) Buy(ctx context.Context, symbol model.Symbol, entryEstimate, atr15 float64, stats *risk.WinLossStats) Result {
	state := StateIdle

	if e.store.Has(symbol) {
		log.Printf("execution[%s]: DUPLICATE_BUY_PREVENTED", symbol)
		return Result{State: StateAborted, Err: fmt.Errorf("DUPLICATE_BUY_PREVENTED: %s", symbol)}
	}

	state = StateSizing
	plan, ok := e.sizer.Size(entryEstimate, atr15, stats)
	if !ok {
		return Result{State: state, Err: fmt.Errorf("sizing unavailable for %s: missing entry price or ATR", symbol)}
	}

	state = StateSubmitting
	amount, err := e.gw.AmountToPrecision(symbol, plan.NotionalUSDC/entryEstimate)
	if err != nil {
		return Result{State: state, Err: fmt.Errorf("amount precision: %w", err)}
	}
	order, err := e.gw.CreateOrder(ctx, symbol, model.OrderSideBuy, model.OrderTypeMarket, amount, 0)
	if err != nil {
		return Result{State: state, Err: fmt.Errorf("create order: %w", err)}
	}
	log.Printf("execution[%s]: submitted buy order=%s amount=%.8f", symbol, order.ID, amount)

	state = StateSettling
	settled, err := e.awaitSettlement(ctx, symbol, amount)
	unconfirmed := false
	if err != nil {
		// Settlement never confirmed within the poll window: commit the
		// position unmanaged against the expected fill (the exchange's own
		// reported Filled, falling back to the ordered amount) rather than
		// abandoning a buy the exchange may well have executed. The next
		// cycle's manual-protection check retries SL/TP enforcement.
		log.Printf("execution[%s]: settlement wait timed out, committing unmanaged: %v", symbol, err)
		settled = order.Filled
		if settled <= 0 {
			settled = amount
		}
		unconfirmed = true
	}
	if settled <= 0 {
		return Result{State: state, Err: fmt.Errorf("no settled balance for %s after order %s", symbol, order.ID)}
	}

	pos := model.Position{
		Symbol:     symbol,
		Side:       model.PositionSideLong,
		Amount:     settled,
		EntryPrice: entryEstimate,
		StopLoss:   plan.StopLoss,
		TakeProfit: plan.TakeProfit,
		OrderID:    order.ID,
		EntryTime:  time.Now(),
	}

	state = StateProtecting
	if unconfirmed {
		// No OCO against an unconfirmed balance: the exchange may reject it
		// for insufficient funds. Leave unmanaged; protection is retried
		// once settlement is confirmed on a later cycle.
		pos.ManagedByExchange = false
	} else if algo, err := e.gw.CreateAlgoOrder(ctx, symbol, settled, plan.TakeProfit, plan.StopLoss); err != nil {
		// PROTECTING-failure fallback: commit the position unmanaged so the
		// scheduler enforces SL/TP manually and retries protection next
		// cycle, rather than losing track of the fill.
		log.Printf("execution[%s]: protection order failed, falling back to manual enforcement: %v", symbol, err)
		pos.ManagedByExchange = false
	} else {
		pos.ProtectionAlgoID = algo.ID
		pos.ManagedByExchange = true
	}

	state = StateCommit
	e.store.Put(pos)

	state = StateDone
	return Result{State: state, Position: pos}
}

// Sell cancels any protective OCO (best-effort) then market-sells the full
// position and removes it from the registry on success.
func (e *Executor) Sell(ctx context.Context, pos model.Position) Result {
	if pos.ProtectionAlgoID != "" {
		if err := e.gw.CancelAlgoOrder(ctx, pos.ProtectionAlgoID); err != nil {
			log.Printf("execution[%s]: best-effort OCO cancel failed: %v", pos.Symbol, err)
		}
	}

	amount, err := e.gw.AmountToPrecision(pos.Symbol, pos.Amount)
	if err != nil {
		return Result{State: StateSubmitting, Err: fmt.Errorf("amount precision: %w", err)}
	}
	if _, err := e.gw.CreateOrder(ctx, pos.Symbol, model.OrderSideSell, model.OrderTypeMarket, amount, 0); err != nil {
		return Result{State: StateSubmitting, Err: fmt.Errorf("create sell order: %w", err)}
	}

	e.store.Delete(pos.Symbol)
	return Result{State: StateDone, Position: pos}
}

// awaitSettlement polls FetchBalance with exponential backoff until the
// expected amount (or a partial fill of it) shows up, or settle_timeout
// elapses. Returns the confirmed balance, which may be less than amount on
// a partial fill.
func (e *Executor) awaitSettlement(ctx context.Context, symbol model.Symbol, amount float64) (float64, error) {
	timeout := e.cfg.SettleTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	backoff := e.cfg.SettleBackoffMin
	if backoff <= 0 {
		backoff = 200 * time.Millisecond
	}
	maxBackoff := e.cfg.SettleBackoffMax
	if maxBackoff <= 0 {
		maxBackoff = time.Second
	}

	deadline := time.Now().Add(timeout)
	base := symbol.Base()

	for {
		balances, err := e.gw.FetchBalance(ctx)
		if err == nil {
			if bal, ok := balances[base]; ok && bal.Free > 0 {
				confirmed := bal.Free
				if confirmed > amount {
					confirmed = amount
				}
				return confirmed, nil
			}
		}
		if time.Now().After(deadline) {
			return 0, fmt.Errorf("settlement timeout after %s", timeout)
		}

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}
