// Package registry implements C8, the authoritative in-memory
// symbol->Position map with atomic snapshot-file persistence and
// balance/order-backed reconciliation.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/lattice-q/spotrader/internal/config"
	"github.com/lattice-q/spotrader/internal/gateway"
	"github.com/lattice-q/spotrader/internal/model"
)

// Registry owns every open Position. All reads and writes go through it;
// no other package holds a map of positions.
type Registry struct {
	mu   sync.Mutex
	gw   gateway.Client
	cfg  config.RegistryConfig

	positions    map[model.Symbol]model.Position
	lastReconcile time.Time
}

func New(gw gateway.Client, cfg config.RegistryConfig) *Registry {
	return &Registry{gw: gw, cfg: cfg, positions: make(map[model.Symbol]model.Position)}
}

func (r *Registry) Has(symbol model.Symbol) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.positions[symbol]
	return ok
}

func (r *Registry) Get(symbol model.Symbol) (model.Position, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.positions[symbol]
	return p, ok
}

// All returns a snapshot slice of every tracked position.
func (r *Registry) All() []model.Position {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Position, 0, len(r.positions))
	for _, p := range r.positions {
		out = append(out, p)
	}
	return out
}

// Put inserts or replaces a position and persists the new snapshot. The
// mutex is released before the file write so a slow disk never blocks a
// concurrent Has/Get.
func (r *Registry) Put(pos model.Position) {
	r.mu.Lock()
	r.positions[pos.Symbol] = pos
	snapshot := r.snapshotLocked()
	r.mu.Unlock()

	if err := r.writeSnapshot(snapshot); err != nil {
		log.Printf("registry: snapshot write failed: %v", err)
	}
}

func (r *Registry) Delete(symbol model.Symbol) {
	r.mu.Lock()
	delete(r.positions, symbol)
	snapshot := r.snapshotLocked()
	r.mu.Unlock()

	if err := r.writeSnapshot(snapshot); err != nil {
		log.Printf("registry: snapshot write failed: %v", err)
	}
}

func (r *Registry) snapshotLocked() map[model.Symbol]model.Position {
	out := make(map[model.Symbol]model.Position, len(r.positions))
	for sym, p := range r.positions {
		out[sym] = p
	}
	return out
}

// writeSnapshot rewrites the snapshot file atomically: write to a temp file
// in the same directory, fsync, then rename over the target so a crash
// mid-write never leaves a truncated file in place. The file is a JSON
// object keyed by symbol (not an array) so an operator can look up one
// position without parsing the whole file.
func (r *Registry) writeSnapshot(positions map[model.Symbol]model.Position) error {
	if r.cfg.SnapshotPath == "" {
		return nil
	}
	data, err := json.MarshalIndent(positions, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	dir := filepath.Dir(r.cfg.SnapshotPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir snapshot dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".bot_positions-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp snapshot: %w", err)
	}
	if err := os.Rename(tmpPath, r.cfg.SnapshotPath); err != nil {
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}

func loadSnapshot(path string) (map[model.Symbol]model.Position, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var positions map[model.Symbol]model.Position
	if err := json.Unmarshal(data, &positions); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return positions, nil
}

// Bootstrap runs the startup sequence: load the snapshot file (filtered by
// has_support), then adopt untracked balances, then adopt untracked open
// orders, then run Reconcile, which also writes the snapshot. Snapshot
// entries are loaded first, so their stored fields win over a position
// derived from the same symbol's balance. Positions discovered from
// balance/orders but absent from the snapshot are seeded unmanaged, queued
// for manual protection.
func (r *Registry) Bootstrap(ctx context.Context) error {
	balances, err := r.gw.FetchBalance(ctx)
	if err != nil {
		return fmt.Errorf("bootstrap: fetch balance: %w", err)
	}
	openOrders, err := r.gw.FetchOpenOrders(ctx)
	if err != nil {
		return fmt.Errorf("bootstrap: fetch open orders: %w", err)
	}
	algoOrders, err := r.gw.FetchAlgoOrders(ctx, "oco")
	if err != nil {
		return fmt.Errorf("bootstrap: fetch algo orders: %w", err)
	}

	snapshot, err := loadSnapshot(r.cfg.SnapshotPath)
	if err != nil {
		log.Printf("registry: snapshot load failed, starting from exchange state only: %v", err)
	}

	r.mu.Lock()

	for sym, pos := range snapshot {
		if r.hasSupportLocked(sym, balances, openOrders, algoOrders) {
			r.positions[sym] = pos
		} else {
			log.Printf("registry: dropping stale snapshot entry %s: no supporting balance or order", sym)
		}
	}

	for asset, bal := range balances {
		if bal.Free <= r.cfg.DustThreshold {
			continue
		}
		sym := model.Symbol(asset + "/USDT")
		if _, tracked := r.positions[sym]; tracked {
			continue
		}
		if !r.hasSupportLocked(sym, balances, openOrders, algoOrders) {
			continue
		}
		r.positions[sym] = model.Position{
			Symbol:            sym,
			Side:              model.PositionSideLong,
			Amount:            bal.Free,
			ManagedByExchange: false,
			EntryTime:         time.Now(),
		}
		log.Printf("registry: adopted untracked balance for %s, queued for manual protection", sym)
	}

	// A symbol can have an open order (partial fill, or a buy still
	// resting) with no settled balance yet and no snapshot entry. Adopt it
	// from the order itself so it isn't lost until the next balance poll.
	for _, o := range openOrders {
		sym := o.Symbol
		if _, tracked := r.positions[sym]; tracked {
			continue
		}
		amount := o.Filled
		if amount <= 0 {
			amount = o.Size
		}
		if amount <= 0 {
			continue
		}
		r.positions[sym] = model.Position{
			Symbol:            sym,
			Side:              model.PositionSideLong,
			Amount:            amount,
			ManagedByExchange: false,
			EntryTime:         time.Now(),
		}
		log.Printf("registry: adopted untracked open order for %s, queued for manual protection", sym)
	}
	r.mu.Unlock()

	return r.Reconcile(ctx)
}

// hasSupportLocked implements has_support = balance ∨ open_order ∨
// algo_order, with a 1% tolerance for partial closes. Caller must hold
// r.mu, or call before mu is taken (Bootstrap does both safely since no
// other goroutine can run yet).
func (r *Registry) hasSupportLocked(symbol model.Symbol, balances map[string]model.Balance, orders []model.Order, algos []model.AlgoOrder) bool {
	tolerance := r.cfg.PartialCloseTolerance
	if tolerance <= 0 {
		tolerance = 0.01
	}

	if bal, ok := balances[symbol.Base()]; ok {
		// Free+Locked rather than Free alone: an OCO protection order locks
		// the base asset on the exchange, so Free drops to ~0 the moment a
		// managed position is protected even though nothing closed.
		want := r.positions[symbol].Amount
		if want == 0 || bal.Free+bal.Locked >= want*(1-tolerance) {
			return true
		}
	}
	for _, o := range orders {
		if o.Symbol == symbol {
			return true
		}
	}
	for _, a := range algos {
		if a.Symbol == symbol {
			return true
		}
	}
	return false
}

// ShouldReconcile reports whether reconcile_interval has elapsed since the
// last reconciliation, throttling the expensive exchange round-trip.
func (r *Registry) ShouldReconcile() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	interval := r.cfg.ReconcileInterval
	if interval <= 0 {
		interval = 60 * time.Second
	}
	return time.Since(r.lastReconcile) >= interval
}

// Reconcile re-derives has_support for every tracked position and drops
// ones the exchange no longer backs. It is a no-op if called before the
// throttle interval elapses, callers should gate on ShouldReconcile first.
func (r *Registry) Reconcile(ctx context.Context) error {
	if !r.ShouldReconcile() {
		return nil
	}
	balances, err := r.gw.FetchBalance(ctx)
	if err != nil {
		return fmt.Errorf("reconcile: fetch balance: %w", err)
	}
	openOrders, err := r.gw.FetchOpenOrders(ctx)
	if err != nil {
		return fmt.Errorf("reconcile: fetch open orders: %w", err)
	}
	algoOrders, err := r.gw.FetchAlgoOrders(ctx, "oco")
	if err != nil {
		return fmt.Errorf("reconcile: fetch algo orders: %w", err)
	}

	r.mu.Lock()
	var dropped []model.Symbol
	for sym := range r.positions {
		if !r.hasSupportLocked(sym, balances, openOrders, algoOrders) {
			dropped = append(dropped, sym)
		}
	}
	for _, sym := range dropped {
		delete(r.positions, sym)
	}
	r.lastReconcile = time.Now()
	snapshot := r.snapshotLocked()
	r.mu.Unlock()

	for _, sym := range dropped {
		log.Printf("registry: reconcile dropped %s, no supporting balance or order", sym)
	}
	if err := r.writeSnapshot(snapshot); err != nil {
		log.Printf("registry: snapshot write failed: %v", err)
	}
	return nil
}

// CheckInvariants validates registry↔snapshot agreement and positive
// amounts. Returns the first violation found, if any.
func (r *Registry) CheckInvariants() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	onDisk, err := loadSnapshot(r.cfg.SnapshotPath)
	if err != nil {
		return fmt.Errorf("invariant check: load snapshot: %w", err)
	}

	for sym, pos := range r.positions {
		if pos.Amount <= 0 {
			return fmt.Errorf("invariant violated: %s has non-positive amount %f", sym, pos.Amount)
		}
		if pos.ProtectionAlgoID == "" && pos.ManagedByExchange {
			return fmt.Errorf("invariant violated: %s is managed_by_exchange but has no protection_algo_id", sym)
		}
		disk, ok := onDisk[sym]
		if !ok {
			return fmt.Errorf("invariant violated: %s tracked in memory but absent from snapshot", sym)
		}
		if math.Abs(disk.Amount-pos.Amount) > 1e-9 {
			return fmt.Errorf("invariant violated: %s amount mismatch memory=%f disk=%f", sym, pos.Amount, disk.Amount)
		}
	}
	if len(onDisk) != len(r.positions) {
		return fmt.Errorf("invariant violated: snapshot has %d entries, registry has %d", len(onDisk), len(r.positions))
	}
	return nil
}
