// Package risk implements C6 Risk & Sizing: ATR-based stop-loss/take-profit
// and notional sizing (sizing.go), plus an exposure/emergency-stop safety
// net the scheduler consults before ever calling the sizer (manager.go).
package risk

import (
	"fmt"
	"sync"
	"time"

	"github.com/lattice-q/spotrader/internal/model"
)

// ExposureConfig bounds the account-level safety net: independent of any
// one trade's sizing, it caps total concurrent exposure and daily losses.
type ExposureConfig struct {
	MaxOpenOrders           int
	MaxDailyLossUSDC        float64
	MaxDailyLossPct         float64
	AccountCapitalUSDC      float64
	MaxPositionPerSymbol    float64
	MaxDrawdownPct          float64
	MaxConsecutiveLosses    int
	ConsecutiveLossCooldown time.Duration
}

// Snapshot is a point-in-time read of the Manager's state, for logging and
// an eventual operator surface.
type Snapshot struct {
	EmergencyStop        bool
	DailyPnL             float64
	DailyLossLimitUSDC   float64
	ConsecutiveLosses    int
	InCooldown           bool
	CooldownRemaining    time.Duration
	MaxConsecutiveLosses int
}

// Manager is the account-level exposure/emergency-stop safety net. It does
// not decide trade size (see Sizer) — it only vetoes a prospective trade
// before it is sized, or force-halts the whole pipeline.
type Manager struct {
	mu                sync.RWMutex
	cfg               ExposureConfig
	openOrders        int
	dailyPnL          float64
	positions         map[model.Symbol]float64 // symbol → USDC exposure
	emergencyStop     bool
	consecutiveLosses int
	cooldownUntil     time.Time
}

func NewManager(cfg ExposureConfig) *Manager {
	return &Manager{cfg: cfg, positions: make(map[model.Symbol]float64)}
}

// Allow vetoes a prospective trade against the emergency-stop, cooldown,
// open-order, daily-loss and per-symbol exposure limits.
func (m *Manager) Allow(symbol model.Symbol, amountUSDC float64) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.emergencyStop {
		return fmt.Errorf("emergency stop active")
	}
	if m.inCooldownLocked() {
		return fmt.Errorf("loss cooldown active: %.0fs remaining", time.Until(m.cooldownUntil).Seconds())
	}
	if m.cfg.MaxOpenOrders > 0 && m.openOrders >= m.cfg.MaxOpenOrders {
		return fmt.Errorf("max open orders reached: %d/%d", m.openOrders, m.cfg.MaxOpenOrders)
	}
	if limit := m.dailyLossLimitLocked(); limit > 0 && m.dailyPnL <= -limit {
		return fmt.Errorf("daily loss limit reached: %.2f/%.2f", m.dailyPnL, -limit)
	}
	if m.cfg.MaxPositionPerSymbol > 0 {
		pos := m.positions[symbol]
		if pos+amountUSDC > m.cfg.MaxPositionPerSymbol {
			return fmt.Errorf("position limit for %s: %.2f+%.2f > %.2f", symbol, pos, amountUSDC, m.cfg.MaxPositionPerSymbol)
		}
	}
	return nil
}

func (m *Manager) SetOpenOrders(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openOrders = n
}

func (m *Manager) RecordPnL(amount float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dailyPnL += amount
}

func (m *Manager) AddPosition(symbol model.Symbol, amountUSDC float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions[symbol] += amountUSDC
}

func (m *Manager) RemovePosition(symbol model.Symbol, amountUSDC float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions[symbol] -= amountUSDC
	if m.positions[symbol] <= 0 {
		delete(m.positions, symbol)
	}
}

func (m *Manager) SetEmergencyStop(stop bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emergencyStop = stop
}

func (m *Manager) EmergencyStop() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.emergencyStop
}

func (m *Manager) DailyPnL() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dailyPnL
}

func (m *Manager) ResetDaily() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dailyPnL = 0
	m.consecutiveLosses = 0
	m.cooldownUntil = time.Time{}
}

// EvaluateDrawdown reports whether total drawdown reaches or exceeds
// MaxDrawdownPct of capital.
func (m *Manager) EvaluateDrawdown(realizedPnL, unrealizedPnL, capital float64) bool {
	if m.cfg.MaxDrawdownPct <= 0 || capital <= 0 {
		return false
	}
	drawdownPct := -(realizedPnL + unrealizedPnL) / capital
	return drawdownPct >= m.cfg.MaxDrawdownPct
}

// RecordTradeResult updates the consecutive-loss streak and returns true
// when it just triggered a cooldown.
func (m *Manager) RecordTradeResult(realizedDelta float64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if realizedDelta < 0 {
		m.consecutiveLosses++
	} else if realizedDelta > 0 {
		m.consecutiveLosses = 0
	}

	if m.cfg.MaxConsecutiveLosses <= 0 || m.consecutiveLosses < m.cfg.MaxConsecutiveLosses {
		return false
	}
	cooldown := m.cfg.ConsecutiveLossCooldown
	if cooldown <= 0 {
		cooldown = 15 * time.Minute
	}
	m.cooldownUntil = time.Now().Add(cooldown)
	return true
}

func (m *Manager) ConsecutiveLosses() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.consecutiveLosses
}

func (m *Manager) InCooldown() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.inCooldownLocked()
}

func (m *Manager) CooldownRemaining() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.inCooldownLocked() {
		return 0
	}
	return time.Until(m.cooldownUntil)
}

func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var remaining time.Duration
	inCooldown := m.inCooldownLocked()
	if inCooldown {
		remaining = time.Until(m.cooldownUntil)
	}
	return Snapshot{
		EmergencyStop:        m.emergencyStop,
		DailyPnL:             m.dailyPnL,
		DailyLossLimitUSDC:   m.dailyLossLimitLocked(),
		ConsecutiveLosses:    m.consecutiveLosses,
		InCooldown:           inCooldown,
		CooldownRemaining:    remaining,
		MaxConsecutiveLosses: m.cfg.MaxConsecutiveLosses,
	}
}

func (m *Manager) dailyLossLimitLocked() float64 {
	limit := m.cfg.MaxDailyLossUSDC
	if m.cfg.AccountCapitalUSDC > 0 && m.cfg.MaxDailyLossPct > 0 {
		derived := m.cfg.AccountCapitalUSDC * m.cfg.MaxDailyLossPct
		if limit <= 0 || derived < limit {
			limit = derived
		}
	}
	return limit
}

func (m *Manager) inCooldownLocked() bool {
	if m.cooldownUntil.IsZero() {
		return false
	}
	return time.Now().Before(m.cooldownUntil)
}
