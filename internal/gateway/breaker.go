package gateway

import (
	"github.com/sony/gobreaker"

	"github.com/lattice-q/spotrader/internal/config"
)

// newBreaker builds a gobreaker.CircuitBreaker matching the spec's state
// machine: closed → open after maxFailures consecutive failures within
// window → half-open after recovery → closed on the next success, or back
// to open on failure.
func newBreaker(name string, cfg config.GatewayConfig) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		Interval:    cfg.BreakerWindow,
		Timeout:     cfg.BreakerRecovery,
		MaxRequests: 1,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(cfg.BreakerMaxFailures)
		},
	})
}

// breakers groups the per-endpoint-class circuit breakers. Market-data
// endpoints (ticker/order book/candles) get a dedicated breaker per the
// spec's "at least one dedicated breaker protects the market-data
// endpoints" requirement; trading endpoints share a second breaker so a
// market-data outage does not block order placement and vice versa.
type breakers struct {
	marketData *gobreaker.CircuitBreaker
	trading    *gobreaker.CircuitBreaker
	account    *gobreaker.CircuitBreaker
}

func newBreakers(cfg config.GatewayConfig) breakers {
	return breakers{
		marketData: newBreaker("market-data", cfg),
		trading:    newBreaker("trading", cfg),
		account:    newBreaker("account", cfg),
	}
}
