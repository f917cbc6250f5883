package config

import "fmt"

// Validate checks high-impact runtime configuration constraints.
func (c Config) Validate() error {
	if c.ExchangeAPIKey == "" || c.ExchangeSecret == "" || c.ExchangePassphrase == "" {
		return fmt.Errorf("exchange credentials are required")
	}
	if c.PollingInterval <= 0 {
		return fmt.Errorf("polling_interval must be > 0, got %s", c.PollingInterval)
	}
	if c.MaxPositions <= 0 {
		return fmt.Errorf("max_positions must be > 0, got %d", c.MaxPositions)
	}
	if c.MaxSymbolsPerCycle <= 0 {
		return fmt.Errorf("max_symbols_per_cycle must be > 0, got %d", c.MaxSymbolsPerCycle)
	}
	if c.MinQuoteVolumeUSD < 0 {
		return fmt.Errorf("min_quote_volume_usd must be >= 0, got %f", c.MinQuoteVolumeUSD)
	}

	if c.Gateway.RateLimitPerSecond <= 0 {
		return fmt.Errorf("gateway.rate_limit_per_second must be > 0, got %f", c.Gateway.RateLimitPerSecond)
	}
	if c.Gateway.RequestTimeout <= 0 {
		return fmt.Errorf("gateway.request_timeout must be > 0, got %s", c.Gateway.RequestTimeout)
	}
	if c.Gateway.BreakerMaxFailures <= 0 {
		return fmt.Errorf("gateway.breaker_max_failures must be > 0, got %d", c.Gateway.BreakerMaxFailures)
	}
	if c.Gateway.BreakerRecovery <= 0 {
		return fmt.Errorf("gateway.breaker_recovery_timeout must be > 0, got %s", c.Gateway.BreakerRecovery)
	}

	if c.MarketData.SnapshotTTL <= 0 {
		return fmt.Errorf("market_data.snapshot_ttl must be > 0, got %s", c.MarketData.SnapshotTTL)
	}

	if c.MTF.MinCandles < 50 {
		return fmt.Errorf("mtf.min_candles must be >= 50 (hard floor), got %d", c.MTF.MinCandles)
	}

	if c.Risk.StopLossATRMultiple <= 0 {
		return fmt.Errorf("risk.stop_loss_atr_multiple must be > 0, got %f", c.Risk.StopLossATRMultiple)
	}
	if c.Risk.TakeProfitATRMultiple <= 0 {
		return fmt.Errorf("risk.take_profit_atr_multiple must be > 0, got %f", c.Risk.TakeProfitATRMultiple)
	}
	if c.Risk.RiskPerTrade <= 0 || c.Risk.RiskPerTrade > 1 {
		return fmt.Errorf("risk.risk_per_trade must be within (0,1], got %f", c.Risk.RiskPerTrade)
	}
	if c.Risk.KellyMaxFraction < 0 || c.Risk.KellyMaxFraction > 1 {
		return fmt.Errorf("risk.kelly_max_fraction must be within [0,1], got %f", c.Risk.KellyMaxFraction)
	}

	if c.Executor.SettleTimeout <= 0 {
		return fmt.Errorf("executor.settle_timeout must be > 0, got %s", c.Executor.SettleTimeout)
	}
	if c.Executor.SettleBackoffMin <= 0 || c.Executor.SettleBackoffMax < c.Executor.SettleBackoffMin {
		return fmt.Errorf("executor.settle_backoff_min/max misconfigured: %s/%s", c.Executor.SettleBackoffMin, c.Executor.SettleBackoffMax)
	}

	if c.Registry.SnapshotPath == "" {
		return fmt.Errorf("registry.snapshot_path must not be empty")
	}
	if c.Registry.ReconcileInterval <= 0 {
		return fmt.Errorf("registry.reconcile_interval must be > 0, got %s", c.Registry.ReconcileInterval)
	}
	if c.Registry.PartialCloseTolerance < 0 || c.Registry.PartialCloseTolerance > 1 {
		return fmt.Errorf("registry.partial_close_tolerance must be within [0,1], got %f", c.Registry.PartialCloseTolerance)
	}

	return nil
}
