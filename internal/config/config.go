package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level process configuration. Every sub-config maps to
// one pipeline component; Default() returns every spec-mandated default and
// ApplyEnv() overrides from the environment.
type Config struct {
	ExchangeAPIKey     string `yaml:"exchange_api_key"`
	ExchangeSecret     string `yaml:"exchange_secret"`
	ExchangePassphrase string `yaml:"exchange_passphrase"`
	ExchangeSandbox    bool   `yaml:"exchange_sandbox"`

	TelegramBotToken string `yaml:"telegram_bot_token"`
	TelegramChatID   string `yaml:"telegram_chat_id"`

	PollingInterval    time.Duration `yaml:"polling_interval"`
	MaxPositions       int           `yaml:"max_positions"`
	MaxSymbolsPerCycle int           `yaml:"max_symbols_per_cycle"`
	MinQuoteVolumeUSD  float64       `yaml:"min_quote_volume_usd"`
	LogLevel           string        `yaml:"log_level"`

	Gateway    GatewayConfig    `yaml:"gateway"`
	MarketData MarketDataConfig `yaml:"market_data"`
	Ranking    RankingConfig    `yaml:"ranking"`
	MTF        MTFConfig        `yaml:"mtf"`
	Decision   DecisionConfig   `yaml:"decision"`
	Risk       RiskConfig       `yaml:"risk"`
	Executor   ExecutorConfig   `yaml:"executor"`
	Registry   RegistryConfig   `yaml:"registry"`
}

type GatewayConfig struct {
	RateLimitPerSecond float64       `yaml:"rate_limit_per_second"`
	RequestTimeout     time.Duration `yaml:"request_timeout"`
	BreakerMaxFailures int           `yaml:"breaker_max_failures"`
	BreakerWindow      time.Duration `yaml:"breaker_window"`
	BreakerRecovery    time.Duration `yaml:"breaker_recovery_timeout"`
	BaseURL            string        `yaml:"base_url"`
}

type MarketDataConfig struct {
	SnapshotTTL time.Duration `yaml:"snapshot_ttl"`
	DepthLevels int           `yaml:"depth_levels"`
}

type RankingConfig struct {
	BellwetherSymbols []string `yaml:"bellwether_symbols"`
}

type MTFConfig struct {
	MinCandles int `yaml:"min_candles"`
}

type DecisionConfig struct {
	BaseThreshold float64 `yaml:"base_threshold"`
}

type RiskConfig struct {
	StopLossATRMultiple   float64       `yaml:"stop_loss_atr_multiple"`
	TakeProfitATRMultiple float64       `yaml:"take_profit_atr_multiple"`
	RiskPerTrade          float64       `yaml:"risk_per_trade"`
	MaxMarketOrderNotional float64      `yaml:"max_market_order_notional"`
	KellyEnabled          bool          `yaml:"kelly_enabled"`
	KellyMaxFraction      float64       `yaml:"kelly_max_fraction"`
	EquityUSDC            float64       `yaml:"equity_usdc"`
}

type ExecutorConfig struct {
	SettleTimeout   time.Duration `yaml:"settle_timeout"`
	SettleBackoffMin time.Duration `yaml:"settle_backoff_min"`
	SettleBackoffMax time.Duration `yaml:"settle_backoff_max"`
}

type RegistryConfig struct {
	SnapshotPath       string        `yaml:"snapshot_path"`
	RestrictedPath     string        `yaml:"restricted_path"`
	ReconcileInterval  time.Duration `yaml:"reconcile_interval"`
	DustThreshold      float64       `yaml:"dust_threshold"`
	MinPositionValue   float64       `yaml:"min_position_value"`
	PartialCloseTolerance float64    `yaml:"partial_close_tolerance"`
}

// Default returns every spec-mandated default value.
func Default() Config {
	return Config{
		PollingInterval:    60 * time.Second,
		MaxPositions:       10,
		MaxSymbolsPerCycle: 15,
		MinQuoteVolumeUSD:  40_000_000,
		LogLevel:           "info",

		Gateway: GatewayConfig{
			RateLimitPerSecond: 15,
			RequestTimeout:     10 * time.Second,
			BreakerMaxFailures: 3,
			BreakerWindow:      30 * time.Second,
			BreakerRecovery:    30 * time.Second,
		},
		MarketData: MarketDataConfig{
			SnapshotTTL: 30 * time.Second,
			DepthLevels: 10,
		},
		Ranking: RankingConfig{
			BellwetherSymbols: []string{"BTC/USDT", "ETH/USDT", "SOL/USDT"},
		},
		MTF: MTFConfig{
			MinCandles: 200,
		},
		Decision: DecisionConfig{
			BaseThreshold: 0.30,
		},
		Risk: RiskConfig{
			StopLossATRMultiple:    1.5,
			TakeProfitATRMultiple:  3.0,
			RiskPerTrade:           0.01,
			MaxMarketOrderNotional: 5000,
			KellyEnabled:           false,
			KellyMaxFraction:       0.25,
			EquityUSDC:             10_000,
		},
		Executor: ExecutorConfig{
			SettleTimeout:    5 * time.Second,
			SettleBackoffMin: 200 * time.Millisecond,
			SettleBackoffMax: 1 * time.Second,
		},
		Registry: RegistryConfig{
			SnapshotPath:          "data/bot_positions.json",
			RestrictedPath:        "data/restricted_symbols.json",
			ReconcileInterval:     60 * time.Second,
			DustThreshold:         1e-8,
			MinPositionValue:      0.01,
			PartialCloseTolerance: 0.01,
		},
	}
}

// LoadFile loads YAML config over the defaults. A missing or unreadable
// file returns the defaults together with the read error; the caller
// decides whether to fall back to them.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ApplyEnv overrides credentials and the tunables named in the external
// interfaces table from environment variables.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("EXCHANGE_API_KEY"); v != "" {
		c.ExchangeAPIKey = v
	}
	if v := os.Getenv("EXCHANGE_SECRET"); v != "" {
		c.ExchangeSecret = v
	}
	if v := os.Getenv("EXCHANGE_PASSPHRASE"); v != "" {
		c.ExchangePassphrase = v
	}
	if v := os.Getenv("EXCHANGE_SANDBOX"); v != "" {
		c.ExchangeSandbox = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.TelegramBotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		c.TelegramChatID = v
	}
	if v := os.Getenv("POLLING_INTERVAL_S"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.PollingInterval = time.Duration(n) * time.Second
		}
	}
	if v := os.Getenv("MAX_POSITIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxPositions = n
		}
	}
	if v := os.Getenv("MAX_SYMBOLS_PER_CYCLE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxSymbolsPerCycle = n
		}
	}
	if v := os.Getenv("RATE_LIMIT_PER_S"); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			c.Gateway.RateLimitPerSecond = n
		}
	}
	if v := os.Getenv("MIN_QUOTE_VOLUME_USD"); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			c.MinQuoteVolumeUSD = n
		}
	}
}
