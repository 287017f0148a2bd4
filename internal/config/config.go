// Package config loads runtime parameters from the environment, with
// development defaults. Fractional rates are supplied in basis points and
// validated to [0, 1) when the pool is constructed.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Config is the single source of truth for runtime settings.
type Config struct {
	Port string

	// Pool parameters.
	SymbolA      string // volatile asset, e.g. LBTC
	SymbolB      string // unit of account, e.g. LUSDt
	SwapFeeBps   int64
	FlashFeeBps  int64
	MaxLoanRatio decimal.Decimal
	SeedReserveA decimal.Decimal
	SeedReserveB decimal.Decimal
	OraclePrice  decimal.Decimal

	// Leverage parameters. Safety band per the YieldBasis covenant.
	TargetRatio  decimal.Decimal
	MinDebtRatio decimal.Decimal
	MaxDebtRatio decimal.Decimal

	// Rebalancing worker.
	RebalanceTolerance decimal.Decimal
	PollInterval       time.Duration
	PriceToleranceBps  int64

	// Treasury capital backing flash loans.
	TreasuryCapitalB decimal.Decimal

	// Collaborator endpoints.
	DatabaseURL        string
	RedisURL           string
	RateLimitPerMinute int
}

// Load reads configuration from the environment. Unset variables fall back
// to the reference defaults: 30 bps swap fee, 5 bps flash fee, 30% max
// loan ratio, 0.5 target ratio, 0.05 tolerance.
func Load() (Config, error) {
	cfg := Config{
		Port:               envStr("PORT", "8080"),
		SymbolA:            envStr("POOL_ASSET_A", "LBTC"),
		SymbolB:            envStr("POOL_ASSET_B", "LUSDt"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		RedisURL:           os.Getenv("REDIS_URL"),
		RateLimitPerMinute: int(envInt("RATE_LIMIT_PER_MINUTE", 10)),
	}

	var err error
	if cfg.SwapFeeBps, err = envIntErr("POOL_FEE_BPS", 30); err != nil {
		return Config{}, err
	}
	if cfg.FlashFeeBps, err = envIntErr("FLASHLOAN_FEE_BPS", 5); err != nil {
		return Config{}, err
	}
	if cfg.PriceToleranceBps, err = envIntErr("PRICE_TOLERANCE_BPS", 10); err != nil {
		return Config{}, err
	}
	if cfg.MaxLoanRatio, err = envDecimal("MAX_FLASHLOAN_RATIO", "0.3"); err != nil {
		return Config{}, err
	}
	if cfg.SeedReserveA, err = envDecimal("INITIAL_RESERVE_A", "1"); err != nil {
		return Config{}, err
	}
	if cfg.SeedReserveB, err = envDecimal("INITIAL_RESERVE_B", "30000"); err != nil {
		return Config{}, err
	}
	if cfg.OraclePrice, err = envDecimal("ORACLE_PRICE", "30000"); err != nil {
		return Config{}, err
	}
	if cfg.TargetRatio, err = envDecimal("TARGET_RATIO", "0.5"); err != nil {
		return Config{}, err
	}
	if cfg.MinDebtRatio, err = envDecimal("MIN_DEBT_RATIO", "0.0625"); err != nil {
		return Config{}, err
	}
	if cfg.MaxDebtRatio, err = envDecimal("MAX_DEBT_RATIO", "0.53125"); err != nil {
		return Config{}, err
	}
	if cfg.RebalanceTolerance, err = envDecimal("REBALANCE_THRESHOLD", "0.05"); err != nil {
		return Config{}, err
	}
	if cfg.TreasuryCapitalB, err = envDecimal("TREASURY_CAPITAL_B", "100000"); err != nil {
		return Config{}, err
	}

	poll := envInt("REBALANCE_POLL_INTERVAL", 30)
	cfg.PollInterval = time.Duration(poll) * time.Second

	return cfg, nil
}

// SwapFeeRate converts the swap fee from basis points to a fraction.
func (c Config) SwapFeeRate() decimal.Decimal {
	return decimal.NewFromInt(c.SwapFeeBps).Div(decimal.NewFromInt(10_000))
}

// FlashFeeRate converts the flash-loan fee from basis points to a fraction.
func (c Config) FlashFeeRate() decimal.Decimal {
	return decimal.NewFromInt(c.FlashFeeBps).Div(decimal.NewFromInt(10_000))
}

// PriceTolerance converts the solver tolerance from basis points to a
// fraction.
func (c Config) PriceTolerance() decimal.Decimal {
	return decimal.NewFromInt(c.PriceToleranceBps).Div(decimal.NewFromInt(10_000))
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int64) int64 {
	v, err := envIntErr(key, fallback)
	if err != nil {
		return fallback
	}
	return v
}

func envIntErr(key string, fallback int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("config: %s=%q is not an integer: %w", key, v, err)
	}
	return n, nil
}

func envDecimal(key, fallback string) (decimal.Decimal, error) {
	v := os.Getenv(key)
	if v == "" {
		v = fallback
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("config: %s=%q is not a decimal: %w", key, v, err)
	}
	return d, nil
}
