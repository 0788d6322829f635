package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/oddsboard/market-engine/internal/pricing"
)

type Config struct {
	Port            string
	DatabaseURL     string // postgres; takes precedence over SQLitePath
	SQLitePath      string // single-node store, e.g. "./data/oddsboard.db"
	RedisURL        string // optional read-through cache in front of postgres
	CacheTTL        time.Duration
	PricingStrategy string // "volume" or "lmsr"
	LMSRLiquidity   decimal.Decimal
	StartingBalance decimal.Decimal
	MaxPerMarket    decimal.Decimal // 0 = unlimited
	MaxTotal        decimal.Decimal // 0 = unlimited
	CORSOrigins     []string
}

// StoreKind names the backend the configuration selects.
func (c *Config) StoreKind() string {
	switch {
	case c.DatabaseURL != "":
		return "postgres"
	case c.SQLitePath != "":
		return "sqlite"
	}
	return "memory"
}

func Load() (*Config, error) {
	_ = godotenv.Load()
	return fromEnv()
}

func fromEnv() (*Config, error) {
	cfg := &Config{
		Port:            getEnvDefault("PORT", "8080"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		SQLitePath:      os.Getenv("SQLITE_PATH"),
		RedisURL:        os.Getenv("REDIS_URL"),
		PricingStrategy: strings.ToLower(getEnvDefault("PRICING_STRATEGY", pricing.StrategyVolume)),
		CORSOrigins:     splitList(getEnvDefault("CORS_ORIGINS", "*")),
	}

	ttl, err := time.ParseDuration(getEnvDefault("CACHE_TTL", "5s"))
	if err != nil {
		return nil, fmt.Errorf("CACHE_TTL: %w", err)
	}
	cfg.CacheTTL = ttl

	for _, v := range []struct {
		key, def string
		dst      *decimal.Decimal
	}{
		{"LMSR_LIQUIDITY", "100", &cfg.LMSRLiquidity},
		{"STARTING_BALANCE", "1000", &cfg.StartingBalance},
		{"MAX_PER_MARKET", "0", &cfg.MaxPerMarket},
		{"MAX_TOTAL_EXPOSURE", "0", &cfg.MaxTotal},
	} {
		d, err := decimal.NewFromString(getEnvDefault(v.key, v.def))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", v.key, err)
		}
		if d.IsNegative() {
			return nil, fmt.Errorf("%s must not be negative, got %s", v.key, d)
		}
		*v.dst = d
	}

	if cfg.PricingStrategy != pricing.StrategyVolume && cfg.PricingStrategy != pricing.StrategyLMSR {
		return nil, fmt.Errorf("PRICING_STRATEGY must be 'volume' or 'lmsr', got %q", cfg.PricingStrategy)
	}
	if cfg.PricingStrategy == pricing.StrategyLMSR && !cfg.LMSRLiquidity.IsPositive() {
		return nil, fmt.Errorf("LMSR_LIQUIDITY must be positive")
	}

	return cfg, nil
}

func getEnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
