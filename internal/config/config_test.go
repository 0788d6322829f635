package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestFromEnv_Defaults(t *testing.T) {
	for _, k := range []string{"PORT", "DATABASE_URL", "SQLITE_PATH", "REDIS_URL", "CACHE_TTL",
		"PRICING_STRATEGY", "LMSR_LIQUIDITY", "STARTING_BALANCE", "MAX_PER_MARKET",
		"MAX_TOTAL_EXPOSURE", "CORS_ORIGINS"} {
		t.Setenv(k, "")
	}

	cfg, err := fromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("expected port 8080, got %s", cfg.Port)
	}
	if cfg.PricingStrategy != "volume" {
		t.Errorf("expected volume pricing, got %s", cfg.PricingStrategy)
	}
	if !cfg.StartingBalance.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("expected starting balance 1000, got %s", cfg.StartingBalance)
	}
	if !cfg.MaxPerMarket.IsZero() || !cfg.MaxTotal.IsZero() {
		t.Errorf("limits should default to unlimited")
	}
	if cfg.CacheTTL != 5*time.Second {
		t.Errorf("expected 5s cache TTL, got %v", cfg.CacheTTL)
	}
	if cfg.StoreKind() != "memory" {
		t.Errorf("expected memory store, got %s", cfg.StoreKind())
	}
	if len(cfg.CORSOrigins) != 1 || cfg.CORSOrigins[0] != "*" {
		t.Errorf("expected CORS origins [*], got %v", cfg.CORSOrigins)
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("SQLITE_PATH", "./data/test.db")
	t.Setenv("PRICING_STRATEGY", "LMSR")
	t.Setenv("LMSR_LIQUIDITY", "250")
	t.Setenv("MAX_PER_MARKET", "500")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("DATABASE_URL", "")

	cfg, err := fromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.PricingStrategy != "lmsr" {
		t.Errorf("expected lmsr, got %s", cfg.PricingStrategy)
	}
	if !cfg.LMSRLiquidity.Equal(decimal.NewFromInt(250)) {
		t.Errorf("expected liquidity 250, got %s", cfg.LMSRLiquidity)
	}
	if !cfg.MaxPerMarket.Equal(decimal.NewFromInt(500)) {
		t.Errorf("expected max per market 500, got %s", cfg.MaxPerMarket)
	}
	if cfg.StoreKind() != "sqlite" {
		t.Errorf("expected sqlite store, got %s", cfg.StoreKind())
	}
	if len(cfg.CORSOrigins) != 2 {
		t.Errorf("expected 2 CORS origins, got %v", cfg.CORSOrigins)
	}

	t.Setenv("DATABASE_URL", "postgres://localhost/oddsboard")
	cfg, err = fromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.StoreKind() != "postgres" {
		t.Errorf("DATABASE_URL should take precedence, got %s", cfg.StoreKind())
	}
}

func TestFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"PRICING_STRATEGY", "parimutuel"},
		{"STARTING_BALANCE", "lots"},
		{"MAX_TOTAL_EXPOSURE", "-1"},
		{"CACHE_TTL", "soon"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := fromEnv(); err == nil {
				t.Errorf("expected error for %s=%q", tt.key, tt.value)
			}
		})
	}
}

func TestFromEnv_LMSRNeedsLiquidity(t *testing.T) {
	t.Setenv("PRICING_STRATEGY", "lmsr")
	t.Setenv("LMSR_LIQUIDITY", "0")
	if _, err := fromEnv(); err == nil {
		t.Error("expected error for zero liquidity")
	}
}
