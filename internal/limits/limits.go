// Package limits enforces balance and exposure limits on new stakes.
//
// Exposure is the cost basis a user holds in a market across both sides.
// A limiter checks the exposure after the stake against a per-market cap
// and against the total across all markets. A zero cap disables the check.
package limits

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrInsufficientBalance is returned when a stake exceeds the cash
	// balance of the account.
	ErrInsufficientBalance = errors.New("limits: insufficient balance")

	// ErrPerMarketLimitExceeded is returned when a trade would push a
	// single market's exposure beyond the per-market maximum.
	ErrPerMarketLimitExceeded = errors.New("limits: per-market position limit exceeded")

	// ErrTotalLimitExceeded is returned when a trade would push the
	// aggregate exposure across all markets beyond the total maximum.
	ErrTotalLimitExceeded = errors.New("limits: total exposure limit exceeded")
)

// CheckBalance rejects a buy larger than the available balance.
func CheckBalance(balance, amount decimal.Decimal) error {
	if amount.GreaterThan(balance) {
		return fmt.Errorf("%w: balance %s, stake %s", ErrInsufficientBalance, balance.StringFixed(2), amount)
	}
	return nil
}

// PositionLimiter caps exposure per market and in total.
type PositionLimiter struct {
	// MaxPerMarket is the maximum exposure in any single market.
	MaxPerMarket decimal.Decimal

	// MaxTotal is the maximum exposure summed across all markets.
	MaxTotal decimal.Decimal
}

// NewPositionLimiter creates a limiter. Pass decimal.Zero to leave either
// limit unbounded.
func NewPositionLimiter(maxPerMarket, maxTotal decimal.Decimal) *PositionLimiter {
	return &PositionLimiter{
		MaxPerMarket: maxPerMarket,
		MaxTotal:     maxTotal,
	}
}

// CheckLimit validates whether a trade respects position limits.
//
// Parameters:
//   - marketID: market being traded
//   - delta: signed change in exposure (+buy / -sell)
//   - existing: market ID → current exposure for this user
//
// Sells that reduce exposure are always allowed.
func (l *PositionLimiter) CheckLimit(marketID string, delta decimal.Decimal, existing map[string]decimal.Decimal) error {
	if !delta.IsPositive() {
		return nil
	}

	// 1. Per-market limit.
	next := existing[marketID].Add(delta)
	if l.MaxPerMarket.IsPositive() && next.GreaterThan(l.MaxPerMarket) {
		return fmt.Errorf("%w: %s would reach %s (max %s)", ErrPerMarketLimitExceeded, marketID, next, l.MaxPerMarket)
	}

	// 2. Total exposure across markets.
	if !l.MaxTotal.IsPositive() {
		return nil
	}
	total := next
	for id, exposure := range existing {
		if id == marketID {
			continue // counted via next
		}
		total = total.Add(exposure.Abs())
	}
	if total.GreaterThan(l.MaxTotal) {
		return fmt.Errorf("%w: total would reach %s (max %s)", ErrTotalLimitExceeded, total, l.MaxTotal)
	}
	return nil
}
