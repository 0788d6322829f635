// Package lmsr implements the Logarithmic Market Scoring Rule (LMSR)
// automated market maker for binary YES/NO markets, expressed directly in
// probability space.
//
// For a binary LMSR with liquidity b, spending an amount A on YES moves the
// YES price p to
//
//	p' = 1 - (1 - p) * exp(-A/b)
//
// and spending A on NO moves it to p' = p * exp(-A/b). A negative A is a
// sale that returns |A| to the trader.
//
// All monetary values use shopspring/decimal. Transcendental math runs in
// float64 and is immediately converted back to decimal.
//
// Reference: Hanson, R. (2003) "Combinatorial Information Market Design"
package lmsr

import (
	"errors"
	"math"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidLiquidity is returned when b <= 0.
	ErrInvalidLiquidity = errors.New("lmsr: liquidity parameter b must be positive")

	// ErrInvalidPrice is returned when the starting price is outside (0, 1).
	ErrInvalidPrice = errors.New("lmsr: price must be strictly between 0 and 1")

	// ErrPriceBoundExceeded is returned when a trade would push prices
	// beyond the allowed bounds [MinPrice, MaxPrice].
	ErrPriceBoundExceeded = errors.New("lmsr: trade would push price beyond allowed bounds")

	// MinPrice is the lowest allowed YES price.
	MinPrice = decimal.NewFromFloat(0.001)

	// MaxPrice is the highest allowed YES price.
	MaxPrice = decimal.NewFromFloat(0.999)

	// PriceScale is the number of decimal places for price/cost rounding.
	PriceScale int32 = 8
)

// MarketMaker prices binary trades with a fixed liquidity parameter.
// It is stateless; the current price is passed to every call.
type MarketMaker struct {
	b decimal.Decimal
}

// NewMarketMaker creates a market maker with liquidity b. Higher b means
// lower price impact per unit of money spent.
func NewMarketMaker(b decimal.Decimal) (*MarketMaker, error) {
	if b.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidLiquidity
	}
	return &MarketMaker{b: b}, nil
}

// B returns the liquidity parameter.
func (m *MarketMaker) B() decimal.Decimal {
	return m.b
}

func checkPrice(p decimal.Decimal) (float64, error) {
	if !p.IsPositive() || p.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return 0, ErrInvalidPrice
	}
	return p.InexactFloat64(), nil
}

func bounded(pf float64) (decimal.Decimal, error) {
	if math.IsNaN(pf) || pf < MinPrice.InexactFloat64() || pf > MaxPrice.InexactFloat64() {
		return decimal.Zero, ErrPriceBoundExceeded
	}
	return decimal.NewFromFloat(pf).Round(PriceScale), nil
}

// PriceAfterSpendYes returns the YES price after spending amount on YES.
func (m *MarketMaker) PriceAfterSpendYes(p, amount decimal.Decimal) (decimal.Decimal, error) {
	pf, err := checkPrice(p)
	if err != nil {
		return decimal.Zero, err
	}
	decay := math.Exp(-amount.InexactFloat64() / m.b.InexactFloat64())
	return bounded(1 - (1-pf)*decay)
}

// PriceAfterSpendNo returns the YES price after spending amount on NO.
func (m *MarketMaker) PriceAfterSpendNo(p, amount decimal.Decimal) (decimal.Decimal, error) {
	pf, err := checkPrice(p)
	if err != nil {
		return decimal.Zero, err
	}
	decay := math.Exp(-amount.InexactFloat64() / m.b.InexactFloat64())
	return bounded(pf * decay)
}

// MaxLoss returns the maximum possible loss for the market maker: b * ln(2).
func (m *MarketMaker) MaxLoss() decimal.Decimal {
	return decimal.NewFromFloat(m.b.InexactFloat64() * math.Log(2)).Round(PriceScale)
}
