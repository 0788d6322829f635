// Package odds converts a market's YES probability into payout figures for
// YES/NO stakes and validates stakes before the probability is moved.
//
// A YES stake buys units at price p, each paying 1 if YES wins; a NO stake
// buys units at price 1-p. The engine never mutates market state: ApplyStake
// returns the next probability and the caller persists it.
package odds

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/oddsboard/market-engine/internal/model"
)

var (
	// ErrInvalidOdds is returned when a probability is outside (0, 1).
	ErrInvalidOdds = errors.New("odds: probability must be strictly between 0 and 1")

	// ErrInvalidAmount is returned for a non-positive stake amount.
	ErrInvalidAmount = errors.New("odds: amount must be positive")

	// ErrInvalidSide is returned for a side other than YES or NO.
	ErrInvalidSide = errors.New("odds: side must be YES or NO")
)

var one = decimal.NewFromInt(1)

// ValidateProbability checks 0 < p < 1.
func ValidateProbability(p decimal.Decimal) error {
	if !p.IsPositive() || p.GreaterThanOrEqual(one) {
		return fmt.Errorf("%w: got %s", ErrInvalidOdds, p)
	}
	return nil
}

// SidePrice returns the per-unit price of a side: p for YES, 1-p for NO.
func SidePrice(side model.Side, p decimal.Decimal) (decimal.Decimal, error) {
	if err := ValidateProbability(p); err != nil {
		return decimal.Zero, err
	}
	switch side {
	case model.SideYes:
		return p, nil
	case model.SideNo:
		return one.Sub(p), nil
	}
	return decimal.Zero, ErrInvalidSide
}

// PotentialProfit is the profit on a winning stake:
//
//	YES: amount * (1 - p) / p
//	NO:  amount * p / (1 - p)
func PotentialProfit(side model.Side, amount, p decimal.Decimal) (decimal.Decimal, error) {
	if err := ValidateProbability(p); err != nil {
		return decimal.Zero, err
	}
	if !amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: got %s", ErrInvalidAmount, amount)
	}
	switch side {
	case model.SideYes:
		return amount.Mul(one.Sub(p)).Div(p), nil
	case model.SideNo:
		return amount.Mul(p).Div(one.Sub(p)), nil
	}
	return decimal.Zero, ErrInvalidSide
}

// PotentialPayout is stake plus profit, the total returned on a win.
func PotentialPayout(side model.Side, amount, p decimal.Decimal) (decimal.Decimal, error) {
	profit, err := PotentialProfit(side, amount, p)
	if err != nil {
		return decimal.Zero, err
	}
	return amount.Add(profit), nil
}

// Multiplier is the decimal-odds payout multiplier 1/price for a side.
func Multiplier(side model.Side, p decimal.Decimal) (decimal.Decimal, error) {
	price, err := SidePrice(side, p)
	if err != nil {
		return decimal.Zero, err
	}
	return one.Div(price), nil
}

// Quote is a read-only payout preview for a prospective stake.
type Quote struct {
	MarketID    string          `json:"market_id"`
	Side        model.Side      `json:"side"`
	Amount      decimal.Decimal `json:"amount"`
	Probability decimal.Decimal `json:"probability"`
	Price       decimal.Decimal `json:"price"`
	Units       decimal.Decimal `json:"units"`
	Multiplier  decimal.Decimal `json:"multiplier"`
	Profit      decimal.Decimal `json:"potential_profit"`
	Payout      decimal.Decimal `json:"potential_payout"`
}

// NewQuote prices a stake against the market's current probability.
func NewQuote(m model.Market, side model.Side, amount decimal.Decimal) (Quote, error) {
	price, err := SidePrice(side, m.Probability)
	if err != nil {
		return Quote{}, err
	}
	profit, err := PotentialProfit(side, amount, m.Probability)
	if err != nil {
		return Quote{}, err
	}
	return Quote{
		MarketID:    m.ID,
		Side:        side,
		Amount:      amount,
		Probability: m.Probability,
		Price:       price,
		Units:       amount.Div(price),
		Multiplier:  one.Div(price),
		Profit:      profit,
		Payout:      amount.Add(profit),
	}, nil
}
