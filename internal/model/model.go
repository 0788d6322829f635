// Package model defines the core domain types shared across the market engine.
// Monetary values and probabilities are shopspring/decimal, never float64.
package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Side is the outcome a bet is placed on.
type Side string

const (
	SideYes Side = "YES"
	SideNo  Side = "NO"
)

// ParseSide accepts "YES"/"NO" in any case.
func ParseSide(s string) (Side, bool) {
	switch Side(strings.ToUpper(strings.TrimSpace(s))) {
	case SideYes:
		return SideYes, true
	case SideNo:
		return SideNo, true
	}
	return "", false
}

// SideFromBool maps the legacy boolean prediction flag (true = YES).
func SideFromBool(yes bool) Side {
	if yes {
		return SideYes
	}
	return SideNo
}

// Market statuses.
const (
	StatusOpen     = "open"
	StatusResolved = "resolved"
)

// Market is a binary-outcome market priced by the YES probability.
// Probability is the only price state; it changes only when a stake is accepted.
type Market struct {
	ID          string          `json:"id" db:"id"`
	Name        string          `json:"name" db:"name"`
	Description string          `json:"description,omitempty" db:"description"`
	Probability decimal.Decimal `json:"probability" db:"probability"`
	Volume      decimal.Decimal `json:"volume" db:"volume"`         // gross traded amount
	YesVolume   decimal.Decimal `json:"yes_volume" db:"yes_volume"` // net open amount on YES
	NoVolume    decimal.Decimal `json:"no_volume" db:"no_volume"`   // net open amount on NO
	EndDate     *time.Time      `json:"end_date,omitempty" db:"end_date"`
	Status      string          `json:"status" db:"status"`
	Outcome     *Side           `json:"outcome,omitempty" db:"outcome"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`

	// OpeningProbability is the price the market was created at. Zero
	// means unknown and is read as 0.5.
	OpeningProbability decimal.Decimal `json:"opening_probability" db:"opening_probability"`
}

// Opening returns the opening probability, 0.5 when it was never recorded.
func (m Market) Opening() decimal.Decimal {
	if m.OpeningProbability.IsPositive() {
		return m.OpeningProbability
	}
	return decimal.NewFromFloat(0.5)
}

// Bet is an immutable ledger entry. Amount is signed: +buy, -sell.
// Probability is the market YES probability at execution time.
type Bet struct {
	ID          string          `json:"id" db:"id"`
	MarketID    string          `json:"market_id" db:"market_id"`
	UserID      string          `json:"user_id" db:"user_id"`
	Side        Side            `json:"side" db:"side"`
	Amount      decimal.Decimal `json:"amount" db:"amount"`
	Probability decimal.Decimal `json:"probability" db:"probability"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// IsSell reports whether the bet reduces a position.
func (b Bet) IsSell() bool {
	return b.Amount.IsNegative()
}

// PositionKey identifies one side of one market for one user.
type PositionKey struct {
	UserID   string `json:"user_id"`
	MarketID string `json:"market_id"`
	Side     Side   `json:"side"`
}

// Position is derived by folding bets; it is never stored.
type Position struct {
	PositionKey
	NetUnits       decimal.Decimal `json:"net_units"`
	AvgPrice       decimal.Decimal `json:"avg_price"`
	Invested       decimal.Decimal `json:"invested"`   // gross buys
	Divested       decimal.Decimal `json:"divested"`   // gross sells
	CostBasis      decimal.Decimal `json:"cost_basis"` // cost of units still held
	RealizedGain   decimal.Decimal `json:"realized_gain"`
	CurrentPrice   decimal.Decimal `json:"current_price"`
	CurrentValue   decimal.Decimal `json:"current_value"`
	UnrealizedGain decimal.Decimal `json:"unrealized_gain"`
}

// IsOpen reports whether the position still holds units.
func (p Position) IsOpen() bool {
	return p.NetUnits.IsPositive()
}

// Account holds a user's cash balance and the baseline used for percent change.
type Account struct {
	UserID          string          `json:"user_id" db:"user_id"`
	Balance         decimal.Decimal `json:"balance" db:"balance"`
	StartingBalance decimal.Decimal `json:"starting_balance" db:"starting_balance"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
}

// UserProfitSummary aggregates realized and unrealized gains for one user.
type UserProfitSummary struct {
	UserID          string          `json:"user_id"`
	Balance         decimal.Decimal `json:"balance"`
	StartingBalance decimal.Decimal `json:"starting_balance"`
	Realized        decimal.Decimal `json:"realized"`
	Unrealized      decimal.Decimal `json:"unrealized"`
	Total           decimal.Decimal `json:"total"`
	PercentChange   decimal.Decimal `json:"percent_change"`
}
