// Package ledger projects the append-only bet stream into positions.
//
// Positions are never stored. Every read folds the bets for the key in
// execution order: buys add units at the side price recorded on the bet,
// sells remove units at the side price recorded on the sell.
package ledger

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/oddsboard/market-engine/internal/model"
	"github.com/oddsboard/market-engine/internal/odds"
)

// ErrOverSell is returned when a sell exceeds the current value of the
// position by more than SellTolerance.
var ErrOverSell = errors.New("ledger: sell exceeds position value")

// SellTolerance absorbs rounding from repeated divisions when a client
// sells "everything" using a rounded value.
var SellTolerance = decimal.NewFromFloat(0.01)

// Sort orders bets by execution time, ties broken by ID. The input slice
// is left untouched.
func Sort(bets []model.Bet) []model.Bet {
	out := make([]model.Bet, len(bets))
	copy(out, bets)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Fold replays bets into positions keyed by (user, market, side).
func Fold(bets []model.Bet) (map[model.PositionKey]*model.Position, error) {
	positions := make(map[model.PositionKey]*model.Position)
	for _, b := range Sort(bets) {
		key := model.PositionKey{UserID: b.UserID, MarketID: b.MarketID, Side: b.Side}
		pos, ok := positions[key]
		if !ok {
			pos = &model.Position{PositionKey: key}
			positions[key] = pos
		}
		if err := Apply(pos, b); err != nil {
			return nil, fmt.Errorf("ledger: bet %s: %w", b.ID, err)
		}
	}
	return positions, nil
}

// Apply folds a single bet into pos.
func Apply(pos *model.Position, b model.Bet) error {
	if b.Amount.IsZero() {
		return odds.ErrInvalidAmount
	}
	price, err := odds.SidePrice(b.Side, b.Probability)
	if err != nil {
		return err
	}

	if !b.IsSell() {
		pos.NetUnits = pos.NetUnits.Add(b.Amount.Div(price))
		pos.Invested = pos.Invested.Add(b.Amount)
		pos.CostBasis = pos.CostBasis.Add(b.Amount)
		pos.AvgPrice = pos.CostBasis.Div(pos.NetUnits)
		return nil
	}

	amount := b.Amount.Abs()
	if err := CheckSell(*pos, amount, price); err != nil {
		return err
	}

	var costRemoved decimal.Decimal
	if value := pos.NetUnits.Mul(price); amount.GreaterThanOrEqual(value) {
		// Closing sells are paid the position value, never the tolerance.
		amount = value
		costRemoved = pos.CostBasis
		pos.NetUnits = decimal.Zero
		pos.CostBasis = decimal.Zero
		pos.AvgPrice = decimal.Zero
	} else {
		sold := amount.Div(price)
		costRemoved = pos.CostBasis.Mul(sold).Div(pos.NetUnits)
		pos.NetUnits = pos.NetUnits.Sub(sold)
		pos.CostBasis = pos.CostBasis.Sub(costRemoved)
	}
	pos.Divested = pos.Divested.Add(amount)
	pos.RealizedGain = pos.RealizedGain.Add(amount.Sub(costRemoved))
	return nil
}

// CheckSell validates that selling amount at the given side price fits in
// the position. An empty position cannot be sold, even within tolerance.
func CheckSell(pos model.Position, amount, price decimal.Decimal) error {
	if !amount.IsPositive() {
		return odds.ErrInvalidAmount
	}
	if !pos.IsOpen() {
		return fmt.Errorf("%w: no open units", ErrOverSell)
	}
	value := pos.NetUnits.Mul(price)
	if amount.GreaterThan(value.Add(SellTolerance)) {
		return fmt.Errorf("%w: requested %s, available %s", ErrOverSell, amount, value.StringFixed(2))
	}
	return nil
}

// SellProceeds is the cash a sell of amount pays out: the requested
// amount, capped at the value of the position.
func SellProceeds(pos model.Position, amount, price decimal.Decimal) decimal.Decimal {
	return decimal.Min(amount, pos.NetUnits.Mul(price))
}

// UnrealizedGains is the paper gain on units still held:
// net_units * price - cost_basis.
func UnrealizedGains(pos model.Position, price decimal.Decimal) decimal.Decimal {
	return pos.NetUnits.Mul(price).Sub(pos.CostBasis)
}

// MarkPrice returns the unit value of a side: 1 or 0 once the market is
// resolved, otherwise the current side price.
func MarkPrice(side model.Side, m model.Market) (decimal.Decimal, error) {
	if m.Status == model.StatusResolved && m.Outcome != nil {
		if *m.Outcome == side {
			return decimal.NewFromInt(1), nil
		}
		return decimal.Zero, nil
	}
	return odds.SidePrice(side, m.Probability)
}

// Mark fills the valuation fields of pos against the market snapshot.
func Mark(pos model.Position, m model.Market) (model.Position, error) {
	price, err := MarkPrice(pos.Side, m)
	if err != nil {
		return pos, err
	}
	pos.CurrentPrice = price
	pos.CurrentValue = pos.NetUnits.Mul(price)
	pos.UnrealizedGain = UnrealizedGains(pos, price)
	return pos, nil
}

// Position returns the folded position for key, or an empty one.
func Position(bets []model.Bet, key model.PositionKey) (model.Position, error) {
	var filtered []model.Bet
	for _, b := range bets {
		if b.UserID == key.UserID && b.MarketID == key.MarketID && b.Side == key.Side {
			filtered = append(filtered, b)
		}
	}
	positions, err := Fold(filtered)
	if err != nil {
		return model.Position{PositionKey: key}, err
	}
	if pos, ok := positions[key]; ok {
		return *pos, nil
	}
	return model.Position{PositionKey: key}, nil
}

// List flattens a fold result into a deterministic slice ordered by user,
// market, then side.
func List(positions map[model.PositionKey]*model.Position) []model.Position {
	out := make([]model.Position, 0, len(positions))
	for _, p := range positions {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].PositionKey, out[j].PositionKey
		if a.UserID != b.UserID {
			return a.UserID < b.UserID
		}
		if a.MarketID != b.MarketID {
			return a.MarketID < b.MarketID
		}
		return a.Side < b.Side
	})
	return out
}

// Exposure returns the cost basis a user currently holds per market.
// Positions in resolved markets are settled and carry no exposure; a
// market missing from markets is treated as open.
func Exposure(positions []model.Position, markets map[string]model.Market) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	for _, p := range positions {
		if !p.IsOpen() {
			continue
		}
		if m, ok := markets[p.MarketID]; ok && m.Status == model.StatusResolved {
			continue
		}
		out[p.MarketID] = out[p.MarketID].Add(p.CostBasis)
	}
	return out
}
