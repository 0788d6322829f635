package odds

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/oddsboard/market-engine/internal/model"
)

// PriceUpdater computes the market probability after a signed stake.
// Implementations must not mutate the market they are given.
type PriceUpdater interface {
	NextProbability(m model.Market, side model.Side, amount decimal.Decimal) (decimal.Decimal, error)
}

// PriceUpdaterFunc adapts a function to PriceUpdater.
type PriceUpdaterFunc func(m model.Market, side model.Side, amount decimal.Decimal) (decimal.Decimal, error)

func (f PriceUpdaterFunc) NextProbability(m model.Market, side model.Side, amount decimal.Decimal) (decimal.Decimal, error) {
	return f(m, side, amount)
}

// Engine validates stakes and delegates the probability update to a
// pluggable PriceUpdater. It holds no market state and is safe for
// concurrent use if the updater is.
type Engine struct {
	updater PriceUpdater
}

// NewEngine creates an engine backed by the given price updater.
func NewEngine(updater PriceUpdater) *Engine {
	return &Engine{updater: updater}
}

// ApplyStake validates a signed stake (positive buys, negative sells) and
// returns the probability the market should move to. The update rule itself
// belongs to the updater; the result is only checked to stay inside (0, 1).
func (e *Engine) ApplyStake(m model.Market, side model.Side, amount decimal.Decimal) (decimal.Decimal, error) {
	if side != model.SideYes && side != model.SideNo {
		return decimal.Zero, ErrInvalidSide
	}
	if err := ValidateProbability(m.Probability); err != nil {
		return decimal.Zero, err
	}
	if amount.IsZero() {
		return decimal.Zero, fmt.Errorf("%w: stake must be non-zero", ErrInvalidAmount)
	}

	next, err := e.updater.NextProbability(m, side, amount)
	if err != nil {
		return decimal.Zero, err
	}
	if err := ValidateProbability(next); err != nil {
		return decimal.Zero, fmt.Errorf("price update: %w", err)
	}
	return next, nil
}
