// Package pricing provides the probability update rules the odds engine
// can be configured with.
package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/oddsboard/market-engine/internal/lmsr"
	"github.com/oddsboard/market-engine/internal/model"
	"github.com/oddsboard/market-engine/internal/odds"
)

// Strategy names accepted by New.
const (
	StrategyVolume = "volume"
	StrategyLMSR   = "lmsr"
)

// New returns the updater for a configured strategy name.
func New(strategy string, liquidity decimal.Decimal) (odds.PriceUpdater, error) {
	switch strategy {
	case "", StrategyVolume:
		return NewVolumeShare(), nil
	case StrategyLMSR:
		return NewLMSR(liquidity)
	}
	return nil, fmt.Errorf("pricing: unknown strategy %q", strategy)
}

// VolumeShare prices YES as its smoothed share of open volume, anchored
// on the opening probability p0 of the market:
//
//	p = (yes + 2s*p0) / (yes + no + 2s)
//
// With p0 = 0.5 this is (yes + s) / (yes + no + 2s). The result is
// clamped to [Floor, Ceiling] and rounded to Scale places. A market with
// no volume trades at p0.
type VolumeShare struct {
	Smoothing decimal.Decimal
	Floor     decimal.Decimal
	Ceiling   decimal.Decimal
	Scale     int32
}

// NewVolumeShare returns the rule with smoothing 1, bounds [0.01, 0.99] and
// two decimal places.
func NewVolumeShare() *VolumeShare {
	return &VolumeShare{
		Smoothing: decimal.NewFromInt(1),
		Floor:     decimal.NewFromFloat(0.01),
		Ceiling:   decimal.NewFromFloat(0.99),
		Scale:     2,
	}
}

// NextProbability adds the signed amount to the staked side's volume.
// Volume never goes below zero, and the price never moves against the
// stake: a YES buy or NO sell cannot lower p, a NO buy or YES sell cannot
// raise it. Rounding and the clamp would otherwise do so for seeds off the
// two-place grid or outside [Floor, Ceiling].
func (v *VolumeShare) NextProbability(m model.Market, side model.Side, amount decimal.Decimal) (decimal.Decimal, error) {
	yes, no := m.YesVolume, m.NoVolume
	switch side {
	case model.SideYes:
		yes = decimal.Max(decimal.Zero, yes.Add(amount))
	case model.SideNo:
		no = decimal.Max(decimal.Zero, no.Add(amount))
	default:
		return decimal.Zero, odds.ErrInvalidSide
	}
	p := v.Probability(m.Opening(), yes, no)

	if odds.ValidateProbability(m.Probability) != nil {
		return p, nil
	}
	if raises := (side == model.SideYes) == amount.IsPositive(); raises {
		return decimal.Max(p, m.Probability), nil
	}
	return decimal.Min(p, m.Probability), nil
}

// Probability computes the YES probability for the given side volumes
// around the opening probability.
func (v *VolumeShare) Probability(opening, yes, no decimal.Decimal) decimal.Decimal {
	total := yes.Add(no)
	if total.IsZero() {
		return opening
	}
	prior := v.Smoothing.Mul(decimal.NewFromInt(2))
	p := yes.Add(prior.Mul(opening)).Div(total.Add(prior))
	p = decimal.Min(v.Ceiling, decimal.Max(v.Floor, p))
	return p.Round(v.Scale)
}

// LMSR moves the probability along a logarithmic market scoring rule curve.
type LMSR struct {
	mm *lmsr.MarketMaker
}

// NewLMSR creates an LMSR updater with liquidity b.
func NewLMSR(b decimal.Decimal) (*LMSR, error) {
	mm, err := lmsr.NewMarketMaker(b)
	if err != nil {
		return nil, err
	}
	return &LMSR{mm: mm}, nil
}

// NextProbability treats the signed amount as money spent on the side.
func (l *LMSR) NextProbability(m model.Market, side model.Side, amount decimal.Decimal) (decimal.Decimal, error) {
	switch side {
	case model.SideYes:
		return l.mm.PriceAfterSpendYes(m.Probability, amount)
	case model.SideNo:
		return l.mm.PriceAfterSpendNo(m.Probability, amount)
	}
	return decimal.Zero, odds.ErrInvalidSide
}

// Liquidity returns the b parameter of the curve.
func (l *LMSR) Liquidity() decimal.Decimal {
	return l.mm.B()
}

// MaxLoss is the most the market maker can lose on a single market.
func (l *LMSR) MaxLoss() decimal.Decimal {
	return l.mm.MaxLoss()
}

// Info describes a configured strategy.
type Info struct {
	Strategy  string           `json:"strategy"`
	Liquidity *decimal.Decimal `json:"liquidity,omitempty"`
	MaxLoss   *decimal.Decimal `json:"max_loss_per_market,omitempty"`
}

// Describe reports the strategy behind u. Updaters not built by New are
// reported as "custom".
func Describe(u odds.PriceUpdater) Info {
	switch v := u.(type) {
	case *VolumeShare:
		return Info{Strategy: StrategyVolume}
	case *LMSR:
		b, loss := v.Liquidity(), v.MaxLoss()
		return Info{Strategy: StrategyLMSR, Liquidity: &b, MaxLoss: &loss}
	}
	return Info{Strategy: "custom"}
}
