// Package market validates market definitions and their trading window.
package market

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/oddsboard/market-engine/internal/model"
	"github.com/oddsboard/market-engine/internal/odds"
)

// idRegex matches caller-chosen market IDs: lowercase slug, 3-64 chars.
// Example: fed-cut-2025-09
var idRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{2,63}$`)

// DefaultProbability is the opening price of a market created without one.
var DefaultProbability = decimal.NewFromFloat(0.5)

var (
	ErrInvalidMarket = errors.New("market: invalid market")
	ErrMarketClosed  = errors.New("market: market is not open for trading")
)

// Params describes a market to create.
type Params struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Probability *decimal.Decimal `json:"probability,omitempty"`
	EndDate     *time.Time       `json:"end_date,omitempty"`
}

// ValidateID checks a caller-supplied market ID.
func ValidateID(id string) error {
	if !idRegex.MatchString(id) {
		return fmt.Errorf("%w: id %q (expected lowercase slug, 3-64 chars)", ErrInvalidMarket, id)
	}
	return nil
}

// New builds an open market from params. An empty ID is left for the
// caller to assign.
func New(p Params, now time.Time) (model.Market, error) {
	m := model.Market{
		ID:          strings.TrimSpace(p.ID),
		Name:        strings.TrimSpace(p.Name),
		Description: strings.TrimSpace(p.Description),
		Probability: DefaultProbability,
		EndDate:     p.EndDate,
		Status:      model.StatusOpen,
		CreatedAt:   now.UTC(),
	}
	if p.Probability != nil {
		m.Probability = *p.Probability
	}
	m.OpeningProbability = m.Probability
	if m.ID != "" {
		if err := ValidateID(m.ID); err != nil {
			return model.Market{}, err
		}
	}
	if err := Validate(m, now); err != nil {
		return model.Market{}, err
	}
	return m, nil
}

// Validate checks the invariants of a market snapshot.
func Validate(m model.Market, now time.Time) error {
	if m.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidMarket)
	}
	if err := odds.ValidateProbability(m.Probability); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMarket, err)
	}
	if m.EndDate != nil && !m.EndDate.After(now) {
		return fmt.Errorf("%w: end date %s is not in the future", ErrInvalidMarket, m.EndDate.Format(time.RFC3339))
	}
	if m.Volume.IsNegative() || m.YesVolume.IsNegative() || m.NoVolume.IsNegative() {
		return fmt.Errorf("%w: negative volume", ErrInvalidMarket)
	}
	return nil
}

// IsTradable reports whether stakes may still be placed at now.
func IsTradable(m model.Market, now time.Time) bool {
	if m.Status != model.StatusOpen {
		return false
	}
	return m.EndDate == nil || now.Before(*m.EndDate)
}

// CheckTradable returns ErrMarketClosed if the market cannot take stakes.
func CheckTradable(m model.Market, now time.Time) error {
	if !IsTradable(m, now) {
		return fmt.Errorf("%w: %s", ErrMarketClosed, m.ID)
	}
	return nil
}

// CheckResolvable returns an error if the market was already resolved.
func CheckResolvable(m model.Market) error {
	if m.Status == model.StatusResolved {
		return fmt.Errorf("%w: %s already resolved", ErrMarketClosed, m.ID)
	}
	return nil
}
