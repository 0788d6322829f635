// Package settlement aggregates positions into per-user profit figures,
// ranks the leaderboard and computes payouts when a market resolves.
package settlement

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/oddsboard/market-engine/internal/ledger"
	"github.com/oddsboard/market-engine/internal/model"
)

var (
	// ErrDivisionByZero is returned by PercentChange for a zero baseline.
	ErrDivisionByZero = errors.New("settlement: percent change against zero baseline")

	// ErrUnknownMarket is returned when an open position references a
	// market missing from the snapshot.
	ErrUnknownMarket = errors.New("settlement: position references unknown market")
)

var hundred = decimal.NewFromInt(100)

// PercentChange returns total / baseline * 100.
func PercentChange(total, baseline decimal.Decimal) (decimal.Decimal, error) {
	if baseline.IsZero() {
		return decimal.Zero, ErrDivisionByZero
	}
	return total.Div(baseline).Mul(hundred), nil
}

// UserProfit sums realized and unrealized gains over a user's positions.
//
// Realized gain comes from sells, plus open units in resolved markets
// valued at their settlement price. Open units in open markets are
// unrealized, marked at the current side price. A zero starting balance
// reports 0% change.
func UserProfit(userID string, positions []model.Position, markets map[string]model.Market, starting, balance decimal.Decimal) (model.UserProfitSummary, error) {
	s := model.UserProfitSummary{
		UserID:          userID,
		Balance:         balance,
		StartingBalance: starting,
	}

	for _, pos := range positions {
		if pos.UserID != userID {
			continue
		}
		s.Realized = s.Realized.Add(pos.RealizedGain)
		if !pos.IsOpen() {
			continue
		}
		m, ok := markets[pos.MarketID]
		if !ok {
			return s, fmt.Errorf("%w: %s", ErrUnknownMarket, pos.MarketID)
		}
		marked, err := ledger.Mark(pos, m)
		if err != nil {
			return s, fmt.Errorf("settlement: mark %s/%s: %w", pos.MarketID, pos.Side, err)
		}
		if m.Status == model.StatusResolved {
			s.Realized = s.Realized.Add(marked.UnrealizedGain)
		} else {
			s.Unrealized = s.Unrealized.Add(marked.UnrealizedGain)
		}
	}

	s.Total = s.Realized.Add(s.Unrealized)
	pc, err := PercentChange(s.Total, starting)
	if err != nil && !errors.Is(err, ErrDivisionByZero) {
		return s, err
	}
	s.PercentChange = pc
	return s, nil
}

// Rank orders summaries by percent change descending, then total
// descending, then user ID ascending. The input slice is left untouched.
func Rank(summaries []model.UserProfitSummary) []model.UserProfitSummary {
	out := make([]model.UserProfitSummary, len(summaries))
	copy(out, summaries)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if c := a.PercentChange.Cmp(b.PercentChange); c != 0 {
			return c > 0
		}
		if c := a.Total.Cmp(b.Total); c != 0 {
			return c > 0
		}
		return a.UserID < b.UserID
	})
	return out
}

// Leaderboard builds and ranks a summary for every account.
func Leaderboard(accounts []model.Account, positions []model.Position, markets map[string]model.Market) ([]model.UserProfitSummary, error) {
	byUser := make(map[string][]model.Position)
	for _, p := range positions {
		byUser[p.UserID] = append(byUser[p.UserID], p)
	}

	summaries := make([]model.UserProfitSummary, 0, len(accounts))
	for _, a := range accounts {
		s, err := UserProfit(a.UserID, byUser[a.UserID], markets, a.StartingBalance, a.Balance)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, s)
	}
	return Rank(summaries), nil
}

// Payout is the amount credited to one user when a market resolves.
type Payout struct {
	UserID string          `json:"user_id"`
	Amount decimal.Decimal `json:"amount"`
}

// Resolve pays one unit of currency per open unit on the winning side.
// Payouts are ordered by user ID; losing and closed positions pay nothing.
func Resolve(positions []model.Position, outcome model.Side) []Payout {
	totals := make(map[string]decimal.Decimal)
	for _, p := range positions {
		if p.Side == outcome && p.IsOpen() {
			totals[p.UserID] = totals[p.UserID].Add(p.NetUnits)
		}
	}

	out := make([]Payout, 0, len(totals))
	for user, amt := range totals {
		out = append(out, Payout{UserID: user, Amount: amt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}
