package settlement

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oddsboard/market-engine/internal/model"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func pos(user, market string, side model.Side, units, cost, realized float64) model.Position {
	return model.Position{
		PositionKey:  model.PositionKey{UserID: user, MarketID: market, Side: side},
		NetUnits:     d(units),
		CostBasis:    d(cost),
		RealizedGain: d(realized),
	}
}

func markets() map[string]model.Market {
	yes := model.SideYes
	return map[string]model.Market{
		"open":   {ID: "open", Probability: d(0.75), Status: model.StatusOpen},
		"closed": {ID: "closed", Probability: d(0.5), Status: model.StatusResolved, Outcome: &yes},
	}
}

func TestPercentChange(t *testing.T) {
	pc, err := PercentChange(d(50), d(1000))
	require.NoError(t, err)
	assert.True(t, d(5).Equal(pc), "got %s", pc)

	_, err = PercentChange(d(50), decimal.Zero)
	assert.ErrorIs(t, err, ErrDivisionByZero)
}

func TestUserProfit_RealizedAndUnrealized(t *testing.T) {
	positions := []model.Position{
		pos("alice", "open", model.SideYes, 200, 100, 10), // marked at 0.75: +50
		pos("alice", "closed", model.SideYes, 40, 20, 0),  // settles at 1: +20 realized
		pos("alice", "closed", model.SideNo, 0, 0, -5),    // sold earlier at a loss
		pos("bob", "open", model.SideYes, 999, 1, 0),      // other user, ignored
	}

	s, err := UserProfit("alice", positions, markets(), d(1000), d(870))
	require.NoError(t, err)
	assert.True(t, d(25).Equal(s.Realized), "realized %s", s.Realized)
	assert.True(t, d(50).Equal(s.Unrealized), "unrealized %s", s.Unrealized)
	assert.True(t, d(75).Equal(s.Total), "total %s", s.Total)
	assert.True(t, d(7.5).Equal(s.PercentChange), "pc %s", s.PercentChange)
	assert.True(t, d(870).Equal(s.Balance))
}

func TestUserProfit_ZeroBaselineReportsZeroPercent(t *testing.T) {
	s, err := UserProfit("alice", []model.Position{pos("alice", "open", model.SideYes, 200, 100, 0)}, markets(), decimal.Zero, d(10))
	require.NoError(t, err)
	assert.True(t, s.PercentChange.IsZero())
	assert.True(t, d(50).Equal(s.Total))
}

func TestUserProfit_UnknownMarket(t *testing.T) {
	_, err := UserProfit("alice", []model.Position{pos("alice", "gone", model.SideYes, 1, 1, 0)}, markets(), d(100), d(100))
	assert.ErrorIs(t, err, ErrUnknownMarket)
}

func TestRank_Ordering(t *testing.T) {
	in := []model.UserProfitSummary{
		{UserID: "A", PercentChange: d(10), Total: d(50)},
		{UserID: "C", PercentChange: d(5), Total: d(1000)},
		{UserID: "B", PercentChange: d(10), Total: d(80)},
	}
	got := Rank(in)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"B", "A", "C"}, []string{got[0].UserID, got[1].UserID, got[2].UserID})
	assert.Equal(t, "A", in[0].UserID, "input must not be reordered")
}

func TestRank_TiesBrokenByUserID(t *testing.T) {
	got := Rank([]model.UserProfitSummary{
		{UserID: "zed", PercentChange: d(1), Total: d(1)},
		{UserID: "amy", PercentChange: d(1), Total: d(1)},
	})
	assert.Equal(t, "amy", got[0].UserID)
}

func TestLeaderboard(t *testing.T) {
	accounts := []model.Account{
		{UserID: "alice", StartingBalance: d(1000), Balance: d(900)},
		{UserID: "bob", StartingBalance: d(100), Balance: d(90)},
		{UserID: "carol", StartingBalance: d(100), Balance: d(100)},
	}
	positions := []model.Position{
		pos("alice", "open", model.SideYes, 200, 100, 0), // +50 on 1000 = 5%
		pos("bob", "open", model.SideYes, 20, 10, 0),     // +5 on 100 = 5%
	}
	board, err := Leaderboard(accounts, positions, markets())
	require.NoError(t, err)
	require.Len(t, board, 3)
	// Equal percent change: alice wins on absolute total.
	assert.Equal(t, "alice", board[0].UserID)
	assert.Equal(t, "bob", board[1].UserID)
	assert.Equal(t, "carol", board[2].UserID)
	assert.True(t, board[2].Total.IsZero())
}

func TestResolve(t *testing.T) {
	positions := []model.Position{
		pos("bob", "m1", model.SideYes, 50, 25, 0),
		pos("alice", "m1", model.SideYes, 200, 100, 0),
		pos("alice", "m1", model.SideNo, 80, 40, 0),
		pos("carol", "m1", model.SideYes, 0, 0, 3),
	}
	payouts := Resolve(positions, model.SideYes)
	require.Len(t, payouts, 2)
	assert.Equal(t, "alice", payouts[0].UserID)
	assert.True(t, d(200).Equal(payouts[0].Amount))
	assert.Equal(t, "bob", payouts[1].UserID)
	assert.True(t, d(50).Equal(payouts[1].Amount))
}
