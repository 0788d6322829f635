package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/oddsboard/market-engine/internal/model"
)

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*PostgresStore)(nil)
	_ Store = (*CachedStore)(nil)
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestMemoryStore(t *testing.T) {
	testStore(t, NewMemoryStore())
}

func TestSQLiteStore(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "oddsboard.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()
	testStore(t, s)
}

func testStore(t *testing.T, s Store) {
	ctx := context.Background()
	end := t0.Add(48 * time.Hour)

	m := &model.Market{
		ID: "m1", Name: "Rain?", Probability: d(0.5),
		EndDate: &end, Status: model.StatusOpen, CreatedAt: t0,
	}
	if err := s.CreateMarket(ctx, m); err != nil {
		t.Fatalf("create market: %v", err)
	}
	if err := s.CreateMarket(ctx, m); !errors.Is(err, ErrConflict) {
		t.Errorf("expected ErrConflict on duplicate market, got %v", err)
	}
	if err := s.CreateMarket(ctx, &model.Market{ID: "m2", Name: "Snow?", Probability: d(0.2), OpeningProbability: d(0.2),
		Status: model.StatusOpen, CreatedAt: t0.Add(time.Hour)}); err != nil {
		t.Fatalf("create market m2: %v", err)
	}

	got, err := s.GetMarket(ctx, "m1")
	if err != nil {
		t.Fatalf("get market: %v", err)
	}
	if got.Name != "Rain?" || !got.Probability.Equal(d(0.5)) {
		t.Errorf("unexpected market: %+v", got)
	}
	if got.EndDate == nil || !got.EndDate.Equal(end) {
		t.Errorf("end date not preserved: %v", got.EndDate)
	}
	if _, err := s.GetMarket(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	markets, err := s.ListMarkets(ctx)
	if err != nil {
		t.Fatalf("list markets: %v", err)
	}
	if len(markets) != 2 || markets[0].ID != "m2" {
		t.Errorf("expected newest first, got %v", markets)
	}
	if !markets[0].Opening().Equal(d(0.2)) {
		t.Errorf("opening probability not preserved: %s", markets[0].OpeningProbability)
	}
	if !markets[1].Opening().Equal(d(0.5)) {
		t.Errorf("unset opening probability should read 0.5, got %s", markets[1].Opening())
	}

	for _, user := range []string{"bob", "alice"} {
		a := &model.Account{UserID: user, Balance: d(1000), StartingBalance: d(1000), CreatedAt: t0}
		if err := s.CreateAccount(ctx, a); err != nil {
			t.Fatalf("create account %s: %v", user, err)
		}
	}
	if err := s.CreateAccount(ctx, &model.Account{UserID: "bob", CreatedAt: t0}); !errors.Is(err, ErrConflict) {
		t.Errorf("expected ErrConflict on duplicate account, got %v", err)
	}

	buy := &model.Bet{ID: "b1", MarketID: "m1", UserID: "alice", Side: model.SideYes,
		Amount: d(100), Probability: d(0.5), CreatedAt: t0.Add(time.Minute)}
	state := MarketState{Probability: d(0.67), Volume: d(100), YesVolume: d(100), NoVolume: decimal.Zero}
	if err := s.RecordBet(ctx, buy, state); err != nil {
		t.Fatalf("record buy: %v", err)
	}
	sell := &model.Bet{ID: "b2", MarketID: "m1", UserID: "alice", Side: model.SideYes,
		Amount: d(-40), Probability: d(0.67), CreatedAt: t0.Add(2 * time.Minute)}
	state = MarketState{Probability: d(0.6), Volume: d(140), YesVolume: d(60), NoVolume: decimal.Zero}
	if err := s.RecordBet(ctx, sell, state); err != nil {
		t.Fatalf("record sell: %v", err)
	}

	got, _ = s.GetMarket(ctx, "m1")
	if !got.Probability.Equal(d(0.6)) || !got.Volume.Equal(d(140)) || !got.YesVolume.Equal(d(60)) {
		t.Errorf("market state not updated: %+v", got)
	}

	acct, err := s.GetAccount(ctx, "alice")
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if !acct.Balance.Equal(d(940)) {
		t.Errorf("expected balance 940 after buy 100 / sell 40, got %s", acct.Balance)
	}

	bets, err := s.GetBetsByMarket(ctx, "m1")
	if err != nil {
		t.Fatalf("bets by market: %v", err)
	}
	if len(bets) != 2 || bets[0].ID != "b1" || !bets[1].Amount.Equal(d(-40)) {
		t.Errorf("unexpected bets: %+v", bets)
	}
	if !bets[0].CreatedAt.Equal(buy.CreatedAt) {
		t.Errorf("created_at not preserved: %v", bets[0].CreatedAt)
	}
	if bets, _ := s.GetBetsByUser(ctx, "bob"); len(bets) != 0 {
		t.Errorf("bob has no bets, got %d", len(bets))
	}
	if all, _ := s.ListBets(ctx); len(all) != 2 {
		t.Errorf("expected 2 bets, got %d", len(all))
	}

	orphan := &model.Bet{ID: "b3", MarketID: "m1", UserID: "ghost", Side: model.SideNo,
		Amount: d(5), Probability: d(0.6), CreatedAt: t0}
	if err := s.RecordBet(ctx, orphan, state); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown account, got %v", err)
	}
	if all, _ := s.ListBets(ctx); len(all) != 2 {
		t.Errorf("failed bet must not be recorded, got %d bets", len(all))
	}

	if err := s.ResolveMarket(ctx, "m1", model.SideYes, map[string]decimal.Decimal{"alice": d(120)}); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	got, _ = s.GetMarket(ctx, "m1")
	if got.Status != model.StatusResolved || got.Outcome == nil || *got.Outcome != model.SideYes {
		t.Errorf("market not resolved: %+v", got)
	}
	acct, _ = s.GetAccount(ctx, "alice")
	if !acct.Balance.Equal(d(1060)) {
		t.Errorf("expected balance 1060 after payout, got %s", acct.Balance)
	}

	accounts, err := s.ListAccounts(ctx)
	if err != nil {
		t.Fatalf("list accounts: %v", err)
	}
	if len(accounts) != 2 || accounts[0].UserID != "alice" {
		t.Errorf("expected accounts ordered by user, got %v", accounts)
	}
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_ = s.CreateMarket(ctx, &model.Market{ID: "m1", Name: "x", Probability: d(0.5), Status: model.StatusOpen})

	m, _ := s.GetMarket(ctx, "m1")
	m.Probability = d(0.9)

	again, _ := s.GetMarket(ctx, "m1")
	if !again.Probability.Equal(d(0.5)) {
		t.Errorf("stored market was mutated through returned pointer")
	}
}

func TestSQLiteStore_ListMarketsFractionalSeconds(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "oddsboard.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	created := map[string]time.Time{
		"whole":    t0.Add(time.Second),
		"fraction": t0.Add(1500 * time.Millisecond),
		"early":    t0.Add(250 * time.Millisecond),
		"micro":    t0.Add(time.Second + time.Microsecond),
	}
	for _, id := range []string{"whole", "fraction", "early", "micro"} {
		m := &model.Market{ID: id, Name: id, Probability: d(0.5), Status: model.StatusOpen, CreatedAt: created[id]}
		if err := s.CreateMarket(ctx, m); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}

	markets, err := s.ListMarkets(ctx)
	if err != nil {
		t.Fatalf("list markets: %v", err)
	}
	want := []string{"fraction", "micro", "whole", "early"}
	if len(markets) != len(want) {
		t.Fatalf("expected %d markets, got %d", len(want), len(markets))
	}
	for i, id := range want {
		if markets[i].ID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, markets[i].ID)
		}
	}
}

func TestSQLiteStore_CorruptDecimalColumns(t *testing.T) {
	for _, column := range []string{"volume", "yes_volume", "no_volume", "opening_probability"} {
		t.Run(column, func(t *testing.T) {
			s, err := OpenSQLite(filepath.Join(t.TempDir(), "oddsboard.db"))
			if err != nil {
				t.Fatalf("open: %v", err)
			}
			defer s.Close()
			ctx := context.Background()

			m := &model.Market{ID: "m1", Name: "Rain?", Probability: d(0.5), Volume: d(10),
				YesVolume: d(10), Status: model.StatusOpen, CreatedAt: t0}
			if err := s.CreateMarket(ctx, m); err != nil {
				t.Fatalf("create market: %v", err)
			}
			if _, err := s.db.ExecContext(ctx, `UPDATE markets SET `+column+` = 'ten' WHERE id = 'm1'`); err != nil {
				t.Fatalf("corrupt %s: %v", column, err)
			}

			if _, err := s.GetMarket(ctx, "m1"); err == nil {
				t.Errorf("expected error reading corrupt %s", column)
			}
			if _, err := s.ListMarkets(ctx); err == nil {
				t.Errorf("expected error listing with corrupt %s", column)
			}
		})
	}
}
