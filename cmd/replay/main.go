package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/oddsboard/market-engine/internal/adapter"
	"github.com/oddsboard/market-engine/internal/config"
	"github.com/oddsboard/market-engine/internal/ledger"
	"github.com/oddsboard/market-engine/internal/model"
	"github.com/oddsboard/market-engine/internal/settlement"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})))

	if len(os.Args) < 3 {
		usage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	export := load(os.Args[2])
	snap, err := replay(export, cfg.StartingBalance)
	if err != nil {
		slog.Error("replay failed", "err", err)
		os.Exit(1)
	}

	switch cmd := os.Args[1]; cmd {
	case "positions":
		printPositions(snap.positions)
	case "leaderboard":
		printLeaderboard(snap.board)
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(map[string]any{
			"positions":   snap.positions,
			"leaderboard": snap.board,
		})
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `Usage: replay <command> <export.json>

Commands:
  positions     Fold bets and show every position marked to market
  leaderboard   Rank users by percent change
  json          Print positions and leaderboard as JSON

Every user starts with STARTING_BALANCE (default 1000).`)
}

func load(path string) adapter.Export {
	f, err := os.Open(path)
	if err != nil {
		slog.Error("opening export", "err", err)
		os.Exit(1)
	}
	defer f.Close()

	export, err := adapter.DecodeExport(f)
	if err != nil {
		slog.Error("decoding export", "path", path, "err", err)
		os.Exit(1)
	}
	slog.Info("loaded export", "markets", len(export.Markets), "bets", len(export.Bets))
	return export
}

type snapshot struct {
	positions []model.Position
	board     []model.UserProfitSummary
}

// replay folds the export into marked positions and a leaderboard. Cash
// balances are rebuilt from the bet stream: stakes are debited, sells
// credited, and winning units in resolved markets pay 1.
func replay(export adapter.Export, starting decimal.Decimal) (snapshot, error) {
	markets := make(map[string]model.Market, len(export.Markets))
	for _, m := range export.Markets {
		markets[m.ID] = m
	}

	folded, err := ledger.Fold(export.Bets)
	if err != nil {
		return snapshot{}, err
	}
	positions := ledger.List(folded)

	balances := make(map[string]decimal.Decimal)
	for _, b := range export.Bets {
		if _, ok := balances[b.UserID]; !ok {
			balances[b.UserID] = starting
		}
		balances[b.UserID] = balances[b.UserID].Sub(b.Amount)
	}

	byMarket := make(map[string][]model.Position)
	for i, p := range positions {
		m, ok := markets[p.MarketID]
		if !ok {
			return snapshot{}, fmt.Errorf("%w: %s", settlement.ErrUnknownMarket, p.MarketID)
		}
		if positions[i], err = ledger.Mark(p, m); err != nil {
			return snapshot{}, err
		}
		byMarket[p.MarketID] = append(byMarket[p.MarketID], p)
	}
	for id, list := range byMarket {
		m := markets[id]
		if m.Status != model.StatusResolved || m.Outcome == nil {
			continue
		}
		for _, pay := range settlement.Resolve(list, *m.Outcome) {
			balances[pay.UserID] = balances[pay.UserID].Add(pay.Amount)
		}
	}

	accounts := make([]model.Account, 0, len(balances))
	for user, bal := range balances {
		accounts = append(accounts, model.Account{UserID: user, Balance: bal, StartingBalance: starting})
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].UserID < accounts[j].UserID })

	board, err := settlement.Leaderboard(accounts, positions, markets)
	if err != nil {
		return snapshot{}, err
	}
	return snapshot{positions: positions, board: board}, nil
}

func printPositions(positions []model.Position) {
	fmt.Printf("%-16s %-24s %4s %12s %10s %12s %12s %12s\n",
		"User", "Market", "Side", "Units", "Price", "Value", "Realized", "Unrealized")
	for _, p := range positions {
		fmt.Printf("%-16s %-24s %4s %12s %10s %12s %12s %12s\n",
			p.UserID, p.MarketID, p.Side,
			p.NetUnits.StringFixed(4),
			p.CurrentPrice.StringFixed(2),
			p.CurrentValue.StringFixed(2),
			p.RealizedGain.StringFixed(2),
			p.UnrealizedGain.StringFixed(2),
		)
	}
}

func printLeaderboard(board []model.UserProfitSummary) {
	fmt.Printf("%4s %-16s %12s %12s %12s %12s %8s\n",
		"#", "User", "Balance", "Realized", "Unrealized", "Total", "Change")
	for i, s := range board {
		fmt.Printf("%4d %-16s %12s %12s %12s %12s %7s%%\n",
			i+1, s.UserID,
			s.Balance.StringFixed(2),
			s.Realized.StringFixed(2),
			s.Unrealized.StringFixed(2),
			s.Total.StringFixed(2),
			s.PercentChange.StringFixed(2),
		)
	}
}
