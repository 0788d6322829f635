// Package store defines the persistence interface for the market engine.
// Implementations include PostgreSQL (source of truth), SQLite (single
// node), Redis (read-through cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/oddsboard/market-engine/internal/model"
)

var (
	// ErrNotFound is returned when a market or account does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrConflict is returned when creating a record whose key exists.
	ErrConflict = errors.New("store: already exists")
)

// MarketState is the mutable part of a market after a stake.
type MarketState struct {
	Probability decimal.Decimal
	Volume      decimal.Decimal
	YesVolume   decimal.Decimal
	NoVolume    decimal.Decimal
}

// Store is the persistence interface. Bets are append-only: there is no
// update or delete. Positions are never stored; callers fold bets.
type Store interface {
	// --- Markets ---

	// CreateMarket persists a new market.
	CreateMarket(ctx context.Context, market *model.Market) error

	// GetMarket retrieves a market by its ID.
	GetMarket(ctx context.Context, id string) (*model.Market, error)

	// ListMarkets returns all markets, newest first.
	ListMarkets(ctx context.Context) ([]model.Market, error)

	// ResolveMarket marks the market resolved and credits each user in
	// payouts, atomically.
	ResolveMarket(ctx context.Context, id string, outcome model.Side, payouts map[string]decimal.Decimal) error

	// --- Immutable bet ledger ---

	// RecordBet appends bet, moves its market to state and debits the
	// user's balance by bet.Amount (sells credit), atomically.
	RecordBet(ctx context.Context, bet *model.Bet, state MarketState) error

	// GetBetsByMarket returns all bets for a market in execution order.
	GetBetsByMarket(ctx context.Context, marketID string) ([]model.Bet, error)

	// GetBetsByUser returns all bets for a user in execution order.
	GetBetsByUser(ctx context.Context, userID string) ([]model.Bet, error)

	// ListBets returns every bet in execution order.
	ListBets(ctx context.Context) ([]model.Bet, error)

	// --- Accounts ---

	// CreateAccount persists a new account.
	CreateAccount(ctx context.Context, account *model.Account) error

	// GetAccount retrieves an account by user ID.
	GetAccount(ctx context.Context, userID string) (*model.Account, error)

	// ListAccounts returns all accounts ordered by user ID.
	ListAccounts(ctx context.Context) ([]model.Account, error)
}

// sortNewestFirst orders markets by creation time, newest first, ties
// broken by ID.
func sortNewestFirst(markets []model.Market) {
	sort.SliceStable(markets, func(i, j int) bool {
		if !markets[i].CreatedAt.Equal(markets[j].CreatedAt) {
			return markets[i].CreatedAt.After(markets[j].CreatedAt)
		}
		return markets[i].ID < markets[j].ID
	})
}
