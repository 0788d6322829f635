package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/oddsboard/market-engine/internal/ledger"
	"github.com/oddsboard/market-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu       sync.RWMutex
	markets  map[string]*model.Market
	accounts map[string]*model.Account
	bets     []model.Bet
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		markets:  make(map[string]*model.Market),
		accounts: make(map[string]*model.Account),
	}
}

func (s *MemoryStore) CreateMarket(_ context.Context, m *model.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.markets[m.ID]; ok {
		return fmt.Errorf("market %s: %w", m.ID, ErrConflict)
	}

	// Store a copy to avoid external mutation.
	cp := cloneMarket(*m)
	s.markets[m.ID] = &cp
	return nil
}

func (s *MemoryStore) GetMarket(_ context.Context, id string) (*model.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.markets[id]
	if !ok {
		return nil, fmt.Errorf("market %s: %w", id, ErrNotFound)
	}
	cp := cloneMarket(*m)
	return &cp, nil
}

func (s *MemoryStore) ListMarkets(_ context.Context) ([]model.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	markets := make([]model.Market, 0, len(s.markets))
	for _, m := range s.markets {
		markets = append(markets, cloneMarket(*m))
	}
	sortNewestFirst(markets)
	return markets, nil
}

func (s *MemoryStore) ResolveMarket(_ context.Context, id string, outcome model.Side, payouts map[string]decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.markets[id]
	if !ok {
		return fmt.Errorf("market %s: %w", id, ErrNotFound)
	}
	for user := range payouts {
		if _, ok := s.accounts[user]; !ok {
			return fmt.Errorf("account %s: %w", user, ErrNotFound)
		}
	}

	m.Status = model.StatusResolved
	o := outcome
	m.Outcome = &o
	for user, amt := range payouts {
		a := s.accounts[user]
		a.Balance = a.Balance.Add(amt)
	}
	return nil
}

func (s *MemoryStore) RecordBet(_ context.Context, bet *model.Bet, state MarketState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.markets[bet.MarketID]
	if !ok {
		return fmt.Errorf("market %s: %w", bet.MarketID, ErrNotFound)
	}
	a, ok := s.accounts[bet.UserID]
	if !ok {
		return fmt.Errorf("account %s: %w", bet.UserID, ErrNotFound)
	}

	s.bets = append(s.bets, *bet)
	m.Probability = state.Probability
	m.Volume = state.Volume
	m.YesVolume = state.YesVolume
	m.NoVolume = state.NoVolume
	a.Balance = a.Balance.Sub(bet.Amount)
	return nil
}

func (s *MemoryStore) GetBetsByMarket(_ context.Context, marketID string) ([]model.Bet, error) {
	return s.filterBets(func(b model.Bet) bool { return b.MarketID == marketID }), nil
}

func (s *MemoryStore) GetBetsByUser(_ context.Context, userID string) ([]model.Bet, error) {
	return s.filterBets(func(b model.Bet) bool { return b.UserID == userID }), nil
}

func (s *MemoryStore) ListBets(_ context.Context) ([]model.Bet, error) {
	return s.filterBets(func(model.Bet) bool { return true }), nil
}

func (s *MemoryStore) filterBets(keep func(model.Bet) bool) []model.Bet {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Bet
	for _, b := range s.bets {
		if keep(b) {
			result = append(result, b)
		}
	}
	return ledger.Sort(result)
}

func (s *MemoryStore) CreateAccount(_ context.Context, a *model.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[a.UserID]; ok {
		return fmt.Errorf("account %s: %w", a.UserID, ErrConflict)
	}
	cp := *a
	s.accounts[a.UserID] = &cp
	return nil
}

func (s *MemoryStore) GetAccount(_ context.Context, userID string) (*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[userID]
	if !ok {
		return nil, fmt.Errorf("account %s: %w", userID, ErrNotFound)
	}
	cp := *a
	return &cp, nil
}

func (s *MemoryStore) ListAccounts(_ context.Context) ([]model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	accounts := make([]model.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		accounts = append(accounts, *a)
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].UserID < accounts[j].UserID })
	return accounts, nil
}

// cloneMarket copies pointer fields so callers cannot alias stored state.
func cloneMarket(m model.Market) model.Market {
	if m.EndDate != nil {
		t := *m.EndDate
		m.EndDate = &t
	}
	if m.Outcome != nil {
		o := *m.Outcome
		m.Outcome = &o
	}
	return m
}
