package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/oddsboard/market-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and invalidate the cache; reads
// check Redis first then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) CreateMarket(ctx context.Context, m *model.Market) error {
	if err := s.primary.CreateMarket(ctx, m); err != nil {
		return err
	}
	s.cache(ctx, marketKey(m.ID), m)
	return nil
}

func (s *CachedStore) ResolveMarket(ctx context.Context, id string, outcome model.Side, payouts map[string]decimal.Decimal) error {
	if err := s.primary.ResolveMarket(ctx, id, outcome, payouts); err != nil {
		return err
	}
	keys := []string{marketKey(id)}
	for user := range payouts {
		keys = append(keys, accountKey(user))
	}
	s.rdb.Del(ctx, keys...)
	return nil
}

func (s *CachedStore) RecordBet(ctx context.Context, bet *model.Bet, state MarketState) error {
	if err := s.primary.RecordBet(ctx, bet, state); err != nil {
		return err
	}
	// Invalidate; next read will re-populate.
	s.rdb.Del(ctx, marketKey(bet.MarketID), marketBetsKey(bet.MarketID),
		userBetsKey(bet.UserID), accountKey(bet.UserID))
	return nil
}

func (s *CachedStore) CreateAccount(ctx context.Context, a *model.Account) error {
	if err := s.primary.CreateAccount(ctx, a); err != nil {
		return err
	}
	s.cache(ctx, accountKey(a.UserID), a)
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetMarket(ctx context.Context, id string) (*model.Market, error) {
	var m model.Market
	if s.lookup(ctx, marketKey(id), &m) {
		return &m, nil
	}

	// Cache miss: read from primary.
	mp, err := s.primary.GetMarket(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache(ctx, marketKey(id), mp)
	return mp, nil
}

func (s *CachedStore) GetAccount(ctx context.Context, userID string) (*model.Account, error) {
	var a model.Account
	if s.lookup(ctx, accountKey(userID), &a) {
		return &a, nil
	}

	ap, err := s.primary.GetAccount(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.cache(ctx, accountKey(userID), ap)
	return ap, nil
}

func (s *CachedStore) GetBetsByMarket(ctx context.Context, marketID string) ([]model.Bet, error) {
	return s.cachedBets(ctx, marketBetsKey(marketID), func() ([]model.Bet, error) {
		return s.primary.GetBetsByMarket(ctx, marketID)
	})
}

func (s *CachedStore) GetBetsByUser(ctx context.Context, userID string) ([]model.Bet, error) {
	return s.cachedBets(ctx, userBetsKey(userID), func() ([]model.Bet, error) {
		return s.primary.GetBetsByUser(ctx, userID)
	})
}

func (s *CachedStore) cachedBets(ctx context.Context, key string, load func() ([]model.Bet, error)) ([]model.Bet, error) {
	var bets []model.Bet
	if s.lookup(ctx, key, &bets) {
		return bets, nil
	}

	bets, err := load()
	if err != nil {
		return nil, err
	}
	s.cache(ctx, key, bets)
	return bets, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListMarkets(ctx context.Context) ([]model.Market, error) {
	return s.primary.ListMarkets(ctx)
}

func (s *CachedStore) ListBets(ctx context.Context) ([]model.Bet, error) {
	return s.primary.ListBets(ctx)
}

func (s *CachedStore) ListAccounts(ctx context.Context) ([]model.Account, error) {
	return s.primary.ListAccounts(ctx)
}

// --- Cache helpers ---

func (s *CachedStore) lookup(ctx context.Context, key string, dst any) bool {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(data, dst) == nil
}

func (s *CachedStore) cache(ctx context.Context, key string, v any) {
	if data, err := json.Marshal(v); err == nil {
		s.rdb.Set(ctx, key, data, s.ttl)
	}
}

func marketKey(id string) string     { return fmt.Sprintf("market:%s", id) }
func marketBetsKey(id string) string { return fmt.Sprintf("market:%s:bets", id) }
func userBetsKey(uid string) string  { return fmt.Sprintf("user:%s:bets", uid) }
func accountKey(uid string) string   { return fmt.Sprintf("account:%s", uid) }
