// Package trade provides the business logic and HTTP handlers for
// creating markets, placing and selling stakes, resolving markets, and
// querying holdings, profit and the leaderboard.
//
// Monetary values are shopspring/decimal throughout.
package trade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/oddsboard/market-engine/internal/adapter"
	"github.com/oddsboard/market-engine/internal/ledger"
	"github.com/oddsboard/market-engine/internal/limits"
	"github.com/oddsboard/market-engine/internal/market"
	"github.com/oddsboard/market-engine/internal/metrics"
	"github.com/oddsboard/market-engine/internal/model"
	"github.com/oddsboard/market-engine/internal/odds"
	"github.com/oddsboard/market-engine/internal/settlement"
	"github.com/oddsboard/market-engine/internal/store"
)

// ErrInvalidRequest is returned for malformed input that no engine
// package validates (missing user, bad outcome).
var ErrInvalidRequest = errors.New("trade: invalid request")

// DefaultStartingBalance is credited to new accounts when none is given.
var DefaultStartingBalance = decimal.NewFromInt(1000)

// Options configures a Service. Zero values select defaults.
type Options struct {
	StartingBalance decimal.Decimal
	Limiter         *limits.PositionLimiter // nil disables exposure limits
	Hub             *WSHub                  // nil disables broadcasts
	Now             func() time.Time
}

// Service handles market operations. Uses a mutex for serialized stake
// execution (single-instance). For horizontal scaling, replace with
// distributed locking or database-level optimistic concurrency.
type Service struct {
	store           store.Store
	engine          *odds.Engine
	limiter         *limits.PositionLimiter
	startingBalance decimal.Decimal
	now             func() time.Time
	wsHub           *WSHub

	mu     sync.Mutex
	lastTS time.Time
}

// NewService creates a new trade service.
func NewService(st store.Store, engine *odds.Engine, opts Options) *Service {
	s := &Service{
		store:           st,
		engine:          engine,
		limiter:         opts.Limiter,
		startingBalance: opts.StartingBalance,
		now:             opts.Now,
		wsHub:           opts.Hub,
	}
	if !s.startingBalance.IsPositive() {
		s.startingBalance = DefaultStartingBalance
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// BetResult is returned after a stake (buy or sell) executes.
type BetResult struct {
	Bet            model.Bet       `json:"bet"`
	Quote          *odds.Quote     `json:"quote,omitempty"`
	NewProbability decimal.Decimal `json:"new_probability"`
	Position       model.Position  `json:"position"`
	Balance        decimal.Decimal `json:"balance"`
}

// ResolveResult is returned after a market resolves.
type ResolveResult struct {
	Market  model.Market        `json:"market"`
	Payouts []settlement.Payout `json:"payouts"`
}

// --- Markets ---

// CreateMarket validates and persists a new market. A missing ID is
// assigned a UUID.
func (s *Service) CreateMarket(ctx context.Context, p market.Params) (*model.Market, error) {
	m, err := market.New(p, s.now())
	if err != nil {
		return nil, err
	}
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if err := s.store.CreateMarket(ctx, &m); err != nil {
		return nil, err
	}
	metrics.ActiveMarkets.Inc()

	slog.Info("market created",
		"id", m.ID,
		"name", m.Name,
		"probability", m.Probability.String(),
	)
	return &m, nil
}

// GetMarket returns one market.
func (s *Service) GetMarket(ctx context.Context, id string) (*model.Market, error) {
	return s.store.GetMarket(ctx, id)
}

// ListMarkets returns all markets, newest first.
func (s *Service) ListMarkets(ctx context.Context) ([]model.Market, error) {
	return s.store.ListMarkets(ctx)
}

// MarketBets returns the bet history of a market in execution order.
func (s *Service) MarketBets(ctx context.Context, id string) ([]model.Bet, error) {
	if _, err := s.store.GetMarket(ctx, id); err != nil {
		return nil, err
	}
	return s.store.GetBetsByMarket(ctx, id)
}

// Quote previews the payout of a stake at the current probability.
func (s *Service) Quote(ctx context.Context, marketID string, side model.Side, amount decimal.Decimal) (odds.Quote, error) {
	m, err := s.store.GetMarket(ctx, marketID)
	if err != nil {
		return odds.Quote{}, err
	}
	return odds.NewQuote(*m, side, amount)
}

// --- Accounts ---

// CreateAccount opens an account. A nil balance uses the configured
// starting balance.
func (s *Service) CreateAccount(ctx context.Context, userID string, balance *decimal.Decimal) (*model.Account, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrInvalidRequest)
	}
	b := s.startingBalance
	if balance != nil {
		if balance.IsNegative() {
			return nil, fmt.Errorf("%w: balance must not be negative", ErrInvalidRequest)
		}
		b = *balance
	}
	a := &model.Account{
		UserID:          userID,
		Balance:         b,
		StartingBalance: b,
		CreatedAt:       s.now().UTC(),
	}
	if err := s.store.CreateAccount(ctx, a); err != nil {
		return nil, err
	}
	slog.Info("account created", "user", userID, "balance", b.String())
	return a, nil
}

// GetAccount returns one account.
func (s *Service) GetAccount(ctx context.Context, userID string) (*model.Account, error) {
	return s.store.GetAccount(ctx, userID)
}

// --- Stakes ---

// PlaceBet buys req.Amount of req.Side at the market's current
// probability, then moves the probability with the pricing strategy.
func (s *Service) PlaceBet(ctx context.Context, marketID string, req adapter.BetRequest) (*BetResult, error) {
	start := time.Now()
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: got %s", odds.ErrInvalidAmount, req.Amount)
	}
	if req.UserID == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrInvalidRequest)
	}

	// Serialize stake execution.
	s.mu.Lock()
	defer s.mu.Unlock()

	m, acct, err := s.loadTradable(ctx, marketID, req.UserID)
	if err != nil {
		return nil, err
	}

	if err := limits.CheckBalance(acct.Balance, req.Amount); err != nil {
		metrics.StakeRejections.WithLabelValues("balance").Inc()
		return nil, err
	}

	userBets, err := s.store.GetBetsByUser(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("load bets: %w", err)
	}
	if s.limiter != nil {
		positions, err := ledger.Fold(userBets)
		if err != nil {
			return nil, fmt.Errorf("fold bets: %w", err)
		}
		markets, err := s.marketIndex(ctx)
		if err != nil {
			return nil, err
		}
		exposure := ledger.Exposure(ledger.List(positions), markets)
		if err := s.limiter.CheckLimit(m.ID, req.Amount, exposure); err != nil {
			metrics.StakeRejections.WithLabelValues("limit").Inc()
			return nil, err
		}
	}

	quote, err := odds.NewQuote(*m, req.Side, req.Amount)
	if err != nil {
		return nil, err
	}
	next, err := s.engine.ApplyStake(*m, req.Side, req.Amount)
	if err != nil {
		return nil, err
	}

	bet := s.newBet(m, req.UserID, req.Side, req.Amount)
	state := store.MarketState{
		Probability: next,
		Volume:      m.Volume.Add(req.Amount),
		YesVolume:   m.YesVolume,
		NoVolume:    m.NoVolume,
	}
	if req.Side == model.SideYes {
		state.YesVolume = state.YesVolume.Add(req.Amount)
	} else {
		state.NoVolume = state.NoVolume.Add(req.Amount)
	}

	res, err := s.execute(ctx, m, acct, bet, state, userBets)
	if err != nil {
		return nil, err
	}
	res.Quote = &quote

	metrics.StakeLatency.WithLabelValues("buy").Observe(time.Since(start).Seconds())
	slog.Info("bet placed",
		"bet_id", bet.ID,
		"user", bet.UserID,
		"market", bet.MarketID,
		"side", bet.Side,
		"amount", bet.Amount.String(),
		"probability", bet.Probability.String(),
		"new_probability", next.String(),
	)
	return res, nil
}

// Sell closes req.Amount of value from the user's position at the
// current side price. Selling more than the position is worth (beyond
// ledger.SellTolerance) fails with ledger.ErrOverSell; a sell inside the
// tolerance closes the position and pays its value.
func (s *Service) Sell(ctx context.Context, marketID string, req adapter.BetRequest) (*BetResult, error) {
	start := time.Now()
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: got %s", odds.ErrInvalidAmount, req.Amount)
	}
	if req.UserID == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrInvalidRequest)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, acct, err := s.loadTradable(ctx, marketID, req.UserID)
	if err != nil {
		return nil, err
	}

	userBets, err := s.store.GetBetsByUser(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("load bets: %w", err)
	}
	key := model.PositionKey{UserID: req.UserID, MarketID: m.ID, Side: req.Side}
	pos, err := ledger.Position(userBets, key)
	if err != nil {
		return nil, fmt.Errorf("fold bets: %w", err)
	}
	price, err := odds.SidePrice(req.Side, m.Probability)
	if err != nil {
		return nil, err
	}
	if err := ledger.CheckSell(pos, req.Amount, price); err != nil {
		if errors.Is(err, ledger.ErrOverSell) {
			metrics.StakeRejections.WithLabelValues("oversell").Inc()
		}
		return nil, err
	}

	proceeds := ledger.SellProceeds(pos, req.Amount, price)
	signed := proceeds.Neg()
	next, err := s.engine.ApplyStake(*m, req.Side, signed)
	if err != nil {
		return nil, err
	}

	bet := s.newBet(m, req.UserID, req.Side, signed)
	state := store.MarketState{
		Probability: next,
		Volume:      m.Volume.Add(proceeds),
		YesVolume:   m.YesVolume,
		NoVolume:    m.NoVolume,
	}
	if req.Side == model.SideYes {
		state.YesVolume = decimal.Max(decimal.Zero, state.YesVolume.Sub(proceeds))
	} else {
		state.NoVolume = decimal.Max(decimal.Zero, state.NoVolume.Sub(proceeds))
	}

	res, err := s.execute(ctx, m, acct, bet, state, userBets)
	if err != nil {
		return nil, err
	}

	metrics.StakeLatency.WithLabelValues("sell").Observe(time.Since(start).Seconds())
	slog.Info("position sold",
		"bet_id", bet.ID,
		"user", bet.UserID,
		"market", bet.MarketID,
		"side", bet.Side,
		"amount", proceeds.String(),
		"price", price.String(),
		"realized_gain", res.Position.RealizedGain.String(),
		"new_probability", next.String(),
	)
	return res, nil
}

// loadTradable fetches the market and account for a stake and checks the
// market is open.
func (s *Service) loadTradable(ctx context.Context, marketID, userID string) (*model.Market, *model.Account, error) {
	m, err := s.store.GetMarket(ctx, marketID)
	if err != nil {
		return nil, nil, err
	}
	if err := market.CheckTradable(*m, s.now()); err != nil {
		metrics.StakeRejections.WithLabelValues("closed").Inc()
		return nil, nil, err
	}
	acct, err := s.store.GetAccount(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	return m, acct, nil
}

// newBet stamps a bet at the market's pre-trade probability. Timestamps
// are strictly increasing at microsecond resolution so replays keep
// execution order after a round trip through PostgreSQL.
func (s *Service) newBet(m *model.Market, userID string, side model.Side, amount decimal.Decimal) *model.Bet {
	ts := s.now().UTC().Truncate(time.Microsecond)
	if !ts.After(s.lastTS) {
		ts = s.lastTS.Add(time.Microsecond)
	}
	s.lastTS = ts

	return &model.Bet{
		ID:          uuid.Must(uuid.NewV7()).String(),
		MarketID:    m.ID,
		UserID:      userID,
		Side:        side,
		Amount:      amount,
		Probability: m.Probability,
		CreatedAt:   ts,
	}
}

// execute folds the bet into the user's position, records it and
// broadcasts the new probability. Folding first rejects any bet the
// ledger could not replay.
func (s *Service) execute(ctx context.Context, m *model.Market, acct *model.Account, bet *model.Bet, state store.MarketState, userBets []model.Bet) (*BetResult, error) {
	key := model.PositionKey{UserID: bet.UserID, MarketID: bet.MarketID, Side: bet.Side}
	pos, err := ledger.Position(append(userBets, *bet), key)
	if err != nil {
		return nil, err
	}

	if err := s.store.RecordBet(ctx, bet, state); err != nil {
		return nil, fmt.Errorf("record bet: %w", err)
	}

	updated := *m
	updated.Probability = state.Probability
	updated.Volume = state.Volume
	updated.YesVolume = state.YesVolume
	updated.NoVolume = state.NoVolume
	if marked, err := ledger.Mark(pos, updated); err == nil {
		pos = marked
	}

	action := "buy"
	if bet.IsSell() {
		action = "sell"
	}
	metrics.BetsTotal.WithLabelValues(string(bet.Side), action).Inc()
	metrics.MarketVolume.WithLabelValues(bet.MarketID, string(bet.Side)).Add(bet.Amount.Abs().InexactFloat64())

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:        "odds_updated",
			MarketID:    bet.MarketID,
			Probability: state.Probability.String(),
			Volume:      state.Volume.String(),
			Side:        string(bet.Side),
			Amount:      bet.Amount.String(),
		})
	}

	return &BetResult{
		Bet:            *bet,
		NewProbability: state.Probability,
		Position:       pos,
		Balance:        acct.Balance.Sub(bet.Amount),
	}, nil
}

// Resolve settles a market: every open unit on the winning side pays 1.
func (s *Service) Resolve(ctx context.Context, marketID string, outcome model.Side) (*ResolveResult, error) {
	if outcome != model.SideYes && outcome != model.SideNo {
		return nil, fmt.Errorf("%w: outcome must be YES or NO", ErrInvalidRequest)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.store.GetMarket(ctx, marketID)
	if err != nil {
		return nil, err
	}
	if err := market.CheckResolvable(*m); err != nil {
		return nil, err
	}

	bets, err := s.store.GetBetsByMarket(ctx, marketID)
	if err != nil {
		return nil, fmt.Errorf("load bets: %w", err)
	}
	positions, err := ledger.Fold(bets)
	if err != nil {
		return nil, fmt.Errorf("fold bets: %w", err)
	}
	payouts := settlement.Resolve(ledger.List(positions), outcome)

	credits := make(map[string]decimal.Decimal, len(payouts))
	for _, p := range payouts {
		credits[p.UserID] = p.Amount
	}
	if err := s.store.ResolveMarket(ctx, marketID, outcome, credits); err != nil {
		return nil, fmt.Errorf("resolve market: %w", err)
	}

	m.Status = model.StatusResolved
	m.Outcome = &outcome
	metrics.ActiveMarkets.Dec()
	metrics.MarketsResolved.WithLabelValues(string(outcome)).Inc()

	slog.Info("market resolved",
		"market", marketID,
		"outcome", outcome,
		"winners", len(payouts),
	)
	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:     "market_resolved",
			MarketID: marketID,
			Outcome:  string(outcome),
		})
	}
	return &ResolveResult{Market: *m, Payouts: payouts}, nil
}

// --- Projections ---

// Holdings folds the user's bets and marks each position against its
// market. Closed positions are included so realized gains stay visible.
func (s *Service) Holdings(ctx context.Context, userID string) ([]model.Position, error) {
	if _, err := s.store.GetAccount(ctx, userID); err != nil {
		return nil, err
	}
	bets, err := s.store.GetBetsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load bets: %w", err)
	}
	positions, err := ledger.Fold(bets)
	if err != nil {
		return nil, fmt.Errorf("fold bets: %w", err)
	}

	markets, err := s.marketIndex(ctx)
	if err != nil {
		return nil, err
	}
	out := ledger.List(positions)
	for i, p := range out {
		m, ok := markets[p.MarketID]
		if !ok {
			return nil, fmt.Errorf("%w: %s", settlement.ErrUnknownMarket, p.MarketID)
		}
		if out[i], err = ledger.Mark(p, m); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Profit summarizes realized and unrealized gains for one user.
func (s *Service) Profit(ctx context.Context, userID string) (*model.UserProfitSummary, error) {
	acct, err := s.store.GetAccount(ctx, userID)
	if err != nil {
		return nil, err
	}
	bets, err := s.store.GetBetsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load bets: %w", err)
	}
	positions, err := ledger.Fold(bets)
	if err != nil {
		return nil, fmt.Errorf("fold bets: %w", err)
	}
	markets, err := s.marketIndex(ctx)
	if err != nil {
		return nil, err
	}
	summary, err := settlement.UserProfit(userID, ledger.List(positions), markets, acct.StartingBalance, acct.Balance)
	if err != nil {
		return nil, err
	}
	return &summary, nil
}

// Leaderboard ranks every account by percent change.
func (s *Service) Leaderboard(ctx context.Context) ([]model.UserProfitSummary, error) {
	accounts, err := s.store.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	bets, err := s.store.ListBets(ctx)
	if err != nil {
		return nil, fmt.Errorf("load bets: %w", err)
	}
	positions, err := ledger.Fold(bets)
	if err != nil {
		return nil, fmt.Errorf("fold bets: %w", err)
	}
	markets, err := s.marketIndex(ctx)
	if err != nil {
		return nil, err
	}
	return settlement.Leaderboard(accounts, ledger.List(positions), markets)
}

// Trending defaults and caps.
const (
	DefaultTrendingWindow = 24 * time.Hour
	DefaultTrendingLimit  = 10
	MaxTrendingLimit      = 100
)

// TrendingMarket is an open market with its trading activity inside the
// trending window.
type TrendingMarket struct {
	model.Market
	RecentVolume decimal.Decimal `json:"recent_volume"`
	RecentBets   int             `json:"recent_bets"`
}

// TrendingMarkets ranks open markets by the gross amount traded in the
// last window: buys and sells both count. Ties fall back to total volume,
// then the newest market, then ID. A non-positive window or limit selects
// the default; limit is capped at MaxTrendingLimit.
func (s *Service) TrendingMarkets(ctx context.Context, window time.Duration, limit int) ([]TrendingMarket, error) {
	if window <= 0 {
		window = DefaultTrendingWindow
	}
	if limit <= 0 {
		limit = DefaultTrendingLimit
	}
	limit = min(limit, MaxTrendingLimit)

	markets, err := s.store.ListMarkets(ctx)
	if err != nil {
		return nil, fmt.Errorf("list markets: %w", err)
	}
	bets, err := s.store.ListBets(ctx)
	if err != nil {
		return nil, fmt.Errorf("load bets: %w", err)
	}

	now := s.now()
	cutoff := now.Add(-window)
	byID := make(map[string]*TrendingMarket)
	out := make([]*TrendingMarket, 0, len(markets))
	for _, m := range markets {
		if !market.IsTradable(m, now) {
			continue
		}
		tm := &TrendingMarket{Market: m}
		byID[m.ID] = tm
		out = append(out, tm)
	}
	for _, b := range bets {
		tm, ok := byID[b.MarketID]
		if !ok || b.CreatedAt.Before(cutoff) {
			continue
		}
		tm.RecentVolume = tm.RecentVolume.Add(b.Amount.Abs())
		tm.RecentBets++
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.RecentVolume.Equal(b.RecentVolume) {
			return a.RecentVolume.GreaterThan(b.RecentVolume)
		}
		if !a.Volume.Equal(b.Volume) {
			return a.Volume.GreaterThan(b.Volume)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})

	n := min(limit, len(out))
	result := make([]TrendingMarket, n)
	for i := 0; i < n; i++ {
		result[i] = *out[i]
	}
	return result, nil
}

func (s *Service) marketIndex(ctx context.Context) (map[string]model.Market, error) {
	list, err := s.store.ListMarkets(ctx)
	if err != nil {
		return nil, fmt.Errorf("list markets: %w", err)
	}
	out := make(map[string]model.Market, len(list))
	for _, m := range list {
		out[m.ID] = m
	}
	return out, nil
}

// SyncMetrics sets gauges that are derived from stored state.
func (s *Service) SyncMetrics(ctx context.Context) error {
	list, err := s.store.ListMarkets(ctx)
	if err != nil {
		return err
	}
	open := 0
	for _, m := range list {
		if m.Status == model.StatusOpen {
			open++
		}
	}
	metrics.ActiveMarkets.Set(float64(open))
	return nil
}
