package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/oddsboard/market-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate creates the tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresDDL); err != nil {
		return fmt.Errorf("schema migration: %w", err)
	}
	return nil
}

const marketColumns = `id, name, description,
	probability::TEXT, volume::TEXT, yes_volume::TEXT, no_volume::TEXT,
	end_date, status, outcome, created_at, opening_probability::TEXT`

const betColumns = `id, market_id, user_id, side, amount::TEXT, probability::TEXT, created_at`

func (s *PostgresStore) CreateMarket(ctx context.Context, m *model.Market) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO markets (id, name, description, probability, volume, yes_volume, no_volume, end_date, status, outcome, created_at, opening_probability)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5::NUMERIC, $6::NUMERIC, $7::NUMERIC, $8, $9, $10, $11, $12::NUMERIC)`,
		m.ID, m.Name, m.Description,
		m.Probability.String(), m.Volume.String(), m.YesVolume.String(), m.NoVolume.String(),
		m.EndDate, m.Status, outcomeText(m.Outcome), m.CreatedAt, m.Opening().String(),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("market %s: %w", m.ID, ErrConflict)
	}
	return err
}

func (s *PostgresStore) GetMarket(ctx context.Context, id string) (*model.Market, error) {
	m, err := scanMarket(s.pool.QueryRow(ctx, `SELECT `+marketColumns+` FROM markets WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("market %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get market %s: %w", id, err)
	}
	return m, nil
}

func (s *PostgresStore) ListMarkets(ctx context.Context) ([]model.Market, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+marketColumns+` FROM markets ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var markets []model.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, err
		}
		markets = append(markets, *m)
	}
	return markets, rows.Err()
}

func (s *PostgresStore) ResolveMarket(ctx context.Context, id string, outcome model.Side, payouts map[string]decimal.Decimal) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE markets SET status = $2, outcome = $3 WHERE id = $1`,
			id, model.StatusResolved, string(outcome))
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("market %s: %w", id, ErrNotFound)
		}
		for user, amt := range payouts {
			if err := adjustBalance(ctx, tx, user, amt); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *PostgresStore) RecordBet(ctx context.Context, b *model.Bet, state MarketState) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE markets
			 SET probability = $2::NUMERIC, volume = $3::NUMERIC,
			     yes_volume = $4::NUMERIC, no_volume = $5::NUMERIC
			 WHERE id = $1`,
			b.MarketID, state.Probability.String(), state.Volume.String(),
			state.YesVolume.String(), state.NoVolume.String(),
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("market %s: %w", b.MarketID, ErrNotFound)
		}
		if err := adjustBalance(ctx, tx, b.UserID, b.Amount.Neg()); err != nil {
			return err
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO bets (id, market_id, user_id, side, amount, probability, created_at)
			 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6::NUMERIC, $7)`,
			b.ID, b.MarketID, b.UserID, string(b.Side),
			b.Amount.String(), b.Probability.String(), b.CreatedAt,
		)
		return err
	})
}

func (s *PostgresStore) GetBetsByMarket(ctx context.Context, marketID string) ([]model.Bet, error) {
	return s.queryBets(ctx, `SELECT `+betColumns+` FROM bets WHERE market_id = $1 ORDER BY created_at, id`, marketID)
}

func (s *PostgresStore) GetBetsByUser(ctx context.Context, userID string) ([]model.Bet, error) {
	return s.queryBets(ctx, `SELECT `+betColumns+` FROM bets WHERE user_id = $1 ORDER BY created_at, id`, userID)
}

func (s *PostgresStore) ListBets(ctx context.Context) ([]model.Bet, error) {
	return s.queryBets(ctx, `SELECT `+betColumns+` FROM bets ORDER BY created_at, id`)
}

func (s *PostgresStore) queryBets(ctx context.Context, sql string, args ...any) ([]model.Bet, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanBets(rows)
}

func (s *PostgresStore) CreateAccount(ctx context.Context, a *model.Account) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO accounts (user_id, balance, starting_balance, created_at)
		 VALUES ($1, $2::NUMERIC, $3::NUMERIC, $4)`,
		a.UserID, a.Balance.String(), a.StartingBalance.String(), a.CreatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("account %s: %w", a.UserID, ErrConflict)
	}
	return err
}

func (s *PostgresStore) GetAccount(ctx context.Context, userID string) (*model.Account, error) {
	a, err := scanAccount(s.pool.QueryRow(ctx,
		`SELECT user_id, balance::TEXT, starting_balance::TEXT, created_at
		 FROM accounts WHERE user_id = $1`, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("account %s: %w", userID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get account %s: %w", userID, err)
	}
	return a, nil
}

func (s *PostgresStore) ListAccounts(ctx context.Context) ([]model.Account, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT user_id, balance::TEXT, starting_balance::TEXT, created_at
		 FROM accounts ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []model.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *a)
	}
	return accounts, rows.Err()
}

func adjustBalance(ctx context.Context, tx pgx.Tx, userID string, delta decimal.Decimal) error {
	tag, err := tx.Exec(ctx,
		`UPDATE accounts SET balance = balance + $2::NUMERIC WHERE user_id = $1`,
		userID, delta.String())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("account %s: %w", userID, ErrNotFound)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// rowScanner is satisfied by pgx.Row, pgx.Rows and *sql.Row(s).
type rowScanner interface {
	Scan(dest ...any) error
}

func scanMarket(row rowScanner) (*model.Market, error) {
	var m model.Market
	var prob, vol, yesVol, noVol, opening string
	var endDate *time.Time
	var outcome *string

	if err := row.Scan(&m.ID, &m.Name, &m.Description,
		&prob, &vol, &yesVol, &noVol,
		&endDate, &m.Status, &outcome, &m.CreatedAt, &opening); err != nil {
		return nil, err
	}
	if err := parseMarketDecimals(&m, prob, vol, yesVol, noVol, opening); err != nil {
		return nil, err
	}
	if endDate != nil {
		t := endDate.UTC()
		m.EndDate = &t
	}
	m.Outcome = parseOutcome(outcome)
	m.CreatedAt = m.CreatedAt.UTC()
	return &m, nil
}

// pgxRows is the subset of pgx.Rows and *sql.Rows used by scanBets.
type pgxRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanBets(rows pgxRows) ([]model.Bet, error) {
	var bets []model.Bet
	for rows.Next() {
		var b model.Bet
		var side, amt, prob string

		if err := rows.Scan(&b.ID, &b.MarketID, &b.UserID, &side,
			&amt, &prob, &b.CreatedAt); err != nil {
			return nil, err
		}

		var err error
		b.Side = model.Side(side)
		if b.Amount, err = decimal.NewFromString(amt); err != nil {
			return nil, fmt.Errorf("bet %s amount: %w", b.ID, err)
		}
		if b.Probability, err = decimal.NewFromString(prob); err != nil {
			return nil, fmt.Errorf("bet %s probability: %w", b.ID, err)
		}
		b.CreatedAt = b.CreatedAt.UTC()
		bets = append(bets, b)
	}
	return bets, rows.Err()
}

func scanAccount(row rowScanner) (*model.Account, error) {
	var a model.Account
	var bal, start string
	if err := row.Scan(&a.UserID, &bal, &start, &a.CreatedAt); err != nil {
		return nil, err
	}
	var err error
	if a.Balance, err = decimal.NewFromString(bal); err != nil {
		return nil, fmt.Errorf("account %s balance: %w", a.UserID, err)
	}
	if a.StartingBalance, err = decimal.NewFromString(start); err != nil {
		return nil, fmt.Errorf("account %s starting balance: %w", a.UserID, err)
	}
	a.CreatedAt = a.CreatedAt.UTC()
	return &a, nil
}

func outcomeText(o *model.Side) *string {
	if o == nil {
		return nil
	}
	s := string(*o)
	return &s
}

func parseOutcome(s *string) *model.Side {
	if s == nil {
		return nil
	}
	side, ok := model.ParseSide(*s)
	if !ok {
		return nil
	}
	return &side
}

// parseMarketDecimals fills the decimal columns of m. A column that does
// not parse is an error; it is never read as zero.
func parseMarketDecimals(m *model.Market, prob, vol, yesVol, noVol, opening string) error {
	fields := []struct {
		name string
		text string
		dst  *decimal.Decimal
	}{
		{"probability", prob, &m.Probability},
		{"volume", vol, &m.Volume},
		{"yes_volume", yesVol, &m.YesVolume},
		{"no_volume", noVol, &m.NoVolume},
		{"opening_probability", opening, &m.OpeningProbability},
	}
	for _, f := range fields {
		v, err := decimal.NewFromString(f.text)
		if err != nil {
			return fmt.Errorf("market %s %s: %w", m.ID, f.name, err)
		}
		*f.dst = v
	}
	return nil
}
