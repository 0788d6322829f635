package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/oddsboard/market-engine/internal/ledger"
	"github.com/oddsboard/market-engine/internal/model"
)

// SQLiteStore implements Store on a single SQLite file. Decimals are
// stored as TEXT; writes are serialized through one connection.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and applies the schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening db: %w", err)
	}
	db.SetMaxOpenConns(1)

	// WAL mode for concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	// Run schema migration
	if _, err := db.Exec(sqliteDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("schema migration: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const sqliteMarketColumns = `id, name, description, probability, volume, yes_volume, no_volume,
	end_date, status, outcome, created_at, opening_probability`

const sqliteBetColumns = `id, market_id, user_id, side, amount, probability, created_at`

func (s *SQLiteStore) CreateMarket(ctx context.Context, m *model.Market) error {
	var endDate sql.NullTime
	if m.EndDate != nil {
		endDate = sql.NullTime{Time: m.EndDate.UTC(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO markets (`+sqliteMarketColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.Name, m.Description,
		m.Probability.String(), m.Volume.String(), m.YesVolume.String(), m.NoVolume.String(),
		endDate, m.Status, outcomeText(m.Outcome), m.CreatedAt.UTC(), m.Opening().String(),
	)
	if isSQLiteConstraint(err) {
		return fmt.Errorf("market %s: %w", m.ID, ErrConflict)
	}
	return err
}

func (s *SQLiteStore) GetMarket(ctx context.Context, id string) (*model.Market, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteMarketColumns+` FROM markets WHERE id = ?`, id)
	m, err := scanSQLiteMarket(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("market %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get market %s: %w", id, err)
	}
	return m, nil
}

// ListMarkets sorts in Go for the same reason as queryBets.
func (s *SQLiteStore) ListMarkets(ctx context.Context) ([]model.Market, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sqliteMarketColumns+` FROM markets ORDER BY rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var markets []model.Market
	for rows.Next() {
		m, err := scanSQLiteMarket(rows)
		if err != nil {
			return nil, err
		}
		markets = append(markets, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sortNewestFirst(markets)
	return markets, nil
}

func (s *SQLiteStore) ResolveMarket(ctx context.Context, id string, outcome model.Side, payouts map[string]decimal.Decimal) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE markets SET status = ?, outcome = ? WHERE id = ?`,
			model.StatusResolved, string(outcome), id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("market %s: %w", id, ErrNotFound)
		}
		for user, amt := range payouts {
			if err := s.adjustBalance(ctx, tx, user, amt); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLiteStore) RecordBet(ctx context.Context, b *model.Bet, state MarketState) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE markets SET probability = ?, volume = ?, yes_volume = ?, no_volume = ?
			WHERE id = ?`,
			state.Probability.String(), state.Volume.String(),
			state.YesVolume.String(), state.NoVolume.String(), b.MarketID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("market %s: %w", b.MarketID, ErrNotFound)
		}
		if err := s.adjustBalance(ctx, tx, b.UserID, b.Amount.Neg()); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO bets (`+sqliteBetColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			b.ID, b.MarketID, b.UserID, string(b.Side),
			b.Amount.String(), b.Probability.String(), b.CreatedAt.UTC())
		return err
	})
}

func (s *SQLiteStore) GetBetsByMarket(ctx context.Context, marketID string) ([]model.Bet, error) {
	return s.queryBets(ctx, `SELECT `+sqliteBetColumns+` FROM bets WHERE market_id = ? ORDER BY seq`, marketID)
}

func (s *SQLiteStore) GetBetsByUser(ctx context.Context, userID string) ([]model.Bet, error) {
	return s.queryBets(ctx, `SELECT `+sqliteBetColumns+` FROM bets WHERE user_id = ? ORDER BY seq`, userID)
}

func (s *SQLiteStore) ListBets(ctx context.Context) ([]model.Bet, error) {
	return s.queryBets(ctx, `SELECT `+sqliteBetColumns+` FROM bets ORDER BY seq`)
}

// queryBets reads in insertion order and re-sorts by execution time;
// DATETIME text does not order reliably across fractional seconds.
func (s *SQLiteStore) queryBets(ctx context.Context, query string, args ...any) ([]model.Bet, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	bets, err := scanBets(rows)
	if err != nil {
		return nil, err
	}
	return ledger.Sort(bets), nil
}

func (s *SQLiteStore) CreateAccount(ctx context.Context, a *model.Account) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (user_id, balance, starting_balance, created_at)
		VALUES (?, ?, ?, ?)`,
		a.UserID, a.Balance.String(), a.StartingBalance.String(), a.CreatedAt.UTC())
	if isSQLiteConstraint(err) {
		return fmt.Errorf("account %s: %w", a.UserID, ErrConflict)
	}
	return err
}

func (s *SQLiteStore) GetAccount(ctx context.Context, userID string) (*model.Account, error) {
	a, err := scanAccount(s.db.QueryRowContext(ctx,
		`SELECT user_id, balance, starting_balance, created_at FROM accounts WHERE user_id = ?`, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account %s: %w", userID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get account %s: %w", userID, err)
	}
	return a, nil
}

func (s *SQLiteStore) ListAccounts(ctx context.Context) ([]model.Account, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, balance, starting_balance, created_at FROM accounts ORDER BY user_id`)
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

func (s *SQLiteStore) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// adjustBalance does the arithmetic in Go; SQLite would coerce TEXT
// amounts to REAL.
func (s *SQLiteStore) adjustBalance(ctx context.Context, tx *sql.Tx, userID string, delta decimal.Decimal) error {
	var bal string
	err := tx.QueryRowContext(ctx, `SELECT balance FROM accounts WHERE user_id = ?`, userID).Scan(&bal)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("account %s: %w", userID, ErrNotFound)
	}
	if err != nil {
		return err
	}
	current, err := decimal.NewFromString(bal)
	if err != nil {
		return fmt.Errorf("account %s balance: %w", userID, err)
	}
	_, err = tx.ExecContext(ctx, `UPDATE accounts SET balance = ? WHERE user_id = ?`,
		current.Add(delta).String(), userID)
	return err
}

func scanSQLiteMarket(row rowScanner) (*model.Market, error) {
	var m model.Market
	var prob, vol, yesVol, noVol, opening string
	var endDate sql.NullTime
	var outcome sql.NullString

	if err := row.Scan(&m.ID, &m.Name, &m.Description,
		&prob, &vol, &yesVol, &noVol,
		&endDate, &m.Status, &outcome, &m.CreatedAt, &opening); err != nil {
		return nil, err
	}
	if err := parseMarketDecimals(&m, prob, vol, yesVol, noVol, opening); err != nil {
		return nil, err
	}
	if endDate.Valid {
		t := endDate.Time.UTC()
		m.EndDate = &t
	}
	if outcome.Valid {
		m.Outcome = parseOutcome(&outcome.String)
	}
	m.CreatedAt = m.CreatedAt.UTC()
	return &m, nil
}

func isSQLiteConstraint(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
