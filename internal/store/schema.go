package store

// Money and probability columns are NUMERIC and travel as TEXT so decimal
// values round-trip exactly.
const postgresDDL = `
CREATE TABLE IF NOT EXISTS markets (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	probability NUMERIC NOT NULL,
	volume      NUMERIC NOT NULL DEFAULT 0,
	yes_volume  NUMERIC NOT NULL DEFAULT 0,
	no_volume   NUMERIC NOT NULL DEFAULT 0,
	end_date    TIMESTAMPTZ,
	status      TEXT NOT NULL DEFAULT 'open',
	outcome     TEXT,
	created_at  TIMESTAMPTZ NOT NULL,
	opening_probability NUMERIC NOT NULL DEFAULT 0.5
);

ALTER TABLE markets ADD COLUMN IF NOT EXISTS opening_probability NUMERIC NOT NULL DEFAULT 0.5;

CREATE TABLE IF NOT EXISTS accounts (
	user_id          TEXT PRIMARY KEY,
	balance          NUMERIC NOT NULL,
	starting_balance NUMERIC NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS bets (
	id          TEXT PRIMARY KEY,
	market_id   TEXT NOT NULL REFERENCES markets(id),
	user_id     TEXT NOT NULL REFERENCES accounts(user_id),
	side        TEXT NOT NULL CHECK (side IN ('YES', 'NO')),
	amount      NUMERIC NOT NULL,
	probability NUMERIC NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_bets_market ON bets(market_id, created_at, id);
CREATE INDEX IF NOT EXISTS idx_bets_user ON bets(user_id, created_at, id);
`

// SQLite has no NUMERIC type that preserves decimal text, so amounts are
// stored as TEXT and parsed with shopspring/decimal.
const sqliteDDL = `
CREATE TABLE IF NOT EXISTS markets (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	probability TEXT NOT NULL,
	volume      TEXT NOT NULL DEFAULT '0',
	yes_volume  TEXT NOT NULL DEFAULT '0',
	no_volume   TEXT NOT NULL DEFAULT '0',
	end_date    DATETIME,
	status      TEXT NOT NULL DEFAULT 'open',
	outcome     TEXT,
	created_at  DATETIME NOT NULL,
	opening_probability TEXT NOT NULL DEFAULT '0.5'
);

CREATE TABLE IF NOT EXISTS accounts (
	user_id          TEXT PRIMARY KEY,
	balance          TEXT NOT NULL,
	starting_balance TEXT NOT NULL,
	created_at       DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS bets (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	id          TEXT NOT NULL UNIQUE,
	market_id   TEXT NOT NULL REFERENCES markets(id),
	user_id     TEXT NOT NULL REFERENCES accounts(user_id),
	side        TEXT NOT NULL,
	amount      TEXT NOT NULL,
	probability TEXT NOT NULL,
	created_at  DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_bets_market ON bets(market_id);
CREATE INDEX IF NOT EXISTS idx_bets_user ON bets(user_id);
`
