package journal

const Schema = `
CREATE TABLE IF NOT EXISTS trades (
	id          TEXT PRIMARY KEY,
	run_id      TEXT NOT NULL,
	symbol      TEXT NOT NULL,
	side        TEXT NOT NULL,
	source      TEXT NOT NULL,
	entry_price REAL NOT NULL,
	exit_price  REAL NOT NULL,
	quantity    REAL NOT NULL,
	pnl         REAL NOT NULL,
	reason      TEXT NOT NULL,
	is_paper    BOOLEAN NOT NULL,
	opened_at   DATETIME NOT NULL,
	closed_at   DATETIME NOT NULL,
	trading_day TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trades_closed_at ON trades(closed_at);

CREATE TABLE IF NOT EXISTS state (
	id         INTEGER PRIMARY KEY CHECK (id = 1),
	snapshot   TEXT NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS prices (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	symbol      TEXT NOT NULL,
	timestamp   DATETIME NOT NULL,
	price       REAL NOT NULL,
	trading_day TEXT NOT NULL,
	source      TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_prices_symbol_time ON prices(symbol, timestamp);
`
