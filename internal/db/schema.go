package db

const Schema = `
CREATE TABLE IF NOT EXISTS trade_history (
	id          TEXT PRIMARY KEY,
	run_id      TEXT NOT NULL,
	symbol      TEXT NOT NULL,
	side        TEXT NOT NULL,
	source      TEXT NOT NULL,
	entry_price DOUBLE PRECISION NOT NULL,
	exit_price  DOUBLE PRECISION NOT NULL,
	quantity    DOUBLE PRECISION NOT NULL,
	pnl         DOUBLE PRECISION NOT NULL,
	reason      TEXT NOT NULL,
	is_paper    BOOLEAN NOT NULL DEFAULT true,
	opened_at   TIMESTAMPTZ NOT NULL,
	closed_at   TIMESTAMPTZ NOT NULL,
	trading_day DATE NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trade_history_closed_at ON trade_history (closed_at DESC);
CREATE INDEX IF NOT EXISTS idx_trade_history_trading_day ON trade_history (trading_day);

CREATE TABLE IF NOT EXISTS bot_state (
	id         SERIAL PRIMARY KEY,
	snapshot   JSONB NOT NULL,
	is_active  BOOLEAN NOT NULL DEFAULT true,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS price_history (
	id          BIGSERIAL PRIMARY KEY,
	symbol      TEXT NOT NULL,
	timestamp   TIMESTAMPTZ NOT NULL,
	price       DOUBLE PRECISION NOT NULL,
	trading_day DATE NOT NULL,
	source      TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_price_history_symbol_day ON price_history (symbol, trading_day);
`
