package journal

const Schema = `
CREATE TABLE IF NOT EXISTS trades (
	id TEXT PRIMARY KEY,
	position_id TEXT NOT NULL,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	action TEXT NOT NULL,
	quantity INTEGER NOT NULL,
	entry_price REAL NOT NULL,
	exit_price REAL NOT NULL,
	open_time DATETIME NOT NULL,
	close_time DATETIME,
	realized_pl REAL NOT NULL,
	r_multiple REAL NOT NULL,
	reason TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trades_close_time ON trades(close_time);
CREATE INDEX IF NOT EXISTS idx_trades_position ON trades(position_id);

CREATE TABLE IF NOT EXISTS shadow_signals (
	id TEXT PRIMARY KEY,
	time DATETIME NOT NULL,
	symbol TEXT NOT NULL,
	candidate TEXT NOT NULL,
	failed_filter TEXT NOT NULL,
	trail TEXT NOT NULL,
	price REAL NOT NULL,
	strength REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_shadow_time ON shadow_signals(time);

CREATE TABLE IF NOT EXISTS daily_summaries (
	session_date TEXT PRIMARY KEY,
	start_equity REAL NOT NULL,
	end_equity REAL NOT NULL,
	realized_pl REAL NOT NULL,
	trades INTEGER NOT NULL,
	wins INTEGER NOT NULL,
	losses INTEGER NOT NULL,
	entries INTEGER NOT NULL,
	shadows INTEGER NOT NULL,
	errors INTEGER NOT NULL,
	kill_switch INTEGER NOT NULL,
	circuit_breaker INTEGER NOT NULL
);
`
