package journal

import (
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLite{db: db}, nil
}

func (j *SQLite) RecordTrade(t TradeRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO trades
		(id, position_id, symbol, side, action, quantity, entry_price, exit_price,
		 open_time, close_time, realized_pl, r_multiple, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.PositionID, t.Symbol, string(t.Side), string(t.Action), t.Quantity,
		price(t.EntryPrice).InexactFloat64(), price(t.ExitPrice).InexactFloat64(),
		t.OpenTime.UTC(), nullTime(t.CloseTime),
		money(t.RealizedPL).InexactFloat64(), t.RMultiple, t.Reason,
	)
	return err
}

func (j *SQLite) RecordShadow(s ShadowRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO shadow_signals
		(id, time, symbol, candidate, failed_filter, trail, price, strength)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.Time.UTC(), s.Symbol, s.Candidate, s.FailedFilter, s.Trail,
		price(s.Price).InexactFloat64(), s.Strength,
	)
	return err
}

// RecordSummary upserts the summary for its session date.
func (j *SQLite) RecordSummary(s DailySummary) error {
	_, err := j.db.Exec(`
		INSERT OR REPLACE INTO daily_summaries
		(session_date, start_equity, end_equity, realized_pl, trades, wins, losses,
		 entries, shadows, errors, kill_switch, circuit_breaker)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.SessionDate,
		money(s.StartEquity).InexactFloat64(), money(s.EndEquity).InexactFloat64(),
		money(s.RealizedPL).InexactFloat64(),
		s.Trades, s.Wins, s.Losses, s.Entries, s.Shadows, s.Errors,
		s.KillSwitch, s.CircuitBreaker,
	)
	return err
}

func (j *SQLite) Close() error {
	return j.db.Close()
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
