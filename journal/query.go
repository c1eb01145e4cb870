package journal

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rustyeddy/equitybot/market"
)

const tradeColumns = `id, position_id, symbol, side, action, quantity, entry_price, exit_price,
	open_time, close_time, realized_pl, r_multiple, reason`

type scanner interface {
	Scan(dest ...any) error
}

func scanTrade(s scanner) (TradeRecord, error) {
	var (
		rec       TradeRecord
		side      string
		action    string
		closeTime sql.NullTime
	)
	err := s.Scan(
		&rec.ID,
		&rec.PositionID,
		&rec.Symbol,
		&side,
		&action,
		&rec.Quantity,
		&rec.EntryPrice,
		&rec.ExitPrice,
		&rec.OpenTime,
		&closeTime,
		&rec.RealizedPL,
		&rec.RMultiple,
		&rec.Reason,
	)
	if err != nil {
		return TradeRecord{}, err
	}
	rec.Side = market.Side(side)
	rec.Action = Action(action)
	if closeTime.Valid {
		rec.CloseTime = closeTime.Time
	}
	return rec, nil
}

// GetTrade returns a single trade record by ID.
func (j *SQLite) GetTrade(id string) (TradeRecord, error) {
	row := j.db.QueryRow(`SELECT `+tradeColumns+` FROM trades WHERE id = ?`, id)
	rec, err := scanTrade(row)
	if errors.Is(err, sql.ErrNoRows) {
		return TradeRecord{}, fmt.Errorf("trade %q not found", id)
	}
	return rec, err
}

// ListTradesClosedBetween returns exits and reductions whose close_time is
// within [start, end).
func (j *SQLite) ListTradesClosedBetween(start, end time.Time) ([]TradeRecord, error) {
	rows, err := j.db.Query(`
		SELECT `+tradeColumns+`
		FROM trades
		WHERE close_time IS NOT NULL AND close_time >= ? AND close_time < ?
		ORDER BY close_time ASC`, start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TradeRecord
	for rows.Next() {
		rec, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListShadowsBetween returns shadow signals within [start, end).
func (j *SQLite) ListShadowsBetween(start, end time.Time) ([]ShadowRecord, error) {
	rows, err := j.db.Query(`
		SELECT id, time, symbol, candidate, failed_filter, trail, price, strength
		FROM shadow_signals
		WHERE time >= ? AND time < ?
		ORDER BY time ASC`, start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ShadowRecord
	for rows.Next() {
		var s ShadowRecord
		if err := rows.Scan(&s.ID, &s.Time, &s.Symbol, &s.Candidate, &s.FailedFilter,
			&s.Trail, &s.Price, &s.Strength); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListSummaries returns the most recent limit summaries, newest first.
func (j *SQLite) ListSummaries(limit int) ([]DailySummary, error) {
	if limit <= 0 {
		limit = 30
	}
	rows, err := j.db.Query(`
		SELECT session_date, start_equity, end_equity, realized_pl, trades, wins, losses,
		       entries, shadows, errors, kill_switch, circuit_breaker
		FROM daily_summaries
		ORDER BY session_date DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DailySummary
	for rows.Next() {
		var s DailySummary
		if err := rows.Scan(&s.SessionDate, &s.StartEquity, &s.EndEquity, &s.RealizedPL,
			&s.Trades, &s.Wins, &s.Losses, &s.Entries, &s.Shadows, &s.Errors,
			&s.KillSwitch, &s.CircuitBreaker); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Performance aggregates closed trade P&L within [start, end).
type Performance struct {
	Trades      int
	GrossProfit float64
	GrossLoss   float64
}

// ProfitFactor is gross profit over gross loss, 0 when nothing was lost.
func (p Performance) ProfitFactor() float64 {
	if p.GrossLoss == 0 {
		return 0
	}
	return p.GrossProfit / p.GrossLoss
}

func (j *SQLite) Performance(start, end time.Time) (Performance, error) {
	var p Performance
	err := j.db.QueryRow(`
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN realized_pl > 0 THEN realized_pl END), 0),
		       COALESCE(-SUM(CASE WHEN realized_pl < 0 THEN realized_pl END), 0)
		FROM trades
		WHERE close_time IS NOT NULL AND close_time >= ? AND close_time < ?`,
		start.UTC(), end.UTC()).Scan(&p.Trades, &p.GrossProfit, &p.GrossLoss)
	return p, err
}
