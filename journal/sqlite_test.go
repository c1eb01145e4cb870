package journal

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/equitybot/market"
)

func newTestSQLite(t *testing.T) (*SQLite, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := NewSQLite(path)
	require.NoError(t, err)
	return j, path
}

var (
	openT  = time.Date(2025, 4, 10, 14, 0, 0, 0, time.UTC)
	closeT = time.Date(2025, 4, 10, 18, 30, 0, 0, time.UTC)
)

func exitTrade(id string, pl float64, closed time.Time) TradeRecord {
	return TradeRecord{
		ID:         id,
		PositionID: "P-" + id,
		Symbol:     "AAPL",
		Side:       market.Long,
		Action:     ActionExit,
		Quantity:   40,
		EntryPrice: 190.25,
		ExitPrice:  192.5,
		OpenTime:   openT,
		CloseTime:  closed,
		RealizedPL: pl,
		RMultiple:  0.9,
		Reason:     "stop",
	}
}

func TestSQLiteSchemaCreated(t *testing.T) {
	t.Parallel()

	j, path := newTestSQLite(t)
	require.NoError(t, j.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	rows, err := db.Query(`SELECT name FROM sqlite_master WHERE type='table'`)
	require.NoError(t, err)
	defer rows.Close()

	found := map[string]bool{}
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		found[name] = true
	}
	require.NoError(t, rows.Err())

	assert.True(t, found["trades"])
	assert.True(t, found["shadow_signals"])
	assert.True(t, found["daily_summaries"])
}

func TestGetTrade(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	defer j.Close()

	want := exitTrade("T1", 90.004, closeT)
	require.NoError(t, j.RecordTrade(want))

	got, err := j.GetTrade("T1")
	require.NoError(t, err)
	assert.Equal(t, want.PositionID, got.PositionID)
	assert.Equal(t, market.Long, got.Side)
	assert.Equal(t, ActionExit, got.Action)
	assert.Equal(t, int64(40), got.Quantity)
	assert.InDelta(t, 190.25, got.EntryPrice, 1e-9)
	assert.InDelta(t, 192.5, got.ExitPrice, 1e-9)
	assert.True(t, got.OpenTime.Equal(openT))
	assert.True(t, got.CloseTime.Equal(closeT))
	assert.InDelta(t, 90.0, got.RealizedPL, 1e-9, "rounded to cents")
	assert.InDelta(t, 0.9, got.RMultiple, 1e-9)
	assert.Equal(t, "stop", got.Reason)

	_, err = j.GetTrade("missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestEntryRowsHaveNoCloseTime(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	defer j.Close()

	require.NoError(t, j.RecordTrade(TradeRecord{
		ID: "E1", PositionID: "P1", Symbol: "MSFT", Side: market.Short, Action: ActionEntry,
		Quantity: 10, EntryPrice: 410, OpenTime: openT, Reason: "signal",
	}))

	got, err := j.GetTrade("E1")
	require.NoError(t, err)
	assert.True(t, got.CloseTime.IsZero())
	assert.Equal(t, market.Short, got.Side)

	closed, err := j.ListTradesClosedBetween(openT.Add(-time.Hour), openT.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, closed)
}

func TestListTradesClosedBetween(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	defer j.Close()

	day := time.Date(2025, 4, 10, 0, 0, 0, 0, time.UTC)
	require.NoError(t, j.RecordTrade(exitTrade("late", 10, day.Add(20*time.Hour))))
	require.NoError(t, j.RecordTrade(exitTrade("early", -5, day.Add(15*time.Hour))))
	require.NoError(t, j.RecordTrade(exitTrade("nextday", 7, day.Add(24*time.Hour))))

	got, err := j.ListTradesClosedBetween(day, day.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "early", got[0].ID)
	assert.Equal(t, "late", got[1].ID)

	perf, err := j.Performance(day, day.Add(48*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 3, perf.Trades)
	assert.InDelta(t, 17, perf.GrossProfit, 1e-9)
	assert.InDelta(t, 5, perf.GrossLoss, 1e-9)
	assert.InDelta(t, 3.4, perf.ProfitFactor(), 1e-9)
	assert.Zero(t, Performance{GrossProfit: 10}.ProfitFactor())
}

func TestShadowsAndSummaries(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	defer j.Close()

	require.NoError(t, j.RecordShadow(ShadowRecord{
		ID: "S1", Time: openT, Symbol: "NVDA", Candidate: "long",
		FailedFilter: "momentum", Trail: "regime:pass,volatility:pass,momentum:fail",
		Price: 880.5, Strength: 0.31,
	}))
	shadows, err := j.ListShadowsBetween(openT, openT.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, shadows, 1)
	assert.Equal(t, "momentum", shadows[0].FailedFilter)
	assert.True(t, shadows[0].Time.Equal(openT))

	s := DailySummary{SessionDate: "2025-04-10", StartEquity: 100000, EndEquity: 100250.5, RealizedPL: 250.5, Trades: 2, Wins: 1, Losses: 1}
	require.NoError(t, j.RecordSummary(s))
	s.Trades = 3
	s.KillSwitch = true
	require.NoError(t, j.RecordSummary(s))
	require.NoError(t, j.RecordSummary(DailySummary{SessionDate: "2025-04-11"}))

	sums, err := j.ListSummaries(0)
	require.NoError(t, err)
	require.Len(t, sums, 2)
	assert.Equal(t, "2025-04-11", sums[0].SessionDate)
	assert.Equal(t, 3, sums[1].Trades)
	assert.True(t, sums[1].KillSwitch)
	assert.False(t, sums[1].CircuitBreaker)
	assert.InDelta(t, 100250.5, sums[1].EndEquity, 1e-9)
}
