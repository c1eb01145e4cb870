package journal

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	recs, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return recs
}

func TestCSVJournalHeaders(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	j, err := NewCSV(dir)
	require.NoError(t, err)
	require.NoError(t, j.Close())

	assert.Equal(t, [][]string{tradeHeader}, readCSV(t, filepath.Join(dir, "trades.csv")))
	assert.Equal(t, [][]string{shadowHeader}, readCSV(t, filepath.Join(dir, "shadows.csv")))
	assert.Equal(t, [][]string{summaryHeader}, readCSV(t, filepath.Join(dir, "summaries.csv")))
}

func TestCSVJournalRecords(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	j, err := NewCSV(dir)
	require.NoError(t, err)

	require.NoError(t, j.RecordTrade(exitTrade("T1", -12.345, closeT)))
	require.NoError(t, j.RecordShadow(ShadowRecord{ID: "S1", Time: openT, Symbol: "AMD", Candidate: "short", FailedFilter: "breadth", Price: 160.123456, Strength: 0.5}))
	require.NoError(t, j.RecordSummary(DailySummary{SessionDate: "2025-04-10", StartEquity: 1000, EndEquity: 990, RealizedPL: -10, Trades: 4, Wins: 1, Losses: 3}))
	require.NoError(t, j.Close())

	trades := readCSV(t, filepath.Join(dir, "trades.csv"))
	require.Len(t, trades, 2)
	row := trades[1]
	assert.Equal(t, "T1", row[0])
	assert.Equal(t, "long", row[3])
	assert.Equal(t, "exit", row[4])
	assert.Equal(t, "40", row[5])
	assert.Equal(t, "190.2500", row[6])
	assert.Equal(t, "2025-04-10T14:00:00Z", row[8])
	assert.Equal(t, "-12.35", row[10])

	shadows := readCSV(t, filepath.Join(dir, "shadows.csv"))
	require.Len(t, shadows, 2)
	assert.Equal(t, "breadth", shadows[1][4])
	assert.Equal(t, "160.1235", shadows[1][6])

	sums := readCSV(t, filepath.Join(dir, "summaries.csv"))
	require.Len(t, sums, 2)
	assert.Equal(t, "0.2500", sums[1][7])
}

func TestCSVJournalAppendsWithoutRepeatingHeader(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	for i := 0; i < 2; i++ {
		j, err := NewCSV(dir)
		require.NoError(t, err)
		require.NoError(t, j.RecordTrade(exitTrade("T", 1, closeT)))
		require.NoError(t, j.Close())
	}

	trades := readCSV(t, filepath.Join(dir, "trades.csv"))
	assert.Len(t, trades, 3)
}
