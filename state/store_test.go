package state

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rustyeddy/equitybot/market"
	"github.com/rustyeddy/equitybot/position"
	"github.com/rustyeddy/equitybot/strategies"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 5, 6, 14, 0, 0, 0, time.UTC)

func sampleSnapshot() *Snapshot {
	s := New("2025-05-06")
	s.Cycle = 7
	s.Positions.Open(position.Position{
		ID:          "01J0000000000000000000000A",
		Symbol:      "AAPL",
		Side:        market.Long,
		Quantity:    40,
		EntryPrice:  190,
		StopPrice:   185,
		InitialStop: 185,
		Sector:      "tech",
		RiskAmount:  200,
	})
	s.Safety.KillSwitch.Errors = []time.Time{now.Add(-time.Minute)}
	s.Risk.RecordEquity("2025-05-05", 100000, 30)
	s.LastSignals["AAPL"] = strategies.Signal{
		Symbol:    "AAPL",
		Direction: strategies.Flat,
		Candidate: strategies.Long,
		FilterTrail: []strategies.FilterResult{
			{Name: strategies.FilterRegime, Passed: true},
			{Name: strategies.FilterVolatility, Passed: false},
		},
	}
	return s
}

func tempFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var out []string
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp-") {
			out = append(out, e.Name())
		}
	}
	return out
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	s := NewStore(filepath.Join(t.TempDir(), "state.json"))
	snap, err := s.Load()
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestCommitLoadRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s := NewStore(filepath.Join(dir, "nested", "state.json"))
	in := sampleSnapshot()
	require.NoError(t, s.Commit(in, now))

	out, err := s.Load()
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, Version, out.Version)
	assert.Equal(t, int64(7), out.Cycle)
	assert.True(t, out.CommittedAt.Equal(now))
	assert.Equal(t, in.Positions, out.Positions)
	assert.Equal(t, "volatility", out.LastSignals["AAPL"].FailedFilter())
	assert.Len(t, out.Safety.KillSwitch.Errors, 1)
	assert.Equal(t, 100000.0, out.Risk.PeakEquity)
}

func TestLoadCorruptFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := NewStore(path).Load()
	assert.True(t, errors.Is(err, ErrPersistence))
}

func TestLoadNewerVersionRejected(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version": 99}`), 0o600))

	_, err := NewStore(path).Load()
	assert.ErrorIs(t, err, ErrPersistence)
}

func TestLoadFillsNilMaps(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version": 1, "session_date": "2025-05-06"}`), 0o600))

	snap, err := NewStore(path).Load()
	require.NoError(t, err)
	assert.NotNil(t, snap.Positions)
	assert.NotNil(t, snap.LastSignals)
}

// Not parallel: swaps renameFunc.
func TestCrashBetweenWriteAndRename(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(filepath.Join(dir, "state.json"))

	first := sampleSnapshot()
	require.NoError(t, s.Commit(first, now))

	renameFunc = func(string, string) error { return errors.New("power loss") }
	second := first.Clone()
	second.Cycle = 8
	second.Positions.Close("AAPL")
	err := s.Commit(second, now.Add(time.Minute))
	renameFunc = os.Rename

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPersistence)
	assert.Len(t, tempFiles(t, dir), 1, "orphaned temp file")

	loaded, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, int64(7), loaded.Cycle, "previous snapshot intact")
	_, held := loaded.Positions.Get("AAPL")
	assert.True(t, held)

	require.NoError(t, s.Commit(second, now.Add(2*time.Minute)))
	assert.Empty(t, tempFiles(t, dir))
	loaded, err = s.Load()
	require.NoError(t, err)
	assert.Equal(t, int64(8), loaded.Cycle)
}

func TestConcurrentCommitsNeverTear(t *testing.T) {
	t.Parallel()

	s := NewStore(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, s.Commit(sampleSnapshot(), now))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			snap := sampleSnapshot()
			snap.Cycle = int64(i)
			assert.NoError(t, s.Commit(snap, now))
			_, err := s.Load()
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()
}

func TestCloneIsDeep(t *testing.T) {
	t.Parallel()

	a := sampleSnapshot()
	b := a.Clone()

	b.Positions.Close("AAPL")
	b.Safety.KillSwitch.Errors[0] = time.Time{}
	b.Risk.EquityHistory[0].Equity = 1
	sig := b.LastSignals["AAPL"]
	sig.FilterTrail[0].Passed = false
	b.LastSignals["MSFT"] = sig

	_, held := a.Positions.Get("AAPL")
	assert.True(t, held)
	assert.False(t, a.Safety.KillSwitch.Errors[0].IsZero())
	assert.Equal(t, 100000.0, a.Risk.EquityHistory[0].Equity)
	assert.True(t, a.LastSignals["AAPL"].FilterTrail[0].Passed)
	assert.Len(t, a.LastSignals, 1)
	assert.Nil(t, (*Snapshot)(nil).Clone())
}

func TestRecordSlippage(t *testing.T) {
	t.Parallel()

	s := New("2025-03-04")
	assert.InDelta(t, 10, s.RecordSlippage("AAPL", 10), 1e-12)
	assert.InDelta(t, 7.6, s.RecordSlippage("AAPL", 2), 1e-12)
	assert.InDelta(t, 4, s.RecordSlippage("MSFT", 4), 1e-12)

	c := s.Clone()
	c.RecordSlippage("AAPL", 100)
	assert.InDelta(t, 7.6, s.Slippage["AAPL"], 1e-12)

	dir := t.TempDir()
	st := NewStore(filepath.Join(dir, "state.json"))
	require.NoError(t, st.Commit(s, now))
	got, err := st.Load()
	require.NoError(t, err)
	assert.Equal(t, s.Slippage, got.Slippage)
}

func TestRecordEquity(t *testing.T) {
	t.Parallel()

	var r RiskInputs
	r.RecordEquity("2025-05-01", 100, 3)
	r.RecordEquity("2025-05-02", 110, 3)
	r.RecordEquity("2025-05-02", 105, 3)
	r.RecordEquity("2025-05-05", 90, 3)
	r.RecordEquity("2025-05-06", 95, 3)

	assert.Equal(t, []float64{105, 90, 95}, r.Equities())
	assert.Equal(t, 110.0, r.PeakEquity)
}

func TestSessionStats(t *testing.T) {
	t.Parallel()

	var s SessionStats
	assert.Zero(t, s.WinRate())
	s.RecordClose(100)
	s.RecordClose(-40)
	s.RecordClose(0)
	assert.Equal(t, 3, s.Trades)
	assert.Equal(t, 1, s.Wins)
	assert.Equal(t, 1, s.Losses)
	assert.InDelta(t, 60, s.NetPnL(), 1e-9)
	assert.InDelta(t, 1.0/3.0, s.WinRate(), 1e-9)
}
