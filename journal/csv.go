package journal

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

var (
	tradeHeader   = []string{"id", "position_id", "symbol", "side", "action", "quantity", "entry_price", "exit_price", "open_time", "close_time", "realized_pl", "r_multiple", "reason"}
	shadowHeader  = []string{"id", "time", "symbol", "candidate", "failed_filter", "trail", "price", "strength"}
	summaryHeader = []string{"session_date", "start_equity", "end_equity", "realized_pl", "trades", "wins", "losses", "win_rate", "entries", "shadows", "errors", "kill_switch", "circuit_breaker"}
)

// CSV appends to trades.csv, shadows.csv and summaries.csv in one directory.
type CSV struct {
	mu        sync.Mutex
	trades    *csvFile
	shadows   *csvFile
	summaries *csvFile
}

type csvFile struct {
	f *os.File
	w *csv.Writer
}

func openCSV(path string, header []string) (*csvFile, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	c := &csvFile{f: f, w: csv.NewWriter(f)}
	if st.Size() == 0 {
		if err := c.write(header); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	return c, nil
}

func (c *csvFile) write(rec []string) error {
	if err := c.w.Write(rec); err != nil {
		return err
	}
	c.w.Flush()
	return c.w.Error()
}

func (c *csvFile) close() error {
	c.w.Flush()
	if err := c.w.Error(); err != nil {
		_ = c.f.Close()
		return err
	}
	return c.f.Close()
}

func NewCSV(dir string) (*CSV, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	trades, err := openCSV(filepath.Join(dir, "trades.csv"), tradeHeader)
	if err != nil {
		return nil, fmt.Errorf("open trades csv: %w", err)
	}
	shadows, err := openCSV(filepath.Join(dir, "shadows.csv"), shadowHeader)
	if err != nil {
		_ = trades.close()
		return nil, fmt.Errorf("open shadows csv: %w", err)
	}
	summaries, err := openCSV(filepath.Join(dir, "summaries.csv"), summaryHeader)
	if err != nil {
		_ = trades.close()
		_ = shadows.close()
		return nil, fmt.Errorf("open summaries csv: %w", err)
	}
	return &CSV{trades: trades, shadows: shadows, summaries: summaries}, nil
}

func (j *CSV) RecordTrade(t TradeRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.trades.write([]string{
		t.ID,
		t.PositionID,
		t.Symbol,
		string(t.Side),
		string(t.Action),
		strconv.FormatInt(t.Quantity, 10),
		price(t.EntryPrice).StringFixed(4),
		price(t.ExitPrice).StringFixed(4),
		ts(t.OpenTime),
		ts(t.CloseTime),
		money(t.RealizedPL).StringFixed(2),
		strconv.FormatFloat(t.RMultiple, 'f', 2, 64),
		t.Reason,
	})
}

func (j *CSV) RecordShadow(s ShadowRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.shadows.write([]string{
		s.ID,
		ts(s.Time),
		s.Symbol,
		s.Candidate,
		s.FailedFilter,
		s.Trail,
		price(s.Price).StringFixed(4),
		strconv.FormatFloat(s.Strength, 'f', 4, 64),
	})
}

func (j *CSV) RecordSummary(s DailySummary) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.summaries.write([]string{
		s.SessionDate,
		money(s.StartEquity).StringFixed(2),
		money(s.EndEquity).StringFixed(2),
		money(s.RealizedPL).StringFixed(2),
		strconv.Itoa(s.Trades),
		strconv.Itoa(s.Wins),
		strconv.Itoa(s.Losses),
		strconv.FormatFloat(s.WinRate(), 'f', 4, 64),
		strconv.Itoa(s.Entries),
		strconv.Itoa(s.Shadows),
		strconv.Itoa(s.Errors),
		strconv.FormatBool(s.KillSwitch),
		strconv.FormatBool(s.CircuitBreaker),
	})
}

func (j *CSV) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	err1 := j.trades.close()
	err2 := j.shadows.close()
	err3 := j.summaries.close()
	for _, err := range []error{err1, err2, err3} {
		if err != nil {
			return err
		}
	}
	return nil
}

func ts(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
