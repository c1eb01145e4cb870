package market

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// VolatilitySymbol is the file stem the CSV feed reads the volatility index from.
const VolatilitySymbol = "VIX"

// CSVFeed serves bars from <Dir>/<SYMBOL>_<tf>.csv files with the header
// time,open,high,low,close,volume. Time is RFC3339 or unix seconds.
type CSVFeed struct {
	Dir string
}

func NewCSVFeed(dir string) *CSVFeed {
	return &CSVFeed{Dir: dir}
}

func (f *CSVFeed) Path(symbol string, tf Timeframe) string {
	return filepath.Join(f.Dir, fmt.Sprintf("%s_%s.csv", symbol, tf))
}

func (f *CSVFeed) GetBars(ctx context.Context, symbol string, tf Timeframe, lookback int) (Bars, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDataUnavailable, symbol, err)
	}
	bars, err := ReadBarsCSV(f.Path(symbol, tf))
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", ErrDataUnavailable, symbol, tf, err)
	}
	return bars.Tail(lookback), nil
}

func (f *CSVFeed) GetLatestPrice(ctx context.Context, symbol string) (float64, error) {
	bars, err := f.GetBars(ctx, symbol, TF5Min, 1)
	if err != nil {
		return 0, err
	}
	last, ok := bars.Last()
	if !ok {
		return 0, fmt.Errorf("%w: %s has no bars", ErrDataUnavailable, symbol)
	}
	return last.Close, nil
}

// VolatilityIndex returns the last close of the VIX file, preferring the
// 5-minute series over the daily one.
func (f *CSVFeed) VolatilityIndex(ctx context.Context) (float64, error) {
	for _, tf := range []Timeframe{TF5Min, TF1Day} {
		bars, err := f.GetBars(ctx, VolatilitySymbol, tf, 1)
		if err != nil {
			continue
		}
		if last, ok := bars.Last(); ok {
			return last.Close, nil
		}
	}
	return 0, fmt.Errorf("%w: volatility index", ErrDataUnavailable)
}

// ReadBarsCSV loads and validates a bar file.
func ReadBarsCSV(path string) (Bars, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	r := csv.NewReader(fh)
	r.FieldsPerRecord = 6
	r.TrimLeadingSpace = true

	var bars Bars
	line := 0
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		line++
		if line == 1 && strings.EqualFold(rec[0], "time") {
			continue
		}
		bar, err := parseBar(rec)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", filepath.Base(path), line, err)
		}
		bars = append(bars, bar)
	}
	if err := bars.Validate(); err != nil {
		return nil, err
	}
	return bars, nil
}

// WriteBarsCSV writes bars in the format ReadBarsCSV accepts.
func WriteBarsCSV(path string, bars Bars) error {
	fh, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(fh)
	if err := w.Write([]string{"time", "open", "high", "low", "close", "volume"}); err != nil {
		fh.Close()
		return err
	}
	for _, b := range bars {
		err := w.Write([]string{
			b.Time.UTC().Format(time.RFC3339),
			ff(b.Open), ff(b.High), ff(b.Low), ff(b.Close), ff(b.Volume),
		})
		if err != nil {
			fh.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		fh.Close()
		return err
	}
	return fh.Close()
}

func parseBar(rec []string) (Bar, error) {
	ts, err := parseTime(rec[0])
	if err != nil {
		return Bar{}, err
	}
	var vals [5]float64
	for i := 0; i < 5; i++ {
		v, err := strconv.ParseFloat(strings.TrimSpace(rec[i+1]), 64)
		if err != nil {
			return Bar{}, fmt.Errorf("field %d: %w", i+2, err)
		}
		vals[i] = v
	}
	return Bar{Time: ts, Open: vals[0], High: vals[1], Low: vals[2], Close: vals[3], Volume: vals[4]}, nil
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	return time.Parse(time.RFC3339, s)
}

func ff(x float64) string {
	return strconv.FormatFloat(x, 'f', -1, 64)
}
