package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rustyeddy/equitybot/indicators"
	"github.com/rustyeddy/equitybot/market"
	"github.com/rustyeddy/equitybot/safety"
	"github.com/rustyeddy/equitybot/strategies"
)

// Liquidity windows: daily bars averaged for ADV$, 5-minute bars whose
// median range stands in for the spread.
const (
	advDays    = 20
	spreadBars = 30
)

// Analysis is what the cycle learned about one symbol.
type Analysis struct {
	Symbol string
	// Price is the latest trade price, or the last 5-minute close when the
	// price request failed.
	Price float64

	Set    indicators.Set
	HasSet bool

	Signal    strategies.Signal
	HasSignal bool

	// Stale is set when the newest bar is older than the configured
	// maximum age. Stale symbols are managed but produce no signal.
	Stale bool

	Err error
	// Counted marks errors that go to the kill switch tally.
	Counted bool
	// DataErrors are failures the analysis worked around, such as a latest
	// price replaced by the last close. Each one counts toward the kill
	// switch.
	DataErrors []error
}

// OppositeCross reports whether the primary crossover runs against side.
func (a Analysis) OppositeCross(side market.Side) bool {
	if !a.HasSet {
		return false
	}
	switch a.Set.Cross() {
	case indicators.CrossUp:
		return side == market.Short
	case indicators.CrossDown:
		return side == market.Long
	}
	return false
}

// analyzeUniverse fetches and evaluates every symbol in parallel, bounded by
// the configured worker count. The result is keyed by symbol.
func (e *Engine) analyzeUniverse(ctx context.Context, symbols []string, bench strategies.Benchmark, now time.Time) map[string]Analysis {
	results := make([]Analysis, len(symbols))

	var g errgroup.Group
	g.SetLimit(max(1, e.cfg.Engine.Workers))
	for i, sym := range symbols {
		g.Go(func() error {
			sctx, cancel := e.withTimeout(ctx, e.cfg.Engine.SymbolTimeout)
			defer cancel()
			results[i] = e.analyzeSymbol(sctx, sym, bench, now)
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]Analysis, len(results))
	for _, a := range results {
		out[a.Symbol] = a
	}
	return out
}

func (e *Engine) analyzeSymbol(ctx context.Context, symbol string, bench strategies.Benchmark, now time.Time) Analysis {
	a := Analysis{Symbol: symbol}
	p := e.cfg.Signal.Indicators
	lookback := e.cfg.Engine.Lookback

	primary, err := e.feed.GetBars(ctx, symbol, market.TF5Min, lookback)
	if err != nil {
		return a.fail(fmt.Errorf("5m bars: %w", err))
	}
	if last, ok := primary.Last(); ok {
		a.Price = last.Close
		if limit := e.cfg.Engine.MaxBarAge; limit > 0 && now.Sub(last.Time) > limit {
			a.Stale = true
		}
	}

	if px, err := e.feed.GetLatestPrice(ctx, symbol); err == nil && px > 0 {
		a.Price = px
	} else if err != nil {
		e.log.Debug("latest price unavailable, using last close", zap.String("symbol", symbol), zap.Error(err))
		if countable(err) {
			a.DataErrors = append(a.DataErrors, fmt.Errorf("latest price: %w", err))
		}
	}

	set, err := indicators.Compute(primary, p)
	if err != nil {
		return a.fail(fmt.Errorf("5m indicators: %w", err))
	}
	a.Set, a.HasSet = set, true
	if a.Stale {
		return a
	}

	confirm, err := e.feed.GetBars(ctx, symbol, market.TF15Min, lookback)
	if err != nil {
		return a.fail(fmt.Errorf("15m bars: %w", err))
	}
	pair, err := indicators.EMACross(confirm.Closes(), p.EMAFast, p.EMASlow)
	if err != nil {
		return a.fail(fmt.Errorf("15m indicators: %w", err))
	}

	liq := strategies.Liquidity{SpreadBps: strategies.SpreadBps(primary, spreadBars)}
	if e.cfg.Signal.Thresholds.MinADVDollars > 0 && strategies.FromCross(set.Cross()) != strategies.Flat {
		daily, err := e.feed.GetBars(ctx, symbol, market.TF1Day, advDays)
		switch {
		case err == nil:
			liq.ADVDollars = strategies.ADVDollars(daily, advDays)
		case countable(err):
			a.DataErrors = append(a.DataErrors, fmt.Errorf("daily bars: %w", err))
		}
	}

	a.Signal = e.generator.Evaluate(strategies.Input{
		Symbol:    symbol,
		Primary:   set,
		Confirm:   pair,
		Benchmark: bench,
		Liquidity: liq,
		Now:       now,
	})
	a.HasSignal = true
	return a
}

// fail records err. Insufficient history is local to the symbol and a
// cancelled request says nothing about the source; anything else means the
// data source failed and counts toward the kill switch.
func (a Analysis) fail(err error) Analysis {
	a.Err = err
	a.Counted = !errors.Is(err, indicators.ErrInsufficientData) && !errors.Is(err, context.Canceled)
	return a
}

// countable reports whether a feed error that did not stop the analysis
// goes to the kill switch tally.
func countable(err error) bool {
	return errors.Is(err, market.ErrDataUnavailable) && !errors.Is(err, context.Canceled)
}

// evaluateBenchmark reads the benchmark's daily bars. An unavailable
// benchmark fails the breadth filter and leaves the ATR leg of the circuit
// breaker unevaluated. The error is non-nil only when the feed failed;
// short history just leaves the benchmark unavailable.
func (e *Engine) evaluateBenchmark(ctx context.Context) (strategies.Benchmark, error) {
	sym := e.cfg.Universe.Benchmark
	bctx, cancel := e.withTimeout(ctx, e.cfg.Engine.SymbolTimeout)
	defer cancel()

	lookback := max(e.cfg.Engine.Lookback, e.cfg.Signal.Indicators.MinBars()+e.cfg.Signal.MedianLookback+1)
	bars, err := e.feed.GetBars(bctx, sym, market.TF1Day, lookback)
	if err != nil {
		e.log.Warn("benchmark unavailable", zap.String("symbol", sym), zap.Error(err))
		return strategies.Benchmark{Symbol: sym}, fmt.Errorf("benchmark %s: %w", sym, err)
	}
	b, err := strategies.EvaluateBenchmark(sym, bars, e.cfg.Signal.Indicators, e.cfg.Signal.BenchmarkADX, e.cfg.Signal.MedianLookback)
	if err != nil {
		e.log.Warn("benchmark indicators unavailable", zap.String("symbol", sym), zap.Error(err))
		return strategies.Benchmark{Symbol: sym}, nil
	}
	return b, nil
}

// circuitInputs gathers the volatility index and benchmark ATR readings.
// The error reports a failed volatility index read.
func (e *Engine) circuitInputs(ctx context.Context, bench strategies.Benchmark) (safety.CircuitInputs, error) {
	in := safety.CircuitInputs{
		BenchATRPct:    bench.ATRPct,
		BenchATRMedian: bench.ATRPctMedian,
		HasBenchmark:   bench.Available,
	}
	if e.vol == nil {
		return in, nil
	}
	vctx, cancel := e.withTimeout(ctx, e.cfg.Engine.SymbolTimeout)
	defer cancel()
	v, err := e.vol.VolatilityIndex(vctx)
	if err != nil {
		e.log.Warn("volatility index unavailable", zap.Error(err))
		return in, fmt.Errorf("volatility index: %w", err)
	}
	in.Volatility, in.HasVolatility = v, true
	return in, nil
}

// symbolsToAnalyze is the universe plus any held symbol outside it, sorted.
func symbolsToAnalyze(universe, held []string) []string {
	seen := make(map[string]bool, len(universe)+len(held))
	var out []string
	for _, s := range append(append([]string(nil), universe...), held...) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

func (e *Engine) withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
