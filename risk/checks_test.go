package risk

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/rustyeddy/equitybot/market"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBudget() Budget {
	b := DefaultPolicy().Budget(0.0075)
	b.SectorCaps = map[string]float64{"Technology": 0.6}
	return b
}

func cand(sym, sector string, price, dist, strength float64) Candidate {
	return Candidate{Symbol: sym, Sector: sector, Side: market.Long, Price: price, StopDistance: dist, Strength: strength}
}

func TestSizeAccepts(t *testing.T) {
	t.Parallel()

	d := Size(testBudget(), NewExposure(), cand("AAPL", "Technology", 50, 2.5, 1), 100000, 400000)
	require.True(t, d.Allowed, "%v", d.Violations)
	assert.Equal(t, int64(300), d.Quantity)
	assert.InDelta(t, 750.0, d.RiskAmount, 1e-9)
	assert.InDelta(t, 47.5, d.StopPrice, 1e-12)
	assert.InDelta(t, 15000.0, d.Value, 1e-9)
}

func TestSizeRejections(t *testing.T) {
	t.Parallel()

	full := NewExposure()
	for i := 0; i < 5; i++ {
		full.Add(fmt.Sprintf("S%d", i), 100, 1000)
	}

	risky := NewExposure()
	risky.Add("Energy", 3000, 1000)

	crowded := NewExposure()
	crowded.Add("Technology", 100, 50000)

	tests := []struct {
		name  string
		exp   *Exposure
		c     Candidate
		bp    float64
		codes []string
	}{
		{"no stop", NewExposure(), cand("AAPL", "Technology", 50, 0, 1), 400000, []string{CodeNoStopDistance}},
		{"zero qty", NewExposure(), cand("AAPL", "Technology", 5000, 1000, 1), 400000, []string{CodeZeroQuantity}},
		{"max positions", full, cand("AAPL", "Technology", 50, 2.5, 1), 400000, []string{CodeMaxPositions}},
		{"total risk", risky, cand("AAPL", "Technology", 50, 2.5, 1), 400000, []string{CodeTotalRisk}},
		{"sector cap", crowded, cand("MSFT", "Technology", 50, 2.5, 1), 400000, []string{CodeSectorCap}},
		{"default sector cap", NewExposure(), cand("XOM", "Energy", 150, 2.5, 1), 400000, []string{CodeSectorCap}},
		{"buying power", NewExposure(), cand("AAPL", "Technology", 50, 2.5, 1), 10000, []string{CodeBuyingPower}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := Size(testBudget(), tt.exp, tt.c, 100000, tt.bp)
			assert.False(t, d.Allowed)
			assert.Equal(t, tt.codes, d.Codes())
		})
	}
}

func TestAllocatorOrdersByStrengthThenSymbol(t *testing.T) {
	t.Parallel()

	b := testBudget()
	b.MaxPositions = 2
	a := NewAllocator(b, 100000, 400000, NewExposure())

	ds := a.Allocate([]Candidate{
		cand("MSFT", "Technology", 50, 2.5, 0.5),
		cand("AMZN", "Consumer", 50, 2.5, 0.9),
		cand("AAPL", "Technology", 50, 2.5, 0.5),
	})
	require.Len(t, ds, 3)
	assert.Equal(t, "AMZN", ds[0].Candidate.Symbol)
	assert.Equal(t, "AAPL", ds[1].Candidate.Symbol)
	assert.Equal(t, "MSFT", ds[2].Candidate.Symbol)

	assert.True(t, ds[0].Allowed)
	assert.True(t, ds[1].Allowed)
	assert.False(t, ds[2].Allowed)
	assert.Equal(t, []string{CodeMaxPositions}, ds[2].Codes())

	exp := a.Exposure()
	assert.Equal(t, 2, exp.Count)
	assert.InDelta(t, 1500.0, exp.OpenRisk, 1e-9)
}

func TestAllocatorConcurrentNeverExceedsCaps(t *testing.T) {
	t.Parallel()

	const equity = 100000.0
	r := rand.New(rand.NewSource(3))

	for round := 0; round < 50; round++ {
		b := testBudget()
		b.MaxPositions = 50
		b.DefaultSectorCap = 10
		b.SectorCaps = nil

		start := NewExposure()
		start.Add("Existing", 500, 5000)
		a := NewAllocator(b, equity, 1e9, start)

		cands := make([]Candidate, 30)
		for i := range cands {
			cands[i] = cand(fmt.Sprintf("S%02d", i), fmt.Sprintf("Sec%d", i%4),
				20+r.Float64()*200, 0.5+r.Float64()*3, r.Float64())
		}
		r.Shuffle(len(cands), func(i, j int) { cands[i], cands[j] = cands[j], cands[i] })

		var wg sync.WaitGroup
		for _, c := range cands {
			wg.Add(1)
			go func(c Candidate) {
				defer wg.Done()
				a.Try(c)
			}(c)
		}
		wg.Wait()

		exp := a.Exposure()
		assert.LessOrEqual(t, exp.OpenRisk, b.TotalOpenRiskPct*equity+1e-9)
		assert.LessOrEqual(t, exp.Count, b.MaxPositions)
	}
}
