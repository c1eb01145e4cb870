package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/equitybot/broker"
	"github.com/rustyeddy/equitybot/config"
	"github.com/rustyeddy/equitybot/market"
	"github.com/rustyeddy/equitybot/position"
	"github.com/rustyeddy/equitybot/risk"
)

func TestReconcileBook(t *testing.T) {
	t.Parallel()

	book := position.Book{}
	book.Open(held("AAPL", 100, 100, 95))
	book.Open(held("MSFT", 50, 200, 190))
	book.Open(held("XOM", 40, 50, 48))

	brokerView := []broker.Position{
		{Symbol: "AAPL", Side: market.Long, Quantity: 100, AvgEntryPrice: 100},
		{Symbol: "MSFT", Side: market.Long, Quantity: 20, AvgEntryPrice: 200},
		{Symbol: "JPM", Side: market.Short, Quantity: 10, AvgEntryPrice: 150, CurrentPrice: 149},
		{Symbol: "V", Side: market.Long, Quantity: 0},
	}
	sectors := config.Default().Universe

	closed, recs := ReconcileBook(book, brokerView, risk.DefaultPolicy(), sectors.Sector, tuesday)

	require.Len(t, closed, 1)
	assert.Equal(t, "XOM", closed[0].Symbol)
	_, ok := book.Get("XOM")
	assert.False(t, ok)

	aapl, _ := book.Get("AAPL")
	assert.Equal(t, held("AAPL", 100, 100, 95), aapl)

	msft, _ := book.Get("MSFT")
	assert.Equal(t, int64(20), msft.Quantity)
	assert.InDelta(t, 200, msft.RiskAmount, 1e-9)

	jpm, ok := book.Get("JPM")
	require.True(t, ok)
	assert.True(t, jpm.Adopted)
	assert.Equal(t, market.Short, jpm.Side)
	assert.Equal(t, 150.0, jpm.EntryPrice)
	assert.InDelta(t, 151.5, jpm.StopPrice, 1e-9)
	assert.Equal(t, jpm.StopPrice, jpm.InitialStop)
	assert.Equal(t, "Financials", jpm.Sector)
	assert.InDelta(t, 15, jpm.RiskAmount, 1e-9)
	assert.NotEmpty(t, jpm.ID)

	_, ok = book.Get("V")
	assert.False(t, ok)

	kinds := map[string]string{}
	for _, r := range recs {
		kinds[r.Symbol] = r.Kind
	}
	assert.Equal(t, map[string]string{
		"XOM":  ReconcileClosedExternal,
		"MSFT": ReconcileQuantity,
		"JPM":  ReconcileAdopted,
	}, kinds)
}

func TestReconcileBookSideFlip(t *testing.T) {
	t.Parallel()

	book := position.Book{}
	book.Open(held("AAPL", 100, 100, 95))
	brokerView := []broker.Position{{Symbol: "AAPL", Side: market.Short, Quantity: 30, AvgEntryPrice: 102}}

	closed, recs := ReconcileBook(book, brokerView, risk.DefaultPolicy(), func(string) string { return "Technology" }, tuesday)
	require.Len(t, closed, 1)
	assert.Equal(t, market.Long, closed[0].Side)
	require.Len(t, recs, 2)
	assert.Equal(t, ReconcileClosedExternal, recs[0].Kind)
	assert.Equal(t, ReconcileAdopted, recs[1].Kind)

	p, ok := book.Get("AAPL")
	require.True(t, ok)
	assert.Equal(t, market.Short, p.Side)
	assert.Equal(t, int64(30), p.Quantity)
}
