package broker

import (
	"testing"

	"github.com/rustyeddy/equitybot/market"
	"github.com/stretchr/testify/assert"
)

func TestOrderSides(t *testing.T) {
	t.Parallel()

	tests := []struct {
		side  market.Side
		entry OrderSide
		exit  OrderSide
	}{
		{market.Long, Buy, Sell},
		{market.Short, Sell, Buy},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(string(tt.side), func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.entry, EntrySide(tt.side))
			assert.Equal(t, tt.exit, ExitSide(tt.side))
		})
	}
}

func TestOrderFilled(t *testing.T) {
	t.Parallel()

	assert.False(t, Order{Status: StatusAccepted}.Filled())
	assert.True(t, Order{Status: StatusFilled, FilledQty: 10}.Filled())
}
