package sim

import "github.com/rustyeddy/equitybot/market"

// Holding is a signed share count: positive long, negative short.
type Holding struct {
	Symbol      string  `json:"symbol"`
	Quantity    int64   `json:"quantity"`
	AvgPrice    float64 `json:"avg_price"`
	RealizedPnL float64 `json:"realized_pnl"`
}

func (h Holding) Side() market.Side {
	if h.Quantity < 0 {
		return market.Short
	}
	return market.Long
}

// apply books a fill of delta shares at price and returns the P&L realized
// by any portion that reduced the holding.
func (h *Holding) apply(delta int64, price float64) float64 {
	if delta == 0 {
		return 0
	}
	if h.Quantity == 0 || sameSign(h.Quantity, delta) {
		q, d := abs64(h.Quantity), abs64(delta)
		h.AvgPrice = (float64(q)*h.AvgPrice + float64(d)*price) / float64(q+d)
		h.Quantity += delta
		return 0
	}

	closing := min(abs64(delta), abs64(h.Quantity))
	sign := 1.0
	if h.Quantity < 0 {
		sign = -1
	}
	realized := sign * float64(closing) * (price - h.AvgPrice)
	h.RealizedPnL += realized

	before := h.Quantity
	h.Quantity += delta
	if h.Quantity != 0 && !sameSign(before, h.Quantity) {
		h.AvgPrice = price
	}
	if h.Quantity == 0 {
		h.AvgPrice = 0
	}
	return realized
}

func sameSign(a, b int64) bool {
	return (a > 0) == (b > 0)
}

func abs64(x int64) int64 {
	if x < 0 {
		return -x
	}
	return x
}
