package position

import "math"

// TrailStop tightens p's stop toward price by mult*atr. For a long the stop
// only rises; for a short it only falls.
func TrailStop(p Position, price, atr, mult float64) float64 {
	if atr <= 0 || mult <= 0 || price <= 0 {
		return p.StopPrice
	}
	candidate := price - p.Side.Sign()*mult*atr
	if p.Side.Sign() > 0 {
		return math.Max(p.StopPrice, candidate)
	}
	if p.StopPrice == 0 {
		return candidate
	}
	return math.Min(p.StopPrice, candidate)
}

// StopCrossed reports whether price has reached the stop.
func StopCrossed(p Position, price float64) bool {
	if p.StopPrice <= 0 || price <= 0 {
		return false
	}
	if p.Side.Sign() > 0 {
		return price <= p.StopPrice
	}
	return price >= p.StopPrice
}
