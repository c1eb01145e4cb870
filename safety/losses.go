package safety

// lossEpsilon absorbs float error when P&L lands exactly on the limit.
const lossEpsilon = 1e-9

// DailyLoss tracks realized session P&L against starting equity.
type DailyLoss struct {
	StartEquity float64 `json:"start_equity"`
	RealizedPnL float64 `json:"realized_pnl"`
	PnLPct      float64 `json:"pnl_pct"`
	Breached    bool    `json:"limit_breached"`
}

// Record adds realized P&L and reports whether the limit was breached by this
// call. Reaching the limit exactly counts as a breach.
func (d *DailyLoss) Record(pnl, limitPct float64) bool {
	d.RealizedPnL += pnl
	if d.StartEquity > 0 {
		d.PnLPct = d.RealizedPnL / d.StartEquity
	}
	if d.Breached || limitPct <= 0 || d.StartEquity <= 0 {
		return false
	}
	if d.PnLPct <= -limitPct+lossEpsilon {
		d.Breached = true
		return true
	}
	return false
}

// ConsecutiveLosses counts losing closed trades in a row.
type ConsecutiveLosses struct {
	Count  int  `json:"count"`
	Paused bool `json:"paused"`
}

// Record counts pnl < 0 as a loss; anything else resets the streak. Once
// paused, entries stay blocked until the next session. It reports whether
// this call paused.
func (c *ConsecutiveLosses) Record(pnl float64, maxLosses int) bool {
	if pnl >= 0 {
		c.Count = 0
		return false
	}
	c.Count++
	if !c.Paused && maxLosses > 0 && c.Count >= maxLosses {
		c.Paused = true
		return true
	}
	return false
}
