package risk

import (
	"fmt"

	"github.com/rustyeddy/equitybot/market"
)

// Violation codes.
const (
	CodeNoStopDistance = "NO_STOP_DISTANCE"
	CodeZeroQuantity   = "ZERO_QUANTITY"
	CodeMaxPositions   = "MAX_POSITIONS"
	CodeTotalRisk      = "TOTAL_RISK_CAP"
	CodeSectorCap      = "SECTOR_CAP"
	CodeBuyingPower    = "BUYING_POWER"
)

type Violation struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

func (v Violation) String() string {
	return v.Code + ": " + v.Msg
}

// Candidate is a passing signal ready for sizing.
type Candidate struct {
	Symbol       string
	Sector       string
	Side         market.Side
	Price        float64
	StopDistance float64
	Strength     float64
}

// Decision is the sizing outcome for one candidate.
type Decision struct {
	Candidate  Candidate
	Allowed    bool
	Violations []Violation

	Quantity   int64
	StopPrice  float64
	RiskAmount float64
	Value      float64
}

func (d *Decision) add(code, msg string) {
	d.Violations = append(d.Violations, Violation{Code: code, Msg: msg})
	d.Allowed = false
}

// Codes returns the violation codes in order.
func (d Decision) Codes() []string {
	out := make([]string, len(d.Violations))
	for i, v := range d.Violations {
		out[i] = v.Code
	}
	return out
}

// Exposure is the shared "current exposure" accumulator for one cycle.
type Exposure struct {
	OpenRisk float64
	Count    int
	Value    float64
	Sectors  map[string]float64
}

func NewExposure() *Exposure {
	return &Exposure{Sectors: make(map[string]float64)}
}

// Add records an open or newly accepted position.
func (e *Exposure) Add(sector string, risk, value float64) {
	if e.Sectors == nil {
		e.Sectors = make(map[string]float64)
	}
	e.OpenRisk += risk
	e.Count++
	e.Value += value
	e.Sectors[sector] += value
}

func (e *Exposure) clone() Exposure {
	cp := *e
	cp.Sectors = make(map[string]float64, len(e.Sectors))
	for k, v := range e.Sectors {
		cp.Sectors[k] = v
	}
	return cp
}

// Size evaluates a candidate against every cap without mutating exp. All caps
// are hard; a single violation rejects the trade.
func Size(b Budget, exp *Exposure, c Candidate, equity, buyingPower float64) Decision {
	d := Decision{Candidate: c, Allowed: true}

	if c.StopDistance <= 0 || c.Price <= 0 {
		d.add(CodeNoStopDistance, "price and stop distance must be positive")
		return d
	}

	res := Calculate(Inputs{Equity: equity, RiskPct: b.PerTradePct, StopDistance: c.StopDistance})
	if res.Quantity <= 0 {
		d.add(CodeZeroQuantity,
			fmt.Sprintf("risk %.2f over stop %.4f rounds to zero shares", res.Budgeted, c.StopDistance))
		return d
	}
	d.Quantity = res.Quantity
	d.RiskAmount = res.RiskAmount
	d.StopPrice = StopPrice(c.Side, c.Price, c.StopDistance)
	d.Value = float64(d.Quantity) * c.Price

	if exp.Count+1 > b.MaxPositions {
		d.add(CodeMaxPositions,
			fmt.Sprintf("open positions %d at max %d", exp.Count, b.MaxPositions))
	}

	maxRisk := b.TotalOpenRiskPct * equity
	if exp.OpenRisk+d.RiskAmount > maxRisk {
		d.add(CodeTotalRisk,
			fmt.Sprintf("open risk %.2f + %.2f exceeds %.2f (%.2f%%)",
				exp.OpenRisk, d.RiskAmount, maxRisk, 100*b.TotalOpenRiskPct))
	}

	capPct := b.SectorCap(c.Sector)
	maxSector := capPct * equity
	if cur := exp.Sectors[c.Sector]; cur+d.Value > maxSector {
		d.add(CodeSectorCap,
			fmt.Sprintf("sector %s exposure %.2f + %.2f exceeds %.2f (%.2f%%)",
				c.Sector, cur, d.Value, maxSector, 100*capPct))
	}

	if d.Value > buyingPower-exp.Value {
		d.add(CodeBuyingPower,
			fmt.Sprintf("position value %.2f exceeds remaining buying power %.2f", d.Value, buyingPower-exp.Value))
	}

	return d
}
