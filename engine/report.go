package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/rustyeddy/equitybot/broker"
	"github.com/rustyeddy/equitybot/market"
	"github.com/rustyeddy/equitybot/position"
	"github.com/rustyeddy/equitybot/risk"
	"github.com/rustyeddy/equitybot/safety"
	"github.com/rustyeddy/equitybot/strategies"
)

// ActionKind is what an Action does to the book.
type ActionKind string

const (
	ActionEntry  ActionKind = "entry"
	ActionExit   ActionKind = "exit"
	ActionReduce ActionKind = "reduce"
)

// Action is one order the cycle decided to place.
type Action struct {
	Kind       ActionKind  `json:"kind"`
	Symbol     string      `json:"symbol"`
	Side       market.Side `json:"side"`
	Quantity   int64       `json:"quantity"`
	Reason     string      `json:"reason,omitempty"`
	PositionID string      `json:"position_id,omitempty"`
	Price      float64     `json:"price"`

	// Entry only.
	Sector       string  `json:"sector,omitempty"`
	StopDistance float64 `json:"stop_distance,omitempty"`
	StopPrice    float64 `json:"stop_price,omitempty"`
	RiskAmount   float64 `json:"risk_amount,omitempty"`
	Strength     float64 `json:"strength,omitempty"`
}

// candidate is the sizing input an entry was built from.
func (a Action) candidate() risk.Candidate {
	return risk.Candidate{
		Symbol:       a.Symbol,
		Sector:       a.Sector,
		Side:         a.Side,
		Price:        a.Price,
		StopDistance: a.StopDistance,
		Strength:     a.Strength,
	}
}

func (a Action) String() string {
	s := fmt.Sprintf("%s %s %s %d @ %.2f", a.Kind, a.Side, a.Symbol, a.Quantity, a.Price)
	if a.Reason != "" {
		s += " (" + a.Reason + ")"
	}
	return s
}

// Plan is the ordered output of Decide. Exits and reductions come before
// entries.
type Plan struct {
	Actions    []Action    `json:"actions,omitempty"`
	Rejections []Rejection `json:"rejections,omitempty"`
	RiskPct    float64     `json:"risk_pct"`
}

// Exits returns the exit and reduce actions in plan order.
func (p Plan) Exits() []Action {
	var out []Action
	for _, a := range p.Actions {
		if a.Kind != ActionEntry {
			out = append(out, a)
		}
	}
	return out
}

// Entries returns the entry actions in plan order.
func (p Plan) Entries() []Action {
	var out []Action
	for _, a := range p.Actions {
		if a.Kind == ActionEntry {
			out = append(out, a)
		}
	}
	return out
}

// Rejection is an actionable signal the risk sizer turned away, either in
// Decide or at execution when a failed exit left the book fuller than
// planned.
type Rejection struct {
	Symbol   string            `json:"symbol"`
	Side     market.Side       `json:"side"`
	Codes    []string          `json:"codes"`
	Messages []string          `json:"messages,omitempty"`
	Signal   strategies.Signal `json:"-"`
}

// Fill is an executed Action.
type Fill struct {
	Action     Action    `json:"action"`
	OrderID    string    `json:"order_id"`
	ClientID   string    `json:"client_order_id"`
	Quantity   int64     `json:"quantity"`
	Price      float64   `json:"price"`
	RealizedPL float64   `json:"realized_pl,omitempty"`
	Time       time.Time `json:"time"`
}

// Reconciliation is one difference found between the book and the broker.
type Reconciliation struct {
	Kind     string  `json:"kind"`
	Symbol   string  `json:"symbol"`
	Detail   string  `json:"detail"`
	Quantity int64   `json:"quantity"`
	Price    float64 `json:"price,omitempty"`
}

// Reconciliation kinds.
const (
	ReconcileClosedExternal = "closed_external"
	ReconcileAdopted        = "adopted"
	ReconcileQuantity       = "quantity_mismatch"
)

// SymbolError records a symbol whose data could not be used this cycle.
// Counted is true when the error went to the kill switch tally.
type SymbolError struct {
	Symbol  string `json:"symbol"`
	Error   string `json:"error"`
	Counted bool   `json:"counted"`
}

// Report describes one cycle.
type Report struct {
	Cycle       int64                `json:"cycle"`
	SessionDate string               `json:"session_date"`
	StartedAt   time.Time            `json:"started_at"`
	Duration    time.Duration        `json:"duration"`
	DryRun      bool                 `json:"dry_run"`
	Account     broker.Account       `json:"account"`
	Gate        safety.Decision      `json:"gate"`
	Safety      safety.State         `json:"safety"`
	Benchmark   strategies.Benchmark `json:"benchmark"`
	Signals     []strategies.Signal  `json:"signals,omitempty"`
	Plan        Plan                 `json:"plan"`
	Fills       []Fill               `json:"fills,omitempty"`
	Dropped     []Rejection          `json:"dropped,omitempty"`
	Reconciled  []Reconciliation     `json:"reconciled,omitempty"`
	Skipped     []SymbolError        `json:"skipped,omitempty"`
	Errors      []string             `json:"errors,omitempty"`
	Positions   []position.Position  `json:"positions,omitempty"`
}

// Shadows counts the signals that failed a filter.
func (r Report) Shadows() int {
	n := 0
	for _, s := range r.Signals {
		if s.Shadow() {
			n++
		}
	}
	return n
}

// Summary is a one-line description for logs and notifications.
func (r Report) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "cycle %d %s", r.Cycle, r.SessionDate)
	if r.DryRun {
		b.WriteString(" (dry run)")
	}
	fmt.Fprintf(&b, ": equity %.2f, %d signals, %d shadows, %d planned, %d filled, gate %s",
		r.Account.Equity, len(r.Signals), r.Shadows(), len(r.Plan.Actions), len(r.Fills), r.Gate)
	return b.String()
}
