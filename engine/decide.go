package engine

import (
	"sort"
	"time"

	"github.com/rustyeddy/equitybot/broker"
	"github.com/rustyeddy/equitybot/config"
	"github.com/rustyeddy/equitybot/position"
	"github.com/rustyeddy/equitybot/risk"
	"github.com/rustyeddy/equitybot/safety"
	"github.com/rustyeddy/equitybot/state"
)

// ReasonSignal is the reason attached to entries.
const ReasonSignal = "signal"

// Inputs is everything Decide reads besides the snapshot.
type Inputs struct {
	Now           time.Time
	Account       broker.Account
	Analyses      map[string]Analysis
	InEntryWindow bool
	PastFlattenBy bool
}

// Decide advances next by one cycle and returns the orders to place. next
// must be a private copy of the last committed snapshot; Decide updates its
// stops, signals, risk percentage and shadow count. Entries in symbols that
// have slipped past the target are shrunk. It performs no I/O.
func Decide(cfg *config.Config, next *state.Snapshot, in Inputs) Plan {
	var plan Plan
	gate := safety.Gate(next.Safety)
	mgr := position.NewManager(cfg.Exits)

	exiting := make(map[string]bool)
	for _, sym := range next.Positions.Symbols() {
		p := next.Positions[sym]
		a := in.Analyses[sym]

		var inst *position.Instruction
		switch {
		case gate.Flatten:
			i := position.Flatten(p, position.ReasonFlattenSafety, a.Price)
			inst = &i
		case in.PastFlattenBy:
			i := position.Flatten(p, position.ReasonFlattenEOD, a.Price)
			inst = &i
		default:
			q := position.Quote{Price: a.Price, OppositeCross: a.OppositeCross(p.Side)}
			if a.HasSet {
				q.ATR, q.Regime = a.Set.ATR, a.Set.Regime
			}
			p, inst = mgr.Manage(p, q)
			next.Positions[sym] = p
		}
		if inst == nil {
			continue
		}
		plan.Actions = append(plan.Actions, fromInstruction(*inst))
		if inst.Kind == position.KindExit {
			exiting[sym] = true
		}
	}

	for _, sym := range sortedSymbols(in.Analyses) {
		a := in.Analyses[sym]
		if !a.HasSignal {
			continue
		}
		next.LastSignals[sym] = a.Signal
		if a.Signal.Shadow() {
			next.Stats.Shadows++
		}
	}

	equity := in.Account.Equity
	pct := risk.AdaptiveRiskPct(cfg.Risk, equity, next.Risk.PeakEquity, next.Risk.Equities())
	next.Risk.RiskPct = pct
	plan.RiskPct = pct

	if gate.BlockEntries || !in.InEntryWindow || in.PastFlattenBy || equity <= 0 {
		return plan
	}

	universe := make(map[string]bool, len(cfg.Universe.Symbols))
	for _, s := range cfg.Universe.Symbols {
		universe[s] = true
	}

	var cands []risk.Candidate
	bySymbol := make(map[string]Analysis)
	for _, sym := range sortedSymbols(in.Analyses) {
		a := in.Analyses[sym]
		if !a.HasSignal || !a.Signal.Actionable() || a.Stale || !universe[sym] {
			continue
		}
		if _, held := next.Positions[sym]; held {
			continue
		}
		price := a.Price
		if price <= 0 {
			price = a.Signal.Price
		}
		cands = append(cands, risk.Candidate{
			Symbol:       sym,
			Sector:       cfg.Universe.Sector(sym),
			Side:         a.Signal.Direction.Side(),
			Price:        price,
			StopDistance: risk.StopDistance(cfg.Risk, price, a.Signal.ATR, a.Signal.Regime),
			Strength:     a.Signal.Strength,
		})
		bySymbol[sym] = a
	}
	if len(cands) == 0 {
		return plan
	}

	alloc := risk.NewAllocator(cfg.Risk.Budget(pct), equity, in.Account.BuyingPower,
		openExposure(next.Positions, in.Analyses, exiting))
	for _, d := range alloc.Allocate(cands) {
		c := d.Candidate
		if !d.Allowed {
			rej := Rejection{Symbol: c.Symbol, Side: c.Side, Codes: d.Codes(), Signal: bySymbol[c.Symbol].Signal}
			for _, v := range d.Violations {
				rej.Messages = append(rej.Messages, v.Msg)
			}
			plan.Rejections = append(plan.Rejections, rej)
			next.Stats.Shadows++
			continue
		}
		qty, riskAmount := d.Quantity, d.RiskAmount
		if f := risk.SlippageFactor(cfg.Risk, next.Slippage[c.Symbol]); f < 1 {
			qty = max(1, int64(float64(qty)*f))
			riskAmount = float64(qty) * c.StopDistance
		}
		plan.Actions = append(plan.Actions, Action{
			Kind:         ActionEntry,
			Symbol:       c.Symbol,
			Side:         c.Side,
			Quantity:     qty,
			Reason:       ReasonSignal,
			Price:        c.Price,
			Sector:       c.Sector,
			StopDistance: c.StopDistance,
			StopPrice:    d.StopPrice,
			RiskAmount:   riskAmount,
			Strength:     c.Strength,
		})
	}
	return plan
}

// openExposure seeds the allocator with the positions that survive this
// cycle's exits. Their market value is already reflected in the broker's
// buying power, so only count, risk and sector value are carried.
func openExposure(book position.Book, analyses map[string]Analysis, exiting map[string]bool) *risk.Exposure {
	exp := risk.NewExposure()
	for _, sym := range book.Symbols() {
		if exiting[sym] {
			continue
		}
		p := book[sym]
		px := analyses[sym].Price
		if px <= 0 {
			px = p.EntryPrice
		}
		exp.Count++
		exp.OpenRisk += p.RiskAmount
		exp.Sectors[p.Sector] += p.MarketValue(px)
	}
	return exp
}

func fromInstruction(i position.Instruction) Action {
	kind := ActionExit
	if i.Kind == position.KindReduce {
		kind = ActionReduce
	}
	return Action{
		Kind:       kind,
		Symbol:     i.Symbol,
		Side:       i.Side,
		Quantity:   i.Quantity,
		Reason:     i.Reason,
		PositionID: i.PositionID,
		Price:      i.Price,
	}
}

func sortedSymbols(m map[string]Analysis) []string {
	out := make([]string, 0, len(m))
	for s := range m {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
