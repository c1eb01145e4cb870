package risk

import (
	"sort"
	"sync"
)

// Allocator serializes sizing across symbols within a cycle. Each accepted
// decision is added to the exposure before the next candidate is checked.
type Allocator struct {
	mu          sync.Mutex
	budget      Budget
	equity      float64
	buyingPower float64
	exp         *Exposure
}

// NewAllocator takes ownership of exp, which should already hold the open
// positions.
func NewAllocator(b Budget, equity, buyingPower float64, exp *Exposure) *Allocator {
	if exp == nil {
		exp = NewExposure()
	}
	return &Allocator{budget: b, equity: equity, buyingPower: buyingPower, exp: exp}
}

// Try sizes one candidate and, if allowed, commits it to the exposure. It is
// safe for concurrent use.
func (a *Allocator) Try(c Candidate) Decision {
	a.mu.Lock()
	defer a.mu.Unlock()

	d := Size(a.budget, a.exp, c, a.equity, a.buyingPower)
	if d.Allowed {
		a.exp.Add(c.Sector, d.RiskAmount, d.Value)
	}
	return d
}

// Allocate sizes candidates by strength descending, then symbol, and returns
// decisions in that order.
func (a *Allocator) Allocate(cands []Candidate) []Decision {
	ordered := append([]Candidate(nil), cands...)
	SortCandidates(ordered)

	out := make([]Decision, 0, len(ordered))
	for _, c := range ordered {
		out = append(out, a.Try(c))
	}
	return out
}

// Exposure returns a copy of the current accumulator.
func (a *Allocator) Exposure() Exposure {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.exp.clone()
}

// SortCandidates orders by strength descending with symbol as tiebreak.
func SortCandidates(cands []Candidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].Strength != cands[j].Strength {
			return cands[i].Strength > cands[j].Strength
		}
		return cands[i].Symbol < cands[j].Symbol
	})
}
