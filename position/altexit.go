package position

// AltExit is a scale-out rule that is never traded. Reaching it is recorded
// so its outcome can be compared with the live exits.
type AltExit struct {
	Name     string
	R        int
	Fraction float64
}

// AltExits are checked in order of R.
var AltExits = []AltExit{
	{Name: "scale_25_at_1r_25_at_2r", R: 1, Fraction: 0.25},
	{Name: "scale_50_at_2r", R: 2, Fraction: 0.5},
}

// ReachAltExits returns the alternative exits p reaches at price that were
// not recorded before, and p with them marked. Each fires once per position.
func (p Position) ReachAltExits(price float64) ([]AltExit, Position) {
	r := p.RMultiple(price)
	var out []AltExit
	for _, a := range AltExits {
		if a.R <= p.AltExitR || r < float64(a.R) {
			continue
		}
		out = append(out, a)
		p.AltExitR = a.R
	}
	return out, p
}
