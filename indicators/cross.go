package indicators

// Cross is the classification of an EMA crossover between two consecutive
// bars.
type Cross int

const (
	CrossNone Cross = iota
	CrossUp
	CrossDown
)

func (c Cross) String() string {
	switch c {
	case CrossUp:
		return "up"
	case CrossDown:
		return "down"
	default:
		return "none"
	}
}

// Crossover compares the previous and current fast/slow pairs. Fast moving
// from at-or-below slow to strictly above is up; the mirror is down.
func Crossover(prevFast, prevSlow, fast, slow float64) Cross {
	switch {
	case prevFast <= prevSlow && fast > slow:
		return CrossUp
	case prevFast >= prevSlow && fast < slow:
		return CrossDown
	default:
		return CrossNone
	}
}
