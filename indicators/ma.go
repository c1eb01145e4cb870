package indicators

import "fmt"

// SMA is the simple average of the last n values.
func SMA(values []float64, n int) (float64, error) {
	if err := checkPeriod("SMA", n); err != nil {
		return 0, err
	}
	if len(values) < n {
		return 0, insufficient(fmt.Sprintf("SMA(%d)", n), n, len(values))
	}
	sum := 0.0
	for _, v := range values[len(values)-n:] {
		sum += v
	}
	return sum / float64(n), nil
}

// EMASeries returns the EMA for every index from n-1 onward. The first value
// is the SMA of the first n inputs; later values apply alpha = 2/(n+1).
// out[i] corresponds to values[i+n-1].
func EMASeries(values []float64, n int) ([]float64, error) {
	if err := checkPeriod("EMA", n); err != nil {
		return nil, err
	}
	if len(values) < n {
		return nil, insufficient(fmt.Sprintf("EMA(%d)", n), n, len(values))
	}

	alpha := 2.0 / float64(n+1)
	out := make([]float64, 0, len(values)-n+1)

	seed := 0.0
	for _, v := range values[:n] {
		seed += v
	}
	ema := seed / float64(n)
	out = append(out, ema)

	for _, v := range values[n:] {
		ema = alpha*v + (1.0-alpha)*ema
		out = append(out, ema)
	}
	return out, nil
}

// EMA returns the EMA at the latest value.
func EMA(values []float64, n int) (float64, error) {
	s, err := EMASeries(values, n)
	if err != nil {
		return 0, err
	}
	return last(s), nil
}

// EMAPair holds the current and previous values of a fast/slow EMA pair.
type EMAPair struct {
	Fast, Slow         float64
	PrevFast, PrevSlow float64
}

// Cross classifies the pair's latest crossover.
func (p EMAPair) Cross() Cross {
	return Crossover(p.PrevFast, p.PrevSlow, p.Fast, p.Slow)
}

// EMACross computes a fast/slow EMA pair at the last two bars. It needs
// slow+1 values so the previous slow EMA exists.
func EMACross(values []float64, fast, slow int) (EMAPair, error) {
	need := max(fast, slow) + 1
	if len(values) < need {
		return EMAPair{}, insufficient(fmt.Sprintf("EMA(%d/%d) cross", fast, slow), need, len(values))
	}
	fs, err := EMASeries(values, fast)
	if err != nil {
		return EMAPair{}, err
	}
	ss, err := EMASeries(values, slow)
	if err != nil {
		return EMAPair{}, err
	}
	return EMAPair{
		Fast:     fs[len(fs)-1],
		Slow:     ss[len(ss)-1],
		PrevFast: fs[len(fs)-2],
		PrevSlow: ss[len(ss)-2],
	}, nil
}
