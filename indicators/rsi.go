package indicators

import "fmt"

// RSI is Wilder's Relative Strength Index over n periods. It needs n+1
// values (n price changes).
func RSI(values []float64, n int) (float64, error) {
	if err := checkPeriod("RSI", n); err != nil {
		return 0, err
	}
	if len(values) < n+1 {
		return 0, insufficient(fmt.Sprintf("RSI(%d)", n), n+1, len(values))
	}

	var gain, loss float64
	for i := 1; i <= n; i++ {
		ch := values[i] - values[i-1]
		if ch > 0 {
			gain += ch
		} else {
			loss -= ch
		}
	}
	nf := float64(n)
	avgGain, avgLoss := gain/nf, loss/nf

	for i := n + 1; i < len(values); i++ {
		ch := values[i] - values[i-1]
		g, l := 0.0, 0.0
		if ch > 0 {
			g = ch
		} else {
			l = -ch
		}
		avgGain = (avgGain*(nf-1) + g) / nf
		avgLoss = (avgLoss*(nf-1) + l) / nf
	}

	switch {
	case avgLoss == 0 && avgGain == 0:
		return 50, nil
	case avgLoss == 0:
		return 100, nil
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs), nil
}
