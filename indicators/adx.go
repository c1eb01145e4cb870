package indicators

import (
	"fmt"
	"math"

	"github.com/rustyeddy/equitybot/market"
)

// ADXResult carries the Average Directional Index and its directional
// indicators at the latest bar.
type ADXResult struct {
	ADX     float64
	PlusDI  float64
	MinusDI float64
}

// ADX computes Wilder's ADX over n periods. It needs 2n bars: n periods to
// seed the smoothed TR/+DM/-DM and n DX values to seed the ADX itself.
func ADX(bars market.Bars, n int) (ADXResult, error) {
	if err := checkPeriod("ADX", n); err != nil {
		return ADXResult{}, err
	}
	if len(bars) < 2*n {
		return ADXResult{}, insufficient(fmt.Sprintf("ADX(%d)", n), 2*n, len(bars))
	}

	a := newADXState(n)
	for _, b := range bars {
		a.update(b)
	}
	if !a.ready {
		return ADXResult{}, insufficient(fmt.Sprintf("ADX(%d)", n), 2*n, len(bars))
	}
	return ADXResult{ADX: a.adx, PlusDI: a.plusDI, MinusDI: a.minusDI}, nil
}

// adxState is a streaming Wilder ADX. Each bar after the first forms one
// period.
type adxState struct {
	n       int
	prev    market.Bar
	hasPrev bool
	periods int
	ready   bool

	adx     float64
	plusDI  float64
	minusDI float64

	sumTR      float64
	sumPlusDM  float64
	sumMinusDM float64

	smTR      float64
	smPlusDM  float64
	smMinusDM float64

	dxSum   float64
	dxCount int
}

func newADXState(n int) *adxState {
	return &adxState{n: n}
}

func (a *adxState) update(c market.Bar) {
	if !a.hasPrev {
		a.prev = c
		a.hasPrev = true
		return
	}

	tr := TrueRange(c, a.prev.Close)

	upMove := c.High - a.prev.High
	downMove := a.prev.Low - c.Low

	var plusDM, minusDM float64
	if upMove > downMove && upMove > 0 {
		plusDM = upMove
	}
	if downMove > upMove && downMove > 0 {
		minusDM = downMove
	}

	a.periods++
	a.prev = c

	if a.periods <= a.n {
		a.sumTR += tr
		a.sumPlusDM += plusDM
		a.sumMinusDM += minusDM

		if a.periods == a.n {
			a.smTR = a.sumTR
			a.smPlusDM = a.sumPlusDM
			a.smMinusDM = a.sumMinusDM

			a.plusDI, a.minusDI = di(a.smPlusDM, a.smMinusDM, a.smTR)
			a.dxSum = dx(a.plusDI, a.minusDI)
			a.dxCount = 1
			if a.n == 1 {
				a.adx = a.dxSum
				a.ready = true
			}
		}
		return
	}

	// smoothed = prior - prior/N + current
	nf := float64(a.n)
	a.smTR = a.smTR - (a.smTR / nf) + tr
	a.smPlusDM = a.smPlusDM - (a.smPlusDM / nf) + plusDM
	a.smMinusDM = a.smMinusDM - (a.smMinusDM / nf) + minusDM

	a.plusDI, a.minusDI = di(a.smPlusDM, a.smMinusDM, a.smTR)
	dxVal := dx(a.plusDI, a.minusDI)

	if !a.ready {
		a.dxSum += dxVal
		a.dxCount++
		if a.dxCount >= a.n {
			a.adx = a.dxSum / nf
			a.ready = true
		}
		return
	}
	a.adx = (a.adx*(nf-1.0) + dxVal) / nf
}

func di(smPlusDM, smMinusDM, smTR float64) (plusDI, minusDI float64) {
	if smTR <= 0 {
		return 0, 0
	}
	return 100.0 * (smPlusDM / smTR), 100.0 * (smMinusDM / smTR)
}

func dx(plusDI, minusDI float64) float64 {
	den := plusDI + minusDI
	if den <= 0 {
		return 0
	}
	return 100.0 * (math.Abs(plusDI-minusDI) / den)
}
