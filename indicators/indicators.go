// Package indicators computes the technical indicators the signal pipeline
// consumes. Every function is pure and deterministic for a given input.
package indicators

import (
	"errors"
	"fmt"
	"sort"
)

// ErrInsufficientData is returned when a series is shorter than an
// indicator's minimum lookback. No partial value is ever returned with it.
var ErrInsufficientData = errors.New("insufficient data")

func insufficient(name string, need, got int) error {
	return fmt.Errorf("%s: %w: need %d bars, got %d", name, ErrInsufficientData, need, got)
}

func checkPeriod(name string, n int) error {
	if n <= 0 {
		return fmt.Errorf("%s: period must be positive, got %d", name, n)
	}
	return nil
}

// Median returns the median of values, or 0 for an empty slice. The input is
// not modified.
func Median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	cp := append([]float64(nil), values...)
	sort.Float64s(cp)
	mid := len(cp) / 2
	if len(cp)%2 == 1 {
		return cp[mid]
	}
	return (cp[mid-1] + cp[mid]) / 2
}

func last(xs []float64) float64 {
	return xs[len(xs)-1]
}
