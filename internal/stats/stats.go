package stats

import (
	"math"
	"sort"
)

// Percentile computes the q-quantile (q in [0,1]) of sorted ascending values
// by linear interpolation between the two closest ranks at position (n-1)*q.
// Returns ok=false for an empty sample; a single-element sample returns that
// element.
func Percentile(sorted []float64, q float64) (float64, bool) {
	n := len(sorted)
	if n == 0 {
		return 0, false
	}
	if n == 1 {
		return sorted[0], true
	}
	pos := float64(n-1) * q
	lower := int(pos)
	upper := lower + 1
	if upper > n-1 {
		upper = n - 1
	}
	frac := pos - float64(lower)
	return sorted[lower]*(1-frac) + sorted[upper]*frac, true
}

// Quartiles holds the p25/p75/p90 spread used by the cycle-time tables.
// Nil fields mean the sample was empty.
type Quartiles struct {
	P25 *float64
	P75 *float64
	P90 *float64
}

// Percentiles returns the p25/p75/p90 spread of values. The input is copied
// and sorted internally.
func Percentiles(values []float64) Quartiles {
	if len(values) == 0 {
		return Quartiles{}
	}
	s := append([]float64(nil), values...)
	sort.Float64s(s)
	q := Quartiles{}
	if v, ok := Percentile(s, 0.25); ok {
		q.P25 = &v
	}
	if v, ok := Percentile(s, 0.75); ok {
		q.P75 = &v
	}
	if v, ok := Percentile(s, 0.90); ok {
		q.P90 = &v
	}
	return q
}

// Mean returns the arithmetic mean. ok=false for an empty sample.
func Mean(values []float64) (float64, bool) {
	if len(values) == 0 {
		return 0, false
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values)), true
}

// Median returns the sample median (average of the two central observations
// for even n). ok=false for an empty sample.
func Median(values []float64) (float64, bool) {
	n := len(values)
	if n == 0 {
		return 0, false
	}
	s := append([]float64(nil), values...)
	sort.Float64s(s)
	if n%2 == 1 {
		return s[n/2], true
	}
	return (s[n/2-1] + s[n/2]) / 2, true
}

// StdDev returns the sample standard deviation (n-1 denominator).
// Samples with fewer than two observations have zero deviation.
func StdDev(values []float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}
	mean, _ := Mean(values)
	var ss float64
	for _, v := range values {
		d := v - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(n-1))
}

// Min returns the smallest value. ok=false for an empty sample.
func Min(values []float64) (float64, bool) {
	if len(values) == 0 {
		return 0, false
	}
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m, true
}

// Max returns the largest value. ok=false for an empty sample.
func Max(values []float64) (float64, bool) {
	if len(values) == 0 {
		return 0, false
	}
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m, true
}

// Round1 rounds to one decimal place. Used only at output boundaries;
// internal computation keeps full precision.
func Round1(v float64) float64 { return math.Round(v*10) / 10 }

// Round2 rounds to two decimal places.
func Round2(v float64) float64 { return math.Round(v*100) / 100 }

// Round3 rounds to three decimal places.
func Round3(v float64) float64 { return math.Round(v*1000) / 1000 }
