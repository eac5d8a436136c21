package ecdf

import (
	"fmt"
	"math"
	"sort"
)

// Percentiles holds the nearest-rank percentiles of the sample. Nil fields
// mean the sample was empty.
type Percentiles struct {
	P50 *float64 `json:"p50"`
	P90 *float64 `json:"p90"`
	P95 *float64 `json:"p95"`
	P99 *float64 `json:"p99"`
}

// Grid is the step-function evaluation of F on a regular grid.
type Grid struct {
	T []int     `json:"t"`
	F []float64 `json:"F"`
}

// Support is the observed sample range. Nil fields mean the sample was empty.
type Support struct {
	Min *int `json:"min"`
	Max *int `json:"max"`
}

// Eval is one caller-requested point evaluation of F.
type Eval struct {
	T int     `json:"t"`
	F float64 `json:"F"`
}

// Result is the full ECDF of one duration sample. For an empty sample every
// aggregate is explicitly empty or null — the shape is always present so
// consumers can tell "computed from zero observations" apart from "not
// computed".
type Result struct {
	N           int         `json:"n"`
	Percentiles Percentiles `json:"percentiles"`
	Grid        Grid        `json:"grid"`
	Support     Support     `json:"support"`
	FAt         []Eval      `json:"F_at,omitempty"`
}

// Params configures grid construction and point evaluations.
type Params struct {
	// GridStep is the spacing of grid points in minutes. Must be positive.
	GridStep int

	// GridMax caps the grid; zero means "up to the sample maximum".
	GridMax int

	// EvalAt lists extra minute values at which to report F(t).
	EvalAt []int
}

// Validate rejects caller-bug parameters before computation.
func (p Params) Validate() error {
	if p.GridStep <= 0 {
		return fmt.Errorf("grid_step must be positive, got %d", p.GridStep)
	}
	if p.GridMax < 0 {
		return fmt.Errorf("grid_max must not be negative, got %d", p.GridMax)
	}
	return nil
}

// Compute builds the ECDF of durations (whole minutes). F(t) is the fraction
// of observations <= t, found by binary search over the sorted sample, so F
// is right-continuous and non-decreasing with F(t) = 1 for t >= max(sample)
// and F(t) = 0 for t < min(sample).
func Compute(durations []int, p Params) (Result, error) {
	if err := p.Validate(); err != nil {
		return Result{}, err
	}

	n := len(durations)
	if n == 0 {
		return Result{Grid: Grid{T: []int{}, F: []float64{}}}, nil
	}

	xs := append([]int(nil), durations...)
	sort.Ints(xs)

	gridMax := p.GridMax
	if gridMax == 0 {
		gridMax = xs[n-1]
	}

	res := Result{N: n}

	for t := 0; t <= gridMax; t += p.GridStep {
		res.Grid.T = append(res.Grid.T, t)
		res.Grid.F = append(res.Grid.F, at(xs, t))
	}

	res.Percentiles = Percentiles{
		P50: rank(xs, 0.50),
		P90: rank(xs, 0.90),
		P95: rank(xs, 0.95),
		P99: rank(xs, 0.99),
	}
	res.Support = Support{Min: &xs[0], Max: &xs[n-1]}

	for _, t := range p.EvalAt {
		res.FAt = append(res.FAt, Eval{T: t, F: at(xs, t)})
	}
	return res, nil
}

// at evaluates F(t) = #{x <= t} / n over the sorted sample.
func at(sorted []int, t int) float64 {
	k := sort.SearchInts(sorted, t+1) // first index with x > t
	return float64(k) / float64(len(sorted))
}

// rank returns the nearest-rank percentile: the sample value at index
// ceil(p*n)-1, clamped into range.
func rank(sorted []int, p float64) *float64 {
	n := len(sorted)
	idx := int(math.Ceil(p*float64(n))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx > n-1 {
		idx = n - 1
	}
	v := float64(sorted[idx])
	return &v
}
