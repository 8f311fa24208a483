// Package mediation implements the three-regression (Baron-Kenny) decomposition
// of an exposure's total effect on an outcome into the part transmitted
// through a mediator and the part acting directly.
//
//	path a: M ~ 1 + X
//	path b: Y ~ 1 + X + M   (coefficient on M; coefficient on X is c')
//	path c: Y ~ 1 + X       (total effect)
//
// No multiple-comparison correction is applied across the three p-values.
package mediation

import (
	"fmt"
	"math"
)

// DefaultEpsilon is the |c| threshold under which the mediated proportion is undefined.
const DefaultEpsilon = 1e-10

// DefaultMinObservations is the sample size an analysis must exceed.
const DefaultMinObservations = 100

// Options controls Analyze.
type Options struct {
	// MinObservations is the strict lower bound on complete cases; 0 uses DefaultMinObservations.
	MinObservations int
	// Epsilon guards the indirect/total ratio; 0 uses DefaultEpsilon.
	Epsilon float64
}

// DefaultOptions returns the thresholds used by the study scripts.
func DefaultOptions() Options {
	return Options{MinObservations: DefaultMinObservations, Epsilon: DefaultEpsilon}
}

// Decomposition splits the total effect.
type Decomposition struct {
	Indirect float64 `json:"indirect"`
	Direct   float64 `json:"direct"`
	// Ratio is Indirect/c and only meaningful when RatioDefined is true.
	Ratio        float64 `json:"ratio"`
	RatioDefined bool    `json:"ratio_defined"`
}

// PercentMediated returns Ratio*100 and whether it is defined.
func (d Decomposition) PercentMediated() (float64, bool) {
	if !d.RatioDefined {
		return 0, false
	}
	return d.Ratio * 100, true
}

// Decompose computes indirect = a*b and the mediated ratio indirect/c. The
// direct effect is supplied by the caller from the path-b regression and is
// not recomputed. When |c| <= eps the ratio is reported as undefined.
func Decompose(a, b, c, direct, eps float64) Decomposition {
	if eps <= 0 {
		eps = DefaultEpsilon
	}
	d := Decomposition{Indirect: a * b, Direct: direct}
	if math.Abs(c) > eps && !math.IsNaN(c) {
		d.Ratio = d.Indirect / c
		d.RatioDefined = true
	}
	return d
}

// Result bundles the three path fits and the decomposition.
type Result struct {
	N             int           `json:"n"`
	Dropped       int           `json:"dropped"`
	PathA         SimpleFit     `json:"path_a"`
	PathB         MultipleFit   `json:"path_b"`
	PathC         SimpleFit     `json:"path_c"`
	Decomposition Decomposition `json:"decomposition"`
}

// Analyze runs the full mediation model. Rows with a non-finite value in
// any of x, m, y are removed first; the remaining count must exceed
// opt.MinObservations.
func Analyze(x, m, y []float64, opt Options) (*Result, error) {
	if len(x) != len(m) || len(x) != len(y) {
		return nil, fmt.Errorf("length mismatch: x=%d m=%d y=%d", len(x), len(m), len(y))
	}
	minObs := opt.MinObservations
	if minObs <= 0 {
		minObs = DefaultMinObservations
	}
	cx, cm, cy := DropIncomplete(x, m, y)
	n := len(cx)
	if n <= minObs {
		return nil, &InsufficientDataError{Have: n, Need: minObs + 1}
	}

	a, err := FitPathA(cx, cm)
	if err != nil {
		return nil, &PathError{Path: "a", Err: err}
	}
	b, err := FitPathBAndDirect(cx, cm, cy)
	if err != nil {
		return nil, &PathError{Path: "b", Err: err}
	}
	c, err := FitPathC(cx, cy)
	if err != nil {
		return nil, &PathError{Path: "c", Err: err}
	}
	return &Result{
		N:             n,
		Dropped:       len(x) - n,
		PathA:         a,
		PathB:         b,
		PathC:         c,
		Decomposition: Decompose(a.Slope, b.B, c.Slope, b.Direct, opt.Epsilon),
	}, nil
}

// DropIncomplete returns copies of x, m, y restricted to rows where all
// three values are finite.
func DropIncomplete(x, m, y []float64) (cx, cm, cy []float64) {
	cx = make([]float64, 0, len(x))
	cm = make([]float64, 0, len(x))
	cy = make([]float64, 0, len(x))
	for i := range x {
		if !finite(x[i]) || !finite(m[i]) || !finite(y[i]) {
			continue
		}
		cx = append(cx, x[i])
		cm = append(cm, m[i])
		cy = append(cy, y[i])
	}
	return cx, cm, cy
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
