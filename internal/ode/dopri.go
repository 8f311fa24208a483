package ode

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Dormand-Prince 5(4) tableau.
var (
	dpC = [7]float64{0, 1.0 / 5, 3.0 / 10, 4.0 / 5, 8.0 / 9, 1, 1}
	dpA = [7][6]float64{
		{},
		{1.0 / 5},
		{3.0 / 40, 9.0 / 40},
		{44.0 / 45, -56.0 / 15, 32.0 / 9},
		{19372.0 / 6561, -25360.0 / 2187, 64448.0 / 6561, -212.0 / 729},
		{9017.0 / 3168, -355.0 / 33, 46732.0 / 5247, 49.0 / 176, -5103.0 / 18656},
		{35.0 / 384, 0, 500.0 / 1113, 125.0 / 192, -2187.0 / 6784, 11.0 / 84},
	}
	// dpE is the difference between the 5th and embedded 4th order weights.
	dpE = [7]float64{
		71.0 / 57600, 0, -71.0 / 16695, 71.0 / 1920, -17253.0 / 339200, 22.0 / 525, -1.0 / 40,
	}
)

// DormandPrince is an explicit adaptive Runge-Kutta 5(4) solver with
// per-component mixed absolute/relative error control. It lands exactly on
// every requested output time.
type DormandPrince struct {
	RelTol float64
	AbsTol float64
	// MinStep is relative to the total span ts[last]-ts[0].
	MinStep  float64
	MaxSteps int
}

// NewDormandPrince returns a solver with tolerances suitable for the
// smooth, mildly stiff kinetics in this module.
func NewDormandPrince() *DormandPrince {
	return &DormandPrince{
		RelTol:   1e-9,
		AbsTol:   1e-12,
		MinStep:  1e-12,
		MaxSteps: 200000,
	}
}

type dpWork struct {
	k    [7][]float64
	tmp  []float64
	ynew []float64
	errv []float64
}

func newDPWork(n int) *dpWork {
	w := &dpWork{tmp: make([]float64, n), ynew: make([]float64, n), errv: make([]float64, n)}
	for i := range w.k {
		w.k[i] = make([]float64, n)
	}
	return w
}

// Solve implements Solver.
func (s *DormandPrince) Solve(f Func, y0 []float64, ts []float64) ([][]float64, error) {
	if len(ts) < 2 {
		return nil, ErrBadTimes
	}
	for i := 1; i < len(ts); i++ {
		if !(ts[i] > ts[i-1]) {
			return nil, ErrBadTimes
		}
	}
	if !allFinite(y0) {
		return nil, &StepError{Time: ts[0], Err: ErrNonFinite}
	}

	n := len(y0)
	span := ts[len(ts)-1] - ts[0]
	minStep := s.MinStep * span
	maxSteps := s.MaxSteps
	if maxSteps <= 0 {
		maxSteps = 200000
	}
	w := newDPWork(n)

	out := make([][]float64, len(ts))
	out[0] = append([]float64(nil), y0...)
	y := append([]float64(nil), y0...)
	t := ts[0]
	h := math.Min(span/100, ts[1]-ts[0])
	steps := 0

	for i := 1; i < len(ts); i++ {
		target := ts[i]
		for t < target {
			if steps >= maxSteps {
				return nil, &StepError{Time: t, Step: steps, Err: ErrMaxSteps}
			}
			step := h
			clamped := false
			if t+step >= target {
				step = target - t
				clamped = true
			}
			errNorm := s.step(f, t, y, step, w)
			steps++

			factor := 0.2
			if errNorm == 0 {
				factor = 5
			} else if !math.IsNaN(errNorm) && !math.IsInf(errNorm, 0) {
				factor = math.Min(5, math.Max(0.2, 0.9*math.Pow(errNorm, -0.2)))
			}

			if errNorm <= 1 {
				if !allFinite(w.ynew) {
					return nil, &StepError{Time: t + step, Step: steps, Err: ErrNonFinite}
				}
				copy(y, w.ynew)
				if clamped {
					t = target
				} else {
					t += step
					h = step * factor
				}
				continue
			}
			h = step * factor
			if h < minStep {
				return nil, &StepError{Time: t, Step: steps, Err: ErrStepTooSmall}
			}
		}
		out[i] = append([]float64(nil), y...)
	}
	return out, nil
}

// step advances y by h into w.ynew and returns the scaled RMS error estimate.
func (s *DormandPrince) step(f Func, t float64, y []float64, h float64, w *dpWork) float64 {
	f(t, y, w.k[0])
	for st := 1; st < 7; st++ {
		copy(w.tmp, y)
		for j := 0; j < st; j++ {
			if a := dpA[st][j]; a != 0 {
				floats.AddScaled(w.tmp, h*a, w.k[j])
			}
		}
		f(t+dpC[st]*h, w.tmp, w.k[st])
	}
	// The 7th stage argument is the 5th-order solution.
	copy(w.ynew, w.tmp)

	for i := range w.errv {
		w.errv[i] = 0
	}
	for st := 0; st < 7; st++ {
		if e := dpE[st]; e != 0 {
			floats.AddScaled(w.errv, h*e, w.k[st])
		}
	}
	var sum float64
	for i := range w.errv {
		sc := s.AbsTol + s.RelTol*math.Max(math.Abs(y[i]), math.Abs(w.ynew[i]))
		r := w.errv[i] / sc
		sum += r * r
	}
	return math.Sqrt(sum / float64(len(w.errv)))
}

func allFinite(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
