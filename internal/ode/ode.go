// Package ode integrates systems of first-order ordinary differential equations.
//
// A Solver takes a derivative function, an initial state and an increasing
// list of output times, and returns the state at every output time. Solvers
// never return partially integrated or NaN-filled trajectories: any failure
// is reported as an error wrapping one of the sentinel errors below.
package ode

import "errors"

// Func evaluates dy/dt at time t for state y, writing the result into dy.
// Implementations must not retain y or dy.
type Func func(t float64, y, dy []float64)

// Solver integrates f from ts[0] to ts[len(ts)-1] starting at y0 and returns
// one state per entry of ts; the first entry is a copy of y0.
type Solver interface {
	Solve(f Func, y0 []float64, ts []float64) ([][]float64, error)
}

var (
	// ErrStepTooSmall indicates the adaptive step fell below the minimum
	// without meeting the error tolerance.
	ErrStepTooSmall = errors.New("ode: step size below minimum")

	// ErrMaxSteps indicates the step budget was exhausted before reaching the final time.
	ErrMaxSteps = errors.New("ode: maximum number of steps exceeded")

	// ErrNonFinite indicates the state or its derivative became NaN or Inf.
	ErrNonFinite = errors.New("ode: non-finite state")

	// ErrBadTimes indicates fewer than two output times or times that are not strictly increasing.
	ErrBadTimes = errors.New("ode: output times must be strictly increasing with at least two points")
)

// StepError adds the failure location to a sentinel error.
type StepError struct {
	Time float64
	Step int
	Err  error
}

func (e *StepError) Error() string { return e.Err.Error() }

func (e *StepError) Unwrap() error { return e.Err }

// Linspace returns n evenly spaced points from a to b inclusive.
func Linspace(a, b float64, n int) []float64 {
	if n <= 0 {
		return nil
	}
	if n == 1 {
		return []float64{a}
	}
	out := make([]float64, n)
	step := (b - a) / float64(n-1)
	for i := range out {
		out[i] = a + float64(i)*step
	}
	out[n-1] = b
	return out
}
