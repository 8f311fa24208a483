package cellsim

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/KaramelBytes/ckmtox/internal/ode"
	"go.uber.org/zap"
)

// IntegrationError reports that the ODE solver could not complete a run.
type IntegrationError struct {
	Time float64
	Step int
	Err  error
}

func (e *IntegrationError) Error() string {
	return fmt.Sprintf("integration failed at t=%.4g (step %d): %v", e.Time, e.Step, e.Err)
}

func (e *IntegrationError) Unwrap() error { return e.Err }

// Span is the integration window sampled at Steps evenly spaced points,
// both ends included.
type Span struct {
	T0    float64 `json:"t0"`
	T1    float64 `json:"t1"`
	Steps int     `json:"steps"`
}

// DefaultSpan is the 24 hour, 100 sample window used by the study runs.
func DefaultSpan() Span { return Span{T0: 0, T1: 24, Steps: 100} }

// Validate checks the window is usable.
func (s Span) Validate() error {
	if s.Steps < 2 {
		return fmt.Errorf("span needs at least 2 sample points, got %d", s.Steps)
	}
	if math.IsNaN(s.T0) || math.IsNaN(s.T1) || math.IsInf(s.T0, 0) || math.IsInf(s.T1, 0) || !(s.T1 > s.T0) {
		return fmt.Errorf("span end %v must be finite and after start %v", s.T1, s.T0)
	}
	return nil
}

// Sample is the state at one output time.
type Sample struct {
	T     float64 `json:"t"`
	State State   `json:"state"`
}

// Trajectory is an ordered run result.
type Trajectory []Sample

// Final returns the last state of the trajectory.
func (tr Trajectory) Final() State {
	if len(tr) == 0 {
		return State{}
	}
	return tr[len(tr)-1].State
}

// Series returns the time points and the values of one compartment.
func (tr Trajectory) Series(c Compartment) (ts, vs []float64) {
	ts = make([]float64, len(tr))
	vs = make([]float64, len(tr))
	for i, s := range tr {
		ts[i] = s.T
		vs[i] = s.State[c]
	}
	return ts, vs
}

// Observer is told about every finished run; used for metrics.
type Observer interface {
	ObserveRun(err error, seconds float64)
}

// Simulator runs the compartment model on a Solver.
type Simulator struct {
	Solver   ode.Solver
	Logger   *zap.Logger
	Observer Observer
}

// New returns a Simulator backed by the Dormand-Prince solver.
func New(logger *zap.Logger) *Simulator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Simulator{Solver: ode.NewDormandPrince(), Logger: logger}
}

// Integrate runs one simulation. The exposure compartment of initial is held
// fixed. An invalid initial state, parameter set or span is a plain error. Solver failures are returned as *IntegrationError and no partial
// trajectory is returned.
func (s *Simulator) Integrate(initial State, p Params, span Span) (Trajectory, error) {
	if err := initial.Validate(); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := span.Validate(); err != nil {
		return nil, err
	}
	solver := s.Solver
	if solver == nil {
		solver = ode.NewDormandPrince()
	}
	ts := ode.Linspace(span.T0, span.T1, span.Steps)
	exposure := initial[Exposure]
	f := func(_ float64, y, dy []float64) { p.Derivative(y, dy) }

	start := time.Now()
	out, err := solver.Solve(f, initial[:], ts)
	if err != nil {
		ie := &IntegrationError{Err: err}
		var se *ode.StepError
		if errors.As(err, &se) {
			ie.Time, ie.Step = se.Time, se.Step
		}
		s.observe(ie, start)
		return nil, ie
	}
	if len(out) != len(ts) {
		err := &IntegrationError{Time: span.T1, Err: fmt.Errorf("solver returned %d samples, want %d", len(out), len(ts))}
		s.observe(err, start)
		return nil, err
	}

	tr := make(Trajectory, len(ts))
	for i, y := range out {
		tr[i].T = ts[i]
		copy(tr[i].State[:], y)
		tr[i].State[Exposure] = exposure
	}
	s.observe(nil, start)
	return tr, nil
}

func (s *Simulator) observe(err error, start time.Time) {
	if s.Observer != nil {
		s.Observer.ObserveRun(err, time.Since(start).Seconds())
	}
}

// Integrate runs one simulation on a default Simulator.
func Integrate(initial State, p Params, span Span) (Trajectory, error) {
	return New(nil).Integrate(initial, p, span)
}
