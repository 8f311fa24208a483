package cellsim

import (
	"context"
	"iter"
	"math"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DosePoint is the terminal blood pressure for one exposure level. A failed
// run has FinalBP = NaN and Err set.
type DosePoint struct {
	Exposure float64 `json:"exposure"`
	FinalBP  float64 `json:"final_bp"`
	Err      error   `json:"-"`
}

// Failed reports whether the run behind this point did not complete.
func (d DosePoint) Failed() bool { return d.Err != nil }

// SensitivityPoint is the terminal blood pressure for one value of the varied parameter.
type SensitivityPoint struct {
	Value   float64 `json:"value"`
	FinalBP float64 `json:"final_bp"`
	Err     error   `json:"-"`
}

// Failed reports whether the run behind this point did not complete.
func (s SensitivityPoint) Failed() bool { return s.Err != nil }

// finalBP runs one simulation from the default state and returns the last
// BloodPressure value, or NaN and the error.
func (s *Simulator) finalBP(exposure float64, p Params, span Span) (float64, error) {
	tr, err := s.Integrate(DefaultState(exposure), p, span)
	if err != nil {
		s.logger().Debug("simulation failed", zap.Float64("exposure", exposure), zap.Error(err))
		return math.NaN(), err
	}
	return tr.Final()[BloodPressure], nil
}

func (s *Simulator) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

// DoseResponse lazily yields one DosePoint per exposure level, in order.
// Each iteration re-runs the simulations, and a failed run is recorded on
// its point without stopping the sweep.
func (s *Simulator) DoseResponse(exposures []float64, p Params, span Span) iter.Seq[DosePoint] {
	levels := append([]float64(nil), exposures...)
	return func(yield func(DosePoint) bool) {
		for _, e := range levels {
			bp, err := s.finalBP(e, p, span)
			if !yield(DosePoint{Exposure: e, FinalBP: bp, Err: err}) {
				return
			}
		}
	}
}

// DoseResponseConcurrent computes the same points as DoseResponse using up to
// workers goroutines. Results keep input order. The only error returned is
// context cancellation; per-run failures stay on their points.
func (s *Simulator) DoseResponseConcurrent(ctx context.Context, exposures []float64, p Params, span Span, workers int) ([]DosePoint, error) {
	out := make([]DosePoint, len(exposures))
	g, gctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i, e := range exposures {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			bp, err := s.finalBP(e, p, span)
			out[i] = DosePoint{Exposure: e, FinalBP: bp, Err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Sensitivity varies the named parameter across values, holding every other
// constant of base fixed, and returns one point per value. An unknown name
// fails the whole call; a failed run is recorded on its point.
func (s *Simulator) Sensitivity(name string, values []float64, base Params, exposure float64, span Span) ([]SensitivityPoint, error) {
	if _, err := base.Get(name); err != nil {
		return nil, err
	}
	out := make([]SensitivityPoint, 0, len(values))
	for _, v := range values {
		p := base
		if err := p.Set(name, v); err != nil {
			return nil, err
		}
		bp, err := s.finalBP(exposure, p, span)
		out = append(out, SensitivityPoint{Value: v, FinalBP: bp, Err: err})
	}
	return out, nil
}

// DoseResponse runs the sweep on a default Simulator.
func DoseResponse(exposures []float64, p Params, span Span) iter.Seq[DosePoint] {
	return New(nil).DoseResponse(exposures, p, span)
}

// Sensitivity runs the sweep on a default Simulator.
func Sensitivity(name string, values []float64, base Params, exposure float64, span Span) ([]SensitivityPoint, error) {
	return New(nil).Sensitivity(name, values, base, exposure, span)
}
