// Package metrics counts regressions and simulation runs in a private
// Prometheus registry that the CLI can dump in text exposition format.
package metrics

import (
	"errors"
	"fmt"

	"github.com/KaramelBytes/ckmtox/internal/mediation"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels.
const (
	OutcomeOK           = "ok"
	OutcomeInsufficient = "insufficient_data"
	OutcomeSingular     = "singular"
	OutcomeError        = "error"
)

// Recorder holds the collectors. It is safe for concurrent use.
type Recorder struct {
	Registry *prometheus.Registry

	regressions *prometheus.CounterVec
	simulations *prometheus.CounterVec
	simSeconds  prometheus.Histogram
}

// New registers the collectors on a fresh registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Recorder{
		Registry: reg,
		regressions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ckmtox_regressions_total",
			Help: "Regression fits by mediation path and outcome",
		}, []string{"path", "outcome"}),
		simulations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ckmtox_simulations_total",
			Help: "Compartment model runs by outcome",
		}, []string{"outcome"}),
		simSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "ckmtox_simulation_seconds",
			Help:    "Wall time of one compartment model run",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14), // 0.1ms to ~800ms
		}),
	}
}

// ObserveRun implements cellsim.Observer.
func (r *Recorder) ObserveRun(err error, seconds float64) {
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	r.simulations.WithLabelValues(outcome).Inc()
	r.simSeconds.Observe(seconds)
}

// ObserveMediation counts the three path fits of one Analyze call. Paths
// are fitted in the order a, b, c: those before a failing path count as ok,
// the failing path is classified and the rest were never fitted. An error
// not tied to a path is recorded under "all".
func (r *Recorder) ObserveMediation(err error) {
	failed := failedPath(err)
	for _, p := range mediationPaths {
		if err != nil && (p == failed || failed == "all") {
			break
		}
		r.regressions.WithLabelValues(p, OutcomeOK).Inc()
	}
	if err != nil {
		r.regressions.WithLabelValues(failed, Classify(err)).Inc()
	}
}

var mediationPaths = []string{"a", "b", "c"}

// Classify maps an analysis error to an outcome label.
func Classify(err error) string {
	var ide *mediation.InsufficientDataError
	var sde *mediation.SingularDesignError
	switch {
	case err == nil:
		return OutcomeOK
	case errors.As(err, &ide):
		return OutcomeInsufficient
	case errors.As(err, &sde):
		return OutcomeSingular
	}
	return OutcomeError
}

func failedPath(err error) string {
	var pe *mediation.PathError
	if errors.As(err, &pe) {
		return pe.Path
	}
	return "all"
}

// WriteTextfile writes the registry to path in the node_exporter textfile format.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.Registry); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}
