// Package report renders analysis and simulation results as markdown
// blocks and CSV.
package report

import (
	"fmt"
	"math"
	"strings"

	"github.com/KaramelBytes/ckmtox/internal/cellsim"
	"github.com/KaramelBytes/ckmtox/internal/mediation"
	"github.com/KaramelBytes/ckmtox/internal/survey"
)

// Variables names the exposure, mediator and outcome of a mediation model.
type Variables struct {
	X, M, Y string
}

func num(v float64) string {
	if math.IsNaN(v) {
		return "NaN"
	}
	return fmt.Sprintf("%.4g", v)
}

func pval(p float64) string {
	if p < 1e-4 {
		return "<0.0001"
	}
	return fmt.Sprintf("%.4f", p)
}

// Mediation renders a mediation result.
func Mediation(v Variables, r *mediation.Result) string {
	var b strings.Builder
	b.WriteString("[MEDIATION MODEL]\n")
	b.WriteString(fmt.Sprintf("Exposure: %s\nMediator: %s\nOutcome: %s\n", v.X, v.M, v.Y))
	b.WriteString(fmt.Sprintf("Observations: %d", r.N))
	if r.Dropped > 0 {
		b.WriteString(fmt.Sprintf(" (%d incomplete rows dropped)", r.Dropped))
	}
	b.WriteString("\n\n[PATHS]\n")
	b.WriteString(fmt.Sprintf("- a (%s → %s): β=%s, SE=%s, p=%s, r=%s\n",
		v.X, v.M, num(r.PathA.Slope), num(r.PathA.StdErr), pval(r.PathA.P), num(r.PathA.R)))
	b.WriteString(fmt.Sprintf("- b (%s → %s | %s): β=%s, SE=%s, p=%s, R²=%s\n",
		v.M, v.Y, v.X, num(r.PathB.B), num(r.PathB.StdErrB), pval(r.PathB.PB), num(r.PathB.R2)))
	b.WriteString(fmt.Sprintf("- c (%s → %s, total): β=%s, SE=%s, p=%s\n",
		v.X, v.Y, num(r.PathC.Slope), num(r.PathC.StdErr), pval(r.PathC.P)))

	d := r.Decomposition
	b.WriteString("\n[EFFECT DECOMPOSITION]\n")
	b.WriteString(fmt.Sprintf("Indirect (a×b): %s\n", num(d.Indirect)))
	b.WriteString(fmt.Sprintf("Direct (c'): %s\n", num(d.Direct)))
	b.WriteString(fmt.Sprintf("Total (c): %s\n", num(r.PathC.Slope)))
	if pct, ok := d.PercentMediated(); ok {
		b.WriteString(fmt.Sprintf("Proportion mediated: %.2f%%\n", pct))
	} else {
		b.WriteString("Proportion mediated: undefined (total effect is zero)\n")
	}
	return b.String()
}

// DoseResponse renders a dose-response sweep.
func DoseResponse(pts []cellsim.DosePoint) string {
	var b strings.Builder
	b.WriteString("[DOSE-RESPONSE]\n")
	b.WriteString("| Exposure | Final BP (mmHg) |\n|---:|---:|\n")
	failed := 0
	for _, p := range pts {
		if p.Failed() {
			failed++
			b.WriteString(fmt.Sprintf("| %s | failed |\n", num(p.Exposure)))
			continue
		}
		b.WriteString(fmt.Sprintf("| %s | %.2f |\n", num(p.Exposure), p.FinalBP))
	}
	writeFailures(&b, failed, len(pts), func(i int) (string, error) {
		return "exposure " + num(pts[i].Exposure), pts[i].Err
	})
	return b.String()
}

// Sensitivity renders a one-parameter sweep.
func Sensitivity(param string, exposure float64, pts []cellsim.SensitivityPoint) string {
	var b strings.Builder
	b.WriteString("[SENSITIVITY]\n")
	b.WriteString(fmt.Sprintf("Parameter: %s\nExposure: %s\n\n", param, num(exposure)))
	b.WriteString(fmt.Sprintf("| %s | Final BP (mmHg) |\n|---:|---:|\n", param))
	failed := 0
	for _, p := range pts {
		if p.Failed() {
			failed++
			b.WriteString(fmt.Sprintf("| %s | failed |\n", num(p.Value)))
			continue
		}
		b.WriteString(fmt.Sprintf("| %s | %.2f |\n", num(p.Value), p.FinalBP))
	}
	writeFailures(&b, failed, len(pts), func(i int) (string, error) {
		return param + "=" + num(pts[i].Value), pts[i].Err
	})
	return b.String()
}

func writeFailures(b *strings.Builder, failed, n int, at func(int) (string, error)) {
	if failed == 0 {
		return
	}
	b.WriteString(fmt.Sprintf("\n[FAILED RUNS] %d of %d\n", failed, n))
	for i := 0; i < n; i++ {
		if label, err := at(i); err != nil {
			b.WriteString(fmt.Sprintf("- %s: %v\n", label, err))
		}
	}
}

// Trajectory renders the final state of a run.
func Trajectory(tr cellsim.Trajectory) string {
	var b strings.Builder
	b.WriteString("[SIMULATION]\n")
	if len(tr) == 0 {
		b.WriteString("(no samples)\n")
		return b.String()
	}
	b.WriteString(fmt.Sprintf("Window: t=%s..%s (%d samples)\n\n", num(tr[0].T), num(tr[len(tr)-1].T), len(tr)))
	b.WriteString("[FINAL STATE]\n")
	first, last := tr[0].State, tr.Final()
	for c := cellsim.Compartment(0); c < cellsim.NumCompartments; c++ {
		b.WriteString(fmt.Sprintf("- %s: %s (start %s)\n", c, num(last[c]), num(first[c])))
	}
	return b.String()
}

// Correlations renders rank correlations.
func Correlations(cs []survey.Correlation) string {
	var b strings.Builder
	b.WriteString("[SPEARMAN CORRELATIONS]\n")
	for _, c := range cs {
		b.WriteString(fmt.Sprintf("- %s ~ %s: ρ=%.3f, p=%s, n=%d\n", c.X, c.Y, c.Rho, pval(c.P), c.N))
	}
	return b.String()
}

// Summaries renders descriptive statistics.
func Summaries(ss []survey.Summary) string {
	var b strings.Builder
	b.WriteString("[DESCRIPTIVE STATISTICS]\n")
	for _, s := range ss {
		b.WriteString(fmt.Sprintf("- %s (n=%d): mean %s, median %s, std %s; P25 %s, P75 %s, P95 %s, P99 %s\n",
			s.Name, s.Count, num(s.Mean), num(s.Median), num(s.Std), num(s.P25), num(s.P75), num(s.P95), num(s.P99)))
	}
	return b.String()
}

// Groups renders an outcome summarized by exposure bins.
func Groups(outcome string, gs []survey.Group) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("[GROUP-BY SUMMARY] %s\n", outcome))
	b.WriteString("| Group | n | Mean | Std |\n|---|---:|---:|---:|\n")
	for _, g := range gs {
		b.WriteString(fmt.Sprintf("| %s | %d | %s | %s |\n", g.Label, g.Count, num(g.Mean), num(g.Std)))
	}
	return b.String()
}
