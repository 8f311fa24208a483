package survey

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Correlation is a rank correlation with its two-sided p-value.
type Correlation struct {
	X   string  `json:"x"`
	Y   string  `json:"y"`
	Rho float64 `json:"rho"`
	P   float64 `json:"p"`
	N   int     `json:"n"`
}

// Spearman computes the rank correlation of the complete pairs of x and y.
// Ties receive their average rank. The p-value uses the t approximation with
// n-2 degrees of freedom.
func Spearman(x, y []float64) (rho, p float64, n int, err error) {
	if len(x) != len(y) {
		return 0, 0, 0, fmt.Errorf("spearman: length mismatch %d vs %d", len(x), len(y))
	}
	cc := CompleteCases(x, y)
	xs, ys := cc[0], cc[1]
	n = len(xs)
	if n < 3 {
		return 0, 0, n, fmt.Errorf("spearman: need at least 3 complete pairs, got %d", n)
	}
	rx, ry := Ranks(xs), Ranks(ys)
	rho = stat.Correlation(rx, ry, nil)
	if math.IsNaN(rho) {
		// constant input
		return 0, 1, n, nil
	}
	if math.Abs(rho) >= 1 {
		return rho, 0, n, nil
	}
	df := float64(n - 2)
	t := rho * math.Sqrt(df/(1-rho*rho))
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	p = math.Min(1, 2*dist.Survival(math.Abs(t)))
	return rho, p, n, nil
}

// Ranks returns 1-based ranks with ties averaged.
func Ranks(v []float64) []float64 {
	idx := make([]int, len(v))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return v[idx[a]] < v[idx[b]] })
	r := make([]float64, len(v))
	for i := 0; i < len(idx); {
		j := i + 1
		for j < len(idx) && v[idx[j]] == v[idx[i]] {
			j++
		}
		avg := float64(i+j+1) / 2
		for k := i; k < j; k++ {
			r[idx[k]] = avg
		}
		i = j
	}
	return r
}

// Summary describes one numeric variable.
type Summary struct {
	Name   string  `json:"name"`
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Std    float64 `json:"std"`
	Min    float64 `json:"min"`
	P25    float64 `json:"p25"`
	P75    float64 `json:"p75"`
	P95    float64 `json:"p95"`
	P99    float64 `json:"p99"`
	Max    float64 `json:"max"`
}

// Describe summarizes the finite values of vals. Std is the sample standard
// deviation; quantiles interpolate linearly between order statistics.
func Describe(name string, vals []float64) Summary {
	xs := CompleteCases(vals)[0]
	s := Summary{Name: name, Count: len(xs)}
	if len(xs) == 0 {
		nan := math.NaN()
		s.Mean, s.Median, s.Std, s.Min, s.P25, s.P75, s.P95, s.P99, s.Max = nan, nan, nan, nan, nan, nan, nan, nan, nan
		return s
	}
	sort.Float64s(xs)
	s.Mean, s.Std = stat.MeanStdDev(xs, nil)
	if len(xs) == 1 {
		s.Std = math.NaN()
	}
	s.Min, s.Max = xs[0], xs[len(xs)-1]
	s.Median = quantile(xs, 0.5)
	s.P25 = quantile(xs, 0.25)
	s.P75 = quantile(xs, 0.75)
	s.P95 = quantile(xs, 0.95)
	s.P99 = quantile(xs, 0.99)
	return s
}

func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return math.NaN()
	}
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	w := pos - float64(lo)
	return sorted[lo]*(1-w) + sorted[hi]*w
}

// Bins are right-closed intervals (Edges[i], Edges[i+1]]; the first bin
// also includes its lower edge.
type Bins struct {
	Edges  []float64
	Labels []string
}

// LeadBins groups blood lead in µg/dL.
func LeadBins() Bins {
	return Bins{
		Edges:  []float64{0, 3, 5, 10, 50},
		Labels: []string{"<3", "3-5", "5-10", ">10"},
	}
}

// Validate checks the edges increase and there is one label per bin.
func (b Bins) Validate() error {
	if len(b.Edges) < 2 {
		return fmt.Errorf("bins need at least 2 edges")
	}
	if len(b.Labels) != len(b.Edges)-1 {
		return fmt.Errorf("bins have %d labels for %d intervals", len(b.Labels), len(b.Edges)-1)
	}
	for i := 1; i < len(b.Edges); i++ {
		if !(b.Edges[i] > b.Edges[i-1]) {
			return fmt.Errorf("bin edges must increase: %v", b.Edges)
		}
	}
	return nil
}

// Assign returns the bin index of v, or -1 when v falls outside every bin.
func (b Bins) Assign(v float64) int {
	if math.IsNaN(v) || v < b.Edges[0] || v > b.Edges[len(b.Edges)-1] {
		return -1
	}
	i := sort.SearchFloat64s(b.Edges, v)
	if i == 0 {
		return 0
	}
	return i - 1
}

// Group summarizes the outcome within one exposure bin.
type Group struct {
	Label string  `json:"label"`
	Count int     `json:"count"`
	Mean  float64 `json:"mean"`
	Std   float64 `json:"std"`
}

// GroupBy bins the complete (exposure, outcome) pairs and summarizes the
// outcome per bin. Empty bins are reported with Count 0 and NaN statistics.
func GroupBy(exposure, outcome []float64, bins Bins) ([]Group, error) {
	if err := bins.Validate(); err != nil {
		return nil, err
	}
	if len(exposure) != len(outcome) {
		return nil, fmt.Errorf("group by: length mismatch %d vs %d", len(exposure), len(outcome))
	}
	cc := CompleteCases(exposure, outcome)
	members := make([][]float64, len(bins.Labels))
	for i, e := range cc[0] {
		if k := bins.Assign(e); k >= 0 {
			members[k] = append(members[k], cc[1][i])
		}
	}
	out := make([]Group, len(bins.Labels))
	for k, vals := range members {
		g := Group{Label: bins.Labels[k], Count: len(vals), Mean: math.NaN(), Std: math.NaN()}
		if len(vals) > 0 {
			g.Mean = stat.Mean(vals, nil)
		}
		if len(vals) > 1 {
			g.Std = stat.StdDev(vals, nil)
		}
		out[k] = g
	}
	return out, nil
}
