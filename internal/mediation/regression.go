package mediation

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// rankTol is the singular value cutoff, relative to the largest one, below
// which a design column is treated as linearly dependent.
const rankTol = 1e-10

// SimpleFit is the result of a one-regressor least squares fit y = Intercept + Slope*x.
type SimpleFit struct {
	Slope     float64 `json:"slope"`
	Intercept float64 `json:"intercept"`
	R         float64 `json:"r"`
	P         float64 `json:"p"`
	StdErr    float64 `json:"std_err"`
	N         int     `json:"n"`
}

// MultipleFit is the result of regressing Y on [1, X, M].
type MultipleFit struct {
	B         float64 `json:"b"`      // coefficient on M
	Direct    float64 `json:"direct"` // coefficient on X (c')
	Intercept float64 `json:"intercept"`
	StdErrB   float64 `json:"std_err_b"`
	PB        float64 `json:"p_b"`
	MSE       float64 `json:"mse"`
	R2        float64 `json:"r2"`
	N         int     `json:"n"`
}

// FitSimple computes an ordinary least squares simple regression of y on x.
// P is the two-sided Wald t-test on the slope with n-2 degrees of freedom.
func FitSimple(x, y []float64) (SimpleFit, error) {
	if len(x) != len(y) {
		return SimpleFit{}, fmt.Errorf("length mismatch: x has %d values, y has %d", len(x), len(y))
	}
	n := len(x)
	if n < 3 {
		return SimpleFit{}, &InsufficientDataError{Have: n, Need: 3}
	}
	mx := stat.Mean(x, nil)
	var sxx float64
	for _, v := range x {
		d := v - mx
		sxx += d * d
	}
	if sxx == 0 {
		return SimpleFit{}, &SingularDesignError{Rank: 1, Cols: 2}
	}
	intercept, slope := stat.LinearRegression(x, y, nil, false)

	var ssRes float64
	for i := range x {
		e := y[i] - (intercept + slope*x[i])
		ssRes += e * e
	}
	df := float64(n - 2)
	se := math.Sqrt(ssRes / df / sxx)

	r := stat.Correlation(x, y, nil)
	if math.IsNaN(r) {
		r = 0
	}
	return SimpleFit{
		Slope:     slope,
		Intercept: intercept,
		R:         r,
		P:         tTestP(slope, se, df),
		StdErr:    se,
		N:         n,
	}, nil
}

// FitPathA regresses the mediator on the exposure (X -> M).
func FitPathA(x, m []float64) (SimpleFit, error) { return FitSimple(x, m) }

// FitPathC regresses the outcome on the exposure (total effect X -> Y).
func FitPathC(x, y []float64) (SimpleFit, error) { return FitSimple(x, y) }

// FitPathBAndDirect regresses y on [1, x, m]. The coefficient on m is path b,
// the coefficient on x is the direct effect c'. The standard error of b is
// sqrt(MSE * (XtX)^-1[m,m]) with n-3 residual degrees of freedom.
func FitPathBAndDirect(x, m, y []float64) (MultipleFit, error) {
	if len(x) != len(m) || len(x) != len(y) {
		return MultipleFit{}, fmt.Errorf("length mismatch: x=%d m=%d y=%d", len(x), len(m), len(y))
	}
	const k = 3
	n := len(x)
	if n <= k {
		return MultipleFit{}, &InsufficientDataError{Have: n, Need: k + 1}
	}

	design := mat.NewDense(n, k, nil)
	for i := 0; i < n; i++ {
		design.Set(i, 0, 1)
		design.Set(i, 1, x[i])
		design.Set(i, 2, m[i])
	}
	if rank := designRank(design); rank < k {
		return MultipleFit{}, &SingularDesignError{Rank: rank, Cols: k}
	}

	yv := mat.NewVecDense(n, append([]float64(nil), y...))
	var beta mat.VecDense
	if err := beta.SolveVec(design, yv); err != nil {
		return MultipleFit{}, &SingularDesignError{Rank: k - 1, Cols: k}
	}

	var fitted mat.VecDense
	fitted.MulVec(design, &beta)
	my := stat.Mean(y, nil)
	var ssRes, ssTot float64
	for i := 0; i < n; i++ {
		e := y[i] - fitted.AtVec(i)
		ssRes += e * e
		d := y[i] - my
		ssTot += d * d
	}
	df := float64(n - k)
	mse := ssRes / df

	var xtx, inv mat.Dense
	xtx.Mul(design.T(), design)
	if err := inv.Inverse(&xtx); err != nil {
		return MultipleFit{}, &SingularDesignError{Rank: k, Cols: k, Cond: mat.Cond(&xtx, 2)}
	}
	se := math.Sqrt(mse * inv.At(2, 2))

	r2 := 0.0
	if ssTot > 0 {
		r2 = 1 - ssRes/ssTot
	}
	b := beta.AtVec(2)
	return MultipleFit{
		B:         b,
		Direct:    beta.AtVec(1),
		Intercept: beta.AtVec(0),
		StdErrB:   se,
		PB:        tTestP(b, se, df),
		MSE:       mse,
		R2:        r2,
		N:         n,
	}, nil
}

// designRank counts singular values above rankTol relative to the largest.
func designRank(a mat.Matrix) int {
	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDNone) {
		return 0
	}
	vals := svd.Values(nil)
	if len(vals) == 0 || vals[0] == 0 {
		return 0
	}
	rank := 0
	for _, s := range vals {
		if s > rankTol*vals[0] {
			rank++
		}
	}
	return rank
}

// tTestP returns the two-sided p-value of coef/se under Student's t with df
// degrees of freedom. An exact fit (se == 0) yields 0 for a non-zero
// coefficient and 1 otherwise.
func tTestP(coef, se, df float64) float64 {
	if se == 0 || math.IsNaN(se) {
		if coef == 0 {
			return 1
		}
		return 0
	}
	t := math.Abs(coef / se)
	p := 2 * distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}.Survival(t)
	if p > 1 {
		p = 1
	}
	return p
}
