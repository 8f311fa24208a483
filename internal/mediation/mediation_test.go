package mediation

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFitPathA_RecoversExactLine(t *testing.T) {
	x := []float64{0.5, 1, 2, 3.5, 4, 7, 9.25, 11}
	m := make([]float64, len(x))
	for i, v := range x {
		m[i] = 2.5*v - 1.75
	}
	fit, err := FitPathA(x, m)
	require.NoError(t, err)
	assert.InDelta(t, 2.5, fit.Slope, 1e-9)
	assert.InDelta(t, -1.75, fit.Intercept, 1e-9)
	assert.InDelta(t, 1.0, fit.R, 1e-12)
	assert.Less(t, fit.P, 1e-10)
	assert.Equal(t, len(x), fit.N)
}

func TestFitSimple_KnownPValue(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5}
	y := []float64{2, 4, 5, 4, 5}
	fit, err := FitSimple(x, y)
	require.NoError(t, err)
	assert.InDelta(t, 0.6, fit.Slope, 1e-12)
	assert.InDelta(t, 2.2, fit.Intercept, 1e-12)
	assert.InDelta(t, math.Sqrt(0.08), fit.StdErr, 1e-12)
	assert.InDelta(t, math.Sqrt(0.6), fit.R, 1e-9)
	assert.InDelta(t, 0.1240, fit.P, 1e-3)
}

func TestFitSimple_InsufficientData(t *testing.T) {
	for _, fn := range []func(x, y []float64) (SimpleFit, error){FitPathA, FitPathC} {
		_, err := fn([]float64{1, 2}, []float64{3, 4})
		var ide *InsufficientDataError
		require.True(t, errors.As(err, &ide), "got %v", err)
		assert.Equal(t, 2, ide.Have)
		assert.Equal(t, 3, ide.Need)
	}
}

func TestFitSimple_ZeroVarianceExposure(t *testing.T) {
	_, err := FitPathC([]float64{4, 4, 4, 4}, []float64{1, 2, 3, 4})
	var sde *SingularDesignError
	require.True(t, errors.As(err, &sde), "got %v", err)
}

func TestFitSimple_LengthMismatch(t *testing.T) {
	_, err := FitSimple([]float64{1, 2, 3}, []float64{1, 2})
	require.Error(t, err)
}

func TestFitPathBAndDirect_CollinearMediator(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5, 6, 7, 8}
	m := make([]float64, len(x))
	y := make([]float64, len(x))
	for i, v := range x {
		m[i] = 3*v + 2
		y[i] = float64(i % 3)
	}
	_, err := FitPathBAndDirect(x, m, y)
	var sde *SingularDesignError
	require.True(t, errors.As(err, &sde), "got %v", err)
	assert.Less(t, sde.Rank, sde.Cols)
}

func TestFitPathBAndDirect_ConstantMediator(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5, 6}
	m := []float64{7, 7, 7, 7, 7, 7}
	y := []float64{1, 0, 1, 2, 1, 3}
	_, err := FitPathBAndDirect(x, m, y)
	var sde *SingularDesignError
	require.True(t, errors.As(err, &sde), "got %v", err)
}

func TestFitPathBAndDirect_InsufficientData(t *testing.T) {
	_, err := FitPathBAndDirect([]float64{1, 2, 3}, []float64{3, 1, 2}, []float64{0, 1, 0})
	var ide *InsufficientDataError
	require.True(t, errors.As(err, &ide), "got %v", err)
	assert.Equal(t, 3, ide.Have)
}

func TestFitPathBAndDirect_RecoversCoefficients(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	n := 400
	x := make([]float64, n)
	m := make([]float64, n)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		x[i] = rng.Float64() * 10
		m[i] = rng.NormFloat64()*2 + 0.3*x[i]
		y[i] = 1 + 0.5*x[i] + 2*m[i] + rng.NormFloat64()*0.1
	}
	fit, err := FitPathBAndDirect(x, m, y)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, fit.B, 0.02)
	assert.InDelta(t, 0.5, fit.Direct, 0.02)
	assert.InDelta(t, 1.0, fit.Intercept, 0.05)
	assert.InDelta(t, 0.01, fit.MSE, 0.005)
	assert.Greater(t, fit.R2, 0.99)
	assert.Greater(t, fit.StdErrB, 0.0)
	assert.Less(t, fit.PB, 1e-10)
}

func TestDecompose_UndefinedRatioNearZeroTotal(t *testing.T) {
	for _, c := range []float64{0, 1e-12, -5e-11} {
		d := Decompose(0.3, 0.4, c, 0.1, 1e-10)
		assert.False(t, d.RatioDefined)
		assert.False(t, math.IsInf(d.Ratio, 0))
		assert.False(t, math.IsNaN(d.Ratio))
		_, ok := d.PercentMediated()
		assert.False(t, ok)
		assert.InDelta(t, 0.12, d.Indirect, 1e-15)
		assert.Equal(t, 0.1, d.Direct)
	}
}

func TestDecompose_Ratio(t *testing.T) {
	d := Decompose(2, 3, 12, 6, 0)
	require.True(t, d.RatioDefined)
	assert.Equal(t, 6.0, d.Indirect)
	assert.Equal(t, 0.5, d.Ratio)
	pct, ok := d.PercentMediated()
	assert.True(t, ok)
	assert.Equal(t, 50.0, pct)
}

func syntheticMediation(n int, seed int64) (x, m, y []float64) {
	rng := rand.New(rand.NewSource(seed))
	x = make([]float64, n)
	m = make([]float64, n)
	y = make([]float64, n)
	for i := 0; i < n; i++ {
		x[i] = rng.ExpFloat64() * 2
		m[i] = 8 + 0.8*x[i] + rng.NormFloat64()*0.5
		y[i] = 0.2*x[i] + 0.5*m[i] + rng.NormFloat64()*0.5
	}
	return x, m, y
}

func TestAnalyze_TotalEqualsDirectPlusIndirect(t *testing.T) {
	x, m, y := syntheticMediation(600, 11)
	res, err := Analyze(x, m, y, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 600, res.N)
	assert.Equal(t, 0, res.Dropped)
	d := res.Decomposition
	assert.InDelta(t, res.PathC.Slope, d.Direct+d.Indirect, 1e-9)
	assert.InDelta(t, 0.8, res.PathA.Slope, 0.05)
	assert.InDelta(t, 0.5, res.PathB.B, 0.1)
	require.True(t, d.RatioDefined)
	assert.InDelta(t, 0.4/0.6, d.Ratio, 0.1)
}

func TestAnalyze_DropsNonFiniteRows(t *testing.T) {
	x, m, y := syntheticMediation(150, 3)
	x[0] = math.NaN()
	m[5] = math.Inf(1)
	y[9] = math.NaN()
	res, err := Analyze(x, m, y, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 147, res.N)
	assert.Equal(t, 3, res.Dropped)
}

func TestAnalyze_BelowThresholdReportsInsufficientData(t *testing.T) {
	x, m, y := syntheticMediation(100, 5)
	res, err := Analyze(x, m, y, DefaultOptions())
	assert.Nil(t, res)
	var ide *InsufficientDataError
	require.True(t, errors.As(err, &ide), "got %v", err)
	assert.Equal(t, 100, ide.Have)
	assert.Equal(t, 101, ide.Need)

	res, err = Analyze(x, m, y, Options{MinObservations: 50})
	require.NoError(t, err)
	assert.Equal(t, 100, res.N)
}

func TestAnalyze_CollinearMediatorWrapsPathB(t *testing.T) {
	n := 120
	x := make([]float64, n)
	m := make([]float64, n)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		x[i] = float64(i) / 10
		m[i] = -2*x[i] + 4
		y[i] = float64(i % 7)
	}
	_, err := Analyze(x, m, y, DefaultOptions())
	var sde *SingularDesignError
	require.True(t, errors.As(err, &sde), "got %v", err)
	assert.Contains(t, err.Error(), "path b")
	var pe *PathError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "b", pe.Path)
}
