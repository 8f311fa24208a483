package mediation

import "fmt"

// InsufficientDataError indicates too few valid observations for the
// requested regression degrees of freedom.
type InsufficientDataError struct {
	Have int
	Need int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data: have %d observations, need at least %d", e.Have, e.Need)
}

// SingularDesignError indicates collinear or zero-variance regressors.
// Cond is set when the matrix has full numerical rank but XtX is too
// ill-conditioned to invert.
type SingularDesignError struct {
	Rank int
	Cols int
	Cond float64
}

func (e *SingularDesignError) Error() string {
	if e.Rank >= e.Cols {
		return fmt.Sprintf("ill-conditioned design matrix (cond %.3g)", e.Cond)
	}
	return fmt.Sprintf("singular design matrix: rank %d < %d columns", e.Rank, e.Cols)
}

// PathError wraps the failure of one of the three regressions.
type PathError struct {
	Path string // "a", "b" or "c"
	Err  error
}

func (e *PathError) Error() string { return "path " + e.Path + ": " + e.Err.Error() }

func (e *PathError) Unwrap() error { return e.Err }
