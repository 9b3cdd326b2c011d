// Package stats implements the statistical tests used to condition hourly series.
package stats

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ErrSingularDesign is returned when regressors are linearly dependent.
var ErrSingularDesign = errors.New("singular design matrix")

// olsResult is an ordinary least squares fit.
type olsResult struct {
	params []float64
	stderr []float64
	ssr    float64
	nobs   int
}

// ols regresses y on the columns of x.
func ols(y []float64, x *mat.Dense) (*olsResult, error) {
	n, k := x.Dims()
	if n != len(y) || n <= k {
		return nil, ErrSingularDesign
	}

	var xtx mat.SymDense
	xtx.SymOuterK(1, x.T())

	var chol mat.Cholesky
	if ok := chol.Factorize(&xtx); !ok {
		return nil, ErrSingularDesign
	}

	yv := mat.NewVecDense(n, y)
	var xty mat.VecDense
	xty.MulVec(x.T(), yv)

	var beta mat.VecDense
	if err := chol.SolveVecTo(&beta, &xty); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return nil, err
		}
	}

	var fitted mat.VecDense
	fitted.MulVec(x, &beta)
	var resid mat.VecDense
	resid.SubVec(yv, &fitted)
	ssr := mat.Dot(&resid, &resid)

	var inv mat.SymDense
	if err := chol.InverseTo(&inv); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return nil, err
		}
	}

	sigma2 := ssr / float64(n-k)
	res := &olsResult{
		params: make([]float64, k),
		stderr: make([]float64, k),
		ssr:    ssr,
		nobs:   n,
	}
	for i := 0; i < k; i++ {
		res.params[i] = beta.AtVec(i)
		res.stderr[i] = math.Sqrt(sigma2 * inv.At(i, i))
	}
	return res, nil
}

// tvalue returns the t statistic of coefficient i.
func (r *olsResult) tvalue(i int) float64 {
	return r.params[i] / r.stderr[i]
}

// aic is the Akaike information criterion of the Gaussian log-likelihood with every
// parameter counted.
func (r *olsResult) aic() float64 {
	n := float64(r.nobs)
	llf := -n / 2 * (math.Log(2*math.Pi) + math.Log(r.ssr/n) + 1)
	return -2*llf + 2*float64(len(r.params))
}
