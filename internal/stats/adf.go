package stats

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/kanna-karuppasamy/smart-grid-usage-forecaster/internal/models"
)

var (
	// ErrConstantSeries is returned by ADF when every value is the same.
	ErrConstantSeries = errors.New("series is constant")
	// ErrTooShort is returned when the series cannot support a single regression.
	ErrTooShort = errors.New("series too short for unit-root test")
)

// ADFOptions configures the augmented Dickey-Fuller test.
type ADFOptions struct {
	// MaxLag caps the lagged differences. Zero selects 12*(n/100)^(1/4).
	MaxLag int
	// FixedLag disables AIC lag selection and uses MaxLag directly.
	FixedLag bool
}

// ADF runs the augmented Dickey-Fuller test with a constant term.
//
// The null hypothesis is a unit root; a small p-value rejects it. The lag order is chosen
// by minimising AIC over regressions that share one estimation sample, then the chosen
// regression is refitted on all the data it can use.
func ADF(x []float64, opts ADFOptions) (models.ADFResult, error) {
	n := len(x)
	if n < 4 {
		return models.ADFResult{}, ErrTooShort
	}
	if isConstant(x) {
		return models.ADFResult{}, ErrConstantSeries
	}

	maxLag := opts.MaxLag
	if maxLag <= 0 && !opts.FixedLag {
		maxLag = int(math.Ceil(12 * math.Pow(float64(n)/100, 0.25)))
	}
	// Constant and lagged level use two degrees of freedom.
	if limit := n/2 - 2; maxLag > limit {
		maxLag = limit
	}
	if maxLag < 0 {
		return models.ADFResult{}, ErrTooShort
	}

	dx := make([]float64, n-1)
	for i := range dx {
		dx[i] = x[i+1] - x[i]
	}

	lag := maxLag
	if !opts.FixedLag {
		y, design := adfDesign(x, dx, maxLag, maxLag)
		best := math.Inf(1)
		for k := 0; k <= maxLag; k++ {
			cols := k + 2
			sub := design.Slice(0, len(y), 0, cols).(*mat.Dense)
			res, err := ols(y, sub)
			if err != nil {
				continue
			}
			if aic := res.aic(); aic < best {
				best = aic
				lag = k
			}
		}
		if math.IsInf(best, 1) {
			return models.ADFResult{}, fmt.Errorf("selecting lag order: %w", ErrSingularDesign)
		}
	}

	y, design := adfDesign(x, dx, lag, lag)
	res, err := ols(y, design)
	if err != nil {
		return models.ADFResult{}, fmt.Errorf("fitting regression with %d lags: %w", lag, err)
	}
	stat := res.tvalue(1)
	if math.IsNaN(stat) {
		return models.ADFResult{}, fmt.Errorf("fitting regression with %d lags: %w", lag, ErrSingularDesign)
	}

	return models.ADFResult{
		Statistic:      stat,
		PValue:         MacKinnonP(stat),
		Lags:           lag,
		Observations:   res.nobs,
		CriticalValues: MacKinnonCrit(res.nobs),
	}, nil
}

// adfDesign builds the regression of dx_t on [1, x_{t-1}, dx_{t-1}, ..., dx_{t-lags}].
// The first trim differences are dropped so that every lag is available.
func adfDesign(x, dx []float64, lags, trim int) ([]float64, *mat.Dense) {
	rows := len(dx) - trim
	y := make([]float64, rows)
	design := mat.NewDense(rows, lags+2, nil)
	for r := 0; r < rows; r++ {
		t := r + trim
		y[r] = dx[t]
		design.Set(r, 0, 1)
		design.Set(r, 1, x[t])
		for j := 1; j <= lags; j++ {
			design.Set(r, j+1, dx[t-j])
		}
	}
	return y, design
}

func isConstant(x []float64) bool {
	lo, hi := floats.Min(x), floats.Max(x)
	return hi-lo <= 1e-12*math.Max(1, math.Abs(hi))
}

// MacKinnon (1994) response-surface coefficients for the constant-only model with one
// integrated variable.
const (
	tauMax  = 2.74
	tauMin  = -18.83
	tauStar = -1.61
)

var (
	tauSmallP = []float64{2.1659, 1.4412, 0.038269}
	tauLargeP = []float64{1.7339, 0.93202, -0.12745, -0.010368}

	// MacKinnon (2010) critical value polynomials in 1/T.
	tauCrit = map[string][]float64{
		"1%":  {-3.43035, -6.5393, -16.786, -79.433},
		"5%":  {-2.86154, -2.8903, -4.234, -40.04},
		"10%": {-2.56677, -1.5384, -2.809, 0},
	}
)

// MacKinnonP returns the approximate p-value of an ADF statistic.
func MacKinnonP(stat float64) float64 {
	switch {
	case stat > tauMax:
		return 1
	case stat < tauMin:
		return 0
	}
	coef := tauLargeP
	if stat <= tauStar {
		coef = tauSmallP
	}
	return distuv.UnitNormal.CDF(polyval(coef, stat))
}

// MacKinnonCrit returns the 1%, 5% and 10% critical values for a regression on nobs rows.
func MacKinnonCrit(nobs int) map[string]float64 {
	inv := 1 / float64(nobs)
	out := make(map[string]float64, len(tauCrit))
	for level, coef := range tauCrit {
		out[level] = polyval(coef, inv)
	}
	return out
}

// polyval evaluates c[0] + c[1]x + c[2]x^2 + ...
func polyval(c []float64, x float64) float64 {
	v := 0.0
	for i := len(c) - 1; i >= 0; i-- {
		v = v*x + c[i]
	}
	return v
}
