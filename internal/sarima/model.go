// Package sarima fits multiplicative seasonal ARIMA models by exact maximum likelihood
// and produces forecasts with normal confidence intervals.
package sarima

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"

	"github.com/kanna-karuppasamy/smart-grid-usage-forecaster/internal/apperr"
)

var (
	// ErrNotConverged is wrapped when the optimiser stops without converging.
	ErrNotConverged = errors.New("maximum likelihood optimisation did not converge")
	// ErrIllConditioned is wrapped when the likelihood cannot be evaluated.
	ErrIllConditioned = errors.New("model is numerically ill-conditioned")
)

// Order is the non-seasonal (p, d, q) order.
type Order struct {
	P, D, Q int
}

// SeasonalOrder is the seasonal (P, D, Q, s) order.
type SeasonalOrder struct {
	P, D, Q, S int
}

// DefaultOrder and DefaultSeasonalOrder describe hourly data with a daily cycle.
var (
	DefaultOrder         = Order{P: 1, D: 0, Q: 1}
	DefaultSeasonalOrder = SeasonalOrder{P: 1, D: 1, Q: 1, S: 24}
)

const (
	// boundaryTolerance is how close an autoregressive partial autocorrelation may come to
	// +-1 before the fit is treated as degenerate.
	boundaryTolerance = 1e-4
	// minVarianceRatio bounds the innovation variance from below, relative to the variance
	// of the differenced series.
	minVarianceRatio = 1e-3
)

// Options tune the optimiser.
type Options struct {
	MaxIterations  int
	MaxEvaluations int
	// Tolerance is the absolute change in mean negative log-likelihood treated as no progress.
	Tolerance float64
}

func (o Options) withDefaults() Options {
	if o.MaxIterations <= 0 {
		o.MaxIterations = 5000
	}
	if o.MaxEvaluations <= 0 {
		o.MaxEvaluations = 20000
	}
	if o.Tolerance <= 0 {
		o.Tolerance = 1e-9
	}
	return o
}

// Model is a fitted seasonal ARIMA model.
type Model struct {
	Order    Order
	Seasonal SeasonalOrder

	AR, MA, SAR, SMA []float64
	Sigma2           float64
	LogLikelihood    float64
	// Iterations and Evaluations report the optimiser effort; zero for exact fits.
	Iterations  int
	Evaluations int
	// SeasonalReduced is set when the series was too short to estimate the seasonal AR and
	// MA terms and Seasonal had them dropped. Seasonal differencing is always kept.
	SeasonalReduced bool

	y     []float64
	ss    *stateSpace
	state filterState
	delta []float64
	exact bool
}

// numParams is the number of ARMA coefficients estimated, excluding the variance.
func (o Order) numParams(so SeasonalOrder) int {
	return o.P + o.Q + so.P + so.Q
}

func validate(o Order, so SeasonalOrder) error {
	if o.P < 0 || o.D < 0 || o.Q < 0 || so.P < 0 || so.D < 0 || so.Q < 0 {
		return apperr.Newf(apperr.InvalidArgument, "fit", "model orders must be non-negative, got %v%v", o, so)
	}
	seasonal := so.P > 0 || so.D > 0 || so.Q > 0
	if seasonal && so.S < 2 {
		return apperr.Newf(apperr.InvalidArgument, "fit", "seasonal period must be at least 2, got %d", so.S)
	}
	return nil
}

func expand(p params, so SeasonalOrder) (phi, theta []float64) {
	arPoly := polyMul(lagPoly(p.ar, 1, -1), lagPoly(p.sar, max(so.S, 1), -1))
	maPoly := polyMul(lagPoly(p.ma, 1, 1), lagPoly(p.sma, max(so.S, 1), 1))
	return arCoefficients(arPoly), maPoly[1:]
}

// Fit estimates the model on y by maximising the exact Gaussian likelihood of the
// differenced series. ctx cancellation stops the optimiser.
func Fit(ctx context.Context, y []float64, order Order, seasonal SeasonalOrder, opts Options) (*Model, error) {
	if err := validate(order, seasonal); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, apperr.New(apperr.ForecastError, "fit", "fitting cancelled", err)
	}
	for i, v := range y {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, apperr.Newf(apperr.ForecastError, "fit", "non-finite observation at index %d", i)
		}
	}
	opts = opts.withDefaults()

	delta := diffPoly(order.D, seasonal.D, max(seasonal.S, 1))
	w := applyPoly(delta, y)

	m := &Model{
		Order:    order,
		Seasonal: seasonal,
		y:        append([]float64(nil), y...),
		delta:    delta,
	}

	// Seasonal AR and MA terms need the differenced series to reach past their own lags.
	fitted := seasonal
	if seasonal.P+seasonal.Q > 0 && len(w) < minSeasonalObs(order, seasonal) {
		fitted.P, fitted.Q = 0, 0
	}
	k := order.numParams(fitted)
	if len(w) < k+3 {
		return nil, apperr.Newf(apperr.InsufficientData, "fit",
			"need at least %d observations after differencing, got %d", k+3, len(w))
	}

	if floats.Norm(w, math.Inf(1)) <= 1e-10*math.Max(1, floats.Norm(y, math.Inf(1))) {
		m.setParams(params{
			ar:  make([]float64, order.P),
			ma:  make([]float64, order.Q),
			sar: make([]float64, seasonal.P),
			sma: make([]float64, seasonal.Q),
		})
		m.exact = true
		m.state = filterState{a: make([]float64, m.ss.r), p: make([]float64, m.ss.r*m.ss.r)}
		return m, nil
	}
	m.Seasonal = fitted
	m.SeasonalReduced = fitted != seasonal

	objective := func(x []float64) float64 {
		phi, theta := expand(constrain(x, order, fitted), fitted)
		res, ok := newStateSpace(phi, theta).filter(w)
		if !ok || res.ssr <= 0 {
			return math.MaxFloat64 / 4
		}
		ll := res.concentratedLogLik()
		if math.IsNaN(ll) || math.IsInf(ll, 0) {
			return math.MaxFloat64 / 4
		}
		return -ll / float64(len(w))
	}

	var best params
	var x []float64
	if k > 0 {
		problem := optimize.Problem{
			Func: objective,
			Status: func() (optimize.Status, error) {
				if err := ctx.Err(); err != nil {
					return optimize.Failure, err
				}
				return optimize.NotTerminated, nil
			},
		}
		settings := &optimize.Settings{
			MajorIterations: opts.MaxIterations,
			FuncEvaluations: opts.MaxEvaluations,
			Converger: &optimize.FunctionConverge{
				Absolute:   opts.Tolerance,
				Relative:   opts.Tolerance,
				Iterations: 100,
			},
		}

		x0 := unconstrain(startParams(w, order, fitted))
		result, err := optimize.Minimize(problem, x0, settings, &optimize.NelderMead{})
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, apperr.New(apperr.ForecastError, "fit", "fitting cancelled", ctxErr)
		}
		if err != nil {
			return nil, apperr.New(apperr.ForecastError, "fit", "model fitting failed",
				fmt.Errorf("%w: %v", ErrNotConverged, err))
		}
		if result.Status.Early() {
			return nil, apperr.New(apperr.ForecastError, "fit", "model fitting failed",
				fmt.Errorf("%w: %s after %d iterations", ErrNotConverged, result.Status, result.MajorIterations))
		}
		if result.F >= math.MaxFloat64/8 {
			return nil, apperr.New(apperr.ForecastError, "fit", "model fitting failed", ErrIllConditioned)
		}
		x = result.X
		best = constrain(x, order, fitted)
		m.Iterations = result.MajorIterations
		m.Evaluations = result.FuncEvaluations
	}

	m.setParams(best)
	res, ok := m.ss.filter(w)
	if !ok || res.ssr <= 0 {
		return nil, apperr.New(apperr.ForecastError, "fit", "model fitting failed", ErrIllConditioned)
	}
	m.Sigma2 = res.sigma2()
	m.LogLikelihood = res.concentratedLogLik()
	m.state = res.final

	if reason := degenerate(x, order, fitted, m.Sigma2, stat.Variance(w, nil)); reason != "" {
		return nil, apperr.New(apperr.ForecastError, "fit", "model fit is degenerate",
			fmt.Errorf("%w: %s", ErrIllConditioned, reason))
	}
	return m, nil
}

// minSeasonalObs is the differenced length needed to estimate seasonal AR and MA terms:
// every seasonal lag plus the observations required by the model itself.
func minSeasonalObs(o Order, so SeasonalOrder) int {
	return so.S*(so.P+so.Q) + o.numParams(so) + 3
}

// startParams seeds the optimiser with the lag-one autocorrelation of w as the first AR
// coefficient and zeros elsewhere.
func startParams(w []float64, o Order, so SeasonalOrder) params {
	p := params{
		ar:  make([]float64, o.P),
		ma:  make([]float64, o.Q),
		sar: make([]float64, so.P),
		sma: make([]float64, so.Q),
	}
	if o.P > 0 {
		mean := stat.Mean(w, nil)
		var num, den float64
		for t := range w {
			d := w[t] - mean
			den += d * d
			if t > 0 {
				num += d * (w[t-1] - mean)
			}
		}
		if den > 0 {
			p.ar[0] = math.Max(-0.9, math.Min(0.9, num/den))
		}
	}
	return p
}

// degenerate explains why a fit sits on the edge of the parameter space, or returns "".
// x is the unconstrained optimiser vector laid out as in constrain. Moving-average roots
// on the unit circle are accepted: over-differenced hourly data puts them there.
func degenerate(x []float64, o Order, so SeasonalOrder, sigma2, variance float64) string {
	if variance > 0 && sigma2 < minVarianceRatio*variance {
		return fmt.Sprintf("innovation variance %.3g collapsed against series variance %.3g", sigma2, variance)
	}
	segments := []struct {
		name    string
		from, n int
	}{
		{"autoregressive", 0, o.P},
		{"seasonal autoregressive", o.P + o.Q, so.P},
	}
	for _, seg := range segments {
		if seg.from+seg.n > len(x) {
			continue
		}
		for i, v := range x[seg.from : seg.from+seg.n] {
			if r := v / math.Hypot(1, v); math.Abs(r) > 1-boundaryTolerance {
				return fmt.Sprintf("%s partial autocorrelation %d is %.8f, at the stationarity boundary", seg.name, i+1, r)
			}
		}
	}
	return ""
}

func (m *Model) setParams(p params) {
	m.AR = nonNil(p.ar)
	m.MA = nonNil(p.ma)
	m.SAR = nonNil(p.sar)
	m.SMA = nonNil(p.sma)
	phi, theta := expand(p, m.Seasonal)
	m.ss = newStateSpace(phi, theta)
}

func nonNil(v []float64) []float64 {
	out := make([]float64, len(v))
	copy(out, v)
	return out
}

// Exact reports whether the differenced series was identically zero, leaving nothing to
// estimate.
func (m *Model) Exact() bool {
	return m.exact
}

// NumObs is the number of observations the model was fitted on, before differencing.
func (m *Model) NumObs() int {
	return len(m.y)
}

// AIC is the Akaike information criterion, counting the variance as a parameter.
func (m *Model) AIC() float64 {
	return -2*m.LogLikelihood + 2*float64(m.Order.numParams(m.Seasonal)+1)
}

func (o Order) String() string {
	return fmt.Sprintf("(%d,%d,%d)", o.P, o.D, o.Q)
}

func (so SeasonalOrder) String() string {
	return fmt.Sprintf("(%d,%d,%d,%d)", so.P, so.D, so.Q, so.S)
}
