package sarima

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/kanna-karuppasamy/smart-grid-usage-forecaster/internal/apperr"
)

// Forecast holds point forecasts and a two-sided interval for consecutive future steps.
type Forecast struct {
	Mean   []float64
	StdErr []float64
	Lower  []float64
	Upper  []float64
	// Alpha is the interval significance; the coverage is 1 - Alpha.
	Alpha float64
}

// Forecast predicts the next steps observations with a (1-alpha) interval.
// Zero alpha selects a 95% interval.
func (m *Model) Forecast(steps int, alpha float64) (*Forecast, error) {
	if steps <= 0 {
		return nil, apperr.Newf(apperr.InvalidArgument, "forecast", "horizon must be positive, got %d", steps)
	}
	if alpha == 0 {
		alpha = 0.05
	}
	if alpha <= 0 || alpha >= 1 {
		return nil, apperr.Newf(apperr.InvalidArgument, "forecast", "alpha must be in (0, 1), got %v", alpha)
	}

	// Integrate the ARMA prediction back through the differencing polynomial.
	w := m.ss.predict(m.state, steps)
	hist := len(m.y)
	ext := make([]float64, hist+steps)
	copy(ext, m.y)
	for h := 0; h < steps; h++ {
		t := hist + h
		v := w[h]
		for k := 1; k < len(m.delta); k++ {
			v -= m.delta[k] * ext[t-k]
		}
		ext[t] = v
	}

	psi := m.psiWeights(steps)
	z := distuv.UnitNormal.Quantile(1 - alpha/2)

	fc := &Forecast{
		Mean:   ext[hist:],
		StdErr: make([]float64, steps),
		Lower:  make([]float64, steps),
		Upper:  make([]float64, steps),
		Alpha:  alpha,
	}
	var acc float64
	for h := 0; h < steps; h++ {
		acc += psi[h] * psi[h]
		se := math.Sqrt(m.Sigma2 * acc)
		fc.StdErr[h] = se
		fc.Lower[h] = fc.Mean[h] - z*se
		fc.Upper[h] = fc.Mean[h] + z*se
	}
	return fc, nil
}

// psiWeights returns the first n coefficients of theta(B) / (phi(B) delta(B)).
func (m *Model) psiWeights(n int) []float64 {
	phiPoly := make([]float64, len(m.ss.phi)+1)
	phiPoly[0] = 1
	for i, v := range m.ss.phi {
		phiPoly[i+1] = -v
	}
	ar := arCoefficients(polyMul(phiPoly, m.delta))
	theta := m.ss.rv[1:]

	psi := make([]float64, n)
	psi[0] = 1
	for j := 1; j < n; j++ {
		v := 0.0
		if j-1 < len(theta) {
			v = theta[j-1]
		}
		for i := 1; i <= j && i <= len(ar); i++ {
			v += ar[i-1] * psi[j-i]
		}
		psi[j] = v
	}
	return psi
}
