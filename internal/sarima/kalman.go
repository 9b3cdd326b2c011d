package sarima

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// stateSpace is the Harvey representation of a zero-mean ARMA(p, q) process:
//
//	y_t       = a_t[0]
//	a_{t+1}   = T a_t + R e_{t+1}
//
// T is the companion matrix with the AR coefficients in its first column and ones on the
// superdiagonal; R = [1, theta_1, ..., theta_{r-1}]. The disturbance variance is one and the
// scale is concentrated out of the likelihood.
type stateSpace struct {
	r   int
	phi []float64 // length r, zero padded
	rv  []float64 // length r, R vector
}

func newStateSpace(phi, theta []float64) *stateSpace {
	r := max(len(phi), len(theta)+1, 1)
	ss := &stateSpace{r: r, phi: make([]float64, r), rv: make([]float64, r)}
	copy(ss.phi, phi)
	ss.rv[0] = 1
	copy(ss.rv[1:], theta)
	return ss
}

func (ss *stateSpace) transition() *mat.Dense {
	t := mat.NewDense(ss.r, ss.r, nil)
	for i := 0; i < ss.r; i++ {
		t.Set(i, 0, ss.phi[i])
		if i+1 < ss.r {
			t.Set(i, i+1, 1)
		}
	}
	return t
}

// stationaryCov solves P = T P T' + R R' with the doubling algorithm.
func (ss *stateSpace) stationaryCov() (*mat.Dense, bool) {
	r := ss.r
	rvec := mat.NewVecDense(r, ss.rv)
	p := mat.NewDense(r, r, nil)
	p.Outer(1, rvec, rvec)
	a := ss.transition()

	var tmp, apa, aa mat.Dense
	for iter := 0; iter < 64; iter++ {
		if mat.Norm(a, math.Inf(1)) < 1e-13 {
			return p, isFinite(p)
		}
		tmp.Mul(a, p)
		apa.Mul(&tmp, a.T())
		p.Add(p, &apa)
		aa.Mul(a, a)
		a.Copy(&aa)
	}
	return p, false
}

func isFinite(m *mat.Dense) bool {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if v := m.At(i, j); math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}

// filterState is the one-step-ahead predicted state after the last observation.
type filterState struct {
	a []float64
	p []float64 // row-major r x r
}

// filterResult holds the sufficient statistics of a Kalman filter pass with unit scale.
type filterResult struct {
	// ssr is sum(v_t^2 / F_t).
	ssr float64
	// sumLogF is sum(log F_t).
	sumLogF float64
	nobs    int
	final   filterState
}

// concentratedLogLik returns the Gaussian log-likelihood with the scale at its MLE.
func (f *filterResult) concentratedLogLik() float64 {
	n := float64(f.nobs)
	sigma2 := f.ssr / n
	return -n/2*(math.Log(2*math.Pi)+1+math.Log(sigma2)) - f.sumLogF/2
}

// sigma2 is the maximum likelihood estimate of the disturbance variance.
func (f *filterResult) sigma2() float64 {
	return f.ssr / float64(f.nobs)
}

// filter runs the Kalman filter over y, starting from the stationary distribution.
// The companion structure keeps each step O(r^2).
func (ss *stateSpace) filter(y []float64) (*filterResult, bool) {
	p0, ok := ss.stationaryCov()
	if !ok {
		return nil, false
	}
	r := ss.r
	a := make([]float64, r)
	p := make([]float64, r*r)
	for i := 0; i < r; i++ {
		for j := 0; j < r; j++ {
			p[i*r+j] = p0.At(i, j)
		}
	}
	m := make([]float64, r*r)
	pf := make([]float64, r*r)

	res := &filterResult{nobs: len(y)}
	for _, obs := range y {
		f := p[0]
		if !(f > 1e-12) || math.IsInf(f, 0) {
			return nil, false
		}
		v := obs - a[0]
		res.ssr += v * v / f
		res.sumLogF += math.Log(f)

		// Update: a += P[:,0] v / F; P -= P[:,0] P[0,:] / F.
		for i := 0; i < r; i++ {
			a[i] += p[i*r] * v / f
		}
		for i := 0; i < r; i++ {
			pi0 := p[i*r] / f
			for j := 0; j < r; j++ {
				pf[i*r+j] = p[i*r+j] - pi0*p[j]
			}
		}

		// Predict: a = T a; P = T Pf T' + R R'.
		a0 := a[0]
		for i := 0; i < r-1; i++ {
			a[i] = ss.phi[i]*a0 + a[i+1]
		}
		a[r-1] = ss.phi[r-1] * a0

		for i := 0; i < r; i++ {
			for j := 0; j < r; j++ {
				v := ss.phi[i] * pf[j]
				if i+1 < r {
					v += pf[(i+1)*r+j]
				}
				m[i*r+j] = v
			}
		}
		for i := 0; i < r; i++ {
			mi0 := m[i*r]
			for j := 0; j < r; j++ {
				v := ss.phi[j] * mi0
				if j+1 < r {
					v += m[i*r+j+1]
				}
				p[i*r+j] = v + ss.rv[i]*ss.rv[j]
			}
		}
	}

	res.final = filterState{a: a, p: p}
	return res, true
}

// predict returns the means of the next h observations from a predicted state.
func (ss *stateSpace) predict(st filterState, h int) []float64 {
	a := append([]float64(nil), st.a...)
	out := make([]float64, h)
	for k := 0; k < h; k++ {
		out[k] = a[0]
		a0 := a[0]
		for i := 0; i < ss.r-1; i++ {
			a[i] = ss.phi[i]*a0 + a[i+1]
		}
		a[ss.r-1] = ss.phi[ss.r-1] * a0
	}
	return out
}
