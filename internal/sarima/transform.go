package sarima

import "math"

// constrainStationary maps an unconstrained vector onto the coefficients of a stationary
// AR polynomial 1 - c_1 B - ... - c_p B^p. Each element becomes a partial autocorrelation
// in (-1, 1) and the Durbin-Levinson recursion builds the coefficients from them.
func constrainStationary(x []float64) []float64 {
	p := len(x)
	if p == 0 {
		return nil
	}
	cur := make([]float64, p)
	prev := make([]float64, p)
	for k := 0; k < p; k++ {
		r := x[k] / math.Hypot(1, x[k])
		copy(prev, cur)
		for i := 0; i < k; i++ {
			cur[i] = prev[i] - r*prev[k-1-i]
		}
		cur[k] = r
	}
	return cur
}

// unconstrainStationary inverts constrainStationary. Coefficients on or outside the
// stationary boundary are pulled just inside it.
func unconstrainStationary(c []float64) []float64 {
	p := len(c)
	if p == 0 {
		return nil
	}
	cur := append([]float64(nil), c...)
	out := make([]float64, p)
	for k := p - 1; k >= 0; k-- {
		r := cur[k]
		if r >= 1 {
			r = 1 - 1e-8
		} else if r <= -1 {
			r = -1 + 1e-8
		}
		out[k] = r / math.Sqrt(1-r*r)

		denom := 1 - r*r
		next := make([]float64, k)
		for i := 0; i < k; i++ {
			next[i] = (cur[i] + r*cur[k-1-i]) / denom
		}
		cur = next
	}
	return out
}

// params is the constrained parameter set of a seasonal ARIMA model.
type params struct {
	ar, ma, sar, sma []float64
}

// constrain splits and constrains an optimiser vector laid out as [ar, ma, sar, sma].
// MA polynomials use the negated stationary map so that 1 + t_1 B + ... is invertible.
func constrain(x []float64, o Order, so SeasonalOrder) params {
	i := 0
	take := func(n int) []float64 {
		v := x[i : i+n]
		i += n
		return v
	}
	return params{
		ar:  constrainStationary(take(o.P)),
		ma:  negate(constrainStationary(take(o.Q))),
		sar: constrainStationary(take(so.P)),
		sma: negate(constrainStationary(take(so.Q))),
	}
}

// unconstrain is the inverse of constrain.
func unconstrain(p params) []float64 {
	out := make([]float64, 0, len(p.ar)+len(p.ma)+len(p.sar)+len(p.sma))
	out = append(out, unconstrainStationary(p.ar)...)
	out = append(out, unconstrainStationary(negate(p.ma))...)
	out = append(out, unconstrainStationary(p.sar)...)
	out = append(out, unconstrainStationary(negate(p.sma))...)
	return out
}

func negate(v []float64) []float64 {
	if v == nil {
		return nil
	}
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = -x
	}
	return out
}
