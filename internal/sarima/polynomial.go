package sarima

// Polynomials in the backshift operator B are stored as coefficient slices, index i
// holding the coefficient of B^i.

func polyMul(a, b []float64) []float64 {
	out := make([]float64, len(a)+len(b)-1)
	for i, x := range a {
		if x == 0 {
			continue
		}
		for j, y := range b {
			out[i+j] += x * y
		}
	}
	return out
}

// lagPoly returns 1 + sign*(c_1 B^step + c_2 B^2step + ...).
func lagPoly(c []float64, step int, sign float64) []float64 {
	out := make([]float64, len(c)*step+1)
	out[0] = 1
	for i, v := range c {
		out[(i+1)*step] = sign * v
	}
	return out
}

// diffPoly returns (1-B)^d (1-B^s)^sd.
func diffPoly(d, sd, s int) []float64 {
	out := []float64{1}
	for i := 0; i < d; i++ {
		out = polyMul(out, []float64{1, -1})
	}
	for i := 0; i < sd; i++ {
		out = polyMul(out, lagPoly([]float64{1}, s, -1))
	}
	return out
}

// applyPoly filters y through p, dropping the first len(p)-1 values that lack history.
func applyPoly(p, y []float64) []float64 {
	m := len(p) - 1
	if len(y) <= m {
		return nil
	}
	out := make([]float64, len(y)-m)
	for t := m; t < len(y); t++ {
		v := 0.0
		for k, c := range p {
			v += c * y[t-k]
		}
		out[t-m] = v
	}
	return out
}

// arCoefficients converts 1 - a_1 B - a_2 B^2 ... into [a_1, a_2, ...].
func arCoefficients(p []float64) []float64 {
	out := make([]float64, len(p)-1)
	for i := 1; i < len(p); i++ {
		out[i-1] = -p[i]
	}
	return out
}
