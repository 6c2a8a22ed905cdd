package nonlin

import "gonum.org/v1/gonum/mat"

// Jacobian holds the per-example derivative of a nonlinearity at one
// timestep. Elementwise units only need the diagonal, stored as a
// [batch x n] matrix of derivative values. Units that mix within a layer
// (softmax) store one dense [n x n] matrix per batch example.
type Jacobian struct {
	diag *mat.Dense
	full []*mat.Dense
}

// DiagJacobian wraps an elementwise derivative matrix [batch x n].
func DiagJacobian(d *mat.Dense) Jacobian {
	return Jacobian{diag: d}
}

// FullJacobian wraps one dense [n x n] Jacobian per batch example.
func FullJacobian(ms []*mat.Dense) Jacobian {
	return Jacobian{full: ms}
}

// Zero reports whether the Jacobian is the zero value (no derivative set).
func (j Jacobian) Zero() bool {
	return j.diag == nil && j.full == nil
}

// MulVec computes dst[b] = J[b]·x[b] for every batch row. dst may alias x.
func (j Jacobian) MulVec(dst, x *mat.Dense) {
	j.apply(dst, x, false, false)
}

// MulVecT computes dst[b] = J[b]ᵀ·x[b] for every batch row. dst may alias x.
func (j Jacobian) MulVecT(dst, x *mat.Dense) {
	j.apply(dst, x, true, false)
}

// AddMulVec computes dst[b] += J[b]·x[b] for every batch row.
func (j Jacobian) AddMulVec(dst, x *mat.Dense) {
	j.apply(dst, x, false, true)
}

// AddMulVecT computes dst[b] += J[b]ᵀ·x[b] for every batch row.
func (j Jacobian) AddMulVecT(dst, x *mat.Dense) {
	j.apply(dst, x, true, true)
}

func (j Jacobian) apply(dst, x *mat.Dense, transpose, accumulate bool) {
	rows, cols := x.Dims()
	if j.diag != nil {
		// The diagonal is symmetric, so transpose is a no-op.
		for b := 0; b < rows; b++ {
			d := j.diag.RawRowView(b)
			xr := x.RawRowView(b)
			dr := dst.RawRowView(b)
			for i := 0; i < cols; i++ {
				if accumulate {
					dr[i] += d[i] * xr[i]
				} else {
					dr[i] = d[i] * xr[i]
				}
			}
		}
		return
	}

	// Per-example dense Jacobian. Go through a scratch row so dst may
	// alias x.
	scratch := make([]float64, cols)
	for b := 0; b < rows; b++ {
		J := j.full[b]
		xr := x.RawRowView(b)
		for i := 0; i < cols; i++ {
			var sum float64
			for k := 0; k < cols; k++ {
				if transpose {
					sum += J.At(k, i) * xr[k]
				} else {
					sum += J.At(i, k) * xr[k]
				}
			}
			scratch[i] = sum
		}
		dr := dst.RawRowView(b)
		for i := 0; i < cols; i++ {
			if accumulate {
				dr[i] += scratch[i]
			} else {
				dr[i] = scratch[i]
			}
		}
	}
}
