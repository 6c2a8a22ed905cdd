package rnn

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// addRowVec adds b to every row of dst.
func addRowVec(dst *mat.Dense, b []float64) {
	r, _ := dst.Dims()
	for i := 0; i < r; i++ {
		floats.Add(dst.RawRowView(i), b)
	}
}

// addMul accumulates dst += a·b.
func addMul(dst *mat.Dense, a, b mat.Matrix) {
	var tmp mat.Dense
	tmp.Mul(a, b)
	dst.Add(dst, &tmp)
}

// addColSum accumulates the column sums of m into dst.
func addColSum(dst []float64, m *mat.Dense) {
	r, _ := m.Dims()
	for b := 0; b < r; b++ {
		floats.Add(dst, m.RawRowView(b))
	}
}

// addOuterSum accumulates sum-over-batch outer products aᵀ·b into the
// flat buffer blk, viewed as an [aCols x bCols] matrix.
func addOuterSum(blk []float64, a, b *mat.Dense) {
	_, ac := a.Dims()
	_, bc := b.Dims()
	view := mat.NewDense(ac, bc, blk)
	addMul(view, a.T(), b)
}
