// Package loss provides the objective functions consumed by the recurrent
// network core. Each loss exposes its value, first derivative and diagonal
// second derivative; the curvature sweep contracts the second derivative
// with the linearized outputs to form the Gauss-Newton surrogate error.
//
// Target entries may be NaN, meaning "no target for this unit at this
// timestep". NaN entries contribute nothing to the value or either
// derivative, which allows sparse supervision over a sequence.
package loss

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Loss is an objective over one timestep of output. All matrices are
// [batch x n]; Loss sums over both axes (the caller averages over the
// batch at the end of a full-sequence computation).
type Loss interface {
	// Loss returns the summed objective value for one timestep.
	Loss(output, target *mat.Dense) float64

	// Deriv writes the first derivative with respect to the output
	// into dst.
	Deriv(dst, output, target *mat.Dense)

	// SecondDeriv writes the diagonal second derivative with respect
	// to the output into dst.
	SecondDeriv(dst, output, target *mat.Dense)
}

// SquaredError is the half sum-of-squares objective: ½·Σ(o - t)².
type SquaredError struct{}

func (SquaredError) Loss(output, target *mat.Dense) float64 {
	r, c := output.Dims()
	var sum float64
	for b := 0; b < r; b++ {
		or := output.RawRowView(b)
		tr := target.RawRowView(b)
		for i := 0; i < c; i++ {
			if math.IsNaN(tr[i]) {
				continue
			}
			d := or[i] - tr[i]
			sum += 0.5 * d * d
		}
	}
	return sum
}

func (SquaredError) Deriv(dst, output, target *mat.Dense) {
	r, c := output.Dims()
	for b := 0; b < r; b++ {
		or := output.RawRowView(b)
		tr := target.RawRowView(b)
		dr := dst.RawRowView(b)
		for i := 0; i < c; i++ {
			if math.IsNaN(tr[i]) {
				dr[i] = 0
				continue
			}
			dr[i] = or[i] - tr[i]
		}
	}
}

func (SquaredError) SecondDeriv(dst, output, target *mat.Dense) {
	r, c := output.Dims()
	for b := 0; b < r; b++ {
		tr := target.RawRowView(b)
		dr := dst.RawRowView(b)
		for i := 0; i < c; i++ {
			if math.IsNaN(tr[i]) {
				dr[i] = 0
				continue
			}
			dr[i] = 1
		}
	}
}

// CrossEntropy is the objective -Σ t·log(o), intended for use with a
// softmax output layer.
type CrossEntropy struct{}

func (CrossEntropy) Loss(output, target *mat.Dense) float64 {
	r, c := output.Dims()
	var sum float64
	for b := 0; b < r; b++ {
		or := output.RawRowView(b)
		tr := target.RawRowView(b)
		for i := 0; i < c; i++ {
			if math.IsNaN(tr[i]) || tr[i] == 0 {
				continue
			}
			sum -= tr[i] * math.Log(or[i])
		}
	}
	return sum
}

func (CrossEntropy) Deriv(dst, output, target *mat.Dense) {
	r, c := output.Dims()
	for b := 0; b < r; b++ {
		or := output.RawRowView(b)
		tr := target.RawRowView(b)
		dr := dst.RawRowView(b)
		for i := 0; i < c; i++ {
			if math.IsNaN(tr[i]) {
				dr[i] = 0
				continue
			}
			dr[i] = -tr[i] / or[i]
		}
	}
}

func (CrossEntropy) SecondDeriv(dst, output, target *mat.Dense) {
	r, c := output.Dims()
	for b := 0; b < r; b++ {
		or := output.RawRowView(b)
		tr := target.RawRowView(b)
		dr := dst.RawRowView(b)
		for i := 0; i < c; i++ {
			if math.IsNaN(tr[i]) {
				dr[i] = 0
				continue
			}
			dr[i] = tr[i] / (or[i] * or[i])
		}
	}
}
