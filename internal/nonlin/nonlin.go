// Package nonlin provides the layer nonlinearities used by the recurrent
// network core, together with the Jacobian records the gradient and
// curvature sweeps consume.
package nonlin

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Nonlinearity computes a layer's output from its summed input and exposes
// the derivative information the backward sweeps need.
//
// Stateless units (Tanh, Logistic, ...) are pure functions and may be
// shared between layers. Stateful units carry a value across timesteps and
// must be instantiated once per layer; their Deriv fills the three-block
// form of Deriv instead of the single Jacobian.
type Nonlinearity interface {
	// Activate writes the unit outputs for one timestep into dst. Both
	// matrices are [batch x n]. Stateful units advance their internal
	// state as a side effect.
	Activate(dst, x *mat.Dense)

	// Deriv evaluates the derivative record at one timestep. acts holds
	// the outputs just produced and pre the summed inputs they came
	// from; each unit differentiates against whichever it needs.
	Deriv(acts, pre *mat.Dense) Deriv

	// Reset clears any state carried across timesteps, sizing it for
	// the given batch and layer width. Called once before every forward
	// sweep.
	Reset(batch, n int)

	// Stateful reports whether the unit carries state across timesteps.
	Stateful() bool
}

// Deriv is the tagged derivative record cached per layer and timestep.
//
// Stateless units fill J: the Jacobian of the output with respect to the
// summed input. Stateful units fill the three blocks instead: DInput and
// DState are the Jacobians of the state update with respect to the
// external input and the previous state, DOutput is the Jacobian of the
// output with respect to the updated state.
type Deriv struct {
	J Jacobian

	DInput  Jacobian
	DState  Jacobian
	DOutput Jacobian

	Stateful bool
}

// Linear is the identity unit, typically used on input and output layers.
type Linear struct{}

func (Linear) Activate(dst, x *mat.Dense) {
	dst.CloneFrom(x)
}

func (Linear) Deriv(acts, pre *mat.Dense) Deriv {
	r, c := acts.Dims()
	d := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		row := d.RawRowView(i)
		for k := range row {
			row[k] = 1
		}
	}
	return Deriv{J: DiagJacobian(d)}
}

func (Linear) Reset(batch, n int) {}
func (Linear) Stateful() bool     { return false }

// Logistic is the sigmoid unit: σ(x) = 1 / (1 + exp(-x)).
type Logistic struct{}

func (Logistic) Activate(dst, x *mat.Dense) {
	dst.Apply(func(_, _ int, v float64) float64 {
		return 1 / (1 + math.Exp(-v))
	}, x)
}

// Deriv uses the activations: σ'(x) = σ(x)(1 - σ(x)).
func (Logistic) Deriv(acts, pre *mat.Dense) Deriv {
	r, c := acts.Dims()
	d := mat.NewDense(r, c, nil)
	d.Apply(func(_, _ int, a float64) float64 {
		return a * (1 - a)
	}, acts)
	return Deriv{J: DiagJacobian(d)}
}

func (Logistic) Reset(batch, n int) {}
func (Logistic) Stateful() bool     { return false }

// Tanh is the hyperbolic tangent unit.
type Tanh struct{}

func (Tanh) Activate(dst, x *mat.Dense) {
	dst.Apply(func(_, _ int, v float64) float64 {
		return math.Tanh(v)
	}, x)
}

// Deriv uses the activations: tanh'(x) = 1 - tanh(x)².
func (Tanh) Deriv(acts, pre *mat.Dense) Deriv {
	r, c := acts.Dims()
	d := mat.NewDense(r, c, nil)
	d.Apply(func(_, _ int, a float64) float64 {
		return 1 - a*a
	}, acts)
	return Deriv{J: DiagJacobian(d)}
}

func (Tanh) Reset(batch, n int) {}
func (Tanh) Stateful() bool     { return false }

// ReLU is the rectified linear unit: f(x) = max(0, x).
type ReLU struct{}

func (ReLU) Activate(dst, x *mat.Dense) {
	dst.Apply(func(_, _ int, v float64) float64 {
		return math.Max(0, v)
	}, x)
}

func (ReLU) Deriv(acts, pre *mat.Dense) Deriv {
	r, c := acts.Dims()
	d := mat.NewDense(r, c, nil)
	d.Apply(func(_, _ int, a float64) float64 {
		if a > 0 {
			return 1
		}
		return 0
	}, acts)
	return Deriv{J: DiagJacobian(d)}
}

func (ReLU) Reset(batch, n int) {}
func (ReLU) Stateful() bool     { return false }

// Softmax normalizes each row to a probability distribution. Its Jacobian
// mixes units within the layer, so Deriv produces a full per-example
// matrix: J = diag(a) - a·aᵀ.
type Softmax struct{}

func (Softmax) Activate(dst, x *mat.Dense) {
	r, c := x.Dims()
	for b := 0; b < r; b++ {
		xr := x.RawRowView(b)
		dr := dst.RawRowView(b)
		max := math.Inf(-1)
		for _, v := range xr {
			if v > max {
				max = v
			}
		}
		var sum float64
		for i := 0; i < c; i++ {
			dr[i] = math.Exp(xr[i] - max)
			sum += dr[i]
		}
		for i := 0; i < c; i++ {
			dr[i] /= sum
		}
	}
}

func (Softmax) Deriv(acts, pre *mat.Dense) Deriv {
	r, c := acts.Dims()
	ms := make([]*mat.Dense, r)
	for b := 0; b < r; b++ {
		a := acts.RawRowView(b)
		J := mat.NewDense(c, c, nil)
		for i := 0; i < c; i++ {
			for k := 0; k < c; k++ {
				v := -a[i] * a[k]
				if i == k {
					v += a[i]
				}
				J.Set(i, k, v)
			}
		}
		ms[b] = J
	}
	return Deriv{J: FullJacobian(ms)}
}

func (Softmax) Reset(batch, n int) {}
func (Softmax) Stateful() bool     { return false }

// ByName returns a fresh stateless nonlinearity for a configuration
// string. Stateful units are constructed directly (see Continuous).
func ByName(name string) (Nonlinearity, error) {
	switch name {
	case "linear":
		return Linear{}, nil
	case "logistic", "sigmoid":
		return Logistic{}, nil
	case "tanh":
		return Tanh{}, nil
	case "relu":
		return ReLU{}, nil
	case "softmax":
		return Softmax{}, nil
	}
	return nil, fmt.Errorf("nonlin: unknown nonlinearity %q", name)
}
