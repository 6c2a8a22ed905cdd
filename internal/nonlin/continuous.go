package nonlin

import "gonum.org/v1/gonum/mat"

// Continuous is a leaky-integrator unit: instead of being a pure function
// of the current summed input, it low-pass filters the input through an
// internal state and applies a base nonlinearity to that state.
//
//	state ← state + coeff·(input - state)
//	output = base(state)
//
// The state persists across timesteps within one forward sweep, which
// makes the unit stateful: its derivative record carries three Jacobian
// blocks (DInput = coeff, DState = 1-coeff, DOutput = base derivative at
// the state) rather than a single one.
//
// A Continuous instance owns its state, so each layer needs its own.
type Continuous struct {
	// Base is the stateless nonlinearity applied to the filtered state.
	Base Nonlinearity
	// Coeff is the integration coefficient dt/tau, in (0, 1]. Coeff = 1
	// recovers the base unit exactly.
	Coeff float64

	state *mat.Dense
}

// NewContinuous builds a leaky integrator over base with the given
// integration coefficient.
func NewContinuous(base Nonlinearity, coeff float64) *Continuous {
	return &Continuous{Base: base, Coeff: coeff}
}

func (c *Continuous) Activate(dst, x *mat.Dense) {
	r, n := x.Dims()
	for b := 0; b < r; b++ {
		sr := c.state.RawRowView(b)
		xr := x.RawRowView(b)
		for i := 0; i < n; i++ {
			sr[i] += c.Coeff * (xr[i] - sr[i])
		}
	}
	c.Base.Activate(dst, c.state)
}

func (c *Continuous) Deriv(acts, pre *mat.Dense) Deriv {
	r, n := acts.Dims()

	din := mat.NewDense(r, n, nil)
	dst := mat.NewDense(r, n, nil)
	for b := 0; b < r; b++ {
		ir := din.RawRowView(b)
		sr := dst.RawRowView(b)
		for i := 0; i < n; i++ {
			ir[i] = c.Coeff
			sr[i] = 1 - c.Coeff
		}
	}

	// The base differentiates at the filtered state, not at the raw
	// summed input.
	base := c.Base.Deriv(acts, c.state)

	return Deriv{
		DInput:   DiagJacobian(din),
		DState:   DiagJacobian(dst),
		DOutput:  base.J,
		Stateful: true,
	}
}

func (c *Continuous) Reset(batch, n int) {
	c.state = mat.NewDense(batch, n, nil)
	c.Base.Reset(batch, n)
}

func (c *Continuous) Stateful() bool { return true }
