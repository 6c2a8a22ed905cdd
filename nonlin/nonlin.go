// Copyright 2026 Hessfree ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package nonlin exposes the layer nonlinearities of the hessfree
// framework.
//
// Stateless units (Linear, Logistic, Tanh, ReLU, Softmax) are pure
// functions of the summed input. The stateful Continuous unit low-pass
// filters its input through carried state and therefore exposes the
// three-block Jacobian the backward sweeps need; each layer requires its
// own instance.
package nonlin

import "github.com/hessfree-ml/hessfree/internal/nonlin"

// Nonlinearity computes a layer's output and exposes its derivative
// record to the gradient and curvature sweeps.
type Nonlinearity = nonlin.Nonlinearity

// Deriv is the tagged derivative record: a single Jacobian for stateless
// units, the DInput/DState/DOutput triple for stateful ones.
type Deriv = nonlin.Deriv

// Jacobian is a per-example activation Jacobian, diagonal or full.
type Jacobian = nonlin.Jacobian

// Stateless units.
type (
	Linear   = nonlin.Linear
	Logistic = nonlin.Logistic
	Tanh     = nonlin.Tanh
	ReLU     = nonlin.ReLU
	Softmax  = nonlin.Softmax
)

// Continuous is the stateful leaky-integrator unit.
type Continuous = nonlin.Continuous

// NewContinuous builds a leaky integrator over base with integration
// coefficient coeff in (0, 1].
func NewContinuous(base Nonlinearity, coeff float64) *Continuous {
	return nonlin.NewContinuous(base, coeff)
}

// ByName returns a stateless nonlinearity for a configuration string:
// "linear", "logistic", "tanh", "relu" or "softmax".
func ByName(name string) (Nonlinearity, error) {
	return nonlin.ByName(name)
}
