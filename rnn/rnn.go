// Copyright 2026 Hessfree ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package rnn exposes the recurrent-network core: forward propagation
// over time, backpropagation through time, and Gauss-Newton
// curvature-vector products for Hessian-free training.
//
// # Basic usage
//
//	net, err := rnn.New(rnn.Config{
//	    Shape:  []int{1, 10, 1},
//	    Layers: []nonlin.Nonlinearity{nonlin.Linear{}, nonlin.Logistic{}, nonlin.Logistic{}},
//	})
//	fwd, err := net.Forward(inputs, targets, net.Params(), true)
//	grad, err := net.Gradient(fwd)
//	Gv, err := net.GaussNewtonVec(nil, fwd, v, damping)
//
// A ForwardResult carries the cached activations explicitly from Forward
// into the two backward operations; nothing is shared implicitly between
// calls, and every operation is deterministic for fixed inputs.
package rnn

import (
	"gonum.org/v1/gonum/mat"

	"github.com/hessfree-ml/hessfree/internal/rnn"
)

// Network is a recurrent neural network with a flat parameter vector.
type Network = rnn.Network

// Config describes a network at construction time.
type Config = rnn.Config

// InitConfig controls weight initialization for one connection group.
type InitConfig = rnn.InitConfig

// ForwardResult carries one forward pass's cached activations.
type ForwardResult = rnn.ForwardResult

// InputSource is a forward pass's external input: a FixedSequence or a
// Plant.
type InputSource = rnn.InputSource

// Plant is a stateful environment driven in closed loop by the network's
// own output.
type Plant = rnn.Plant

// FixedSequence is a pre-recorded input sequence.
type FixedSequence = rnn.FixedSequence

// New constructs a network, computing the parameter layout and
// initializing the weights. Configuration errors are reported eagerly.
func New(cfg Config) (*Network, error) {
	return rnn.New(cfg)
}

// NewFixedSequence builds an input sequence from per-timestep
// [batch x features] matrices.
func NewFixedSequence(steps ...*mat.Dense) (*FixedSequence, error) {
	return rnn.NewFixedSequence(steps...)
}

// SingleStep promotes a [batch x features] matrix to a one-step sequence.
func SingleStep(m *mat.Dense) *FixedSequence {
	return rnn.SingleStep(m)
}
