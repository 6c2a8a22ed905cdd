// Package rnn implements the recurrent-network core of Hessian-free
// training: forward propagation over time, backpropagation through time,
// and exact Gauss-Newton matrix-vector products computed with the
// R-operator, including structural damping.
//
// All parameters live in one flat vector: feedforward weights and biases
// first, in connection order, then the recurrent self-connection weights
// and biases. An offset table maps each connection to its slice of the
// vector, and Weights returns zero-copy matrix views into it. The three
// sweep operations (Forward, Gradient, GaussNewtonVec) are deterministic,
// single-threaded, and communicate only through the explicit
// ForwardResult value.
package rnn

import (
	"math"
	"math/rand"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"

	"github.com/hessfree-ml/hessfree/internal/loss"
	"github.com/hessfree-ml/hessfree/internal/nonlin"
)

type connKey struct{ pre, post int }

// span is one connection's range in the parameter vector: weights in
// [start, wEnd), bias in [wEnd, bEnd).
type span struct{ start, wEnd, bEnd int }

// Network is a recurrent neural network trained with Hessian-free
// optimization. It owns a parameter vector but every operation takes the
// vector to evaluate explicitly, so the optimizer can probe candidate
// parameters without mutating the network.
type Network struct {
	shape     []int
	layers    []nonlin.Nonlinearity
	conns     [][]int
	backConns [][]int
	recurrent []bool
	loss      loss.Loss

	strucDamping float64

	offsets map[connKey]span
	nFF     int // parameter count before recurrent blocks
	nParams int

	params []float64
}

// New constructs a network from cfg, computes the parameter layout and
// initializes the weights. Configuration errors are reported here and
// never coerced.
func New(cfg Config) (*Network, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	layers, err := cfg.resolveLayers()
	if err != nil {
		return nil, err
	}
	conns, backConns, err := cfg.resolveConns()
	if err != nil {
		return nil, err
	}

	recurrent := cfg.Recurrent
	if recurrent == nil {
		recurrent = make([]bool, len(cfg.Shape))
		for i := 1; i < len(cfg.Shape)-1; i++ {
			recurrent[i] = true
		}
	}

	lossFn := cfg.Loss
	if lossFn == nil {
		lossFn = loss.SquaredError{}
	}

	n := &Network{
		shape:        append([]int(nil), cfg.Shape...),
		layers:       layers,
		conns:        conns,
		backConns:    backConns,
		recurrent:    append([]bool(nil), recurrent...),
		loss:         lossFn,
		strucDamping: cfg.StrucDamping,
	}
	n.computeOffsets()

	rng := rand.New(rand.NewSource(cfg.Seed))
	n.params = make([]float64, n.nParams)
	n.initWeights(rng, cfg.Init, cfg.RecInit)

	if cfg.Logger != nil {
		nRec := 0
		for _, r := range n.recurrent {
			if r {
				nRec++
			}
		}
		cfg.Logger.WithFields(logrus.Fields{
			"shape":            n.shape,
			"params":           n.nParams,
			"recurrent_layers": nRec,
		}).Debug("network constructed")
	}
	return n, nil
}

// computeOffsets assigns each connection its slice of the parameter
// vector: feedforward connections in (pre, post) order, then the
// recurrent self-connections appended at the tail. The recurrent offsets
// are based on the feedforward total, i.e. the vector length before the
// recurrent blocks exist.
func (n *Network) computeOffsets() {
	n.offsets = make(map[connKey]span)
	offset := 0
	for pre := range n.shape {
		for _, post := range n.conns[pre] {
			wEnd := offset + n.shape[pre]*n.shape[post]
			bEnd := wEnd + n.shape[post]
			n.offsets[connKey{pre, post}] = span{offset, wEnd, bEnd}
			offset = bEnd
		}
	}
	n.nFF = offset
	for l, rec := range n.recurrent {
		if !rec {
			continue
		}
		wEnd := offset + n.shape[l]*n.shape[l]
		bEnd := wEnd + n.shape[l]
		n.offsets[connKey{l, l}] = span{offset, wEnd, bEnd}
		offset = bEnd
	}
	n.nParams = offset
}

func (n *Network) initWeights(rng *rand.Rand, ffInit, recInit InitConfig) {
	for pre := range n.shape {
		for _, post := range n.conns[pre] {
			n.initConn(rng, connKey{pre, post}, n.shape[pre], n.shape[post], ffInit)
		}
	}
	for l, rec := range n.recurrent {
		if rec {
			n.initConn(rng, connKey{l, l}, n.shape[l], n.shape[l], recInit)
		}
	}
}

func (n *Network) initConn(rng *rand.Rand, key connKey, fanIn, fanOut int, init InitConfig) {
	sp := n.offsets[key]
	coeff := init.Coeff
	if coeff == 0 {
		coeff = math.Sqrt(6 / float64(fanIn+fanOut))
	}
	for i := sp.start; i < sp.wEnd; i++ {
		n.params[i] = (rng.Float64()*2 - 1) * coeff
	}
	for i := sp.wEnd; i < sp.bEnd; i++ {
		n.params[i] = init.Bias
	}
}

// Weights returns the weight matrix and bias vector for the connection
// (pre, post) as views into params, without copying. The recurrent
// self-connection of layer l is the key (l, l). ok is false when the
// connection does not exist.
func (n *Network) Weights(params []float64, pre, post int) (W *mat.Dense, bias []float64, ok bool) {
	sp, ok := n.offsets[connKey{pre, post}]
	if !ok {
		return nil, nil, false
	}
	return mat.NewDense(n.shape[pre], n.shape[post], params[sp.start:sp.wEnd]),
		params[sp.wEnd:sp.bEnd], true
}

// NumParams returns the length of the parameter vector.
func (n *Network) NumParams() int { return n.nParams }

// Shape returns the layer sizes.
func (n *Network) Shape() []int { return append([]int(nil), n.shape...) }

// Params returns the network's current parameter vector. The slice is the
// network's own storage; callers that need a scratch copy should copy it.
func (n *Network) Params() []float64 { return n.params }

// SetParams replaces the network's parameter vector.
func (n *Network) SetParams(p []float64) {
	if len(p) != n.nParams {
		panic("rnn: SetParams length mismatch")
	}
	copy(n.params, p)
}

// Loss returns the training objective.
func (n *Network) Loss() loss.Loss { return n.loss }

// Recurrent reports whether layer l has a recurrent self-connection.
func (n *Network) Recurrent(l int) bool { return n.recurrent[l] }

func (n *Network) outputLayer() int { return len(n.shape) - 1 }
