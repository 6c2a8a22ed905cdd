package rnn

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"

	"github.com/hessfree-ml/hessfree/internal/nonlin"
)

func randSteps(rng *rand.Rand, batch, features, steps int) []*mat.Dense {
	out := make([]*mat.Dense, steps)
	for s := range out {
		m := mat.NewDense(batch, features, nil)
		for b := 0; b < batch; b++ {
			for i := 0; i < features; i++ {
				m.Set(b, i, rng.NormFloat64())
			}
		}
		out[s] = m
	}
	return out
}

// checkGradient compares the BPTT gradient against central finite
// differences of the scalar objective.
func checkGradient(t *testing.T, net *Network, src InputSource, targets []*mat.Dense) {
	t.Helper()

	fwd, err := net.Forward(src, targets, net.Params(), true)
	require.NoError(t, err)
	grad, err := net.Gradient(fwd)
	require.NoError(t, err)

	numeric := fd.Gradient(nil, func(p []float64) float64 {
		e, err := net.Error(p, src, targets)
		require.NoError(t, err)
		return e
	}, net.Params(), &fd.Settings{Formula: fd.Central})

	require.Len(t, grad, net.NumParams())
	for i := range grad {
		assert.InDelta(t, numeric[i], grad[i], 1e-6, "parameter %d", i)
	}
}

func TestGradientRecurrentFiniteDifference(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	net, err := New(Config{Shape: []int{2, 4, 2}, Seed: 5})
	require.NoError(t, err)

	src := seq(t, randSteps(rng, 3, 2, 4)...)
	targets := make([]*mat.Dense, 4)
	for s := range targets {
		tg := mat.NewDense(3, 2, nil)
		for b := 0; b < 3; b++ {
			tg.Set(b, 0, rng.Float64())
			tg.Set(b, 1, rng.Float64())
		}
		targets[s] = tg
	}

	checkGradient(t, net, src, targets)
}

func TestGradientTanhAndSkipConnections(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	net, err := New(Config{
		Shape:  []int{2, 5, 5, 1},
		Layers: []nonlin.Nonlinearity{nonlin.Linear{}, nonlin.Tanh{}, nonlin.Tanh{}, nonlin.Linear{}},
		Conns:  map[int][]int{0: {1, 2}, 1: {2}, 2: {3}},
		Seed:   6,
	})
	require.NoError(t, err)

	src := seq(t, randSteps(rng, 2, 2, 3)...)
	targets := randSteps(rng, 2, 1, 3)

	checkGradient(t, net, src, targets)
}

func TestGradientStatefulFiniteDifference(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	net, err := New(Config{
		Shape: []int{1, 4, 1},
		Layers: []nonlin.Nonlinearity{
			nonlin.Linear{},
			nonlin.NewContinuous(nonlin.Tanh{}, 0.3),
			nonlin.Logistic{},
		},
		Seed: 7,
	})
	require.NoError(t, err)

	src := seq(t, randSteps(rng, 2, 1, 5)...)
	targets := make([]*mat.Dense, 5)
	for s := range targets {
		tg := mat.NewDense(2, 1, nil)
		tg.Set(0, 0, rng.Float64())
		tg.Set(1, 0, rng.Float64())
		targets[s] = tg
	}

	checkGradient(t, net, src, targets)
}

// With all recurrence off and one timestep, the computation must reduce
// to plain feedforward backprop.
func TestGradientZeroRecurrenceReduction(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	net, err := New(Config{
		Shape:     []int{3, 4, 2},
		Recurrent: []bool{false, false, false},
		Seed:      8,
	})
	require.NoError(t, err)

	// No recurrent parameter blocks exist at all.
	require.Equal(t, (3+1)*4+(4+1)*2, net.NumParams())

	src := seq(t, randSteps(rng, 4, 3, 1)...)
	targets := randSteps(rng, 4, 2, 1)
	checkGradient(t, net, src, targets)
}

// A [1,1] linear network has a closed-form gradient: dE/dw = x·(o - t),
// dE/db = (o - t).
func TestGradientAnalyticLinear(t *testing.T) {
	net, err := New(Config{
		Shape:     []int{1, 1},
		Layers:    []nonlin.Nonlinearity{nonlin.Linear{}, nonlin.Linear{}},
		Recurrent: []bool{false, false},
	})
	require.NoError(t, err)
	copy(net.Params(), []float64{2, 0.5}) // w, b

	const x, tg = 1.5, 1.0
	src := SingleStep(mat.NewDense(1, 1, []float64{x}))
	targets := []*mat.Dense{mat.NewDense(1, 1, []float64{tg})}

	fwd, err := net.Forward(src, targets, net.Params(), true)
	require.NoError(t, err)
	grad, err := net.Gradient(fwd)
	require.NoError(t, err)

	residual := 2*x + 0.5 - tg
	assert.InDelta(t, x*residual, grad[0], 1e-14)
	assert.InDelta(t, residual, grad[1], 1e-14)
}

func TestGradientRequiresDerivatives(t *testing.T) {
	net, err := New(Config{Shape: []int{1, 2, 1}})
	require.NoError(t, err)

	src := SingleStep(mat.NewDense(1, 1, []float64{0.5}))
	targets := []*mat.Dense{mat.NewDense(1, 1, []float64{0.1})}

	fwd, err := net.Forward(src, targets, net.Params(), false)
	require.NoError(t, err)
	_, err = net.Gradient(fwd)
	assert.Error(t, err, "gradient needs a derivative-bearing forward pass")

	fwd, err = net.Forward(src, nil, net.Params(), true)
	require.NoError(t, err)
	_, err = net.Gradient(fwd)
	assert.Error(t, err, "gradient needs targets")
}
