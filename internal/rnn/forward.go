package rnn

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/hessfree-ml/hessfree/internal/nonlin"
)

// ForwardResult carries everything one forward pass produced: the cached
// activations (and, when requested, activation derivatives) that Gradient
// and GaussNewtonVec consume, plus the inputs/targets and the parameter
// vector the pass was evaluated at. Each forward pass allocates a fresh
// result; nothing is shared between passes.
type ForwardResult struct {
	// Params is a copy of the parameter vector the pass used.
	Params []float64

	// Inputs and Targets hold one [batch x n] matrix per timestep. For
	// a plant pass both are filled from the plant after the sweep.
	Inputs  []*mat.Dense
	Targets []*mat.Dense

	// Acts[l][s] is layer l's activation at timestep s, [batch x n].
	Acts [][]*mat.Dense

	// Derivs[l][s] is the matching derivative record; nil when the pass
	// was run without derivatives.
	Derivs [][]nonlin.Deriv

	Batch int
	Steps int
}

// Outputs returns the final layer's activation sequence.
func (f *ForwardResult) Outputs() []*mat.Dense {
	return f.Acts[len(f.Acts)-1]
}

// Forward unrolls the network over src, evaluating the given parameter
// vector. When deriv is true the per-timestep activation derivatives are
// cached as well, which Gradient and GaussNewtonVec require.
//
// targets may be nil (Error-less probing); with a Plant source it must be
// nil, since the plant supplies its own targets.
//
// The sweep is timestep-major and layer-minor: layer i's feedforward
// input at step s may depend on layer i-1 at the same step, while its
// recurrent input reads its own already-finalized step s-1 activation.
func (n *Network) Forward(src InputSource, targets []*mat.Dense, params []float64, deriv bool) (*ForwardResult, error) {
	if src == nil {
		return nil, fmt.Errorf("rnn: nil input source")
	}
	if len(params) != n.nParams {
		return nil, fmt.Errorf("rnn: parameter vector has length %d, want %d", len(params), n.nParams)
	}

	batch, steps := src.BatchSize(), src.SeqLen()
	if batch < 1 || steps < 1 {
		return nil, fmt.Errorf("rnn: input source reports %d sequences of %d steps", batch, steps)
	}

	plant, isPlant := src.(Plant)
	var seq *FixedSequence
	if isPlant {
		if targets != nil {
			return nil, fmt.Errorf("rnn: explicit targets cannot be combined with a plant input")
		}
		plant.Reset()
	} else {
		var ok bool
		seq, ok = src.(*FixedSequence)
		if !ok {
			return nil, fmt.Errorf("rnn: unsupported input source %T", src)
		}
		if _, c := seq.Step(0).Dims(); c != n.shape[0] {
			return nil, fmt.Errorf("rnn: input has %d features, input layer has %d units", c, n.shape[0])
		}
	}
	if targets != nil {
		if len(targets) != steps {
			return nil, fmt.Errorf("rnn: got %d target steps for %d input steps", len(targets), steps)
		}
		out := n.shape[n.outputLayer()]
		for s, tg := range targets {
			if r, c := tg.Dims(); r != batch || c != out {
				return nil, fmt.Errorf("rnn: target step %d is %dx%d, want %dx%d", s, r, c, batch, out)
			}
		}
	}

	fwd := &ForwardResult{
		Params:  append([]float64(nil), params...),
		Targets: targets,
		Acts:    make([][]*mat.Dense, len(n.shape)),
		Batch:   batch,
		Steps:   steps,
	}
	for i := range n.shape {
		fwd.Acts[i] = make([]*mat.Dense, steps)
	}
	if deriv {
		fwd.Derivs = make([][]nonlin.Deriv, len(n.shape))
		for i := range n.shape {
			fwd.Derivs[i] = make([]nonlin.Deriv, steps)
		}
	}

	// Any state carried inside the nonlinearities belongs to a single
	// sweep.
	for i, l := range n.layers {
		l.Reset(batch, n.shape[i])
	}

	out := n.outputLayer()
	for s := 0; s < steps; s++ {
		for i := range n.shape {
			var ff *mat.Dense
			if i == 0 {
				var ext *mat.Dense
				if isPlant {
					var prev *mat.Dense
					if s > 0 {
						prev = fwd.Acts[out][s-1]
					} else {
						prev = mat.NewDense(batch, n.shape[out], nil)
					}
					ext = plant.Step(prev)
					if r, c := ext.Dims(); r != batch || c != n.shape[0] {
						return nil, fmt.Errorf("rnn: plant produced a %dx%d input at step %d, want %dx%d",
							r, c, s, batch, n.shape[0])
					}
				} else {
					ext = seq.Step(s)
				}
				if n.recurrent[0] {
					ff = mat.DenseCopyOf(ext)
				} else {
					ff = ext
				}
			} else {
				ff = mat.NewDense(batch, n.shape[i], nil)
				for _, pre := range n.backConns[i] {
					W, b, _ := n.Weights(params, pre, i)
					addMul(ff, fwd.Acts[pre][s], W)
					addRowVec(ff, b)
				}
			}

			if n.recurrent[i] {
				Wrec, brec, _ := n.Weights(params, i, i)
				if s > 0 {
					addMul(ff, fwd.Acts[i][s-1], Wrec)
				} else {
					// No previous timestep: the recurrent bias
					// acts as the learned initial state input.
					addRowVec(ff, brec)
				}
			}

			act := mat.NewDense(batch, n.shape[i], nil)
			n.layers[i].Activate(act, ff)
			fwd.Acts[i][s] = act

			if deriv {
				fwd.Derivs[i][s] = n.layers[i].Deriv(act, ff)
			}
		}
	}

	if isPlant {
		fwd.Inputs = plant.Inputs()
		fwd.Targets = plant.Targets()
	} else {
		fwd.Inputs = seq.Steps()
	}
	return fwd, nil
}
