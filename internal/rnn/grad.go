package rnn

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Gradient backpropagates the objective through time over a completed
// forward pass and returns the mean parameter gradient, shaped like the
// parameter vector.
//
// The sweep runs timestep-descending, layer-descending, the reverse of
// Forward's order, so that each delta is complete before anything reads
// it: the output layer's delta at step s seeds the interior layers at
// step s, and a recurrent layer's delta at step s feeds its own error at
// step s-1.
func (n *Network) Gradient(fwd *ForwardResult) ([]float64, error) {
	if err := checkBackward(fwd); err != nil {
		return nil, err
	}

	params := fwd.Params
	grad := make([]float64, n.nParams)

	nl := len(n.shape)
	out := n.outputLayer()

	deltas := make([]*mat.Dense, nl)
	stateDeltas := make([]*mat.Dense, nl)
	for i := range n.shape {
		deltas[i] = mat.NewDense(fwd.Batch, n.shape[i], nil)
		if n.layers[i].Stateful() {
			stateDeltas[i] = mat.NewDense(fwd.Batch, n.shape[i], nil)
		}
	}

	errBuf := make([]*mat.Dense, nl)
	for i := range n.shape {
		errBuf[i] = mat.NewDense(fwd.Batch, n.shape[i], nil)
	}

	for s := fwd.Steps - 1; s >= 0; s-- {
		for l := nl - 1; l >= 0; l-- {
			errMat := errBuf[l]
			errMat.Zero()

			if l == out {
				n.loss.Deriv(errMat, fwd.Acts[out][s], fwd.Targets[s])
			} else {
				for _, post := range n.conns[l] {
					W, _, _ := n.Weights(params, l, post)
					addMul(errMat, deltas[post], W.T())

					// Feedforward gradient for (l, post).
					sp := n.offsets[connKey{l, post}]
					addOuterSum(grad[sp.start:sp.wEnd], fwd.Acts[l][s], deltas[post])
					addColSum(grad[sp.wEnd:sp.bEnd], deltas[post])
				}
			}

			// Recurrent error arrives from this layer's own delta at
			// step s+1, which has not been overwritten yet.
			if n.recurrent[l] {
				Wrec, _, _ := n.Weights(params, l, l)
				addMul(errMat, deltas[l], Wrec.T())
			}

			d := fwd.Derivs[l][s]
			if !d.Stateful {
				d.J.MulVecT(deltas[l], errMat)
			} else {
				// The downstream error first feeds the accumulated
				// state delta through the output Jacobian; the
				// input delta reads it through the input Jacobian;
				// the state delta itself is carried one step back
				// through the state Jacobian.
				d.DOutput.AddMulVecT(stateDeltas[l], errMat)
				d.DInput.MulVecT(deltas[l], stateDeltas[l])
				d.DState.MulVecT(stateDeltas[l], stateDeltas[l])
			}

			if n.recurrent[l] {
				sp := n.offsets[connKey{l, l}]
				if s > 0 {
					addOuterSum(grad[sp.start:sp.wEnd], fwd.Acts[l][s-1], deltas[l])
				} else {
					// No prior activation exists: the remaining
					// delta mass lands on the recurrent bias,
					// which plays the role of the initial state.
					addColSum(grad[sp.wEnd:sp.bEnd], deltas[l])
				}
			}
		}
	}

	floats.Scale(1/float64(fwd.Batch), grad)
	return grad, nil
}

func checkBackward(fwd *ForwardResult) error {
	if fwd == nil {
		return fmt.Errorf("rnn: nil forward result")
	}
	if fwd.Derivs == nil {
		return fmt.Errorf("rnn: forward pass was run without derivatives")
	}
	if fwd.Targets == nil {
		return fmt.Errorf("rnn: forward result carries no targets")
	}
	return nil
}
