package rnn

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Error computes the scalar objective at params over src: the loss summed
// over timesteps and units, averaged over the batch.
//
// With a Plant source, targets must be nil; the pass runs the plant in
// closed loop and reads the targets it produced.
func (n *Network) Error(params []float64, src InputSource, targets []*mat.Dense) (float64, error) {
	fwd, err := n.Forward(src, targets, params, false)
	if err != nil {
		return 0, err
	}
	return n.ResultError(fwd)
}

// ResultError computes the scalar objective over an already-completed
// forward pass.
func (n *Network) ResultError(fwd *ForwardResult) (float64, error) {
	if fwd.Targets == nil {
		return 0, fmt.Errorf("rnn: forward result carries no targets")
	}
	outs := fwd.Outputs()
	var sum float64
	for s := 0; s < fwd.Steps; s++ {
		sum += n.loss.Loss(outs[s], fwd.Targets[s])
	}
	return sum / float64(fwd.Batch), nil
}
