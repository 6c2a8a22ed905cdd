package rnn

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/hessfree-ml/hessfree/internal/nonlin"
)

// GaussNewtonVec computes (G + damping·I)·v, where G is the Gauss-Newton
// curvature matrix of the objective over the given forward pass, without
// materializing G. v is a candidate perturbation of the parameter vector.
//
// The product is two linear sweeps over the cached activations: a forward
// sweep pushing the linearized perturbation through the unrolled network
// (the R-operator), and a backward sweep mirroring Gradient with the loss
// derivative replaced by the Gauss-Newton surrogate: the linearized
// outputs contracted with the loss curvature. Structural damping adds a
// penalty on perturbation-induced output changes, scaled by
// damping·strucDamping; the final Tikhonov term damping·v keeps the
// operator positive semi-definite for the conjugate-gradient solver.
//
// dst may be nil or a buffer of parameter length to reuse; the filled
// buffer is returned.
func (n *Network) GaussNewtonVec(dst []float64, fwd *ForwardResult, v []float64, damping float64) ([]float64, error) {
	if err := checkBackward(fwd); err != nil {
		return nil, err
	}
	if len(v) != n.nParams {
		return nil, fmt.Errorf("rnn: perturbation has length %d, want %d", len(v), n.nParams)
	}
	if dst == nil {
		dst = make([]float64, n.nParams)
	} else if len(dst) != n.nParams {
		return nil, fmt.Errorf("rnn: output buffer has length %d, want %d", len(dst), n.nParams)
	} else {
		for i := range dst {
			dst[i] = 0
		}
	}

	params := fwd.Params
	nl := len(n.shape)
	out := n.outputLayer()
	batch, steps := fwd.Batch, fwd.Steps

	// R forward sweep: push the perturbation through the same dependency
	// structure as Forward. RIn is kept for the whole sequence (the
	// backward sweep's structural damping reads it), RAct and RState
	// only for the current step.
	RIn := make([][]*mat.Dense, nl)
	for i := range n.shape {
		RIn[i] = make([]*mat.Dense, steps)
		for s := 0; s < steps; s++ {
			RIn[i][s] = mat.NewDense(batch, n.shape[i], nil)
		}
	}
	RAct := make([]*mat.Dense, nl)
	RState := make([]*mat.Dense, nl)
	for i := range n.shape {
		RAct[i] = mat.NewDense(batch, n.shape[i], nil)
		if n.layers[i].Stateful() {
			RState[i] = mat.NewDense(batch, n.shape[i], nil)
		}
	}
	ROut := make([]*mat.Dense, steps)

	for s := 0; s < steps; s++ {
		for l := 0; l < nl; l++ {
			rin := RIn[l][s]

			if l > 0 {
				for _, pre := range n.backConns[l] {
					vW, vb, _ := n.Weights(v, pre, l)
					W, _, _ := n.Weights(params, pre, l)
					// Perturbed weights on the real activations,
					// plus real weights on the perturbed
					// activations.
					addMul(rin, fwd.Acts[pre][s], vW)
					addRowVec(rin, vb)
					addMul(rin, RAct[pre], W)
				}
			}

			if n.recurrent[l] {
				vW, vb, _ := n.Weights(v, l, l)
				W, _, _ := n.Weights(params, l, l)
				if s == 0 {
					addRowVec(rin, vb)
				} else {
					addMul(rin, fwd.Acts[l][s-1], vW)
					addMul(rin, RAct[l], W)
				}
			}

			d := fwd.Derivs[l][s]
			if !d.Stateful {
				d.J.MulVec(RAct[l], rin)
			} else {
				d.DState.MulVec(RState[l], RState[l])
				d.DInput.AddMulVec(RState[l], rin)
				d.DOutput.MulVec(RAct[l], RState[l])
			}
		}
		ROut[s] = mat.DenseCopyOf(RAct[out])
	}

	// R backward sweep: Gradient's structure with R-deltas.
	RDelta := make([]*mat.Dense, nl)
	for i := range n.shape {
		RDelta[i] = mat.NewDense(batch, n.shape[i], nil)
		if n.layers[i].Stateful() {
			RState[i].Zero()
		}
	}
	errBuf := make([]*mat.Dense, nl)
	for i := range n.shape {
		errBuf[i] = mat.NewDense(batch, n.shape[i], nil)
	}
	d2 := mat.NewDense(batch, n.shape[out], nil)
	scratch := make([]*mat.Dense, nl)
	for i := range n.shape {
		scratch[i] = mat.NewDense(batch, n.shape[i], nil)
	}

	for s := steps - 1; s >= 0; s-- {
		for l := nl - 1; l >= 0; l-- {
			rerr := errBuf[l]
			rerr.Zero()

			if l == out {
				// Gauss-Newton surrogate error: linearized outputs
				// contracted with the loss curvature.
				n.loss.SecondDeriv(d2, fwd.Acts[out][s], fwd.Targets[s])
				rerr.MulElem(ROut[s], d2)
			} else {
				for _, post := range n.conns[l] {
					W, _, _ := n.Weights(params, l, post)
					addMul(rerr, RDelta[post], W.T())

					sp := n.offsets[connKey{l, post}]
					addOuterSum(dst[sp.start:sp.wEnd], fwd.Acts[l][s], RDelta[post])
					addColSum(dst[sp.wEnd:sp.bEnd], RDelta[post])
				}
			}

			if n.recurrent[l] {
				Wrec, _, _ := n.Weights(params, l, l)
				addMul(rerr, RDelta[l], Wrec.T())
			}

			d := fwd.Derivs[l][s]
			var dOut nonlin.Jacobian
			if !d.Stateful {
				d.J.MulVecT(RDelta[l], rerr)
				dOut = d.J
			} else {
				d.DOutput.AddMulVecT(RState[l], rerr)
				d.DInput.MulVecT(RDelta[l], RState[l])
				d.DState.MulVecT(RState[l], RState[l])
				dOut = d.DOutput
			}

			// Structural damping: penalize output changes induced by
			// the perturbation. For stateful units only the output
			// Jacobian is accounted for; the state path is a known
			// approximation and is not included.
			if damping != 0 && n.strucDamping != 0 {
				sc := scratch[l]
				sc.Scale(damping*n.strucDamping, RIn[l][s])
				dOut.AddMulVec(RDelta[l], sc)
			}

			if n.recurrent[l] {
				sp := n.offsets[connKey{l, l}]
				if s > 0 {
					addOuterSum(dst[sp.start:sp.wEnd], fwd.Acts[l][s-1], RDelta[l])
				} else {
					addColSum(dst[sp.wEnd:sp.bEnd], RDelta[l])
				}
			}
		}
	}

	floats.Scale(1/float64(batch), dst)

	// Tikhonov term.
	floats.AddScaled(dst, damping, v)
	return dst, nil
}
