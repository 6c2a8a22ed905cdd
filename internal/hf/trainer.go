// Package hf implements the outer Hessian-free training loop: for each
// epoch it takes one forward pass and one gradient over the batch, solves
// the damped Gauss-Newton system G·δ = -∇f with conjugate gradient
// (calling the network's curvature-vector product once per CG iteration),
// backtracks over the CG iterates against the true objective, and adapts
// the Tikhonov damping with a Levenberg-Marquardt schedule.
package hf

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/hessfree-ml/hessfree/internal/rnn"
)

// Config holds the trainer hyperparameters.
type Config struct {
	// CGIters bounds the conjugate-gradient iterations per epoch.
	CGIters int `json:"cgIters"`
	// MaxEpochs is the number of outer iterations.
	MaxEpochs int `json:"maxEpochs"`
	// InitDamping is the starting Tikhonov damping λ.
	InitDamping float64 `json:"initDamping"`
	// CGTol is the relative-progress threshold of the CG stopping rule.
	CGTol float64 `json:"cgTol"`
	// BatchSize selects a random minibatch of sequences per epoch;
	// zero uses the full batch. Plants always run full batch.
	BatchSize int `json:"batchSize"`
	// Seed seeds minibatch selection.
	Seed int64 `json:"seed"`
}

// DefaultConfig returns the defaults used by the demos: full batch, 50 CG
// iterations, damping 1.0.
func DefaultConfig() Config {
	return Config{
		CGIters:     50,
		MaxEpochs:   100,
		InitDamping: 1.0,
		CGTol:       5e-4,
	}
}

// Epoch records one outer iteration.
type Epoch struct {
	Epoch   int
	Err     float64
	Damping float64
	CGIters int
	Rho     float64
}

// Result summarizes a training run.
type Result struct {
	InitialErr float64
	FinalErr   float64
	Epochs     []Epoch
}

// Trainer runs Hessian-free optimization on a network. It keeps the CG
// solution across epochs as a decayed warm start.
type Trainer struct {
	cfg   Config
	log   logrus.FieldLogger
	rng   *rand.Rand
	delta []float64
}

// New builds a trainer. log may be nil to disable logging.
func New(cfg Config, log logrus.FieldLogger) *Trainer {
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		log = l
	}
	return &Trainer{cfg: cfg, log: log, rng: rand.New(rand.NewSource(cfg.Seed))}
}

// Run trains net on the given source and targets and installs the final
// parameters into the network. With a Plant source, targets must be nil.
func (t *Trainer) Run(net *rnn.Network, src rnn.InputSource, targets []*mat.Dense) (*Result, error) {
	if _, isPlant := src.(rnn.Plant); isPlant {
		if t.cfg.BatchSize > 0 {
			return nil, fmt.Errorf("hf: minibatching is not possible with a plant input")
		}
	} else if targets == nil {
		return nil, fmt.Errorf("hf: training on a fixed sequence requires targets")
	}
	if t.cfg.CGIters < 1 || t.cfg.MaxEpochs < 1 {
		return nil, fmt.Errorf("hf: CGIters and MaxEpochs must be positive")
	}

	params := append([]float64(nil), net.Params()...)
	damping := t.cfg.InitDamping
	res := &Result{InitialErr: math.NaN()}

	for epoch := 0; epoch < t.cfg.MaxEpochs; epoch++ {
		bsrc, btargets, err := t.minibatch(src, targets)
		if err != nil {
			return nil, err
		}

		fwd, err := net.Forward(bsrc, btargets, params, true)
		if err != nil {
			return nil, err
		}
		baseErr, err := net.ResultError(fwd)
		if err != nil {
			return nil, err
		}
		if math.IsNaN(res.InitialErr) {
			res.InitialErr = baseErr
		}

		grad, err := net.Gradient(fwd)
		if err != nil {
			return nil, err
		}
		b := make([]float64, len(grad))
		floats.AddScaled(b, -1, grad)

		// Warm-start CG from the decayed previous solution.
		x0 := make([]float64, len(params))
		if t.delta != nil {
			copy(x0, t.delta)
			floats.Scale(0.95, x0)
		}

		snaps, iters, err := t.conjGrad(net, fwd, b, x0, damping)
		if err != nil {
			return nil, err
		}

		// Backtrack over the CG iterates: the quadratic model can keep
		// improving after the true objective has turned around.
		step, stepErr, quad, err := t.backtrack(net, bsrc, btargets, params, snaps, baseErr)
		if err != nil {
			return nil, err
		}

		// Levenberg-Marquardt damping update from the reduction ratio.
		rho := math.NaN()
		if quad < 0 {
			rho = (stepErr - baseErr) / quad
			if rho > 0.75 {
				damping *= 2.0 / 3.0
			} else if rho < 0.25 {
				damping *= 3.0 / 2.0
			}
		} else {
			damping *= 3.0 / 2.0
		}

		// Simple backtracking line search on the chosen update.
		rate := 1.0
		candErr := stepErr
		for i := 0; candErr > baseErr && i < 8; i++ {
			rate *= 0.5
			candErr, err = t.errorAt(net, bsrc, btargets, params, step, rate)
			if err != nil {
				return nil, err
			}
		}
		if candErr <= baseErr {
			floats.AddScaled(params, rate, step)
		}

		t.delta = step
		res.Epochs = append(res.Epochs, Epoch{
			Epoch: epoch, Err: baseErr, Damping: damping, CGIters: iters, Rho: rho,
		})
		t.log.WithFields(logrus.Fields{
			"epoch":    epoch,
			"err":      baseErr,
			"damping":  damping,
			"cg_iters": iters,
			"rho":      rho,
			"rate":     rate,
		}).Info("hf epoch")
	}

	net.SetParams(params)
	finalErr, err := net.Error(net.Params(), src, targets)
	if err != nil {
		return nil, err
	}
	res.FinalErr = finalErr
	return res, nil
}

func (t *Trainer) errorAt(net *rnn.Network, src rnn.InputSource, targets []*mat.Dense, params, step []float64, rate float64) (float64, error) {
	cand := append([]float64(nil), params...)
	floats.AddScaled(cand, rate, step)
	return net.Error(cand, src, targets)
}

type cgSnapshot struct {
	x    []float64
	quad float64
}

// conjGrad minimizes the quadratic φ(x) = ½xᵀAx - bᵀx with A the damped
// Gauss-Newton operator, recording iterates at geometrically spaced
// indices for the backtracking step. It stops early when the relative
// progress of φ over the trailing window falls below CGTol (the Martens
// stopping rule) or when the operator loses positive curvature
// numerically.
func (t *Trainer) conjGrad(net *rnn.Network, fwd *rnn.ForwardResult, b, x0 []float64, damping float64) ([]cgSnapshot, int, error) {
	n := len(b)
	x := append([]float64(nil), x0...)

	Ax, err := net.GaussNewtonVec(nil, fwd, x, damping)
	if err != nil {
		return nil, 0, err
	}
	r := make([]float64, n)
	copy(r, b)
	floats.Sub(r, Ax)
	p := append([]float64(nil), r...)
	rr := floats.Dot(r, r)

	var (
		snaps   []cgSnapshot
		phis    []float64
		Ap      []float64
		nextRec = 1
		gapMult = 1.3
	)
	phi := 0.5*floats.Dot(x, Ax) - floats.Dot(b, x)
	phis = append(phis, phi)

	iters := 0
	for i := 1; i <= t.cfg.CGIters; i++ {
		Ap, err = net.GaussNewtonVec(Ap, fwd, p, damping)
		if err != nil {
			return nil, iters, err
		}
		pAp := floats.Dot(p, Ap)
		if pAp <= 0 {
			// Numerical loss of positive curvature; the damping
			// layer owns this failure mode.
			break
		}
		alpha := rr / pAp
		floats.AddScaled(x, alpha, p)
		floats.AddScaled(Ax, alpha, Ap)
		floats.AddScaled(r, -alpha, Ap)
		rrNew := floats.Dot(r, r)
		beta := rrNew / rr
		for k := range p {
			p[k] = r[k] + beta*p[k]
		}
		rr = rrNew
		iters = i

		phi = 0.5*floats.Dot(x, Ax) - floats.Dot(b, x)
		phis = append(phis, phi)

		if i >= nextRec || i == t.cfg.CGIters {
			snaps = append(snaps, cgSnapshot{x: append([]float64(nil), x...), quad: phi})
			nextRec = int(math.Ceil(float64(nextRec) * gapMult))
			if nextRec <= i {
				nextRec = i + 1
			}
		}

		// Relative-progress stopping rule.
		k := 10
		if i/10 > k {
			k = i / 10
		}
		if i > k && phi < 0 {
			prev := phis[i-k]
			if (phi-prev)/phi < float64(k)*t.cfg.CGTol {
				break
			}
		}
	}

	if len(snaps) == 0 || !sameVec(snaps[len(snaps)-1].x, x) {
		snaps = append(snaps, cgSnapshot{x: append([]float64(nil), x...), quad: phi})
	}
	return snaps, iters, nil
}

func sameVec(a, b []float64) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// backtrack walks the recorded CG iterates from the last backwards and
// returns the one with the lowest true objective.
func (t *Trainer) backtrack(net *rnn.Network, src rnn.InputSource, targets []*mat.Dense, params []float64, snaps []cgSnapshot, baseErr float64) (step []float64, stepErr, quad float64, err error) {
	best := -1
	bestErr := math.Inf(1)
	for i := len(snaps) - 1; i >= 0; i-- {
		e, err := t.errorAt(net, src, targets, params, snaps[i].x, 1)
		if err != nil {
			return nil, 0, 0, err
		}
		if e < bestErr {
			best, bestErr = i, e
		} else if best >= 0 && e > bestErr {
			// Walking further back only revisits earlier, worse
			// iterates once the objective has started rising again.
			break
		}
	}
	return snaps[best].x, bestErr, snaps[best].quad, nil
}

// minibatch draws a random subset of sequences for one epoch. The full
// source is returned unchanged when minibatching is off.
func (t *Trainer) minibatch(src rnn.InputSource, targets []*mat.Dense) (rnn.InputSource, []*mat.Dense, error) {
	bs := t.cfg.BatchSize
	seq, ok := src.(*rnn.FixedSequence)
	if !ok || bs <= 0 || bs >= src.BatchSize() {
		return src, targets, nil
	}

	idx := t.rng.Perm(src.BatchSize())[:bs]
	steps := make([]*mat.Dense, src.SeqLen())
	btargets := make([]*mat.Dense, len(targets))
	for s, m := range seq.Steps() {
		steps[s] = pickRows(m, idx)
	}
	for s, m := range targets {
		btargets[s] = pickRows(m, idx)
	}
	bseq, err := rnn.NewFixedSequence(steps...)
	if err != nil {
		return nil, nil, err
	}
	return bseq, btargets, nil
}

func pickRows(m *mat.Dense, idx []int) *mat.Dense {
	_, c := m.Dims()
	out := mat.NewDense(len(idx), c, nil)
	for i, r := range idx {
		out.SetRow(i, m.RawRowView(r))
	}
	return out
}
