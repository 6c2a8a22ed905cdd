package rnn

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// InputSource is what a forward pass reads its external input from:
// either a FixedSequence of pre-recorded timesteps, or a Plant driven in
// closed loop by the network's own output.
type InputSource interface {
	// BatchSize returns the number of sequences processed in parallel.
	BatchSize() int
	// SeqLen returns the number of timesteps in the pass.
	SeqLen() int
}

// Plant is a stateful environment for closed-loop sequence generation.
// The forward pass resets it once, then calls Step each timestep with the
// network's previous output (all zeros on the first step) to obtain the
// next input. After the pass, Inputs and Targets return the sequence the
// plant produced, one [batch x n] matrix per timestep.
type Plant interface {
	InputSource

	Reset()
	Step(prevOutput *mat.Dense) *mat.Dense
	Inputs() []*mat.Dense
	Targets() []*mat.Dense
}

// FixedSequence is a pre-recorded input sequence: one [batch x features]
// matrix per timestep.
type FixedSequence struct {
	steps []*mat.Dense
}

// NewFixedSequence builds an input sequence from per-timestep matrices,
// which must all share the same dimensions.
func NewFixedSequence(steps ...*mat.Dense) (*FixedSequence, error) {
	if len(steps) == 0 {
		return nil, fmt.Errorf("rnn: empty input sequence")
	}
	r0, c0 := steps[0].Dims()
	for i, s := range steps[1:] {
		r, c := s.Dims()
		if r != r0 || c != c0 {
			return nil, fmt.Errorf("rnn: input timestep %d is %dx%d, want %dx%d", i+1, r, c, r0, c0)
		}
	}
	return &FixedSequence{steps: steps}, nil
}

// SingleStep promotes a single [batch x features] matrix to a sequence of
// length one, for feeding time-free data through the same interface.
func SingleStep(m *mat.Dense) *FixedSequence {
	return &FixedSequence{steps: []*mat.Dense{m}}
}

func (f *FixedSequence) BatchSize() int {
	r, _ := f.steps[0].Dims()
	return r
}

func (f *FixedSequence) SeqLen() int { return len(f.steps) }

// Step returns the input matrix for timestep s.
func (f *FixedSequence) Step(s int) *mat.Dense { return f.steps[s] }

// Steps returns the per-timestep input matrices.
func (f *FixedSequence) Steps() []*mat.Dense { return f.steps }
