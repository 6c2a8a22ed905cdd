package nonlin

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestLogisticActivate(t *testing.T) {
	l := Logistic{}
	x := mat.NewDense(1, 3, []float64{-2, 0, 2})
	out := mat.NewDense(1, 3, nil)
	l.Activate(out, x)

	assert.InDelta(t, 0.1192, out.At(0, 0), 1e-4)
	assert.InDelta(t, 0.5, out.At(0, 1), 1e-12)
	assert.InDelta(t, 0.8808, out.At(0, 2), 1e-4)
}

func TestTanhDeriv(t *testing.T) {
	u := Tanh{}
	x := mat.NewDense(1, 2, []float64{0.5, -1})
	acts := mat.NewDense(1, 2, nil)
	u.Activate(acts, x)

	d := u.Deriv(acts, x)
	require.False(t, d.Stateful)

	// tanh'(x) = 1 - tanh(x)^2, applied to a vector of ones.
	ones := mat.NewDense(1, 2, []float64{1, 1})
	got := mat.NewDense(1, 2, nil)
	d.J.MulVec(got, ones)
	for i := 0; i < 2; i++ {
		a := math.Tanh(x.At(0, i))
		assert.InDelta(t, 1-a*a, got.At(0, i), 1e-12)
	}
}

func TestSoftmaxRowsSumToOne(t *testing.T) {
	u := Softmax{}
	x := mat.NewDense(2, 3, []float64{1, 2, 3, -1, 0, 1})
	out := mat.NewDense(2, 3, nil)
	u.Activate(out, x)

	for b := 0; b < 2; b++ {
		var sum float64
		for i := 0; i < 3; i++ {
			sum += out.At(b, i)
		}
		assert.InDelta(t, 1.0, sum, 1e-12)
	}
}

// The softmax Jacobian applied to a constant vector must vanish: adding
// the same amount to every logit does not change the distribution.
func TestSoftmaxJacobianConstantDirection(t *testing.T) {
	u := Softmax{}
	x := mat.NewDense(1, 4, []float64{0.3, -0.2, 1.1, 0.5})
	acts := mat.NewDense(1, 4, nil)
	u.Activate(acts, x)

	d := u.Deriv(acts, x)
	ones := mat.NewDense(1, 4, []float64{1, 1, 1, 1})
	got := mat.NewDense(1, 4, nil)
	d.J.MulVec(got, ones)
	for i := 0; i < 4; i++ {
		assert.InDelta(t, 0, got.At(0, i), 1e-12)
	}
}

func TestFullJacobianTranspose(t *testing.T) {
	J := FullJacobian([]*mat.Dense{mat.NewDense(2, 2, []float64{1, 2, 3, 4})})
	x := mat.NewDense(1, 2, []float64{1, 1})

	fwd := mat.NewDense(1, 2, nil)
	J.MulVec(fwd, x)
	assert.Equal(t, []float64{3, 7}, fwd.RawRowView(0))

	bwd := mat.NewDense(1, 2, nil)
	J.MulVecT(bwd, x)
	assert.Equal(t, []float64{4, 6}, bwd.RawRowView(0))
}

func TestJacobianAliasing(t *testing.T) {
	// dst == x must be safe for both storage forms.
	diag := DiagJacobian(mat.NewDense(1, 2, []float64{2, 3}))
	x := mat.NewDense(1, 2, []float64{1, 1})
	diag.MulVec(x, x)
	assert.Equal(t, []float64{2, 3}, x.RawRowView(0))

	full := FullJacobian([]*mat.Dense{mat.NewDense(2, 2, []float64{0, 1, 1, 0})})
	y := mat.NewDense(1, 2, []float64{5, 7})
	full.MulVec(y, y)
	assert.Equal(t, []float64{7, 5}, y.RawRowView(0))
}

func TestContinuousState(t *testing.T) {
	c := NewContinuous(Linear{}, 0.5)
	c.Reset(1, 1)

	x := mat.NewDense(1, 1, []float64{1})
	out := mat.NewDense(1, 1, nil)

	// state: 0 -> 0.5 -> 0.75 under a constant unit input.
	c.Activate(out, x)
	assert.InDelta(t, 0.5, out.At(0, 0), 1e-12)
	c.Activate(out, x)
	assert.InDelta(t, 0.75, out.At(0, 0), 1e-12)

	d := c.Deriv(out, x)
	require.True(t, d.Stateful)

	ones := mat.NewDense(1, 1, []float64{1})
	got := mat.NewDense(1, 1, nil)
	d.DInput.MulVec(got, ones)
	assert.InDelta(t, 0.5, got.At(0, 0), 1e-12)
	d.DState.MulVec(got, ones)
	assert.InDelta(t, 0.5, got.At(0, 0), 1e-12)
	d.DOutput.MulVec(got, ones)
	assert.InDelta(t, 1.0, got.At(0, 0), 1e-12)

	// Reset clears the carried state.
	c.Reset(1, 1)
	c.Activate(out, x)
	assert.InDelta(t, 0.5, out.At(0, 0), 1e-12)
}

func TestByName(t *testing.T) {
	for _, name := range []string{"linear", "logistic", "tanh", "relu", "softmax"} {
		u, err := ByName(name)
		require.NoError(t, err)
		require.NotNil(t, u)
		assert.False(t, u.Stateful())
	}
	_, err := ByName("gaussian")
	assert.Error(t, err)
}
