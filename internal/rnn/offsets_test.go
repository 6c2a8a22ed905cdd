package rnn

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Every offset configuration must partition [0, NumParams) exactly: no
// gaps, no overlaps, recurrent blocks on the tail.
func TestOffsetsPartition(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
	}{
		{"chain", Config{Shape: []int{2, 5, 3}}},
		{"no recurrence", Config{Shape: []int{4, 4}, Recurrent: []bool{false, false}}},
		{"all recurrent", Config{Shape: []int{1, 2, 3, 1}, Recurrent: []bool{true, true, true, true}}},
		{"skip connections", Config{
			Shape: []int{1, 10, 10, 1},
			Conns: map[int][]int{0: {1, 2}, 1: {2}, 2: {3}},
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			net, err := New(tc.cfg)
			require.NoError(t, err)

			spans := make([]span, 0, len(net.offsets))
			for _, sp := range net.offsets {
				spans = append(spans, sp)
			}
			sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })

			next := 0
			for _, sp := range spans {
				assert.Equal(t, next, sp.start, "gap or overlap at %d", next)
				assert.Less(t, sp.start, sp.wEnd)
				assert.Less(t, sp.wEnd, sp.bEnd)
				next = sp.bEnd
			}
			assert.Equal(t, net.NumParams(), next)
			assert.Len(t, net.Params(), net.NumParams())

			// Recurrent blocks occupy the tail, after every
			// feedforward block.
			for key, sp := range net.offsets {
				if key.pre == key.post {
					assert.GreaterOrEqual(t, sp.start, net.nFF)
				} else {
					assert.LessOrEqual(t, sp.bEnd, net.nFF)
				}
			}
		})
	}
}

func TestOffsetsKnownLayout(t *testing.T) {
	// [1,2,1] chain with a recurrent middle layer:
	// (0,1): 1*2 weights + 2 biases, (1,2): 2*1 + 1, then (1,1): 2*2 + 2.
	net, err := New(Config{Shape: []int{1, 2, 1}})
	require.NoError(t, err)

	require.Equal(t, 13, net.NumParams())
	assert.Equal(t, span{0, 2, 4}, net.offsets[connKey{0, 1}])
	assert.Equal(t, span{4, 6, 7}, net.offsets[connKey{1, 2}])
	assert.Equal(t, span{7, 11, 13}, net.offsets[connKey{1, 1}])
}

func TestWeightsViewsAlias(t *testing.T) {
	net, err := New(Config{Shape: []int{2, 3, 1}})
	require.NoError(t, err)

	params := net.Params()
	W, bias, ok := net.Weights(params, 0, 1)
	require.True(t, ok)

	// Views must alias the flat vector, not copy it.
	W.Set(1, 2, 42)
	bias[0] = -7
	sp := net.offsets[connKey{0, 1}]
	assert.Equal(t, 42.0, params[sp.start+1*3+2])
	assert.Equal(t, -7.0, params[sp.wEnd])

	_, _, ok = net.Weights(params, 2, 0)
	assert.False(t, ok)
}

func TestConfigErrors(t *testing.T) {
	_, err := New(Config{Shape: []int{2, 3, 1}, Recurrent: []bool{false, true}})
	assert.Error(t, err, "recurrence flags must cover every layer")

	_, err = New(Config{Shape: []int{3}})
	assert.Error(t, err)

	_, err = New(Config{Shape: []int{2, 2, 2}, Conns: map[int][]int{0: {1}, 1: {0}}})
	assert.Error(t, err, "upstream connection must be rejected")

	_, err = New(Config{Shape: []int{2, 2, 2}, Conns: map[int][]int{0: {2}}})
	assert.Error(t, err, "layer 1 is unreachable")
}

func TestDefaultRecurrence(t *testing.T) {
	net, err := New(Config{Shape: []int{2, 4, 4, 1}})
	require.NoError(t, err)

	assert.False(t, net.Recurrent(0))
	assert.True(t, net.Recurrent(1))
	assert.True(t, net.Recurrent(2))
	assert.False(t, net.Recurrent(3))
}

func TestInitDeterminism(t *testing.T) {
	a, err := New(Config{Shape: []int{3, 5, 2}, Seed: 7})
	require.NoError(t, err)
	b, err := New(Config{Shape: []int{3, 5, 2}, Seed: 7})
	require.NoError(t, err)
	assert.Equal(t, a.Params(), b.Params())

	c, err := New(Config{Shape: []int{3, 5, 2}, Seed: 8})
	require.NoError(t, err)
	assert.NotEqual(t, a.Params(), c.Params())
}
