package rnn

import (
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/hessfree-ml/hessfree/internal/loss"
	"github.com/hessfree-ml/hessfree/internal/nonlin"
)

// InitConfig controls weight initialization for one group of connections.
// Weights are drawn uniformly from [-Coeff, Coeff]; a zero Coeff selects
// the Glorot bound sqrt(6 / (fanIn + fanOut)). Biases are set to Bias.
type InitConfig struct {
	Coeff float64 `json:"coeff"`
	Bias  float64 `json:"bias"`
}

// Config describes a network at construction time. None of it is mutable
// after New returns.
type Config struct {
	// Shape lists the layer sizes, input first.
	Shape []int

	// Layers holds the per-layer nonlinearities. A nil slice defaults to
	// a Linear input layer and Logistic everywhere else; a single entry
	// is applied to every layer after the (Linear) input layer.
	Layers []nonlin.Nonlinearity

	// Conns maps each layer to the downstream layers it feeds. Nil
	// selects the simple chain i -> i+1. Connections must point strictly
	// downstream; cycles exist only through the recurrent flags.
	Conns map[int][]int

	// Recurrent flags which layers have a recurrent self-connection.
	// Nil selects the default: every hidden layer recurrent, input and
	// output layers not. When set, its length must equal len(Shape).
	Recurrent []bool

	// Loss is the training objective. Nil defaults to SquaredError.
	Loss loss.Loss

	// StrucDamping scales the structural damping term of the curvature
	// product, relative to the Tikhonov damping passed per call.
	StrucDamping float64

	// Init and RecInit control initialization of the feedforward and
	// recurrent weights respectively.
	Init    InitConfig
	RecInit InitConfig

	// Seed seeds the weight-init RNG; construction is deterministic for
	// a fixed seed.
	Seed int64

	// Logger, when set, receives a construction summary. The sweep code
	// itself never logs.
	Logger logrus.FieldLogger
}

func (cfg *Config) validate() error {
	if len(cfg.Shape) < 2 {
		return fmt.Errorf("rnn: network needs at least two layers, got shape %v", cfg.Shape)
	}
	for i, s := range cfg.Shape {
		if s < 1 {
			return fmt.Errorf("rnn: layer %d has invalid size %d", i, s)
		}
	}
	if cfg.Recurrent != nil && len(cfg.Recurrent) != len(cfg.Shape) {
		return fmt.Errorf("rnn: recurrence must be defined for each layer: got %d flags for %d layers",
			len(cfg.Recurrent), len(cfg.Shape))
	}
	switch len(cfg.Layers) {
	case 0, 1, len(cfg.Shape):
	default:
		return fmt.Errorf("rnn: got %d nonlinearities for %d layers", len(cfg.Layers), len(cfg.Shape))
	}
	return nil
}

// resolveLayers expands the Layers config to one nonlinearity per layer
// and rejects stateful instances shared between layers (their carried
// state cannot serve two layers at once).
func (cfg *Config) resolveLayers() ([]nonlin.Nonlinearity, error) {
	n := len(cfg.Shape)
	layers := make([]nonlin.Nonlinearity, n)
	switch len(cfg.Layers) {
	case 0:
		layers[0] = nonlin.Linear{}
		for i := 1; i < n; i++ {
			layers[i] = nonlin.Logistic{}
		}
	case 1:
		layers[0] = nonlin.Linear{}
		for i := 1; i < n; i++ {
			layers[i] = cfg.Layers[0]
		}
		if cfg.Layers[0].Stateful() {
			return nil, fmt.Errorf("rnn: a single stateful nonlinearity cannot be shared across layers")
		}
	default:
		copy(layers, cfg.Layers)
	}

	seen := make(map[nonlin.Nonlinearity]int)
	for i, l := range layers {
		if l == nil {
			return nil, fmt.Errorf("rnn: layer %d has a nil nonlinearity", i)
		}
		if !l.Stateful() {
			continue
		}
		if prev, ok := seen[l]; ok {
			return nil, fmt.Errorf("rnn: stateful nonlinearity shared between layers %d and %d", prev, i)
		}
		seen[l] = i
	}
	return layers, nil
}

// resolveConns expands the connectivity config to sorted adjacency lists
// and verifies it is a feedforward DAG covering every layer.
func (cfg *Config) resolveConns() (conns, backConns [][]int, err error) {
	n := len(cfg.Shape)
	conns = make([][]int, n)
	backConns = make([][]int, n)

	if cfg.Conns == nil {
		for i := 0; i < n-1; i++ {
			conns[i] = []int{i + 1}
			backConns[i+1] = []int{i}
		}
		return conns, backConns, nil
	}

	for pre, posts := range cfg.Conns {
		if pre < 0 || pre >= n-1 {
			return nil, nil, fmt.Errorf("rnn: connection from invalid layer %d", pre)
		}
		seen := make(map[int]bool)
		for _, post := range posts {
			if post <= pre || post >= n {
				return nil, nil, fmt.Errorf("rnn: connection %d -> %d is not strictly downstream", pre, post)
			}
			if seen[post] {
				return nil, nil, fmt.Errorf("rnn: duplicate connection %d -> %d", pre, post)
			}
			seen[post] = true
			conns[pre] = append(conns[pre], post)
			backConns[post] = append(backConns[post], pre)
		}
	}
	for i := 0; i < n; i++ {
		sort.Ints(conns[i])
		sort.Ints(backConns[i])
		if i > 0 && len(backConns[i]) == 0 {
			return nil, nil, fmt.Errorf("rnn: layer %d has no incoming connection", i)
		}
		if i < n-1 && len(conns[i]) == 0 {
			return nil, nil, fmt.Errorf("rnn: layer %d has no outgoing connection", i)
		}
	}
	return conns, backConns, nil
}
