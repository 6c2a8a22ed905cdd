// Copyright 2026 Hessfree ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package hf exposes the Hessian-free trainer: the outer loop that pairs
// one gradient per epoch with a conjugate-gradient solve against the
// network's Gauss-Newton operator, under a Levenberg-Marquardt damping
// schedule.
//
//	trainer := hf.New(hf.DefaultConfig(), logger)
//	result, err := trainer.Run(net, inputs, targets)
package hf

import (
	"github.com/sirupsen/logrus"

	"github.com/hessfree-ml/hessfree/internal/hf"
)

// Config holds the trainer hyperparameters.
type Config = hf.Config

// Trainer runs Hessian-free optimization on a network.
type Trainer = hf.Trainer

// Epoch records one outer iteration.
type Epoch = hf.Epoch

// Result summarizes a training run.
type Result = hf.Result

// DefaultConfig returns the demo defaults.
func DefaultConfig() Config { return hf.DefaultConfig() }

// New builds a trainer; log may be nil to disable logging.
func New(cfg Config, log logrus.FieldLogger) *Trainer {
	return hf.New(cfg, log)
}
