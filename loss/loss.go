// Copyright 2026 Hessfree ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package loss exposes the training objectives of the hessfree
// framework. Each loss provides its value, first derivative and diagonal
// second derivative; NaN target entries are treated as "no target here"
// and contribute nothing.
package loss

import "github.com/hessfree-ml/hessfree/internal/loss"

// Loss is an objective over one timestep of output.
type Loss = loss.Loss

// SquaredError is the half sum-of-squares objective ½·Σ(o - t)².
type SquaredError = loss.SquaredError

// CrossEntropy is -Σ t·log(o), intended for softmax outputs.
type CrossEntropy = loss.CrossEntropy
