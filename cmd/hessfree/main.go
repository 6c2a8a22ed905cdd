// Package main provides the hessfree demo CLI.
package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"

	"github.com/hessfree-ml/hessfree/hf"
	"github.com/hessfree-ml/hessfree/nonlin"
	"github.com/hessfree-ml/hessfree/rnn"
)

const version = "v0.1.0-dev"

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	args := os.Args[1:]
	cmd := "help"
	if len(args) > 0 {
		cmd = args[0]
	}

	epochs := 0
	if len(args) > 1 {
		n, err := strconv.Atoi(args[1])
		if err != nil || n < 1 {
			log.Fatalf("invalid epoch count %q", args[1])
		}
		epochs = n
	}

	var err error
	switch cmd {
	case "version":
		fmt.Printf("hessfree %s\n", version)
	case "xor":
		err = runXOR(log, epochs)
	case "integrator":
		err = runIntegrator(log, epochs)
	case "help":
		fmt.Println("hessfree - Hessian-free training for recurrent networks")
		fmt.Printf("Version: %s\n\n", version)
		fmt.Println("Commands:")
		fmt.Println("  version              Show version")
		fmt.Println("  xor [epochs]         Train a feedforward net on XOR")
		fmt.Println("  integrator [epochs]  Train a recurrent net to integrate its input")
	default:
		log.Fatalf("unknown command %q (try help)", cmd)
	}
	if err != nil {
		log.Fatal(err)
	}
}

// runXOR trains a [2,5,1] feedforward network (no recurrence, single
// timestep) on the XOR truth table.
func runXOR(log *logrus.Logger, epochs int) error {
	if epochs == 0 {
		epochs = 40
	}

	inputs := rnn.SingleStep(mat.NewDense(4, 2, []float64{
		0.1, 0.1,
		0.1, 0.9,
		0.9, 0.1,
		0.9, 0.9,
	}))
	targets := []*mat.Dense{mat.NewDense(4, 1, []float64{0.1, 0.9, 0.9, 0.1})}

	net, err := rnn.New(rnn.Config{
		Shape:     []int{2, 5, 1},
		Recurrent: []bool{false, false, false},
		Logger:    log,
	})
	if err != nil {
		return err
	}

	cfg := hf.DefaultConfig()
	cfg.MaxEpochs = epochs
	cfg.CGIters = 20

	res, err := hf.New(cfg, log).Run(net, inputs, targets)
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"initial_err": res.InitialErr,
		"final_err":   res.FinalErr,
	}).Info("xor finished")

	fwd, err := net.Forward(inputs, targets, net.Params(), false)
	if err != nil {
		return err
	}
	out := fwd.Outputs()[0]
	for i := 0; i < 4; i++ {
		log.Infof("input (%.1f, %.1f)  target %.1f  output %.3f",
			inputs.Step(0).At(i, 0), inputs.Step(0).At(i, 1),
			targets[0].At(i, 0), out.At(i, 0))
	}
	return nil
}

// runIntegrator trains a [1,10,1] network with a recurrent hidden layer
// to output the running integral of a constant input: for each sequence
// the input is a constant level and the target ramps linearly.
func runIntegrator(log *logrus.Logger, epochs int) error {
	if epochs == 0 {
		epochs = 100
	}

	const (
		nSeqs  = 15
		sigLen = 50
	)
	steps := make([]*mat.Dense, sigLen)
	targets := make([]*mat.Dense, sigLen)
	for s := 0; s < sigLen; s++ {
		in := mat.NewDense(nSeqs, 1, nil)
		tg := mat.NewDense(nSeqs, 1, nil)
		for i := 0; i < nSeqs; i++ {
			level := 0.1 + 0.8*float64(i)/float64(nSeqs-1)
			in.Set(i, 0, level)
			tg.Set(i, 0, level*float64(s)/float64(sigLen-1))
		}
		steps[s] = in
		targets[s] = tg
	}
	inputs, err := rnn.NewFixedSequence(steps...)
	if err != nil {
		return err
	}

	net, err := rnn.New(rnn.Config{
		Shape:        []int{1, 10, 1},
		Layers:       []nonlin.Nonlinearity{nonlin.Logistic{}},
		StrucDamping: 0.2,
		Logger:       log,
	})
	if err != nil {
		return err
	}

	cfg := hf.DefaultConfig()
	cfg.MaxEpochs = epochs
	cfg.CGIters = 100

	res, err := hf.New(cfg, log).Run(net, inputs, targets)
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"initial_err": res.InitialErr,
		"final_err":   res.FinalErr,
	}).Info("integrator finished")
	return nil
}
