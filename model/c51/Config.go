// Package c51 implements categorical distributional Q-learning. The
// model learns, for each action, a probability distribution over a
// fixed support of return atoms, and is trained by projecting the
// target distribution onto the support and minimizing the cross
// entropy against a target network.
package c51

import (
	"fmt"

	"github.com/Baichenjia/rltf/initwfn"
	"github.com/Baichenjia/rltf/network"
	"github.com/Baichenjia/rltf/schedule"
	"github.com/Baichenjia/rltf/solver"
)

// Config implements a configuration of the categorical distributional
// Q-learning model
type Config struct {
	// Architecture of the distribution network. The output layer has
	// NumAtoms logits for each action, laid out action-major.
	HiddenSizes []int
	Biases      []bool
	Activations []*network.Activation
	InitWFn     *initwfn.InitWFn
	Solver      *solver.Solver

	// NumAtoms is the number of atoms of the return support, which
	// spans [VMin, VMax] with evenly spaced atoms
	NumAtoms int
	VMin     float64
	VMax     float64

	Epsilon     schedule.Schedule
	EvalEpsilon float64

	Gamma     float64
	BatchSize int

	Seed uint64
}

// Validate returns an error describing why the configuration cannot
// be used to create a model
func (c Config) Validate() error {
	if len(c.HiddenSizes) != len(c.Biases) ||
		len(c.HiddenSizes) != len(c.Activations) {
		return fmt.Errorf("validate: HiddenSizes, Biases, and Activations "+
			"must have equal lengths \n\thave(%v, %v, %v)",
			len(c.HiddenSizes), len(c.Biases), len(c.Activations))
	}
	if c.InitWFn == nil {
		return fmt.Errorf("validate: no weight initializer given")
	}
	if c.Solver == nil {
		return fmt.Errorf("validate: no solver given")
	}
	if c.Epsilon == nil {
		return fmt.Errorf("validate: no epsilon schedule given")
	}
	if c.NumAtoms < 2 {
		return fmt.Errorf("validate: number of atoms must be at least 2 "+
			"\n\thave(%v)", c.NumAtoms)
	}
	if c.VMax <= c.VMin {
		return fmt.Errorf("validate: support upper bound must exceed the "+
			"lower bound \n\twant(> %v)\n\thave(%v)", c.VMin, c.VMax)
	}
	if c.Gamma < 0 || c.Gamma > 1 {
		return fmt.Errorf("validate: gamma must be in [0, 1] \n\thave(%v)",
			c.Gamma)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("validate: batch size must be positive "+
			"\n\thave(%v)", c.BatchSize)
	}
	return nil
}

// Create returns a new, unbuilt categorical distributional model for
// an environment with the given number of observation features and
// actions
func (c Config) Create(features, numActions int) (*C51, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("create: %v", err)
	}
	if features <= 0 || numActions <= 0 {
		return nil, fmt.Errorf("create: features and numActions must be "+
			"positive \n\thave(%v, %v)", features, numActions)
	}

	deltaZ := (c.VMax - c.VMin) / float64(c.NumAtoms-1)
	atoms := make([]float64, c.NumAtoms)
	for i := range atoms {
		atoms[i] = c.VMin + float64(i)*deltaZ
	}

	return &C51{
		config:     c,
		features:   features,
		numActions: numActions,
		atoms:      atoms,
		deltaZ:     deltaZ,
	}, nil
}
