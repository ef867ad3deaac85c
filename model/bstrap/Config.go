// Package bstrap implements bootstrapped Q-learning. The model learns
// an ensemble of action value heads over a shared network. A single
// head, sampled at each episode start, drives exploration during
// training, while evaluation combines all heads by majority vote.
package bstrap

import (
	"fmt"

	"github.com/Baichenjia/rltf/initwfn"
	"github.com/Baichenjia/rltf/network"
	"github.com/Baichenjia/rltf/schedule"
	"github.com/Baichenjia/rltf/solver"
)

// Config implements a configuration of the bootstrapped Q-learning
// model
type Config struct {
	// Architecture of the ensemble network. The output layer has one
	// action value per action for each of NumHeads heads, laid out
	// head-major.
	HiddenSizes []int
	Biases      []bool
	Activations []*network.Activation
	InitWFn     *initwfn.InitWFn
	Solver      *solver.Solver

	// NumHeads is the number of action value heads in the ensemble
	NumHeads int

	// MaskProb is the probability that a head sees a given transition
	// during training. Each head draws its own Bernoulli mask per
	// transition.
	MaskProb float64

	Epsilon     schedule.Schedule
	EvalEpsilon float64

	Gamma     float64
	BatchSize int

	Huber      bool
	HuberDelta float64

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
	if c.NumHeads <= 1 {
		return fmt.Errorf("validate: ensemble needs at least 2 heads "+
			"\n\thave(%v)", c.NumHeads)
	}
	if c.MaskProb <= 0 || c.MaskProb > 1 {
		return fmt.Errorf("validate: mask probability must be in (0, 1] "+
			"\n\thave(%v)", c.MaskProb)
	}
	if c.Gamma < 0 || c.Gamma > 1 {
		return fmt.Errorf("validate: gamma must be in [0, 1] \n\thave(%v)",
			c.Gamma)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("validate: batch size must be positive "+
			"\n\thave(%v)", c.BatchSize)
	}
	if c.Huber && c.HuberDelta <= 0 {
		return fmt.Errorf("validate: huber delta must be positive "+
			"\n\thave(%v)", c.HuberDelta)
	}
	return nil
}

// Create returns a new, unbuilt bootstrapped Q-learning model for an
// environment with the given number of observation features and
// actions
func (c Config) Create(features, numActions int) (*BstrapDQN, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("create: %v", err)
	}
	if features <= 0 || numActions <= 0 {
		return nil, fmt.Errorf("create: features and numActions must be "+
			"positive \n\thave(%v, %v)", features, numActions)
	}

	return &BstrapDQN{
		config:     c,
		features:   features,
		numActions: numActions,
	}, nil
}
