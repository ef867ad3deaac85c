// Package deepq implements deep Q-learning. The model learns action
// values with a feedforward network and a target network, supporting
// both the regular max-based update target and the double Q-learning
// target, and either the squared or the Huber TD loss.
package deepq

import (
	"fmt"

	"github.com/Baichenjia/rltf/initwfn"
	"github.com/Baichenjia/rltf/network"
	"github.com/Baichenjia/rltf/schedule"
	"github.com/Baichenjia/rltf/solver"
)

// Config implements a configuration of the deep Q-learning model
type Config struct {
	// Architecture of the action value network
	HiddenSizes []int
	Biases      []bool
	Activations []*network.Activation
	InitWFn     *initwfn.InitWFn
	Solver      *solver.Solver

	// Epsilon determines the exploration of the behaviour policy at
	// each environment step. EvalEpsilon is the fixed exploration used
	// during evaluation.
	Epsilon     schedule.Schedule
	EvalEpsilon float64

	Gamma     float64
	BatchSize int

	// Double selects the double Q-learning update target, where the
	// online network chooses the next action and the target network
	// evaluates it
	Double bool

	// Huber selects the Huber TD loss with threshold HuberDelta
	// instead of the squared TD loss
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

// Create returns a new, unbuilt deep Q-learning model for an
// environment with the given number of observation features and
// actions
func (c Config) Create(features, numActions int) (*DeepQ, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("create: %v", err)
	}
	if features <= 0 || numActions <= 0 {
		return nil, fmt.Errorf("create: features and numActions must be "+
			"positive \n\thave(%v, %v)", features, numActions)
	}

	return &DeepQ{
		config:     c,
		features:   features,
		numActions: numActions,
	}, nil
}
