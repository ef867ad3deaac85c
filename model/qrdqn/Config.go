// Package qrdqn implements quantile regression Q-learning. The model
// learns a distribution over returns for each action, represented by
// a fixed number of quantiles, and is trained with the quantile Huber
// loss against a target network.
package qrdqn

import (
	"fmt"

	"github.com/Baichenjia/rltf/initwfn"
	"github.com/Baichenjia/rltf/network"
	"github.com/Baichenjia/rltf/schedule"
	"github.com/Baichenjia/rltf/solver"
)

// Config implements a configuration of the quantile regression
// Q-learning model
type Config struct {
	// Architecture of the quantile network. The output layer has
	// NumQuantiles outputs for each action, laid out action-major.
	HiddenSizes []int
	Biases      []bool
	Activations []*network.Activation
	InitWFn     *initwfn.InitWFn
	Solver      *solver.Solver

	// NumQuantiles is the number of quantiles learned per action
	NumQuantiles int

	// HuberDelta is the threshold of the Huber loss applied to each
	// pairwise quantile difference
	HuberDelta float64

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
	if c.NumQuantiles <= 0 {
		return fmt.Errorf("validate: number of quantiles must be positive "+
			"\n\thave(%v)", c.NumQuantiles)
	}
	if c.HuberDelta <= 0 {
		return fmt.Errorf("validate: huber delta must be positive "+
			"\n\thave(%v)", c.HuberDelta)
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

// Create returns a new, unbuilt quantile regression model for an
// environment with the given number of observation features and
// actions
func (c Config) Create(features, numActions int) (*QRDQN, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("create: %v", err)
	}
	if features <= 0 || numActions <= 0 {
		return nil, fmt.Errorf("create: features and numActions must be "+
			"positive \n\thave(%v, %v)", features, numActions)
	}

	return &QRDQN{
		config:     c,
		features:   features,
		numActions: numActions,
	}, nil
}
