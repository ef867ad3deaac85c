// Package blr implements Q-learning with a Bayesian linear regression
// head. A network maps observations to a feature vector, and the
// action value of each action is a linear function of those features.
// The linear weights carry a Gaussian posterior, updated in closed
// form from TD targets, and exploration is by Thompson sampling: at
// every episode boundary a weight vector is drawn from the posterior
// and acted on greedily.
package blr

import (
	"fmt"

	"github.com/Baichenjia/rltf/initwfn"
	"github.com/Baichenjia/rltf/network"
	"github.com/Baichenjia/rltf/solver"
)

// Config implements a configuration of the Bayesian linear regression
// model
type Config struct {
	// Architecture of the feature network. The output layer produces
	// FeatureSize features.
	HiddenSizes []int
	Biases      []bool
	Activations []*network.Activation
	InitWFn     *initwfn.InitWFn
	Solver      *solver.Solver

	// FeatureSize is the dimension of the feature vector that the
	// linear regression runs on
	FeatureSize int

	// SigmaNoise is the observation noise of the regression targets.
	// SigmaPrior is the standard deviation of the zero-mean Gaussian
	// prior over the linear weights.
	SigmaNoise float64
	SigmaPrior float64

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
	if c.FeatureSize <= 0 {
		return fmt.Errorf("validate: feature size must be positive "+
			"\n\thave(%v)", c.FeatureSize)
	}
	if c.SigmaNoise <= 0 || c.SigmaPrior <= 0 {
		return fmt.Errorf("validate: sigma noise and sigma prior must be "+
			"positive \n\thave(%v, %v)", c.SigmaNoise, c.SigmaPrior)
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

// Create returns a new, unbuilt Bayesian linear regression model for
// an environment with the given number of observation features and
// actions
func (c Config) Create(features, numActions int) (*BLR, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("create: %v", err)
	}
	if features <= 0 || numActions <= 0 {
		return nil, fmt.Errorf("create: features and numActions must be "+
			"positive \n\thave(%v, %v)", features, numActions)
	}

	return &BLR{
		config:     c,
		features:   features,
		numActions: numActions,
	}, nil
}
