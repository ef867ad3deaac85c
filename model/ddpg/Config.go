// Package ddpg implements deep deterministic policy gradient for
// continuous action spaces. An actor network maps states to actions
// and a critic network scores state-action pairs. The critic is
// trained on TD targets from slowly tracking target networks, and the
// actor follows the critic's gradient. Exploration adds noise from an
// exploration.Noise provider to the actor's actions.
package ddpg

import (
	"fmt"

	"github.com/Baichenjia/rltf/exploration"
	"github.com/Baichenjia/rltf/initwfn"
	"github.com/Baichenjia/rltf/network"
	"github.com/Baichenjia/rltf/solver"
)

// Config implements a configuration of the deep deterministic policy
// gradient model
type Config struct {
	// Architecture of the actor network. A final tanh layer mapping
	// to the action dimension is always added, with its output scaled
	// to the action bounds.
	ActorHiddenSizes  []int
	ActorBiases       []bool
	ActorActivations  []*network.Activation
	ActorSolver       *solver.Solver

	// Architecture of the critic network. A final linear layer
	// producing a single value is always added.
	CriticHiddenSizes []int
	CriticBiases      []bool
	CriticActivations []*network.Activation
	CriticSolver      *solver.Solver

	InitWFn *initwfn.InitWFn

	// Noise perturbs the actor's actions during training
	Noise exploration.Noise

	// MinAction and MaxAction bound each action dimension
	MinAction []float64
	MaxAction []float64

	// Tau is the Polyak averaging constant of the target network
	// updates
	Tau float64

	Gamma     float64
	BatchSize int

	Seed uint64
}

// Validate returns an error describing why the configuration cannot
// be used to create a model
func (c Config) Validate() error {
	if len(c.ActorHiddenSizes) != len(c.ActorBiases) ||
		len(c.ActorHiddenSizes) != len(c.ActorActivations) {
		return fmt.Errorf("validate: actor HiddenSizes, Biases, and "+
			"Activations must have equal lengths \n\thave(%v, %v, %v)",
			len(c.ActorHiddenSizes), len(c.ActorBiases),
			len(c.ActorActivations))
	}
	if len(c.CriticHiddenSizes) != len(c.CriticBiases) ||
		len(c.CriticHiddenSizes) != len(c.CriticActivations) {
		return fmt.Errorf("validate: critic HiddenSizes, Biases, and "+
			"Activations must have equal lengths \n\thave(%v, %v, %v)",
			len(c.CriticHiddenSizes), len(c.CriticBiases),
			len(c.CriticActivations))
	}
	if c.InitWFn == nil {
		return fmt.Errorf("validate: no weight initializer given")
	}
	if c.ActorSolver == nil || c.CriticSolver == nil {
		return fmt.Errorf("validate: both actor and critic solvers must " +
			"be given")
	}
	if c.Noise == nil {
		return fmt.Errorf("validate: no exploration noise given")
	}
	if len(c.MinAction) == 0 || len(c.MinAction) != len(c.MaxAction) {
		return fmt.Errorf("validate: MinAction and MaxAction must have "+
			"equal, positive lengths \n\thave(%v, %v)", len(c.MinAction),
			len(c.MaxAction))
	}
	for i := range c.MinAction {
		if c.MinAction[i] >= c.MaxAction[i] {
			return fmt.Errorf("validate: MinAction must be less than "+
				"MaxAction \n\thave(%v, %v)", c.MinAction[i], c.MaxAction[i])
		}
	}
	if c.Tau <= 0 || c.Tau > 1 {
		return fmt.Errorf("validate: tau must be in (0, 1] \n\thave(%v)",
			c.Tau)
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

// Create returns a new, unbuilt deep deterministic policy gradient
// model for an environment with the given number of observation
// features. The action dimension is taken from the action bounds.
func (c Config) Create(features int) (*DDPG, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("create: %v", err)
	}
	if features <= 0 {
		return nil, fmt.Errorf("create: features must be positive "+
			"\n\thave(%v)", features)
	}

	return &DDPG{
		config:     c,
		features:   features,
		actionDims: len(c.MinAction),
	}, nil
}
