// Package environment outlines the interfaces and structs needed to
// implement concrete environments
package environment

import (
	"gonum.org/v1/gonum/mat"

	"github.com/Baichenjia/rltf/timestep"
)

// Starter implements a distribution of starting states and samples
// starting states for environments
type Starter interface {
	Start() *mat.VecDense
}

// Ender determines when an episode ends. If the episode should end,
// End modifies the timestep so that its StepType field is
// timestep.Last and returns true.
type Ender interface {
	End(*timestep.TimeStep) bool
}

// Task implements the reward scheme for taking actions in some
// environment
type Task interface {
	Starter
	Ender

	// GetReward returns the reward for taking action a in some state,
	// resulting in a transition to nextState
	GetReward(state, a, nextState mat.Vector) float64

	// AtGoal returns whether state is a goal state
	AtGoal(state mat.Matrix) bool

	RewardSpec() Spec
}

// Environment implements a simulated environment, which includes a
// Task to complete
type Environment interface {
	Task

	// Reset resets the environment between episodes and returns the
	// first timestep of the new episode
	Reset() timestep.TimeStep

	// Step takes one environmental step given action a and returns the
	// next timestep and a bool indicating whether the episode ended
	Step(a mat.Vector) (timestep.TimeStep, bool)

	DiscountSpec() Spec
	ObservationSpec() Spec
	ActionSpec() Spec
}
