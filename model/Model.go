// Package model defines the training-step protocol that learning
// algorithms implement. A Model owns its networks, target networks,
// and solver state, and exposes a small lifecycle: Build constructs
// the computational graphs, Initialize or Restore brings the weights
// into a defined state, and the agent then drives the model through
// action selection and training steps.
package model

import (
	"gonum.org/v1/gonum/mat"

	"github.com/Baichenjia/rltf/checkpoint"
	"github.com/Baichenjia/rltf/expreplay"
)

// Summary holds named scalar statistics produced by a training step,
// such as the loss
type Summary map[string]float64

// Model is implemented by learning algorithms. A Model must be Built
// exactly once, then either Initialized (fresh weights) or Restored
// (weights from a checkpoint bundle) before any other method is
// called.
//
// ActionTrain, TrainStep, and SyncTarget are called by the training
// process; ActionEval is called by the evaluation runner and must not
// mutate any state that training depends on. Reset is called at every
// episode boundary.
type Model interface {
	// Build constructs the model's computational graphs and virtual
	// machines
	Build() error

	// Initialize brings freshly built networks into their initial
	// state, e.g. synchronizing target networks with online networks
	Initialize() error

	// Restore sets the model's weights and solver state from a
	// checkpoint bundle
	Restore(*checkpoint.Bundle) error

	// Reset prepares the model for a new episode
	Reset() error

	// ActionTrain selects an action for obs at environment step t
	// using the model's exploratory behaviour policy
	ActionTrain(obs mat.Vector, t int) (*mat.VecDense, error)

	// ActionEval selects an action for obs at evaluation step t using
	// the model's greedy policy
	ActionEval(obs mat.Vector, t int) (*mat.VecDense, error)

	// TrainStep performs one gradient update on a batch of
	// transitions sampled at environment step t
	TrainStep(batch expreplay.Batch, t int) (Summary, error)

	// SyncTarget updates the model's target networks from its online
	// networks
	SyncTarget() error

	// Checkpoint stores the model's weights and solver state in b
	Checkpoint(b *checkpoint.Bundle) error

	// Close releases the model's virtual machines
	Close() error
}
