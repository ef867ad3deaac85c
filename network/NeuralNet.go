// Package network implements neural network function approximators
// using Gorgonia
package network

import (
	G "gorgonia.org/gorgonia"
)

// NeuralNet implements a neural network on a Gorgonia computational
// graph. A NeuralNet only populates the graph; an external VM runs it.
// The usual flow for a forward pass is: SetInput, run the VM, read
// Output.
type NeuralNet interface {
	Graph() *G.ExprGraph
	Clone() (NeuralNet, error)
	CloneWithBatch(int) (NeuralNet, error)
	BatchSize() int
	Features() int
	Outputs() int
	SetInput([]float64) error

	// Set copies the weights of another NeuralNet into the receiver
	Set(NeuralNet) error

	// Polyak sets the weights of the receiver to a Polyak average
	// between its existing weights and the weights of another
	// NeuralNet
	Polyak(NeuralNet, float64) error

	Learnables() G.Nodes
	Model() []G.ValueGrad
	Output() G.Value
	Prediction() *G.Node

	// SnapshotWeights returns the current weight values keyed by the
	// stable name of each learnable node
	SnapshotWeights() map[string]Weights

	// RestoreWeights sets each learnable node's value from the entry
	// under its stable name, failing loudly on a missing key or a
	// shape mismatch
	RestoreWeights(map[string]Weights) error
}

// Weights holds the persisted values of a single learnable node
type Weights struct {
	Shape []int
	Data  []float64
}
