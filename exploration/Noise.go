// Package exploration implements additive action-space noise processes
// for exploration in continuous action spaces
package exploration

import (
	"gonum.org/v1/gonum/mat"
)

// Noise generates exploration noise to add to actions. Sample is a
// function of the timestep so that decayed noise processes can scale
// their output. Reset clears any per-episode internal state and is
// called at episode boundaries through the model's Reset.
type Noise interface {
	Sample(t int) *mat.VecDense
	Reset()
}
