package timestep

import (
	"gonum.org/v1/gonum/mat"
)

// Transition records the effect of taking a single action in the
// environment. A Transition is written exactly once, when the
// environment step completes, and is never mutated afterwards. The
// replay buffer reads Transitions asynchronously from their writer.
type Transition struct {
	State     mat.Vector
	Action    mat.Vector
	Reward    float64
	Done      bool
	NextState mat.Vector
}

// NewTransition packages the effect of taking action a in state of
// step into a Transition. The done flag records whether next ended
// the episode.
func NewTransition(step TimeStep, a mat.Vector, next TimeStep) Transition {
	return Transition{
		State:     step.Observation,
		Action:    a,
		Reward:    next.Reward,
		Done:      next.Last(),
		NextState: next.Observation,
	}
}
