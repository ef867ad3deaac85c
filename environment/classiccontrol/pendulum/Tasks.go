package pendulum

import (
	"math"

	"gonum.org/v1/gonum/mat"

	env "github.com/Baichenjia/rltf/environment"
)

// SwingUp implements a task where the agent must swing the pendulum up
// and hold it in a vertical position. Rewards are the cosine of the
// pendulum angle measured from the positive y-axis, so that the agent
// receives a reward of 1.0 on each timestep it holds the pendulum
// straight up.
type SwingUp struct {
	env.Starter
	env.Ender
}

// NewSwingUp creates and returns a new SwingUp task
func NewSwingUp(s env.Starter, episodeSteps int) *SwingUp {
	return &SwingUp{s, env.NewStepLimit(episodeSteps)}
}

// GetReward returns the reward for an action taken in some state,
// resulting in a transition to nextState
func (s *SwingUp) GetReward(_, _, nextState mat.Vector) float64 {
	return math.Cos(nextState.AtVec(0))
}

// AtGoal returns whether or not the pendulum is pointing straight up
func (s *SwingUp) AtGoal(state mat.Matrix) bool {
	return state.At(0, 0) == 0
}

// Min returns the minimum possible reward
func (s *SwingUp) Min() float64 { return -1.0 }

// Max returns the maximum possible reward
func (s *SwingUp) Max() float64 { return 1.0 }

// RewardSpec returns the reward specification for the task
func (s *SwingUp) RewardSpec() env.Spec {
	shape := mat.NewVecDense(1, nil)
	lowerBound := mat.NewVecDense(1, []float64{s.Min()})
	upperBound := mat.NewVecDense(1, []float64{s.Max()})

	return env.NewSpec(shape, env.Reward, lowerBound, upperBound,
		env.Continuous)
}
