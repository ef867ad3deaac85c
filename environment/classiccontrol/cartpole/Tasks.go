package cartpole

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"

	env "github.com/Baichenjia/rltf/environment"
	ts "github.com/Baichenjia/rltf/timestep"
)

// FailAngle is the angle at which the Balance task considers the pole
// to have fallen
const FailAngle float64 = 12 * 2 * math.Pi / 360

// Balance implements the classic Cartpole balancing task. The goal of
// the agent is to keep the pole within FailAngle of upright for as
// long as possible.
//
// Rewards are +1 on every timestep and -1 when the pole has fallen
// below the fail angle. Episodes end at a step limit or when the pole
// falls.
type Balance struct {
	env.Starter
	stepLimiter  env.StepLimit
	angleLimiter env.Ender
	failAngle    float64
}

// NewBalance creates and returns a new Balance task
func NewBalance(s env.Starter, episodeSteps int, failAngle float64) *Balance {
	stepLimiter := env.NewStepLimit(episodeSteps)

	legalAngles := []r1.Interval{{Min: -failAngle, Max: failAngle}}
	angleFeatureIndex := []int{2}
	angleLimiter := env.NewIntervalLimit(legalAngles, angleFeatureIndex)

	return &Balance{s, stepLimiter, angleLimiter, failAngle}
}

// End checks if a TimeStep is the last in an episode. If so, it
// adjusts the TimeStep's StepType to timestep.Last and returns true.
func (b *Balance) End(t *ts.TimeStep) bool {
	if end := b.angleLimiter.End(t); end {
		return true
	}
	return b.stepLimiter.End(t)
}

// GetReward returns the reward for an action taken in some state,
// resulting in a transition to nextState
func (b *Balance) GetReward(_, _, nextState mat.Vector) float64 {
	angle := math.Abs(nextState.AtVec(2))

	// Angle 0 is pointing straight up
	if angle < b.failAngle {
		return 1.0
	}
	return -1.0
}

// AtGoal returns whether or not the pole is still balanced
func (b *Balance) AtGoal(state mat.Matrix) bool {
	return math.Abs(state.At(0, 2)) < b.failAngle
}

// Min returns the minimum possible reward
func (b *Balance) Min() float64 { return -1.0 }

// Max returns the maximum possible reward
func (b *Balance) Max() float64 { return 1.0 }

// RewardSpec returns the reward specification for the task
func (b *Balance) RewardSpec() env.Spec {
	shape := mat.NewVecDense(1, nil)
	lowerBound := mat.NewVecDense(1, []float64{b.Min()})
	upperBound := mat.NewVecDense(1, []float64{b.Max()})

	return env.NewSpec(shape, env.Reward, lowerBound, upperBound,
		env.Continuous)
}
