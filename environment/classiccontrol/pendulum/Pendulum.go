// Package pendulum implements the pendulum classic control environment
package pendulum

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"

	env "github.com/Baichenjia/rltf/environment"
	ts "github.com/Baichenjia/rltf/timestep"
)

const (
	// Physical constants
	Gravity float64 = 9.8
	Mass    float64 = 1.0
	Length  float64 = 1.0
	Dt      float64 = 0.05 // seconds between state updates

	// Bounds (+/-) on state variables and action
	AngleBound  float64 = math.Pi
	SpeedBound  float64 = 8.0
	TorqueBound float64 = 2.0

	MinContinuousAction float64 = -TorqueBound
	MaxContinuousAction float64 = TorqueBound

	ActionDims      int = 1
	ObservationDims int = 2
)

// Pendulum implements the classic control environment Pendulum. A
// pendulum hangs from a fixed base, and the agent applies torque at
// the base to swing the pendulum. The torque is underpowered, so to
// point the pendulum straight up the agent must first rock it back
// and forth, using momentum to gradually climb higher.
//
// State features consist of the pendulum's angle from the positive
// y-axis and its angular velocity. Angles are normalized to stay
// within [-AngleBound, AngleBound] and angular velocities are clipped
// to [-SpeedBound, SpeedBound].
//
// Actions are continuous and 1-dimensional, determining the torque to
// apply at the base. Actions outside [MinContinuousAction,
// MaxContinuousAction] are clipped to stay within those bounds.
type Pendulum struct {
	env.Task
	lastStep     ts.TimeStep
	discount     float64
	angleBounds  r1.Interval
	speedBounds  r1.Interval
	torqueBounds r1.Interval
}

// New constructs a new Pendulum environment with the given task and
// returns the environment along with the first timestep
func New(t env.Task, discount float64) (*Pendulum, ts.TimeStep) {
	angleBounds := r1.Interval{Min: -AngleBound, Max: AngleBound}
	speedBounds := r1.Interval{Min: -SpeedBound, Max: SpeedBound}
	torqueBounds := r1.Interval{Min: -TorqueBound, Max: TorqueBound}

	state := t.Start()
	firstStep := ts.New(ts.First, 0.0, discount, state, 0)

	pendulum := Pendulum{t, firstStep, discount, angleBounds, speedBounds,
		torqueBounds}

	return &pendulum, firstStep
}

// Reset resets the environment and returns a starting timestep drawn
// from the environment Starter
func (p *Pendulum) Reset() ts.TimeStep {
	state := p.Start()
	startStep := ts.New(ts.First, 0, p.discount, state, 0)
	p.lastStep = startStep

	return startStep
}

// ActionSpec returns the action specification of the environment
func (p *Pendulum) ActionSpec() env.Spec {
	shape := mat.NewVecDense(ActionDims, nil)
	lowerBound := mat.NewVecDense(ActionDims, []float64{p.torqueBounds.Min})
	upperBound := mat.NewVecDense(ActionDims, []float64{p.torqueBounds.Max})

	return env.NewSpec(shape, env.Action, lowerBound, upperBound,
		env.Continuous)
}

// ObservationSpec returns the observation specification of the
// environment
func (p *Pendulum) ObservationSpec() env.Spec {
	shape := mat.NewVecDense(ObservationDims, nil)

	lower := []float64{p.angleBounds.Min, p.speedBounds.Min}
	lowerBound := mat.NewVecDense(ObservationDims, lower)

	upper := []float64{p.angleBounds.Max, p.speedBounds.Max}
	upperBound := mat.NewVecDense(ObservationDims, upper)

	return env.NewSpec(shape, env.Observation, lowerBound, upperBound,
		env.Continuous)
}

// DiscountSpec returns the discounting specification of the environment
func (p *Pendulum) DiscountSpec() env.Spec {
	shape := mat.NewVecDense(1, nil)
	bound := mat.NewVecDense(1, []float64{p.discount})

	return env.NewSpec(shape, env.Discount, bound, bound, env.Continuous)
}

// Step takes one environmental step given action a and returns the
// next timestep and a bool indicating whether the episode has ended.
// The action is clipped to the legal torque bounds before being
// applied.
func (p *Pendulum) Step(a mat.Vector) (ts.TimeStep, bool) {
	torque := clip(a.AtVec(0), p.torqueBounds.Min, p.torqueBounds.Max)

	state := p.lastStep.Observation
	th, thDot := state.AtVec(0), state.AtVec(1)

	thDot += (-3*Gravity/(2*Length)*math.Sin(th+math.Pi) +
		3.0/(Mass*Length*Length)*torque) * Dt
	th += thDot * Dt

	thDot = clip(thDot, p.speedBounds.Min, p.speedBounds.Max)
	th = normalizeAngle(th, p.angleBounds)

	newState := mat.NewVecDense(2, []float64{th, thDot})
	reward := p.GetReward(p.lastStep.Observation, a, newState)
	nextStep := ts.New(ts.Mid, reward, p.discount, newState,
		p.lastStep.Number+1)

	p.End(&nextStep)

	p.lastStep = nextStep
	return nextStep, nextStep.Last()
}

func (p *Pendulum) String() string {
	msg := "Pendulum  |  Angle: %v  |  Angular Velocity: %v"

	state := p.lastStep.Observation
	return fmt.Sprintf(msg, state.AtVec(0), state.AtVec(1))
}

// clip clamps a value to [min, max]
func clip(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

// normalizeAngle normalizes an angle to stay within angleBounds, which
// must be centered around 0
func normalizeAngle(th float64, angleBounds r1.Interval) float64 {
	if angleBounds.Max != -angleBounds.Min {
		panic("normalizeAngle: angle bounds must be centered around 0")
	}

	if th > angleBounds.Max {
		divisor := int(th / angleBounds.Max)
		return -math.Pi + th - (angleBounds.Max * float64(divisor))
	} else if th < angleBounds.Min {
		divisor := int(th / angleBounds.Min)
		return math.Pi + th - (angleBounds.Min * float64(divisor))
	}
	return th
}
