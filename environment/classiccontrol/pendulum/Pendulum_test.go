package pendulum_test

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"

	env "github.com/Baichenjia/rltf/environment"
	"github.com/Baichenjia/rltf/environment/classiccontrol/pendulum"
)

func newEnv(t *testing.T, episodeSteps int) *pendulum.Pendulum {
	t.Helper()

	angleBounds := r1.Interval{Min: -pendulum.AngleBound,
		Max: pendulum.AngleBound}
	speedBounds := r1.Interval{Min: -1.0, Max: 1.0}
	starter := env.NewUniformStarter([]r1.Interval{angleBounds,
		speedBounds}, 14)
	task := pendulum.NewSwingUp(starter, episodeSteps)

	p, _ := pendulum.New(task, 1.0)
	return p
}

func TestStateStaysWithinBounds(t *testing.T) {
	p := newEnv(t, 100000)
	p.Reset()

	action := mat.NewVecDense(1, []float64{pendulum.MaxContinuousAction})
	for i := 0; i < 500; i++ {
		step, _ := p.Step(action)

		angle := step.Observation.AtVec(0)
		if angle < -pendulum.AngleBound || angle > pendulum.AngleBound {
			t.Fatalf("angle left its bounds at step %v: %v", i, angle)
		}
		speed := step.Observation.AtVec(1)
		if speed < -pendulum.SpeedBound || speed > pendulum.SpeedBound {
			t.Fatalf("angular velocity left its bounds at step %v: %v", i,
				speed)
		}
	}
}

func TestActionsAreClipped(t *testing.T) {
	p := newEnv(t, 100000)
	p.Reset()

	huge, _ := p.Step(mat.NewVecDense(1, []float64{1e6}))

	// An identically seeded environment starts in the same state, so
	// the deterministic dynamics make the successor states comparable
	q := newEnv(t, 100000)
	q.Reset()

	clipped, _ := q.Step(mat.NewVecDense(1,
		[]float64{pendulum.MaxContinuousAction}))

	// Both environments were seeded identically, so the clipped huge
	// action must yield exactly the max-torque successor state
	for i := 0; i < huge.Observation.Len(); i++ {
		if huge.Observation.AtVec(i) != clipped.Observation.AtVec(i) {
			t.Errorf("state feature %v differs between a huge and a "+
				"max-torque action\n\twant(%v)\n\thave(%v)", i,
				clipped.Observation.AtVec(i), huge.Observation.AtVec(i))
		}
	}
}

func TestSwingUpReward(t *testing.T) {
	p := newEnv(t, 100000)
	p.Reset()

	step, _ := p.Step(mat.NewVecDense(1, []float64{0}))
	want := math.Cos(step.Observation.AtVec(0))
	if math.Abs(step.Reward-want) > 1e-12 {
		t.Errorf("wrong swing-up reward\n\twant(%v)\n\thave(%v)", want,
			step.Reward)
	}
}

func TestEpisodeEndsAtStepLimit(t *testing.T) {
	limit := 20
	p := newEnv(t, limit)
	p.Reset()

	for i := 1; i <= limit; i++ {
		step, done := p.Step(mat.NewVecDense(1, []float64{0}))
		if i < limit && done {
			t.Fatalf("episode ended early at step %v", i)
		}
		if i == limit {
			if !done || !step.Last() {
				t.Error("episode should end at the step limit")
			}
		}
	}
}

func TestSpecs(t *testing.T) {
	p := newEnv(t, 200)

	actionSpec := p.ActionSpec()
	if actionSpec.Cardinality != env.Continuous {
		t.Error("pendulum actions should be continuous")
	}
	if lower := actionSpec.LowerBound.AtVec(0); lower != pendulum.MinContinuousAction {
		t.Errorf("wrong action lower bound\n\twant(%v)\n\thave(%v)",
			pendulum.MinContinuousAction, lower)
	}
	if upper := actionSpec.UpperBound.AtVec(0); upper != pendulum.MaxContinuousAction {
		t.Errorf("wrong action upper bound\n\twant(%v)\n\thave(%v)",
			pendulum.MaxContinuousAction, upper)
	}

	if obsSpec := p.ObservationSpec(); obsSpec.Shape.Len() != 2 {
		t.Errorf("wrong observation dimension\n\twant(%v)\n\thave(%v)", 2,
			obsSpec.Shape.Len())
	}
}
