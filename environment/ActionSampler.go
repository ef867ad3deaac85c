package environment

import (
	"fmt"

	"golang.org/x/exp/rand"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"
	"gonum.org/v1/gonum/stat/distmv"
)

// ActionSampler samples uniformly random actions from an environment's
// action specification. It is used for warm-up exploration, before
// the agent has taken any training steps.
type ActionSampler struct {
	spec Spec
	rng  *rand.Rand
	dist *distmv.Uniform
}

// NewActionSampler returns a new ActionSampler which samples uniformly
// from the action space described by spec. Discrete action spaces
// sample integer actions in [lower, upper]; continuous action spaces
// sample each dimension uniformly from its bounds.
func NewActionSampler(spec Spec, seed uint64) (*ActionSampler, error) {
	if spec.Type != Action {
		return nil, fmt.Errorf("newactionsampler: spec does not describe " +
			"an action space")
	}

	source := rand.NewSource(seed)
	sampler := &ActionSampler{
		spec: spec,
		rng:  rand.New(source),
	}

	if spec.Cardinality == Continuous {
		bounds := make([]r1.Interval, spec.Shape.Len())
		for i := range bounds {
			bounds[i] = r1.Interval{
				Min: spec.LowerBound.AtVec(i),
				Max: spec.UpperBound.AtVec(i),
			}
		}
		sampler.dist = distmv.NewUniform(bounds, source)
	}

	return sampler, nil
}

// Sample returns a uniformly random action
func (a *ActionSampler) Sample() *mat.VecDense {
	if a.spec.Cardinality == Discrete {
		lower := int(a.spec.LowerBound.AtVec(0))
		upper := int(a.spec.UpperBound.AtVec(0))

		action := lower + a.rng.Intn(upper-lower+1)
		return mat.NewVecDense(1, []float64{float64(action)})
	}

	return mat.NewVecDense(a.spec.Shape.Len(), a.dist.Rand(nil))
}
