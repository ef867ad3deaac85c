package exploration

import (
	"gonum.org/v1/gonum/mat"

	"github.com/Baichenjia/rltf/schedule"
)

// Decayed wraps a Noise process and scales its output by a Schedule,
// so that the weight of the exploration noise can be annealed towards
// zero over the course of training
type Decayed struct {
	noise Noise
	decay schedule.Schedule
}

// NewDecayed returns a new Decayed noise process wrapping noise and
// scaling its samples by decay
func NewDecayed(noise Noise, decay schedule.Schedule) *Decayed {
	return &Decayed{noise, decay}
}

// Sample returns the wrapped noise scaled by the decay schedule's
// value at timestep t
func (d *Decayed) Sample(t int) *mat.VecDense {
	noise := d.noise.Sample(t)
	noise.ScaleVec(d.decay.Value(t), noise)
	return noise
}

// Reset resets the wrapped noise process
func (d *Decayed) Reset() {
	d.noise.Reset()
}
