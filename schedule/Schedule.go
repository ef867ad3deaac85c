// Package schedule implements scalar values that change as a function
// of the timestep, such as decaying exploration rates
package schedule

import "fmt"

// Schedule is a pure function of the timestep. Schedules are read by
// the environment executor on every step and must not hold mutable
// state.
type Schedule interface {
	// Value returns the schedule's value at timestep t
	Value(t int) float64
}

// Const implements a Schedule with a fixed value at every timestep
type Const struct {
	value float64
}

// NewConst returns a new constant schedule
func NewConst(value float64) Const {
	return Const{value}
}

// Value returns the schedule's value at timestep t
func (c Const) Value(_ int) float64 {
	return c.value
}

// Endpoint is a (timestep, value) pair between which a Piecewise
// schedule interpolates
type Endpoint struct {
	T     int
	Value float64
}

// Piecewise implements a Schedule which linearly interpolates between
// a sequence of endpoints. Outside the range covered by the endpoints
// the schedule returns a fixed outside value.
type Piecewise struct {
	endpoints []Endpoint
	outside   float64
}

// NewPiecewise returns a new Piecewise schedule. The endpoints must be
// sorted by increasing timestep.
func NewPiecewise(endpoints []Endpoint, outside float64) (*Piecewise, error) {
	if len(endpoints) < 2 {
		return nil, fmt.Errorf("newpiecewise: need at least 2 endpoints "+
			"\n\thave(%v)", len(endpoints))
	}
	for i := 1; i < len(endpoints); i++ {
		if endpoints[i].T <= endpoints[i-1].T {
			return nil, fmt.Errorf("newpiecewise: endpoints must be sorted "+
				"by increasing timestep, got %v after %v", endpoints[i].T,
				endpoints[i-1].T)
		}
	}

	return &Piecewise{endpoints, outside}, nil
}

// Value returns the schedule's value at timestep t
func (p *Piecewise) Value(t int) float64 {
	for i := 1; i < len(p.endpoints); i++ {
		left, right := p.endpoints[i-1], p.endpoints[i]
		if t >= left.T && t < right.T {
			alpha := float64(t-left.T) / float64(right.T-left.T)
			return left.Value + alpha*(right.Value-left.Value)
		}
	}
	if t == p.endpoints[len(p.endpoints)-1].T {
		return p.endpoints[len(p.endpoints)-1].Value
	}
	return p.outside
}

// Linear implements a Schedule which linearly anneals from an initial
// value to a final value over a fixed number of timesteps
type Linear struct {
	initial float64
	final   float64
	steps   int
}

// NewLinear returns a new Linear schedule annealing from initial to
// final over steps timesteps
func NewLinear(initial, final float64, steps int) (*Linear, error) {
	if steps <= 0 {
		return nil, fmt.Errorf("newlinear: steps must be positive "+
			"\n\thave(%v)", steps)
	}
	return &Linear{initial, final, steps}, nil
}

// Value returns the schedule's value at timestep t
func (l *Linear) Value(t int) float64 {
	if t >= l.steps {
		return l.final
	}
	if t < 0 {
		return l.initial
	}
	alpha := float64(t) / float64(l.steps)
	return l.initial + alpha*(l.final-l.initial)
}
