package exploration

import (
	"math"

	"golang.org/x/exp/rand"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// OrnsteinUhlenbeck implements temporally correlated, mean-reverting
// action noise:
//
//	dx = θ(μ - x)dt + σ√(dt) N(0, 1)
//
// The process state persists across steps within an episode and is
// cleared by Reset at episode boundaries.
type OrnsteinUhlenbeck struct {
	dims  int
	mu    float64
	sigma float64
	theta float64
	dt    float64
	state []float64
	dist  distuv.Normal
}

// NewOrnsteinUhlenbeck returns a new Ornstein-Uhlenbeck noise process
func NewOrnsteinUhlenbeck(dims int, mu, sigma, theta, dt float64,
	seed uint64) *OrnsteinUhlenbeck {
	source := rand.NewSource(seed)
	dist := distuv.Normal{Mu: 0, Sigma: 1, Src: source}

	return &OrnsteinUhlenbeck{
		dims:  dims,
		mu:    mu,
		sigma: sigma,
		theta: theta,
		dt:    dt,
		state: make([]float64, dims),
		dist:  dist,
	}
}

// Sample advances the process by one step and returns its state
func (o *OrnsteinUhlenbeck) Sample(_ int) *mat.VecDense {
	scale := o.sigma * math.Sqrt(o.dt)
	for i := range o.state {
		o.state[i] += o.theta*(o.mu-o.state[i])*o.dt + scale*o.dist.Rand()
	}

	noise := make([]float64, o.dims)
	copy(noise, o.state)
	return mat.NewVecDense(o.dims, noise)
}

// Reset clears the process state
func (o *OrnsteinUhlenbeck) Reset() {
	for i := range o.state {
		o.state[i] = 0
	}
}
