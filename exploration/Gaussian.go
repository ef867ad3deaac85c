package exploration

import (
	"golang.org/x/exp/rand"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Gaussian implements uncorrelated Gaussian action noise
type Gaussian struct {
	dims int
	dist distuv.Normal
}

// NewGaussian returns a new Gaussian noise process producing vectors
// of length dims with the given mean and standard deviation per
// dimension
func NewGaussian(dims int, mu, sigma float64, seed uint64) *Gaussian {
	source := rand.NewSource(seed)
	dist := distuv.Normal{Mu: mu, Sigma: sigma, Src: source}

	return &Gaussian{dims, dist}
}

// Sample returns a noise vector
func (g *Gaussian) Sample(_ int) *mat.VecDense {
	noise := make([]float64, g.dims)
	for i := range noise {
		noise[i] = g.dist.Rand()
	}
	return mat.NewVecDense(g.dims, noise)
}

// Reset implements the Noise interface. Gaussian noise holds no
// episode-scoped state.
func (g *Gaussian) Reset() {}
