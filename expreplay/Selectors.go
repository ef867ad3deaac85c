package expreplay

import (
	"golang.org/x/exp/rand"
)

// Selector implements functionality for choosing how data should be
// sampled and/or removed from an experience replay buffer
type Selector interface {
	// choose selects the indices at which data should be sampled from
	// the experience replay buffer
	choose(c *cache) []int

	// BatchSize returns the number of elements that will be selected
	BatchSize() int

	// registerAsRemover registers a Selector as a remover
	//
	// Some Selectors require different behaviour if they are removers,
	// so they should be notified if they become a remover to add this
	// additional behaviour
	registerAsRemover()
}

// uniformSelector is a Selector which selects data from an experience
// replay buffer uniformly randomly
type uniformSelector struct {
	samples int
	rng     *rand.Rand
}

// NewUniformSelector returns a new Selector which selects data
// uniformly randomly from an experience replay buffer
func NewUniformSelector(samples int, seed uint64) Selector {
	source := rand.NewSource(seed)
	rng := rand.New(source)

	return &uniformSelector{samples: samples, rng: rng}
}

// registerAsRemover implements the Selector interface
func (u *uniformSelector) registerAsRemover() {}

// BatchSize gets the number of samples in a batch drawn from the
// buffer
func (u *uniformSelector) BatchSize() int {
	return u.samples
}

// choose selects a number of indices at which to draw data from the
// buffer
func (u *uniformSelector) choose(c *cache) []int {
	selected := make([]int, u.BatchSize())
	inUse := c.sampleFrom()

	for i := 0; i < u.BatchSize(); i++ {
		selected[i] = inUse[u.rng.Intn(len(inUse))]
	}

	return selected
}

// fifoSelector is a Selector which selects data from an experience
// replay buffer first-in-first-out
type fifoSelector struct {
	samples int
	remover bool
}

// NewFifoSelector returns a new Selector which draws data from an
// experience replay buffer FiFo
func NewFifoSelector(samples int) Selector {
	return &fifoSelector{samples: samples, remover: false}
}

// registerAsRemover implements the Selector interface
func (f *fifoSelector) registerAsRemover() {
	f.remover = true
}

// BatchSize gets the number of samples in a batch drawn from the
// buffer
func (f *fifoSelector) BatchSize() int {
	return f.samples
}

// choose selects a number of indices at which to draw data from the
// buffer
func (f *fifoSelector) choose(c *cache) []int {
	insertOrder := c.insertOrder(f.BatchSize())
	selected := make([]int, len(insertOrder))

	for i := range insertOrder {
		selected[i] = insertOrder[i]

		if f.remover {
			// In a FiFo remover, the indices at which data was first
			// added are freed first, so remove them from the ordering
			// of inserted indices
			c.removeFront()
		}
	}

	return selected
}
