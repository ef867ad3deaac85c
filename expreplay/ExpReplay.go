// Package expreplay implements experience replay buffers for
// off-policy learning
package expreplay

import (
	"fmt"
	"sync"

	"github.com/gammazero/deque"

	"github.com/Baichenjia/rltf/timestep"
)

// Batch is a minibatch of transitions sampled from an experience
// replay buffer. Vector-valued fields are flattened in row major
// order: sample i's state occupies
// States[i*FeatureSize : (i+1)*FeatureSize].
type Batch struct {
	States     []float64
	Actions    []float64
	Rewards    []float64
	Dones      []float64 // 1.0 where the transition ended its episode
	NextStates []float64

	Size        int
	FeatureSize int
	ActionSize  int
}

// Config describes a specific configuration of an ExperienceReplayer
type Config struct {
	MaxCapacity int
	MinCapacity int
	BatchSize   int
}

// Create creates and returns the ExperienceReplayer with the specified
// Config
func (c Config) Create(featureSize, actionSize int,
	seed uint64) (ExperienceReplayer, error) {
	remover := NewFifoSelector(1)
	sampler := NewUniformSelector(c.BatchSize, seed)

	return New(remover, sampler, c.MinCapacity, c.MaxCapacity, featureSize,
		actionSize)
}

// ExperienceReplayer implements an experience replay buffer.
//
// Implementations must support the interleaving of exactly one writer
// calling Add and one reader calling Sample from different goroutines:
// samples see a consistent snapshot of some subset of previously added
// transitions.
type ExperienceReplayer interface {
	// Add adds a transition to the buffer
	Add(t timestep.Transition) error

	// Sample samples a batch of experience from the buffer
	Sample() (Batch, error)

	// Capacity returns the current number of samples in the buffer
	Capacity() int

	// MaxCapacity returns the maximum allowable samples in the buffer
	MaxCapacity() int

	// MinCapacity returns the number of samples required to be in
	// the buffer before the buffer can be sampled
	MinCapacity() int

	// BatchSize returns the number of samples returned by Sample()
	BatchSize() int
}

// cache implements a concrete ExperienceReplayer
type cache struct {
	mu sync.Mutex

	stateCache     []float64
	actionCache    []float64
	rewardCache    []float64
	doneCache      []float64
	nextStateCache []float64

	// The indices of the cache that are empty and have no data
	emptyIndices []int

	// The indices of the cache that have data
	inUseIndices []int

	// orderOfInsert records the chronological order of inserts. For
	// i > j, the data at index orderOfInsert[i] was inserted into the
	// buffer after the data at index orderOfInsert[j]
	orderOfInsert *deque.Deque[int]

	// Outlines how data is removed and sampled
	remover Selector
	sampler Selector

	minCapacity int
	maxCapacity int
	featureSize int
	actionSize  int
}

// New creates and returns a new ExperienceReplayer. The remover and
// sampler parameters are Selectors which determine how data is removed
// and sampled from the replay buffer. The featureSize and actionSize
// parameters define the size of the feature and action vectors.
func New(remover, sampler Selector, minCapacity, maxCapacity, featureSize,
	actionSize int) (ExperienceReplayer, error) {
	if minCapacity <= 0 {
		return nil, fmt.Errorf("new: minCapacity must be > 0")
	}
	if maxCapacity < 1 {
		return nil, fmt.Errorf("new: maxCapacity must be >= 1")
	}
	if maxCapacity < sampler.BatchSize() {
		return nil, fmt.Errorf("new: cannot have batch size (%v) > max "+
			"buffer capacity (%v)", sampler.BatchSize(), maxCapacity)
	}

	remover.registerAsRemover()

	emptyIndices := make([]int, maxCapacity)
	for i := 0; i < maxCapacity; i++ {
		emptyIndices[i] = i
	}

	return &cache{
		stateCache:     make([]float64, maxCapacity*featureSize),
		actionCache:    make([]float64, maxCapacity*actionSize),
		rewardCache:    make([]float64, maxCapacity),
		doneCache:      make([]float64, maxCapacity),
		nextStateCache: make([]float64, maxCapacity*featureSize),

		emptyIndices:  emptyIndices,
		inUseIndices:  make([]int, 0, maxCapacity),
		orderOfInsert: deque.New[int](maxCapacity),

		remover: remover,
		sampler: sampler,

		minCapacity: minCapacity,
		maxCapacity: maxCapacity,
		featureSize: featureSize,
		actionSize:  actionSize,
	}, nil
}

// sampleFrom returns the indices to sample from
func (c *cache) sampleFrom() []int {
	return c.inUseIndices
}

// insertOrder returns a slice of at most n indices which describes
// the order that the first n data were inserted into the buffer
func (c *cache) insertOrder(n int) []int {
	size := n
	if c.capacity() < size {
		size = c.capacity()
	}

	insertOrder := make([]int, size)
	for i := 0; i < size; i++ {
		insertOrder[i] = c.orderOfInsert.At(i)
	}
	return insertOrder
}

// removeFront removes the earliest tracked index at which data was
// inserted
func (c *cache) removeFront() {
	c.orderOfInsert.PopFront()
}

// BatchSize returns the number of samples returned by Sample()
func (c *cache) BatchSize() int {
	return c.sampler.BatchSize()
}

// remove removes elements from the cache using indices chosen by the
// cache's remover
func (c *cache) remove() error {
	if c.capacity() <= c.minCapacity {
		return fmt.Errorf("remove: cannot remove, cache at min capacity")
	}

	indices := c.remover.choose(c)
	for _, index := range indices {
		for i := range c.inUseIndices {
			if c.inUseIndices[i] == index {
				c.inUseIndices[i] = c.inUseIndices[len(c.inUseIndices)-1]
				c.inUseIndices = c.inUseIndices[:len(c.inUseIndices)-1]
				break
			}
		}
		c.emptyIndices = append(c.emptyIndices, index)
	}
	return nil
}

// Sample samples and returns a batch of transitions from the replay
// buffer
func (c *cache) Sample() (Batch, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.capacity() == 0 {
		return Batch{}, &ExpReplayError{Op: "sample", Err: errEmptyCache}
	}
	if c.capacity() < c.minCapacity {
		return Batch{}, &ExpReplayError{
			Op:  "sample",
			Err: errInsufficientSamples,
		}
	}

	indices := c.sampler.choose(c)

	batch := Batch{
		States:      make([]float64, c.BatchSize()*c.featureSize),
		Actions:     make([]float64, c.BatchSize()*c.actionSize),
		Rewards:     make([]float64, c.BatchSize()),
		Dones:       make([]float64, c.BatchSize()),
		NextStates:  make([]float64, c.BatchSize()*c.featureSize),
		Size:        c.BatchSize(),
		FeatureSize: c.featureSize,
		ActionSize:  c.actionSize,
	}

	for i, index := range indices {
		batchStart := i * c.featureSize
		expStart := index * c.featureSize
		copy(batch.States[batchStart:batchStart+c.featureSize],
			c.stateCache[expStart:expStart+c.featureSize])
		copy(batch.NextStates[batchStart:batchStart+c.featureSize],
			c.nextStateCache[expStart:expStart+c.featureSize])

		batchStart = i * c.actionSize
		expStart = index * c.actionSize
		copy(batch.Actions[batchStart:batchStart+c.actionSize],
			c.actionCache[expStart:expStart+c.actionSize])

		batch.Rewards[i] = c.rewardCache[index]
		batch.Dones[i] = c.doneCache[index]
	}

	return batch, nil
}

// Capacity returns the current number of elements in the cache that
// are available for sampling
func (c *cache) Capacity() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capacity()
}

// capacity returns the number of in-use elements. Callers must hold
// c.mu.
func (c *cache) capacity() int {
	return len(c.inUseIndices)
}

// MaxCapacity returns the maximum number of elements that are allowed
// in the cache
func (c *cache) MaxCapacity() int {
	return c.maxCapacity
}

// MinCapacity returns the minimum number of elements required in the
// cache before sampling is allowed
func (c *cache) MinCapacity() int {
	return c.minCapacity
}

// Add adds a transition to the cache
func (c *cache) Add(t timestep.Transition) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if t.State.Len() != c.featureSize || t.NextState.Len() != c.featureSize {
		return fmt.Errorf("add: invalid feature size \n\twant(%v)"+
			"\n\thave(%v)", c.featureSize, t.State.Len())
	}
	if t.Action.Len() != c.actionSize {
		return fmt.Errorf("add: invalid action size \n\twant(%v)"+
			"\n\thave(%v)", c.actionSize, t.Action.Len())
	}

	if c.capacity() >= c.maxCapacity {
		if err := c.remove(); err != nil {
			return fmt.Errorf("add: cannot add to buffer: %v", err)
		}
	}

	index := c.emptyIndices[len(c.emptyIndices)-1]
	c.emptyIndices = c.emptyIndices[:len(c.emptyIndices)-1]
	c.orderOfInsert.PushBack(index)
	c.inUseIndices = append(c.inUseIndices, index)

	stateInd := index * c.featureSize
	for i := 0; i < c.featureSize; i++ {
		c.stateCache[stateInd+i] = t.State.AtVec(i)
		c.nextStateCache[stateInd+i] = t.NextState.AtVec(i)
	}

	actionInd := index * c.actionSize
	for i := 0; i < c.actionSize; i++ {
		c.actionCache[actionInd+i] = t.Action.AtVec(i)
	}

	c.rewardCache[index] = t.Reward
	if t.Done {
		c.doneCache[index] = 1.0
	} else {
		c.doneCache[index] = 0.0
	}

	return nil
}

// String returns the string representation of the cache
func (c *cache) String() string {
	baseStr := "Indices Available: %v \nIndices Used: %v \nStates: %v" +
		" \nActions: %v \nRewards: %v \nDones: %v \nNext States: %v"
	return fmt.Sprintf(baseStr, c.emptyIndices, c.inUseIndices, c.stateCache,
		c.actionCache, c.rewardCache, c.doneCache, c.nextStateCache)
}
