package c51

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/Baichenjia/rltf/checkpoint"
	"github.com/Baichenjia/rltf/expreplay"
	"github.com/Baichenjia/rltf/model"
	"github.com/Baichenjia/rltf/network"
)

// Bundle keys under which the model stores its weights
const (
	onlineKey string = "c51/online"
	targetKey string = "c51/target"
)

// C51 implements Q-learning over categorical return distributions.
// The network predicts NumAtoms logits for each action over a fixed
// support of evenly spaced atoms, and the action value is the
// expectation of the action's distribution. The target distribution is
// projected onto the support and the loss is the cross entropy between
// the projection and the predicted distribution of the chosen action.
type C51 struct {
	config     Config
	features   int
	numActions int

	// Return support atoms and their spacing
	atoms  []float64
	deltaZ float64

	rng *rand.Rand

	policyNet network.NeuralNet
	policyVM  G.VM

	trainNet network.NeuralNet
	trainVM  G.VM
	solver   G.Solver

	targetNet network.NeuralNet
	targetVM  G.VM

	// Input nodes of the loss graph
	actionMask *G.Node
	targetDist *G.Node

	costVal G.Value

	built bool
}

// Build constructs the model's networks and loss graph
func (c *C51) Build() error {
	if c.built {
		return fmt.Errorf("build: model already built")
	}
	conf := c.config
	numAtoms := conf.NumAtoms
	outputs := c.numActions * numAtoms

	c.rng = rand.New(rand.NewSource(conf.Seed))

	g := G.NewGraph()
	policyNet, err := network.NewMultiHeadMLP(c.features, 1, outputs, g,
		conf.HiddenSizes, conf.Biases, conf.InitWFn.InitWFn(),
		conf.Activations)
	if err != nil {
		return fmt.Errorf("build: could not create policy network: %v", err)
	}
	c.policyNet = policyNet
	c.policyVM = G.NewTapeMachine(g)

	trainNet, err := policyNet.CloneWithBatch(conf.BatchSize)
	if err != nil {
		return fmt.Errorf("build: could not create learning network: %v", err)
	}
	c.trainNet = trainNet
	gTrain := trainNet.Graph()

	// Logits of the chosen action: the network output is masked with
	// the chosen action's one-hot pattern and summed over the action
	// dimension
	c.actionMask = G.NewMatrix(gTrain, tensor.Float64,
		G.WithShape(conf.BatchSize, outputs), G.WithName("actionMask"))
	pred := G.Must(G.HadamardProd(trainNet.Prediction(), c.actionMask))
	pred = G.Must(G.Reshape(pred, tensor.Shape{conf.BatchSize, c.numActions,
		numAtoms}))
	pred = G.Must(G.Sum(pred, 1))

	c.targetDist = G.NewMatrix(gTrain, tensor.Float64,
		G.WithShape(conf.BatchSize, numAtoms), G.WithName("targetDist"))

	// Cross entropy between the projected target distribution and the
	// chosen action's log probabilities
	logProbs := G.Must(G.BroadcastSub(pred, logSumExp(pred, 1), nil,
		[]byte{1}))
	ce := G.Must(G.HadamardProd(c.targetDist, logProbs))
	ce = G.Must(G.Sum(ce, 1))
	cost := G.Must(G.Neg(G.Must(G.Mean(ce))))
	G.Read(cost, &c.costVal)

	if _, err := G.Grad(cost, trainNet.Learnables()...); err != nil {
		return fmt.Errorf("build: could not compute gradient: %v", err)
	}
	c.trainVM = G.NewTapeMachine(gTrain,
		G.BindDualValues(trainNet.Learnables()...))
	c.solver = conf.Solver.Solver

	targetNet, err := policyNet.CloneWithBatch(conf.BatchSize)
	if err != nil {
		return fmt.Errorf("build: could not create target network: %v", err)
	}
	c.targetNet = targetNet
	c.targetVM = G.NewTapeMachine(targetNet.Graph())

	c.built = true
	return nil
}

// logSumExp returns log(Σ exp(logits)) along an axis, shifted by the
// row maximum for numerical stability
func logSumExp(logits *G.Node, along int) *G.Node {
	max := G.Must(G.Max(logits, along))
	exponent := G.Must(G.BroadcastSub(logits, max, nil, []byte{1}))
	exponent = G.Must(G.Exp(exponent))
	sum := G.Must(G.Sum(exponent, along))
	logSum := G.Must(G.Log(sum))
	return G.Must(G.Add(max, logSum))
}

// Initialize synchronizes all networks with the learning network
func (c *C51) Initialize() error {
	if !c.built {
		return fmt.Errorf("initialize: model not built")
	}
	if err := c.policyNet.Set(c.trainNet); err != nil {
		return fmt.Errorf("initialize: could not set policy network: %v", err)
	}
	if err := c.targetNet.Set(c.trainNet); err != nil {
		return fmt.Errorf("initialize: could not set target network: %v", err)
	}
	return nil
}

// Restore sets the model's weights from a checkpoint bundle
func (c *C51) Restore(b *checkpoint.Bundle) error {
	if !c.built {
		return fmt.Errorf("restore: model not built")
	}

	var online, target map[string]network.Weights
	if err := b.Get(onlineKey, &online); err != nil {
		return fmt.Errorf("restore: %v", err)
	}
	if err := b.Get(targetKey, &target); err != nil {
		return fmt.Errorf("restore: %v", err)
	}

	if err := c.trainNet.RestoreWeights(online); err != nil {
		return fmt.Errorf("restore: %v", err)
	}
	if err := c.targetNet.RestoreWeights(target); err != nil {
		return fmt.Errorf("restore: %v", err)
	}
	if err := c.policyNet.Set(c.trainNet); err != nil {
		return fmt.Errorf("restore: could not set policy network: %v", err)
	}
	return nil
}

// Checkpoint stores the model's weights in b
func (c *C51) Checkpoint(b *checkpoint.Bundle) error {
	if !c.built {
		return fmt.Errorf("checkpoint: model not built")
	}
	if err := b.Put(onlineKey, c.trainNet.SnapshotWeights()); err != nil {
		return fmt.Errorf("checkpoint: %v", err)
	}
	if err := b.Put(targetKey, c.targetNet.SnapshotWeights()); err != nil {
		return fmt.Errorf("checkpoint: %v", err)
	}
	return nil
}

// Reset prepares the model for a new episode
func (c *C51) Reset() error {
	return nil
}

// ActionTrain selects an action with the ε-greedy behaviour policy,
// where ε follows the configured schedule
func (c *C51) ActionTrain(obs mat.Vector, t int) (*mat.VecDense, error) {
	return c.selectAction(obs, c.config.Epsilon.Value(t))
}

// ActionEval selects an action with a fixed, small exploration
func (c *C51) ActionEval(obs mat.Vector, t int) (*mat.VecDense, error) {
	return c.selectAction(obs, c.config.EvalEpsilon)
}

// selectAction selects an ε-greedy action for obs, ranking actions by
// the expectation of their return distributions
func (c *C51) selectAction(obs mat.Vector, epsilon float64) (*mat.VecDense,
	error) {
	if !c.built {
		return nil, fmt.Errorf("selectaction: model not built")
	}

	if c.rng.Float64() < epsilon {
		action := c.rng.Intn(c.numActions)
		return mat.NewVecDense(1, []float64{float64(action)}), nil
	}

	if err := c.policyNet.SetInput(model.RawObs(obs)); err != nil {
		return nil, fmt.Errorf("selectaction: could not set input: %v", err)
	}
	if err := c.policyVM.RunAll(); err != nil {
		return nil, fmt.Errorf("selectaction: could not run policy "+
			"network: %v", err)
	}
	logits := c.policyNet.Output().Data().([]float64)
	action := model.Argmax(c.actionValues(logits, 0))
	c.policyVM.Reset()

	return mat.NewVecDense(1, []float64{float64(action)}), nil
}

// distribution returns the atom probabilities of action a for sample i
// of a flat logit prediction
func (c *C51) distribution(logits []float64, i, a int) []float64 {
	numAtoms := c.config.NumAtoms
	offset := i*c.numActions*numAtoms + a*numAtoms

	max := logits[offset]
	for j := 1; j < numAtoms; j++ {
		if logits[offset+j] > max {
			max = logits[offset+j]
		}
	}

	probs := make([]float64, numAtoms)
	var sum float64
	for j := range probs {
		probs[j] = math.Exp(logits[offset+j] - max)
		sum += probs[j]
	}
	for j := range probs {
		probs[j] /= sum
	}
	return probs
}

// actionValues returns the expected return of each action for sample i
// of a flat logit prediction
func (c *C51) actionValues(logits []float64, i int) []float64 {
	values := make([]float64, c.numActions)
	for a := range values {
		probs := c.distribution(logits, i, a)
		var value float64
		for j, p := range probs {
			value += p * c.atoms[j]
		}
		values[a] = value
	}
	return values
}

// project distributes the probability mass of the shifted support
// reward + discount*atoms onto the fixed support, accumulating the
// projection into row. Shifted atoms are clamped to [VMin, VMax] and
// their mass is split linearly between the two nearest atoms.
func (c *C51) project(row, probs []float64, reward, discount float64) {
	for j, p := range probs {
		tz := reward + discount*c.atoms[j]
		if tz < c.config.VMin {
			tz = c.config.VMin
		}
		if tz > c.config.VMax {
			tz = c.config.VMax
		}

		b := (tz - c.config.VMin) / c.deltaZ
		lower := math.Floor(b)
		upper := math.Ceil(b)
		if lower == upper {
			row[int(lower)] += p
		} else {
			row[int(lower)] += p * (upper - b)
			row[int(upper)] += p * (b - lower)
		}
	}
}

// TrainStep performs one gradient update on a batch of transitions
func (c *C51) TrainStep(batch expreplay.Batch, t int) (model.Summary,
	error) {
	if !c.built {
		return nil, fmt.Errorf("trainstep: model not built")
	}
	if batch.Size != c.config.BatchSize {
		return nil, fmt.Errorf("trainstep: invalid batch size\n\twant(%v)"+
			"\n\thave(%v)", c.config.BatchSize, batch.Size)
	}
	numAtoms := c.config.NumAtoms

	// Target distributions: the distribution of the greedy next action
	// under the target network, shifted by the reward and projected
	// back onto the support
	if err := c.targetNet.SetInput(batch.NextStates); err != nil {
		return nil, fmt.Errorf("trainstep: could not set target network "+
			"input: %v", err)
	}
	if err := c.targetVM.RunAll(); err != nil {
		return nil, fmt.Errorf("trainstep: could not run target "+
			"network: %v", err)
	}
	targetOut := c.targetNet.Output().Data().([]float64)

	targets := make([]float64, batch.Size*numAtoms)
	for i := 0; i < batch.Size; i++ {
		a := model.Argmax(c.actionValues(targetOut, i))
		probs := c.distribution(targetOut, i, a)
		discount := c.config.Gamma * (1.0 - batch.Dones[i])
		c.project(targets[i*numAtoms:(i+1)*numAtoms], probs,
			batch.Rewards[i], discount)
	}
	c.targetVM.Reset()

	// Expand the one-hot chosen actions over the atom dimension
	mask := make([]float64, batch.Size*c.numActions*numAtoms)
	for i := 0; i < batch.Size; i++ {
		for a := 0; a < c.numActions; a++ {
			chosen := batch.Actions[i*c.numActions+a]
			for j := 0; j < numAtoms; j++ {
				mask[i*c.numActions*numAtoms+a*numAtoms+j] = chosen
			}
		}
	}

	if err := G.Let(c.actionMask, tensor.New(
		tensor.WithShape(batch.Size, c.numActions*numAtoms),
		tensor.WithBacking(mask))); err != nil {
		return nil, fmt.Errorf("trainstep: could not set action mask: %v",
			err)
	}
	if err := G.Let(c.targetDist, tensor.New(
		tensor.WithShape(batch.Size, numAtoms),
		tensor.WithBacking(targets))); err != nil {
		return nil, fmt.Errorf("trainstep: could not set target "+
			"distribution: %v", err)
	}

	if err := c.trainNet.SetInput(batch.States); err != nil {
		return nil, fmt.Errorf("trainstep: could not set input: %v", err)
	}
	if err := c.trainVM.RunAll(); err != nil {
		return nil, fmt.Errorf("trainstep: could not run learning "+
			"network: %v", err)
	}
	if err := c.solver.Step(c.trainNet.Model()); err != nil {
		return nil, fmt.Errorf("trainstep: could not step solver: %v", err)
	}
	c.trainVM.Reset()

	if err := c.policyNet.Set(c.trainNet); err != nil {
		return nil, fmt.Errorf("trainstep: could not set policy "+
			"network: %v", err)
	}

	return model.Summary{"loss": c.costVal.Data().(float64)}, nil
}

// SyncTarget sets the target network's weights to the learning
// network's weights
func (c *C51) SyncTarget() error {
	if !c.built {
		return fmt.Errorf("synctarget: model not built")
	}
	if err := c.targetNet.Set(c.trainNet); err != nil {
		return fmt.Errorf("synctarget: %v", err)
	}
	return nil
}

// Close releases the model's virtual machines
func (c *C51) Close() error {
	if !c.built {
		return nil
	}
	c.policyVM.Close()
	c.trainVM.Close()
	c.targetVM.Close()
	return nil
}
