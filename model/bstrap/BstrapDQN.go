package bstrap

import (
	"fmt"

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
	onlineKey string = "bstrap/online"
	targetKey string = "bstrap/target"
)

// BstrapDQN implements bootstrapped deep Q-learning. Each of the
// ensemble's heads is trained with its own Q-learning target on the
// subset of transitions its bootstrap mask admits. During training a
// single active head, resampled at every episode boundary, selects
// actions; during evaluation the heads vote.
type BstrapDQN struct {
	config     Config
	features   int
	numActions int

	rng        *rand.Rand
	activeHead int

	policyNet network.NeuralNet
	policyVM  G.VM

	trainNet network.NeuralNet
	trainVM  G.VM
	solver   G.Solver

	targetNet network.NeuralNet
	targetVM  G.VM

	// Input nodes of the loss graph
	actionMask  *G.Node
	headTargets *G.Node
	bootMask    *G.Node

	costVal G.Value

	built bool
}

// Build constructs the model's networks and loss graph
func (d *BstrapDQN) Build() error {
	if d.built {
		return fmt.Errorf("build: model already built")
	}
	c := d.config
	outputs := c.NumHeads * d.numActions

	d.rng = rand.New(rand.NewSource(c.Seed))

	g := G.NewGraph()
	policyNet, err := network.NewMultiHeadMLP(d.features, 1, outputs, g,
		c.HiddenSizes, c.Biases, c.InitWFn.InitWFn(), c.Activations)
	if err != nil {
		return fmt.Errorf("build: could not create policy network: %v", err)
	}
	d.policyNet = policyNet
	d.policyVM = G.NewTapeMachine(g)

	trainNet, err := policyNet.CloneWithBatch(c.BatchSize)
	if err != nil {
		return fmt.Errorf("build: could not create learning network: %v", err)
	}
	d.trainNet = trainNet
	gTrain := trainNet.Graph()

	// Action value of the selected action under each head: the output
	// is masked with the selected action's one-hot pattern, repeated
	// per head, and summed over the action dimension
	d.actionMask = G.NewMatrix(gTrain, tensor.Float64,
		G.WithShape(c.BatchSize, outputs), G.WithName("actionMask"))
	pred := G.Must(G.HadamardProd(trainNet.Prediction(), d.actionMask))
	pred = G.Must(G.Reshape(pred, tensor.Shape{c.BatchSize, c.NumHeads,
		d.numActions}))
	pred = G.Must(G.Sum(pred, 2))

	d.headTargets = G.NewMatrix(gTrain, tensor.Float64,
		G.WithShape(c.BatchSize, c.NumHeads), G.WithName("headTargets"))

	diff := G.Must(G.Sub(d.headTargets, pred))

	var losses *G.Node
	if c.Huber {
		losses = model.Huber(diff, c.HuberDelta)
	} else {
		losses = G.Must(G.Square(diff))
	}

	// Each head only learns from the transitions its bootstrap mask
	// admits
	d.bootMask = G.NewMatrix(gTrain, tensor.Float64,
		G.WithShape(c.BatchSize, c.NumHeads), G.WithName("bootstrapMask"))
	losses = G.Must(G.HadamardProd(losses, d.bootMask))

	cost := G.Must(G.Mean(losses))
	G.Read(cost, &d.costVal)

	if _, err := G.Grad(cost, trainNet.Learnables()...); err != nil {
		return fmt.Errorf("build: could not compute gradient: %v", err)
	}
	d.trainVM = G.NewTapeMachine(gTrain,
		G.BindDualValues(trainNet.Learnables()...))
	d.solver = c.Solver.Solver

	targetNet, err := policyNet.CloneWithBatch(c.BatchSize)
	if err != nil {
		return fmt.Errorf("build: could not create target network: %v", err)
	}
	d.targetNet = targetNet
	d.targetVM = G.NewTapeMachine(targetNet.Graph())

	d.built = true
	return nil
}

// Initialize synchronizes all networks with the learning network and
// samples the first active head
func (d *BstrapDQN) Initialize() error {
	if !d.built {
		return fmt.Errorf("initialize: model not built")
	}
	if err := d.policyNet.Set(d.trainNet); err != nil {
		return fmt.Errorf("initialize: could not set policy network: %v", err)
	}
	if err := d.targetNet.Set(d.trainNet); err != nil {
		return fmt.Errorf("initialize: could not set target network: %v", err)
	}
	d.activeHead = d.rng.Intn(d.config.NumHeads)
	return nil
}

// Restore sets the model's weights from a checkpoint bundle
func (d *BstrapDQN) Restore(b *checkpoint.Bundle) error {
	if !d.built {
		return fmt.Errorf("restore: model not built")
	}

	var online, target map[string]network.Weights
	if err := b.Get(onlineKey, &online); err != nil {
		return fmt.Errorf("restore: %v", err)
	}
	if err := b.Get(targetKey, &target); err != nil {
		return fmt.Errorf("restore: %v", err)
	}

	if err := d.trainNet.RestoreWeights(online); err != nil {
		return fmt.Errorf("restore: %v", err)
	}
	if err := d.targetNet.RestoreWeights(target); err != nil {
		return fmt.Errorf("restore: %v", err)
	}
	if err := d.policyNet.Set(d.trainNet); err != nil {
		return fmt.Errorf("restore: could not set policy network: %v", err)
	}
	d.activeHead = d.rng.Intn(d.config.NumHeads)
	return nil
}

// Checkpoint stores the model's weights in b
func (d *BstrapDQN) Checkpoint(b *checkpoint.Bundle) error {
	if !d.built {
		return fmt.Errorf("checkpoint: model not built")
	}
	if err := b.Put(onlineKey, d.trainNet.SnapshotWeights()); err != nil {
		return fmt.Errorf("checkpoint: %v", err)
	}
	if err := b.Put(targetKey, d.targetNet.SnapshotWeights()); err != nil {
		return fmt.Errorf("checkpoint: %v", err)
	}
	return nil
}

// Reset samples the head that will drive exploration for the next
// episode
func (d *BstrapDQN) Reset() error {
	if !d.built {
		return fmt.Errorf("reset: model not built")
	}
	d.activeHead = d.rng.Intn(d.config.NumHeads)
	return nil
}

// ActionTrain selects an ε-greedy action using the active head's
// action values
func (d *BstrapDQN) ActionTrain(obs mat.Vector, t int) (*mat.VecDense, error) {
	if !d.built {
		return nil, fmt.Errorf("actiontrain: model not built")
	}

	if d.rng.Float64() < d.config.Epsilon.Value(t) {
		action := d.rng.Intn(d.numActions)
		return mat.NewVecDense(1, []float64{float64(action)}), nil
	}

	q, err := d.headValues(obs)
	if err != nil {
		return nil, fmt.Errorf("actiontrain: %v", err)
	}
	row := q[d.activeHead*d.numActions : (d.activeHead+1)*d.numActions]
	action := model.Argmax(row)

	return mat.NewVecDense(1, []float64{float64(action)}), nil
}

// ActionEval selects an action by majority vote over the heads'
// greedy actions
func (d *BstrapDQN) ActionEval(obs mat.Vector, t int) (*mat.VecDense, error) {
	if !d.built {
		return nil, fmt.Errorf("actioneval: model not built")
	}

	if d.rng.Float64() < d.config.EvalEpsilon {
		action := d.rng.Intn(d.numActions)
		return mat.NewVecDense(1, []float64{float64(action)}), nil
	}

	q, err := d.headValues(obs)
	if err != nil {
		return nil, fmt.Errorf("actioneval: %v", err)
	}

	votes := make([]float64, d.numActions)
	for k := 0; k < d.config.NumHeads; k++ {
		row := q[k*d.numActions : (k+1)*d.numActions]
		votes[model.Argmax(row)]++
	}
	action := model.Argmax(votes)

	return mat.NewVecDense(1, []float64{float64(action)}), nil
}

// headValues runs the policy network on obs and returns all heads'
// action values
func (d *BstrapDQN) headValues(obs mat.Vector) ([]float64, error) {
	if err := d.policyNet.SetInput(model.RawObs(obs)); err != nil {
		return nil, fmt.Errorf("could not set input: %v", err)
	}
	if err := d.policyVM.RunAll(); err != nil {
		return nil, fmt.Errorf("could not run policy network: %v", err)
	}
	out := d.policyNet.Output().Data().([]float64)
	q := make([]float64, len(out))
	copy(q, out)
	d.policyVM.Reset()
	return q, nil
}

// TrainStep performs one gradient update on a batch of transitions
func (d *BstrapDQN) TrainStep(batch expreplay.Batch,
	t int) (model.Summary, error) {
	if !d.built {
		return nil, fmt.Errorf("trainstep: model not built")
	}
	if batch.Size != d.config.BatchSize {
		return nil, fmt.Errorf("trainstep: invalid batch size\n\twant(%v)"+
			"\n\thave(%v)", d.config.BatchSize, batch.Size)
	}
	numHeads := d.config.NumHeads

	// Per-head update targets from the target network
	if err := d.targetNet.SetInput(batch.NextStates); err != nil {
		return nil, fmt.Errorf("trainstep: could not set target network "+
			"input: %v", err)
	}
	if err := d.targetVM.RunAll(); err != nil {
		return nil, fmt.Errorf("trainstep: could not run target "+
			"network: %v", err)
	}
	targetOut := d.targetNet.Output().Data().([]float64)

	targets := make([]float64, batch.Size*numHeads)
	for i := 0; i < batch.Size; i++ {
		discount := d.config.Gamma * (1.0 - batch.Dones[i])
		for k := 0; k < numHeads; k++ {
			offset := i*numHeads*d.numActions + k*d.numActions
			row := targetOut[offset : offset+d.numActions]
			targets[i*numHeads+k] = batch.Rewards[i] +
				discount*row[model.Argmax(row)]
		}
	}
	d.targetVM.Reset()

	// Repeat the one-hot selected actions for each head, and draw
	// each head's bootstrap mask
	mask := make([]float64, batch.Size*numHeads*d.numActions)
	boot := make([]float64, batch.Size*numHeads)
	for i := 0; i < batch.Size; i++ {
		for k := 0; k < numHeads; k++ {
			for a := 0; a < d.numActions; a++ {
				mask[i*numHeads*d.numActions+k*d.numActions+a] =
					batch.Actions[i*d.numActions+a]
			}
			if d.rng.Float64() < d.config.MaskProb {
				boot[i*numHeads+k] = 1.0
			}
		}
	}

	if err := G.Let(d.actionMask, tensor.New(
		tensor.WithShape(batch.Size, numHeads*d.numActions),
		tensor.WithBacking(mask))); err != nil {
		return nil, fmt.Errorf("trainstep: could not set action mask: %v",
			err)
	}
	if err := G.Let(d.headTargets, tensor.New(
		tensor.WithShape(batch.Size, numHeads),
		tensor.WithBacking(targets))); err != nil {
		return nil, fmt.Errorf("trainstep: could not set head targets: %v",
			err)
	}
	if err := G.Let(d.bootMask, tensor.New(
		tensor.WithShape(batch.Size, numHeads),
		tensor.WithBacking(boot))); err != nil {
		return nil, fmt.Errorf("trainstep: could not set bootstrap "+
			"mask: %v", err)
	}

	if err := d.trainNet.SetInput(batch.States); err != nil {
		return nil, fmt.Errorf("trainstep: could not set input: %v", err)
	}
	if err := d.trainVM.RunAll(); err != nil {
		return nil, fmt.Errorf("trainstep: could not run learning "+
			"network: %v", err)
	}
	if err := d.solver.Step(d.trainNet.Model()); err != nil {
		return nil, fmt.Errorf("trainstep: could not step solver: %v", err)
	}
	d.trainVM.Reset()

	if err := d.policyNet.Set(d.trainNet); err != nil {
		return nil, fmt.Errorf("trainstep: could not set policy "+
			"network: %v", err)
	}

	return model.Summary{"loss": d.costVal.Data().(float64)}, nil
}

// SyncTarget sets the target network's weights to the learning
// network's weights
func (d *BstrapDQN) SyncTarget() error {
	if !d.built {
		return fmt.Errorf("synctarget: model not built")
	}
	if err := d.targetNet.Set(d.trainNet); err != nil {
		return fmt.Errorf("synctarget: %v", err)
	}
	return nil
}

// Close releases the model's virtual machines
func (d *BstrapDQN) Close() error {
	if !d.built {
		return nil
	}
	d.policyVM.Close()
	d.trainVM.Close()
	d.targetVM.Close()
	return nil
}
