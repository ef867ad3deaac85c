package deepq

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
	onlineKey string = "deepq/online"
	targetKey string = "deepq/target"
)

// DeepQ implements the deep Q-learning algorithm with a target
// network. When the Double configuration flag is set, the update
// target is computed with double Q-learning: the online network
// selects the next action and the target network evaluates it.
type DeepQ struct {
	config     Config
	features   int
	numActions int

	rng *rand.Rand

	// Network for selecting single actions
	policyNet network.NeuralNet
	policyVM  G.VM

	// Network whose weights are adapted, along with its loss graph
	trainNet network.NeuralNet
	trainVM  G.VM
	solver   G.Solver

	// Network providing the update target for a batch of inputs
	targetNet network.NeuralNet
	targetVM  G.VM

	// Online network at batch size, used to select the next action
	// for the double Q-learning target
	selectNet network.NeuralNet
	selectVM  G.VM

	// Input nodes of the loss graph
	selectedActions *G.Node
	rewards         *G.Node
	discounts       *G.Node
	nextStateValues *G.Node

	costVal G.Value

	built bool
}

// Build constructs the model's networks and loss graph
func (d *DeepQ) Build() error {
	if d.built {
		return fmt.Errorf("build: model already built")
	}
	c := d.config

	d.rng = rand.New(rand.NewSource(c.Seed))

	// Network for selecting single actions
	g := G.NewGraph()
	policyNet, err := network.NewMultiHeadMLP(d.features, 1, d.numActions,
		g, c.HiddenSizes, c.Biases, c.InitWFn.InitWFn(), c.Activations)
	if err != nil {
		return fmt.Errorf("build: could not create policy network: %v", err)
	}
	d.policyNet = policyNet
	d.policyVM = G.NewTapeMachine(g)

	// Learning network and its loss graph
	trainNet, err := policyNet.CloneWithBatch(c.BatchSize)
	if err != nil {
		return fmt.Errorf("build: could not create learning network: %v", err)
	}
	d.trainNet = trainNet
	gTrain := trainNet.Graph()

	// Update target: r + γ * V(s'), where V(s') is computed outside
	// the graph from the target network so that both the max-based
	// and the double Q-learning targets share one loss graph
	d.rewards = G.NewVector(gTrain, tensor.Float64, G.WithShape(c.BatchSize),
		G.WithName("reward"))
	d.discounts = G.NewVector(gTrain, tensor.Float64,
		G.WithShape(c.BatchSize), G.WithName("discount"))
	d.nextStateValues = G.NewVector(gTrain, tensor.Float64,
		G.WithShape(c.BatchSize), G.WithName("nextStateValue"))
	updateTarget := G.Must(G.HadamardProd(d.nextStateValues, d.discounts))
	updateTarget = G.Must(G.Add(updateTarget, d.rewards))

	// Action selected in the previous state, needed to compute the
	// loss using the correct action value since the network outputs N
	// action values, one for each environmental action
	d.selectedActions = G.NewMatrix(gTrain, tensor.Float64,
		G.WithName("actionSelected"),
		G.WithShape(c.BatchSize, d.numActions))
	selectedActionValues := G.Must(G.HadamardProd(trainNet.Prediction(),
		d.selectedActions))
	selectedActionValues = G.Must(G.Sum(selectedActionValues, 1))

	diff := G.Must(G.Sub(updateTarget, selectedActionValues))

	var losses *G.Node
	if c.Huber {
		losses = model.Huber(diff, c.HuberDelta)
	} else {
		losses = G.Must(G.Square(diff))
	}
	cost := G.Must(G.Mean(losses))
	G.Read(cost, &d.costVal)

	if _, err := G.Grad(cost, trainNet.Learnables()...); err != nil {
		return fmt.Errorf("build: could not compute gradient: %v", err)
	}
	d.trainVM = G.NewTapeMachine(gTrain,
		G.BindDualValues(trainNet.Learnables()...))
	d.solver = c.Solver.Solver

	// Target network providing the update target
	targetNet, err := policyNet.CloneWithBatch(c.BatchSize)
	if err != nil {
		return fmt.Errorf("build: could not create target network: %v", err)
	}
	d.targetNet = targetNet
	d.targetVM = G.NewTapeMachine(targetNet.Graph())

	if c.Double {
		selectNet, err := policyNet.CloneWithBatch(c.BatchSize)
		if err != nil {
			return fmt.Errorf("build: could not create selection "+
				"network: %v", err)
		}
		d.selectNet = selectNet
		d.selectVM = G.NewTapeMachine(selectNet.Graph())
	}

	d.built = true
	return nil
}

// Initialize synchronizes all networks with the learning network
func (d *DeepQ) Initialize() error {
	if !d.built {
		return fmt.Errorf("initialize: model not built")
	}
	if err := d.syncOnline(); err != nil {
		return fmt.Errorf("initialize: %v", err)
	}
	if err := d.targetNet.Set(d.trainNet); err != nil {
		return fmt.Errorf("initialize: could not set target network: %v", err)
	}
	return nil
}

// Restore sets the model's weights from a checkpoint bundle
func (d *DeepQ) Restore(b *checkpoint.Bundle) error {
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
	if err := d.syncOnline(); err != nil {
		return fmt.Errorf("restore: %v", err)
	}
	return nil
}

// Checkpoint stores the model's weights in b
func (d *DeepQ) Checkpoint(b *checkpoint.Bundle) error {
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

// Reset prepares the model for a new episode
func (d *DeepQ) Reset() error {
	return nil
}

// ActionTrain selects an action with the ε-greedy behaviour policy,
// where ε follows the configured schedule
func (d *DeepQ) ActionTrain(obs mat.Vector, t int) (*mat.VecDense, error) {
	return d.selectAction(obs, d.config.Epsilon.Value(t))
}

// ActionEval selects an action with a fixed, small exploration
func (d *DeepQ) ActionEval(obs mat.Vector, t int) (*mat.VecDense, error) {
	return d.selectAction(obs, d.config.EvalEpsilon)
}

// selectAction selects an ε-greedy action for obs
func (d *DeepQ) selectAction(obs mat.Vector, epsilon float64) (*mat.VecDense,
	error) {
	if !d.built {
		return nil, fmt.Errorf("selectaction: model not built")
	}

	if d.rng.Float64() < epsilon {
		action := d.rng.Intn(d.numActions)
		return mat.NewVecDense(1, []float64{float64(action)}), nil
	}

	if err := d.policyNet.SetInput(model.RawObs(obs)); err != nil {
		return nil, fmt.Errorf("selectaction: could not set input: %v", err)
	}
	if err := d.policyVM.RunAll(); err != nil {
		return nil, fmt.Errorf("selectaction: could not run policy "+
			"network: %v", err)
	}
	q := d.policyNet.Output().Data().([]float64)
	action := model.Argmax(q)
	d.policyVM.Reset()

	return mat.NewVecDense(1, []float64{float64(action)}), nil
}

// TrainStep performs one gradient update on a batch of transitions
func (d *DeepQ) TrainStep(batch expreplay.Batch,
	t int) (model.Summary, error) {
	if !d.built {
		return nil, fmt.Errorf("trainstep: model not built")
	}
	if batch.Size != d.config.BatchSize {
		return nil, fmt.Errorf("trainstep: invalid batch size\n\twant(%v)"+
			"\n\thave(%v)", d.config.BatchSize, batch.Size)
	}

	nextValues, err := d.nextStateValue(batch)
	if err != nil {
		return nil, fmt.Errorf("trainstep: %v", err)
	}

	discounts := make([]float64, batch.Size)
	for i := range discounts {
		discounts[i] = d.config.Gamma * (1.0 - batch.Dones[i])
	}

	prevActions := tensor.New(
		tensor.WithShape(batch.Size, d.numActions),
		tensor.WithBacking(batch.Actions),
	)
	if err := G.Let(d.selectedActions, prevActions); err != nil {
		return nil, fmt.Errorf("trainstep: could not set selected "+
			"actions: %v", err)
	}
	if err := G.Let(d.rewards, tensor.New(tensor.WithShape(batch.Size),
		tensor.WithBacking(batch.Rewards))); err != nil {
		return nil, fmt.Errorf("trainstep: could not set rewards: %v", err)
	}
	if err := G.Let(d.discounts, tensor.New(tensor.WithShape(batch.Size),
		tensor.WithBacking(discounts))); err != nil {
		return nil, fmt.Errorf("trainstep: could not set discounts: %v", err)
	}
	if err := G.Let(d.nextStateValues, tensor.New(
		tensor.WithShape(batch.Size),
		tensor.WithBacking(nextValues))); err != nil {
		return nil, fmt.Errorf("trainstep: could not set next state "+
			"values: %v", err)
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

	if err := d.syncOnline(); err != nil {
		return nil, fmt.Errorf("trainstep: %v", err)
	}

	return model.Summary{"loss": d.costVal.Data().(float64)}, nil
}

// nextStateValue computes V(s') for each transition in the batch from
// the target network
func (d *DeepQ) nextStateValue(batch expreplay.Batch) ([]float64, error) {
	if err := d.targetNet.SetInput(batch.NextStates); err != nil {
		return nil, fmt.Errorf("could not set target network input: %v", err)
	}
	if err := d.targetVM.RunAll(); err != nil {
		return nil, fmt.Errorf("could not run target network: %v", err)
	}
	targetQ := d.targetNet.Output().Data().([]float64)

	values := make([]float64, batch.Size)
	if d.config.Double {
		if err := d.selectNet.SetInput(batch.NextStates); err != nil {
			return nil, fmt.Errorf("could not set selection network "+
				"input: %v", err)
		}
		if err := d.selectVM.RunAll(); err != nil {
			return nil, fmt.Errorf("could not run selection network: %v", err)
		}
		onlineQ := d.selectNet.Output().Data().([]float64)
		for i := 0; i < batch.Size; i++ {
			row := onlineQ[i*d.numActions : (i+1)*d.numActions]
			a := model.Argmax(row)
			values[i] = targetQ[i*d.numActions+a]
		}
		d.selectVM.Reset()
	} else {
		for i := 0; i < batch.Size; i++ {
			row := targetQ[i*d.numActions : (i+1)*d.numActions]
			values[i] = row[model.Argmax(row)]
		}
	}
	d.targetVM.Reset()

	return values, nil
}

// SyncTarget sets the target network's weights to the learning
// network's weights
func (d *DeepQ) SyncTarget() error {
	if !d.built {
		return fmt.Errorf("synctarget: model not built")
	}
	if err := d.targetNet.Set(d.trainNet); err != nil {
		return fmt.Errorf("synctarget: %v", err)
	}
	return nil
}

// syncOnline sets the action selection networks' weights to the
// learning network's weights
func (d *DeepQ) syncOnline() error {
	if err := d.policyNet.Set(d.trainNet); err != nil {
		return fmt.Errorf("could not set policy network: %v", err)
	}
	if d.config.Double {
		if err := d.selectNet.Set(d.trainNet); err != nil {
			return fmt.Errorf("could not set selection network: %v", err)
		}
	}
	return nil
}

// Close releases the model's virtual machines
func (d *DeepQ) Close() error {
	if !d.built {
		return nil
	}
	d.policyVM.Close()
	d.trainVM.Close()
	d.targetVM.Close()
	if d.config.Double {
		d.selectVM.Close()
	}
	return nil
}
