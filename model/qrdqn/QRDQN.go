package qrdqn

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
	onlineKey string = "qrdqn/online"
	targetKey string = "qrdqn/target"
)

// QRDQN implements Q-learning over quantile return distributions. The
// network predicts NumQuantiles quantile locations for each action,
// and the action value is the mean of the action's quantiles. The
// quantile Huber loss penalizes each pairwise difference between
// predicted quantiles and target quantiles, weighted by the quantile
// midpoint of the prediction.
type QRDQN struct {
	config     Config
	features   int
	numActions int

	rng *rand.Rand

	policyNet network.NeuralNet
	policyVM  G.VM

	trainNet network.NeuralNet
	trainVM  G.VM
	solver   G.Solver

	targetNet network.NeuralNet
	targetVM  G.VM

	// Input nodes of the loss graph
	actionMask      *G.Node
	targetQuantiles *G.Node

	costVal G.Value

	built bool
}

// Build constructs the model's networks and loss graph
func (q *QRDQN) Build() error {
	if q.built {
		return fmt.Errorf("build: model already built")
	}
	c := q.config
	numQuantiles := c.NumQuantiles
	outputs := q.numActions * numQuantiles

	q.rng = rand.New(rand.NewSource(c.Seed))

	g := G.NewGraph()
	policyNet, err := network.NewMultiHeadMLP(q.features, 1, outputs, g,
		c.HiddenSizes, c.Biases, c.InitWFn.InitWFn(), c.Activations)
	if err != nil {
		return fmt.Errorf("build: could not create policy network: %v", err)
	}
	q.policyNet = policyNet
	q.policyVM = G.NewTapeMachine(g)

	trainNet, err := policyNet.CloneWithBatch(c.BatchSize)
	if err != nil {
		return fmt.Errorf("build: could not create learning network: %v", err)
	}
	q.trainNet = trainNet
	gTrain := trainNet.Graph()

	// Quantiles of the selected action: the network output is masked
	// with the selected action's one-hot pattern and summed over the
	// action dimension
	q.actionMask = G.NewMatrix(gTrain, tensor.Float64,
		G.WithShape(c.BatchSize, outputs), G.WithName("actionMask"))
	pred := G.Must(G.HadamardProd(trainNet.Prediction(), q.actionMask))
	pred = G.Must(G.Reshape(pred, tensor.Shape{c.BatchSize, q.numActions,
		numQuantiles}))
	pred = G.Must(G.Sum(pred, 1))

	q.targetQuantiles = G.NewMatrix(gTrain, tensor.Float64,
		G.WithShape(c.BatchSize, numQuantiles),
		G.WithName("targetQuantiles"))

	// Pairwise differences diff[b][i][j] between target quantile j
	// and predicted quantile i
	predCol := G.Must(G.Reshape(pred, tensor.Shape{c.BatchSize,
		numQuantiles, 1}))
	targRow := G.Must(G.Reshape(q.targetQuantiles, tensor.Shape{c.BatchSize,
		1, numQuantiles}))
	diff := G.Must(G.BroadcastSub(targRow, predCol, []byte{1}, []byte{2}))

	// Quantile Huber loss: the Huber loss of each difference weighted
	// by |τ_i - 1{diff < 0}|, where τ_i is the quantile midpoint of
	// predicted quantile i
	huber := model.Huber(diff, c.HuberDelta)
	if c.HuberDelta != 1.0 {
		huber = G.Must(G.Mul(G.NewConstant(1.0/c.HuberDelta), huber))
	}

	zero := G.NewConstant(0.0)
	indicator := G.Must(G.Lt(diff, zero, true))

	midpoints := make([]float64, numQuantiles)
	for i := range midpoints {
		midpoints[i] = (float64(i) + 0.5) / float64(numQuantiles)
	}
	tau := G.NewConstant(tensor.New(
		tensor.WithShape(1, numQuantiles, 1),
		tensor.WithBacking(midpoints),
	), G.WithName("tau"))
	weight := G.Must(G.Abs(G.Must(G.BroadcastSub(tau, indicator,
		[]byte{0, 2}, nil))))

	losses := G.Must(G.HadamardProd(weight, huber))
	losses = G.Must(G.Mean(losses, 2))
	losses = G.Must(G.Sum(losses, 1))
	cost := G.Must(G.Mean(losses))
	G.Read(cost, &q.costVal)

	if _, err := G.Grad(cost, trainNet.Learnables()...); err != nil {
		return fmt.Errorf("build: could not compute gradient: %v", err)
	}
	q.trainVM = G.NewTapeMachine(gTrain,
		G.BindDualValues(trainNet.Learnables()...))
	q.solver = c.Solver.Solver

	targetNet, err := policyNet.CloneWithBatch(c.BatchSize)
	if err != nil {
		return fmt.Errorf("build: could not create target network: %v", err)
	}
	q.targetNet = targetNet
	q.targetVM = G.NewTapeMachine(targetNet.Graph())

	q.built = true
	return nil
}

// Initialize synchronizes all networks with the learning network
func (q *QRDQN) Initialize() error {
	if !q.built {
		return fmt.Errorf("initialize: model not built")
	}
	if err := q.policyNet.Set(q.trainNet); err != nil {
		return fmt.Errorf("initialize: could not set policy network: %v", err)
	}
	if err := q.targetNet.Set(q.trainNet); err != nil {
		return fmt.Errorf("initialize: could not set target network: %v", err)
	}
	return nil
}

// Restore sets the model's weights from a checkpoint bundle
func (q *QRDQN) Restore(b *checkpoint.Bundle) error {
	if !q.built {
		return fmt.Errorf("restore: model not built")
	}

	var online, target map[string]network.Weights
	if err := b.Get(onlineKey, &online); err != nil {
		return fmt.Errorf("restore: %v", err)
	}
	if err := b.Get(targetKey, &target); err != nil {
		return fmt.Errorf("restore: %v", err)
	}

	if err := q.trainNet.RestoreWeights(online); err != nil {
		return fmt.Errorf("restore: %v", err)
	}
	if err := q.targetNet.RestoreWeights(target); err != nil {
		return fmt.Errorf("restore: %v", err)
	}
	if err := q.policyNet.Set(q.trainNet); err != nil {
		return fmt.Errorf("restore: could not set policy network: %v", err)
	}
	return nil
}

// Checkpoint stores the model's weights in b
func (q *QRDQN) Checkpoint(b *checkpoint.Bundle) error {
	if !q.built {
		return fmt.Errorf("checkpoint: model not built")
	}
	if err := b.Put(onlineKey, q.trainNet.SnapshotWeights()); err != nil {
		return fmt.Errorf("checkpoint: %v", err)
	}
	if err := b.Put(targetKey, q.targetNet.SnapshotWeights()); err != nil {
		return fmt.Errorf("checkpoint: %v", err)
	}
	return nil
}

// Reset prepares the model for a new episode
func (q *QRDQN) Reset() error {
	return nil
}

// ActionTrain selects an action with the ε-greedy behaviour policy,
// where ε follows the configured schedule
func (q *QRDQN) ActionTrain(obs mat.Vector, t int) (*mat.VecDense, error) {
	return q.selectAction(obs, q.config.Epsilon.Value(t))
}

// ActionEval selects an action with a fixed, small exploration
func (q *QRDQN) ActionEval(obs mat.Vector, t int) (*mat.VecDense, error) {
	return q.selectAction(obs, q.config.EvalEpsilon)
}

// selectAction selects an ε-greedy action for obs, ranking actions by
// the mean of their quantiles
func (q *QRDQN) selectAction(obs mat.Vector, epsilon float64) (*mat.VecDense,
	error) {
	if !q.built {
		return nil, fmt.Errorf("selectaction: model not built")
	}

	if q.rng.Float64() < epsilon {
		action := q.rng.Intn(q.numActions)
		return mat.NewVecDense(1, []float64{float64(action)}), nil
	}

	if err := q.policyNet.SetInput(model.RawObs(obs)); err != nil {
		return nil, fmt.Errorf("selectaction: could not set input: %v", err)
	}
	if err := q.policyVM.RunAll(); err != nil {
		return nil, fmt.Errorf("selectaction: could not run policy "+
			"network: %v", err)
	}
	quantiles := q.policyNet.Output().Data().([]float64)
	action := model.Argmax(q.actionValues(quantiles, 0))
	q.policyVM.Reset()

	return mat.NewVecDense(1, []float64{float64(action)}), nil
}

// actionValues returns the mean quantile of each action for sample i
// of a flat quantile prediction
func (q *QRDQN) actionValues(quantiles []float64, i int) []float64 {
	numQuantiles := q.config.NumQuantiles
	offset := i * q.numActions * numQuantiles

	values := make([]float64, q.numActions)
	for a := 0; a < q.numActions; a++ {
		var sum float64
		for j := 0; j < numQuantiles; j++ {
			sum += quantiles[offset+a*numQuantiles+j]
		}
		values[a] = sum / float64(numQuantiles)
	}
	return values
}

// TrainStep performs one gradient update on a batch of transitions
func (q *QRDQN) TrainStep(batch expreplay.Batch,
	t int) (model.Summary, error) {
	if !q.built {
		return nil, fmt.Errorf("trainstep: model not built")
	}
	if batch.Size != q.config.BatchSize {
		return nil, fmt.Errorf("trainstep: invalid batch size\n\twant(%v)"+
			"\n\thave(%v)", q.config.BatchSize, batch.Size)
	}
	numQuantiles := q.config.NumQuantiles

	// Target quantiles: the quantiles of the greedy next action under
	// the target network, shifted by the reward
	if err := q.targetNet.SetInput(batch.NextStates); err != nil {
		return nil, fmt.Errorf("trainstep: could not set target network "+
			"input: %v", err)
	}
	if err := q.targetVM.RunAll(); err != nil {
		return nil, fmt.Errorf("trainstep: could not run target "+
			"network: %v", err)
	}
	targetOut := q.targetNet.Output().Data().([]float64)

	targets := make([]float64, batch.Size*numQuantiles)
	for i := 0; i < batch.Size; i++ {
		a := model.Argmax(q.actionValues(targetOut, i))
		discount := q.config.Gamma * (1.0 - batch.Dones[i])
		offset := i*q.numActions*numQuantiles + a*numQuantiles
		for j := 0; j < numQuantiles; j++ {
			targets[i*numQuantiles+j] = batch.Rewards[i] +
				discount*targetOut[offset+j]
		}
	}
	q.targetVM.Reset()

	// Expand the one-hot selected actions over the quantile dimension
	mask := make([]float64, batch.Size*q.numActions*numQuantiles)
	for i := 0; i < batch.Size; i++ {
		for a := 0; a < q.numActions; a++ {
			chosen := batch.Actions[i*q.numActions+a]
			for j := 0; j < numQuantiles; j++ {
				mask[i*q.numActions*numQuantiles+a*numQuantiles+j] = chosen
			}
		}
	}

	if err := G.Let(q.actionMask, tensor.New(
		tensor.WithShape(batch.Size, q.numActions*numQuantiles),
		tensor.WithBacking(mask))); err != nil {
		return nil, fmt.Errorf("trainstep: could not set action mask: %v",
			err)
	}
	if err := G.Let(q.targetQuantiles, tensor.New(
		tensor.WithShape(batch.Size, numQuantiles),
		tensor.WithBacking(targets))); err != nil {
		return nil, fmt.Errorf("trainstep: could not set target "+
			"quantiles: %v", err)
	}

	if err := q.trainNet.SetInput(batch.States); err != nil {
		return nil, fmt.Errorf("trainstep: could not set input: %v", err)
	}
	if err := q.trainVM.RunAll(); err != nil {
		return nil, fmt.Errorf("trainstep: could not run learning "+
			"network: %v", err)
	}
	if err := q.solver.Step(q.trainNet.Model()); err != nil {
		return nil, fmt.Errorf("trainstep: could not step solver: %v", err)
	}
	q.trainVM.Reset()

	if err := q.policyNet.Set(q.trainNet); err != nil {
		return nil, fmt.Errorf("trainstep: could not set policy "+
			"network: %v", err)
	}

	return model.Summary{"loss": q.costVal.Data().(float64)}, nil
}

// SyncTarget sets the target network's weights to the learning
// network's weights
func (q *QRDQN) SyncTarget() error {
	if !q.built {
		return fmt.Errorf("synctarget: model not built")
	}
	if err := q.targetNet.Set(q.trainNet); err != nil {
		return fmt.Errorf("synctarget: %v", err)
	}
	return nil
}

// Close releases the model's virtual machines
func (q *QRDQN) Close() error {
	if !q.built {
		return nil
	}
	q.policyVM.Close()
	q.trainVM.Close()
	q.targetVM.Close()
	return nil
}
