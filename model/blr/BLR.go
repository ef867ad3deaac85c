package blr

import (
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/Baichenjia/rltf/checkpoint"
	"github.com/Baichenjia/rltf/expreplay"
	"github.com/Baichenjia/rltf/model"
	"github.com/Baichenjia/rltf/network"
)

// Bundle keys under which the model stores its state
const (
	onlineKey    string = "blr/online"
	targetKey    string = "blr/target"
	posteriorKey string = "blr/posterior"
)

// posterior holds the Gaussian posterior over one action's linear
// weights in natural parameters: the precision matrix and the
// precision-weighted mean
type posterior struct {
	precision *mat.SymDense
	b         *mat.VecDense
}

// blrState is the posterior state persisted in checkpoints
type blrState struct {
	Precisions [][]float64
	Bs         [][]float64
	WTarget    []float64
}

// BLR implements Q-learning with a Bayesian linear regression head
// over learned features and Thompson sampling exploration
type BLR struct {
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
	linWeights      *G.Node
	selectedActions *G.Node
	targets         *G.Node

	costVal G.Value

	posteriors []posterior
	wMean      *mat.Dense // Posterior mean weights, one column per action
	wSample    *mat.Dense // Thompson sample driving training actions
	wTarget    *mat.Dense // Weights used to compute TD targets

	built bool
}

// Build constructs the model's networks and loss graph
func (m *BLR) Build() error {
	if m.built {
		return fmt.Errorf("build: model already built")
	}
	c := m.config
	dims := c.FeatureSize

	m.rng = rand.New(rand.NewSource(c.Seed))

	g := G.NewGraph()
	policyNet, err := network.NewMultiHeadMLP(m.features, 1, dims, g,
		c.HiddenSizes, c.Biases, c.InitWFn.InitWFn(), c.Activations)
	if err != nil {
		return fmt.Errorf("build: could not create policy network: %v", err)
	}
	m.policyNet = policyNet
	m.policyVM = G.NewTapeMachine(g)

	trainNet, err := policyNet.CloneWithBatch(c.BatchSize)
	if err != nil {
		return fmt.Errorf("build: could not create learning network: %v", err)
	}
	m.trainNet = trainNet
	gTrain := trainNet.Graph()

	// Action values are linear in the network's features. The linear
	// weights enter the graph as an input holding the current
	// posterior means, so the TD loss trains the feature network
	// around them.
	m.linWeights = G.NewMatrix(gTrain, tensor.Float64,
		G.WithShape(dims, m.numActions), G.WithName("linWeights"))
	qPred := G.Must(G.Mul(trainNet.Prediction(), m.linWeights))

	m.selectedActions = G.NewMatrix(gTrain, tensor.Float64,
		G.WithShape(c.BatchSize, m.numActions),
		G.WithName("actionSelected"))
	selectedQ := G.Must(G.HadamardProd(qPred, m.selectedActions))
	selectedQ = G.Must(G.Sum(selectedQ, 1))

	m.targets = G.NewVector(gTrain, tensor.Float64,
		G.WithShape(c.BatchSize), G.WithName("target"))
	diff := G.Must(G.Sub(m.targets, selectedQ))
	cost := G.Must(G.Mean(G.Must(G.Square(diff))))
	G.Read(cost, &m.costVal)

	if _, err := G.Grad(cost, trainNet.Learnables()...); err != nil {
		return fmt.Errorf("build: could not compute gradient: %v", err)
	}
	m.trainVM = G.NewTapeMachine(gTrain,
		G.BindDualValues(trainNet.Learnables()...))
	m.solver = c.Solver.Solver

	targetNet, err := policyNet.CloneWithBatch(c.BatchSize)
	if err != nil {
		return fmt.Errorf("build: could not create target network: %v", err)
	}
	m.targetNet = targetNet
	m.targetVM = G.NewTapeMachine(targetNet.Graph())

	m.built = true
	return nil
}

// Initialize resets the posterior to its prior, synchronizes all
// networks with the learning network, and draws the first Thompson
// sample
func (m *BLR) Initialize() error {
	if !m.built {
		return fmt.Errorf("initialize: model not built")
	}
	c := m.config
	dims := c.FeatureSize

	m.posteriors = make([]posterior, m.numActions)
	priorPrecision := 1.0 / (c.SigmaPrior * c.SigmaPrior)
	for a := range m.posteriors {
		precision := mat.NewSymDense(dims, nil)
		for i := 0; i < dims; i++ {
			precision.SetSym(i, i, priorPrecision)
		}
		m.posteriors[a] = posterior{
			precision: precision,
			b:         mat.NewVecDense(dims, nil),
		}
	}

	if err := m.refreshMeans(); err != nil {
		return fmt.Errorf("initialize: %v", err)
	}
	m.wTarget = mat.DenseCopyOf(m.wMean)
	if err := m.sampleWeights(); err != nil {
		return fmt.Errorf("initialize: %v", err)
	}

	if err := m.policyNet.Set(m.trainNet); err != nil {
		return fmt.Errorf("initialize: could not set policy network: %v", err)
	}
	if err := m.targetNet.Set(m.trainNet); err != nil {
		return fmt.Errorf("initialize: could not set target network: %v", err)
	}
	return nil
}

// refreshMeans recomputes the posterior mean weights of every action
func (m *BLR) refreshMeans() error {
	dims := m.config.FeatureSize
	if m.wMean == nil {
		m.wMean = mat.NewDense(dims, m.numActions, nil)
	}
	for a := range m.posteriors {
		var ch mat.Cholesky
		if !ch.Factorize(m.posteriors[a].precision) {
			return fmt.Errorf("refreshmeans: precision matrix of action "+
				"%v is not positive definite", a)
		}
		mean := mat.NewVecDense(dims, nil)
		if err := ch.SolveVecTo(mean, m.posteriors[a].b); err != nil {
			return fmt.Errorf("refreshmeans: could not solve for mean of "+
				"action %v: %v", a, err)
		}
		for i := 0; i < dims; i++ {
			m.wMean.Set(i, a, mean.AtVec(i))
		}
	}
	return nil
}

// sampleWeights draws a Thompson sample of the linear weights of
// every action from the posterior
func (m *BLR) sampleWeights() error {
	dims := m.config.FeatureSize
	if m.wSample == nil {
		m.wSample = mat.NewDense(dims, m.numActions, nil)
	}
	for a := range m.posteriors {
		var ch mat.Cholesky
		if !ch.Factorize(m.posteriors[a].precision) {
			return fmt.Errorf("sampleweights: precision matrix of action "+
				"%v is not positive definite", a)
		}
		mean := mat.NewVecDense(dims, nil)
		if err := ch.SolveVecTo(mean, m.posteriors[a].b); err != nil {
			return fmt.Errorf("sampleweights: could not solve for mean of "+
				"action %v: %v", a, err)
		}
		var cov mat.SymDense
		if err := ch.InverseTo(&cov); err != nil {
			return fmt.Errorf("sampleweights: could not invert precision "+
				"of action %v: %v", a, err)
		}

		normal, ok := distmv.NewNormal(mean.RawVector().Data, &cov, m.rng)
		if !ok {
			return fmt.Errorf("sampleweights: could not create posterior "+
				"distribution of action %v", a)
		}
		sample := normal.Rand(nil)
		for i := 0; i < dims; i++ {
			m.wSample.Set(i, a, sample[i])
		}
	}
	return nil
}

// Restore sets the model's weights and posterior from a checkpoint
// bundle
func (m *BLR) Restore(b *checkpoint.Bundle) error {
	if !m.built {
		return fmt.Errorf("restore: model not built")
	}
	dims := m.config.FeatureSize

	var online, target map[string]network.Weights
	if err := b.Get(onlineKey, &online); err != nil {
		return fmt.Errorf("restore: %v", err)
	}
	if err := b.Get(targetKey, &target); err != nil {
		return fmt.Errorf("restore: %v", err)
	}
	var state blrState
	if err := b.Get(posteriorKey, &state); err != nil {
		return fmt.Errorf("restore: %v", err)
	}
	if len(state.Precisions) != m.numActions ||
		len(state.Bs) != m.numActions {
		return fmt.Errorf("restore: posterior holds %v actions "+
			"\n\twant(%v)", len(state.Precisions), m.numActions)
	}

	if err := m.trainNet.RestoreWeights(online); err != nil {
		return fmt.Errorf("restore: %v", err)
	}
	if err := m.targetNet.RestoreWeights(target); err != nil {
		return fmt.Errorf("restore: %v", err)
	}
	if err := m.policyNet.Set(m.trainNet); err != nil {
		return fmt.Errorf("restore: could not set policy network: %v", err)
	}

	m.posteriors = make([]posterior, m.numActions)
	for a := range m.posteriors {
		m.posteriors[a] = posterior{
			precision: mat.NewSymDense(dims, state.Precisions[a]),
			b:         mat.NewVecDense(dims, state.Bs[a]),
		}
	}
	m.wTarget = mat.NewDense(dims, m.numActions, state.WTarget)

	if err := m.refreshMeans(); err != nil {
		return fmt.Errorf("restore: %v", err)
	}
	if err := m.sampleWeights(); err != nil {
		return fmt.Errorf("restore: %v", err)
	}
	return nil
}

// Checkpoint stores the model's weights and posterior in b
func (m *BLR) Checkpoint(b *checkpoint.Bundle) error {
	if !m.built {
		return fmt.Errorf("checkpoint: model not built")
	}
	if m.posteriors == nil {
		return fmt.Errorf("checkpoint: model not initialized")
	}

	if err := b.Put(onlineKey, m.trainNet.SnapshotWeights()); err != nil {
		return fmt.Errorf("checkpoint: %v", err)
	}
	if err := b.Put(targetKey, m.targetNet.SnapshotWeights()); err != nil {
		return fmt.Errorf("checkpoint: %v", err)
	}

	state := blrState{
		Precisions: make([][]float64, m.numActions),
		Bs:         make([][]float64, m.numActions),
		WTarget:    append([]float64{}, m.wTarget.RawMatrix().Data...),
	}
	for a := range m.posteriors {
		raw := m.posteriors[a].precision.RawSymmetric().Data
		state.Precisions[a] = append([]float64{}, raw...)
		state.Bs[a] = append([]float64{},
			m.posteriors[a].b.RawVector().Data...)
	}
	if err := b.Put(posteriorKey, state); err != nil {
		return fmt.Errorf("checkpoint: %v", err)
	}
	return nil
}

// Reset draws a fresh Thompson sample for the next episode
func (m *BLR) Reset() error {
	if !m.built {
		return fmt.Errorf("reset: model not built")
	}
	if m.posteriors == nil {
		return fmt.Errorf("reset: model not initialized")
	}
	if err := m.sampleWeights(); err != nil {
		return fmt.Errorf("reset: %v", err)
	}
	return nil
}

// ActionTrain acts greedily with respect to the current Thompson
// sample of the linear weights
func (m *BLR) ActionTrain(obs mat.Vector, t int) (*mat.VecDense, error) {
	return m.selectAction(obs, m.wSample)
}

// ActionEval acts greedily with respect to the posterior mean weights
func (m *BLR) ActionEval(obs mat.Vector, t int) (*mat.VecDense, error) {
	return m.selectAction(obs, m.wMean)
}

// selectAction computes features for obs and acts greedily under the
// given linear weights
func (m *BLR) selectAction(obs mat.Vector, weights *mat.Dense) (*mat.VecDense,
	error) {
	if !m.built {
		return nil, fmt.Errorf("selectaction: model not built")
	}
	if weights == nil {
		return nil, fmt.Errorf("selectaction: model not initialized")
	}

	if err := m.policyNet.SetInput(model.RawObs(obs)); err != nil {
		return nil, fmt.Errorf("selectaction: could not set input: %v", err)
	}
	if err := m.policyVM.RunAll(); err != nil {
		return nil, fmt.Errorf("selectaction: could not run policy "+
			"network: %v", err)
	}
	features := m.policyNet.Output().Data().([]float64)
	action := model.Argmax(m.actionValues(features, 0, weights))
	m.policyVM.Reset()

	return mat.NewVecDense(1, []float64{float64(action)}), nil
}

// actionValues returns φᵀw_a for each action of sample i of a flat
// feature prediction
func (m *BLR) actionValues(features []float64, i int,
	weights *mat.Dense) []float64 {
	dims := m.config.FeatureSize
	offset := i * dims

	values := make([]float64, m.numActions)
	for a := 0; a < m.numActions; a++ {
		var sum float64
		for d := 0; d < dims; d++ {
			sum += features[offset+d] * weights.At(d, a)
		}
		values[a] = sum
	}
	return values
}

// TrainStep performs one gradient update of the feature network and
// one closed-form update of the weight posterior
func (m *BLR) TrainStep(batch expreplay.Batch,
	t int) (model.Summary, error) {
	if !m.built {
		return nil, fmt.Errorf("trainstep: model not built")
	}
	if m.posteriors == nil {
		return nil, fmt.Errorf("trainstep: model not initialized")
	}
	if batch.Size != m.config.BatchSize {
		return nil, fmt.Errorf("trainstep: invalid batch size\n\twant(%v)"+
			"\n\thave(%v)", m.config.BatchSize, batch.Size)
	}
	dims := m.config.FeatureSize

	// TD targets from the target network's features and the target
	// linear weights
	if err := m.targetNet.SetInput(batch.NextStates); err != nil {
		return nil, fmt.Errorf("trainstep: could not set target network "+
			"input: %v", err)
	}
	if err := m.targetVM.RunAll(); err != nil {
		return nil, fmt.Errorf("trainstep: could not run target "+
			"network: %v", err)
	}
	nextFeatures := m.targetNet.Output().Data().([]float64)

	targets := make([]float64, batch.Size)
	for i := range targets {
		values := m.actionValues(nextFeatures, i, m.wTarget)
		discount := m.config.Gamma * (1.0 - batch.Dones[i])
		targets[i] = batch.Rewards[i] + discount*values[model.Argmax(values)]
	}
	m.targetVM.Reset()

	wData := append([]float64{}, m.wMean.RawMatrix().Data...)
	if err := G.Let(m.linWeights, tensor.New(
		tensor.WithShape(dims, m.numActions),
		tensor.WithBacking(wData))); err != nil {
		return nil, fmt.Errorf("trainstep: could not set linear "+
			"weights: %v", err)
	}
	if err := G.Let(m.selectedActions, tensor.New(
		tensor.WithShape(batch.Size, m.numActions),
		tensor.WithBacking(batch.Actions))); err != nil {
		return nil, fmt.Errorf("trainstep: could not set selected "+
			"actions: %v", err)
	}
	if err := G.Let(m.targets, tensor.New(tensor.WithShape(batch.Size),
		tensor.WithBacking(targets))); err != nil {
		return nil, fmt.Errorf("trainstep: could not set targets: %v", err)
	}

	if err := m.trainNet.SetInput(batch.States); err != nil {
		return nil, fmt.Errorf("trainstep: could not set input: %v", err)
	}
	if err := m.trainVM.RunAll(); err != nil {
		return nil, fmt.Errorf("trainstep: could not run learning "+
			"network: %v", err)
	}
	stateFeatures := append([]float64{},
		m.trainNet.Output().Data().([]float64)...)
	if err := m.solver.Step(m.trainNet.Model()); err != nil {
		return nil, fmt.Errorf("trainstep: could not step solver: %v", err)
	}
	m.trainVM.Reset()

	// Closed-form posterior update from this batch's features and
	// targets
	noisePrecision := 1.0 / (m.config.SigmaNoise * m.config.SigmaNoise)
	for i := 0; i < batch.Size; i++ {
		a := model.Argmax(batch.Actions[i*m.numActions : (i+1)*m.numActions])
		phi := mat.NewVecDense(dims, stateFeatures[i*dims:(i+1)*dims])

		p := m.posteriors[a]
		p.precision.SymRankOne(p.precision, noisePrecision, phi)
		p.b.AddScaledVec(p.b, noisePrecision*targets[i], phi)
	}
	if err := m.refreshMeans(); err != nil {
		return nil, fmt.Errorf("trainstep: %v", err)
	}

	if err := m.policyNet.Set(m.trainNet); err != nil {
		return nil, fmt.Errorf("trainstep: could not set policy "+
			"network: %v", err)
	}

	return model.Summary{"loss": m.costVal.Data().(float64)}, nil
}

// SyncTarget sets the target network and target linear weights to the
// learned ones
func (m *BLR) SyncTarget() error {
	if !m.built {
		return fmt.Errorf("synctarget: model not built")
	}
	if m.posteriors == nil {
		return fmt.Errorf("synctarget: model not initialized")
	}
	if err := m.targetNet.Set(m.trainNet); err != nil {
		return fmt.Errorf("synctarget: %v", err)
	}
	m.wTarget.Copy(m.wMean)
	return nil
}

// Close releases the model's virtual machines
func (m *BLR) Close() error {
	if !m.built {
		return nil
	}
	m.policyVM.Close()
	m.trainVM.Close()
	m.targetVM.Close()
	return nil
}
