package ddpg

import (
	"fmt"
	"math"

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
	actorKey        string = "ddpg/actor"
	criticKey       string = "ddpg/critic"
	targetActorKey  string = "ddpg/targetActor"
	targetCriticKey string = "ddpg/targetCritic"
)

// DDPG implements deep deterministic policy gradient. The critic owns
// its own training graph; the actor's training graph chains the actor
// into a copy of the critic so that the actor's gradient maximizes
// the critic's value of the actor's actions.
type DDPG struct {
	config     Config
	features   int
	actionDims int

	// Critic training graph
	criticLayers  []layer
	criticInput   *G.Node
	criticTargets *G.Node
	criticVM      G.VM
	criticSolver  G.Solver
	criticCostVal G.Value

	// Actor training graph, holding the actor's learnable weights and
	// a copy of the critic
	actorLayers  []layer
	criticCopy   []layer
	actorInput   *G.Node
	actorVM      G.VM
	actorSolver  G.Solver
	actorCostVal G.Value

	// Actor at batch size 1 for action selection
	actLayers []layer
	actInput  *G.Node
	actVM     G.VM
	actOutVal G.Value

	// Target networks
	targetActorLayers  []layer
	targetActorInput   *G.Node
	targetActorVM      G.VM
	targetActorOutVal  G.Value
	targetCriticLayers []layer
	targetCriticInput  *G.Node
	targetCriticVM     G.VM
	targetCriticOutVal G.Value

	built bool
}

// Build constructs the model's graphs
func (d *DDPG) Build() error {
	if d.built {
		return fmt.Errorf("build: model already built")
	}
	c := d.config
	batch := c.BatchSize
	init := c.InitWFn.InitWFn()

	criticSizes := append(append([]int{}, c.CriticHiddenSizes...), 1)
	criticBiases := append(append([]bool{}, c.CriticBiases...), true)
	criticActs := append(append([]*network.Activation{},
		c.CriticActivations...), network.Identity())

	actorSizes := append(append([]int{}, c.ActorHiddenSizes...),
		d.actionDims)
	actorBiases := append(append([]bool{}, c.ActorBiases...), true)
	actorActs := append(append([]*network.Activation{},
		c.ActorActivations...), network.TanH())

	// Critic training graph
	gCritic := G.NewGraph()
	d.criticLayers = addLayers(gCritic, "Critic",
		d.features+d.actionDims, criticSizes, criticBiases, criticActs,
		init)
	d.criticInput = G.NewMatrix(gCritic, tensor.Float64,
		G.WithShape(batch, d.features+d.actionDims),
		G.WithName("stateAction"))
	q, err := fwdAll(d.criticLayers, d.criticInput)
	if err != nil {
		return fmt.Errorf("build: critic: %v", err)
	}
	q = G.Must(G.Reshape(q, tensor.Shape{batch}))

	d.criticTargets = G.NewVector(gCritic, tensor.Float64,
		G.WithShape(batch), G.WithName("target"))
	diff := G.Must(G.Sub(d.criticTargets, q))
	criticCost := G.Must(G.Mean(G.Must(G.Square(diff))))
	G.Read(criticCost, &d.criticCostVal)

	criticLearnables := learnables(d.criticLayers)
	if _, err := G.Grad(criticCost, criticLearnables...); err != nil {
		return fmt.Errorf("build: could not compute critic gradient: %v",
			err)
	}
	d.criticVM = G.NewTapeMachine(gCritic,
		G.BindDualValues(criticLearnables...))
	d.criticSolver = c.CriticSolver.Solver

	// Actor training graph: actor output feeds a copy of the critic,
	// and the cost is the negated mean critic value
	gActor := G.NewGraph()
	d.actorLayers = addLayers(gActor, "Actor", d.features, actorSizes,
		actorBiases, actorActs, init)
	d.actorInput = G.NewMatrix(gActor, tensor.Float64,
		G.WithShape(batch, d.features), G.WithName("state"))
	action, err := fwdAll(d.actorLayers, d.actorInput)
	if err != nil {
		return fmt.Errorf("build: actor: %v", err)
	}
	action = d.scaleAction(action)

	d.criticCopy = cloneLayers(gActor, d.criticLayers)
	stateAction := G.Must(G.Concat(1, d.actorInput, action))
	qa, err := fwdAll(d.criticCopy, stateAction)
	if err != nil {
		return fmt.Errorf("build: actor critic copy: %v", err)
	}
	actorCost := G.Must(G.Neg(G.Must(G.Mean(qa))))
	G.Read(actorCost, &d.actorCostVal)

	actorLearnables := learnables(d.actorLayers)
	if _, err := G.Grad(actorCost, actorLearnables...); err != nil {
		return fmt.Errorf("build: could not compute actor gradient: %v", err)
	}
	d.actorVM = G.NewTapeMachine(gActor,
		G.BindDualValues(actorLearnables...))
	d.actorSolver = c.ActorSolver.Solver

	// Actor for single action selection
	gAct := G.NewGraph()
	d.actLayers = cloneLayers(gAct, d.actorLayers)
	d.actInput = G.NewMatrix(gAct, tensor.Float64,
		G.WithShape(1, d.features), G.WithName("state"))
	out, err := fwdAll(d.actLayers, d.actInput)
	if err != nil {
		return fmt.Errorf("build: action selection actor: %v", err)
	}
	out = d.scaleAction(out)
	G.Read(out, &d.actOutVal)
	d.actVM = G.NewTapeMachine(gAct)

	// Target actor
	gTargetActor := G.NewGraph()
	d.targetActorLayers = cloneLayers(gTargetActor, d.actorLayers)
	d.targetActorInput = G.NewMatrix(gTargetActor, tensor.Float64,
		G.WithShape(batch, d.features), G.WithName("state"))
	targetAction, err := fwdAll(d.targetActorLayers, d.targetActorInput)
	if err != nil {
		return fmt.Errorf("build: target actor: %v", err)
	}
	targetAction = d.scaleAction(targetAction)
	G.Read(targetAction, &d.targetActorOutVal)
	d.targetActorVM = G.NewTapeMachine(gTargetActor)

	// Target critic
	gTargetCritic := G.NewGraph()
	d.targetCriticLayers = cloneLayers(gTargetCritic, d.criticLayers)
	d.targetCriticInput = G.NewMatrix(gTargetCritic, tensor.Float64,
		G.WithShape(batch, d.features+d.actionDims),
		G.WithName("stateAction"))
	targetQ, err := fwdAll(d.targetCriticLayers, d.targetCriticInput)
	if err != nil {
		return fmt.Errorf("build: target critic: %v", err)
	}
	targetQ = G.Must(G.Reshape(targetQ, tensor.Shape{batch}))
	G.Read(targetQ, &d.targetCriticOutVal)
	d.targetCriticVM = G.NewTapeMachine(gTargetCritic)

	d.built = true
	return nil
}

// scaleAction maps a tanh actor output onto the action bounds
func (d *DDPG) scaleAction(out *G.Node) *G.Node {
	scale := make([]float64, d.actionDims)
	offset := make([]float64, d.actionDims)
	for i := range scale {
		scale[i] = (d.config.MaxAction[i] - d.config.MinAction[i]) / 2.0
		offset[i] = (d.config.MaxAction[i] + d.config.MinAction[i]) / 2.0
	}

	scaleNode := G.NewConstant(tensor.New(tensor.WithShape(d.actionDims),
		tensor.WithBacking(scale)))
	offsetNode := G.NewConstant(tensor.New(tensor.WithShape(d.actionDims),
		tensor.WithBacking(offset)))

	x := G.Must(G.BroadcastHadamardProd(out, scaleNode, nil, []byte{0}))
	return G.Must(G.BroadcastAdd(x, offsetNode, nil, []byte{0}))
}

// Initialize synchronizes the action selection actor, the critic
// copy, and the target networks with the learned networks
func (d *DDPG) Initialize() error {
	if !d.built {
		return fmt.Errorf("initialize: model not built")
	}
	if err := d.syncCopies(); err != nil {
		return fmt.Errorf("initialize: %v", err)
	}
	if err := setLayers(d.targetActorLayers, d.actorLayers); err != nil {
		return fmt.Errorf("initialize: could not set target actor: %v", err)
	}
	if err := setLayers(d.targetCriticLayers, d.criticLayers); err != nil {
		return fmt.Errorf("initialize: could not set target critic: %v", err)
	}
	return nil
}

// syncCopies synchronizes the action selection actor and the actor
// graph's critic copy with the learned networks
func (d *DDPG) syncCopies() error {
	if err := setLayers(d.actLayers, d.actorLayers); err != nil {
		return fmt.Errorf("could not set action selection actor: %v", err)
	}
	if err := setLayers(d.criticCopy, d.criticLayers); err != nil {
		return fmt.Errorf("could not set critic copy: %v", err)
	}
	return nil
}

// Restore sets the model's weights from a checkpoint bundle
func (d *DDPG) Restore(b *checkpoint.Bundle) error {
	if !d.built {
		return fmt.Errorf("restore: model not built")
	}

	restores := []struct {
		key    string
		layers []layer
	}{
		{actorKey, d.actorLayers},
		{criticKey, d.criticLayers},
		{targetActorKey, d.targetActorLayers},
		{targetCriticKey, d.targetCriticLayers},
	}
	for _, r := range restores {
		var snap map[string]network.Weights
		if err := b.Get(r.key, &snap); err != nil {
			return fmt.Errorf("restore: %v", err)
		}
		if err := restoreLayers(r.layers, snap); err != nil {
			return fmt.Errorf("restore: %v", err)
		}
	}
	if err := d.syncCopies(); err != nil {
		return fmt.Errorf("restore: %v", err)
	}
	return nil
}

// Checkpoint stores the model's weights in b
func (d *DDPG) Checkpoint(b *checkpoint.Bundle) error {
	if !d.built {
		return fmt.Errorf("checkpoint: model not built")
	}

	snapshots := map[string][]layer{
		actorKey:        d.actorLayers,
		criticKey:       d.criticLayers,
		targetActorKey:  d.targetActorLayers,
		targetCriticKey: d.targetCriticLayers,
	}
	for key, layers := range snapshots {
		if err := b.Put(key, snapshotLayers(layers)); err != nil {
			return fmt.Errorf("checkpoint: %v", err)
		}
	}
	return nil
}

// Reset resets the exploration noise process for the next episode
func (d *DDPG) Reset() error {
	if !d.built {
		return fmt.Errorf("reset: model not built")
	}
	d.config.Noise.Reset()
	return nil
}

// ActionTrain runs the actor on obs and perturbs the action with
// exploration noise, clipped to the action bounds
func (d *DDPG) ActionTrain(obs mat.Vector, t int) (*mat.VecDense, error) {
	action, err := d.act(obs)
	if err != nil {
		return nil, fmt.Errorf("actiontrain: %v", err)
	}

	noise := d.config.Noise.Sample(t)
	for i := 0; i < d.actionDims; i++ {
		perturbed := action.AtVec(i) + noise.AtVec(i)
		perturbed = math.Max(d.config.MinAction[i],
			math.Min(d.config.MaxAction[i], perturbed))
		action.SetVec(i, perturbed)
	}
	return action, nil
}

// ActionEval runs the actor on obs without exploration noise
func (d *DDPG) ActionEval(obs mat.Vector, t int) (*mat.VecDense, error) {
	action, err := d.act(obs)
	if err != nil {
		return nil, fmt.Errorf("actioneval: %v", err)
	}
	return action, nil
}

// act runs the action selection actor on a single observation
func (d *DDPG) act(obs mat.Vector) (*mat.VecDense, error) {
	if !d.built {
		return nil, fmt.Errorf("model not built")
	}

	input := tensor.New(tensor.WithShape(1, d.features),
		tensor.WithBacking(model.RawObs(obs)))
	if err := G.Let(d.actInput, input); err != nil {
		return nil, fmt.Errorf("could not set input: %v", err)
	}
	if err := d.actVM.RunAll(); err != nil {
		return nil, fmt.Errorf("could not run actor: %v", err)
	}
	out := d.actOutVal.Data().([]float64)
	action := mat.NewVecDense(d.actionDims, append([]float64{}, out...))
	d.actVM.Reset()

	return action, nil
}

// TrainStep performs one critic update and one actor update on a
// batch of transitions
func (d *DDPG) TrainStep(batch expreplay.Batch,
	t int) (model.Summary, error) {
	if !d.built {
		return nil, fmt.Errorf("trainstep: model not built")
	}
	if batch.Size != d.config.BatchSize {
		return nil, fmt.Errorf("trainstep: invalid batch size\n\twant(%v)"+
			"\n\thave(%v)", d.config.BatchSize, batch.Size)
	}

	// Target actions for the next states
	if err := G.Let(d.targetActorInput, tensor.New(
		tensor.WithShape(batch.Size, d.features),
		tensor.WithBacking(batch.NextStates))); err != nil {
		return nil, fmt.Errorf("trainstep: could not set target actor "+
			"input: %v", err)
	}
	if err := d.targetActorVM.RunAll(); err != nil {
		return nil, fmt.Errorf("trainstep: could not run target actor: %v",
			err)
	}
	nextActions := append([]float64{},
		d.targetActorOutVal.Data().([]float64)...)
	d.targetActorVM.Reset()

	// Target values of the next state-action pairs
	nextSA := concatRows(batch.NextStates, nextActions, batch.Size,
		d.features, d.actionDims)
	if err := G.Let(d.targetCriticInput, tensor.New(
		tensor.WithShape(batch.Size, d.features+d.actionDims),
		tensor.WithBacking(nextSA))); err != nil {
		return nil, fmt.Errorf("trainstep: could not set target critic "+
			"input: %v", err)
	}
	if err := d.targetCriticVM.RunAll(); err != nil {
		return nil, fmt.Errorf("trainstep: could not run target critic: %v",
			err)
	}
	nextQ := d.targetCriticOutVal.Data().([]float64)

	targets := make([]float64, batch.Size)
	for i := range targets {
		discount := d.config.Gamma * (1.0 - batch.Dones[i])
		targets[i] = batch.Rewards[i] + discount*nextQ[i]
	}
	d.targetCriticVM.Reset()

	// Critic update
	sa := concatRows(batch.States, batch.Actions, batch.Size, d.features,
		d.actionDims)
	if err := G.Let(d.criticInput, tensor.New(
		tensor.WithShape(batch.Size, d.features+d.actionDims),
		tensor.WithBacking(sa))); err != nil {
		return nil, fmt.Errorf("trainstep: could not set critic input: %v",
			err)
	}
	if err := G.Let(d.criticTargets, tensor.New(
		tensor.WithShape(batch.Size),
		tensor.WithBacking(targets))); err != nil {
		return nil, fmt.Errorf("trainstep: could not set critic "+
			"targets: %v", err)
	}
	if err := d.criticVM.RunAll(); err != nil {
		return nil, fmt.Errorf("trainstep: could not run critic: %v", err)
	}
	if err := d.criticSolver.Step(valueGrads(d.criticLayers)); err != nil {
		return nil, fmt.Errorf("trainstep: could not step critic "+
			"solver: %v", err)
	}
	d.criticVM.Reset()

	if err := setLayers(d.criticCopy, d.criticLayers); err != nil {
		return nil, fmt.Errorf("trainstep: could not set critic copy: %v",
			err)
	}

	// Actor update
	if err := G.Let(d.actorInput, tensor.New(
		tensor.WithShape(batch.Size, d.features),
		tensor.WithBacking(batch.States))); err != nil {
		return nil, fmt.Errorf("trainstep: could not set actor input: %v",
			err)
	}
	if err := d.actorVM.RunAll(); err != nil {
		return nil, fmt.Errorf("trainstep: could not run actor: %v", err)
	}
	if err := d.actorSolver.Step(valueGrads(d.actorLayers)); err != nil {
		return nil, fmt.Errorf("trainstep: could not step actor "+
			"solver: %v", err)
	}
	d.actorVM.Reset()

	if err := setLayers(d.actLayers, d.actorLayers); err != nil {
		return nil, fmt.Errorf("trainstep: could not set action selection "+
			"actor: %v", err)
	}

	return model.Summary{
		"critic_loss": d.criticCostVal.Data().(float64),
		"actor_loss":  d.actorCostVal.Data().(float64),
	}, nil
}

// SyncTarget moves the target networks towards the learned networks
// by Polyak averaging
func (d *DDPG) SyncTarget() error {
	if !d.built {
		return fmt.Errorf("synctarget: model not built")
	}
	if err := polyakLayers(d.targetActorLayers, d.actorLayers,
		d.config.Tau); err != nil {
		return fmt.Errorf("synctarget: could not update target actor: %v",
			err)
	}
	if err := polyakLayers(d.targetCriticLayers, d.criticLayers,
		d.config.Tau); err != nil {
		return fmt.Errorf("synctarget: could not update target critic: %v",
			err)
	}
	return nil
}

// Close releases the model's virtual machines
func (d *DDPG) Close() error {
	if !d.built {
		return nil
	}
	d.criticVM.Close()
	d.actorVM.Close()
	d.actVM.Close()
	d.targetActorVM.Close()
	d.targetCriticVM.Close()
	return nil
}

// concatRows concatenates each row of two row-major matrices
func concatRows(left, right []float64, rows, leftCols,
	rightCols int) []float64 {
	out := make([]float64, rows*(leftCols+rightCols))
	for i := 0; i < rows; i++ {
		copy(out[i*(leftCols+rightCols):], left[i*leftCols:(i+1)*leftCols])
		copy(out[i*(leftCols+rightCols)+leftCols:],
			right[i*rightCols:(i+1)*rightCols])
	}
	return out
}
