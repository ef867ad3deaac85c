// Package agent implements the off-policy training process. Training
// runs two executors in lockstep: the environment executor selects
// actions, steps the environment, and feeds the replay buffer, while
// the learning executor performs gradient updates at its cadence.
// The executors hand control back and forth over a pair of events, so
// exactly one of them runs the model at any moment.
package agent

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"gonum.org/v1/gonum/mat"

	"github.com/Baichenjia/rltf/checkpoint"
	"github.com/Baichenjia/rltf/environment"
	"github.com/Baichenjia/rltf/expreplay"
	"github.com/Baichenjia/rltf/model"
	"github.com/Baichenjia/rltf/monitor"
	ts "github.com/Baichenjia/rltf/timestep"
)

// bundleKey is the key under which the Agent stores its own state in
// a checkpoint bundle
const bundleKey string = "agent"

// agentState is the portion of the Agent persisted in checkpoints
type agentState struct {
	LearnStarted bool
	EvalRuns     int
}

// Agent drives the training of a Model on an Environment
type Agent struct {
	config Config
	model  model.Model

	trainEnv environment.Environment
	evalEnv  environment.Environment

	replay  expreplay.ExperienceReplayer
	monitor *monitor.Monitor
	logger  monitor.Logger

	// Discrete action environments store actions in the replay
	// buffer as one-hot vectors of this length
	numActions int

	// sampler selects the uniformly random warm-up actions taken
	// before the first gradient update
	sampler *environment.ActionSampler

	// Handshake between the two executors. The environment executor
	// commits envStep before setting actChosen, so the learning
	// executor and any code running between trainDone and the next
	// actChosen read a settled value.
	actChosen *event
	trainDone *event
	envStep   atomic.Int64

	failed atomic.Bool
	errMu  sync.Mutex
	errs   []error

	startStep    int
	learnStarted atomic.Bool
	evalRuns     int

	built bool
}

// New returns a new Agent. The evaluation environment must be a
// separate instance from the training environment, since evaluation
// runs while a training episode is in progress.
func New(config Config, m model.Model, trainEnv,
	evalEnv environment.Environment, replay expreplay.ExperienceReplayer,
	mon *monitor.Monitor, logger monitor.Logger) (*Agent, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}
	if m == nil {
		return nil, fmt.Errorf("new: no model given")
	}
	if trainEnv == nil || evalEnv == nil {
		return nil, fmt.Errorf("new: both a training and an evaluation " +
			"environment must be given")
	}
	if replay == nil {
		return nil, fmt.Errorf("new: no replay buffer given")
	}
	if mon == nil {
		return nil, fmt.Errorf("new: no monitor given")
	}
	if logger == nil {
		logger = monitor.DefaultLogger()
	}

	numActions := 0
	if spec := trainEnv.ActionSpec(); spec.Cardinality == environment.Discrete {
		numActions = int(spec.UpperBound.AtVec(0)) + 1
	}

	sampler, err := environment.NewActionSampler(trainEnv.ActionSpec(),
		config.Seed)
	if err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}

	return &Agent{
		config:     config,
		model:      m,
		trainEnv:   trainEnv,
		evalEnv:    evalEnv,
		replay:     replay,
		monitor:    mon,
		logger:     logger,
		numActions: numActions,
		sampler:    sampler,
		actChosen:  newEvent(),
		trainDone:  newEvent(),
		startStep:  1,
		evalRuns:   -1,
	}, nil
}

// Build constructs the model and brings the Agent into a runnable
// state. If the model directory holds a checkpoint, training state is
// restored from the most recent one and training will resume at the
// step after the checkpoint; otherwise the model is freshly
// initialized.
func (a *Agent) Build() error {
	if a.built {
		return fmt.Errorf("build: agent already built")
	}

	if err := a.model.Build(); err != nil {
		return fmt.Errorf("build: %v", err)
	}

	bundle, err := checkpoint.Latest(a.config.ModelDir)
	if err != nil {
		return fmt.Errorf("build: could not read latest checkpoint: %v", err)
	}

	if bundle == nil {
		if err := a.model.Initialize(); err != nil {
			return fmt.Errorf("build: %v", err)
		}
		a.built = true
		return nil
	}

	if err := a.model.Restore(bundle); err != nil {
		return fmt.Errorf("build: %v", err)
	}
	if err := a.monitor.Restore(bundle); err != nil {
		return fmt.Errorf("build: %v", err)
	}
	var state agentState
	if err := bundle.Get(bundleKey, &state); err != nil {
		return fmt.Errorf("build: %v", err)
	}

	a.startStep = bundle.Step + 1
	a.envStep.Store(int64(bundle.Step))
	a.learnStarted.Store(state.LearnStarted)
	a.evalRuns = state.EvalRuns
	a.logger.Infof("resuming training from step %v", a.startStep)

	a.built = true
	return nil
}

// StartStep returns the environment step training will begin at
func (a *Agent) StartStep() int {
	return a.startStep
}

// LearnStarted returns whether any gradient update has happened
func (a *Agent) LearnStarted() bool {
	return a.learnStarted.Load()
}

// Step returns the environment step most recently committed by the
// environment executor
func (a *Agent) Step() int {
	return int(a.envStep.Load())
}

// Train runs the training process from the start step through the
// configured stop step. It blocks until both executors finish and
// returns the errors that stopped them, if any.
func (a *Agent) Train() error {
	if !a.built {
		return fmt.Errorf("train: agent not built")
	}
	if a.startStep > a.config.StopStep {
		a.logger.Warningf("training already complete: start step %v is "+
			"beyond stop step %v", a.startStep, a.config.StopStep)
		return nil
	}

	a.actChosen.Clear()
	a.trainDone.Clear()
	a.failed.Store(false)
	a.envStep.Store(int64(a.startStep - 1))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		a.runEnv()
	}()
	go func() {
		defer wg.Done()
		a.trainModel()
	}()
	wg.Wait()

	a.errMu.Lock()
	defer a.errMu.Unlock()
	if len(a.errs) > 0 {
		return fmt.Errorf("train: %w", errors.Join(a.errs...))
	}
	return nil
}

// fail records err, marks the process failed, and sets both events so
// that neither executor stays blocked on its peer
func (a *Agent) fail(err error) {
	a.errMu.Lock()
	a.errs = append(a.errs, err)
	a.errMu.Unlock()

	a.failed.Store(true)
	a.actChosen.Set()
	a.trainDone.Set()
}

// runEnv is the environment executor. For every step it selects an
// action, commits the step counter, hands control to the learning
// executor, steps the environment, and waits for the learning
// executor to finish before moving on.
func (a *Agent) runEnv() {
	if a.learnStarted.Load() {
		if err := a.model.Reset(); err != nil {
			a.fail(fmt.Errorf("runenv: %v", err))
			return
		}
	}
	step := a.trainEnv.Reset()
	a.monitor.Track(step)

	for t := a.startStep; t <= a.config.StopStep; t++ {
		if a.failed.Load() {
			return
		}

		// Until the first gradient update the behaviour policy is
		// uniformly random warm-up exploration
		var action *mat.VecDense
		if a.learnStarted.Load() {
			var err error
			action, err = a.model.ActionTrain(step.Observation, t)
			if err != nil {
				a.fail(fmt.Errorf("runenv: could not select action: %v", err))
				return
			}
		} else {
			action = a.sampler.Sample()
		}

		// The counter must be committed before the learning executor
		// is woken
		a.envStep.Store(int64(t))
		a.actChosen.Set()

		next, _ := a.trainEnv.Step(action)
		if err := a.replay.Add(ts.NewTransition(step, a.replayAction(action),
			next)); err != nil {
			a.fail(fmt.Errorf("runenv: could not record transition: %v", err))
			return
		}
		a.monitor.Track(next)
		if a.learnStarted.Load() {
			a.monitor.LogStats(t)
		}

		a.trainDone.WaitAndClear()
		if a.failed.Load() {
			return
		}

		// Both executors are quiescent here: the learning executor is
		// waiting for the next actChosen. The model may only be touched
		// from this window, so evaluation, checkpointing and the
		// episode-end model reset all happen here.
		if a.config.EvalLen > 0 && t%a.config.EvalFreq == 0 {
			if err := a.eval(); err != nil {
				a.fail(fmt.Errorf("runenv: %v", err))
				return
			}
		}
		if a.config.SaveFreq > 0 && t%a.config.SaveFreq == 0 {
			if err := a.save(t); err != nil {
				a.fail(fmt.Errorf("runenv: %v", err))
				return
			}
		}

		if next.Last() {
			// Per-episode model state is cleared before the fresh
			// observation is requested
			if a.learnStarted.Load() {
				if err := a.model.Reset(); err != nil {
					a.fail(fmt.Errorf("runenv: %v", err))
					return
				}
			}
			step = a.trainEnv.Reset()
			a.monitor.Track(step)
		} else {
			step = next
		}
	}
}

// replayAction returns the form of action stored in the replay
// buffer: a one-hot vector for discrete action environments, the
// action itself otherwise
func (a *Agent) replayAction(action *mat.VecDense) mat.Vector {
	if a.numActions == 0 {
		return action
	}
	return model.OneHot(int(action.AtVec(0)), a.numActions)
}

// trainModel is the learning executor. It steps through the same
// range of environment steps as the environment executor, waiting for
// each action signal, and performs a gradient update whenever the
// step falls on the training cadence.
func (a *Agent) trainModel() {
	c := a.config
	for t := a.startStep; t <= c.StopStep; t++ {
		a.actChosen.WaitAndClear()
		if a.failed.Load() {
			return
		}

		if t < c.StartTrain || t%c.TrainFreq != 0 {
			a.trainDone.Set()
			continue
		}

		batch, err := a.replay.Sample()
		if expreplay.IsEmptyBuffer(err) ||
			expreplay.IsInsufficientSamples(err) {
			a.trainDone.Set()
			continue
		} else if err != nil {
			a.fail(fmt.Errorf("trainmodel: could not sample replay "+
				"buffer: %v", err))
			return
		}

		if _, err := a.model.TrainStep(batch, t); err != nil {
			a.fail(fmt.Errorf("trainmodel: %v", err))
			return
		}
		a.learnStarted.Store(true)

		if c.TargetUpdateFreq > 0 && t%c.TargetUpdateFreq == 0 {
			if err := a.model.SyncTarget(); err != nil {
				a.fail(fmt.Errorf("trainmodel: %v", err))
				return
			}
		}

		a.trainDone.Set()
	}
}

// eval runs one evaluation of the model on the evaluation
// environment. Evaluation runs are numbered from 0, and run r covers
// the contiguous evaluation step range [EvalLen*r + 1, EvalLen*(r+1)]
// so that ranges of successive runs never overlap, including across a
// checkpoint resume.
func (a *Agent) eval() error {
	a.evalRuns++
	start := a.config.EvalLen*a.evalRuns + 1
	stop := start + a.config.EvalLen

	a.monitor.SetMode(monitor.Eval)
	defer a.monitor.SetMode(monitor.Train)

	step := a.evalEnv.Reset()
	a.monitor.Track(step)

	for et := start; et < stop; et++ {
		action, err := a.model.ActionEval(step.Observation, et)
		if err != nil {
			return fmt.Errorf("eval: could not select action: %v", err)
		}

		next, _ := a.evalEnv.Step(action)
		a.monitor.Track(next)
		a.monitor.LogStats(et)

		if next.Last() {
			// Episodes clear per-episode model state in evaluation just
			// as in training; both executors are quiescent here
			if a.learnStarted.Load() {
				if err := a.model.Reset(); err != nil {
					return fmt.Errorf("eval: %v", err)
				}
			}
			step = a.evalEnv.Reset()
			a.monitor.Track(step)
		} else {
			step = next
		}
	}

	a.logger.Infof("eval run %v | steps [%v, %v] | mean eval reward %.2f",
		a.evalRuns, start, stop-1, a.monitor.MeanEvalReward())
	return nil
}

// save checkpoints the full training state at environment step t.
// Saving is a no-op until learning has started: there is no point in
// persisting freshly initialized weights.
func (a *Agent) save(t int) error {
	if !a.learnStarted.Load() {
		return nil
	}

	bundle := checkpoint.NewBundle(t)
	if err := a.model.Checkpoint(bundle); err != nil {
		return fmt.Errorf("save: %v", err)
	}
	if err := a.monitor.Checkpoint(bundle); err != nil {
		return fmt.Errorf("save: %v", err)
	}
	state := agentState{
		LearnStarted: a.learnStarted.Load(),
		EvalRuns:     a.evalRuns,
	}
	if err := bundle.Put(bundleKey, state); err != nil {
		return fmt.Errorf("save: %v", err)
	}

	if err := checkpoint.Write(a.config.ModelDir, bundle); err != nil {
		return fmt.Errorf("save: %v", err)
	}
	if err := a.monitor.Save(); err != nil {
		return fmt.Errorf("save: %v", err)
	}

	a.logger.Infof("saved checkpoint at step %v", t)
	return nil
}

// Save checkpoints the full training state at the current environment
// step. Save does nothing if learning has not started yet. Save must
// not be called while Train is running.
func (a *Agent) Save() error {
	if !a.built {
		return fmt.Errorf("save: agent not built")
	}
	return a.save(a.Step())
}

// Close releases the model's resources. The Agent cannot be used
// after Close.
func (a *Agent) Close() error {
	if !a.built {
		return nil
	}
	a.built = false
	return a.model.Close()
}
