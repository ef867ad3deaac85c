// Command rltf trains a reinforcement learning model on a classic
// control environment, periodically evaluating the learned policy and
// checkpointing progress so that interrupted runs can be resumed.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"gonum.org/v1/gonum/spatial/r1"

	"github.com/Baichenjia/rltf/agent"
	env "github.com/Baichenjia/rltf/environment"
	"github.com/Baichenjia/rltf/environment/classiccontrol/cartpole"
	"github.com/Baichenjia/rltf/environment/classiccontrol/pendulum"
	"github.com/Baichenjia/rltf/monitor"
	"github.com/Baichenjia/rltf/presets"
	"github.com/Baichenjia/rltf/utils/progressbar"
)

func main() {
	var (
		algorithm = flag.String("algorithm", "dqn",
			fmt.Sprintf("algorithm to train %v", presets.Names()))
		modelDir = flag.String("model-dir", "",
			"directory checkpoints and statistics are written to "+
				"(default ./data/<algorithm>)")
		seed  = flag.Uint64("seed", 192382, "random seed")
		steps = flag.Int("steps", 0,
			"total environment steps (0 uses the preset's default)")
	)
	flag.Parse()

	if err := run(*algorithm, *modelDir, *seed, *steps); err != nil {
		fmt.Fprintf(os.Stderr, "rltf: %v\n", err)
		os.Exit(1)
	}
}

func run(algorithm, modelDir string, seed uint64, steps int) error {
	preset, err := presets.Get(algorithm, seed)
	if err != nil {
		return err
	}

	if modelDir == "" {
		modelDir = "./data/" + algorithm
	}
	if err := os.MkdirAll(modelDir, 0o755); err != nil {
		return err
	}
	preset.Agent.ModelDir = modelDir
	if steps > 0 {
		preset.Agent.StopStep = steps
	}

	trainEnv, evalEnv := newEnvs(preset.ContinuousActions, seed)

	features := trainEnv.ObservationSpec().Shape.Len()
	numActions := 0
	if actionSpec := trainEnv.ActionSpec(); actionSpec.Cardinality == env.Discrete {
		numActions = int(actionSpec.UpperBound.AtVec(0)) + 1
	}

	m, err := preset.NewModel(features, numActions)
	if err != nil {
		return err
	}

	replay, err := preset.Replay.Create(features, actionSize(trainEnv),
		seed)
	if err != nil {
		return err
	}

	logger := monitor.DefaultLogger()
	mon := monitor.New(modelDir, preset.Agent.LogFreq, logger)
	mon.DefineLogInfo(monitor.LogField{
		Name:   "replay fill",
		Format: "%.0f",
		Value:  func(int) float64 { return float64(replay.Capacity()) },
	})

	a, err := agent.New(preset.Agent, m, trainEnv, evalEnv, replay, mon,
		logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Build(); err != nil {
		return err
	}

	bar := progressbar.New(50, a.StartStep()-1, preset.Agent.StopStep,
		time.Second, false)
	mon.AttachProgress(bar)
	bar.Display()
	defer bar.Close()

	logger.Infof("training %v for steps %d..%d", algorithm, a.StartStep(),
		preset.Agent.StopStep)

	if err := a.Train(); err != nil {
		return err
	}

	return a.Save()
}

// newEnvs constructs independent training and evaluation instances of
// the classic control environment matching the model's action space,
// balancing Cartpole for discrete actions and the Pendulum swing-up
// for continuous ones
func newEnvs(continuous bool, seed uint64) (env.Environment,
	env.Environment) {
	if continuous {
		return newPendulum(seed), newPendulum(seed + 1)
	}
	return newCartpole(seed), newCartpole(seed + 1)
}

func newCartpole(seed uint64) env.Environment {
	bounds := r1.Interval{Min: -0.05, Max: 0.05}
	starter := env.NewUniformStarter([]r1.Interval{bounds, bounds, bounds,
		bounds}, seed)
	task := cartpole.NewBalance(starter, 500, cartpole.FailAngle)

	e, _ := cartpole.New(task, 1.0)
	return e
}

func newPendulum(seed uint64) env.Environment {
	angleBounds := r1.Interval{Min: -pendulum.AngleBound,
		Max: pendulum.AngleBound}
	speedBounds := r1.Interval{Min: -1.0, Max: 1.0}
	starter := env.NewUniformStarter([]r1.Interval{angleBounds,
		speedBounds}, seed)
	task := pendulum.NewSwingUp(starter, 200)

	e, _ := pendulum.New(task, 1.0)
	return e
}

// actionSize returns the length of the action vectors stored in the
// replay buffer: the one-hot length for discrete action spaces and
// the action dimension otherwise
func actionSize(e env.Environment) int {
	actionSpec := e.ActionSpec()
	if actionSpec.Cardinality == env.Discrete {
		return int(actionSpec.UpperBound.AtVec(0)) + 1
	}
	return actionSpec.Shape.Len()
}
