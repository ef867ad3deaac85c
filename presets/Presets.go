// Package presets provides ready-made hyperparameter settings for
// each model on the classic control environments
package presets

import (
	"fmt"
	"sort"

	"github.com/Baichenjia/rltf/agent"
	"github.com/Baichenjia/rltf/environment/classiccontrol/pendulum"
	"github.com/Baichenjia/rltf/exploration"
	"github.com/Baichenjia/rltf/expreplay"
	"github.com/Baichenjia/rltf/initwfn"
	"github.com/Baichenjia/rltf/model"
	"github.com/Baichenjia/rltf/model/blr"
	"github.com/Baichenjia/rltf/model/bstrap"
	"github.com/Baichenjia/rltf/model/c51"
	"github.com/Baichenjia/rltf/model/ddpg"
	"github.com/Baichenjia/rltf/model/deepq"
	"github.com/Baichenjia/rltf/model/qrdqn"
	"github.com/Baichenjia/rltf/network"
	"github.com/Baichenjia/rltf/schedule"
	"github.com/Baichenjia/rltf/solver"
)

// Preset bundles everything needed to train one model: the agent
// configuration, the replay buffer configuration, and a constructor
// for the model itself
type Preset struct {
	// Agent holds the training loop configuration. Its ModelDir is
	// left empty and should be filled in by the caller.
	Agent agent.Config

	// Replay holds the experience replay configuration
	Replay expreplay.Config

	// ContinuousActions reports whether the model requires an
	// environment with continuous actions
	ContinuousActions bool

	// NewModel constructs the model for an environment with the given
	// observation dimensions and, for discrete action spaces, number
	// of actions
	NewModel func(features, numActions int) (model.Model, error)
}

// Get returns the preset registered under name, constructed with the
// given random seed
func Get(name string, seed uint64) (Preset, error) {
	builder, ok := registry[name]
	if !ok {
		return Preset{}, fmt.Errorf("get: no preset named %q, have %v",
			name, Names())
	}

	preset, err := builder(seed)
	if err != nil {
		return Preset{}, err
	}
	preset.Agent.Seed = seed
	return preset, nil
}

// Names returns the names of all registered presets in sorted order
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var registry = map[string]func(seed uint64) (Preset, error){
	"dqn":    func(seed uint64) (Preset, error) { return deepQ(seed, false) },
	"ddqn":   func(seed uint64) (Preset, error) { return deepQ(seed, true) },
	"c51":    categorical,
	"qrdqn":  quantile,
	"bstrap": bootstrapped,
	"blr":    bayesian,
	"ddpg":   deterministic,
}

// defaultAgent returns the training loop configuration shared by the
// classic control presets
func defaultAgent() agent.Config {
	return agent.Config{
		TrainFreq:        1,
		StartTrain:       1000,
		StopStep:         100000,
		BatchSize:        32,
		EvalFreq:         10000,
		EvalLen:          1000,
		TargetUpdateFreq: 1000,
		LogFreq:          1000,
		SaveFreq:         25000,
	}
}

// defaultReplay returns the replay buffer configuration shared by the
// classic control presets
func defaultReplay() expreplay.Config {
	return expreplay.Config{
		MaxCapacity: 50000,
		MinCapacity: 1000,
		BatchSize:   32,
	}
}

// defaultEpsilon returns the exploration schedule shared by the
// ε-greedy presets, annealing linearly from full exploration to 1%
// over the first 10000 steps
func defaultEpsilon() (schedule.Schedule, error) {
	return schedule.NewLinear(1.0, 0.01, 10000)
}

const evalEpsilon = 0.001

func deepQ(seed uint64, double bool) (Preset, error) {
	init, err := initwfn.NewGlorotU(1.0)
	if err != nil {
		return Preset{}, err
	}
	sol, err := solver.NewDefaultAdam(1e-3, 32)
	if err != nil {
		return Preset{}, err
	}
	epsilon, err := defaultEpsilon()
	if err != nil {
		return Preset{}, err
	}

	config := deepq.Config{
		HiddenSizes: []int{64, 64},
		Biases:      []bool{true, true},
		Activations: []*network.Activation{network.ReLU(), network.ReLU()},
		InitWFn:     init,
		Solver:      sol,
		Epsilon:     epsilon,
		EvalEpsilon: evalEpsilon,
		Gamma:       0.99,
		BatchSize:   32,
		Double:      double,
		Huber:       true,
		HuberDelta:  1.0,
		Seed:        seed,
	}

	return Preset{
		Agent:  defaultAgent(),
		Replay: defaultReplay(),
		NewModel: func(features, numActions int) (model.Model, error) {
			return config.Create(features, numActions)
		},
	}, nil
}

func quantile(seed uint64) (Preset, error) {
	init, err := initwfn.NewGlorotU(1.0)
	if err != nil {
		return Preset{}, err
	}
	sol, err := solver.NewDefaultAdam(1e-3, 32)
	if err != nil {
		return Preset{}, err
	}
	epsilon, err := defaultEpsilon()
	if err != nil {
		return Preset{}, err
	}

	config := qrdqn.Config{
		HiddenSizes:  []int{64, 64},
		Biases:       []bool{true, true},
		Activations:  []*network.Activation{network.ReLU(), network.ReLU()},
		InitWFn:      init,
		Solver:       sol,
		NumQuantiles: 50,
		HuberDelta:   1.0,
		Epsilon:      epsilon,
		EvalEpsilon:  evalEpsilon,
		Gamma:        0.99,
		BatchSize:    32,
		Seed:         seed,
	}

	return Preset{
		Agent:  defaultAgent(),
		Replay: defaultReplay(),
		NewModel: func(features, numActions int) (model.Model, error) {
			return config.Create(features, numActions)
		},
	}, nil
}

func categorical(seed uint64) (Preset, error) {
	init, err := initwfn.NewGlorotU(1.0)
	if err != nil {
		return Preset{}, err
	}
	sol, err := solver.NewDefaultAdam(1e-3, 32)
	if err != nil {
		return Preset{}, err
	}
	epsilon, err := defaultEpsilon()
	if err != nil {
		return Preset{}, err
	}

	config := c51.Config{
		HiddenSizes: []int{64, 64},
		Biases:      []bool{true, true},
		Activations: []*network.Activation{network.ReLU(), network.ReLU()},
		InitWFn:     init,
		Solver:      sol,
		NumAtoms:    51,
		VMin:        -10.0,
		VMax:        10.0,
		Epsilon:     epsilon,
		EvalEpsilon: evalEpsilon,
		Gamma:       0.99,
		BatchSize:   32,
		Seed:        seed,
	}

	return Preset{
		Agent:  defaultAgent(),
		Replay: defaultReplay(),
		NewModel: func(features, numActions int) (model.Model, error) {
			return config.Create(features, numActions)
		},
	}, nil
}

func bootstrapped(seed uint64) (Preset, error) {
	init, err := initwfn.NewGlorotU(1.0)
	if err != nil {
		return Preset{}, err
	}
	sol, err := solver.NewDefaultAdam(1e-3, 32)
	if err != nil {
		return Preset{}, err
	}
	epsilon, err := defaultEpsilon()
	if err != nil {
		return Preset{}, err
	}

	config := bstrap.Config{
		HiddenSizes: []int{64, 64},
		Biases:      []bool{true, true},
		Activations: []*network.Activation{network.ReLU(), network.ReLU()},
		InitWFn:     init,
		Solver:      sol,
		NumHeads:    10,
		MaskProb:    0.6,
		Epsilon:     epsilon,
		EvalEpsilon: evalEpsilon,
		Gamma:       0.99,
		BatchSize:   32,
		Huber:       true,
		HuberDelta:  1.0,
		Seed:        seed,
	}

	return Preset{
		Agent:  defaultAgent(),
		Replay: defaultReplay(),
		NewModel: func(features, numActions int) (model.Model, error) {
			return config.Create(features, numActions)
		},
	}, nil
}

func bayesian(seed uint64) (Preset, error) {
	init, err := initwfn.NewGlorotU(1.0)
	if err != nil {
		return Preset{}, err
	}
	sol, err := solver.NewDefaultAdam(1e-3, 32)
	if err != nil {
		return Preset{}, err
	}

	config := blr.Config{
		HiddenSizes: []int{64, 64},
		Biases:      []bool{true, true},
		Activations: []*network.Activation{network.ReLU(), network.ReLU()},
		InitWFn:     init,
		Solver:      sol,
		FeatureSize: 64,
		SigmaNoise:  1.0,
		SigmaPrior:  10.0,
		Gamma:       0.99,
		BatchSize:   32,
		Seed:        seed,
	}

	return Preset{
		Agent:  defaultAgent(),
		Replay: defaultReplay(),
		NewModel: func(features, numActions int) (model.Model, error) {
			return config.Create(features, numActions)
		},
	}, nil
}

func deterministic(seed uint64) (Preset, error) {
	init, err := initwfn.NewGlorotU(1.0)
	if err != nil {
		return Preset{}, err
	}
	actorSol, err := solver.NewDefaultAdam(1e-4, 32)
	if err != nil {
		return Preset{}, err
	}
	criticSol, err := solver.NewDefaultAdam(1e-3, 32)
	if err != nil {
		return Preset{}, err
	}
	decay, err := schedule.NewLinear(1.0, 0.1, 50000)
	if err != nil {
		return Preset{}, err
	}

	noise := exploration.NewDecayed(
		exploration.NewOrnsteinUhlenbeck(pendulum.ActionDims, 0.0, 0.2,
			0.15, 1.0, seed),
		decay,
	)

	config := ddpg.Config{
		ActorHiddenSizes:  []int{64, 64},
		ActorBiases:       []bool{true, true},
		ActorActivations:  []*network.Activation{network.ReLU(), network.ReLU()},
		ActorSolver:       actorSol,
		CriticHiddenSizes: []int{64, 64},
		CriticBiases:      []bool{true, true},
		CriticActivations: []*network.Activation{network.ReLU(), network.ReLU()},
		CriticSolver:      criticSol,
		InitWFn:           init,
		Noise:             noise,
		MinAction:         []float64{pendulum.MinContinuousAction},
		MaxAction:         []float64{pendulum.MaxContinuousAction},
		Tau:               0.01,
		Gamma:             0.99,
		BatchSize:         32,
		Seed:              seed,
	}

	preset := Preset{
		Agent:             defaultAgent(),
		Replay:            defaultReplay(),
		ContinuousActions: true,
		NewModel: func(features, _ int) (model.Model, error) {
			return config.Create(features)
		},
	}

	// The target networks track the online networks by Polyak
	// averaging on every update
	preset.Agent.TargetUpdateFreq = 1

	return preset, nil
}
