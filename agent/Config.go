package agent

import "fmt"

// Config implements a configuration of the training process
type Config struct {
	// TrainFreq is the number of environment steps between gradient
	// updates. StartTrain is the environment step at which gradient
	// updates begin: updates happen at every step t >= StartTrain
	// with t divisible by TrainFreq.
	TrainFreq  int
	StartTrain int

	// StopStep is the last environment step of training
	StopStep int

	// BatchSize is the number of transitions per gradient update
	BatchSize int

	// EvalFreq is the number of environment steps between evaluation
	// runs, and EvalLen the number of evaluation steps per run. An
	// EvalLen <= 0 disables evaluation.
	EvalFreq int
	EvalLen  int

	// TargetUpdateFreq is the number of environment steps between
	// target network updates. A TargetUpdateFreq <= 0 disables them,
	// for models that update their targets every gradient step.
	TargetUpdateFreq int

	// LogFreq is the number of environment steps between progress
	// log lines. SaveFreq is the number of environment steps between
	// checkpoints; a SaveFreq <= 0 disables periodic checkpoints.
	LogFreq  int
	SaveFreq int

	// ModelDir is the directory checkpoints and statistics are
	// written to
	ModelDir string

	// Seed seeds the warm-up exploration, which selects uniformly
	// random actions until the first gradient update has happened
	Seed uint64
}

// Validate returns an error describing why the configuration cannot
// be used for training
func (c Config) Validate() error {
	if c.TrainFreq < 1 {
		return fmt.Errorf("validate: train frequency must be at least 1 "+
			"\n\thave(%v)", c.TrainFreq)
	}
	if c.StartTrain < 0 {
		return fmt.Errorf("validate: start train must be non-negative "+
			"\n\thave(%v)", c.StartTrain)
	}
	if c.StopStep <= c.StartTrain {
		return fmt.Errorf("validate: stop step must be greater than start "+
			"train \n\twant(> %v)\n\thave(%v)", c.StartTrain, c.StopStep)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("validate: batch size must be at least 1 "+
			"\n\thave(%v)", c.BatchSize)
	}
	if c.EvalLen > 0 && c.EvalFreq <= 0 {
		return fmt.Errorf("validate: evaluation of length %v requires a "+
			"positive evaluation frequency \n\thave(%v)", c.EvalLen,
			c.EvalFreq)
	}
	if c.SaveFreq > 0 && c.ModelDir == "" {
		return fmt.Errorf("validate: periodic checkpoints require a " +
			"model directory")
	}
	return nil
}
