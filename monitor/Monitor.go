// Package monitor tracks episodic statistics during training and
// evaluation and periodically logs them. A Monitor accumulates the
// return of each episode from the stream of TimeSteps it is shown,
// keeping training and evaluation episodes separate, and renders a
// summary line every LogFreq environment steps.
package monitor

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Baichenjia/rltf/checkpoint"
	ts "github.com/Baichenjia/rltf/timestep"
)

// Mode determines which statistics a Monitor accumulates into
type Mode int

const (
	// Train accumulates statistics of training episodes
	Train Mode = iota

	// Eval accumulates statistics of evaluation episodes
	Eval
)

// String implements the fmt.Stringer interface
func (m Mode) String() string {
	switch m {
	case Train:
		return "Train"
	case Eval:
		return "Eval"
	default:
		return "Unknown"
	}
}

// meanRewardWindow is the number of most recent episodes that the
// mean episode reward is computed over
const meanRewardWindow int = 100

// bundleKey is the key under which a Monitor stores its state in a
// checkpoint bundle
const bundleKey string = "monitor"

// LogField is a named value rendered on each summary line, in
// addition to the fields the Monitor always logs. Value is called
// with the current environment step.
type LogField struct {
	Name   string
	Format string
	Value  func(t int) float64
}

// monitorState is the portion of a Monitor persisted in checkpoints.
// The episode in progress at save time is not persisted: the
// environment restarts a fresh episode on resume, so a partial return
// could never be completed.
type monitorState struct {
	TrainReturns []float64
	EvalReturns  []float64
	Episodes     int
}

// accumulator tracks the return of the episode in progress under one
// mode
type accumulator struct {
	lastTimeStep  int
	currentReturn float64
}

// Monitor accumulates episodic returns and logs training progress
type Monitor struct {
	mode Mode

	// One accumulator per mode, so an evaluation run can interleave
	// with a training episode without losing the training episode's
	// partial return
	accums       [2]accumulator
	trainReturns []float64
	evalReturns  []float64
	episodes     int

	dir      string
	logFreq  int
	fields   []LogField
	logger   Logger
	progress Progress
}

// Progress is notified once per tracked training environment step.
// It is implemented by progressbar.ProgressBar.
type Progress interface {
	Increment()
}

// New returns a new Monitor in training mode. Episodic return data is
// saved under dir, and a summary line is logged every logFreq calls
// to LogStats. A logFreq <= 0 disables periodic logging.
func New(dir string, logFreq int, logger Logger) *Monitor {
	if logger == nil {
		logger = DefaultLogger()
	}
	m := &Monitor{
		mode:    Train,
		dir:     dir,
		logFreq: logFreq,
		logger:  logger,
	}
	m.accums[Train] = accumulator{lastTimeStep: -1}
	m.accums[Eval] = accumulator{lastTimeStep: -1}
	return m
}

// Mode returns the mode the Monitor currently accumulates into
func (m *Monitor) Mode() Mode {
	return m.mode
}

// AttachProgress registers a progress indicator that is incremented
// once per tracked training environment step
func (m *Monitor) AttachProgress(p Progress) {
	m.progress = p
}

// SetMode switches the Monitor between training and evaluation
// accumulation. Entering evaluation mode discards any partial
// evaluation episode; the training accumulator is left intact so that
// a training episode can resume after the evaluation run.
func (m *Monitor) SetMode(mode Mode) {
	m.mode = mode
	if mode == Eval {
		m.accums[Eval] = accumulator{lastTimeStep: -1}
	}
}

// Track accumulates the reward of step into the current episode's
// return. When step ends the episode, the return is recorded under
// the current mode and accumulation restarts for the next episode.
//
// Track panics if it is called for non-sequential timesteps
func (m *Monitor) Track(step ts.TimeStep) {
	if m.mode == Train && m.progress != nil && !step.First() {
		m.progress.Increment()
	}

	accum := &m.accums[m.mode]
	if accum.lastTimeStep+1 != step.Number {
		msg := fmt.Sprintf("track: last two timesteps tracked are not "+
			"sequential: timestep %v --> timestep %v were tracked",
			accum.lastTimeStep, step.Number)
		panic(msg)
	}

	accum.currentReturn += step.Reward
	if !step.Last() {
		accum.lastTimeStep = step.Number
		return
	}

	// Episode has ended, record its return and begin accumulating the
	// next episode
	switch m.mode {
	case Train:
		m.trainReturns = append(m.trainReturns, accum.currentReturn)
		m.episodes++
	case Eval:
		m.evalReturns = append(m.evalReturns, accum.currentReturn)
	}
	*accum = accumulator{lastTimeStep: -1}
}

// Episodes returns the number of completed training episodes
func (m *Monitor) Episodes() int {
	return m.episodes
}

// MeanEpisodeReward returns the mean return of the most recent
// training episodes. NaN-free: returns 0 when no episode has finished.
func (m *Monitor) MeanEpisodeReward() float64 {
	return mean(tail(m.trainReturns, meanRewardWindow))
}

// MeanEvalReward returns the mean return of the most recent
// evaluation episodes
func (m *Monitor) MeanEvalReward() float64 {
	return mean(tail(m.evalReturns, meanRewardWindow))
}

// DefineLogInfo registers additional fields to render on each summary
// line
func (m *Monitor) DefineLogInfo(fields ...LogField) {
	m.fields = append(m.fields, fields...)
}

// LogStats renders a summary line for environment step t when t falls
// on the logging cadence
func (m *Monitor) LogStats(t int) {
	if m.logFreq <= 0 || t%m.logFreq != 0 {
		return
	}

	line := fmt.Sprintf("step %d | episodes %d | mean reward %.2f",
		t, m.episodes, m.MeanEpisodeReward())
	if len(m.evalReturns) > 0 {
		line += fmt.Sprintf(" | mean eval reward %.2f", m.MeanEvalReward())
	}
	for _, field := range m.fields {
		format := field.Format
		if format == "" {
			format = "%.4f"
		}
		line += fmt.Sprintf(" | %v "+format, field.Name, field.Value(t))
	}
	m.logger.Infof("%v", line)
}

// Save writes the accumulated episodic returns to disk under the
// Monitor's directory
func (m *Monitor) Save() error {
	if err := os.MkdirAll(m.dir, 0755); err != nil {
		return fmt.Errorf("save: could not create directory: %v", err)
	}

	files := map[string][]float64{
		"train_returns.bin": m.trainReturns,
		"eval_returns.bin":  m.evalReturns,
	}
	for name, data := range files {
		file, err := os.Create(filepath.Join(m.dir, name))
		if err != nil {
			return fmt.Errorf("save: could not create %v: %v", name, err)
		}
		err = gob.NewEncoder(file).Encode(data)
		file.Close()
		if err != nil {
			return fmt.Errorf("save: could not encode %v: %v", name, err)
		}
	}
	return nil
}

// Checkpoint stores the Monitor's state in b
func (m *Monitor) Checkpoint(b *checkpoint.Bundle) error {
	state := monitorState{
		TrainReturns: m.trainReturns,
		EvalReturns:  m.evalReturns,
		Episodes:     m.episodes,
	}
	return b.Put(bundleKey, state)
}

// Restore replaces the Monitor's state with the state stored in b
func (m *Monitor) Restore(b *checkpoint.Bundle) error {
	var state monitorState
	if err := b.Get(bundleKey, &state); err != nil {
		return fmt.Errorf("restore: %v", err)
	}
	m.trainReturns = state.TrainReturns
	m.evalReturns = state.EvalReturns
	m.accums[Train] = accumulator{lastTimeStep: -1}
	m.accums[Eval] = accumulator{lastTimeStep: -1}
	m.episodes = state.Episodes
	return nil
}

// tail returns the last n elements of data
func tail(data []float64, n int) []float64 {
	if len(data) > n {
		return data[len(data)-n:]
	}
	return data
}

// mean returns the arithmetic mean of data, or 0 for empty data
func mean(data []float64) float64 {
	if len(data) == 0 {
		return 0.0
	}
	var sum float64
	for _, v := range data {
		sum += v
	}
	return sum / float64(len(data))
}
