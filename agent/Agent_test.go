package agent_test

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/Baichenjia/rltf/agent"
	"github.com/Baichenjia/rltf/checkpoint"
	env "github.com/Baichenjia/rltf/environment"
	"github.com/Baichenjia/rltf/expreplay"
	"github.com/Baichenjia/rltf/model"
	"github.com/Baichenjia/rltf/monitor"
	ts "github.com/Baichenjia/rltf/timestep"
)

// stubEnv is a deterministic Environment with a two-action discrete
// action space whose episodes end after a fixed number of steps
type stubEnv struct {
	episodeLen int
	lastStep   ts.TimeStep
}

func newStubEnv(episodeLen int) *stubEnv {
	return &stubEnv{episodeLen: episodeLen}
}

func (s *stubEnv) Start() *mat.VecDense { return mat.NewVecDense(2, nil) }

func (s *stubEnv) End(t *ts.TimeStep) bool {
	if t.Number >= s.episodeLen {
		t.StepType = ts.Last
		return true
	}
	return false
}

func (s *stubEnv) GetReward(_, _, _ mat.Vector) float64 { return 1.0 }

func (s *stubEnv) AtGoal(_ mat.Matrix) bool { return false }

func (s *stubEnv) Reset() ts.TimeStep {
	s.lastStep = ts.New(ts.First, 0, 1.0, s.Start(), 0)
	return s.lastStep
}

func (s *stubEnv) Step(a mat.Vector) (ts.TimeStep, bool) {
	obs := mat.NewVecDense(2, []float64{a.AtVec(0),
		float64(s.lastStep.Number + 1)})
	next := ts.New(ts.Mid, s.GetReward(nil, nil, nil), 1.0, obs,
		s.lastStep.Number+1)
	s.End(&next)
	s.lastStep = next
	return next, next.Last()
}

func (s *stubEnv) RewardSpec() env.Spec {
	bound := mat.NewVecDense(1, []float64{1.0})
	return env.NewSpec(mat.NewVecDense(1, nil), env.Reward, bound, bound,
		env.Continuous)
}

func (s *stubEnv) DiscountSpec() env.Spec {
	bound := mat.NewVecDense(1, []float64{1.0})
	return env.NewSpec(mat.NewVecDense(1, nil), env.Discount, bound, bound,
		env.Continuous)
}

func (s *stubEnv) ObservationSpec() env.Spec {
	lower := mat.NewVecDense(2, nil)
	upper := mat.NewVecDense(2, []float64{1.0, 1.0})
	return env.NewSpec(mat.NewVecDense(2, nil), env.Observation, lower,
		upper, env.Continuous)
}

func (s *stubEnv) ActionSpec() env.Spec {
	lower := mat.NewVecDense(1, []float64{0})
	upper := mat.NewVecDense(1, []float64{1})
	return env.NewSpec(mat.NewVecDense(1, nil), env.Action, lower, upper,
		env.Discrete)
}

// stubModel records the steps at which each Model method was called
type stubModel struct {
	mu sync.Mutex

	actionTrainSteps []int
	actionEvalSteps  []int
	trainSteps       []int
	syncSteps        []int
	batchSizes       []int
	resets           int
	initialized      bool
	restored         bool

	// trainInFlight is true while a TrainStep call is executing, and
	// resetsDuringTrain counts Reset calls that overlapped one
	trainInFlight     bool
	resetsDuringTrain int
}

func (s *stubModel) Build() error      { return nil }
func (s *stubModel) Initialize() error { s.initialized = true; return nil }

func (s *stubModel) Restore(b *checkpoint.Bundle) error {
	var marker string
	if err := b.Get("stubmodel", &marker); err != nil {
		return err
	}
	s.restored = true
	return nil
}

func (s *stubModel) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.trainInFlight {
		s.resetsDuringTrain++
	}
	s.resets++
	return nil
}

func (s *stubModel) ActionTrain(_ mat.Vector, t int) (*mat.VecDense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actionTrainSteps = append(s.actionTrainSteps, t)
	return mat.NewVecDense(1, []float64{0}), nil
}

func (s *stubModel) ActionEval(_ mat.Vector, t int) (*mat.VecDense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actionEvalSteps = append(s.actionEvalSteps, t)
	return mat.NewVecDense(1, []float64{1}), nil
}

func (s *stubModel) TrainStep(batch expreplay.Batch, t int) (model.Summary,
	error) {
	// Hold the in-flight marker across a short sleep so that any
	// concurrent Reset is caught even with fast environment steps
	s.mu.Lock()
	s.trainInFlight = true
	s.mu.Unlock()
	time.Sleep(time.Millisecond)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.trainInFlight = false
	s.trainSteps = append(s.trainSteps, t)
	s.batchSizes = append(s.batchSizes, batch.Size)

	// The environment executor commits its step counter before waking
	// the learning executor, so both must agree on the current step.
	// The model sees no action requests during warm-up, so the very
	// first update may run before any ActionTrain call.
	if len(s.actionTrainSteps) > 0 {
		if last := s.actionTrainSteps[len(s.actionTrainSteps)-1]; last != t {
			panic("train step ran at a different step than the last " +
				"chosen action")
		}
	}
	return model.Summary{"loss": 0}, nil
}

func (s *stubModel) SyncTarget() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	last := 0
	if len(s.trainSteps) > 0 {
		last = s.trainSteps[len(s.trainSteps)-1]
	}
	s.syncSteps = append(s.syncSteps, last)
	return nil
}

func (s *stubModel) Checkpoint(b *checkpoint.Bundle) error {
	return b.Put("stubmodel", "weights")
}

func (s *stubModel) Close() error { return nil }

func newTestAgent(t *testing.T, config agent.Config,
	m *stubModel) *agent.Agent {
	t.Helper()

	replayConfig := expreplay.Config{
		MaxCapacity: 100,
		MinCapacity: 2,
		BatchSize:   config.BatchSize,
	}
	replay, err := replayConfig.Create(2, 2, 1)
	if err != nil {
		t.Fatalf("could not create replay buffer: %v", err)
	}

	mon := monitor.New(config.ModelDir, 0, monitor.Discard())

	a, err := agent.New(config, m, newStubEnv(7), newStubEnv(7), replay,
		mon, monitor.Discard())
	if err != nil {
		t.Fatalf("could not create agent: %v", err)
	}
	if err := a.Build(); err != nil {
		t.Fatalf("could not build agent: %v", err)
	}
	return a
}

func TestTrainStepCadence(t *testing.T) {
	m := &stubModel{}
	a := newTestAgent(t, agent.Config{
		TrainFreq:        4,
		StartTrain:       10,
		StopStep:         20,
		BatchSize:        2,
		TargetUpdateFreq: 10,
		ModelDir:         t.TempDir(),
	}, m)
	defer a.Close()

	if err := a.Train(); err != nil {
		t.Fatalf("train: %v", err)
	}

	want := []int{12, 16, 20}
	if len(m.trainSteps) != len(want) {
		t.Fatalf("wrong number of gradient updates\n\twant(%v)\n\thave(%v)",
			want, m.trainSteps)
	}
	for i, step := range want {
		if m.trainSteps[i] != step {
			t.Errorf("gradient update %v at wrong step\n\twant(%v)"+
				"\n\thave(%v)", i, step, m.trainSteps[i])
		}
		if m.batchSizes[i] != 2 {
			t.Errorf("update %v used wrong batch size\n\twant(%v)"+
				"\n\thave(%v)", i, 2, m.batchSizes[i])
		}
	}

	// The target network is synchronized only on a gradient update
	// step falling on the target update cadence: t = 10 is not a
	// gradient update step, so only t = 20 qualifies
	if len(m.syncSteps) != 1 || m.syncSteps[0] != 20 {
		t.Errorf("wrong target sync steps\n\twant(%v)\n\thave(%v)",
			[]int{20}, m.syncSteps)
	}

	if !a.LearnStarted() {
		t.Error("learnStarted should be true after gradient updates")
	}
	if a.Step() != 20 {
		t.Errorf("wrong final step\n\twant(%v)\n\thave(%v)", 20, a.Step())
	}
}

func TestWarmupThenModelActions(t *testing.T) {
	m := &stubModel{}
	a := newTestAgent(t, agent.Config{
		TrainFreq:  4,
		StartTrain: 10,
		StopStep:   20,
		BatchSize:  2,
		ModelDir:   t.TempDir(),
	}, m)
	defer a.Close()

	if err := a.Train(); err != nil {
		t.Fatalf("train: %v", err)
	}

	// The first gradient update happens at t = 12, so steps 1..12 are
	// warm-up exploration and the model chooses actions from t = 13 on
	if len(m.actionTrainSteps) != 8 {
		t.Fatalf("wrong number of model-chosen actions\n\twant(%v)"+
			"\n\thave(%v)", 8, m.actionTrainSteps)
	}
	for i, step := range m.actionTrainSteps {
		if step != 13+i {
			t.Fatalf("model-chosen actions not sequential from 13: %v",
				m.actionTrainSteps)
		}
	}
}

func TestEpisodeResetWaitsForTrainStep(t *testing.T) {
	m := &stubModel{}
	a := newTestAgent(t, agent.Config{
		TrainFreq:  1,
		StartTrain: 2,
		StopStep:   40,
		BatchSize:  2,
		ModelDir:   t.TempDir(),
	}, m)
	defer a.Close()

	if err := a.Train(); err != nil {
		t.Fatalf("train: %v", err)
	}

	// Episodes end at t = 7, 14, 21, 28 and 35, all after learning
	// started at t = 2
	if m.resets != 5 {
		t.Fatalf("wrong number of episode-end model resets\n\twant(%v)"+
			"\n\thave(%v)", 5, m.resets)
	}

	// The model may only be reset from the quiescent window between
	// handshakes, never while a gradient update is running
	if m.resetsDuringTrain != 0 {
		t.Errorf("model reset ran %v times while a training step was in "+
			"flight", m.resetsDuringTrain)
	}
}

func TestEvalEpisodesResetModel(t *testing.T) {
	m := &stubModel{}
	a := newTestAgent(t, agent.Config{
		TrainFreq:  1,
		StartTrain: 2,
		StopStep:   20,
		BatchSize:  2,
		EvalFreq:   10,
		EvalLen:    8,
		ModelDir:   t.TempDir(),
	}, m)
	defer a.Close()

	if err := a.Train(); err != nil {
		t.Fatalf("train: %v", err)
	}

	// Training episodes end at t = 7 and 14, and each of the two
	// evaluation runs completes one 7-step episode of its own
	if m.resets != 4 {
		t.Errorf("wrong number of model resets\n\twant(%v)\n\thave(%v)",
			4, m.resets)
	}
	if m.resetsDuringTrain != 0 {
		t.Errorf("model reset ran %v times while a training step was in "+
			"flight", m.resetsDuringTrain)
	}
}

func TestSaveAndResume(t *testing.T) {
	dir := t.TempDir()
	config := agent.Config{
		TrainFreq:  1,
		StartTrain: 10,
		StopStep:   100,
		BatchSize:  2,
		SaveFreq:   100,
		ModelDir:   dir,
	}

	m := &stubModel{}
	a := newTestAgent(t, config, m)
	if err := a.Train(); err != nil {
		t.Fatalf("train: %v", err)
	}
	a.Close()

	if !m.initialized {
		t.Error("fresh agent should initialize its model")
	}

	resumed := &stubModel{}
	config.StopStep = 200
	b := newTestAgent(t, config, resumed)
	defer b.Close()

	if !resumed.restored {
		t.Error("resumed agent should restore its model from the checkpoint")
	}
	if resumed.initialized {
		t.Error("resumed agent should not reinitialize its model")
	}
	if b.StartStep() != 101 {
		t.Errorf("wrong resumed start step\n\twant(%v)\n\thave(%v)",
			101, b.StartStep())
	}
	if !b.LearnStarted() {
		t.Error("learnStarted should survive a checkpoint resume")
	}

	if err := b.Train(); err != nil {
		t.Fatalf("resumed train: %v", err)
	}
	if len(resumed.actionTrainSteps) != 100 {
		t.Fatalf("resumed run took wrong number of steps\n\twant(%v)"+
			"\n\thave(%v)", 100, len(resumed.actionTrainSteps))
	}
	if resumed.actionTrainSteps[0] != 101 {
		t.Errorf("resumed run started at wrong step\n\twant(%v)\n\thave(%v)",
			101, resumed.actionTrainSteps[0])
	}
}

func TestSaveBeforeLearningIsNoOp(t *testing.T) {
	dir := t.TempDir()
	m := &stubModel{}

	// The replay buffer never reaches its minimum capacity within the
	// run, so no gradient update can happen
	replayConfig := expreplay.Config{
		MaxCapacity: 100,
		MinCapacity: 50,
		BatchSize:   2,
	}
	replay, err := replayConfig.Create(2, 2, 1)
	if err != nil {
		t.Fatalf("could not create replay buffer: %v", err)
	}

	mon := monitor.New(dir, 0, monitor.Discard())
	a, err := agent.New(agent.Config{
		TrainFreq:  1,
		StartTrain: 5,
		StopStep:   20,
		BatchSize:  2,
		SaveFreq:   5,
		ModelDir:   dir,
	}, m, newStubEnv(7), newStubEnv(7), replay, mon, monitor.Discard())
	if err != nil {
		t.Fatalf("could not create agent: %v", err)
	}
	if err := a.Build(); err != nil {
		t.Fatalf("could not build agent: %v", err)
	}
	defer a.Close()

	if err := a.Train(); err != nil {
		t.Fatalf("train: %v", err)
	}
	if a.LearnStarted() {
		t.Fatal("learning should never start below the replay minimum")
	}
	if err := a.Save(); err != nil {
		t.Fatalf("save: %v", err)
	}

	// No gradient update ever ran, so no checkpoint should exist
	bundle, err := checkpoint.Latest(dir)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if bundle != nil {
		t.Errorf("saving before learning started should write nothing, "+
			"found a checkpoint at step %v", bundle.Step)
	}
}

func TestTrainAlreadyComplete(t *testing.T) {
	dir := t.TempDir()
	config := agent.Config{
		TrainFreq:  1,
		StartTrain: 10,
		StopStep:   50,
		BatchSize:  2,
		SaveFreq:   50,
		ModelDir:   dir,
	}

	m := &stubModel{}
	a := newTestAgent(t, config, m)
	if err := a.Train(); err != nil {
		t.Fatalf("train: %v", err)
	}
	a.Close()

	resumed := &stubModel{}
	b := newTestAgent(t, config, resumed)
	defer b.Close()

	if err := b.Train(); err != nil {
		t.Fatalf("train beyond stop step should be a no-op, got: %v", err)
	}
	if len(resumed.actionTrainSteps) != 0 {
		t.Errorf("no environment steps should run beyond the stop step, "+
			"ran %v", len(resumed.actionTrainSteps))
	}
}

func TestEvalRuns(t *testing.T) {
	m := &stubModel{}
	a := newTestAgent(t, agent.Config{
		TrainFreq:  1,
		StartTrain: 5,
		StopStep:   20,
		BatchSize:  2,
		EvalFreq:   5,
		EvalLen:    3,
		ModelDir:   t.TempDir(),
	}, m)
	defer a.Close()

	if err := a.Train(); err != nil {
		t.Fatalf("train: %v", err)
	}

	// Four evaluation runs at t = 5, 10, 15, 20, each covering the
	// next contiguous range of evaluation steps
	want := []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
	if len(m.actionEvalSteps) != len(want) {
		t.Fatalf("wrong evaluation steps\n\twant(%v)\n\thave(%v)",
			want, m.actionEvalSteps)
	}
	for i := range want {
		if m.actionEvalSteps[i] != want[i] {
			t.Fatalf("wrong evaluation steps\n\twant(%v)\n\thave(%v)",
				want, m.actionEvalSteps)
		}
	}
}

func TestEvalRangesContiguousAcrossResume(t *testing.T) {
	dir := t.TempDir()
	config := agent.Config{
		TrainFreq:  1,
		StartTrain: 5,
		StopStep:   10,
		BatchSize:  2,
		EvalFreq:   5,
		EvalLen:    3,
		SaveFreq:   10,
		ModelDir:   dir,
	}

	m := &stubModel{}
	a := newTestAgent(t, config, m)
	if err := a.Train(); err != nil {
		t.Fatalf("train: %v", err)
	}
	a.Close()

	resumed := &stubModel{}
	config.StopStep = 20
	b := newTestAgent(t, config, resumed)
	defer b.Close()

	if err := b.Train(); err != nil {
		t.Fatalf("resumed train: %v", err)
	}

	// The first run evaluated steps 1..6 over two runs; the resumed
	// runs at t = 15 and t = 20 must continue at step 7
	want := []int{7, 8, 9, 10, 11, 12}
	if len(resumed.actionEvalSteps) != len(want) {
		t.Fatalf("wrong resumed evaluation steps\n\twant(%v)\n\thave(%v)",
			want, resumed.actionEvalSteps)
	}
	for i := range want {
		if resumed.actionEvalSteps[i] != want[i] {
			t.Fatalf("wrong resumed evaluation steps\n\twant(%v)"+
				"\n\thave(%v)", want, resumed.actionEvalSteps)
		}
	}
}

type captureLogger struct {
	mu    sync.Mutex
	lines []string
}

func (c *captureLogger) Infof(format string, args ...interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, fmt.Sprintf(format, args...))
}
func (c *captureLogger) Warningf(string, ...interface{}) {}
func (c *captureLogger) Errorf(string, ...interface{})   {}

func TestLogStatsStartAfterLearning(t *testing.T) {
	m := &stubModel{}

	replayConfig := expreplay.Config{
		MaxCapacity: 100,
		MinCapacity: 2,
		BatchSize:   2,
	}
	replay, err := replayConfig.Create(2, 2, 1)
	if err != nil {
		t.Fatalf("could not create replay buffer: %v", err)
	}

	dir := t.TempDir()
	logger := &captureLogger{}
	mon := monitor.New(dir, 4, logger)
	a, err := agent.New(agent.Config{
		TrainFreq:  1,
		StartTrain: 10,
		StopStep:   20,
		BatchSize:  2,
		LogFreq:    4,
		ModelDir:   dir,
	}, m, newStubEnv(7), newStubEnv(7), replay, mon, monitor.Discard())
	if err != nil {
		t.Fatalf("could not create agent: %v", err)
	}
	if err := a.Build(); err != nil {
		t.Fatalf("could not build agent: %v", err)
	}
	defer a.Close()

	if err := a.Train(); err != nil {
		t.Fatalf("train: %v", err)
	}

	// Learning starts at t = 10, so the warm-up log steps 4 and 8 are
	// silent and summaries appear at t = 12, 16 and 20
	want := []string{"step 12 ", "step 16 ", "step 20 "}
	if len(logger.lines) != len(want) {
		t.Fatalf("wrong number of summary lines\n\twant(%v)\n\thave(%v)",
			len(want), logger.lines)
	}
	for i, prefix := range want {
		if !strings.HasPrefix(logger.lines[i], prefix) {
			t.Errorf("wrong summary line %v\n\twant(%v...)\n\thave(%v)", i,
				prefix, logger.lines[i])
		}
	}
}

func TestEvalLogsAtLogFreq(t *testing.T) {
	m := &stubModel{}

	replayConfig := expreplay.Config{
		MaxCapacity: 100,
		MinCapacity: 2,
		BatchSize:   2,
	}
	replay, err := replayConfig.Create(2, 2, 1)
	if err != nil {
		t.Fatalf("could not create replay buffer: %v", err)
	}

	dir := t.TempDir()
	logger := &captureLogger{}
	mon := monitor.New(dir, 4, logger)
	a, err := agent.New(agent.Config{
		TrainFreq:  1,
		StartTrain: 2,
		StopStep:   10,
		BatchSize:  2,
		EvalFreq:   10,
		EvalLen:    8,
		LogFreq:    4,
		ModelDir:   dir,
	}, m, newStubEnv(7), newStubEnv(7), replay, mon, monitor.Discard())
	if err != nil {
		t.Fatalf("could not create agent: %v", err)
	}
	if err := a.Build(); err != nil {
		t.Fatalf("could not build agent: %v", err)
	}
	defer a.Close()

	if err := a.Train(); err != nil {
		t.Fatalf("train: %v", err)
	}

	// Training summaries at t = 4 and 8, then the evaluation run at
	// t = 10 logs at its own steps 4 and 8
	if len(logger.lines) != 4 {
		t.Fatalf("wrong number of summary lines\n\twant(%v)\n\thave(%v)",
			4, logger.lines)
	}
	for i, prefix := range []string{"step 4 ", "step 8 ", "step 4 ",
		"step 8 "} {
		if !strings.HasPrefix(logger.lines[i], prefix) {
			t.Errorf("wrong summary line %v\n\twant(%v...)\n\thave(%v)", i,
				prefix, logger.lines[i])
		}
	}
}

func TestEvalTouchesNeitherWeightsNorReplay(t *testing.T) {
	m := &stubModel{}

	// A replay minimum above the total number of training steps keeps
	// learning from ever starting, isolating evaluation's effects
	replayConfig := expreplay.Config{
		MaxCapacity: 100,
		MinCapacity: 50,
		BatchSize:   2,
	}
	replay, err := replayConfig.Create(2, 2, 1)
	if err != nil {
		t.Fatalf("could not create replay buffer: %v", err)
	}

	dir := t.TempDir()
	mon := monitor.New(dir, 0, monitor.Discard())
	a, err := agent.New(agent.Config{
		TrainFreq:  1,
		StartTrain: 5,
		StopStep:   20,
		BatchSize:  2,
		EvalFreq:   5,
		EvalLen:    3,
		ModelDir:   dir,
	}, m, newStubEnv(7), newStubEnv(7), replay, mon, monitor.Discard())
	if err != nil {
		t.Fatalf("could not create agent: %v", err)
	}
	if err := a.Build(); err != nil {
		t.Fatalf("could not build agent: %v", err)
	}
	defer a.Close()

	if err := a.Train(); err != nil {
		t.Fatalf("train: %v", err)
	}

	if len(m.actionEvalSteps) != 12 {
		t.Fatalf("wrong number of evaluation steps\n\twant(%v)\n\thave(%v)",
			12, len(m.actionEvalSteps))
	}

	// Only the 20 training transitions may enter the replay buffer
	if replay.Capacity() != 20 {
		t.Errorf("evaluation steps leaked into the replay buffer"+
			"\n\twant(%v)\n\thave(%v)", 20, replay.Capacity())
	}

	// Learning never starts here, so evaluation alone must not have
	// triggered any parameter change
	if len(m.trainSteps) != 0 {
		t.Errorf("evaluation triggered gradient updates at steps %v",
			m.trainSteps)
	}
	if len(m.syncSteps) != 0 {
		t.Errorf("evaluation triggered target syncs at steps %v",
			m.syncSteps)
	}

	// Episode-end model resets are gated on learning having started
	if m.resets != 0 {
		t.Errorf("model was reset %v times before learning started",
			m.resets)
	}
}

func TestEvalDisabled(t *testing.T) {
	m := &stubModel{}
	a := newTestAgent(t, agent.Config{
		TrainFreq:  1,
		StartTrain: 5,
		StopStep:   20,
		BatchSize:  2,
		ModelDir:   t.TempDir(),
	}, m)
	defer a.Close()

	if err := a.Train(); err != nil {
		t.Fatalf("train: %v", err)
	}
	if len(m.actionEvalSteps) != 0 {
		t.Errorf("no evaluation should run with evaluation disabled, "+
			"ran %v steps", len(m.actionEvalSteps))
	}
}

func TestConfigValidate(t *testing.T) {
	valid := agent.Config{
		TrainFreq:  1,
		StartTrain: 0,
		StopStep:   10,
		BatchSize:  1,
	}
	if err := valid.Validate(); err != nil {
		t.Errorf("valid config should validate: %v", err)
	}

	invalid := []agent.Config{
		{TrainFreq: 0, StopStep: 10, BatchSize: 1},
		{TrainFreq: 1, StartTrain: 10, StopStep: 10, BatchSize: 1},
		{TrainFreq: 1, StopStep: 10, BatchSize: 0},
		{TrainFreq: 1, StopStep: 10, BatchSize: 1, EvalLen: 5},
		{TrainFreq: 1, StopStep: 10, BatchSize: 1, SaveFreq: 5},
	}
	for i, config := range invalid {
		if err := config.Validate(); err == nil {
			t.Errorf("config %v should not validate", i)
		}
	}
}
