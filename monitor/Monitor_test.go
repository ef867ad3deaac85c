package monitor_test

import (
	"fmt"
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/Baichenjia/rltf/checkpoint"
	"github.com/Baichenjia/rltf/monitor"
	ts "github.com/Baichenjia/rltf/timestep"
)

// episode feeds a complete episode of the given rewards into m,
// starting from a First step with reward 0
func episode(m *monitor.Monitor, rewards []float64) {
	obs := mat.NewVecDense(1, nil)
	m.Track(ts.New(ts.First, 0, 1.0, obs, 0))
	for i, r := range rewards {
		stepType := ts.Mid
		if i == len(rewards)-1 {
			stepType = ts.Last
		}
		m.Track(ts.New(stepType, r, 1.0, obs, i+1))
	}
}

func TestTrackRecordsEpisodeReturns(t *testing.T) {
	m := monitor.New(t.TempDir(), 0, monitor.Discard())

	episode(m, []float64{1, 1, 1})
	episode(m, []float64{2, 2, 2})

	if m.Episodes() != 2 {
		t.Errorf("wrong episode count\n\twant(%v)\n\thave(%v)", 2,
			m.Episodes())
	}
	if mean := m.MeanEpisodeReward(); math.Abs(mean-4.5) > 1e-12 {
		t.Errorf("wrong mean episode reward\n\twant(%v)\n\thave(%v)", 4.5,
			mean)
	}
}

func TestMeanRewardEmptyIsZero(t *testing.T) {
	m := monitor.New(t.TempDir(), 0, monitor.Discard())
	if mean := m.MeanEpisodeReward(); mean != 0 {
		t.Errorf("mean reward of no episodes should be 0, got %v", mean)
	}
	if mean := m.MeanEvalReward(); mean != 0 {
		t.Errorf("mean eval reward of no episodes should be 0, got %v", mean)
	}
}

func TestEvalInterleavesWithTrainingEpisode(t *testing.T) {
	m := monitor.New(t.TempDir(), 0, monitor.Discard())
	obs := mat.NewVecDense(1, nil)

	// Start a training episode but do not finish it
	m.Track(ts.New(ts.First, 0, 1.0, obs, 0))
	m.Track(ts.New(ts.Mid, 1, 1.0, obs, 1))
	m.Track(ts.New(ts.Mid, 1, 1.0, obs, 2))

	// Run a full evaluation episode in the middle
	m.SetMode(monitor.Eval)
	episode(m, []float64{5, 5})
	m.SetMode(monitor.Train)

	// The training episode resumes where it left off
	m.Track(ts.New(ts.Last, 1, 1.0, obs, 3))

	if m.Episodes() != 1 {
		t.Fatalf("wrong training episode count\n\twant(%v)\n\thave(%v)",
			1, m.Episodes())
	}
	if mean := m.MeanEpisodeReward(); math.Abs(mean-3.0) > 1e-12 {
		t.Errorf("evaluation corrupted the training return\n\twant(%v)"+
			"\n\thave(%v)", 3.0, mean)
	}
	if mean := m.MeanEvalReward(); math.Abs(mean-10.0) > 1e-12 {
		t.Errorf("wrong mean eval reward\n\twant(%v)\n\thave(%v)", 10.0,
			mean)
	}
}

func TestEnteringEvalDiscardsPartialEvalEpisode(t *testing.T) {
	m := monitor.New(t.TempDir(), 0, monitor.Discard())
	obs := mat.NewVecDense(1, nil)

	// A previous evaluation run left a partial episode behind
	m.SetMode(monitor.Eval)
	m.Track(ts.New(ts.First, 0, 1.0, obs, 0))
	m.Track(ts.New(ts.Mid, 100, 1.0, obs, 1))
	m.SetMode(monitor.Train)

	// The next run starts from a fresh accumulator
	m.SetMode(monitor.Eval)
	episode(m, []float64{1, 1})
	m.SetMode(monitor.Train)

	if mean := m.MeanEvalReward(); math.Abs(mean-2.0) > 1e-12 {
		t.Errorf("stale partial episode leaked into eval return"+
			"\n\twant(%v)\n\thave(%v)", 2.0, mean)
	}
}

func TestTrackPanicsOnNonSequentialSteps(t *testing.T) {
	m := monitor.New(t.TempDir(), 0, monitor.Discard())
	obs := mat.NewVecDense(1, nil)

	m.Track(ts.New(ts.First, 0, 1.0, obs, 0))

	defer func() {
		if recover() == nil {
			t.Error("track should panic on a skipped timestep")
		}
	}()
	m.Track(ts.New(ts.Mid, 1, 1.0, obs, 5))
}

func TestCheckpointRestore(t *testing.T) {
	m := monitor.New(t.TempDir(), 0, monitor.Discard())
	episode(m, []float64{1, 1})
	episode(m, []float64{3})
	m.SetMode(monitor.Eval)
	episode(m, []float64{7})
	m.SetMode(monitor.Train)

	b := checkpoint.NewBundle(50)
	if err := m.Checkpoint(b); err != nil {
		t.Fatalf("checkpoint: %v", err)
	}

	restored := monitor.New(t.TempDir(), 0, monitor.Discard())
	if err := restored.Restore(b); err != nil {
		t.Fatalf("restore: %v", err)
	}

	if restored.Episodes() != 2 {
		t.Errorf("wrong restored episode count\n\twant(%v)\n\thave(%v)",
			2, restored.Episodes())
	}
	if mean := restored.MeanEpisodeReward(); math.Abs(mean-2.5) > 1e-12 {
		t.Errorf("wrong restored mean reward\n\twant(%v)\n\thave(%v)",
			2.5, mean)
	}
	if mean := restored.MeanEvalReward(); math.Abs(mean-7.0) > 1e-12 {
		t.Errorf("wrong restored mean eval reward\n\twant(%v)\n\thave(%v)",
			7.0, mean)
	}

	// The restored monitor starts a fresh episode from step 0
	episode(restored, []float64{1})
	if restored.Episodes() != 3 {
		t.Errorf("restored monitor could not track a new episode")
	}
}

func TestRestoreMissingStateFails(t *testing.T) {
	m := monitor.New(t.TempDir(), 0, monitor.Discard())
	if err := m.Restore(checkpoint.NewBundle(1)); err == nil {
		t.Error("restore from a bundle without monitor state should fail")
	}
}

type countingProgress struct{ n int }

func (c *countingProgress) Increment() { c.n++ }

func TestProgressIncrementsOnTrainingStepsOnly(t *testing.T) {
	m := monitor.New(t.TempDir(), 0, monitor.Discard())
	progress := &countingProgress{}
	m.AttachProgress(progress)

	episode(m, []float64{1, 1, 1})

	m.SetMode(monitor.Eval)
	episode(m, []float64{1, 1})
	m.SetMode(monitor.Train)

	// Only the three non-first training steps count
	if progress.n != 3 {
		t.Errorf("wrong number of progress increments\n\twant(%v)"+
			"\n\thave(%v)", 3, progress.n)
	}
}

type recordingLogger struct{ lines []string }

func (r *recordingLogger) Infof(format string, args ...interface{}) {
	r.lines = append(r.lines, fmt.Sprintf(format, args...))
}
func (r *recordingLogger) Warningf(string, ...interface{}) {}
func (r *recordingLogger) Errorf(string, ...interface{})   {}

func TestLogStatsCadenceAndCustomFields(t *testing.T) {
	logger := &recordingLogger{}
	m := monitor.New(t.TempDir(), 10, logger)
	m.DefineLogInfo(monitor.LogField{
		Name:   "epsilon",
		Format: "%.2f",
		Value:  func(step int) float64 { return float64(step) / 100 },
	})

	episode(m, []float64{1, 1, 1})
	for step := 1; step <= 20; step++ {
		m.LogStats(step)
	}

	if len(logger.lines) != 2 {
		t.Fatalf("wrong number of summary lines\n\twant(%v)\n\thave(%v)",
			2, len(logger.lines))
	}
	want := "step 10 | episodes 1 | mean reward 3.00 | epsilon 0.10"
	if logger.lines[0] != want {
		t.Errorf("wrong summary line\n\twant(%v)\n\thave(%v)", want,
			logger.lines[0])
	}
}
