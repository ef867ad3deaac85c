package expreplay_test

import (
	"sync"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/Baichenjia/rltf/expreplay"
	ts "github.com/Baichenjia/rltf/timestep"
)

// transition returns a Transition whose every field is derived from
// id, so tests can tell sampled transitions apart
func transition(id float64) ts.Transition {
	return ts.Transition{
		State:     mat.NewVecDense(2, []float64{id, id + 0.5}),
		Action:    mat.NewVecDense(1, []float64{id}),
		Reward:    id,
		Done:      false,
		NextState: mat.NewVecDense(2, []float64{id + 1, id + 1.5}),
	}
}

func newBuffer(t *testing.T, minCapacity, maxCapacity,
	batchSize int) expreplay.ExperienceReplayer {
	t.Helper()

	config := expreplay.Config{
		MaxCapacity: maxCapacity,
		MinCapacity: minCapacity,
		BatchSize:   batchSize,
	}
	buffer, err := config.Create(2, 1, 14)
	if err != nil {
		t.Fatalf("could not create buffer: %v", err)
	}
	return buffer
}

func TestSampleEmptyBuffer(t *testing.T) {
	buffer := newBuffer(t, 2, 10, 2)

	_, err := buffer.Sample()
	if !expreplay.IsEmptyBuffer(err) {
		t.Errorf("sampling an empty buffer should report empty, got: %v",
			err)
	}
}

func TestSampleInsufficientSamples(t *testing.T) {
	buffer := newBuffer(t, 3, 10, 2)

	if err := buffer.Add(transition(1)); err != nil {
		t.Fatalf("add: %v", err)
	}

	_, err := buffer.Sample()
	if !expreplay.IsInsufficientSamples(err) {
		t.Errorf("sampling below min capacity should report insufficient "+
			"samples, got: %v", err)
	}
	if expreplay.IsEmptyBuffer(err) {
		t.Error("insufficient samples should not report an empty buffer")
	}
}

func TestSampleBatch(t *testing.T) {
	buffer := newBuffer(t, 1, 10, 3)

	for i := 1; i <= 5; i++ {
		if err := buffer.Add(transition(float64(i))); err != nil {
			t.Fatalf("add: %v", err)
		}
	}

	batch, err := buffer.Sample()
	if err != nil {
		t.Fatalf("sample: %v", err)
	}

	if batch.Size != 3 {
		t.Errorf("wrong batch size\n\twant(%v)\n\thave(%v)", 3, batch.Size)
	}
	if batch.FeatureSize != 2 || batch.ActionSize != 1 {
		t.Errorf("wrong batch dimensions: features %v actions %v",
			batch.FeatureSize, batch.ActionSize)
	}
	if len(batch.States) != 6 || len(batch.NextStates) != 6 {
		t.Errorf("wrong state slice lengths: %v and %v", len(batch.States),
			len(batch.NextStates))
	}

	// Every sampled transition must keep its fields consistent
	for i := 0; i < batch.Size; i++ {
		id := batch.Rewards[i]
		if batch.Actions[i] != id {
			t.Errorf("sample %v mixed fields of different transitions: "+
				"reward %v action %v", i, id, batch.Actions[i])
		}
		if batch.States[i*2] != id || batch.States[i*2+1] != id+0.5 {
			t.Errorf("sample %v has wrong state for reward %v: %v", i, id,
				batch.States[i*2:i*2+2])
		}
		if batch.NextStates[i*2] != id+1 {
			t.Errorf("sample %v has wrong next state for reward %v: %v",
				i, id, batch.NextStates[i*2:i*2+2])
		}
	}
}

func TestDoneFlag(t *testing.T) {
	buffer := newBuffer(t, 1, 1, 1)

	done := transition(3)
	done.Done = true
	if err := buffer.Add(done); err != nil {
		t.Fatalf("add: %v", err)
	}

	batch, err := buffer.Sample()
	if err != nil {
		t.Fatalf("sample: %v", err)
	}
	if batch.Dones[0] != 1.0 {
		t.Errorf("done transition should sample with done = 1, got %v",
			batch.Dones[0])
	}
}

func TestFifoEviction(t *testing.T) {
	buffer := newBuffer(t, 1, 3, 3)

	for i := 1; i <= 5; i++ {
		if err := buffer.Add(transition(float64(i))); err != nil {
			t.Fatalf("add: %v", err)
		}
	}

	if buffer.Capacity() != 3 {
		t.Fatalf("wrong capacity after eviction\n\twant(%v)\n\thave(%v)",
			3, buffer.Capacity())
	}

	// Only the three most recent transitions remain
	seen := make(map[float64]bool)
	for i := 0; i < 20; i++ {
		batch, err := buffer.Sample()
		if err != nil {
			t.Fatalf("sample: %v", err)
		}
		for _, r := range batch.Rewards {
			seen[r] = true
		}
	}
	for _, evicted := range []float64{1, 2} {
		if seen[evicted] {
			t.Errorf("evicted transition %v was sampled", evicted)
		}
	}
	for _, kept := range []float64{3, 4, 5} {
		if !seen[kept] {
			t.Errorf("recent transition %v was never sampled", kept)
		}
	}
}

func TestAddWrongSizes(t *testing.T) {
	buffer := newBuffer(t, 1, 10, 1)

	badState := ts.Transition{
		State:     mat.NewVecDense(3, nil),
		Action:    mat.NewVecDense(1, nil),
		NextState: mat.NewVecDense(3, nil),
	}
	if err := buffer.Add(badState); err == nil {
		t.Error("adding a transition with the wrong feature size should fail")
	}

	badAction := ts.Transition{
		State:     mat.NewVecDense(2, nil),
		Action:    mat.NewVecDense(4, nil),
		NextState: mat.NewVecDense(2, nil),
	}
	if err := buffer.Add(badAction); err == nil {
		t.Error("adding a transition with the wrong action size should fail")
	}
}

func TestConcurrentAddAndSample(t *testing.T) {
	buffer := newBuffer(t, 1, 50, 4)

	for i := 0; i < 4; i++ {
		if err := buffer.Add(transition(float64(i))); err != nil {
			t.Fatalf("add: %v", err)
		}
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			if err := buffer.Add(transition(float64(i))); err != nil {
				t.Errorf("add: %v", err)
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			batch, err := buffer.Sample()
			if err != nil {
				t.Errorf("sample: %v", err)
				return
			}
			for j := 0; j < batch.Size; j++ {
				if batch.Actions[j] != batch.Rewards[j] {
					t.Errorf("sample mixed fields of different transitions")
					return
				}
			}
		}
	}()
	wg.Wait()
}
