package c51

import (
	"math"
	"testing"

	"github.com/Baichenjia/rltf/initwfn"
	"github.com/Baichenjia/rltf/network"
	"github.com/Baichenjia/rltf/schedule"
	"github.com/Baichenjia/rltf/solver"
)

func newTestModel(t *testing.T) *C51 {
	t.Helper()

	init, err := initwfn.NewGlorotU(1.0)
	if err != nil {
		t.Fatalf("could not create weight initializer: %v", err)
	}
	sol, err := solver.NewDefaultAdam(1e-3, 32)
	if err != nil {
		t.Fatalf("could not create solver: %v", err)
	}

	config := Config{
		HiddenSizes: []int{16},
		Biases:      []bool{true},
		Activations: []*network.Activation{network.ReLU()},
		InitWFn:     init,
		Solver:      sol,
		NumAtoms:    5,
		VMin:        -2.0,
		VMax:        2.0,
		Epsilon:     schedule.NewConst(0.1),
		EvalEpsilon: 0.001,
		Gamma:       0.99,
		BatchSize:   32,
	}
	m, err := config.Create(4, 2)
	if err != nil {
		t.Fatalf("could not create model: %v", err)
	}
	return m
}

func TestSupportAtoms(t *testing.T) {
	m := newTestModel(t)

	want := []float64{-2, -1, 0, 1, 2}
	if len(m.atoms) != len(want) {
		t.Fatalf("wrong number of atoms\n\twant(%v)\n\thave(%v)", len(want),
			len(m.atoms))
	}
	for i := range want {
		if m.atoms[i] != want[i] {
			t.Errorf("wrong atom %v\n\twant(%v)\n\thave(%v)", i, want[i],
				m.atoms[i])
		}
	}
	if m.deltaZ != 1.0 {
		t.Errorf("wrong atom spacing\n\twant(%v)\n\thave(%v)", 1.0, m.deltaZ)
	}
}

func TestProjectSplitsMassBetweenNeighbours(t *testing.T) {
	m := newTestModel(t)

	// All mass on atom 0; shifting by the reward lands at 0.5, halfway
	// between atoms 0 and 1
	probs := []float64{0, 0, 1, 0, 0}
	row := make([]float64, 5)
	m.project(row, probs, 0.5, 1.0)

	want := []float64{0, 0, 0.5, 0.5, 0}
	for i := range want {
		if math.Abs(row[i]-want[i]) > 1e-12 {
			t.Errorf("wrong projected mass at atom %v\n\twant(%v)"+
				"\n\thave(%v)", i, want[i], row[i])
		}
	}
}

func TestProjectExactAtomKeepsMass(t *testing.T) {
	m := newTestModel(t)

	probs := []float64{0, 0, 1, 0, 0}
	row := make([]float64, 5)
	m.project(row, probs, 1.0, 1.0)

	if math.Abs(row[3]-1.0) > 1e-12 {
		t.Errorf("mass landing exactly on an atom should not be split"+
			"\n\twant(%v)\n\thave(%v)", 1.0, row[3])
	}
}

func TestProjectClampsToSupport(t *testing.T) {
	m := newTestModel(t)

	// A reward far above VMax pushes every shifted atom onto the last
	// support atom
	probs := []float64{0.2, 0.2, 0.2, 0.2, 0.2}
	row := make([]float64, 5)
	m.project(row, probs, 10.0, 1.0)

	if math.Abs(row[4]-1.0) > 1e-12 {
		t.Errorf("mass above the support should clamp to the last atom"+
			"\n\twant(%v)\n\thave(%v)", 1.0, row[4])
	}

	// A terminal transition with a reward below VMin clamps to the
	// first atom
	row = make([]float64, 5)
	m.project(row, probs, -10.0, 0.0)
	if math.Abs(row[0]-1.0) > 1e-12 {
		t.Errorf("mass below the support should clamp to the first atom"+
			"\n\twant(%v)\n\thave(%v)", 1.0, row[0])
	}
}

func TestProjectConservesMass(t *testing.T) {
	m := newTestModel(t)

	probs := []float64{0.1, 0.25, 0.3, 0.25, 0.1}
	row := make([]float64, 5)
	m.project(row, probs, 0.3, 0.99)

	var sum float64
	for _, p := range row {
		sum += p
	}
	if math.Abs(sum-1.0) > 1e-12 {
		t.Errorf("projection should conserve probability mass"+
			"\n\twant(%v)\n\thave(%v)", 1.0, sum)
	}
}
