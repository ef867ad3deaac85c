package checkpoint_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Baichenjia/rltf/checkpoint"
)

func TestBundlePutGet(t *testing.T) {
	b := checkpoint.NewBundle(10)

	type state struct {
		Weights []float64
		Step    int
	}
	want := state{Weights: []float64{1, 2, 3}, Step: 10}
	if err := b.Put("model", want); err != nil {
		t.Fatalf("put: %v", err)
	}

	var have state
	if err := b.Get("model", &have); err != nil {
		t.Fatalf("get: %v", err)
	}
	if have.Step != want.Step || len(have.Weights) != len(want.Weights) {
		t.Errorf("wrong decoded state\n\twant(%v)\n\thave(%v)", want, have)
	}
	for i := range want.Weights {
		if have.Weights[i] != want.Weights[i] {
			t.Errorf("wrong decoded weights\n\twant(%v)\n\thave(%v)",
				want.Weights, have.Weights)
		}
	}

	if !b.Has("model") {
		t.Error("bundle should have key after Put")
	}
	if b.Has("missing") {
		t.Error("bundle should not have a key that was never Put")
	}
}

func TestBundleGetMissingKey(t *testing.T) {
	b := checkpoint.NewBundle(1)

	var out int
	err := b.Get("absent", &out)
	if err == nil {
		t.Fatal("get of a missing key should fail")
	}
	if !strings.Contains(err.Error(), "absent") {
		t.Errorf("error should name the missing key, got: %v", err)
	}
}

func TestWriteAndLatest(t *testing.T) {
	dir := t.TempDir()

	for _, step := range []int{5, 10, 15} {
		b := checkpoint.NewBundle(step)
		if err := b.Put("step", step); err != nil {
			t.Fatalf("put: %v", err)
		}
		if err := checkpoint.Write(dir, b); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	latest, err := checkpoint.Latest(dir)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest == nil {
		t.Fatal("latest should find a checkpoint")
	}
	if latest.Step != 15 {
		t.Errorf("wrong latest step\n\twant(%v)\n\thave(%v)", 15,
			latest.Step)
	}

	var step int
	if err := latest.Get("step", &step); err != nil {
		t.Fatalf("get: %v", err)
	}
	if step != 15 {
		t.Errorf("wrong payload in latest checkpoint\n\twant(%v)"+
			"\n\thave(%v)", 15, step)
	}
}

func TestLatestEmptyDir(t *testing.T) {
	latest, err := checkpoint.Latest(t.TempDir())
	if err != nil {
		t.Fatalf("latest on an empty directory should not fail: %v", err)
	}
	if latest != nil {
		t.Error("latest on an empty directory should be nil")
	}
}

func TestLatestMissingDir(t *testing.T) {
	latest, err := checkpoint.Latest(filepath.Join(t.TempDir(), "missing"))
	if err != nil {
		t.Fatalf("latest on a missing directory should not fail: %v", err)
	}
	if latest != nil {
		t.Error("latest on a missing directory should be nil")
	}
}

func TestWritePrunesOldCheckpoints(t *testing.T) {
	dir := t.TempDir()

	steps := []int{10, 20, 30, 40}
	for _, step := range steps {
		if err := checkpoint.Write(dir, checkpoint.NewBundle(step)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}

	var kept []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".tmp") {
			t.Errorf("temporary file left behind: %v", entry.Name())
			continue
		}
		kept = append(kept, entry.Name())
	}
	if len(kept) != checkpoint.MaxKept {
		t.Fatalf("wrong number of checkpoints kept\n\twant(%v)\n\thave(%v)",
			checkpoint.MaxKept, kept)
	}

	latest, err := checkpoint.Latest(dir)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest.Step != 40 {
		t.Errorf("pruning removed the wrong checkpoints, latest is %v",
			latest.Step)
	}
}

func TestFailedWriteKeepsPreviousCheckpoint(t *testing.T) {
	dir := t.TempDir()

	first := checkpoint.NewBundle(5)
	if err := first.Put("model", 5.0); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := checkpoint.Write(dir, first); err != nil {
		t.Fatalf("write: %v", err)
	}

	// Block promotion of the next checkpoint by occupying its final
	// name with a directory, which rename cannot replace
	obstruction := filepath.Join(dir, "checkpoint-9.bin")
	if err := os.Mkdir(obstruction, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	second := checkpoint.NewBundle(9)
	if err := second.Put("model", 9.0); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := checkpoint.Write(dir, second); err == nil {
		t.Fatal("write onto an unwritable final name should fail")
	}

	// The earlier checkpoint is untouched and no staging file was
	// left behind
	have, err := checkpoint.Read(filepath.Join(dir, "checkpoint-5.bin"))
	if err != nil {
		t.Fatalf("read after failed write: %v", err)
	}
	var value float64
	if err := have.Get("model", &value); err != nil || value != 5.0 {
		t.Errorf("previous checkpoint corrupted\n\twant(%v)\n\thave(%v, %v)",
			5.0, value, err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".tmp") {
			t.Errorf("failed write left staging file %v", entry.Name())
		}
	}
}

func TestReadRoundTrip(t *testing.T) {
	dir := t.TempDir()

	b := checkpoint.NewBundle(7)
	if err := b.Put("a", []float64{1.5}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := b.Put("b", "state"); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := checkpoint.Write(dir, b); err != nil {
		t.Fatalf("write: %v", err)
	}

	read, err := checkpoint.Read(filepath.Join(dir, "checkpoint-7.bin"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if read.Step != 7 {
		t.Errorf("wrong step\n\twant(%v)\n\thave(%v)", 7, read.Step)
	}

	keys := read.Keys()
	if len(keys) != 2 || keys[0] != "a" || keys[1] != "b" {
		t.Errorf("wrong keys\n\twant(%v)\n\thave(%v)", []string{"a", "b"},
			keys)
	}
}
