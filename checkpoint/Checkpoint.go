// Package checkpoint implements saving and restoring of training
// state. A checkpoint is a Bundle of named gob-encoded payloads
// together with the environment step at which it was taken. Each
// component of an agent contributes its state to the Bundle under its
// own key and later restores from the same key.
//
// Bundles are written atomically. A bundle is first written to a
// temporary file in the target directory and then renamed into place,
// so a crash mid-write never corrupts the latest valid checkpoint.
package checkpoint

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// MaxKept is the number of most recent checkpoint files retained in a
// checkpoint directory. Older checkpoints are pruned on each write.
const MaxKept int = 2

const (
	filePrefix string = "checkpoint-"
	fileSuffix string = ".bin"
)

// Bundle holds the state of every component of an agent at a single
// environment step. Payloads are keyed by component name.
type Bundle struct {
	Step     int
	Payloads map[string][]byte
}

// NewBundle returns an empty Bundle taken at the given environment
// step.
func NewBundle(step int) *Bundle {
	return &Bundle{
		Step:     step,
		Payloads: make(map[string][]byte),
	}
}

// Put gob-encodes value and stores it in the bundle under key,
// overwriting any previous payload for key.
func (b *Bundle) Put(key string, value interface{}) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(value); err != nil {
		return fmt.Errorf("put: could not encode %q: %v", key, err)
	}
	b.Payloads[key] = buf.Bytes()
	return nil
}

// Get decodes the payload stored under key into value, which must be
// a pointer. Get fails loudly when key is absent so that a missing
// component surfaces at restore time rather than as silently
// reinitialized state.
func (b *Bundle) Get(key string, value interface{}) error {
	payload, ok := b.Payloads[key]
	if !ok {
		return fmt.Errorf("get: no payload for key %q", key)
	}
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(value); err != nil {
		return fmt.Errorf("get: could not decode %q: %v", key, err)
	}
	return nil
}

// Has returns whether the bundle holds a payload under key
func (b *Bundle) Has(key string) bool {
	_, ok := b.Payloads[key]
	return ok
}

// Keys returns the sorted keys of all payloads in the bundle
func (b *Bundle) Keys() []string {
	keys := make([]string, 0, len(b.Payloads))
	for key := range b.Payloads {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Write persists the bundle to dir, creating dir if needed. The
// bundle is staged in a temporary file and renamed into place, after
// which checkpoints older than the MaxKept most recent are removed.
func Write(dir string, b *Bundle) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("write: could not create directory: %v", err)
	}

	tmp, err := os.CreateTemp(dir, filePrefix+"*.tmp")
	if err != nil {
		return fmt.Errorf("write: could not create temporary file: %v", err)
	}

	if err := gob.NewEncoder(tmp).Encode(b); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write: could not encode bundle: %v", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write: could not close temporary file: %v", err)
	}

	final := filepath.Join(dir, name(b.Step))
	if err := os.Rename(tmp.Name(), final); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write: could not promote checkpoint: %v", err)
	}

	return prune(dir)
}

// Read loads the bundle stored at path
func Read(path string) (*Bundle, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read: could not open checkpoint: %v", err)
	}
	defer file.Close()

	var b Bundle
	if err := gob.NewDecoder(file).Decode(&b); err != nil {
		return nil, fmt.Errorf("read: could not decode checkpoint: %v", err)
	}
	return &b, nil
}

// Latest returns the bundle with the highest step in dir. If dir holds
// no checkpoints, Latest returns a nil bundle and no error.
func Latest(dir string) (*Bundle, error) {
	steps, err := list(dir)
	if err != nil {
		return nil, fmt.Errorf("latest: %v", err)
	}
	if len(steps) == 0 {
		return nil, nil
	}
	return Read(filepath.Join(dir, name(steps[len(steps)-1])))
}

// name returns the filename for a checkpoint taken at step
func name(step int) string {
	return fmt.Sprintf("%v%d%v", filePrefix, step, fileSuffix)
}

// list returns the steps of all checkpoints in dir in ascending order
func list(dir string) ([]int, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("could not read directory: %v", err)
	}

	var steps []int
	for _, entry := range entries {
		n := entry.Name()
		if !strings.HasPrefix(n, filePrefix) || !strings.HasSuffix(n, fileSuffix) {
			continue
		}
		step, err := strconv.Atoi(strings.TrimSuffix(
			strings.TrimPrefix(n, filePrefix), fileSuffix))
		if err != nil {
			continue
		}
		steps = append(steps, step)
	}
	sort.Ints(steps)
	return steps, nil
}

// prune removes all but the MaxKept most recent checkpoints in dir
func prune(dir string) error {
	steps, err := list(dir)
	if err != nil {
		return fmt.Errorf("prune: %v", err)
	}
	for len(steps) > MaxKept {
		if err := os.Remove(filepath.Join(dir, name(steps[0]))); err != nil {
			return fmt.Errorf("prune: could not remove checkpoint: %v", err)
		}
		steps = steps[1:]
	}
	return nil
}
