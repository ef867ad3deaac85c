package agent

import "sync"

// event is a resettable signal between the two training executors.
// Set marks the event and wakes any waiter; WaitAndClear blocks until
// the event is set and consumes it. The condition variable's lock
// orders every write made before Set with every read made after
// WaitAndClear returns.
type event struct {
	mu   sync.Mutex
	cond *sync.Cond
	set  bool
}

// newEvent returns a new, unset event
func newEvent() *event {
	e := &event{}
	e.cond = sync.NewCond(&e.mu)
	return e
}

// Set marks the event and wakes all waiters
func (e *event) Set() {
	e.mu.Lock()
	e.set = true
	e.cond.Broadcast()
	e.mu.Unlock()
}

// Clear unmarks the event
func (e *event) Clear() {
	e.mu.Lock()
	e.set = false
	e.mu.Unlock()
}

// WaitAndClear blocks until the event is set, then consumes it
func (e *event) WaitAndClear() {
	e.mu.Lock()
	for !e.set {
		e.cond.Wait()
	}
	e.set = false
	e.mu.Unlock()
}
