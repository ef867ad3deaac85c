package agent

import (
	"sync"
	"testing"
	"time"
)

func TestEventSetWakesWaiter(t *testing.T) {
	e := newEvent()
	done := make(chan struct{})

	go func() {
		e.WaitAndClear()
		close(done)
	}()

	e.Set()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WaitAndClear did not wake after Set")
	}
}

func TestEventWaitClearsSignal(t *testing.T) {
	e := newEvent()
	e.Set()
	e.WaitAndClear()

	// The signal was consumed, so a second wait must block until the
	// next Set
	done := make(chan struct{})
	go func() {
		e.WaitAndClear()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("WaitAndClear returned without a second Set")
	case <-time.After(10 * time.Millisecond):
	}

	e.Set()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WaitAndClear did not wake after the second Set")
	}
}

func TestEventSetBeforeWait(t *testing.T) {
	e := newEvent()
	e.Set()

	done := make(chan struct{})
	go func() {
		e.WaitAndClear()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WaitAndClear did not observe a Set that happened first")
	}
}

func TestEventClear(t *testing.T) {
	e := newEvent()
	e.Set()
	e.Clear()

	done := make(chan struct{})
	go func() {
		e.WaitAndClear()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("WaitAndClear returned after the signal was cleared")
	case <-time.After(10 * time.Millisecond):
	}

	e.Set()
	<-done
}

// TestEventAlternation runs the same two-event handshake the executors
// use: one goroutine waits for work to be finished before producing the
// next item, the other waits for an item before working on it. The
// finished event starts set so the producer can emit the first item.
func TestEventAlternation(t *testing.T) {
	const rounds = 100

	ready := newEvent()
	finished := newEvent()
	finished.Set()

	var mu sync.Mutex
	var order []string

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			finished.WaitAndClear()
			mu.Lock()
			order = append(order, "produce")
			mu.Unlock()
			ready.Set()
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			ready.WaitAndClear()
			mu.Lock()
			order = append(order, "consume")
			mu.Unlock()
			finished.Set()
		}
	}()
	wg.Wait()

	if len(order) != 2*rounds {
		t.Fatalf("wrong number of handshake events\n\twant(%v)\n\thave(%v)",
			2*rounds, len(order))
	}
	for i, event := range order {
		want := "produce"
		if i%2 == 1 {
			want = "consume"
		}
		if event != want {
			t.Fatalf("handshake out of order at event %v\n\twant(%v)"+
				"\n\thave(%v)", i, want, event)
		}
	}
}
