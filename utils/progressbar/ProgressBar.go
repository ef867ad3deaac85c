// Package progressbar implements functionality of printing a progress
// bar to the terminal window
package progressbar

import (
	"fmt"
	"strings"
	"time"
)

// ProgressBar implements a concurrent progress bar tracking how far a
// training run has progressed through its environment steps. All
// updates are done in separate GoRoutines so that the progress bar
// runs concurrently with training.
//
// A run resumed from a checkpoint starts the bar at the resumed step
// rather than at zero.
type ProgressBar struct {
	// Width determines the number of characters wide that the
	// progress bar should be
	width float64

	// firstStep and lastStep are the environment steps at which the
	// bar is empty and full
	firstStep float64
	lastStep  float64

	// currentStep measures the number of times Increment() was
	// called, offset by firstStep
	currentStep float64

	incrementEvent chan float64
	closeEvent     chan struct{}
	closed         bool

	updateEvery       time.Duration
	updateAtIncrement bool
}

// New returns a new progress bar that is width characters wide and
// fills as Increment() is called once per environment step over
// [firstStep, lastStep]
func New(width, firstStep, lastStep int, updateEvery time.Duration,
	updateAtIncrement bool) *ProgressBar {
	return &ProgressBar{
		width:             float64(width),
		firstStep:         float64(firstStep),
		lastStep:          float64(lastStep),
		currentStep:       float64(firstStep),
		incrementEvent:    make(chan float64),
		closeEvent:        make(chan struct{}),
		closed:            false,
		updateEvery:       updateEvery,
		updateAtIncrement: updateAtIncrement,
	}
}

// Increment increments the internal step counter. Each time an
// environment step is performed, Increment should be called.
func (p *ProgressBar) Increment() {
	go func() {
		if p.currentStep < p.lastStep && !p.closed {
			p.incrementEvent <- p.currentStep
			p.currentStep++
		}
	}()
}

// Close closes the progress bar so that it will no longer display to
// the screen. This function also cleans up any resources the progress
// bar is using.
func (p *ProgressBar) Close() {
	if p.closed {
		panic("close: close on closed progress bar")
	}
	close(p.closeEvent)
	p.closed = true
	fmt.Println() // Jump to next line after printed bar
}

// Display displays the progress bar on the screen. It should only be
// called once.
func (p *ProgressBar) Display() {
	go func() {
		currentStep := p.currentStep
		firstStep := p.firstStep
		span := p.lastStep - p.firstStep
		width := p.width

		updateEvery := p.updateEvery
		tick := time.NewTicker(updateEvery)
		updateAtIncrement := p.updateAtIncrement

		var elapsedTime time.Duration

		var bar strings.Builder

		for {
			// Update either whenever Increment() is called or on the
			// ticker otherwise
			select {
			case currentStep = <-p.incrementEvent:
				if !updateAtIncrement {
					continue
				}

			case <-tick.C:
				elapsedTime += updateEvery

			case <-p.closeEvent:
				close(p.incrementEvent)
				tick.Stop()
				return

			default:
				continue
			}

			bar.Reset()
			bar.Write([]byte("|"))

			progress := (currentStep - firstStep) / span
			filled := progress * width
			for i := 0.0; i < filled; i++ {
				bar.Write([]byte("█"))
			}
			for i := filled; i < width; i++ {
				bar.Write([]byte(" "))
			}
			bar.Write([]byte(fmt.Sprintf("| [%.2f%v | elapsed: %v]",
				progress*100, "%", elapsedTime)))

			fmt.Printf("\n\033[1A\033[K%v", bar.String())
		}
	}()
}
