// Package factoryreset detects a long press on a dedicated input and triggers
// a network factory reset.
package factoryreset

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sweeney/contact-sensor/internal/logger"
)

// DefaultPressTime is how long the input must be held.
const DefaultPressTime = 5 * time.Second

// Stopper is the part of *time.Timer the detector needs.
type Stopper interface {
	Stop() bool
}

// AfterFunc arms a one-shot timer. time.AfterFunc satisfies it through a
// small adapter; tests substitute a manual clock.
type AfterFunc func(d time.Duration, f func()) Stopper

func realAfterFunc(d time.Duration, f func()) Stopper {
	return time.AfterFunc(d, f)
}

// Detector tracks the press state of the reset input. Check is called from
// the interrupt context; the reset callback runs from the timer goroutine and
// must only enqueue work.
type Detector struct {
	mask      atomic.Uint32
	pressTime time.Duration
	reset     func()
	after     AfterFunc

	mu    sync.Mutex
	timer Stopper
	gen   uint64
	done  atomic.Bool
}

// New creates a detector that calls reset after pressTime of continuous
// press. A zero pressTime selects DefaultPressTime.
func New(pressTime time.Duration, reset func()) *Detector {
	if pressTime <= 0 {
		pressTime = DefaultPressTime
	}
	return &Detector{pressTime: pressTime, reset: reset, after: realAfterFunc}
}

// WithAfterFunc replaces the timer source.
func (d *Detector) WithAfterFunc(f AfterFunc) *Detector {
	d.after = f
	return d
}

// Register selects the input bits that make up the reset button.
func (d *Detector) Register(mask uint32) {
	d.mask.Store(mask)
}

// Check feeds an input snapshot to the detector.
func (d *Detector) Check(state, changed uint32) {
	mask := d.mask.Load()
	if mask == 0 || changed&mask == 0 {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if state&mask == mask {
		d.done.Store(false)
		d.stopLocked()
		d.gen++
		gen := d.gen
		d.timer = d.after(d.pressTime, func() { d.fire(gen) })
		return
	}
	d.stopLocked()
}

// WasDone reports whether the current or last press triggered a reset. It is
// cleared by the next press.
func (d *Detector) WasDone() bool {
	return d.done.Load()
}

func (d *Detector) stopLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
}

func (d *Detector) fire(gen uint64) {
	d.mu.Lock()
	if gen != d.gen {
		d.mu.Unlock()
		return
	}
	d.timer = nil
	d.done.Store(true)
	d.mu.Unlock()

	logger.Warn().Dur("held", d.pressTime).Msg("factory reset requested")
	if d.reset != nil {
		d.reset()
	}
}
