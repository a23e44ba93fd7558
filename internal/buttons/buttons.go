// Package buttons latches the state of the discrete input lines and reports
// edges. The interrupt path and Poll keep separate change baselines.
package buttons

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sweeney/contact-sensor/internal/apperr"
	"github.com/sweeney/contact-sensor/internal/gpio"
	"github.com/sweeney/contact-sensor/internal/logger"
)

// Handler receives the current state and the bits that changed since the
// previous interrupt. It runs in interrupt context and must not block.
type Handler func(state, changed uint32)

// Line is one monitored input. Bit i of the state mask is the i-th line
// passed to New.
type Line struct {
	Offset    int
	ActiveLow bool
}

// Tracker owns the input lines.
type Tracker struct {
	drv     gpio.Driver
	lines   []Line
	handler Handler

	irqMu  sync.Mutex    // held across read, swap and dispatch
	state  atomic.Uint32 // written by the interrupt path only
	polled atomic.Uint32 // Poll baseline

	interrupts atomic.Uint64
}

// New creates a Tracker for up to 32 lines.
func New(drv gpio.Driver, lines []Line) *Tracker {
	return &Tracker{drv: drv, lines: lines}
}

// Init configures every line as an input, enables both-edge interrupts for
// the group and latches the initial state. Any failure is a configuration
// error; the device cannot run without its inputs.
func (t *Tracker) Init(h Handler) error {
	if len(t.lines) == 0 || len(t.lines) > 32 {
		return apperr.Wrap(apperr.ConfigFailed, "buttons init", fmt.Errorf("need 1 to 32 lines, got %d", len(t.lines)))
	}
	t.handler = h

	var mask uint64
	for i, l := range t.lines {
		if err := t.drv.Configure(l.Offset, gpio.Input); err != nil {
			return apperr.Wrap(apperr.ConfigFailed, fmt.Sprintf("configure button %d (line %d)", i, l.Offset), err)
		}
		mask |= gpio.Bit(l.Offset)
	}
	if err := t.drv.RegisterInterrupt(mask, t.onInterrupt); err != nil {
		return apperr.Wrap(apperr.ConfigFailed, "register button interrupt", err)
	}

	t.state.Store(t.read())
	t.Poll(nil, nil)

	logger.Debug().Uint64("pin_mask", mask).Uint32("state", t.state.Load()).Msg("buttons initialised")
	return nil
}

// Poll returns the latched state and the bits changed since the previous Poll.
// Either pointer may be nil.
func (t *Tracker) Poll(state, changed *uint32) {
	cur := t.state.Load()
	last := t.polled.Swap(cur)
	if state != nil {
		*state = cur
	}
	if changed != nil {
		*changed = cur ^ last
	}
}

// State returns the latched state without touching the Poll baseline.
func (t *Tracker) State() uint32 {
	return t.state.Load()
}

// Interrupts returns how many interrupts have been handled.
func (t *Tracker) Interrupts() uint64 {
	return t.interrupts.Load()
}

// onInterrupt may run on several driver goroutines at once; the latch must
// always end on the newest reading.
func (t *Tracker) onInterrupt(pins uint64) {
	t.irqMu.Lock()
	defer t.irqMu.Unlock()

	t.interrupts.Add(1)
	cur := t.read()
	last := t.state.Swap(cur)
	if t.handler != nil {
		t.handler(cur, last^cur)
	}
}

// read samples every line. A line that fails to read is reported as released.
func (t *Tracker) read() uint32 {
	var s uint32
	for i, l := range t.lines {
		v, err := t.drv.Get(l.Offset)
		if err != nil {
			continue
		}
		if l.ActiveLow {
			v = !v
		}
		if v {
			s |= 1 << uint(i)
		}
	}
	return s
}
