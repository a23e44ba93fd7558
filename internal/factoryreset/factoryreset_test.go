package factoryreset

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type manualTimer struct {
	d       time.Duration
	f       func()
	stopped bool
}

func (m *manualTimer) Stop() bool {
	was := !m.stopped
	m.stopped = true
	return was
}

type manualClock struct {
	timers []*manualTimer
}

func (c *manualClock) after(d time.Duration, f func()) Stopper {
	t := &manualTimer{d: d, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *manualClock) last() *manualTimer {
	return c.timers[len(c.timers)-1]
}

const btn = 1 << 1

func newDetector() (*Detector, *manualClock, *int) {
	clk := &manualClock{}
	resets := 0
	d := New(0, func() { resets++ }).WithAfterFunc(clk.after)
	d.Register(btn)
	return d, clk, &resets
}

func TestLongPressTriggersReset(t *testing.T) {
	d, clk, resets := newDetector()

	d.Check(btn, btn)
	assert.Len(t, clk.timers, 1)
	assert.Equal(t, DefaultPressTime, clk.last().d)
	assert.False(t, d.WasDone())

	clk.last().f()
	assert.True(t, d.WasDone())
	assert.Equal(t, 1, *resets)

	// Release keeps the flag so the release is not treated as a short press.
	d.Check(0, btn)
	assert.True(t, d.WasDone())

	// Next press clears it.
	d.Check(btn, btn)
	assert.False(t, d.WasDone())
}

func TestShortPressCancels(t *testing.T) {
	d, clk, resets := newDetector()

	d.Check(btn, btn)
	tm := clk.last()
	d.Check(0, btn)
	assert.True(t, tm.stopped)

	// A late fire from a stopped timer is ignored.
	tm.f()
	assert.False(t, d.WasDone())
	assert.Equal(t, 0, *resets)
}

func TestUnrelatedInputsIgnored(t *testing.T) {
	d, clk, _ := newDetector()
	d.Check(1, 1)
	d.Check(btn|1, 1)
	assert.Empty(t, clk.timers)
}

func TestUnregisteredIgnoresEverything(t *testing.T) {
	clk := &manualClock{}
	d := New(time.Second, nil).WithAfterFunc(clk.after)
	d.Check(btn, btn)
	assert.Empty(t, clk.timers)
}

func TestRealTimer(t *testing.T) {
	fired := make(chan struct{}, 1)
	d := New(10*time.Millisecond, func() { fired <- struct{}{} })
	d.Register(btn)
	d.Check(btn, btn)

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("reset not triggered")
	}
	assert.True(t, d.WasDone())
}
