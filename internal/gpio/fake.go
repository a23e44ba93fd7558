package gpio

import (
	"fmt"
	"sync"
)

// Write records one Set call on a FakeDriver.
type Write struct {
	Line  int
	Level bool
}

// FakeDriver is a test double holding line levels in memory. Fire simulates an
// edge interrupt on the caller's goroutine.
type FakeDriver struct {
	mu      sync.Mutex
	levels  map[int]bool
	dirs    map[int]Direction
	irqMask uint64
	irq     InterruptHandler

	// ConfigureErr, if set for a line, is returned by Configure for that line.
	ConfigureErr map[int]error

	// RegisterErr, if set, is returned by RegisterInterrupt.
	RegisterErr error

	// Writes records every Set call in order.
	Writes []Write

	configures map[int]int

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeDriver creates a FakeDriver with every line low.
func NewFakeDriver() *FakeDriver {
	return &FakeDriver{
		levels:       map[int]bool{},
		dirs:         map[int]Direction{},
		ConfigureErr: map[int]error{},
		configures:   map[int]int{},
	}
}

// Configure records the line direction.
func (f *FakeDriver) Configure(line int, dir Direction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.ConfigureErr[line]; err != nil {
		return err
	}
	f.dirs[line] = dir
	f.configures[line]++
	if dir == Output {
		f.levels[line] = false
	}
	return nil
}

// Set drives a configured output line.
func (f *FakeDriver) Set(line int, level bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if dir, ok := f.dirs[line]; !ok || dir != Output {
		return fmt.Errorf("line %d is not an output", line)
	}
	f.levels[line] = level
	f.Writes = append(f.Writes, Write{Line: line, Level: level})
	return nil
}

// Get returns the level of a configured line.
func (f *FakeDriver) Get(line int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.dirs[line]; !ok {
		return false, fmt.Errorf("line %d not configured", line)
	}
	return f.levels[line], nil
}

// RegisterInterrupt stores the handler for the lines in mask.
func (f *FakeDriver) RegisterInterrupt(mask uint64, h InterruptHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.RegisterErr != nil {
		return f.RegisterErr
	}
	f.irqMask = mask
	f.irq = h
	return nil
}

// Close marks the driver as closed.
func (f *FakeDriver) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// SetLevel changes an input level without raising an interrupt.
func (f *FakeDriver) SetLevel(line int, level bool) {
	f.mu.Lock()
	f.levels[line] = level
	f.mu.Unlock()
}

// Fire changes an input level and, if interrupts are enabled for the line,
// calls the handler synchronously.
func (f *FakeDriver) Fire(line int, level bool) {
	f.mu.Lock()
	f.levels[line] = level
	h := f.irq
	enabled := f.irqMask&Bit(line) != 0
	f.mu.Unlock()

	if h != nil && enabled {
		h(Bit(line))
	}
}

// Level returns the current level of any line.
func (f *FakeDriver) Level(line int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.levels[line]
}

// Dir returns the configured direction of a line.
func (f *FakeDriver) Dir(line int) (Direction, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.dirs[line]
	return d, ok
}

// Configures returns how many times Configure succeeded for a line.
func (f *FakeDriver) Configures(line int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.configures[line]
}

// InterruptMask returns the mask passed to RegisterInterrupt.
func (f *FakeDriver) InterruptMask() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.irqMask
}

// WritesTo returns the recorded levels written to one line.
func (f *FakeDriver) WritesTo(line int) []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []bool
	for _, w := range f.Writes {
		if w.Line == line {
			out = append(out, w.Level)
		}
	}
	return out
}
