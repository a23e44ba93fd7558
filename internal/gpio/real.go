//go:build linux

package gpio

import (
	"fmt"
	"sync"

	"github.com/warthog618/go-gpiocdev"
)

// RealDriver drives lines of one Linux GPIO chip. Interrupt lines are held in
// a single multi-line request so their events share one watcher goroutine.
type RealDriver struct {
	mu    sync.Mutex
	chip  *gpiocdev.Chip
	lines map[int]*gpiocdev.Line
	dirs  map[int]Direction

	group   *gpiocdev.Lines
	members map[int]int // offset -> index in group
}

// NewRealDriver opens the named chip, e.g. "gpiochip0".
func NewRealDriver(chipName string) (*RealDriver, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", chipName, err)
	}
	return &RealDriver{
		chip:  chip,
		lines: map[int]*gpiocdev.Line{},
		dirs:  map[int]Direction{},
	}, nil
}

// Configure requests the line with the given direction, releasing any
// previous request for it.
func (d *RealDriver) Configure(line int, dir Direction) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var opts []gpiocdev.LineReqOption
	if dir == Output {
		opts = append(opts, gpiocdev.AsOutput(0))
	} else {
		opts = append(opts, gpiocdev.AsInput)
	}
	if err := d.request(line, opts...); err != nil {
		return fmt.Errorf("configure line %d as %s: %w", line, dir, err)
	}
	d.dirs[line] = dir
	return nil
}

// Set drives an output line.
func (d *RealDriver) Set(line int, level bool) error {
	l, err := d.line(line)
	if err != nil {
		return err
	}
	v := 0
	if level {
		v = 1
	}
	if err := l.SetValue(v); err != nil {
		return fmt.Errorf("set line %d: %w", line, err)
	}
	return nil
}

// Get reads a line.
func (d *RealDriver) Get(line int) (bool, error) {
	d.mu.Lock()
	grp, idx, inGroup := d.group, d.members[line], d.inGroup(line)
	d.mu.Unlock()
	if inGroup {
		vals := make([]int, len(grp.Offsets()))
		if err := grp.Values(vals); err != nil {
			return false, fmt.Errorf("read line %d: %w", line, err)
		}
		return vals[idx] != 0, nil
	}

	l, err := d.line(line)
	if err != nil {
		return false, err
	}
	v, err := l.Value()
	if err != nil {
		return false, fmt.Errorf("read line %d: %w", line, err)
	}
	return v != 0, nil
}

// RegisterInterrupt re-requests every line in mask as one input group with
// edge detection on both edges. Events arrive on the group's watcher
// goroutine, one at a time.
func (d *RealDriver) RegisterInterrupt(mask uint64, h InterruptHandler) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var offsets []int
	for line := 0; line < 64; line++ {
		if mask&Bit(line) == 0 {
			continue
		}
		if dir, ok := d.dirs[line]; !ok || dir != Input {
			return fmt.Errorf("line %d: interrupt requires a configured input", line)
		}
		offsets = append(offsets, line)
	}
	if len(offsets) == 0 {
		return fmt.Errorf("interrupt mask %#x selects no lines", mask)
	}

	d.releaseGroup()
	for _, off := range offsets {
		if l, ok := d.lines[off]; ok {
			l.Close()
			delete(d.lines, off)
		}
	}
	grp, err := d.chip.RequestLines(offsets,
		gpiocdev.AsInput,
		gpiocdev.WithBothEdges,
		gpiocdev.WithEventHandler(func(evt gpiocdev.LineEvent) { h(Bit(evt.Offset)) }),
	)
	if err != nil {
		return fmt.Errorf("enable interrupts on lines %v: %w", offsets, err)
	}
	d.group = grp
	d.members = make(map[int]int, len(offsets))
	for i, off := range offsets {
		d.members[off] = i
	}
	return nil
}

// Close releases every requested line and the chip.
func (d *RealDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var errs []error
	if d.group != nil {
		if err := d.group.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close interrupt group: %w", err))
		}
		d.group, d.members = nil, nil
	}
	for offset, l := range d.lines {
		if err := l.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close line %d: %w", offset, err))
		}
		delete(d.lines, offset)
	}
	if d.chip != nil {
		if err := d.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
		d.chip = nil
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// request must be called with d.mu held. Reconfiguring a line of the
// interrupt group releases the whole group.
func (d *RealDriver) request(line int, opts ...gpiocdev.LineReqOption) error {
	if d.inGroup(line) {
		d.releaseGroup()
	}
	if old, ok := d.lines[line]; ok {
		old.Close()
		delete(d.lines, line)
	}
	l, err := d.chip.RequestLine(line, opts...)
	if err != nil {
		return err
	}
	d.lines[line] = l
	return nil
}

func (d *RealDriver) line(line int) (*gpiocdev.Line, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.lines[line]
	if !ok {
		return nil, fmt.Errorf("line %d not configured", line)
	}
	return l, nil
}

func (d *RealDriver) inGroup(line int) bool {
	_, ok := d.members[line]
	return ok && d.group != nil
}

// releaseGroup must be called with d.mu held.
func (d *RealDriver) releaseGroup() {
	if d.group == nil {
		return
	}
	d.group.Close()
	d.group, d.members = nil, nil
}
