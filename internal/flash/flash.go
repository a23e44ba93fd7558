// Package flash puts an external SPI NOR flash into deep power-down. Boards
// that carry one draw several hundred microamps from it otherwise.
package flash

import (
	"fmt"
	"time"

	"tinygo.org/x/drivers"

	"github.com/sweeney/contact-sensor/internal/gpio"
)

// CmdDeepPowerDown is the JEDEC deep power-down opcode.
const CmdDeepPowerDown = 0xB9

// Lines are the GPIO offsets of the flash bus. WP and Hold are active low and
// driven high; negative values mean not connected.
type Lines struct {
	CS   int
	SCK  int
	MOSI int
	WP   int
	Hold int
}

// Configured reports whether the bus lines are set.
func (l Lines) Configured() bool {
	return l.CS >= 0 && l.SCK >= 0 && l.MOSI >= 0
}

// SoftSPI is a write-only, mode 0, MSB-first bit-banged SPI bus. It implements
// drivers.SPI; chip select is handled by the caller.
type SoftSPI struct {
	drv       gpio.Driver
	sck, mosi int
	half      time.Duration
	sleep     func(time.Duration)
}

var _ drivers.SPI = (*SoftSPI)(nil)

// NewSoftSPI creates a bus on the given lines with half a clock period of
// half.
func NewSoftSPI(drv gpio.Driver, sck, mosi int, half time.Duration) *SoftSPI {
	return &SoftSPI{drv: drv, sck: sck, mosi: mosi, half: half, sleep: time.Sleep}
}

// Transfer clocks out one byte. Nothing is read back, so the result is 0.
func (s *SoftSPI) Transfer(b byte) (byte, error) {
	for i := 0; i < 8; i++ {
		if err := s.drv.Set(s.mosi, b&0x80 != 0); err != nil {
			return 0, err
		}
		b <<= 1
		s.sleep(s.half)
		if err := s.drv.Set(s.sck, true); err != nil {
			return 0, err
		}
		s.sleep(s.half)
		if err := s.drv.Set(s.sck, false); err != nil {
			return 0, err
		}
		s.sleep(s.half)
	}
	return 0, nil
}

// Tx writes w; r, if non-nil, is zero filled.
func (s *SoftSPI) Tx(w, r []byte) error {
	for i, b := range w {
		if _, err := s.Transfer(b); err != nil {
			return err
		}
		if i < len(r) {
			r[i] = 0
		}
	}
	return nil
}

// Flash drives the chip select and control lines around a drivers.SPI bus.
type Flash struct {
	drv    gpio.Driver
	lines  Lines
	settle time.Duration
	sleep  func(time.Duration)
	ready  bool // lines configured
}

// New creates a flash controller with the default 1 ms settle time.
func New(drv gpio.Driver, lines Lines) *Flash {
	return &Flash{drv: drv, lines: lines, settle: time.Millisecond, sleep: time.Sleep}
}

// Bus returns a bit-banged bus on the configured clock and data lines.
func (f *Flash) Bus() *SoftSPI {
	sp := NewSoftSPI(f.drv, f.lines.SCK, f.lines.MOSI, time.Microsecond)
	sp.sleep = f.sleep
	return sp
}

// Init configures the bus lines as outputs in their idle levels. Requesting
// an output drives it low, so later calls leave configured lines alone and
// CS never dips outside a transfer.
func (f *Flash) Init() error {
	if f.ready {
		return nil
	}
	idle := []struct {
		line  int
		level bool
	}{
		{f.lines.CS, true},
		{f.lines.SCK, false},
		{f.lines.MOSI, false},
		{f.lines.WP, true},
		{f.lines.Hold, true},
	}
	for _, p := range idle {
		if p.line < 0 {
			continue
		}
		if err := f.drv.Configure(p.line, gpio.Output); err != nil {
			return fmt.Errorf("flash: configure line %d: %w", p.line, err)
		}
		if err := f.drv.Set(p.line, p.level); err != nil {
			return fmt.Errorf("flash: set line %d: %w", p.line, err)
		}
	}
	f.sleep(f.settle)
	f.ready = true
	return nil
}

// PowerDown sends the deep power-down command over bus.
func (f *Flash) PowerDown(bus drivers.SPI) error {
	if err := f.drv.Set(f.lines.CS, false); err != nil {
		return fmt.Errorf("flash: select: %w", err)
	}
	f.sleep(time.Microsecond)
	err := bus.Tx([]byte{CmdDeepPowerDown}, nil)
	f.sleep(time.Microsecond)
	if derr := f.drv.Set(f.lines.CS, true); err == nil && derr != nil {
		err = fmt.Errorf("flash: deselect: %w", derr)
	}
	if err != nil {
		return fmt.Errorf("flash: power down: %w", err)
	}
	return nil
}

// Sleep configures the bus and powers the flash down.
func (f *Flash) Sleep() error {
	if !f.lines.Configured() {
		return nil
	}
	if err := f.Init(); err != nil {
		return err
	}
	return f.PowerDown(f.Bus())
}
