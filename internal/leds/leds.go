// Package leds drives the indicator outputs by index.
package leds

import (
	"fmt"

	"github.com/sweeney/contact-sensor/internal/gpio"
	"github.com/sweeney/contact-sensor/internal/logger"
)

// Indicators is an ordered set of LED lines.
type Indicators struct {
	drv   gpio.Driver
	lines []int
}

// New creates Indicators for the given line offsets.
func New(drv gpio.Driver, lines []int) *Indicators {
	return &Indicators{drv: drv, lines: lines}
}

// Init configures every line as an output.
func (l *Indicators) Init() error {
	for i, line := range l.lines {
		if err := l.drv.Configure(line, gpio.Output); err != nil {
			return fmt.Errorf("configure led %d (line %d): %w", i, line, err)
		}
	}
	return nil
}

// Len returns the number of indicators.
func (l *Indicators) Len() int { return len(l.lines) }

// Set drives indicator idx. Unknown indices are ignored.
func (l *Indicators) Set(idx int, on bool) {
	if idx < 0 || idx >= len(l.lines) {
		return
	}
	if err := l.drv.Set(l.lines[idx], on); err != nil {
		logger.Warn().Err(err).Int("led", idx).Msg("led write failed")
	}
}

func (l *Indicators) On(idx int)  { l.Set(idx, true) }
func (l *Indicators) Off(idx int) { l.Set(idx, false) }
