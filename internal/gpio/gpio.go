// Package gpio provides discrete line I/O with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Direction of a line.
type Direction uint8

const (
	Input Direction = iota
	Output
)

func (d Direction) String() string {
	if d == Output {
		return "output"
	}
	return "input"
}

// InterruptHandler is called from the driver's event context with the mask of
// line offsets that raised the interrupt. It must not block.
type InterruptHandler func(pins uint64)

// Driver configures and drives individual lines, addressed by offset.
type Driver interface {
	// Configure sets the line direction. Outputs start low.
	Configure(line int, dir Direction) error

	// Set drives an output line.
	Set(line int, level bool) error

	// Get reads the current level of a line.
	Get(line int) (bool, error)

	// RegisterInterrupt enables both-edge interrupts on every input line in
	// mask (bit n = offset n) and routes them to h.
	RegisterInterrupt(mask uint64, h InterruptHandler) error

	// Close releases all lines.
	Close() error
}

// Bit returns the mask bit of a line offset.
func Bit(line int) uint64 {
	return uint64(1) << uint(line)
}
