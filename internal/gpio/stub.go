//go:build !linux

package gpio

import "errors"

// RealDriver is not available on non-Linux platforms.
type RealDriver struct{}

// NewRealDriver returns an error on non-Linux platforms.
func NewRealDriver(chipName string) (*RealDriver, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

func (d *RealDriver) Configure(line int, dir Direction) error {
	return errors.New("gpio: not supported")
}

func (d *RealDriver) Set(line int, level bool) error {
	return errors.New("gpio: not supported")
}

func (d *RealDriver) Get(line int) (bool, error) {
	return false, errors.New("gpio: not supported")
}

func (d *RealDriver) RegisterInterrupt(mask uint64, h InterruptHandler) error {
	return errors.New("gpio: not supported")
}

func (d *RealDriver) Close() error {
	return nil
}
