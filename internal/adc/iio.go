package adc

import (
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/spf13/afero"
)

// IIO reads a Linux industrial I/O voltage channel through sysfs. Oversampling
// is done in software by averaging raw reads, and the raw value is rescaled
// from the device's native resolution to the requested one.
type IIO struct {
	fs         afero.Fs
	dir        string
	channel    int
	nativeBits uint8

	initialised bool
	configured  bool
	res         Resolution
	os          Oversample
	buf         []int16
}

// NewIIO creates a converter for in_voltage<channel>_raw under dir, e.g.
// /sys/bus/iio/devices/iio:device0.
func NewIIO(fs afero.Fs, dir string, channel int, nativeBits uint8) *IIO {
	if nativeBits == 0 {
		nativeBits = 12
	}
	return &IIO{fs: fs, dir: dir, channel: channel, nativeBits: nativeBits}
}

// Init checks the device directory exists. Priority has no meaning for sysfs.
func (a *IIO) Init(priority uint8) error {
	if a.initialised {
		return ErrBusy
	}
	if _, err := a.fs.Stat(a.dir); err != nil {
		return fmt.Errorf("adc: open %s: %w", a.dir, err)
	}
	a.initialised = true
	return nil
}

// ConfigureChannel checks the raw attribute of the channel exists.
func (a *IIO) ConfigureChannel(ch Channel) error {
	if !a.initialised {
		return ErrNotInitialised
	}
	if ch.Mode != SingleEnded {
		return fmt.Errorf("adc: channel %d: only single ended mode is supported", ch.Index)
	}
	if _, err := a.fs.Stat(a.rawPath()); err != nil {
		return fmt.Errorf("adc: channel %d: %w", a.channel, err)
	}
	a.configured = true
	return nil
}

// SetMode records resolution and oversampling.
func (a *IIO) SetMode(channels uint8, res Resolution, os Oversample) error {
	if !a.configured {
		return ErrNoChannel
	}
	if channels&1 == 0 {
		return fmt.Errorf("adc: channel mask %#x does not include channel 0", channels)
	}
	if os == 0 {
		os = OversampleNone
	}
	a.res, a.os = res, os
	return nil
}

// SetBuffer sets the result buffer; only buf[0] is written.
func (a *IIO) SetBuffer(buf []int16) error {
	if len(buf) == 0 {
		return ErrNoBuffer
	}
	a.buf = buf
	return nil
}

// Trigger performs one (oversampled) conversion into the buffer.
func (a *IIO) Trigger() error {
	if !a.configured {
		return ErrNoChannel
	}
	if a.buf == nil {
		return ErrNoBuffer
	}
	var sum int64
	for i := 0; i < int(a.os); i++ {
		v, err := a.readRaw()
		if err != nil {
			return err
		}
		sum += v
	}
	avg := sum / int64(a.os)

	shift := int(a.res) - int(a.nativeBits)
	if shift > 0 {
		avg <<= uint(shift)
	} else if shift < 0 {
		avg >>= uint(-shift)
	}
	if avg > 0x7fff {
		avg = 0x7fff
	}
	a.buf[0] = int16(avg)
	return nil
}

// Deinit releases the converter.
func (a *IIO) Deinit() {
	a.initialised = false
	a.configured = false
	a.buf = nil
}

func (a *IIO) rawPath() string {
	return path.Join(a.dir, fmt.Sprintf("in_voltage%d_raw", a.channel))
}

func (a *IIO) readRaw() (int64, error) {
	b, err := afero.ReadFile(a.fs, a.rawPath())
	if err != nil {
		return 0, fmt.Errorf("adc: read: %w", err)
	}
	v, err := strconv.ParseInt(strings.TrimSpace(string(b)), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("adc: parse %q: %w", strings.TrimSpace(string(b)), err)
	}
	return v, nil
}
