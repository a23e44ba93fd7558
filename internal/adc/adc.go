// Package adc abstracts the single-shot analog converter used to measure the
// supply voltage. The sequence is Init, ConfigureChannel, SetMode, SetBuffer,
// Trigger, Deinit; the converter is powered only between Init and Deinit.
package adc

import (
	"errors"
	"time"
)

// Gain applied to the input before conversion.
type Gain uint8

const (
	Gain1_6 Gain = iota
	Gain1_5
	Gain1_4
	Gain1_3
	Gain1_2
	Gain1
	Gain2
	Gain4
)

// Reciprocal returns the divisor for fractional gains and 1 otherwise.
func (g Gain) Reciprocal() int32 {
	switch g {
	case Gain1_6:
		return 6
	case Gain1_5:
		return 5
	case Gain1_4:
		return 4
	case Gain1_3:
		return 3
	case Gain1_2:
		return 2
	default:
		return 1
	}
}

// Reference voltage source.
type Reference uint8

const (
	RefInternal Reference = iota // 0.6 V
	RefVDD1_4
)

// InternalRefMilliVolts is the internal reference voltage.
const InternalRefMilliVolts = 600

// Input selects the analog input of a channel.
type Input uint8

const (
	InputDisabled Input = iota
	InputAIN0
	InputAIN1
	InputAIN2
	InputAIN3
	InputVDD
)

// Mode of a channel.
type Mode uint8

const (
	SingleEnded Mode = iota
	Differential
)

// Resolution in bits.
type Resolution uint8

const (
	Res8  Resolution = 8
	Res10 Resolution = 10
	Res12 Resolution = 12
	Res14 Resolution = 14
)

// Oversample is the number of samples averaged per result.
type Oversample uint8

const (
	OversampleNone Oversample = 1
	Oversample2x   Oversample = 2
	Oversample4x   Oversample = 4
	Oversample8x   Oversample = 8
)

// Channel configures one converter channel.
type Channel struct {
	Index     uint8
	PinP      Input
	PinN      Input
	Gain      Gain
	Reference Reference
	AcqTime   time.Duration
	Mode      Mode
	Burst     bool
}

// Converter is the driver surface the telemetry sampler uses. It must only be
// called from the deferred-work context.
type Converter interface {
	Init(priority uint8) error
	ConfigureChannel(ch Channel) error
	SetMode(channels uint8, res Resolution, os Oversample) error
	SetBuffer(buf []int16) error
	Trigger() error
	Deinit()
}

var (
	ErrNotInitialised = errors.New("adc: not initialised")
	ErrNoChannel      = errors.New("adc: no channel configured")
	ErrNoBuffer       = errors.New("adc: no buffer")
	ErrBusy           = errors.New("adc: already initialised")
)

// VDDChannel is the channel setup used to measure the supply: single ended
// VDD input, gain 1/6 against the internal reference.
func VDDChannel() Channel {
	return Channel{
		Index:     0,
		PinP:      InputVDD,
		PinN:      InputDisabled,
		Gain:      Gain1_6,
		Reference: RefInternal,
		AcqTime:   10 * time.Microsecond,
		Mode:      SingleEnded,
	}
}
