// Package device is the application on top of the protocol engine. It turns
// input edges into On/Off commands, reflects the network join state on the
// indicator, blinks while identifying and drives the battery sampler.
package device

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/sweeney/contact-sensor/internal/logger"
	"github.com/sweeney/contact-sensor/internal/sampler"
	"github.com/sweeney/contact-sensor/internal/stack"
	"github.com/sweeney/contact-sensor/internal/zcl"
)

// Stack is the protocol engine as seen by the device. *stack.Engine
// implements it.
type Stack interface {
	sampler.Store

	Joined() bool
	DefaultSignalHandler(buf stack.BufID) error
	RegisterEndpoint(d zcl.EndpointDesc) error
	ConfigureReporting(info zcl.ReportingInfo, replace bool) error
	StartReporting(ep uint8, cluster zcl.ClusterID, role zcl.Role, id zcl.AttrID) error
	ScheduleCallback(cb *stack.Callback, buf stack.BufID) error
	ScheduleAlarm(cb *stack.Callback, buf stack.BufID, delay time.Duration) error
	CancelAlarm(cb *stack.Callback, buf stack.BufID) int
	SendOnOff(buf stack.BufID, dst zcl.Address, srcEP uint8, cmd zcl.OnOffCmd) error
	FindingBindingTarget(ep uint8) error
	FindingBindingTargetCancel()
	IdentifyTime(ep uint8) uint16
	SetIdentifyHandler(ep uint8, h func(active bool))
	UserInputIndicate()
	SetLongPollInterval(d time.Duration)
	FactoryReset()
}

// Indicator drives the LEDs.
type Indicator interface {
	Set(idx int, on bool)
}

// Sampler is the battery sampler lifecycle.
type Sampler interface {
	Start()
	Stop()
}

// ResetButton is the factory reset collaborator.
type ResetButton interface {
	Check(state, changed uint32)
	WasDone() bool
}

// Flash powers down an external flash chip.
type Flash interface {
	Sleep() error
}

// Recorder observes device events for the status page.
type Recorder interface {
	JoinChanged(joined bool)
	IdentifyChanged(active bool)
	Input(state, changed uint32)
	CommandQueued(cmd zcl.OnOffCmd)
	PressDropped(err error)
}

type nopRecorder struct{}

func (nopRecorder) JoinChanged(bool)           {}
func (nopRecorder) IdentifyChanged(bool)       {}
func (nopRecorder) Input(uint32, uint32)       {}
func (nopRecorder) CommandQueued(zcl.OnOffCmd) {}
func (nopRecorder) PressDropped(error)         {}

// Config holds the device constants.
type Config struct {
	Endpoint      uint8
	Dest          zcl.Address
	PrimaryMask   uint32
	SecondaryMask uint32
	NetworkLED    int
	UserLED       int
	BlinkInterval time.Duration
	LongPoll      time.Duration
	Basic         zcl.BasicAttrs
	Battery       zcl.BatteryAttrs
}

// DeviceIDDimmerSwitch is the HA device id the endpoint is declared as.
const DeviceIDDimmerSwitch = 0x0104

// DefaultConfig returns the settings of the contact sensor board.
func DefaultConfig() Config {
	return Config{
		Endpoint:      1,
		Dest:          zcl.Address{ShortAddr: 0x0000, Endpoint: 1, Profile: zcl.ProfileHA},
		PrimaryMask:   1 << 0,
		SecondaryMask: 1 << 1,
		NetworkLED:    0,
		UserLED:       1,
		BlinkInterval: 100 * time.Millisecond,
		LongPoll:      time.Hour,
		Basic: zcl.BasicAttrs{
			AppVersion:   1,
			StackVersion: 10,
			HWVersion:    11,
			Manufacturer: "sweeney",
			Model:        "contact-sensor",
			DateCode:     "20240226",
			PowerSource:  zcl.PowerSourceBattery,
			Location:     "Earth",
			PhysicalEnv:  zcl.PhysicalEnvUnspecified,
		},
		Battery: zcl.BatteryAttrs{
			Size:                zcl.BatterySizeOther,
			Quantity:            1,
			RatedVoltage:        30,
			VoltageMinThreshold: 20,
			VoltageThresholds:   [3]uint8{22, 24, 26},
			PercentMinThreshold: 2 * 10,
			PercentThresholds:   [3]uint8{2 * 15, 2 * 20, 2 * 25},
		},
	}
}

// Endpoint builds the device's endpoint descriptor.
func Endpoint(cfg Config) zcl.EndpointDesc {
	return zcl.Endpoint(cfg.Endpoint, DeviceIDDimmerSwitch, 0,
		zcl.BasicServer(cfg.Basic),
		zcl.IdentifyClient(),
		zcl.IdentifyServer(),
		zcl.OnOffClient(),
		zcl.PowerConfigServer(cfg.Battery),
	)
}

// Thresholds returns the battery alarm thresholds configured for the sampler.
func (c Config) Thresholds() sampler.Thresholds {
	return sampler.Thresholds{Min: c.Battery.VoltageMinThreshold, Voltage: c.Battery.VoltageThresholds}
}

// Device is the application state. Apart from HandleButtons, its methods run
// in the engine context.
type Device struct {
	cfg     Config
	stack   Stack
	leds    Indicator
	sampler Sampler
	reset   ResetButton
	flash   Flash
	rec     Recorder
	log     zerolog.Logger

	lastJoin    bool
	identifying bool
	phase       bool
	session     stack.BufID // tag of the live blink loop

	tick          *stack.Callback
	startIdentify *stack.Callback
	sendOn        *stack.Callback
	sendOff       *stack.Callback
	factoryReset  *stack.Callback
}

// New creates a device. flash and rec may be nil.
func New(cfg Config, s Stack, leds Indicator, smp Sampler, reset ResetButton, flash Flash, rec Recorder) *Device {
	if cfg.BlinkInterval <= 0 {
		cfg.BlinkInterval = 100 * time.Millisecond
	}
	if rec == nil {
		rec = nopRecorder{}
	}
	d := &Device{
		cfg:     cfg,
		stack:   s,
		leds:    leds,
		sampler: smp,
		reset:   reset,
		flash:   flash,
		rec:     rec,
		log:     logger.With("device"),
	}
	d.tick = &stack.Callback{Name: "identify-blink", Fn: d.blink}
	d.startIdentify = &stack.Callback{Name: "start-identifying", Fn: d.startIdentifying}
	d.sendOn = &stack.Callback{Name: "send-on", Fn: func(buf stack.BufID) { d.sendOnOff(buf, zcl.CmdOn) }}
	d.sendOff = &stack.Callback{Name: "send-off", Fn: func(buf stack.BufID) { d.sendOnOff(buf, zcl.CmdOff) }}
	d.factoryReset = &stack.Callback{Name: "factory-reset", Fn: func(stack.BufID) { d.stack.FactoryReset() }}
	return d
}

// Init registers the endpoint and identify handler, sets the indicators to
// their not-joined state and powers down the flash.
func (d *Device) Init() error {
	if err := d.stack.RegisterEndpoint(Endpoint(d.cfg)); err != nil {
		return err
	}
	d.stack.SetIdentifyHandler(d.cfg.Endpoint, d.onIdentify)
	d.leds.Set(d.cfg.NetworkLED, true)
	d.leds.Set(d.cfg.UserLED, false)
	d.sleepFlash()
	return nil
}

// RequestFactoryReset schedules a factory reset in the engine context. It is
// the reset button's timer callback.
func (d *Device) RequestFactoryReset() {
	if err := d.stack.ScheduleCallback(d.factoryReset, stack.NoBuf); err != nil {
		d.log.Error().Err(err).Msg("schedule factory reset")
	}
}

func (d *Device) sleepFlash() {
	if d.flash == nil {
		return
	}
	if err := d.flash.Sleep(); err != nil {
		d.log.Warn().Err(err).Msg("flash power down")
	}
}
