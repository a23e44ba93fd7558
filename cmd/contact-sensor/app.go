package main

import (
	"time"

	"github.com/sweeney/contact-sensor/internal/adc"
	"github.com/sweeney/contact-sensor/internal/apperr"
	"github.com/sweeney/contact-sensor/internal/battery"
	"github.com/sweeney/contact-sensor/internal/buttons"
	"github.com/sweeney/contact-sensor/internal/config"
	"github.com/sweeney/contact-sensor/internal/device"
	"github.com/sweeney/contact-sensor/internal/factoryreset"
	"github.com/sweeney/contact-sensor/internal/flash"
	"github.com/sweeney/contact-sensor/internal/gpio"
	"github.com/sweeney/contact-sensor/internal/leds"
	"github.com/sweeney/contact-sensor/internal/sampler"
	"github.com/sweeney/contact-sensor/internal/stack"
	"github.com/sweeney/contact-sensor/internal/status"
	"github.com/sweeney/contact-sensor/internal/workq"
	"github.com/sweeney/contact-sensor/internal/zcl"
)

// linkTransport is an engine transport that can report its session state.
type linkTransport interface {
	stack.Transport
	IsConnected() bool
}

// app holds the wired components.
type app struct {
	engine    *stack.Engine
	queue     *workq.Queue
	sampler   *sampler.Sampler
	buttons   *buttons.Tracker
	device    *device.Device
	reset     *factoryreset.Detector
	tracker   *status.Tracker
	transport linkTransport
}

// newApp wires the device. Any failure carries apperr.ConfigFailed and must
// abort startup.
func newApp(cfg *config.Config, drv gpio.Driver, conv adc.Converter, t linkTransport, start time.Time) (*app, error) {
	dcfg := deviceConfig(cfg)

	a := &app{transport: t}
	a.tracker = status.NewTracker(start, status.Config{
		Device:        cfg.MQTT.Device,
		Broker:        cfg.MQTT.Broker,
		HTTPAddr:      cfg.HTTPAddr,
		BatteryPeriod: cfg.Battery.Period,
		BlinkInterval: cfg.Blink,
		Inputs:        len(cfg.GPIO.Buttons),
	})

	a.buttons = buttons.New(drv, buttonLines(cfg))
	ind := leds.New(drv, cfg.GPIO.LEDs)
	if err := ind.Init(); err != nil {
		return nil, apperr.Wrap(apperr.ConfigFailed, "init leds", err)
	}
	fl := flash.New(drv, flash.Lines{
		CS:   cfg.Flash.CS,
		SCK:  cfg.Flash.SCK,
		MOSI: cfg.Flash.MOSI,
		WP:   cfg.Flash.WP,
		Hold: cfg.Flash.Hold,
	})

	a.engine = stack.New(t, stack.DefaultConfig())
	a.queue = workq.NewQueue(4)
	a.sampler = sampler.New(conv, a.engine, a.queue, sampler.NewTimer(), sampler.Config{
		Endpoint:     dcfg.Endpoint,
		InitialDelay: cfg.Battery.InitialDelay,
		Period:       cfg.Battery.Period,
		Table:        battery.CR2032,
		Thresholds:   dcfg.Thresholds(),
	})
	a.sampler.OnSample(func(s sampler.Sample) {
		a.tracker.SetBattery(status.Battery{
			MilliVolts: s.MilliVolts,
			Percent:    s.Percent,
			AlarmState: s.AlarmState,
			At:         s.At,
		})
	})

	a.reset = factoryreset.New(cfg.ResetPress, func() { a.device.RequestFactoryReset() })
	a.reset.Register(dcfg.SecondaryMask)

	a.device = device.New(dcfg, a.engine, ind, a.sampler, a.reset, fl, a.tracker)
	if err := a.device.Init(); err != nil {
		return nil, apperr.Wrap(apperr.ConfigFailed, "init device", err)
	}
	a.engine.SetSignalHandler(a.device.HandleSignal)

	if err := a.buttons.Init(a.device.HandleButtons); err != nil {
		return nil, err
	}
	return a, nil
}

func buttonLines(cfg *config.Config) []buttons.Line {
	lines := make([]buttons.Line, len(cfg.GPIO.Buttons))
	for i, off := range cfg.GPIO.Buttons {
		lines[i] = buttons.Line{Offset: off, ActiveLow: cfg.GPIO.ActiveLow}
	}
	return lines
}

// deviceConfig maps the loaded settings onto the board defaults. Button 0 is
// the contact, button 1 (when present) the identify and reset button.
func deviceConfig(cfg *config.Config) device.Config {
	dc := device.DefaultConfig()
	dc.Endpoint = cfg.Network.Endpoint
	dc.Dest = zcl.Address{
		ShortAddr: cfg.Network.DestAddr,
		Endpoint:  cfg.Network.DestEndpoint,
		Profile:   zcl.ProfileHA,
	}
	dc.BlinkInterval = cfg.Blink
	dc.LongPoll = cfg.Network.LongPoll
	dc.PrimaryMask = 1 << 0
	dc.SecondaryMask = 0
	if len(cfg.GPIO.Buttons) > 1 {
		dc.SecondaryMask = 1 << 1
	}
	return dc
}

// refresh copies the counters that are not pushed to the tracker.
func (a *app) refresh() {
	var state, changed uint32
	a.buttons.Poll(&state, &changed)
	if changed != 0 {
		a.tracker.Input(state, 0)
	}

	st := a.engine.Stats()
	a.tracker.SetEngine(status.Engine{
		UserInputs:       st.UserInputs,
		CommandsSent:     st.CommandsSent,
		ReportsSent:      st.ReportsSent,
		FactoryResets:    st.FactoryResets,
		BuffersInUse:     st.BuffersInUse,
		LongPollInterval: st.LongPollInterval,
	})
	a.tracker.SetConvFailures(a.sampler.Failures())
	a.tracker.SetMQTTConnected(a.transport.IsConnected())
}

func (a *app) statusLine() []byte {
	return status.FormatLine(a.tracker.Snapshot())
}
