package device

import (
	"github.com/sweeney/contact-sensor/internal/stack"
	"github.com/sweeney/contact-sensor/internal/zcl"
)

const (
	reportMin = 0x0001
	reportMax = 0xfffe
)

// HandleSignal is the engine signal handler. Join state side effects run
// only on edges of Joined.
func (d *Device) HandleSignal(buf stack.BufID) {
	if err := d.stack.DefaultSignalHandler(buf); err != nil {
		d.log.Error().Err(err).Msg("signal")
	}
	if buf != stack.NoBuf {
		if err := d.stack.FreeBuffer(buf); err != nil {
			d.log.Error().Err(err).Msg("free signal buffer")
		}
	}

	joined := d.stack.Joined()
	switch {
	case !d.lastJoin && joined:
		d.onJoined()
	case d.lastJoin && !joined:
		d.onLeft()
	}
	d.lastJoin = joined
}

func (d *Device) onJoined() {
	d.log.Info().Msg("joined network")
	d.rec.JoinChanged(true)
	d.leds.Set(d.cfg.NetworkLED, false)
	d.stack.SetLongPollInterval(d.cfg.LongPoll)
	d.configureReporting()

	ep := d.cfg.Endpoint
	if err := d.stack.StartReporting(ep, zcl.ClusterPowerConfig, zcl.RoleServer, zcl.AttrBatteryVoltage); err != nil {
		d.log.Warn().Err(err).Msg("start battery voltage reporting")
	}
	d.sampler.Start()
	d.sleepFlash()
}

func (d *Device) onLeft() {
	d.log.Info().Msg("left network")
	d.rec.JoinChanged(false)
	d.leds.Set(d.cfg.NetworkLED, true)
	d.sampler.Stop()
}

// ReportingConfigs returns the battery reporting policies installed on join.
// Voltage is reported on change only.
func (d *Device) ReportingConfigs() []zcl.ReportingInfo {
	mk := func(attr zcl.AttrID, max uint16, reported zcl.Value) zcl.ReportingInfo {
		return zcl.ReportingInfo{
			Endpoint:       d.cfg.Endpoint,
			Cluster:        zcl.ClusterPowerConfig,
			Role:           zcl.RoleServer,
			Attr:           attr,
			Dst:            d.cfg.Dest,
			MinInterval:    reportMin,
			MaxInterval:    max,
			ReportedValue:  reported,
			DefMinInterval: reportMin,
			DefMaxInterval: reportMax,
		}
	}
	return []zcl.ReportingInfo{
		mk(zcl.AttrBatteryVoltage, zcl.ReportNoPeriodic, zcl.U8(0)),
		mk(zcl.AttrBatteryPercentageRemaining, reportMax, zcl.U8(0)),
		mk(zcl.AttrBatteryAlarmState, reportMax, zcl.Bitmap32(0)),
	}
}

func (d *Device) configureReporting() {
	for _, info := range d.ReportingConfigs() {
		if err := d.stack.ConfigureReporting(info, true); err != nil {
			d.log.Error().Err(err).Uint16("attr", uint16(info.Attr)).Msg("configure reporting")
		}
	}
}
