package device

import (
	"errors"

	"github.com/sweeney/contact-sensor/internal/stack"
	"github.com/sweeney/contact-sensor/internal/zcl"
)

// Identifying reports whether the blinker is active.
func (d *Device) Identifying() bool {
	return d.identifying
}

// onIdentify is the engine's identify notification.
func (d *Device) onIdentify(active bool) {
	if !active {
		d.stopBlink()
		return
	}
	if d.identifying {
		return
	}
	d.identifying = true
	d.nextSession()
	d.rec.IdentifyChanged(true)
	if err := d.stack.ScheduleCallback(d.tick, d.session); err != nil {
		d.log.Error().Err(err).Msg("schedule identify blink")
	}
}

func (d *Device) stopBlink() {
	d.stack.CancelAlarm(d.tick, stack.AnyParam)
	d.nextSession()
	if d.identifying {
		d.rec.IdentifyChanged(false)
	}
	d.identifying = false
	d.phase = false
	d.leds.Set(d.cfg.NetworkLED, !d.stack.Joined())
}

// nextSession retires every tick already queued for the identify loop. The
// tag travels in the tick's parameter and never takes the NoBuf or AnyParam
// values.
func (d *Device) nextSession() {
	d.session++
	if d.session == stack.NoBuf || d.session == stack.AnyParam {
		d.session = 1
	}
}

func (d *Device) blink(session stack.BufID) {
	if !d.identifying || session != d.session {
		return
	}
	if d.stack.IdentifyTime(d.cfg.Endpoint) == zcl.IdentifyTimeDefault {
		d.stopBlink()
		return
	}
	d.phase = !d.phase
	d.leds.Set(d.cfg.NetworkLED, d.phase)
	if err := d.stack.ScheduleAlarm(d.tick, session, d.cfg.BlinkInterval); err != nil {
		d.log.Error().Err(err).Msg("re-arm identify blink")
	}
}

// startIdentifying toggles finding & binding target mode. Scheduled by the
// secondary input release.
func (d *Device) startIdentifying(stack.BufID) {
	if !d.stack.Joined() {
		d.log.Warn().Msg("not on a network, cannot identify")
		return
	}
	ep := d.cfg.Endpoint
	if d.stack.IdentifyTime(ep) != zcl.IdentifyTimeDefault {
		d.log.Info().Msg("cancel identify mode")
		d.stack.FindingBindingTargetCancel()
		return
	}
	err := d.stack.FindingBindingTarget(ep)
	switch {
	case err == nil:
		d.log.Info().Msg("enter identify mode")
	case errors.Is(err, stack.ErrInvalidState):
		d.log.Warn().Err(err).Msg("cannot enter identify mode")
	default:
		d.log.Error().Err(err).Msg("finding & binding")
	}
}
