package device

import (
	"github.com/sweeney/contact-sensor/internal/stack"
	"github.com/sweeney/contact-sensor/internal/zcl"
)

// HandleButtons is the edge tracker handler. It runs in the interrupt context
// and only enqueues engine work.
func (d *Device) HandleButtons(state, changed uint32) {
	d.stack.UserInputIndicate()
	d.reset.Check(state, changed)
	d.rec.Input(state, changed)

	var cb *stack.Callback
	var cmd zcl.OnOffCmd
	switch {
	case d.cfg.PrimaryMask&changed&state != 0:
		cb, cmd = d.sendOn, zcl.CmdOn
	case d.cfg.PrimaryMask&changed&^state != 0:
		cb, cmd = d.sendOff, zcl.CmdOff
	case d.cfg.SecondaryMask&changed&^state != 0:
		if d.reset.WasDone() {
			return
		}
		if err := d.stack.ScheduleCallback(d.startIdentify, stack.NoBuf); err != nil {
			d.log.Error().Err(err).Msg("schedule identify")
			d.rec.PressDropped(err)
		}
		return
	default:
		return
	}

	if err := d.stack.GetOutBufferDeferred(cb); err != nil {
		d.log.Error().Err(err).Stringer("cmd", cmd).Msg("request out buffer")
		d.rec.PressDropped(err)
		return
	}
	d.rec.CommandQueued(cmd)
}

func (d *Device) sendOnOff(buf stack.BufID, cmd zcl.OnOffCmd) {
	d.log.Info().Stringer("cmd", cmd).Msg("send on/off")
	if err := d.stack.SendOnOff(buf, d.cfg.Dest, d.cfg.Endpoint, cmd); err != nil {
		d.log.Error().Err(err).Stringer("cmd", cmd).Msg("send on/off")
	}
}
