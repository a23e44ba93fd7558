package stack

import (
	"time"

	"github.com/sweeney/contact-sensor/internal/zcl"
)

// FindingBindingDuration is how long finding & binding keeps the device in
// identify mode.
const FindingBindingDuration = 180 * time.Second

// SetIdentifyHandler registers the notification for identify start (true)
// and stop (false) on endpoint ep. It runs in the engine context.
func (e *Engine) SetIdentifyHandler(ep uint8, h func(active bool)) {
	e.identifyMu.Lock()
	e.identifyHandlers[ep] = h
	e.identifyMu.Unlock()
}

// IdentifyTime returns the remaining identify time in seconds on ep, or 0.
func (e *Engine) IdentifyTime(ep uint8) uint16 {
	v, err := e.GetAttr(ep, zcl.ClusterIdentify, zcl.RoleServer, zcl.AttrIdentifyTime)
	if err != nil {
		return zcl.IdentifyTimeDefault
	}
	return uint16(v.Num)
}

// FindingBindingTarget puts ep into identify mode so a network peer can find
// and bind to it. It fails with ErrInvalidState when not joined or already
// identifying. Runs in the engine context.
func (e *Engine) FindingBindingTarget(ep uint8) error {
	if !e.joined.Load() {
		return ErrInvalidState
	}
	if e.IdentifyTime(ep) != zcl.IdentifyTimeDefault {
		return ErrInvalidState
	}
	return e.startIdentify(ep, uint16(FindingBindingDuration/time.Second))
}

// FindingBindingTargetCancel stops identify mode on every endpoint.
func (e *Engine) FindingBindingTargetCancel() {
	e.attrMu.Lock()
	var active []uint8
	for id := range e.endpoints {
		active = append(active, id)
	}
	e.attrMu.Unlock()
	for _, ep := range active {
		if e.IdentifyTime(ep) != zcl.IdentifyTimeDefault {
			e.stopIdentify(ep)
		}
	}
}

// IdentifyRequest is called by the transport when a peer asks the device to
// identify for seconds; 0 stops identifying. Safe from any goroutine.
func (e *Engine) IdentifyRequest(seconds uint16) {
	cb := &Callback{Name: "identify-request", Fn: func(BufID) {
		e.identifyMu.Lock()
		var eps []uint8
		for ep := range e.identifyHandlers {
			eps = append(eps, ep)
		}
		e.identifyMu.Unlock()
		for _, ep := range eps {
			if seconds == 0 {
				e.stopIdentify(ep)
				continue
			}
			if err := e.startIdentify(ep, seconds); err != nil {
				e.log.Warn().Err(err).Uint8("endpoint", ep).Msg("identify request")
			}
		}
	}}
	if err := e.ScheduleCallback(cb, NoBuf); err != nil {
		e.log.Error().Err(err).Msg("identify request dropped")
	}
}

func (e *Engine) startIdentify(ep uint8, seconds uint16) error {
	was := e.IdentifyTime(ep)
	if err := e.SetAttr(ep, zcl.ClusterIdentify, zcl.RoleServer, zcl.AttrIdentifyTime, zcl.U16(seconds), false); err != nil {
		return err
	}
	e.CancelAlarm(e.identifyTick, BufID(ep))
	if err := e.ScheduleAlarm(e.identifyTick, BufID(ep), time.Second); err != nil {
		return err
	}
	if was == zcl.IdentifyTimeDefault {
		e.notifyIdentify(ep, true)
	}
	return nil
}

func (e *Engine) stopIdentify(ep uint8) {
	e.CancelAlarm(e.identifyTick, BufID(ep))
	was := e.IdentifyTime(ep)
	_ = e.SetAttr(ep, zcl.ClusterIdentify, zcl.RoleServer, zcl.AttrIdentifyTime, zcl.U16(zcl.IdentifyTimeDefault), false)
	if was != zcl.IdentifyTimeDefault {
		e.notifyIdentify(ep, false)
	}
}

func (e *Engine) identifyCountdown(buf BufID) {
	ep := uint8(buf)
	left := e.IdentifyTime(ep)
	if left <= 1 {
		e.stopIdentify(ep)
		return
	}
	_ = e.SetAttr(ep, zcl.ClusterIdentify, zcl.RoleServer, zcl.AttrIdentifyTime, zcl.U16(left-1), false)
	_ = e.ScheduleAlarm(e.identifyTick, buf, time.Second)
}

func (e *Engine) notifyIdentify(ep uint8, active bool) {
	e.identifyMu.Lock()
	h := e.identifyHandlers[ep]
	e.identifyMu.Unlock()
	e.log.Info().Uint8("endpoint", ep).Bool("active", active).Msg("identify")
	if h != nil {
		h(active)
	}
}
