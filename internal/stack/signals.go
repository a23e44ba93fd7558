package stack

// Signal is a network lifecycle event delivered to the application signal
// handler inside a buffer.
type Signal uint8

const (
	SignalNone Signal = iota
	SignalSkipStartup
	SignalDeviceFirstStart
	SignalDeviceReboot
	SignalSteering
	SignalLeave
	SignalDeviceAnnce
	SignalCanSleep
)

var signalNames = map[Signal]string{
	SignalNone:             "none",
	SignalSkipStartup:      "skip-startup",
	SignalDeviceFirstStart: "device-first-start",
	SignalDeviceReboot:     "device-reboot",
	SignalSteering:         "steering",
	SignalLeave:            "leave",
	SignalDeviceAnnce:      "device-announce",
	SignalCanSleep:         "can-sleep",
}

func (s Signal) String() string {
	if n, ok := signalNames[s]; ok {
		return n
	}
	return "unknown"
}

type signalEvt struct {
	sig    Signal
	status error
}

// SignalOf returns the signal and status carried by buf.
func (e *Engine) SignalOf(buf BufID) (Signal, error) {
	e.bufMu.Lock()
	defer e.bufMu.Unlock()
	if !e.validLocked(buf) {
		return SignalNone, ErrBadBuffer
	}
	d := e.bufData[buf]
	return d.sig, d.status
}

// SetSignalHandler installs the application signal handler. It owns the
// buffer it is given. With no handler, DefaultSignalHandler runs and the
// buffer is freed.
func (e *Engine) SetSignalHandler(h func(buf BufID)) {
	e.signalHandler = h
}

// DefaultSignalHandler performs the engine's own processing of a signal:
// SkipStartup starts the transport, the rest are logged. The returned error
// is the transport start failure or the status carried by the signal.
func (e *Engine) DefaultSignalHandler(buf BufID) error {
	sig, status := e.SignalOf(buf)
	if sig == SignalNone && status != nil {
		return status
	}
	switch sig {
	case SignalSkipStartup:
		e.log.Info().Msg("starting network transport")
		if err := e.transport.Start(e); err != nil {
			return err
		}
	case SignalDeviceFirstStart, SignalDeviceReboot, SignalSteering:
		if status != nil {
			e.log.Warn().Err(status).Stringer("signal", sig).Msg("network join failed")
		} else {
			e.log.Info().Stringer("signal", sig).Msg("joined network")
		}
	case SignalLeave:
		e.log.Info().Msg("left network")
	case SignalDeviceAnnce, SignalCanSleep:
	default:
		e.log.Debug().Stringer("signal", sig).Msg("unhandled signal")
	}
	return status
}

// LinkUp is called by the transport when the network session is established.
func (e *Engine) LinkUp() {
	e.postSignal(signalEvt{sig: SignalSteering})
}

// LinkDown is called by the transport when the network session is lost.
func (e *Engine) LinkDown() {
	e.postSignal(signalEvt{sig: SignalLeave})
}

func (e *Engine) postSignal(s signalEvt) {
	select {
	case e.signals <- s:
	default:
		e.log.Error().Stringer("signal", s.sig).Msg("signal queue full, dropping")
	}
}

// deliverSignal updates the joined flag for join-state signals and hands the
// signal to the application in a fresh buffer. Without a free buffer the
// signal waits. Runs in the engine context.
func (e *Engine) deliverSignal(s signalEvt) bool {
	buf, ok := e.alloc()
	if !ok {
		return false
	}
	switch s.sig {
	case SignalDeviceFirstStart, SignalDeviceReboot, SignalSteering:
		if s.status == nil {
			e.joined.Store(true)
		}
	case SignalLeave:
		e.joined.Store(false)
	}

	e.bufMu.Lock()
	e.bufData[buf] = bufData{sig: s.sig, status: s.status}
	e.bufMu.Unlock()

	e.log.Debug().Stringer("signal", s.sig).Uint8("buf", uint8(buf)).Msg("signal")
	if e.signalHandler != nil {
		e.signalHandler(buf)
	} else {
		if err := e.DefaultSignalHandler(buf); err != nil {
			e.log.Error().Err(err).Stringer("signal", s.sig).Msg("signal handler")
		}
		_ = e.FreeBuffer(buf)
	}

	if s.sig == SignalSteering && s.status == nil {
		e.pendingSignals = append(e.pendingSignals, signalEvt{sig: SignalDeviceAnnce})
	}
	return true
}

func (e *Engine) drainSignals() {
	for len(e.pendingSignals) > 0 {
		if !e.deliverSignal(e.pendingSignals[0]) {
			return
		}
		e.pendingSignals = e.pendingSignals[1:]
	}
}
