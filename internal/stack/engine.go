// Package stack is the protocol engine the device application runs on. It owns
// a single engine goroutine that runs scheduled callbacks, alarms, signal
// delivery and attribute report flushes, a small buffer pool, the attribute
// store and the reporting table. Network I/O is delegated to a Transport.
package stack

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/sweeney/contact-sensor/internal/logger"
	"github.com/sweeney/contact-sensor/internal/zcl"
)

// Callback is a function run in the engine context. Alarms are identified by
// the *Callback pointer, so declare callbacks once and reuse them.
type Callback struct {
	Name string
	Fn   func(buf BufID)
}

// Config sizes the engine.
type Config struct {
	QueueDepth     int
	Buffers        int
	ReportingSlots int
}

// DefaultConfig returns the engine sizing used by the device.
func DefaultConfig() Config {
	return Config{QueueDepth: 16, Buffers: DefaultBuffers, ReportingSlots: 10}
}

type queued struct {
	cb  *Callback
	buf BufID
}

type alarm struct {
	cb  *Callback
	buf BufID
	at  time.Time
}

// Engine is the protocol engine.
type Engine struct {
	transport Transport
	log       zerolog.Logger
	now       func() time.Time

	queue   chan queued
	signals chan signalEvt
	wake    chan struct{}
	running atomic.Bool

	alarmMu sync.Mutex
	alarms  []alarm

	bufMu   sync.Mutex
	inUse   []bool
	bufData []bufData
	waiters []*Callback

	attrMu    sync.Mutex
	endpoints map[uint8]*endpoint
	slots     []*slot
	maxSlots  int

	signalHandler  func(buf BufID)
	pendingSignals []signalEvt

	identifyMu       sync.Mutex
	identifyHandlers map[uint8]func(active bool)
	identifyTick     *Callback

	joined        atomic.Bool
	userInputs    atomic.Uint64
	longPoll      atomic.Int64
	commandsSent  atomic.Uint64
	reportsSent   atomic.Uint64
	factoryResets atomic.Uint64
}

// New creates an engine on transport t.
func New(t Transport, cfg Config) *Engine {
	def := DefaultConfig()
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = def.QueueDepth
	}
	if cfg.Buffers <= 0 || cfg.Buffers >= int(AnyParam) {
		cfg.Buffers = def.Buffers
	}
	if cfg.ReportingSlots <= 0 {
		cfg.ReportingSlots = def.ReportingSlots
	}
	e := &Engine{
		transport:        t,
		log:              logger.With("stack"),
		now:              time.Now,
		queue:            make(chan queued, cfg.QueueDepth),
		signals:          make(chan signalEvt, cfg.QueueDepth),
		wake:             make(chan struct{}, 1),
		inUse:            make([]bool, cfg.Buffers+1),
		bufData:          make([]bufData, cfg.Buffers+1),
		endpoints:        map[uint8]*endpoint{},
		maxSlots:         cfg.ReportingSlots,
		identifyHandlers: map[uint8]func(bool){},
	}
	e.identifyTick = &Callback{Name: "identify-countdown", Fn: e.identifyCountdown}
	return e
}

// Run executes the engine loop until ctx is cancelled. The first thing it does
// is deliver SignalSkipStartup.
func (e *Engine) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer e.running.Store(false)

	e.pendingSignals = append(e.pendingSignals, signalEvt{sig: SignalSkipStartup})

	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		e.drainSignals()
		e.runDueAlarms()
		e.flushReports()

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		if next, ok := e.nextDeadline(); ok {
			timer.Reset(time.Until(next))
		} else {
			timer.Reset(time.Hour)
		}

		select {
		case <-ctx.Done():
			if err := e.transport.Close(); err != nil {
				e.log.Warn().Err(err).Msg("closing transport")
			}
			return nil
		case q := <-e.queue:
			e.run(q)
		case s := <-e.signals:
			e.pendingSignals = append(e.pendingSignals, s)
		case <-e.wake:
		case <-timer.C:
		}
	}
}

func (e *Engine) run(q queued) {
	e.log.Trace().Str("callback", q.cb.Name).Uint8("buf", uint8(q.buf)).Msg("run")
	q.cb.Fn(q.buf)
}

func (e *Engine) enqueue(cb *Callback, buf BufID) error {
	select {
	case e.queue <- queued{cb: cb, buf: buf}:
		return nil
	default:
		return ErrQueueFull
	}
}

func (e *Engine) kick() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// ScheduleCallback queues cb to run in the engine context with buf as its
// parameter. Safe from any goroutine; never blocks.
func (e *Engine) ScheduleCallback(cb *Callback, buf BufID) error {
	return e.enqueue(cb, buf)
}

// ScheduleAlarm runs cb with buf after delay. Safe from any goroutine.
func (e *Engine) ScheduleAlarm(cb *Callback, buf BufID, delay time.Duration) error {
	e.alarmMu.Lock()
	e.alarms = append(e.alarms, alarm{cb: cb, buf: buf, at: e.now().Add(delay)})
	e.alarmMu.Unlock()
	e.kick()
	return nil
}

// CancelAlarm removes pending alarms for cb whose parameter equals buf, or all
// of them for AnyParam. It returns the number removed.
func (e *Engine) CancelAlarm(cb *Callback, buf BufID) int {
	e.alarmMu.Lock()
	defer e.alarmMu.Unlock()
	kept := e.alarms[:0]
	n := 0
	for _, a := range e.alarms {
		if a.cb == cb && (buf == AnyParam || a.buf == buf) {
			n++
			continue
		}
		kept = append(kept, a)
	}
	e.alarms = kept
	return n
}

// PendingAlarms returns the number of armed alarms for cb.
func (e *Engine) PendingAlarms(cb *Callback) int {
	e.alarmMu.Lock()
	defer e.alarmMu.Unlock()
	n := 0
	for _, a := range e.alarms {
		if a.cb == cb {
			n++
		}
	}
	return n
}

func (e *Engine) runDueAlarms() {
	now := e.now()
	e.alarmMu.Lock()
	var due []alarm
	kept := e.alarms[:0]
	for _, a := range e.alarms {
		if !a.at.After(now) {
			due = append(due, a)
			continue
		}
		kept = append(kept, a)
	}
	e.alarms = kept
	e.alarmMu.Unlock()

	for _, a := range due {
		e.run(queued{cb: a.cb, buf: a.buf})
	}
}

func (e *Engine) nextDeadline() (time.Time, bool) {
	var next time.Time
	found := false
	e.alarmMu.Lock()
	for _, a := range e.alarms {
		if !found || a.at.Before(next) {
			next, found = a.at, true
		}
	}
	e.alarmMu.Unlock()

	if t, ok := e.nextReportDue(); ok && (!found || t.Before(next)) {
		next, found = t, true
	}
	return next, found
}

// Joined reports whether the device is on the network.
func (e *Engine) Joined() bool {
	return e.joined.Load()
}

// UserInputIndicate records user activity. Safe from the interrupt context.
func (e *Engine) UserInputIndicate() {
	e.userInputs.Add(1)
}

// SetLongPollInterval sets how often a sleepy device polls its parent.
func (e *Engine) SetLongPollInterval(d time.Duration) {
	e.longPoll.Store(int64(d))
	e.log.Info().Dur("interval", d).Msg("long poll interval set")
}

// LongPollInterval returns the configured long poll interval.
func (e *Engine) LongPollInterval() time.Duration {
	return time.Duration(e.longPoll.Load())
}

// SendOnOff sends an On/Off cluster command from srcEP to dst. It consumes buf.
func (e *Engine) SendOnOff(buf BufID, dst zcl.Address, srcEP uint8, cmd zcl.OnOffCmd) error {
	defer func() { _ = e.FreeBuffer(buf) }()
	if !e.joined.Load() {
		return ErrInvalidState
	}
	err := e.transport.SendCommand(Command{
		SrcEndpoint: srcEP,
		Dst:         dst,
		Cluster:     zcl.ClusterOnOff,
		OnOff:       cmd,
	})
	if err != nil {
		return err
	}
	e.commandsSent.Add(1)
	return nil
}

// FactoryReset clears the reporting table and attribute values, then leaves
// the network. The transport rejoins on its own.
func (e *Engine) FactoryReset() {
	e.factoryResets.Add(1)
	e.log.Warn().Msg("factory reset")

	e.FindingBindingTargetCancel()

	e.attrMu.Lock()
	e.slots = nil
	for _, ep := range e.endpoints {
		for _, a := range ep.attrs {
			a.value = a.desc.Default
		}
	}
	e.attrMu.Unlock()

	if err := e.transport.Leave(); err != nil {
		e.log.Error().Err(err).Msg("leave")
	}
	e.pendingSignals = append(e.pendingSignals, signalEvt{sig: SignalLeave})
}

// Stats is a snapshot of engine counters.
type Stats struct {
	Joined           bool
	UserInputs       uint64
	CommandsSent     uint64
	ReportsSent      uint64
	FactoryResets    uint64
	BuffersInUse     int
	LongPollInterval time.Duration
}

// Stats returns the current counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Joined:           e.joined.Load(),
		UserInputs:       e.userInputs.Load(),
		CommandsSent:     e.commandsSent.Load(),
		ReportsSent:      e.reportsSent.Load(),
		FactoryResets:    e.factoryResets.Load(),
		BuffersInUse:     e.BuffersInUse(),
		LongPollInterval: e.LongPollInterval(),
	}
}
