// Package status provides a thread-safe status tracker for the contact-sensor daemon.
// It is written from the device, sampler and transport goroutines and read by
// the HTTP handlers.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/contact-sensor/internal/zcl"
)

// Battery is the last successful battery sample. This is a local copy to avoid
// importing internal/sampler from status.
type Battery struct {
	MilliVolts uint16
	Percent    uint8 // half-percent units
	AlarmState uint32
	At         time.Time
}

// Engine mirrors the protocol engine counters.
type Engine struct {
	UserInputs       uint64
	CommandsSent     uint64
	ReportsSent      uint64
	FactoryResets    uint64
	BuffersInUse     int
	LongPollInterval time.Duration
}

// Counts holds the device event counters.
type Counts struct {
	Inputs         int
	On             int
	Off            int
	DroppedPresses int
	JoinChanges    int
	ConvFailures   uint64
}

// Config contains daemon configuration for display.
type Config struct {
	Device        string
	Broker        string
	HTTPAddr      string
	BatteryPeriod time.Duration
	BlinkInterval time.Duration
	Inputs        int
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Joined        bool
	Identifying   bool
	Inputs        uint32
	LastCommand   string
	LastError     string
	Battery       *Battery
	Counts        Counts
	Engine        Engine
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
		now: time.Now,
	}
}

// JoinChanged records a join state edge.
func (t *Tracker) JoinChanged(joined bool) {
	t.mu.Lock()
	t.snap.Joined = joined
	t.snap.Counts.JoinChanges++
	t.mu.Unlock()
}

// IdentifyChanged records the identify state.
func (t *Tracker) IdentifyChanged(active bool) {
	t.mu.Lock()
	t.snap.Identifying = active
	t.mu.Unlock()
}

// Input records the input mask seen by the dispatcher.
func (t *Tracker) Input(state, changed uint32) {
	t.mu.Lock()
	t.snap.Inputs = state
	if changed != 0 {
		t.snap.Counts.Inputs++
	}
	t.mu.Unlock()
}

// CommandQueued records an on/off command handed to the engine.
func (t *Tracker) CommandQueued(cmd zcl.OnOffCmd) {
	t.mu.Lock()
	t.snap.LastCommand = cmd.String()
	switch cmd {
	case zcl.CmdOn:
		t.snap.Counts.On++
	case zcl.CmdOff:
		t.snap.Counts.Off++
	}
	t.mu.Unlock()
}

// PressDropped records a press that could not be queued.
func (t *Tracker) PressDropped(err error) {
	t.mu.Lock()
	t.snap.Counts.DroppedPresses++
	if err != nil {
		t.snap.LastError = err.Error()
	}
	t.mu.Unlock()
}

// SetBattery sets the last battery sample.
func (t *Tracker) SetBattery(b Battery) {
	t.mu.Lock()
	t.snap.Battery = &b
	t.mu.Unlock()
}

// SetConvFailures sets the converter failure count.
func (t *Tracker) SetConvFailures(n uint64) {
	t.mu.Lock()
	t.snap.Counts.ConvFailures = n
	t.mu.Unlock()
}

// SetEngine sets the engine counters.
func (t *Tracker) SetEngine(e Engine) {
	t.mu.Lock()
	t.snap.Engine = e
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	if s.Battery != nil {
		b := *s.Battery
		s.Battery = &b
	}
	t.mu.RUnlock()
	s.Now = t.now()
	return s
}
