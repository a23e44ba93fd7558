// Package sampler periodically measures the supply voltage, converts it to
// remaining capacity and publishes both as Power Configuration attributes.
//
// The timer only submits a work item; conversion and attribute writes happen
// on the work queue goroutine, and the resulting reports leave when the
// engine wakes.
package sampler

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/sweeney/contact-sensor/internal/adc"
	"github.com/sweeney/contact-sensor/internal/battery"
	"github.com/sweeney/contact-sensor/internal/logger"
	"github.com/sweeney/contact-sensor/internal/stack"
	"github.com/sweeney/contact-sensor/internal/workq"
	"github.com/sweeney/contact-sensor/internal/zcl"
)

const (
	// DefaultInitialDelay is the delay before the first sample after start.
	DefaultInitialDelay = 10 * time.Second

	// DefaultPeriod is the sample interval.
	DefaultPeriod = 8 * time.Hour

	// IRQPriority is the converter interrupt priority.
	IRQPriority = 6

	dumpCycles = 10
	warnEvery  = 4
)

// Store is the part of the engine the sampler writes to. SetAttr,
// MarkForReporting and GetOutBufferDeferred must be safe from the work queue
// goroutine.
type Store interface {
	SetAttr(ep uint8, cluster zcl.ClusterID, role zcl.Role, id zcl.AttrID, v zcl.Value, check bool) error
	MarkForReporting(ep uint8, cluster zcl.ClusterID, role zcl.Role, id zcl.AttrID) error
	GetOutBufferDeferred(cb *stack.Callback) error
	FreeBuffer(buf stack.BufID) error
	ReportingInfo(i int) (zcl.ReportingInfo, bool)
	ReportingSlots() int
}

// Thresholds are the battery voltage alarm thresholds in 100 mV units.
type Thresholds struct {
	Min     uint8
	Voltage [3]uint8
}

// Config configures a Sampler.
type Config struct {
	Endpoint     uint8
	InitialDelay time.Duration
	Period       time.Duration
	Table        battery.Table
	Thresholds   Thresholds
}

// Sample is the result of one successful cycle.
type Sample struct {
	Raw        int16
	MilliVolts uint16
	DeciVolts  uint8
	Percent    uint8 // half-percent units
	AlarmState uint32
	At         time.Time
}

// Sampler runs the battery measurement cycle.
type Sampler struct {
	cfg   Config
	conv  adc.Converter
	store Store
	queue *workq.Queue
	timer Timer
	work  *workq.Work
	wake  *stack.Callback
	log   zerolog.Logger

	running  atomic.Bool
	cycles   atomic.Uint64
	failed   atomic.Uint64
	failures int

	mu       sync.Mutex
	last     Sample
	hasLast  bool
	observer func(Sample)
}

// New creates a sampler. Zero durations and an empty table take the defaults.
func New(conv adc.Converter, store Store, queue *workq.Queue, timer Timer, cfg Config) *Sampler {
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = DefaultInitialDelay
	}
	if cfg.Period <= 0 {
		cfg.Period = DefaultPeriod
	}
	if len(cfg.Table) == 0 {
		cfg.Table = battery.CR2032
	}
	if timer == nil {
		timer = NewTimer()
	}
	s := &Sampler{
		cfg:   cfg,
		conv:  conv,
		store: store,
		queue: queue,
		timer: timer,
		log:   logger.With("sampler"),
	}
	s.work = workq.NewWork("battery-sample", s.sample)
	s.wake = &stack.Callback{Name: "battery-report-wake", Fn: func(buf stack.BufID) {
		_ = s.store.FreeBuffer(buf)
	}}
	return s
}

// OnSample registers fn to observe every successful sample. It runs on the
// work queue goroutine.
func (s *Sampler) OnSample(fn func(Sample)) {
	s.mu.Lock()
	s.observer = fn
	s.mu.Unlock()
}

// Start arms the periodic timer.
func (s *Sampler) Start() {
	s.running.Store(true)
	s.timer.Start(s.cfg.InitialDelay, s.cfg.Period, s.Trigger)
	s.log.Info().Dur("initial", s.cfg.InitialDelay).Dur("period", s.cfg.Period).Msg("battery sampling started")
}

// Stop disarms the timer. An already submitted sample may still run.
func (s *Sampler) Stop() {
	s.running.Store(false)
	s.timer.Stop()
	s.log.Info().Msg("battery sampling stopped")
}

// Running reports whether the timer is armed.
func (s *Sampler) Running() bool {
	return s.running.Load()
}

// Trigger submits the sample work item. It is the timer callback and never
// touches the converter.
func (s *Sampler) Trigger() {
	s.queue.Submit(s.work)
}

// Work returns the work item, for inspection.
func (s *Sampler) Work() *workq.Work {
	return s.work
}

// Last returns the most recent successful sample.
func (s *Sampler) Last() (Sample, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.hasLast
}

// Cycles returns the number of cycles run, failed ones included.
func (s *Sampler) Cycles() uint64 {
	return s.cycles.Load()
}

// Failures returns the number of failed cycles.
func (s *Sampler) Failures() uint64 {
	return s.failed.Load()
}

// MilliVolts converts a 14-bit reading taken at gain 1/6 against the 600 mV
// internal reference.
func MilliVolts(raw int16) uint16 {
	if raw < 0 {
		return 0
	}
	return uint16((int32(raw) * adc.InternalRefMilliVolts * adc.Gain1_6.Reciprocal()) >> adc.Res14)
}

// DeciVolts rounds millivolts to the 100 mV units of the voltage attribute.
func DeciVolts(mv uint16) uint8 {
	dv := (uint32(mv) + 50) / 100
	if dv > 0xfe {
		dv = 0xfe
	}
	return uint8(dv)
}

// AlarmState computes the battery alarm state bitmap: bit 0 below the
// minimum threshold, bits 1-3 below thresholds 1-3. Zero thresholds are
// disabled.
func AlarmState(dv uint8, th Thresholds) uint32 {
	var st uint32
	if th.Min != 0 && dv < th.Min {
		st |= 1
	}
	for i, v := range th.Voltage {
		if v != 0 && dv < v {
			st |= 1 << (i + 1)
		}
	}
	return st
}

func (s *Sampler) convert() (int16, error) {
	buf := make([]int16, 1)
	defer s.conv.Deinit()
	if err := s.conv.Init(IRQPriority); err != nil {
		return 0, fmt.Errorf("init: %w", err)
	}
	if err := s.conv.ConfigureChannel(adc.VDDChannel()); err != nil {
		return 0, fmt.Errorf("configure channel: %w", err)
	}
	if err := s.conv.SetMode(1, adc.Res14, adc.Oversample8x); err != nil {
		return 0, fmt.Errorf("set mode: %w", err)
	}
	if err := s.conv.SetBuffer(buf); err != nil {
		return 0, fmt.Errorf("set buffer: %w", err)
	}
	if err := s.conv.Trigger(); err != nil {
		return 0, fmt.Errorf("trigger: %w", err)
	}
	return buf[0], nil
}

// sample is the work handler.
func (s *Sampler) sample() {
	cycle := s.cycles.Add(1)

	raw, err := s.convert()
	if err != nil {
		s.failed.Add(1)
		s.failures++
		if s.failures == 1 || s.failures%warnEvery == 0 {
			s.log.Warn().Err(err).Int("consecutive", s.failures).Msg("battery conversion failed, keeping last value")
		}
		return
	}
	if s.failures > 0 {
		s.log.Info().Int("after", s.failures).Msg("battery conversion recovered")
		s.failures = 0
	}

	mv := MilliVolts(raw)
	smp := Sample{
		Raw:        raw,
		MilliVolts: mv,
		DeciVolts:  DeciVolts(mv),
		Percent:    battery.Estimate(s.cfg.Table, mv),
		At:         time.Now(),
	}
	smp.AlarmState = AlarmState(smp.DeciVolts, s.cfg.Thresholds)

	s.log.Info().
		Int16("raw", raw).
		Uint16("mV", mv).
		Uint8("dV", smp.DeciVolts).
		Uint8("percent", battery.Percent(smp.Percent)).
		Msg("battery sample")

	s.publish(smp)

	if cycle <= dumpCycles {
		s.dumpReporting(cycle)
	}

	s.mu.Lock()
	s.last, s.hasLast = smp, true
	obs := s.observer
	s.mu.Unlock()
	if obs != nil {
		obs(smp)
	}
}

func (s *Sampler) publish(smp Sample) {
	ep := s.cfg.Endpoint
	pc, srv := zcl.ClusterPowerConfig, zcl.RoleServer

	if err := s.store.SetAttr(ep, pc, srv, zcl.AttrBatteryVoltage, zcl.U8(smp.DeciVolts), false); err != nil {
		s.log.Error().Err(err).Msg("set battery voltage")
	}
	if err := s.store.MarkForReporting(ep, pc, srv, zcl.AttrBatteryVoltage); err != nil {
		s.log.Debug().Err(err).Msg("mark battery voltage")
	}
	if err := s.store.SetAttr(ep, pc, srv, zcl.AttrBatteryPercentageRemaining, zcl.U8(smp.Percent), false); err != nil {
		s.log.Error().Err(err).Msg("set battery percentage")
	}
	if err := s.store.SetAttr(ep, pc, srv, zcl.AttrBatteryAlarmState, zcl.Bitmap32(smp.AlarmState), false); err != nil {
		s.log.Error().Err(err).Msg("set battery alarm state")
	}

	// Wake the engine so the marked attributes are reported.
	if err := s.store.GetOutBufferDeferred(s.wake); err != nil {
		s.log.Error().Err(err).Msg("wake engine for battery report")
	}
}

func (s *Sampler) dumpReporting(cycle uint64) {
	for i := 0; i < s.store.ReportingSlots(); i++ {
		info, ok := s.store.ReportingInfo(i)
		if !ok {
			continue
		}
		s.log.Info().
			Uint64("cycle", cycle).
			Int("slot", i).
			Uint8("endpoint", info.Endpoint).
			Stringer("cluster", info.Cluster).
			Uint16("attr", uint16(info.Attr)).
			Uint16("min", info.MinInterval).
			Uint16("max", info.MaxInterval).
			Stringer("reported", info.ReportedValue).
			Uint16("dst", info.Dst.ShortAddr).
			Uint8("dst_ep", info.Dst.Endpoint).
			Msg("reporting slot")
	}
}
