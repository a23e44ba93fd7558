package device

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/contact-sensor/internal/stack"
	"github.com/sweeney/contact-sensor/internal/zcl"
)

type scheduled struct {
	cb    *stack.Callback
	buf   stack.BufID
	delay time.Duration
}

type onOff struct {
	buf stack.BufID
	dst zcl.Address
	src uint8
	cmd zcl.OnOffCmd
}

// fakeStack records every call. Scheduled callbacks and alarms are run by the
// test explicitly.
type fakeStack struct {
	joined       bool
	identifyTime uint16
	fbErr        error
	bufErr       error
	schedErr     error

	endpoints  []zcl.EndpointDesc
	identifyH  func(bool)
	callbacks  []scheduled
	alarms     []scheduled
	outBuffers []*stack.Callback
	cancels    []scheduled
	sent       []onOff
	reporting  []zcl.ReportingInfo
	started    []zcl.AttrID
	freed      []stack.BufID
	signals    []stack.BufID
	userInputs int
	longPoll   time.Duration
	fbTargets  int
	fbCancels  int
	resets     int
}

func (f *fakeStack) SetAttr(uint8, zcl.ClusterID, zcl.Role, zcl.AttrID, zcl.Value, bool) error {
	return nil
}
func (f *fakeStack) MarkForReporting(uint8, zcl.ClusterID, zcl.Role, zcl.AttrID) error { return nil }
func (f *fakeStack) ReportingInfo(i int) (zcl.ReportingInfo, bool) {
	if i < len(f.reporting) {
		return f.reporting[i], true
	}
	return zcl.ReportingInfo{}, false
}
func (f *fakeStack) ReportingSlots() int { return 10 }

func (f *fakeStack) Joined() bool { return f.joined }
func (f *fakeStack) DefaultSignalHandler(buf stack.BufID) error {
	f.signals = append(f.signals, buf)
	return nil
}
func (f *fakeStack) FreeBuffer(buf stack.BufID) error {
	f.freed = append(f.freed, buf)
	return nil
}
func (f *fakeStack) GetOutBufferDeferred(cb *stack.Callback) error {
	if f.bufErr != nil {
		return f.bufErr
	}
	f.outBuffers = append(f.outBuffers, cb)
	return nil
}
func (f *fakeStack) RegisterEndpoint(d zcl.EndpointDesc) error {
	f.endpoints = append(f.endpoints, d)
	return nil
}
func (f *fakeStack) ConfigureReporting(info zcl.ReportingInfo, replace bool) error {
	f.reporting = append(f.reporting, info)
	return nil
}
func (f *fakeStack) StartReporting(ep uint8, c zcl.ClusterID, r zcl.Role, id zcl.AttrID) error {
	f.started = append(f.started, id)
	return nil
}
func (f *fakeStack) ScheduleCallback(cb *stack.Callback, buf stack.BufID) error {
	if f.schedErr != nil {
		return f.schedErr
	}
	f.callbacks = append(f.callbacks, scheduled{cb: cb, buf: buf})
	return nil
}
func (f *fakeStack) ScheduleAlarm(cb *stack.Callback, buf stack.BufID, d time.Duration) error {
	f.alarms = append(f.alarms, scheduled{cb, buf, d})
	return nil
}
func (f *fakeStack) CancelAlarm(cb *stack.Callback, buf stack.BufID) int {
	f.cancels = append(f.cancels, scheduled{cb: cb, buf: buf})
	n := 0
	kept := f.alarms[:0]
	for _, a := range f.alarms {
		if a.cb == cb && (buf == stack.AnyParam || a.buf == buf) {
			n++
			continue
		}
		kept = append(kept, a)
	}
	f.alarms = kept
	return n
}
func (f *fakeStack) SendOnOff(buf stack.BufID, dst zcl.Address, src uint8, cmd zcl.OnOffCmd) error {
	f.sent = append(f.sent, onOff{buf, dst, src, cmd})
	return nil
}
func (f *fakeStack) FindingBindingTarget(ep uint8) error {
	f.fbTargets++
	return f.fbErr
}
func (f *fakeStack) FindingBindingTargetCancel()               { f.fbCancels++ }
func (f *fakeStack) IdentifyTime(ep uint8) uint16              { return f.identifyTime }
func (f *fakeStack) SetIdentifyHandler(ep uint8, h func(bool)) { f.identifyH = h }
func (f *fakeStack) UserInputIndicate()                        { f.userInputs++ }
func (f *fakeStack) SetLongPollInterval(d time.Duration)       { f.longPoll = d }
func (f *fakeStack) FactoryReset()                             { f.resets++ }

// runCallbacks runs and clears the scheduled callbacks.
func (f *fakeStack) runCallbacks() {
	cbs := f.callbacks
	f.callbacks = nil
	for _, s := range cbs {
		s.cb.Fn(s.buf)
	}
}

// fireAlarm runs the oldest alarm.
func (f *fakeStack) fireAlarm() bool {
	if len(f.alarms) == 0 {
		return false
	}
	a := f.alarms[0]
	f.alarms = f.alarms[1:]
	a.cb.Fn(a.buf)
	return true
}

type ledWrite struct {
	idx int
	on  bool
}

type fakeLEDs struct{ writes []ledWrite }

func (l *fakeLEDs) Set(idx int, on bool) { l.writes = append(l.writes, ledWrite{idx, on}) }

func (l *fakeLEDs) last(idx int) (bool, bool) {
	for i := len(l.writes) - 1; i >= 0; i-- {
		if l.writes[i].idx == idx {
			return l.writes[i].on, true
		}
	}
	return false, false
}

type fakeSampler struct{ starts, stops int }

func (s *fakeSampler) Start() { s.starts++ }
func (s *fakeSampler) Stop()  { s.stops++ }

type fakeReset struct {
	checks [][2]uint32
	done   bool
}

func (r *fakeReset) Check(state, changed uint32) {
	r.checks = append(r.checks, [2]uint32{state, changed})
}
func (r *fakeReset) WasDone() bool { return r.done }

type fakeFlash struct{ sleeps int }

func (f *fakeFlash) Sleep() error { f.sleeps++; return nil }

type fakeRecorder struct {
	joins    []bool
	identify []bool
	inputs   int
	queued   []zcl.OnOffCmd
	dropped  []error
}

func (r *fakeRecorder) JoinChanged(j bool)           { r.joins = append(r.joins, j) }
func (r *fakeRecorder) IdentifyChanged(a bool)       { r.identify = append(r.identify, a) }
func (r *fakeRecorder) Input(uint32, uint32)         { r.inputs++ }
func (r *fakeRecorder) CommandQueued(c zcl.OnOffCmd) { r.queued = append(r.queued, c) }
func (r *fakeRecorder) PressDropped(err error)       { r.dropped = append(r.dropped, err) }

type harness struct {
	dev   *Device
	stk   *fakeStack
	leds  *fakeLEDs
	smp   *fakeSampler
	reset *fakeReset
	flash *fakeFlash
	rec   *fakeRecorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		stk:   &fakeStack{},
		leds:  &fakeLEDs{},
		smp:   &fakeSampler{},
		reset: &fakeReset{},
		flash: &fakeFlash{},
		rec:   &fakeRecorder{},
	}
	h.dev = New(DefaultConfig(), h.stk, h.leds, h.smp, h.reset, h.flash, h.rec)
	require.NoError(t, h.dev.Init())
	return h
}

const (
	primary   = 1 << 0
	secondary = 1 << 1
)

func TestInit(t *testing.T) {
	h := newHarness(t)

	require.Len(t, h.stk.endpoints, 1)
	ep := h.stk.endpoints[0]
	assert.Equal(t, uint8(1), ep.ID)
	assert.Equal(t, []zcl.ClusterID{zcl.ClusterBasic, zcl.ClusterIdentify, zcl.ClusterPowerConfig}, ep.InClusters())
	assert.Equal(t, []zcl.ClusterID{zcl.ClusterIdentify, zcl.ClusterOnOff}, ep.OutClusters())
	assert.NotNil(t, h.stk.identifyH)

	assert.Equal(t, []ledWrite{{0, true}, {1, false}}, h.leds.writes)
	assert.Equal(t, 1, h.flash.sleeps)
}

func TestJoinEdges(t *testing.T) {
	h := newHarness(t)
	h.leds.writes = nil

	for i, joined := range []bool{false, false, true, true, false} {
		h.stk.joined = joined
		h.dev.HandleSignal(stack.BufID(i + 1))
	}

	assert.Equal(t, 1, h.smp.starts)
	assert.Equal(t, 1, h.smp.stops)
	assert.Equal(t, []bool{true, false}, h.rec.joins)
	assert.Equal(t, []ledWrite{{0, false}, {0, true}}, h.leds.writes)
	assert.Len(t, h.stk.reporting, 3)
	assert.Equal(t, []zcl.AttrID{zcl.AttrBatteryVoltage}, h.stk.started)
	assert.Equal(t, time.Hour, h.stk.longPoll)
	assert.Equal(t, 2, h.flash.sleeps)

	assert.Equal(t, []stack.BufID{1, 2, 3, 4, 5}, h.stk.signals)
	assert.Equal(t, []stack.BufID{1, 2, 3, 4, 5}, h.stk.freed)
}

func TestHandleSignalSkipsFreeForNoBuffer(t *testing.T) {
	h := newHarness(t)
	h.dev.HandleSignal(stack.NoBuf)
	assert.Empty(t, h.stk.freed)
}

func TestReportingConfigs(t *testing.T) {
	h := newHarness(t)
	cfgs := h.dev.ReportingConfigs()
	require.Len(t, cfgs, 3)

	assert.Equal(t, zcl.AttrBatteryVoltage, cfgs[0].Attr)
	assert.Equal(t, zcl.ReportNoPeriodic, cfgs[0].MaxInterval)
	assert.Equal(t, zcl.AttrBatteryPercentageRemaining, cfgs[1].Attr)
	assert.Equal(t, uint16(0xfffe), cfgs[1].MaxInterval)
	assert.Equal(t, zcl.AttrBatteryAlarmState, cfgs[2].Attr)
	assert.Equal(t, uint16(0xfffe), cfgs[2].MaxInterval)
	for _, c := range cfgs {
		assert.Equal(t, uint16(1), c.MinInterval)
		assert.Equal(t, zcl.Address{ShortAddr: 0, Endpoint: 1, Profile: zcl.ProfileHA}, c.Dst)
		assert.Equal(t, uint8(1), c.Endpoint)
	}
}

func TestPrimaryRisingSendsOn(t *testing.T) {
	h := newHarness(t)
	h.dev.HandleButtons(primary, primary)

	require.Len(t, h.stk.outBuffers, 1)
	assert.Empty(t, h.stk.callbacks, "no identify scheduled")
	assert.Equal(t, 1, h.stk.userInputs)
	assert.Equal(t, [][2]uint32{{primary, primary}}, h.reset.checks)

	h.stk.outBuffers[0].Fn(4)
	require.Len(t, h.stk.sent, 1)
	assert.Equal(t, onOff{4, DefaultConfig().Dest, 1, zcl.CmdOn}, h.stk.sent[0])
	assert.Equal(t, []zcl.OnOffCmd{zcl.CmdOn}, h.rec.queued)
}

func TestPrimaryFallingSendsOff(t *testing.T) {
	h := newHarness(t)
	h.dev.HandleButtons(0, primary)
	require.Len(t, h.stk.outBuffers, 1)
	h.stk.outBuffers[0].Fn(2)
	assert.Equal(t, zcl.CmdOff, h.stk.sent[0].cmd)
}

func TestPrimaryTakesPriority(t *testing.T) {
	h := newHarness(t)
	h.dev.HandleButtons(primary, primary|secondary)
	assert.Len(t, h.stk.outBuffers, 1)
	assert.Empty(t, h.stk.callbacks)
}

func TestSecondaryReleaseSchedulesIdentify(t *testing.T) {
	h := newHarness(t)

	h.dev.HandleButtons(secondary, secondary)
	assert.Empty(t, h.stk.callbacks, "press does nothing")

	h.dev.HandleButtons(0, secondary)
	require.Len(t, h.stk.callbacks, 1)
	assert.Same(t, h.dev.startIdentify, h.stk.callbacks[0].cb)
	assert.Empty(t, h.stk.outBuffers)
	assert.Equal(t, 0, h.stk.fbTargets, "never inline")
}

func TestSecondaryReleaseAfterFactoryReset(t *testing.T) {
	h := newHarness(t)
	h.reset.done = true
	h.dev.HandleButtons(0, secondary)
	assert.Empty(t, h.stk.callbacks)
	assert.Len(t, h.reset.checks, 1)
}

func TestUnrelatedInputStillIndicates(t *testing.T) {
	h := newHarness(t)
	h.dev.HandleButtons(1<<2, 1<<2)
	assert.Equal(t, 1, h.stk.userInputs)
	assert.Len(t, h.reset.checks, 1)
	assert.Empty(t, h.stk.outBuffers)
	assert.Empty(t, h.stk.callbacks)
}

func TestDroppedPressIsRecorded(t *testing.T) {
	h := newHarness(t)
	h.stk.bufErr = stack.ErrQueueFull
	h.dev.HandleButtons(primary, primary)
	require.Len(t, h.rec.dropped, 1)
	assert.ErrorIs(t, h.rec.dropped[0], stack.ErrQueueFull)
	assert.Empty(t, h.rec.queued)

	h.stk.schedErr = stack.ErrQueueFull
	h.dev.HandleButtons(0, secondary)
	assert.Len(t, h.rec.dropped, 2)
}

func TestStartIdentifying(t *testing.T) {
	h := newHarness(t)

	h.dev.startIdentifying(0)
	assert.Equal(t, 0, h.stk.fbTargets, "not joined")

	h.stk.joined = true
	h.dev.startIdentifying(0)
	assert.Equal(t, 1, h.stk.fbTargets)

	h.stk.fbErr = stack.ErrInvalidState
	h.dev.startIdentifying(0)
	h.stk.fbErr = errors.New("boom")
	h.dev.startIdentifying(0)
	assert.Equal(t, 3, h.stk.fbTargets)

	h.stk.identifyTime = 170
	h.dev.startIdentifying(0)
	assert.Equal(t, 1, h.stk.fbCancels)
	assert.Equal(t, 3, h.stk.fbTargets)
}

func TestBlinkerAlternates(t *testing.T) {
	h := newHarness(t)
	h.stk.joined = true
	h.stk.identifyTime = 180
	h.leds.writes = nil

	h.stk.identifyH(true)
	assert.True(t, h.dev.Identifying())
	h.stk.runCallbacks()

	for i := 0; i < 5; i++ {
		require.Len(t, h.stk.alarms, 1, "exactly one pending tick")
		assert.Equal(t, 100*time.Millisecond, h.stk.alarms[0].delay)
		require.True(t, h.stk.fireAlarm())
	}
	assert.Equal(t, []ledWrite{{0, true}, {0, false}, {0, true}, {0, false}, {0, true}, {0, false}}, h.leds.writes)

	// A second start while active is ignored.
	h.stk.identifyH(true)
	assert.Empty(t, h.stk.callbacks)

	h.stk.identifyH(false)
	assert.False(t, h.dev.Identifying())
	assert.Empty(t, h.stk.alarms)
	assert.Len(t, h.stk.cancels, 1)
	assert.Equal(t, stack.AnyParam, h.stk.cancels[0].buf)
	on, _ := h.leds.last(0)
	assert.False(t, on, "joined: network LED off")
	assert.Equal(t, []bool{true, false}, h.rec.identify)
}

func TestBlinkerRestartBeforeFirstTick(t *testing.T) {
	h := newHarness(t)
	h.stk.joined = true
	h.stk.identifyTime = 60

	h.stk.identifyH(true)
	h.stk.identifyH(false)
	h.stk.identifyH(true)
	require.Len(t, h.stk.callbacks, 2, "both first ticks are still queued")
	h.leds.writes = nil

	h.stk.runCallbacks()
	require.Len(t, h.stk.alarms, 1, "only the live session re-arms")
	assert.Equal(t, []ledWrite{{0, true}}, h.leds.writes)

	for i := 0; i < 3; i++ {
		require.True(t, h.stk.fireAlarm())
		require.Len(t, h.stk.alarms, 1)
	}
	assert.Equal(t, []ledWrite{{0, true}, {0, false}, {0, true}, {0, false}}, h.leds.writes)
}

func TestBlinkerIgnoresTickFromEndedSession(t *testing.T) {
	h := newHarness(t)
	h.stk.joined = true
	h.stk.identifyTime = 60

	h.stk.identifyH(true)
	h.stk.runCallbacks()
	require.Len(t, h.stk.alarms, 1)
	old := h.stk.alarms[0].buf

	h.stk.identifyH(false)
	h.stk.identifyH(true)
	h.stk.runCallbacks()
	require.Len(t, h.stk.alarms, 1)
	assert.NotEqual(t, old, h.stk.alarms[0].buf)

	n := len(h.leds.writes)
	h.dev.blink(old)
	assert.Len(t, h.leds.writes, n, "stale tick must not toggle")
	assert.Len(t, h.stk.alarms, 1, "stale tick must not re-arm")
}

func TestBlinkerCancelNotJoined(t *testing.T) {
	h := newHarness(t)
	h.stk.identifyTime = 10
	h.stk.identifyH(true)
	h.stk.runCallbacks()
	h.stk.identifyH(false)

	on, _ := h.leds.last(0)
	assert.True(t, on, "not joined: network LED on")

	// A tick already queued does nothing once idle.
	n := len(h.leds.writes)
	h.dev.blink(0)
	assert.Len(t, h.leds.writes, n)
	assert.Empty(t, h.stk.alarms)
}

func TestBlinkerStopsWhenIdentifyTimeExpires(t *testing.T) {
	h := newHarness(t)
	h.stk.joined = true
	h.stk.identifyTime = 3
	h.stk.identifyH(true)
	h.stk.runCallbacks()
	require.Len(t, h.stk.alarms, 1)

	h.stk.identifyTime = 0
	h.stk.fireAlarm()
	assert.False(t, h.dev.Identifying())
	assert.Empty(t, h.stk.alarms)
	on, _ := h.leds.last(0)
	assert.False(t, on)
}

func TestRequestFactoryReset(t *testing.T) {
	h := newHarness(t)
	h.dev.RequestFactoryReset()
	require.Len(t, h.stk.callbacks, 1)
	assert.Equal(t, 0, h.stk.resets)
	h.stk.runCallbacks()
	assert.Equal(t, 1, h.stk.resets)
}

func TestNilRecorderAndFlash(t *testing.T) {
	stk := &fakeStack{}
	d := New(DefaultConfig(), stk, &fakeLEDs{}, &fakeSampler{}, &fakeReset{}, nil, nil)
	require.NoError(t, d.Init())
	stk.joined = true
	d.HandleSignal(1)
	d.HandleButtons(primary, primary)
	assert.Len(t, stk.outBuffers, 1)
}
