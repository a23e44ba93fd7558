package main

import (
	"encoding/json"
	"errors"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/contact-sensor/internal/adc"
	"github.com/sweeney/contact-sensor/internal/apperr"
	"github.com/sweeney/contact-sensor/internal/config"
	"github.com/sweeney/contact-sensor/internal/gpio"
	"github.com/sweeney/contact-sensor/internal/mqtt"
	"github.com/sweeney/contact-sensor/internal/stack"
	"github.com/sweeney/contact-sensor/internal/zcl"
)

const (
	lineContact  = 5
	lineIdentify = 6
	lineNetLED   = 19
	lineUserLED  = 26

	waitFor = 3 * time.Second
	poll    = 5 * time.Millisecond
)

// raw2950 converts to 2950 mV with the internal reference and 1/6 gain.
const raw2950 int16 = 13426

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("CONTACT_CONFIG", "")
	cfg, err := config.Load(afero.NewMemMapFs(), nil)
	require.NoError(t, err)

	cfg.GPIO.Buttons = []int{lineContact, lineIdentify}
	cfg.GPIO.ActiveLow = false
	cfg.GPIO.LEDs = []int{lineNetLED, lineUserLED}
	cfg.Battery.InitialDelay = 10 * time.Millisecond
	cfg.Battery.Period = time.Hour
	cfg.Blink = 10 * time.Millisecond
	cfg.ResetPress = 50 * time.Millisecond
	cfg.MQTT.Device = "hall-door"
	return cfg
}

type harness struct {
	drv       *gpio.FakeDriver
	conv      *adc.Fake
	transport *mqtt.FakeTransport
	app       *app
	sig       chan os.Signal
	tick      chan time.Time
	done      chan error
}

func newHarness(t *testing.T, cfg *config.Config) *harness {
	t.Helper()
	h := &harness{
		drv:       gpio.NewFakeDriver(),
		conv:      adc.NewFake(raw2950),
		transport: mqtt.NewFakeTransport(mqtt.NewTopics(cfg.MQTT.BaseTopic, cfg.MQTT.Device)),
		sig:       make(chan os.Signal, 1),
		tick:      make(chan time.Time),
		done:      make(chan error, 1),
	}
	a, err := newApp(cfg, h.drv, h.conv, h.transport, time.Now())
	require.NoError(t, err)
	h.app = a
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	go func() { h.done <- runLoop(h.app, h.tick, h.sig) }()
	require.Eventually(t, h.transport.Linked, waitFor, poll, "transport never started")
}

func (h *harness) stop(t *testing.T) {
	t.Helper()
	h.sig <- syscall.SIGTERM
	select {
	case err := <-h.done:
		require.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("runLoop did not return after SIGTERM")
	}
}

func (h *harness) join(t *testing.T) {
	t.Helper()
	h.transport.Connect()
	require.Eventually(t, func() bool { return h.app.tracker.Snapshot().Joined }, waitFor, poll, "never joined")
}

func (h *harness) commands() []stack.Command {
	cmds, _, _ := h.transport.Snapshot()
	return cmds
}

func TestNewAppInitialisesIndicators(t *testing.T) {
	h := newHarness(t, testConfig(t))

	for _, l := range []int{lineNetLED, lineUserLED} {
		dir, ok := h.drv.Dir(l)
		require.True(t, ok, "led line %d not configured", l)
		assert.Equal(t, gpio.Output, dir)
	}
	for _, l := range []int{lineContact, lineIdentify} {
		dir, ok := h.drv.Dir(l)
		require.True(t, ok, "button line %d not configured", l)
		assert.Equal(t, gpio.Input, dir)
	}
	assert.True(t, h.drv.Level(lineNetLED), "network LED is on until joined")
	assert.False(t, h.drv.Level(lineUserLED), "user LED starts off")
	assert.Equal(t, gpio.Bit(lineContact)|gpio.Bit(lineIdentify), h.drv.InterruptMask())
}

func TestNewAppButtonFailureIsConfigError(t *testing.T) {
	cfg := testConfig(t)
	drv := gpio.NewFakeDriver()
	drv.ConfigureErr[lineIdentify] = errors.New("line busy")

	_, err := newApp(cfg, drv, adc.NewFake(0), mqtt.NewFakeTransport(mqtt.NewTopics("", "x")), time.Now())
	require.Error(t, err)
	assert.Equal(t, apperr.ConfigFailed, apperr.Of(err))
}

func TestNewAppLEDFailureIsConfigError(t *testing.T) {
	cfg := testConfig(t)
	drv := gpio.NewFakeDriver()
	drv.ConfigureErr[lineNetLED] = errors.New("line busy")

	_, err := newApp(cfg, drv, adc.NewFake(0), mqtt.NewFakeTransport(mqtt.NewTopics("", "x")), time.Now())
	require.Error(t, err)
	assert.Equal(t, apperr.ConfigFailed, apperr.Of(err))
}

func TestDeviceConfigMasks(t *testing.T) {
	cfg := testConfig(t)
	dc := deviceConfig(cfg)
	assert.Equal(t, uint32(1), dc.PrimaryMask)
	assert.Equal(t, uint32(2), dc.SecondaryMask)
	assert.Equal(t, uint8(1), dc.Endpoint)
	assert.Equal(t, zcl.Address{ShortAddr: 0, Endpoint: 1, Profile: zcl.ProfileHA}, dc.Dest)
	assert.Equal(t, time.Hour, dc.LongPoll)

	cfg.GPIO.Buttons = []int{lineContact}
	assert.Zero(t, deviceConfig(cfg).SecondaryMask, "single input has no identify button")
}

func TestButtonLinesCarryPolarity(t *testing.T) {
	cfg := testConfig(t)
	cfg.GPIO.ActiveLow = true

	lines := buttonLines(cfg)
	require.Len(t, lines, 2)
	assert.Equal(t, lineContact, lines[0].Offset)
	assert.True(t, lines[0].ActiveLow)
	assert.Equal(t, lineIdentify, lines[1].Offset)
}

func TestJoinTurnsNetworkLEDOffAndReportsBattery(t *testing.T) {
	h := newHarness(t, testConfig(t))
	h.start(t)
	h.join(t)

	require.Eventually(t, func() bool { return !h.drv.Level(lineNetLED) }, waitFor, poll, "network LED still on")

	require.Eventually(t, func() bool {
		_, _, msgs := h.transport.Snapshot()
		for _, m := range msgs {
			if m.Topic != "zigbee2mqtt/hall-door" || !m.Retained {
				continue
			}
			var p map[string]any
			if json.Unmarshal(m.Payload, &p) == nil && p["battery"] != nil {
				return true
			}
		}
		return false
	}, waitFor, poll, "no battery state published")

	snap := h.app.tracker.Snapshot()
	require.NotNil(t, snap.Battery)
	assert.Equal(t, uint16(2950), snap.Battery.MilliVolts)
	assert.Equal(t, uint8(180), snap.Battery.Percent)

	h.stop(t)
	assert.True(t, h.transport.Closed, "engine closes the transport on shutdown")
}

func TestContactEdgesSendOnAndOff(t *testing.T) {
	h := newHarness(t, testConfig(t))
	h.start(t)
	h.join(t)

	h.drv.Fire(lineContact, true)
	require.Eventually(t, func() bool { return len(h.commands()) == 1 }, waitFor, poll)
	h.drv.Fire(lineContact, false)
	require.Eventually(t, func() bool { return len(h.commands()) == 2 }, waitFor, poll)

	cmds := h.commands()
	assert.Equal(t, zcl.CmdOn, cmds[0].OnOff)
	assert.Equal(t, zcl.CmdOff, cmds[1].OnOff)
	assert.Equal(t, uint8(1), cmds[0].SrcEndpoint)

	snap := h.app.tracker.Snapshot()
	assert.Equal(t, 1, snap.Counts.On)
	assert.Equal(t, 1, snap.Counts.Off)
	assert.Equal(t, "off", snap.LastCommand)

	h.stop(t)
}

func TestPressBeforeJoinIsNotSent(t *testing.T) {
	h := newHarness(t, testConfig(t))
	h.start(t)

	h.drv.Fire(lineContact, true)
	require.Eventually(t, func() bool { return h.app.engine.Stats().UserInputs == 1 }, waitFor, poll)
	require.Eventually(t, func() bool { return h.app.engine.BuffersInUse() == 0 }, waitFor, poll)
	assert.Empty(t, h.commands())

	h.stop(t)
}

func TestIdentifyButtonStartsBlinking(t *testing.T) {
	h := newHarness(t, testConfig(t))
	h.start(t)
	h.join(t)

	h.drv.Fire(lineIdentify, true)
	h.drv.Fire(lineIdentify, false)

	require.Eventually(t, func() bool { return h.app.tracker.Snapshot().Identifying }, waitFor, poll, "identify never started")
	require.Eventually(t, func() bool { return h.drv.Level(lineNetLED) }, waitFor, poll, "blink never lit the LED")
	require.Eventually(t, func() bool { return !h.drv.Level(lineNetLED) }, waitFor, poll, "blink never cleared the LED")
	assert.Empty(t, h.commands(), "identify button sends no on/off")

	h.stop(t)
}

func TestRemoteIdentifyRequest(t *testing.T) {
	h := newHarness(t, testConfig(t))
	h.start(t)
	h.join(t)

	h.transport.RequestIdentify(5)
	require.Eventually(t, func() bool { return h.app.tracker.Snapshot().Identifying }, waitFor, poll)

	h.transport.RequestIdentify(0)
	require.Eventually(t, func() bool { return !h.app.tracker.Snapshot().Identifying }, waitFor, poll)
	require.Eventually(t, func() bool { return !h.drv.Level(lineNetLED) }, waitFor, poll, "LED follows join state after identify")

	h.stop(t)
}

func TestLongPressFactoryReset(t *testing.T) {
	h := newHarness(t, testConfig(t))
	h.start(t)
	h.join(t)

	h.drv.Fire(lineIdentify, true)
	require.Eventually(t, func() bool { return h.app.engine.Stats().FactoryResets == 1 }, waitFor, poll)
	require.Eventually(t, func() bool { return !h.app.tracker.Snapshot().Joined }, waitFor, poll, "reset leaves the network")
	require.Eventually(t, func() bool { return h.drv.Level(lineNetLED) }, waitFor, poll, "network LED back on after leave")

	// Releasing after the reset must not start identify.
	h.drv.Fire(lineIdentify, false)
	time.Sleep(50 * time.Millisecond)
	assert.False(t, h.app.tracker.Snapshot().Identifying)

	h.stop(t)
	assert.Equal(t, 1, h.transport.Leaves)
}

func TestTickRefreshesStatus(t *testing.T) {
	h := newHarness(t, testConfig(t))
	h.start(t)
	h.join(t)

	h.drv.Fire(lineContact, true)
	require.Eventually(t, func() bool {
		h.tick <- time.Now()
		snap := h.app.tracker.Snapshot()
		return snap.MQTTConnected && snap.Engine.LongPollInterval == time.Hour
	}, waitFor, poll, "tick never refreshed the engine counters")

	snap := h.app.tracker.Snapshot()
	assert.Equal(t, uint32(1), snap.Inputs&1, "latched input level is recorded")
	assert.Equal(t, uint64(1), snap.Engine.UserInputs)

	h.stop(t)
}

func TestStatusLineIsJSON(t *testing.T) {
	h := newHarness(t, testConfig(t))

	var parsed map[string]any
	require.NoError(t, json.Unmarshal(h.app.statusLine(), &parsed))
	assert.Contains(t, parsed, "status")
}

func TestMQTTOptions(t *testing.T) {
	cfg := testConfig(t)
	cfg.MQTT.BaseTopic = "z2m/"
	opts := mqttOptions(cfg)

	assert.Equal(t, cfg.MQTT.Broker, opts.Broker)
	assert.Equal(t, "z2m/hall-door", opts.Topics.State)
	assert.Equal(t, "z2m/hall-door/set", opts.Topics.Set)
}
