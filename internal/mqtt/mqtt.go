// Package mqtt carries the device's commands, attribute reports and identify
// requests over an MQTT broker, using the zigbee2mqtt message layout so the
// device looks like any other zigbee2mqtt endpoint to home automation.
package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/sweeney/contact-sensor/internal/stack"
	"github.com/sweeney/contact-sensor/internal/zcl"
)

// DefaultBaseTopic is the zigbee2mqtt base topic.
const DefaultBaseTopic = "zigbee2mqtt"

// Availability payloads.
const (
	Online  = "online"
	Offline = "offline"
)

// Topics are the per-device topics.
type Topics struct {
	State        string // <base>/<device>
	Set          string // <base>/<device>/set
	Availability string // <base>/<device>/availability
}

// NewTopics builds the topics for device under base.
func NewTopics(base, device string) Topics {
	base = strings.TrimSuffix(base, "/")
	if base == "" {
		base = DefaultBaseTopic
	}
	state := base + "/" + device
	return Topics{
		State:        state,
		Set:          state + "/set",
		Availability: state + "/availability",
	}
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// ActionPayload is published for every On/Off command.
type ActionPayload struct {
	Action   string `json:"action"`
	Endpoint uint8  `json:"endpoint,omitempty"`
}

// FormatCommand creates the JSON payload for an outgoing command.
func FormatCommand(c stack.Command) ([]byte, error) {
	if c.Cluster != zcl.ClusterOnOff {
		return nil, fmt.Errorf("unsupported cluster %s", c.Cluster)
	}
	return json.Marshal(ActionPayload{Action: c.OnOff.String()})
}

// StatePayload is the device state published after every report. Fields the
// device has not reported yet are omitted.
type StatePayload struct {
	Battery           *float64 `json:"battery,omitempty"`
	Voltage           *int     `json:"voltage,omitempty"`
	BatteryLow        *bool    `json:"battery_low,omitempty"`
	BatteryAlarmState *uint32  `json:"battery_alarm_state,omitempty"`
}

// State accumulates reported attributes into a StatePayload. Safe for
// concurrent use.
type State struct {
	mu sync.Mutex
	p  StatePayload
}

// Apply merges a report and returns whether it changed a published field.
func (s *State) Apply(r stack.Report) bool {
	if r.Cluster != zcl.ClusterPowerConfig {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	switch r.Attr {
	case zcl.AttrBatteryVoltage:
		if r.Value.Num == uint32(zcl.BatteryVoltageInvalid) {
			return false
		}
		mv := int(r.Value.Num) * 100
		s.p.Voltage = &mv
	case zcl.AttrBatteryPercentageRemaining:
		if r.Value.Num == uint32(zcl.BatteryRemainingUnknown) {
			return false
		}
		pct := float64(r.Value.Num) / 2
		s.p.Battery = &pct
	case zcl.AttrBatteryAlarmState:
		st := r.Value.Num
		low := st != 0
		s.p.BatteryAlarmState = &st
		s.p.BatteryLow = &low
	default:
		return false
	}
	return true
}

// Payload returns the JSON form of the accumulated state.
func (s *State) Payload() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return json.Marshal(s.p)
}

// Reset forgets every reported value.
func (s *State) Reset() {
	s.mu.Lock()
	s.p = StatePayload{}
	s.mu.Unlock()
}

// SetPayload is the accepted shape of messages on the set topic.
type SetPayload struct {
	Identify *uint16 `json:"identify"`
}

// ParseSet decodes a set message. ok is false when the message carries
// nothing the device handles.
func ParseSet(b []byte) (identify uint16, ok bool, err error) {
	var p SetPayload
	if err := json.Unmarshal(b, &p); err != nil {
		return 0, false, fmt.Errorf("parse set payload: %w", err)
	}
	if p.Identify == nil {
		return 0, false, nil
	}
	return *p.Identify, true, nil
}
