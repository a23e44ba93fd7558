package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Joined        bool         `json:"joined"`
	Identifying   bool         `json:"identifying"`
	Inputs        uint32       `json:"inputs"`
	LastCommand   string       `json:"last_command,omitempty"`
	LastError     string       `json:"last_error,omitempty"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Battery       *BatteryJSON `json:"battery,omitempty"`
	Counts        CountsJSON   `json:"event_counts"`
	Engine        EngineJSON   `json:"engine"`
	Config        ConfigJSON   `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// BatteryJSON is the JSON representation of the last battery sample.
type BatteryJSON struct {
	MilliVolts uint16  `json:"millivolts"`
	Percent    float64 `json:"percent"`
	AlarmState uint32  `json:"alarm_state"`
	SampledAt  string  `json:"sampled_at"`
}

// CountsJSON is the JSON representation of event counts.
type CountsJSON struct {
	Inputs         int    `json:"inputs"`
	On             int    `json:"on"`
	Off            int    `json:"off"`
	DroppedPresses int    `json:"dropped_presses"`
	JoinChanges    int    `json:"join_changes"`
	ConvFailures   uint64 `json:"conv_failures"`
}

// EngineJSON is the JSON representation of the engine counters.
type EngineJSON struct {
	UserInputs      uint64 `json:"user_inputs"`
	CommandsSent    uint64 `json:"commands_sent"`
	ReportsSent     uint64 `json:"reports_sent"`
	FactoryResets   uint64 `json:"factory_resets"`
	BuffersInUse    int    `json:"buffers_in_use"`
	LongPollSeconds int64  `json:"long_poll_seconds"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Device          string `json:"device"`
	Broker          string `json:"broker"`
	HTTPAddr        string `json:"http_addr"`
	BatteryPeriodMs int64  `json:"battery_period_ms"`
	BlinkIntervalMs int64  `json:"blink_interval_ms"`
	Inputs          int    `json:"inputs"`
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		Joined:        snap.Joined,
		Identifying:   snap.Identifying,
		Inputs:        snap.Inputs,
		LastCommand:   snap.LastCommand,
		LastError:     snap.LastError,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Inputs:         snap.Counts.Inputs,
			On:             snap.Counts.On,
			Off:            snap.Counts.Off,
			DroppedPresses: snap.Counts.DroppedPresses,
			JoinChanges:    snap.Counts.JoinChanges,
			ConvFailures:   snap.Counts.ConvFailures,
		},
		Engine: EngineJSON{
			UserInputs:      snap.Engine.UserInputs,
			CommandsSent:    snap.Engine.CommandsSent,
			ReportsSent:     snap.Engine.ReportsSent,
			FactoryResets:   snap.Engine.FactoryResets,
			BuffersInUse:    snap.Engine.BuffersInUse,
			LongPollSeconds: int64(snap.Engine.LongPollInterval / time.Second),
		},
		Config: ConfigJSON{
			Device:          snap.Config.Device,
			Broker:          snap.Config.Broker,
			HTTPAddr:        snap.Config.HTTPAddr,
			BatteryPeriodMs: snap.Config.BatteryPeriod.Milliseconds(),
			BlinkIntervalMs: snap.Config.BlinkInterval.Milliseconds(),
			Inputs:          snap.Config.Inputs,
		},
	}
	inner.Battery = batteryJSON(snap.Battery)
	return inner
}

func batteryJSON(b *Battery) *BatteryJSON {
	if b == nil {
		return nil
	}
	return &BatteryJSON{
		MilliVolts: b.MilliVolts,
		Percent:    float64(b.Percent) / 2,
		AlarmState: b.AlarmState,
		SampledAt:  b.At.UTC().Format(time.RFC3339),
	}
}

// FormatJSON returns the indented JSON status for the web endpoint.
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatLine returns the compact JSON status used for the shutdown log line.
func FormatLine(snap Snapshot) []byte {
	data, _ := json.Marshal(StatusJSON{Status: buildInner(snap)})
	return data
}

// FormatBattery returns the indented JSON of the last battery sample, or
// false before the first one.
func FormatBattery(snap Snapshot) ([]byte, bool) {
	b := batteryJSON(snap.Battery)
	if b == nil {
		return nil, false
	}
	data, _ := json.MarshalIndent(b, "", "  ")
	return data, true
}
