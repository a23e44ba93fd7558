package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/contact-sensor/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"bits": func(mask uint32, n int) string {
		if n <= 0 {
			n = 1
		}
		b := make([]byte, n)
		for i := 0; i < n; i++ {
			b[n-1-i] = '0'
			if mask&(1<<uint(i)) != 0 {
				b[n-1-i] = '1'
			}
		}
		return string(b)
	},
	"percent": func(half uint8) string {
		return fmt.Sprintf("%.1f%%", float64(half)/2)
	},
	"volts": func(mv uint16) string {
		return fmt.Sprintf("%.3f V", float64(mv)/1000)
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Contact Sensor</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.warn { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Contact Sensor{{if .Config.Device}} ({{.Config.Device}}){{end}}</h1>

<h2>State</h2>
<table>
<tr><th>Network</th><td id="join-state" class="{{if .Joined}}on{{else}}off{{end}}">{{if .Joined}}joined{{else}}not joined{{end}}</td></tr>
<tr><th>Identify</th><td class="{{if .Identifying}}warn{{else}}off{{end}}">{{if .Identifying}}active{{else}}idle{{end}}</td></tr>
<tr><th>Inputs</th><td id="inputs">{{bits .Inputs .Config.Inputs}}</td></tr>
<tr><th>Last command</th><td>{{if .LastCommand}}{{.LastCommand}}{{else}}none{{end}}</td></tr>
</table>

<h2>Battery</h2>
<table>
{{if .Battery}}<tr><th>Voltage</th><td>{{volts .Battery.MilliVolts}}</td></tr>
<tr><th>Remaining</th><td>{{percent .Battery.Percent}}</td></tr>
<tr><th>Alarm state</th><td class="{{if .Battery.AlarmState}}warn{{end}}">0x{{printf "%08x" .Battery.AlarmState}}</td></tr>
<tr><th>Sampled</th><td>{{.Battery.At.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
{{else}}<tr><th>Voltage</th><td>not sampled yet</td></tr>{{end}}
<tr><th>Converter failures</th><td>{{.Counts.ConvFailures}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
<tr><th>Long poll</th><td>{{.Engine.LongPollInterval}}</td></tr>
</table>

<h2>Event Counts</h2>
<table>
<tr><th>Input changes</th><td>{{.Counts.Inputs}}</td></tr>
<tr><th>On</th><td>{{.Counts.On}}</td></tr>
<tr><th>Off</th><td>{{.Counts.Off}}</td></tr>
<tr><th>Dropped presses</th><td>{{.Counts.DroppedPresses}}</td></tr>
<tr><th>Commands sent</th><td>{{.Engine.CommandsSent}}</td></tr>
<tr><th>Reports sent</th><td>{{.Engine.ReportsSent}}</td></tr>
<tr><th>Factory resets</th><td>{{.Engine.FactoryResets}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Battery period</th><td>{{.Config.BatteryPeriod}}</td></tr>
<tr><th>Blink interval</th><td>{{.Config.BlinkInterval}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) error {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	return indexTmpl.Execute(w, data)
}
