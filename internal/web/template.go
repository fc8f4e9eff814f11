package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/leak-gateway/internal/status"
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
	"lpm": func(v float64) string {
		return fmt.Sprintf("%.2f L/min", v)
	},
	"age": func(now, seen time.Time) string {
		if seen.IsZero() {
			return "never"
		}
		return now.Sub(seen).Truncate(time.Second).String() + " ago"
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="5">
<title>Leak Gateway</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.pulsing { color: orange; font-weight: bold; }
.idle { color: #888; }
.stale { color: #888; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Leak Gateway</h1>

<h2>Flow</h2>
<table>
<tr><th>Local sensor</th><td id="local">{{lpm .LocalFlow}}</td></tr>
{{range .Peers}}<tr><th>{{.Name}}</th><td class="{{if .Stale}}stale{{end}}">{{lpm .Value}} ({{if .Stale}}stale, {{end}}{{age $.Now .LastSeen}})</td></tr>
{{end}}<tr><th>Pulses</th><td>{{.PulseTotal}}</td></tr>
</table>

<h2>Valve</h2>
<table>
<tr><th>State</th><td id="valve" class="{{if .Valve.Pulsing}}pulsing{{else}}idle{{end}}">{{if .Valve.Pulsing}}PULSING {{.Valve.Channel}}{{else}}IDLE{{end}}</td></tr>
<tr><th>Last command</th><td>{{if .LastCommand}}{{.LastCommand}}{{else}}none{{end}}</td></tr>
<tr><th>Opens / Closes</th><td>{{.Valve.Opens}} / {{.Valve.Closes}}</td></tr>
<tr><th>Rejected</th><td>{{.Valve.Rejected}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
{{if .Config.StoreURL}}<tr><th>Store</th><td>{{.Config.StoreURL}}</td></tr>{{end}}
<tr><th>Push ok / failed / skipped</th><td>{{.Sync.PushOK}} / {{.Sync.PushFailed}} / {{.Sync.PushSkipped}}</td></tr>
<tr><th>Pull ok / failed / skipped</th><td>{{.Sync.PullOK}} / {{.Sync.PullFailed}} / {{.Sync.PullSkipped}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Sensor</th><td>{{.Config.SensorMode}}, {{.Config.SampleMs}}ms</td></tr>
<tr><th>Calculate / Push / Pull</th><td>{{.Config.CalculateMs}}ms / {{.Config.PushMs}}ms / {{.Config.PullMs}}ms</td></tr>
<tr><th>Pulse</th><td>{{.Config.PulseMs}}ms{{if .Config.SuspendWhilePulsing}}, jobs suspended while pulsing{{end}}</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> | <a href="/metrics">metrics</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	indexTmpl.Execute(w, data)
}
