package web

import (
	"fmt"
	"html/template"
	"io"
	"strings"
	"time"

	"github.com/sweeney/crossing-controller/internal/logic"
	"github.com/sweeney/crossing-controller/internal/status"
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
	"stateOrUnknown": func(s logic.State) string {
		if s.Phase == logic.PhaseIdle {
			return "UNKNOWN"
		}
		return s.String()
	},
	"lower": strings.ToLower,
	"orNone": func(s string) string {
		if s == "" {
			return "none"
		}
		return s
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="2">
<title>Crossing Controller</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.green, .walk { color: green; font-weight: bold; }
.yellow { color: #c90; font-weight: bold; }
.red, .dont_walk { color: red; font-weight: bold; }
.off { color: #888; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Crossing Controller</h1>

<h2>Signals</h2>
<table>
<tr><th>State</th><td id="state">{{stateOrUnknown .Controller.State}}</td></tr>
<tr><th>Dwell</th><td>{{.Controller.Dwell}} ticks</td></tr>
<tr><th>Primary</th><td id="primary" class="{{lower .Controller.Lamps.Primary.String}}">{{.Controller.Lamps.Primary}}</td></tr>
<tr><th>Secondary</th><td id="secondary" class="{{lower .Controller.Lamps.Secondary.String}}">{{.Controller.Lamps.Secondary}}</td></tr>
<tr><th>Pedestrian</th><td id="pedestrian" class="{{lower .Controller.Lamps.Pedestrian.String}}">{{.Controller.Lamps.Pedestrian}}</td></tr>
</table>

<h2>Requests</h2>
<table>
<tr><th>Current</th><td>{{orNone (printf "%s" .Controller.Current)}}</td></tr>
<tr><th>Previous</th><td>{{orNone (printf "%s" .Controller.Previous)}}</td></tr>
<tr><th>Ambulance (primary)</th><td>{{if .Controller.AmbulancePrimary}}yes{{else}}no{{end}}</td></tr>
<tr><th>Ambulance (secondary)</th><td>{{if .Controller.AmbulanceSecondary}}yes{{else}}no{{end}}</td></tr>
<tr><th>Walk deferred by</th><td>{{range .Controller.Deferred.Strings}}{{.}} {{else}}none{{end}}</td></tr>
<tr><th>Queued events</th><td>{{.QueueDepth}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{orNone .Config.Broker}}</td></tr>
<tr><th>Redis</th><td class="{{if .RedisConnected}}connected{{else}}disconnected{{end}}">{{if .RedisConnected}}connected{{else}}disconnected{{end}} ({{orNone .Config.Redis}})</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>Counts</h2>
<table>
{{range $code, $n := .Controller.Counts.Events}}<tr><th>{{$code}}</th><td>{{$n}}</td></tr>
{{end}}<tr><th>Transitions</th><td>{{.Controller.Counts.Transitions}}</td></tr>
<tr><th>Preemptions</th><td>{{.Controller.Counts.Preemptions}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Run</th><td>{{.RunID}}</td></tr>
<tr><th>Poll</th><td>{{.Config.PollMs}}ms</td></tr>
<tr><th>Debounce</th><td>{{.Config.DebounceMs}}ms</td></tr>
<tr><th>Tick</th><td>{{.Config.TickMs}}ms</td></tr>
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
