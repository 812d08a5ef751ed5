package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/vessel-monitor/internal/state"
	"github.com/sweeney/vessel-monitor/internal/status"
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
	"onOff": func(on bool) string {
		if on {
			return "ON"
		}
		return "OFF"
	},
	"temp": func(v float64) string {
		return fmt.Sprintf("%.2f", v)
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Vessel Monitor</title>
<style>
body { font-family: monospace; max-width: 720px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 30%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.alert { color: red; font-weight: bold; }
.connected { color: green; }
.disconnected { color: red; }
.live-dot { display: inline-block; width: 8px; height: 8px; border-radius: 50%; margin-left: 6px; vertical-align: middle; }
.live-dot.ok { background: green; }
.live-dot.err { background: red; }
.live-dot.pending { background: orange; }
</style>
</head>
<body>
<h1>Vessel Monitor<span id="live-dot" class="live-dot pending" title="connecting"></span></h1>

<h2>Vessels</h2>
<table>
<tr><th></th>{{range .Devices}}<th>{{.ID}}</th>{{end}}</tr>
<tr><th>Temperature</th>{{range .Devices}}<td id="{{.ID}}-temp">{{temp .State.Temperature}} &deg;C</td>{{end}}</tr>
<tr><th>Water level</th>{{range .Devices}}<td id="{{.ID}}-water" class="{{if .State.WaterLevelOK}}on{{else}}alert{{end}}">{{if .State.WaterLevelOK}}OK{{else}}LOW{{end}}</td>{{end}}</tr>
<tr><th>Heater</th>{{range .Devices}}<td id="{{.ID}}-heat" class="{{if .State.HeaterOn}}on{{else}}off{{end}}">{{onOff .State.HeaterOn}}</td>{{end}}</tr>
<tr><th>Pump</th>{{range .Devices}}<td id="{{.ID}}-pump" class="{{if .State.PumpOn}}on{{else}}off{{end}}">{{onOff .State.PumpOn}}</td>{{end}}</tr>
<tr><th>Cooler</th>{{range .Devices}}<td id="{{.ID}}-cool" class="{{if .State.CoolerOn}}on{{else}}off{{end}}">{{onOff .State.CoolerOn}}{{if .Outputs.CoolPhase}} ({{.Outputs.CoolPhase}}){{end}}</td>{{end}}</tr>
<tr><th>Warning</th>{{range .Devices}}<td id="{{.ID}}-warn" class="{{if .State.Warning}}alert{{else}}off{{end}}">{{onOff .State.Warning}}</td>{{end}}</tr>
<tr><th>Alarm</th>{{range .Devices}}<td id="{{.ID}}-alarm" class="{{if .State.Alarm}}alert{{else}}off{{end}}">{{onOff .State.Alarm}}</td>{{end}}</tr>
</table>

<h2>Flow</h2>
<table>
<tr><th>Rate</th><td id="flow">{{temp .State.Flow}} L/min</td></tr>
<tr><th>Pulses</th><td>{{.Pulses.Total}} total, {{.Pulses.LastWindow}} last window</td></tr>
</table>

<h2>Controller link</h2>
<table>
<tr><th>Serial</th><td>{{.Config.SerialPort}} @ {{.Config.Baud}}</td></tr>
<tr><th>Lines sent</th><td>{{.Link.LinesSent}}</td></tr>
<tr><th>Updates applied</th><td>{{.Link.Applied}}</td></tr>
<tr><th>Malformed</th><td>{{.Link.Malformed}}</td></tr>
<tr><th>Unknown device</th><td>{{.Link.UnknownDevice}}</td></tr>
<tr><th>Decode faults</th><td>{{.Link.DecodeFaults}}</td></tr>
<tr><th>Bytes dropped</th><td>{{.Link.RxDropped}}</td></tr>
<tr><th>Read errors</th><td>{{.Link.RxReadErrors}}</td></tr>
{{if .Link.RxError}}<tr><th>Receive</th><td class="alert">{{.Link.RxError}}</td></tr>{{end}}
</table>

<h2>Tasks</h2>
<table>
<tr><th>Task</th><td>runs / faults / last</td></tr>
{{range .Tasks}}<tr><th>{{.Name}}</th><td class="{{if gt .ConsecutiveFaults 0}}alert{{end}}">{{.Runs}} / {{.Faults}} / {{.LastResult}}{{if .LastError}}: {{.LastError}}{{end}}</td></tr>
{{end}}</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{if .Config.Broker}}{{.Config.Broker}}{{else}}disabled{{end}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Ready</th><td>{{if .Mirrored}}yes{{else}}no{{end}}</td></tr>
<tr><th>Actuators</th><td>{{.Config.ActuatorMs}}ms</td></tr>
<tr><th>Broadcast</th><td>{{.Config.BroadcastMs}}ms</td></tr>
<tr><th>Blink</th><td>warn {{.Config.WarnBlinkMs}}ms, alarm {{.Config.AlarmBlinkMs}}ms</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
<script>
(function() {
  var dot = document.getElementById("live-dot");
  var flags = { heat: "on", pump: "on", cool: "on", warn: "alert", alarm: "alert" };

  function setDot(cls, title) {
    dot.className = "live-dot " + cls;
    dot.title = title;
  }

  function set(id, text, cls) {
    var el = document.getElementById(id);
    if (!el) return;
    el.textContent = text;
    if (cls !== undefined) el.className = cls;
  }

  function connect() {
    var proto = location.protocol === "https:" ? "wss://" : "ws://";
    var ws = new WebSocket(proto + location.host + "/ws");
    ws.onopen = function() { setDot("ok", "live"); };
    ws.onclose = function() {
      setDot("err", "offline");
      setTimeout(connect, 5000);
    };
    ws.onmessage = function(ev) {
      try {
        var msg = JSON.parse(ev.data);
        if (msg.type !== "state") return;
        var s = msg.data;
        set("flow", s.flow.toFixed(2) + " L/min");
        for (var id in s.devices) {
          var d = s.devices[id];
          set(id + "-temp", d.temp.toFixed(2) + " °C");
          set(id + "-water", d.water ? "OK" : "LOW", d.water ? "on" : "alert");
          for (var k in flags) {
            set(id + "-" + k, d[k] ? "ON" : "OFF", d[k] ? flags[k] : "off");
          }
        }
      } catch (e) {}
    };
  }
  connect();
})();
</script>
</body>
</html>
`

type deviceView struct {
	ID      state.DeviceID
	State   state.DeviceState
	Outputs status.Outputs
}

func renderHTML(w io.Writer, snap status.Snapshot) error {
	devices := make([]deviceView, 0, len(state.Devices))
	for _, id := range state.Devices {
		d, _ := snap.State.Device(id)
		devices = append(devices, deviceView{ID: id, State: d, Outputs: snap.Outputs[id]})
	}

	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime  time.Duration
		Devices []deviceView
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
		Devices:  devices,
	}
	return indexTmpl.Execute(w, data)
}
