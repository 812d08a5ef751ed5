package main

import (
	"context"
	"os"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/vessel-monitor/internal/mqtt"
	"github.com/sweeney/vessel-monitor/internal/status"
)

// runLoop drives the scheduler until a signal arrives and returns the
// signal's name.
func runLoop(step func(time.Time), tick <-chan time.Time, sig <-chan os.Signal, log *zap.SugaredLogger) string {
	for {
		select {
		case s := <-sig:
			name := signalName(s)
			log.Infow("received signal, shutting down", "signal", name)
			return name
		case now := <-tick:
			step(now)
		}
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}

// telemetry publishes mirrored state and heartbeats from its own goroutine,
// so a slow broker never delays the scheduler.
type telemetry struct {
	publisher mqtt.Publisher
	conn      mqtt.ConnectionStatus
	tracker   *status.Tracker
	session   string
	now       func() time.Time
	log       *zap.SugaredLogger
}

// run publishes on every tick until ctx is done. A nil heartbeat channel
// disables heartbeats.
func (t *telemetry) run(ctx context.Context, stateTick, heartbeatTick <-chan time.Time) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-stateTick:
			t.publishState()
		case <-heartbeatTick:
			t.publishHeartbeat()
		}
	}
}

func (t *telemetry) refresh() status.Snapshot {
	if t.conn != nil {
		t.tracker.SetMQTTConnected(t.conn.IsConnected())
	}
	return t.tracker.Snapshot()
}

func (t *telemetry) publishState() {
	snap := t.refresh()
	if !snap.Mirrored {
		return
	}
	if err := t.publisher.PublishState(t.now(), snap.State); err != nil {
		t.log.Warnw("state publish failed", "error", err)
	}
}

func (t *telemetry) publishHeartbeat() {
	if net := readNetworkInfo(); net != nil {
		t.tracker.SetNetwork(net)
	}
	snap := t.refresh()
	t.log.Infow("heartbeat",
		"uptime", snap.Uptime().Truncate(time.Second),
		"lines_sent", snap.Link.LinesSent,
		"applied", snap.Link.Applied,
		"malformed", snap.Link.Malformed,
		"rx_read_errors", snap.Link.RxReadErrors,
		"rx_error", snap.Link.RxError)
	t.publishSystem(snap, mqtt.EventHeartbeat, "", false)
}

// publishSystem sends a lifecycle event carrying the full status document.
func (t *telemetry) publishSystem(snap status.Snapshot, event, reason string, retained bool) {
	ev := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      event,
		Reason:     reason,
		Session:    t.session,
		Retained:   retained,
		RawPayload: status.FormatStatusEvent(snap, event, reason, t.session),
	}
	if err := t.publisher.PublishSystem(ev); err != nil {
		t.log.Warnw("system event publish failed", "event", event, "error", err)
		return
	}
	t.log.Infow("published system event", "event", event)
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
