// Package status provides a thread-safe status tracker for the vessel monitor.
// The scheduler goroutine publishes frames into it; HTTP handlers and the
// telemetry loop read snapshots from it.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/vessel-monitor/internal/protocol"
	"github.com/sweeney/vessel-monitor/internal/sched"
	"github.com/sweeney/vessel-monitor/internal/state"
)

// NetworkInfo contains network state as reported by the host.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	SerialPort     string
	Baud           int
	PulsesPerLiter float64
	ActuatorMs     int64
	BroadcastMs    int64
	WarnBlinkMs    int64
	AlarmBlinkMs   int64
	HeartbeatMs    int64
	Broker         string
	HTTPAddr       string
}

// Outputs is what one vessel's relays and lamps are currently driven to.
type Outputs struct {
	Heater    bool
	Pump      bool
	Cooler    bool
	WarnLamp  bool
	AlarmLamp bool
	CoolPhase string
}

// Pulses summarizes the flow sensor.
type Pulses struct {
	Total      uint64
	LastWindow uint32
	LastEdge   time.Time
}

// Frame is everything the scheduler goroutine exports in one go.
type Frame struct {
	State   state.Snapshot
	Outputs map[state.DeviceID]Outputs
	Pulses  Pulses
	Link    protocol.Counters
	Tasks   []sched.TaskStats
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Frame
	// Mirrored is false until the first frame arrives.
	Mirrored      bool
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			Frame:     Frame{State: state.New().ReadAll()},
			StartTime: startTime,
			Config:    cfg,
		},
		now: time.Now,
	}
}

// Publish replaces the mirrored frame. The frame must not be modified
// afterwards.
func (t *Tracker) Publish(f Frame) {
	t.mu.Lock()
	t.snap.Frame = f
	t.snap.Mirrored = true
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = t.now()
	return s
}

// Mirror is the scheduler task that copies state out to a Tracker.
type Mirror struct {
	tracker *Tracker
	period  time.Duration
	collect func() Frame
}

// NewMirror creates the mirror task. collect runs on the scheduler goroutine
// and must return a frame that shares no mutable memory with the tasks.
func NewMirror(t *Tracker, period time.Duration, collect func() Frame) *Mirror {
	return &Mirror{tracker: t, period: period, collect: collect}
}

func (m *Mirror) Name() string          { return "mirror" }
func (m *Mirror) Period() time.Duration { return m.period }

// Step publishes one frame.
func (m *Mirror) Step(time.Time) error {
	m.tracker.Publish(m.collect())
	return nil
}
