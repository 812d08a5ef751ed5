package mqtt

import (
	"errors"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/sweeney/vessel-monitor/internal/state"
)

func sampleSnapshot() state.Snapshot {
	s := state.New()
	s.Update(state.Device1, state.Partial{
		Temperature:  state.Float(41.5),
		WaterLevelOK: state.Bool(true),
		HeaterOn:     state.Bool(true),
	})
	s.Update(state.Device2, state.Partial{CoolerOn: state.Bool(true), Alarm: state.Bool(true)})
	s.SetFlow(8)
	return s.ReadAll()
}

func TestTopics(t *testing.T) {
	assert.Equal(t, "vessels/monitor/state", StateTopic(DefaultPrefix))
	assert.Equal(t, "plant/b/system", SystemTopic("plant/b"))
}

func TestNewSessionID(t *testing.T) {
	a, b := NewSessionID(), NewSessionID()
	assert.Len(t, a, 36, "canonical uuid")
	assert.NotEqual(t, a, b)
}

func TestFormatStatePayloadExactJSON(t *testing.T) {
	ts := time.Date(2026, 2, 2, 22, 18, 12, 0, time.UTC)

	payload, err := FormatStatePayload(ts, "abc", sampleSnapshot())
	require.NoError(t, err)

	expected := `{"timestamp":"2026-02-02T22:18:12Z","session":"abc","devices":[` +
		`{"device":"device1","temp":41.5,"water":1,"heat":1,"pump":0,"cool":0,"warn":0,"alarm":0,"flow":8.0},` +
		`{"device":"device2","temp":25.0,"water":0,"heat":0,"pump":0,"cool":1,"warn":0,"alarm":1,"flow":8.0}]}`
	assert.Equal(t, expected, string(payload))
}

func TestFormatStatePayloadOmitsEmptySession(t *testing.T) {
	payload, err := FormatStatePayload(time.Now(), "", state.New().ReadAll())
	require.NoError(t, err)

	assert.NotContains(t, string(payload), `"session"`)
	assert.Contains(t, string(payload), `"device":"device1"`)
	assert.Contains(t, string(payload), `"device":"device2"`)
}

func TestFormatStatePayloadTimezoneConversion(t *testing.T) {
	loc := time.FixedZone("EST", -5*60*60)
	ts := time.Date(2026, 2, 2, 17, 18, 12, 0, loc)

	payload, err := FormatStatePayload(ts, "", state.New().ReadAll())
	require.NoError(t, err)
	assert.Contains(t, string(payload), `"timestamp":"2026-02-02T22:18:12Z"`)
}

func TestFormatSystemPayloadExactJSON(t *testing.T) {
	event := SystemEvent{
		Timestamp: time.Date(2026, 2, 3, 10, 30, 45, 0, time.UTC),
		Event:     EventShutdown,
		Reason:    "SIGTERM",
	}

	payload, err := FormatSystemPayload(event)
	require.NoError(t, err)
	assert.Equal(t, `{"system":{"timestamp":"2026-02-03T10:30:45Z","event":"SHUTDOWN","reason":"SIGTERM"}}`, string(payload))
}

func TestFormatSystemPayloadAllSignals(t *testing.T) {
	for _, reason := range []string{"SIGTERM", "SIGINT", "UNKNOWN"} {
		t.Run(reason, func(t *testing.T) {
			payload, err := FormatSystemPayload(SystemEvent{
				Timestamp: time.Now(),
				Event:     EventShutdown,
				Reason:    reason,
			})
			require.NoError(t, err)
			assert.Contains(t, string(payload), `"reason":"`+reason+`"`)
		})
	}
}

func TestFormatSystemPayloadReconnected(t *testing.T) {
	event := SystemEvent{
		Timestamp: time.Date(2026, 2, 10, 14, 30, 0, 0, time.UTC),
		Event:     EventReconnected,
		Session:   "s1",
	}

	payload, err := FormatSystemPayload(event)
	require.NoError(t, err)
	assert.Equal(t, `{"system":{"timestamp":"2026-02-10T14:30:00Z","event":"RECONNECTED","session":"s1"}}`, string(payload))
}

func TestFormatSystemPayloadRawPayload(t *testing.T) {
	raw := []byte(`{"status":{"event":"STARTUP"}}`)

	payload, err := FormatSystemPayload(SystemEvent{Event: EventStartup, RawPayload: raw})
	require.NoError(t, err)
	assert.Equal(t, string(raw), string(payload), "raw payload passes through")
}

func TestFakePublisher(t *testing.T) {
	f := NewFakePublisher()

	require.NoError(t, f.PublishState(time.Now(), sampleSnapshot()))

	require.Equal(t, 1, f.StateCount())
	assert.True(t, f.States[0].Device1.HeaterOn)
	assert.Len(t, f.StatePayloads, 1)
}

func TestFakePublisherError(t *testing.T) {
	f := NewFakePublisher()
	f.PublishError = errors.New("simulated error")

	assert.Error(t, f.PublishState(time.Now(), sampleSnapshot()))
	assert.Equal(t, 0, f.StateCount())
}

func TestFakePublisherPublishSystem(t *testing.T) {
	f := NewFakePublisher()

	require.NoError(t, f.PublishSystem(SystemEvent{Timestamp: time.Now(), Event: EventStartup, Retained: true}))
	f.PublishSystem(SystemEvent{Timestamp: time.Now(), Event: EventHeartbeat})

	events := f.Events()
	require.Len(t, events, 2)
	assert.Equal(t, EventStartup, events[0].Event)
	assert.True(t, events[0].Retained)
	assert.False(t, events[1].Retained)
}

func TestFakePublisherPublishSystemError(t *testing.T) {
	f := NewFakePublisher()
	f.PublishSystemError = errors.New("simulated error")

	assert.Error(t, f.PublishSystem(SystemEvent{Event: EventShutdown}))
	assert.Empty(t, f.Events())
}

func TestFakePublisherReset(t *testing.T) {
	f := NewFakePublisher()
	f.PublishState(time.Now(), sampleSnapshot())
	f.PublishSystem(SystemEvent{Event: EventStartup})
	f.Close()
	f.SetConnected(true)
	f.PublishError = errors.New("error")

	f.Reset()

	assert.Equal(t, 0, f.StateCount())
	assert.Empty(t, f.StatePayloads)
	assert.Empty(t, f.SystemEvents)
	assert.Empty(t, f.SystemPayloads)
	assert.False(t, f.Closed)
	assert.False(t, f.IsConnected())
	assert.NoError(t, f.PublishError)

	assert.NoError(t, f.PublishState(time.Now(), sampleSnapshot()), "reusable after reset")
}

// fakeToken is an already-completed paho token.
type fakeToken struct {
	paho.Token
	err     error
	pending bool
}

func (t *fakeToken) Wait() bool                     { return !t.pending }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return !t.pending }
func (t *fakeToken) Error() error                   { return t.err }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	if !t.pending {
		close(ch)
	}
	return ch
}

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// fakeClient implements the parts of paho.Client the publisher uses.
type fakeClient struct {
	paho.Client

	mu           sync.Mutex
	open         bool
	err          error
	pending      bool
	sent         []published
	disconnected bool
}

func (c *fakeClient) IsConnectionOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, published{topic, qos, retained, payload.([]byte)})
	return &fakeToken{err: c.err, pending: c.pending}
}

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	c.disconnected = true
	c.mu.Unlock()
}

func (c *fakeClient) setOpen(open bool) {
	c.mu.Lock()
	c.open = open
	c.mu.Unlock()
}

func (c *fakeClient) messages() []published {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]published, len(c.sent))
	copy(out, c.sent)
	return out
}

func newTestPublisher(client *fakeClient, bufferSize int) (*RealPublisher, *observer.ObservedLogs) {
	core, logs := observer.New(zap.InfoLevel)
	p := newPublisher(client, Options{
		Prefix:     "test/vessels",
		Session:    "sess-1",
		BufferSize: bufferSize,
		Log:        zap.New(core).Sugar(),
	})
	p.now = func() time.Time { return time.Date(2026, 2, 10, 14, 30, 0, 0, time.UTC) }
	return p, logs
}

func TestNewRealPublisherRequiresBroker(t *testing.T) {
	_, err := NewRealPublisher(Options{})
	assert.Error(t, err)
}

func TestRealPublisherPublishesWhenConnected(t *testing.T) {
	client := &fakeClient{open: true}
	p, _ := newTestPublisher(client, 10)

	require.NoError(t, p.PublishState(time.Now(), sampleSnapshot()))
	require.NoError(t, p.PublishSystem(SystemEvent{Timestamp: time.Now(), Event: EventStartup, Retained: true}))

	msgs := client.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "test/vessels/state", msgs[0].topic)
	assert.Equal(t, byte(0), msgs[0].qos)
	assert.False(t, msgs[0].retained)
	assert.Equal(t, "test/vessels/system", msgs[1].topic)
	assert.Equal(t, byte(1), msgs[1].qos)
	assert.True(t, msgs[1].retained)
	assert.Contains(t, string(msgs[1].payload), `"session":"sess-1"`)
	assert.Equal(t, 0, p.Buffered())
}

func TestRealPublisherPublishError(t *testing.T) {
	client := &fakeClient{open: true, err: errors.New("broker said no")}
	p, _ := newTestPublisher(client, 10)

	assert.Error(t, p.PublishState(time.Now(), sampleSnapshot()))
}

func TestRealPublisherPublishTimeout(t *testing.T) {
	client := &fakeClient{open: true, pending: true}
	p, _ := newTestPublisher(client, 10)

	assert.Error(t, p.PublishSystem(SystemEvent{Event: EventHeartbeat}))
}

func TestRealPublisherBuffersWhileDisconnected(t *testing.T) {
	client := &fakeClient{}
	p, logs := newTestPublisher(client, 2)

	for i := 0; i < 3; i++ {
		require.NoError(t, p.PublishState(time.Now(), sampleSnapshot()), "buffered publish %d", i)
	}

	assert.Empty(t, client.messages(), "nothing sent while disconnected")
	assert.Equal(t, 2, p.Buffered())
	assert.Equal(t, 1, logs.FilterMessage("mqtt buffer full, dropping oldest").Len())
}

func TestRealPublisherReplaysOnConnect(t *testing.T) {
	client := &fakeClient{}
	p, logs := newTestPublisher(client, 10)

	p.PublishSystem(SystemEvent{Timestamp: time.Now(), Event: EventStartup, Retained: true})
	p.PublishState(time.Now(), sampleSnapshot())

	client.setOpen(true)
	p.onConnect(client)

	msgs := client.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "test/vessels/system", msgs[0].topic, "startup replayed first")
	assert.True(t, msgs[0].retained)
	assert.Equal(t, "test/vessels/state", msgs[1].topic)
	assert.Equal(t, 0, p.Buffered())
	assert.Equal(t, 1, logs.FilterMessage("mqtt connected").Len())
}

func TestRealPublisherAnnouncesReconnect(t *testing.T) {
	client := &fakeClient{open: true}
	p, logs := newTestPublisher(client, 10)

	p.onConnect(client)
	require.Empty(t, client.messages(), "first connect is not announced")

	client.setOpen(false)
	p.onConnectionLost(client, errors.New("EOF"))
	p.PublishState(time.Now(), sampleSnapshot())
	client.setOpen(true)
	p.onConnect(client)

	msgs := client.messages()
	require.Len(t, msgs, 2, "replay plus reconnect event")
	expected := `{"system":{"timestamp":"2026-02-10T14:30:00Z","event":"RECONNECTED","session":"sess-1"}}`
	assert.Equal(t, expected, string(msgs[1].payload))
	assert.Equal(t, 1, logs.FilterMessage("mqtt connection lost").Len())
	assert.Equal(t, 1, logs.FilterMessage("mqtt reconnected").Len())
}

func TestRealPublisherIsConnectedAndClose(t *testing.T) {
	client := &fakeClient{open: true}
	p, _ := newTestPublisher(client, 10)

	assert.True(t, p.IsConnected())
	assert.NoError(t, p.Close())
	assert.True(t, client.disconnected)
}
