package mqtt

import (
	"errors"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/sweeney/vessel-monitor/internal/state"
)

// DefaultBufferSize is how many messages are held while the broker is
// unreachable.
const DefaultBufferSize = 100

const publishTimeout = 5 * time.Second

// Options configures a RealPublisher.
type Options struct {
	Broker     string
	ClientID   string
	Prefix     string
	Session    string
	BufferSize int
	Log        *zap.SugaredLogger
}

// RealPublisher publishes to an actual MQTT broker. While disconnected,
// messages are buffered and replayed in order on reconnect.
type RealPublisher struct {
	client  paho.Client
	opts    Options
	log     *zap.SugaredLogger
	now     func() time.Time
	mu      sync.Mutex
	buf     *ringBuffer
	connect int // completed connections
}

// NewRealPublisher creates a publisher for the given broker. It does not
// wait for the connection: paho keeps retrying in the background and
// anything published meanwhile is buffered.
func NewRealPublisher(opts Options) (*RealPublisher, error) {
	if opts.Broker == "" {
		return nil, errors.New("mqtt: broker address is required")
	}
	p := newPublisher(nil, opts)

	will, err := FormatSystemPayload(SystemEvent{
		Timestamp: p.now(),
		Event:     EventOffline,
		Reason:    "MQTT_DISCONNECT",
		Session:   p.opts.Session,
	})
	if err != nil {
		return nil, fmt.Errorf("format will payload: %w", err)
	}

	co := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(p.opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(SystemTopic(p.opts.Prefix), string(will), 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(p.onConnectionLost)

	p.client = paho.NewClient(co)
	p.client.Connect()
	p.log.Infow("mqtt connecting", "broker", opts.Broker, "client_id", p.opts.ClientID)
	return p, nil
}

func newPublisher(client paho.Client, opts Options) *RealPublisher {
	if opts.ClientID == "" {
		opts.ClientID = "vessel-monitor"
	}
	if opts.Prefix == "" {
		opts.Prefix = DefaultPrefix
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}
	log := opts.Log
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &RealPublisher{
		client: client,
		opts:   opts,
		log:    log,
		now:    time.Now,
		buf:    newRingBuffer(opts.BufferSize),
	}
}

// PublishState sends the state of both vessels, QoS 0, not retained.
func (p *RealPublisher) PublishState(ts time.Time, snap state.Snapshot) error {
	payload, err := FormatStatePayload(ts, p.opts.Session, snap)
	if err != nil {
		return fmt.Errorf("format state payload: %w", err)
	}
	return p.publish(bufferedMsg{topic: StateTopic(p.opts.Prefix), payload: payload})
}

// PublishSystem sends a system lifecycle event, QoS 1.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	if event.Session == "" {
		event.Session = p.opts.Session
	}
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.publish(bufferedMsg{
		topic:    SystemTopic(p.opts.Prefix),
		payload:  payload,
		qos:      1,
		retained: event.Retained,
	})
}

func (p *RealPublisher) publish(msg bufferedMsg) error {
	p.mu.Lock()
	if !p.client.IsConnectionOpen() {
		if p.buf.push(msg) {
			p.log.Warnw("mqtt buffer full, dropping oldest", "capacity", len(p.buf.buf))
		}
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish %s: timeout", msg.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", msg.topic, err)
	}
	return nil
}

// onConnect replays buffered messages and, on every connection after the
// first, announces the reconnect.
func (p *RealPublisher) onConnect(c paho.Client) {
	p.mu.Lock()
	pending, dropped := p.buf.drainAll()
	p.connect++
	reconnect := p.connect > 1
	p.mu.Unlock()

	if reconnect {
		p.log.Infow("mqtt reconnected", "replaying", len(pending), "dropped", dropped)
	} else {
		p.log.Infow("mqtt connected", "replaying", len(pending), "dropped", dropped)
	}

	for _, msg := range pending {
		c.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	}

	if reconnect {
		payload, err := FormatSystemPayload(SystemEvent{
			Timestamp: p.now(),
			Event:     EventReconnected,
			Session:   p.opts.Session,
		})
		if err != nil {
			p.log.Warnw("format reconnect event", "error", err)
			return
		}
		c.Publish(SystemTopic(p.opts.Prefix), 1, false, payload)
	}
}

func (p *RealPublisher) onConnectionLost(_ paho.Client, err error) {
	p.log.Warnw("mqtt connection lost", "error", err)
}

// Buffered returns how many messages are waiting for a connection.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.len()
}

// IsConnected reports whether the broker connection is currently up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
