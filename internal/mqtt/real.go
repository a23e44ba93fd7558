package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/sweeney/contact-sensor/internal/logger"
	"github.com/sweeney/contact-sensor/internal/stack"
)

// Options configure a RealTransport.
type Options struct {
	Broker     string
	ClientID   string
	Topics     Topics
	BufferSize int
}

// RealTransport is the engine transport on an MQTT broker. A broker session
// counts as joined: connect raises LinkUp, connection loss raises LinkDown.
type RealTransport struct {
	opts  Options
	log   zerolog.Logger
	state State

	mu      sync.Mutex
	client  paho.Client
	handler stack.LinkHandler
	offline *ringBuffer
}

var _ stack.Transport = (*RealTransport)(nil)

// NewRealTransport creates a transport; nothing connects until Start.
func NewRealTransport(opts Options) *RealTransport {
	if opts.BufferSize <= 0 {
		opts.BufferSize = 32
	}
	return &RealTransport{
		opts:    opts,
		log:     logger.With("mqtt"),
		offline: newRingBuffer(opts.BufferSize),
	}
}

// Start begins connecting in the background. Connection attempts are retried
// until Close.
func (t *RealTransport) Start(h stack.LinkHandler) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client != nil {
		return fmt.Errorf("mqtt: already started")
	}
	t.handler = h

	opts := paho.NewClientOptions().
		AddBroker(t.opts.Broker).
		SetClientID(t.opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(t.opts.Topics.Availability, Offline, 1, true).
		SetOnConnectHandler(t.onConnect).
		SetConnectionLostHandler(t.onConnectionLost)

	t.client = paho.NewClient(opts)
	t.client.Connect()
	t.log.Info().Str("broker", t.opts.Broker).Msg("connecting")
	return nil
}

func (t *RealTransport) onConnect(c paho.Client) {
	t.log.Info().Msg("connected")
	if err := t.publishNow(c, t.opts.Topics.Availability, 1, true, []byte(Online)); err != nil {
		t.log.Warn().Err(err).Msg("publish availability")
	}
	if tok := c.Subscribe(t.opts.Topics.Set, 1, t.onSet); tok.WaitTimeout(5*time.Second) && tok.Error() != nil {
		t.log.Warn().Err(tok.Error()).Str("topic", t.opts.Topics.Set).Msg("subscribe")
	}

	t.mu.Lock()
	pending := t.offline.drainAll()
	h := t.handler
	t.mu.Unlock()

	for _, m := range pending {
		if err := t.publishNow(c, m.topic, m.qos, m.retained, m.payload); err != nil {
			t.log.Warn().Err(err).Str("topic", m.topic).Msg("replay")
		}
	}
	if len(pending) > 0 {
		t.log.Info().Int("messages", len(pending)).Msg("replayed offline buffer")
	}
	if h != nil {
		h.LinkUp()
	}
}

func (t *RealTransport) onConnectionLost(_ paho.Client, err error) {
	t.log.Warn().Err(err).Msg("connection lost")
	t.mu.Lock()
	h := t.handler
	t.mu.Unlock()
	if h != nil {
		h.LinkDown()
	}
}

func (t *RealTransport) onSet(_ paho.Client, m paho.Message) {
	secs, ok, err := ParseSet(m.Payload())
	if err != nil {
		t.log.Warn().Err(err).Msg("bad set message")
		return
	}
	if !ok {
		return
	}
	t.mu.Lock()
	h := t.handler
	t.mu.Unlock()
	if h != nil {
		h.IdentifyRequest(secs)
	}
}

// SendCommand publishes an action message.
func (t *RealTransport) SendCommand(c stack.Command) error {
	payload, err := FormatCommand(c)
	if err != nil {
		return fmt.Errorf("format command: %w", err)
	}
	return t.publish(t.opts.Topics.State, 1, false, payload)
}

// SendReport merges r into the device state and publishes it retained.
func (t *RealTransport) SendReport(r stack.Report) error {
	if !t.state.Apply(r) {
		return nil
	}
	payload, err := t.state.Payload()
	if err != nil {
		return fmt.Errorf("format state: %w", err)
	}
	return t.publish(t.opts.Topics.State, 0, true, payload)
}

// Leave clears the retained state, drops the session and reconnects.
func (t *RealTransport) Leave() error {
	t.mu.Lock()
	c := t.client
	t.offline.drainAll()
	t.mu.Unlock()
	if c == nil {
		return nil
	}
	t.state.Reset()
	if c.IsConnected() {
		_ = t.publishNow(c, t.opts.Topics.State, 0, true, []byte{})
		_ = t.publishNow(c, t.opts.Topics.Availability, 1, true, []byte(Offline))
	}
	c.Disconnect(250)
	t.onConnectionLost(c, fmt.Errorf("left network"))
	c.Connect()
	return nil
}

// Close publishes offline availability and disconnects.
func (t *RealTransport) Close() error {
	t.mu.Lock()
	c := t.client
	t.mu.Unlock()
	if c == nil {
		return nil
	}
	if c.IsConnected() {
		_ = t.publishNow(c, t.opts.Topics.Availability, 1, true, []byte(Offline))
	}
	c.Disconnect(1000)
	return nil
}

// IsConnected reports whether the broker session is up.
func (t *RealTransport) IsConnected() bool {
	t.mu.Lock()
	c := t.client
	t.mu.Unlock()
	return c != nil && c.IsConnectionOpen()
}

// Buffered returns the number of messages waiting for reconnection.
func (t *RealTransport) Buffered() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.offline.len()
}

func (t *RealTransport) publish(topic string, qos byte, retained bool, payload []byte) error {
	t.mu.Lock()
	c := t.client
	if c == nil || !c.IsConnectionOpen() {
		t.offline.push(bufferedMsg{topic: topic, payload: payload, qos: qos, retained: retained})
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()
	return t.publishNow(c, topic, qos, retained, payload)
}

func (t *RealTransport) publishNow(c paho.Client, topic string, qos byte, retained bool, payload []byte) error {
	token := c.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}
