// Package sessiontest provides in-memory stand-ins for an MQTT broker and a
// network link, for exercising the session manager and the controller
// without a network.
package sessiontest

import (
	"errors"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// ErrConnectRefused is returned by queued connect failures.
var ErrConnectRefused = errors.New("connection refused")

// Publication is a message published through the Broker.
type Publication struct {
	Topic    string
	Payload  string
	QoS      byte
	Retained bool
	At       time.Time
}

// Broker is an in-memory MQTT broker. Its NewClient method satisfies the
// session manager's client factory.
type Broker struct {
	mu            sync.Mutex
	now           func() time.Time
	connectErrors int
	subscribeErr  error
	publishErr    error
	connects      int
	clients       []*Client
	published     []Publication
}

// NewBroker returns a Broker stamping publications with now. A nil now uses
// time.Now.
func NewBroker(now func() time.Time) *Broker {
	if now == nil {
		now = time.Now
	}
	return &Broker{now: now}
}

// FailConnects makes the next n connection attempts fail.
func (b *Broker) FailConnects(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connectErrors = n
}

// FailSubscribe makes subscriptions fail with err until reset with nil.
func (b *Broker) FailSubscribe(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribeErr = err
}

// FailPublish makes publications fail with err until reset with nil.
func (b *Broker) FailPublish(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.publishErr = err
}

// Connects returns the number of connection attempts so far.
func (b *Broker) Connects() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connects
}

// Published returns every successful publication in order.
func (b *Broker) Published() []Publication {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Publication(nil), b.published...)
}

// Clients returns every client created so far.
func (b *Broker) Clients() []*Client {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*Client(nil), b.clients...)
}

// NewClient creates a client connected to b.
func (b *Broker) NewClient(opts *mqtt.ClientOptions) mqtt.Client {
	b.mu.Lock()
	defer b.mu.Unlock()
	c := &Client{
		broker: b,
		opts:   opts,
		subs:   make(map[string]mqtt.MessageHandler),
	}
	b.clients = append(b.clients, c)
	return c
}

// Deliver routes a message to every open client subscribed to topic and
// reports whether any received it.
func (b *Broker) Deliver(topic string, payload []byte) bool {
	return b.DeliverTo(topic, topic, payload)
}

// DeliverTo hands a message on topic to every open client subscribed to
// subscription, regardless of whether the two match. It stands in for a
// broker that routes messages the subscriber did not ask for.
func (b *Broker) DeliverTo(subscription, topic string, payload []byte) bool {
	type route struct {
		client  *Client
		handler mqtt.MessageHandler
	}

	b.mu.Lock()
	var routes []route
	for _, c := range b.clients {
		if !c.open {
			continue
		}
		if h, has := c.subs[subscription]; has {
			routes = append(routes, route{c, h})
		}
	}
	b.mu.Unlock()

	for _, r := range routes {
		r.handler(r.client, &Message{topic: topic, payload: payload})
	}
	return len(routes) > 0
}

// Drop closes every open connection and reports the loss to each client's
// connection lost handler.
func (b *Broker) Drop(err error) {
	b.mu.Lock()
	var dropped []*Client
	for _, c := range b.clients {
		if c.open {
			c.open = false
			dropped = append(dropped, c)
		}
	}
	b.mu.Unlock()

	for _, c := range dropped {
		if c.opts.OnConnectionLost != nil {
			c.opts.OnConnectionLost(c, err)
		}
	}
}

// Client is an mqtt.Client attached to a Broker.
type Client struct {
	broker *Broker
	opts   *mqtt.ClientOptions
	open   bool
	subs   map[string]mqtt.MessageHandler
}

// Options returns the options the client was created with.
func (c *Client) Options() *mqtt.ClientOptions {
	return c.opts
}

func (c *Client) IsConnected() bool {
	return c.IsConnectionOpen()
}

func (c *Client) IsConnectionOpen() bool {
	c.broker.mu.Lock()
	defer c.broker.mu.Unlock()
	return c.open
}

func (c *Client) Connect() mqtt.Token {
	c.broker.mu.Lock()
	defer c.broker.mu.Unlock()
	c.broker.connects++
	if c.broker.connectErrors > 0 {
		c.broker.connectErrors--
		return newToken(ErrConnectRefused)
	}
	c.open = true
	return newToken(nil)
}

func (c *Client) Disconnect(quiesce uint) {
	c.broker.mu.Lock()
	defer c.broker.mu.Unlock()
	c.open = false
}

func (c *Client) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.broker.mu.Lock()
	defer c.broker.mu.Unlock()
	if !c.open {
		return newToken(mqtt.ErrNotConnected)
	}
	if c.broker.publishErr != nil {
		return newToken(c.broker.publishErr)
	}

	var data string
	switch p := payload.(type) {
	case []byte:
		data = string(p)
	case string:
		data = p
	}
	c.broker.published = append(c.broker.published, Publication{
		Topic:    topic,
		Payload:  data,
		QoS:      qos,
		Retained: retained,
		At:       c.broker.now(),
	})
	return newToken(nil)
}

func (c *Client) Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token {
	c.broker.mu.Lock()
	defer c.broker.mu.Unlock()
	if !c.open {
		return newToken(mqtt.ErrNotConnected)
	}
	if c.broker.subscribeErr != nil {
		return newToken(c.broker.subscribeErr)
	}
	c.subs[topic] = callback
	return newToken(nil)
}

func (c *Client) SubscribeMultiple(filters map[string]byte, callback mqtt.MessageHandler) mqtt.Token {
	for topic, qos := range filters {
		if t := c.Subscribe(topic, qos, callback); t.Error() != nil {
			return t
		}
	}
	return newToken(nil)
}

func (c *Client) Unsubscribe(topics ...string) mqtt.Token {
	c.broker.mu.Lock()
	defer c.broker.mu.Unlock()
	for _, topic := range topics {
		delete(c.subs, topic)
	}
	return newToken(nil)
}

func (c *Client) AddRoute(topic string, callback mqtt.MessageHandler) {
	c.broker.mu.Lock()
	defer c.broker.mu.Unlock()
	c.subs[topic] = callback
}

// OptionsReader returns an empty reader; use Options to inspect how the
// client was configured.
func (c *Client) OptionsReader() mqtt.ClientOptionsReader {
	return mqtt.ClientOptionsReader{}
}

type token struct {
	err  error
	done chan struct{}
}

func newToken(err error) *token {
	t := token{err: err, done: make(chan struct{})}
	close(t.done)
	return &t
}

func (t *token) Wait() bool                       { return true }
func (t *token) WaitTimeout(d time.Duration) bool { return true }
func (t *token) Done() <-chan struct{}            { return t.done }
func (t *token) Error() error                     { return t.err }

// Message is an mqtt.Message delivered by a Broker.
type Message struct {
	topic   string
	payload []byte
}

func (m *Message) Duplicate() bool   { return false }
func (m *Message) Qos() byte         { return 1 }
func (m *Message) Retained() bool    { return false }
func (m *Message) Topic() string     { return m.topic }
func (m *Message) MessageID() uint16 { return 0 }
func (m *Message) Payload() []byte   { return m.payload }
func (m *Message) Ack()              {}
