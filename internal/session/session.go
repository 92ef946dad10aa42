// Package session keeps a locker's network link and MQTT session alive. It
// owns the MQTT client exclusively and exposes a small synchronous API to a
// single controller goroutine.
package session

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"sync"
	"time"

	"git.sr.ht/~spc/go-log"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/iamptic/lockandgo"
	"github.com/iamptic/lockandgo/internal/clock"
	"github.com/iamptic/lockandgo/internal/command"
	"github.com/iamptic/lockandgo/internal/config"
	"github.com/iamptic/lockandgo/internal/link"
	"github.com/iamptic/lockandgo/internal/provision"
	"github.com/iamptic/lockandgo/internal/store"
)

var (
	// ErrNotConnected is returned by Publish when there is no broker session.
	ErrNotConnected = errors.New("session not connected")

	// ErrLinkDown is returned by EnsureSession when the link is lost while
	// (re)connecting to the broker.
	ErrLinkDown = errors.New("link down")

	// ErrProvisioningTimeout is returned by EnsureLink when provisioning was
	// required but nobody completed it in time.
	ErrProvisioningTimeout = errors.New("provisioning timed out")

	// ErrRestartRequired is returned by EnsureLink when provisioning produced
	// settings that differ from the running configuration.
	ErrRestartRequired = errors.New("restart required to apply provisioned settings")
)

const (
	qos            = 1
	disconnectWait = 250
)

// ClientFactory creates an MQTT client from options.
type ClientFactory func(opts *mqtt.ClientOptions) mqtt.Client

// Option configures a Manager.
type Option func(*Manager)

// WithClock sets the clock used for backoff and idle pacing.
func WithClock(c clock.Clock) Option {
	return func(m *Manager) {
		m.clock = c
	}
}

// WithClientFactory replaces mqtt.NewClient.
func WithClientFactory(f ClientFactory) Option {
	return func(m *Manager) {
		m.newClient = f
	}
}

// WithTLSConfig sets the TLS configuration of the broker connection.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(m *Manager) {
		m.tlsConfig = cfg
	}
}

// WithHeartbeat sets a function called on every retry so a supervisor
// watchdog keeps being fed while the manager is blocked reconnecting.
func WithHeartbeat(f func()) Option {
	return func(m *Manager) {
		m.heartbeat = f
	}
}

// WithLinkBackoff overrides the delay between link connection attempts.
func WithLinkBackoff(b clock.Backoff) Option {
	return func(m *Manager) {
		m.linkBackoff = b
	}
}

// Manager drives the link/session state machine.
type Manager struct {
	conf        *config.Config
	topics      lockandgo.TopicPair
	link        link.Link
	provisioner provision.Provisioner
	store       store.Store

	clock          clock.Clock
	newClient      ClientFactory
	heartbeat      func()
	linkBackoff    clock.Backoff
	sessionBackoff clock.Backoff
	inbound        chan command.Message
	logger         *log.Logger

	mu        sync.Mutex
	state     ConnectionState
	client    mqtt.Client
	lost      bool
	tlsConfig *tls.Config
}

// NewManager returns a Manager in StateDisconnected.
func NewManager(conf *config.Config, l link.Link, p provision.Provisioner, s store.Store, opts ...Option) (*Manager, error) {
	topics, err := conf.Topics()
	if err != nil {
		return nil, fmt.Errorf("cannot derive topics: %w", err)
	}

	m := Manager{
		conf:           conf,
		topics:         topics,
		link:           l,
		provisioner:    p,
		store:          s,
		clock:          clock.Real(),
		newClient:      mqtt.NewClient,
		heartbeat:      func() {},
		sessionBackoff: clock.ConstantBackoff(conf.SessionRetryInterval),
		linkBackoff: clock.ExponentialBackoff{
			Initial:    conf.LinkRetryInterval,
			Max:        time.Minute,
			Multiplier: 2,
		},
		inbound: make(chan command.Message, conf.InboundBuffer),
		logger:  log.New(log.Writer(), fmt.Sprintf("%v[session] ", log.Prefix()), log.Flags(), log.CurrentLevel()),
		state:   StateDisconnected,
	}
	for _, opt := range opts {
		opt(&m)
	}

	return &m, nil
}

// Topics returns the command and status topics of the session.
func (m *Manager) Topics() lockandgo.TopicPair {
	return m.topics
}

// State returns the current connection state. A broker session that was lost
// since the last call is noticed here.
func (m *Manager) State() ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateSessionUp && (m.lost || !m.client.IsConnectionOpen()) {
		m.logger.Warn("broker session lost")
		m.client = nil
		m.lost = false
		m.setState(StateLinkUp)
	}
	return m.state
}

// IsConnected reports whether a broker session is up.
func (m *Manager) IsConnected() bool {
	return m.State() == StateSessionUp
}

// EnsureLink blocks until the network link is up. If the saved link profile
// fails outright, provisioning runs; a provisioning timeout yields
// ErrProvisioningTimeout and changed settings yield ErrRestartRequired. Any
// other link failure is retried with backoff.
func (m *Manager) EnsureLink(ctx context.Context) error {
	for attempt := 0; ; attempt++ {
		up, err := m.link.Up(ctx)
		if err != nil {
			m.logger.Warnf("cannot probe link: %v", err)
		}
		if up {
			m.mu.Lock()
			if m.state == StateDisconnected {
				m.setState(StateLinkUp)
			}
			m.mu.Unlock()
			return nil
		}

		if m.State() != StateDisconnected {
			m.logger.Warn("link lost")
			m.dropSession(StateDisconnected)
		}

		err = m.link.Connect(ctx)
		switch {
		case err == nil:
			m.logger.Info("link connected")
			m.mu.Lock()
			m.setState(StateLinkUp)
			m.mu.Unlock()
			return nil
		case ctx.Err() != nil:
			return ctx.Err()
		case errors.Is(err, link.ErrProfileFailed), errors.Is(err, link.ErrNoProfile):
			m.logger.Errorf("cannot connect link: %v", err)
			ok, err := m.provision(ctx)
			if err != nil {
				return err
			}
			if ok {
				attempt = -1
				continue
			}
		default:
			m.logger.Warnf("cannot connect link: %v", err)
		}

		m.heartbeat()
		delay := m.linkBackoff.Next(attempt)
		m.logger.Debugf("retrying link in %v", delay)
		if err := m.clock.SleepContext(ctx, delay); err != nil {
			return err
		}
	}
}

// provision reports whether settings were collected. A failed attempt that
// did not time out returns false so the caller backs off before retrying.
func (m *Manager) provision(ctx context.Context) (bool, error) {
	settings, err := provision.Run(ctx, m.provisioner, m.store, m.conf.ProvisionTimeout)
	switch {
	case err == nil:
	case errors.Is(err, provision.ErrTimeout):
		return false, ErrProvisioningTimeout
	case ctx.Err() != nil:
		return false, ctx.Err()
	default:
		m.logger.Errorf("provisioning failed: %v", err)
		return false, nil
	}

	if settings.DeviceID != m.conf.DeviceID ||
		settings.BrokerHost != m.conf.BrokerHost ||
		settings.BrokerPort != m.conf.BrokerPort {
		return false, ErrRestartRequired
	}
	return true, nil
}

// EnsureSession blocks until a broker session is up and subscribed to the
// command topic. Failed attempts are retried forever with a fixed delay. It
// returns early only when ctx is done or the link goes down.
func (m *Manager) EnsureSession(ctx context.Context) error {
	for attempt := 0; ; attempt++ {
		if m.State() == StateSessionUp {
			return nil
		}

		up, err := m.link.Up(ctx)
		if err != nil {
			m.logger.Warnf("cannot probe link: %v", err)
		} else if !up {
			m.dropSession(StateDisconnected)
			return ErrLinkDown
		}

		m.mu.Lock()
		if m.state == StateDisconnected {
			m.setState(StateLinkUp)
		}
		m.mu.Unlock()

		if err := m.connect(); err != nil {
			m.logger.Warnf("cannot connect to broker %v (attempt %v): %v", m.conf.BrokerURL(), attempt+1, err)
		} else {
			return nil
		}

		m.heartbeat()
		if err := m.clock.SleepContext(ctx, m.sessionBackoff.Next(attempt)); err != nil {
			return err
		}
	}
}

func (m *Manager) clientOptions() *mqtt.ClientOptions {
	m.mu.Lock()
	tlsConfig := m.tlsConfig
	m.mu.Unlock()

	opts := mqtt.NewClientOptions()
	opts.AddBroker(m.conf.BrokerURL())
	opts.SetClientID(m.conf.DeviceID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)
	opts.SetConnectTimeout(m.conf.MQTTConnectTimeout)
	if tlsConfig != nil {
		opts.SetTLSConfig(tlsConfig.Clone())
	}
	if m.conf.OfflineWill {
		opts.SetWill(m.topics.Status, string(lockandgo.StatusNameOffline), qos, false)
	}

	opts.SetConnectionLostHandler(func(c mqtt.Client, err error) {
		m.logger.Errorf("connection lost unexpectedly: %v", err)
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.client == c {
			m.lost = true
		}
	})

	opts.SetDefaultPublishHandler(func(c mqtt.Client, msg mqtt.Message) {
		m.logger.Warnf("unhandled message on topic %v", msg.Topic())
	})

	return opts
}

func (m *Manager) connect() error {
	client := m.newClient(m.clientOptions())

	token := client.Connect()
	if !token.WaitTimeout(m.conf.MQTTConnectTimeout) {
		client.Disconnect(0)
		return fmt.Errorf("cannot connect to broker: timed out after %v", m.conf.MQTTConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("cannot connect to broker: %w", err)
	}
	m.logger.Debugf("connected to broker %v as %v", m.conf.BrokerURL(), m.conf.DeviceID)

	token = client.Subscribe(m.topics.Command, qos, m.receive)
	if !token.WaitTimeout(m.conf.MQTTConnectTimeout) {
		client.Disconnect(disconnectWait)
		return fmt.Errorf("cannot subscribe to %v: timed out", m.topics.Command)
	}
	if err := token.Error(); err != nil {
		client.Disconnect(disconnectWait)
		return fmt.Errorf("cannot subscribe to %v: %w", m.topics.Command, err)
	}
	if st, ok := token.(*mqtt.SubscribeToken); ok && st.Result()[m.topics.Command] == 0x80 {
		client.Disconnect(disconnectWait)
		return fmt.Errorf("cannot subscribe to %v: refused by broker", m.topics.Command)
	}
	m.logger.Debugf("subscribed to topic: %v", m.topics.Command)

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.setState(StateSessionUp) {
		client.Disconnect(0)
		return fmt.Errorf("cannot enter %v from %v", StateSessionUp, m.state)
	}
	m.client = client
	m.lost = false

	return nil
}

// receive runs on the MQTT client's goroutine and never blocks.
func (m *Manager) receive(c mqtt.Client, msg mqtt.Message) {
	message := command.Message{
		Topic:   msg.Topic(),
		Payload: append([]byte(nil), msg.Payload()...),
	}
	select {
	case m.inbound <- message:
		m.logger.Debugf("received a message on topic %v", msg.Topic())
		m.logger.Tracef("message: %q", msg.Payload())
	default:
		m.logger.Warnf("inbound buffer full, dropping message on topic %v", msg.Topic())
	}
}

// PollInbound returns the oldest buffered inbound message. When none is
// buffered it waits at most the configured poll interval for one.
func (m *Manager) PollInbound(ctx context.Context) (command.Message, bool) {
	select {
	case msg := <-m.inbound:
		return msg, true
	default:
	}

	select {
	case msg := <-m.inbound:
		return msg, true
	case <-m.clock.After(m.conf.PollInterval):
	case <-ctx.Done():
	}
	return command.Message{}, false
}

// Publish sends payload to topic, waiting at most the configured publish
// timeout. Delivery is best effort.
func (m *Manager) Publish(topic string, payload []byte) error {
	if m.State() != StateSessionUp {
		return ErrNotConnected
	}
	m.mu.Lock()
	client := m.client
	m.mu.Unlock()

	token := client.Publish(topic, qos, false, payload)
	if !token.WaitTimeout(m.conf.MQTTPublishTimeout) {
		return fmt.Errorf("cannot publish to %v: timed out after %v", topic, m.conf.MQTTPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("cannot publish to %v: %w", topic, err)
	}
	m.logger.Debugf("published message to topic %v", topic)
	m.logger.Tracef("message: %q", payload)

	return nil
}

// ReloadTLSConfig replaces the TLS configuration. An established session is
// dropped so the next EnsureSession reconnects with cfg.
func (m *Manager) ReloadTLSConfig(cfg *tls.Config) {
	m.mu.Lock()
	m.tlsConfig = cfg
	up := m.state == StateSessionUp
	m.mu.Unlock()

	m.logger.Info("TLS configuration updated")
	if up {
		m.dropSession(StateLinkUp)
	}
}

// Close disconnects from the broker.
func (m *Manager) Close() {
	m.dropSession(StateDisconnected)
}

// dropSession disconnects any client and moves to next, which must not be
// StateSessionUp.
func (m *Manager) dropSession(next ConnectionState) {
	m.mu.Lock()
	client := m.client
	m.client = nil
	m.lost = false
	m.setState(next)
	m.mu.Unlock()

	if client != nil && client.IsConnectionOpen() {
		client.Disconnect(disconnectWait)
	}
}

// setState moves the state machine to next. Entering StateSessionUp from
// StateDisconnected is refused. m.mu must be held.
func (m *Manager) setState(next ConnectionState) bool {
	if next == StateSessionUp && m.state == StateDisconnected {
		m.logger.Errorf("refusing transition from %v to %v", m.state, next)
		return false
	}
	if next != m.state {
		m.logger.Infof("connection state %v -> %v", m.state, next)
		m.state = next
	}
	return true
}
